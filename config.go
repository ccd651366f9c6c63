// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2026 The Relaynet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/decred/dcrd/dcrutil/v4"
	"github.com/decred/go-socks/socks"
	flags "github.com/jessevdk/go-flags"
	"github.com/relaynet/relayd/internal/addrrelay"
	"github.com/relaynet/relayd/internal/version"
	"github.com/relaynet/relayd/sampleconfig"
)

const (
	defaultConfigFilename       = "relayd.conf"
	defaultDataDirname          = "data"
	defaultLogLevel             = "info"
	defaultLogDirname           = "logs"
	defaultLogFilename          = "relayd.log"
	defaultMaxPeers             = 125
	defaultMaxSameIP            = 5
	defaultBanDuration          = time.Hour * 24
	defaultBanThreshold         = 100
	defaultDialTimeout          = time.Second * 30
	defaultPeerIdleTimeout      = time.Second * 120
	defaultTrickleInterval      = addrrelay.DefaultFlushInterval
	defaultGetAddrCacheInterval = addrrelay.DefaultGetAddrCacheInterval
	defaultRebroadcastInterval  = time.Minute * 10
)

var (
	defaultHomeDir    = dcrutil.AppDataDir("relayd", false)
	defaultConfigFile = filepath.Join(defaultHomeDir, defaultConfigFilename)
	defaultDataDir    = filepath.Join(defaultHomeDir, defaultDataDirname)
	defaultLogDir     = filepath.Join(defaultHomeDir, defaultLogDirname)
)

// config defines the configuration options for relayd.
//
// See loadConfig for details on the configuration load process.
type config struct {
	HomeDir              string        `short:"A" long:"appdata" description:"Path to application home directory"`
	ShowVersion          bool          `short:"V" long:"version" description:"Display version information and exit"`
	ConfigFile           string        `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir              string        `short:"b" long:"datadir" description:"Directory to store data"`
	LogDir               string        `long:"logdir" description:"Directory to log output"`
	NoFileLogging        bool          `long:"nofilelogging" description:"Disable file logging"`
	AddPeers             []string      `short:"a" long:"addpeer" description:"Add a peer to connect with at startup"`
	ConnectPeers         []string      `long:"connect" description:"Connect only to the specified peers at startup"`
	DisableListen        bool          `long:"nolisten" description:"Disable listening for incoming connections -- NOTE: Listening is automatically disabled if the --connect or --proxy options are used without also specifying listen interfaces via --listen"`
	Listeners            []string      `long:"listen" description:"Add an interface/port to listen for connections (default all interfaces port: 9108, testnet: 19108)"`
	MaxPeers             int           `long:"maxpeers" description:"Max number of inbound and outbound peers"`
	MaxSameIP            int           `long:"maxsameip" description:"Max number of connections with the same IP -- 0 to disable"`
	DisableBanning       bool          `long:"nobanning" description:"Disable banning of misbehaving peers"`
	BanDuration          time.Duration `long:"banduration" description:"How long to ban misbehaving peers.  Valid time units are {s, m, h}.  Minimum 1 second"`
	BanThreshold         uint32        `long:"banthreshold" description:"Maximum allowed ban score before disconnecting and banning misbehaving peers"`
	Whitelists           []string      `long:"whitelist" description:"Add an IP network or IP that will not be banned (eg. 192.168.1.0/24 or ::1)"`
	DisableSeeders       bool          `long:"noseeders" description:"Disable seeding for peer discovery"`
	ExternalIPs          []string      `long:"externalip" description:"Add an ip to the list of local addresses we claim to listen on to peers"`
	Proxy                string        `long:"proxy" description:"Connect via SOCKS5 proxy (eg. 127.0.0.1:9050)"`
	ProxyUser            string        `long:"proxyuser" description:"Username for proxy server"`
	ProxyPass            string        `long:"proxypass" default-mask:"-" description:"Password for proxy server"`
	TestNet              bool          `long:"testnet" description:"Use the test network"`
	SimNet               bool          `long:"simnet" description:"Use the simulation test network"`
	RegNet               bool          `long:"regnet" description:"Use the regression test network"`
	DebugLevel           string        `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`
	BlocksOnly           bool          `long:"blocksonly" description:"Do not accept transactions from remote peers"`
	DialTimeout          time.Duration `long:"dialtimeout" description:"How long to wait for TCP connection completion.  Valid time units are {s, m, h}.  Minimum 1 second"`
	PeerIdleTimeout      time.Duration `long:"peeridletimeout" description:"The duration of inactivity before a peer is timed out.  Valid time units are {s, m, h}.  Minimum 15 seconds"`
	TrickleInterval      time.Duration `long:"trickleinterval" description:"Base interval between batched address relay deliveries to each peer.  The per-peer schedule is randomized around this value.  Valid time units are {s, m, h}.  Minimum 1 second"`
	GetAddrCacheInterval time.Duration `long:"getaddrcacheinterval" description:"How long the response to an address discovery request is cached.  Valid time units are {s, m, h}.  Minimum 1 minute"`
	RebroadcastInterval  time.Duration `long:"rebroadcastinterval" description:"Base interval between re-announcements of unconfirmed local transactions.  Valid time units are {s, m, h}.  Minimum 1 minute"`
	Profile              string        `long:"profile" description:"Enable HTTP profiling on given [addr:]port -- NOTE port must be between 1024 and 65536"`
	CPUProfile           string        `long:"cpuprofile" description:"Write CPU profile to the specified file"`
	MemProfile           string        `long:"memprofile" description:"Write mem profile to the specified file"`

	// The following fields are set during load and are not directly
	// settable from the command line or config file.
	params     *params
	whitelists []*net.IPNet
	lookup     func(string) ([]net.IP, error)
	dial       func(context.Context, string, string) (net.Conn, error)
}

// errSuppressUsage signifies that an error that happened during the initial
// configuration phase should suppress the usage output since it was not caused
// by the user.
type errSuppressUsage string

// Error implements the error interface.
func (e errSuppressUsage) Error() string {
	return string(e)
}

// relaydDial connects to the address on the named network using the dialer
// configured during the configuration load process which will potentially use
// a proxy when one is configured.
func relaydDial(ctx context.Context, network, addr string) (net.Conn, error) {
	return cfg.dial(ctx, network, addr)
}

// relaydLookup resolves the IP of the given host using the correct DNS lookup
// function depending on the configuration options.
//
// Any attempt to resolve a tor address (.onion) will return an error since
// they are not intended to be resolved outside of the tor proxy.
func relaydLookup(host string) ([]net.IP, error) {
	if strings.HasSuffix(host, ".onion") {
		return nil, fmt.Errorf("attempt to resolve tor address %s", host)
	}

	return cfg.lookup(host)
}

// cleanAndExpandPath expands environment variables and leading ~ in the passed
// path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Nothing to do when the path is empty.
	if path == "" {
		return path
	}

	// Expand initial ~ to the current user's home directory, or ~otheruser to
	// otheruser's home directory.
	if strings.HasPrefix(path, "~") {
		homeDir := filepath.Dir(defaultHomeDir)
		path = strings.Replace(path, "~", homeDir, 1)
	}

	// Expand environment variables.
	path = os.ExpandEnv(path)

	// Clean the path.
	return filepath.Clean(path)
}

// validLogLevel returns whether or not logLevel is a valid debug log level.
func validLogLevel(logLevel string) bool {
	switch logLevel {
	case "trace", "debug", "info", "warn", "error", "critical":
		return true
	}
	return false
}

// supportedSubsystems returns a sorted slice of the supported subsystems for
// logging purposes.
func supportedSubsystems() []string {
	// Convert the subsystemLoggers map keys to a slice.
	subsystems := make([]string, 0, len(subsystemLoggers))
	for subsysID := range subsystemLoggers {
		subsystems = append(subsystems, subsysID)
	}

	// Sort the subsystems for stable display.
	sort.Strings(subsystems)
	return subsystems
}

// parseAndSetDebugLevels attempts to parse the specified debug level and set
// the levels accordingly.  An appropriate error is returned if anything is
// invalid.
func parseAndSetDebugLevels(debugLevel string) error {
	// When the specified string doesn't have any delimiters, treat it as
	// the log level for all subsystems.
	if !strings.Contains(debugLevel, ",") && !strings.Contains(debugLevel, "=") {
		// Validate debug log level.
		if !validLogLevel(debugLevel) {
			return fmt.Errorf("the specified debug level [%v] is invalid",
				debugLevel)
		}

		// Change the logging level for all subsystems.
		setLogLevels(debugLevel)

		return nil
	}

	// Split the specified string into subsystem/level pairs while detecting
	// issues and update the log levels accordingly.
	for _, logLevelPair := range strings.Split(debugLevel, ",") {
		if !strings.Contains(logLevelPair, "=") {
			return fmt.Errorf("the specified debug level contains an invalid "+
				"subsystem/level pair [%v]", logLevelPair)
		}

		// Extract the specified subsystem and log level.
		fields := strings.Split(logLevelPair, "=")
		subsysID, logLevel := fields[0], fields[1]

		// Validate subsystem.
		if _, exists := subsystemLoggers[subsysID]; !exists {
			return fmt.Errorf("the specified subsystem [%v] is invalid -- "+
				"supported subsystems %v", subsysID, supportedSubsystems())
		}

		// Validate log level.
		if !validLogLevel(logLevel) {
			return fmt.Errorf("the specified debug level [%v] is invalid",
				logLevel)
		}

		setLogLevel(subsysID, logLevel)
	}

	return nil
}

// normalizeAddress returns addr with the passed default port appended if
// there is not already a port specified.
func normalizeAddress(addr, defaultPort string) string {
	_, _, err := net.SplitHostPort(addr)
	if err != nil {
		return net.JoinHostPort(addr, defaultPort)
	}
	return addr
}

// normalizeAddresses returns a new slice with all the passed peer addresses
// normalized with the given default port, and all duplicates removed.
func normalizeAddresses(addrs []string, defaultPort string) []string {
	result := make([]string, 0, len(addrs))
	seen := map[string]struct{}{}
	for _, addr := range addrs {
		addr = normalizeAddress(addr, defaultPort)
		if _, ok := seen[addr]; !ok {
			result = append(result, addr)
			seen[addr] = struct{}{}
		}
	}
	return result
}

// createDefaultConfigFile copies the sample config to the given destination
// path.
func createDefaultConfigFile(destPath string) error {
	// Create the destination directory if it does not exist.
	err := os.MkdirAll(filepath.Dir(destPath), 0700)
	if err != nil {
		return err
	}

	dest, err := os.OpenFile(destPath,
		os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer dest.Close()

	_, err = dest.WriteString(sampleconfig.Relayd())
	return err
}

// loadConfig initializes and parses the config using a config file and command
// line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
//
// The above results in relayd functioning properly without any config settings
// while still allowing the user to override settings with config files and
// command line options.  Command line options always take precedence.
func loadConfig(appName string) (*config, []string, error) {
	// Default config.
	cfg := config{
		HomeDir:              defaultHomeDir,
		ConfigFile:           defaultConfigFile,
		DebugLevel:           defaultLogLevel,
		MaxPeers:             defaultMaxPeers,
		MaxSameIP:            defaultMaxSameIP,
		BanDuration:          defaultBanDuration,
		BanThreshold:         defaultBanThreshold,
		DataDir:              defaultDataDir,
		LogDir:               defaultLogDir,
		DialTimeout:          defaultDialTimeout,
		PeerIdleTimeout:      defaultPeerIdleTimeout,
		TrickleInterval:      defaultTrickleInterval,
		GetAddrCacheInterval: defaultGetAddrCacheInterval,
		RebroadcastInterval:  defaultRebroadcastInterval,
	}

	// Pre-parse the command line options to see if an alternative config file
	// or the version flag was specified.  Any errors aside from the help
	// message error can be ignored here since they will be caught by the final
	// parse below.
	preCfg := cfg
	preParser := flags.NewParser(&preCfg, flags.HelpFlag)
	_, err := preParser.Parse()
	if err != nil {
		var e *flags.Error
		if errors.As(err, &e) && e.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, err)
			os.Exit(0)
		}
	}

	// Show the version and exit if the version flag was specified.
	if preCfg.ShowVersion {
		fmt.Printf("%s version %s (Go version %s %s/%s)\n", appName,
			version.String(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
		os.Exit(0)
	}

	// Update the home directory for relayd if specified.  Since the home
	// directory is updated, other variables need to be updated to reflect the
	// new changes.
	if preCfg.HomeDir != defaultHomeDir {
		cfg.HomeDir = cleanAndExpandPath(preCfg.HomeDir)

		if preCfg.ConfigFile == defaultConfigFile {
			cfg.ConfigFile = filepath.Join(cfg.HomeDir, defaultConfigFilename)
		} else {
			cfg.ConfigFile = preCfg.ConfigFile
		}
		if preCfg.DataDir == defaultDataDir {
			cfg.DataDir = filepath.Join(cfg.HomeDir, defaultDataDirname)
		} else {
			cfg.DataDir = preCfg.DataDir
		}
		if preCfg.LogDir == defaultLogDir {
			cfg.LogDir = filepath.Join(cfg.HomeDir, defaultLogDirname)
		} else {
			cfg.LogDir = preCfg.LogDir
		}
	}

	// Create the home directory if it doesn't already exist.
	funcName := "loadConfig"
	err = os.MkdirAll(cfg.HomeDir, 0700)
	if err != nil {
		str := "%s: failed to create home directory: %v"
		err := fmt.Errorf(str, funcName, err)
		return nil, nil, err
	}

	// Create a default config file when one does not already exist and the
	// default config file path is in use.
	if !(preCfg.SimNet || preCfg.RegNet) && cfg.ConfigFile == defaultConfigFile {
		if _, err := os.Stat(cfg.ConfigFile); errors.Is(err, os.ErrNotExist) {
			err := createDefaultConfigFile(cfg.ConfigFile)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error creating a default config "+
					"file: %v\n", err)
			}
		}
	}

	// Load additional config from file.
	parser := flags.NewParser(&cfg, flags.Default)
	if !(preCfg.SimNet || preCfg.RegNet) ||
		preCfg.ConfigFile != defaultConfigFile {

		err := flags.NewIniParser(parser).ParseFile(cfg.ConfigFile)
		if err != nil {
			var e *os.PathError
			if !errors.As(err, &e) {
				err := fmt.Errorf("error parsing config file: %w", err)
				return nil, nil, err
			} else if cfg.ConfigFile != defaultConfigFile {
				err := fmt.Errorf("config file specified at %q does not exist",
					cfg.ConfigFile)
				return nil, nil, errSuppressUsage(err.Error())
			}
		}
	}

	// Parse command line options again to ensure they take precedence.
	remainingArgs, err := parser.Parse()
	if err != nil {
		var e *flags.Error
		if errors.As(err, &e) && e.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, err)
			os.Exit(0)
		}
		return nil, nil, err
	}

	// Multiple networks can't be selected simultaneously.
	numNets := 0
	cfg.params = &mainNetParams
	if cfg.TestNet {
		numNets++
		cfg.params = &testNet3Params
	}
	if cfg.SimNet {
		numNets++
		cfg.params = &simNetParams
	}
	if cfg.RegNet {
		numNets++
		cfg.params = &regNetParams
	}
	if numNets > 1 {
		str := "%s: the testnet, simnet, and regnet params can't be used " +
			"together -- choose one of the three"
		err := fmt.Errorf(str, funcName)
		return nil, nil, err
	}
	activeNetParams = cfg.params

	// Append the network type to the data and log directories so they are
	// "namespaced" per network.
	cfg.DataDir = cleanAndExpandPath(cfg.DataDir)
	cfg.DataDir = filepath.Join(cfg.DataDir, cfg.params.Name)
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)
	cfg.LogDir = filepath.Join(cfg.LogDir, cfg.params.Name)

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", supportedSubsystems())
		os.Exit(0)
	}

	// Initialize log rotation.  After the log rotation has been initialized,
	// the logger variables may be used.
	if !cfg.NoFileLogging {
		initLogRotator(filepath.Join(cfg.LogDir, defaultLogFilename))
	}

	// Parse, validate, and set debug log level(s).
	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		err := fmt.Errorf("%s: %w", funcName, err)
		return nil, nil, err
	}

	// Don't allow ban durations that are too short.
	if cfg.BanDuration < time.Second {
		str := "%s: the banduration option may not be less than 1s -- parsed [%v]"
		err := fmt.Errorf(str, funcName, cfg.BanDuration)
		return nil, nil, err
	}

	// Validate any given whitelisted IP addresses and networks.
	if len(cfg.Whitelists) > 0 {
		var ip net.IP
		cfg.whitelists = make([]*net.IPNet, 0, len(cfg.Whitelists))

		for _, addr := range cfg.Whitelists {
			_, ipnet, err := net.ParseCIDR(addr)
			if err != nil {
				ip = net.ParseIP(addr)
				if ip == nil {
					str := "%s: the whitelist value of '%s' is invalid"
					err = fmt.Errorf(str, funcName, addr)
					return nil, nil, err
				}
				var bits int
				if ip.To4() == nil {
					// IPv6
					bits = 128
				} else {
					bits = 32
				}
				ipnet = &net.IPNet{
					IP:   ip,
					Mask: net.CIDRMask(bits, bits),
				}
			}
			cfg.whitelists = append(cfg.whitelists, ipnet)
		}
	}

	// --addpeer and --connect can not be used together.
	if len(cfg.AddPeers) > 0 && len(cfg.ConnectPeers) > 0 {
		str := "%s: the --addpeer and --connect options can not be mixed"
		err := fmt.Errorf(str, funcName)
		return nil, nil, err
	}

	// --proxy or --connect without --listen disables listening.
	if (cfg.Proxy != "" || len(cfg.ConnectPeers) > 0) &&
		len(cfg.Listeners) == 0 {
		cfg.DisableListen = true
	}

	// Add the default listener if none were specified. The default listener is
	// all addresses on the listen port for the network we are to connect to.
	if len(cfg.Listeners) == 0 {
		cfg.Listeners = []string{
			net.JoinHostPort("", cfg.params.DefaultPort),
		}
	}

	// Don't allow timeouts that are too short.
	if cfg.DialTimeout < time.Second {
		str := "%s: the dialtimeout option may not be less than 1s -- parsed [%v]"
		err := fmt.Errorf(str, funcName, cfg.DialTimeout)
		return nil, nil, err
	}
	if cfg.PeerIdleTimeout < 15*time.Second {
		str := "%s: the peeridletimeout option may not be less than 15s -- " +
			"parsed [%v]"
		err := fmt.Errorf(str, funcName, cfg.PeerIdleTimeout)
		return nil, nil, err
	}

	// Don't allow relay intervals that are too short to be useful.
	if cfg.TrickleInterval < time.Second {
		str := "%s: the trickleinterval option may not be less than 1s -- " +
			"parsed [%v]"
		err := fmt.Errorf(str, funcName, cfg.TrickleInterval)
		return nil, nil, err
	}
	if cfg.GetAddrCacheInterval < time.Minute {
		str := "%s: the getaddrcacheinterval option may not be less than 1m " +
			"-- parsed [%v]"
		err := fmt.Errorf(str, funcName, cfg.GetAddrCacheInterval)
		return nil, nil, err
	}
	if cfg.RebroadcastInterval < time.Minute {
		str := "%s: the rebroadcastinterval option may not be less than 1m " +
			"-- parsed [%v]"
		err := fmt.Errorf(str, funcName, cfg.RebroadcastInterval)
		return nil, nil, err
	}

	// Add default port to all listener addresses if needed and remove
	// duplicate addresses.
	cfg.Listeners = normalizeAddresses(cfg.Listeners,
		cfg.params.DefaultPort)

	// Add default port to all added peer addresses if needed and remove
	// duplicate addresses.
	cfg.AddPeers = normalizeAddresses(cfg.AddPeers,
		cfg.params.DefaultPort)
	cfg.ConnectPeers = normalizeAddresses(cfg.ConnectPeers,
		cfg.params.DefaultPort)

	// Setup dial and DNS resolution (lookup) functions depending on the
	// specified options.  The default is to use the standard net.DialTimeout
	// function as well as the system DNS resolver.  When a proxy is specified,
	// the dial function is set to the proxy specific dial function.
	cfg.dial = func(ctx context.Context, network, addr string) (net.Conn, error) {
		var d net.Dialer
		ctx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
		return d.DialContext(ctx, network, addr)
	}
	cfg.lookup = net.LookupIP
	if cfg.Proxy != "" {
		_, _, err := net.SplitHostPort(cfg.Proxy)
		if err != nil {
			str := "%s: proxy address '%s' is invalid: %v"
			err := fmt.Errorf(str, funcName, cfg.Proxy, err)
			return nil, nil, err
		}

		proxy := &socks.Proxy{
			Addr:     cfg.Proxy,
			Username: cfg.ProxyUser,
			Password: cfg.ProxyPass,
		}
		cfg.dial = func(ctx context.Context, network, addr string) (net.Conn, error) {
			ctx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
			defer cancel()
			return proxy.DialContext(ctx, network, addr)
		}
	}

	return &cfg, remainingArgs, nil
}
