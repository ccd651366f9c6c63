// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2026 The Relaynet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
relayd is a gossip relay daemon written in Go.

relayd maintains a persistent peer address database, exchanges addresses over
the wire protocol with defenses against topology harvesting, and re-announces
locally originated transactions until their delivery to the network is proven.
The default options are sane for most users.  This means relayd will work 'out
of the box' for most users.  However, there are also a wide variety of flags
that can be used to control it.

The following section provides a usage overview which enumerates the flags.  An
interesting point to note is that the long form of all of these options
(except -C) can be specified in a configuration file that is automatically
parsed when relayd starts up.  By default, the configuration file is located at
~/.relayd/relayd.conf on POSIX-style operating systems and
%LOCALAPPDATA%\relayd\relayd.conf on Windows.  The -C (--configfile) flag, as
shown below, can be used to override this location.

Usage:

	relayd [OPTIONS]

Application Options:

	-V, --version                Display version information and exit
	-A, --appdata=               Path to application home directory
	-C, --configfile=            Path to configuration file
	-b, --datadir=               Directory to store data
	    --logdir=                Directory to log output
	    --nofilelogging          Disable file logging
	-a, --addpeer=               Add a peer to connect with at startup
	    --connect=               Connect only to the specified peers at startup
	    --nolisten               Disable listening for incoming connections --
	                             NOTE: Listening is automatically disabled if
	                             the --connect or --proxy options are used
	                             without also specifying listen interfaces via
	                             --listen
	    --listen=                Add an interface/port to listen for connections
	                             (default all interfaces port: 9108, testnet:
	                             19108)
	    --maxpeers=              Max number of inbound and outbound peers
	    --maxsameip=             Max number of connections with the same IP --
	                             0 to disable
	    --nobanning              Disable banning of misbehaving peers
	    --banduration=           How long to ban misbehaving peers.  Valid time
	                             units are {s, m, h}.  Minimum 1 second
	    --banthreshold=          Maximum allowed ban score before disconnecting
	                             and banning misbehaving peers
	    --whitelist=             Add an IP network or IP that will not be banned
	                             (eg. 192.168.1.0/24 or ::1)
	    --noseeders              Disable seeding for peer discovery
	    --externalip=            Add an ip to the list of local addresses we
	                             claim to listen on to peers
	    --proxy=                 Connect via SOCKS5 proxy (eg. 127.0.0.1:9050)
	    --proxyuser=             Username for proxy server
	    --proxypass=             Password for proxy server
	    --testnet                Use the test network
	    --simnet                 Use the simulation test network
	    --regnet                 Use the regression test network
	-d, --debuglevel=            Logging level for all subsystems {trace,
	                             debug, info, warn, error, critical} -- You may
	                             also specify
	                             <subsystem>=<level>,<subsystem2>=<level>,...
	                             to set the log level for individual subsystems
	                             -- Use show to list available subsystems
	    --blocksonly             Do not accept transactions from remote peers
	    --dialtimeout=           How long to wait for TCP connection
	                             completion.  Valid time units are {s, m, h}.
	                             Minimum 1 second
	    --peeridletimeout=       The duration of inactivity before a peer is
	                             timed out.  Valid time units are {s, m, h}.
	                             Minimum 15 seconds
	    --trickleinterval=       Base interval between batched address relay
	                             deliveries to each peer.  The per-peer schedule
	                             is randomized around this value.  Valid time
	                             units are {s, m, h}.  Minimum 1 second
	    --getaddrcacheinterval=  How long the response to an address discovery
	                             request is cached.  Valid time units are
	                             {s, m, h}.  Minimum 1 minute
	    --rebroadcastinterval=   Base interval between re-announcements of
	                             unconfirmed local transactions.  Valid time
	                             units are {s, m, h}.  Minimum 1 minute
	    --profile=               Enable HTTP profiling on given [addr:]port --
	                             NOTE: port must be between 1024 and 65536
	    --cpuprofile=            Write CPU profile to the specified file
	    --memprofile=            Write mem profile to the specified file

Help Options:

	-h, --help                   Show this help message
*/
package main
