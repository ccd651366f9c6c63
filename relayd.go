// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2026 The Relaynet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"runtime/pprof"
	"strings"

	"github.com/relaynet/relayd/internal/limits"
	"github.com/relaynet/relayd/internal/version"
)

var cfg *config

// relaydMain is the real main function for relayd.  It is necessary to work
// around the fact that deferred functions do not run when os.Exit() is called.
func relaydMain() error {
	// Load configuration and parse command line.  This function also
	// initializes logging and configures it accordingly.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	tcfg, _, err := loadConfig(appName)
	if err != nil {
		usageMessage := fmt.Sprintf("Use %s -h to show usage", appName)
		fmt.Fprintln(os.Stderr, err)
		var e errSuppressUsage
		if !errors.As(err, &e) {
			fmt.Fprintln(os.Stderr, usageMessage)
		}
		return err
	}
	cfg = tcfg
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	// Get a context that will be canceled when a shutdown signal has been
	// triggered from an OS signal such as SIGINT (Ctrl+C).
	ctx := shutdownListener()
	defer relaydLog.Info("Shutdown complete")

	// Show version and home dir at startup.
	relaydLog.Infof("Version %s (Go version %s %s/%s)", version.String(),
		runtime.Version(), runtime.GOOS, runtime.GOARCH)
	relaydLog.Infof("Home dir: %s", cfg.HomeDir)
	if cfg.NoFileLogging {
		relaydLog.Info("File logging disabled")
	}

	// Relay processing can cause bursty allocations.  This limits the garbage
	// collector from excessively overallocating during bursts.  It does this
	// by tweaking the target GC percent and soft memory limit depending on
	// the version of the Go runtime.
	if limits.SupportsMemoryLimit {
		const softMemLimit = 1 << 30 // 1 GiB
		limits.SetMemoryLimit(softMemLimit)
	} else {
		debug.SetGCPercent(20)
	}

	// Enable http profile server if requested.  Note that since the server may
	// be started now or dynamically started and stopped later, the stop call is
	// always deferred to ensure it is always stopped during process shutdown.
	var profiler profileServer
	defer profiler.Stop()
	if cfg.Profile != "" {
		const allowNonLoopback = true
		if err := profiler.Start(cfg.Profile, allowNonLoopback); err != nil {
			relaydLog.Warnf("unable to start profile server: %v", err)
			return err
		}
	}

	// Write cpu profile if requested.
	if cfg.CPUProfile != "" {
		f, err := os.Create(cfg.CPUProfile)
		if err != nil {
			relaydLog.Errorf("Unable to create cpu profile: %v", err.Error())
			return err
		}
		pprof.StartCPUProfile(f)
		defer f.Close()
		defer pprof.StopCPUProfile()
	}

	// Write mem profile if requested.
	if cfg.MemProfile != "" {
		f, err := os.Create(cfg.MemProfile)
		if err != nil {
			relaydLog.Errorf("Unable to create mem profile: %v", err)
			return err
		}
		defer f.Close()
		defer pprof.WriteHeapProfile(f)
	}

	// Return now if a shutdown signal was triggered.
	if shutdownRequested(ctx) {
		return nil
	}

	// Create server.
	svr, err := newServer(ctx, cfg.Listeners, cfg.params.Params, cfg.DataDir)
	if err != nil {
		relaydLog.Errorf("Unable to start server: %v", err)
		return err
	}

	if shutdownRequested(ctx) {
		return nil
	}

	// Run the server.  This will block until the context is cancelled which
	// happens when the interrupt signal is received from an OS signal.
	svr.Run(ctx)
	srvrLog.Infof("Server shutdown complete")
	return nil
}

func main() {
	// Up some limits.
	if err := limits.SetLimits(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to set limits: %v\n", err)
		os.Exit(1)
	}

	// Work around defer not working after os.Exit()
	if err := relaydMain(); err != nil {
		os.Exit(1)
	}
}
