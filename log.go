// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2026 The Relaynet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/decred/dcrd/addrmgr/v2"
	"github.com/decred/dcrd/connmgr/v3"
	"github.com/decred/dcrd/peer/v3"
	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"
	"github.com/relaynet/relayd/internal/addrrelay"
	"github.com/relaynet/relayd/internal/addrstore"
	"github.com/relaynet/relayd/internal/sched"
	"github.com/relaynet/relayd/internal/unbroadcast"
)

// logWriter implements an io.Writer that outputs to both standard output and
// the write-end pipe of an initialized log rotator.
type logWriter struct{}

func (logWriter) Write(p []byte) (n int, err error) {
	os.Stdout.Write(p)
	if logRotator != nil {
		logRotator.Write(p)
	}
	return len(p), nil
}

// Loggers per subsystem.  A single backend logger is created and all subsystem
// loggers created from it will write to the backend.  When adding new
// subsystems, add the subsystem logger variable here and to the
// subsystemLoggers map.
//
// Loggers can not be used before the log rotator has been initialized with a
// log file.  This must be performed early during application startup by calling
// initLogRotator.
var (
	// backendLog is the logging backend used to create all subsystem loggers.
	// The backend must not be used before the log rotator has been initialized,
	// or data races and/or nil pointer dereferences will occur.
	backendLog = slog.NewBackend(logWriter{})

	// logRotator is one of the logging outputs.  It should be closed on
	// application shutdown.
	logRotator *rotator.Rotator

	relaydLog = backendLog.Logger("RELD")
	amgrLog   = backendLog.Logger("AMGR")
	astrLog   = backendLog.Logger("ASTR")
	arlyLog   = backendLog.Logger("ARLY")
	cmgrLog   = backendLog.Logger("CMGR")
	peerLog   = backendLog.Logger("PEER")
	schdLog   = backendLog.Logger("SCHD")
	srvrLog   = backendLog.Logger("SRVR")
	txbrLog   = backendLog.Logger("TXBR")
)

// Initialize package-global logger variables.
func init() {
	addrmgr.UseLogger(amgrLog)
	addrstore.UseLogger(astrLog)
	addrrelay.UseLogger(arlyLog)
	connmgr.UseLogger(cmgrLog)
	peer.UseLogger(peerLog)
	sched.UseLogger(schdLog)
	unbroadcast.UseLogger(txbrLog)
}

// subsystemLoggers maps each subsystem identifier to its associated logger.
var subsystemLoggers = map[string]slog.Logger{
	"RELD": relaydLog,
	"AMGR": amgrLog,
	"ASTR": astrLog,
	"ARLY": arlyLog,
	"CMGR": cmgrLog,
	"PEER": peerLog,
	"SCHD": schdLog,
	"SRVR": srvrLog,
	"TXBR": txbrLog,
}

// initLogRotator initializes the logging rotator to write logs to logFile and
// create roll files in the same directory.  It must be called before the
// package-global log rotator variables are used.
func initLogRotator(logFile string) {
	logDir, _ := filepath.Split(logFile)
	err := os.MkdirAll(logDir, 0700)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create log directory: %v\n", err)
		os.Exit(1)
	}
	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create file rotator: %v\n", err)
		os.Exit(1)
	}

	logRotator = r
}

// setLogLevel sets the logging level for provided subsystem.  Invalid
// subsystems are ignored.  Uninitialized subsystems are dynamically created as
// needed.
func setLogLevel(subsystemID string, logLevel string) {
	// Ignore invalid subsystems.
	logger, ok := subsystemLoggers[subsystemID]
	if !ok {
		return
	}

	// Defaults to info if the log level is invalid.
	level, _ := slog.LevelFromString(logLevel)
	logger.SetLevel(level)
}

// setLogLevels sets the log level for all subsystem loggers to the passed
// level.  It also dynamically creates the subsystem loggers as needed, so it
// can be used to initialize the logging system.
func setLogLevels(logLevel string) {
	// Configure all sub-systems with the new logging level.  Dynamically
	// create loggers as needed.
	for subsystemID := range subsystemLoggers {
		setLogLevel(subsystemID, logLevel)
	}
}

// directionString is a helper function that returns a string that represents
// the direction of a connection (inbound or outbound).
func directionString(inbound bool) string {
	if inbound {
		return "inbound"
	}
	return "outbound"
}
