// Copyright (c) 2024 The Relaynet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"reflect"
	"testing"
)

// TestNormalizeAddresses ensures that peer addresses are normalized with the
// default port when needed and that duplicates are removed.
func TestNormalizeAddresses(t *testing.T) {
	tests := []struct {
		name        string
		addrs       []string
		defaultPort string
		want        []string
	}{{
		name:        "missing ports",
		addrs:       []string{"127.0.0.1", "example.com"},
		defaultPort: "9108",
		want:        []string{"127.0.0.1:9108", "example.com:9108"},
	}, {
		name:        "existing ports untouched",
		addrs:       []string{"127.0.0.1:19108"},
		defaultPort: "9108",
		want:        []string{"127.0.0.1:19108"},
	}, {
		name:        "duplicates after normalization",
		addrs:       []string{"127.0.0.1", "127.0.0.1:9108"},
		defaultPort: "9108",
		want:        []string{"127.0.0.1:9108"},
	}, {
		name:        "ipv6 host",
		addrs:       []string{"::1"},
		defaultPort: "9108",
		want:        []string{"[::1]:9108"},
	}}

	for _, test := range tests {
		result := normalizeAddresses(test.addrs, test.defaultPort)
		if !reflect.DeepEqual(result, test.want) {
			t.Errorf("%q: unexpected result - got %v, want %v", test.name,
				result, test.want)
		}
	}
}

// TestValidLogLevel ensures only the supported log levels are accepted.
func TestValidLogLevel(t *testing.T) {
	for _, level := range []string{"trace", "debug", "info", "warn", "error",
		"critical"} {

		if !validLogLevel(level) {
			t.Errorf("level %q should be valid", level)
		}
	}
	for _, level := range []string{"", "warning", "INFO", "fatal"} {
		if validLogLevel(level) {
			t.Errorf("level %q should not be valid", level)
		}
	}
}

// TestParseAndSetDebugLevels ensures the debug level specification syntax is
// validated as intended.
func TestParseAndSetDebugLevels(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		wantErr bool
	}{{
		name:  "single level for all subsystems",
		level: "debug",
	}, {
		name:  "individual subsystem",
		level: "ARLY=trace",
	}, {
		name:  "multiple subsystems",
		level: "ARLY=trace,SRVR=debug",
	}, {
		name:    "invalid level",
		level:   "verbose",
		wantErr: true,
	}, {
		name:    "unknown subsystem",
		level:   "BOGUS=debug",
		wantErr: true,
	}, {
		name:    "malformed pair",
		level:   "ARLY=trace,SRVR",
		wantErr: true,
	}, {
		name:    "invalid level for subsystem",
		level:   "ARLY=verbose",
		wantErr: true,
	}}

	defer setLogLevels(defaultLogLevel)
	for _, test := range tests {
		err := parseAndSetDebugLevels(test.level)
		if test.wantErr != (err != nil) {
			t.Errorf("%q: unexpected error status - got %v", test.name, err)
		}
	}
}
