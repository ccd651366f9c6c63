// Copyright (c) 2017-2026 The Relaynet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sampleconfig

import (
	_ "embed"
)

// sampleRelaydConf is a string containing the commented example config for
// relayd.
//
//go:embed sample-relayd.conf
var sampleRelaydConf string

// Relayd returns a string containing the commented example config for relayd.
func Relayd() string {
	return sampleRelaydConf
}
