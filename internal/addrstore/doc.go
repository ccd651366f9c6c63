// Copyright (c) 2024-2026 The Relaynet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package addrstore provides a concurrent safe facade over the address manager
that the gossip code consumes.

The facade intentionally exposes only the three operations the relay engine
needs: insertion with duplicate detection, bounded random sampling for
discovery responses, and recording connection successes.  The bucketing,
persistence, and chance-based selection internals all belong to the backing
address manager and are not surfaced here.
*/
package addrstore
