// Copyright (c) 2024-2026 The Relaynet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package addrrelay implements the address gossip engine.

The engine decides which incoming address records to keep, to whom to forward
them, and how to answer discovery requests, while bounding the cost of the
gossip and resisting information harvesting by malicious peers.  The main
defenses are:

  - Records fan out to a small fixed number of peers chosen by a keyed hash
    so the same record is not independently forwarded by every node.
  - Queued records trickle out on randomized per peer deadlines rather than
    immediately, which prevents timing-based fingerprinting.
  - Inbound peers receive no relayed addresses until they demonstrate gossip
    participation by sending something address-related themselves.
  - Discovery requests are only answered for inbound peers and responses are
    cached so repeated requests cannot defeat the randomized sampling to
    enumerate the address database.

All relay state is owned by the connection that produced it and is discarded
on disconnect.
*/
package addrrelay
