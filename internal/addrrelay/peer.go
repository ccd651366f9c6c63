// Copyright (c) 2024-2026 The Relaynet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package addrrelay

import (
	"time"

	"github.com/decred/dcrd/addrmgr/v2"
	"github.com/decred/dcrd/container/apbf"
)

const (
	// maxKnownAddrsPerPeer is the maximum number of address keys to track
	// per peer for duplicate suppression.
	maxKnownAddrsPerPeer = 10000

	// knownAddrsFPRate is the false positive rate for the APBF used to
	// track known addresses per peer.
	//
	// It is set to a rate of 1 per 1000 since addresses that are filtered
	// out are simply not re-sent to the peer, which is a benign outcome.
	knownAddrsFPRate = 0.001
)

// ConnKind identifies the class of a peer connection for address relay
// purposes.
type ConnKind int

const (
	// KindInbound is a connection initiated by the remote peer.
	KindInbound ConnKind = iota

	// KindOutboundFullRelay is a locally initiated connection that takes
	// part in full transaction and address relay.
	KindOutboundFullRelay

	// KindBlockRelayOnly is a locally initiated connection that only
	// relays blocks.  No address messages are ever exchanged with it in
	// either direction.
	KindBlockRelayOnly

	// KindFeeler is a short-lived locally initiated connection used to
	// test candidate addresses.  It never takes part in relay.
	KindFeeler
)

// connKindStrings maps connection kinds to human-readable strings.
var connKindStrings = map[ConnKind]string{
	KindInbound:           "inbound",
	KindOutboundFullRelay: "outbound-full-relay",
	KindBlockRelayOnly:    "block-relay-only",
	KindFeeler:            "feeler",
}

// String returns the connection kind as a human-readable string.
func (k ConnKind) String() string {
	if s, ok := connKindStrings[k]; ok {
		return s
	}
	return "unknown"
}

// IsOutbound returns whether or not the connection kind is locally
// initiated.
func (k ConnKind) IsOutbound() bool {
	return k != KindInbound
}

// MessageSink is the outbound message surface a peer connection provides to
// the relay engine.  Implementations must not block since they are invoked
// from engine operations that are expected to be short.
type MessageSink interface {
	// PushAddrs queues an address message with the provided records to the
	// remote peer.
	PushAddrs(addrs []*addrmgr.NetAddress)

	// RequestAddrs queues a discovery request to the remote peer.
	RequestAddrs()
}

// Peer houses the address relay state for a single connection.  Instances
// are created by the engine on connection establishment and discarded along
// with all queued state on disconnect, so no relay state ever survives a
// reconnect.
//
// All mutable fields are protected by the owning engine's mutex.
type Peer struct {
	id   int32
	kind ConnKind
	na   *addrmgr.NetAddress
	sink MessageSink

	// relayEligible tracks whether the peer may be used as a forwarding
	// target for addresses received from other peers.  Outbound peers
	// start out eligible while inbound peers must first earn eligibility
	// by sending or being sent something address-related.  The transition
	// is monotonic for the life of the connection.
	relayEligible bool

	// getAddrSent tracks that the single per-connection discovery request
	// has been issued so it is never repeated.
	getAddrSent bool

	// suppressFirstRelay causes the first address message received from a
	// freshly established outbound peer to not be forwarded since it is
	// presumed to be the peer's self-announcement.
	suppressFirstRelay bool

	// queue is the pending relay queue, keyed by address identity.
	queue map[string]*addrmgr.NetAddress

	// known filters addresses that were already sent to or received from
	// this peer so they are not re-relayed inside the tracking window.
	known *apbf.Filter

	// nextFlush is the randomized deadline for the next trickle flush.  It
	// is re-randomized after every flush so an observer cannot fingerprint
	// the node by its relay timing.
	nextFlush time.Time
}

// ID returns the connection identifier the peer was registered with.
func (p *Peer) ID() int32 {
	return p.id
}

// Kind returns the connection kind of the peer.
func (p *Peer) Kind() ConnKind {
	return p.kind
}

// addKnown marks the provided address key as known to the peer.
func (p *Peer) addKnown(key string) {
	p.known.Add([]byte(key))
}

// isKnown returns whether the provided address key was already sent to or
// received from the peer within the tracking window.
func (p *Peer) isKnown(key string) bool {
	return p.known.Contains([]byte(key))
}
