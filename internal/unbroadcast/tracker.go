// Copyright (c) 2024-2026 The Relaynet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package unbroadcast tracks locally originated transactions whose initial
// announcement has not yet provably reached the network and schedules them
// for periodic re-announcement.
//
// A transaction is tracked from the moment it is accepted into the local pool
// until either some peer requests its data, which proves the announcement
// propagated, or the pool removes it.  Until then the transaction is included
// in every sweep so the caller can announce it to the current peer set again.
package unbroadcast

import (
	"sync"
	"time"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/clock"
)

// Origin identifies how a tracked transaction entered the local pool.
type Origin byte

const (
	// OriginWallet indicates the transaction was submitted by a wallet
	// attached to this node.
	OriginWallet Origin = iota

	// OriginRPC indicates the transaction was submitted over the local RPC
	// interface.
	OriginRPC
)

// String returns the Origin as a human-readable string.
func (o Origin) String() string {
	switch o {
	case OriginWallet:
		return "wallet"
	case OriginRPC:
		return "rpc"
	}
	return "unknown"
}

// RemovalReason identifies why a transaction stopped being tracked.
type RemovalReason byte

const (
	// ReasonRequested indicates a peer requested the transaction data,
	// which proves its announcement reached at least one other node.
	ReasonRequested RemovalReason = iota

	// ReasonPoolRemoved indicates the local pool no longer contains the
	// transaction, whether due to confirmation, eviction, or conflict.
	ReasonPoolRemoved
)

// String returns the RemovalReason as a human-readable string.
func (r RemovalReason) String() string {
	switch r {
	case ReasonRequested:
		return "requested by peer"
	case ReasonPoolRemoved:
		return "removed from pool"
	}
	return "unknown"
}

// entry houses the tracking state for a single transaction.
type entry struct {
	origin        Origin
	added         time.Time
	lastAnnounced time.Time
	announcements int
}

// Tracker tracks locally originated transactions pending proof of
// propagation.  It is safe for concurrent access.
type Tracker struct {
	clock clock.Clock

	mtx     sync.Mutex
	entries map[chainhash.Hash]*entry
}

// Config houses the configuration options related to the unbroadcast
// tracker.
type Config struct {
	// Clock provides the time source for announcement stamps.  It defaults
	// to the system clock when unset and is only overridden by tests.
	Clock clock.Clock
}

// New returns an unbroadcast tracker with the provided configuration.
func New(cfg *Config) *Tracker {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.NewDefaultClock()
	}
	return &Tracker{
		clock:   clk,
		entries: make(map[chainhash.Hash]*entry),
	}
}

// Add begins tracking the provided transaction.  Adding a transaction that is
// already tracked has no effect, so the original announcement timestamps are
// retained.
func (t *Tracker) Add(txHash *chainhash.Hash, origin Origin) {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	if _, exists := t.entries[*txHash]; exists {
		return
	}
	t.entries[*txHash] = &entry{
		origin: origin,
		added:  t.clock.Now(),
	}
	log.Debugf("Tracking %s transaction %v for re-announcement", origin,
		txHash)
}

// Remove stops tracking the provided transaction and returns whether or not
// it was tracked.  Removing an untracked transaction has no effect.
func (t *Tracker) Remove(txHash *chainhash.Hash, reason RemovalReason) bool {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	ent, exists := t.entries[*txHash]
	if !exists {
		return false
	}
	delete(t.entries, *txHash)
	log.Debugf("Stopped tracking transaction %v after %d "+
		"re-announcements (%s)", txHash, ent.announcements, reason)
	return true
}

// Contains returns whether or not the provided transaction is currently
// tracked.
func (t *Tracker) Contains(txHash *chainhash.Hash) bool {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	_, exists := t.entries[*txHash]
	return exists
}

// Count returns the number of currently tracked transactions.
func (t *Tracker) Count() int {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	return len(t.entries)
}

// Sweep returns the hashes of every tracked transaction so the caller can
// announce them to the current peer set and stamps each one with the
// provided time as its latest announcement.
func (t *Tracker) Sweep(now time.Time) []chainhash.Hash {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	if len(t.entries) == 0 {
		return nil
	}
	hashes := make([]chainhash.Hash, 0, len(t.entries))
	for txHash, ent := range t.entries {
		hashes = append(hashes, txHash)
		ent.lastAnnounced = now
		ent.announcements++
	}
	log.Debugf("Re-announcing %d unconfirmed local transactions",
		len(hashes))
	return hashes
}
