// Copyright (c) 2024-2026 The Relaynet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package addrstore

import (
	"sync"
	"time"

	"github.com/decred/dcrd/addrmgr/v2"
	"github.com/decred/dcrd/container/lru"
	"github.com/decred/dcrd/wire"
	"github.com/lightningnetwork/lnd/clock"
)

const (
	// recentKeyLimit is the maximum number of address keys tracked in the
	// recent insertion window used to report whether an insert was new.
	recentKeyLimit = 50000

	// recentKeyTTL is how long an address key remains in the recent
	// insertion window.  Re-inserting the same record inside the window is
	// deduplicated and reports the record as already known.
	recentKeyTTL = 20 * time.Minute

	// maxFutureDrift is the maximum amount a record timestamp is allowed to
	// be in the future before it is clamped.
	maxFutureDrift = 10 * time.Minute

	// clampedTimestampAge is how far in the past clamped timestamps are set
	// so the associated addresses are among the first to be expired when
	// space is needed.
	clampedTimestampAge = 24 * time.Hour * 5
)

// Config houses the configuration options related to the address store
// facade.
type Config struct {
	// AddrManager is the backing address manager that owns the bucketing,
	// persistence, and selection internals.
	AddrManager *addrmgr.AddrManager

	// Clock provides the time source used to clamp record timestamps.  It
	// defaults to the system clock when unset and is only overridden by
	// tests.
	Clock clock.Clock
}

// Store provides the narrow address database surface consumed by the relay
// engine.  It is safe for concurrent access and none of its operations block
// on I/O.
type Store struct {
	mtx    sync.Mutex
	amgr   *addrmgr.AddrManager
	clock  clock.Clock
	recent *lru.Map[string, struct{}]
}

// New returns an address store facade backed by the provided address manager.
func New(cfg *Config) *Store {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.NewDefaultClock()
	}
	return &Store{
		amgr:   cfg.AddrManager,
		clock:  clk,
		recent: lru.NewMapWithDefaultTTL[string, struct{}](recentKeyLimit, recentKeyTTL),
	}
}

// Insert adds the provided address record to the backing address manager with
// the given source address and returns whether or not the record was new to
// the store.  Duplicate insertion inside the recent window is a cheap no-op
// that reports false.
//
// Timestamps more than a few minutes in the future are clamped to several
// days in the past so such addresses are among the first to be evicted.
//
// An error is only returned for records that are structurally invalid, which
// indicates a defect in the calling code since records are validated during
// wire parsing well before they reach the store.
func (s *Store) Insert(record, src *addrmgr.NetAddress) (bool, error) {
	if record == nil {
		return false, storeError(ErrMissingRecord, "insert requires a record")
	}
	if src == nil {
		return false, storeError(ErrMissingSource, "insert requires a source address")
	}
	if len(record.IP) == 0 {
		return false, storeError(ErrMalformedRecord, "record is missing an IP")
	}

	// Clamp timestamps that are too far in the future.  The record is cloned
	// first since the caller may still hold it in a relay queue.
	now := s.clock.Now()
	if record.Timestamp.After(now.Add(maxFutureDrift)) {
		record = record.Clone()
		record.Timestamp = now.Add(-clampedTimestampAge)
	}

	key := record.Key()
	s.mtx.Lock()
	isNew := !s.recent.Exists(key)
	s.recent.Put(key, struct{}{})
	s.mtx.Unlock()

	// The address manager handles details such as preventing duplicate
	// addresses, enforcing the maximum number of addresses, and last seen
	// updates.
	s.amgr.AddAddresses([]*addrmgr.NetAddress{record}, src)

	if isNew {
		log.Tracef("New address %s from source %s", key, src)
	}
	return isNew, nil
}

// Sample returns a random subset of the known good addresses bounded by the
// provided maximum count.  The fraction of the total store that may be
// exposed in one call is bounded by the backing address manager so repeated
// sampling cannot enumerate the full address database.
func (s *Store) Sample(maxCount int) []*addrmgr.NetAddress {
	addrs := s.amgr.AddressCache()
	if maxCount > 0 && len(addrs) > maxCount {
		addrs = addrs[:maxCount]
	}
	return addrs
}

// RecordSuccess marks the provided address as having recently succeeded,
// which promotes it within the backing address manager.
func (s *Store) RecordSuccess(record *addrmgr.NetAddress) {
	if err := s.amgr.Good(record); err != nil {
		log.Debugf("Marking address %s as good failed: %v", record, err)
	}
}

// SetServices updates the advertised services of the provided address.
func (s *Store) SetServices(record *addrmgr.NetAddress, services wire.ServiceFlag) {
	if err := s.amgr.SetServices(record, services); err != nil {
		log.Debugf("Setting services for address %s failed: %v", record, err)
	}
}

// NeedMore returns whether or not the store could use more addresses, which
// is used to decide whether to request addresses from newly connected peers.
func (s *Store) NeedMore() bool {
	return s.amgr.NeedMoreAddresses()
}
