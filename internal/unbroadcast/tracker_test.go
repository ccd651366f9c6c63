// Copyright (c) 2024-2026 The Relaynet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package unbroadcast

import (
	"testing"
	"time"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/clock"
)

var testStartTime = time.Unix(1735689600, 0) // 2025-01-01 00:00:00 UTC

// testHash returns a deterministic transaction hash for the provided tag.
func testHash(tag byte) *chainhash.Hash {
	var h chainhash.Hash
	h[0] = tag
	return &h
}

// TestAddRemove ensures the basic tracking lifecycle, including idempotent
// adds and removes.
func TestAddRemove(t *testing.T) {
	tracker := New(&Config{Clock: clock.NewTestClock(testStartTime)})

	txA, txB := testHash(1), testHash(2)
	tracker.Add(txA, OriginWallet)
	tracker.Add(txB, OriginRPC)
	tracker.Add(txA, OriginWallet)
	if got := tracker.Count(); got != 2 {
		t.Fatalf("tracking %d transactions, want 2", got)
	}
	if !tracker.Contains(txA) || !tracker.Contains(txB) {
		t.Fatal("added transaction is not tracked")
	}

	if !tracker.Remove(txA, ReasonRequested) {
		t.Fatal("removing a tracked transaction reported untracked")
	}
	if tracker.Remove(txA, ReasonRequested) {
		t.Fatal("removing an untracked transaction reported tracked")
	}
	if tracker.Contains(txA) {
		t.Fatal("removed transaction is still tracked")
	}
	if got := tracker.Count(); got != 1 {
		t.Fatalf("tracking %d transactions, want 1", got)
	}
}

// TestSweep ensures sweeps return every tracked transaction until it is
// removed and that re-adding a swept transaction does not reset its state.
func TestSweep(t *testing.T) {
	clk := clock.NewTestClock(testStartTime)
	tracker := New(&Config{Clock: clk})

	if got := tracker.Sweep(clk.Now()); got != nil {
		t.Fatalf("sweep of empty tracker returned %v", got)
	}

	txA, txB := testHash(1), testHash(2)
	tracker.Add(txA, OriginWallet)
	tracker.Add(txB, OriginWallet)

	sweepTime := testStartTime.Add(15 * time.Minute)
	clk.SetTime(sweepTime)
	hashes := tracker.Sweep(clk.Now())
	if len(hashes) != 2 {
		t.Fatalf("sweep returned %d hashes, want 2", len(hashes))
	}
	seen := make(map[chainhash.Hash]bool)
	for _, h := range hashes {
		seen[h] = true
	}
	if !seen[*txA] || !seen[*txB] {
		t.Fatalf("sweep returned wrong hashes: %v", hashes)
	}

	// A transaction remains in subsequent sweeps until removed.
	tracker.Remove(txB, ReasonPoolRemoved)
	clk.SetTime(sweepTime.Add(15 * time.Minute))
	hashes = tracker.Sweep(clk.Now())
	if len(hashes) != 1 || hashes[0] != *txA {
		t.Fatalf("second sweep returned %v, want only %v", hashes, txA)
	}

	// Re-adding a swept transaction must not create a second entry.
	tracker.Add(txA, OriginRPC)
	if got := tracker.Count(); got != 1 {
		t.Fatalf("tracking %d transactions, want 1", got)
	}
	if got := tracker.entries[*txA].announcements; got != 2 {
		t.Fatalf("announcement count is %d, want 2", got)
	}
	if got := tracker.entries[*txA].origin; got != OriginWallet {
		t.Fatalf("origin is %v, want %v", got, OriginWallet)
	}

	// A freshly added transaction is included in the very next sweep since
	// the cadence comes from the sweep timer, not a per-entry age.
	txC := testHash(3)
	tracker.Add(txC, OriginWallet)
	hashes = tracker.Sweep(clk.Now())
	if len(hashes) != 2 {
		t.Fatalf("third sweep returned %d hashes, want 2", len(hashes))
	}
}
