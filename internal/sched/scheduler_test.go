// Copyright (c) 2024-2026 The Relaynet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sched

import (
	"context"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"
)

var testStartTime = time.Unix(1735689600, 0) // 2025-01-01 00:00:00 UTC

// TestDispatch ensures forced ticks reach the matching callback with the
// clock time and that cancellation terminates the run loop.
func TestDispatch(t *testing.T) {
	flushTicker := ticker.NewForce(time.Hour)
	sweepTicker := ticker.NewForce(time.Hour)
	clk := clock.NewTestClock(testStartTime)

	flushes := make(chan time.Time, 1)
	sweeps := make(chan time.Time, 1)
	s := New(&Config{
		FlushTicker: flushTicker,
		SweepTicker: sweepTicker,
		OnFlush:     func(now time.Time) { flushes <- now },
		OnSweep:     func(now time.Time) { sweeps <- now },
		Clock:       clk,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	flushTicker.Force <- testStartTime
	select {
	case now := <-flushes:
		if !now.Equal(testStartTime) {
			t.Fatalf("flush callback saw %v, want %v", now, testStartTime)
		}
	case <-time.After(time.Second):
		t.Fatal("flush tick was not dispatched")
	}
	select {
	case <-sweeps:
		t.Fatal("flush tick reached the sweep callback")
	default:
	}

	sweepTime := testStartTime.Add(10 * time.Minute)
	clk.SetTime(sweepTime)
	sweepTicker.Force <- sweepTime
	select {
	case now := <-sweeps:
		if !now.Equal(sweepTime) {
			t.Fatalf("sweep callback saw %v, want %v", now, sweepTime)
		}
	case <-time.After(time.Second):
		t.Fatal("sweep tick was not dispatched")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("run loop did not terminate on cancellation")
	}
}
