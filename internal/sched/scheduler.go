// Copyright (c) 2024-2026 The Relaynet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package sched drives the periodic maintenance work of the relay daemon.
//
// The scheduler itself owns no policy.  It multiplexes injected tickers onto
// injected callbacks so the cadence can be forced in tests without any real
// time passing.
package sched

import (
	"context"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"
)

// Config houses the configuration options related to the periodic scheduler.
type Config struct {
	// FlushTicker paces the trickle delivery of queued address relay
	// traffic.
	FlushTicker ticker.Ticker

	// SweepTicker paces the re-announcement of unconfirmed local
	// transactions.
	SweepTicker ticker.Ticker

	// OnFlush is invoked with the current time on every flush tick.
	OnFlush func(time.Time)

	// OnSweep is invoked with the current time on every sweep tick.
	OnSweep func(time.Time)

	// Clock provides the time passed to the callbacks.  It defaults to the
	// system clock when unset and is only overridden by tests.
	Clock clock.Clock
}

// Scheduler dispatches periodic flush and sweep callbacks until its context
// is canceled.
type Scheduler struct {
	cfg Config
}

// New returns a periodic scheduler with the provided configuration.
func New(cfg *Config) *Scheduler {
	s := &Scheduler{cfg: *cfg}
	if s.cfg.Clock == nil {
		s.cfg.Clock = clock.NewDefaultClock()
	}
	return s
}

// Run dispatches ticks to the configured callbacks until the provided context
// is canceled.  It must be run as a goroutine.
func (s *Scheduler) Run(ctx context.Context) {
	s.cfg.FlushTicker.Resume()
	s.cfg.SweepTicker.Resume()
	defer s.cfg.FlushTicker.Stop()
	defer s.cfg.SweepTicker.Stop()

	log.Tracef("Periodic scheduler started")
	for {
		select {
		case <-s.cfg.FlushTicker.Ticks():
			s.cfg.OnFlush(s.cfg.Clock.Now())

		case <-s.cfg.SweepTicker.Ticks():
			s.cfg.OnSweep(s.cfg.Clock.Now())

		case <-ctx.Done():
			log.Tracef("Periodic scheduler done")
			return
		}
	}
}
