// Copyright (c) 2024-2026 The Relaynet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package addrrelay

import (
	"bytes"
	"encoding/binary"
	"sort"
	"sync"
	"time"

	"github.com/decred/dcrd/addrmgr/v2"
	"github.com/decred/dcrd/container/apbf"
	"github.com/decred/dcrd/crypto/blake256"
	"github.com/decred/dcrd/crypto/rand"
	"github.com/decred/dcrd/wire"
	"github.com/lightningnetwork/lnd/clock"
)

const (
	// RelayThreshold is the maximum number of records an address message
	// may carry and still have its contents forwarded to other peers.
	// Larger messages are presumed to be responses to discovery requests
	// or flooding attempts and are only offered to the local store.
	RelayThreshold = 10

	// BranchFactor is the number of distinct peers each freshly admitted
	// address record is forwarded to.
	BranchFactor = 2

	// DefaultFlushInterval is the default base interval between trickle
	// flushes of a peer's pending relay queue.  The actual per-peer
	// deadline is uniformly randomized around this value.
	DefaultFlushInterval = 30 * time.Second

	// DefaultGetAddrCacheInterval is the default amount of time the
	// response to a discovery request is cached before a new random sample
	// is drawn.
	DefaultGetAddrCacheInterval = 24 * time.Hour

	// maxQueuedAddrsPerPeer is the maximum number of records allowed in a
	// single peer's pending relay queue.  Additional records are dropped
	// until the next flush frees space.
	maxQueuedAddrsPerPeer = wire.MaxAddrPerMsg

	// freshRecordAge is the maximum age of a record's last-seen timestamp
	// for it to be considered fresh enough to forward even when the store
	// already knew about it.
	freshRecordAge = 10 * time.Minute

	// selectionSecretSize is the size of the process-local secret that
	// keys the relay target selection.
	selectionSecretSize = 32
)

// Store is the address database surface consumed by the relay engine.
type Store interface {
	// Insert adds the provided record to the store with the given source
	// address and returns whether or not the record was new.  An error
	// indicates a structurally invalid record, which is a defect in the
	// calling code.
	Insert(record, src *addrmgr.NetAddress) (bool, error)

	// Sample returns a bounded random subset of the known good addresses.
	Sample(maxCount int) []*addrmgr.NetAddress

	// NeedMore returns whether or not the store could use more addresses.
	NeedMore() bool
}

// Config houses the configuration options related to the address relay
// engine.
type Config struct {
	// Store is the address database facade records are admitted into and
	// discovery responses are sampled from.
	Store Store

	// Clock provides the time source for flush deadlines and response
	// caching.  It defaults to the system clock when unset and is only
	// overridden by tests.
	Clock clock.Clock

	// FlushInterval is the base interval between trickle flushes of a
	// peer's pending relay queue.  It defaults to DefaultFlushInterval.
	FlushInterval time.Duration

	// GetAddrCacheInterval is the amount of time a discovery response is
	// cached before a new sample is drawn.  It defaults to
	// DefaultGetAddrCacheInterval.
	GetAddrCacheInterval time.Duration

	// SelectionSecret optionally overrides the process-local secret that
	// keys relay target selection.  It is only set by tests that need
	// deterministic selection.  A new random secret is generated when it
	// is unset.
	SelectionSecret []byte
}

// Engine implements the address relay policy.  It owns the per-connection
// relay state of every registered peer and is safe for concurrent access.
type Engine struct {
	store                Store
	clock                clock.Clock
	flushInterval        time.Duration
	getAddrCacheInterval time.Duration
	secret               [selectionSecretSize]byte

	mtx   sync.Mutex
	peers map[int32]*Peer

	// getAddrResponse and getAddrResponseTime house the process-wide
	// discovery response cache.  The sampled response only changes once
	// the cache interval elapses, which prevents a peer from re-querying
	// to defeat the randomized sampling and reconstruct the store.
	getAddrResponse     []*addrmgr.NetAddress
	getAddrResponseTime time.Time
}

// New returns an address relay engine with the provided configuration.
func New(cfg *Config) *Engine {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.NewDefaultClock()
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = DefaultFlushInterval
	}
	cacheInterval := cfg.GetAddrCacheInterval
	if cacheInterval <= 0 {
		cacheInterval = DefaultGetAddrCacheInterval
	}
	e := &Engine{
		store:                cfg.Store,
		clock:                clk,
		flushInterval:        flushInterval,
		getAddrCacheInterval: cacheInterval,
		peers:                make(map[int32]*Peer),
	}
	if len(cfg.SelectionSecret) > 0 {
		copy(e.secret[:], cfg.SelectionSecret)
	} else {
		rand.Read(e.secret[:])
	}
	return e
}

// jitteredDeadline returns the next flush deadline for a peer, uniformly
// randomized in [interval/2, 3*interval/2) from the provided time.
func (e *Engine) jitteredDeadline(now time.Time) time.Time {
	return now.Add(e.flushInterval/2 + rand.Duration(e.flushInterval))
}

// PeerConnected registers a new connection with the relay engine and returns
// the relay state handle the caller passes back in for subsequent
// operations.
//
// Outbound full relay peers are sent their single per-connection discovery
// request here.  All outbound kinds have their first received address
// message suppressed from forwarding since it is presumed to be a
// self-announcement.  Block relay only and feeler peers are registered but
// never take part in address relay in either direction.
func (e *Engine) PeerConnected(id int32, kind ConnKind, na *addrmgr.NetAddress, sink MessageSink) *Peer {
	p := &Peer{
		id:                 id,
		kind:               kind,
		na:                 na,
		sink:               sink,
		relayEligible:      kind.IsOutbound(),
		getAddrSent:        kind == KindOutboundFullRelay,
		suppressFirstRelay: kind.IsOutbound(),
		queue:              make(map[string]*addrmgr.NetAddress),
		known:              apbf.NewFilter(maxKnownAddrsPerPeer, knownAddrsFPRate),
	}

	e.mtx.Lock()
	p.nextFlush = e.jitteredDeadline(e.clock.Now())
	e.peers[id] = p
	e.mtx.Unlock()

	if p.getAddrSent {
		sink.RequestAddrs()
		log.Debugf("Requested addresses from %s peer %d", kind, id)
	}
	return p
}

// PeerDisconnected removes the connection's relay state from the engine.
// The pending relay queue is discarded and any concurrent flush for the peer
// becomes a no-op.
func (e *Engine) PeerDisconnected(id int32) {
	e.mtx.Lock()
	delete(e.peers, id)
	e.mtx.Unlock()
}

// forwardable returns whether or not a record qualifies for forwarding to
// other peers.  Records that fail these checks are still offered to the
// local store for connection-making purposes.
func forwardable(na *addrmgr.NetAddress) bool {
	if na.Services&wire.SFNodeNetwork != wire.SFNodeNetwork {
		return false
	}
	if na.Port == 0 {
		return false
	}
	return na.IsRoutable()
}

// selectTargets returns up to BranchFactor relay-eligible peers for the
// provided record key, excluding the sender.  Selection is pseudorandom but
// deterministic for a given engine secret so that distinct nodes make
// independent choices for the same record, bounding duplicate traffic, while
// remaining side-effect free and testable with a fixed secret.
//
// This function MUST be called with the engine mutex held.
func (e *Engine) selectTargets(key string, exclude *Peer) []*Peer {
	type rankedPeer struct {
		digest [blake256.Size]byte
		peer   *Peer
	}
	candidates := make([]rankedPeer, 0, len(e.peers))
	var idBytes [4]byte
	for _, p := range e.peers {
		if p == exclude || !p.relayEligible {
			continue
		}
		// Block relay only peers never receive address traffic and
		// feelers are too short-lived to be useful targets.
		if p.kind == KindBlockRelayOnly || p.kind == KindFeeler {
			continue
		}

		h := blake256.New()
		h.Write(e.secret[:])
		h.Write([]byte(key))
		binary.LittleEndian.PutUint32(idBytes[:], uint32(p.id))
		h.Write(idBytes[:])
		var ranked rankedPeer
		h.Sum(ranked.digest[:0])
		ranked.peer = p
		candidates = append(candidates, ranked)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return bytes.Compare(candidates[i].digest[:], candidates[j].digest[:]) < 0
	})
	if len(candidates) > BranchFactor {
		candidates = candidates[:BranchFactor]
	}
	targets := make([]*Peer, 0, len(candidates))
	for _, c := range candidates {
		targets = append(targets, c.peer)
	}
	return targets
}

// enqueue adds the record to the target peer's pending relay queue unless it
// is already queued, already known to the peer, or the queue is full.
//
// This function MUST be called with the engine mutex held.
func (e *Engine) enqueue(target *Peer, key string, na *addrmgr.NetAddress) {
	if target.isKnown(key) {
		return
	}
	if _, exists := target.queue[key]; exists {
		return
	}
	if len(target.queue) >= maxQueuedAddrsPerPeer {
		log.Tracef("Relay queue for peer %d is full, dropping %s",
			target.id, key)
		return
	}
	target.queue[key] = na
}

// Admit processes an address message received from the provided peer.  Every
// record is offered to the local store with the sending peer as its source.
// Fresh records are then scheduled for forwarding to exactly BranchFactor
// other relay-eligible peers each, subject to the oversized-message and
// self-announcement suppression policies.
//
// The src address identifies the sending peer itself and is recorded as the
// source of every admitted record regardless of what origin the records
// claim.
//
// The returned error is nil for all policy outcomes.  A non-nil error
// indicates a store-level defect and the message should be treated as
// unprocessed.
func (e *Engine) Admit(p *Peer, records []*addrmgr.NetAddress, src *addrmgr.NetAddress) error {
	now := e.clock.Now()

	// Insert everything into the store before any relay decision since
	// even records excluded from forwarding are useful for making future
	// connections.
	var numNew int
	fresh := make([]*addrmgr.NetAddress, 0, len(records))
	for _, na := range records {
		isNew, err := e.store.Insert(na, src)
		if err != nil {
			return err
		}
		if isNew {
			numNew++
		}
		if forwardable(na) && (isNew || now.Sub(na.Timestamp) < freshRecordAge) {
			fresh = append(fresh, na)
		}
	}
	log.Debugf("Received %d addresses from peer %d (%d new)", len(records),
		p.id, numNew)

	e.mtx.Lock()
	defer e.mtx.Unlock()

	// The peer has demonstrated gossip participation, so it becomes a
	// valid forwarding target for traffic from other peers no matter what
	// the rest of the message does or does not trigger below.
	p.relayEligible = true

	// Records received from the peer are known to it, so they are never
	// echoed back.
	for _, na := range records {
		p.addKnown(na.Key())
	}

	// Oversized messages are presumed to be discovery responses or
	// flooding attempts.  Their contents were stored above but none of
	// them are forwarded onward.
	if len(records) > RelayThreshold {
		log.Debugf("Ignoring oversized address message from peer %d "+
			"(%d entries)", p.id, len(records))
		return nil
	}

	// Do not forward an outbound peer's first address message since it is
	// presumed to be its self-announcement.  Only the current message is
	// affected.
	if p.suppressFirstRelay {
		p.suppressFirstRelay = false
		return nil
	}

	for _, na := range fresh {
		key := na.Key()
		for _, target := range e.selectTargets(key, p) {
			e.enqueue(target, key, na)
		}
	}
	return nil
}

// MarkParticipating records that the provided peer has engaged in
// address-related traffic and therefore becomes a valid forwarding target.
// It is invoked for address-related messages that carry no records of their
// own, such as a bare discovery request.
func (e *Engine) MarkParticipating(p *Peer) {
	e.mtx.Lock()
	p.relayEligible = true
	e.mtx.Unlock()
}

// FlushDue drains the pending relay queue of every peer whose randomized
// flush deadline has passed as of the provided time and queues the drained
// records to the respective connections as a single address message each.
// Deadlines that have passed are re-randomized whether or not anything was
// sent.
func (e *Engine) FlushDue(now time.Time) {
	type pendingSend struct {
		sink  MessageSink
		batch []*addrmgr.NetAddress
	}
	var sends []pendingSend

	e.mtx.Lock()
	for _, p := range e.peers {
		if p.nextFlush.After(now) {
			continue
		}
		p.nextFlush = e.jitteredDeadline(now)
		if len(p.queue) == 0 {
			continue
		}

		batch := make([]*addrmgr.NetAddress, 0, len(p.queue))
		for key, na := range p.queue {
			if len(batch) == wire.MaxAddrPerMsg {
				break
			}
			batch = append(batch, na)
			p.addKnown(key)
			delete(p.queue, key)
		}
		sends = append(sends, pendingSend{sink: p.sink, batch: batch})
	}
	e.mtx.Unlock()

	// Queue the messages outside the engine lock since the sinks feed the
	// per-connection output machinery.
	for _, send := range sends {
		send.sink.PushAddrs(send.batch)
	}
}

// HandleGetAddr processes a discovery request from the provided peer.
//
// Requests from outbound peers are silently ignored.  An outbound connection
// was chosen locally, so answering would only aid topology harvesting by a
// peer this node deliberately selected, with no discovery benefit.  This is
// routine traffic from differently configured nodes, not an error.
//
// Accepted requests are answered immediately with the cached discovery
// sample, bypassing the trickle queue.  A new bounded random sample is only
// drawn once the cache interval has elapsed.
func (e *Engine) HandleGetAddr(p *Peer) {
	if p.kind != KindInbound {
		log.Tracef("Ignoring getaddr from %s peer %d", p.kind, p.id)
		return
	}

	e.mtx.Lock()

	// A discovery request is address-related participation.
	p.relayEligible = true

	now := e.clock.Now()
	if e.getAddrResponseTime.IsZero() ||
		now.Sub(e.getAddrResponseTime) >= e.getAddrCacheInterval {

		e.getAddrResponse = e.store.Sample(wire.MaxAddrPerMsg)
		e.getAddrResponseTime = now
		log.Debugf("Refreshed getaddr response cache (%d entries)",
			len(e.getAddrResponse))
	}
	response := e.getAddrResponse
	for _, na := range response {
		p.addKnown(na.Key())
	}
	sink := p.sink
	e.mtx.Unlock()

	if len(response) == 0 {
		return
	}
	sink.PushAddrs(response)
}

// RelayEligible returns whether or not the provided peer is currently a
// valid forwarding target.
func (e *Engine) RelayEligible(p *Peer) bool {
	e.mtx.Lock()
	eligible := p.relayEligible
	e.mtx.Unlock()
	return eligible
}
