// Copyright (c) 2024-2026 The Relaynet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package addrrelay

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/decred/dcrd/addrmgr/v2"
	"github.com/decred/dcrd/wire"
	"github.com/lightningnetwork/lnd/clock"
)

// recordingSink implements MessageSink and records everything queued to it.
type recordingSink struct {
	pushed       [][]*addrmgr.NetAddress
	addrRequests int
}

func (s *recordingSink) PushAddrs(addrs []*addrmgr.NetAddress) {
	s.pushed = append(s.pushed, addrs)
}

func (s *recordingSink) RequestAddrs() {
	s.addrRequests++
}

// pushedKeys returns the set of address keys across every message queued to
// the sink.
func (s *recordingSink) pushedKeys() map[string]int {
	keys := make(map[string]int)
	for _, batch := range s.pushed {
		for _, na := range batch {
			keys[na.Key()]++
		}
	}
	return keys
}

// stubStore implements Store with configurable behavior for tests.
type stubStore struct {
	inserts     int
	isNew       bool
	sampleCalls int
	sample      func(call int) []*addrmgr.NetAddress
}

func (s *stubStore) Insert(record, src *addrmgr.NetAddress) (bool, error) {
	s.inserts++
	return s.isNew, nil
}

func (s *stubStore) Sample(maxCount int) []*addrmgr.NetAddress {
	s.sampleCalls++
	if s.sample == nil {
		return nil
	}
	return s.sample(s.sampleCalls)
}

func (s *stubStore) NeedMore() bool { return true }

var testStartTime = time.Unix(1735689600, 0) // 2025-01-01 00:00:00 UTC

// newTestEngine returns an engine with a fixed selection secret, a test
// clock pinned to testStartTime, and the provided store.
func newTestEngine(store Store) (*Engine, *clock.TestClock) {
	clk := clock.NewTestClock(testStartTime)
	secret := make([]byte, selectionSecretSize)
	for i := range secret {
		secret[i] = byte(i)
	}
	e := New(&Config{
		Store:           store,
		Clock:           clk,
		SelectionSecret: secret,
	})
	return e, clk
}

// testAddr returns a routable full-node address record with a current
// timestamp.
func testAddr(octet byte) *addrmgr.NetAddress {
	ip := net.IPv4(198, 51, 100, octet)
	na := addrmgr.NewNetAddressIPPort(ip, 9108, wire.SFNodeNetwork)
	na.Timestamp = testStartTime
	return na
}

// testAddrs returns n distinct routable address records.
func testAddrs(n int) []*addrmgr.NetAddress {
	addrs := make([]*addrmgr.NetAddress, n)
	for i := range addrs {
		addrs[i] = testAddr(byte(i + 1))
	}
	return addrs
}

// flushAll forces every registered peer's flush deadline to be due and
// drains the queues.
func flushAll(e *Engine, clk *clock.TestClock) {
	e.FlushDue(clk.Now().Add(10 * e.flushInterval))
}

// TestAdmitBranchingFactor ensures each record of a small address message is
// forwarded to exactly BranchFactor eligible peers, never to the sender,
// never to ineligible inbound peers, and never to block relay only peers.
func TestAdmitBranchingFactor(t *testing.T) {
	store := &stubStore{isNew: true}
	e, clk := newTestEngine(store)

	senderSink := &recordingSink{}
	sender := e.PeerConnected(1, KindInbound, testAddr(200), senderSink)

	eligibleSinks := make([]*recordingSink, 4)
	for i := range eligibleSinks {
		eligibleSinks[i] = &recordingSink{}
		e.PeerConnected(int32(10+i), KindOutboundFullRelay, testAddr(byte(210+i)),
			eligibleSinks[i])
	}
	lurkerSink := &recordingSink{}
	e.PeerConnected(20, KindInbound, testAddr(220), lurkerSink)
	blockOnlySink := &recordingSink{}
	e.PeerConnected(21, KindBlockRelayOnly, testAddr(221), blockOnlySink)

	records := testAddrs(3)
	if err := e.Admit(sender, records, sender.na); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.inserts != len(records) {
		t.Fatalf("store saw %d inserts, want %d", store.inserts, len(records))
	}
	flushAll(e, clk)

	for _, record := range records {
		key := record.Key()
		var copies int
		for i, sink := range eligibleSinks {
			if n := sink.pushedKeys()[key]; n > 1 {
				t.Errorf("record %s relayed %d times to peer %d", key, n, 10+i)
			} else {
				copies += n
			}
		}
		if copies != BranchFactor {
			t.Errorf("record %s relayed to %d peers, want %d", key, copies,
				BranchFactor)
		}
	}
	if len(senderSink.pushed) != 0 {
		t.Error("record relayed back to its sender")
	}
	if len(lurkerSink.pushed) != 0 {
		t.Error("record relayed to inbound peer with no gossip participation")
	}
	if len(blockOnlySink.pushed) != 0 {
		t.Error("record relayed to block relay only peer")
	}
}

// TestAdmitDeterministicSelection ensures target selection for a given
// record is stable for a fixed selection secret.
func TestAdmitDeterministicSelection(t *testing.T) {
	pickTargets := func() map[string]int {
		store := &stubStore{isNew: true}
		e, clk := newTestEngine(store)
		senderSink := &recordingSink{}
		sender := e.PeerConnected(1, KindInbound, testAddr(200), senderSink)
		sinks := make(map[string]*recordingSink)
		for i := 0; i < 6; i++ {
			sink := &recordingSink{}
			id := int32(10 + i)
			sinks[fmt.Sprintf("peer-%d", id)] = sink
			e.PeerConnected(id, KindOutboundFullRelay, testAddr(byte(210+i)), sink)
		}
		if err := e.Admit(sender, testAddrs(1), sender.na); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		flushAll(e, clk)

		picked := make(map[string]int)
		for name, sink := range sinks {
			if len(sink.pushed) > 0 {
				picked[name]++
			}
		}
		return picked
	}

	first := pickTargets()
	second := pickTargets()
	if len(first) != BranchFactor {
		t.Fatalf("selected %d targets, want %d", len(first), BranchFactor)
	}
	for name := range first {
		if _, ok := second[name]; !ok {
			t.Fatalf("selection is not deterministic: %v != %v", first, second)
		}
	}
}

// TestAdmitOversized ensures messages above the relay threshold are stored
// but none of their contents are forwarded.
func TestAdmitOversized(t *testing.T) {
	store := &stubStore{isNew: true}
	e, clk := newTestEngine(store)

	senderSink := &recordingSink{}
	sender := e.PeerConnected(1, KindInbound, testAddr(200), senderSink)
	targetSink := &recordingSink{}
	e.PeerConnected(2, KindOutboundFullRelay, testAddr(201), targetSink)

	records := testAddrs(RelayThreshold + 1)
	if err := e.Admit(sender, records, sender.na); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.inserts != len(records) {
		t.Fatalf("store saw %d inserts, want %d", store.inserts, len(records))
	}
	flushAll(e, clk)
	if len(targetSink.pushed) != 0 {
		t.Fatal("oversized message contents were forwarded")
	}
}

// TestSuppressFirstRelay ensures a fresh outbound peer's first address
// message is not forwarded while its second one is.
func TestSuppressFirstRelay(t *testing.T) {
	store := &stubStore{isNew: true}
	e, clk := newTestEngine(store)

	senderSink := &recordingSink{}
	sender := e.PeerConnected(1, KindOutboundFullRelay, testAddr(200), senderSink)
	targetSink := &recordingSink{}
	e.PeerConnected(2, KindOutboundFullRelay, testAddr(201), targetSink)

	if err := e.Admit(sender, testAddrs(1), sender.na); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	flushAll(e, clk)
	if len(targetSink.pushed) != 0 {
		t.Fatal("first message from fresh outbound peer was forwarded")
	}

	second := []*addrmgr.NetAddress{testAddr(50)}
	if err := e.Admit(sender, second, sender.na); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	flushAll(e, clk)
	if got := targetSink.pushedKeys()[second[0].Key()]; got != 1 {
		t.Fatalf("second message relayed %d times, want 1", got)
	}
}

// TestInboundEligibilityEarned ensures an inbound peer receives no forwarded
// records until it sends something address-related, even a message with zero
// records, after which forwarding reaches it.
func TestInboundEligibilityEarned(t *testing.T) {
	store := &stubStore{isNew: true}
	e, clk := newTestEngine(store)

	senderSink := &recordingSink{}
	sender := e.PeerConnected(1, KindInbound, testAddr(200), senderSink)
	lurkerSink := &recordingSink{}
	lurker := e.PeerConnected(2, KindInbound, testAddr(201), lurkerSink)

	if err := e.Admit(sender, testAddrs(2), sender.na); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	flushAll(e, clk)
	if len(lurkerSink.pushed) != 0 {
		t.Fatal("non-participating inbound peer received forwarded records")
	}

	// An empty address message is sufficient participation.
	if err := e.Admit(lurker, nil, lurker.na); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !e.RelayEligible(lurker) {
		t.Fatal("inbound peer did not earn relay eligibility")
	}

	// With the sender and the lurker as the only candidates, every record
	// now lands on the lurker.
	if err := e.Admit(sender, []*addrmgr.NetAddress{testAddr(60)}, sender.na); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	flushAll(e, clk)
	if len(lurkerSink.pushed) == 0 {
		t.Fatal("participating inbound peer received no forwarded records")
	}
}

// TestOversizedMessageEarnsEligibility ensures an inbound peer whose only
// address message exceeds the forwarding threshold still earns relay
// eligibility even though none of its records are forwarded onward.
func TestOversizedMessageEarnsEligibility(t *testing.T) {
	store := &stubStore{isNew: true}
	e, clk := newTestEngine(store)

	senderSink := &recordingSink{}
	sender := e.PeerConnected(1, KindInbound, testAddr(200), senderSink)
	targetSink := &recordingSink{}
	e.PeerConnected(2, KindOutboundFullRelay, testAddr(201), targetSink)

	oversized := testAddrs(RelayThreshold + 1)
	if err := e.Admit(sender, oversized, sender.na); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.inserts != len(oversized) {
		t.Fatalf("store saw %d inserts, want %d", store.inserts,
			len(oversized))
	}
	flushAll(e, clk)
	if len(targetSink.pushed) != 0 {
		t.Fatal("records from oversized message were forwarded")
	}
	if !e.RelayEligible(sender) {
		t.Fatal("oversized message did not earn relay eligibility")
	}

	// Forwarded traffic from other peers now reaches the sender.
	otherSink := &recordingSink{}
	other := e.PeerConnected(3, KindInbound, testAddr(202), otherSink)
	if err := e.Admit(other, []*addrmgr.NetAddress{testAddr(60)}, other.na); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	flushAll(e, clk)
	if len(senderSink.pushed) == 0 {
		t.Fatal("eligible inbound peer received no forwarded records")
	}
}

// TestHandleGetAddr ensures discovery requests are only answered for inbound
// peers and that responses are cached until the refresh interval elapses.
func TestHandleGetAddr(t *testing.T) {
	store := &stubStore{isNew: true, sample: func(call int) []*addrmgr.NetAddress {
		// A distinguishable sample per draw.
		return testAddrs(call)
	}}
	e, clk := newTestEngine(store)

	outSink := &recordingSink{}
	out := e.PeerConnected(1, KindOutboundFullRelay, testAddr(200), outSink)
	e.HandleGetAddr(out)
	// The only message allowed to an outbound peer here is our own initial
	// getaddr, never an address response.
	if len(outSink.pushed) != 0 {
		t.Fatal("getaddr from outbound peer was answered")
	}
	if store.sampleCalls != 0 {
		t.Fatal("getaddr from outbound peer drew a sample")
	}

	inSink := &recordingSink{}
	in := e.PeerConnected(2, KindInbound, testAddr(201), inSink)
	e.HandleGetAddr(in)
	if len(inSink.pushed) != 1 || len(inSink.pushed[0]) != 1 {
		t.Fatalf("unexpected response shape: %s", spew.Sdump(inSink.pushed))
	}
	if !e.RelayEligible(in) {
		t.Fatal("getaddr did not mark the inbound peer as participating")
	}

	// A second request inside the cache window is served from the cache.
	e.HandleGetAddr(in)
	if store.sampleCalls != 1 {
		t.Fatalf("cache window did not hold: %d samples drawn",
			store.sampleCalls)
	}
	if len(inSink.pushed) != 2 || len(inSink.pushed[1]) != 1 {
		t.Fatalf("cached response differs from original: %v", inSink.pushed)
	}

	// Advancing past the refresh interval draws a fresh sample.
	clk.SetTime(testStartTime.Add(DefaultGetAddrCacheInterval + time.Minute))
	e.HandleGetAddr(in)
	if store.sampleCalls != 2 {
		t.Fatalf("cache was not refreshed: %d samples drawn", store.sampleCalls)
	}
	if len(inSink.pushed) != 3 || len(inSink.pushed[2]) != 2 {
		t.Fatalf("refreshed response was not served: %s",
			spew.Sdump(inSink.pushed))
	}
}

// TestFlushDeadlines ensures queued records are only delivered once a peer's
// randomized deadline passes and that a drained queue is not re-sent.
func TestFlushDeadlines(t *testing.T) {
	store := &stubStore{isNew: true}
	e, clk := newTestEngine(store)

	senderSink := &recordingSink{}
	sender := e.PeerConnected(1, KindInbound, testAddr(200), senderSink)
	targetSink := &recordingSink{}
	e.PeerConnected(2, KindOutboundFullRelay, testAddr(201), targetSink)

	if err := e.Admit(sender, testAddrs(1), sender.na); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Deadlines are jittered at least half the flush interval into the
	// future, so nothing can be due yet.
	e.FlushDue(clk.Now())
	if len(targetSink.pushed) != 0 {
		t.Fatal("flush delivered records before the peer deadline")
	}

	flushAll(e, clk)
	if len(targetSink.pushed) != 1 {
		t.Fatalf("flush delivered %d messages, want 1", len(targetSink.pushed))
	}

	// The queue was drained, so another due flush sends nothing.
	flushAll(e, clk)
	if len(targetSink.pushed) != 1 {
		t.Fatal("flush re-delivered drained records")
	}
}

// TestPeerDisconnected ensures a disconnect discards the pending relay queue
// so an in-flight flush for the peer becomes a no-op.
func TestPeerDisconnected(t *testing.T) {
	store := &stubStore{isNew: true}
	e, clk := newTestEngine(store)

	senderSink := &recordingSink{}
	sender := e.PeerConnected(1, KindInbound, testAddr(200), senderSink)
	targetSink := &recordingSink{}
	target := e.PeerConnected(2, KindOutboundFullRelay, testAddr(201), targetSink)

	if err := e.Admit(sender, testAddrs(1), sender.na); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e.PeerDisconnected(target.ID())
	flushAll(e, clk)
	if len(targetSink.pushed) != 0 {
		t.Fatal("flush delivered records to a disconnected peer")
	}
}

// TestOutboundConnect ensures the discovery request behavior at connection
// establishment per connection kind.
func TestOutboundConnect(t *testing.T) {
	tests := []struct {
		kind         ConnKind
		addrRequests int
	}{
		{KindInbound, 0},
		{KindOutboundFullRelay, 1},
		{KindBlockRelayOnly, 0},
		{KindFeeler, 0},
	}

	store := &stubStore{isNew: true}
	e, _ := newTestEngine(store)
	for i, test := range tests {
		sink := &recordingSink{}
		e.PeerConnected(int32(i+1), test.kind, testAddr(byte(i+1)), sink)
		if sink.addrRequests != test.addrRequests {
			t.Errorf("%v: sent %d discovery requests, want %d", test.kind,
				sink.addrRequests, test.addrRequests)
		}
	}
}
