// Copyright (c) 2024 The Relaynet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"net"
	"reflect"
	"testing"
	"time"

	"github.com/decred/dcrd/addrmgr/v2"
	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/chaincfg/v3"
	"github.com/decred/dcrd/peer/v3"
	"github.com/decred/dcrd/wire"
	"github.com/relaynet/relayd/internal/addrrelay"
	"github.com/relaynet/relayd/internal/unbroadcast"
)

// TestParseListeners ensures that listen addresses are split into the
// appropriate tcp4 and tcp6 network addresses and that addresses which apply
// to all interfaces produce one of each.
func TestParseListeners(t *testing.T) {
	tests := []struct {
		name    string
		addrs   []string
		want    []net.Addr
		wantErr bool
	}{{
		name:  "all interfaces",
		addrs: []string{":9108"},
		want: []net.Addr{
			simpleAddr{net: "tcp4", addr: ":9108"},
			simpleAddr{net: "tcp6", addr: ":9108"},
		},
	}, {
		name:  "ipv4 address",
		addrs: []string{"127.0.0.1:9108"},
		want: []net.Addr{
			simpleAddr{net: "tcp4", addr: "127.0.0.1:9108"},
		},
	}, {
		name:  "ipv6 address",
		addrs: []string{"[::1]:9108"},
		want: []net.Addr{
			simpleAddr{net: "tcp6", addr: "[::1]:9108"},
		},
	}, {
		name:  "mixed addresses",
		addrs: []string{"127.0.0.1:9108", "[2001:db8::1]:9108"},
		want: []net.Addr{
			simpleAddr{net: "tcp4", addr: "127.0.0.1:9108"},
			simpleAddr{net: "tcp6", addr: "[2001:db8::1]:9108"},
		},
	}, {
		name:    "missing port",
		addrs:   []string{"127.0.0.1"},
		wantErr: true,
	}, {
		name:    "invalid host",
		addrs:   []string{"invalid:9108"},
		wantErr: true,
	}}

	for _, test := range tests {
		result, err := parseListeners(test.addrs)
		if test.wantErr != (err != nil) {
			t.Errorf("%q: unexpected error status - got %v", test.name, err)
			continue
		}
		if err != nil {
			continue
		}
		if !reflect.DeepEqual(result, test.want) {
			t.Errorf("%q: unexpected result - got %v, want %v", test.name,
				result, test.want)
		}
	}
}

// TestHasServices ensures the hasServices function correctly determines
// whether all desired service flags are advertised.
func TestHasServices(t *testing.T) {
	tests := []struct {
		name       string
		advertised wire.ServiceFlag
		desired    wire.ServiceFlag
		want       bool
	}{{
		name:       "full node advertises full node",
		advertised: wire.SFNodeNetwork,
		desired:    wire.SFNodeNetwork,
		want:       true,
	}, {
		name:       "no services advertised",
		advertised: 0,
		desired:    wire.SFNodeNetwork,
		want:       false,
	}, {
		name:       "extra services advertised",
		advertised: wire.SFNodeNetwork | 1<<5,
		desired:    wire.SFNodeNetwork,
		want:       true,
	}, {
		name:       "nothing desired",
		advertised: 0,
		desired:    0,
		want:       true,
	}}

	for _, test := range tests {
		if got := hasServices(test.advertised, test.desired); got != test.want {
			t.Errorf("%q: unexpected result - got %v, want %v", test.name,
				got, test.want)
		}
	}
}

// TestNetAddressConversion ensures converting between the wire and address
// manager net address representations round trips all fields.
func TestNetAddressConversion(t *testing.T) {
	ts := time.Unix(1735689600, 0)
	wireAddr := wire.NewNetAddressTimestamp(ts, wire.SFNodeNetwork,
		net.ParseIP("203.0.113.5"), 9108)

	amgrAddr := wireToAddrmgrNetAddress(wireAddr)
	if !net.IP(amgrAddr.IP).Equal(wireAddr.IP) {
		t.Fatalf("unexpected ip - got %v, want %v", amgrAddr.IP, wireAddr.IP)
	}
	if amgrAddr.Port != wireAddr.Port {
		t.Fatalf("unexpected port - got %d, want %d", amgrAddr.Port,
			wireAddr.Port)
	}
	if amgrAddr.Services != wireAddr.Services {
		t.Fatalf("unexpected services - got %v, want %v", amgrAddr.Services,
			wireAddr.Services)
	}
	if !amgrAddr.Timestamp.Equal(wireAddr.Timestamp) {
		t.Fatalf("unexpected timestamp - got %v, want %v", amgrAddr.Timestamp,
			wireAddr.Timestamp)
	}

	back := addrmgrToWireNetAddress(amgrAddr)
	if !reflect.DeepEqual(back, wireAddr) {
		t.Fatalf("unexpected round trip result - got %v, want %v", back,
			wireAddr)
	}
}

// TestWireToAddrmgrNetAddresses ensures converting a collection of wire net
// addresses preserves order and length.
func TestWireToAddrmgrNetAddresses(t *testing.T) {
	ts := time.Unix(1735689600, 0)
	wireAddrs := []*wire.NetAddress{
		wire.NewNetAddressTimestamp(ts, wire.SFNodeNetwork,
			net.ParseIP("203.0.113.5"), 9108),
		wire.NewNetAddressTimestamp(ts, wire.SFNodeNetwork,
			net.ParseIP("2001:db8::68"), 19108),
	}

	result := wireToAddrmgrNetAddresses(wireAddrs)
	if len(result) != len(wireAddrs) {
		t.Fatalf("unexpected length - got %d, want %d", len(result),
			len(wireAddrs))
	}
	for i, na := range result {
		if !net.IP(na.IP).Equal(wireAddrs[i].IP) {
			t.Errorf("address %d: unexpected ip - got %v, want %v", i, na.IP,
				wireAddrs[i].IP)
		}
		if na.Port != wireAddrs[i].Port {
			t.Errorf("address %d: unexpected port - got %d, want %d", i,
				na.Port, wireAddrs[i].Port)
		}
	}
}

// TestOnAddrEmptyMessage ensures an addr message with no entries enrolls the
// sending inbound peer as a future address relay target without banning it.
func TestOnAddrEmptyMessage(t *testing.T) {
	oldCfg := cfg
	defer func() { cfg = oldCfg }()
	cfg = &config{}

	s := &server{
		chainParams: chaincfg.MainNetParams(),
		addrRelay:   addrrelay.New(&addrrelay.Config{}),
		banPeers:    make(chan *serverPeer, 1),
		quit:        make(chan struct{}),
	}
	sp := newServerPeer(s, false)
	sp.Peer = peer.NewInboundPeer(newPeerConfig(sp))
	na := addrmgr.NewNetAddressIPPort(net.ParseIP("203.0.113.5"), 9108,
		wire.SFNodeNetwork)
	sp.relayPeer = s.addrRelay.PeerConnected(1, addrrelay.KindInbound, na,
		&relaySink{sp: sp})

	sp.OnAddr(nil, wire.NewMsgAddr())

	select {
	case <-s.banPeers:
		t.Fatal("empty addr message banned the peer")
	default:
	}
	if !s.addrRelay.RelayEligible(sp.relayPeer) {
		t.Fatal("empty addr message did not enroll the peer for relay")
	}
}

// TestRebroadcastBlocksOnly ensures the re-announcement sweep queues
// inventory for tracked transactions normally and queues nothing while
// transaction relay is disabled.
func TestRebroadcastBlocksOnly(t *testing.T) {
	oldCfg := cfg
	defer func() { cfg = oldCfg }()
	cfg = &config{BlocksOnly: true}

	s := &server{
		unbroadcast: unbroadcast.New(&unbroadcast.Config{}),
		relayInv:    make(chan relayMsg, 1),
		quit:        make(chan struct{}),
	}
	txHash := chainhash.Hash{0x01}
	s.unbroadcast.Add(&txHash, unbroadcast.OriginWallet)

	now := time.Unix(1735689600, 0)
	s.rebroadcastLocalTxns(now)
	select {
	case msg := <-s.relayInv:
		t.Fatalf("sweep queued %v with transaction relay disabled",
			msg.invVect)
	default:
	}
	if !s.unbroadcast.Contains(&txHash) {
		t.Fatal("sweep dropped a tracked transaction")
	}

	// Re-enabling transaction relay announces the transaction again.
	cfg.BlocksOnly = false
	s.rebroadcastLocalTxns(now)
	select {
	case msg := <-s.relayInv:
		if msg.invVect.Type != wire.InvTypeTx || msg.invVect.Hash != txHash {
			t.Fatalf("unexpected inventory queued: %v", msg.invVect)
		}
	default:
		t.Fatal("sweep queued no inventory with transaction relay enabled")
	}
}

// TestPeerStateCounts ensures that the peer state tracks inbound and outbound
// peers independently and that iteration visits every peer.
func TestPeerStateCounts(t *testing.T) {
	state := makePeerState()
	state.inboundPeers[1] = &serverPeer{}
	state.inboundPeers[2] = &serverPeer{}
	state.outboundPeers[3] = &serverPeer{}
	state.persistentPeers[4] = &serverPeer{}

	if got := state.count(); got != 4 {
		t.Fatalf("unexpected total count - got %d, want 4", got)
	}

	var outbound int
	state.forAllOutboundPeers(func(sp *serverPeer) {
		outbound++
	})
	if outbound != 2 {
		t.Fatalf("unexpected outbound count - got %d, want 2", outbound)
	}

	var all int
	state.forAllPeers(func(sp *serverPeer) {
		all++
	})
	if all != 4 {
		t.Fatalf("unexpected peer count - got %d, want 4", all)
	}
}
