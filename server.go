// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2026 The Relaynet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/decred/dcrd/addrmgr/v2"
	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/chaincfg/v3"
	"github.com/decred/dcrd/connmgr/v3"
	"github.com/decred/dcrd/crypto/rand"
	"github.com/decred/dcrd/peer/v3"
	"github.com/decred/dcrd/wire"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/relaynet/relayd/internal/addrrelay"
	"github.com/relaynet/relayd/internal/addrstore"
	"github.com/relaynet/relayd/internal/sched"
	"github.com/relaynet/relayd/internal/unbroadcast"
	"github.com/relaynet/relayd/internal/version"
)

const (
	// defaultServices describes the default services that are supported by
	// the server.
	defaultServices = wire.SFNodeNetwork

	// defaultRequiredServices describes the default services that are
	// required to be supported by outbound peers.
	defaultRequiredServices = wire.SFNodeNetwork

	// defaultTargetOutbound is the default number of outbound peers to
	// target.
	defaultTargetOutbound = 8

	// connectionRetryInterval is the base amount of time to wait in between
	// retries when connecting to persistent peers.  It is adjusted by the
	// number of retries such that there is a retry backoff.
	connectionRetryInterval = time.Second * 5

	// maxProtocolVersion is the max protocol version the server supports.
	maxProtocolVersion = wire.RemoveRejectVersion
)

var (
	// userAgentName is the user agent name and is used to help identify
	// ourselves to other peers.
	userAgentName = "relayd"

	// userAgentVersion is the user agent version and is used to help
	// identify ourselves to other peers.
	userAgentVersion = fmt.Sprintf("%d.%d.%d", version.Major, version.Minor,
		version.Patch)
)

// simpleAddr implements the net.Addr interface with two struct fields
type simpleAddr struct {
	net, addr string
}

// String returns the address.
//
// This is part of the net.Addr interface.
func (a simpleAddr) String() string {
	return a.addr
}

// Network returns the network.
//
// This is part of the net.Addr interface.
func (a simpleAddr) Network() string {
	return a.net
}

// Ensure simpleAddr implements the net.Addr interface.
var _ net.Addr = simpleAddr{}

// broadcastMsg provides the ability to house a wire message to be broadcast
// to all connected peers except specified excluded peers.
type broadcastMsg struct {
	message      wire.Message
	excludePeers []*serverPeer
}

// relayMsg packages an inventory vector along with whether or not the
// inventory should be relayed immediately or with the next batch.
type relayMsg struct {
	invVect   *wire.InvVect
	immediate bool
}

// peerState houses state of inbound, persistent, and outbound peers as well
// as banned peers and outbound groups.
type peerState struct {
	sync.Mutex

	// The following fields are protected by the embedded mutex.
	inboundPeers    map[int32]*serverPeer
	outboundPeers   map[int32]*serverPeer
	persistentPeers map[int32]*serverPeer
	banned          map[string]time.Time
	outboundGroups  map[string]int
}

// makePeerState returns a peer state instance that is used to maintain the
// state of inbound, persistent, and outbound peers as well as banned peers and
// outbound groups.
func makePeerState() peerState {
	return peerState{
		inboundPeers:    make(map[int32]*serverPeer),
		persistentPeers: make(map[int32]*serverPeer),
		outboundPeers:   make(map[int32]*serverPeer),
		banned:          make(map[string]time.Time),
		outboundGroups:  make(map[string]int),
	}
}

// count returns the count of all known peers.
//
// This function MUST be called with the embedded mutex locked (for reads).
func (ps *peerState) count() int {
	return len(ps.inboundPeers) + len(ps.outboundPeers) +
		len(ps.persistentPeers)
}

// forAllOutboundPeers is a helper function that runs closure on all outbound
// peers known to peerState.
//
// This function MUST be called with the embedded mutex locked (for reads).
func (ps *peerState) forAllOutboundPeers(closure func(sp *serverPeer)) {
	for _, e := range ps.outboundPeers {
		closure(e)
	}
	for _, e := range ps.persistentPeers {
		closure(e)
	}
}

// forAllPeers is a helper function that runs closure on all peers known to
// peerState.
//
// This function MUST be called with the embedded mutex locked (for reads).
func (ps *peerState) forAllPeers(closure func(sp *serverPeer)) {
	for _, e := range ps.inboundPeers {
		closure(e)
	}
	ps.forAllOutboundPeers(closure)
}

// ForAllPeers is a helper function that runs closure on all peers known to
// peerState.
//
// This function is safe for concurrent access.
func (ps *peerState) ForAllPeers(closure func(sp *serverPeer)) {
	ps.Lock()
	ps.forAllPeers(closure)
	ps.Unlock()
}

// connectionsWithIP returns the number of connections with the given IP.
//
// This function MUST be called with the embedded mutex locked (for reads).
func (ps *peerState) connectionsWithIP(ip net.IP) int {
	var total int
	ps.forAllPeers(func(sp *serverPeer) {
		if ip.Equal(sp.NA().IP) {
			total++
		}
	})
	return total
}

// TxSource provides transaction data for serving getdata requests.  It is
// implemented by the local transaction pool when one is attached to the
// server.
type TxSource interface {
	// FetchTx returns the transaction associated with the provided hash or
	// an error when it is not available.
	FetchTx(txHash *chainhash.Hash) (*wire.MsgTx, error)
}

// server provides a relay server for handling communications to and from
// peers.
type server struct {
	bytesReceived atomic.Uint64 // Total bytes received from all peers since start.
	bytesSent     atomic.Uint64 // Total bytes sent by all peers since start.
	shutdown      atomic.Bool

	chainParams *chaincfg.Params
	addrManager *addrmgr.AddrManager
	addrStore   *addrstore.Store
	addrRelay   *addrrelay.Engine
	unbroadcast *unbroadcast.Tracker
	scheduler   *sched.Scheduler
	connManager *connmgr.ConnManager
	peerState   peerState
	banPeers    chan *serverPeer
	relayInv    chan relayMsg
	broadcast   chan broadcastMsg
	services    wire.ServiceFlag
	quit        chan struct{}

	// txSource optionally provides transaction data for serving getdata
	// requests.  It is set before Run is invoked and never changed
	// afterwards, so it does not need to be protected for concurrent
	// access.
	txSource TxSource
}

// serverPeer extends the peer to maintain state shared by the server.
type serverPeer struct {
	*peer.Peer

	// These fields are set at creation time and never modified afterwards, so
	// they do not need to be protected for concurrent access.
	server        *server
	persistent    bool
	isWhitelisted bool
	quit          chan struct{}

	// All fields below this point are either not set at creation time or are
	// otherwise modified during operation and thus need to consider whether or
	// not they need to be protected for concurrent access.

	connReq        atomic.Pointer[connmgr.ConnReq]
	disableRelayTx atomic.Bool
	banScore       connmgr.DynamicBanScore

	// relayPeer houses the address relay state handle for the connection.
	// It is established during version negotiation and is only accessed
	// directly in callbacks which all run in the same peer input handler
	// goroutine, so it does not need to be protected for concurrent
	// access.  It is nil until the version message is processed and on
	// networks where address relay is disabled.
	relayPeer *addrrelay.Peer
}

// newServerPeer returns a new serverPeer instance. The peer needs to be set by
// the caller.
func newServerPeer(s *server, isPersistent bool) *serverPeer {
	return &serverPeer{
		server:     s,
		persistent: isPersistent,
		quit:       make(chan struct{}),
	}
}

// Run starts additional async processing for the peer and blocks until the
// peer is disconnected.  It then notifies the server and cleans up.
func (sp *serverPeer) Run() {
	sp.WaitForDisconnect()
	close(sp.quit)
	sp.server.DonePeer(sp)
}

// relaySink adapts a server peer to the message delivery surface consumed by
// the address relay engine.
type relaySink struct {
	sp *serverPeer
}

// PushAddrs queues an addr message containing the provided addresses to the
// peer.
//
// This is part of the addrrelay.MessageSink interface.
func (rs *relaySink) PushAddrs(addresses []*addrmgr.NetAddress) {
	msg := wire.NewMsgAddr()
	for _, na := range addresses {
		err := msg.AddAddress(addrmgrToWireNetAddress(na))
		if err != nil {
			peerLog.Errorf("Can't push address message to %s: %v", rs.sp, err)
			rs.sp.Disconnect()
			return
		}
	}
	rs.sp.QueueMessage(msg, nil)
}

// RequestAddrs queues a getaddr message to the peer.
//
// This is part of the addrrelay.MessageSink interface.
func (rs *relaySink) RequestAddrs() {
	rs.sp.QueueMessage(wire.NewMsgGetAddr(), nil)
}

// wireToAddrmgrNetAddress converts a wire NetAddress to an address manager
// NetAddress.
func wireToAddrmgrNetAddress(netAddr *wire.NetAddress) *addrmgr.NetAddress {
	newNetAddr := addrmgr.NewNetAddressIPPort(netAddr.IP, netAddr.Port, netAddr.Services)
	newNetAddr.Timestamp = netAddr.Timestamp
	return newNetAddr
}

// wireToAddrmgrNetAddresses converts a collection of wire net addresses to a
// collection of address manager net addresses.
func wireToAddrmgrNetAddresses(netAddr []*wire.NetAddress) []*addrmgr.NetAddress {
	addrs := make([]*addrmgr.NetAddress, len(netAddr))
	for i, wireAddr := range netAddr {
		addrs[i] = wireToAddrmgrNetAddress(wireAddr)
	}
	return addrs
}

// addrmgrToWireNetAddress converts an address manager net address to a wire net
// address.
func addrmgrToWireNetAddress(netAddr *addrmgr.NetAddress) *wire.NetAddress {
	return wire.NewNetAddressTimestamp(netAddr.Timestamp, netAddr.Services,
		netAddr.IP, netAddr.Port)
}

// pushAddrMsg sends an addr message to the connected peer using the provided
// addresses.  It bypasses the relay engine's trickle queue and is only used
// for advertising the local address during version negotiation.
func (sp *serverPeer) pushAddrMsg(addresses []*addrmgr.NetAddress) {
	msg := wire.NewMsgAddr()
	for _, na := range addresses {
		err := msg.AddAddress(addrmgrToWireNetAddress(na))
		if err != nil {
			peerLog.Errorf("Can't push address message to %s: %v", sp, err)
			sp.Disconnect()
			return
		}
	}
	sp.QueueMessage(msg, nil)
}

// addBanScore increases the persistent and decaying ban score fields by the
// values passed as parameters. If the resulting score exceeds half of the ban
// threshold, a warning is logged including the reason provided. Further, if
// the score is above the ban threshold, the peer will be banned and
// disconnected.
func (sp *serverPeer) addBanScore(persistent, transient uint32, reason string) bool {
	// No warning is logged and no score is calculated if banning is disabled.
	if cfg.DisableBanning {
		return false
	}
	if sp.isWhitelisted {
		peerLog.Debugf("Misbehaving whitelisted peer %s: %s", sp, reason)
		return false
	}

	warnThreshold := cfg.BanThreshold >> 1
	if transient == 0 && persistent == 0 {
		// The score is not being increased, but a warning message is still
		// logged if the score is above the warn threshold.
		score := sp.banScore.Int()
		if score > warnThreshold {
			peerLog.Warnf("Misbehaving peer %s: %s -- ban score is %d, "+
				"it was not increased this time", sp, reason, score)
		}
		return false
	}
	score := sp.banScore.Increase(persistent, transient)
	if score > warnThreshold {
		peerLog.Warnf("Misbehaving peer %s: %s -- ban score increased to %d",
			sp, reason, score)
		if score > cfg.BanThreshold {
			peerLog.Warnf("Misbehaving peer %s -- banning and disconnecting",
				sp)
			sp.server.BanPeer(sp)
			sp.Disconnect()
			return true
		}
	}
	return false
}

// hasServices returns whether or not the provided advertised service flags have
// all of the provided desired service flags set.
func hasServices(advertised, desired wire.ServiceFlag) bool {
	return advertised&desired == desired
}

// OnVersion is invoked when a peer receives a version wire message and is used
// to negotiate the protocol version details as well as kick start the
// communications.
func (sp *serverPeer) OnVersion(_ *peer.Peer, msg *wire.MsgVersion) {
	// Update the address store with the advertised services for outbound
	// connections in case they have changed.  This is not done for inbound
	// connections to help prevent malicious behavior and is skipped when
	// running on the simulation and regression test networks since they are
	// only intended to connect to specified peers and actively avoid
	// advertising and connecting to discovered peers.
	//
	// NOTE: This is done before rejecting peers that are too old to ensure
	// it is updated regardless in the case a new minimum protocol version is
	// enforced and the remote node has not upgraded yet.
	isInbound := sp.Inbound()
	remoteAddr := wireToAddrmgrNetAddress(sp.NA())
	if !cfg.SimNet && !cfg.RegNet && !isInbound {
		sp.server.addrStore.SetServices(remoteAddr, msg.Services)
	}

	// Reject peers that have a protocol version that is too old.
	const reqProtocolVersion = int32(wire.RemoveRejectVersion)
	if msg.ProtocolVersion < reqProtocolVersion {
		srvrLog.Debugf("Rejecting peer %s with protocol version %d prior to "+
			"the required version %d", sp, msg.ProtocolVersion,
			reqProtocolVersion)
		sp.Disconnect()
		return
	}

	// Reject outbound peers that are not full nodes.
	wantServices := wire.SFNodeNetwork
	if !isInbound && !hasServices(msg.Services, wantServices) {
		missingServices := wantServices & ^msg.Services
		srvrLog.Debugf("Rejecting peer %s with services %v due to not "+
			"providing desired services %v", sp, msg.Services, missingServices)
		sp.Disconnect()
		return
	}

	// Update the address store for outbound connections.  This is skipped
	// when running on the simulation and regression test networks since
	// they are only intended to connect to specified peers and actively
	// avoid advertising and connecting to discovered peers.
	if !cfg.SimNet && !cfg.RegNet && !isInbound {
		// Advertise the local address when the server accepts incoming
		// connections.
		if !cfg.DisableListen {
			lna := sp.server.addrManager.GetBestLocalAddress(remoteAddr)
			if lna.IsRoutable() {
				sp.pushAddrMsg([]*addrmgr.NetAddress{lna})
			}
		}

		// Mark the address as a known good address.
		sp.server.addrStore.RecordSuccess(remoteAddr)
	}

	// Choose whether or not to relay transactions.
	sp.disableRelayTx.Store(msg.DisableRelayTx)

	// Register the connection with the address relay engine, which also
	// requests known addresses from outbound peers.  Address relay is
	// disabled entirely on the simulation and regression test networks.
	if !cfg.SimNet && !cfg.RegNet {
		kind := addrrelay.KindOutboundFullRelay
		if isInbound {
			kind = addrrelay.KindInbound
		}
		sp.relayPeer = sp.server.addrRelay.PeerConnected(sp.ID(), kind,
			remoteAddr, &relaySink{sp: sp})
	}

	// Add valid peer to the server.
	sp.server.AddPeer(sp)
}

// OnAddr is invoked when a peer receives an addr wire message and is used to
// notify the server about advertised addresses.
func (sp *serverPeer) OnAddr(_ *peer.Peer, msg *wire.MsgAddr) {
	// Ignore addresses when running on the simulation and regression test
	// networks.  This helps prevent the networks from becoming another public
	// test network since they will not be able to learn about other peers that
	// have not specifically been provided.
	if cfg.SimNet || cfg.RegNet {
		return
	}

	// A message with no addresses carries nothing to store or forward, but
	// sending one is still address-related participation, so the sender is
	// enrolled as a future relay target.
	if len(msg.AddrList) == 0 {
		peerLog.Debugf("Command [%s] from %s does not contain any addresses",
			msg.Command(), sp)

		if sp.relayPeer != nil {
			sp.server.addrRelay.MarkParticipating(sp.relayPeer)
		}
		return
	}

	// Don't add more addresses if we're disconnecting.
	if sp.relayPeer == nil || !sp.Connected() {
		return
	}

	// Offer the addresses to the relay engine, which stores them and
	// schedules the fresh ones for forwarding per the relay policy.
	addrList := wireToAddrmgrNetAddresses(msg.AddrList)
	remoteAddr := wireToAddrmgrNetAddress(sp.NA())
	err := sp.server.addrRelay.Admit(sp.relayPeer, addrList, remoteAddr)
	if err != nil {
		peerLog.Errorf("Unable to process addresses from %s: %v", sp, err)
	}
}

// OnGetAddr is invoked when a peer receives a getaddr wire message and is used
// to provide the peer with known addresses from the address store.
func (sp *serverPeer) OnGetAddr(_ *peer.Peer, msg *wire.MsgGetAddr) {
	// Don't return any addresses when running on the simulation and regression
	// test networks.  This helps prevent the networks from becoming another
	// public test network since they will not be able to learn about other
	// peers that have not specifically been provided.
	if cfg.SimNet || cfg.RegNet {
		return
	}

	if sp.relayPeer == nil {
		return
	}

	// The relay engine only answers requests from inbound peers and caches
	// its response so repeated queries cannot enumerate the address store.
	sp.server.addrRelay.HandleGetAddr(sp.relayPeer)
}

// OnGetData is invoked when a peer receives a getdata wire message and is used
// to deliver transaction information.
//
// A request for a transaction this server announced is also the proof that the
// announcement propagated, so it stops any pending re-announcements for it.
func (sp *serverPeer) OnGetData(_ *peer.Peer, msg *wire.MsgGetData) {
	// Ban peers sending empty getdata requests.
	if len(msg.InvList) == 0 {
		sp.server.BanPeer(sp)
		return
	}

	// A decaying ban score increase is applied to prevent exhausting resources
	// with unusually large inventory queries.
	//
	// Requesting more than the maximum inventory vector length within a short
	// period of time yields a score above the default ban threshold.
	numNewReqs := uint32(len(msg.InvList))
	if sp.addBanScore(0, numNewReqs*99/wire.MaxInvPerMsg, "getdata") {
		return
	}

	notFound := wire.NewMsgNotFound()
	for _, iv := range msg.InvList {
		if iv.Type != wire.InvTypeTx {
			peerLog.Tracef("Ignoring getdata for inv type %d from %s",
				iv.Type, sp)
			notFound.AddInvVect(iv)
			continue
		}

		// A getdata for a tracked local transaction proves the
		// announcement reached the network.
		if sp.server.unbroadcast.Remove(&iv.Hash, unbroadcast.ReasonRequested) {
			srvrLog.Debugf("Peer %s requested local transaction %v", sp,
				iv.Hash)
		}

		// Serve the transaction when a local source is attached.
		if sp.server.txSource != nil {
			tx, err := sp.server.txSource.FetchTx(&iv.Hash)
			if err == nil {
				sp.QueueMessage(tx, nil)
				continue
			}
		}
		notFound.AddInvVect(iv)
	}
	if len(notFound.InvList) != 0 {
		sp.QueueMessage(notFound, nil)
	}
}

// OnRead is invoked when a peer receives a message and it is used to update
// the bytes received by the server.
func (sp *serverPeer) OnRead(_ *peer.Peer, bytesRead int, msg wire.Message, err error) {
	// Ban peers sending messages that do not conform to the wire protocol.
	var errCode wire.ErrorCode
	if errors.As(err, &errCode) {
		peerLog.Errorf("Unable to read wire message from %s: %v", sp, err)
		sp.server.BanPeer(sp)
	}

	sp.server.AddBytesReceived(uint64(bytesRead))
}

// OnWrite is invoked when a peer sends a message and it is used to update
// the bytes sent by the server.
func (sp *serverPeer) OnWrite(_ *peer.Peer, bytesWritten int, msg wire.Message, err error) {
	sp.server.AddBytesSent(uint64(bytesWritten))
}

// attemptRelaydDial is a wrapper function around relaydDial which adds and
// marks the remote peer as attempted in the address manager.
func (s *server) attemptRelaydDial(ctx context.Context, network, addr string) (net.Conn, error) {
	if !cfg.SimNet && !cfg.RegNet {
		host, portStr, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		port, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil {
			return nil, err
		}
		remoteAddr, err := s.addrManager.HostToNetAddress(host, uint16(port), 0)
		if err != nil {
			return nil, err
		}
		// Be sure the address exists in the address manager.
		s.addrManager.AddAddresses([]*addrmgr.NetAddress{remoteAddr},
			remoteAddr)

		err = s.addrManager.Attempt(remoteAddr)
		if err != nil {
			srvrLog.Errorf("Marking address as attempted failed: %v", err)
		}
	}

	return relaydDial(ctx, network, addr)
}

// TransactionAccepted begins tracking the provided locally originated
// transaction for re-announcement until its propagation is proven and
// announces it to all connected peers.
//
// This function is safe for concurrent access.
func (s *server) TransactionAccepted(txHash *chainhash.Hash, origin unbroadcast.Origin) {
	s.unbroadcast.Add(txHash, origin)
	iv := wire.NewInvVect(wire.InvTypeTx, txHash)
	s.RelayInventory(iv, false)
}

// TransactionRemoved stops tracking the provided transaction for
// re-announcement.  It is invoked when the local pool no longer contains the
// transaction for any reason.
//
// This function is safe for concurrent access.
func (s *server) TransactionRemoved(txHash *chainhash.Hash) {
	s.unbroadcast.Remove(txHash, unbroadcast.ReasonPoolRemoved)
}

// UseTxSource attaches a local transaction source used to serve getdata
// requests.  It must be invoked before Run.
func (s *server) UseTxSource(source TxSource) {
	s.txSource = source
}

// handleBanPeerMsg deals with banning peers.  It is invoked from the
// peerHandler goroutine.
func (s *server) handleBanPeerMsg(state *peerState, sp *serverPeer) {
	host, _, err := net.SplitHostPort(sp.Addr())
	if err != nil {
		srvrLog.Debugf("can't split ban peer %s %v", sp.Addr(), err)
		return
	}
	direction := directionString(sp.Inbound())
	srvrLog.Infof("Banned peer %s (%s) for %v", host, direction,
		cfg.BanDuration)
	bannedUntil := time.Now().Add(cfg.BanDuration)
	state.Lock()
	state.banned[host] = bannedUntil
	state.Unlock()
}

// handleRelayInvMsg deals with relaying inventory to peers that are not already
// known to have it.  It is invoked from the peerHandler goroutine.
func (s *server) handleRelayInvMsg(state *peerState, msg relayMsg) {
	state.ForAllPeers(func(sp *serverPeer) {
		if !sp.Connected() {
			return
		}

		iv := msg.invVect
		if iv.Type == wire.InvTypeTx {
			// Don't relay transactions at all when transaction relay is
			// disabled locally.
			if cfg.BlocksOnly {
				return
			}

			// Don't relay the transaction to the peer when it has transaction
			// relaying disabled.
			if sp.disableRelayTx.Load() {
				return
			}
		}

		// Either queue the inventory to be relayed immediately or with
		// the next batch depending on the immediate flag.
		//
		// It will be ignored in either case if the peer is already
		// known to have the inventory.
		if msg.immediate {
			sp.QueueInventoryImmediate(iv)
		} else {
			sp.QueueInventory(iv)
		}
	})
}

// handleBroadcastMsg deals with broadcasting messages to peers.  It is invoked
// from the peerHandler goroutine.
func (s *server) handleBroadcastMsg(state *peerState, bmsg *broadcastMsg) {
	state.ForAllPeers(func(sp *serverPeer) {
		if !sp.Connected() {
			return
		}

		for _, ep := range bmsg.excludePeers {
			if sp == ep {
				return
			}
		}

		sp.QueueMessage(bmsg.message, nil)
	})
}

// newPeerConfig returns the configuration for the given serverPeer.
func newPeerConfig(sp *serverPeer) *peer.Config {
	var userAgentComments []string
	if version.PreRelease != "" {
		userAgentComments = append(userAgentComments, version.PreRelease)
	}

	return &peer.Config{
		Listeners: peer.MessageListeners{
			OnVersion: sp.OnVersion,
			OnGetData: sp.OnGetData,
			OnGetAddr: sp.OnGetAddr,
			OnAddr:    sp.OnAddr,
			OnRead:    sp.OnRead,
			OnWrite:   sp.OnWrite,
		},
		HostToNetAddress: func(host string, port uint16, services wire.ServiceFlag) (*wire.NetAddress, error) {
			address, err := sp.server.addrManager.HostToNetAddress(host, port, services)
			if err != nil {
				return nil, err
			}
			return addrmgrToWireNetAddress(address), nil
		},
		Proxy:             cfg.Proxy,
		UserAgentName:     userAgentName,
		UserAgentVersion:  userAgentVersion,
		UserAgentComments: userAgentComments,
		Net:               sp.server.chainParams.Net,
		Services:          sp.server.services,
		DisableRelayTx:    cfg.BlocksOnly,
		ProtocolVersion:   maxProtocolVersion,
		IdleTimeout:       cfg.PeerIdleTimeout,
	}
}

// inboundPeerConnected is invoked by the connection manager when a new inbound
// connection is established.  It initializes a new inbound server peer
// instance, associates it with the connection, and starts all additional server
// peer processing goroutines.
func (s *server) inboundPeerConnected(conn net.Conn) {
	sp := newServerPeer(s, false)
	sp.isWhitelisted = isWhitelisted(conn.RemoteAddr())
	sp.Peer = peer.NewInboundPeer(newPeerConfig(sp))
	sp.AssociateConnection(conn)
	go sp.Run()
}

// outboundPeerConnected is invoked by the connection manager when a new
// outbound connection is established.  It initializes a new outbound server
// peer instance, associates it with the relevant state such as the connection
// request instance and the connection itself, and start all additional server
// peer processing goroutines.
func (s *server) outboundPeerConnected(c *connmgr.ConnReq, conn net.Conn) {
	sp := newServerPeer(s, c.Permanent)
	p, err := peer.NewOutboundPeer(newPeerConfig(sp), c.Addr.String())
	if err != nil {
		srvrLog.Debugf("Cannot create outbound peer %s: %v", c.Addr, err)
		s.connManager.Disconnect(c.ID())
		return
	}
	sp.Peer = p
	sp.connReq.Store(c)
	sp.isWhitelisted = isWhitelisted(conn.RemoteAddr())
	sp.AssociateConnection(conn)
	go sp.Run()
}

// peerHandler is used to handle peer operations such as banning peers and
// broadcasting messages to peers.
//
// It must be run in a goroutine.
func (s *server) peerHandler(ctx context.Context) {
	// Start the address manager which is needed by peers.  This is done here
	// since its lifecycle is closely tied to this handler and rather than
	// adding more channels to synchronize things, it's easier and slightly
	// faster to simply start and stop it in this handler.
	s.addrManager.Start()

	srvrLog.Tracef("Starting peer handler")

out:
	for {
		select {
		// Peer to ban.
		case p := <-s.banPeers:
			s.handleBanPeerMsg(&s.peerState, p)

		// New inventory to potentially be relayed to other peers.
		case invMsg := <-s.relayInv:
			s.handleRelayInvMsg(&s.peerState, invMsg)

		// Message to broadcast to all connected peers except those
		// which are excluded by the message.
		case bmsg := <-s.broadcast:
			s.handleBroadcastMsg(&s.peerState, &bmsg)

		case <-ctx.Done():
			close(s.quit)

			// Disconnect all peers on server shutdown.
			s.peerState.ForAllPeers(func(sp *serverPeer) {
				srvrLog.Tracef("Shutdown peer %s", sp)
				sp.Disconnect()
			})
			break out
		}
	}

	s.addrManager.Stop()
	srvrLog.Tracef("Peer handler done")
}

// handleAddPeer deals with adding new peers and includes logic such as
// categorizing the type of peer and limiting the maximum allowed number of
// peers.
//
// It returns whether or not the peer was accepted by the server.
//
// This function is safe for concurrent access.
func (s *server) handleAddPeer(sp *serverPeer) bool {
	// Ignore new peers when shutting down.
	if s.shutdown.Load() {
		srvrLog.Infof("New peer %s ignored - server is shutting down", sp)
		sp.Disconnect()
		return false
	}

	state := &s.peerState
	state.Lock()
	defer state.Unlock()

	// Disconnect banned peers.
	host, _, err := net.SplitHostPort(sp.Addr())
	if err != nil {
		srvrLog.Debugf("can't split hostport %v", err)
		sp.Disconnect()
		return false
	}
	if banEnd, ok := state.banned[host]; ok {
		if time.Now().Before(banEnd) {
			srvrLog.Debugf("Peer %s is banned for another %v - disconnecting",
				host, time.Until(banEnd))
			sp.Disconnect()
			return false
		}

		srvrLog.Infof("Peer %s is no longer banned", host)
		delete(state.banned, host)
	}

	// Limit max number of connections from a single IP.  However, allow
	// whitelisted inbound peers and localhost connections regardless.
	isInboundWhitelisted := sp.isWhitelisted && sp.Inbound()
	peerIP := sp.NA().IP
	if cfg.MaxSameIP > 0 && !isInboundWhitelisted && !peerIP.IsLoopback() &&
		state.connectionsWithIP(peerIP)+1 > cfg.MaxSameIP {

		srvrLog.Infof("Max connections with %s reached [%d] - disconnecting "+
			"peer", sp, cfg.MaxSameIP)
		sp.Disconnect()
		return false
	}

	// Limit max number of total peers.  However, allow whitelisted inbound
	// peers regardless.
	if state.count()+1 > cfg.MaxPeers && !isInboundWhitelisted {
		srvrLog.Infof("Max peers reached [%d] - disconnecting peer %s",
			cfg.MaxPeers, sp)
		sp.Disconnect()
		return false
	}

	// Add the new peer.
	srvrLog.Debugf("New peer %s", sp)
	if sp.Inbound() {
		state.inboundPeers[sp.ID()] = sp
		return true
	}

	// The peer is an outbound peer at this point.
	remoteAddr := wireToAddrmgrNetAddress(sp.NA())
	state.outboundGroups[remoteAddr.GroupKey()]++
	if sp.persistent {
		state.persistentPeers[sp.ID()] = sp
	} else {
		state.outboundPeers[sp.ID()] = sp
	}

	return true
}

// AddPeer adds a new peer that has already been connected to the server.
//
// This function is safe for concurrent access.
func (s *server) AddPeer(sp *serverPeer) {
	s.handleAddPeer(sp)
}

// DonePeer removes a disconnected peer from the server.  It includes logic such
// as updating the peer tracking state and the last time the peer was seen.
//
// This function is safe for concurrent access.
func (s *server) DonePeer(sp *serverPeer) {
	// Remove the connection from the address relay engine.  Connections
	// that never completed version negotiation were never registered, in
	// which case this is a no-op.
	s.addrRelay.PeerDisconnected(sp.ID())

	state := &s.peerState
	state.Lock()
	defer state.Unlock()

	var list map[int32]*serverPeer
	if sp.persistent {
		list = state.persistentPeers
	} else if sp.Inbound() {
		list = state.inboundPeers
	} else {
		list = state.outboundPeers
	}
	if _, ok := list[sp.ID()]; ok {
		if !sp.Inbound() && sp.VersionKnown() {
			remoteAddr := wireToAddrmgrNetAddress(sp.NA())
			state.outboundGroups[remoteAddr.GroupKey()]--
		}
		if !sp.Inbound() {
			connReq := sp.connReq.Load()
			if connReq != nil {
				s.connManager.Disconnect(connReq.ID())
			}
		}
		delete(list, sp.ID())
		srvrLog.Debugf("Removed peer %s", sp)
		return
	}

	connReq := sp.connReq.Load()
	if connReq != nil {
		s.connManager.Disconnect(connReq.ID())
	}

	// Update the address manager with the last seen time when the peer has
	// acknowledged our version and has sent us its version as well.  This is
	// skipped when running on the simulation and regression test networks since
	// they are only intended to connect to specified peers and actively avoid
	// advertising and connecting to discovered peers.
	if !cfg.SimNet && !cfg.RegNet && sp.VerAckReceived() && sp.VersionKnown() &&
		sp.NA() != nil {

		remoteAddr := wireToAddrmgrNetAddress(sp.NA())
		err := s.addrManager.Connected(remoteAddr)
		if err != nil {
			srvrLog.Errorf("Marking address as connected failed: %v", err)
		}
	}
}

// BanPeer bans a peer that has already been connected to the server by ip
// unless banning is disabled or the peer has been whitelisted.
func (s *server) BanPeer(sp *serverPeer) {
	if cfg.DisableBanning || sp.isWhitelisted {
		return
	}
	sp.Disconnect()

	select {
	case <-s.quit:
	case s.banPeers <- sp:
	}
}

// RelayInventory relays the passed inventory vector to all connected peers
// that are not already known to have it.
func (s *server) RelayInventory(invVect *wire.InvVect, immediate bool) {
	select {
	case <-s.quit:
	case s.relayInv <- relayMsg{invVect: invVect, immediate: immediate}:
	}
}

// BroadcastMessage sends msg to all peers currently connected to the server
// except those in the passed peers to exclude.
func (s *server) BroadcastMessage(msg wire.Message, exclPeers ...*serverPeer) {
	select {
	case <-s.quit:
	case s.broadcast <- broadcastMsg{message: msg, excludePeers: exclPeers}:
	}
}

// ConnectedCount returns the number of currently connected peers.
func (s *server) ConnectedCount() int32 {
	var numConnected int32
	s.peerState.ForAllPeers(func(sp *serverPeer) {
		if sp.Connected() {
			numConnected++
		}
	})
	return numConnected
}

// OutboundGroupCount returns the number of peers connected to the given
// outbound group key.
func (s *server) OutboundGroupCount(key string) int {
	s.peerState.Lock()
	count := s.peerState.outboundGroups[key]
	s.peerState.Unlock()
	return count
}

// AddBytesSent adds the passed number of bytes to the total bytes sent counter
// for the server.  It is safe for concurrent access.
func (s *server) AddBytesSent(bytesSent uint64) {
	s.bytesSent.Add(bytesSent)
}

// AddBytesReceived adds the passed number of bytes to the total bytes received
// counter for the server.  It is safe for concurrent access.
func (s *server) AddBytesReceived(bytesReceived uint64) {
	s.bytesReceived.Add(bytesReceived)
}

// NetTotals returns the sum of all bytes received and sent across the network
// for all peers.  It is safe for concurrent access.
func (s *server) NetTotals() (uint64, uint64) {
	return s.bytesReceived.Load(), s.bytesSent.Load()
}

// flushAddrRelay delivers the pending address relay queues of every peer whose
// randomized trickle deadline has passed.  It is invoked from the periodic
// scheduler.
func (s *server) flushAddrRelay(now time.Time) {
	s.addrRelay.FlushDue(now)
}

// rebroadcastLocalTxns re-announces every locally originated transaction
// whose propagation has not yet been proven to all connected peers.  It is
// invoked from the periodic scheduler.
func (s *server) rebroadcastLocalTxns(now time.Time) {
	// The sweep keeps running when transaction relay is disabled, but no
	// announcements are queued and the tracked transactions are retained.
	if cfg.BlocksOnly {
		return
	}

	for _, txHash := range s.unbroadcast.Sweep(now) {
		txHash := txHash
		iv := wire.NewInvVect(wire.InvTypeTx, &txHash)
		s.RelayInventory(iv, false)
	}
}

// querySeeders queries the configured seeders to discover peers that supported
// the required services and adds the discovered peers to the address manager.
// Each seeder is contacted in a separate goroutine.
func (s *server) querySeeders(ctx context.Context) {
	// Add peers discovered through DNS to the address manager.
	seeders := s.chainParams.Seeders()
	errs := make(chan error, len(seeders))
	seed := func(seeder string) {
		ctx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()

		addrs, err := connmgr.SeedAddrs(ctx, seeder, relaydDial,
			connmgr.SeedFilterServices(defaultRequiredServices))
		if err != nil {
			srvrLog.Infof("seeder '%s' error: %v", seeder, err)
			errs <- err
			return
		}

		// Nothing to do if the seeder didn't return any addresses.
		if len(addrs) == 0 {
			errs <- nil
			return
		}

		// Lookup the IP of the https seeder to use as the source of the
		// seeded addresses.  In the incredibly rare event that the lookup
		// fails after it just succeeded, fall back to using the first
		// returned address as the source.
		srcAddr := wireToAddrmgrNetAddress(addrs[0])
		srcIPs, err := relaydLookup(seeder)
		if err == nil && len(srcIPs) > 0 {
			const httpsPort = 443
			srcAddr = addrmgr.NewNetAddressIPPort(srcIPs[0], httpsPort, 0)
		}
		addresses := wireToAddrmgrNetAddresses(addrs)
		s.addrManager.AddAddresses(addresses, srcAddr)
		errs <- nil
	}

	backoff := time.Second
	for {
		for _, seeder := range seeders {
			go seed(seeder)
		}
		var errCount int
		for range seeders {
			if err := <-errs; err != nil {
				errCount++
			}
		}
		if errCount < len(seeders) || !s.addrStore.NeedMore() {
			return
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		if backoff < 10*time.Second {
			backoff += time.Second
		}
	}
}

// Run starts the server and blocks until the provided context is cancelled.
// This entails accepting connections from peers.
func (s *server) Run(ctx context.Context) {
	srvrLog.Trace("Starting server")

	// Start the peer handler which in turn starts the address manager.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		s.peerHandler(ctx)
		wg.Done()
	}()

	// Query the seeders and start the connection manager.
	wg.Add(1)
	go func() {
		if !cfg.DisableSeeders {
			go s.querySeeders(ctx)
		}
		s.connManager.Run(ctx)
		wg.Done()
	}()

	// Start the periodic scheduler which drives the address relay trickle
	// and local transaction re-announcement.
	wg.Add(1)
	go func() {
		s.scheduler.Run(ctx)
		wg.Done()
	}()

	// Shutdown the server when the context is cancelled.
	<-ctx.Done()
	s.shutdown.Store(true)

	srvrLog.Warnf("Server shutting down")
	wg.Wait()
	srvrLog.Trace("Server stopped")
}

// parseListeners determines whether each listen address is IPv4 and IPv6 and
// returns a slice of appropriate net.Addrs to listen on with TCP. It also
// properly detects addresses which apply to "all interfaces" and adds the
// address as both IPv4 and IPv6.
func parseListeners(addrs []string) ([]net.Addr, error) {
	netAddrs := make([]net.Addr, 0, len(addrs)*2)
	for _, addr := range addrs {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			// Shouldn't happen due to already being normalized.
			return nil, err
		}

		// Empty host or host of * on plan9 is both IPv4 and IPv6.
		if host == "" || (host == "*" && runtime.GOOS == "plan9") {
			netAddrs = append(netAddrs, simpleAddr{net: "tcp4", addr: addr})
			netAddrs = append(netAddrs, simpleAddr{net: "tcp6", addr: addr})
			continue
		}

		// Strip IPv6 zone id if present since net.ParseIP does not
		// handle it.
		zoneIndex := strings.LastIndex(host, "%")
		if zoneIndex > 0 {
			host = host[:zoneIndex]
		}

		// Parse the IP.
		ip := net.ParseIP(host)
		if ip == nil {
			return nil, fmt.Errorf("'%s' is not a valid IP address", host)
		}

		// To4 returns nil when the IP is not an IPv4 address, so use
		// this determine the address type.
		if ip.To4() == nil {
			netAddrs = append(netAddrs, simpleAddr{net: "tcp6", addr: addr})
		} else {
			netAddrs = append(netAddrs, simpleAddr{net: "tcp4", addr: addr})
		}
	}
	return netAddrs, nil
}

// newServer returns a new relayd server configured to listen on addr for the
// network type specified by chainParams.  Use start to begin accepting
// connections from peers.
func newServer(ctx context.Context, listenAddrs []string,
	chainParams *chaincfg.Params, dataDir string) (*server, error) {

	amgr := addrmgr.New(dataDir, relaydLookup)
	services := defaultServices

	var listeners []net.Listener
	if !cfg.DisableListen {
		var err error
		listeners, err = initListeners(ctx, amgr, listenAddrs, services)
		if err != nil {
			return nil, err
		}
		if len(listeners) == 0 {
			return nil, errors.New("no valid listen address")
		}
	}

	s := server{
		chainParams: chainParams,
		addrManager: amgr,
		peerState:   makePeerState(),
		banPeers:    make(chan *serverPeer, cfg.MaxPeers),
		relayInv:    make(chan relayMsg, cfg.MaxPeers),
		broadcast:   make(chan broadcastMsg, cfg.MaxPeers),
		services:    services,
		quit:        make(chan struct{}),
	}

	s.addrStore = addrstore.New(&addrstore.Config{AddrManager: amgr})
	s.addrRelay = addrrelay.New(&addrrelay.Config{
		Store:                s.addrStore,
		FlushInterval:        cfg.TrickleInterval,
		GetAddrCacheInterval: cfg.GetAddrCacheInterval,
	})
	s.unbroadcast = unbroadcast.New(&unbroadcast.Config{})

	// The re-announcement cadence is randomized per process so the network
	// wide rebroadcast traffic does not synchronize.
	sweepInterval := cfg.RebroadcastInterval +
		rand.Duration(cfg.RebroadcastInterval/2)
	s.scheduler = sched.New(&sched.Config{
		FlushTicker: ticker.New(cfg.TrickleInterval),
		SweepTicker: ticker.New(sweepInterval),
		OnFlush:     s.flushAddrRelay,
		OnSweep:     s.rebroadcastLocalTxns,
	})

	// Only setup a function to return new addresses to connect to when not
	// running in connect-only mode.  The simulation and regression networks
	// are always in connect-only mode since they are only intended to
	// connect to specified peers and actively avoid advertising and
	// connecting to discovered peers in order to prevent them from becoming
	// public test networks.
	var newAddressFunc func() (net.Addr, error)
	if !cfg.SimNet && !cfg.RegNet && len(cfg.ConnectPeers) == 0 {
		newAddressFunc = func() (net.Addr, error) {
			for tries := 0; tries < 100; tries++ {
				addr := s.addrManager.GetAddress()
				if addr == nil {
					break
				}

				// Address will not be invalid, local or unroutable
				// because addrmanager rejects those on addition.
				// Just check that we don't already have an address
				// in the same group so that we are not connecting
				// to the same network segment at the expense of
				// others.
				netAddr := addr.NetAddress()
				if s.OutboundGroupCount(netAddr.GroupKey()) != 0 {
					continue
				}

				// Skip recently attempted nodes until we have
				// tried 30 times.
				if tries < 30 {
					lastAttempt := addr.LastAttempt()
					if !lastAttempt.IsZero() &&
						time.Since(lastAttempt) < 10*time.Minute {
						continue
					}
				}

				// allow nondefault ports after 50 failed tries.
				if fmt.Sprintf("%d", netAddr.Port) !=
					s.chainParams.DefaultPort && tries < 50 {
					continue
				}

				return addrStringToNetAddr(netAddr.Key())
			}

			return nil, errors.New("no valid connect address")
		}
	}

	// Create a connection manager.
	targetOutbound := defaultTargetOutbound
	if cfg.MaxPeers < targetOutbound {
		targetOutbound = cfg.MaxPeers
	}
	cmgr, err := connmgr.New(&connmgr.Config{
		Listeners:      listeners,
		OnAccept:       s.inboundPeerConnected,
		RetryDuration:  connectionRetryInterval,
		TargetOutbound: uint32(targetOutbound),
		Dial:           s.attemptRelaydDial,
		Timeout:        cfg.DialTimeout,
		OnConnection:   s.outboundPeerConnected,
		GetNewAddress:  newAddressFunc,
	})
	if err != nil {
		return nil, err
	}
	s.connManager = cmgr

	// Start up persistent peers.
	permanentPeers := cfg.ConnectPeers
	if len(permanentPeers) == 0 {
		permanentPeers = cfg.AddPeers
	}
	for _, addr := range permanentPeers {
		tcpAddr, err := addrStringToNetAddr(addr)
		if err != nil {
			return nil, err
		}

		go s.connManager.Connect(ctx,
			&connmgr.ConnReq{
				Addr:      tcpAddr,
				Permanent: true,
			})
	}

	return &s, nil
}

// initListeners initializes the configured net listeners and adds any bound
// addresses to the address manager.
func initListeners(ctx context.Context, amgr *addrmgr.AddrManager, listenAddrs []string, services wire.ServiceFlag) ([]net.Listener, error) {
	// Listen for TCP connections at the configured addresses
	netAddrs, err := parseListeners(listenAddrs)
	if err != nil {
		return nil, err
	}

	listeners := make([]net.Listener, 0, len(netAddrs))
	for _, addr := range netAddrs {
		var listenConfig net.ListenConfig
		listener, err := listenConfig.Listen(ctx, addr.Network(), addr.String())
		if err != nil {
			srvrLog.Warnf("Can't listen on %s: %v", addr, err)
			continue
		}
		listeners = append(listeners, listener)
	}

	if len(cfg.ExternalIPs) != 0 {
		defaultPort, err := strconv.ParseUint(activeNetParams.DefaultPort, 10, 16)
		if err != nil {
			srvrLog.Errorf("Can not parse default port %s for active chain: %v",
				activeNetParams.DefaultPort, err)
			return nil, err
		}

		for _, sip := range cfg.ExternalIPs {
			eport := uint16(defaultPort)
			host, portstr, err := net.SplitHostPort(sip)
			if err != nil {
				// no port, use default.
				host = sip
			} else {
				port, err := strconv.ParseUint(portstr, 10, 16)
				if err != nil {
					srvrLog.Warnf("Can not parse port from %s for "+
						"externalip: %v", sip, err)
					continue
				}
				eport = uint16(port)
			}

			na, err := amgr.HostToNetAddress(host, eport, services)
			if err != nil {
				srvrLog.Warnf("Not adding %s as externalip: %v", sip, err)
				continue
			}

			err = amgr.AddLocalAddress(na, addrmgr.ManualPrio)
			if err != nil {
				amgrLog.Warnf("Skipping specified external IP: %v", err)
			}
		}
	} else {
		// Add bound addresses to address manager to be advertised to peers.
		for _, listener := range listeners {
			addr := listener.Addr().String()
			err := addLocalAddress(amgr, addr, services)
			if err != nil {
				amgrLog.Warnf("Skipping bound address %s: %v", addr, err)
			}
		}
	}

	return listeners, nil
}

// addrStringToNetAddr takes an address in the form of 'host:port' and returns
// a net.Addr which maps to the original address with any host names resolved
// to IP addresses.
func addrStringToNetAddr(addr string) (net.Addr, error) {
	host, strPort, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}

	// Attempt to look up an IP address associated with the parsed host.
	// The relaydLookup function will transparently handle performing the
	// lookup over Tor if necessary.
	ips, err := relaydLookup(host)
	if err != nil {
		return nil, err
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("no addresses found for %s", host)
	}

	port, err := strconv.Atoi(strPort)
	if err != nil {
		return nil, err
	}

	return &net.TCPAddr{
		IP:   ips[0],
		Port: port,
	}, nil
}

// addLocalAddress adds an address that this node is listening on to the
// address manager so that it may be relayed to peers.
func addLocalAddress(addrMgr *addrmgr.AddrManager, addr string, services wire.ServiceFlag) error {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return err
	}

	if ip := net.ParseIP(host); ip != nil && ip.IsUnspecified() {
		// If bound to unspecified address, advertise all local interfaces
		addrs, err := net.InterfaceAddrs()
		if err != nil {
			return err
		}

		for _, addr := range addrs {
			ifaceIP, _, err := net.ParseCIDR(addr.String())
			if err != nil {
				continue
			}

			// If bound to 0.0.0.0, do not add IPv6 interfaces and if bound to
			// ::, do not add IPv4 interfaces.
			if (ip.To4() == nil) != (ifaceIP.To4() == nil) {
				continue
			}

			netAddr := addrmgr.NewNetAddressIPPort(ifaceIP, uint16(port),
				services)
			addrMgr.AddLocalAddress(netAddr, addrmgr.BoundPrio)
		}
	} else {
		netAddr, err := addrMgr.HostToNetAddress(host, uint16(port), services)
		if err != nil {
			return err
		}

		addrMgr.AddLocalAddress(netAddr, addrmgr.BoundPrio)
	}

	return nil
}

// isWhitelisted returns whether the IP address is included in the whitelisted
// networks and IPs.
func isWhitelisted(addr net.Addr) bool {
	if len(cfg.whitelists) == 0 {
		return false
	}

	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		srvrLog.Warnf("Unable to SplitHostPort on '%s': %v", addr, err)
		return false
	}
	ip := net.ParseIP(host)
	if ip == nil {
		srvrLog.Warnf("Unable to parse IP '%s'", addr)
		return false
	}

	for _, ipnet := range cfg.whitelists {
		if ipnet.Contains(ip) {
			return true
		}
	}
	return false
}
