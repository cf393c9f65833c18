//----------------------------------------------------------------------
// This file is part of wlink.
// Copyright (C) 2024-present Bernd Fix   >Y<
//
// wlink is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License,
// or (at your option) any later version.
//
// wlink is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.
//
// SPDX-License-Identifier: AGPL3.0-or-later
//----------------------------------------------------------------------

package wlink

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/soypat/seqs/eth/dhcp"
	"github.com/soypat/seqs/stacks"
)

// DefaultDHCPTimeout before falling back to a requested static address
const DefaultDHCPTimeout = 8 * time.Second

// ErrARPTimeout is returned if a hardware address does not resolve.
var ErrARPTimeout = errors.New("arp timed out")

// SeqsStackConfig for NewSeqsStack
type SeqsStackConfig struct {
	// DHCP requested hostname.
	Hostname string
	// DHCP requested IP address. On failing to find DHCP server is used as static IP.
	RequestedIP string
	// Number of UDP ports to open for the stack. (we'll actually open one more than this for DHCP)
	UDPPorts uint16
	// Number of TCP ports to open for the stack.
	TCPPorts    uint16
	MTU         uint16 // frame size (default 1500)
	DHCPTimeout time.Duration
	Logger      *slog.Logger
	Clock       Clock
}

// SeqsStack is the userspace TCP/IP stack with embedded DHCP client.
// Frame handling and DHCP progress run on the link runner; the
// readiness state is published atomically.
type SeqsStack struct {
	mtx     sync.Mutex // guards the port stack and DHCP client
	stack   *stacks.PortStack
	dhcp    *stacks.DHCPClient
	reqAddr netip.Addr
	cfg     SeqsStackConfig
	logger  *slog.Logger
	clock   Clock

	linkUp     atomic.Bool
	addr       atomic.Pointer[AddressConfig]
	requesting bool
	began      time.Time
	xid        uint32
}

// NewSeqsStack creates the stack for the given hardware address.
func NewSeqsStack(mac [6]byte, cfg SeqsStackConfig) (*SeqsStack, error) {
	s := &SeqsStack{
		cfg:    cfg,
		logger: loggerOr(cfg.Logger),
		clock:  clockOr(cfg.Clock),
	}
	if s.cfg.DHCPTimeout <= 0 {
		s.cfg.DHCPTimeout = DefaultDHCPTimeout
	}
	if s.cfg.MTU == 0 {
		s.cfg.MTU = 1500
	}
	if cfg.RequestedIP != "" {
		var err error
		if s.reqAddr, err = netip.ParseAddr(cfg.RequestedIP); err != nil {
			return nil, err
		}
		if !s.reqAddr.Is4() {
			return nil, errors.New("requested address must be IPv4")
		}
	}
	s.stack = stacks.NewPortStack(stacks.PortStackConfig{
		MAC:             mac,
		MaxOpenPortsUDP: int(cfg.UDPPorts) + 1, // extra UDP port for DHCP client
		MaxOpenPortsTCP: int(cfg.TCPPorts),
		MTU:             s.cfg.MTU,
		Logger:          s.logger,
	})
	s.stack.SetAddr(netip.IPv4Unspecified())
	s.dhcp = stacks.NewDHCPClient(s.stack, dhcp.DefaultClientPort)
	s.xid = uint32(s.clock.Now().UnixNano())
	return s, nil
}

// PortStack returns the underlying stack (for listeners).
func (s *SeqsStack) PortStack() *stacks.PortStack {
	return s.stack
}

// RecvEth hands an incoming frame to the stack.
func (s *SeqsStack) RecvEth(frame []byte) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.stack.RecvEth(frame)
}

// LinkUp reports the data link state.
func (s *SeqsStack) LinkUp() bool {
	return s.linkUp.Load()
}

// IPv4Config returns the assigned address.
func (s *SeqsStack) IPv4Config() (AddressConfig, bool) {
	if cfg := s.addr.Load(); cfg != nil {
		return *cfg, true
	}
	return AddressConfig{}, false
}

// SetLinkUp starts DHCP on link-up and withdraws the address on link-down.
func (s *SeqsStack) SetLinkUp(up bool) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.linkUp.Swap(up) == up {
		return
	}
	if !up {
		s.logger.Info("link down")
		s.addr.Store(nil)
		s.resetDHCP()
		return
	}
	s.logger.Info("link up, starting DHCP")
	s.xid++
	if s.xid == 0 {
		s.xid = 1
	}
	err := s.dhcp.BeginRequest(stacks.DHCPRequestConfig{
		RequestedAddr: s.reqAddr,
		Xid:           s.xid,
		Hostname:      s.cfg.Hostname,
	})
	if err != nil {
		s.logger.Error("DHCP request failed", slog.String("err", err.Error()))
	}
	s.requesting = true
	s.began = s.clock.Now()
}

// resetDHCP drops the lease and replaces the client; an aborted seqs
// client can not begin a new request.
func (s *SeqsStack) resetDHCP() {
	s.requesting = false
	s.dhcp.Abort()
	s.stack.CloseUDP(s.dhcp.LocalPort())
	s.stack.SetAddr(netip.IPv4Unspecified())
	s.dhcp = stacks.NewDHCPClient(s.stack, dhcp.DefaultClientPort)
}

// HandleEth advances DHCP and writes the next outgoing frame.
func (s *SeqsStack) HandleEth(dst []byte) (int, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.requesting {
		s.poll()
	}
	return s.stack.HandleEth(dst)
}

func (s *SeqsStack) poll() {
	if s.dhcp.State() == dhcp.StateBound {
		s.requesting = false
		var primaryDNS netip.Addr
		dnsServers := s.dhcp.DNSServers()
		if len(dnsServers) > 0 {
			primaryDNS = dnsServers[0]
		}
		ip := s.dhcp.Offer()
		s.logger.Info("DHCP complete",
			slog.Uint64("cidrbits", uint64(s.dhcp.CIDRBits())),
			slog.String("ourIP", ip.String()),
			slog.String("dns", primaryDNS.String()),
			slog.String("gateway", s.dhcp.Gateway().String()),
			slog.String("router", s.dhcp.Router().String()),
			slog.Duration("lease", s.dhcp.IPLeaseTime()),
		)
		s.stack.SetAddr(ip) // It's important to set the IP address after DHCP completes.
		gw := s.dhcp.Router()
		if !gw.IsValid() {
			gw = s.dhcp.Gateway()
		}
		s.addr.Store(&AddressConfig{
			Address: netip.PrefixFrom(ip, int(s.dhcp.CIDRBits())),
			Gateway: gw,
			DNS:     append([]netip.Addr(nil), dnsServers...),
		})
		return
	}
	if s.clock.Now().Sub(s.began) < s.cfg.DHCPTimeout || !s.reqAddr.IsValid() {
		return
	}
	s.requesting = false
	s.logger.Info("DHCP did not complete, assigning static IP", slog.String("ip", s.reqAddr.String()))
	s.stack.SetAddr(s.reqAddr)
	s.addr.Store(&AddressConfig{
		Address: netip.PrefixFrom(s.reqAddr, 24),
		Static:  true,
	})
}

// ProbeGateway checks that the gateway still answers ARP requests.
// Without a known gateway there is nothing to check.
func (s *SeqsStack) ProbeGateway() error {
	cfg, ok := s.IPv4Config()
	if !ok || !cfg.Gateway.IsValid() {
		return nil
	}
	_, err := s.ResolveHardwareAddr(context.Background(), cfg.Gateway)
	return err
}

// ResolveHardwareAddr obtains the hardware address of the given IP address.
// The ARP exchange itself is carried by the link runner.
func (s *SeqsStack) ResolveHardwareAddr(ctx context.Context, ip netip.Addr) ([6]byte, error) {
	if !ip.IsValid() {
		return [6]byte{}, errors.New("invalid ip")
	}
	s.mtx.Lock()
	arpc := s.stack.ARP()
	arpc.Abort() // Remove any previous ARP requests.
	err := arpc.BeginResolve(ip)
	s.mtx.Unlock()
	if err != nil {
		return [6]byte{}, err
	}
	// ARP exchanges should be fast, don't wait too long for them.
	const timeout = time.Second
	const maxretries = 20
	for range maxretries {
		if err = s.clock.Sleep(ctx, timeout/maxretries); err != nil {
			return [6]byte{}, err
		}
		s.mtx.Lock()
		done := arpc.IsDone()
		var hw [6]byte
		if done {
			_, hw, err = arpc.ResultAs6()
		}
		s.mtx.Unlock()
		if done {
			return hw, err
		}
	}
	return [6]byte{}, ErrARPTimeout
}

// NewListener returns a TCP listener on the given port accepting up to
// conns connections.
func NewListener(s *SeqsStack, port uint16, conns int) (lst net.Listener, state int) {
	listener, err := stacks.NewTCPListener(s.stack, stacks.TCPListenerConfig{
		MaxConnections: uint16(conns),
		ConnTxBufSize:  512,
		ConnRxBufSize:  512,
	})
	if err != nil {
		state = StatLISTEN1
		return
	}
	if listener.StartListening(port) != nil {
		state = StatLISTEN2
		return
	}
	return listener, StatOK
}
