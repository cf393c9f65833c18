//go:build !rp2350

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
	"bufio"
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/mdlayher/wifi"
	"golang.org/x/sys/unix"
)

// LinuxDevice (for testing purposes)
type LinuxDevice struct{}

// LED on or off (not applicable)
func (dev *LinuxDevice) LED(on bool) {}

// InitDevice returns the host device
func InitDevice() (dev Device) {
	return new(LinuxDevice)
}

//----------------------------------------------------------------------

// Host radio defaults
const (
	DefaultRadioPoll      = 250 * time.Millisecond
	DefaultConnectTimeout = 15 * time.Second
	DefaultScanTimeout    = 10 * time.Second
)

// ErrConnectTimeout is returned if association does not complete.
var ErrConnectTimeout = errors.New("association timed out")

// LinuxRadio drives a nl80211 station interface.
type LinuxRadio struct {
	client  *wifi.Client
	name    string // interface name ("" for first station interface)
	poll    time.Duration
	timeout time.Duration
	clock   Clock
	logger  *slog.Logger

	ifi    *wifi.Interface // nil until started
	cfg    ClientConfig
	joined bool // association completed since last connect
}

// LinuxRadioConfig for NewLinuxRadio
type LinuxRadioConfig struct {
	Interface      string
	Poll           time.Duration
	ConnectTimeout time.Duration
	Clock          Clock
	Logger         *slog.Logger
}

// NewLinuxRadio opens a nl80211 client.
func NewLinuxRadio(cfg LinuxRadioConfig) (*LinuxRadio, error) {
	c, err := wifi.New()
	if err != nil {
		return nil, fmt.Errorf("nl80211: %w", err)
	}
	r := &LinuxRadio{
		client:  c,
		name:    cfg.Interface,
		poll:    cfg.Poll,
		timeout: cfg.ConnectTimeout,
		clock:   clockOr(cfg.Clock),
		logger:  loggerOr(cfg.Logger),
	}
	if r.poll <= 0 {
		r.poll = DefaultRadioPoll
	}
	if r.timeout <= 0 {
		r.timeout = DefaultConnectTimeout
	}
	return r, nil
}

// Close the nl80211 client.
func (r *LinuxRadio) Close() error {
	return r.client.Close()
}

// StaState reports the station state from the current BSS.
func (r *LinuxRadio) StaState() StaState {
	if r.ifi == nil {
		return StaStopped
	}
	bss, err := r.client.BSS(r.ifi)
	if err == nil && bss.Status == wifi.BSSStatusAssociated {
		return StaConnected
	}
	if r.joined {
		return StaDisconnected
	}
	return StaStarted
}

// IsStarted is true once a station interface is bound and up.
func (r *LinuxRadio) IsStarted() (bool, error) {
	if r.ifi == nil {
		return false, nil
	}
	ifi, err := net.InterfaceByName(r.ifi.Name)
	if err != nil {
		return false, err
	}
	return ifi.Flags&net.FlagUp != 0, nil
}

// SetConfig stores the station configuration.
func (r *LinuxRadio) SetConfig(cfg ClientConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	r.cfg = cfg
	return nil
}

// Start binds the station interface.
func (r *LinuxRadio) Start(ctx context.Context) error {
	ifis, err := r.client.Interfaces()
	if err != nil {
		return classify("interfaces", err)
	}
	var found *wifi.Interface
	for _, ifi := range ifis {
		if ifi.Type != wifi.InterfaceTypeStation {
			continue
		}
		if len(r.name) == 0 || ifi.Name == r.name {
			found = ifi
			break
		}
	}
	if found == nil {
		return fmt.Errorf("no station interface %q", r.name)
	}
	ni, err := net.InterfaceByName(found.Name)
	if err != nil {
		return err
	}
	if ni.Flags&net.FlagUp == 0 {
		return fmt.Errorf("%w: interface %s is down", ErrBusy, found.Name)
	}
	r.ifi = found
	r.logger.Info("station interface",
		slog.String("name", found.Name),
		slog.String("mac", found.HardwareAddr.String()),
		slog.Int("phy", found.PHY))
	return nil
}

// Scan triggers an active scan and returns the strongest access points.
// If the scan request fails (e.g. while associating) the access points
// cached by the kernel are returned.
func (r *LinuxRadio) Scan(ctx context.Context, cfg ScanConfig) ([]AccessPoint, error) {
	if r.ifi == nil {
		return nil, ErrNotStarted
	}
	sctx, cancel := context.WithTimeout(ctx, DefaultScanTimeout)
	err := r.client.Scan(sctx, r.ifi)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.logger.Warn("active scan failed, using cached results", slog.String("err", err.Error()))
	}
	list, err := r.client.AccessPoints(r.ifi)
	if err != nil {
		return nil, classify("scan", err)
	}
	return accessPoints(list, cfg.Max), nil
}

// accessPoints converts BSS entries, strongest first, limited to max
// entries (0 for all).
func accessPoints(list []*wifi.BSS, max int) []AccessPoint {
	list = slices.Clone(list)
	slices.SortStableFunc(list, func(a, b *wifi.BSS) int {
		return cmp.Compare(b.Signal, a.Signal)
	})
	if max > 0 && len(list) > max {
		list = list[:max]
	}
	aps := make([]AccessPoint, 0, len(list))
	for _, bss := range list {
		aps = append(aps, AccessPoint{
			SSID:    bss.SSID,
			BSSID:   bss.BSSID,
			Channel: freqChannel(bss.Frequency),
			Signal:  int(bss.Signal / 100), // mBm
			Auth:    authName(bss.RSN),
		})
	}
	return aps
}

// authName lists the key management suites of a network.
func authName(rsn wifi.RSNInfo) string {
	if !rsn.IsInitialized() || len(rsn.AKMs) == 0 {
		return "open"
	}
	names := make([]string, len(rsn.AKMs))
	for i, akm := range rsn.AKMs {
		names[i] = akm.String()
	}
	return strings.Join(names, "+")
}

// Connect requests association and waits until it completes.
func (r *LinuxRadio) Connect(ctx context.Context) error {
	if r.ifi == nil {
		return ErrNotStarted
	}
	r.joined = false
	var err error
	if r.cfg.Open() {
		err = r.client.Connect(r.ifi, r.cfg.SSID)
	} else {
		err = r.client.ConnectWPAPSK(r.ifi, r.cfg.SSID, r.cfg.Password)
	}
	if err != nil {
		return classify("connect", err)
	}
	deadline := r.clock.Now().Add(r.timeout)
	for r.StaState() != StaConnected {
		if r.clock.Now().After(deadline) {
			return ErrConnectTimeout
		}
		if err = r.clock.Sleep(ctx, r.poll); err != nil {
			return err
		}
	}
	r.joined = true
	return nil
}

// WaitDisconnect polls the BSS until association is lost.
func (r *LinuxRadio) WaitDisconnect(ctx context.Context) error {
	for r.StaState() == StaConnected {
		if err := r.clock.Sleep(ctx, r.poll); err != nil {
			return err
		}
	}
	return nil
}

// classify maps transient kernel errors to ErrBusy.
func classify(op string, err error) error {
	if errors.Is(err, unix.EBUSY) || errors.Is(err, unix.EAGAIN) {
		return fmt.Errorf("%s: %w (%v)", op, ErrBusy, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// freqChannel converts a center frequency (MHz) to a channel number.
func freqChannel(mhz int) int {
	switch {
	case mhz == 2484:
		return 14
	case mhz >= 2412 && mhz <= 2472:
		return (mhz - 2407) / 5
	case mhz >= 5955 && mhz <= 7115:
		return (mhz - 5950) / 5
	case mhz >= 5000 && mhz <= 5900:
		return (mhz - 5000) / 5
	}
	return 0
}

//----------------------------------------------------------------------

// HostStack is the kernel IP stack of a network interface.
type HostStack struct {
	name   string
	routes string // path of the IPv4 routing table
	resolv string // path of the resolver configuration
}

// NewHostStack for the named interface.
func NewHostStack(name string) *HostStack {
	return &HostStack{
		name:   name,
		routes: "/proc/net/route",
		resolv: "/etc/resolv.conf",
	}
}

// LinkUp reports an operational interface.
func (s *HostStack) LinkUp() bool {
	ifi, err := net.InterfaceByName(s.name)
	return err == nil && ifi.Flags&net.FlagRunning != 0
}

// IPv4Config returns the first IPv4 address of the interface.
func (s *HostStack) IPv4Config() (cfg AddressConfig, ok bool) {
	ifi, err := net.InterfaceByName(s.name)
	if err != nil {
		return
	}
	addrs, err := ifi.Addrs()
	if err != nil {
		return
	}
	for _, a := range addrs {
		ipn, isNet := a.(*net.IPNet)
		if !isNet || ipn.IP.To4() == nil {
			continue
		}
		ip, _ := netip.AddrFromSlice(ipn.IP.To4())
		bits, _ := ipn.Mask.Size()
		cfg.Address = netip.PrefixFrom(ip, bits)
		ok = true
		break
	}
	if !ok {
		return
	}
	if f, err := os.Open(s.routes); err == nil {
		cfg.Gateway, _ = parseRoutes(f, s.name)
		f.Close()
	}
	if f, err := os.Open(s.resolv); err == nil {
		cfg.DNS = parseResolv(f)
		f.Close()
	}
	return
}

// parseRoutes finds the default gateway of an interface in a
// /proc/net/route table.
func parseRoutes(r io.Reader, name string) (netip.Addr, bool) {
	sc := bufio.NewScanner(r)
	sc.Scan() // header
	for sc.Scan() {
		f := strings.Fields(sc.Text())
		if len(f) < 3 || f[0] != name || f[1] != "00000000" {
			continue
		}
		v, err := strconv.ParseUint(f[2], 16, 32)
		if err != nil || v == 0 {
			continue
		}
		// little-endian hex
		return netip.AddrFrom4([4]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}), true
	}
	return netip.Addr{}, false
}

// parseResolv returns the IPv4 name servers of a resolv.conf.
func parseResolv(r io.Reader) (list []netip.Addr) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		f := strings.Fields(sc.Text())
		if len(f) < 2 || f[0] != "nameserver" {
			continue
		}
		if a, err := netip.ParseAddr(f[1]); err == nil && a.Is4() {
			list = append(list, a)
		}
	}
	return
}
