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
	"net/netip"
	"runtime"
	"sync"
	"time"
)

// fakeClock runs in virtual time: Sleep advances the clock at once.
type fakeClock struct {
	mtx     sync.Mutex
	now     time.Time
	sleeps  []time.Duration
	onSleep func(n int)
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mtx.Lock()
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	n, hook := len(c.sleeps), c.onSleep
	c.mtx.Unlock()
	if hook != nil {
		hook(n)
	}
	runtime.Gosched()
	return ctx.Err()
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

//----------------------------------------------------------------------

// fakeRadio is a scripted radio.
type fakeRadio struct {
	mtx         sync.Mutex
	started     bool
	connected   bool
	lost        bool
	cfg         ClientConfig
	setErr      error
	startErrs   []error // consumed by Start
	connectErrs []error // consumed by Connect; nil entries succeed
	aps         []AccessPoint
	scanErr     error
	calls       []string
	starts      int
	connects    int
	disconnect  chan struct{}
	onConnect   func(n int)
}

func newFakeRadio() *fakeRadio {
	return &fakeRadio{disconnect: make(chan struct{}, 16)}
}

func (r *fakeRadio) record(call string) {
	r.calls = append(r.calls, call)
}

func (r *fakeRadio) StaState() StaState {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	switch {
	case r.connected:
		return StaConnected
	case !r.started:
		return StaStopped
	case r.lost:
		return StaDisconnected
	}
	return StaStarted
}

func (r *fakeRadio) IsStarted() (bool, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return r.started, nil
}

func (r *fakeRadio) SetConfig(cfg ClientConfig) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.record("config")
	r.cfg = cfg
	return r.setErr
}

func (r *fakeRadio) Start(ctx context.Context) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.record("start")
	if len(r.startErrs) > 0 {
		err := r.startErrs[0]
		r.startErrs = r.startErrs[1:]
		if err != nil {
			return err
		}
	}
	r.starts++
	r.started = true
	return nil
}

func (r *fakeRadio) Scan(ctx context.Context, cfg ScanConfig) ([]AccessPoint, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.record("scan")
	return r.aps, r.scanErr
}

func (r *fakeRadio) Connect(ctx context.Context) error {
	r.mtx.Lock()
	r.record("connect")
	r.connects++
	n := r.connects
	var err error
	if len(r.connectErrs) > 0 {
		err = r.connectErrs[0]
		r.connectErrs = r.connectErrs[1:]
	}
	if err == nil {
		r.connected = true
		r.lost = false
	}
	hook := r.onConnect
	r.mtx.Unlock()
	if hook != nil {
		hook(n)
	}
	return err
}

func (r *fakeRadio) WaitDisconnect(ctx context.Context) error {
	r.mtx.Lock()
	r.record("wait")
	r.mtx.Unlock()
	select {
	case <-r.disconnect:
		r.mtx.Lock()
		r.connected = false
		r.lost = true
		r.mtx.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *fakeRadio) Calls() []string {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *fakeRadio) Connects() int {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return r.connects
}

func (r *fakeRadio) Connected() bool {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return r.connected
}

//----------------------------------------------------------------------

var testAddr = AddressConfig{
	Address: netip.MustParsePrefix("192.168.1.42/24"),
	Gateway: netip.MustParseAddr("192.168.1.1"),
	DNS:     []netip.Addr{netip.MustParseAddr("192.168.1.1")},
}

// fakeStack reports a fixed readiness.
type fakeStack struct {
	mtx  sync.Mutex
	up   bool
	addr *AddressConfig
}

func (s *fakeStack) LinkUp() bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.up
}

func (s *fakeStack) IPv4Config() (AddressConfig, bool) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.addr == nil {
		return AddressConfig{}, false
	}
	return *s.addr, true
}

// fakeFrames is a frame stack that acquires an address on link-up.
type fakeFrames struct {
	fakeStack
	out    [][]byte // outgoing frames
	errs   []error  // returned by HandleEth before frames
	handle int
}

func (s *fakeFrames) SetLinkUp(up bool) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.up = up
	if up {
		a := testAddr
		s.addr = &a
	} else {
		s.addr = nil
	}
}

func (s *fakeFrames) HandleEth(dst []byte) (int, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.handle++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return 0, err
	}
	if len(s.out) == 0 {
		return 0, nil
	}
	n := copy(dst, s.out[0])
	s.out = s.out[1:]
	return n, nil
}

// fakeNIC records transmitted frames.
type fakeNIC struct {
	mtx     sync.Mutex
	link    func() bool
	rx      int // frames pending reception
	pollErr error
	sendErr error
	sent    [][]byte
	tries   int
}

func (n *fakeNIC) PollOne() (bool, error) {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	if n.pollErr != nil {
		return false, n.pollErr
	}
	if n.rx > 0 {
		n.rx--
		return true, nil
	}
	return false, nil
}

func (n *fakeNIC) SendEth(pkt []byte) error {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	n.tries++
	if n.sendErr != nil {
		return n.sendErr
	}
	n.sent = append(n.sent, append([]byte(nil), pkt...))
	return nil
}

func (n *fakeNIC) LinkUp() bool {
	if n.link == nil {
		return false
	}
	return n.link()
}

// fakeDevice records LED switching.
type fakeDevice struct {
	mtx sync.Mutex
	on  int
	off int
}

func (d *fakeDevice) LED(on bool) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	if on {
		d.on++
	} else {
		d.off++
	}
}
