//go:build rp2350

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
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/soypat/cyw43439"
)

// Raspberry Pico2 W  [RP2350]
type Pico2WDevice struct {
	ref *cyw43439.Device // reference to device
}

// LED on or off (if applicable)
func (dev *Pico2WDevice) LED(on bool) {
	dev.ref.GPIOSet(0, on)
}

// InitDevice accesses the on-board radio chip.
func InitDevice() Device {
	dev := new(Pico2WDevice)
	dev.ref = cyw43439.NewPicoWDevice()
	return dev
}

//======================================================================
// Radio
//======================================================================

// Pico radio defaults
const (
	DefaultLinkPoll      = 500 * time.Millisecond
	DefaultProbeInterval = 2 * time.Second
	probeFailures        = 3
)

// PicoRadioConfig for NewPicoRadio
type PicoRadioConfig struct {
	LinkPoll      time.Duration // link state poll interval while connected
	ProbeInterval time.Duration // gateway check interval while connected
	Logger        *slog.Logger
	Clock         Clock
}

// PicoRadio is the CYW43439 in station mode. The link state is read
// from the driver, which tracks join, link and deauth events.
type PicoRadio struct {
	dev    *cyw43439.Device
	mac    [6]byte
	cfg    ClientConfig
	poll   time.Duration
	every  time.Duration
	probe  func() error
	logger *slog.Logger
	clock  Clock

	started atomic.Bool
	joined  atomic.Bool // joined since start (link may be gone)
	stale   atomic.Bool // link up but gateway unreachable
}

// NewPicoRadio initializes the radio chip. The returned handle must be
// moved into the supervisor.
func NewPicoRadio(dev Device, cfg PicoRadioConfig) (*PicoRadio, error) {
	d, ok := dev.(*Pico2WDevice)
	if !ok {
		return nil, errors.New("not a pico2w device")
	}
	r := &PicoRadio{
		dev:    d.ref,
		poll:   cfg.LinkPoll,
		every:  cfg.ProbeInterval,
		logger: loggerOr(cfg.Logger),
		clock:  clockOr(cfg.Clock),
	}
	if r.poll <= 0 {
		r.poll = DefaultLinkPoll
	}
	if r.every <= 0 {
		r.every = DefaultProbeInterval
	}
	wificfg := cyw43439.DefaultWifiConfig()
	wificfg.Logger = r.logger
	r.logger.Info("initializing pico W device...")
	devInitTime := time.Now()
	if err := r.dev.Init(wificfg); err != nil {
		return nil, fmt.Errorf("cyw43439 init: %w", err)
	}
	r.logger.Info("cyw43439:Init", slog.Duration("duration", time.Since(devInitTime)))
	var err error
	if r.mac, err = r.dev.HardwareAddr6(); err != nil {
		return nil, fmt.Errorf("cyw43439 mac: %w", err)
	}
	return r, nil
}

// HardwareAddr of the radio
func (r *PicoRadio) HardwareAddr() [6]byte {
	return r.mac
}

// SetProbe installs the gateway check used while connected.
func (r *PicoRadio) SetProbe(probe func() error) {
	r.probe = probe
}

// Attach registers the stack as receiver of the radio's frames.
func (s *SeqsStack) Attach(r *PicoRadio) {
	r.dev.RecvEthHandle(s.RecvEth)
}

// linkUp is the driver link state, unless the gateway stopped answering.
func (r *PicoRadio) linkUp() bool {
	return r.dev.IsLinkUp() && !r.stale.Load()
}

// StaState reports the station state.
func (r *PicoRadio) StaState() StaState {
	switch {
	case !r.started.Load():
		return StaStopped
	case r.linkUp():
		return StaConnected
	case r.joined.Load():
		return StaDisconnected
	}
	return StaStarted
}

// IsStarted reports station mode enabled.
func (r *PicoRadio) IsStarted() (bool, error) {
	return r.started.Load(), nil
}

// SetConfig stores the station configuration.
func (r *PicoRadio) SetConfig(cfg ClientConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	r.cfg = cfg
	return nil
}

// Start enables station mode.
func (r *PicoRadio) Start(ctx context.Context) error {
	if len(r.cfg.SSID) == 0 {
		return ErrInvalidConfig
	}
	r.started.Store(true)
	return nil
}

// Scan is not provided by the driver.
func (r *PicoRadio) Scan(ctx context.Context, cfg ScanConfig) ([]AccessPoint, error) {
	return nil, ErrScanUnsupported
}

// Connect joins the configured network.
func (r *PicoRadio) Connect(ctx context.Context) error {
	if !r.started.Load() {
		return ErrNotStarted
	}
	if r.cfg.Open() {
		r.logger.Info("joining open network:", slog.String("ssid", r.cfg.SSID))
	} else {
		r.logger.Info("joining WPA secure network", slog.String("ssid", r.cfg.SSID), slog.Int("passlen", len(r.cfg.Password)))
	}
	if err := r.dev.JoinWPA2(r.cfg.SSID, r.cfg.Password); err != nil {
		return err
	}
	r.stale.Store(false)
	r.joined.Store(true)
	r.logger.Info("wifi join success!", slog.String("mac", net.HardwareAddr(r.mac[:]).String()))
	return nil
}

// WaitDisconnect polls the driver link state. A gateway that fails to
// answer repeatedly counts as a lost link too.
func (r *PicoRadio) WaitDisconnect(ctx context.Context) error {
	w := linkWatch{
		poll:     r.poll,
		every:    r.every,
		failures: probeFailures,
		clock:    r.clock,
		logger:   r.logger,
	}
	return w.run(ctx, r.linkUp, r.probe, func() { r.stale.Store(true) })
}

// NIC returns the frame interface of the radio.
func (r *PicoRadio) NIC() NIC {
	return &picoNIC{r}
}

type picoNIC struct {
	r *PicoRadio
}

func (n *picoNIC) PollOne() (bool, error)   { return n.r.dev.PollOne() }
func (n *picoNIC) SendEth(pkt []byte) error { return n.r.dev.SendEth(pkt) }
func (n *picoNIC) LinkUp() bool             { return n.r.linkUp() }
