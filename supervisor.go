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
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Supervisor defaults
const (
	DefaultCooldown        = 5000 * time.Millisecond
	DefaultMaxStartRetries = 3
)

// errRestart signals a retryable start failure that has been waited out.
var errRestart = errors.New("restart")

// SupervisorConfig holds the parameters of the connection supervisor.
type SupervisorConfig struct {
	Credentials     Credentials
	Cooldown        time.Duration   // delay after failures and disconnects
	ScanMax         int             // cap on diagnostic scan results
	MaxStartRetries int             // retryable start failures tolerated; 0 for none, <0 for default
	Logger          *slog.Logger    // nil for no logging
	Clock           Clock           // nil for system clock
	OnState         func(ConnState) // called on observed state changes
}

func (cfg *SupervisorConfig) defaults() {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.ScanMax <= 0 {
		cfg.ScanMax = DefaultScanMax
	}
	if cfg.MaxStartRetries < 0 {
		cfg.MaxStartRetries = DefaultMaxStartRetries
	}
}

// Snapshot of supervisor activity
type Snapshot struct {
	State       ConnState // last observed state
	Since       time.Time // time of last state change
	Starts      uint32
	Connects    uint32
	Failures    uint32
	Disconnects uint32
	Scans       uint32
	LastScan    []AccessPoint
	LastError   string
}

// Supervisor keeps the station connected. It owns the radio for its
// entire lifetime.
type Supervisor struct {
	radio  Radio
	cfg    SupervisorConfig
	logger *slog.Logger
	clock  Clock

	starts      atomic.Uint32
	connects    atomic.Uint32
	failures    atomic.Uint32
	disconnects atomic.Uint32
	scans       atomic.Uint32
	startFails  int // only touched by Run

	mtx      sync.Mutex
	state    ConnState
	since    time.Time
	lastScan []AccessPoint
	lastErr  string
}

// NewSupervisor takes ownership of the radio.
func NewSupervisor(radio Radio, cfg SupervisorConfig) *Supervisor {
	cfg.defaults()
	return &Supervisor{
		radio:  radio,
		cfg:    cfg,
		logger: loggerOr(cfg.Logger),
		clock:  clockOr(cfg.Clock),
		state:  NotStarted,
	}
}

// Run the connect loop. It returns only on a fatal *Fault or when the
// context is cancelled.
func (s *Supervisor) Run(ctx context.Context) error {
	s.logger.Info("start connection task", slog.String("ssid", s.cfg.Credentials.SSID))
	for {
		if err := s.step(ctx); err != nil {
			var f *Fault
			if errors.As(err, &f) {
				s.logger.Error("radio fault", slog.String("op", f.Op), slog.String("err", f.Err.Error()))
			}
			return err
		}
	}
}

// step runs one pass of the connect loop.
func (s *Supervisor) step(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// (1) connected: wait for the link to drop
	if s.radio.StaState() == StaConnected {
		s.report(Connected)
		if err := s.radio.WaitDisconnect(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.setError(err)
			s.logger.Error("wait for disconnect failed", slog.String("err", err.Error()))
		} else {
			s.disconnects.Add(1)
			s.logger.Warn("wifi disconnected")
		}
		s.report(DeriveState(s.radio))
		return s.cooldown(ctx)
	}
	// (2) bring up the radio
	if ok, err := s.radio.IsStarted(); err != nil || !ok {
		s.report(NotStarted)
		if err = s.start(ctx); err != nil {
			if err == errRestart {
				return nil
			}
			return err
		}
	}
	// (3) join the network
	s.logger.Info("about to connect...")
	if err := s.radio.Connect(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.failures.Add(1)
		s.setError(err)
		s.logger.Error("failed to connect to wifi", slog.String("err", err.Error()))
		s.report(DeriveState(s.radio))
		return s.cooldown(ctx)
	}
	s.connects.Add(1)
	s.logger.Info("wifi connected!")
	s.report(DeriveState(s.radio))
	return nil
}

// start configures and starts the radio, followed by a diagnostic scan.
func (s *Supervisor) start(ctx context.Context) error {
	cfg := s.cfg.Credentials.ClientConfig()
	if err := cfg.Validate(); err != nil {
		return &Fault{Op: "config", Err: err}
	}
	if err := s.radio.SetConfig(cfg); err != nil {
		return s.fault(ctx, "config", err)
	}
	s.logger.Info("starting wifi")
	if err := s.radio.Start(ctx); err != nil {
		return s.fault(ctx, "start", err)
	}
	s.starts.Add(1)
	s.startFails = 0
	s.logger.Info("wifi started!")
	s.scan(ctx)
	return nil
}

// fault decides if a start failure is retried or fatal.
func (s *Supervisor) fault(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	f := &Fault{Op: op, Err: err}
	s.setError(f)
	if !f.Retryable() || s.startFails >= s.cfg.MaxStartRetries {
		return f
	}
	s.startFails++
	s.logger.Warn("radio busy, retrying",
		slog.String("op", op),
		slog.Int("attempt", s.startFails),
		slog.String("err", err.Error()))
	if err = s.cooldown(ctx); err != nil {
		return err
	}
	return errRestart
}

// scan once for diagnostics. Results never influence the target network.
func (s *Supervisor) scan(ctx context.Context) {
	s.logger.Info("scan")
	aps, err := s.radio.Scan(ctx, ScanConfig{Max: s.cfg.ScanMax})
	if err != nil {
		if errors.Is(err, ErrScanUnsupported) {
			s.logger.Debug("scan skipped", slog.String("err", err.Error()))
		} else {
			s.logger.Warn("scan failed", slog.String("err", err.Error()))
		}
		return
	}
	if len(aps) > s.cfg.ScanMax {
		aps = aps[:s.cfg.ScanMax]
	}
	s.scans.Add(1)
	for _, ap := range aps {
		s.logger.Info("access point", slog.Any("ap", ap))
	}
	s.mtx.Lock()
	s.lastScan = slices.Clone(aps)
	s.mtx.Unlock()
}

func (s *Supervisor) cooldown(ctx context.Context) error {
	return s.clock.Sleep(ctx, s.cfg.Cooldown)
}

func (s *Supervisor) setError(err error) {
	s.mtx.Lock()
	s.lastErr = err.Error()
	s.mtx.Unlock()
}

// report an observed state; the hook fires on changes only.
func (s *Supervisor) report(state ConnState) {
	s.mtx.Lock()
	changed := state != s.state || s.since.IsZero()
	if changed {
		s.state = state
		s.since = s.clock.Now()
	}
	hook := s.cfg.OnState
	s.mtx.Unlock()
	if changed {
		s.logger.Debug("connection state", slog.String("state", state.String()))
		if hook != nil {
			hook(state)
		}
	}
}

// Snapshot returns the current supervisor statistics.
func (s *Supervisor) Snapshot() Snapshot {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return Snapshot{
		State:       s.state,
		Since:       s.since,
		Starts:      s.starts.Load(),
		Connects:    s.connects.Load(),
		Failures:    s.failures.Load(),
		Disconnects: s.disconnects.Load(),
		Scans:       s.scans.Load(),
		LastScan:    slices.Clone(s.lastScan),
		LastError:   s.lastErr,
	}
}
