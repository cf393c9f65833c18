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
)

// ErrNoCredentials is returned when no network name is configured.
var ErrNoCredentials = errors.New("missing network credentials")

// BootConfig wires the core tasks.
type BootConfig struct {
	Credentials Credentials
	Radio       Radio      // moved into the supervisor
	Stack       NetStack   // shared stack handle
	NIC         NIC        // frame interface (nil if the OS pumps frames)
	Frames      FrameStack // frame side of Stack (required with NIC)
	Sockets     int        // arena capacity
	Supervisor  SupervisorConfig
	Runner      RunnerConfig
	Gate        GateConfig
	Logger      *slog.Logger
	Clock       Clock
	OnFatal     func(error) // called if the supervisor ends with a fault
}

// System is the running core after the gate has opened.
type System struct {
	Supervisor *Supervisor
	Runner     *LinkRunner // nil without NIC
	Stack      NetStack
	Sessions   *Arena[Session]
	Address    AddressConfig // address seen when the gate opened
}

// Boot spawns the connection supervisor and link runner and blocks until
// the stack is usable. Application tasks must only be started after Boot
// returned without error.
func Boot(ctx context.Context, cfg BootConfig) (*System, error) {
	if len(cfg.Credentials.SSID) == 0 {
		return nil, ErrNoCredentials
	}
	if err := cfg.Credentials.ClientConfig().Validate(); err != nil {
		return nil, err
	}
	if cfg.Radio == nil || cfg.Stack == nil {
		return nil, errors.New("boot: radio and stack required")
	}
	if cfg.NIC != nil && cfg.Frames == nil {
		return nil, errors.New("boot: frame stack required for NIC")
	}
	logger := loggerOr(cfg.Logger)
	clock := clockOr(cfg.Clock)

	// static resources are allocated before any task runs
	sys := &System{
		Stack:    cfg.Stack,
		Sessions: NewArena[Session](cfg.Sockets, nil),
	}

	sc := cfg.Supervisor
	sc.Credentials = cfg.Credentials
	if sc.Logger == nil {
		sc.Logger = logger
	}
	if sc.Clock == nil {
		sc.Clock = clock
	}
	sys.Supervisor = NewSupervisor(cfg.Radio, sc)
	go func() {
		err := sys.Supervisor.Run(ctx)
		if err == nil || ctx.Err() != nil {
			return
		}
		if cfg.OnFatal != nil {
			cfg.OnFatal(err)
			return
		}
		logger.Error("connection task terminated", slog.String("err", err.Error()))
	}()

	if cfg.NIC != nil {
		rc := cfg.Runner
		if rc.Logger == nil {
			rc.Logger = logger
		}
		if rc.Clock == nil {
			rc.Clock = clock
		}
		sys.Runner = NewLinkRunner(cfg.NIC, cfg.Frames, rc)
		go sys.Runner.Run(ctx)
	}

	gc := cfg.Gate
	if gc.Logger == nil {
		gc.Logger = logger
	}
	if gc.Clock == nil {
		gc.Clock = clock
	}
	addr, err := WaitReady(ctx, cfg.Stack, gc)
	if err != nil {
		return sys, err
	}
	sys.Address = addr
	return sys, nil
}
