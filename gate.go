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
	"time"
)

// DefaultPollInterval of the readiness gate
const DefaultPollInterval = 500 * time.Millisecond

// ErrNotReady is returned if the stack did not become usable in time.
var ErrNotReady = errors.New("network stack not ready")

// GateConfig for WaitReady
type GateConfig struct {
	Interval time.Duration // poll interval
	Timeout  time.Duration // 0 waits forever
	Logger   *slog.Logger
	Clock    Clock
}

// WaitReady blocks until the stack has an active link and an IPv4
// configuration, both observed in the same poll. It returns the address
// configuration found.
func WaitReady(ctx context.Context, stack NetStack, cfg GateConfig) (AddressConfig, error) {
	logger := loggerOr(cfg.Logger)
	clock := clockOr(cfg.Clock)
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	start := clock.Now()
	phase := ""
	for {
		up := stack.LinkUp()
		addr, ok := stack.IPv4Config()
		if up && ok {
			logger.Info("got IP", slog.String("addr", addr.String()))
			return addr, nil
		}
		wait := "link"
		if up {
			wait = "address"
		}
		if wait != phase {
			phase = wait
			logger.Info("waiting for " + wait)
		}
		if cfg.Timeout > 0 && clock.Now().Sub(start) >= cfg.Timeout {
			return AddressConfig{}, fmt.Errorf("%w: no %s after %s", ErrNotReady, wait, cfg.Timeout)
		}
		if err := clock.Sleep(ctx, interval); err != nil {
			return AddressConfig{}, err
		}
	}
}
