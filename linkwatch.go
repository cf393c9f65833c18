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
	"log/slog"
	"time"
)

// linkWatch follows the link of a joined station. The link counts as
// lost when the driver drops it or when the reachability check fails
// a number of times in a row.
type linkWatch struct {
	poll     time.Duration // link state poll interval
	every    time.Duration // check interval
	failures int           // consecutive check failures that mark the link stale
	clock    Clock
	logger   *slog.Logger
}

// run returns when up reports false. The stale callback is invoked once
// the check failed often enough; up is expected to honor it.
func (w linkWatch) run(ctx context.Context, up func() bool, check func() error, stale func()) error {
	fails := 0
	next := w.clock.Now().Add(w.every)
	for up() {
		if err := w.clock.Sleep(ctx, w.poll); err != nil {
			return err
		}
		if check == nil || w.clock.Now().Before(next) {
			continue
		}
		next = w.clock.Now().Add(w.every)
		if err := check(); err != nil {
			fails++
			w.logger.Debug("gateway check failed", slog.Int("fails", fails), slog.String("err", err.Error()))
			if fails >= w.failures {
				stale()
			}
		} else {
			fails = 0
		}
	}
	w.logger.Warn("link lost")
	return nil
}
