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
	"sync/atomic"
	"time"
)

// NIC is the frame interface of the radio.
type NIC interface {
	// PollOne receives at most one frame; the frame is delivered to the
	// stack by the driver's receive handler.
	PollOne() (bool, error)
	// SendEth transmits an ethernet frame.
	SendEth(pkt []byte) error
	// LinkUp reports the data link state.
	LinkUp() bool
}

// FrameStack is the frame side of the network stack.
type FrameStack interface {
	// HandleEth writes the next outgoing frame into dst (n=0 if none).
	HandleEth(dst []byte) (int, error)
	// SetLinkUp propagates the data link state.
	SetLinkUp(up bool)
}

// LinkRunner defaults
const (
	DefaultStall = 51 * time.Millisecond
	runnerQueue  = 3
	runnerRetry  = 3
)

// RunnerConfig for the link runner
type RunnerConfig struct {
	MTU    int           // frame buffer size
	Stall  time.Duration // sleep when idle in both directions
	Logger *slog.Logger
	Clock  Clock
}

// RunnerStats counts forwarded frames.
type RunnerStats struct {
	Rx, Tx, Dropped, Errors uint32
}

// LinkRunner pumps frames between NIC and stack.
type LinkRunner struct {
	nic    NIC
	stack  FrameStack
	stall  time.Duration
	logger *slog.Logger
	clock  Clock

	queue   [runnerQueue][]byte
	lenBuf  [runnerQueue]int
	retries [runnerQueue]int

	rx, tx, dropped, errs atomic.Uint32
}

// NewLinkRunner allocates the frame queue once.
func NewLinkRunner(nic NIC, stack FrameStack, cfg RunnerConfig) *LinkRunner {
	r := &LinkRunner{
		nic:    nic,
		stack:  stack,
		stall:  cfg.Stall,
		logger: loggerOr(cfg.Logger),
		clock:  clockOr(cfg.Clock),
	}
	if r.stall <= 0 {
		r.stall = DefaultStall
	}
	mtu := cfg.MTU
	if mtu <= 0 {
		mtu = 1500
	}
	for i := range r.queue {
		r.queue[i] = make([]byte, mtu)
	}
	return r
}

// Run forwards frames until the context is cancelled.
func (r *LinkRunner) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !r.pump() {
			// avoid busy waiting when both Rx and Tx stall
			if err := r.clock.Sleep(ctx, r.stall); err != nil {
				return err
			}
		}
	}
}

// pump runs one round; it returns false if there was nothing to do.
func (r *LinkRunner) pump() (busy bool) {
	r.stack.SetLinkUp(r.nic.LinkUp())

	// poll for incoming packets
	gotPacket, err := r.nic.PollOne()
	if err != nil {
		r.errs.Add(1)
		r.logger.Debug("poll error", slog.String("err", err.Error()))
	}
	if gotPacket {
		r.rx.Add(1)
		busy = true
	}

	// queue packets to be sent
	for i := range r.queue {
		if r.retries[i] != 0 {
			continue // currently queued for retransmission
		}
		n, err := r.stack.HandleEth(r.queue[i])
		if err != nil {
			r.errs.Add(1)
			r.logger.Debug("stack error", slog.Int("n", n), slog.String("err", err.Error()))
			r.lenBuf[i] = 0
			continue
		}
		r.lenBuf[i] = n
		if n == 0 {
			break
		}
	}
	if r.lenBuf == [runnerQueue]int{} {
		return
	}

	// send queued packets
	for i := range r.queue {
		n := r.lenBuf[i]
		if n <= 0 {
			continue
		}
		if err := r.nic.SendEth(r.queue[i][:n]); err != nil {
			r.retries[i]++
			if r.retries[i] > runnerRetry {
				r.markSent(i)
				r.dropped.Add(1)
				r.logger.Debug("dropped outgoing packet", slog.String("err", err.Error()))
			}
			continue
		}
		r.markSent(i)
		r.tx.Add(1)
	}
	return true
}

func (r *LinkRunner) markSent(i int) {
	r.lenBuf[i] = 0
	r.retries[i] = 0
}

// Stats returns the frame counters.
func (r *LinkRunner) Stats() RunnerStats {
	return RunnerStats{
		Rx:      r.rx.Load(),
		Tx:      r.tx.Load(),
		Dropped: r.dropped.Load(),
		Errors:  r.errs.Load(),
	}
}
