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
	"fmt"
	"sync/atomic"
	"time"
)

// Status codes (number of LED blinks)
const (
	StatUNK     = iota // unknown status (init)
	StatOK             // processing active
	StatDEV            // device failure
	StatCONFIG         // invalid or missing credentials
	StatSTART          // radio failed to start
	StatLINK           // no wifi link
	StatDHCP           // no address assigned
	StatLISTEN1        // failed to create listener
	StatLISTEN2        // failed to initialize listener
	StatPORT           // invalid port specified
	StatSRV            // can't serve namespace
	StatEXCP           // exception (panic) occured
)

// blink timing
var (
	blinkPause = 5 * time.Second
	blinkLong  = [2]time.Duration{1000 * time.Millisecond, 300 * time.Millisecond}
	blinkShort = [2]time.Duration{150 * time.Millisecond, 150 * time.Millisecond}
)

// Status is reported by blinking the device LED.
type Status struct {
	dev    Device       // reference to device
	clock  Clock        // timer source
	curr   atomic.Int32 // current state
	repeat atomic.Int32 // current repeat counter
}

// NewStatus starts the status blinker for a device.
func NewStatus(dev Device) (state *Status) {
	state = newStatus(dev, nil)
	go func() {
		for state.blink(context.Background()) == nil {
		}
	}()
	return
}

func newStatus(dev Device, clock Clock) *Status {
	state := &Status{
		dev:   dev,
		clock: clockOr(clock),
	}
	state.curr.Store(StatOK)
	return state
}

// blink LED <state>; <repeat> times
func (state *Status) blink(ctx context.Context) (err error) {
	led := func(on bool, d time.Duration) {
		if err == nil {
			state.dev.LED(on)
			err = state.clock.Sleep(ctx, d)
		}
	}
	if err = state.clock.Sleep(ctx, blinkPause); err != nil {
		return
	}
	num := state.curr.Load()
	for ; num > 5; num -= 5 {
		led(true, blinkLong[0])
		led(false, blinkLong[1])
	}
	for range num {
		led(true, blinkShort[0])
		led(false, blinkShort[1])
	}
	if state.repeat.Add(-1) == 0 {
		state.curr.Store(StatOK)
	}
	return
}

// Set status code; the code is shown <num> times (0 = until changed).
func (state *Status) Set(flag, num int) {
	if state != nil {
		state.curr.Store(int32(flag))
		state.repeat.Store(int32(num))
	}
}

// Get status code and remaining repeats.
func (state *Status) Get() (int, int) {
	return int(state.curr.Load()), int(state.repeat.Load())
}

// Track a connection state change.
func (state *Status) Track(cs ConnState) {
	if cs == Connected {
		state.Set(StatOK, 0)
	} else {
		state.Set(StatLINK, 0)
	}
}

// Trap panics of the calling function; use as deferred call.
func (state *Status) Trap(t time.Duration) {
	s, _ := state.Get()
	if r := recover(); r != nil {
		fmt.Printf("EXCP: %v\n", r)
		if s == StatOK {
			state.Set(StatEXCP, 0)
		}
	} else if s == StatOK {
		state.Set(StatUNK, 0)
	}
	time.Sleep(t)
}
