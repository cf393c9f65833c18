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
	"errors"
	"sync"
)

// DefaultSockets is the default arena capacity.
const DefaultSockets = 3

// ErrArenaExhausted is returned when all slots are in use.
var ErrArenaExhausted = errors.New("resource arena exhausted")

// Arena is a fixed-capacity pool of pre-allocated resources. It is
// created once during boot and handed to the tasks that need it.
type Arena[T any] struct {
	mtx   sync.Mutex
	slots []Slot[T]
	free  []int // stack of free slot indices
}

// Slot is a leased arena element.
type Slot[T any] struct {
	arena *Arena[T]
	idx   int
	used  bool
	Value T
}

// NewArena allocates n slots, each initialized by init (if not nil).
func NewArena[T any](n int, init func(i int) T) *Arena[T] {
	if n <= 0 {
		n = DefaultSockets
	}
	a := &Arena[T]{
		slots: make([]Slot[T], n),
		free:  make([]int, 0, n),
	}
	for i := range a.slots {
		a.slots[i].arena = a
		a.slots[i].idx = i
		if init != nil {
			a.slots[i].Value = init(i)
		}
	}
	for i := n - 1; i >= 0; i-- {
		a.free = append(a.free, i)
	}
	return a
}

// Acquire a free slot.
func (a *Arena[T]) Acquire() (*Slot[T], error) {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	n := len(a.free)
	if n == 0 {
		return nil, ErrArenaExhausted
	}
	s := &a.slots[a.free[n-1]]
	a.free = a.free[:n-1]
	s.used = true
	return s, nil
}

// Cap returns the number of slots.
func (a *Arena[T]) Cap() int {
	return len(a.slots)
}

// InUse returns the number of leased slots.
func (a *Arena[T]) InUse() int {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	return len(a.slots) - len(a.free)
}

// Index of the slot in its arena.
func (s *Slot[T]) Index() int {
	return s.idx
}

// Release returns the slot to its arena. Releasing twice is a no-op.
func (s *Slot[T]) Release() {
	a := s.arena
	a.mtx.Lock()
	defer a.mtx.Unlock()
	if !s.used {
		return
	}
	s.used = false
	a.free = append(a.free, s.idx)
}
