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

// ConnState is the connection state of the station. It is never stored:
// every query derives it from the radio.
type ConnState int

// Connection states
const (
	NotStarted ConnState = iota
	Started
	Connected
	Disconnected
)

// String returns a human-readable connection state.
func (s ConnState) String() string {
	switch s {
	case NotStarted:
		return "not-started"
	case Started:
		return "started"
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	}
	return "unknown"
}

// DeriveState computes the connection state from the reported station
// state and the started flag. A failing started query counts as not
// started.
func DeriveState(r Radio) ConnState {
	sta := r.StaState()
	if sta == StaConnected {
		return Connected
	}
	if ok, err := r.IsStarted(); err != nil || !ok {
		return NotStarted
	}
	if sta == StaDisconnected {
		return Disconnected
	}
	return Started
}
