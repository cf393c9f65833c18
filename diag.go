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
	"fmt"
	"strings"
	"time"
)

const diagReadme = `wlink diagnostics
  /net/state   connection state and time of last change
  /net/link    data link up/down
  /net/addr    IPv4 configuration
  /net/scan    access points seen by the last scan
  /net/stats   supervisor counters
  /net/frames  link runner counters
`

// NewDiagNamespace builds the read-only diagnostics tree. The runner
// may be nil if frames are not pumped by this process.
func NewDiagNamespace(sup *Supervisor, stack NetStack, runner *LinkRunner) (ns *Namespace, err error) {
	ns = NewNamespace("sys", "sys")
	if err = ns.NewFile("/readme", 0444, TextFile(diagReadme)); err != nil {
		return
	}
	if err = ns.NewDir("/net", 0555); err != nil {
		return
	}
	files := map[string]Report{
		"state": func() string { return formatState(sup.Snapshot()) },
		"link":  func() string { return formatLink(stack) },
		"addr":  func() string { return formatAddr(stack) },
		"scan":  func() string { return formatScan(sup.Snapshot().LastScan) },
		"stats": func() string { return formatStats(sup.Snapshot()) },
	}
	if runner != nil {
		files["frames"] = func() string { return formatFrames(runner.Stats()) }
	}
	for name, f := range files {
		if err = ns.NewFile("/net/"+name, 0444, f); err != nil {
			return
		}
	}
	return
}

func formatState(s Snapshot) string {
	if s.Since.IsZero() {
		return s.State.String() + "\n"
	}
	return fmt.Sprintf("%s since %s\n", s.State, s.Since.UTC().Format(time.RFC3339))
}

func formatLink(stack NetStack) string {
	if stack.LinkUp() {
		return "up\n"
	}
	return "down\n"
}

func formatAddr(stack NetStack) string {
	cfg, ok := stack.IPv4Config()
	if !ok {
		return "none\n"
	}
	return cfg.String() + "\n"
}

func formatScan(aps []AccessPoint) string {
	var b strings.Builder
	for _, ap := range aps {
		fmt.Fprintf(&b, "%q %s %d %d %s\n", ap.SSID, ap.BSSID, ap.Channel, ap.Signal, ap.Auth)
	}
	return b.String()
}

func formatStats(s Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "starts %d\n", s.Starts)
	fmt.Fprintf(&b, "connects %d\n", s.Connects)
	fmt.Fprintf(&b, "failures %d\n", s.Failures)
	fmt.Fprintf(&b, "disconnects %d\n", s.Disconnects)
	fmt.Fprintf(&b, "scans %d\n", s.Scans)
	if len(s.LastError) > 0 {
		fmt.Fprintf(&b, "error %s\n", s.LastError)
	}
	return b.String()
}

func formatFrames(s RunnerStats) string {
	return fmt.Sprintf("rx %d\ntx %d\ndropped %d\nerrors %d\n", s.Rx, s.Tx, s.Dropped, s.Errors)
}
