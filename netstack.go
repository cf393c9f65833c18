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
	"net/netip"
	"strings"
)

// NetStack is the shared view on the IP stack. Implementations are safe
// for concurrent use; the handle may be copied freely.
type NetStack interface {
	// LinkUp reports an active data link.
	LinkUp() bool
	// IPv4Config returns the assigned address configuration (if any).
	IPv4Config() (AddressConfig, bool)
}

// AddressConfig is an IPv4 address configuration.
type AddressConfig struct {
	Address netip.Prefix // own address and prefix length
	Gateway netip.Addr   // default gateway (if known)
	DNS     []netip.Addr // name servers
	Static  bool         // not obtained via DHCP
}

// String returns a one-line summary.
func (c AddressConfig) String() string {
	var b strings.Builder
	b.WriteString(c.Address.String())
	if c.Gateway.IsValid() {
		b.WriteString(" via ")
		b.WriteString(c.Gateway.String())
	}
	for i, ns := range c.DNS {
		if i == 0 {
			b.WriteString(" dns")
		}
		b.WriteByte(' ')
		b.WriteString(ns.String())
	}
	if c.Static {
		b.WriteString(" (static)")
	}
	return b.String()
}
