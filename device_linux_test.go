//go:build !rp2350

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
	"net"
	"net/netip"
	"strings"
	"testing"

	"github.com/mdlayher/wifi"
	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

const routeTable = `Iface	Destination	Gateway 	Flags	RefCnt	Use	Metric	Mask		MTU	Window	IRTT
eth0	00000000	0101A8C0	0003	0	0	100	00000000	0	0	0
wlan0	0001A8C0	00000000	0001	0	0	600	00FFFFFF	0	0	0
wlan0	00000000	FE01A8C0	0003	0	0	600	00000000	0	0	0
`

func TestParseRoutes(t *testing.T) {
	gw, ok := parseRoutes(strings.NewReader(routeTable), "wlan0")
	assert.True(t, ok)
	assert.Equal(t, netip.MustParseAddr("192.168.1.254"), gw)

	gw, ok = parseRoutes(strings.NewReader(routeTable), "eth0")
	assert.True(t, ok)
	assert.Equal(t, netip.MustParseAddr("192.168.1.1"), gw)

	_, ok = parseRoutes(strings.NewReader(routeTable), "wlan1")
	assert.False(t, ok)
}

func TestParseResolv(t *testing.T) {
	conf := "# generated\nsearch lan\nnameserver 192.168.1.1\nnameserver fe80::1\nnameserver 9.9.9.9\n"
	assert.Equal(t, []netip.Addr{
		netip.MustParseAddr("192.168.1.1"),
		netip.MustParseAddr("9.9.9.9"),
	}, parseResolv(strings.NewReader(conf)))
}

func TestFreqChannel(t *testing.T) {
	for mhz, ch := range map[int]int{
		2412: 1,
		2437: 6,
		2472: 13,
		2484: 14,
		5180: 36,
		5825: 165,
		5955: 1,
		6115: 33,
		900:  0,
	} {
		assert.Equal(t, ch, freqChannel(mhz), "%d MHz", mhz)
	}
}

func TestClassify(t *testing.T) {
	assert.ErrorIs(t, classify("connect", unix.EBUSY), ErrBusy)
	assert.ErrorIs(t, classify("scan", unix.EAGAIN), ErrBusy)
	err := classify("connect", unix.EPERM)
	assert.False(t, errors.Is(err, ErrBusy))
	assert.ErrorIs(t, err, unix.EPERM)
}

func TestAccessPoints(t *testing.T) {
	list := []*wifi.BSS{
		{SSID: "weak", BSSID: net.HardwareAddr{2, 0, 0, 0, 0, 1}, Frequency: 2412, Signal: -8000},
		{SSID: "strong", BSSID: net.HardwareAddr{2, 0, 0, 0, 0, 2}, Frequency: 5180, Signal: -4200,
			RSN: wifi.RSNInfo{Version: 1, AKMs: []wifi.RSNAKM{wifi.RSNAkmPSK, wifi.RSNAkmSAE}}},
		{SSID: "middle", BSSID: net.HardwareAddr{2, 0, 0, 0, 0, 3}, Frequency: 2437, Signal: -6000,
			RSN: wifi.RSNInfo{Version: 1, AKMs: []wifi.RSNAKM{wifi.RSNAkmPSK}}},
	}
	aps := accessPoints(list, 2)
	assert.Equal(t, []AccessPoint{
		{SSID: "strong", BSSID: list[1].BSSID, Channel: 36, Signal: -42, Auth: "PSK+SAE"},
		{SSID: "middle", BSSID: list[2].BSSID, Channel: 6, Signal: -60, Auth: "PSK"},
	}, aps)
	assert.Equal(t, "weak", list[0].SSID, "input reordered")

	all := accessPoints(list, 0)
	assert.Len(t, all, 3)
	assert.Equal(t, "open", all[2].Auth)
}
