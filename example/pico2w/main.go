//go:build rp2350

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

package main

import (
	"context"
	"log/slog"
	"machine"
	"strconv"
	"time"

	"github.com/bfix/wlink"
	"github.com/soypat/cyw43439"
)

// Build-time configuration:
//
//	tinygo flash -target pico2-w -ldflags "-X main.SSID=... -X main.Passwd=..." ./example/pico2w
var (
	SSID   string
	Passwd string
	Host   string = "wlink"
	IP     string
	Port   string = "564"
)

func main() {
	// access device
	dev := wlink.InitDevice()
	state := wlink.NewStatus(dev)
	defer state.Trap(30 * time.Second)
	time.Sleep(2 * time.Second)

	logger := slog.New(slog.NewTextHandler(machine.Serial, &slog.HandlerOptions{Level: slog.LevelDebug}))

	if len(SSID) == 0 {
		logger.Error("no SSID configured (-X main.SSID=...)")
		state.Set(wlink.StatCONFIG, 0)
		select {}
	}
	port, err := strconv.ParseUint(Port, 10, 16)
	if err != nil {
		state.Set(wlink.StatPORT, 0)
		return
	}

	// radio and stack
	radio, err := wlink.NewPicoRadio(dev, wlink.PicoRadioConfig{Logger: logger})
	if err != nil {
		logger.Error("radio init failed", slog.String("err", err.Error()))
		state.Set(wlink.StatDEV, 0)
		return
	}
	stack, err := wlink.NewSeqsStack(radio.HardwareAddr(), wlink.SeqsStackConfig{
		Hostname:    Host,
		RequestedIP: IP,
		TCPPorts:    1,
		MTU:         cyw43439.MTU,
		Logger:      logger,
	})
	if err != nil {
		state.Set(wlink.StatCONFIG, 0)
		return
	}
	stack.Attach(radio)
	radio.SetProbe(stack.ProbeGateway)

	// connect and wait for an address
	state.Set(wlink.StatLINK, 0)
	ctx := context.Background()
	sys, err := wlink.Boot(ctx, wlink.BootConfig{
		Credentials: wlink.Credentials{SSID: SSID, Passphrase: Passwd},
		Radio:       radio,
		Stack:       stack,
		NIC:         radio.NIC(),
		Frames:      stack,
		Sockets:     wlink.DefaultSockets,
		Supervisor: wlink.SupervisorConfig{
			MaxStartRetries: wlink.DefaultMaxStartRetries,
			OnState:         state.Track,
		},
		Runner: wlink.RunnerConfig{MTU: cyw43439.MTU},
		Logger: logger,
		OnFatal: func(err error) {
			logger.Error("wifi failed - waiting for reset...", slog.String("err", err.Error()))
			state.Set(wlink.StatSTART, 0)
		},
	})
	if err != nil {
		state.Set(wlink.StatDHCP, 0)
		return
	}

	// serve diagnostics via 9p
	ns, err := wlink.NewDiagNamespace(sys.Supervisor, stack, sys.Runner)
	if err != nil {
		state.Set(wlink.StatSRV, 0)
		return
	}
	lst, stat := wlink.NewListener(stack, uint16(port), sys.Sessions.Cap())
	if stat != wlink.StatOK {
		state.Set(stat, 0)
		return
	}
	state.Set(wlink.StatOK, 0)
	logger.Info("serving 9p", slog.String("addr", sys.Address.Address.Addr().String()), slog.Uint64("port", port))
	if err = ns.ServeSessions(ctx, lst, sys.Sessions, wlink.SessionConfig{Logger: logger}); err != nil {
		state.Set(wlink.StatSRV, 0)
	}

	// srv tcp!<host>!564 wlink
	// mount /srv/wlink /n/wlink
	// cat /n/wlink/net/state
}
