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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readFile(t *testing.T, ns *Namespace, p string) string {
	t.Helper()
	e, err := ns.Get(p)
	require.NoError(t, err)
	data, err := e.file.Read()
	require.NoError(t, err)
	return string(data)
}

func TestDiagNamespace(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	radio := newFakeRadio()
	radio.aps = accessPoints(2)
	radio.onConnect = func(int) { cancel() }
	sup := newTestSupervisor(radio, newFakeClock())
	require.ErrorIs(t, sup.Run(ctx), context.Canceled)

	stack := new(fakeStack)
	ns, err := NewDiagNamespace(sup, stack, nil)
	require.NoError(t, err)

	assert.Equal(t, "connected since 2025-01-01T00:00:00Z\n", readFile(t, ns, "/net/state"))
	assert.Equal(t, "down\n", readFile(t, ns, "/net/link"))
	assert.Equal(t, "none\n", readFile(t, ns, "/net/addr"))
	assert.Equal(t,
		"\"ap0\" 02:00:00:00:00:00 1 0 \n\"ap1\" 02:00:00:00:00:01 2 0 \n",
		readFile(t, ns, "/net/scan"))
	assert.Equal(t, "starts 1\nconnects 1\nfailures 0\ndisconnects 0\nscans 1\n", readFile(t, ns, "/net/stats"))
	_, err = ns.Get("/net/frames")
	assert.ErrorIs(t, err, errNoFile)

	// files are generated on every read
	a := testAddr
	stack.up, stack.addr = true, &a
	assert.Equal(t, "up\n", readFile(t, ns, "/net/link"))
	assert.Equal(t, "192.168.1.42/24 via 192.168.1.1 dns 192.168.1.1\n", readFile(t, ns, "/net/addr"))
}

func TestDiagFrames(t *testing.T) {
	nic := &fakeNIC{rx: 2}
	runner := NewLinkRunner(nic, new(fakeFrames), RunnerConfig{})
	runner.pump()

	sup := newTestSupervisor(newFakeRadio(), newFakeClock())
	ns, err := NewDiagNamespace(sup, new(fakeStack), runner)
	require.NoError(t, err)
	assert.Equal(t, "rx 1\ntx 0\ndropped 0\nerrors 0\n", readFile(t, ns, "/net/frames"))
	assert.Equal(t, "not-started\n", readFile(t, ns, "/net/state"))
}
