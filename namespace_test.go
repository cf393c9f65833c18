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
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newNamespace() (ns *Namespace, err error) {
	ns = NewNamespace("sys", "sys")
	if err = ns.NewFile("/readme", 0444, TextFile("Just a test...\n")); err != nil {
		return
	}
	if err = ns.NewDir("/sensors", 0777); err != nil {
		return
	}
	err = ns.NewFile("/sensors/temp", 0444, FuncFile(
		func() ([]byte, error) {
			s := fmt.Sprintf("%f\n", rand.Float32())
			return []byte(s), nil
		},
	))
	return
}

func TestNamespaceNew(t *testing.T) {
	ns, err := newNamespace()
	require.NoError(t, err)

	e, err := ns.Get("/readme")
	require.NoError(t, err)
	assert.False(t, e.IsDir())
	data, err := e.file.Read()
	require.NoError(t, err)
	assert.Equal(t, "Just a test...\n", string(data))

	e, err = ns.Get("/sensors/")
	require.NoError(t, err)
	assert.True(t, e.IsDir())
	assert.Equal(t, "sensors", e.Name())
}

func TestNamespaceErrors(t *testing.T) {
	ns, err := newNamespace()
	require.NoError(t, err)

	_, err = ns.Get("readme")
	assert.ErrorIs(t, err, errNoAbs)
	_, err = ns.Get("/missing")
	assert.ErrorIs(t, err, errNoFile)
	_, err = ns.Get("/readme/child")
	assert.ErrorIs(t, err, errNoDir)
	assert.ErrorIs(t, ns.NewFile("/readme", 0444, nil), errExists)
	assert.ErrorIs(t, ns.NewDir("/readme/sub", 0555), errNoDir)
	assert.ErrorIs(t, ns.NewDir("/a/b", 0555), errNoFile)
}

func TestNamespaceWalk(t *testing.T) {
	ns, err := newNamespace()
	require.NoError(t, err)

	root := ns.Root()
	q := ns.Walk(&root.ref.Qid, "sensors")
	require.NotNil(t, q)
	q = ns.Walk(q, "temp")
	require.NotNil(t, q)
	e, err := ns.Get("/sensors/temp")
	require.NoError(t, err)
	assert.Equal(t, e.ref.Qid.Path, q.Path)

	assert.Nil(t, ns.Walk(&root.ref.Qid, "nothing"))
	assert.Nil(t, ns.Walk(q, "below-a-file"))
}

func TestServeSessionsBounded(t *testing.T) {
	ns, err := newNamespace()
	require.NoError(t, err)
	lst, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	pool := NewArena[Session](1, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- ns.ServeSessions(ctx, lst, pool, SessionConfig{}) }()

	c1, err := net.Dial("tcp", lst.Addr().String())
	require.NoError(t, err)
	defer c1.Close()
	require.Eventually(t, func() bool { return pool.InUse() == 1 }, time.Second, time.Millisecond)

	// no slot left: the second connection is closed at once
	c2, err := net.Dial("tcp", lst.Addr().String())
	require.NoError(t, err)
	defer c2.Close()
	require.NoError(t, c2.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = c2.Read(make([]byte, 1))
	var ne net.Error
	if errors.As(err, &ne) {
		assert.False(t, ne.Timeout(), "refused connection left open")
	} else {
		assert.Error(t, err)
	}
	assert.Equal(t, 1, pool.InUse())

	cancel()
	select {
	case err = <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServeSessionsReleaseOnClose(t *testing.T) {
	ns, err := newNamespace()
	require.NoError(t, err)
	lst, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	pool := NewArena[Session](1, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ns.ServeSessions(ctx, lst, pool, SessionConfig{})

	for range 3 {
		c, err := net.Dial("tcp", lst.Addr().String())
		require.NoError(t, err)
		require.Eventually(t, func() bool { return pool.InUse() == 1 }, time.Second, time.Millisecond)
		// a client hanging up mid-message ends only its own session
		_, err = c.Write([]byte{0x13, 0, 0})
		require.NoError(t, err)
		require.NoError(t, c.Close())
		require.Eventually(t, func() bool { return pool.InUse() == 0 }, time.Second, time.Millisecond)
	}
}

// flakyListener fails a number of accepts before it is closed.
type flakyListener struct {
	net.Listener
	fails int
}

func (l *flakyListener) Accept() (net.Conn, error) {
	if l.fails == 0 {
		return nil, net.ErrClosed
	}
	l.fails--
	return nil, errors.New("too many open files")
}

func (l *flakyListener) Close() error { return nil }

func TestServeSessionsAcceptBackoff(t *testing.T) {
	ns, err := newNamespace()
	require.NoError(t, err)
	clk := newFakeClock()
	err = ns.ServeSessions(context.Background(), &flakyListener{fails: 10}, NewArena[Session](1, nil), SessionConfig{Clock: clk})
	assert.ErrorIs(t, err, net.ErrClosed)

	sleeps := clk.Sleeps()
	require.Len(t, sleeps, 10)
	assert.Equal(t, 5*time.Millisecond, sleeps[0])
	assert.Equal(t, 10*time.Millisecond, sleeps[1])
	assert.Equal(t, 20*time.Millisecond, sleeps[2])
	assert.Equal(t, time.Second, sleeps[9])
}
