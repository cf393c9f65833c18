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
	"log/slog"
	"net"
	"path"
	"runtime"
	"strings"
	"sync"
	"time"

	"git.sr.ht/~moody/ninep"
)

// Error messages
var (
	errNoRoot = errors.New("no root directory")
	errNoFile = errors.New("no such file or directory")
	errNoDir  = errors.New("not a directory")
	errNoAbs  = errors.New("no absolute path")
	errExists = errors.New("file exists")
)

//----------------------------------------------------------------------

// Entry in the filesystem
type Entry struct {
	ref      *ninep.Dir        // 9p reference
	children map[string]*Entry // list of children (for folders) or nil
	file     File              // file implementation or nil (for folders)
}

// IsDir returns true if entry is a directory
func (e *Entry) IsDir() bool {
	return e.children != nil
}

// Name of the entry
func (e *Entry) Name() string {
	return e.ref.Name
}

//----------------------------------------------------------------------

// Namespace is a read-only 9p filesystem tree.
// The tree must be complete before it is served.
type Namespace struct {
	ninep.NopFS                   // use default handlers where needed
	user, group string            // owner of all entries
	dict        map[uint64]*Entry // map Qid.Path to filesystem entry
	nextId      uint64            // next Qid.Path
}

// NewNamespace creates an empty filesystem owned by user/group.
func NewNamespace(user, group string) *Namespace {
	ns := &Namespace{
		user:  user,
		group: group,
		dict:  make(map[uint64]*Entry),
	}
	ns.add(ns.newEntry("/", 0555, nil))
	return ns
}

// Root directory of the namespace
func (ns *Namespace) Root() *Entry {
	return ns.dict[0]
}

// NewDir creates a directory at the given absolute path.
func (ns *Namespace) NewDir(p string, perm uint32) error {
	return ns.create(p, perm, nil)
}

// NewFile creates a file at the given absolute path.
func (ns *Namespace) NewFile(p string, perm uint32, impl File) error {
	if impl == nil {
		impl = TextFile("")
	}
	return ns.create(p, perm, impl)
}

func (ns *Namespace) create(p string, perm uint32, impl File) error {
	dir, name := path.Split(path.Clean(p))
	if len(name) == 0 {
		return errExists
	}
	parent, err := ns.Get(dir)
	if err != nil {
		return err
	}
	if !parent.IsDir() {
		return errNoDir
	}
	if _, ok := parent.children[name]; ok {
		return errExists
	}
	e := ns.newEntry(name, perm, impl)
	parent.children[name] = e
	ns.add(e)
	return nil
}

// Create a new entry in the filesystem.
// If impl is nil, the entry represents a directory; otherwise a file.
func (ns *Namespace) newEntry(name string, perm uint32, impl File) *Entry {
	e := new(Entry)
	kind := ninep.QTFile
	if impl == nil {
		kind = ninep.QTDir
		e.children = make(map[string]*Entry)
		perm |= ninep.DMDir
	} else {
		e.file = impl
	}
	e.ref = &ninep.Dir{
		Qid: ninep.Qid{
			Path: ns.nextId,
			Vers: 0,
			Type: byte(kind),
		},
		Name: name,
		Mode: perm,
		Uid:  ns.user,
		Gid:  ns.group,
		Muid: ns.user,
	}
	ns.nextId++
	return e
}

func (ns *Namespace) add(e *Entry) {
	ns.dict[e.ref.Path] = e
}

// Get entry for absolute path
func (ns *Namespace) Get(p string) (*Entry, error) {
	if len(p) == 0 || p[0] != '/' {
		return nil, errNoAbs
	}
	curr := ns.Root()
	for _, label := range strings.Split(p[1:], "/") {
		if len(label) == 0 {
			continue
		}
		if curr.children == nil {
			return nil, errNoDir
		}
		e, ok := curr.children[label]
		if !ok {
			return nil, errNoFile
		}
		curr = e
	}
	return curr, nil
}

//----------------------------------------------------------------------
// 9p handlers
//----------------------------------------------------------------------

// Attach to filesystem (return root entry)
func (ns *Namespace) Attach(t *ninep.Tattach) {
	if e, ok := ns.dict[0]; ok {
		t.Respond(&e.ref.Qid)
	} else {
		t.Err(errNoRoot)
	}
}

// Walk to named child of current entry
func (ns *Namespace) Walk(cur *ninep.Qid, next string) *ninep.Qid {
	e, ok := ns.dict[cur.Path]
	if !ok || e.children == nil {
		return nil
	}
	if c, ok := e.children[next]; ok {
		return &c.ref.Qid
	}
	return nil
}

// Open an entry
func (ns *Namespace) Open(t *ninep.Topen, q *ninep.Qid) {
	t.Respond(q, 8192)
}

// Read from an entry (file or directory)
func (ns *Namespace) Read(t *ninep.Tread, q *ninep.Qid) {
	e, ok := ns.dict[q.Path]
	if !ok {
		t.Err(errNoFile)
		return
	}
	if e.children != nil {
		var kids []ninep.Dir
		for _, c := range e.children {
			kids = append(kids, *c.ref)
		}
		ninep.ReadDir(t, kids)
		return
	}
	data, err := e.file.Read()
	if err != nil {
		t.Err(err)
	} else {
		ninep.ReadBuf(t, data)
	}
}

// Stat returns information about an entry
func (ns *Namespace) Stat(t *ninep.Tstat, q *ninep.Qid) {
	e, ok := ns.dict[q.Path]
	if !ok {
		t.Err(errNoFile)
	} else {
		t.Respond(e.ref)
	}
}

//----------------------------------------------------------------------

// Session is the arena element for a served 9p connection.
type Session struct {
	Remote string
	Since  time.Time
}

// Accept retry delays
const (
	acceptDelayMin = 5 * time.Millisecond
	acceptDelayMax = time.Second
)

// SessionConfig for ServeSessions
type SessionConfig struct {
	Logger *slog.Logger
	Clock  Clock
}

// ServeSessions accepts 9p connections on the listener. Each connection
// leases a slot of the arena until it is closed; connections beyond its
// capacity are refused. Failing accepts are retried with increasing
// delay.
func (ns *Namespace) ServeSessions(ctx context.Context, lst net.Listener, pool *Arena[Session], cfg SessionConfig) error {
	logger := loggerOr(cfg.Logger)
	clock := clockOr(cfg.Clock)
	go func() {
		<-ctx.Done()
		lst.Close()
	}()
	var delay time.Duration
	for {
		c, err := lst.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			delay = min(max(2*delay, acceptDelayMin), acceptDelayMax)
			logger.Warn("accept failed", slog.String("err", err.Error()), slog.Duration("retry", delay))
			if err = clock.Sleep(ctx, delay); err != nil {
				return err
			}
			continue
		}
		delay = 0
		slot, err := pool.Acquire()
		if err != nil {
			logger.Warn("session refused", slog.String("err", err.Error()))
			c.Close()
			continue
		}
		slot.Value = Session{
			Remote: c.RemoteAddr().String(),
			Since:  clock.Now(),
		}
		logger.Info("session opened", slog.String("remote", slot.Value.Remote), slog.Int("slot", slot.Index()))
		go ns.serve(&sessionConn{Conn: c}, slot, logger)
	}
}

// serve a 9p session until the peer goes away.
func (ns *Namespace) serve(c *sessionConn, slot *Slot[Session], logger *slog.Logger) {
	defer func() {
		c.Close()
		slot.Release()
		logger.Info("session closed", slog.String("remote", slot.Value.Remote))
	}()
	srv := ninep.NewSrv(func() ninep.FS { return ns })
	srv.ServeIO(c, c)
}

// sessionConn ends the serving goroutine when the connection fails; the
// 9p server would terminate the process instead.
type sessionConn struct {
	net.Conn
	once sync.Once
}

// Read exits the calling goroutine on error, running its deferred calls.
func (c *sessionConn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	if err != nil {
		c.Close()
		runtime.Goexit()
	}
	return n, nil
}

// Write drops responses to a closed connection; the next read ends the
// session.
func (c *sessionConn) Write(p []byte) (int, error) {
	if _, err := c.Conn.Write(p); err != nil {
		c.Close()
	}
	return len(p), nil
}

// Close the connection once.
func (c *sessionConn) Close() (err error) {
	c.once.Do(func() { err = c.Conn.Close() })
	return
}
