// Package hub holds the per-channel connection registries. A Registry maps
// a user to the set of live push connections for that user and is shared
// between stream handlers, the dispatcher and the liveness sweep.
package hub

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Writer is the send capability of one push connection. A failed write
// marks the connection inactive; there are no retries.
type Writer interface {
	Write(frame []byte) error
}

// Connection is one live push stream to one browser tab or device. The
// Registry owns it for the lifetime of the stream; only the Registry and
// the sweep may flip its active flag.
type Connection struct {
	id     uuid.UUID
	userID int64
	writer Writer

	active   bool
	lastSeen time.Time

	done      chan struct{}
	closeOnce sync.Once
}

func NewConnection(userID int64, w Writer) *Connection {
	return &Connection{
		id:     uuid.New(),
		userID: userID,
		writer: w,
		done:   make(chan struct{}),
	}
}

func (c *Connection) ID() uuid.UUID { return c.id }

func (c *Connection) UserID() int64 { return c.userID }

// Done is closed when the Registry drops the connection, either on
// unregister or when the idle sweep evicts it. Stream handlers select on
// it alongside the request context.
func (c *Connection) Done() <-chan struct{} { return c.done }

func (c *Connection) markDone() {
	c.closeOnce.Do(func() { close(c.done) })
}

type Registry struct {
	mu    sync.RWMutex
	conns map[int64]map[*Connection]struct{}
	now   func() time.Time
}

func NewRegistry() *Registry {
	return NewRegistryWithNow(time.Now)
}

func NewRegistryWithNow(now func() time.Time) *Registry {
	return &Registry{
		conns: make(map[int64]map[*Connection]struct{}),
		now:   now,
	}
}

// Register adds conn under its user. The connection starts active with a
// fresh activity timestamp.
func (r *Registry) Register(conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn.active = true
	conn.lastSeen = r.now()
	if r.conns[conn.userID] == nil {
		r.conns[conn.userID] = make(map[*Connection]struct{})
	}
	r.conns[conn.userID][conn] = struct{}{}
}

// Unregister removes a single connection. An emptied user entry is deleted,
// never left behind as an empty set.
func (r *Registry) Unregister(conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(conn)
}

func (r *Registry) removeLocked(conn *Connection) {
	set := r.conns[conn.userID]
	if set == nil {
		return
	}
	if _, ok := set[conn]; !ok {
		return
	}
	conn.active = false
	delete(set, conn)
	if len(set) == 0 {
		delete(r.conns, conn.userID)
	}
	conn.markDone()
}

// SendUser delivers frame to every live connection of userID. A write
// failure on one connection marks it inactive and removal follows, but
// never aborts delivery to the remaining connections.
func (r *Registry) SendUser(userID int64, frame []byte) {
	r.deliver(r.snapshotUser(userID), frame)
}

// SendAll delivers frame to every live connection of every user.
func (r *Registry) SendAll(frame []byte) {
	r.deliver(r.snapshotAll(), frame)
}

// deliver writes outside the lock, then settles results in one pass:
// successful sends refresh lastSeen, failed ones are pruned.
func (r *Registry) deliver(conns []*Connection, frame []byte) {
	if len(conns) == 0 {
		return
	}

	var failed, sent []*Connection
	for _, c := range conns {
		if err := c.writer.Write(frame); err != nil {
			failed = append(failed, c)
		} else {
			sent = append(sent, c)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	for _, c := range sent {
		c.lastSeen = now
	}
	for _, c := range failed {
		r.removeLocked(c)
	}
}

// snapshotUser copies the user's live set so delivery never iterates a set
// that registration or the sweep is mutating.
func (r *Registry) snapshotUser(userID int64) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.conns[userID]
	conns := make([]*Connection, 0, len(set))
	for c := range set {
		if c.active {
			conns = append(conns, c)
		}
	}
	return conns
}

func (r *Registry) snapshotAll() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var conns []*Connection
	for _, set := range r.conns {
		for c := range set {
			if c.active {
				conns = append(conns, c)
			}
		}
	}
	return conns
}

// Sweep demotes connections idle beyond maxIdle and prunes them. Activity
// means a successful send or the initial connect; sweeping itself never
// refreshes the timestamp.
func (r *Registry) Sweep(maxIdle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var idle []*Connection
	for _, set := range r.conns {
		for c := range set {
			if now.Sub(c.lastSeen) > maxIdle {
				c.active = false
				idle = append(idle, c)
			}
		}
	}
	for _, c := range idle {
		r.removeLocked(c)
	}
	return len(idle)
}

// OnlineUserIDs returns the users that currently hold at least one live
// connection, in ascending order.
func (r *Registry) OnlineUserIDs() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]int64, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// HasUser reports whether userID has any registered connection.
func (r *Registry) HasUser(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[userID]
	return ok
}

// Len returns the total number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, set := range r.conns {
		total += len(set)
	}
	return total
}
