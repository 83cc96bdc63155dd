package registry

import (
	"sync"

	"github.com/google/uuid"
)

// Conn is the send capability of one physical connection. The registry entry
// is its exclusive owner; the hub uses it only to enqueue outgoing bytes.
type Conn interface {
	Send(data []byte) error
}

// Client is one admitted peer. Fields are set once at admission and never
// mutated afterwards.
type Client struct {
	// ID is the clientid from the upgrade request. Not unique across entries.
	ID string

	// Shard is the shardid from the upgrade request.
	Shard string

	// ConnectionID uniquely identifies this physical connection for the
	// registry's lifetime.
	ConnectionID string

	// Conn is the transport handle for this connection.
	Conn Conn
}

// NewConnectionID generates a connection id of the form
// "{id}-{shard}-{suffix}" where the suffix guarantees uniqueness.
func NewConnectionID(id, shard string) string {
	return id + "-" + shard + "-" + uuid.NewString()
}

// Registry is a thread-safe set of connected clients keyed by slot, with a
// secondary index from connection id to slot. Insert and Remove are
// linearizable with respect to each other and to reads; Filter returns a
// snapshot so a concurrent remove cannot corrupt a caller's traversal.
type Registry struct {
	mu       sync.RWMutex
	nextSlot uint64
	slots    map[uint64]*Client
	byConn   map[string]uint64
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		slots:  make(map[uint64]*Client),
		byConn: make(map[string]uint64),
	}
}

// Insert stores c in a fresh slot and returns the slot key. It never
// overwrites an existing slot.
func (r *Registry) Insert(c *Client) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot := r.nextSlot
	r.nextSlot++
	r.slots[slot] = c
	r.byConn[c.ConnectionID] = slot
	return slot
}

// FindByConnectionID returns the client for the given connection id.
func (r *Registry) FindByConnectionID(connectionID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	slot, ok := r.byConn[connectionID]
	if !ok {
		return nil, false
	}
	c, ok := r.slots[slot]
	return c, ok
}

// Filter returns a snapshot of all clients for which pred returns true.
func (r *Registry) Filter(pred func(*Client) bool) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.slots))
	for _, c := range r.slots {
		if pred(c) {
			out = append(out, c)
		}
	}
	return out
}

// Remove deletes the entry in the given slot. Removing an absent slot is a
// no-op, so duplicate close notifications are harmless.
func (r *Registry) Remove(slot uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.slots[slot]
	if !ok {
		return
	}
	delete(r.slots, slot)
	delete(r.byConn, c.ConnectionID)
}

// RemoveByConnectionID deletes the entry for the given connection id and
// returns it. The second return value is false if no entry was present.
func (r *Registry) RemoveByConnectionID(connectionID string) (*Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot, ok := r.byConn[connectionID]
	if !ok {
		return nil, false
	}
	c := r.slots[slot]
	delete(r.slots, slot)
	delete(r.byConn, connectionID)
	return c, true
}

// Len returns the number of currently registered clients.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.slots)
}
