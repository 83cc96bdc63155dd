package registry_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/shardlink/shardlink/registry"
)

type nopConn struct{}

func (nopConn) Send([]byte) error { return nil }

func newClient(id, shard string) *registry.Client {
	return &registry.Client{
		ID:           id,
		Shard:        shard,
		ConnectionID: registry.NewConnectionID(id, shard),
		Conn:         nopConn{},
	}
}

func TestInsertAndFind(t *testing.T) {
	r := registry.New()
	c := newClient("a", "1")
	r.Insert(c)

	got, ok := r.FindByConnectionID(c.ConnectionID)
	if !ok {
		t.Fatal("FindByConnectionID: not found")
	}
	if got != c {
		t.Errorf("FindByConnectionID: got %+v, want %+v", got, c)
	}
	if r.Len() != 1 {
		t.Errorf("Len: got %d, want 1", r.Len())
	}
}

func TestFindUnknownConnectionID(t *testing.T) {
	r := registry.New()
	if _, ok := r.FindByConnectionID("nope"); ok {
		t.Error("FindByConnectionID: found entry in empty registry")
	}
}

func TestConnectionIDPrefix(t *testing.T) {
	id := registry.NewConnectionID("bot", "4")
	const want = "bot-4-"
	if len(id) <= len(want) || id[:len(want)] != want {
		t.Errorf("NewConnectionID: got %q, want prefix %q plus suffix", id, want)
	}
}

func TestConcurrentInsertsDistinctIDs(t *testing.T) {
	const n = 100
	r := registry.New()

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Insert(newClient(fmt.Sprintf("c%d", i%10), "1"))
		}(i)
	}
	wg.Wait()

	if r.Len() != n {
		t.Fatalf("Len: got %d, want %d", r.Len(), n)
	}

	all := r.Filter(func(*registry.Client) bool { return true })
	seen := make(map[string]bool, n)
	for _, c := range all {
		if seen[c.ConnectionID] {
			t.Fatalf("duplicate connection id %q", c.ConnectionID)
		}
		seen[c.ConnectionID] = true
	}
	if len(seen) != n {
		t.Errorf("distinct connection ids: got %d, want %d", len(seen), n)
	}
}

func TestRemoveIdempotent(t *testing.T) {
	r := registry.New()
	c := newClient("a", "1")
	r.Insert(c)

	if _, ok := r.RemoveByConnectionID(c.ConnectionID); !ok {
		t.Fatal("first remove: entry not found")
	}
	if r.Len() != 0 {
		t.Fatalf("Len after remove: got %d, want 0", r.Len())
	}

	// Second close notification for the same connection must be a no-op.
	if _, ok := r.RemoveByConnectionID(c.ConnectionID); ok {
		t.Error("second remove: expected no-op")
	}
	if r.Len() != 0 {
		t.Errorf("Len after duplicate remove: got %d, want 0", r.Len())
	}
}

func TestRemoveUnknownSlot(t *testing.T) {
	r := registry.New()
	r.Remove(42) // must not panic or error
	if r.Len() != 0 {
		t.Errorf("Len: got %d, want 0", r.Len())
	}
}

func TestFilterSnapshotUnderConcurrentRemove(t *testing.T) {
	r := registry.New()
	clients := make([]*registry.Client, 50)
	for i := range clients {
		clients[i] = newClient(fmt.Sprintf("c%d", i), "1")
		r.Insert(clients[i])
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for _, c := range clients {
			r.RemoveByConnectionID(c.ConnectionID)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			snap := r.Filter(func(*registry.Client) bool { return true })
			for _, c := range snap {
				if c == nil {
					t.Error("Filter returned nil client")
				}
			}
		}
	}()
	wg.Wait()

	if r.Len() != 0 {
		t.Errorf("Len after removals: got %d, want 0", r.Len())
	}
}
