package hub

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type testWriter struct {
	mu     sync.Mutex
	writes int
	fail   bool
}

func (w *testWriter) Write(frame []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writes++
	if w.fail {
		return errors.New("write failed")
	}
	return nil
}

func (w *testWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writes
}

func TestRegistry_RegisterSendUnregister(t *testing.T) {
	r := NewRegistry()
	w := &testWriter{}
	c := NewConnection(7, w)

	r.Register(c)
	r.SendUser(7, []byte("x"))
	if w.count() != 1 {
		t.Fatalf("expected 1 write, got %d", w.count())
	}

	r.Unregister(c)
	r.SendUser(7, []byte("x"))
	if w.count() != 1 {
		t.Fatalf("expected no more writes, got %d", w.count())
	}

	select {
	case <-c.Done():
	default:
		t.Fatal("Done not closed after unregister")
	}
}

func TestRegistry_FanOutIsolation(t *testing.T) {
	r := NewRegistry()
	broken := &testWriter{fail: true}
	healthy := &testWriter{}
	a := NewConnection(7, broken)
	b := NewConnection(7, healthy)
	r.Register(a)
	r.Register(b)

	r.SendUser(7, []byte("x"))
	if healthy.count() != 1 {
		t.Fatalf("healthy connection missed delivery: %d writes", healthy.count())
	}

	// Broken connection is pruned; the next send skips it entirely.
	r.SendUser(7, []byte("y"))
	if broken.count() != 1 {
		t.Fatalf("expected broken connection to be pruned after 1 write, got %d", broken.count())
	}
	if healthy.count() != 2 {
		t.Fatalf("expected 2 writes to healthy connection, got %d", healthy.count())
	}
}

func TestRegistry_NoEmptyUserEntries(t *testing.T) {
	r := NewRegistry()
	c1 := NewConnection(3, &testWriter{})
	c2 := NewConnection(3, &testWriter{})
	r.Register(c1)
	r.Register(c2)

	r.Unregister(c1)
	if !r.HasUser(3) {
		t.Fatal("user entry removed while a connection remains")
	}
	r.Unregister(c2)
	if r.HasUser(3) {
		t.Fatal("empty user entry left in registry")
	}
	if got := r.OnlineUserIDs(); len(got) != 0 {
		t.Fatalf("expected no online users, got %v", got)
	}
}

func TestRegistry_SendAll(t *testing.T) {
	r := NewRegistry()
	w7 := &testWriter{}
	w9 := &testWriter{}
	r.Register(NewConnection(7, w7))
	r.Register(NewConnection(9, w9))

	r.SendAll([]byte("x"))
	if w7.count() != 1 || w9.count() != 1 {
		t.Fatalf("expected both users to receive, got %d/%d", w7.count(), w9.count())
	}
}

func TestRegistry_SweepEvictsIdle(t *testing.T) {
	now := time.Unix(1000, 0)
	r := NewRegistryWithNow(func() time.Time { return now })

	idle := NewConnection(1, &testWriter{})
	fresh := NewConnection(2, &testWriter{})
	r.Register(idle)

	now = now.Add(4 * time.Minute)
	r.Register(fresh)

	now = now.Add(2 * time.Minute)
	if evicted := r.Sweep(5 * time.Minute); evicted != 1 {
		t.Fatalf("expected 1 eviction, got %d", evicted)
	}
	if r.HasUser(1) {
		t.Fatal("idle connection survived sweep")
	}
	if !r.HasUser(2) {
		t.Fatal("fresh connection evicted")
	}

	select {
	case <-idle.Done():
	default:
		t.Fatal("Done not closed after sweep eviction")
	}
}

func TestRegistry_SuccessfulSendRefreshesActivity(t *testing.T) {
	now := time.Unix(1000, 0)
	r := NewRegistryWithNow(func() time.Time { return now })

	c := NewConnection(1, &testWriter{})
	r.Register(c)

	now = now.Add(4 * time.Minute)
	r.SendUser(1, []byte("x"))

	now = now.Add(4 * time.Minute)
	if evicted := r.Sweep(5 * time.Minute); evicted != 0 {
		t.Fatalf("connection with recent send evicted: %d", evicted)
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				c := NewConnection(userID, &testWriter{})
				r.Register(c)
				r.SendUser(userID, []byte("x"))
				r.SendAll([]byte("y"))
				r.Sweep(time.Minute)
				r.Unregister(c)
			}
		}(int64(i % 3))
	}
	wg.Wait()

	if got := r.Len(); got != 0 {
		t.Fatalf("expected empty registry, got %d connections", got)
	}
}
