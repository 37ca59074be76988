package notify

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"

	"chat-console-push/internal/cache"
	"chat-console-push/internal/event"
	"chat-console-push/internal/hub"
	"chat-console-push/internal/model"
	"chat-console-push/internal/store"
)

type captureWriter struct {
	mu     sync.Mutex
	frames [][]byte
	fail   bool
}

func (w *captureWriter) Write(frame []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail {
		return errors.New("broken pipe")
	}
	w.frames = append(w.frames, append([]byte(nil), frame...))
	return nil
}

func (w *captureWriter) events(t *testing.T) []event.Event {
	t.Helper()
	w.mu.Lock()
	defer w.mu.Unlock()
	var evs []event.Event
	for _, f := range w.frames {
		ev, err := event.Decode(bytes.TrimSpace(f))
		if err != nil {
			t.Fatalf("decoding captured frame: %v", err)
		}
		evs = append(evs, ev)
	}
	return evs
}

func testDispatcher(t *testing.T) (*Dispatcher, *store.Memory, *hub.Registry, *cache.Cache) {
	t.Helper()
	st := store.NewMemory()
	reg := hub.NewRegistry()
	c := cache.New()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return NewDispatcher(st, reg, c, log), st, reg, c
}

func TestCreate_BroadcastReachesOnlineUsersOnly(t *testing.T) {
	d, st, reg, _ := testDispatcher(t)
	w7 := &captureWriter{}
	w9 := &captureWriter{}
	reg.Register(hub.NewConnection(7, w7))
	reg.Register(hub.NewConnection(9, w9))
	// User 5 holds no connection.

	n, err := d.Create(context.Background(), "System maintenance", "tonight", 1, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	for _, w := range []*captureWriter{w7, w9} {
		evs := w.events(t)
		if len(evs) != 1 {
			t.Fatalf("expected one event, got %d", len(evs))
		}
		nn, ok := evs[0].(event.NewNotification)
		if !ok {
			t.Fatalf("expected new_notification, got %T", evs[0])
		}
		if nn.Notification.ID != n.ID {
			t.Fatalf("event carries id %d, want %d", nn.Notification.ID, n.ID)
		}
	}

	// User 5 sees the row on the next list fetch, unread.
	u5 := int64(5)
	list, err := d.List(context.Background(), &u5)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].ID != n.ID || list[0].Read {
		t.Fatalf("unexpected list for offline user: %+v", list)
	}
	_ = st
}

func TestCreate_TargetedReachesOnlyRecipient(t *testing.T) {
	d, _, reg, _ := testDispatcher(t)
	w7 := &captureWriter{}
	w9 := &captureWriter{}
	reg.Register(hub.NewConnection(7, w7))
	reg.Register(hub.NewConnection(9, w9))

	u7 := int64(7)
	if _, err := d.Create(context.Background(), "for you", "x", 1, &u7); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if len(w7.events(t)) != 1 {
		t.Fatal("recipient missed the event")
	}
	if len(w9.events(t)) != 0 {
		t.Fatal("targeted notification leaked to another user")
	}
}

func TestCreate_FanOutIsolation(t *testing.T) {
	d, _, reg, _ := testDispatcher(t)
	broken := &captureWriter{fail: true}
	healthy := &captureWriter{}
	reg.Register(hub.NewConnection(7, broken))
	reg.Register(hub.NewConnection(7, healthy))

	u7 := int64(7)
	if _, err := d.Create(context.Background(), "t", "c", 1, &u7); err != nil {
		t.Fatalf("Create must succeed despite a dead socket: %v", err)
	}
	if len(healthy.events(t)) != 1 {
		t.Fatal("healthy connection missed delivery")
	}

	// The broken connection is gone; a second create reaches only healthy.
	if _, err := d.Create(context.Background(), "t2", "c", 1, &u7); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(healthy.events(t)) != 2 {
		t.Fatal("second delivery missed")
	}
}

func TestDelete_ScopedToOriginalRecipients(t *testing.T) {
	d, _, reg, _ := testDispatcher(t)
	w7 := &captureWriter{}
	w9 := &captureWriter{}
	reg.Register(hub.NewConnection(7, w7))
	reg.Register(hub.NewConnection(9, w9))

	u7 := int64(7)
	targeted, err := d.Create(context.Background(), "for 7", "x", 1, &u7)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := d.Delete(context.Background(), targeted.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	evs7 := w7.events(t)
	if len(evs7) != 2 {
		t.Fatalf("expected create+delete for user 7, got %d events", len(evs7))
	}
	del, ok := evs7[1].(event.NotificationDeleted)
	if !ok || del.ID != targeted.ID {
		t.Fatalf("expected notification_deleted{%d}, got %+v", targeted.ID, evs7[1])
	}
	if len(w9.events(t)) != 0 {
		t.Fatal("delete of a targeted notification broadcast to unrelated user")
	}
}

func TestDelete_NotFound(t *testing.T) {
	d, _, _, _ := testDispatcher(t)
	if err := d.Delete(context.Background(), 99); !model.IsKind(err, model.KindNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestMarkRead_Scoping(t *testing.T) {
	d, st, _, _ := testDispatcher(t)
	u2 := int64(2)
	n, _ := st.InsertNotification(context.Background(), "for 2", "x", 1, &u2)

	if err := d.MarkRead(context.Background(), n.ID, 1); !model.IsKind(err, model.KindNotFound) {
		t.Fatalf("expected not_found for out-of-scope caller, got %v", err)
	}
	stored, _ := st.GetNotification(context.Background(), n.ID)
	if stored.Read {
		t.Fatal("row mutated by rejected markRead")
	}

	if err := d.MarkRead(context.Background(), n.ID, 2); err != nil {
		t.Fatalf("MarkRead by recipient: %v", err)
	}
}

func TestList_CacheCoherence(t *testing.T) {
	d, _, _, _ := testDispatcher(t)
	u7 := int64(7)

	list, err := d.List(context.Background(), &u7)
	if err != nil || len(list) != 0 {
		t.Fatalf("initial list: %v %v", list, err)
	}

	// The write invalidates synchronously; the very next read sees the row
	// even though the empty result was cached a moment ago.
	if _, err := d.Create(context.Background(), "t", "c", 1, &u7); err != nil {
		t.Fatalf("Create: %v", err)
	}
	list, err = d.List(context.Background(), &u7)
	if err != nil || len(list) != 1 {
		t.Fatalf("list after create: %v %v", list, err)
	}

	if err := d.MarkAllRead(context.Background(), u7); err != nil {
		t.Fatalf("MarkAllRead: %v", err)
	}
	list, _ = d.List(context.Background(), &u7)
	if len(list) != 1 || !list[0].Read {
		t.Fatalf("read state stale after markAllRead: %+v", list)
	}
}
