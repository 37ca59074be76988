// Package notify persists notifications and fans them out to live push
// connections. Delivery is at-most-once per currently-live connection and
// best-effort: a socket that is down at creation time misses the push and
// picks the row up on its next list fetch.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"chat-console-push/internal/cache"
	"chat-console-push/internal/event"
	"chat-console-push/internal/hub"
	"chat-console-push/internal/model"
	"chat-console-push/internal/store"
)

const (
	listTTL = 15 * time.Second

	cacheKeyPrefix = "notifications:"
	cacheKeyAll    = cacheKeyPrefix + "all"
)

func cacheKeyUser(userID int64) string {
	return fmt.Sprintf("%suser:%d", cacheKeyPrefix, userID)
}

type Dispatcher struct {
	store  store.Store
	notifs *hub.Registry
	cache  *cache.Cache
	log    logrus.FieldLogger
}

func NewDispatcher(st store.Store, notifs *hub.Registry, c *cache.Cache, log logrus.FieldLogger) *Dispatcher {
	return &Dispatcher{store: st, notifs: notifs, cache: c, log: log}
}

// Create persists the notification, then pushes new_notification to the
// recipient's live connections (targeted) or to every online user
// (broadcast). Persistence failure aborts before any delivery; delivery
// failures never surface to the caller.
func (d *Dispatcher) Create(ctx context.Context, title, content string, senderID int64, recipientID *int64) (model.Notification, error) {
	n, err := d.store.InsertNotification(ctx, title, content, senderID, recipientID)
	if err != nil {
		return model.Notification{}, err
	}

	frame, err := event.Encode(event.NewNotification{Notification: n})
	if err != nil {
		d.log.WithError(err).Error("encoding new_notification event")
	} else if n.Broadcast() {
		d.notifs.SendAll(frame)
	} else {
		d.notifs.SendUser(*n.RecipientID, frame)
	}

	d.invalidate(n.RecipientID)
	return n, nil
}

// Delete removes the row and pushes notification_deleted, scoped to the
// original recipients: all users for a broadcast row, only the target's
// connections for a targeted one.
func (d *Dispatcher) Delete(ctx context.Context, id int64) error {
	n, err := d.store.GetNotification(ctx, id)
	if err != nil {
		return err
	}
	if err := d.store.DeleteNotification(ctx, id); err != nil {
		return err
	}

	frame, err := event.Encode(event.NotificationDeleted{ID: id})
	if err != nil {
		d.log.WithError(err).Error("encoding notification_deleted event")
	} else if n.Broadcast() {
		d.notifs.SendAll(frame)
	} else {
		d.notifs.SendUser(*n.RecipientID, frame)
	}

	d.invalidate(n.RecipientID)
	return nil
}

// MarkRead updates the row only if it is broadcast or targeted at caller;
// out-of-scope rows report not found without mutation.
func (d *Dispatcher) MarkRead(ctx context.Context, id, callerID int64) error {
	if err := d.store.MarkRead(ctx, id, callerID); err != nil {
		return err
	}
	d.invalidate(&callerID)
	return nil
}

func (d *Dispatcher) MarkAllRead(ctx context.Context, callerID int64) error {
	if err := d.store.MarkAllRead(ctx, callerID); err != nil {
		return err
	}
	d.invalidate(&callerID)
	return nil
}

// List serves the notification list through the read-through cache. A nil
// scope is the admin view over all rows.
func (d *Dispatcher) List(ctx context.Context, scope *int64) ([]model.Notification, error) {
	key := cacheKeyAll
	if scope != nil {
		key = cacheKeyUser(*scope)
	}

	v, err := d.cache.GetOrSet(key, listTTL, func() (any, error) {
		return d.store.ListNotificationsVisibleTo(ctx, scope)
	})
	if err != nil {
		return nil, err
	}
	return v.([]model.Notification), nil
}

// invalidate drops the cached lists affected by a write. Broadcast writes
// and read-state changes touch every per-user variant, so the whole prefix
// goes; a targeted write could keep other users' entries, but they expire
// within the TTL anyway and the simpler rule is easier to trust.
func (d *Dispatcher) invalidate(recipientID *int64) {
	if recipientID == nil {
		d.cache.DeletePrefix(cacheKeyPrefix)
		return
	}
	d.cache.Delete(cacheKeyAll)
	d.cache.Delete(cacheKeyUser(*recipientID))
}
