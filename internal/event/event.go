// Package event defines the typed push events delivered over the session
// and notification channels, and their line-delimited wire framing.
package event

import (
	"encoding/json"
	"fmt"

	"chat-console-push/internal/model"
)

type Type string

const (
	TypeConnected           Type = "connected"
	TypeNewNotification     Type = "new_notification"
	TypeNotificationDeleted Type = "notification_deleted"
	TypeSessionInvalidated  Type = "session_invalidated"
)

// Event is one of Connected, NewNotification, NotificationDeleted or
// SessionInvalidated. Dispatch works on the concrete variant; the JSON
// blob with a "type" discriminator exists only at the wire boundary.
type Event interface {
	EventType() Type
}

type Connected struct{}

func (Connected) EventType() Type { return TypeConnected }

type NewNotification struct {
	Notification model.Notification
}

func (NewNotification) EventType() Type { return TypeNewNotification }

type NotificationDeleted struct {
	ID int64
}

func (NotificationDeleted) EventType() Type { return TypeNotificationDeleted }

type SessionInvalidated struct{}

func (SessionInvalidated) EventType() Type { return TypeSessionInvalidated }

// frame is the wire form shared by all event kinds.
type frame struct {
	Type           Type                `json:"type"`
	Notification   *model.Notification `json:"notification,omitempty"`
	NotificationID *int64              `json:"notification_id,omitempty"`
}

// Encode serializes ev as a single newline-terminated JSON frame.
func Encode(ev Event) ([]byte, error) {
	f := frame{Type: ev.EventType()}
	switch v := ev.(type) {
	case Connected, SessionInvalidated:
	case NewNotification:
		n := v.Notification
		f.Notification = &n
	case NotificationDeleted:
		id := v.ID
		f.NotificationID = &id
	default:
		return nil, fmt.Errorf("unknown event type %T", ev)
	}

	data, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Decode parses one frame line back into its typed variant.
func Decode(line []byte) (Event, error) {
	var f frame
	if err := json.Unmarshal(line, &f); err != nil {
		return nil, err
	}

	switch f.Type {
	case TypeConnected:
		return Connected{}, nil
	case TypeSessionInvalidated:
		return SessionInvalidated{}, nil
	case TypeNewNotification:
		if f.Notification == nil {
			return nil, fmt.Errorf("new_notification frame without notification")
		}
		return NewNotification{Notification: *f.Notification}, nil
	case TypeNotificationDeleted:
		if f.NotificationID == nil {
			return nil, fmt.Errorf("notification_deleted frame without notification_id")
		}
		return NotificationDeleted{ID: *f.NotificationID}, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", f.Type)
	}
}
