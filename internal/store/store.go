// Package store is the boundary to the backing relational store. The
// session guard, dispatcher and handlers consume the Store interface; the
// Postgres implementation is the production one, the memory implementation
// serves tests and local development.
package store

import (
	"context"

	"chat-console-push/internal/model"
)

type Store interface {
	GetAccountByUsername(ctx context.Context, username string) (model.Account, error)
	GetAccountByID(ctx context.Context, id int64) (model.Account, error)
	CreateAccount(ctx context.Context, username, passwordHash string, isAdmin bool) (model.Account, error)

	// SetSessionToken overwrites the account's current session token.
	// nil clears it. Last write wins; the column's transaction semantics
	// are the only synchronization across processes.
	SetSessionToken(ctx context.Context, userID int64, token *string) error

	InsertNotification(ctx context.Context, title, content string, senderID int64, recipientID *int64) (model.Notification, error)
	GetNotification(ctx context.Context, id int64) (model.Notification, error)
	DeleteNotification(ctx context.Context, id int64) error

	// MarkRead updates the row only if it is broadcast or targeted at
	// callerID; anything else reports not found.
	MarkRead(ctx context.Context, id, callerID int64) error
	MarkAllRead(ctx context.Context, callerID int64) error

	// ListNotificationsVisibleTo returns all rows for a nil scope (admin
	// view) or the broadcast rows plus the rows targeted at *scope.
	ListNotificationsVisibleTo(ctx context.Context, scope *int64) ([]model.Notification, error)

	CountAccounts(ctx context.Context) (int64, error)
	CountNotifications(ctx context.Context) (int64, error)
	CountUnread(ctx context.Context, userID int64) (int64, error)
}
