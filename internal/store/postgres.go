package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"chat-console-push/internal/model"
)

// Postgres implements Store on database/sql. Expected schema:
//
//	CREATE TABLE accounts (
//	    id            BIGSERIAL PRIMARY KEY,
//	    username      TEXT NOT NULL UNIQUE,
//	    password_hash TEXT NOT NULL,
//	    session_token TEXT,
//	    is_admin      BOOLEAN NOT NULL DEFAULT FALSE,
//	    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
//
//	CREATE TABLE notifications (
//	    id           BIGSERIAL PRIMARY KEY,
//	    title        TEXT NOT NULL,
//	    content      TEXT NOT NULL,
//	    sender_id    BIGINT NOT NULL REFERENCES accounts (id),
//	    recipient_id BIGINT REFERENCES accounts (id),
//	    read         BOOLEAN NOT NULL DEFAULT FALSE,
//	    created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
type Postgres struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

const accountColumns = "id, username, password_hash, session_token, is_admin, created_at"

func scanAccount(row sq.RowScanner) (model.Account, error) {
	var acc model.Account
	var token sql.NullString
	err := row.Scan(&acc.ID, &acc.Username, &acc.PasswordHash, &token, &acc.IsAdmin, &acc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Account{}, model.NewNotFound("account")
	}
	if err != nil {
		return model.Account{}, model.NewBackingStore(fmt.Errorf("scanning account: %w", err))
	}
	if token.Valid {
		acc.SessionToken = &token.String
	}
	return acc, nil
}

func (p *Postgres) GetAccountByUsername(ctx context.Context, username string) (model.Account, error) {
	row := p.sb.Select(accountColumns).
		From("accounts").
		Where(sq.Eq{"username": username}).
		RunWith(p.db).
		QueryRowContext(ctx)
	return scanAccount(row)
}

func (p *Postgres) GetAccountByID(ctx context.Context, id int64) (model.Account, error) {
	row := p.sb.Select(accountColumns).
		From("accounts").
		Where(sq.Eq{"id": id}).
		RunWith(p.db).
		QueryRowContext(ctx)
	return scanAccount(row)
}

func (p *Postgres) CreateAccount(ctx context.Context, username, passwordHash string, isAdmin bool) (model.Account, error) {
	acc := model.Account{Username: username, PasswordHash: passwordHash, IsAdmin: isAdmin}
	err := p.sb.Insert("accounts").
		Columns("username", "password_hash", "is_admin").
		Values(username, passwordHash, isAdmin).
		Suffix("RETURNING id, created_at").
		RunWith(p.db).
		QueryRowContext(ctx).
		Scan(&acc.ID, &acc.CreatedAt)
	if err != nil {
		return model.Account{}, model.NewBackingStore(fmt.Errorf("inserting account: %w", err))
	}
	return acc, nil
}

func (p *Postgres) SetSessionToken(ctx context.Context, userID int64, token *string) error {
	res, err := p.sb.Update("accounts").
		Set("session_token", token).
		Where(sq.Eq{"id": userID}).
		RunWith(p.db).
		ExecContext(ctx)
	if err != nil {
		return model.NewBackingStore(fmt.Errorf("updating session token: %w", err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return model.NewBackingStore(fmt.Errorf("updating session token: %w", err))
	}
	if affected == 0 {
		return model.NewNotFound("account")
	}
	return nil
}

func (p *Postgres) InsertNotification(ctx context.Context, title, content string, senderID int64, recipientID *int64) (model.Notification, error) {
	n := model.Notification{Title: title, Content: content, SenderID: senderID, RecipientID: recipientID}
	err := p.sb.Insert("notifications").
		Columns("title", "content", "sender_id", "recipient_id").
		Values(title, content, senderID, recipientID).
		Suffix("RETURNING id, created_at").
		RunWith(p.db).
		QueryRowContext(ctx).
		Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return model.Notification{}, model.NewBackingStore(fmt.Errorf("inserting notification: %w", err))
	}
	return n, nil
}

const notificationColumns = "id, title, content, sender_id, recipient_id, read, created_at"

func scanNotification(row sq.RowScanner) (model.Notification, error) {
	var n model.Notification
	var recipient sql.NullInt64
	err := row.Scan(&n.ID, &n.Title, &n.Content, &n.SenderID, &recipient, &n.Read, &n.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Notification{}, model.NewNotFound("notification")
	}
	if err != nil {
		return model.Notification{}, model.NewBackingStore(fmt.Errorf("scanning notification: %w", err))
	}
	if recipient.Valid {
		n.RecipientID = &recipient.Int64
	}
	return n, nil
}

func (p *Postgres) GetNotification(ctx context.Context, id int64) (model.Notification, error) {
	row := p.sb.Select(notificationColumns).
		From("notifications").
		Where(sq.Eq{"id": id}).
		RunWith(p.db).
		QueryRowContext(ctx)
	return scanNotification(row)
}

func (p *Postgres) DeleteNotification(ctx context.Context, id int64) error {
	res, err := p.sb.Delete("notifications").
		Where(sq.Eq{"id": id}).
		RunWith(p.db).
		ExecContext(ctx)
	if err != nil {
		return model.NewBackingStore(fmt.Errorf("deleting notification: %w", err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return model.NewBackingStore(fmt.Errorf("deleting notification: %w", err))
	}
	if affected == 0 {
		return model.NewNotFound("notification")
	}
	return nil
}

// visibleToPredicate matches broadcast rows and rows targeted at userID.
func visibleToPredicate(userID int64) sq.Sqlizer {
	return sq.Or{
		sq.Eq{"recipient_id": nil},
		sq.Eq{"recipient_id": userID},
	}
}

func (p *Postgres) MarkRead(ctx context.Context, id, callerID int64) error {
	res, err := p.sb.Update("notifications").
		Set("read", true).
		Where(sq.Eq{"id": id}).
		Where(visibleToPredicate(callerID)).
		RunWith(p.db).
		ExecContext(ctx)
	if err != nil {
		return model.NewBackingStore(fmt.Errorf("marking notification read: %w", err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return model.NewBackingStore(fmt.Errorf("marking notification read: %w", err))
	}
	if affected == 0 {
		return model.NewNotFound("notification")
	}
	return nil
}

func (p *Postgres) MarkAllRead(ctx context.Context, callerID int64) error {
	_, err := p.sb.Update("notifications").
		Set("read", true).
		Where(sq.Eq{"read": false}).
		Where(visibleToPredicate(callerID)).
		RunWith(p.db).
		ExecContext(ctx)
	if err != nil {
		return model.NewBackingStore(fmt.Errorf("marking all notifications read: %w", err))
	}
	return nil
}

func (p *Postgres) ListNotificationsVisibleTo(ctx context.Context, scope *int64) ([]model.Notification, error) {
	query := p.sb.Select(notificationColumns).
		From("notifications").
		OrderBy("id DESC")
	if scope != nil {
		query = query.Where(visibleToPredicate(*scope))
	}

	rows, err := query.RunWith(p.db).QueryContext(ctx)
	if err != nil {
		return nil, model.NewBackingStore(fmt.Errorf("listing notifications: %w", err))
	}
	defer rows.Close()

	result := make([]model.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	if err := rows.Err(); err != nil {
		return nil, model.NewBackingStore(fmt.Errorf("listing notifications: %w", err))
	}
	return result, nil
}

func (p *Postgres) countRows(ctx context.Context, query sq.SelectBuilder) (int64, error) {
	var count int64
	if err := query.RunWith(p.db).QueryRowContext(ctx).Scan(&count); err != nil {
		return 0, model.NewBackingStore(fmt.Errorf("counting rows: %w", err))
	}
	return count, nil
}

func (p *Postgres) CountAccounts(ctx context.Context) (int64, error) {
	return p.countRows(ctx, p.sb.Select("COUNT(*)").From("accounts"))
}

func (p *Postgres) CountNotifications(ctx context.Context) (int64, error) {
	return p.countRows(ctx, p.sb.Select("COUNT(*)").From("notifications"))
}

func (p *Postgres) CountUnread(ctx context.Context, userID int64) (int64, error) {
	return p.countRows(ctx, p.sb.Select("COUNT(*)").
		From("notifications").
		Where(sq.Eq{"read": false}).
		Where(visibleToPredicate(userID)))
}
