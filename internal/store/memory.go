package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"chat-console-push/internal/model"
)

// Memory is an in-process Store for tests and local development.
type Memory struct {
	mu sync.RWMutex

	accountsByID       map[int64]model.Account
	accountIDsByName   map[string]int64
	notificationsByID  map[int64]model.Notification
	nextAccountID      int64
	nextNotificationID int64

	now func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		accountsByID:       make(map[int64]model.Account),
		accountIDsByName:   make(map[string]int64),
		notificationsByID:  make(map[int64]model.Notification),
		nextAccountID:      1,
		nextNotificationID: 1,
		now:                time.Now,
	}
}

func (m *Memory) CreateAccount(_ context.Context, username, passwordHash string, isAdmin bool) (model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.accountIDsByName[username]; ok {
		return m.accountsByID[id], nil
	}

	acc := model.Account{
		ID:           m.nextAccountID,
		Username:     username,
		PasswordHash: passwordHash,
		IsAdmin:      isAdmin,
		CreatedAt:    m.now(),
	}
	m.nextAccountID++
	m.accountsByID[acc.ID] = acc
	m.accountIDsByName[username] = acc.ID
	return acc, nil
}

func (m *Memory) GetAccountByUsername(_ context.Context, username string) (model.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.accountIDsByName[username]
	if !ok {
		return model.Account{}, model.NewNotFound("account")
	}
	return m.accountsByID[id], nil
}

func (m *Memory) GetAccountByID(_ context.Context, id int64) (model.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	acc, ok := m.accountsByID[id]
	if !ok {
		return model.Account{}, model.NewNotFound("account")
	}
	return acc, nil
}

func (m *Memory) SetSessionToken(_ context.Context, userID int64, token *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accountsByID[userID]
	if !ok {
		return model.NewNotFound("account")
	}
	acc.SessionToken = token
	m.accountsByID[userID] = acc
	return nil
}

func (m *Memory) InsertNotification(_ context.Context, title, content string, senderID int64, recipientID *int64) (model.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := model.Notification{
		ID:          m.nextNotificationID,
		Title:       title,
		Content:     content,
		SenderID:    senderID,
		RecipientID: recipientID,
		CreatedAt:   m.now(),
	}
	m.nextNotificationID++
	m.notificationsByID[n.ID] = n
	return n, nil
}

func (m *Memory) GetNotification(_ context.Context, id int64) (model.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n, ok := m.notificationsByID[id]
	if !ok {
		return model.Notification{}, model.NewNotFound("notification")
	}
	return n, nil
}

func (m *Memory) DeleteNotification(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.notificationsByID[id]; !ok {
		return model.NewNotFound("notification")
	}
	delete(m.notificationsByID, id)
	return nil
}

func visibleTo(n model.Notification, userID int64) bool {
	return n.RecipientID == nil || *n.RecipientID == userID
}

func (m *Memory) MarkRead(_ context.Context, id, callerID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.notificationsByID[id]
	if !ok || !visibleTo(n, callerID) {
		return model.NewNotFound("notification")
	}
	n.Read = true
	m.notificationsByID[id] = n
	return nil
}

func (m *Memory) MarkAllRead(_ context.Context, callerID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, n := range m.notificationsByID {
		if !n.Read && visibleTo(n, callerID) {
			n.Read = true
			m.notificationsByID[id] = n
		}
	}
	return nil
}

func (m *Memory) ListNotificationsVisibleTo(_ context.Context, scope *int64) ([]model.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]model.Notification, 0)
	for _, n := range m.notificationsByID {
		if scope == nil || visibleTo(n, *scope) {
			result = append(result, n)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	return result, nil
}

func (m *Memory) CountAccounts(context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.accountsByID)), nil
}

func (m *Memory) CountNotifications(context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.notificationsByID)), nil
}

func (m *Memory) CountUnread(_ context.Context, userID int64) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, n := range m.notificationsByID {
		if !n.Read && visibleTo(n, userID) {
			count++
		}
	}
	return count, nil
}
