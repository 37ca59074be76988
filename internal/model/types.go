package model

import "time"

type Account struct {
	ID           int64
	Username     string
	PasswordHash string
	SessionToken *string
	IsAdmin      bool
	CreatedAt    time.Time
}

type Notification struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	SenderID    int64     `json:"senderId"`
	RecipientID *int64    `json:"recipientId"`
	Read        bool      `json:"read"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Broadcast reports whether the notification is addressed to every user
// rather than a single recipient.
func (n Notification) Broadcast() bool {
	return n.RecipientID == nil
}
