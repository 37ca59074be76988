// Package session enforces the single-active-session invariant: at most
// one valid session token per account, with forced takeover signalling the
// previous holder over the session push channel.
package session

import (
	"context"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"chat-console-push/internal/auth"
	"chat-console-push/internal/event"
	"chat-console-push/internal/hub"
	"chat-console-push/internal/model"
	"chat-console-push/internal/store"
)

type Guard struct {
	store    store.Store
	sessions *hub.Registry
	tokens   auth.TokenConfig
	log      logrus.FieldLogger
}

func NewGuard(st store.Store, sessions *hub.Registry, tokens auth.TokenConfig, log logrus.FieldLogger) *Guard {
	return &Guard{store: st, sessions: sessions, tokens: tokens, log: log}
}

type LoginResult struct {
	UserID  int64
	Token   string
	IsAdmin bool
}

// Login checks credentials and issues a fresh session token. While a
// session is active, a non-forced login fails with conflicting_session;
// force takes over, pushing session_invalidated to the old token's live
// connections before the new token is persisted. Last write to the token
// column wins.
func (g *Guard) Login(ctx context.Context, username, passwordHash string, force bool) (LoginResult, error) {
	acc, err := g.store.GetAccountByUsername(ctx, username)
	if model.IsKind(err, model.KindNotFound) {
		g.log.WithField("username", username).Warn("login failed: unknown account")
		return LoginResult{}, model.NewInvalidCredentials()
	}
	if err != nil {
		return LoginResult{}, err
	}

	if bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(passwordHash)) != nil {
		g.log.WithFields(logrus.Fields{"username": username, "userId": acc.ID}).Warn("login failed: bad credentials")
		return LoginResult{}, model.NewInvalidCredentials()
	}

	if acc.SessionToken != nil {
		if !force {
			return LoginResult{}, model.NewConflictingSession(acc.ID)
		}
		frame, err := event.Encode(event.SessionInvalidated{})
		if err != nil {
			return LoginResult{}, err
		}
		g.sessions.SendUser(acc.ID, frame)
		g.log.WithField("userId", acc.ID).Info("forced login, previous session invalidated")
	}

	token, err := auth.CreateToken(acc.ID, g.tokens)
	if err != nil {
		return LoginResult{}, err
	}
	if err := g.store.SetSessionToken(ctx, acc.ID, &token); err != nil {
		return LoginResult{}, err
	}

	return LoginResult{UserID: acc.ID, Token: token, IsAdmin: acc.IsAdmin}, nil
}

// Logout clears the stored token if it matches. Other live connections of
// the same user are not notified; the caller already knows it logged out.
func (g *Guard) Logout(ctx context.Context, userID int64, token string) error {
	acc, err := g.store.GetAccountByID(ctx, userID)
	if model.IsKind(err, model.KindNotFound) {
		return model.NewInvalidSession()
	}
	if err != nil {
		return err
	}

	if acc.SessionToken == nil || *acc.SessionToken != token {
		return model.NewInvalidSession()
	}
	return g.store.SetSessionToken(ctx, userID, nil)
}
