package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"chat-console-push/internal/auth"
	"chat-console-push/internal/store"
)

func testRouter(st store.Store, cfg auth.TokenConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	protected := r.Group("/", RequireSession(st, cfg))
	protected.GET("/me", func(c *gin.Context) {
		userID, _ := UserIDFromContext(c)
		c.JSON(http.StatusOK, gin.H{"userId": userID, "isAdmin": IsAdminFromContext(c)})
	})
	protected.GET("/admin", RequireAdmin(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r
}

func request(r *gin.Engine, token string, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestRequireSession(t *testing.T) {
	st := store.NewMemory()
	cfg := auth.TokenConfig{Secret: "secret", Expiry: time.Hour, Issuer: "test"}
	acc, _ := st.CreateAccount(context.Background(), "alice", "hash", false)

	token, err := auth.CreateToken(acc.ID, cfg)
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}
	if err := st.SetSessionToken(context.Background(), acc.ID, &token); err != nil {
		t.Fatalf("SetSessionToken: %v", err)
	}

	r := testRouter(st, cfg)

	if w := request(r, "", "/me"); w.Code != http.StatusUnauthorized {
		t.Fatalf("missing header: expected 401, got %d", w.Code)
	}
	if w := request(r, "garbage", "/me"); w.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: expected 401, got %d", w.Code)
	}
	if w := request(r, token, "/me"); w.Code != http.StatusOK {
		t.Fatalf("valid token: expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestRequireSession_SupersededTokenRejected(t *testing.T) {
	st := store.NewMemory()
	cfg := auth.TokenConfig{Secret: "secret", Expiry: time.Hour, Issuer: "test"}
	acc, _ := st.CreateAccount(context.Background(), "alice", "hash", false)

	oldToken, _ := auth.CreateToken(acc.ID, cfg)
	_ = st.SetSessionToken(context.Background(), acc.ID, &oldToken)

	// Forced login elsewhere overwrites the stored token.
	newToken, _ := auth.CreateToken(acc.ID, cfg)
	_ = st.SetSessionToken(context.Background(), acc.ID, &newToken)

	r := testRouter(st, cfg)
	if w := request(r, oldToken, "/me"); w.Code != http.StatusUnauthorized {
		t.Fatalf("superseded token: expected 401, got %d", w.Code)
	}
	if w := request(r, newToken, "/me"); w.Code != http.StatusOK {
		t.Fatalf("current token: expected 200, got %d", w.Code)
	}
}

func TestRequireAdmin(t *testing.T) {
	st := store.NewMemory()
	cfg := auth.TokenConfig{Secret: "secret", Expiry: time.Hour, Issuer: "test"}
	user, _ := st.CreateAccount(context.Background(), "bob", "hash", false)
	admin, _ := st.CreateAccount(context.Background(), "root", "hash", true)

	userToken, _ := auth.CreateToken(user.ID, cfg)
	_ = st.SetSessionToken(context.Background(), user.ID, &userToken)
	adminToken, _ := auth.CreateToken(admin.ID, cfg)
	_ = st.SetSessionToken(context.Background(), admin.ID, &adminToken)

	r := testRouter(st, cfg)
	if w := request(r, userToken, "/admin"); w.Code != http.StatusForbidden {
		t.Fatalf("non-admin: expected 403, got %d", w.Code)
	}
	if w := request(r, adminToken, "/admin"); w.Code != http.StatusOK {
		t.Fatalf("admin: expected 200, got %d", w.Code)
	}
}
