package handler

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"chat-console-push/internal/auth"
	"chat-console-push/internal/event"
	"chat-console-push/internal/hub"
	"chat-console-push/internal/model"
	"chat-console-push/internal/store"
)

// StreamHandler serves the long-lived push endpoints. Each channel has its
// own registry; the handling goroutine blocks for the lifetime of the
// stream and resumes only when the client disconnects or the sweep evicts
// the connection.
type StreamHandler struct {
	Sessions    *hub.Registry
	Notifs      *hub.Registry
	Store       store.Store
	TokenConfig auth.TokenConfig
	IdleTimeout time.Duration
	Log         logrus.FieldLogger
}

func (h *StreamHandler) ServeSession(c *gin.Context) {
	h.serve(c, h.Sessions, "session")
}

func (h *StreamHandler) ServeNotifications(c *gin.Context) {
	h.serve(c, h.Notifs, "notifications")
}

// streamWriter serializes frame writes from dispatcher goroutines onto the
// single response body, preserving per-connection delivery order.
type streamWriter struct {
	mu sync.Mutex
	w  gin.ResponseWriter
}

func (sw *streamWriter) Write(frame []byte) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if _, err := sw.w.Write(frame); err != nil {
		return err
	}
	sw.w.Flush()
	return nil
}

func (h *StreamHandler) serve(c *gin.Context, registry *hub.Registry, channel string) {
	userID, err := strconv.ParseInt(c.Query("userId"), 10, 64)
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid userId"})
		return
	}
	// EventSource-style clients cannot set headers, so stream credentials
	// travel as query parameters.
	tokenString := c.Query("sessionToken")
	if tokenString == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session token", "kind": model.KindInvalidSession})
		return
	}

	claims, err := auth.VerifyToken(tokenString, h.TokenConfig)
	if err != nil || claims.UserID != userID {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session token", "kind": model.KindInvalidSession})
		return
	}
	acc, err := h.Store.GetAccountByID(c.Request.Context(), userID)
	if err != nil {
		e := model.AsError(err)
		if e.Kind == model.KindNotFound {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session token", "kind": model.KindInvalidSession})
		} else {
			c.JSON(e.StatusCode, gin.H{"error": e.Message, "kind": e.Kind})
		}
		return
	}
	if acc.SessionToken == nil || *acc.SessionToken != tokenString {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Session superseded or closed", "kind": model.KindInvalidSession})
		return
	}

	// Opportunistic sweep on every stream connect, in addition to the
	// timer-driven one.
	registry.Sweep(h.IdleTimeout)

	c.Header("Content-Type", "application/x-ndjson")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)

	sw := &streamWriter{w: c.Writer}
	frame, err := event.Encode(event.Connected{})
	if err != nil {
		return
	}
	if err := sw.Write(frame); err != nil {
		return
	}

	conn := hub.NewConnection(userID, sw)
	registry.Register(conn)
	defer registry.Unregister(conn)

	log := h.Log.WithFields(logrus.Fields{"channel": channel, "userId": userID, "connId": conn.ID()})
	log.Info("push stream opened")

	select {
	case <-c.Request.Context().Done():
		log.Info("push stream closed by client")
	case <-conn.Done():
		log.Info("push stream evicted")
	}
}
