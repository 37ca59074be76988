package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"chat-console-push/internal/auth"
	"chat-console-push/internal/cache"
	"chat-console-push/internal/handler"
	"chat-console-push/internal/hub"
	"chat-console-push/internal/middleware"
	"chat-console-push/internal/notify"
	"chat-console-push/internal/session"
	"chat-console-push/internal/store"
)

type Deps struct {
	Store       store.Store
	TokenConfig auth.TokenConfig
	Sessions    *hub.Registry
	Notifs      *hub.Registry
	Cache       *cache.Cache
	IdleTimeout time.Duration
	Log         *logrus.Logger
}

func NewRouter(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})

	guard := session.NewGuard(deps.Store, deps.Sessions, deps.TokenConfig, deps.Log)
	dispatcher := notify.NewDispatcher(deps.Store, deps.Notifs, deps.Cache, deps.Log)

	loginLimiter := middleware.NewRateLimiter(10, time.Minute)
	authHandler := &handler.AuthHandler{Guard: guard}
	// Limit by client IP before the body is even parsed; the bcrypt compare
	// is the expensive part worth protecting.
	r.POST("/v1/login", middleware.RateLimitMiddleware(loginLimiter), authHandler.Login)
	r.POST("/v1/logout", authHandler.Logout)

	streamHandler := &handler.StreamHandler{
		Sessions:    deps.Sessions,
		Notifs:      deps.Notifs,
		Store:       deps.Store,
		TokenConfig: deps.TokenConfig,
		IdleTimeout: deps.IdleTimeout,
		Log:         deps.Log,
	}
	// Stream credentials are checked inside the handler; the endpoints sit
	// outside the bearer-token group.
	r.GET("/v1/stream/session", streamHandler.ServeSession)
	r.GET("/v1/stream/notifications", streamHandler.ServeNotifications)

	protected := r.Group("/v1")
	protected.Use(middleware.RequireSession(deps.Store, deps.TokenConfig))

	notificationHandler := &handler.NotificationHandler{Dispatcher: dispatcher}
	protected.GET("/notifications", notificationHandler.List)
	protected.POST("/notifications/:id/read", notificationHandler.MarkRead)
	protected.POST("/notifications/read-all", notificationHandler.MarkAllRead)

	adminOnly := protected.Group("")
	adminOnly.Use(middleware.RequireAdmin())
	adminOnly.POST("/notifications", notificationHandler.Create)
	adminOnly.DELETE("/notifications/:id", notificationHandler.Delete)

	adminHandler := &handler.AdminHandler{
		Store:    deps.Store,
		Cache:    deps.Cache,
		Sessions: deps.Sessions,
		Notifs:   deps.Notifs,
	}
	adminOnly.GET("/admin/online", adminHandler.Online)
	adminOnly.GET("/admin/stats", adminHandler.Stats)

	return r
}
