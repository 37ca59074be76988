package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"chat-console-push/internal/auth"
	"chat-console-push/internal/model"
	"chat-console-push/internal/store"
)

const (
	userIDContextKey  = "userID"
	isAdminContextKey = "isAdmin"
)

func UserIDFromContext(c *gin.Context) (int64, bool) {
	v, ok := c.Get(userIDContextKey)
	if !ok {
		return 0, false
	}
	userID, ok := v.(int64)
	return userID, ok && userID > 0
}

func IsAdminFromContext(c *gin.Context) bool {
	v, ok := c.Get(isAdminContextKey)
	if !ok {
		return false
	}
	isAdmin, _ := v.(bool)
	return isAdmin
}

// RequireSession verifies the bearer token signature and then checks it
// against the account's stored session token, so a token superseded by a
// forced login is rejected even before it expires.
func RequireSession(st store.Store, cfg auth.TokenConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session token", "kind": model.KindInvalidSession})
			c.Abort()
			return
		}

		claims, err := auth.VerifyToken(parts[1], cfg)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session token", "kind": model.KindInvalidSession})
			c.Abort()
			return
		}

		acc, err := st.GetAccountByID(c.Request.Context(), claims.UserID)
		if err != nil {
			e := model.AsError(err)
			if e.Kind == model.KindNotFound {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session token", "kind": model.KindInvalidSession})
			} else {
				c.JSON(e.StatusCode, gin.H{"error": e.Message, "kind": e.Kind})
			}
			c.Abort()
			return
		}
		if acc.SessionToken == nil || *acc.SessionToken != parts[1] {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Session superseded or closed", "kind": model.KindInvalidSession})
			c.Abort()
			return
		}

		c.Set(userIDContextKey, acc.ID)
		c.Set(isAdminContextKey, acc.IsAdmin)
		c.Next()
	}
}

// RequireAdmin must run after RequireSession.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsAdminFromContext(c) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Admin access required", "kind": model.KindForbidden})
			c.Abort()
			return
		}
		c.Next()
	}
}
