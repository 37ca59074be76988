package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-console-push/internal/model"
	"chat-console-push/internal/session"
)

type AuthHandler struct {
	Guard *session.Guard
}

type loginBody struct {
	Username     string `json:"username"`
	PasswordHash string `json:"passwordHash"`
	ForceLogin   bool   `json:"forceLogin"`
}

type logoutBody struct {
	UserID       int64  `json:"userId"`
	SessionToken string `json:"sessionToken"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var body loginBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if body.Username == "" || body.PasswordHash == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username and password are required"})
		return
	}

	res, err := h.Guard.Login(c.Request.Context(), body.Username, body.PasswordHash, body.ForceLogin)
	if err != nil {
		e := model.AsError(err)
		if e.Kind == model.KindConflictingSession {
			// Distinct from a generic auth failure so the client can
			// offer the forced-login affordance.
			c.JSON(e.StatusCode, gin.H{
				"requireForceLogin": true,
				"userId":            e.UserID,
				"kind":              e.Kind,
			})
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Login successful",
		"token":   res.Token,
		"userId":  res.UserID,
		"isAdmin": res.IsAdmin,
	})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	var body logoutBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if body.UserID <= 0 || body.SessionToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId and sessionToken are required"})
		return
	}

	if err := h.Guard.Logout(c.Request.Context(), body.UserID, body.SessionToken); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}
