package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"chat-console-push/internal/middleware"
	"chat-console-push/internal/notify"
)

type NotificationHandler struct {
	Dispatcher *notify.Dispatcher
}

type createNotificationBody struct {
	Title       string `json:"title"`
	Content     string `json:"content"`
	RecipientID *int64 `json:"recipientId"`
}

func (h *NotificationHandler) Create(c *gin.Context) {
	senderID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session token"})
		return
	}

	var body createNotificationBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if body.Title == "" || body.Content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Title and content are required"})
		return
	}

	n, err := h.Dispatcher.Create(c.Request.Context(), body.Title, body.Content, senderID, body.RecipientID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Notification created", "notification": n})
}

func (h *NotificationHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid notification id"})
		return
	}

	if err := h.Dispatcher.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Notification deleted", "id": id})
}

func (h *NotificationHandler) MarkRead(c *gin.Context) {
	callerID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session token"})
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid notification id"})
		return
	}

	if err := h.Dispatcher.MarkRead(c.Request.Context(), id, callerID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Notification marked as read", "id": id})
}

func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	callerID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session token"})
		return
	}

	if err := h.Dispatcher.MarkAllRead(c.Request.Context(), callerID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "All notifications marked as read"})
}

// List returns the rows visible to the caller; admins see all rows.
func (h *NotificationHandler) List(c *gin.Context) {
	callerID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session token"})
		return
	}

	var scope *int64
	if !middleware.IsAdminFromContext(c) {
		scope = &callerID
	}

	list, err := h.Dispatcher.List(c.Request.Context(), scope)
	if err != nil {
		respondError(c, err)
		return
	}

	unread := 0
	for _, n := range list {
		if !n.Read {
			unread++
		}
	}
	c.JSON(http.StatusOK, gin.H{"notifications": list, "unread": unread})
}
