package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"chat-console-push/internal/cache"
	"chat-console-push/internal/hub"
	"chat-console-push/internal/store"
)

const (
	onlineUsersTTL = 15 * time.Second
	statsTTL       = 60 * time.Second

	onlineUsersCacheKey = "online:users"
	statsCacheKey       = "admin:stats"
)

// AdminHandler serves the console's observation endpoints. Both reads go
// through the cache; short TTLs absorb dashboard polling bursts without
// visible staleness.
type AdminHandler struct {
	Store    store.Store
	Cache    *cache.Cache
	Sessions *hub.Registry
	Notifs   *hub.Registry
}

// Online reports the users holding at least one live notification-channel
// connection.
func (h *AdminHandler) Online(c *gin.Context) {
	v, err := h.Cache.GetOrSet(onlineUsersCacheKey, onlineUsersTTL, func() (any, error) {
		return h.Notifs.OnlineUserIDs(), nil
	})
	if err != nil {
		respondError(c, err)
		return
	}
	ids := v.([]int64)
	c.JSON(http.StatusOK, gin.H{"online": ids, "count": len(ids)})
}

type statsSnapshot struct {
	Accounts      int64 `json:"accounts"`
	Notifications int64 `json:"notifications"`
}

func (h *AdminHandler) Stats(c *gin.Context) {
	ctx := c.Request.Context()
	v, err := h.Cache.GetOrSet(statsCacheKey, statsTTL, func() (any, error) {
		accounts, err := h.Store.CountAccounts(ctx)
		if err != nil {
			return nil, err
		}
		notifications, err := h.Store.CountNotifications(ctx)
		if err != nil {
			return nil, err
		}
		return statsSnapshot{Accounts: accounts, Notifications: notifications}, nil
	})
	if err != nil {
		respondError(c, err)
		return
	}

	snap := v.(statsSnapshot)
	c.JSON(http.StatusOK, gin.H{
		"accounts":                snap.Accounts,
		"notifications":           snap.Notifications,
		"sessionConnections":      h.Sessions.Len(),
		"notificationConnections": h.Notifs.Len(),
	})
}
