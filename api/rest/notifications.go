package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	mw "github.com/kasuganosora/hangout/middleware"
	"github.com/kasuganosora/hangout/notify"
	"github.com/kasuganosora/hangout/social"
	"go.uber.org/zap"
)

// NotificationHandler serves the in-app notification inbox.
type NotificationHandler struct {
	store  *notify.Store
	logger *zap.Logger
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler(store *notify.Store, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{store: store, logger: logger}
}

// Unread handles GET /api/notifications.
func (h *NotificationHandler) Unread(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	list, err := h.store.Unread(c.Request.Context(), mw.GetUserID(c), limit)
	if err != nil {
		fail(c, h.logger, social.Internal("list notifications", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": list})
}

// MarkRead handles POST /api/notifications/:id/read.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	found, err := h.store.MarkRead(c.Request.Context(), mw.GetUserID(c), id)
	if err != nil {
		fail(c, h.logger, social.Internal("mark notification read", err))
		return
	}
	if !found {
		fail(c, h.logger, social.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "marked read"})
}
