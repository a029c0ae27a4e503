package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/hangout/config"
	mw "github.com/kasuganosora/hangout/middleware"
	"github.com/kasuganosora/hangout/social/presence"
	"go.uber.org/zap"
)

// PresenceHandler exposes online state and live sessions.
type PresenceHandler struct {
	svc    *presence.Service
	cfg    config.PresenceConfig
	logger *zap.Logger
}

// NewPresenceHandler creates a new PresenceHandler.
func NewPresenceHandler(svc *presence.Service, cfg config.PresenceConfig, logger *zap.Logger) *PresenceHandler {
	return &PresenceHandler{svc: svc, cfg: cfg, logger: logger}
}

// Online handles GET /api/presence/:user_id.
func (h *PresenceHandler) Online(c *gin.Context) {
	userID, ok := paramID(c, "user_id")
	if !ok {
		return
	}
	online, err := h.svc.IsOnline(c.Request.Context(), userID, h.cfg.OnlineWindow)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "online": online})
}

type startLiveBody struct {
	Title string `json:"title"`
}

// StartLive handles POST /api/live.
func (h *PresenceHandler) StartLive(c *gin.Context) {
	var body startLiveBody
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	s, err := h.svc.StartLive(c.Request.Context(), mw.GetUserID(c), body.Title)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session": s})
}

// LiveNow handles GET /api/live.
func (h *PresenceHandler) LiveNow(c *gin.Context) {
	list, err := h.svc.LiveNow(c.Request.Context())
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": list})
}

// Heartbeat handles POST /api/live/:id/heartbeat.
func (h *PresenceHandler) Heartbeat(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Heartbeat(c.Request.Context(), id, mw.GetUserID(c)); err != nil {
		fail(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// EndLive handles POST /api/live/:id/end.
func (h *PresenceHandler) EndLive(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.EndLive(c.Request.Context(), id, mw.GetUserID(c)); err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "live ended"})
}
