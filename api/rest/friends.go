package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	mw "github.com/kasuganosora/hangout/middleware"
	"github.com/kasuganosora/hangout/social/friend"
	"go.uber.org/zap"
)

// FriendHandler exposes the friendship ledger.
type FriendHandler struct {
	svc    *friend.Service
	logger *zap.Logger
}

// NewFriendHandler creates a new FriendHandler.
func NewFriendHandler(svc *friend.Service, logger *zap.Logger) *FriendHandler {
	return &FriendHandler{svc: svc, logger: logger}
}

// List handles GET /api/friends.
func (h *FriendHandler) List(c *gin.Context) {
	friends, err := h.svc.List(c.Request.Context(), mw.GetUserID(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"friends": friends})
}

// Pending handles GET /api/friends/pending.
func (h *FriendHandler) Pending(c *gin.Context) {
	list, err := h.svc.ListPending(c.Request.Context(), mw.GetUserID(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": list})
}

// Outgoing handles GET /api/friends/outgoing.
func (h *FriendHandler) Outgoing(c *gin.Context) {
	list, err := h.svc.ListOutgoing(c.Request.Context(), mw.GetUserID(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": list})
}

type friendRequestBody struct {
	RecipientID int64 `json:"recipient_id" binding:"required"`
}

// SendRequest handles POST /api/friends/requests.
func (h *FriendHandler) SendRequest(c *gin.Context) {
	var body friendRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err.Error())
		return
	}
	f, err := h.svc.SendRequest(c.Request.Context(), mw.GetUserID(c), body.RecipientID)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"friendship": f})
}

type respondBody struct {
	Decision string `json:"decision" binding:"required,oneof=accept reject"`
}

// Respond handles POST /api/friends/requests/:id/respond.
func (h *FriendHandler) Respond(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var body respondBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err.Error())
		return
	}
	f, err := h.svc.Respond(c.Request.Context(), id, mw.GetUserID(c), friend.Decision(body.Decision))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"friendship": f})
}

// Cancel handles DELETE /api/friends/requests/:id.
func (h *FriendHandler) Cancel(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Cancel(c.Request.Context(), id, mw.GetUserID(c)); err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "request cancelled"})
}

// Unfriend handles DELETE /api/friends/:user_id.
func (h *FriendHandler) Unfriend(c *gin.Context) {
	other, ok := paramID(c, "user_id")
	if !ok {
		return
	}
	if err := h.svc.Unfriend(c.Request.Context(), mw.GetUserID(c), other); err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "unfriended"})
}
