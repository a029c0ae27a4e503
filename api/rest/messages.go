package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	mw "github.com/kasuganosora/hangout/middleware"
	"github.com/kasuganosora/hangout/social/chat"
	"go.uber.org/zap"
)

// MessageHandler exposes message posting, history and reactions.
type MessageHandler struct {
	svc    *chat.Service
	logger *zap.Logger
}

// NewMessageHandler creates a new MessageHandler.
func NewMessageHandler(svc *chat.Service, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{svc: svc, logger: logger}
}

type postBody struct {
	Text string `json:"text" binding:"required"`
}

// PostToRoom handles POST /api/rooms/:room_id/messages.
func (h *MessageHandler) PostToRoom(c *gin.Context) {
	var body postBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err.Error())
		return
	}
	msg, err := h.svc.PostMessage(c.Request.Context(), mw.GetUserID(c), chat.Target{RoomID: c.Param("room_id")}, body.Text)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// PostToUser handles POST /api/users/:user_id/messages.
func (h *MessageHandler) PostToUser(c *gin.Context) {
	to, ok := paramID(c, "user_id")
	if !ok {
		return
	}
	var body postBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err.Error())
		return
	}
	msg, err := h.svc.PostMessage(c.Request.Context(), mw.GetUserID(c), chat.Target{ToUserID: to}, body.Text)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// RoomHistory handles GET /api/rooms/:room_id/messages?before=&limit=.
func (h *MessageHandler) RoomHistory(c *gin.Context) {
	before, limit := page(c)
	msgs, err := h.svc.History(c.Request.Context(), mw.GetUserID(c), c.Param("room_id"), before, limit)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// Conversation handles GET /api/users/:user_id/messages?before=&limit=.
func (h *MessageHandler) Conversation(c *gin.Context) {
	other, ok := paramID(c, "user_id")
	if !ok {
		return
	}
	before, limit := page(c)
	msgs, err := h.svc.Conversation(c.Request.Context(), mw.GetUserID(c), other, before, limit)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

type reactionBody struct {
	Emoji string `json:"emoji" binding:"required"`
}

// ToggleReaction handles POST /api/messages/:id/reactions.
func (h *MessageHandler) ToggleReaction(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var body reactionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err.Error())
		return
	}
	msg, err := h.svc.ToggleReaction(c.Request.Context(), id, mw.GetUserID(c), body.Emoji)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message_id": msg.ID,
		"reactions":  msg.ReactionList(),
		"version":    msg.Version,
	})
}
