package rest

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	mw "github.com/kasuganosora/hangout/middleware"
	"github.com/kasuganosora/hangout/social"
	"github.com/kasuganosora/hangout/social/room"
	"go.uber.org/zap"
)

// RoomHandler exposes the room membership registry.
type RoomHandler struct {
	svc    *room.Service
	logger *zap.Logger
}

// NewRoomHandler creates a new RoomHandler.
func NewRoomHandler(svc *room.Service, logger *zap.Logger) *RoomHandler {
	return &RoomHandler{svc: svc, logger: logger}
}

type createRoomBody struct {
	Name            string `json:"name" binding:"required"`
	Privacy         string `json:"privacy"`
	MaxMembers      int    `json:"max_members" binding:"gte=0"`
	RequireApproval bool   `json:"require_approval"`
}

// Create handles POST /api/rooms.
func (h *RoomHandler) Create(c *gin.Context) {
	var body createRoomBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err.Error())
		return
	}
	r, err := h.svc.CreateRoom(c.Request.Context(), mw.GetUserID(c), room.Spec{
		Name:            body.Name,
		Privacy:         body.Privacy,
		MaxMembers:      body.MaxMembers,
		RequireApproval: body.RequireApproval,
	})
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"room": r})
}

// ListPublic handles GET /api/rooms.
func (h *RoomHandler) ListPublic(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	rooms, err := h.svc.ListPublic(c.Request.Context(), limit)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

// Detail handles GET /api/rooms/:room_id.
func (h *RoomHandler) Detail(c *gin.Context) {
	ctx := c.Request.Context()
	r, err := h.svc.Get(ctx, c.Param("room_id"))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	members, err := h.svc.Members(ctx, r.RoomID)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": r, "members": members})
}

// Join handles POST /api/rooms/:room_id/join. A pending membership answers
// 202 until an admin approves it.
func (h *RoomHandler) Join(c *gin.Context) {
	m, err := h.svc.JoinRoom(c.Request.Context(), mw.GetUserID(c), c.Param("room_id"))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	status := http.StatusOK
	if m.PendingApproval {
		status = http.StatusAccepted
	}
	c.JSON(status, gin.H{"membership": m})
}

// Leave handles POST /api/rooms/:room_id/leave.
func (h *RoomHandler) Leave(c *gin.Context) {
	if err := h.svc.LeaveRoom(c.Request.Context(), mw.GetUserID(c), c.Param("room_id")); err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "left room"})
}

// Promote handles POST /api/rooms/:room_id/members/:user_id/promote.
func (h *RoomHandler) Promote(c *gin.Context) {
	h.moderate(c, h.svc.Promote)
}

// Demote handles POST /api/rooms/:room_id/members/:user_id/demote.
func (h *RoomHandler) Demote(c *gin.Context) {
	h.moderate(c, h.svc.Demote)
}

// Approve handles POST /api/rooms/:room_id/members/:user_id/approve.
func (h *RoomHandler) Approve(c *gin.Context) {
	h.moderate(c, h.svc.Approve)
}

func (h *RoomHandler) moderate(c *gin.Context, op func(ctx context.Context, actor social.Actor, roomID string, userID int64) error) {
	target, ok := paramID(c, "user_id")
	if !ok {
		return
	}
	if err := op(c.Request.Context(), mw.GetActor(c), c.Param("room_id"), target); err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "ok"})
}
