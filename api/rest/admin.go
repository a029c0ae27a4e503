package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/hangout/audit"
	"github.com/kasuganosora/hangout/model"
	"github.com/kasuganosora/hangout/scheduler"
	"github.com/kasuganosora/hangout/social"
	"github.com/kasuganosora/hangout/social/room"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AdminHandler serves moderation and operations endpoints. Routes are
// guarded by AdminAuth and the admin IP whitelist.
type AdminHandler struct {
	db     *gorm.DB
	rooms  *room.Service
	audit  *audit.Service
	sched  *scheduler.Scheduler
	socks  Disconnector
	logger *zap.Logger
}

// Disconnector drops a user's attached sockets.
type Disconnector interface {
	Disconnect(userID int64) int
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(db *gorm.DB, rooms *room.Service, a *audit.Service, sched *scheduler.Scheduler, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{db: db, rooms: rooms, audit: a, sched: sched, logger: logger}
}

// SetDisconnector makes bans close the user's open sockets.
func (h *AdminHandler) SetDisconnector(d Disconnector) { h.socks = d }

// RoomHistory returns every membership a room has had.
// GET /api/admin/rooms/:room_id/history
func (h *AdminHandler) RoomHistory(c *gin.Context) {
	ctx := c.Request.Context()
	r, err := h.rooms.Get(ctx, c.Param("room_id"))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	list, err := h.rooms.History(ctx, r.RoomID)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": r, "memberships": list})
}

// Audit returns recent audit rows.
// GET /api/admin/audit?actor_id=&action=&target=&limit=
func (h *AdminHandler) Audit(c *gin.Context) {
	q := audit.Query{Action: c.Query("action"), Target: c.Query("target")}
	q.ActorID, _ = strconv.ParseInt(c.Query("actor_id"), 10, 64)
	q.Limit, _ = strconv.Atoi(c.Query("limit"))
	rows, err := h.audit.Recent(c.Request.Context(), q)
	if err != nil {
		fail(c, h.logger, social.Internal("query audit", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": rows})
}

// Tasks lists the background tasks and their run counters.
// GET /api/admin/scheduler
func (h *AdminHandler) Tasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": h.sched.Tasks()})
}

// BanUser bans or unbans a user. Banned users cannot log in again.
// POST /api/admin/users/:user_id/ban
func (h *AdminHandler) BanUser(c *gin.Context) {
	userID, ok := paramID(c, "user_id")
	if !ok {
		return
	}
	var req struct {
		Ban bool `json:"ban"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	status := 1
	if req.Ban {
		status = 0
	}
	res := h.db.WithContext(c.Request.Context()).Model(&model.User{}).Where("id = ?", userID).Update("status", status)
	if res.Error != nil {
		fail(c, h.logger, social.Internal("ban user", res.Error))
		return
	}
	if res.RowsAffected == 0 {
		fail(c, h.logger, social.ErrNotFound)
		return
	}
	dropped := 0
	if req.Ban && h.socks != nil {
		dropped = h.socks.Disconnect(userID)
	}
	h.logger.Info("user ban updated", zap.Int64("user_id", userID), zap.Bool("ban", req.Ban), zap.Int("sockets_closed", dropped))
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "banned": req.Ban})
}
