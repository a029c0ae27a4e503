package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/kasuganosora/hangout/cache"
	"github.com/kasuganosora/hangout/config"
	"github.com/kasuganosora/hangout/metrics"
	mw "github.com/kasuganosora/hangout/middleware"
	"github.com/kasuganosora/hangout/model"
	"github.com/kasuganosora/hangout/realtime"
	"github.com/kasuganosora/hangout/social"
	"go.uber.org/zap"
)

// Rooms is the room lookup the socket needs to pick and check subscriptions.
type Rooms interface {
	realtime.RoomLister
	Get(ctx context.Context, roomID string) (*model.Room, error)
	IsActiveMember(ctx context.Context, roomPK, userID int64) (bool, error)
}

// Presence records activity and live-session heartbeats.
type Presence interface {
	mw.Toucher
	Heartbeat(ctx context.Context, sessionID, ownerID int64) error
}

// Deps groups what the socket handler talks to.
type Deps struct {
	Subscriber    realtime.Subscriber
	Rooms         Rooms
	Recent        realtime.RecentSource
	Presence      Presence
	Cache         cache.Cache
	Security      config.SecurityConfig
	TouchInterval time.Duration
}

// Handler is the Gin handler for GET /ws.
type Handler struct {
	deps     Deps
	sm       *SessionManager
	router   *Router
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket Handler.
// deps.Security.AllowedOrigins controls which WebSocket origins are accepted.
// An empty slice permits all origins (development only).
func NewHandler(deps Deps, sm *SessionManager, logger *zap.Logger) *Handler {
	h := &Handler{
		deps:   deps,
		sm:     sm,
		router: NewRouter(logger),
		logger: logger,
	}
	allowed := deps.Security.AllowedOrigins
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true // dev mode: allow all
			}
			origin := r.Header.Get("Origin")
			for _, o := range allowed {
				if o == origin {
					return true
				}
			}
			return false
		},
	}
	h.registerHandlers()
	return h
}

// ServeWS handles GET /ws?token=<jwt>.
func (h *Handler) ServeWS(c *gin.Context) {
	tokenStr := c.Query("token")
	if tokenStr == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	claims, err := mw.Authenticate(c.Request.Context(), tokenStr, h.deps.Security, h.deps.Cache)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": social.PublicMessage(err)})
		return
	}

	roomIDs, err := h.deps.Rooms.ActiveRoomIDs(c.Request.Context(), claims.UserID)
	if err != nil {
		h.logger.Error("ws room lookup failed", zap.Int64("user_id", claims.UserID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": social.PublicMessage(social.ErrInternal)})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}

	s := NewSession(claims.UserID, claims.Role, conn, h.logger)
	// Detached from the request: the hijacked connection outlives it.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Reply("connected", gin.H{"user_id": claims.UserID, "session_id": s.ID, "rooms": roomIDs})
	st, err := realtime.OpenStream(ctx, h.deps.Subscriber, claims.UserID, roomIDs)
	if err != nil {
		h.logger.Error("ws subscribe failed", zap.Int64("user_id", claims.UserID), zap.Error(err))
		s.Close()
		return
	}
	s.Attach(st)
	h.replay(ctx, s, roomIDs...)

	h.sm.Register(s)
	metrics.StreamConnections.WithLabelValues("ws").Inc()
	defer metrics.StreamConnections.WithLabelValues("ws").Dec()

	h.readPump(ctx, s)
}

func (h *Handler) replay(ctx context.Context, s *Session, roomIDs ...string) {
	backlog, err := realtime.Backlog(ctx, h.deps.Recent, roomIDs)
	if err != nil {
		h.logger.Warn("ws backlog incomplete", zap.Int64("user_id", s.UserID), zap.Error(err))
	}
	for _, ev := range backlog {
		s.SendEvent(ev)
	}
}

// readPump reads messages from the WebSocket connection and dispatches them.
func (h *Handler) readPump(ctx context.Context, s *Session) {
	defer h.handleDisconnect(s)

	s.SetReadDeadline()
	s.Conn.SetPongHandler(func(string) error {
		s.SetReadDeadline()
		return nil
	})

	for {
		_, raw, err := s.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived) && !s.IsClosed() {
				h.logger.Warn("ws unexpected close", zap.Int64("user_id", s.UserID), zap.Error(err))
			}
			return
		}
		s.SetReadDeadline()
		h.touch(ctx, s.UserID)
		h.router.Dispatch(ctx, s, raw)
	}
}

// touch records activity for any inbound packet.
func (h *Handler) touch(ctx context.Context, userID int64) {
	tctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := mw.ThrottledTouch(tctx, h.deps.Presence, h.deps.Cache, h.deps.TouchInterval, userID); err != nil {
		h.logger.Warn("presence touch failed", zap.Int64("user_id", userID), zap.Error(err))
	}
}

// handleDisconnect cleans up the session after the connection closes.
func (h *Handler) handleDisconnect(s *Session) {
	s.Close()
	h.sm.Unregister(s)
	h.logger.Info("ws disconnected", zap.Int64("user_id", s.UserID), zap.String("session_id", s.ID))
}
