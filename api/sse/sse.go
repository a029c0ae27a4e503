package sse

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/hangout/cache"
	"github.com/kasuganosora/hangout/config"
	"github.com/kasuganosora/hangout/metrics"
	mw "github.com/kasuganosora/hangout/middleware"
	"github.com/kasuganosora/hangout/realtime"
	"github.com/kasuganosora/hangout/social"
	"go.uber.org/zap"
)

const defaultKeepalive = 30 * time.Second

// Handler handles the SSE endpoint.
type Handler struct {
	sub       realtime.Subscriber
	rooms     realtime.RoomLister
	recent    realtime.RecentSource
	c         cache.Cache
	sec       config.SecurityConfig
	keepalive time.Duration
	logger    *zap.Logger
}

// NewHandler creates a new SSE Handler.
func NewHandler(sub realtime.Subscriber, rooms realtime.RoomLister, recent realtime.RecentSource,
	c cache.Cache, sec config.SecurityConfig, logger *zap.Logger) *Handler {
	return &Handler{
		sub: sub, rooms: rooms, recent: recent,
		c: c, sec: sec, keepalive: defaultKeepalive, logger: logger,
	}
}

// SetKeepalive changes how often an idle stream gets a comment line.
func (h *Handler) SetKeepalive(d time.Duration) {
	if d > 0 {
		h.keepalive = d
	}
}

// ServeSSE handles GET /sse?token=<jwt>.
// The stream carries the caller's personal events, the live feed and the
// events of every room the caller was active in when connecting. A room
// drops out of the stream once the caller leaves it. Clients reconnect to
// pick up rooms joined later.
func (h *Handler) ServeSSE(c *gin.Context) {
	tokenStr := c.Query("token")
	if tokenStr == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	claims, err := mw.Authenticate(c.Request.Context(), tokenStr, h.sec, h.c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": social.PublicMessage(err)})
		return
	}
	log := h.logger.With(zap.Int64("user_id", claims.UserID), zap.String("trace_id", mw.GetTraceID(c)))

	roomIDs, err := h.rooms.ActiveRoomIDs(c.Request.Context(), claims.UserID)
	if err != nil {
		log.Error("sse room lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": social.PublicMessage(social.ErrInternal)})
		return
	}

	subCtx, subCancel := context.WithCancel(c.Request.Context())
	defer subCancel()

	st, err := realtime.OpenStream(subCtx, h.sub, claims.UserID, roomIDs)
	if err != nil {
		log.Error("sse subscribe failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": social.PublicMessage(social.ErrInternal)})
		return
	}
	defer st.Close()
	events := st.Events()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	metrics.StreamConnections.WithLabelValues("sse").Inc()
	defer metrics.StreamConnections.WithLabelValues("sse").Dec()

	c.SSEvent("connected", gin.H{"user_id": claims.UserID, "rooms": roomIDs})
	backlog, err := realtime.Backlog(subCtx, h.recent, roomIDs)
	if err != nil {
		log.Warn("sse backlog incomplete", zap.Error(err))
	}
	for _, ev := range backlog {
		c.SSEvent(ev.Type, ev)
	}
	c.Writer.Flush()

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.SSEvent(ev.Type, ev)
			c.Writer.Flush()

		case <-ticker.C:
			// Keepalive comment to prevent proxy timeouts.
			fmt.Fprintf(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()

		case <-c.Request.Context().Done():
			return
		}
	}
}
