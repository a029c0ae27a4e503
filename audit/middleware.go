package audit

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/hangout/middleware"
)

// Record audits the route's action when the handler succeeds. The target is
// built from the route parameters, e.g. "room_id=abc,user_id=7". Failed
// requests are left to the HTTP log.
func Record(svc *Service, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		if status < http.StatusOK || status >= http.StatusMultipleChoices {
			return
		}
		parts := make([]string, 0, len(c.Params))
		for _, p := range c.Params {
			parts = append(parts, p.Key+"="+p.Value)
		}
		svc.Log(Entry{
			TraceID:    middleware.GetTraceID(c),
			ActorID:    middleware.GetUserID(c),
			Action:     action,
			Target:     strings.Join(parts, ","),
			Detail:     gin.H{"status": status, "path": c.FullPath()},
			IP:         c.ClientIP(),
			DurationMs: int(time.Since(start).Milliseconds()),
		})
	}
}
