package middleware

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/hangout/cache"
	"go.uber.org/zap"
)

// Toucher records user activity.
type Toucher interface {
	Touch(ctx context.Context, userID int64) error
}

// ThrottledTouch forwards to t at most once per user per interval. A zero
// interval touches every time. A failed touch clears the throttle so the
// next call retries.
func ThrottledTouch(ctx context.Context, t Toucher, c cache.Cache, interval time.Duration, userID int64) error {
	if interval <= 0 {
		return t.Touch(ctx, userID)
	}
	key := "presence:touch:" + strconv.FormatInt(userID, 10)
	fresh, err := c.SetNX(ctx, key, "1", interval)
	if err == nil && !fresh {
		return nil
	}
	if err := t.Touch(ctx, userID); err != nil {
		_ = c.Del(ctx, key)
		return err
	}
	return nil
}

// Touch refreshes the caller's presence after the request is handled.
func Touch(t Toucher, c cache.Cache, interval time.Duration, log *zap.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.Next()

		userID := GetUserID(ctx)
		if userID == 0 {
			return
		}
		bg, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := ThrottledTouch(bg, t, c, interval, userID); err != nil {
			log.Warn("presence touch failed", zap.Int64("user_id", userID), zap.Error(err))
		}
	}
}
