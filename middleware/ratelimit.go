package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// KeyFunc picks the bucket a request is charged to. An empty key skips
// limiting.
type KeyFunc func(c *gin.Context) string

// ByIP charges the client address.
func ByIP(c *gin.Context) string { return "ip:" + c.ClientIP() }

// ByUser charges the authenticated user and must run after Auth.
func ByUser(c *gin.Context) string {
	if uid := GetUserID(c); uid != 0 {
		return "user:" + strconv.FormatInt(uid, 10)
	}
	return ""
}

type bucket struct {
	limiter  *rate.Limiter
	mu       sync.Mutex
	lastSeen time.Time
}

func (b *bucket) touch(now time.Time) {
	b.mu.Lock()
	b.lastSeen = now
	b.mu.Unlock()
}

func (b *bucket) idleSince(cutoff time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastSeen.Before(cutoff)
}

// RateLimit applies a token bucket per key: r requests per second with a
// burst of b.
func RateLimit(key KeyFunc, r rate.Limit, b int) gin.HandlerFunc {
	buckets := &sync.Map{}

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			cutoff := time.Now().Add(-10 * time.Minute)
			buckets.Range(func(k, v interface{}) bool {
				if v.(*bucket).idleSince(cutoff) {
					buckets.Delete(k)
				}
				return true
			})
		}
	}()

	return func(c *gin.Context) {
		k := key(c)
		if k == "" {
			c.Next()
			return
		}
		v, _ := buckets.LoadOrStore(k, &bucket{limiter: rate.NewLimiter(r, b)})
		bk := v.(*bucket)
		bk.touch(time.Now())
		if !bk.limiter.Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
