package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/rstamps01/rag-app-sub001/internal/pkg/errcode"
	"github.com/rstamps01/rag-app-sub001/internal/pkg/response"
)

// pruneEvery bounds the per-key map: expired entries are swept once this
// many requests have passed since the last sweep.
const pruneEvery = 1024

type rateLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	last    map[string]time.Time
	untilGC int
}

// RateLimit allows one request per (client ip, path) per window. Meant for
// the expensive endpoints, upload and query. A non-positive window disables
// the limiter.
func RateLimit(window time.Duration) gin.HandlerFunc {
	l := &rateLimiter{
		window:  window,
		last:    make(map[string]time.Time),
		untilGC: pruneEvery,
	}
	return l.handle
}

func (l *rateLimiter) handle(c *gin.Context) {
	if l.window <= 0 {
		c.Next()
		return
	}
	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}
	ip := c.ClientIP()
	if l.tryPass(strings.Join([]string{ip, path}, "|")) {
		c.Next()
		return
	}
	logutil.GetLogger(c.Request.Context()).Warn("rate limit hit",
		zap.String("ip", ip),
		zap.String("path", path),
	)
	response.Error(c, errcode.ErrTooMany, http.StatusText(http.StatusTooManyRequests))
	c.Abort()
}

func (l *rateLimiter) tryPass(key string) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if last, ok := l.last[key]; ok && now.Sub(last) < l.window {
		return false
	}
	l.last[key] = now
	if l.untilGC--; l.untilGC <= 0 {
		for k, t := range l.last {
			if now.Sub(t) >= l.window {
				delete(l.last, k)
			}
		}
		l.untilGC = pruneEvery
	}
	return true
}
