package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter 按用户（未登录时按 IP）做令牌桶限流。
type RateLimiter struct {
	perMinute int
	limiters  sync.Map // key -> *rate.Limiter
}

// NewRateLimiter perMinute <= 0 表示不限流。
func NewRateLimiter(perMinute int) *RateLimiter {
	return &RateLimiter{perMinute: perMinute}
}

func (l *RateLimiter) limiter(key string) *rate.Limiter {
	if v, ok := l.limiters.Load(key); ok {
		return v.(*rate.Limiter)
	}
	lim := rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMinute)), l.perMinute)
	v, _ := l.limiters.LoadOrStore(key, lim)
	return v.(*rate.Limiter)
}

// Allow 消耗 key 的一个令牌。
func (l *RateLimiter) Allow(key string) bool {
	if l == nil || l.perMinute <= 0 {
		return true
	}
	return l.limiter(key).Allow()
}

// Middleware 必须在 AuthMiddleware 之后使用才能按用户区分。
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if user, ok := CurrentUser(c); ok {
			key = "user:" + strconv.FormatUint(uint64(user.ID), 10)
		}
		if !l.Allow(key) {
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":    http.StatusTooManyRequests,
				"message": "请求过于频繁，请稍后再试",
				"data":    gin.H{"error": "rate_limit_exceeded"},
			})
			return
		}
		c.Next()
	}
}
