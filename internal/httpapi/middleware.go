package httpapi

import (
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"ai-workout-planner/internal/apierr"
	"ai-workout-planner/internal/auth"
	"ai-workout-planner/internal/logger"
)

const (
	ctxUserID  = "user_id"
	ctxGuestID = "guest_id"

	// TokenCookie carries the account system's JWT for browser callers.
	TokenCookie = "wp_token"
	// GuestCookie identifies an anonymous caller across requests.
	GuestCookie = "wp_guest"
)

func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if log == nil {
			return
		}

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		fields := []any{
			"method", strings.ToUpper(c.Request.Method),
			"path", path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if id := c.GetString(ctxUserID); id != "" {
			fields = append(fields, "user_id", id)
		}
		if id := c.GetString(ctxGuestID); id != "" {
			fields = append(fields, "guest_id", id)
		}

		switch {
		case status >= 500:
			log.Error("HTTP request", fields...)
		case status >= 400:
			log.Warn("HTTP request", fields...)
		default:
			log.Info("HTTP request", fields...)
		}
	}
}

// CORS allows the listed origins. A "*" entry opens the API to any origin
// without credentials.
func CORS(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Authorization", "Content-Type", "Accept", "X-Requested-With"},
		MaxAge:       12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}

// RateLimiter hands out one token bucket per client IP.
type RateLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewRateLimiter allows perMinute requests per client, all of which may
// arrive in a burst.
func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(float64(perMinute) / time.Minute.Seconds()),
		burst:    perMinute,
	}
}

func (rl *RateLimiter) Allow(key string) bool {
	return rl.limiter(key).Allow()
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	rl.mu.RLock()
	l, ok := rl.limiters[key]
	rl.mu.RUnlock()
	if ok {
		return l
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if l, ok := rl.limiters[key]; ok {
		return l
	}
	l = rate.NewLimiter(rl.limit, rl.burst)
	rl.limiters[key] = l
	return l
}

// Middleware rejects callers over their budget with 429 rate_limited.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"ok": false, "error": apierr.CodeRateLimited})
			return
		}
		c.Next()
	}
}

// Identify attaches the user id of a valid bearer token or token cookie.
// Requests without one, or with a bad one, continue anonymously.
func Identify(v *auth.Verifier, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if v == nil || !v.Enabled() {
			c.Next()
			return
		}
		token := extractToken(c)
		if token == "" {
			c.Next()
			return
		}
		userID, err := v.Verify(token)
		if err != nil {
			log.Debug("ignoring invalid token", "error", err)
			c.Next()
			return
		}
		c.Set(ctxUserID, userID)
		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		if after, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(after)
		}
	}
	if cookie, err := c.Cookie(TokenCookie); err == nil {
		return strings.TrimSpace(cookie)
	}
	return ""
}

// GuestSession gives every anonymous caller a stable UUID cookie.
func GuestSession(ttl time.Duration, secure bool) gin.HandlerFunc {
	maxAge := int(ttl.Seconds())
	return func(c *gin.Context) {
		if c.GetString(ctxUserID) != "" {
			c.Next()
			return
		}
		id, err := c.Cookie(GuestCookie)
		if err != nil || uuid.Validate(id) != nil {
			id = uuid.NewString()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(GuestCookie, id, maxAge, "/", "", secure, true)
		}
		c.Set(ctxGuestID, id)
		c.Next()
	}
}

// RequireAuth stops anonymous callers with 401 not_authenticated.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ctxUserID) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"ok": false, "error": apierr.CodeNotAuthenticated})
			return
		}
		c.Next()
	}
}
