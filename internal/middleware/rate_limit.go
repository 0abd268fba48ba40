// internal/middleware/rate_limit.go
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/campushub/backend/internal/i18n"
	"github.com/campushub/backend/internal/utils"
)

// RateLimitPolicy is one class of routes sharing a token bucket per caller.
type RateLimitPolicy struct {
	Name    string
	Every   time.Duration
	Burst   int
	IdleTTL time.Duration
}

// Route classes. Authenticated routes are keyed by profile, the rest by
// client IP.
var (
	GeneralPolicy = RateLimitPolicy{Name: "general", Every: time.Second, Burst: 10, IdleTTL: 3 * time.Minute}
	AuthPolicy    = RateLimitPolicy{Name: "auth", Every: time.Minute, Burst: 5, IdleTTL: 10 * time.Minute}
	UploadPolicy  = RateLimitPolicy{Name: "upload", Every: time.Minute, Burst: 10, IdleTTL: 10 * time.Minute}
	ChatPolicy    = RateLimitPolicy{Name: "assistant", Every: 6 * time.Second, Burst: 5, IdleTTL: 10 * time.Minute}
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type RateLimiter struct {
	policy   RateLimitPolicy
	visitors map[string]*visitor
	mtx      sync.Mutex
	stop     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter starts a janitor that drops callers idle for longer than
// the policy's IdleTTL. Stop ends it.
func NewRateLimiter(policy RateLimitPolicy) *RateLimiter {
	if policy.IdleTTL <= 0 {
		policy.IdleTTL = 3 * time.Minute
	}
	rl := &RateLimiter{
		policy:   policy,
		visitors: make(map[string]*visitor),
		stop:     make(chan struct{}),
	}

	go rl.janitor()

	return rl
}

func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) janitor() {
	ticker := time.NewTicker(rl.policy.IdleTTL / 3)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case now := <-ticker.C:
			rl.evictIdle(now)
		}
	}
}

// evictIdle removes callers last seen before now minus IdleTTL and reports
// how many were dropped.
func (rl *RateLimiter) evictIdle(now time.Time) int {
	rl.mtx.Lock()
	defer rl.mtx.Unlock()

	evicted := 0
	for key, v := range rl.visitors {
		if now.Sub(v.lastSeen) > rl.policy.IdleTTL {
			delete(rl.visitors, key)
			evicted++
		}
	}
	return evicted
}

func (rl *RateLimiter) limiterFor(key string, now time.Time) *rate.Limiter {
	rl.mtx.Lock()
	defer rl.mtx.Unlock()

	v, exists := rl.visitors[key]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(rate.Every(rl.policy.Every), rl.policy.Burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter
}

// callerKey prefers the authenticated profile so that callers behind one
// campus NAT do not share a bucket.
func callerKey(c *gin.Context) string {
	if id, ok := utils.GetProfileIDFromContext(c); ok {
		return "profile:" + id.String()
	}
	return "ip:" + c.ClientIP()
}

func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := callerKey(c)
		now := time.Now()

		reservation := rl.limiterFor(key, now).ReserveN(now, 1)
		if reservation.OK() && reservation.DelayFrom(now) == 0 {
			c.Next()
			return
		}

		fields := logrus.Fields{
			"policy": rl.policy.Name,
			"caller": key,
			"path":   c.FullPath(),
		}
		if reservation.OK() {
			delay := reservation.DelayFrom(now)
			reservation.CancelAt(now)
			retryAfter := int(math.Ceil(delay.Seconds()))
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			fields["retry_after"] = retryAfter
		}
		logrus.WithFields(fields).Warn("Rate limit exceeded")

		lang := utils.GetLangFromContext(c)
		utils.ErrorResponse(c, http.StatusTooManyRequests, "RATE_LIMITED", i18n.T(lang, i18n.KeyRateLimited), nil)
		c.Abort()
	}
}

var (
	generalLimiter = NewRateLimiter(GeneralPolicy)
	authLimiter    = NewRateLimiter(AuthPolicy)
	uploadLimiter  = NewRateLimiter(UploadPolicy)
	chatLimiter    = NewRateLimiter(ChatPolicy)
)

func GeneralRateLimit() gin.HandlerFunc {
	return generalLimiter.Middleware()
}

func AuthRateLimit() gin.HandlerFunc {
	return authLimiter.Middleware()
}

func UploadRateLimit() gin.HandlerFunc {
	return uploadLimiter.Middleware()
}

func ChatRateLimit() gin.HandlerFunc {
	return chatLimiter.Middleware()
}
