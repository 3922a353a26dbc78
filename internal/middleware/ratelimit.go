package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/grovia/settlement/pkg/config"
	"github.com/grovia/settlement/pkg/logger"
	"github.com/grovia/settlement/pkg/utils"
	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type RateLimiter struct {
	visitors map[string]*visitor
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
}

func NewRateLimiter(r rate.Limit, b int) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     r,
		burst:    b,
	}

	go rl.cleanupVisitors()

	return rl
}

// NewRateLimiterFromConfig sizes the per-IP limiter from RATE_LIMIT_RPS and
// RATE_LIMIT_BURST. Settlement endpoints are idempotent, so a throttled
// client can safely retry with the same Idempotency-Key.
func NewRateLimiterFromConfig(cfg config.Config) *RateLimiter {
	return NewRateLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
}

func (rl *RateLimiter) getVisitor(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[ip]
	if !exists {
		limiter := rate.NewLimiter(rl.rate, rl.burst)
		v = &visitor{limiter: limiter, lastSeen: time.Now()}
		rl.visitors[ip] = v
		return limiter
	}

	v.lastSeen = time.Now()
	return v.limiter
}

func (rl *RateLimiter) cleanupVisitors() {
	for {
		time.Sleep(time.Minute)

		rl.mu.Lock()
		for ip, v := range rl.visitors {
			if time.Since(v.lastSeen) > 3*time.Minute {
				delete(rl.visitors, ip)
			}
		}
		rl.mu.Unlock()
	}
}

func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {

			logger.Warn("Could not split host port for rate limiting", logger.Fields{"addr": r.RemoteAddr, "error": err.Error()})
			ip = r.RemoteAddr
		}

		limiter := rl.getVisitor(ip)
		if !limiter.Allow() {
			logger.Warn("Request throttled", logger.Fields{
				"ip":     ip,
				"method": r.Method,
				"path":   r.URL.Path,
			})
			utils.BuildErrorResponse(w, http.StatusTooManyRequests, "Too many requests, retry with the same Idempotency-Key", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}
