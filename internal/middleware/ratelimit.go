package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/radiusdt/adpulse/internal/config"
	"github.com/radiusdt/adpulse/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// IngestPath is the event ingestion endpoint. It gets its own, larger
// budget so reporting traffic cannot starve event collection.
const IngestPath = "/api/analytics/events"

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// trafficClass is one budget: a global bucket shared by every client and a
// bucket per client IP.
type trafficClass struct {
	name    string
	global  *rate.Limiter
	ipRPS   rate.Limit
	ipBurst int
}

// RateLimitMiddleware implements token bucket rate limiting. Ingest and
// query traffic are separate classes, each with a global bucket and one
// bucket per client IP.
type RateLimitMiddleware struct {
	cfg     config.RateLimitConfig
	logger  *zap.Logger
	metrics *metrics.Metrics
	ingest  *trafficClass
	query   *trafficClass

	mu         sync.Mutex
	ipLimiters map[string]*ipLimiter
}

// NewRateLimitMiddleware creates a new rate limiting middleware.
func NewRateLimitMiddleware(cfg config.RateLimitConfig, logger *zap.Logger, m *metrics.Metrics) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		cfg:        cfg,
		logger:     logger,
		metrics:    m,
		ingest:     newTrafficClass("ingest", cfg.IngestRPS, cfg.IngestBurst, cfg.IngestIPRPS, cfg.IngestIPBurst),
		query:      newTrafficClass("query", cfg.RPS, cfg.Burst, cfg.IPRPS, cfg.IPBurst),
		ipLimiters: make(map[string]*ipLimiter),
	}
}

func newTrafficClass(name string, rps float64, burst int, ipRPS float64, ipBurst int) *trafficClass {
	if ipRPS <= 0 {
		ipRPS = rps / 10
	}
	if ipBurst <= 0 {
		ipBurst = burst / 10
	}
	if ipBurst < 1 {
		ipBurst = 1
	}
	return &trafficClass{
		name:    name,
		global:  rate.NewLimiter(rate.Limit(rps), burst),
		ipRPS:   rate.Limit(ipRPS),
		ipBurst: ipBurst,
	}
}

// Handler wraps an http.Handler with rate limiting.
func (rl *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.cfg.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		class := rl.query
		if r.URL.Path == IngestPath {
			class = rl.ingest
		}

		ip := clientIP(r)
		if !rl.allow(class, ip) {
			rl.logger.Warn("rate limit exceeded",
				zap.String("path", r.URL.Path),
				zap.String("ip", ip),
			)
			rl.metrics.RecordRateLimitHit(class.name)
			w.Header().Set("Retry-After", "1")
			writeFailure(w, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// allow takes one token from the client bucket and one from the global
// bucket of class. A request rejected by either bucket consumes neither.
func (rl *RateLimitMiddleware) allow(class *trafficClass, ip string) bool {
	now := time.Now()

	perIP := rl.limiterFor(class, ip).ReserveN(now, 1)
	if !perIP.OK() {
		return false
	}
	if perIP.DelayFrom(now) > 0 {
		perIP.CancelAt(now)
		return false
	}

	if !class.global.AllowN(now, 1) {
		perIP.CancelAt(now)
		return false
	}
	return true
}

// limiterFor returns the bucket of ip within class.
func (rl *RateLimitMiddleware) limiterFor(class *trafficClass, ip string) *rate.Limiter {
	key := class.name + "|" + ip

	rl.mu.Lock()
	defer rl.mu.Unlock()

	l, ok := rl.ipLimiters[key]
	if !ok {
		l = &ipLimiter{limiter: rate.NewLimiter(class.ipRPS, class.ipBurst)}
		rl.ipLimiters[key] = l
	}
	l.lastSeen = time.Now()
	return l.limiter
}

// CleanupIPLimiters drops the buckets of clients idle for longer than maxIdle.
func (rl *RateLimitMiddleware) CleanupIPLimiters(maxIdle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-maxIdle)
	removed := 0
	for key, l := range rl.ipLimiters {
		if l.lastSeen.Before(cutoff) {
			delete(rl.ipLimiters, key)
			removed++
		}
	}
	if removed > 0 {
		rl.logger.Debug("cleaned up IP rate limiters", zap.Int("removed", removed))
	}
	return removed
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}
