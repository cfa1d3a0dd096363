package server

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// statusRecorder captures the response status for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// requestLogging tags each request with an ID and logs its outcome.
func requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		start := time.Now()
		next.ServeHTTP(recorder, r)

		slog.Info("Request handled",
			"requestID", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", recorder.status,
			"duration", time.Since(start),
			"remote", clientIP(r))
	})
}

// rateLimited applies a per-client token bucket to a handler.
func (s *Server) rateLimited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiterFor(clientIP(r)).Allow() {
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		next(w, r)
	}
}

const (
	// limiterIdleAfter is how long a client may stay silent before its
	// limiter is eligible for pruning.
	limiterIdleAfter = 10 * time.Minute

	// limiterPruneAt is the map size that triggers a prune sweep.
	limiterPruneAt = 1024
)

// clientLimiter remembers the settings its limiter was built with so a
// config reload rebuilds it instead of serving stale limits.
type clientLimiter struct {
	limiter  *rate.Limiter
	rps      float64
	burst    int
	lastSeen time.Time
}

func (s *Server) limiterFor(ip string) *rate.Limiter {
	cfg := s.config.Current().RateLimit

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	entry, ok := s.limiters[ip]
	if !ok || entry.rps != cfg.RPS || entry.burst != cfg.Burst {
		entry = &clientLimiter{
			limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
			rps:     cfg.RPS,
			burst:   cfg.Burst,
		}
		s.limiters[ip] = entry
	}
	entry.lastSeen = now

	if len(s.limiters) >= limiterPruneAt {
		s.pruneLimiters(now)
	}
	return entry.limiter
}

// pruneLimiters drops entries idle past the cutoff. Caller holds s.mu.
func (s *Server) pruneLimiters(now time.Time) {
	cutoff := now.Add(-limiterIdleAfter)
	for ip, entry := range s.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(s.limiters, ip)
		}
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
