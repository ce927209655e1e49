package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/oryxcart/sentinel/internal/middleware"
)

type contextKey string

const actorKey contextKey = "actor"

// actorFrom returns the authenticated actor stored by requireAdmin.
func actorFrom(ctx context.Context) middleware.Actor {
	actor, _ := ctx.Value(actorKey).(middleware.Actor)
	return actor
}

// requireAdmin verifies the bearer token and requires the admin role.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		actor, err := s.decoder.Decode(token)
		if err != nil {
			s.logger.Debug("Admin token rejected", zap.Error(err))
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		if actor.Role != "admin" {
			writeError(w, http.StatusForbidden, "admin role required")
			return
		}
		ctx := context.WithValue(r.Context(), actorKey, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return ""
}

// throttle applies a per-client token bucket to the admin surface. Idle
// limiters are dropped by the cleanup loop.
type throttle struct {
	mu       sync.Mutex
	clients  map[string]*clientLimiter
	rps      rate.Limit
	burst    int
	lifetime time.Duration
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newThrottle(rps float64, burst int) *throttle {
	if rps <= 0 {
		rps = 25
	}
	if burst <= 0 {
		burst = 50
	}
	t := &throttle{
		clients:  make(map[string]*clientLimiter),
		rps:      rate.Limit(rps),
		burst:    burst,
		lifetime: 10 * time.Minute,
	}
	go t.cleanupLoop()
	return t
}

func (t *throttle) allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	cl, ok := t.clients[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(t.rps, t.burst)}
		t.clients[key] = cl
	}
	cl.lastSeen = time.Now()
	return cl.limiter.Allow()
}

func (t *throttle) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		t.mu.Lock()
		now := time.Now()
		for key, cl := range t.clients {
			if now.Sub(cl.lastSeen) > t.lifetime {
				delete(t.clients, key)
			}
		}
		t.mu.Unlock()
	}
}

// throttled rejects callers that exceed the admin API budget.
func (s *Server) throttled(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.throttle.allow(r.RemoteAddr) {
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
