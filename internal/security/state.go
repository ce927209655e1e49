package security

import (
	"context"
	"sync"
	"time"
)

// State is the shared in-process security state: blocked IPs, suspended
// actors, rate-limit windows and failed-login counters. It is constructed
// once and injected into the classifier and both engines, so tests get
// isolated instances and a distributed store can replace it later without
// touching call sites.
//
// All collections reset on process restart. Acceptable for a single
// instance; a horizontally scaled deployment needs an external store.
type State struct {
	mu sync.RWMutex

	// IP -> expiry. Zero time means blocked until explicitly cleared.
	blockedIPs map[string]time.Time

	suspendedActors map[string]struct{}

	// (IP, path) -> fixed one-minute window counter.
	rateWindows map[rateKey]*rateWindow

	// IP -> failed-login attempts inside the rolling window.
	failedLogins map[string]*failedWindow

	failedLoginWindow time.Duration
}

type rateKey struct {
	ip   string
	path string
}

type rateWindow struct {
	count   int
	resetAt time.Time
}

type failedWindow struct {
	count       int
	lastAttempt time.Time
}

// NewState creates an empty state container. failedLoginWindow bounds how
// long failed-login attempts count toward the block threshold.
func NewState(failedLoginWindow time.Duration) *State {
	if failedLoginWindow <= 0 {
		failedLoginWindow = 5 * time.Minute
	}
	return &State{
		blockedIPs:        make(map[string]time.Time),
		suspendedActors:   make(map[string]struct{}),
		rateWindows:       make(map[rateKey]*rateWindow),
		failedLogins:      make(map[string]*failedWindow),
		failedLoginWindow: failedLoginWindow,
	}
}

// BlockIP blocks an IP for ttl. ttl <= 0 blocks until UnblockIP is called.
func (s *State) BlockIP(ip string, ttl time.Duration) {
	if ip == "" {
		return
	}
	var expiry time.Time
	if ttl > 0 {
		expiry = time.Now().Add(ttl)
	}
	s.mu.Lock()
	s.blockedIPs[ip] = expiry
	s.mu.Unlock()
}

// UnblockIP removes a block regardless of its expiry.
func (s *State) UnblockIP(ip string) {
	s.mu.Lock()
	delete(s.blockedIPs, ip)
	s.mu.Unlock()
}

// IsIPBlocked reports whether an IP is currently blocked. Expired entries
// are removed on sight.
func (s *State) IsIPBlocked(ip string) bool {
	now := time.Now()
	s.mu.RLock()
	expiry, ok := s.blockedIPs[ip]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	if expiry.IsZero() || now.Before(expiry) {
		return true
	}

	// Expired; drop it lazily. Re-check under the write lock since another
	// caller may have re-blocked in between.
	s.mu.Lock()
	if e, still := s.blockedIPs[ip]; still && !e.IsZero() && !now.Before(e) {
		delete(s.blockedIPs, ip)
	}
	s.mu.Unlock()
	return false
}

// BlockedIPs returns a snapshot of currently blocked IPs.
func (s *State) BlockedIPs() []string {
	now := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	ips := make([]string, 0, len(s.blockedIPs))
	for ip, expiry := range s.blockedIPs {
		if expiry.IsZero() || now.Before(expiry) {
			ips = append(ips, ip)
		}
	}
	return ips
}

// BlockedIPCount returns the number of currently blocked IPs.
func (s *State) BlockedIPCount() int {
	return len(s.BlockedIPs())
}

// SuspendActor marks an actor as suspended.
func (s *State) SuspendActor(actorID string) {
	if actorID == "" {
		return
	}
	s.mu.Lock()
	s.suspendedActors[actorID] = struct{}{}
	s.mu.Unlock()
}

// ReinstateActor clears a suspension.
func (s *State) ReinstateActor(actorID string) {
	s.mu.Lock()
	delete(s.suspendedActors, actorID)
	s.mu.Unlock()
}

// IsActorSuspended reports whether an actor is suspended.
func (s *State) IsActorSuspended(actorID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.suspendedActors[actorID]
	return ok
}

// SuspendedActorCount returns the number of suspended actors.
func (s *State) SuspendedActorCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.suspendedActors)
}

// AllowRate counts one request against the (ip, path) window and reports
// whether it stays within limit. Windows are fixed one-minute spans
// anchored at the first request. Check and increment happen under one lock
// so two concurrent requests cannot both pass on the last slot.
func (s *State) AllowRate(ip, path string, limit int) bool {
	return s.allowRateAt(ip, path, limit, time.Now())
}

func (s *State) allowRateAt(ip, path string, limit int, now time.Time) bool {
	key := rateKey{ip: ip, path: path}
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.rateWindows[key]
	if !ok || now.After(w.resetAt) {
		s.rateWindows[key] = &rateWindow{count: 1, resetAt: now.Add(time.Minute)}
		return true
	}
	w.count++
	return w.count <= limit
}

// RecordFailedLogin counts one failed login for an IP and returns the
// total inside the rolling window. Counting and threshold checks must use
// the returned value; a separate read would reopen the race the container
// exists to close.
func (s *State) RecordFailedLogin(ip string) int {
	return s.recordFailedLoginAt(ip, time.Now())
}

func (s *State) recordFailedLoginAt(ip string, now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.failedLogins[ip]
	if !ok || now.Sub(w.lastAttempt) > s.failedLoginWindow {
		s.failedLogins[ip] = &failedWindow{count: 1, lastAttempt: now}
		return 1
	}
	w.count++
	w.lastAttempt = now
	return w.count
}

// FailedLoginCount returns the current in-window count for an IP without
// recording an attempt.
func (s *State) FailedLoginCount(ip string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.failedLogins[ip]
	if !ok || time.Since(w.lastAttempt) > s.failedLoginWindow {
		return 0
	}
	return w.count
}

// ClearFailedLogins resets the failed-login counter for an IP, typically
// after a successful authentication.
func (s *State) ClearFailedLogins(ip string) {
	s.mu.Lock()
	delete(s.failedLogins, ip)
	s.mu.Unlock()
}

// Sweep drops expired blocks, spent rate windows and stale failed-login
// counters.
func (s *State) Sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for ip, expiry := range s.blockedIPs {
		if !expiry.IsZero() && now.After(expiry) {
			delete(s.blockedIPs, ip)
		}
	}
	for key, w := range s.rateWindows {
		if now.After(w.resetAt) {
			delete(s.rateWindows, key)
		}
	}
	for ip, w := range s.failedLogins {
		if now.Sub(w.lastAttempt) > s.failedLoginWindow {
			delete(s.failedLogins, ip)
		}
	}
}

// StartSweeper runs Sweep on the given interval until ctx is done.
func (s *State) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				s.Sweep(now)
			}
		}
	}()
}
