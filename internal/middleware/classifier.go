package middleware

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/oryxcart/sentinel/internal/compliance"
	"github.com/oryxcart/sentinel/internal/security"
)

// EventProcessor accepts raw event observations.
type EventProcessor interface {
	Process(ctx context.Context, input security.EventInput) (*security.Event, security.Outcome)
}

// ComplianceEvaluator runs a data record against the active rules.
type ComplianceEvaluator interface {
	Evaluate(ctx context.Context, entityType security.EntityType, entityID string, data map[string]any) []*compliance.Violation
}

// AuditRecorder writes audit trail entries.
type AuditRecorder interface {
	Record(ctx context.Context, input security.AuditInput) (*security.AuditEntry, security.Outcome)
}

// RateLimits are per-minute request limits by path class.
type RateLimits struct {
	Auth     int
	Admin    int
	Merchant int
	Default  int
}

// DefaultRateLimits returns the standard limits.
func DefaultRateLimits() RateLimits {
	return RateLimits{Auth: 5, Admin: 20, Merchant: 50, Default: 100}
}

// ClassifierConfig tunes the request classifier.
type ClassifierConfig struct {
	Limits               RateLimits
	FailedLoginThreshold int
	BlockTTL             time.Duration
}

// Classifier inspects every inbound request: blocklist and rate-limit
// fast paths that may deny, endpoint classification that feeds the event
// processor and the compliance engine, an injection/scanner pattern scan,
// and an audit write for mutating requests.
//
// The classifier detects and signals. Apart from the blocklist and rate
// limit denials it never rejects a request itself; enforcement belongs to
// the layers behind it.
type Classifier struct {
	logger    *zap.Logger
	state     *security.State
	processor EventProcessor
	evaluator ComplianceEvaluator
	recorder  AuditRecorder
	decoder   TokenDecoder
	metrics   *security.Collector
	config    ClassifierConfig
}

// NewClassifier creates a request classifier.
func NewClassifier(
	logger *zap.Logger,
	state *security.State,
	processor EventProcessor,
	evaluator ComplianceEvaluator,
	recorder AuditRecorder,
	decoder TokenDecoder,
	metrics *security.Collector,
	config ClassifierConfig,
) *Classifier {
	if config.Limits == (RateLimits{}) {
		config.Limits = DefaultRateLimits()
	}
	if config.FailedLoginThreshold <= 0 {
		config.FailedLoginThreshold = 5
	}
	if config.BlockTTL <= 0 {
		config.BlockTTL = 24 * time.Hour
	}
	return &Classifier{
		logger:    logger,
		state:     state,
		processor: processor,
		evaluator: evaluator,
		recorder:  recorder,
		decoder:   decoder,
		metrics:   metrics,
		config:    config,
	}
}

// requestContext is the per-request view the classifier works from.
type requestContext struct {
	clientIP  string
	userAgent string
	path      string
	method    string
	rawURL    string
	actorID   string
	actorRole string
}

// Middleware returns the http.Handler wrapper running the classification
// pipeline in front of next.
func (c *Classifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc := c.extractContext(r)
		ctx := r.Context()

		// Blocklist short-circuit. This is the one check that must not
		// fail open: denying a blocked IP outranks availability.
		if c.state.IsIPBlocked(rc.clientIP) {
			c.processor.Process(ctx, security.EventInput{
				Type:      security.EventUnauthorizedAccess,
				Severity:  security.SeverityHigh,
				ActorID:   rc.actorID,
				SourceIP:  rc.clientIP,
				UserAgent: rc.userAgent,
				Details:   map[string]any{"reason": "blocked IP", "path": rc.path},
			})
			c.deny(w, http.StatusForbidden, "access denied", "blocklist")
			return
		}

		limit := c.rateLimitFor(rc.path)
		if !c.state.AllowRate(rc.clientIP, rc.path, limit) {
			c.processor.Process(ctx, security.EventInput{
				Type:      security.EventSuspiciousActivity,
				Severity:  security.SeverityMedium,
				ActorID:   rc.actorID,
				UserAgent: rc.userAgent,
				// The source IP rides in details only: a burst past the
				// limit gets throttled, not escalated to a 24-hour block.
				Details: map[string]any{
					"reason": "rate limit exceeded",
					"ip":     rc.clientIP,
					"path":   rc.path,
					"limit":  limit,
				},
			})
			c.deny(w, http.StatusTooManyRequests, "rate limit exceeded", "rate_limit")
			return
		}

		// Classification, pattern scan and audit are telemetry. A failure
		// in any of them is logged and the request proceeds.
		c.observe(ctx, rc)

		if c.metrics != nil {
			c.metrics.RequestsClassified.WithLabelValues("allowed").Inc()
		}
		next.ServeHTTP(w, r)
	})
}

// observe runs the non-blocking classification stages, isolating the
// request from any panic inside them.
func (c *Classifier) observe(ctx context.Context, rc requestContext) {
	defer func() {
		if rec := recover(); rec != nil {
			c.logger.Error("Request classification failed; request allowed",
				zap.Any("panic", rec),
				zap.String("path", rc.path),
			)
		}
	}()

	c.classifyEndpoint(ctx, rc)
	c.scanPatterns(ctx, rc)
	c.auditRequest(ctx, rc)
}

func (c *Classifier) classifyEndpoint(ctx context.Context, rc requestContext) {
	if isAuthEndpoint(rc.path) && rc.method == http.MethodPost {
		c.processor.Process(ctx, security.EventInput{
			Type:      security.EventLoginAttempt,
			Severity:  security.SeverityLow,
			ActorID:   rc.actorID,
			SourceIP:  rc.clientIP,
			UserAgent: rc.userAgent,
			Details:   map[string]any{"path": rc.path},
		})

		if c.state.FailedLoginCount(rc.clientIP) >= c.config.FailedLoginThreshold {
			c.state.BlockIP(rc.clientIP, c.config.BlockTTL)
			c.processor.Process(ctx, security.EventInput{
				Type:      security.EventSuspiciousActivity,
				Severity:  security.SeverityHigh,
				SourceIP:  rc.clientIP,
				UserAgent: rc.userAgent,
				Details: map[string]any{
					"reason":        "repeated failed logins",
					"failed_logins": c.state.FailedLoginCount(rc.clientIP),
				},
			})
		}
	}

	if isSensitiveEndpoint(rc.path) {
		c.processor.Process(ctx, security.EventInput{
			Type:      security.EventDataAccess,
			Severity:  security.SeverityMedium,
			ActorID:   rc.actorID,
			SourceIP:  rc.clientIP,
			UserAgent: rc.userAgent,
			Details:   map[string]any{"path": rc.path, "method": rc.method},
		})

		entityType := security.EntitySystem
		entityID := rc.clientIP
		if rc.actorID != "" {
			entityType = security.EntityUser
			entityID = rc.actorID
		}
		c.evaluator.Evaluate(ctx, entityType, entityID, map[string]any{
			"dataType": "PERSONAL",
			"path":     rc.path,
			"method":   rc.method,
			"actorId":  rc.actorID,
		})
	}

	if isAdminEndpoint(rc.path) {
		if rc.actorID == "" || rc.actorRole != "admin" {
			// Log only. Rejecting unauthorized admin access is the
			// authentication layer's job downstream.
			c.processor.Process(ctx, security.EventInput{
				Type:      security.EventUnauthorizedAccess,
				Severity:  security.SeverityCritical,
				ActorID:   rc.actorID,
				SourceIP:  rc.clientIP,
				UserAgent: rc.userAgent,
				Details:   map[string]any{"path": rc.path, "role": rc.actorRole},
			})
		} else {
			c.processor.Process(ctx, security.EventInput{
				Type:      security.EventDataAccess,
				Severity:  security.SeverityHigh,
				ActorID:   rc.actorID,
				SourceIP:  rc.clientIP,
				UserAgent: rc.userAgent,
				Details:   map[string]any{"path": rc.path, "method": rc.method, "admin": true},
			})
		}
	}
}

func (c *Classifier) scanPatterns(ctx context.Context, rc requestContext) {
	if matchesSQLInjection(rc.rawURL) {
		c.processor.Process(ctx, security.EventInput{
			Type:      security.EventSuspiciousActivity,
			Severity:  security.SeverityHigh,
			ActorID:   rc.actorID,
			SourceIP:  rc.clientIP,
			UserAgent: rc.userAgent,
			Details:   map[string]any{"reason": "SQL injection pattern", "url": rc.rawURL},
		})
	}
	if matchesXSS(rc.rawURL) {
		c.processor.Process(ctx, security.EventInput{
			Type:      security.EventSuspiciousActivity,
			Severity:  security.SeverityMedium,
			ActorID:   rc.actorID,
			SourceIP:  rc.clientIP,
			UserAgent: rc.userAgent,
			Details:   map[string]any{"reason": "XSS pattern", "url": rc.rawURL},
		})
	}
	if matchesScannerUA(rc.userAgent) {
		c.processor.Process(ctx, security.EventInput{
			Type:      security.EventSuspiciousActivity,
			Severity:  security.SeverityMedium,
			ActorID:   rc.actorID,
			SourceIP:  rc.clientIP,
			UserAgent: rc.userAgent,
			Details:   map[string]any{"reason": "scanner user agent"},
		})
	}
}

func (c *Classifier) auditRequest(ctx context.Context, rc requestContext) {
	mutating := rc.method == http.MethodPost || rc.method == http.MethodPut || rc.method == http.MethodDelete
	sensitiveRead := rc.method == http.MethodGet && isSensitiveEndpoint(rc.path)
	if !mutating && !sensitiveRead {
		return
	}

	entityType := security.EntitySystem
	if isAdminEndpoint(rc.path) {
		entityType = security.EntityAdmin
	}
	entityID := rc.actorID
	if entityID == "" {
		entityID = rc.clientIP
	}

	c.recorder.Record(ctx, security.AuditInput{
		EntityType: entityType,
		EntityID:   entityID,
		Action:     rc.method + " " + rc.path,
		ActorID:    rc.actorID,
		SourceIP:   rc.clientIP,
		UserAgent:  rc.userAgent,
	})
}

func (c *Classifier) deny(w http.ResponseWriter, status int, message, reason string) {
	if c.metrics != nil {
		c.metrics.RequestsClassified.WithLabelValues("denied").Inc()
		c.metrics.RequestsDenied.WithLabelValues(reason).Inc()
	}
	// No internal detail leaves the server; diagnostics live in the
	// persisted event.
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// extractContext pulls the classifier's view out of the request. Bearer
// decode failures are swallowed; the actor fields stay empty and the
// authentication layer downstream deals with it.
func (c *Classifier) extractContext(r *http.Request) requestContext {
	rc := requestContext{
		clientIP:  clientIP(r),
		userAgent: r.Header.Get("User-Agent"),
		path:      r.URL.Path,
		method:    r.Method,
		rawURL:    scannableURL(r),
	}

	if c.decoder != nil {
		if token := bearerToken(r); token != "" {
			if actor, err := c.decoder.Decode(token); err == nil {
				rc.actorID = actor.ID
				rc.actorRole = actor.Role
			}
		}
	}
	return rc
}

func (c *Classifier) rateLimitFor(path string) int {
	switch {
	case isAuthEndpoint(path):
		return c.config.Limits.Auth
	case isAdminEndpoint(path):
		return c.config.Limits.Admin
	case isMerchantEndpoint(path):
		return c.config.Limits.Merchant
	default:
		return c.config.Limits.Default
	}
}

func isAuthEndpoint(path string) bool {
	return strings.Contains(path, "/auth") ||
		strings.Contains(path, "/login") ||
		strings.Contains(path, "/register")
}

func isAdminEndpoint(path string) bool {
	return strings.Contains(path, "/admin")
}

func isMerchantEndpoint(path string) bool {
	return strings.Contains(path, "/merchant")
}

func isSensitiveEndpoint(path string) bool {
	return strings.Contains(path, "/transactions") ||
		strings.Contains(path, "/payouts") ||
		strings.Contains(path, "/treasury") ||
		strings.Contains(path, "/admin")
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// scannableURL is the request URI with the query percent-decoded, so
// encoded injection payloads still hit the pattern scan.
func scannableURL(r *http.Request) string {
	raw := r.URL.Path
	if r.URL.RawQuery == "" {
		return raw
	}
	if q, err := url.QueryUnescape(r.URL.RawQuery); err == nil {
		return raw + "?" + q
	}
	return raw + "?" + r.URL.RawQuery
}

// clientIP resolves the caller's address: first X-Forwarded-For value,
// then X-Real-IP, then the connection's remote host, defaulting to
// loopback.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if net.ParseIP(first) != nil {
			return first
		}
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		if net.ParseIP(realIP) != nil {
			return realIP
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "127.0.0.1"
}
