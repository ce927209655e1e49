package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/oryxcart/sentinel/internal/compliance"
	"github.com/oryxcart/sentinel/internal/middleware"
	"github.com/oryxcart/sentinel/internal/security"
	"github.com/oryxcart/sentinel/internal/store"
)

const testSecret = "api-test-secret"

type apiFixture struct {
	server     *Server
	state      *security.State
	rules      *compliance.RuleStore
	violations *store.ViolationRepo
	incidents  *store.IncidentRepo
	audits     *store.AuditRepo
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	db, err := store.New(logger, store.Config{
		Driver: "sqlite3",
		DSN:    filepath.Join(t.TempDir(), "api_test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	events := store.NewEventRepo(db)
	violations := store.NewViolationRepo(db)
	audits := store.NewAuditRepo(db)
	incidents := store.NewIncidentRepo(db)
	metricsRepo := store.NewMetricsRepo(db)

	state := security.NewState(5 * time.Minute)
	rules := compliance.NewRuleStore()
	for _, rule := range compliance.BuiltinRules() {
		rules.Add(rule)
	}

	processor := security.NewProcessor(logger, state, events, nil, security.ProcessorConfig{})
	engine := compliance.NewEngine(logger, rules, state, violations, nil)
	recorder := security.NewRecorder(logger, audits, nil)
	aggregator := security.NewAggregator(logger, metricsRepo, state, 10)
	decoder := middleware.NewJWTDecoder([]byte(testSecret))

	server := NewServer(logger, Config{ListenAddr: ":0", AdminAPIRate: 1000, AdminAPIBurst: 1000}, Deps{
		State:      state,
		Processor:  processor,
		Engine:     engine,
		Recorder:   recorder,
		Aggregator: aggregator,
		Rules:      rules,
		Events:     events,
		Violations: violations,
		Incidents:  incidents,
		Audits:     audits,
		Decoder:    decoder,
	})

	return &apiFixture{
		server:     server,
		state:      state,
		rules:      rules,
		violations: violations,
		incidents:  incidents,
		audits:     audits,
	}
}

func adminToken(t *testing.T) string { return tokenFor(t, "admin-1", "admin") }

func tokenFor(t *testing.T, userID, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "127.0.0.1:9999"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthzNeedsNoAuth(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminSurfaceRequiresAdminToken(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/admin/security/events", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/admin/security/events", "garbage-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/admin/security/events", tokenFor(t, "user-1", "customer"), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/admin/security/events", adminToken(t), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateAndResolveEvent(t *testing.T) {
	f := newAPIFixture(t)
	token := adminToken(t)

	rec := f.do(t, http.MethodPost, "/api/v1/admin/security/events", token, map[string]any{
		"type":      "suspicious_activity",
		"severity":  "high",
		"source_ip": "6.6.6.6",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	event := decodeBody[security.Event](t, rec)
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.Resolved)
	// Processing side effects apply.
	assert.True(t, f.state.IsIPBlocked("6.6.6.6"))

	rec = f.do(t, http.MethodPost, "/api/v1/admin/security/events/"+event.ID+"/resolve", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// A second resolve reports not found.
	rec = f.do(t, http.MethodPost, "/api/v1/admin/security/events/"+event.ID+"/resolve", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/admin/security/events?severity=high", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	events := decodeBody[[]security.Event](t, rec)
	require.Len(t, events, 1)
	assert.True(t, events[0].Resolved)
	assert.Equal(t, "admin-1", events[0].ResolvedBy)
}

func TestCreateEventValidation(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodPost, "/api/v1/admin/security/events", adminToken(t), map[string]any{
		"severity": "high",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRuleAdministration(t *testing.T) {
	f := newAPIFixture(t)
	token := adminToken(t)

	rec := f.do(t, http.MethodGet, "/api/v1/admin/security/rules", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rules := decodeBody[[]compliance.Rule](t, rec)
	assert.Len(t, rules, len(compliance.BuiltinRules()))

	rec = f.do(t, http.MethodPost, "/api/v1/admin/security/rules", token, compliance.Rule{
		ID:       "SOX_CHANGE_CONTROL",
		Category: compliance.CategorySOX,
		Name:     "Change control review",
		Severity: security.SeverityMedium,
		Enabled:  true,
		Conditions: []compliance.Condition{
			{Field: "changeApproved", Operator: compliance.OpEquals, Value: false},
		},
		Actions: []compliance.Action{{Type: compliance.ActionNotifyAdmin}},
	})
	assert.Equal(t, http.StatusCreated, rec.Code)
	_, ok := f.rules.Get("SOX_CHANGE_CONTROL")
	assert.True(t, ok)

	rec = f.do(t, http.MethodPatch, "/api/v1/admin/security/rules/SOX_CHANGE_CONTROL", token, map[string]any{
		"enabled": false,
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	rule, _ := f.rules.Get("SOX_CHANGE_CONTROL")
	assert.False(t, rule.Enabled)

	rec = f.do(t, http.MethodPatch, "/api/v1/admin/security/rules/NOPE", token, map[string]any{
		"enabled": false,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Rule administration is audited.
	entries, err := f.audits.ListAuditEntries(context.Background(), store.AuditFilter{ActorID: "admin-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}

func TestBlockAdministration(t *testing.T) {
	f := newAPIFixture(t)
	token := adminToken(t)

	rec := f.do(t, http.MethodPost, "/api/v1/admin/security/blocks", token, map[string]any{
		"ip": "9.9.9.9", "ttl": "1h",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.state.IsIPBlocked("9.9.9.9"))

	rec = f.do(t, http.MethodGet, "/api/v1/admin/security/blocks", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string][]string](t, rec)
	assert.Contains(t, body["blocked_ips"], "9.9.9.9")

	rec = f.do(t, http.MethodDelete, "/api/v1/admin/security/blocks/9.9.9.9", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, f.state.IsIPBlocked("9.9.9.9"))

	rec = f.do(t, http.MethodPost, "/api/v1/admin/security/blocks", token, map[string]any{
		"ip": "9.9.9.8", "ttl": "not-a-duration",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/admin/security/blocks", token, map[string]any{"ttl": "1h"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestViolationWorkflow(t *testing.T) {
	f := newAPIFixture(t)
	token := adminToken(t)

	require.NoError(t, f.violations.InsertViolation(context.Background(), &compliance.Violation{
		ID: "vio-api-1", RuleID: "AML_LARGE_TXN", Category: compliance.CategoryAML,
		Severity: security.SeverityHigh, EntityType: security.EntityTransaction, EntityID: "txn-1",
		Status: compliance.ViolationOpen, CreatedAt: time.Now().UTC(),
	}))

	rec := f.do(t, http.MethodGet, "/api/v1/admin/security/violations?status=open", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	violations := decodeBody[[]compliance.Violation](t, rec)
	require.Len(t, violations, 1)

	rec = f.do(t, http.MethodPatch, "/api/v1/admin/security/violations/vio-api-1", token, map[string]any{
		"status": "resolved", "resolution": "reviewed, legitimate",
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	// Terminal violations reject further status changes.
	rec = f.do(t, http.MethodPatch, "/api/v1/admin/security/violations/vio-api-1", token, map[string]any{
		"status": "open",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPatch, "/api/v1/admin/security/violations/missing", token, map[string]any{
		"status": "investigating",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIncidentWorkflow(t *testing.T) {
	f := newAPIFixture(t)
	token := adminToken(t)

	rec := f.do(t, http.MethodPost, "/api/v1/admin/security/incidents", token, map[string]any{
		"title":    "Scraper burst",
		"severity": "medium",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	incident := decodeBody[security.Incident](t, rec)
	assert.NotEmpty(t, incident.ID)
	assert.Equal(t, security.IncidentOpen, incident.Status)

	rec = f.do(t, http.MethodPatch, "/api/v1/admin/security/incidents/"+incident.ID, token, map[string]any{
		"status": "resolved", "resolution": "rate limits tightened",
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/admin/security/incidents?status=resolved", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	incidents := decodeBody[[]security.Incident](t, rec)
	require.Len(t, incidents, 1)
	assert.NotNil(t, incidents[0].ResolvedAt)

	rec = f.do(t, http.MethodPost, "/api/v1/admin/security/incidents", token, map[string]any{
		"severity": "medium",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSecurityMetricsEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/admin/security/metrics", adminToken(t), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	m := decodeBody[security.Metrics](t, rec)
	assert.Equal(t, 30, m.WindowDays)
	assert.Equal(t, 100, m.ComplianceScore)
	assert.Zero(t, m.TotalEvents)
}

func TestAuditListEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	token := adminToken(t)

	// A mutating admin call leaves an audit entry behind.
	f.do(t, http.MethodPost, "/api/v1/admin/security/blocks", token, map[string]any{"ip": "2.2.2.2"})

	rec := f.do(t, http.MethodGet, "/api/v1/admin/security/audit?entity_type=admin", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decodeBody[[]security.AuditEntry](t, rec)
	require.NotEmpty(t, entries)
	assert.Equal(t, "block IP", entries[0].Action)
	assert.Equal(t, "admin-1", entries[0].ActorID)
}
