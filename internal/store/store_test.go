package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/oryxcart/sentinel/internal/compliance"
	"github.com/oryxcart/sentinel/internal/security"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(zaptest.NewLogger(t), Config{
		Driver: "sqlite3",
		DSN:    filepath.Join(t.TempDir(), "sentinel_test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestEventRoundTrip(t *testing.T) {
	repo := NewEventRepo(newTestStore(t))
	ctx := context.Background()
	executed := time.Now().UTC().Truncate(time.Second)

	event := &security.Event{
		ID:        "evt-1",
		Type:      security.EventFailedLogin,
		Severity:  security.SeverityHigh,
		ActorID:   "user-1",
		SourceIP:  "1.2.3.4",
		UserAgent: "Mozilla/5.0",
		Details:   map[string]any{"path": "/auth/login"},
		Actions: []*security.Action{
			{Type: security.ActionAuditLog, Status: security.ActionExecuted, ExecutedAt: &executed},
			{Type: security.ActionAlert, Status: security.ActionExecuted, ExecutedAt: &executed},
		},
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.InsertEvent(ctx, event))

	got, err := repo.GetEvent(ctx, "evt-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, security.EventFailedLogin, got.Type)
	assert.Equal(t, security.SeverityHigh, got.Severity)
	assert.Equal(t, "user-1", got.ActorID)
	assert.Equal(t, "1.2.3.4", got.SourceIP)
	assert.Equal(t, "/auth/login", got.Details["path"])
	require.Len(t, got.Actions, 2)
	assert.Equal(t, security.ActionAuditLog, got.Actions[0].Type)
	assert.False(t, got.Resolved)
}

func TestGetEventAbsentReturnsNil(t *testing.T) {
	repo := NewEventRepo(newTestStore(t))

	got, err := repo.GetEvent(context.Background(), "no-such-event")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListEventsFiltering(t *testing.T) {
	repo := NewEventRepo(newTestStore(t))
	ctx := context.Background()
	base := time.Now().UTC()

	for i, in := range []struct {
		id  string
		typ security.EventType
		sev security.Severity
	}{
		{"evt-a", security.EventFailedLogin, security.SeverityHigh},
		{"evt-b", security.EventDataAccess, security.SeverityMedium},
		{"evt-c", security.EventFailedLogin, security.SeverityLow},
	} {
		require.NoError(t, repo.InsertEvent(ctx, &security.Event{
			ID: in.id, Type: in.typ, Severity: in.sev,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	all, err := repo.ListEvents(ctx, EventFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	// Newest first.
	assert.Equal(t, "evt-c", all[0].ID)

	failed, err := repo.ListEvents(ctx, EventFilter{Type: security.EventFailedLogin})
	require.NoError(t, err)
	assert.Len(t, failed, 2)

	high, err := repo.ListEvents(ctx, EventFilter{Severity: security.SeverityHigh})
	require.NoError(t, err)
	require.Len(t, high, 1)
	assert.Equal(t, "evt-a", high[0].ID)

	limited, err := repo.ListEvents(ctx, EventFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestResolveEventOnlyOnce(t *testing.T) {
	repo := NewEventRepo(newTestStore(t))
	ctx := context.Background()

	require.NoError(t, repo.InsertEvent(ctx, &security.Event{
		ID: "evt-r", Type: security.EventDataAccess, Severity: security.SeverityLow,
		CreatedAt: time.Now().UTC(),
	}))

	ok, err := repo.ResolveEvent(ctx, "evt-r", "admin-1")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.GetEvent(ctx, "evt-r")
	require.NoError(t, err)
	assert.True(t, got.Resolved)
	assert.Equal(t, "admin-1", got.ResolvedBy)
	assert.NotNil(t, got.ResolvedAt)

	// Second resolve is a no-op.
	ok, err = repo.ResolveEvent(ctx, "evt-r", "admin-2")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.ResolveEvent(ctx, "no-such-event", "admin-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestViolationRoundTrip(t *testing.T) {
	repo := NewViolationRepo(newTestStore(t))
	ctx := context.Background()

	v := &compliance.Violation{
		ID:         "vio-1",
		RuleID:     "AML_LARGE_TXN",
		RuleName:   "Large transaction monitoring",
		Category:   compliance.CategoryAML,
		Severity:   security.SeverityHigh,
		EntityType: security.EntityTransaction,
		EntityID:   "txn-55",
		Data:       map[string]any{"amount": float64(15000)},
		Status:     compliance.ViolationOpen,
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, repo.InsertViolation(ctx, v))

	got, err := repo.GetViolation(ctx, "vio-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "AML_LARGE_TXN", got.RuleID)
	assert.Equal(t, compliance.CategoryAML, got.Category)
	assert.Equal(t, security.EntityTransaction, got.EntityType)
	assert.Equal(t, "txn-55", got.EntityID)
	assert.Equal(t, compliance.ViolationOpen, got.Status)
	assert.Equal(t, float64(15000), got.Data["amount"])
}

func TestUpdateViolationLifecycle(t *testing.T) {
	repo := NewViolationRepo(newTestStore(t))
	ctx := context.Background()

	require.NoError(t, repo.InsertViolation(ctx, &compliance.Violation{
		ID: "vio-2", RuleID: "R", Category: compliance.CategoryKYC,
		Severity: security.SeverityHigh, EntityType: security.EntityUser, EntityID: "u1",
		Status: compliance.ViolationOpen, CreatedAt: time.Now().UTC(),
	}))

	investigating := compliance.ViolationInvestigating
	assignee := "analyst-1"
	ok, err := repo.UpdateViolation(ctx, "vio-2", ViolationUpdate{Status: &investigating, AssignedTo: &assignee})
	require.NoError(t, err)
	assert.True(t, ok)

	got, _ := repo.GetViolation(ctx, "vio-2")
	assert.Equal(t, compliance.ViolationInvestigating, got.Status)
	assert.Equal(t, "analyst-1", got.AssignedTo)
	assert.Nil(t, got.ResolvedAt)

	resolved := compliance.ViolationResolved
	resolution := "verified manually"
	ok, err = repo.UpdateViolation(ctx, "vio-2", ViolationUpdate{Status: &resolved, Resolution: &resolution})
	require.NoError(t, err)
	assert.True(t, ok)

	got, _ = repo.GetViolation(ctx, "vio-2")
	assert.Equal(t, compliance.ViolationResolved, got.Status)
	assert.NotNil(t, got.ResolvedAt)

	// Terminal states never reopen.
	open := compliance.ViolationOpen
	_, err = repo.UpdateViolation(ctx, "vio-2", ViolationUpdate{Status: &open})
	assert.ErrorIs(t, err, ErrTerminalStatus)

	ok, err = repo.UpdateViolation(ctx, "no-such-violation", ViolationUpdate{Status: &open})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAuditEntryRoundTrip(t *testing.T) {
	repo := NewAuditRepo(newTestStore(t))
	ctx := context.Background()

	require.NoError(t, repo.InsertAuditEntry(ctx, &security.AuditEntry{
		ID:         "aud-1",
		EntityType: security.EntityAdmin,
		EntityID:   "rule-1",
		Action:     "update compliance rule",
		ActorID:    "admin-1",
		NewData:    map[string]any{"enabled": false},
		CreatedAt:  time.Now().UTC(),
	}))
	require.NoError(t, repo.InsertAuditEntry(ctx, &security.AuditEntry{
		ID:         "aud-2",
		EntityType: security.EntitySystem,
		Action:     "POST /api/orders",
		SourceIP:   "4.4.4.4",
		CreatedAt:  time.Now().UTC().Add(time.Second),
	}))

	entries, err := repo.ListAuditEntries(ctx, AuditFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "aud-2", entries[0].ID)

	admin, err := repo.ListAuditEntries(ctx, AuditFilter{EntityType: security.EntityAdmin})
	require.NoError(t, err)
	require.Len(t, admin, 1)
	assert.Equal(t, "update compliance rule", admin[0].Action)
	assert.Equal(t, false, admin[0].NewData["enabled"])

	byActor, err := repo.ListAuditEntries(ctx, AuditFilter{ActorID: "admin-1"})
	require.NoError(t, err)
	assert.Len(t, byActor, 1)
}

func TestIncidentRoundTripAndUpdate(t *testing.T) {
	repo := NewIncidentRepo(newTestStore(t))
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.InsertIncident(ctx, &security.Incident{
		ID:          "inc-1",
		Title:       "Credential stuffing wave",
		Description: "Spike in failed logins from one ASN",
		Severity:    security.SeverityHigh,
		Status:      security.IncidentOpen,
		EventIDs:    []string{"evt-1", "evt-2"},
		CreatedAt:   now,
		UpdatedAt:   now,
	}))

	got, err := repo.GetIncident(ctx, "inc-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Credential stuffing wave", got.Title)
	assert.Equal(t, []string{"evt-1", "evt-2"}, got.EventIDs)
	assert.Nil(t, got.ResolvedAt)

	resolved := security.IncidentResolved
	resolution := "blocked the ASN at the edge"
	ok, err := repo.UpdateIncident(ctx, "inc-1", IncidentUpdate{Status: &resolved, Resolution: &resolution})
	require.NoError(t, err)
	assert.True(t, ok)

	got, _ = repo.GetIncident(ctx, "inc-1")
	assert.Equal(t, security.IncidentResolved, got.Status)
	assert.Equal(t, "blocked the ASN at the edge", got.Resolution)
	assert.NotNil(t, got.ResolvedAt)

	open, err := repo.ListIncidents(ctx, security.IncidentOpen, 0)
	require.NoError(t, err)
	assert.Empty(t, open)

	ok, err = repo.UpdateIncident(ctx, "no-such-incident", IncidentUpdate{Status: &resolved})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMetricsRepoAggregates(t *testing.T) {
	s := newTestStore(t)
	events := NewEventRepo(s)
	violations := NewViolationRepo(s)
	metrics := NewMetricsRepo(s)
	ctx := context.Background()
	now := time.Now().UTC()

	resolvedAt := now
	require.NoError(t, events.InsertEvent(ctx, &security.Event{
		ID: "m-1", Type: security.EventFailedLogin, Severity: security.SeverityCritical,
		Resolved: true, ResolvedBy: "admin-1", ResolvedAt: &resolvedAt,
		CreatedAt: now.Add(-4 * time.Hour),
	}))
	require.NoError(t, events.InsertEvent(ctx, &security.Event{
		ID: "m-2", Type: security.EventFailedLogin, Severity: security.SeverityMedium,
		CreatedAt: now.Add(-time.Hour),
	}))
	require.NoError(t, events.InsertEvent(ctx, &security.Event{
		ID: "m-3", Type: security.EventDataAccess, Severity: security.SeverityLow,
		CreatedAt: now.Add(-time.Hour),
	}))
	// Outside the window; must not count.
	require.NoError(t, events.InsertEvent(ctx, &security.Event{
		ID: "m-old", Type: security.EventSystemBreach, Severity: security.SeverityCritical,
		CreatedAt: now.AddDate(0, 0, -60),
	}))

	since := now.AddDate(0, 0, -30)

	total, critical, resolved, err := metrics.CountEvents(ctx, since)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, 1, critical)
	assert.Equal(t, 1, resolved)

	hours, ok, err := metrics.MeanResolutionHours(ctx, since)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 4.0, hours, 0.1)

	counts, err := metrics.EventTypeCounts(ctx, since)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[security.EventFailedLogin])
	assert.Equal(t, 1, counts[security.EventDataAccess])

	require.NoError(t, violations.InsertViolation(ctx, &compliance.Violation{
		ID: "mv-1", RuleID: "R", Category: compliance.CategoryAML,
		Severity: security.SeverityHigh, EntityType: security.EntitySystem, EntityID: "x",
		Status: compliance.ViolationOpen, CreatedAt: now,
	}))
	require.NoError(t, violations.InsertViolation(ctx, &compliance.Violation{
		ID: "mv-2", RuleID: "R", Category: compliance.CategoryAML,
		Severity: security.SeverityHigh, EntityType: security.EntitySystem, EntityID: "x",
		Status: compliance.ViolationResolved, CreatedAt: now,
	}))

	openCount, err := metrics.CountOpenViolations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, openCount)
}

func TestMeanResolutionHoursNoResolvedEvents(t *testing.T) {
	s := newTestStore(t)
	metrics := NewMetricsRepo(s)

	_, ok, err := metrics.MeanResolutionHours(context.Background(), time.Now().AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreRejectsUnknownDriver(t *testing.T) {
	_, err := New(zaptest.NewLogger(t), Config{Driver: "oracle", DSN: "x"})
	assert.Error(t, err)
}
