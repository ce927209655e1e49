package compliance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/oryxcart/sentinel/internal/security"
)

type fakeViolationStore struct {
	inserted []*Violation
	err      error
}

func (f *fakeViolationStore) InsertViolation(ctx context.Context, v *Violation) error {
	if f.err != nil {
		return f.err
	}
	f.inserted = append(f.inserted, v)
	return nil
}

func newTestEngine(t *testing.T, rules []Rule) (*Engine, *security.State, *fakeViolationStore) {
	t.Helper()
	store := NewRuleStore()
	for _, rule := range rules {
		store.Add(rule)
	}
	state := security.NewState(5 * time.Minute)
	violations := &fakeViolationStore{}
	engine := NewEngine(zaptest.NewLogger(t), store, state, violations, nil)
	return engine, state, violations
}

func TestEvaluateNoMatchReturnsEmptySlice(t *testing.T) {
	engine, _, violations := newTestEngine(t, BuiltinRules())

	found := engine.Evaluate(context.Background(), security.EntityTransaction, "txn-1", map[string]any{
		"amount":       float64(50),
		"userVerified": true,
	})

	require.NotNil(t, found)
	assert.Empty(t, found)
	assert.Empty(t, violations.inserted)
}

func TestEvaluateUnverifiedUserOverLimit(t *testing.T) {
	engine, _, violations := newTestEngine(t, BuiltinRules())

	found := engine.Evaluate(context.Background(), security.EntityTransaction, "txn-2", map[string]any{
		"amount":       float64(5000),
		"userVerified": false,
	})

	require.Len(t, found, 1)
	v := found[0]
	assert.Equal(t, "KYC_UNVERIFIED_LIMIT", v.RuleID)
	assert.Equal(t, CategoryKYC, v.Category)
	assert.Equal(t, security.SeverityHigh, v.Severity)
	assert.Equal(t, security.EntityTransaction, v.EntityType)
	assert.Equal(t, "txn-2", v.EntityID)
	assert.Equal(t, ViolationOpen, v.Status)
	assert.NotEmpty(t, v.ID)
	require.Len(t, violations.inserted, 1)
}

func TestEvaluateLargeTransactionMatchesBothThresholdRules(t *testing.T) {
	engine, _, _ := newTestEngine(t, BuiltinRules())

	found := engine.Evaluate(context.Background(), security.EntityTransaction, "txn-3", map[string]any{
		"amount":       float64(15000),
		"userVerified": false,
	})

	ids := make([]string, 0, len(found))
	for _, v := range found {
		ids = append(ids, v.RuleID)
	}
	assert.ElementsMatch(t, []string{"AML_LARGE_TXN", "KYC_UNVERIFIED_LIMIT"}, ids)
}

func TestEvaluateSkipsDisabledRules(t *testing.T) {
	rules := BuiltinRules()
	for i := range rules {
		rules[i].Enabled = false
	}
	engine, _, violations := newTestEngine(t, rules)

	found := engine.Evaluate(context.Background(), security.EntityTransaction, "txn-4", map[string]any{
		"amount": float64(99999),
	})

	assert.Empty(t, found)
	assert.Empty(t, violations.inserted)
}

func TestEvaluateFreezeAccountSuspendsUserEntityOnly(t *testing.T) {
	engine, state, _ := newTestEngine(t, BuiltinRules())
	record := map[string]any{"failedLoginCount": 6}

	engine.Evaluate(context.Background(), security.EntitySystem, "10.0.0.1", record)
	assert.False(t, state.IsActorSuspended("10.0.0.1"))

	engine.Evaluate(context.Background(), security.EntityUser, "user-9", record)
	assert.True(t, state.IsActorSuspended("user-9"))
}

func TestEvaluateStorageFailureStillReturnsViolation(t *testing.T) {
	engine, _, violations := newTestEngine(t, BuiltinRules())
	violations.err = errors.New("disk full")

	found := engine.Evaluate(context.Background(), security.EntityTransaction, "txn-5", map[string]any{
		"amount": float64(20000),
	})

	require.Len(t, found, 1)
	assert.Equal(t, "AML_LARGE_TXN", found[0].RuleID)
}

func TestRuleStoreAddReplacesExisting(t *testing.T) {
	store := NewRuleStore()
	store.Add(Rule{ID: "R1", Name: "first", Enabled: true})
	store.Add(Rule{ID: "R1", Name: "second", Enabled: false})

	rule, ok := store.Get("R1")
	require.True(t, ok)
	assert.Equal(t, "second", rule.Name)
	assert.False(t, rule.Enabled)
	assert.Equal(t, 1, store.Len())
}

func TestRuleStoreUpdate(t *testing.T) {
	store := NewRuleStore()
	store.Add(Rule{ID: "R1", Name: "before", Enabled: true, Severity: security.SeverityLow})

	enabled := false
	sev := security.SeverityCritical
	ok := store.Update("R1", RuleUpdate{Enabled: &enabled, Severity: &sev})
	require.True(t, ok)

	rule, _ := store.Get("R1")
	assert.False(t, rule.Enabled)
	assert.Equal(t, security.SeverityCritical, rule.Severity)
	assert.Equal(t, "before", rule.Name)

	assert.False(t, store.Update("missing", RuleUpdate{Enabled: &enabled}))
}

func TestRuleStoreRulesSortedByID(t *testing.T) {
	store := NewRuleStore()
	store.Add(Rule{ID: "ZZZ"})
	store.Add(Rule{ID: "AAA"})
	store.Add(Rule{ID: "MMM"})

	rules := store.Rules()
	require.Len(t, rules, 3)
	assert.Equal(t, "AAA", rules[0].ID)
	assert.Equal(t, "MMM", rules[1].ID)
	assert.Equal(t, "ZZZ", rules[2].ID)
}
