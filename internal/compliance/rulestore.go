package compliance

import (
	"sort"
	"sync"
	"time"
)

// RuleStore holds the active rule set in process memory. Rules are loaded
// at startup and may be added or updated at runtime; they are disabled,
// never implicitly deleted.
type RuleStore struct {
	mu    sync.RWMutex
	rules map[string]*Rule
}

// NewRuleStore creates an empty rule store.
func NewRuleStore() *RuleStore {
	return &RuleStore{rules: make(map[string]*Rule)}
}

// Add inserts a rule, replacing any existing rule with the same ID.
func (s *RuleStore) Add(rule Rule) {
	rule.UpdatedAt = time.Now().UTC()
	s.mu.Lock()
	s.rules[rule.ID] = &rule
	s.mu.Unlock()
}

// Get returns a copy of the rule with the given ID.
func (s *RuleStore) Get(id string) (Rule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rule, ok := s.rules[id]
	if !ok {
		return Rule{}, false
	}
	return *rule, true
}

// Rules returns a snapshot of all rules, enabled and disabled, ordered by
// ID. Callers filter on Enabled.
func (s *RuleStore) Rules() []Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Rule, 0, len(s.rules))
	for _, rule := range s.rules {
		out = append(out, *rule)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Update merges the set fields of upd into the rule and stamps the
// modification time. Returns false when no rule has that ID; absence is an
// expected outcome, not an error.
func (s *RuleStore) Update(id string, upd RuleUpdate) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rule, ok := s.rules[id]
	if !ok {
		return false
	}
	if upd.Name != nil {
		rule.Name = *upd.Name
	}
	if upd.Description != nil {
		rule.Description = *upd.Description
	}
	if upd.Severity != nil {
		rule.Severity = *upd.Severity
	}
	if upd.Enabled != nil {
		rule.Enabled = *upd.Enabled
	}
	if upd.Conditions != nil {
		rule.Conditions = *upd.Conditions
	}
	if upd.Actions != nil {
		rule.Actions = *upd.Actions
	}
	rule.UpdatedAt = time.Now().UTC()
	return true
}

// Len returns the number of stored rules.
func (s *RuleStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rules)
}
