package security

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
)

// MetricsSource reads aggregates from the persisted event and violation
// history.
type MetricsSource interface {
	CountEvents(ctx context.Context, since time.Time) (total, critical, resolved int, err error)
	// MeanResolutionHours averages resolution time over resolved events
	// only. ok is false when no events resolved inside the window.
	MeanResolutionHours(ctx context.Context, since time.Time) (hours float64, ok bool, err error)
	EventTypeCounts(ctx context.Context, since time.Time) (map[EventType]int, error)
	CountOpenViolations(ctx context.Context) (int, error)
}

// TypeCount is one entry of the top-event-types list.
type TypeCount struct {
	Type  EventType `json:"type"`
	Count int       `json:"count"`
}

// Metrics is the dashboard-ready aggregate over the trailing window.
type Metrics struct {
	WindowDays          int         `json:"window_days"`
	TotalEvents         int         `json:"total_events"`
	CriticalEvents      int         `json:"critical_events"`
	ResolvedEvents      int         `json:"resolved_events"`
	MeanResolutionHours float64     `json:"mean_resolution_hours"`
	TopEventTypes       []TypeCount `json:"top_event_types"`
	BlockedIPs          int         `json:"blocked_ips"`
	SuspendedActors     int         `json:"suspended_actors"`
	OpenViolations      int         `json:"open_violations"`
	ComplianceScore     int         `json:"compliance_score"`
}

// Aggregator computes security metrics over a trailing 30-day window.
type Aggregator struct {
	logger *zap.Logger
	source MetricsSource
	state  *State

	// Score penalty per open violation. The linear formula is a placeholder
	// heuristic, not a calibrated risk model; only its shape (monotonic,
	// floored at zero) is load-bearing.
	scorePenalty int
}

const metricsWindowDays = 30

// NewAggregator creates a metrics aggregator.
func NewAggregator(logger *zap.Logger, source MetricsSource, state *State, scorePenalty int) *Aggregator {
	if scorePenalty <= 0 {
		scorePenalty = 10
	}
	return &Aggregator{logger: logger, source: source, state: state, scorePenalty: scorePenalty}
}

// Collect computes the current metrics snapshot.
func (a *Aggregator) Collect(ctx context.Context) (*Metrics, error) {
	since := time.Now().UTC().AddDate(0, 0, -metricsWindowDays)

	total, critical, resolved, err := a.source.CountEvents(ctx, since)
	if err != nil {
		return nil, err
	}

	meanHours, hasResolved, err := a.source.MeanResolutionHours(ctx, since)
	if err != nil {
		return nil, err
	}
	if !hasResolved {
		meanHours = 0
	}

	typeCounts, err := a.source.EventTypeCounts(ctx, since)
	if err != nil {
		return nil, err
	}

	open, err := a.source.CountOpenViolations(ctx)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		WindowDays:          metricsWindowDays,
		TotalEvents:         total,
		CriticalEvents:      critical,
		ResolvedEvents:      resolved,
		MeanResolutionHours: meanHours,
		TopEventTypes:       topEventTypes(typeCounts, 5),
		BlockedIPs:          a.state.BlockedIPCount(),
		SuspendedActors:     a.state.SuspendedActorCount(),
		OpenViolations:      open,
		ComplianceScore:     a.score(open),
	}, nil
}

func (a *Aggregator) score(openViolations int) int {
	score := 100 - a.scorePenalty*openViolations
	if score < 0 {
		return 0
	}
	return score
}

func topEventTypes(counts map[EventType]int, n int) []TypeCount {
	out := make([]TypeCount, 0, len(counts))
	for t, c := range counts {
		out = append(out, TypeCount{Type: t, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Type < out[j].Type
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
