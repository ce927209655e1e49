package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/oryxcart/sentinel/internal/compliance"
	"github.com/oryxcart/sentinel/internal/security"
	"github.com/oryxcart/sentinel/internal/store"
)

const defaultListLimit = 100

func (s *Server) handleSecurityMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := s.aggregator.Collect(r.Context())
	if err != nil {
		s.logger.Error("Failed to collect security metrics", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to collect metrics")
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.EventFilter{
		Type:     security.EventType(q.Get("type")),
		Severity: security.Severity(q.Get("severity")),
		Limit:    queryInt(q.Get("limit"), defaultListLimit),
	}
	if since, ok := queryTime(q.Get("since")); ok {
		filter.Since = since
	}
	if until, ok := queryTime(q.Get("until")); ok {
		filter.Until = until
	}

	events, err := s.events.ListEvents(r.Context(), filter)
	if err != nil {
		s.logger.Error("Failed to list events", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type      security.EventType `json:"type"`
		Severity  security.Severity  `json:"severity"`
		ActorID   string             `json:"actor_id"`
		SourceIP  string             `json:"source_ip"`
		UserAgent string             `json:"user_agent"`
		Details   map[string]any     `json:"details"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Type == "" || req.Severity == "" {
		writeError(w, http.StatusBadRequest, "type and severity are required")
		return
	}

	event, _ := s.processor.Process(r.Context(), security.EventInput{
		Type:      req.Type,
		Severity:  req.Severity,
		ActorID:   req.ActorID,
		SourceIP:  req.SourceIP,
		UserAgent: req.UserAgent,
		Details:   req.Details,
	})
	writeJSON(w, http.StatusCreated, event)
}

func (s *Server) handleResolveEvent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	actor := actorFrom(r.Context())

	ok, err := s.events.ResolveEvent(r.Context(), id, actor.ID)
	if err != nil {
		s.logger.Error("Failed to resolve event", zap.String("event_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to resolve event")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "event not found or already resolved")
		return
	}

	s.recorder.Record(r.Context(), security.AuditInput{
		EntityType: security.EntityAdmin,
		EntityID:   id,
		Action:     "resolve security event",
		ActorID:    actor.ID,
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

func (s *Server) handleListViolations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ViolationFilter{
		Status:   compliance.ViolationStatus(q.Get("status")),
		Category: compliance.RuleCategory(q.Get("category")),
		Severity: security.Severity(q.Get("severity")),
		Limit:    queryInt(q.Get("limit"), defaultListLimit),
	}
	if since, ok := queryTime(q.Get("since")); ok {
		filter.Since = since
	}

	violations, err := s.violations.ListViolations(r.Context(), filter)
	if err != nil {
		s.logger.Error("Failed to list violations", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list violations")
		return
	}
	writeJSON(w, http.StatusOK, violations)
}

func (s *Server) handleUpdateViolation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var upd store.ViolationUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ok, err := s.violations.UpdateViolation(r.Context(), id, upd)
	if errors.Is(err, store.ErrTerminalStatus) {
		writeError(w, http.StatusConflict, "violation is already closed")
		return
	}
	if err != nil {
		s.logger.Error("Failed to update violation", zap.String("violation_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to update violation")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "violation not found")
		return
	}

	actor := actorFrom(r.Context())
	s.recorder.Record(r.Context(), security.AuditInput{
		EntityType: security.EntityAdmin,
		EntityID:   id,
		Action:     "update compliance violation",
		ActorID:    actor.ID,
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	incidents, err := s.incidents.ListIncidents(r.Context(),
		security.IncidentStatus(q.Get("status")),
		queryInt(q.Get("limit"), defaultListLimit))
	if err != nil {
		s.logger.Error("Failed to list incidents", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list incidents")
		return
	}
	writeJSON(w, http.StatusOK, incidents)
}

func (s *Server) handleCreateIncident(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title       string            `json:"title"`
		Description string            `json:"description"`
		Severity    security.Severity `json:"severity"`
		AssignedTo  string            `json:"assigned_to"`
		EventIDs    []string          `json:"event_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title == "" || req.Severity == "" {
		writeError(w, http.StatusBadRequest, "title and severity are required")
		return
	}

	now := time.Now().UTC()
	incident := &security.Incident{
		ID:          uuid.NewString(),
		Title:       req.Title,
		Description: req.Description,
		Severity:    req.Severity,
		Status:      security.IncidentOpen,
		AssignedTo:  req.AssignedTo,
		EventIDs:    req.EventIDs,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.incidents.InsertIncident(r.Context(), incident); err != nil {
		s.logger.Error("Failed to create incident", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create incident")
		return
	}

	actor := actorFrom(r.Context())
	s.recorder.Record(r.Context(), security.AuditInput{
		EntityType: security.EntityAdmin,
		EntityID:   incident.ID,
		Action:     "create incident",
		ActorID:    actor.ID,
	})
	writeJSON(w, http.StatusCreated, incident)
}

func (s *Server) handleUpdateIncident(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var upd store.IncidentUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ok, err := s.incidents.UpdateIncident(r.Context(), id, upd)
	if err != nil {
		s.logger.Error("Failed to update incident", zap.String("incident_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to update incident")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "incident not found")
		return
	}

	actor := actorFrom(r.Context())
	s.recorder.Record(r.Context(), security.AuditInput{
		EntityType: security.EntityAdmin,
		EntityID:   id,
		Action:     "update incident",
		ActorID:    actor.ID,
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.rules.Rules())
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var rule compliance.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if rule.ID == "" {
		writeError(w, http.StatusBadRequest, "rule id is required")
		return
	}

	s.rules.Add(rule)

	actor := actorFrom(r.Context())
	s.recorder.Record(r.Context(), security.AuditInput{
		EntityType: security.EntityAdmin,
		EntityID:   rule.ID,
		Action:     "create compliance rule",
		ActorID:    actor.ID,
		NewData:    map[string]any{"rule_id": rule.ID, "category": string(rule.Category)},
	})
	writeJSON(w, http.StatusCreated, rule)
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var upd compliance.RuleUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !s.rules.Update(id, upd) {
		writeError(w, http.StatusNotFound, "rule not found")
		return
	}

	actor := actorFrom(r.Context())
	s.recorder.Record(r.Context(), security.AuditInput{
		EntityType: security.EntityAdmin,
		EntityID:   id,
		Action:     "update compliance rule",
		ActorID:    actor.ID,
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleListBlocks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"blocked_ips": s.state.BlockedIPs()})
}

func (s *Server) handleBlockIP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IP  string `json:"ip"`
		TTL string `json:"ttl"` // Go duration; empty blocks indefinitely
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IP == "" {
		writeError(w, http.StatusBadRequest, "ip is required")
		return
	}
	var ttl time.Duration
	if req.TTL != "" {
		parsed, err := time.ParseDuration(req.TTL)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid ttl")
			return
		}
		ttl = parsed
	}

	s.state.BlockIP(req.IP, ttl)

	actor := actorFrom(r.Context())
	s.recorder.Record(r.Context(), security.AuditInput{
		EntityType: security.EntityAdmin,
		EntityID:   req.IP,
		Action:     "block IP",
		ActorID:    actor.ID,
		Details:    map[string]any{"ttl": req.TTL},
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "blocked"})
}

func (s *Server) handleUnblockIP(w http.ResponseWriter, r *http.Request) {
	ip := mux.Vars(r)["ip"]
	s.state.UnblockIP(ip)

	actor := actorFrom(r.Context())
	s.recorder.Record(r.Context(), security.AuditInput{
		EntityType: security.EntityAdmin,
		EntityID:   ip,
		Action:     "unblock IP",
		ActorID:    actor.ID,
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "unblocked"})
}

func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.AuditFilter{
		EntityType: security.EntityType(q.Get("entity_type")),
		ActorID:    q.Get("actor_id"),
		Limit:      queryInt(q.Get("limit"), defaultListLimit),
	}
	if since, ok := queryTime(q.Get("since")); ok {
		filter.Since = since
	}

	entries, err := s.audits.ListAuditEntries(r.Context(), filter)
	if err != nil {
		s.logger.Error("Failed to list audit entries", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list audit entries")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func queryInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func queryTime(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
