package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/oryxcart/sentinel/internal/compliance"
	"github.com/oryxcart/sentinel/internal/middleware"
	"github.com/oryxcart/sentinel/internal/security"
	"github.com/oryxcart/sentinel/internal/store"
)

// Config holds server settings.
type Config struct {
	ListenAddr      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	AdminAPIRate  float64
	AdminAPIBurst int
}

// Server exposes the administrative HTTP surface over the engine: event
// and violation browsing, incident management, rule administration,
// manual IP blocks and the metrics dashboard endpoint.
type Server struct {
	logger     *zap.Logger
	config     Config
	httpServer *http.Server

	state      *security.State
	processor  *security.Processor
	engine     *compliance.Engine
	recorder   *security.Recorder
	aggregator *security.Aggregator
	rules      *compliance.RuleStore

	events     *store.EventRepo
	violations *store.ViolationRepo
	incidents  *store.IncidentRepo
	audits     *store.AuditRepo

	classifier *middleware.Classifier
	decoder    middleware.TokenDecoder
	throttle   *throttle
}

// Deps carries everything the server needs from the composition root.
type Deps struct {
	State      *security.State
	Processor  *security.Processor
	Engine     *compliance.Engine
	Recorder   *security.Recorder
	Aggregator *security.Aggregator
	Rules      *compliance.RuleStore
	Events     *store.EventRepo
	Violations *store.ViolationRepo
	Incidents  *store.IncidentRepo
	Audits     *store.AuditRepo
	Classifier *middleware.Classifier
	Decoder    middleware.TokenDecoder
}

// NewServer creates the admin API server.
func NewServer(logger *zap.Logger, config Config, deps Deps) *Server {
	s := &Server{
		logger:     logger,
		config:     config,
		state:      deps.State,
		processor:  deps.Processor,
		engine:     deps.Engine,
		recorder:   deps.Recorder,
		aggregator: deps.Aggregator,
		rules:      deps.Rules,
		events:     deps.Events,
		violations: deps.Violations,
		incidents:  deps.Incidents,
		audits:     deps.Audits,
		classifier: deps.Classifier,
		decoder:    deps.Decoder,
		throttle:   newThrottle(config.AdminAPIRate, config.AdminAPIBurst),
	}

	s.httpServer = &http.Server{
		Addr:         config.ListenAddr,
		Handler:      s.routes(),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
	return s
}

// routes assembles the router. The classifier wraps everything; the admin
// subrouter additionally requires an admin token and the API throttle.
func (s *Server) routes() http.Handler {
	root := mux.NewRouter()
	root.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	root.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	admin := root.PathPrefix("/api/v1/admin/security").Subrouter()
	admin.Use(s.throttled, s.requireAdmin)

	admin.HandleFunc("/metrics", s.handleSecurityMetrics).Methods(http.MethodGet)

	admin.HandleFunc("/events", s.handleListEvents).Methods(http.MethodGet)
	admin.HandleFunc("/events", s.handleCreateEvent).Methods(http.MethodPost)
	admin.HandleFunc("/events/{id}/resolve", s.handleResolveEvent).Methods(http.MethodPost)

	admin.HandleFunc("/violations", s.handleListViolations).Methods(http.MethodGet)
	admin.HandleFunc("/violations/{id}", s.handleUpdateViolation).Methods(http.MethodPatch)

	admin.HandleFunc("/incidents", s.handleListIncidents).Methods(http.MethodGet)
	admin.HandleFunc("/incidents", s.handleCreateIncident).Methods(http.MethodPost)
	admin.HandleFunc("/incidents/{id}", s.handleUpdateIncident).Methods(http.MethodPatch)

	admin.HandleFunc("/rules", s.handleListRules).Methods(http.MethodGet)
	admin.HandleFunc("/rules", s.handleCreateRule).Methods(http.MethodPost)
	admin.HandleFunc("/rules/{id}", s.handleUpdateRule).Methods(http.MethodPatch)

	admin.HandleFunc("/blocks", s.handleListBlocks).Methods(http.MethodGet)
	admin.HandleFunc("/blocks", s.handleBlockIP).Methods(http.MethodPost)
	admin.HandleFunc("/blocks/{ip}", s.handleUnblockIP).Methods(http.MethodDelete)

	admin.HandleFunc("/audit", s.handleListAudit).Methods(http.MethodGet)

	if s.classifier != nil {
		return s.classifier.Middleware(root)
	}
	return root
}

// Start begins serving. Blocks until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	s.logger.Info("Admin API listening", zap.String("addr", s.config.ListenAddr))
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the assembled handler for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
