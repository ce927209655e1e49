package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/oryxcart/sentinel/internal/api"
	"github.com/oryxcart/sentinel/internal/compliance"
	"github.com/oryxcart/sentinel/internal/config"
	"github.com/oryxcart/sentinel/internal/logging"
	"github.com/oryxcart/sentinel/internal/middleware"
	"github.com/oryxcart/sentinel/internal/security"
	"github.com/oryxcart/sentinel/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the security engine and admin API",
	Long: `Start the engine: open the database, load compliance rules, start the
blocklist sweeper and serve the classified admin API until interrupted.

Examples:
  # Run with defaults (sqlite, :8443)
  sentinel serve

  # Run with a config file
  sentinel serve --config /etc/sentinel/config.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("listen", "", "listen address override")
	serveCmd.Flags().String("rules", "", "compliance rule file override")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Server.ListenAddr = listen
	}
	if rules, _ := cmd.Flags().GetString("rules"); rules != "" {
		cfg.Security.RuleFile = rules
	}
	if secret := os.Getenv("SENTINEL_JWT_SECRET"); secret != "" {
		cfg.Security.JWTSecret = secret
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("Starting sentinel",
		zap.String("version", Version),
		zap.String("listen_addr", cfg.Server.ListenAddr),
		zap.String("database_driver", cfg.Database.Driver),
	)

	db, err := store.New(logging.WithComponent(logger, "store"), store.Config{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime.Std(),
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	events := store.NewEventRepo(db)
	violations := store.NewViolationRepo(db)
	audits := store.NewAuditRepo(db)
	incidents := store.NewIncidentRepo(db)
	metricsRepo := store.NewMetricsRepo(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	state := security.NewState(cfg.Security.FailedLoginWindow.Std())
	state.StartSweeper(ctx, cfg.Security.SweepInterval.Std())

	collector := security.NewCollector(prometheus.DefaultRegisterer)

	rules := compliance.NewRuleStore()
	for _, rule := range compliance.BuiltinRules() {
		rules.Add(rule)
	}
	if cfg.Security.RuleFile != "" {
		loaded, err := compliance.LoadRuleFile(cfg.Security.RuleFile)
		if err != nil {
			return fmt.Errorf("failed to load rule file: %w", err)
		}
		for _, rule := range loaded {
			rules.Add(rule)
		}
		watcher, err := compliance.NewRuleWatcher(
			logging.WithComponent(logger, "rules"), cfg.Security.RuleFile, rules)
		if err != nil {
			return fmt.Errorf("failed to watch rule file: %w", err)
		}
		if err := watcher.Start(); err != nil {
			return fmt.Errorf("failed to watch rule file: %w", err)
		}
		defer watcher.Stop()
	}

	processor := security.NewProcessor(
		logging.WithComponent(logger, "events"), state, events, collector,
		security.ProcessorConfig{
			FailedLoginThreshold: cfg.Security.FailedLoginThreshold,
			BlockTTL:             cfg.Security.BlockTTL.Std(),
		})
	engine := compliance.NewEngine(
		logging.WithComponent(logger, "compliance"), rules, state, violations, collector)
	recorder := security.NewRecorder(
		logging.WithComponent(logger, "audit"), audits, collector)
	aggregator := security.NewAggregator(
		logging.WithComponent(logger, "metrics"), metricsRepo, state, cfg.Security.ScorePenalty)

	decoder := middleware.NewJWTDecoder([]byte(cfg.Security.JWTSecret))
	classifier := middleware.NewClassifier(
		logging.WithComponent(logger, "classifier"),
		state, processor, engine, recorder, decoder, collector,
		middleware.ClassifierConfig{
			Limits: middleware.RateLimits{
				Auth:     cfg.Security.AuthRateLimit,
				Admin:    cfg.Security.AdminRateLimit,
				Merchant: cfg.Security.MerchantRateLimit,
				Default:  cfg.Security.DefaultRateLimit,
			},
			FailedLoginThreshold: cfg.Security.FailedLoginThreshold,
			BlockTTL:             cfg.Security.BlockTTL.Std(),
		})

	server := api.NewServer(logging.WithComponent(logger, "api"), api.Config{
		ListenAddr:      cfg.Server.ListenAddr,
		ReadTimeout:     cfg.Server.ReadTimeout.Std(),
		WriteTimeout:    cfg.Server.WriteTimeout.Std(),
		ShutdownTimeout: cfg.Server.ShutdownTimeout.Std(),
		AdminAPIRate:    cfg.Security.AdminAPIRate,
		AdminAPIBurst:   cfg.Security.AdminAPIBurst,
	}, api.Deps{
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
		Classifier: classifier,
		Decoder:    decoder,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Shutdown signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Sentinel stopped")
	return nil
}
