package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/brnakin/llm-egress-guard/internal/action"
	"github.com/brnakin/llm-egress-guard/internal/audit"
	"github.com/brnakin/llm-egress-guard/internal/config"
	"github.com/brnakin/llm-egress-guard/internal/export"
	"github.com/brnakin/llm-egress-guard/internal/guard"
	"github.com/brnakin/llm-egress-guard/internal/logger"
	"github.com/brnakin/llm-egress-guard/internal/normalize"
	"github.com/brnakin/llm-egress-guard/internal/policy"
	"github.com/brnakin/llm-egress-guard/internal/segment"
	"github.com/brnakin/llm-egress-guard/internal/server"
	"github.com/brnakin/llm-egress-guard/internal/websocket"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
		healthCheck = flag.Bool("health-check", false, "Perform health check and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("llm-egress-guard %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}
	if *healthCheck {
		performHealthCheck()
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		}
	}

	log, err := logger.New(loggerConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting llm-egress-guard",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.Int("port", cfg.Server.Port),
		zap.String("policy_path", cfg.Guard.PolicyPath),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := policy.NewStore(cfg.Guard.PolicyPath, log)
	if err != nil {
		log.Fatal("Failed to load policy", zap.Error(err))
	}
	if err := store.Watch(ctx); err != nil {
		log.Warn("Policy watcher unavailable, relying on mtime checks", zap.Error(err))
	}

	segmenterOpts := []segment.Option{segment.WithContextWindow(cfg.Guard.ContextWindow)}
	if cfg.Classifier.Enabled {
		segmenterOpts = append(segmenterOpts, segment.WithClassifier(
			segment.KeywordClassifier{},
			cfg.Classifier.Timeout,
			cfg.Classifier.MinConfidence,
		))
	}
	segmenter := segment.New(log.WithComponent("segment"), segmenterOpts...)

	catalog := action.NewCatalog(cfg.Guard.MessagesPath)
	engine := action.NewEngine(catalog)

	g := guard.New(normalize.Options{
		MaxEntities: cfg.Guard.MaxEntities,
		TimeBudget:  cfg.Guard.TimeBudget,
	}, segmenter, store, engine, log)

	opts := server.Options{}

	if cfg.WebSocket.Enabled {
		opts.Hub = websocket.NewHub(&websocket.HubConfig{
			BroadcastDecisions: cfg.WebSocket.BroadcastDecisions,
			BroadcastSystem:    cfg.WebSocket.BroadcastSystem,
			Username:           cfg.WebSocket.Username,
			Password:           cfg.WebSocket.Password,
		}, log.WithComponent("websocket").Logger)
	}

	if cfg.Audit.Enabled {
		auditor, err := audit.NewStore(&audit.Config{
			DatabaseURL:     cfg.Audit.DatabaseURL,
			MaxOpenConns:    cfg.Audit.MaxOpenConns,
			MaxIdleConns:    cfg.Audit.MaxIdleConns,
			ConnMaxLifetime: cfg.Audit.ConnMaxLifetime,
		}, log.WithComponent("audit").Logger)
		if err != nil {
			log.Fatal("Failed to initialize audit store", zap.Error(err))
		}
		defer auditor.Close()
		opts.Auditor = auditor
	}

	if cfg.Export.Enabled {
		spool, err := export.NewSpool(&export.Config{
			RedisURL:      cfg.Export.RedisURL,
			Queue:         cfg.Export.QueueKey,
			BatchSize:     cfg.Export.BatchSize,
			FlushInterval: cfg.Export.FlushInterval,
		}, log.WithComponent("export").Logger)
		if err != nil {
			log.Fatal("Failed to initialize SIEM spool", zap.Error(err))
		}
		defer spool.Close()
		opts.Spool = spool
	}

	srv := server.New(cfg, g, log, opts)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Error("Server error", zap.Error(err))
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Stop(shutdownCtx); err != nil {
			log.Error("Failed to shutdown server gracefully", zap.Error(err))
			os.Exit(1)
		}
		log.Info("Server shutdown complete")
	}
}

// performHealthCheck performs a health check against the running server
func performHealthCheck() {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get("http://localhost:8080/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: HTTP %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("Health check passed")
	os.Exit(0)
}
