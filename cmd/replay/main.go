package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/brnakin/llm-egress-guard/internal/action"
	"github.com/brnakin/llm-egress-guard/internal/config"
	"github.com/brnakin/llm-egress-guard/internal/guard"
	"github.com/brnakin/llm-egress-guard/internal/logger"
	"github.com/brnakin/llm-egress-guard/internal/normalize"
	"github.com/brnakin/llm-egress-guard/internal/policy"
	"github.com/brnakin/llm-egress-guard/internal/replay"
	"github.com/brnakin/llm-egress-guard/internal/segment"
)

func main() {
	var (
		configPath = flag.String("config", "", "Configuration file path")
		inputFile  = flag.String("input", "", "Corpus file (CSV, Parquet, or JSON lines)")
		policyID   = flag.String("policy", "default", "Policy to evaluate against")
		verbose    = flag.Bool("verbose", false, "Print every mismatch")
	)
	flag.Parse()

	if *inputFile == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s --input corpus.csv [options]\n\nOptions:\n", os.Args[0])
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --input corpus.csv\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --input corpus.parquet --policy strict --verbose\n", os.Args[0])
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, cancelling replay...")
		cancel()
	}()

	store, err := policy.NewStore(cfg.Guard.PolicyPath, log)
	if err != nil {
		log.Fatal("Failed to load policy", zap.Error(err))
	}

	segmenter := segment.New(log.WithComponent("segment"),
		segment.WithContextWindow(cfg.Guard.ContextWindow))
	engine := action.NewEngine(action.NewCatalog(cfg.Guard.MessagesPath))
	g := guard.New(normalize.Options{
		MaxEntities: cfg.Guard.MaxEntities,
		TimeBudget:  cfg.Guard.TimeBudget,
	}, segmenter, store, engine, log)

	runner := replay.NewRunner(g, *policyID, log)
	result, err := runner.ProcessFile(ctx, *inputFile)
	if err != nil {
		log.Fatal("Replay failed", zap.Error(err))
	}

	fmt.Printf("\n=== Corpus Replay Results ===\n")
	fmt.Printf("Samples:    %d\n", result.Total)
	fmt.Printf("Passed:     %d\n", result.Passed)
	fmt.Printf("Mismatches: %d\n", len(result.Mismatches))
	fmt.Printf("Duration:   %v\n", result.Duration)

	if *verbose {
		for _, m := range result.Mismatches {
			fmt.Printf("\n%s:\n", m.Name)
			fmt.Printf("  blocked: expected %t, got %t\n", m.ExpectBlocked, m.GotBlocked)
			if len(m.MissingRules) > 0 {
				fmt.Printf("  missing rules: %v\n", m.MissingRules)
			}
			if len(m.GotRules) > 0 {
				fmt.Printf("  fired rules:   %v\n", m.GotRules)
			}
		}
	}

	if len(result.Mismatches) > 0 {
		os.Exit(1)
	}
}
