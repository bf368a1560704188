package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/reviewloop/reviewloop/internal/ai"
	"github.com/reviewloop/reviewloop/internal/config"
	"github.com/reviewloop/reviewloop/internal/events"
	"github.com/reviewloop/reviewloop/internal/forge"
	"github.com/reviewloop/reviewloop/internal/intake"
	"github.com/reviewloop/reviewloop/internal/ledger"
	"github.com/reviewloop/reviewloop/internal/pipeline"
	"github.com/reviewloop/reviewloop/internal/query"
	"github.com/reviewloop/reviewloop/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the review scheduler and webhook server",
	Long: `Start the reviewloop daemon.

The daemon will:
1. Load the completion ledger from its snapshot
2. Listen for pull_request webhook deliveries
3. Admit each delivery once per pull request identity
4. Run an independent review pipeline per admitted item
5. Serve the read-only query API alongside the webhook endpoint
6. Continue until stopped with Ctrl+C`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.WebhookSecret == "" {
		return fmt.Errorf("REVIEWLOOP_WEBHOOK_SECRET not set")
	}
	if cfg.GitHubToken == "" {
		return fmt.Errorf("GITHUB_TOKEN not set")
	}

	// Durable state first: completion ledger, then the event log
	led, err := ledger.Open(cfg.LedgerPath, cfg.Scheduler)
	if err != nil {
		return err
	}
	defer led.Close()
	fmt.Printf("ledger loaded: %d completed item(s) from %s\n", led.Len(), cfg.LedgerPath)

	eventLog, err := events.Open(cfg.EventDBPath)
	if err != nil {
		return err
	}
	defer eventLog.Close()

	// Collaborators
	forgeClient, err := forge.NewGitHubClient(forge.GitHubConfig{
		BaseURL:  cfg.GitHub.BaseURL,
		Token:    cfg.GitHubToken,
		BotLogin: cfg.GitHub.BotLogin,
	})
	if err != nil {
		return err
	}

	reviewer, err := ai.NewReviewer(ai.Config{
		Model:              cfg.AI.Model,
		QuickModel:         cfg.AI.QuickModel,
		MaxConcurrentCalls: cfg.AI.MaxConcurrentCalls,
		RequestsPerMinute:  cfg.AI.RequestsPerMinute,
	})
	if err != nil {
		return err
	}

	// Core: pipeline executor + scheduler
	pipe := pipeline.New(forgeClient, reviewer, led, eventLog)
	sched := scheduler.New(pipe, led)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := sched.Start(runCtx); err != nil {
		return err
	}

	// HTTP surface: intake + query on one mux
	intakeServer, err := intake.NewServer(sched, eventLog, cfg.WebhookSecret)
	if err != nil {
		return err
	}
	queryService := query.NewService(led, eventLog, sched)

	mux := http.NewServeMux()
	intakeServer.Register(mux)
	queryService.Register(mux)

	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	httpErr := make(chan error, 1)
	go func() {
		fmt.Printf("listening on %s (instance %s)\n", cfg.ListenAddr, sched.InstanceID())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			httpErr <- err
		}
	}()

	// Event retention on a ticker
	cleanupDone := make(chan struct{})
	go func() {
		defer close(cleanupDone)
		runEventCleanup(runCtx, eventLog, cfg)
	}()

	// Wait for shutdown signal or server failure
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		fmt.Printf("\nreceived %s, shutting down\n", sig)
	case err := <-httpErr:
		fmt.Fprintf(os.Stderr, "http server failed: %v\n", err)
	case <-ctx.Done():
	}

	// Stop intake first so nothing new is admitted, then drain pipelines
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace())
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "warning: http shutdown: %v\n", err)
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	cancel()
	<-cleanupDone
	return nil
}

// runEventCleanup enforces event retention until the context ends
func runEventCleanup(ctx context.Context, eventLog *events.Log, cfg *config.Config) {
	ticker := time.NewTicker(cfg.CleanupInterval())
	defer ticker.Stop()

	retention := time.Duration(cfg.EventRetentionDays) * 24 * time.Hour
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := eventLog.CleanupByAge(ctx, retention, 500)
			if err != nil {
				fmt.Fprintf(os.Stderr, "warning: event cleanup failed: %v\n", err)
				continue
			}
			if deleted > 0 {
				fmt.Printf("event cleanup: deleted %d event(s) older than %dd\n",
					deleted, cfg.EventRetentionDays)
				ev := &events.Event{
					Type:    events.TypeCleanupCompleted,
					Message: fmt.Sprintf("deleted %d events", deleted),
				}
				if err := eventLog.Store(ctx, ev); err != nil {
					fmt.Fprintf(os.Stderr, "warning: failed to store cleanup event: %v\n", err)
				}
			}
		}
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
