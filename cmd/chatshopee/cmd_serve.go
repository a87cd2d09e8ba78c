package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mferraretto/chatshopee22/internal/browser"
	"github.com/mferraretto/chatshopee22/internal/config"
	"github.com/mferraretto/chatshopee22/internal/decide"
	"github.com/mferraretto/chatshopee22/internal/dispatch"
	"github.com/mferraretto/chatshopee22/internal/engine"
	"github.com/mferraretto/chatshopee22/internal/notify"
	"github.com/mferraretto/chatshopee22/internal/refine"
	"github.com/mferraretto/chatshopee22/internal/schedule"
	"github.com/mferraretto/chatshopee22/internal/server"
	"github.com/mferraretto/chatshopee22/internal/state"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the automation daemon",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func writePIDFile(dataDir string) (string, error) {
	pidPath := filepath.Join(dataDir, "chatshopee.pid")
	pid := os.Getpid()
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return pidPath, nil
}

// buildEngine wires the stores, the decision pipeline and the browser
// factory into an engine. Shared by serve and run.
func buildEngine(ctx context.Context, cfg *config.Config, log *slog.Logger) (*engine.Engine, *state.RuleStore, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("create data dir: %w", err)
	}

	ruleStore := state.NewRuleStore(filepath.Join(cfg.DataDir, "rules.json"))
	catalogStore := state.NewCatalogStore(filepath.Join(cfg.DataDir, "prod_defaults.json"))
	ledger := state.NewCSVLedger(filepath.Join(cfg.DataDir, "audit.csv"))
	journal := state.NewSnapshotStore(filepath.Join(cfg.DataDir, "conversations.jsonl"))

	var refiner decide.Refiner
	var classifier decide.Classifier
	if cfg.Gemini.APIKey != "" {
		g, err := refine.NewGemini(ctx, refine.Options{
			APIKey:          cfg.Gemini.APIKey,
			Model:           cfg.Gemini.Model,
			Temperature:     cfg.Gemini.Temperature,
			MaxOutputTokens: int32(cfg.Gemini.MaxOutput),
			HistoryTokens:   cfg.Gemini.MaxTokens,
		}, log)
		if err != nil {
			return nil, nil, fmt.Errorf("create gemini client: %w", err)
		}
		refiner = g
		classifier = g
	} else {
		log.Warn("gemini disabled (no API key), using template replies as-is")
	}

	decider := decide.NewEngine(ruleStore, catalogStore, classifier, refiner, log)

	factory := func(ctx context.Context) (engine.Session, error) {
		return browser.NewSession(ctx, browser.Options{
			URL:        cfg.Console.URL,
			Email:      cfg.Console.Email,
			Password:   cfg.Console.Password,
			Headless:   cfg.Console.Headless,
			ProfileDir: cfg.Console.ProfileDir,
			NavTimeout: time.Duration(cfg.Console.NavTimeoutMS) * time.Millisecond,
			OpTimeout:  time.Duration(cfg.Console.OpTimeoutMS) * time.Millisecond,
		}, log)
	}

	eng := engine.New(engine.Config{
		Idle:             time.Duration(cfg.Scan.IdleSeconds * float64(time.Second)),
		MaxConversations: cfg.Scan.MaxConversations,
		HistoryDepth:     cfg.Scan.HistoryDepth,
		ActionDelay:      time.Duration(cfg.Scan.ActionDelayMS) * time.Millisecond,
		NeedsReplyFilter: cfg.Scan.NeedsReplyFilter,
		Dispatch: dispatch.Options{
			Label:       cfg.Label,
			ActionDelay: time.Duration(cfg.Scan.ActionDelayMS) * time.Millisecond,
		},
		ThrottleWindow: time.Duration(cfg.Throttle.WindowSeconds) * time.Second,
		Backoff: &engine.BackoffPolicy{
			InitialDelay: time.Duration(cfg.Backoff.InitialSeconds * float64(time.Second)),
			Multiplier:   cfg.Backoff.Multiplier,
			MaxDelay:     time.Duration(cfg.Backoff.MaxSeconds * float64(time.Second)),
		},
	}, factory, decider, ledger, journal, nil, log)

	return eng, ruleStore, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)
	log := slog.Default()

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	pidPath, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng, ruleStore, err := buildEngine(ctx, cfg, log)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	// Telegram operator channel
	if cfg.Telegram.Token != "" {
		tg, err := notify.New(cfg.Telegram.Token, cfg.Telegram.ChatID, eng, log)
		if err != nil {
			return fmt.Errorf("create telegram notifier: %w", err)
		}
		eng.SetNotifier(tg)
		g.Go(func() error {
			tg.Start(gctx)
			return nil
		})
		log.Info("telegram notifier started")
	} else {
		log.Warn("telegram notifier disabled (no token)")
	}

	// HTTP control surface
	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: server.New(eng, ruleStore, log),
	}
	g.Go(func() error {
		log.Info("control server started", "listen", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("control server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	// Automation window. Without schedules the engine starts immediately.
	if cfg.Windows.StartSpec != "" || cfg.Windows.StopSpec != "" {
		sched := schedule.New(cfg.Windows.StartSpec, cfg.Windows.StopSpec, eng, log)
		if err := sched.Start(gctx); err != nil {
			return err
		}
		defer sched.Stop()
		log.Info("automation window scheduled",
			"start", cfg.Windows.StartSpec, "stop", cfg.Windows.StopSpec)
	} else {
		if err := eng.Start(gctx); err != nil {
			return err
		}
	}
	defer eng.Stop()

	log.Info("chatshopee started",
		"data_dir", cfg.DataDir,
		"log_level", cfg.LogLevel,
		"console_url", cfg.Console.URL,
		"headless", cfg.Console.Headless,
		"max_conversations", cfg.Scan.MaxConversations,
		"pid_file", pidPath,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		select {
		case <-gctx.Done():
			return g.Wait()
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				log.Info("received SIGHUP, restarting")
				execPath, err := os.Executable()
				if err != nil {
					log.Error("failed to get executable path", "error", err)
					continue
				}
				eng.Stop()
				os.Remove(pidPath)
				if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
					log.Error("failed to re-exec", "error", err)
					if _, writeErr := writePIDFile(cfg.DataDir); writeErr != nil {
						log.Error("failed to re-write PID file", "error", writeErr)
					}
					continue
				}
			}
			log.Info("shutting down", "signal", sig)
			cancel()
			return g.Wait()
		}
	}
}
