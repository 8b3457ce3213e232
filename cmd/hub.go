package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/coursehub/modhub/internal/assistant"
	"github.com/coursehub/modhub/internal/classify"
	"github.com/coursehub/modhub/internal/config"
	"github.com/coursehub/modhub/internal/digest"
	"github.com/coursehub/modhub/internal/draft"
	"github.com/coursehub/modhub/internal/ingest"
	"github.com/coursehub/modhub/internal/knowledge"
	"github.com/coursehub/modhub/internal/router"
	"github.com/coursehub/modhub/internal/sources/telegram"
	"github.com/coursehub/modhub/internal/store"
	"github.com/coursehub/modhub/internal/store/pg"
	"github.com/coursehub/modhub/internal/store/sqlite"
	"github.com/coursehub/modhub/internal/tracing"
	"github.com/coursehub/modhub/internal/webhook"
)

func runHub() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if problems := cfg.Validate(); len(problems) > 0 {
		for _, p := range problems {
			slog.Error("config problem", "problem", p)
		}
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(cfg)
	if err != nil {
		slog.Error("failed to open store", "driver", cfg.Database.Driver, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Telemetry, Version, logger)
	if err != nil {
		slog.Warn("tracing setup failed, continuing without traces", "error", err)
	} else {
		defer func() {
			if err := shutdownTracing(context.Background()); err != nil {
				slog.Warn("tracing shutdown failed", "error", err)
			}
		}()
	}

	kb := knowledge.New(st, logger)
	if cfg.Knowledge.SeedPath != "" {
		if added, seedErr := kb.LoadSeed(ctx, cfg.Knowledge.SeedPath); seedErr != nil {
			slog.Warn("knowledge base seeding failed", "path", cfg.Knowledge.SeedPath, "error", seedErr)
		} else if added > 0 {
			slog.Info("knowledge base seeded", "added", added)
		}
		if cfg.Knowledge.Watch {
			if watchErr := kb.Watch(ctx, cfg.Knowledge.SeedPath); watchErr != nil {
				slog.Warn("knowledge seed watcher unavailable", "error", watchErr)
			}
		}
	}

	// Keep the interface nil when no generator was configured; a typed
	// nil pointer inside it would read as "AI available".
	var gen ingest.DraftGenerator
	if g := assistant.New(cfg.AI, kb, logger); g != nil {
		gen = g
	}
	drafts := draft.NewManager(st, logger)
	classifier := classify.New(cfg.Filters)

	bot, err := telegram.New(cfg, st, logger)
	if err != nil {
		slog.Error("failed to create telegram bot", "error", err)
		os.Exit(1)
	}

	coord := ingest.NewCoordinator(st, classifier, gen, drafts, bot, bot, ingest.Options{
		AcceptToken:         cfg.Router.AcceptToken,
		RejectToken:         cfg.Router.RejectToken,
		MaxConcurrentDrafts: cfg.AI.MaxConcurrent,
	}, logger)
	coord.SetAIEnabled(cfg.AI.Enabled)

	rt := router.New(st, st, drafts, bot, bot, router.Config{
		AcceptToken:       cfg.Router.AcceptToken,
		RejectToken:       cfg.Router.RejectToken,
		ReplyDelaySeconds: cfg.Router.ReplyDelaySeconds,
	}, logger)

	bot.Attach(coord, rt, drafts)

	if err := bot.Start(ctx); err != nil {
		slog.Error("failed to start telegram bot", "error", err)
		os.Exit(1)
	}

	if cfg.Webhook.Enabled {
		ws := webhook.NewServer(cfg.Webhook, coord, logger)
		go func() {
			if err := ws.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("webhook server failed", "error", err)
			}
		}()
	}

	if cfg.Digest.Cron != "" {
		sched, digestErr := digest.New(cfg.Digest.Cron, st, bot, logger)
		if digestErr != nil {
			slog.Warn("digest disabled", "error", digestErr)
		} else {
			go sched.Run(ctx)
		}
	}

	slog.Info("modhub running", "version", Version, "driver", cfg.Database.Driver)
	<-ctx.Done()

	slog.Info("graceful shutdown initiated")
	bot.Stop()
	coord.Wait()
}

// openStore opens the configured backend. sqlite is the standalone
// default; postgres serves managed deployments.
func openStore(cfg *config.Config) (store.Store, error) {
	if cfg.IsPostgres() {
		return pg.Open(cfg.Database.PostgresDSN)
	}
	return sqlite.Open(cfg.Database.Path)
}
