// Package digest posts a periodic triage summary to the hub so unreplied
// messages do not silently age out of view.
package digest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"

	"github.com/coursehub/modhub/internal/format"
	"github.com/coursehub/modhub/internal/store"
)

// Poster posts a rendered digest into the hub chat.
type Poster interface {
	PostCard(ctx context.Context, html string) (int, error)
}

// Scheduler fires the digest on a cron schedule.
type Scheduler struct {
	expr   string
	mstore store.MessageStore
	hub    Poster
	logger *slog.Logger
}

// New validates the cron expression and returns a scheduler.
func New(expr string, mstore store.MessageStore, hub Poster, logger *slog.Logger) (*Scheduler, error) {
	g := gronx.New()
	if !g.IsValid(expr) {
		return nil, fmt.Errorf("invalid digest cron %q", expr)
	}
	return &Scheduler{
		expr:   expr,
		mstore: mstore,
		hub:    hub,
		logger: logger,
	}, nil
}

// Run sleeps until the next tick and posts, until ctx is done. A failed
// post is logged and retried at the next tick.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("digest scheduler started", "cron", s.expr)
	for {
		next, err := gronx.NextTickAfter(s.expr, time.Now(), false)
		if err != nil {
			s.logger.Error("digest schedule computation failed", "cron", s.expr, "error", err)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(next)):
		}

		if err := s.post(ctx); err != nil {
			s.logger.Warn("digest post failed", "error", err)
		}
	}
}

func (s *Scheduler) post(ctx context.Context) error {
	unreplied, err := s.mstore.Unreplied(ctx, 10)
	if err != nil {
		return fmt.Errorf("load unreplied: %w", err)
	}
	stats, err := s.mstore.Stats(ctx, 1)
	if err != nil {
		return fmt.Errorf("load stats: %w", err)
	}

	body := format.Stats(stats) + "\n\n" + format.Unreplied(unreplied)
	if _, err := s.hub.PostCard(ctx, body); err != nil {
		return fmt.Errorf("post digest: %w", err)
	}
	s.logger.Info("digest posted", "unreplied", len(unreplied))
	return nil
}
