// Package ingest runs the inbound pipeline: dedup, mute gating,
// classification, hub card dispatch, mapping persistence, and the
// fire-and-forget AI draft kick-off.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/coursehub/modhub/internal/assistant"
	"github.com/coursehub/modhub/internal/classify"
	"github.com/coursehub/modhub/internal/draft"
	"github.com/coursehub/modhub/internal/format"
	"github.com/coursehub/modhub/internal/store"
	"github.com/coursehub/modhub/internal/tracing"
)

// HubPoster posts rendered cards into the hub chat.
type HubPoster interface {
	// PostCard sends a card and returns the hub message id.
	PostCard(ctx context.Context, html string) (int, error)
	// PostReply sends a message replying to an earlier hub message.
	PostReply(ctx context.Context, replyTo int, html string) (int, error)
}

// MediaRelay carries an event's attachment into the hub, best effort.
type MediaRelay interface {
	RelayMedia(ctx context.Context, ev Event, hubMessageID int) error
}

// DraftGenerator produces an AI draft for a forwarded message. A nil
// result with a nil error means the message is not draft-eligible.
type DraftGenerator interface {
	Generate(ctx context.Context, req assistant.Request) (*assistant.DraftResult, error)
}

// Options tunes the coordinator beyond its collaborators.
type Options struct {
	AcceptToken string
	RejectToken string
	// MaxConcurrentDrafts bounds in-flight AI generations. Zero means 3.
	MaxConcurrentDrafts int
}

// Coordinator processes normalized events from all source listeners.
// Safe for concurrent use; listeners share one instance.
type Coordinator struct {
	mstore     store.MessageStore
	classifier *classify.Classifier
	gen        DraftGenerator // nil disables drafting
	drafts     *draft.Manager
	hub        HubPoster
	media      MediaRelay // may be nil
	opts       Options
	logger     *slog.Logger

	aiEnabled atomic.Bool
	draftSem  chan struct{}
	wg        sync.WaitGroup
}

func NewCoordinator(
	mstore store.MessageStore,
	classifier *classify.Classifier,
	gen DraftGenerator,
	drafts *draft.Manager,
	hub HubPoster,
	media MediaRelay,
	opts Options,
	logger *slog.Logger,
) *Coordinator {
	maxDrafts := opts.MaxConcurrentDrafts
	if maxDrafts <= 0 {
		maxDrafts = 3
	}
	c := &Coordinator{
		mstore:     mstore,
		classifier: classifier,
		gen:        gen,
		drafts:     drafts,
		hub:        hub,
		media:      media,
		opts:       opts,
		logger:     logger,
		draftSem:   make(chan struct{}, maxDrafts),
	}
	c.aiEnabled.Store(gen != nil)
	return c
}

// SetAIEnabled toggles draft generation at runtime (/ai_on, /ai_off).
// Enabling has no effect when no generator was configured.
func (c *Coordinator) SetAIEnabled(on bool) {
	c.aiEnabled.Store(on && c.gen != nil)
}

// AIEnabled reports whether drafts are currently generated.
func (c *Coordinator) AIEnabled() bool {
	return c.aiEnabled.Load()
}

// Process runs one event through the pipeline. A nil return covers both
// "forwarded" and "deliberately dropped"; errors mean the event was lost
// and is visible in logs only.
func (c *Coordinator) Process(ctx context.Context, ev Event) error {
	ctx, span := tracing.Tracer().Start(ctx, "ingest.process")
	defer span.End()

	log := c.logger.With("source", ev.Source, "chat_id", ev.ChatID, "message_id", ev.MessageID)

	if ev.SenderIsBot {
		return nil
	}

	muted, err := c.mstore.IsMuted(ctx, ev.ChatID)
	if err != nil {
		return fmt.Errorf("check muted: %w", err)
	}
	if muted {
		// Still claim the ledger key so the event is never re-forwarded
		// after an unmute.
		if _, err := c.mstore.MarkProcessed(ctx, ev.Source, ev.ChatID, ev.MessageID); err != nil {
			return fmt.Errorf("mark muted event processed: %w", err)
		}
		log.Debug("event dropped", "reason", "muted")
		return nil
	}

	first, err := c.mstore.MarkProcessed(ctx, ev.Source, ev.ChatID, ev.MessageID)
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	if !first {
		log.Debug("event dropped", "reason", "duplicate")
		return nil
	}

	if ev.Text == "" && !ev.HasMedia {
		log.Debug("event dropped", "reason", "empty")
		return nil
	}

	res := c.classifier.Analyze(ev.Text, ev.ChatKind)
	if !res.ShouldForward && !ev.ForceForward {
		log.Debug("event dropped", "reason", res.Reason)
		return nil
	}

	priority := res.Priority
	if ev.PriorityFloor != "" && ev.PriorityFloor.MoreUrgent(priority) {
		priority = ev.PriorityFloor
	}

	card := ev.Card
	if card == "" {
		card = format.Card(format.CardData{
			Source:         ev.Source,
			SourceLabel:    sourceLabel(ev.Source),
			SenderName:     ev.SenderName,
			SenderUsername: ev.SenderUsername,
			ChatName:       ev.ChatName,
			ChatKind:       ev.ChatKind,
			Text:           ev.Text,
			HasMedia:       ev.HasMedia,
			MediaType:      ev.MediaType,
			Timestamp:      ev.Timestamp,
			Priority:       priority,
			Tags:           res.Tags,
		})
	}

	hubID, err := c.hub.PostCard(ctx, card)
	if err != nil {
		// No mapping is persisted; the event is dropped, not retried.
		return fmt.Errorf("post hub card: %w", err)
	}

	mapping := &store.Mapping{
		HubMessageID:         hubID,
		OriginalMessageID:    ev.MessageID,
		OriginalChatID:       ev.ChatID,
		Source:               ev.Source,
		BusinessConnectionID: ev.BusinessConnectionID,
		SenderID:             ev.SenderID,
		SenderName:           ev.SenderName,
		SenderUsername:       ev.SenderUsername,
		ChatName:             ev.ChatName,
		ChatKind:             ev.ChatKind,
		Priority:             priority,
		Timestamp:            ev.Timestamp,
	}
	if _, err := c.mstore.SaveMapping(ctx, mapping); err != nil {
		return fmt.Errorf("save mapping: %w", err)
	}

	if err := c.mstore.IncrementSourceStat(ctx, ev.Source); err != nil {
		log.Warn("increment source stat failed", "error", err)
	}

	log.Info("message forwarded", "hub_message_id", hubID,
		"priority", priority, "reason", res.Reason)

	if ev.HasMedia && c.media != nil {
		if err := c.media.RelayMedia(ctx, ev, hubID); err != nil {
			// The textual card already made it; losing the attachment
			// is logged and tolerated.
			log.Warn("media relay failed", "error", err)
		}
	}

	if c.aiEnabled.Load() {
		c.spawnDraft(ctx, ev, priority, hubID)
	}
	return nil
}

// spawnDraft kicks off draft generation without blocking the listener.
// The caller's context may be request-scoped (the webhook handler's),
// so the goroutine runs on a detached context and outlives it; Wait
// still bounds its lifetime at shutdown.
func (c *Coordinator) spawnDraft(ctx context.Context, ev Event, priority store.Priority, hubID int) {
	ctx = context.WithoutCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		c.draftSem <- struct{}{}
		defer func() { <-c.draftSem }()

		res, err := c.gen.Generate(ctx, assistant.Request{
			Text:           ev.Text,
			SenderName:     ev.SenderName,
			SenderUsername: ev.SenderUsername,
			ChatName:       ev.ChatName,
			ChatKind:       ev.ChatKind,
			Priority:       priority,
		})
		if err != nil {
			// Absence of a draft is invisible to the moderator.
			c.logger.Warn("draft generation failed", "hub_message_id", hubID, "error", err)
			return
		}
		if res == nil {
			return
		}

		draftMsgID, err := c.hub.PostReply(ctx, hubID,
			format.Draft(res.Text, res.Confidence, c.opts.AcceptToken, c.opts.RejectToken))
		if err != nil {
			c.logger.Warn("draft post failed", "hub_message_id", hubID, "error", err)
			return
		}

		c.drafts.Put(&draft.Pending{
			HubMessageID: hubID,
			Text:         res.Text,
			Confidence:   res.Confidence,
			Sources:      res.Sources,
			GenerationMS: res.GenerationMS,
		})
		c.drafts.Alias(draftMsgID, hubID)

		if err := c.mstore.IncrementAIDrafts(ctx); err != nil {
			c.logger.Warn("increment ai drafts failed", "error", err)
		}
		c.logger.Info("draft posted", "hub_message_id", hubID,
			"confidence", res.Confidence, "generation_ms", res.GenerationMS)
	}()
}

// Wait blocks until all in-flight draft generations finish. Called during
// shutdown after listeners stop.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func sourceLabel(source string) string {
	switch source {
	case "business":
		return "ЛИЧНОЕ СООБЩЕНИЕ"
	case "lms":
		return "УЧЕБНАЯ ПЛАТФОРМА"
	default:
		return ""
	}
}
