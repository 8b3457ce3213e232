// Package router turns moderator replies in the hub chat into outbound
// messages to the origin chats, and arbitrates AI draft verdicts.
package router

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"golang.org/x/time/rate"

	"github.com/coursehub/modhub/internal/draft"
	"github.com/coursehub/modhub/internal/store"
	"github.com/coursehub/modhub/internal/tracing"
)

// Dispatcher delivers a moderator reply to the mapping's origin chat.
type Dispatcher interface {
	SendReply(ctx context.Context, m *store.Mapping, text string) error
}

// Notifier posts service messages back into the hub, as replies to the
// moderator's message.
type Notifier interface {
	Notify(ctx context.Context, replyTo int, html string) error
}

// Router handles one hub reply at a time per call; calls are independent
// and safe to make concurrently.
type Router struct {
	mstore      store.MessageStore
	kstore      store.KnowledgeStore
	drafts      *draft.Manager
	dispatch    Dispatcher
	notify      Notifier
	limiter     *rate.Limiter
	acceptToken string
	rejectToken string
	logger      *slog.Logger
}

// Config tunes the router's tokens and outbound pacing.
type Config struct {
	AcceptToken       string
	RejectToken       string
	ReplyDelaySeconds float64
}

func New(
	mstore store.MessageStore,
	kstore store.KnowledgeStore,
	drafts *draft.Manager,
	dispatch Dispatcher,
	notify Notifier,
	cfg Config,
	logger *slog.Logger,
) *Router {
	delay := cfg.ReplyDelaySeconds
	if delay <= 0 {
		delay = 1.5
	}
	return &Router{
		mstore:      mstore,
		kstore:      kstore,
		drafts:      drafts,
		dispatch:    dispatch,
		notify:      notify,
		limiter:     rate.NewLimiter(rate.Limit(1/delay), 1),
		acceptToken: strings.ToLower(cfg.AcceptToken),
		rejectToken: strings.ToLower(cfg.RejectToken),
		logger:      logger,
	}
}

// HandleHubReply routes one moderator reply. moderatorMsgID is the id of
// the moderator's own message (service notices reply to it); replyToID is
// the hub message being replied to.
func (r *Router) HandleHubReply(ctx context.Context, moderatorMsgID, replyToID int, text string) error {
	ctx, span := tracing.Tracer().Start(ctx, "router.handle_reply")
	defer span.End()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	// A reply to the draft message counts as a reply to its card.
	hubID := r.drafts.ResolveHubID(replyToID)

	m, err := r.mstore.FindByHubMessage(ctx, hubID)
	if err != nil {
		return fmt.Errorf("find mapping: %w", err)
	}
	if m == nil {
		r.notifyf(ctx, moderatorMsgID, "⚠️ Не удалось найти оригинальное сообщение.")
		return nil
	}

	token := strings.ToLower(text)
	pending := r.drafts.Peek(hubID)

	switch {
	case token == r.acceptToken && pending != nil:
		return r.sendAndMark(ctx, moderatorMsgID, m, pending.Text, draft.ActionAccepted)

	case token == r.rejectToken && pending != nil:
		r.drafts.Resolve(ctx, hubID, draft.ActionRejected, "")
		r.notifyf(ctx, moderatorMsgID, "❌ Черновик отклонён. Сообщение ждёт ответа.")
		r.logger.Info("draft rejected", "hub_message_id", hubID)
		return nil

	default:
		// Free text, or a shorthand with nothing pending: the text itself
		// is the reply.
		action := ""
		if pending != nil {
			action = draft.ActionEdited
		}
		return r.sendAndMark(ctx, moderatorMsgID, m, text, action)
	}
}

// sendAndMark dispatches text to the origin chat and only then marks the
// mapping replied. On dispatch failure the mapping stays unreplied and
// the moderator gets the destination context for a manual retry.
func (r *Router) sendAndMark(ctx context.Context, moderatorMsgID int, m *store.Mapping, text, action string) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate wait: %w", err)
	}

	if err := r.dispatch.SendReply(ctx, m, text); err != nil {
		r.logger.Error("reply dispatch failed", "hub_message_id", m.HubMessageID,
			"chat_id", m.OriginalChatID, "source", m.Source, "error", err)
		r.notifyf(ctx, moderatorMsgID, "❌ Ошибка отправки в <b>%s</b> (<code>%d</code>): %s",
			html.EscapeString(m.ChatName), m.OriginalChatID, html.EscapeString(err.Error()))
		return nil
	}

	if err := r.mstore.MarkReplied(ctx, m.HubMessageID); err != nil {
		r.logger.Error("mark replied failed", "hub_message_id", m.HubMessageID, "error", err)
	}
	if err := r.mstore.IncrementResponses(ctx); err != nil {
		r.logger.Warn("increment responses failed", "error", err)
	}

	badge := ""
	switch action {
	case draft.ActionAccepted, draft.ActionEdited:
		r.drafts.Resolve(ctx, m.HubMessageID, action, text)
		badge = " 🤖"
	default:
		// Manual answer with no draft in play: capture it for future
		// drafting context, best effort.
		if err := r.kstore.SaveLearnedReply(ctx, "", text, m.SenderName, m.ChatName); err != nil {
			r.logger.Warn("save learned reply failed", "error", err)
		}
	}

	r.notifyf(ctx, moderatorMsgID, "✅%s Ответ отправлен → <b>%s</b>",
		badge, html.EscapeString(m.ChatName))
	r.logger.Info("reply routed", "hub_message_id", m.HubMessageID,
		"chat_id", m.OriginalChatID, "source", m.Source, "action", orManual(action))
	return nil
}

func (r *Router) notifyf(ctx context.Context, replyTo int, f string, args ...any) {
	if err := r.notify.Notify(ctx, replyTo, fmt.Sprintf(f, args...)); err != nil {
		r.logger.Warn("hub notify failed", "error", err)
	}
}

func orManual(action string) string {
	if action == "" {
		return "manual"
	}
	return action
}
