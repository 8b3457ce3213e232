// Package telegram connects the hub to Telegram via the Bot API using
// long polling. One bot serves three roles: it listens to the configured
// origin chats (Business API direct messages and monitored groups), posts
// cards into the hub chat, and dispatches moderator replies back to the
// origin.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/mymmrac/telego"

	"github.com/coursehub/modhub/internal/config"
	"github.com/coursehub/modhub/internal/draft"
	"github.com/coursehub/modhub/internal/ingest"
	"github.com/coursehub/modhub/internal/router"
	"github.com/coursehub/modhub/internal/store"
)

// HubBot is the single Telegram connection of the process.
type HubBot struct {
	bot    *telego.Bot
	cfg    *config.Config
	st     store.Store
	logger *slog.Logger

	// Attached after construction; the coordinator and router take the
	// bot as their transport, so they cannot exist before it does.
	coord  *ingest.Coordinator
	router *router.Router
	drafts *draft.Manager

	startedAt  time.Time
	pollCancel context.CancelFunc // cancels the long polling context
	pollDone   chan struct{}      // closed when the polling goroutine exits
}

// New creates the bot from config. The token must already be validated.
func New(cfg *config.Config, st store.Store, logger *slog.Logger) (*HubBot, error) {
	var opts []telego.BotOption

	if cfg.Hub.Proxy != "" {
		proxyURL, parseErr := url.Parse(cfg.Hub.Proxy)
		if parseErr != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", cfg.Hub.Proxy, parseErr)
		}
		opts = append(opts, telego.WithHTTPClient(&http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyURL(proxyURL),
			},
		}))
	}

	bot, err := telego.NewBot(cfg.Hub.BotToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	return &HubBot{
		bot:    bot,
		cfg:    cfg,
		st:     st,
		logger: logger,
	}, nil
}

// Attach wires in the components that consume the bot as transport.
// Must be called before Start.
func (b *HubBot) Attach(coord *ingest.Coordinator, r *router.Router, drafts *draft.Manager) {
	b.coord = coord
	b.router = r
	b.drafts = drafts
}

// Start begins long polling for Telegram updates.
func (b *HubBot) Start(ctx context.Context) error {
	b.logger.Info("starting telegram bot (polling mode)")
	b.startedAt = time.Now()

	// Stop() cancels this context to cleanly shut down long polling.
	pollCtx, cancel := context.WithCancel(ctx)
	b.pollCancel = cancel
	b.pollDone = make(chan struct{})

	updates, err := b.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout: 30,
		AllowedUpdates: []string{
			"message",
			"business_message",
			"edited_message",
		},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("start long polling: %w", err)
	}

	b.logger.Info("telegram bot connected", "username", b.bot.Username())

	// Register the hub command menu with retry.
	go func() {
		for attempt := 1; attempt <= 3; attempt++ {
			if err := b.syncMenuCommands(pollCtx); err != nil {
				b.logger.Warn("failed to sync telegram menu commands", "error", err, "attempt", attempt)
				if attempt < 3 {
					select {
					case <-pollCtx.Done():
						return
					case <-time.After(time.Duration(attempt*5) * time.Second):
					}
				}
			} else {
				return
			}
		}
	}()

	go func() {
		defer close(b.pollDone)
		for {
			select {
			case <-pollCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					b.logger.Info("telegram updates channel closed")
					return
				}
				switch {
				case update.Message != nil:
					b.handleMessage(pollCtx, update.Message)
				case update.BusinessMessage != nil:
					b.handleBusinessMessage(pollCtx, update.BusinessMessage)
				case update.EditedMessage != nil:
					// Edits never re-forward; the dedup ledger already
					// holds the original delivery.
					b.logger.Debug("edited message skipped",
						"chat_id", update.EditedMessage.Chat.ID,
						"message_id", update.EditedMessage.MessageID)
				default:
					b.logger.Debug("telegram update skipped (no message)", "update_id", update.UpdateID)
				}
			}
		}
	}()

	return nil
}

// Stop cancels long polling and waits for the polling goroutine to exit
// so Telegram releases the getUpdates lock before a new instance starts.
func (b *HubBot) Stop() {
	b.logger.Info("stopping telegram bot")

	if b.pollCancel != nil {
		b.pollCancel()
	}
	if b.pollDone != nil {
		select {
		case <-b.pollDone:
			b.logger.Info("telegram bot stopped")
		case <-time.After(10 * time.Second):
			b.logger.Warn("telegram bot stop timed out")
		}
	}
}

func (b *HubBot) syncMenuCommands(ctx context.Context) error {
	return b.bot.SetMyCommands(ctx, &telego.SetMyCommandsParams{
		Commands: []telego.BotCommand{
			{Command: "status", Description: "Состояние хаба"},
			{Command: "stats", Description: "Статистика за период"},
			{Command: "unreplied", Description: "Очередь без ответа"},
			{Command: "muted", Description: "Заглушённые чаты"},
			{Command: "ai_stats", Description: "Статистика черновиков"},
			{Command: "kb_list", Description: "Статьи базы знаний"},
			{Command: "help", Description: "Справка по командам"},
		},
	})
}
