package telegram

import (
	"context"
	"fmt"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/coursehub/modhub/internal/store"
)

// PostCard sends a rendered card into the hub chat and returns the hub
// message id the mapping will key on.
func (b *HubBot) PostCard(ctx context.Context, html string) (int, error) {
	msg := tu.Message(tu.ID(b.cfg.Hub.HubChatID), html).
		WithParseMode(telego.ModeHTML)
	sent, err := b.bot.SendMessage(ctx, msg)
	if err != nil {
		return 0, fmt.Errorf("post hub card: %w", err)
	}
	return sent.MessageID, nil
}

// PostReply sends a message into the hub chat threaded under an earlier
// hub message. Draft previews use this to attach below their card.
func (b *HubBot) PostReply(ctx context.Context, replyTo int, html string) (int, error) {
	msg := tu.Message(tu.ID(b.cfg.Hub.HubChatID), html).
		WithParseMode(telego.ModeHTML).
		WithReplyParameters(&telego.ReplyParameters{MessageID: replyTo})
	sent, err := b.bot.SendMessage(ctx, msg)
	if err != nil {
		return 0, fmt.Errorf("post hub reply: %w", err)
	}
	return sent.MessageID, nil
}

// Notify posts a service notice into the hub chat under the moderator's
// message. Best-effort from the router's point of view.
func (b *HubBot) Notify(ctx context.Context, replyTo int, html string) error {
	_, err := b.PostReply(ctx, replyTo, html)
	return err
}

// SendReply delivers the moderator's text back to the origin recorded in
// the mapping. Business mappings go out over the Business connection;
// group and DM mappings reply to the original message in its chat.
func (b *HubBot) SendReply(ctx context.Context, m *store.Mapping, text string) error {
	if m.Source == "lms" {
		return fmt.Errorf("replies to lms events are not deliverable")
	}

	msg := tu.Message(tu.ID(m.OriginalChatID), text)
	if m.BusinessConnectionID != "" {
		msg = msg.WithBusinessConnectionID(m.BusinessConnectionID)
	} else {
		msg = msg.WithReplyParameters(&telego.ReplyParameters{MessageID: m.OriginalMessageID})
	}

	if _, err := b.bot.SendMessage(ctx, msg); err != nil {
		return fmt.Errorf("send reply to chat %d: %w", m.OriginalChatID, err)
	}
	return nil
}
