package telegram

import (
	"context"
	"strings"
	"time"

	"github.com/mymmrac/telego"

	"github.com/coursehub/modhub/internal/ingest"
	"github.com/coursehub/modhub/internal/store"
)

// handleMessage routes a regular message update. Hub chat traffic is
// moderator control; configured group traffic becomes ingest events;
// everything else is dropped.
func (b *HubBot) handleMessage(ctx context.Context, msg *telego.Message) {
	if msg.Chat.ID == b.cfg.Hub.HubChatID {
		b.handleHubMessage(ctx, msg)
		return
	}

	group, ok := b.cfg.GroupByChatID(msg.Chat.ID)
	if !ok {
		b.logger.Debug("message from unconfigured chat skipped",
			"chat_id", msg.Chat.ID, "chat_type", msg.Chat.Type)
		return
	}

	ev := b.eventFromMessage(msg)
	ev.Source = group.Key
	if group.Name != "" {
		ev.ChatName = group.Name
	}
	if err := b.coord.Process(ctx, ev); err != nil {
		b.logger.Error("group message processing failed",
			"source", group.Key, "chat_id", msg.Chat.ID, "error", err)
	}
}

// handleBusinessMessage ingests a Business API direct message. The
// account owner's own outbound messages are skipped; they are replies,
// not inbound traffic.
func (b *HubBot) handleBusinessMessage(ctx context.Context, msg *telego.Message) {
	if !b.cfg.Sources.Business.Enabled {
		return
	}
	if msg.From != nil && msg.From.ID == b.cfg.Hub.ModeratorUserID {
		return
	}

	ev := b.eventFromMessage(msg)
	ev.Source = "business"
	ev.ChatKind = store.ChatKindBusinessDM
	ev.BusinessConnectionID = msg.BusinessConnectionID
	if err := b.coord.Process(ctx, ev); err != nil {
		b.logger.Error("business message processing failed",
			"chat_id", msg.Chat.ID, "error", err)
	}
}

// handleHubMessage processes moderator activity inside the hub chat:
// slash commands and replies to forwarded cards.
func (b *HubBot) handleHubMessage(ctx context.Context, msg *telego.Message) {
	if msg.From == nil || msg.From.ID != b.cfg.Hub.ModeratorUserID {
		b.logger.Debug("hub message from non-moderator ignored",
			"sender_id", senderID(msg), "message_id", msg.MessageID)
		return
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}

	if strings.HasPrefix(text, "/") {
		b.handleCommand(ctx, msg, text)
		return
	}

	if msg.ReplyToMessage != nil {
		if err := b.router.HandleHubReply(ctx, msg.MessageID, msg.ReplyToMessage.MessageID, text); err != nil {
			b.logger.Error("hub reply routing failed",
				"message_id", msg.MessageID, "error", err)
		}
		return
	}

	b.logger.Debug("hub message without reply target ignored", "message_id", msg.MessageID)
}

// eventFromMessage normalizes a Telegram message into an ingest event.
func (b *HubBot) eventFromMessage(msg *telego.Message) ingest.Event {
	ev := ingest.Event{
		ChatKind:  chatKind(msg.Chat.Type),
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
		ChatName:  chatName(msg.Chat),
		Text:      msg.Text,
		Timestamp: time.Unix(int64(msg.Date), 0),
	}
	if msg.From != nil {
		ev.SenderID = msg.From.ID
		ev.SenderIsBot = msg.From.IsBot
		ev.SenderName = strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
		ev.SenderUsername = msg.From.Username
	}
	if ev.Text == "" {
		ev.Text = msg.Caption
	}

	kind, fileID, fileSize := mediaInfo(msg)
	if kind != "" {
		ev.HasMedia = true
		ev.MediaType = kind
		ev.MediaFileID = fileID
		ev.MediaFileSize = fileSize
	}
	return ev
}

// mediaInfo extracts the attachment kind and the file reference used for
// the reupload fallback. Photos take the highest resolution (last element).
func mediaInfo(msg *telego.Message) (kind, fileID string, fileSize int64) {
	switch {
	case len(msg.Photo) > 0:
		photo := msg.Photo[len(msg.Photo)-1]
		return "photo", photo.FileID, int64(photo.FileSize)
	case msg.Document != nil:
		return "document", msg.Document.FileID, int64(msg.Document.FileSize)
	case msg.Voice != nil:
		return "voice", msg.Voice.FileID, int64(msg.Voice.FileSize)
	case msg.VideoNote != nil:
		return "video_note", msg.VideoNote.FileID, int64(msg.VideoNote.FileSize)
	case msg.Video != nil:
		return "video", msg.Video.FileID, int64(msg.Video.FileSize)
	case msg.Audio != nil:
		return "audio", msg.Audio.FileID, int64(msg.Audio.FileSize)
	case msg.Sticker != nil:
		return "sticker", msg.Sticker.FileID, int64(msg.Sticker.FileSize)
	}
	return "", "", 0
}

func chatKind(chatType string) store.ChatKind {
	switch chatType {
	case telego.ChatTypePrivate:
		return store.ChatKindDM
	case telego.ChatTypeGroup:
		return store.ChatKindGroup
	case telego.ChatTypeSupergroup:
		return store.ChatKindSupergroup
	case telego.ChatTypeChannel:
		return store.ChatKindChannel
	}
	return store.ChatKindGroup
}

func chatName(chat telego.Chat) string {
	if chat.Title != "" {
		return chat.Title
	}
	name := strings.TrimSpace(chat.FirstName + " " + chat.LastName)
	if name != "" {
		return name
	}
	return chat.Username
}

func senderID(msg *telego.Message) int64 {
	if msg.From == nil {
		return 0
	}
	return msg.From.ID
}
