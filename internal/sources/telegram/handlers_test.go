package telegram

import (
	"testing"
	"time"

	"github.com/mymmrac/telego"

	"github.com/coursehub/modhub/internal/store"
)

func TestEventFromMessage(t *testing.T) {
	b := &HubBot{}
	msg := &telego.Message{
		MessageID: 42,
		Date:      1700000000,
		Chat:      telego.Chat{ID: -100123, Type: telego.ChatTypeSupergroup, Title: "Поток 7"},
		From: &telego.User{
			ID:        555,
			FirstName: "Анна",
			LastName:  "Петрова",
			Username:  "anna",
		},
		Text: "Где найти запись урока?",
	}

	ev := b.eventFromMessage(msg)

	if ev.ChatKind != store.ChatKindSupergroup {
		t.Fatalf("chat kind = %q", ev.ChatKind)
	}
	if ev.ChatID != -100123 || ev.MessageID != 42 {
		t.Fatalf("origin key = (%d, %d)", ev.ChatID, ev.MessageID)
	}
	if ev.SenderName != "Анна Петрова" || ev.SenderUsername != "anna" {
		t.Fatalf("sender = %q @%s", ev.SenderName, ev.SenderUsername)
	}
	if ev.ChatName != "Поток 7" {
		t.Fatalf("chat name = %q", ev.ChatName)
	}
	if !ev.Timestamp.Equal(time.Unix(1700000000, 0)) {
		t.Fatalf("timestamp = %v", ev.Timestamp)
	}
	if ev.HasMedia {
		t.Fatal("text message should not report media")
	}
}

func TestEventFromMessageCaptionFallback(t *testing.T) {
	b := &HubBot{}
	msg := &telego.Message{
		MessageID: 7,
		Chat:      telego.Chat{ID: 9, Type: telego.ChatTypePrivate, FirstName: "Олег"},
		Caption:   "скрин ошибки",
		Photo: []telego.PhotoSize{
			{FileID: "small", FileSize: 1000},
			{FileID: "large", FileSize: 90000},
		},
	}

	ev := b.eventFromMessage(msg)

	if ev.Text != "скрин ошибки" {
		t.Fatalf("text = %q", ev.Text)
	}
	if !ev.HasMedia || ev.MediaType != "photo" {
		t.Fatalf("media = %v %q", ev.HasMedia, ev.MediaType)
	}
	if ev.MediaFileID != "large" {
		t.Fatalf("photo relay must take the highest resolution, got %q", ev.MediaFileID)
	}
	if ev.ChatName != "Олег" {
		t.Fatalf("chat name = %q", ev.ChatName)
	}
}

func TestMediaInfoKinds(t *testing.T) {
	tests := []struct {
		name string
		msg  *telego.Message
		want string
	}{
		{"document", &telego.Message{Document: &telego.Document{FileID: "d1"}}, "document"},
		{"voice", &telego.Message{Voice: &telego.Voice{FileID: "v1"}}, "voice"},
		{"video", &telego.Message{Video: &telego.Video{FileID: "vid"}}, "video"},
		{"sticker", &telego.Message{Sticker: &telego.Sticker{FileID: "s1"}}, "sticker"},
		{"none", &telego.Message{Text: "hi"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, _, _ := mediaInfo(tt.msg)
			if kind != tt.want {
				t.Fatalf("kind = %q, want %q", kind, tt.want)
			}
		})
	}
}

func TestChatKind(t *testing.T) {
	if chatKind(telego.ChatTypePrivate) != store.ChatKindDM {
		t.Fatal("private must map to dm")
	}
	if chatKind(telego.ChatTypeChannel) != store.ChatKindChannel {
		t.Fatal("channel must map to channel")
	}
	if chatKind("something_new") != store.ChatKindGroup {
		t.Fatal("unknown chat types default to group")
	}
}
