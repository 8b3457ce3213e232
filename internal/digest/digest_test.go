package digest

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/coursehub/modhub/internal/store"
)

type fakeMessageStore struct {
	store.MessageStore
	queue []store.Mapping
	stats store.Stats
}

func (f *fakeMessageStore) Unreplied(ctx context.Context, limit int) ([]store.Mapping, error) {
	return f.queue, nil
}

func (f *fakeMessageStore) Stats(ctx context.Context, days int) (*store.Stats, error) {
	st := f.stats
	st.PeriodDays = days
	return &st, nil
}

type fakePoster struct {
	cards []string
}

func (f *fakePoster) PostCard(ctx context.Context, html string) (int, error) {
	f.cards = append(f.cards, html)
	return len(f.cards), nil
}

func TestNewRejectsBadCron(t *testing.T) {
	if _, err := New("not a cron", &fakeMessageStore{}, &fakePoster{}, slog.Default()); err == nil {
		t.Fatal("invalid cron must be rejected at construction")
	}
	if _, err := New("0 9 * * *", &fakeMessageStore{}, &fakePoster{}, slog.Default()); err != nil {
		t.Fatalf("valid cron rejected: %v", err)
	}
}

func TestPostRendersQueueAndStats(t *testing.T) {
	mstore := &fakeMessageStore{
		queue: []store.Mapping{{
			HubMessageID: 10,
			SenderName:   "Анна",
			ChatName:     "Поток 7",
			Priority:     store.PriorityUrgent,
			Timestamp:    time.Now().Add(-2 * time.Hour),
		}},
		stats: store.Stats{Total: 5, Replied: 4, Unreplied: 1, Urgent: 1},
	}
	hub := &fakePoster{}
	s, err := New("0 9 * * *", mstore, hub, slog.Default())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if err := s.post(context.Background()); err != nil {
		t.Fatalf("post: %v", err)
	}
	if len(hub.cards) != 1 {
		t.Fatalf("posted %d cards", len(hub.cards))
	}
	card := hub.cards[0]
	if !strings.Contains(card, "Статистика") || !strings.Contains(card, "Анна") {
		t.Fatalf("digest missing sections:\n%s", card)
	}
}
