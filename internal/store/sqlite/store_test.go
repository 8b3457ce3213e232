package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/coursehub/modhub/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "modhub.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testMapping(hubID int, priority store.Priority, ts time.Time) *store.Mapping {
	return &store.Mapping{
		HubMessageID:      hubID,
		OriginalMessageID: hubID + 1000,
		OriginalChatID:    42,
		Source:            "business",
		SenderID:          7,
		SenderName:        "Анна",
		ChatName:          "Анна",
		ChatKind:          store.ChatKindBusinessDM,
		Priority:          priority,
		Timestamp:         ts,
	}
}

func TestMarkProcessedClaimsOnce(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, err := s.MarkProcessed(ctx, "business", 42, 1)
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if !first {
		t.Fatal("first delivery must win the claim")
	}

	again, err := s.MarkProcessed(ctx, "business", 42, 1)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if again {
		t.Fatal("redelivery must not win the claim")
	}

	// The same message id under another source is a distinct key.
	other, err := s.MarkProcessed(ctx, "group_1", 42, 1)
	if err != nil {
		t.Fatalf("other source claim: %v", err)
	}
	if !other {
		t.Fatal("ledger keys are scoped per source")
	}

	dup, err := s.IsDuplicate(ctx, "business", 42, 1)
	if err != nil || !dup {
		t.Fatalf("IsDuplicate = %v, %v", dup, err)
	}
}

func TestSaveMappingRejectsDuplicateHubID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.SaveMapping(ctx, testMapping(100, store.PriorityNormal, time.Now().UTC())); err != nil {
		t.Fatalf("save: %v", err)
	}
	_, err := s.SaveMapping(ctx, testMapping(100, store.PriorityNormal, time.Now().UTC()))
	if !errors.Is(err, store.ErrIntegrity) {
		t.Fatalf("duplicate hub id error = %v, want ErrIntegrity", err)
	}
}

func TestFindByHubMessageRoundtrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ts := time.Date(2026, 8, 20, 10, 30, 0, 0, time.UTC)
	m := testMapping(200, store.PriorityUrgent, ts)
	m.BusinessConnectionID = "conn-1"
	if _, err := s.SaveMapping(ctx, m); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.FindByHubMessage(ctx, 200)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got == nil {
		t.Fatal("mapping not found")
	}
	if got.BusinessConnectionID != "conn-1" || got.Priority != store.PriorityUrgent {
		t.Fatalf("roundtrip = %+v", got)
	}
	if !got.Timestamp.Equal(ts) {
		t.Fatalf("timestamp = %v, want %v", got.Timestamp, ts)
	}

	missing, err := s.FindByHubMessage(ctx, 999)
	if err != nil {
		t.Fatalf("find missing: %v", err)
	}
	if missing != nil {
		t.Fatal("absent mapping must return nil, nil")
	}
}

func TestUnrepliedTriageOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	priorities := []store.Priority{
		store.PriorityNormal, store.PriorityUrgent, store.PriorityLow, store.PriorityUrgent,
	}
	for i, p := range priorities {
		if _, err := s.SaveMapping(ctx, testMapping(300+i, p, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	queue, err := s.Unreplied(ctx, 10)
	if err != nil {
		t.Fatalf("unreplied: %v", err)
	}
	var got []int
	for _, m := range queue {
		got = append(got, m.HubMessageID)
	}
	// Urgent first (older urgent before newer), then normal, then low.
	want := []int{301, 303, 300, 302}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("triage order = %v, want %v", got, want)
		}
	}
}

func TestMarkRepliedIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.SaveMapping(ctx, testMapping(400, store.PriorityNormal, time.Now().UTC())); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.MarkReplied(ctx, 400); err != nil {
		t.Fatalf("mark replied: %v", err)
	}
	if err := s.MarkReplied(ctx, 400); err != nil {
		t.Fatalf("repeat mark replied: %v", err)
	}

	m, err := s.FindByHubMessage(ctx, 400)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !m.Replied || m.RepliedAt == nil {
		t.Fatalf("replied state = %+v", m)
	}

	queue, err := s.Unreplied(ctx, 10)
	if err != nil {
		t.Fatalf("unreplied: %v", err)
	}
	if len(queue) != 0 {
		t.Fatalf("replied mapping still queued: %v", queue)
	}
}

func TestMuteRoundtrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	muted, err := s.IsMuted(ctx, 55)
	if err != nil || muted {
		t.Fatalf("fresh chat muted = %v, %v", muted, err)
	}

	if err := s.MuteChat(ctx, 55, "спам"); err != nil {
		t.Fatalf("mute: %v", err)
	}
	// Muting twice refreshes the reason instead of failing.
	if err := s.MuteChat(ctx, 55, "флуд"); err != nil {
		t.Fatalf("remute: %v", err)
	}

	muted, err = s.IsMuted(ctx, 55)
	if err != nil || !muted {
		t.Fatalf("muted = %v, %v", muted, err)
	}

	entries, err := s.MutedChats(ctx)
	if err != nil {
		t.Fatalf("muted chats: %v", err)
	}
	if len(entries) != 1 || entries[0].Reason != "флуд" {
		t.Fatalf("entries = %+v", entries)
	}

	if err := s.UnmuteChat(ctx, 55); err != nil {
		t.Fatalf("unmute: %v", err)
	}
	muted, err = s.IsMuted(ctx, 55)
	if err != nil || muted {
		t.Fatalf("after unmute muted = %v, %v", muted, err)
	}
}

func TestStatsAggregation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	for i, p := range []store.Priority{store.PriorityUrgent, store.PriorityNormal, store.PriorityNormal} {
		if _, err := s.SaveMapping(ctx, testMapping(500+i, p, now)); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}
	if err := s.MarkReplied(ctx, 501); err != nil {
		t.Fatalf("mark replied: %v", err)
	}
	for range 3 {
		if err := s.IncrementSourceStat(ctx, "business"); err != nil {
			t.Fatalf("source stat: %v", err)
		}
	}

	stats, err := s.Stats(ctx, 1)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 || stats.Replied != 1 || stats.Unreplied != 2 || stats.Urgent != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if !stats.HasAvgReply {
		t.Fatal("one replied row must produce an average")
	}
}

func TestKnowledgeSearchRanking(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.AddArticle(ctx, "faq", "Доступ к урокам", "Уроки открываются по расписанию потока.", "доступ,уроки,расписание"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := s.AddArticle(ctx, "faq", "Оплата курса", "Оплатить можно картой или по счёту.", "оплата,счёт"); err != nil {
		t.Fatalf("add: %v", err)
	}

	got, err := s.SearchArticles(ctx, "когда откроется доступ к урокам", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) == 0 || got[0].Title != "Доступ к урокам" {
		t.Fatalf("ranking = %+v", got)
	}

	exists, err := s.ArticleTitleExists(ctx, "Оплата курса")
	if err != nil || !exists {
		t.Fatalf("title exists = %v, %v", exists, err)
	}

	if err := s.BumpArticleUsage(ctx, []int64{got[0].ID}); err != nil {
		t.Fatalf("bump: %v", err)
	}
	all, err := s.Articles(ctx, "")
	if err != nil {
		t.Fatalf("articles: %v", err)
	}
	for _, a := range all {
		if a.ID == got[0].ID && a.UsageCount != 1 {
			t.Fatalf("usage count = %d", a.UsageCount)
		}
	}
}

func TestLearnedRepliesAndDraftStats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SaveLearnedReply(ctx, "Где запись вебинара?", "Запись в личном кабинете.", "Анна", "Поток 7"); err != nil {
		t.Fatalf("save learned: %v", err)
	}
	replies, err := s.SimilarReplies(ctx, "где найти запись", 3)
	if err != nil {
		t.Fatalf("similar: %v", err)
	}
	if len(replies) != 1 {
		t.Fatalf("similar = %+v", replies)
	}
	n, err := s.LearnedCount(ctx)
	if err != nil || n != 1 {
		t.Fatalf("learned count = %d, %v", n, err)
	}

	for _, action := range []string{"accepted", "accepted", "rejected"} {
		err := s.LogDraftAction(ctx, &store.DraftAction{
			ID:           uuid.Must(uuid.NewV7()),
			HubMessageID: 600,
			Action:       action,
			DraftText:    "draft",
			GenerationMS: 900,
		})
		if err != nil {
			t.Fatalf("log action: %v", err)
		}
	}

	ds, err := s.DraftStats(ctx, 7)
	if err != nil {
		t.Fatalf("draft stats: %v", err)
	}
	if ds.TotalDrafts != 3 || ds.Accepted != 2 || ds.Rejected != 1 {
		t.Fatalf("draft stats = %+v", ds)
	}
	if ds.AvgGenerationMS != 900 {
		t.Fatalf("avg generation = %d", ds.AvgGenerationMS)
	}
}
