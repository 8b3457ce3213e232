package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/coursehub/modhub/internal/assistant"
	"github.com/coursehub/modhub/internal/classify"
	"github.com/coursehub/modhub/internal/config"
	"github.com/coursehub/modhub/internal/draft"
	"github.com/coursehub/modhub/internal/store"
)

type ledgerKey struct {
	source    string
	chatID    int64
	messageID int
}

type fakeMessageStore struct {
	store.MessageStore
	mu        sync.Mutex
	processed map[ledgerKey]bool
	mappings  []store.Mapping
	muted     map[int64]bool
	stats     map[string]int
}

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{
		processed: make(map[ledgerKey]bool),
		muted:     make(map[int64]bool),
		stats:     make(map[string]int),
	}
}

func (f *fakeMessageStore) MarkProcessed(_ context.Context, source string, chatID int64, messageID int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := ledgerKey{source, chatID, messageID}
	if f.processed[k] {
		return false, nil
	}
	f.processed[k] = true
	return true, nil
}

func (f *fakeMessageStore) IsMuted(_ context.Context, chatID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.muted[chatID], nil
}

func (f *fakeMessageStore) SaveMapping(_ context.Context, m *store.Mapping) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.mappings {
		if existing.HubMessageID == m.HubMessageID {
			return 0, store.ErrIntegrity
		}
	}
	f.mappings = append(f.mappings, *m)
	return int64(len(f.mappings)), nil
}

func (f *fakeMessageStore) IncrementSourceStat(_ context.Context, source string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats[source]++
	return nil
}

func (f *fakeMessageStore) IncrementAIDrafts(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats["ai_drafts"]++
	return nil
}

func (f *fakeMessageStore) mappingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.mappings)
}

type fakeHub struct {
	mu     sync.Mutex
	cards  []string
	nextID int
	fail   bool
}

func (f *fakeHub) PostCard(_ context.Context, html string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return 0, fmt.Errorf("hub unavailable")
	}
	f.nextID++
	f.cards = append(f.cards, html)
	return f.nextID, nil
}

func (f *fakeHub) PostReply(_ context.Context, replyTo int, html string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return f.nextID, nil
}

func (f *fakeHub) cardCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cards)
}

func newTestCoordinator(ms *fakeMessageStore, hub *fakeHub) *Coordinator {
	return NewCoordinator(
		ms,
		classify.New(config.Default().Filters),
		nil, // no AI
		nil,
		hub,
		nil,
		Options{AcceptToken: "!ok", RejectToken: "!no"},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
}

func dmEvent(messageID int, text string) Event {
	return Event{
		Source:     "business",
		ChatKind:   store.ChatKindBusinessDM,
		ChatID:     555,
		MessageID:  messageID,
		SenderID:   555,
		SenderName: "Иван",
		ChatName:   "Иван",
		Text:       text,
		Timestamp:  time.Now(),
	}
}

func TestProcessForwardsAndMaps(t *testing.T) {
	ms := newFakeMessageStore()
	hub := &fakeHub{}
	c := newTestCoordinator(ms, hub)

	if err := c.Process(context.Background(), dmEvent(1, "Когда следующий урок?")); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if hub.cardCount() != 1 {
		t.Fatalf("cards = %d, want 1", hub.cardCount())
	}
	if ms.mappingCount() != 1 {
		t.Fatalf("mappings = %d, want 1", ms.mappingCount())
	}
	m := ms.mappings[0]
	if m.ChatKind != store.ChatKindBusinessDM || m.Priority != store.PriorityNormal {
		t.Errorf("mapping = %+v", m)
	}
	if ms.stats["business"] != 1 {
		t.Errorf("source stat = %d", ms.stats["business"])
	}
}

func TestProcessDedupDoubleDelivery(t *testing.T) {
	ms := newFakeMessageStore()
	hub := &fakeHub{}
	c := newTestCoordinator(ms, hub)

	ev := dmEvent(1, "Когда следующий урок?")
	for i := 0; i < 2; i++ {
		if err := c.Process(context.Background(), ev); err != nil {
			t.Fatalf("Process #%d: %v", i+1, err)
		}
	}
	if hub.cardCount() != 1 {
		t.Errorf("cards = %d, want exactly 1 after redelivery", hub.cardCount())
	}
	if ms.mappingCount() != 1 {
		t.Errorf("mappings = %d, want exactly 1", ms.mappingCount())
	}
}

func TestProcessConcurrentRedelivery(t *testing.T) {
	ms := newFakeMessageStore()
	hub := &fakeHub{}
	c := newTestCoordinator(ms, hub)

	ev := dmEvent(7, "Помогите, не работает доступ к уроку")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Process(context.Background(), ev)
		}()
	}
	wg.Wait()

	if hub.cardCount() != 1 {
		t.Errorf("cards = %d, want exactly 1 under concurrent delivery", hub.cardCount())
	}
	if ms.mappingCount() != 1 {
		t.Errorf("mappings = %d, want exactly 1", ms.mappingCount())
	}
}

func TestProcessNoiseDroppedButClaimed(t *testing.T) {
	ms := newFakeMessageStore()
	hub := &fakeHub{}
	c := newTestCoordinator(ms, hub)

	if err := c.Process(context.Background(), dmEvent(2, "ок")); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if hub.cardCount() != 0 {
		t.Error("noise message forwarded")
	}
	if !ms.processed[ledgerKey{"business", 555, 2}] {
		t.Error("dropped noise not recorded in dedup ledger")
	}
}

func TestProcessMuteGating(t *testing.T) {
	ms := newFakeMessageStore()
	hub := &fakeHub{}
	c := newTestCoordinator(ms, hub)

	ms.muted[555] = true
	if err := c.Process(context.Background(), dmEvent(3, "Вопрос из заглушённого чата?")); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if hub.cardCount() != 0 {
		t.Error("muted chat forwarded")
	}
	if !ms.processed[ledgerKey{"business", 555, 3}] {
		t.Error("muted event not recorded in dedup ledger")
	}

	// After unmute, the same event stays suppressed by the ledger.
	ms.muted[555] = false
	if err := c.Process(context.Background(), dmEvent(3, "Вопрос из заглушённого чата?")); err != nil {
		t.Fatalf("Process after unmute: %v", err)
	}
	if hub.cardCount() != 0 {
		t.Error("muted-window event re-forwarded after unmute")
	}

	// A genuinely new event goes through.
	if err := c.Process(context.Background(), dmEvent(4, "Новый вопрос после анмьюта?")); err != nil {
		t.Fatalf("Process new: %v", err)
	}
	if hub.cardCount() != 1 {
		t.Errorf("cards = %d, want 1 after unmute", hub.cardCount())
	}
}

func TestProcessEmptyDrop(t *testing.T) {
	ms := newFakeMessageStore()
	hub := &fakeHub{}
	c := newTestCoordinator(ms, hub)

	if err := c.Process(context.Background(), dmEvent(5, "")); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if hub.cardCount() != 0 {
		t.Error("empty message forwarded")
	}
}

func TestProcessBotEventsIgnored(t *testing.T) {
	ms := newFakeMessageStore()
	hub := &fakeHub{}
	c := newTestCoordinator(ms, hub)

	ev := dmEvent(6, "Сообщение от бота")
	ev.SenderIsBot = true
	if err := c.Process(context.Background(), ev); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if hub.cardCount() != 0 {
		t.Error("bot event forwarded")
	}
	if ms.processed[ledgerKey{"business", 555, 6}] {
		t.Error("bot event claimed a ledger key")
	}
}

func TestProcessPriorityFloor(t *testing.T) {
	ms := newFakeMessageStore()
	hub := &fakeHub{}
	c := newTestCoordinator(ms, hub)

	ev := Event{
		Source:        "lms",
		ChatKind:      store.ChatKindLMS,
		ChatID:        -1000,
		MessageID:     90001,
		SenderName:    "Анна",
		ChatName:      "LMS",
		Text:          "Сдала домашнее задание к уроку 3",
		Timestamp:     time.Now(),
		PriorityFloor: store.PriorityHigh,
		ForceForward:  true,
	}
	if err := c.Process(context.Background(), ev); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if ms.mappingCount() != 1 {
		t.Fatal("lms event not mapped")
	}
	if got := ms.mappings[0].Priority; got != store.PriorityHigh {
		t.Errorf("priority = %q, want high via floor", got)
	}
}

// blockingGenerator holds generation until released, then records whether
// its context was still alive.
type blockingGenerator struct {
	started chan struct{}
	release chan struct{}

	mu     sync.Mutex
	ctxErr error
}

func (g *blockingGenerator) Generate(ctx context.Context, _ assistant.Request) (*assistant.DraftResult, error) {
	close(g.started)
	<-g.release
	g.mu.Lock()
	g.ctxErr = ctx.Err()
	g.mu.Unlock()
	return &assistant.DraftResult{Text: "Запись урока появится в понедельник.", Confidence: 0.8}, nil
}

func TestDraftOutlivesCallerContext(t *testing.T) {
	ms := newFakeMessageStore()
	hub := &fakeHub{}
	gen := &blockingGenerator{started: make(chan struct{}), release: make(chan struct{})}
	drafts := draft.NewManager(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c := NewCoordinator(
		ms,
		classify.New(config.Default().Filters),
		gen,
		drafts,
		hub,
		nil,
		Options{AcceptToken: "!ok", RejectToken: "!no"},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)

	// Webhook events arrive on a request-scoped context that dies as
	// soon as the handler returns; generation must not die with it.
	ctx, cancel := context.WithCancel(context.Background())
	if err := c.Process(ctx, dmEvent(9, "Когда откроется доступ к уроку?")); err != nil {
		t.Fatalf("Process: %v", err)
	}
	<-gen.started
	cancel()
	close(gen.release)
	c.Wait()

	gen.mu.Lock()
	ctxErr := gen.ctxErr
	gen.mu.Unlock()
	if ctxErr != nil {
		t.Fatalf("generation context died with the caller: %v", ctxErr)
	}
	if drafts.PendingCount() != 1 {
		t.Errorf("pending drafts = %d, want 1 registered after caller cancellation", drafts.PendingCount())
	}
	if ms.stats["ai_drafts"] != 1 {
		t.Errorf("ai draft counter = %d, want 1", ms.stats["ai_drafts"])
	}
}

func TestProcessHubFailureDropsWithoutMapping(t *testing.T) {
	ms := newFakeMessageStore()
	hub := &fakeHub{fail: true}
	c := newTestCoordinator(ms, hub)

	if err := c.Process(context.Background(), dmEvent(8, "Вопрос в недоступный хаб?")); err == nil {
		t.Fatal("Process succeeded despite hub failure")
	}
	if ms.mappingCount() != 0 {
		t.Error("mapping persisted for undelivered card")
	}
}
