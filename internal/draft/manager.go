// Package draft tracks pending AI draft replies between generation and
// the moderator's verdict. Pending drafts live in memory only: after a
// restart the moderator simply answers by hand, which is always possible.
package draft

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/coursehub/modhub/internal/store"
)

// Draft dispositions recorded in the analytics log.
const (
	ActionAccepted = "accepted"
	ActionEdited   = "edited"
	ActionRejected = "rejected"
)

// Pending is one generated draft awaiting a verdict.
type Pending struct {
	HubMessageID int
	Text         string
	Confidence   float64
	Sources      []string
	GenerationMS int
	CreatedAt    time.Time
}

// Manager holds pending drafts keyed by the hub card message id. A second
// draft for the same card replaces the first; only the latest is actionable.
type Manager struct {
	mu      sync.Mutex
	pending map[int]*Pending
	// alias maps the draft message's own id to the card it belongs to, so
	// a reply to either message resolves to the same mapping.
	alias  map[int]int
	kstore store.KnowledgeStore
	logger *slog.Logger
}

// NewManager creates an empty manager. kstore receives the analytics log
// and may not be nil.
func NewManager(kstore store.KnowledgeStore, logger *slog.Logger) *Manager {
	return &Manager{
		pending: make(map[int]*Pending),
		alias:   make(map[int]int),
		kstore:  kstore,
		logger:  logger,
	}
}

// Put registers a draft for a hub card, replacing any earlier one.
func (m *Manager) Put(p *Pending) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	m.pending[p.HubMessageID] = p
}

// Alias records that draftMessageID is the hub message carrying the draft
// for card hubMessageID.
func (m *Manager) Alias(draftMessageID, hubMessageID int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alias[draftMessageID] = hubMessageID
}

// ResolveHubID maps a replied-to hub message id to its card id. A reply to
// the draft message and a reply to the card itself are equivalent.
func (m *Manager) ResolveHubID(messageID int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if card, ok := m.alias[messageID]; ok {
		return card
	}
	return messageID
}

// Peek returns the pending draft for a card without consuming it.
func (m *Manager) Peek(hubMessageID int) *Pending {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending[hubMessageID]
}

// Resolve consumes the pending draft for a card and logs the disposition.
// It returns nil when no draft is pending; the verdict is then meaningless
// and the caller treats the reply as a plain manual answer.
func (m *Manager) Resolve(ctx context.Context, hubMessageID int, action, finalText string) *Pending {
	m.mu.Lock()
	p, ok := m.pending[hubMessageID]
	if ok {
		delete(m.pending, hubMessageID)
		for id, card := range m.alias {
			if card == hubMessageID {
				delete(m.alias, id)
			}
		}
	}
	m.mu.Unlock()

	if !ok {
		return nil
	}

	rec := &store.DraftAction{
		ID:           uuid.Must(uuid.NewV7()),
		HubMessageID: hubMessageID,
		Action:       action,
		DraftText:    p.Text,
		FinalText:    finalText,
		GenerationMS: p.GenerationMS,
		Sources:      p.Sources,
	}
	if err := m.kstore.LogDraftAction(ctx, rec); err != nil {
		// Analytics only; dropping the record must not block the reply.
		m.logger.Warn("log draft action failed", "action", action, "error", err)
	}
	return p
}

// PendingCount reports how many drafts await a verdict.
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}
