package store

import (
	"time"

	"github.com/google/uuid"
)

// ChatKind classifies the origin chat of a forwarded message.
type ChatKind string

const (
	ChatKindDM         ChatKind = "dm"
	ChatKindGroup      ChatKind = "group"
	ChatKindSupergroup ChatKind = "supergroup"
	ChatKindChannel    ChatKind = "channel"
	ChatKindBusinessDM ChatKind = "business_dm"
	ChatKindLMS        ChatKind = "lms"
)

// IsDirect reports whether the kind is a one-on-one conversation
// (plain DM, Business API DM, or an LMS event addressed to the moderator).
func (k ChatKind) IsDirect() bool {
	return k == ChatKindDM || k == ChatKindBusinessDM || k == ChatKindLMS
}

// IsGroup reports whether the kind is a multi-member chat.
func (k ChatKind) IsGroup() bool {
	return k == ChatKindGroup || k == ChatKindSupergroup
}

// Priority orders messages in the moderator's triage queue.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Rank returns the triage rank of a priority; lower sorts first.
// Unknown values rank after everything known.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

// MoreUrgent reports whether p outranks other.
func (p Priority) MoreUrgent(other Priority) bool {
	return p.Rank() < other.Rank()
}

// Mapping links a hub-posted copy of a message to its origin.
type Mapping struct {
	ID                int64
	HubMessageID      int
	OriginalMessageID int
	OriginalChatID    int64
	Source            string

	// BusinessConnectionID is set for Business API mappings; replies to
	// them go through the hub bot on this connection.
	BusinessConnectionID string

	SenderID       int64
	SenderName     string
	SenderUsername string

	ChatName string
	ChatKind ChatKind
	Priority Priority

	// Timestamp is the origin send time, not the ingestion time.
	Timestamp time.Time
	Replied   bool
	RepliedAt *time.Time
}

// MuteEntry is a per-chat forwarding suppression flag.
type MuteEntry struct {
	ChatID  int64
	Reason  string
	MutedAt time.Time
}

// ChatCount is a (chat name, message count) pair for top-source reporting.
type ChatCount struct {
	Name  string
	Count int
}

// Stats is the aggregate over a trailing window of calendar days.
type Stats struct {
	PeriodDays int
	Total      int
	Replied    int
	Unreplied  int
	Urgent     int

	// AvgReplyMinutes is meaningful only when HasAvgReply is true
	// (at least one row in the window was replied).
	AvgReplyMinutes float64
	HasAvgReply     bool

	TopChats []ChatCount
}

// DraftAction is one append-only analytics record for a draft disposition
// or a manually captured response. Records are never updated.
type DraftAction struct {
	ID           uuid.UUID
	HubMessageID int
	Action       string // "accepted", "edited", "rejected"
	DraftText    string
	FinalText    string
	GenerationMS int
	Sources      []string // knowledge article titles used for the draft
	CreatedAt    time.Time
}

// DraftStats aggregates draft dispositions over a trailing window.
type DraftStats struct {
	TotalDrafts     int
	Accepted        int
	Edited          int
	Rejected        int
	AvgGenerationMS int
}

// Article is one knowledge base entry used to ground AI drafts.
type Article struct {
	ID         int64
	Category   string // "faq", "instruction", "link", "policy"
	Title      string
	Content    string
	Keywords   string // comma-separated
	UsageCount int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// LearnedReply is a captured question→answer pair from the moderator's
// real responses, used as style context for future drafts.
type LearnedReply struct {
	ID         int64
	Question   string
	Reply      string
	SenderName string
	ChatName   string
	Quality    float64
	CreatedAt  time.Time
}
