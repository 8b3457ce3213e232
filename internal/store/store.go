// Package store defines the persistence contracts for the hub.
// The store is the only shared mutable resource between listeners, the
// reply router, and the draft pipeline; every method is one atomic
// operation, so concurrent callers never observe half-written records.
//
// Two backends implement these interfaces: internal/store/sqlite for
// standalone deployments and internal/store/pg for managed ones.
package store

import (
	"context"
	"errors"
)

// ErrIntegrity reports a unique-constraint violation that should be
// unreachable by construction (e.g. a duplicate hub_message_id). It marks
// a logic defect, not a transient condition, and is not retried.
var ErrIntegrity = errors.New("store: integrity violation")

// MessageStore owns mappings, the mute list, the dedup ledger, and
// daily statistics.
type MessageStore interface {
	// SaveMapping inserts a mapping and returns its row id.
	// A duplicate HubMessageID fails with ErrIntegrity.
	SaveMapping(ctx context.Context, m *Mapping) (int64, error)

	// FindByHubMessage returns the mapping for a hub message, or (nil, nil)
	// when none exists. Absence is a normal outcome, not an error.
	FindByHubMessage(ctx context.Context, hubMessageID int) (*Mapping, error)

	// MarkReplied is idempotent; repeated calls last-write-win on replied_at.
	MarkReplied(ctx context.Context, hubMessageID int) error

	// Unreplied returns the triage queue: most urgent first, then oldest
	// first within a priority tier. The order is deterministic and stable.
	Unreplied(ctx context.Context, limit int) ([]Mapping, error)

	// IsDuplicate checks the dedup ledger without mutating it.
	IsDuplicate(ctx context.Context, source string, chatID int64, messageID int) (bool, error)

	// MarkProcessed records an origin event in the dedup ledger as a single
	// insert-or-ignore. It returns first=true for exactly one caller per
	// ledger key; a concurrent or repeated delivery observes first=false.
	// This single call is the forwarding gate; never check-then-act.
	MarkProcessed(ctx context.Context, source string, chatID int64, messageID int) (first bool, err error)

	MuteChat(ctx context.Context, chatID int64, reason string) error
	UnmuteChat(ctx context.Context, chatID int64) error
	IsMuted(ctx context.Context, chatID int64) (bool, error)
	MutedChats(ctx context.Context) ([]MuteEntry, error)

	// Stats aggregates the trailing window of `days` calendar days.
	Stats(ctx context.Context, days int) (*Stats, error)

	// Counter increments are individually atomic upserts.
	IncrementSourceStat(ctx context.Context, source string) error
	IncrementAIDrafts(ctx context.Context) error
	IncrementResponses(ctx context.Context) error
}

// KnowledgeStore owns knowledge articles, learned replies, and the
// append-only draft analytics log.
type KnowledgeStore interface {
	AddArticle(ctx context.Context, category, title, content, keywords string) (int64, error)
	DeleteArticle(ctx context.Context, id int64) (bool, error)
	Articles(ctx context.Context, category string) ([]Article, error)
	ArticleTitleExists(ctx context.Context, title string) (bool, error)

	// SearchArticles ranks by keyword overlap (keywords > title > content).
	SearchArticles(ctx context.Context, query string, limit int) ([]Article, error)
	BumpArticleUsage(ctx context.Context, ids []int64) error

	SaveLearnedReply(ctx context.Context, question, reply, senderName, chatName string) error
	SimilarReplies(ctx context.Context, question string, limit int) ([]LearnedReply, error)
	LearnedCount(ctx context.Context) (int, error)

	// LogDraftAction appends one analytics record; records are never updated.
	LogDraftAction(ctx context.Context, a *DraftAction) error
	DraftStats(ctx context.Context, days int) (*DraftStats, error)
}

// Store is the full persistence surface backed by one database.
type Store interface {
	MessageStore
	KnowledgeStore
	Close() error
}
