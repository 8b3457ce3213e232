// Package knowledge is the retrieval layer behind AI drafts: course FAQ
// articles plus replies learned from the moderator's own answers.
package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/coursehub/modhub/internal/store"
)

// Searcher is the read surface the assistant needs.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]store.Article, error)
	Similar(ctx context.Context, question string, limit int) ([]store.LearnedReply, error)
	MarkUsed(ctx context.Context, articleIDs []int64)
}

// Base wraps the knowledge store with seeding and usage accounting.
type Base struct {
	kstore store.KnowledgeStore
	logger *slog.Logger
}

var _ Searcher = (*Base)(nil)

func New(kstore store.KnowledgeStore, logger *slog.Logger) *Base {
	return &Base{kstore: kstore, logger: logger}
}

// Search returns the best-matching articles for a student question.
func (b *Base) Search(ctx context.Context, query string, limit int) ([]store.Article, error) {
	return b.kstore.SearchArticles(ctx, query, limit)
}

// Similar returns learned replies close to the question, for style context.
func (b *Base) Similar(ctx context.Context, question string, limit int) ([]store.LearnedReply, error) {
	return b.kstore.SimilarReplies(ctx, question, limit)
}

// MarkUsed bumps usage counters for articles cited in a draft. Failures
// are logged and swallowed; usage counts are advisory.
func (b *Base) MarkUsed(ctx context.Context, articleIDs []int64) {
	if len(articleIDs) == 0 {
		return
	}
	if err := b.kstore.BumpArticleUsage(ctx, articleIDs); err != nil {
		b.logger.Warn("bump article usage failed", "error", err)
	}
}

// seedFile is the YAML layout of a knowledge seed.
type seedFile struct {
	Articles []seedArticle `yaml:"articles"`
}

type seedArticle struct {
	Category string `yaml:"category"`
	Title    string `yaml:"title"`
	Content  string `yaml:"content"`
	Keywords string `yaml:"keywords"`
}

// LoadSeed imports articles from a YAML file. Articles whose title already
// exists are skipped, so re-running the seed is safe. Returns the number
// of articles added.
func (b *Base) LoadSeed(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read seed: %w", err)
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return 0, fmt.Errorf("parse seed: %w", err)
	}

	added := 0
	for _, a := range seed.Articles {
		title := strings.TrimSpace(a.Title)
		if title == "" || strings.TrimSpace(a.Content) == "" {
			b.logger.Warn("seed article skipped", "reason", "empty title or content")
			continue
		}
		exists, err := b.kstore.ArticleTitleExists(ctx, title)
		if err != nil {
			return added, fmt.Errorf("check seed article: %w", err)
		}
		if exists {
			continue
		}
		category := a.Category
		if category == "" {
			category = "faq"
		}
		if _, err := b.kstore.AddArticle(ctx, category, title, a.Content, a.Keywords); err != nil {
			return added, fmt.Errorf("add seed article %q: %w", title, err)
		}
		added++
	}
	return added, nil
}
