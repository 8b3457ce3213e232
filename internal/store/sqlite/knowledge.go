package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/coursehub/modhub/internal/store"
)

func (s *Store) AddArticle(ctx context.Context, category, title, content, keywords string) (int64, error) {
	if keywords == "" {
		// Fall back to the first few title words so search has something to match.
		words := strings.Fields(strings.ToLower(title))
		if len(words) > 5 {
			words = words[:5]
		}
		keywords = strings.Join(words, ",")
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO kb_articles (category, title, content, keywords)
		VALUES (?, ?, ?, ?)`, category, title, content, keywords)
	if err != nil {
		return 0, fmt.Errorf("add article: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) DeleteArticle(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM kb_articles WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete article: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete article rows: %w", err)
	}
	return n > 0, nil
}

func (s *Store) Articles(ctx context.Context, category string) ([]store.Article, error) {
	query := `SELECT id, category, title, content, keywords, usage_count, created_at, updated_at
		FROM kb_articles ORDER BY category, usage_count DESC`
	args := []any{}
	if category != "" {
		query = `SELECT id, category, title, content, keywords, usage_count, created_at, updated_at
			FROM kb_articles WHERE category = ? ORDER BY usage_count DESC`
		args = append(args, category)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	defer rows.Close()
	return scanArticles(rows)
}

func (s *Store) ArticleTitleExists(ctx context.Context, title string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM kb_articles WHERE title = ?`, title).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check article title: %w", err)
	}
	return true, nil
}

// SearchArticles filters candidates in SQL and scores them in Go:
// a keyword hit counts 3, a title hit 2, a content hit 1 per query word.
func (s *Store) SearchArticles(ctx context.Context, query string, limit int) ([]store.Article, error) {
	words := queryWords(query)
	if len(words) == 0 {
		return nil, nil
	}

	var conds []string
	var args []any
	for _, w := range words {
		conds = append(conds, `(LOWER(keywords) LIKE ? OR LOWER(title) LIKE ? OR LOWER(content) LIKE ?)`)
		p := "%" + w + "%"
		args = append(args, p, p, p)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, category, title, content, keywords, usage_count, created_at, updated_at
		FROM kb_articles
		WHERE `+strings.Join(conds, " OR "), args...)
	if err != nil {
		return nil, fmt.Errorf("search articles: %w", err)
	}
	defer rows.Close()

	articles, err := scanArticles(rows)
	if err != nil {
		return nil, err
	}

	type scored struct {
		a     store.Article
		score int
	}
	ranked := make([]scored, 0, len(articles))
	for _, a := range articles {
		sc := 0
		kw := strings.ToLower(a.Keywords)
		title := strings.ToLower(a.Title)
		content := strings.ToLower(a.Content)
		for _, w := range words {
			if strings.Contains(kw, w) {
				sc += 3
			}
			if strings.Contains(title, w) {
				sc += 2
			}
			if strings.Contains(content, w) {
				sc++
			}
		}
		ranked = append(ranked, scored{a, sc})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]store.Article, len(ranked))
	for i, r := range ranked {
		out[i] = r.a
	}
	return out, nil
}

func (s *Store) BumpArticleUsage(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE kb_articles SET usage_count = usage_count + 1 WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("bump article usage: %w", err)
	}
	return nil
}

func (s *Store) SaveLearnedReply(ctx context.Context, question, reply, senderName, chatName string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO learned_replies (question_text, reply_text, sender_name, chat_name)
		VALUES (?, ?, ?, ?)`, question, reply, senderName, chatName)
	if err != nil {
		return fmt.Errorf("save learned reply: %w", err)
	}
	return nil
}

func (s *Store) SimilarReplies(ctx context.Context, question string, limit int) ([]store.LearnedReply, error) {
	words := queryWords(question)

	var rows *sql.Rows
	var err error
	if len(words) > 0 {
		var conds []string
		var args []any
		for _, w := range words {
			conds = append(conds, `LOWER(question_text) LIKE ?`)
			args = append(args, "%"+w+"%")
		}
		args = append(args, limit)
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, question_text, reply_text, sender_name, chat_name, quality_score, created_at
			FROM learned_replies
			WHERE `+strings.Join(conds, " OR ")+`
			ORDER BY quality_score DESC, created_at DESC
			LIMIT ?`, args...)
	}
	if rows == nil && err == nil {
		// No usable words: recent replies still serve as style examples.
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, question_text, reply_text, sender_name, chat_name, quality_score, created_at
			FROM learned_replies
			ORDER BY created_at DESC
			LIMIT ?`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("similar replies: %w", err)
	}
	defer rows.Close()

	var out []store.LearnedReply
	for rows.Next() {
		var r store.LearnedReply
		var createdAt string
		if err := rows.Scan(&r.ID, &r.Question, &r.Reply, &r.SenderName, &r.ChatName, &r.Quality, &createdAt); err != nil {
			return nil, fmt.Errorf("scan learned reply: %w", err)
		}
		r.CreatedAt = parseTime(createdAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) LearnedCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM learned_replies`).Scan(&n); err != nil {
		return 0, fmt.Errorf("learned count: %w", err)
	}
	return n, nil
}

func (s *Store) LogDraftAction(ctx context.Context, a *store.DraftAction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ai_actions (id, hub_message_id, action, draft_text, final_text, generation_ms, sources)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID.String(), a.HubMessageID, a.Action, a.DraftText, a.FinalText,
		a.GenerationMS, strings.Join(a.Sources, ","))
	if err != nil {
		return fmt.Errorf("log draft action: %w", err)
	}
	return nil
}

func (s *Store) DraftStats(ctx context.Context, days int) (*store.DraftStats, error) {
	since := sinceDate(days)
	st := &store.DraftStats{}

	counts := []struct {
		action string
		dst    *int
	}{
		{"accepted", &st.Accepted},
		{"edited", &st.Edited},
		{"rejected", &st.Rejected},
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ai_actions WHERE created_at >= ?`, since).Scan(&st.TotalDrafts); err != nil {
		return nil, fmt.Errorf("draft stats total: %w", err)
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM ai_actions WHERE action = ? AND created_at >= ?`,
			c.action, since).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("draft stats %s: %w", c.action, err)
		}
	}

	var avg sql.NullFloat64
	if err := s.db.QueryRowContext(ctx,
		`SELECT AVG(generation_ms) FROM ai_actions WHERE generation_ms > 0 AND created_at >= ?`,
		since).Scan(&avg); err != nil {
		return nil, fmt.Errorf("draft stats avg: %w", err)
	}
	if avg.Valid {
		st.AvgGenerationMS = int(avg.Float64)
	}
	return st, nil
}

// queryWords splits a query into lowercase match words, dropping tokens
// too short to be selective.
func queryWords(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return r == ' ' || r == ',' || r == '\n' || r == '\t'
	})
	var out []string
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if len([]rune(f)) > 2 {
			out = append(out, f)
		}
	}
	return out
}

func scanArticles(rows *sql.Rows) ([]store.Article, error) {
	var out []store.Article
	for rows.Next() {
		var a store.Article
		var createdAt, updatedAt string
		if err := rows.Scan(&a.ID, &a.Category, &a.Title, &a.Content, &a.Keywords,
			&a.UsageCount, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		a.CreatedAt = parseTime(createdAt)
		a.UpdatedAt = parseTime(updatedAt)
		out = append(out, a)
	}
	return out, rows.Err()
}
