package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/coursehub/modhub/internal/store"
)

const priorityOrder = `CASE priority
	WHEN 'urgent' THEN 0
	WHEN 'high' THEN 1
	WHEN 'normal' THEN 2
	WHEN 'low' THEN 3
	ELSE 4
END`

func (s *Store) SaveMapping(ctx context.Context, m *store.Mapping) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO message_mapping (
			hub_message_id, original_message_id, original_chat_id, source,
			business_connection_id, sender_id, sender_name, sender_username,
			chat_name, chat_kind, priority, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`,
		m.HubMessageID, m.OriginalMessageID, m.OriginalChatID, m.Source,
		m.BusinessConnectionID, m.SenderID, m.SenderName, m.SenderUsername,
		m.ChatName, string(m.ChatKind), string(m.Priority), m.Timestamp.UTC(),
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("save mapping hub_message_id=%d: %w", m.HubMessageID, store.ErrIntegrity)
		}
		return 0, fmt.Errorf("save mapping: %w", err)
	}
	return id, nil
}

func (s *Store) FindByHubMessage(ctx context.Context, hubMessageID int) (*store.Mapping, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, hub_message_id, original_message_id, original_chat_id, source,
		       business_connection_id, sender_id, sender_name, sender_username,
		       chat_name, chat_kind, priority, timestamp, replied, replied_at
		FROM message_mapping
		WHERE hub_message_id = $1`, hubMessageID)

	m, err := scanMapping(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by hub message: %w", err)
	}
	return m, nil
}

func (s *Store) MarkReplied(ctx context.Context, hubMessageID int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE message_mapping
		SET replied = TRUE, replied_at = now()
		WHERE hub_message_id = $1`, hubMessageID)
	if err != nil {
		return fmt.Errorf("mark replied: %w", err)
	}
	return nil
}

func (s *Store) Unreplied(ctx context.Context, limit int) ([]store.Mapping, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, hub_message_id, original_message_id, original_chat_id, source,
		       business_connection_id, sender_id, sender_name, sender_username,
		       chat_name, chat_kind, priority, timestamp, replied, replied_at
		FROM message_mapping
		WHERE NOT replied
		ORDER BY `+priorityOrder+`, timestamp ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query unreplied: %w", err)
	}
	defer rows.Close()

	var out []store.Mapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, fmt.Errorf("scan unreplied: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (s *Store) IsDuplicate(ctx context.Context, source string, chatID int64, messageID int) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM processed_messages
		WHERE source = $1 AND chat_id = $2 AND message_id = $3`,
		source, chatID, messageID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check duplicate: %w", err)
	}
	return true, nil
}

// MarkProcessed inserts the ledger key, ignoring a pre-existing one.
// The uniqueness constraint, not a prior read, decides which of two
// racing listeners owns the event.
func (s *Store) MarkProcessed(ctx context.Context, source string, chatID int64, messageID int) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO processed_messages (source, chat_id, message_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (source, chat_id, message_id) DO NOTHING`,
		source, chatID, messageID)
	if err != nil {
		return false, fmt.Errorf("mark processed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark processed rows: %w", err)
	}
	return n == 1, nil
}

func (s *Store) MuteChat(ctx context.Context, chatID int64, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO muted_chats (chat_id, reason) VALUES ($1, $2)
		ON CONFLICT (chat_id) DO UPDATE SET reason = excluded.reason`,
		chatID, reason)
	if err != nil {
		return fmt.Errorf("mute chat: %w", err)
	}
	return nil
}

func (s *Store) UnmuteChat(ctx context.Context, chatID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM muted_chats WHERE chat_id = $1`, chatID)
	if err != nil {
		return fmt.Errorf("unmute chat: %w", err)
	}
	return nil
}

func (s *Store) IsMuted(ctx context.Context, chatID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM muted_chats WHERE chat_id = $1`, chatID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check muted: %w", err)
	}
	return true, nil
}

func (s *Store) MutedChats(ctx context.Context) ([]store.MuteEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT chat_id, reason, muted_at FROM muted_chats ORDER BY muted_at`)
	if err != nil {
		return nil, fmt.Errorf("list muted: %w", err)
	}
	defer rows.Close()

	var out []store.MuteEntry
	for rows.Next() {
		var e store.MuteEntry
		if err := rows.Scan(&e.ChatID, &e.Reason, &e.MutedAt); err != nil {
			return nil, fmt.Errorf("scan muted: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) Stats(ctx context.Context, days int) (*store.Stats, error) {
	since := time.Now().UTC().AddDate(0, 0, -days)
	st := &store.Stats{PeriodDays: days}

	counts := []struct {
		query string
		dst   *int
	}{
		{`SELECT COUNT(*) FROM message_mapping WHERE timestamp >= $1`, &st.Total},
		{`SELECT COUNT(*) FROM message_mapping WHERE replied AND timestamp >= $1`, &st.Replied},
		{`SELECT COUNT(*) FROM message_mapping WHERE NOT replied AND timestamp >= $1`, &st.Unreplied},
		{`SELECT COUNT(*) FROM message_mapping WHERE priority = 'urgent' AND timestamp >= $1`, &st.Urgent},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query, since).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("stats count: %w", err)
		}
	}

	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT AVG(EXTRACT(EPOCH FROM (replied_at - timestamp)) / 60)
		FROM message_mapping
		WHERE replied AND replied_at IS NOT NULL AND timestamp >= $1`, since).Scan(&avg)
	if err != nil {
		return nil, fmt.Errorf("stats avg reply: %w", err)
	}
	if avg.Valid {
		st.AvgReplyMinutes = avg.Float64
		st.HasAvgReply = true
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT chat_name, COUNT(*) AS cnt
		FROM message_mapping
		WHERE timestamp >= $1
		GROUP BY chat_name
		ORDER BY cnt DESC
		LIMIT 5`, since)
	if err != nil {
		return nil, fmt.Errorf("stats top chats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var c store.ChatCount
		if err := rows.Scan(&c.Name, &c.Count); err != nil {
			return nil, fmt.Errorf("scan top chat: %w", err)
		}
		st.TopChats = append(st.TopChats, c)
	}
	return st, rows.Err()
}

func (s *Store) IncrementSourceStat(ctx context.Context, source string) error {
	day := todayUTC()
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO source_stats (date, source, messages) VALUES ($1, $2, 1)
		ON CONFLICT (date, source) DO UPDATE SET messages = source_stats.messages + 1`,
		day, source); err != nil {
		return fmt.Errorf("increment source stat: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_stats (date, total_messages) VALUES ($1, 1)
		ON CONFLICT (date) DO UPDATE SET total_messages = daily_stats.total_messages + 1`,
		day); err != nil {
		return fmt.Errorf("increment daily total: %w", err)
	}
	return nil
}

func (s *Store) IncrementAIDrafts(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_stats (date, ai_drafts) VALUES ($1, 1)
		ON CONFLICT (date) DO UPDATE SET ai_drafts = daily_stats.ai_drafts + 1`, todayUTC())
	if err != nil {
		return fmt.Errorf("increment ai drafts: %w", err)
	}
	return nil
}

func (s *Store) IncrementResponses(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_stats (date, responses_sent) VALUES ($1, 1)
		ON CONFLICT (date) DO UPDATE SET responses_sent = daily_stats.responses_sent + 1`, todayUTC())
	if err != nil {
		return fmt.Errorf("increment responses: %w", err)
	}
	return nil
}

func todayUTC() string {
	return time.Now().UTC().Format("2006-01-02")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMapping(r rowScanner) (*store.Mapping, error) {
	var m store.Mapping
	var kind, priority string
	var repliedAt sql.NullTime

	err := r.Scan(
		&m.ID, &m.HubMessageID, &m.OriginalMessageID, &m.OriginalChatID, &m.Source,
		&m.BusinessConnectionID, &m.SenderID, &m.SenderName, &m.SenderUsername,
		&m.ChatName, &kind, &priority, &m.Timestamp, &m.Replied, &repliedAt,
	)
	if err != nil {
		return nil, err
	}

	m.ChatKind = store.ChatKind(kind)
	m.Priority = store.Priority(priority)
	if repliedAt.Valid {
		t := repliedAt.Time
		m.RepliedAt = &t
	}
	return &m, nil
}
