package format

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/coursehub/modhub/internal/store"
)

// Stats renders the aggregate report for /stats and the daily digest.
func Stats(st *store.Stats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 <b>Статистика за %d дн.</b>\n\n", st.PeriodDays)
	fmt.Fprintf(&b, "📨 Всего сообщений: <b>%d</b>\n", st.Total)
	fmt.Fprintf(&b, "✅ Отвечено: %d\n", st.Replied)
	fmt.Fprintf(&b, "⏳ Без ответа: %d\n", st.Unreplied)
	fmt.Fprintf(&b, "🔴 Срочных: %d\n", st.Urgent)
	if st.HasAvgReply {
		fmt.Fprintf(&b, "⏱ Среднее время ответа: %.0f мин.\n", st.AvgReplyMinutes)
	}

	if len(st.TopChats) > 0 {
		b.WriteString("\nТоп чатов:\n")
		for i, c := range st.TopChats {
			branch := "├"
			if i == len(st.TopChats)-1 {
				branch = "└"
			}
			fmt.Fprintf(&b, "%s %s: %d\n", branch, html.EscapeString(c.Name), c.Count)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// AIStats renders draft disposition counts for /ai_stats.
func AIStats(st *store.DraftStats, learnedCount, periodDays int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🤖 <b>AI за %d дн.</b>\n\n", periodDays)
	fmt.Fprintf(&b, "Черновиков: <b>%d</b>\n", st.TotalDrafts)
	fmt.Fprintf(&b, "├ ✅ Принято: %d\n", st.Accepted)
	fmt.Fprintf(&b, "├ ✏️ Отредактировано: %d\n", st.Edited)
	fmt.Fprintf(&b, "└ ❌ Отклонено: %d\n", st.Rejected)
	if st.TotalDrafts > 0 {
		useful := st.Accepted + st.Edited
		fmt.Fprintf(&b, "\nПолезность: %.0f%%\n", float64(useful)/float64(st.TotalDrafts)*100)
	}
	if st.AvgGenerationMS > 0 {
		fmt.Fprintf(&b, "Среднее время генерации: %d мс\n", st.AvgGenerationMS)
	}
	fmt.Fprintf(&b, "Выученных ответов: %d", learnedCount)
	return b.String()
}

// Unreplied renders the triage queue for /unreplied and the digest.
func Unreplied(mappings []store.Mapping) string {
	if len(mappings) == 0 {
		return "✅ Все сообщения отвечены"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "⏳ <b>Без ответа: %d</b>\n", len(mappings))
	now := time.Now()
	for _, m := range mappings {
		age := formatAge(now.Sub(m.Timestamp))
		name := m.SenderName
		if name == "" {
			name = m.ChatName
		}
		marker := ""
		if m.Priority == store.PriorityUrgent {
			marker = "🔴 "
		}
		fmt.Fprintf(&b, "\n%s<b>%s</b> (%s, %s назад)", marker, html.EscapeString(name),
			html.EscapeString(m.ChatName), age)
	}
	return b.String()
}

// Muted renders the mute list for /muted.
func Muted(entries []store.MuteEntry) string {
	if len(entries) == 0 {
		return "Нет заглушённых чатов"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🔇 <b>Заглушено: %d</b>\n", len(entries))
	for _, e := range entries {
		fmt.Fprintf(&b, "\n<code>%d</code>", e.ChatID)
		if e.Reason != "" {
			fmt.Fprintf(&b, " — %s", html.EscapeString(e.Reason))
		}
	}
	return b.String()
}

// Articles renders the knowledge base listing for /kb_list.
func Articles(articles []store.Article) string {
	if len(articles) == 0 {
		return "База знаний пуста. Добавьте статью: /kb_add категория | заголовок | текст"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📚 <b>База знаний: %d</b>\n", len(articles))
	for _, a := range articles {
		title := runewidth.Truncate(a.Title, 60, "...")
		fmt.Fprintf(&b, "\n<code>%d</code> [%s] %s", a.ID, html.EscapeString(a.Category),
			html.EscapeString(title))
		if a.UsageCount > 0 {
			fmt.Fprintf(&b, " (×%d)", a.UsageCount)
		}
	}
	return b.String()
}

// Help is the /help text. Tokens are substituted so the hint matches
// the configured shorthands.
func Help(acceptToken, rejectToken string) string {
	return fmt.Sprintf(`🏠 <b>Команды хаба</b>

Ответ на карточку в этом чате уходит автору оригинала.
%s — отправить AI черновик, %s — отклонить его.

/status — сводка за сегодня
/stats [дней] — статистика за период
/unreplied — очередь без ответа
/mute &lt;chat_id&gt; [причина] — заглушить чат
/unmute &lt;chat_id&gt; — вернуть чат
/muted — список заглушённых
/ai_on, /ai_off — включить/выключить черновики
/ai_stats — статистика AI
/kb_add кат | заголовок | текст — добавить статью
/kb_list [категория] — список статей
/kb_del &lt;id&gt; — удалить статью
/kb_search &lt;запрос&gt; — поиск по базе`,
		html.EscapeString(acceptToken), html.EscapeString(rejectToken))
}

func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "меньше минуты"
	case d < time.Hour:
		return fmt.Sprintf("%d мин", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%d ч", int(d.Hours()))
	default:
		return fmt.Sprintf("%d дн", int(d.Hours()/24))
	}
}
