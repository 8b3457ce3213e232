package telegram

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/mymmrac/telego"

	"github.com/coursehub/modhub/internal/format"
)

// handleCommand executes one moderator slash command in the hub chat.
func (b *HubBot) handleCommand(ctx context.Context, msg *telego.Message, text string) {
	fields := strings.Fields(text)
	cmd := strings.ToLower(fields[0])
	// Strip a bot-name suffix (/status@modhub_bot).
	if i := strings.Index(cmd, "@"); i > 0 {
		cmd = cmd[:i]
	}
	args := fields[1:]
	rest := strings.TrimSpace(strings.TrimPrefix(text, fields[0]))

	var reply string
	var err error

	switch cmd {
	case "/start", "/help":
		reply = format.Help(b.cfg.Router.AcceptToken, b.cfg.Router.RejectToken)
	case "/status":
		reply, err = b.statusText(ctx)
	case "/stats":
		reply, err = b.statsText(ctx, args, 7)
	case "/unreplied":
		reply, err = b.unrepliedText(ctx)
	case "/mute":
		reply, err = b.muteChat(ctx, args)
	case "/unmute":
		reply, err = b.unmuteChat(ctx, args)
	case "/muted":
		reply, err = b.mutedText(ctx)
	case "/ai_on":
		b.coord.SetAIEnabled(true)
		reply = "🤖 AI черновики включены."
	case "/ai_off":
		b.coord.SetAIEnabled(false)
		reply = "🤖 AI черновики выключены."
	case "/ai_stats":
		reply, err = b.aiStatsText(ctx, args)
	case "/kb_add":
		reply, err = b.kbAdd(ctx, rest)
	case "/kb_list":
		reply, err = b.kbList(ctx, args)
	case "/kb_del":
		reply, err = b.kbDelete(ctx, args)
	case "/kb_search":
		reply, err = b.kbSearch(ctx, rest)
	default:
		reply = "Неизвестная команда. /help покажет список."
	}

	if err != nil {
		b.logger.Error("command failed", "command", cmd, "error", err)
		reply = "❌ Ошибка выполнения команды: " + html.EscapeString(err.Error())
	}
	if reply == "" {
		return
	}
	if _, sendErr := b.PostReply(ctx, msg.MessageID, reply); sendErr != nil {
		b.logger.Error("command reply failed", "command", cmd, "error", sendErr)
	}
}

func (b *HubBot) statusText(ctx context.Context) (string, error) {
	st, err := b.st.Stats(ctx, 1)
	if err != nil {
		return "", err
	}
	muted, err := b.st.MutedChats(ctx)
	if err != nil {
		return "", err
	}

	ai := "выключены"
	if b.coord.AIEnabled() {
		ai = "включены"
	}

	var sb strings.Builder
	sb.WriteString("🏠 <b>Состояние хаба</b>\n\n")
	fmt.Fprintf(&sb, "Аптайм: %s\n", formatUptime(time.Since(b.startedAt)))
	fmt.Fprintf(&sb, "AI черновики: %s", ai)
	if n := b.drafts.PendingCount(); n > 0 {
		fmt.Fprintf(&sb, " (%d в ожидании)", n)
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Заглушено чатов: %d\n\n", len(muted))
	sb.WriteString(format.Stats(st))
	return sb.String(), nil
}

func (b *HubBot) statsText(ctx context.Context, args []string, defaultDays int) (string, error) {
	days := defaultDays
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 || n > 365 {
			return "Использование: /stats [дней], от 1 до 365.", nil
		}
		days = n
	}
	st, err := b.st.Stats(ctx, days)
	if err != nil {
		return "", err
	}
	return format.Stats(st), nil
}

func (b *HubBot) unrepliedText(ctx context.Context) (string, error) {
	mappings, err := b.st.Unreplied(ctx, 20)
	if err != nil {
		return "", err
	}
	return format.Unreplied(mappings), nil
}

func (b *HubBot) muteChat(ctx context.Context, args []string) (string, error) {
	if len(args) == 0 {
		return "Использование: /mute &lt;chat_id&gt; [причина]", nil
	}
	chatID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return "Использование: /mute &lt;chat_id&gt; [причина]", nil
	}
	reason := strings.Join(args[1:], " ")
	if err := b.st.MuteChat(ctx, chatID, reason); err != nil {
		return "", err
	}
	return fmt.Sprintf("🔇 Чат <code>%d</code> заглушён.", chatID), nil
}

func (b *HubBot) unmuteChat(ctx context.Context, args []string) (string, error) {
	if len(args) == 0 {
		return "Использование: /unmute &lt;chat_id&gt;", nil
	}
	chatID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return "Использование: /unmute &lt;chat_id&gt;", nil
	}
	if err := b.st.UnmuteChat(ctx, chatID); err != nil {
		return "", err
	}
	return fmt.Sprintf("🔊 Чат <code>%d</code> снова пересылается.", chatID), nil
}

func (b *HubBot) mutedText(ctx context.Context) (string, error) {
	entries, err := b.st.MutedChats(ctx)
	if err != nil {
		return "", err
	}
	return format.Muted(entries), nil
}

func (b *HubBot) aiStatsText(ctx context.Context, args []string) (string, error) {
	days := 7
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil && n >= 1 && n <= 365 {
			days = n
		}
	}
	st, err := b.st.DraftStats(ctx, days)
	if err != nil {
		return "", err
	}
	learned, err := b.st.LearnedCount(ctx)
	if err != nil {
		return "", err
	}
	return format.AIStats(st, learned, days), nil
}

func (b *HubBot) kbAdd(ctx context.Context, rest string) (string, error) {
	parts := strings.SplitN(rest, "|", 3)
	if len(parts) < 3 {
		return "Использование: /kb_add категория | заголовок | текст", nil
	}
	category := strings.TrimSpace(parts[0])
	title := strings.TrimSpace(parts[1])
	content := strings.TrimSpace(parts[2])
	if category == "" || title == "" || content == "" {
		return "Использование: /kb_add категория | заголовок | текст", nil
	}

	exists, err := b.st.ArticleTitleExists(ctx, title)
	if err != nil {
		return "", err
	}
	if exists {
		return "Статья с таким заголовком уже есть.", nil
	}

	id, err := b.st.AddArticle(ctx, category, title, content, "")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("📚 Статья <code>%d</code> добавлена: %s", id, html.EscapeString(title)), nil
}

func (b *HubBot) kbList(ctx context.Context, args []string) (string, error) {
	category := ""
	if len(args) > 0 {
		category = args[0]
	}
	articles, err := b.st.Articles(ctx, category)
	if err != nil {
		return "", err
	}
	return format.Articles(articles), nil
}

func (b *HubBot) kbDelete(ctx context.Context, args []string) (string, error) {
	if len(args) == 0 {
		return "Использование: /kb_del &lt;id&gt;", nil
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return "Использование: /kb_del &lt;id&gt;", nil
	}
	deleted, err := b.st.DeleteArticle(ctx, id)
	if err != nil {
		return "", err
	}
	if !deleted {
		return fmt.Sprintf("Статья <code>%d</code> не найдена.", id), nil
	}
	return fmt.Sprintf("🗑 Статья <code>%d</code> удалена.", id), nil
}

func (b *HubBot) kbSearch(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "Использование: /kb_search &lt;запрос&gt;", nil
	}
	articles, err := b.st.SearchArticles(ctx, query, 5)
	if err != nil {
		return "", err
	}
	if len(articles) == 0 {
		return "Ничего не найдено по запросу: " + html.EscapeString(query), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "🔍 <b>Найдено: %d</b>\n", len(articles))
	for _, a := range articles {
		fmt.Fprintf(&sb, "\n<code>%d</code> <b>%s</b>\n%s\n",
			a.ID, html.EscapeString(a.Title), html.EscapeString(truncate(a.Content, 200)))
	}
	return sb.String(), nil
}

func formatUptime(d time.Duration) string {
	d = d.Round(time.Minute)
	if d < time.Hour {
		return fmt.Sprintf("%d мин", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%d ч %d мин", int(d.Hours()), int(d.Minutes())%60)
	}
	return fmt.Sprintf("%d дн %d ч", int(d.Hours())/24, int(d.Hours())%24)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
