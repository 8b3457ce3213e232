// Package format renders HTML messages for the hub chat. Everything here
// is a pure string function; the transport layer decides where it goes.
package format

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/coursehub/modhub/internal/store"
)

// maxCardBody bounds the rendered message text inside a hub card.
const maxCardBody = 1000

const rule = "────────────────────────────────────────"

// CardData carries everything a hub card shows about an origin message.
type CardData struct {
	Source         string
	SourceLabel    string
	SenderName     string
	SenderUsername string
	ChatName       string
	ChatKind       store.ChatKind
	Text           string
	HasMedia       bool
	MediaType      string
	Timestamp      time.Time
	Priority       store.Priority
	Tags           []string
}

// sourceEmoji maps listener keys to their card emoji. Unknown sources get
// a generic envelope.
func sourceEmoji(source string) string {
	switch source {
	case "business":
		return "💬"
	case "lms":
		return "📚"
	case "hub":
		return "🏠"
	default:
		return "👥"
	}
}

func priorityIndicator(p store.Priority) string {
	switch p {
	case store.PriorityUrgent:
		return "🔴 Срочно"
	case store.PriorityHigh:
		return "🟡 Важное"
	case store.PriorityNormal:
		return "🟢 Обычное"
	case store.PriorityLow:
		return "⚪ Инфо"
	default:
		return ""
	}
}

// Card renders the hub-facing card for one forwarded message.
func Card(d CardData) string {
	label := d.SourceLabel
	if label == "" {
		label = "СООБЩЕНИЕ"
	}
	if d.ChatKind.IsGroup() && d.ChatName != "" {
		label = "ГРУППА: " + d.ChatName
	}

	var b strings.Builder
	fmt.Fprintf(&b, "┌─ %s <b>%s</b> ─\n", sourceEmoji(d.Source), html.EscapeString(label))

	fmt.Fprintf(&b, "│ От: <b>%s</b>", html.EscapeString(d.SenderName))
	if d.SenderUsername != "" {
		fmt.Fprintf(&b, " (@%s)", html.EscapeString(d.SenderUsername))
	}
	b.WriteString("\n├" + rule + "\n")

	text := d.Text
	if text == "" {
		text = "[Нет текста]"
	}
	text = runewidth.Truncate(text, maxCardBody, "...")
	fmt.Fprintf(&b, "│ %s\n", html.EscapeString(text))

	if d.HasMedia {
		mt := d.MediaType
		if mt == "" {
			mt = "файл"
		}
		fmt.Fprintf(&b, "│ 📎 <i>Вложение: %s</i>\n", html.EscapeString(mt))
	}

	b.WriteString("├" + rule + "\n")

	ts := d.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	footer := []string{fmt.Sprintf("│ 🕐 %s", ts.Format("15:04"))}
	if ind := priorityIndicator(d.Priority); ind != "" {
		footer = append(footer, ind)
	}
	b.WriteString(strings.Join(footer, " │ ") + "\n")

	if tags := nonEmpty(d.Tags); len(tags) > 0 {
		fmt.Fprintf(&b, "│ %s\n", strings.Join(tags, " "))
	}

	b.WriteString("└" + rule)
	return b.String()
}

func nonEmpty(in []string) []string {
	var out []string
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
