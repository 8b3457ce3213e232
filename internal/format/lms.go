package format

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
)

// LMSEventKind is the detected kind of an LMS webhook event.
type LMSEventKind string

const (
	LMSHomework LMSEventKind = "homework"
	LMSComment  LMSEventKind = "comment"
	LMSMessage  LMSEventKind = "message"
	LMSOrder    LMSEventKind = "order"
	LMSOther    LMSEventKind = "other"
)

// LMSCardData is the LMS-specific card payload.
type LMSCardData struct {
	Kind             LMSEventKind
	StudentName      string
	Email            string
	CourseName       string
	LessonName       string
	Text             string
	URL              string
	Timestamp        time.Time
	RequiresResponse bool
}

func lmsHeader(kind LMSEventKind) (header, icon string) {
	switch kind {
	case LMSHomework:
		return "📝 ДОМАШНЕЕ ЗАДАНИЕ", "📝"
	case LMSComment:
		return "💬 КОММЕНТАРИЙ К УРОКУ", "💬"
	case LMSMessage:
		return "✉️ СООБЩЕНИЕ ОТ УЧЕНИКА", "✉️"
	case LMSOrder:
		return "💰 НОВЫЙ ЗАКАЗ", "💰"
	default:
		return "📌 СОБЫТИЕ ПЛАТФОРМЫ", "📌"
	}
}

// LMSCard renders a hub card for one LMS platform event.
func LMSCard(d LMSCardData) string {
	header, icon := lmsHeader(d.Kind)

	var b strings.Builder
	fmt.Fprintf(&b, "┌─ 📚 <b>%s</b> ─\n", header)
	fmt.Fprintf(&b, "│ %s Ученик: <b>%s</b>\n", icon, html.EscapeString(d.StudentName))

	if d.Email != "" {
		fmt.Fprintf(&b, "│ 📧 Email: %s\n", html.EscapeString(d.Email))
	}
	if d.CourseName != "" {
		fmt.Fprintf(&b, "│ 📖 Курс: %s\n", html.EscapeString(d.CourseName))
	}
	if d.LessonName != "" {
		fmt.Fprintf(&b, "│ 📄 Урок: %s\n", html.EscapeString(d.LessonName))
	}

	b.WriteString("├" + rule + "\n")

	text := d.Text
	if text == "" {
		text = "[Нет текста]"
	}
	text = runewidth.Truncate(text, 800, "...")
	fmt.Fprintf(&b, "│ %s\n", html.EscapeString(text))

	b.WriteString("├" + rule + "\n")

	ts := d.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	status := "ℹ️ Информация"
	if d.RequiresResponse {
		status = "📝 Требует проверки"
	}
	fmt.Fprintf(&b, "│ 🕐 %s │ %s\n", ts.Format("15:04"), status)

	if d.URL != "" {
		fmt.Fprintf(&b, "│ 🔗 <a href='%s'>Открыть на платформе</a>\n", html.EscapeString(d.URL))
	}

	b.WriteString("└" + rule)
	return b.String()
}
