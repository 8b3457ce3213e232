package format

import (
	"fmt"
	"html"
	"strings"
)

// Draft renders an AI draft reply posted under a hub card. The accept and
// reject tokens come from router config so the hint matches what actually
// works.
func Draft(text string, confidence float64, acceptToken, rejectToken string) string {
	var indicator string
	switch {
	case confidence >= 0.8:
		indicator = "🟢 Высокая уверенность"
	case confidence >= 0.5:
		indicator = "🟡 Средняя уверенность"
	default:
		indicator = "🔴 Низкая уверенность"
	}

	var b strings.Builder
	b.WriteString("┌─ 🤖 <b>AI ЧЕРНОВИК</b> ─\n")
	fmt.Fprintf(&b, "│ %s\n", indicator)
	b.WriteString("├" + rule + "\n")
	fmt.Fprintf(&b, "│ %s\n", html.EscapeString(text))
	b.WriteString("├" + rule + "\n")
	fmt.Fprintf(&b, "│ <i>Ответьте %s чтобы отправить, %s чтобы отклонить, или своим текстом</i>\n",
		html.EscapeString(acceptToken), html.EscapeString(rejectToken))
	b.WriteString("└" + rule)
	return b.String()
}
