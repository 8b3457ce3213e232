package format

import (
	"strings"
	"testing"
	"time"

	"github.com/coursehub/modhub/internal/store"
)

func TestCardEscapesHTML(t *testing.T) {
	out := Card(CardData{
		Source:     "business",
		SenderName: "Иван <script>",
		Text:       "1 < 2 && 3 > 2",
		Priority:   store.PriorityNormal,
		Timestamp:  time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC),
	})
	if strings.Contains(out, "<script>") {
		t.Error("sender name not escaped")
	}
	if !strings.Contains(out, "&lt; 2 &amp;&amp; 3 &gt;") {
		t.Errorf("body not escaped:\n%s", out)
	}
	if !strings.Contains(out, "18:00") {
		t.Error("timestamp missing from footer")
	}
}

func TestCardGroupLabel(t *testing.T) {
	out := Card(CardData{
		Source:     "students",
		SenderName: "Мария",
		ChatName:   "Ученики: поток 5",
		ChatKind:   store.ChatKindSupergroup,
		Text:       "Вопрос по уроку",
		Priority:   store.PriorityNormal,
	})
	if !strings.Contains(out, "ГРУППА: Ученики: поток 5") {
		t.Errorf("group label missing:\n%s", out)
	}
}

func TestCardTruncatesBody(t *testing.T) {
	out := Card(CardData{
		Source:     "business",
		SenderName: "Иван",
		Text:       strings.Repeat("a", 2000),
		Priority:   store.PriorityNormal,
	})
	if strings.Contains(out, strings.Repeat("a", 1001)) {
		t.Error("body not truncated")
	}
	if !strings.Contains(out, "...") {
		t.Error("truncation marker missing")
	}
}

func TestCardMediaLine(t *testing.T) {
	out := Card(CardData{
		Source:     "business",
		SenderName: "Иван",
		Text:       "смотри фото",
		HasMedia:   true,
		MediaType:  "photo",
		Priority:   store.PriorityNormal,
	})
	if !strings.Contains(out, "Вложение: photo") {
		t.Errorf("media line missing:\n%s", out)
	}
}

func TestLMSCardKinds(t *testing.T) {
	tests := []struct {
		kind LMSEventKind
		want string
	}{
		{LMSHomework, "ДОМАШНЕЕ ЗАДАНИЕ"},
		{LMSComment, "КОММЕНТАРИЙ К УРОКУ"},
		{LMSMessage, "СООБЩЕНИЕ ОТ УЧЕНИКА"},
		{LMSOrder, "НОВЫЙ ЗАКАЗ"},
		{LMSOther, "СОБЫТИЕ ПЛАТФОРМЫ"},
	}
	for _, tt := range tests {
		out := LMSCard(LMSCardData{Kind: tt.kind, StudentName: "Анна", Text: "текст"})
		if !strings.Contains(out, tt.want) {
			t.Errorf("LMSCard(%s) missing header %q", tt.kind, tt.want)
		}
	}
}

func TestDraftConfidenceIndicator(t *testing.T) {
	tests := []struct {
		confidence float64
		want       string
	}{
		{0.9, "Высокая"},
		{0.6, "Средняя"},
		{0.2, "Низкая"},
	}
	for _, tt := range tests {
		out := Draft("ответ", tt.confidence, "!ok", "!no")
		if !strings.Contains(out, tt.want) {
			t.Errorf("Draft(confidence=%.1f) missing %q", tt.confidence, tt.want)
		}
	}
	out := Draft("ответ", 0.9, "!ok", "!no")
	if !strings.Contains(out, "!ok") || !strings.Contains(out, "!no") {
		t.Error("Draft hint missing shorthand tokens")
	}
}

func TestUnrepliedEmpty(t *testing.T) {
	if out := Unreplied(nil); !strings.Contains(out, "Все сообщения отвечены") {
		t.Errorf("empty queue message wrong: %s", out)
	}
}

func TestUnrepliedUrgentMarker(t *testing.T) {
	out := Unreplied([]store.Mapping{
		{SenderName: "Иван", ChatName: "Личное", Priority: store.PriorityUrgent, Timestamp: time.Now().Add(-2 * time.Hour)},
		{SenderName: "Мария", ChatName: "Ученики", Priority: store.PriorityNormal, Timestamp: time.Now().Add(-10 * time.Minute)},
	})
	if !strings.Contains(out, "🔴 <b>Иван</b>") {
		t.Errorf("urgent marker missing:\n%s", out)
	}
	if !strings.Contains(out, "2 ч назад") {
		t.Errorf("age missing:\n%s", out)
	}
}
