package webhook

import (
	"context"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/coursehub/modhub/internal/config"
	"github.com/coursehub/modhub/internal/format"
	"github.com/coursehub/modhub/internal/ingest"
	"github.com/coursehub/modhub/internal/store"
)

type fakeProcessor struct {
	events []ingest.Event
}

func (f *fakeProcessor) Process(_ context.Context, ev ingest.Event) error {
	f.events = append(f.events, ev)
	return nil
}

func newTestServer() (*Server, *fakeProcessor) {
	proc := &fakeProcessor{}
	s := NewServer(config.WebhookConfig{Enabled: true, Secret: "s3cret"},
		proc, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return s, proc
}

func postLMS(s *Server, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook/lms", strings.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	req.RemoteAddr = "203.0.113.5:44321"
	w := httptest.NewRecorder()
	s.handleLMS(w, req)
	return w
}

func TestLMSWebhookJSON(t *testing.T) {
	s, proc := newTestServer()

	w := postLMS(s, "application/json", `{
		"secret": "s3cret",
		"user_name": "Анна Смирнова",
		"user_email": "anna@example.com",
		"course_title": "Поток 5",
		"lesson_title": "Урок 3",
		"task_text": "Моё домашнее задание"
	}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if len(proc.events) != 1 {
		t.Fatalf("events = %d, want 1", len(proc.events))
	}

	ev := proc.events[0]
	if ev.Source != "lms" || ev.ChatKind != store.ChatKindLMS {
		t.Errorf("event source = %s/%s", ev.Source, ev.ChatKind)
	}
	if ev.PriorityFloor != store.PriorityHigh {
		t.Errorf("priority floor = %q, want high for homework", ev.PriorityFloor)
	}
	if !ev.ForceForward {
		t.Error("lms event must bypass the forwarding verdict")
	}
	if !strings.Contains(ev.Card, "ДОМАШНЕЕ ЗАДАНИЕ") {
		t.Errorf("card missing homework header:\n%s", ev.Card)
	}
	if !strings.Contains(ev.Card, "Анна Смирнова") {
		t.Error("card missing student name")
	}
}

func TestLMSWebhookForm(t *testing.T) {
	s, proc := newTestServer()

	form := url.Values{
		"secret":       {"s3cret"},
		"user_name":    {"Иван"},
		"comment_text": {"Комментарий к уроку"},
	}
	w := postLMS(s, "application/x-www-form-urlencoded", form.Encode())
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if len(proc.events) != 1 {
		t.Fatalf("events = %d", len(proc.events))
	}
	if !strings.Contains(proc.events[0].Card, "КОММЕНТАРИЙ К УРОКУ") {
		t.Error("comment kind not detected from populated field")
	}
}

func TestLMSWebhookSecretMismatch(t *testing.T) {
	s, proc := newTestServer()

	w := postLMS(s, "application/json", `{"secret": "wrong", "task_text": "x"}`)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
	if len(proc.events) != 0 {
		t.Error("event processed despite bad secret")
	}
}

func TestLMSWebhookHeaderSecret(t *testing.T) {
	s, proc := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/webhook/lms",
		strings.NewReader(`{"user_name": "Иван", "comment_text": "текст"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Hub-Secret", "s3cret")
	req.RemoteAddr = "203.0.113.5:44321"
	w := httptest.NewRecorder()
	s.handleLMS(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if len(proc.events) != 1 {
		t.Error("header-authenticated event not processed")
	}
}

func TestSyntheticIDStable(t *testing.T) {
	p := &lmsPayload{UserEmail: "anna@example.com", TaskText: "Моё ДЗ", CourseTitle: "Поток 5"}
	a := syntheticMessageID(p, format.LMSHomework)
	b := syntheticMessageID(p, format.LMSHomework)
	if a != b {
		t.Errorf("identical payloads hash differently: %d != %d", a, b)
	}

	other := &lmsPayload{UserEmail: "anna@example.com", TaskText: "Другое ДЗ", CourseTitle: "Поток 5"}
	if a == syntheticMessageID(other, format.LMSHomework) {
		t.Error("different payloads collide")
	}
}

func TestSyntheticIDFitsInt32(t *testing.T) {
	// The ledger and mapping message id columns are 32-bit on postgres;
	// an id above int32 max fails the insert there. olga's payload hashes
	// above int32 max before truncation, so it pins the range.
	emails := []string{
		"anna@example.com", "ivan@example.com", "olga@example.com",
		"petr@example.com", "maria@example.com",
	}
	seen := make(map[int]string, len(emails))
	for _, email := range emails {
		p := &lmsPayload{
			UserEmail:   email,
			UserID:      7,
			CourseTitle: "Поток 5",
			LessonTitle: "Урок 3",
			TaskText:    "Моё домашнее задание",
		}
		id := syntheticMessageID(p, format.LMSHomework)
		if id < math.MinInt32 || id > math.MaxInt32 {
			t.Errorf("%s: id %d outside int32 range", email, id)
		}
		if prev, dup := seen[id]; dup {
			t.Errorf("id collision between %s and %s", prev, email)
		}
		seen[id] = email
	}
}

func TestDetectKind(t *testing.T) {
	tests := []struct {
		name string
		p    lmsPayload
		want format.LMSEventKind
	}{
		{"explicit homework", lmsPayload{EventType: "homework"}, format.LMSHomework},
		{"explicit task alias", lmsPayload{EventType: "task"}, format.LMSHomework},
		{"answer text implies homework", lmsPayload{AnswerText: "ответ"}, format.LMSHomework},
		{"comment field", lmsPayload{CommentText: "коммент"}, format.LMSComment},
		{"order id", lmsPayload{OrderID: 7}, format.LMSOrder},
		{"fallback message", lmsPayload{}, format.LMSMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := detectKind(&tt.p); got != tt.want {
				t.Errorf("detectKind = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter()
	for i := 0; i < rateLimitMaxHits; i++ {
		if !rl.allow("10.0.0.1") {
			t.Fatalf("request %d rejected inside the window", i+1)
		}
	}
	if rl.allow("10.0.0.1") {
		t.Error("request above the window limit allowed")
	}
	// Other keys are unaffected.
	if !rl.allow("10.0.0.2") {
		t.Error("unrelated key rejected")
	}
}
