// Package webhook is the LMS intake: it turns platform webhooks
// (homework submissions, lesson comments, student messages, orders)
// into normalized events for the ingestion pipeline.
package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coursehub/modhub/internal/config"
	"github.com/coursehub/modhub/internal/format"
	"github.com/coursehub/modhub/internal/ingest"
	"github.com/coursehub/modhub/internal/store"
)

// lmsChatID is the synthetic origin chat for all LMS events. Replies to
// LMS cards cannot be delivered back through the webhook; the dispatcher
// reports that to the moderator.
const lmsChatID = -1

// Processor accepts normalized events; the ingestion coordinator
// implements it.
type Processor interface {
	Process(ctx context.Context, ev ingest.Event) error
}

// Server is the LMS webhook HTTP endpoint.
type Server struct {
	cfg     config.WebhookConfig
	proc    Processor
	limiter *rateLimiter
	logger  *slog.Logger
	srv     *http.Server
}

func NewServer(cfg config.WebhookConfig, proc Processor, logger *slog.Logger) *Server {
	return &Server{
		cfg:     cfg,
		proc:    proc,
		limiter: newRateLimiter(),
		logger:  logger,
	}
}

// Start serves until ctx is done. Always returns a non-nil error;
// http.ErrServerClosed after a clean shutdown.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /webhook/lms", s.handleLMS)

	host := s.cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := s.cfg.Port
	if port == 0 {
		port = 8090
	}

	s.srv = &http.Server{
		Addr:              net.JoinHostPort(host, strconv.Itoa(port)),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("webhook server listening", "addr", s.srv.Addr)
	return s.srv.ListenAndServe()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// lmsPayload is the union of fields the platform sends across event
// kinds. Both JSON and form encodings are accepted.
type lmsPayload struct {
	UserEmail string `json:"user_email"`
	UserName  string `json:"user_name"`
	UserID    int64  `json:"user_id"`

	CourseTitle   string `json:"course_title"`
	TrainingTitle string `json:"training_title"`
	LessonTitle   string `json:"lesson_title"`

	TaskText    string `json:"task_text"`
	AnswerText  string `json:"answer_text"`
	CommentText string `json:"comment_text"`
	FileURL     string `json:"file_url"`

	OrderID   int64  `json:"order_id"`
	OrderCost string `json:"order_cost"`

	EventType string `json:"event_type"`
	Secret    string `json:"secret"`
	URL       string `json:"url"`
}

func (s *Server) handleLMS(w http.ResponseWriter, r *http.Request) {
	ip, _, _ := net.SplitHostPort(r.RemoteAddr)
	if !s.limiter.allow(ip) {
		writeJSON(w, http.StatusTooManyRequests, map[string]any{"success": false, "message": "rate limited"})
		return
	}

	payload, err := parsePayload(r)
	if err != nil {
		s.logger.Warn("webhook parse failed", "remote", ip, "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "bad payload"})
		return
	}

	received := payload.Secret
	if received == "" {
		received = r.Header.Get("X-Hub-Secret")
	}
	if subtle.ConstantTimeCompare([]byte(received), []byte(s.cfg.Secret)) != 1 {
		s.logger.Warn("webhook secret mismatch", "remote", ip)
		writeJSON(w, http.StatusForbidden, map[string]any{"success": false, "message": "invalid secret"})
		return
	}

	ev := toEvent(payload)
	if err := s.proc.Process(r.Context(), ev); err != nil {
		s.logger.Error("webhook event processing failed", "kind", payload.EventType, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": "processing failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "event processed"})
}

func parsePayload(r *http.Request) (*lmsPayload, error) {
	ct := r.Header.Get("Content-Type")
	if strings.Contains(ct, "application/json") {
		var p lmsPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
		return &p, nil
	}

	// The platform also posts form-encoded bodies.
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("parse form: %w", err)
	}
	if len(r.PostForm) == 0 {
		return nil, errors.New("empty payload")
	}
	p := &lmsPayload{
		UserEmail:     r.PostForm.Get("user_email"),
		UserName:      r.PostForm.Get("user_name"),
		CourseTitle:   r.PostForm.Get("course_title"),
		TrainingTitle: r.PostForm.Get("training_title"),
		LessonTitle:   r.PostForm.Get("lesson_title"),
		TaskText:      r.PostForm.Get("task_text"),
		AnswerText:    r.PostForm.Get("answer_text"),
		CommentText:   r.PostForm.Get("comment_text"),
		FileURL:       r.PostForm.Get("file_url"),
		EventType:     r.PostForm.Get("event_type"),
		Secret:        r.PostForm.Get("secret"),
		URL:           r.PostForm.Get("url"),
	}
	p.UserID, _ = strconv.ParseInt(r.PostForm.Get("user_id"), 10, 64)
	p.OrderID, _ = strconv.ParseInt(r.PostForm.Get("order_id"), 10, 64)
	return p, nil
}

// detectKind resolves the event kind from the explicit type field or,
// failing that, from which content fields are populated.
func detectKind(p *lmsPayload) format.LMSEventKind {
	switch strings.ToLower(p.EventType) {
	case "homework", "task":
		return format.LMSHomework
	case "comment":
		return format.LMSComment
	case "message":
		return format.LMSMessage
	case "order":
		return format.LMSOrder
	}
	switch {
	case p.TaskText != "" || p.AnswerText != "":
		return format.LMSHomework
	case p.CommentText != "":
		return format.LMSComment
	case p.OrderID != 0:
		return format.LMSOrder
	default:
		return format.LMSMessage
	}
}

func toEvent(p *lmsPayload) ingest.Event {
	kind := detectKind(p)

	text := p.TaskText
	if text == "" {
		text = p.AnswerText
	}
	if text == "" {
		text = p.CommentText
	}
	if text == "" && kind == format.LMSOrder {
		text = fmt.Sprintf("Заказ #%d", p.OrderID)
	}

	course := p.CourseTitle
	if course == "" {
		course = p.TrainingTitle
	}

	requiresResponse := kind == format.LMSHomework || kind == format.LMSComment || kind == format.LMSMessage

	var floor store.Priority
	if kind == format.LMSHomework || kind == format.LMSComment {
		floor = store.PriorityHigh
	}

	ts := time.Now()
	card := format.LMSCard(format.LMSCardData{
		Kind:             kind,
		StudentName:      p.UserName,
		Email:            p.UserEmail,
		CourseName:       course,
		LessonName:       p.LessonTitle,
		Text:             text,
		URL:              p.URL,
		Timestamp:        ts,
		RequiresResponse: requiresResponse,
	})

	return ingest.Event{
		Source:        "lms",
		ChatKind:      store.ChatKindLMS,
		ChatID:        lmsChatID,
		MessageID:     syntheticMessageID(p, kind),
		SenderID:      p.UserID,
		SenderName:    p.UserName,
		ChatName:      "LMS",
		Text:          text,
		HasMedia:      p.FileURL != "",
		MediaType:     "файл",
		Timestamp:     ts,
		PriorityFloor: floor,
		Card:          card,
		ForceForward:  true,
	}
}

// syntheticMessageID derives a stable dedup key from the event content.
// The platform retries webhooks without any delivery id, so an identical
// payload must hash to the same key. Truncated to int32 because the
// message id columns are 32-bit on postgres.
func syntheticMessageID(p *lmsPayload, kind format.LMSEventKind) int {
	h := fnv.New32a()
	fmt.Fprintf(h, "%s|%s|%d|%s|%s|%s|%s|%s|%d",
		kind, p.UserEmail, p.UserID, p.CourseTitle, p.LessonTitle,
		p.TaskText, p.AnswerText, p.CommentText, p.OrderID)
	return int(int32(h.Sum32()))
}

func writeJSON(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
