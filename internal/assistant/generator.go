// Package assistant generates AI draft replies to student messages using
// an OpenAI-compatible chat API, grounded on the knowledge base and the
// moderator's past answers.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/coursehub/modhub/internal/config"
	"github.com/coursehub/modhub/internal/knowledge"
	"github.com/coursehub/modhub/internal/store"
	"github.com/coursehub/modhub/internal/tracing"
)

// Request describes one student message a draft is wanted for.
type Request struct {
	Text           string
	SenderName     string
	SenderUsername string
	ChatName       string
	ChatKind       store.ChatKind
	Priority       store.Priority
}

// DraftResult is a generated draft plus its provenance.
type DraftResult struct {
	Text         string
	Confidence   float64
	Sources      []string // knowledge article titles
	SourceIDs    []int64
	GenerationMS int
}

// completer is the slice of the OpenAI client the generator uses.
// Tests substitute a fake.
type completer interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Generator produces draft replies. Nil-safe: a nil Generator never
// responds, so callers need no enabled checks.
type Generator struct {
	client  completer
	model   string
	kb      knowledge.Searcher
	minLen  int
	dmOnly  bool
	timeout time.Duration
	logger  *slog.Logger
}

// New builds a generator from config, or nil when AI is disabled or the
// key is missing.
func New(cfg config.AIConfig, kb knowledge.Searcher, logger *slog.Logger) *Generator {
	if !cfg.Enabled {
		return nil
	}
	if cfg.APIKey == "" {
		logger.Warn("ai enabled but MODHUB_AI_API_KEY is not set, drafts disabled")
		return nil
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Generator{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		kb:      kb,
		minLen:  cfg.MinMessageLength,
		dmOnly:  cfg.DraftDMOnly,
		timeout: timeout,
		logger:  logger,
	}
}

// Generate produces a draft for the request, or (nil, nil) when no reply
// is warranted. Absence of a draft is a normal outcome.
func (g *Generator) Generate(ctx context.Context, req Request) (*DraftResult, error) {
	if g == nil {
		return nil, nil
	}
	if g.dmOnly && !req.ChatKind.IsDirect() {
		return nil, nil
	}
	ctx, span := tracing.Tracer().Start(ctx, "assistant.generate")
	defer span.End()

	if len([]rune(strings.TrimSpace(req.Text))) < g.minLen {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()

	respond, err := g.shouldRespond(ctx, req)
	if err != nil {
		return nil, err
	}
	if !respond {
		return nil, nil
	}

	articles, err := g.kb.Search(ctx, req.Text, 3)
	if err != nil {
		g.logger.Warn("knowledge search failed", "error", err)
	}
	similar, err := g.kb.Similar(ctx, req.Text, 3)
	if err != nil {
		g.logger.Warn("similar replies lookup failed", "error", err)
	}

	usernamePart := ""
	if req.SenderUsername != "" {
		usernamePart = " (@" + req.SenderUsername + ")"
	}
	prompt := fmt.Sprintf(draftRequestTemplate,
		req.SenderName, usernamePart,
		req.ChatName, label(chatKindLabels, string(req.ChatKind)),
		label(priorityLabels, string(req.Priority)),
		req.Text,
		kbContext(articles),
		styleExamples(similar),
	)

	text, err := g.complete(ctx, systemPrompt, prompt, 500, 0.7)
	if err != nil {
		return nil, fmt.Errorf("generate draft: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	res := &DraftResult{
		Text:         text,
		Confidence:   confidence(articles, similar),
		GenerationMS: int(time.Since(start).Milliseconds()),
	}
	for _, a := range articles {
		res.Sources = append(res.Sources, a.Title)
		res.SourceIDs = append(res.SourceIDs, a.ID)
	}
	g.kb.MarkUsed(ctx, res.SourceIDs)
	return res, nil
}

// shouldRespond decides whether the message warrants a draft. Cheap
// heuristics settle the obvious cases; only ambiguous group messages
// spend an API call.
func (g *Generator) shouldRespond(ctx context.Context, req Request) (bool, error) {
	lower := strings.ToLower(strings.TrimSpace(req.Text))

	for _, p := range []string{
		"спасибо", "благодарю", "ок", "хорошо", "понял",
		"понятно", "отлично", "супер", "класс", "ура",
	} {
		if lower == p {
			return false, nil
		}
	}
	if len([]rune(lower)) < 3 {
		return false, nil
	}

	if strings.Contains(req.Text, "?") {
		return true, nil
	}
	for _, w := range []string{"как", "где", "когда", "почему", "можно", "подскажите", "помогите", "скажите"} {
		if strings.HasPrefix(lower, w) {
			return true, nil
		}
	}

	if req.ChatKind.IsDirect() {
		return true, nil
	}

	answer, err := g.complete(ctx,
		"You classify messages. Respond ONLY 'YES' or 'NO'.",
		fmt.Sprintf(shouldRespondPrompt, label(chatKindLabels, string(req.ChatKind)), req.Text),
		5, 0.1)
	if err != nil {
		return false, fmt.Errorf("classify message: %w", err)
	}
	return strings.Contains(strings.ToUpper(answer), "YES"), nil
}

func (g *Generator) complete(ctx context.Context, system, user string, maxTokens int, temperature float32) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// confidence maps grounding to a score: knowledge base hits are high,
// style examples alone medium, neither low.
func confidence(articles []store.Article, similar []store.LearnedReply) float64 {
	switch {
	case len(articles) > 0:
		return 0.9
	case len(similar) > 0:
		return 0.6
	default:
		return 0.3
	}
}

func kbContext(articles []store.Article) string {
	if len(articles) == 0 {
		return "(База знаний пуста или совпадений не найдено)"
	}
	var b strings.Builder
	for i, a := range articles {
		fmt.Fprintf(&b, "### %d. %s [%s]\n%s\n\n", i+1, a.Title, a.Category, a.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

func styleExamples(replies []store.LearnedReply) string {
	if len(replies) == 0 {
		return "(Примеров пока нет, отвечай в дружелюбном профессиональном тоне)"
	}
	var b strings.Builder
	for i, r := range replies {
		q := truncateRunes(r.Question, 100)
		a := truncateRunes(r.Reply, 200)
		fmt.Fprintf(&b, "Вопрос %d: %s\nОтвет куратора: %s\n\n", i+1, q, a)
	}
	return strings.TrimRight(b.String(), "\n")
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func label(m map[string]string, key string) string {
	if v, ok := m[key]; ok {
		return v
	}
	return key
}
