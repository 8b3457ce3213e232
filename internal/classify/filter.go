// Package classify decides whether an incoming message reaches the hub
// and at what priority. The classifier is a pure function of the text and
// chat kind; it never touches the store or the network.
package classify

import (
	"regexp"
	"strings"

	"github.com/coursehub/modhub/internal/config"
	"github.com/coursehub/modhub/internal/store"
)

// Result is one classification verdict. Reason is a stable machine token
// used in logs, never shown to users.
type Result struct {
	ShouldForward bool
	Priority      store.Priority
	Reason        string
	Tags          []string
}

const (
	TagUrgent    = "🔴 срочно"
	TagQuestion  = "❓ вопрос"
	TagGratitude = "💚 благодарность"
	TagDM        = "💬 личное"
	TagGroup     = "💬 группа"
)

// Classifier holds the compiled keyword sets. Safe for concurrent use.
type Classifier struct {
	cfg        config.FilterConfig
	urgentRe   *regexp.Regexp
	questionRe *regexp.Regexp
	noise      map[string]struct{}
	gratitude  []string
}

// New compiles the configured keyword sets into a classifier.
func New(cfg config.FilterConfig) *Classifier {
	noise := make(map[string]struct{}, len(cfg.NoisePatterns))
	for _, p := range cfg.NoisePatterns {
		noise[strings.ToLower(strings.TrimSpace(p))] = struct{}{}
	}

	// An empty keyword list disables urgency matching; joining zero
	// alternatives would produce a regexp that matches everything.
	var urgentRe *regexp.Regexp
	if len(cfg.UrgentKeywords) > 0 {
		quoted := make([]string, 0, len(cfg.UrgentKeywords))
		for _, kw := range cfg.UrgentKeywords {
			quoted = append(quoted, regexp.QuoteMeta(kw))
		}
		urgentRe = regexp.MustCompile(`(?i)` + strings.Join(quoted, "|"))
	}

	qWords := cfg.QuestionWords
	if len(qWords) == 0 {
		qWords = []string{"как", "где", "когда", "почему", "зачем", "можно"}
	}
	qQuoted := make([]string, 0, len(qWords))
	for _, w := range qWords {
		qQuoted = append(qQuoted, regexp.QuoteMeta(w)+`\s`)
	}
	questionRe := regexp.MustCompile(`(?i)\?|` + strings.Join(qQuoted, "|") + `|подскажите|помогите`)

	gratitude := cfg.GratitudeWords
	if len(gratitude) == 0 {
		gratitude = []string{"спасибо", "благодарю", "thanks", "thank you", "отлично", "супер"}
	}

	return &Classifier{
		cfg:        cfg,
		urgentRe:   urgentRe,
		questionRe: questionRe,
		noise:      noise,
		gratitude:  gratitude,
	}
}

// Analyze classifies one message. The checks run in a fixed order: noise,
// group length floor, urgency, question marker, gratitude downgrade, then
// the per-chat-kind forwarding policy.
func (c *Classifier) Analyze(text string, kind store.ChatKind) Result {
	stripped := strings.TrimSpace(text)
	lower := strings.ToLower(stripped)
	var tags []string

	if _, ok := c.noise[lower]; ok {
		return Result{
			Priority: store.PriorityLow,
			Reason:   "noise_pattern",
			Tags:     []string{"шум"},
		}
	}

	if kind.IsGroup() && len([]rune(stripped)) < c.cfg.MinGroupMessageLen {
		return Result{
			Priority: store.PriorityLow,
			Reason:   "too_short_for_group",
			Tags:     []string{"короткое"},
		}
	}

	priority := store.PriorityNormal
	if c.urgentRe != nil && c.urgentRe.MatchString(text) {
		priority = store.PriorityUrgent
		tags = append(tags, TagUrgent)
	}

	isQuestion := c.questionRe.MatchString(text)
	if isQuestion {
		// Questions keep normal priority; the tag alone surfaces them.
		tags = append(tags, TagQuestion)
	}

	for _, w := range c.gratitude {
		if strings.Contains(lower, w) {
			tags = append(tags, TagGratitude)
			if priority == store.PriorityNormal {
				priority = store.PriorityLow
			}
			break
		}
	}

	if kind.IsDirect() {
		if len(tags) == 0 {
			tags = []string{TagDM}
		}
		return Result{
			ShouldForward: c.cfg.ForwardAllDM,
			Priority:      priority,
			Reason:        "dm_message",
			Tags:          tags,
		}
	}

	if kind.IsGroup() {
		if len(tags) == 0 {
			tags = []string{TagGroup}
		}
		if c.cfg.GroupsQuestionsOnly {
			interesting := isQuestion || priority == store.PriorityUrgent
			reason := "group_questions_filter"
			if !interesting {
				reason = "not_a_question"
			}
			return Result{
				ShouldForward: interesting,
				Priority:      priority,
				Reason:        reason,
				Tags:          tags,
			}
		}
		return Result{
			ShouldForward: true,
			Priority:      priority,
			Reason:        "group_all_messages",
			Tags:          tags,
		}
	}

	return Result{
		ShouldForward: true,
		Priority:      priority,
		Reason:        "default",
		Tags:          tags,
	}
}

// IsNoise reports whether text exactly matches a configured noise phrase.
func (c *Classifier) IsNoise(text string) bool {
	_, ok := c.noise[strings.ToLower(strings.TrimSpace(text))]
	return ok
}
