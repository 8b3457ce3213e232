package classify

import (
	"testing"

	"github.com/coursehub/modhub/internal/config"
	"github.com/coursehub/modhub/internal/store"
)

func testConfig() config.FilterConfig {
	return config.Default().Filters
}

func TestAnalyzeNoise(t *testing.T) {
	c := New(testConfig())

	for _, text := range []string{"ок", "ОК", "  спасибо  ", "👍", "+1"} {
		res := c.Analyze(text, store.ChatKindDM)
		if res.ShouldForward {
			t.Errorf("Analyze(%q) forwarded noise", text)
		}
		if res.Reason != "noise_pattern" {
			t.Errorf("Analyze(%q) reason = %q, want noise_pattern", text, res.Reason)
		}
	}
}

func TestAnalyzePriorities(t *testing.T) {
	c := New(testConfig())

	tests := []struct {
		name     string
		text     string
		kind     store.ChatKind
		forward  bool
		priority store.Priority
		wantTag  string
	}{
		{
			name:     "urgent keyword in dm",
			text:     "Срочно! Не работает оплата",
			kind:     store.ChatKindDM,
			forward:  true,
			priority: store.PriorityUrgent,
			wantTag:  TagUrgent,
		},
		{
			name:     "question stays normal",
			text:     "Когда следующий урок?",
			kind:     store.ChatKindDM,
			forward:  true,
			priority: store.PriorityNormal,
			wantTag:  TagQuestion,
		},
		{
			name:     "gratitude downgrades",
			text:     "Большое спасибо за помощь с заданием",
			kind:     store.ChatKindDM,
			forward:  true,
			priority: store.PriorityLow,
			wantTag:  TagGratitude,
		},
		{
			name:     "urgent not downgraded by gratitude",
			text:     "Спасибо, но срочно нужна помощь, не работает доступ",
			kind:     store.ChatKindDM,
			forward:  true,
			priority: store.PriorityUrgent,
			wantTag:  TagUrgent,
		},
		{
			name:     "plain dm forwarded normal",
			text:     "Добрый день, я записался на поток",
			kind:     store.ChatKindDM,
			forward:  true,
			priority: store.PriorityNormal,
			wantTag:  TagDM,
		},
		{
			name:     "business dm treated as direct",
			text:     "Здравствуйте, расскажите про тариф",
			kind:     store.ChatKindBusinessDM,
			forward:  true,
			priority: store.PriorityNormal,
			wantTag:  TagDM,
		},
		{
			name:     "group message forwarded",
			text:     "Выложили новое домашнее задание",
			kind:     store.ChatKindSupergroup,
			forward:  true,
			priority: store.PriorityNormal,
			wantTag:  TagGroup,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := c.Analyze(tt.text, tt.kind)
			if res.ShouldForward != tt.forward {
				t.Errorf("ShouldForward = %v, want %v", res.ShouldForward, tt.forward)
			}
			if res.Priority != tt.priority {
				t.Errorf("Priority = %q, want %q", res.Priority, tt.priority)
			}
			if !hasTag(res.Tags, tt.wantTag) {
				t.Errorf("Tags = %v, want containing %q", res.Tags, tt.wantTag)
			}
		})
	}
}

func TestAnalyzeEmptyUrgentKeywords(t *testing.T) {
	cfg := testConfig()
	cfg.UrgentKeywords = nil
	c := New(cfg)

	// With no keywords configured nothing is urgent; a bad join of zero
	// alternatives would instead match every message.
	res := c.Analyze("Обычное сообщение про расписание занятий", store.ChatKindDM)
	if res.Priority == store.PriorityUrgent {
		t.Errorf("priority = %q, nothing should be urgent without keywords", res.Priority)
	}
	if !res.ShouldForward {
		t.Error("dm message dropped")
	}
}

func TestAnalyzeGroupLengthFloor(t *testing.T) {
	c := New(testConfig())

	res := c.Analyze("да", store.ChatKindGroup)
	if res.ShouldForward {
		t.Error("short group message forwarded")
	}
	if res.Reason != "too_short_for_group" {
		t.Errorf("reason = %q, want too_short_for_group", res.Reason)
	}

	// The same text in a DM passes the length check.
	res = c.Analyze("да??", store.ChatKindDM)
	if !res.ShouldForward {
		t.Error("short dm message dropped")
	}
}

func TestAnalyzeGroupsQuestionsOnly(t *testing.T) {
	cfg := testConfig()
	cfg.GroupsQuestionsOnly = true
	c := New(cfg)

	tests := []struct {
		name    string
		text    string
		forward bool
	}{
		{"question forwarded", "Подскажите, где взять материалы курса", true},
		{"urgent forwarded", "Помогите, сломалось видео в уроке", true},
		{"chatter dropped", "Сегодня отличная погода в городе", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := c.Analyze(tt.text, store.ChatKindSupergroup)
			if res.ShouldForward != tt.forward {
				t.Errorf("ShouldForward = %v, want %v", res.ShouldForward, tt.forward)
			}
		})
	}
}

func TestIsNoise(t *testing.T) {
	c := New(testConfig())
	if !c.IsNoise(" Спс ") {
		t.Error("IsNoise missed a noise phrase")
	}
	if c.IsNoise("спасибо за подробный ответ") {
		t.Error("IsNoise matched a substantive message")
	}
}

func hasTag(tags []string, want string) bool {
	for _, tag := range tags {
		if tag == want {
			return true
		}
	}
	return false
}
