// Package config holds the root configuration for the modhub process.
// One Config value is built at startup and passed to every component
// constructor; nothing reads configuration ambiently.
package config

// Config is the root configuration for the moderation hub.
type Config struct {
	Hub       HubConfig       `json:"hub"`
	Sources   SourcesConfig   `json:"sources"`
	Webhook   WebhookConfig   `json:"webhook,omitempty"`
	Filters   FilterConfig    `json:"filters"`
	Router    RouterConfig    `json:"router"`
	AI        AIConfig        `json:"ai,omitempty"`
	Knowledge KnowledgeConfig `json:"knowledge,omitempty"`
	Digest    DigestConfig    `json:"digest,omitempty"`
	Database  DatabaseConfig  `json:"database"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
}

// HubConfig identifies the supervisor-facing hub chat and the bot serving it.
type HubConfig struct {
	// BotToken is never persisted in the config file, env MODHUB_BOT_TOKEN only.
	BotToken        string `json:"-"`
	HubChatID       int64  `json:"hub_chat_id"`
	ModeratorUserID int64  `json:"moderator_user_id"`
	Proxy           string `json:"proxy,omitempty"`
}

// SourcesConfig declares the inbound listeners.
type SourcesConfig struct {
	Business BusinessSourceConfig `json:"business"`
	Groups   []GroupSourceConfig  `json:"groups,omitempty"`
}

// BusinessSourceConfig covers Telegram Business API direct messages.
type BusinessSourceConfig struct {
	Enabled bool `json:"enabled"`
}

// GroupSourceConfig is one monitored Telegram group.
// Key is the source identifier recorded in mappings and the dedup ledger.
type GroupSourceConfig struct {
	Key     string `json:"key"`
	ChatID  int64  `json:"chat_id"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// WebhookConfig configures the external LMS webhook intake.
type WebhookConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host,omitempty"`
	Port    int    `json:"port,omitempty"`
	// Secret comes from env MODHUB_WEBHOOK_SECRET only.
	Secret string `json:"-"`
}

// FilterConfig tunes the priority/filter classifier.
type FilterConfig struct {
	UrgentKeywords      []string `json:"urgent_keywords,omitempty"`
	QuestionWords       []string `json:"question_words,omitempty"`
	NoisePatterns       []string `json:"noise_patterns,omitempty"`
	GratitudeWords      []string `json:"gratitude_words,omitempty"`
	MinGroupMessageLen  int      `json:"min_group_message_len,omitempty"`
	ForwardAllDM        bool     `json:"forward_all_dm"`
	GroupsQuestionsOnly bool     `json:"groups_questions_only,omitempty"`
}

// RouterConfig tunes reply routing in the hub.
type RouterConfig struct {
	AcceptToken string `json:"accept_token,omitempty"`
	RejectToken string `json:"reject_token,omitempty"`
	// ReplyDelaySeconds paces outbound dispatch to respect platform limits.
	ReplyDelaySeconds float64 `json:"reply_delay_seconds,omitempty"`
}

// AIConfig configures draft generation.
type AIConfig struct {
	Enabled bool `json:"enabled"`
	// APIKey comes from env MODHUB_AI_API_KEY only.
	APIKey           string `json:"-"`
	BaseURL          string `json:"base_url,omitempty"`
	Model            string `json:"model,omitempty"`
	MinMessageLength int    `json:"min_message_length,omitempty"`
	DraftDMOnly      bool   `json:"draft_dm_only,omitempty"`
	TimeoutSeconds   int    `json:"timeout_seconds,omitempty"`
	MaxConcurrent    int    `json:"max_concurrent,omitempty"`
}

// KnowledgeConfig configures the knowledge base seed file.
type KnowledgeConfig struct {
	SeedPath string `json:"seed_path,omitempty"`
	Watch    bool   `json:"watch,omitempty"`
}

// DigestConfig schedules the unreplied digest posted to the hub.
// Cron is a standard five-field cron expression; empty disables the digest.
type DigestConfig struct {
	Cron string `json:"cron,omitempty"`
}

// DatabaseConfig selects the store backend.
// PostgresDSN is never read from the config file, env MODHUB_POSTGRES_DSN only.
type DatabaseConfig struct {
	Driver      string `json:"driver,omitempty"` // "sqlite" (default) or "postgres"
	Path        string `json:"path,omitempty"`   // sqlite file path
	PostgresDSN string `json:"-"`
}

// TelemetryConfig configures the optional OTLP trace exporter.
type TelemetryConfig struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint,omitempty"`
	Protocol string `json:"protocol,omitempty"` // "grpc" (default) or "http"
	Insecure bool   `json:"insecure,omitempty"`
}

// IsPostgres reports whether the managed Postgres backend is selected.
func (c *Config) IsPostgres() bool {
	return c.Database.Driver == "postgres" && c.Database.PostgresDSN != ""
}

// GroupByChatID returns the configured group source for a chat, if any.
func (c *Config) GroupByChatID(chatID int64) (GroupSourceConfig, bool) {
	for _, g := range c.Sources.Groups {
		if g.ChatID == chatID && g.Enabled {
			return g, true
		}
	}
	return GroupSourceConfig{}, false
}

// Validate returns a list of configuration problems, empty when the config is usable.
func (c *Config) Validate() []string {
	var errs []string

	if c.Hub.BotToken == "" {
		errs = append(errs, "MODHUB_BOT_TOKEN is not set")
	}
	if c.Hub.HubChatID == 0 {
		errs = append(errs, "hub.hub_chat_id is not set")
	}
	if c.Hub.ModeratorUserID == 0 {
		errs = append(errs, "hub.moderator_user_id is not set")
	}

	seen := map[string]bool{"business": true, "lms": true, "hub": true}
	for _, g := range c.Sources.Groups {
		if g.Key == "" {
			errs = append(errs, "sources.groups entry without a key")
			continue
		}
		if seen[g.Key] {
			errs = append(errs, "duplicate source key: "+g.Key)
		}
		seen[g.Key] = true
	}

	if c.AI.Enabled && c.AI.APIKey == "" {
		errs = append(errs, "ai.enabled is true but MODHUB_AI_API_KEY is not set")
	}
	if c.Webhook.Enabled && c.Webhook.Secret == "" {
		errs = append(errs, "webhook.enabled is true but MODHUB_WEBHOOK_SECRET is not set")
	}
	if c.Database.Driver == "postgres" && c.Database.PostgresDSN == "" {
		errs = append(errs, "database.driver is postgres but MODHUB_POSTGRES_DSN is not set")
	}

	return errs
}
