package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
// Keyword defaults are tuned for a Russian-language course audience,
// matching the courses this hub moderates.
func Default() *Config {
	return &Config{
		Sources: SourcesConfig{
			Business: BusinessSourceConfig{Enabled: true},
		},
		Webhook: WebhookConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Filters: FilterConfig{
			UrgentKeywords: []string{
				"срочно", "помогите", "не работает", "ошибка", "проблема",
				"не могу", "сломалось", "баг", "urgent", "help", "asap",
			},
			QuestionWords: []string{
				"как", "где", "когда", "почему", "зачем", "можно",
				"подскажите", "помогите", "скажите",
			},
			NoisePatterns: []string{
				"👍", "👎", "❤️", "🔥", "+1", "ок", "ok", "спс", "спасибо",
				"благодарю", "ясно", "понял", "понятно", "хорошо", "ага",
			},
			GratitudeWords: []string{
				"спасибо", "благодарю", "thanks", "thank you", "отлично", "супер",
			},
			MinGroupMessageLen: 5,
			ForwardAllDM:       true,
		},
		Router: RouterConfig{
			AcceptToken:       "!ok",
			RejectToken:       "!no",
			ReplyDelaySeconds: 1.5,
		},
		AI: AIConfig{
			Model:            "gpt-4o-mini",
			MinMessageLength: 10,
			TimeoutSeconds:   30,
			MaxConcurrent:    4,
		},
		Knowledge: KnowledgeConfig{
			SeedPath: "data/knowledge_base.yml",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   "data/modhub.db",
		},
		Telemetry: TelemetryConfig{
			Protocol: "grpc",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file is not an error: defaults plus env are enough to run.
func Load(path string) (*Config, error) {
	// Secrets can live in a local .env next to the config; missing is fine.
	_ = godotenv.Load()

	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envInt64 := func(key string, dst *int64) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				*dst = n
			}
		}
	}

	envStr("MODHUB_BOT_TOKEN", &c.Hub.BotToken)
	envInt64("MODHUB_HUB_CHAT_ID", &c.Hub.HubChatID)
	envInt64("MODHUB_MODERATOR_USER_ID", &c.Hub.ModeratorUserID)
	envStr("MODHUB_WEBHOOK_SECRET", &c.Webhook.Secret)
	envStr("MODHUB_AI_API_KEY", &c.AI.APIKey)
	envStr("MODHUB_AI_BASE_URL", &c.AI.BaseURL)
	envStr("MODHUB_POSTGRES_DSN", &c.Database.PostgresDSN)
	envStr("MODHUB_DB_PATH", &c.Database.Path)
	envStr("MODHUB_OTLP_ENDPOINT", &c.Telemetry.Endpoint)

	if v := os.Getenv("MODHUB_AI_ENABLED"); v != "" {
		c.AI.Enabled = v == "true" || v == "1"
	}
	if c.Database.PostgresDSN != "" && os.Getenv("MODHUB_DB_DRIVER") == "postgres" {
		c.Database.Driver = "postgres"
	}
}
