package config

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	OpenAI    OpenAIConfig    `json:"openai"`
	Publisher PublisherConfig `json:"publisher"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// OperatorUserIDs lists the Telegram user IDs allowed to talk to the bot.
	// Everyone else is rejected by the access middleware.
	OperatorUserIDs []int64 `json:"operator_user_ids"`
	// Channel is the destination chat for published posts,
	// either a numeric chat id or an "@name" handle.
	Channel string `json:"channel"`
	// GroupLog optionally receives warning+ log lines (numeric chat id).
	GroupLog string `json:"group_log,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
	// RatePerSec caps outbound sends to stay under Telegram limits.
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig controls the sqlite persistence layer.
//
// Example:
//
//	"storage": { "path": "./postbot.db" }
type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

// OpenAIConfig controls the copy-generation client.
//
// BaseURL is overridable so any OpenAI-compatible endpoint works.
type OpenAIConfig struct {
	APIKey      string  `json:"api_key"`
	Model       string  `json:"model,omitempty"`    // default: gpt-4o-mini
	BaseURL     string  `json:"base_url,omitempty"` // default: https://api.openai.com/v1
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	Timeout     string  `json:"timeout,omitempty"` // Go duration string
}

// PublisherConfig controls the scheduled publication engine.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "5m").
//
// Defaults (when fields are omitted/zero):
//   - sweep_interval: "60s"
//   - retry_delay: "5m"
//   - grace_period: "10m"
//   - cleanup_interval: "5m"
//   - batch_size: 10
//   - max_attempts: 0 (retry until the grace period resets the post)
type PublisherConfig struct {
	Enabled       bool   `json:"enabled"`
	SweepInterval string `json:"sweep_interval,omitempty"`
	RetryDelay    string `json:"retry_delay,omitempty"`
	GracePeriod   string `json:"grace_period,omitempty"`
	CleanupEvery  string `json:"cleanup_interval,omitempty"`
	BatchSize     int    `json:"batch_size,omitempty"`
	MaxAttempts   int    `json:"max_attempts,omitempty"`
	// SendTimeout bounds a single delivery attempt.
	SendTimeout string `json:"send_timeout,omitempty"`
	// Timezone is the IANA zone used to interpret operator-entered
	// dates/times (e.g. "Asia/Yerevan"). Empty means the process zone.
	Timezone string `json:"timezone,omitempty"`
}
