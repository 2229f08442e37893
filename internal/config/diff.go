package config

import (
	"reflect"
	"strings"

	logx "postbot/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections plus safe
// structured attrs for logging (never includes secrets like tokens or API keys).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 16)

	// Telegram (never log token)
	if strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) ||
		!reflect.DeepEqual(oldCfg.Telegram.OperatorUserIDs, newCfg.Telegram.OperatorUserIDs) ||
		strings.TrimSpace(oldCfg.Telegram.Channel) != strings.TrimSpace(newCfg.Telegram.Channel) ||
		strings.TrimSpace(oldCfg.Telegram.GroupLog) != strings.TrimSpace(newCfg.Telegram.GroupLog) ||
		oldCfg.Telegram.RatePerSec != newCfg.Telegram.RatePerSec {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Int("telegram.operator_count", len(newCfg.Telegram.OperatorUserIDs)),
			logx.String("telegram.channel", strings.TrimSpace(newCfg.Telegram.Channel)),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(newCfg.Telegram.GroupLog) != ""),
		)
	}

	// Logging
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logx.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	// Storage
	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs, logx.String("storage.path", strings.TrimSpace(newCfg.Storage.Path)))
	}

	// OpenAI (never log api key)
	if oldCfg.OpenAI.Model != newCfg.OpenAI.Model ||
		strings.TrimSpace(oldCfg.OpenAI.BaseURL) != strings.TrimSpace(newCfg.OpenAI.BaseURL) ||
		oldCfg.OpenAI.MaxTokens != newCfg.OpenAI.MaxTokens ||
		oldCfg.OpenAI.Temperature != newCfg.OpenAI.Temperature ||
		strings.TrimSpace(oldCfg.OpenAI.Timeout) != strings.TrimSpace(newCfg.OpenAI.Timeout) {
		changed = append(changed, "openai")
		attrs = append(attrs, logx.String("openai.model", newCfg.OpenAI.Model))
	}

	// Publisher
	if oldCfg.Publisher != newCfg.Publisher {
		changed = append(changed, "publisher")
		attrs = append(attrs,
			logx.Bool("publisher.enabled", newCfg.Publisher.Enabled),
			logx.String("publisher.sweep_interval", strings.TrimSpace(newCfg.Publisher.SweepInterval)),
			logx.String("publisher.retry_delay", strings.TrimSpace(newCfg.Publisher.RetryDelay)),
			logx.String("publisher.grace_period", strings.TrimSpace(newCfg.Publisher.GracePeriod)),
		)
	}

	return changed, attrs
}
