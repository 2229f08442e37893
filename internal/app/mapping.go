package app

import (
	"fmt"
	"strings"
	"time"

	"postbot/internal/config"
	"postbot/internal/services/generator"
	"postbot/internal/services/publisher"
	"postbot/internal/storage"
	kit "postbot/internal/transport"
	logx "postbot/pkg/logx"
)

func mapLogxConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	path := strings.TrimSpace(cfg.Storage.Path)
	if path == "" {
		path = "./postbot.db"
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Path: path, BusyTimeout: busy}, nil
}

// mapPublisherConfig parses the engine tunables. channelID may be zero while
// the channel handle is still unresolved (before the adapter is up).
func mapPublisherConfig(cfg *config.Config, channelID int64) (publisher.Config, error) {
	sweep, err := config.ParseDurationOrDefault("publisher.sweep_interval", cfg.Publisher.SweepInterval, 60*time.Second)
	if err != nil {
		return publisher.Config{}, err
	}
	retry, err := config.ParseDurationOrDefault("publisher.retry_delay", cfg.Publisher.RetryDelay, 5*time.Minute)
	if err != nil {
		return publisher.Config{}, err
	}
	grace, err := config.ParseDurationOrDefault("publisher.grace_period", cfg.Publisher.GracePeriod, 10*time.Minute)
	if err != nil {
		return publisher.Config{}, err
	}
	cleanup, err := config.ParseDurationOrDefault("publisher.cleanup_interval", cfg.Publisher.CleanupEvery, 5*time.Minute)
	if err != nil {
		return publisher.Config{}, err
	}
	send, err := config.ParseDurationOrDefault("publisher.send_timeout", cfg.Publisher.SendTimeout, 30*time.Second)
	if err != nil {
		return publisher.Config{}, err
	}
	if cfg.Publisher.BatchSize < 0 {
		return publisher.Config{}, fmt.Errorf("publisher.batch_size must be >= 0")
	}
	if cfg.Publisher.MaxAttempts < 0 {
		return publisher.Config{}, fmt.Errorf("publisher.max_attempts must be >= 0")
	}
	if tz := strings.TrimSpace(cfg.Publisher.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return publisher.Config{}, fmt.Errorf("publisher.timezone: invalid %q: %w", tz, err)
		}
	}
	return publisher.Config{
		Enabled:       cfg.Publisher.Enabled,
		SweepInterval: sweep,
		RetryDelay:    retry,
		GracePeriod:   grace,
		CleanupEvery:  cleanup,
		BatchSize:     cfg.Publisher.BatchSize,
		MaxAttempts:   cfg.Publisher.MaxAttempts,
		SendTimeout:   send,
		Channel:       kit.ChatTarget{ChatID: channelID},
	}, nil
}

func mapGeneratorConfig(cfg *config.Config) (generator.Config, error) {
	timeout, err := config.ParseDurationOrDefault("openai.timeout", cfg.OpenAI.Timeout, 60*time.Second)
	if err != nil {
		return generator.Config{}, err
	}
	return generator.Config{
		APIKey:      cfg.OpenAI.APIKey,
		Model:       cfg.OpenAI.Model,
		BaseURL:     cfg.OpenAI.BaseURL,
		MaxTokens:   cfg.OpenAI.MaxTokens,
		Temperature: cfg.OpenAI.Temperature,
		Timeout:     timeout,
	}, nil
}
