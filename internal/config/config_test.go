package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

const minimalJSON = `{
  "telegram": {
    "token": "123:abc",
    "operator_user_ids": [42],
    "channel": "@shop"
  },
  "logging": {"level": "INFO", "console": true},
  "storage": {"path": "./test.db"},
  "openai": {"api_key": "sk-test"},
  "publisher": {"enabled": true, "sweep_interval": "60s"}
}`

func TestLoadJSON(t *testing.T) {
	t.Parallel()
	m := NewConfigManager(writeTemp(t, "config.json", minimalJSON))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if len(cfg.Telegram.OperatorUserIDs) != 1 || cfg.Telegram.OperatorUserIDs[0] != 42 {
		t.Fatalf("operators = %v", cfg.Telegram.OperatorUserIDs)
	}
	if cfg.Telegram.Channel != "@shop" {
		t.Fatalf("channel = %q", cfg.Telegram.Channel)
	}
	if !cfg.Publisher.Enabled || cfg.Publisher.SweepInterval != "60s" {
		t.Fatalf("publisher = %+v", cfg.Publisher)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get() did not return the committed config")
	}
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	yaml := `
telegram:
  token: "123:abc"
  operator_user_ids: [42, 43]
  channel: "@shop"
logging:
  level: DEBUG
publisher:
  retry_delay: 5m
`
	m := NewConfigManager(writeTemp(t, "config.yaml", yaml))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Telegram.OperatorUserIDs) != 2 {
		t.Fatalf("operators = %v", cfg.Telegram.OperatorUserIDs)
	}
	if cfg.Logging.Level != "DEBUG" {
		t.Fatalf("level = %q", cfg.Logging.Level)
	}
	if cfg.Publisher.RetryDelay != "5m" {
		t.Fatalf("retry_delay = %q", cfg.Publisher.RetryDelay)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	m := NewConfigManager(writeTemp(t, "config.json", `{"telegram": {"token": "x", "typo_field": 1}}`))
	if _, err := m.Parse(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	m := NewConfigManager(writeTemp(t, "config.json", `{"telegram": {"token": "x"}}{"more": true}`))
	if _, err := m.Parse(); err == nil {
		t.Fatal("expected error for trailing data")
	}
}

func TestParseMissingFile(t *testing.T) {
	t.Parallel()
	m := NewConfigManager(filepath.Join(t.TempDir(), "absent.json"))
	if _, err := m.Parse(); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{name: "empty means zero", raw: "", want: 0},
		{name: "seconds", raw: "30s", want: 30 * time.Second},
		{name: "composite", raw: "1h30m", want: 90 * time.Minute},
		{name: "spaces trimmed", raw: " 5m ", want: 5 * time.Minute},
		{name: "negative rejected", raw: "-1s", wantErr: true},
		{name: "garbage rejected", raw: "soon", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDurationField("x", tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseDurationField(%q) expected error", tt.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDurationField(%q): %v", tt.raw, err)
			}
			if got != tt.want {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	got, err := ParseDurationOrDefault("x", "", time.Minute)
	if err != nil || got != time.Minute {
		t.Fatalf("empty = (%v, %v), want the default", got, err)
	}
	got, err = ParseDurationOrDefault("x", "10s", time.Minute)
	if err != nil || got != 10*time.Second {
		t.Fatalf("explicit = (%v, %v)", got, err)
	}
	if _, err = ParseDurationOrDefault("x", "nope", time.Minute); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{}
	newCfg := &Config{}
	newCfg.Telegram.Channel = "@shop"
	newCfg.Publisher.Enabled = true

	sections, _ := SummarizeConfigChange(oldCfg, newCfg)
	want := map[string]bool{"telegram": false, "publisher": false}
	for _, s := range sections {
		if _, ok := want[s]; ok {
			want[s] = true
		}
	}
	for s, seen := range want {
		if !seen {
			t.Fatalf("section %q not reported; got %v", s, sections)
		}
	}

	// Token changes must never surface in the summary attrs.
	oldCfg = &Config{}
	newCfg = &Config{}
	newCfg.Telegram.Token = "secret"
	sections, _ = SummarizeConfigChange(oldCfg, newCfg)
	for _, s := range sections {
		if s == "telegram" {
			t.Fatal("token-only change reported as a telegram section change")
		}
	}
}
