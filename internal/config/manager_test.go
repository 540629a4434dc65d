package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

const minimalJSON = `{
  "gmail": {"credentials_file": "creds.json", "token_file": "token.json", "user_email": "me@x.example"},
  "monitor": {"interval": "2m", "max_per_cycle": 5},
  "criteria": {"senders": ["boss@x.example"], "check_priority": true},
  "telegram": {"enabled": true, "token": "t", "chat_id": 42}
}`

func TestParseJSON(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.json", minimalJSON))
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Gmail.UserEmail != "me@x.example" {
		t.Fatalf("UserEmail = %q", cfg.Gmail.UserEmail)
	}
	if got := cfg.Monitor.IntervalDuration(); got != 2*time.Minute {
		t.Fatalf("interval = %v, want 2m", got)
	}
	if cfg.Monitor.MaxMessages() != 5 {
		t.Fatalf("max = %d, want 5", cfg.Monitor.MaxMessages())
	}
	if !cfg.Criteria.CheckPriority {
		t.Fatal("check_priority not parsed")
	}
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	body := `
gmail:
  credentials_file: creds.json
  token_file: token.json
telegram:
  enabled: true
  token: t
  chat_id: 42
criteria:
  keywords:
    - deadline
`
	m := NewManager(writeConfig(t, "config.yaml", body))
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(cfg.Criteria.Keywords) != 1 || cfg.Criteria.Keywords[0] != "deadline" {
		t.Fatalf("keywords = %v", cfg.Criteria.Keywords)
	}
	if cfg.Telegram.ChatID != 42 {
		t.Fatalf("chat_id = %d", cfg.Telegram.ChatID)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.json", `{"gmial": {}}`))
	if _, err := m.Parse(); err == nil {
		t.Fatal("expected error for misspelled section")
	}
}

func TestParseExpandsEnv(t *testing.T) {
	body := `{
  "gmail": {"credentials_file": "c", "token_file": "t"},
  "telegram": {"enabled": true, "token": "${MAILWATCH_TEST_TOKEN}", "chat_id": 1}
}`
	t.Setenv("MAILWATCH_TEST_TOKEN", "secret-token")
	m := NewManager(writeConfig(t, "config.json", body))
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Telegram.Token != "secret-token" {
		t.Fatalf("token = %q, want env value", cfg.Telegram.Token)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	base := func() *Config {
		return &Config{
			Gmail:    GmailConfig{CredentialsFile: "c", TokenFile: "t"},
			Telegram: TelegramConfig{Enabled: true, Token: "x", ChatID: 1},
		}
	}
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "ok", mutate: func(*Config) {}},
		{name: "no credentials", mutate: func(c *Config) { c.Gmail.CredentialsFile = "" }, wantErr: true},
		{name: "no channel enabled", mutate: func(c *Config) { c.Telegram.Enabled = false }, wantErr: true},
		{name: "telegram without token", mutate: func(c *Config) { c.Telegram.Token = "" }, wantErr: true},
		{name: "whatsapp bad phone", mutate: func(c *Config) {
			c.WhatsApp = WhatsAppConfig{Enabled: true, Phone: "12"}
		}, wantErr: true},
		{name: "bad interval", mutate: func(c *Config) { c.Monitor.Interval = "five minutes" }, wantErr: true},
		{name: "bad storage driver", mutate: func(c *Config) { c.Storage.Driver = "bolt" }, wantErr: true},
		{name: "bad regex criteria", mutate: func(c *Config) { c.Criteria.Subjects = []string{"("} }, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSubscribePublish(t *testing.T) {
	t.Parallel()
	m := NewManager("unused.json")
	ch := m.Subscribe(1)
	cfg := &Config{}
	m.publish(cfg)
	select {
	case got := <-ch:
		if got != cfg {
			t.Fatal("received wrong config pointer")
		}
	default:
		t.Fatal("no config delivered")
	}
	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after Unsubscribe")
	}
}

func TestWhatsAppDefaults(t *testing.T) {
	t.Parallel()
	var c WhatsAppConfig
	if got := c.SessionExpiry(); got != 14*24*time.Hour {
		t.Fatalf("SessionExpiry = %v, want 14 days", got)
	}
	if got := c.HeadlessDeadline(); got != 30*time.Second {
		t.Fatalf("HeadlessDeadline = %v, want 30s", got)
	}
	c.SessionExpiryDays = 7
	if got := c.SessionExpiry(); got != 7*24*time.Hour {
		t.Fatalf("SessionExpiry = %v, want 7 days", got)
	}
}
