package config

type Config struct {
	Gmail    GmailConfig    `json:"gmail"`
	Monitor  MonitorConfig  `json:"monitor"`
	Criteria CriteriaConfig `json:"criteria"`

	Telegram TelegramConfig `json:"telegram"`
	WhatsApp WhatsAppConfig `json:"whatsapp"`

	Digest  DigestConfig  `json:"digest,omitempty"`
	Storage StorageConfig `json:"storage"`
	Logging LoggingConfig `json:"logging"`
}

// GmailConfig locates the OAuth client credentials and the cached user token.
//
// The token file is created by the OAuth consent flow; if it is missing or
// unusable at startup the process exits with a diagnostic (monitoring cannot
// run unauthenticated).
type GmailConfig struct {
	CredentialsFile string `json:"credentials_file"`
	TokenFile       string `json:"token_file"`
	UserEmail       string `json:"user_email,omitempty"`
}

// MonitorConfig controls the polling loop.
//
// Interval is a Go duration string (e.g. "300s", "5m").
// Defaults: interval 5m, max_per_cycle 10.
type MonitorConfig struct {
	Interval    string `json:"interval,omitempty"`
	MaxPerCycle int    `json:"max_per_cycle,omitempty"`
}

// CriteriaConfig lists the importance rules.
//
// Each entry is tried as a case-insensitive regular expression; entries that
// fail to compile degrade to case-insensitive substring literals. A message
// is important when ANY group matches (senders, then subjects, then keywords
// against body and subject).
type CriteriaConfig struct {
	Senders  []string `json:"senders,omitempty"`
	Subjects []string `json:"subjects,omitempty"`
	Keywords []string `json:"keywords,omitempty"`

	// DirectMessage flags mail addressed solely to gmail.user_email.
	DirectMessage bool `json:"direct_message,omitempty"`
	// CheckPriority flags mail carrying the mailbox's IMPORTANT label.
	CheckPriority bool `json:"check_priority,omitempty"`
}

type TelegramConfig struct {
	Enabled   bool   `json:"enabled"`
	Token     string `json:"token,omitempty"`
	ChatID    int64  `json:"chat_id,omitempty"`
	ParseMode string `json:"parse_mode,omitempty"`
	// RatePerSec bounds outbound sends (Telegram flood control). Default 1.
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

// WhatsAppConfig controls browser-automation delivery.
//
// All timeouts are Go duration strings. Defaults: headless_timeout "30s",
// send_timeout "10s", attended_timeout "3m", session_expiry_days 14.
type WhatsAppConfig struct {
	Enabled bool   `json:"enabled"`
	Phone   string `json:"phone,omitempty"`

	SessionFile       string `json:"session_file,omitempty"`
	ProfileDir        string `json:"profile_dir,omitempty"`
	SessionExpiryDays int    `json:"session_expiry_days,omitempty"`

	HeadlessTimeout string `json:"headless_timeout,omitempty"`
	SendTimeout     string `json:"send_timeout,omitempty"`
	AttendedTimeout string `json:"attended_timeout,omitempty"`

	ScreenshotDir string `json:"screenshot_dir,omitempty"`
}

// DigestConfig controls the optional daily activity summary.
//
// Schedule is a cron expression (default "0 9 * * *"). The digest is sent
// through the Telegram channel only.
type DigestConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule,omitempty"`
}

// StorageConfig controls the processed-id store.
//
// Driver values:
//   - "file": append-only id log + audit jsonl (default)
//   - "sqlite": SQLite database file (optional build tag)
//
// Example:
//
//	"storage": { "driver": "file", "path": "./data/mailwatch" }
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}
