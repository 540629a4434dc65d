package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Defaults applied by normalization when fields are left empty.
const (
	DefaultInterval        = 5 * time.Minute
	DefaultMaxPerCycle     = 10
	DefaultSessionExpiry   = 14 * 24 * time.Hour
	DefaultHeadlessTimeout = 30 * time.Second
	DefaultSendTimeout     = 10 * time.Second
	DefaultAttendedTimeout = 2 * time.Minute
	DefaultRatePerSec      = 1.0
)

// Validate checks the parts of the config that can be wrong in a way the
// daemon cannot recover from at runtime. Field defaults are applied by the
// accessor methods, not here.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("nil config")
	}
	if c.Gmail.CredentialsFile == "" {
		return fmt.Errorf("gmail.credentials_file is required")
	}
	if c.Gmail.TokenFile == "" {
		return fmt.Errorf("gmail.token_file is required")
	}
	if !c.Telegram.Enabled && !c.WhatsApp.Enabled {
		return fmt.Errorf("at least one notification channel must be enabled")
	}
	if c.Telegram.Enabled {
		if c.Telegram.Token == "" {
			return fmt.Errorf("telegram.token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == 0 {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}
	if c.WhatsApp.Enabled {
		digits := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, c.WhatsApp.Phone)
		if len(digits) < 7 {
			return fmt.Errorf("whatsapp.phone must contain a full international number")
		}
	}
	if c.Monitor.Interval != "" {
		if _, err := ParseDurationField("monitor.interval", c.Monitor.Interval); err != nil {
			return err
		}
	}
	if c.Monitor.MaxPerCycle < 0 {
		return fmt.Errorf("monitor.max_per_cycle must be >= 0")
	}
	if d := c.Storage.Driver; d != "" && d != "file" && d != "sqlite" {
		return fmt.Errorf("storage.driver must be file or sqlite, got %q", d)
	}
	for i, p := range c.Criteria.Senders {
		if looksLikeRegex(p) {
			if _, err := regexp.Compile("(?i)" + p); err != nil {
				return fmt.Errorf("criteria.senders[%d]: %w", i, err)
			}
		}
	}
	for i, p := range c.Criteria.Subjects {
		if looksLikeRegex(p) {
			if _, err := regexp.Compile("(?i)" + p); err != nil {
				return fmt.Errorf("criteria.subjects[%d]: %w", i, err)
			}
		}
	}
	for i, p := range c.Criteria.Keywords {
		if looksLikeRegex(p) {
			if _, err := regexp.Compile("(?i)" + p); err != nil {
				return fmt.Errorf("criteria.keywords[%d]: %w", i, err)
			}
		}
	}
	return nil
}

// looksLikeRegex reports whether a criteria pattern should be compiled as a
// regular expression rather than matched as a case-insensitive substring.
func looksLikeRegex(p string) bool {
	return strings.ContainsAny(p, `\.+*?()|[]{}^$`)
}

// Interval returns the poll interval with the default applied.
func (c MonitorConfig) IntervalDuration() time.Duration {
	return ParseDurationOrDefault(c.Interval, DefaultInterval)
}

// MaxMessages returns the per-cycle message cap with the default applied.
func (c MonitorConfig) MaxMessages() int {
	if c.MaxPerCycle <= 0 {
		return DefaultMaxPerCycle
	}
	return c.MaxPerCycle
}

// SessionExpiry returns how long a WhatsApp authentication stays valid.
func (c WhatsAppConfig) SessionExpiry() time.Duration {
	if c.SessionExpiryDays <= 0 {
		return DefaultSessionExpiry
	}
	return time.Duration(c.SessionExpiryDays) * 24 * time.Hour
}

func (c WhatsAppConfig) HeadlessDeadline() time.Duration {
	return ParseDurationOrDefault(c.HeadlessTimeout, DefaultHeadlessTimeout)
}

func (c WhatsAppConfig) SendDeadline() time.Duration {
	return ParseDurationOrDefault(c.SendTimeout, DefaultSendTimeout)
}

func (c WhatsAppConfig) AttendedDeadline() time.Duration {
	return ParseDurationOrDefault(c.AttendedTimeout, DefaultAttendedTimeout)
}

func (c TelegramConfig) Rate() float64 {
	if c.RatePerSec <= 0 {
		return DefaultRatePerSec
	}
	return float64(c.RatePerSec)
}
