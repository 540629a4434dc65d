// Package telegram delivers notifications to a single chat through the Bot API.
package telegram

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"mailwatch/internal/config"
	logx "mailwatch/pkg/logx"
)

// textLimit stays under Telegram's 4096-character message cap with headroom
// for encoding overhead.
const textLimit = 4000

// Sender implements notify.Channel for one bot token + chat id pair.
type Sender struct {
	bot     *tele.Bot
	chatID  int64
	mode    string
	limiter *rate.Limiter
	log     logx.Logger
}

// New creates the bot client. Constructing the bot performs a getMe call,
// so a bad token fails here rather than on the first notification.
func New(cfg config.TelegramConfig, log logx.Logger) (*Sender, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	bot, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Client:  nil,
		Verbose: false,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &Sender{
		bot:     bot,
		chatID:  cfg.ChatID,
		mode:    cfg.ParseMode,
		limiter: rate.NewLimiter(rate.Limit(cfg.Rate()), 1),
		log:     log,
	}, nil
}

func (s *Sender) Name() string { return "telegram" }

func (s *Sender) Configured() bool { return s != nil && s.bot != nil && s.chatID != 0 }

func (s *Sender) Send(ctx context.Context, text string) error {
	chunks := splitText(text, textLimit)
	chat := &tele.Chat{ID: s.chatID}
	for i, chunk := range chunks {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		opts := &tele.SendOptions{ParseMode: s.mode, DisableWebPagePreview: true}
		if _, err := s.bot.Send(chat, chunk, opts); err != nil {
			return fmt.Errorf("send chunk %d/%d: %w", i+1, len(chunks), err)
		}
	}
	return nil
}

// Ping verifies the bot can reach the API. Used by the startup check.
func (s *Sender) Ping(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		_, err := s.bot.ChatByID(s.chatID)
		done <- err
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// splitText splits long messages into chunks that are safe to send.
// It prefers newline boundaries so multi-line notifications stay readable.
func splitText(s string, limit int) []string {
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := start + limit
		if end > len(rs) {
			end = len(rs)
		}
		if end < len(rs) {
			cut := -1
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' {
					// Avoid extremely small chunks.
					if i-start >= limit/3 {
						cut = i + 1
						break
					}
				}
			}
			if cut != -1 {
				end = cut
			}
		}
		chunk := strings.TrimRight(string(rs[start:end]), "\n")
		if chunk != "" {
			out = append(out, chunk)
		}
		start = end
	}
	if len(out) == 0 {
		out = []string{""}
	}
	return out
}
