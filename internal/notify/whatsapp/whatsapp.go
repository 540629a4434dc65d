// Package whatsapp delivers notifications through WhatsApp Web driven by a
// headless Chrome instance. There is no official API for personal accounts;
// a persistent browser profile holds the authenticated session and messages
// go out via the click-to-chat deep link.
package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"mailwatch/internal/config"
	"mailwatch/internal/session"
	logx "mailwatch/pkg/logx"
)

// ErrNotAuthenticated reports that WhatsApp Web asked for a QR scan instead
// of showing the chat. The session manager is invalidated when this happens;
// run the attended init flow to recover.
var ErrNotAuthenticated = errors.New("whatsapp: session not authenticated")

const (
	sendBaseURL = "https://web.whatsapp.com/send"
	homeURL     = "https://web.whatsapp.com/"

	// composerSelector matches the message input once a chat is open.
	composerSelector = `footer div[contenteditable="true"]`
	// chatListSelector matches the left pane shown only when logged in.
	chatListSelector = `#side`
	// qrSelector matches the QR login canvas shown when logged out.
	qrSelector = `div[data-ref], canvas[aria-label]`
)

// Sender implements notify.Channel over WhatsApp Web.
type Sender struct {
	cfg      config.WhatsAppConfig
	sessions *session.Manager
	log      logx.Logger
}

func New(cfg config.WhatsAppConfig, sessions *session.Manager, log logx.Logger) *Sender {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sender{cfg: cfg, sessions: sessions, log: log}
}

func (s *Sender) Name() string { return "whatsapp" }

func (s *Sender) Configured() bool {
	return s != nil && s.cfg.Enabled && phoneDigits(s.cfg.Phone) != ""
}

// Send delivers text through the click-to-chat link. With a Valid session
// it runs headless; when the session is Expired, Invalid, or the headless
// run hits a QR login, it recovers through EnsureUsable and retries once in
// a visible browser with the attended time budget.
func (s *Sender) Send(ctx context.Context, text string) error {
	if s.sessions.State() == session.Valid {
		err := s.deliver(ctx, text, true)
		if !errors.Is(err, ErrNotAuthenticated) {
			return err
		}
		// stored session lied; fall through to interactive recovery
	}

	if !s.EnsureUsable(ctx) {
		return fmt.Errorf("%w (state %s)", ErrNotAuthenticated, s.sessions.State())
	}
	return s.deliver(ctx, text, false)
}

// EnsureUsable reports whether the session can carry a send, running the
// attended QR login when it cannot. Safe to call on every dispatch; the
// Valid path never launches a browser.
func (s *Sender) EnsureUsable(ctx context.Context) bool {
	if s.sessions.State() == session.Valid {
		return true
	}
	s.log.Warn("whatsapp session unusable, starting interactive login",
		logx.String("state", s.sessions.State().String()))
	if err := s.InitSession(ctx); err != nil {
		s.log.Error("interactive login failed", logx.Err(err))
		return false
	}
	return s.sessions.State() == session.Valid
}

// deliver opens the chat deep link and presses Enter in the composer.
// The attended variant shows the window and gets the longer budget.
func (s *Sender) deliver(ctx context.Context, text string, headless bool) error {
	pageBudget := s.cfg.HeadlessDeadline()
	if !headless {
		pageBudget = s.cfg.AttendedDeadline()
	}

	link := sendBaseURL + "?phone=" + phoneDigits(s.cfg.Phone) + "&text=" + url.QueryEscape(text)

	ctx, cancel := context.WithTimeout(ctx, pageBudget+s.cfg.SendDeadline())
	defer cancel()

	bctx, bcancel := s.newBrowser(ctx, headless)
	defer bcancel()

	if err := chromedp.Run(bctx, chromedp.Navigate(link)); err != nil {
		return fmt.Errorf("whatsapp: open chat: %w", err)
	}

	if err := s.waitComposer(bctx, pageBudget); err != nil {
		return err
	}

	sctx, scancel := context.WithTimeout(bctx, s.cfg.SendDeadline())
	defer scancel()
	err := chromedp.Run(sctx,
		chromedp.SendKeys(composerSelector, kb.Enter, chromedp.ByQuery),
		// give the outgoing message time to reach the server before the
		// browser is torn down
		chromedp.Sleep(2*time.Second),
	)
	if err != nil {
		s.screenshot(bctx, "send-failed")
		return fmt.Errorf("whatsapp: send: %w", err)
	}
	return nil
}

// waitComposer waits for the chat composer, distinguishing a slow page from
// a logged-out one. A visible QR login invalidates the stored session.
func (s *Sender) waitComposer(bctx context.Context, budget time.Duration) error {
	wctx, wcancel := context.WithTimeout(bctx, budget)
	defer wcancel()
	err := chromedp.Run(wctx, chromedp.WaitVisible(composerSelector, chromedp.ByQuery))
	if err == nil {
		return nil
	}

	var loggedOut bool
	qctx, qcancel := context.WithTimeout(bctx, 5*time.Second)
	defer qcancel()
	qerr := chromedp.Run(qctx, chromedp.Evaluate(
		fmt.Sprintf(`!!document.querySelector(%q)`, qrSelector), &loggedOut))
	if qerr == nil && loggedOut {
		if ierr := s.sessions.Invalidate("qr login requested"); ierr != nil {
			s.log.Warn("session invalidate failed", logx.Err(ierr))
		}
		s.screenshot(bctx, "logged-out")
		return ErrNotAuthenticated
	}

	s.screenshot(bctx, "composer-timeout")
	return fmt.Errorf("whatsapp: chat did not load: %w", err)
}

// InitSession runs the attended login flow: a visible browser window shows
// the QR code and the call blocks until the chat list appears or the
// attended timeout passes. On success the session record is refreshed.
func (s *Sender) InitSession(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.AttendedDeadline())
	defer cancel()

	bctx, bcancel := s.newBrowser(ctx, false)
	defer bcancel()

	err := chromedp.Run(bctx,
		chromedp.Navigate(homeURL),
		chromedp.WaitVisible(chatListSelector, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("whatsapp: login not completed: %w", err)
	}
	if err := s.sessions.MarkAuthenticated(time.Now()); err != nil {
		return fmt.Errorf("whatsapp: record session: %w", err)
	}
	s.log.Info("whatsapp session established")
	return nil
}

// CheckSession loads WhatsApp Web headlessly and reconciles the stored
// record with what the site actually shows.
func (s *Sender) CheckSession(ctx context.Context) (session.State, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.HeadlessDeadline())
	defer cancel()

	bctx, bcancel := s.newBrowser(ctx, true)
	defer bcancel()

	err := chromedp.Run(bctx,
		chromedp.Navigate(homeURL),
		chromedp.WaitVisible(chatListSelector, chromedp.ByQuery),
	)
	if err == nil {
		if merr := s.sessions.MarkAuthenticated(time.Now()); merr != nil {
			return session.Valid, merr
		}
		return session.Valid, nil
	}
	if ierr := s.sessions.Invalidate("headless check failed"); ierr != nil {
		s.log.Warn("session invalidate failed", logx.Err(ierr))
	}
	return session.Invalid, nil
}

func (s *Sender) newBrowser(ctx context.Context, headless bool) (context.Context, context.CancelFunc) {
	opts := append([]chromedp.ExecAllocatorOption{},
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.UserDataDir(s.cfg.ProfileDir),
		chromedp.WindowSize(1280, 900),
	)
	if headless {
		opts = append(opts, chromedp.Headless, chromedp.DisableGPU)
	}
	allocCtx, acancel := chromedp.NewExecAllocator(ctx, opts...)
	bctx, bcancel := chromedp.NewContext(allocCtx)
	return bctx, func() {
		bcancel()
		acancel()
	}
}

// screenshot saves a failure snapshot when a screenshot dir is configured.
func (s *Sender) screenshot(bctx context.Context, label string) {
	if s.cfg.ScreenshotDir == "" {
		return
	}
	var buf []byte
	cctx, cancel := context.WithTimeout(bctx, 5*time.Second)
	defer cancel()
	if err := chromedp.Run(cctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		s.log.Debug("screenshot capture failed", logx.Err(err))
		return
	}
	if err := os.MkdirAll(s.cfg.ScreenshotDir, 0o755); err != nil {
		return
	}
	name := fmt.Sprintf("%s-%s.png", time.Now().Format("20060102-150405"), label)
	if err := os.WriteFile(filepath.Join(s.cfg.ScreenshotDir, name), buf, 0o600); err != nil {
		s.log.Debug("screenshot write failed", logx.Err(err))
	}
}

func phoneDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}
