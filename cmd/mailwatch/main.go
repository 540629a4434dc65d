package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/joho/godotenv"

	"mailwatch/internal/app"
	"mailwatch/internal/config"
	"mailwatch/internal/notify/whatsapp"
	"mailwatch/internal/session"
	logx "mailwatch/pkg/logx"
)

func main() {
	var (
		cfgPath      string
		checkSession bool
		initSession  bool
	)
	flag.StringVar(&cfgPath, "config", "./config.json", "path to config file (json or yaml)")
	flag.BoolVar(&checkSession, "check-session", false, "verify the WhatsApp session and exit")
	flag.BoolVar(&initSession, "init-session", false, "run the attended WhatsApp login flow and exit")
	flag.Parse()

	// Secrets referenced as ${VAR} in the config come from the environment;
	// a .env next to the binary is a convenience for non-systemd setups.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if checkSession || initSession {
		os.Exit(runSessionCommand(ctx, cfgPath, initSession))
	}

	a, err := app.New(ctx, cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		_ = a.Stop(context.Background())
		os.Exit(1)
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	stopWatchdog := startWatchdog(ctx)

	select {
	case <-ctx.Done():
	case <-a.Done():
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	stopWatchdog()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx)

	if err := a.Err(); err != nil && ctx.Err() == nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

// startWatchdog pets the systemd watchdog when one is configured.
func startWatchdog(ctx context.Context) func() {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return func() {}
	}
	tctx, cancel := context.WithCancel(ctx)
	go func() {
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-tctx.Done():
				return
			case <-t.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	}()
	return cancel
}

// runSessionCommand handles -check-session and -init-session without
// touching Gmail, so session maintenance works even with broken mail
// credentials.
func runSessionCommand(ctx context.Context, cfgPath string, initFlow bool) int {
	cfg, err := config.NewManager(cfgPath).Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		return 1
	}
	log := logx.NewConsole(cfg.Logging.Level)
	wcfg := cfg.WhatsApp
	if wcfg.SessionFile == "" {
		wcfg.SessionFile = "./data/whatsapp_session.json"
	}
	if wcfg.ProfileDir == "" {
		wcfg.ProfileDir = "./data/whatsapp_profile"
	}
	sessions := session.NewManager(wcfg.SessionFile, wcfg.SessionExpiry(), log)
	wa := whatsapp.New(wcfg, sessions, log)

	if initFlow {
		if err := wa.InitSession(ctx); err != nil {
			fmt.Fprintln(os.Stderr, "session init failed:", err)
			return 1
		}
		fmt.Println("session established")
		return 0
	}

	st, err := wa.CheckSession(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "session check failed:", err)
		return 1
	}
	fmt.Println("session state:", st)
	if st != session.Valid {
		return 1
	}
	return 0
}
