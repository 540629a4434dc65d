// Package app wires configuration, storage, the mailbox client, and the
// notification channels into one runnable daemon.
package app

import (
	"context"
	"fmt"
	"time"

	"mailwatch/internal/classify"
	"mailwatch/internal/config"
	"mailwatch/internal/digest"
	"mailwatch/internal/eventbus"
	"mailwatch/internal/mailbox"
	"mailwatch/internal/mailbox/gmail"
	"mailwatch/internal/monitor"
	"mailwatch/internal/notify"
	"mailwatch/internal/notify/telegram"
	"mailwatch/internal/notify/whatsapp"
	"mailwatch/internal/runtime/supervisor"
	"mailwatch/internal/session"
	"mailwatch/internal/storage"
	logx "mailwatch/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	box      mailbox.Mailbox
	sessions *session.Manager
	channels []notify.Channel

	dispatcher *notify.Dispatcher
	loop       *monitor.Loop
	dig        *digest.Digest
}

// New builds the full daemon. Gmail credentials are verified here so an
// unusable token fails the process at startup, not on the first poll.
func New(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	log.Info("storage ready", logx.String("driver", sc.Driver), logx.String("path", sc.Path))

	box, err := gmail.New(ctx, cfg.Gmail.CredentialsFile, cfg.Gmail.TokenFile,
		log.With(logx.String("comp", "gmail")))
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if err := box.Verify(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}

	wcfg := cfg.WhatsApp
	if wcfg.SessionFile == "" {
		wcfg.SessionFile = "./data/whatsapp_session.json"
	}
	if wcfg.ProfileDir == "" {
		wcfg.ProfileDir = "./data/whatsapp_profile"
	}
	sessions := session.NewManager(wcfg.SessionFile, wcfg.SessionExpiry(),
		log.With(logx.String("comp", "session")))

	var channels []notify.Channel
	if cfg.Telegram.Enabled {
		tg, err := telegram.New(cfg.Telegram, log.With(logx.String("comp", "telegram")))
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		channels = append(channels, tg)
	}
	if wcfg.Enabled {
		wa := whatsapp.New(wcfg, sessions, log.With(logx.String("comp", "whatsapp")))
		channels = append(channels, wa)
	}

	criteria, err := classify.Compile(cfg.Criteria, cfg.Gmail.UserEmail)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	dispatcher := notify.NewDispatcher(channels, store, bus, log.With(logx.String("comp", "notify")))
	loop := monitor.New(box, store, dispatcher, bus, monitor.Settings{
		Interval:    cfg.Monitor.IntervalDuration(),
		MaxPerCycle: cfg.Monitor.MaxMessages(),
		Criteria:    criteria,
	}, log.With(logx.String("comp", "monitor")))

	var dig *digest.Digest
	if cfg.Digest.Enabled {
		dig = digest.New(cfg.Digest.Schedule, channels, bus, log.With(logx.String("comp", "digest")))
	}

	return &App{
		cfgPath:    cfgPath,
		cfgm:       cfgm,
		log:        log,
		logs:       logSvc,
		bus:        bus,
		store:      store,
		box:        box,
		sessions:   sessions,
		channels:   channels,
		dispatcher: dispatcher,
		loop:       loop,
		dig:        dig,
	}, nil
}

// Sessions exposes the WhatsApp session manager for the CLI session commands.
func (a *App) Sessions() *session.Manager { return a.sessions }

// Done is closed when the supervisor context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log),
		supervisor.WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		if _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		return nil
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	updates := a.cfgm.Subscribe(4)
	a.sup.Go("config.reload", func(c context.Context) error {
		for {
			select {
			case <-c.Done():
				a.cfgm.Unsubscribe(updates)
				return nil
			case cfg, ok := <-updates:
				if !ok {
					return nil
				}
				a.applyConfig(cfg)
			}
		}
	})

	a.sup.GoRestart("monitor.loop", func(c context.Context) error {
		return a.loop.Run(c)
	}, time.Second, 30*time.Second)

	if a.dig != nil {
		if err := a.dig.Start(a.sup.Context()); err != nil {
			return err
		}
	}

	a.log.Info("mailwatch started", logx.Int("channels", len(a.channels)))
	return nil
}

// applyConfig pushes the hot-reloadable parts of a committed config into
// the running services. Channel credentials and storage need a restart.
func (a *App) applyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	criteria, err := classify.Compile(cfg.Criteria, cfg.Gmail.UserEmail)
	if err != nil {
		a.log.Warn("reload: criteria rejected", logx.Err(err))
		return
	}
	a.loop.Update(monitor.Settings{
		Interval:    cfg.Monitor.IntervalDuration(),
		MaxPerCycle: cfg.Monitor.MaxMessages(),
		Criteria:    criteria,
	})
	a.log.Info("config reloaded",
		logx.Duration("interval", cfg.Monitor.IntervalDuration()),
		logx.Int("max_per_cycle", cfg.Monitor.MaxMessages()))
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup != nil {
		if err := a.sup.Stop(ctx); err != nil && ctx.Err() != nil {
			a.log.Warn("shutdown timed out; abandoning workers", logx.Err(err))
		}
	}
	if a.dig != nil {
		a.dig.Stop()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close failed", logx.Err(err))
		}
	}
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := storage.Config{
		Driver: cfg.Storage.Driver,
		Path:   cfg.Storage.Path,
	}
	if sc.Path == "" {
		sc.Path = "./data/mailwatch.db"
	}
	if cfg.Storage.BusyTimeout != "" {
		d, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
		if err != nil {
			return storage.Config{}, fmt.Errorf("storage: %w", err)
		}
		sc.BusyTimeout = d
	}
	return sc, nil
}
