// Package digest accumulates activity counters from the event bus and
// sends a scheduled summary through the notification channels.
package digest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"mailwatch/internal/eventbus"
	"mailwatch/internal/notify"
	logx "mailwatch/pkg/logx"
)

// DefaultSchedule emits the summary every morning at 08:00 local time.
const DefaultSchedule = "0 8 * * *"

type counters struct {
	cycles    int
	processed int
	important int
	sent      int
	failed    int
	since     time.Time
}

type Digest struct {
	schedule string
	channels []notify.Channel
	bus      eventbus.Bus
	log      logx.Logger

	cron  *cron.Cron
	unsub func()

	mu sync.Mutex
	c  counters
}

func New(schedule string, channels []notify.Channel, bus eventbus.Bus, log logx.Logger) *Digest {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Digest{schedule: schedule, channels: channels, bus: bus, log: log}
}

// Start subscribes to the event bus and schedules emission. It returns an
// error only for a malformed schedule expression.
func (d *Digest) Start(ctx context.Context) error {
	d.mu.Lock()
	d.c = counters{since: time.Now()}
	d.mu.Unlock()

	events, unsub := d.bus.Subscribe(64)
	d.unsub = unsub
	go d.consume(ctx, events)

	d.cron = cron.New()
	_, err := d.cron.AddFunc(d.schedule, func() { d.emit(ctx) })
	if err != nil {
		return fmt.Errorf("digest schedule %q: %w", d.schedule, err)
	}
	d.cron.Start()
	return nil
}

func (d *Digest) Stop() {
	if d.cron != nil {
		<-d.cron.Stop().Done()
	}
	if d.unsub != nil {
		d.unsub()
	}
}

func (d *Digest) consume(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			d.mu.Lock()
			switch ev.Type {
			case eventbus.TypeCycleDone:
				d.c.cycles++
			case eventbus.TypeMessageProcessed:
				d.c.processed++
				if data, ok := ev.Data.(map[string]any); ok {
					if imp, _ := data["important"].(bool); imp {
						d.c.important++
					}
				}
			case eventbus.TypeNotifySent:
				d.c.sent++
			case eventbus.TypeNotifyFailed:
				d.c.failed++
			}
			d.mu.Unlock()
		}
	}
}

// emit sends the summary and resets the window.
func (d *Digest) emit(ctx context.Context) {
	d.mu.Lock()
	c := d.c
	d.c = counters{since: time.Now()}
	d.mu.Unlock()

	text := render(c)
	for _, ch := range d.channels {
		if !ch.Configured() {
			continue
		}
		if err := ch.Send(ctx, text); err != nil {
			d.log.Warn("digest send failed", logx.String("channel", ch.Name()), logx.Err(err))
		}
	}
}

func render(c counters) string {
	return fmt.Sprintf(
		"📊 Mail watch digest since %s\nCycles: %d\nMessages processed: %d\nImportant: %d\nNotifications sent: %d\nFailures: %d",
		c.since.Local().Format("Mon 15:04"), c.cycles, c.processed, c.important, c.sent, c.failed,
	)
}
