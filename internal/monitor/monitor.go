// Package monitor runs the poll cycle: search unread mail, classify, notify,
// and record what was handled. Cycles are strictly sequential; the loop never
// overlaps itself.
package monitor

import (
	"context"
	"sync"
	"time"

	"mailwatch/internal/classify"
	"mailwatch/internal/eventbus"
	"mailwatch/internal/mailbox"
	"mailwatch/internal/notify"
	"mailwatch/internal/storage"
	logx "mailwatch/pkg/logx"
)

// Settings is the hot-reloadable part of the loop. Update replaces the whole
// snapshot atomically; a running cycle keeps the snapshot it started with.
type Settings struct {
	Interval    time.Duration
	MaxPerCycle int
	Criteria    *classify.Criteria
}

// CycleStats summarizes one completed poll cycle.
type CycleStats struct {
	Listed    int
	Fetched   int
	Skipped   int
	Important int
	Notified  int
	Failed    int
}

type Loop struct {
	box        mailbox.Mailbox
	store      storage.Store
	dispatcher *notify.Dispatcher
	bus        eventbus.Bus
	log        logx.Logger

	mu        sync.Mutex
	settings  Settings
	lastCheck time.Time

	now func() time.Time
}

func New(box mailbox.Mailbox, store storage.Store, d *notify.Dispatcher, bus eventbus.Bus, s Settings, log logx.Logger) *Loop {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Loop{
		box:        box,
		store:      store,
		dispatcher: d,
		bus:        bus,
		settings:   s,
		log:        log,
		now:        time.Now,
	}
}

// Update swaps in new settings. Takes effect on the next cycle.
func (l *Loop) Update(s Settings) {
	l.mu.Lock()
	l.settings = s
	l.mu.Unlock()
}

func (l *Loop) snapshot() Settings {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.settings
}

// Run executes an immediate cycle and then one per interval until ctx ends.
// The interval is re-read each iteration so config reloads apply without a
// restart.
func (l *Loop) Run(ctx context.Context) error {
	l.RunCycle(ctx)
	for {
		interval := l.snapshot().Interval
		if interval <= 0 {
			interval = 5 * time.Minute
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			l.RunCycle(ctx)
		}
	}
}

// RunCycle performs one poll. The check window advances to the cycle start
// time no matter what happens afterwards, so a failing provider cannot make
// the window grow without bound; anything missed is still covered by the
// unread filter on the next pass.
func (l *Loop) RunCycle(ctx context.Context) CycleStats {
	s := l.snapshot()

	l.mu.Lock()
	since := l.lastCheck
	l.lastCheck = l.now()
	l.mu.Unlock()

	start := l.now()
	publish(l.bus, eventbus.TypeCycleStart, map[string]any{"since": since})

	var stats CycleStats
	defer func() {
		publish(l.bus, eventbus.TypeCycleDone, map[string]any{
			"listed": stats.Listed, "important": stats.Important,
			"notified": stats.Notified, "failed": stats.Failed,
			"took_ms": l.now().Sub(start).Milliseconds(),
		})
		l.log.Info("cycle done",
			logx.Int("listed", stats.Listed),
			logx.Int("important", stats.Important),
			logx.Int("notified", stats.Notified),
			logx.Int("failed", stats.Failed),
			logx.Duration("took", l.now().Sub(start)))
	}()

	q := mailbox.Query{Since: since, UnreadOnly: true}
	ids, err := l.box.Search(ctx, q, s.MaxPerCycle)
	if err != nil {
		l.log.Error("search failed", logx.Err(err), logx.String("query", q.String()))
		return stats
	}
	stats.Listed = len(ids)

	for _, id := range ids {
		if ctx.Err() != nil {
			return stats
		}
		l.handle(ctx, id, since, s, &stats)
	}
	return stats
}

// handle processes one listed message id. A fetch error leaves the message
// unmarked so the next cycle retries it; every other path marks or skips.
func (l *Loop) handle(ctx context.Context, id string, since time.Time, s Settings, stats *CycleStats) {
	seen, err := l.store.Seen(ctx, id)
	if err != nil {
		l.log.Warn("dedup lookup failed", logx.Err(err), logx.String("message_id", id))
	}
	if seen {
		stats.Skipped++
		publish(l.bus, eventbus.TypeMessageSkipped, map[string]any{"message_id": id, "reason": "already processed"})
		return
	}

	msg, err := l.box.Fetch(ctx, id)
	if err != nil {
		stats.Failed++
		l.log.Warn("fetch failed", logx.Err(err), logx.String("message_id", id))
		return
	}
	if msg == nil {
		stats.Skipped++
		publish(l.bus, eventbus.TypeMessageSkipped, map[string]any{"message_id": id, "reason": "unfetchable"})
		return
	}
	stats.Fetched++

	// The search operator has day granularity; enforce the exact window here.
	if !since.IsZero() && !msg.Date.IsZero() && msg.Date.Before(since) {
		stats.Skipped++
		publish(l.bus, eventbus.TypeMessageSkipped, map[string]any{"message_id": id, "reason": "before window"})
		return
	}

	res := s.Criteria.Evaluate(*msg)
	if res.Important {
		stats.Important++
		// One dispatch attempt per message. Mark processed regardless of
		// the outcome so a flaky channel never causes duplicate alerts.
		if l.dispatcher.Dispatch(ctx, *msg, res) {
			stats.Notified++
		} else {
			stats.Failed++
		}
	}

	if err := l.store.MarkProcessed(ctx, id); err != nil {
		l.log.Error("mark processed failed", logx.Err(err), logx.String("message_id", id))
	}
	publish(l.bus, eventbus.TypeMessageProcessed, map[string]any{
		"message_id": id, "important": res.Important, "rule": res.Rule,
	})
}

func publish(bus eventbus.Bus, typ string, data map[string]any) {
	if bus == nil {
		return
	}
	bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: data})
}
