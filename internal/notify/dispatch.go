// Package notify formats classified messages and fans them out to the
// configured channels.
package notify

import (
	"context"
	"fmt"
	"time"

	"mailwatch/internal/classify"
	"mailwatch/internal/eventbus"
	"mailwatch/internal/mailbox"
	"mailwatch/internal/storage"
	logx "mailwatch/pkg/logx"
)

// Channel delivers one rendered notification. Implementations must be safe
// for sequential reuse; the dispatcher never calls Send concurrently.
type Channel interface {
	Name() string
	// Configured reports whether the channel has everything it needs to
	// attempt delivery. Unconfigured channels are skipped, not failed.
	Configured() bool
	Send(ctx context.Context, text string) error
}

// Dispatcher sends a message to every configured channel and reports
// whether at least one delivery succeeded. A failing channel never blocks
// the others.
type Dispatcher struct {
	channels []Channel
	store    storage.Store
	bus      eventbus.Bus
	log      logx.Logger
}

func NewDispatcher(channels []Channel, store storage.Store, bus eventbus.Bus, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{channels: channels, store: store, bus: bus, log: log}
}

// Dispatch formats msg and attempts delivery on each configured channel
// exactly once. It returns true when any channel succeeded.
func (d *Dispatcher) Dispatch(ctx context.Context, msg mailbox.Message, res classify.Result) bool {
	text := Format(msg, res)

	anyOK := false
	for _, ch := range d.channels {
		if !ch.Configured() {
			d.log.Debug("channel not configured, skipping", logx.String("channel", ch.Name()))
			continue
		}
		start := time.Now()
		err := sendSafe(ctx, ch, text)
		took := time.Since(start)

		entry := storage.AuditEntry{
			At:        start,
			MessageID: msg.ID,
			Sender:    msg.Sender,
			Subject:   msg.Subject,
			Rule:      res.Rule,
			Channel:   ch.Name(),
			OK:        err == nil,
			TookMS:    took.Milliseconds(),
		}
		if err != nil {
			entry.Error = err.Error()
		}
		if d.store != nil {
			if aerr := d.store.AppendAudit(ctx, entry); aerr != nil {
				d.log.Warn("audit append failed", logx.Err(aerr))
			}
		}

		if err != nil {
			d.log.Error("notification failed",
				logx.String("channel", ch.Name()),
				logx.String("message_id", msg.ID),
				logx.Duration("took", took),
				logx.Err(err))
			if d.bus != nil {
				d.bus.Publish(eventbus.Event{
					Type: eventbus.TypeNotifyFailed,
					Time: time.Now(),
					Data: map[string]any{"channel": ch.Name(), "message_id": msg.ID, "error": err.Error()},
				})
			}
			continue
		}

		anyOK = true
		d.log.Info("notification sent",
			logx.String("channel", ch.Name()),
			logx.String("message_id", msg.ID),
			logx.Duration("took", took))
		if d.bus != nil {
			d.bus.Publish(eventbus.Event{
				Type: eventbus.TypeNotifySent,
				Time: time.Now(),
				Data: map[string]any{"channel": ch.Name(), "message_id": msg.ID},
			})
		}
	}
	return anyOK
}

// sendSafe isolates a panicking channel implementation so one bad sender
// cannot abort the whole dispatch.
func sendSafe(ctx context.Context, ch Channel, text string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("channel %s panicked: %v", ch.Name(), r)
		}
	}()
	return ch.Send(ctx, text)
}
