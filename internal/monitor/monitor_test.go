package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"mailwatch/internal/classify"
	"mailwatch/internal/config"
	"mailwatch/internal/mailbox"
	"mailwatch/internal/notify"
	"mailwatch/internal/storage"
	logx "mailwatch/pkg/logx"
)

type fakeBox struct {
	msgs      map[string]*mailbox.Message
	order     []string
	searchErr error
	queries   []mailbox.Query
	fetches   map[string]int
}

func newFakeBox(msgs ...*mailbox.Message) *fakeBox {
	b := &fakeBox{msgs: map[string]*mailbox.Message{}, fetches: map[string]int{}}
	for _, m := range msgs {
		b.msgs[m.ID] = m
		b.order = append(b.order, m.ID)
	}
	return b
}

func (b *fakeBox) Search(ctx context.Context, q mailbox.Query, max int) ([]string, error) {
	b.queries = append(b.queries, q)
	if b.searchErr != nil {
		return nil, b.searchErr
	}
	ids := b.order
	if max > 0 && len(ids) > max {
		ids = ids[:max]
	}
	return append([]string(nil), ids...), nil
}

func (b *fakeBox) Fetch(ctx context.Context, id string) (*mailbox.Message, error) {
	b.fetches[id]++
	return b.msgs[id], nil
}

type memStore struct {
	processed map[string]bool
	audits    []storage.AuditEntry
}

func newMemStore() *memStore { return &memStore{processed: map[string]bool{}} }

func (s *memStore) Seen(ctx context.Context, id string) (bool, error) {
	return s.processed[id], nil
}
func (s *memStore) MarkProcessed(ctx context.Context, id string) error {
	s.processed[id] = true
	return nil
}
func (s *memStore) AppendAudit(ctx context.Context, e storage.AuditEntry) error {
	s.audits = append(s.audits, e)
	return nil
}
func (s *memStore) Close() error { return nil }

type fakeChannel struct {
	err   error
	sent  []string
	calls int
}

func (f *fakeChannel) Name() string     { return "fake" }
func (f *fakeChannel) Configured() bool { return true }
func (f *fakeChannel) Send(ctx context.Context, text string) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, text)
	return nil
}

func testSettings(t *testing.T) Settings {
	t.Helper()
	criteria, err := classify.Compile(config.CriteriaConfig{Senders: []string{"boss@corp.example"}}, "")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return Settings{Interval: time.Minute, MaxPerCycle: 10, Criteria: criteria}
}

func newTestLoop(t *testing.T, box mailbox.Mailbox, st storage.Store, ch *fakeChannel) *Loop {
	t.Helper()
	d := notify.NewDispatcher([]notify.Channel{ch}, st, nil, logx.Nop())
	return New(box, st, d, nil, testSettings(t), logx.Nop())
}

func TestCycleNotifiesOnlyImportant(t *testing.T) {
	t.Parallel()
	box := newFakeBox(
		&mailbox.Message{ID: "m1", Sender: "boss@corp.example", Subject: "raise", Unread: true},
		&mailbox.Message{ID: "m2", Sender: "spam@x.example", Subject: "sale", Unread: true},
	)
	st := newMemStore()
	ch := &fakeChannel{}
	l := newTestLoop(t, box, st, ch)

	stats := l.RunCycle(context.Background())
	if stats.Listed != 2 || stats.Important != 1 || stats.Notified != 1 {
		t.Fatalf("stats = %+v, want listed 2, important 1, notified 1", stats)
	}
	if ch.calls != 1 {
		t.Fatalf("channel calls = %d, want 1", ch.calls)
	}
	// Both messages are marked, important or not.
	if !st.processed["m1"] || !st.processed["m2"] {
		t.Fatalf("processed = %v, want both ids marked", st.processed)
	}
}

func TestCycleSkipsAlreadyProcessed(t *testing.T) {
	t.Parallel()
	box := newFakeBox(
		&mailbox.Message{ID: "m1", Sender: "boss@corp.example", Subject: "one", Unread: true},
	)
	st := newMemStore()
	ch := &fakeChannel{}
	l := newTestLoop(t, box, st, ch)

	l.RunCycle(context.Background())
	stats := l.RunCycle(context.Background())

	if stats.Skipped != 1 {
		t.Fatalf("second cycle skipped = %d, want 1", stats.Skipped)
	}
	if box.fetches["m1"] != 1 {
		t.Fatalf("fetches = %d, want 1 (no refetch of processed messages)", box.fetches["m1"])
	}
	if ch.calls != 1 {
		t.Fatalf("channel calls = %d, want 1 (no duplicate notification)", ch.calls)
	}
}

func TestDispatchFailureIsNotRetried(t *testing.T) {
	t.Parallel()
	box := newFakeBox(
		&mailbox.Message{ID: "m1", Sender: "boss@corp.example", Subject: "one", Unread: true},
	)
	st := newMemStore()
	ch := &fakeChannel{err: errors.New("channel down")}
	l := newTestLoop(t, box, st, ch)

	stats := l.RunCycle(context.Background())
	if stats.Failed != 1 || stats.Notified != 0 {
		t.Fatalf("stats = %+v, want failed 1, notified 0", stats)
	}
	if !st.processed["m1"] {
		t.Fatal("failed dispatch must still mark the message processed")
	}

	ch.err = nil
	l.RunCycle(context.Background())
	if ch.calls != 1 {
		t.Fatalf("channel calls = %d, want 1 (one dispatch attempt per message)", ch.calls)
	}
}

func TestUnfetchableMessageIsSkipped(t *testing.T) {
	t.Parallel()
	box := newFakeBox(
		&mailbox.Message{ID: "m1", Sender: "boss@corp.example", Subject: "one", Unread: true},
	)
	box.order = append(box.order, "gone") // listed but Fetch returns (nil, nil)
	st := newMemStore()
	ch := &fakeChannel{}
	l := newTestLoop(t, box, st, ch)

	stats := l.RunCycle(context.Background())
	if stats.Skipped != 1 || stats.Notified != 1 {
		t.Fatalf("stats = %+v, want skipped 1, notified 1", stats)
	}
}

func TestWindowAdvancesEvenOnSearchFailure(t *testing.T) {
	t.Parallel()
	box := newFakeBox()
	box.searchErr = errors.New("upstream down")
	st := newMemStore()
	l := newTestLoop(t, box, st, &fakeChannel{})

	base := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	step := 0
	l.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Minute)
	}

	l.RunCycle(context.Background()) // fails; window still captured
	box.searchErr = nil
	l.RunCycle(context.Background())

	if len(box.queries) != 2 {
		t.Fatalf("queries = %d, want 2", len(box.queries))
	}
	if !box.queries[0].Since.IsZero() {
		t.Fatalf("first query Since = %v, want zero", box.queries[0].Since)
	}
	if box.queries[1].Since.IsZero() {
		t.Fatal("second query Since should be the first cycle's start time")
	}
}
