package reminder

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmhodges/clock"

	"dayplanner/internal/taskstore"
	logx "dayplanner/pkg/logx"
)

type memSource struct {
	mu   sync.Mutex
	days map[string]taskstore.DayTasks
}

func (m *memSource) put(date string, hour int, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.days == nil {
		m.days = map[string]taskstore.DayTasks{}
	}
	d := m.days[date]
	if d == nil {
		d = taskstore.DayTasks{}
		m.days[date] = d
	}
	d[strconv.Itoa(hour)] = taskstore.Task{Text: text, Hour: hour}
}

func (m *memSource) GetDay(date string) taskstore.DayTasks {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.days[date].Clone()
}

type call struct {
	text string
	hour int
	date string
}

type recorder struct {
	mu    sync.Mutex
	calls []call
	err   error
	panic bool
}

func (r *recorder) Notify(_ context.Context, text string, hour int, date string) error {
	r.mu.Lock()
	r.calls = append(r.calls, call{text, hour, date})
	err, p := r.err, r.panic
	r.mu.Unlock()
	if p {
		panic("transport exploded")
	}
	return err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func setup(t *testing.T, at string) (*Scheduler, *memSource, *recorder, clock.FakeClock) {
	t.Helper()
	fc := clock.NewFake()
	ts, err := time.Parse(time.RFC3339, at)
	if err != nil {
		t.Fatal(err)
	}
	fc.Set(ts)
	src := &memSource{}
	rec := &recorder{}
	s := New(Config{Location: time.UTC}, src, rec, fc, logx.Nop())
	return s, src, rec, fc
}

func TestTickFiresOnceAnHourAhead(t *testing.T) {
	s, src, rec, fc := setup(t, "2024-03-10T08:00:00Z")
	src.put("2024-03-10", 9, "dentist")
	src.put("2024-03-10", 10, "later")
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		s.Tick(ctx)
		fc.Add(time.Minute)
	}
	if rec.count() != 1 {
		t.Fatalf("calls during hour 8 = %d, want 1", rec.count())
	}
	got := rec.calls[0]
	if got != (call{"dentist", 9, "2024-03-10"}) {
		t.Fatalf("call = %+v", got)
	}

	// Hour 9: the 10:00 task fires, the 9:00 task stays quiet.
	s.Tick(ctx)
	if rec.count() != 2 || rec.calls[1].hour != 10 {
		t.Fatalf("calls = %+v", rec.calls)
	}
}

func TestTickNoReminderAtHour23(t *testing.T) {
	s, src, rec, _ := setup(t, "2024-03-10T23:30:00Z")
	src.put("2024-03-10", 23, "late")
	src.put("2024-03-11", 0, "midnight")

	s.Tick(context.Background())
	if rec.count() != 0 {
		t.Fatalf("calls = %+v, want none at hour 23", rec.calls)
	}
}

func TestTickFiresAgainNextDay(t *testing.T) {
	s, src, rec, fc := setup(t, "2024-03-10T06:10:00Z")
	src.put("2024-03-10", 7, "run")
	src.put("2024-03-11", 7, "run")
	ctx := context.Background()

	s.Tick(ctx)
	if !s.Sent().Has(Key{Date: "2024-03-10", Hour: 7}) {
		t.Fatal("key not marked")
	}

	fc.Add(24 * time.Hour)
	s.Tick(ctx)
	if rec.count() != 2 || rec.calls[1].date != "2024-03-11" {
		t.Fatalf("calls = %+v", rec.calls)
	}
	if s.Sent().Has(Key{Date: "2024-03-10", Hour: 7}) {
		t.Fatal("previous day key survived the purge")
	}
	if s.Sent().Len() != 1 {
		t.Fatalf("sent set size = %d, want 1", s.Sent().Len())
	}
}

func TestTickFailingNotifierIsMarkedSent(t *testing.T) {
	s, src, rec, _ := setup(t, "2024-03-10T11:05:00Z")
	src.put("2024-03-10", 12, "lunch")
	rec.err = errors.New("smtp down")
	ctx := context.Background()

	s.Tick(ctx)
	s.Tick(ctx)
	if rec.count() != 1 {
		t.Fatalf("calls = %d, want a single attempt", rec.count())
	}
}

func TestTickSurvivesNotifierPanic(t *testing.T) {
	s, src, rec, fc := setup(t, "2024-03-10T11:05:00Z")
	src.put("2024-03-10", 12, "lunch")
	rec.panic = true
	s.Tick(context.Background())

	rec.panic = false
	src.put("2024-03-10", 13, "meeting")
	fc.Add(time.Hour)
	s.Tick(context.Background())
	if rec.count() != 2 || rec.calls[1].text != "meeting" {
		t.Fatalf("calls = %+v", rec.calls)
	}
}

func TestTaskAddedAfterWindowIsSkipped(t *testing.T) {
	s, src, rec, fc := setup(t, "2024-03-10T14:00:00Z")
	s.Tick(context.Background())

	fc.Add(time.Hour) // 15:00, window for 15:00 tasks has passed
	src.put("2024-03-10", 15, "missed")
	s.Tick(context.Background())
	if rec.count() != 0 {
		t.Fatalf("calls = %+v", rec.calls)
	}
}

func TestTickUsesConfiguredLocation(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	fc := clock.NewFake()
	ts, _ := time.Parse(time.RFC3339, "2024-03-10T22:30:00Z") // 00:30 on the 11th locally
	fc.Set(ts)
	src := &memSource{}
	src.put("2024-03-11", 1, "early")
	rec := &recorder{}
	s := New(Config{Location: loc}, src, rec, fc, logx.Nop())

	s.Tick(context.Background())
	if rec.count() != 1 || rec.calls[0].date != "2024-03-11" {
		t.Fatalf("calls = %+v", rec.calls)
	}
}

func TestStartStop(t *testing.T) {
	s, src, rec, _ := setup(t, "2024-03-10T08:00:00Z")
	src.put("2024-03-10", 9, "dentist")

	s.Start(context.Background())
	s.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for rec.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(ctx)
	s.Stop(ctx)

	if rec.count() != 1 {
		t.Fatalf("calls = %d, want the immediate tick to fire once", rec.count())
	}
}

// blockingNotifier holds Notify until its context ends.
type blockingNotifier struct {
	entered  chan struct{}
	returned atomic.Bool
}

func (b *blockingNotifier) Notify(ctx context.Context, _ string, _ int, _ string) error {
	close(b.entered)
	<-ctx.Done()
	time.Sleep(50 * time.Millisecond)
	b.returned.Store(true)
	return ctx.Err()
}

func TestStopWaitsForStartupTick(t *testing.T) {
	fc := clock.NewFake()
	ts, _ := time.Parse(time.RFC3339, "2024-03-10T08:00:00Z")
	fc.Set(ts)
	src := &memSource{}
	src.put("2024-03-10", 9, "dentist")
	bn := &blockingNotifier{entered: make(chan struct{})}
	s := New(Config{Location: time.UTC, Interval: time.Hour}, src, bn, fc, logx.Nop())

	s.Start(context.Background())
	select {
	case <-bn.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("startup tick never reached the notifier")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(ctx)
	if ctx.Err() != nil {
		t.Fatal("Stop ran into its deadline")
	}
	if !bn.returned.Load() {
		t.Fatal("Stop returned while the startup tick was still sending")
	}
}

func TestSentSet(t *testing.T) {
	s := NewSentSet()
	k := Key{Date: "2024-01-01", Hour: 5}
	if !s.MarkIfUnsent(k) || s.MarkIfUnsent(k) {
		t.Fatal("MarkIfUnsent should succeed exactly once")
	}
	s.MarkIfUnsent(Key{Date: "2024-01-02", Hour: 5})
	if n := s.PurgeExcept("2024-01-02"); n != 1 {
		t.Fatalf("purged = %d, want 1", n)
	}
	if s.Has(k) || s.Len() != 1 {
		t.Fatalf("after purge Has=%v Len=%d", s.Has(k), s.Len())
	}
}
