// Package reminder runs the background loop that notifies about tasks one
// hour ahead of time.
//
// Each tick looks at today's tasks in the configured location and fires for
// the tasks at the next hour. A task-hour is marked sent before the send so a
// slow or failing transport never causes a repeat within the same day.
// Nothing fires while the local hour is 23, so a task at hour 0 is never
// reminded.
package reminder

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/jmhodges/clock"
	"github.com/robfig/cron/v3"

	"dayplanner/internal/metrics"
	"dayplanner/internal/taskstore"
	logx "dayplanner/pkg/logx"
)

// TaskSource reads one day of tasks. taskstore.Store implements it.
type TaskSource interface {
	GetDay(date string) taskstore.DayTasks
}

// Notifier delivers one reminder.
type Notifier interface {
	Notify(ctx context.Context, text string, hour int, date string) error
}

type Config struct {
	Interval    time.Duration
	Location    *time.Location
	SendTimeout time.Duration
}

type Scheduler struct {
	log    logx.Logger
	src    TaskSource
	notify Notifier
	clock  clock.Clock
	cfg    Config
	sent   *SentSet

	// tickMu serializes ticks; lastDay is guarded by it.
	tickMu  sync.Mutex
	lastDay string

	mu     sync.Mutex
	c      *cron.Cron
	cancel context.CancelFunc
	// first is closed when the tick Start runs outside cron returns.
	first chan struct{}
}

func New(cfg Config, src TaskSource, n Notifier, clk clock.Clock, log logx.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	if clk == nil {
		clk = clock.New()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scheduler{
		log:    log.With(logx.String("comp", "reminder")),
		src:    src,
		notify: n,
		clock:  clk,
		cfg:    cfg,
		sent:   NewSentSet(),
	}
}

// Sent exposes the dedup set.
func (s *Scheduler) Sent() *SentSet { return s.sent }

// Start schedules Tick every Interval and runs one tick right away.
// Start is idempotent.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	logger := cronLogger{log: s.log}
	s.c = cron.New(
		cron.WithLocation(s.cfg.Location),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	s.c.Schedule(cron.Every(s.cfg.Interval), cron.FuncJob(func() { s.Tick(runCtx) }))
	s.c.Start()
	first := make(chan struct{})
	s.first = first
	go func() {
		defer close(first)
		s.Tick(runCtx)
	}()

	s.log.Info("reminder loop started", logx.Duration("interval", s.cfg.Interval), logx.String("tz", s.cfg.Location.String()))
}

// Stop halts the loop and waits for running ticks, including the one Start
// launched, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	c, cancel, first := s.c, s.cancel, s.first
	s.c, s.cancel, s.first = nil, nil, nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	cancel()
	for _, done := range []<-chan struct{}{c.Stop().Done(), first} {
		select {
		case <-done:
		case <-ctx.Done():
			s.log.Warn("reminder loop stop timed out", logx.Err(ctx.Err()))
			return
		}
	}
	s.log.Info("reminder loop stopped")
}

// Tick performs one pass. Errors and panics are logged and never escape.
func (s *Scheduler) Tick(ctx context.Context) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in reminder tick", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()

	now := s.clock.Now().In(s.cfg.Location)
	today := now.Format(taskstore.DateLayout)
	if today != s.lastDay {
		if n := s.sent.PurgeExcept(today); n > 0 {
			s.log.Debug("purged reminder keys", logx.Int("count", n))
		}
		s.lastDay = today
	}

	target := now.Hour() + 1
	if target > 23 {
		return
	}

	due := dueTasks(s.src.GetDay(today), target)
	for _, t := range due {
		if ctx.Err() != nil {
			return
		}
		if !s.sent.MarkIfUnsent(Key{Date: today, Hour: t.Hour}) {
			continue
		}
		s.send(ctx, t, today)
	}
}

func (s *Scheduler) send(ctx context.Context, t taskstore.Task, date string) {
	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordReminder(false)
			s.log.Error("panic in notifier", logx.String("date", date), logx.Int("hour", t.Hour), logx.Any("panic", r))
		}
	}()

	err := s.notify.Notify(sendCtx, t.Text, t.Hour, date)
	metrics.RecordReminder(err == nil)
	if err != nil {
		s.log.Warn("reminder failed", logx.String("date", date), logx.Int("hour", t.Hour), logx.Err(err))
		return
	}
	s.log.Info("reminder sent", logx.String("date", date), logx.Int("hour", t.Hour))
}

func dueTasks(day taskstore.DayTasks, hour int) []taskstore.Task {
	var out []taskstore.Task
	for _, t := range day {
		if t.Hour == hour {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Text < out[j].Text })
	return out
}

// cronLogger routes cron's internal logging through logx.
type cronLogger struct {
	log logx.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
