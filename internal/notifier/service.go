package notifier

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"dayplanner/internal/storage"
	logx "dayplanner/pkg/logx"
)

var ErrNoSender = errors.New("notifier has no sender")

// Service sends reminders through a Sender.
//
// It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log    logx.Logger
	sender Sender
	store  storage.Store

	cfg     Config
	limiter *rate.Limiter

	// In-memory history, newest last.
	hmu     sync.Mutex
	history []storage.AuditEntry
}

// New creates the service. store may be nil.
func New(cfg Config, sender Sender, store storage.Store, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		sender: sender,
		store:  store,
		log:    log.With(logx.String("comp", "notifier")),
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 100
	}

	s.cfg = cfg
	// Token bucket: burst = rate per sec, so short spikes don't block too hard.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// SenderName reports the active transport.
func (s *Service) SenderName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sender == nil {
		return ""
	}
	return s.sender.Name()
}

// Notify composes and delivers one reminder. The attempt is recorded in the
// history whether or not it succeeds.
func (s *Service) Notify(ctx context.Context, text string, hour int, date string) error {
	msg := Compose(text, hour, date)

	start := time.Now()
	err := s.sendWithRetry(ctx, msg)
	entry := storage.AuditEntry{
		At:     start,
		Date:   date,
		Hour:   hour,
		Text:   text,
		Driver: s.SenderName(),
		OK:     err == nil,
		TookMS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	s.record(ctx, entry)
	return err
}

func (s *Service) sendWithRetry(ctx context.Context, msg Message) error {
	// config snapshot for this send
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	sender := s.sender
	log := s.log
	s.mu.Unlock()

	if sender == nil {
		return ErrNoSender
	}

	maxAttempts := 1 + cfg.RetryMax

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		err := sender.Send(callCtx, msg)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		log.Debug("notify send failed", logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", maxAttempts))

		if attempt >= maxAttempts {
			break
		}

		delay := retryDelay(cfg, attempt)
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return lastErr
		}
	}
	return lastErr
}

func (s *Service) record(ctx context.Context, e storage.AuditEntry) {
	s.mu.Lock()
	keep := s.cfg.HistorySize
	s.mu.Unlock()

	s.hmu.Lock()
	s.history = append(s.history, e)
	if len(s.history) > keep {
		s.history = s.history[len(s.history)-keep:]
	}
	s.hmu.Unlock()

	if s.store == nil {
		return
	}
	// The send context may already be spent; the audit write gets its own budget.
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.store.AppendAudit(actx, e); err != nil {
		s.log.Warn("audit append failed", logx.Err(err))
	}
}

// History returns up to limit delivery attempts, newest first. It reads the
// audit store when configured and the in-memory history otherwise.
func (s *Service) History(ctx context.Context, limit int) ([]storage.AuditEntry, error) {
	if limit <= 0 {
		return []storage.AuditEntry{}, nil
	}
	if s.store != nil {
		out, err := s.store.RecentAudit(ctx, limit)
		if out == nil && err == nil {
			out = []storage.AuditEntry{}
		}
		return out, err
	}

	s.hmu.Lock()
	defer s.hmu.Unlock()
	n := min(limit, len(s.history))
	out := make([]storage.AuditEntry, 0, n)
	for i := len(s.history) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.history[i])
	}
	return out, nil
}

func retryDelay(cfg Config, attempt int) time.Duration {
	// attempt starts at 1 (first attempt), delay is for the NEXT attempt.
	base := cfg.RetryBase
	maxD := cfg.RetryMaxDelay
	// Exponential backoff: base * 2^(attempt-1)
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxD {
			d = maxD
			break
		}
	}
	// Jitter 0.7..1.3
	j := 0.7 + rand.Float64()*0.6
	d = time.Duration(float64(d) * j)
	if d < 0 {
		return 0
	}
	if d > maxD {
		d = maxD
	}
	return d
}
