package config

import (
	"context"
	"errors"
	"math/rand"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "dayplanner/pkg/logx"
)

const reloadOps = fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove | fsnotify.Chmod

var errWatcherClosed = errors.New("watcher closed")

// watchDir watches dir and calls changed for events naming file. It returns
// when ctx is done (nil) or the watcher breaks. started runs once the
// watcher is live.
//
// The directory is watched rather than the file so atomic-rename saves are seen.
func (m *ConfigManager) watchDir(ctx context.Context, dir, file string, changed, started func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return err
	}
	started()
	if !m.log.IsZero() {
		m.log.Debug("config watcher started", logx.String("dir", dir), logx.String("file", file))
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return errWatcherClosed
			}
			if ev.Op&reloadOps != 0 && strings.EqualFold(filepath.Base(ev.Name), file) {
				changed()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return errWatcherClosed
			}
			if err == nil {
				continue
			}
			msg := strings.ToLower(err.Error())
			switch {
			case errors.Is(err, fsnotify.ErrEventOverflow) || strings.Contains(msg, "overflow"):
				// Events were lost; one reload catches up.
				if !m.log.IsZero() {
					m.log.Warn("config watch overflow; forcing reload", logx.String("dir", dir))
				}
				changed()
			case strings.Contains(msg, "closed"):
				return err
			default:
				if !m.log.IsZero() {
					m.log.Warn("config watch error", logx.String("dir", dir), logx.Err(err))
				}
			}
		}
	}
}

// debouncer runs fn once, delay after the last trigger.
type debouncer struct {
	delay time.Duration
	fn    func()

	mu    sync.Mutex
	timer *time.Timer
}

func newDebouncer(delay time.Duration, fn func()) *debouncer {
	return &debouncer{delay: delay, fn: fn}
}

func (d *debouncer) trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fn)
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
}

// restartBackoff doubles from lo to hi with up to 50% jitter.
type restartBackoff struct {
	lo, hi, cur time.Duration
	rng         *rand.Rand
}

func newRestartBackoff(lo, hi time.Duration) *restartBackoff {
	return &restartBackoff{lo: lo, hi: hi, cur: lo, rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (b *restartBackoff) next() time.Duration {
	wait := b.cur + time.Duration(b.rng.Int63n(int64(b.cur/2)+1))
	b.cur = min(b.cur*2, b.hi)
	return wait
}

func (b *restartBackoff) reset() { b.cur = b.lo }
