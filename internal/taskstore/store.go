// Package taskstore persists the calendar: a JSON file mapping dates to the
// day's hourly tasks, capped in total size by evicting the oldest dates.
package taskstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"dayplanner/internal/metrics"
	logx "dayplanner/pkg/logx"
)

// DefaultMaxBytes is the serialized size cap used when Config.MaxBytes is 0.
const DefaultMaxBytes = int64(500 * 1024 * 1024)

type Config struct {
	Path     string
	MaxBytes int64
}

// Store is the bounded, file-backed task store.
//
// Every operation runs under one mutex covering load-modify-evict-persist.
// Writes are staged on a copy and swapped in only after the file rename
// succeeds, so a failed write leaves the committed state untouched.
type Store struct {
	log logx.Logger

	mu       sync.Mutex
	path     string
	maxBytes int64
	days     map[string]DayTasks
	size     int
}

// Open loads the store file. A missing, unreadable or corrupt file yields an
// empty store; only an unusable directory is an error.
func Open(cfg Config, log logx.Logger) (*Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("store path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("store dir: %w", err)
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	s := &Store{log: log, path: path, maxBytes: maxBytes}
	s.days = s.load()
	if b, err := encode(s.days); err == nil {
		s.size = len(b)
	}
	metrics.StoreSizeBytes.Set(float64(s.size))
	log.Info("task store opened", logx.String("path", path), logx.Int("dates", len(s.days)), logx.Int64("max_bytes", maxBytes))
	return s, nil
}

func (s *Store) load() map[string]DayTasks {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("task store unreadable; starting empty", logx.String("path", s.path), logx.Err(err))
		}
		return map[string]DayTasks{}
	}
	var days map[string]DayTasks
	if err := json.Unmarshal(b, &days); err != nil {
		s.log.Warn("task store corrupt; starting empty", logx.String("path", s.path), logx.Err(err))
		return map[string]DayTasks{}
	}
	if days == nil {
		days = map[string]DayTasks{}
	}
	// Empty days never persist; drop any left by hand edits.
	for d, t := range days {
		if len(t) == 0 {
			delete(days, d)
		}
	}
	return days
}

// GetDay returns a copy of the date's tasks, or an empty map.
func (s *Store) GetDay(date string) DayTasks {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.days[date]
	if !ok {
		return DayTasks{}
	}
	return withHours(d)
}

// PutDay replaces the date's tasks. Empty tasks delete the date.
// The cap is enforced before the file is written, which may evict other,
// older dates.
func (s *Store) PutDay(date string, tasks DayTasks) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]DayTasks, len(s.days)+1)
	for d, t := range s.days {
		next[d] = t
	}
	if len(tasks) == 0 {
		delete(next, date)
	} else {
		next[date] = tasks.Clone()
	}

	content, evicted, err := enforceCap(next, s.maxBytes)
	if err != nil {
		metrics.StoreWritesTotal.WithLabelValues("error").Inc()
		return err
	}
	for _, d := range evicted {
		s.log.Warn("dropped date to stay under storage cap", logx.String("date", d), logx.Int64("max_bytes", s.maxBytes))
	}

	if err := writeAtomic(s.path, content); err != nil {
		metrics.StoreWritesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("persist tasks: %w", err)
	}

	s.days = next
	s.size = len(content)
	metrics.StoreWritesTotal.WithLabelValues("ok").Inc()
	metrics.StoreEvictionsTotal.Add(float64(len(evicted)))
	metrics.StoreSizeBytes.Set(float64(s.size))
	return nil
}

// Dates lists stored dates in ascending order.
func (s *Store) Dates() []string {
	s.mu.Lock()
	out := make([]string, 0, len(s.days))
	for d := range s.days {
		out = append(out, d)
	}
	s.mu.Unlock()
	sort.Strings(out)
	return out
}

// Size returns the serialized size of the last committed state.
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// enforceCap drops the smallest date key until the serialized form fits.
// It mutates days and returns the final encoding plus the evicted dates in
// eviction order.
func enforceCap(days map[string]DayTasks, maxBytes int64) ([]byte, []string, error) {
	content, err := encode(days)
	if err != nil {
		return nil, nil, err
	}
	var evicted []string
	for int64(len(content)) > maxBytes && len(days) > 0 {
		oldest := ""
		for d := range days {
			if oldest == "" || d < oldest {
				oldest = d
			}
		}
		delete(days, oldest)
		evicted = append(evicted, oldest)
		if content, err = encode(days); err != nil {
			return nil, nil, err
		}
	}
	return content, evicted, nil
}

// encode writes task text verbatim; the default HTML escaping would turn
// "&" and "<" into \u0026 and \u003c in a file people read by hand.
func encode(days map[string]DayTasks) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(days); err != nil {
		return nil, fmt.Errorf("encode tasks: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// writeAtomic writes to a sibling temp file, syncs it and renames it over path.
func writeAtomic(path string, content []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
