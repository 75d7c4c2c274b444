package reminder

import "sync"

// Key identifies one task-hour.
type Key struct {
	Date string
	Hour int
}

// SentSet remembers which task-hours were already reminded. It lives in
// memory only; a restart forgets it.
type SentSet struct {
	mu   sync.Mutex
	keys map[Key]struct{}
}

func NewSentSet() *SentSet {
	return &SentSet{keys: map[Key]struct{}{}}
}

// MarkIfUnsent marks k as sent and reports whether it was unsent before.
func (s *SentSet) MarkIfUnsent(k Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[k]; ok {
		return false
	}
	s.keys[k] = struct{}{}
	return true
}

func (s *SentSet) Has(k Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[k]
	return ok
}

// PurgeExcept drops every key whose date is not date and returns the count.
func (s *SentSet) PurgeExcept(date string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.keys {
		if k.Date != date {
			delete(s.keys, k)
			n++
		}
	}
	return n
}

func (s *SentSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}
