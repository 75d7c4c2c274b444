package taskstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// DateLayout is the key format of the store.
const DateLayout = "2006-01-02"

// ErrInvalidDay is returned by DecodeDay for bodies that are not a valid day map.
var ErrInvalidDay = errors.New("invalid day tasks")

// Task is one hourly entry. Hour is derived from the DayTasks key and is not
// serialized.
type Task struct {
	Text string `json:"text"`
	Hour int    `json:"-"`
}

// DayTasks maps hour-of-day ("0".."23") to the task at that hour.
type DayTasks map[string]Task

// Clone returns a deep copy (Task is a value type, so a map copy is enough).
func (d DayTasks) Clone() DayTasks {
	out := make(DayTasks, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// ValidDate reports whether s is a calendar date in YYYY-MM-DD form.
func ValidDate(s string) bool {
	if len(s) != len(DateLayout) {
		return false
	}
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

// ParseHour parses a DayTasks key.
func ParseHour(key string) (int, error) {
	h, err := strconv.Atoi(key)
	if err != nil {
		return 0, fmt.Errorf("hour %q: %w", key, err)
	}
	if h < 0 || h > 23 {
		return 0, fmt.Errorf("hour %q out of range", key)
	}
	if strconv.Itoa(h) != key {
		return 0, fmt.Errorf("hour %q is not canonical", key)
	}
	return h, nil
}

// DecodeDay parses a client body into DayTasks. It rejects invalid JSON,
// non-object bodies and keys that are not canonical hours 0..23.
// A JSON null or {} decodes to an empty map.
func DecodeDay(b []byte) (DayTasks, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrInvalidDay)
	}
	var raw map[string]Task
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDay, err)
	}
	out := make(DayTasks, len(raw))
	for k, t := range raw {
		h, err := ParseHour(k)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDay, err)
		}
		t.Hour = h
		out[k] = t
	}
	return out, nil
}

// withHours fills Task.Hour from the keys. Keys that fail to parse keep Hour -1
// so callers never match them against a real hour.
func withHours(d DayTasks) DayTasks {
	out := make(DayTasks, len(d))
	for k, t := range d {
		h, err := ParseHour(k)
		if err != nil {
			h = -1
		}
		t.Hour = h
		out[k] = t
	}
	return out
}
