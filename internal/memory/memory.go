// Package memory provides the engine's bounded working memory: a recency
// log of engine events with strict FIFO eviction once the configured
// capacity is exceeded.
package memory

import (
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// DefaultMaxEntries is the capacity used when none is configured.
const DefaultMaxEntries = 1000

// Entry is a single recorded engine event.
type Entry struct {
	Timestamp  int64           `json:"timestamp"`
	Event      string          `json:"event"`
	Data       json.RawMessage `json:"data"`
	Importance float64         `json:"importance"`
}

// Working is a bounded recency log. All methods are safe for concurrent use.
type Working struct {
	mu         sync.Mutex
	entries    []Entry
	maxEntries int
}

// NewWorking creates a working memory holding at most maxEntries entries.
// A non-positive maxEntries falls back to DefaultMaxEntries.
func NewWorking(maxEntries int) *Working {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Working{maxEntries: maxEntries}
}

// Add appends a timestamped entry, evicting the oldest entries if the
// count exceeds the capacity.
func (w *Working) Add(event string, data any, importance float64) {
	raw, err := json.Marshal(data)
	if err != nil {
		// Best-effort telemetry: an unmarshalable payload degrades to null.
		raw = json.RawMessage("null")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.entries = append(w.entries, Entry{
		Timestamp:  time.Now().Unix(),
		Event:      event,
		Data:       raw,
		Importance: importance,
	})
	if over := len(w.entries) - w.maxEntries; over > 0 {
		w.entries = append(w.entries[:0:0], w.entries[over:]...)
	}
}

// GetRecent returns the n most-recently-added entries, most recent first.
func (w *Working) GetRecent(n int) []Entry {
	w.mu.Lock()
	defer w.mu.Unlock()

	if n > len(w.entries) {
		n = len(w.entries)
	}
	out := make([]Entry, 0, n)
	for i := len(w.entries) - 1; i >= len(w.entries)-n; i-- {
		out = append(out, w.entries[i])
	}
	return out
}

// Search returns all entries whose event name or serialized data contains
// the query substring. Matching is case-sensitive.
func (w *Working) Search(query string) []Entry {
	w.mu.Lock()
	defer w.mu.Unlock()

	var out []Entry
	for _, e := range w.entries {
		if strings.Contains(e.Event, query) || strings.Contains(string(e.Data), query) {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the current entry count.
func (w *Working) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}
