// Package history tracks each reviewer's recently viewed images.
package history

import "sync"

// MaxEntries caps each reviewer's history; the oldest entries are evicted
// beyond it.
const MaxEntries = 100

// Tracker keeps a most-recent-first view list per reviewer. Re-viewing an
// image moves it to the front rather than duplicating it.
type Tracker struct {
	mu      sync.Mutex
	byUser  map[string][]string
	maxSize int
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		byUser:  make(map[string][]string),
		maxSize: MaxEntries,
	}
}

// Record notes that user viewed key.
func (t *Tracker) Record(user, key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries := t.byUser[user]
	for i, k := range entries {
		if k == key {
			entries = append(entries[:i], entries[i+1:]...)
			break
		}
	}

	entries = append([]string{key}, entries...)
	if len(entries) > t.maxSize {
		entries = entries[:t.maxSize]
	}
	t.byUser[user] = entries
}

// Get returns a copy of user's history, most recent first.
func (t *Tracker) Get(user string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.byUser[user]...)
}

// Index returns the position of key in user's history, or -1.
func (t *Tracker) Index(user, key string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, k := range t.byUser[user] {
		if k == key {
			return i
		}
	}
	return -1
}
