// Package navigation answers "where am I" and "what next" questions over
// the review queue.
package navigation

import (
	"sort"

	"github.com/nemf/photo-review/internal/claims"
	"github.com/nemf/photo-review/internal/history"
	"github.com/nemf/photo-review/internal/models"
	"github.com/nemf/photo-review/internal/store"
)

// Context is the prev/next position of an image in canonical order.
type Context struct {
	CurrentIndex int    `json:"current_index"`
	Total        int    `json:"total"`
	Prev         string `json:"prev,omitempty"`
	Next         string `json:"next,omitempty"`
}

// Mode says which strategy produced a "next unreviewed" suggestion.
type Mode string

const (
	// ModeHistory resumes the reviewer's own trail.
	ModeHistory Mode = "history"
	// ModePriority jumps to the best item in canonical order.
	ModePriority Mode = "priority"
)

// Engine composes the store, claim table and view history into navigation
// queries. It holds no state of its own.
type Engine struct {
	store   *store.Store
	claims  *claims.Manager
	history *history.Tracker
}

// NewEngine creates a navigation engine over the given collaborators.
func NewEngine(st *store.Store, cm *claims.Manager, vh *history.Tracker) *Engine {
	return &Engine{store: st, claims: cm, history: vh}
}

// SortedKeys returns every image key in canonical order: ascending by
// priority tuple, with the key itself as the deterministic tie-break.
func (e *Engine) SortedKeys() []string {
	var keys []string
	prios := make(map[string]models.Priority)
	e.store.View(func(s *store.Snapshot) {
		keys = make([]string, 0, len(s.Images))
		for k, img := range s.Images {
			keys = append(keys, k)
			prios[k] = img.Priority
		}
	})

	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if c := prios[a].Compare(prios[b]); c != 0 {
			return c < 0
		}
		return a < b
	})
	return keys
}

// Adjacent returns the canonical-order position and neighbors of key. An
// unknown key reports index 0.
func (e *Engine) Adjacent(key string) Context {
	keys := e.SortedKeys()

	idx := 0
	for i, k := range keys {
		if k == key {
			idx = i
			break
		}
	}

	ctx := Context{CurrentIndex: idx, Total: len(keys)}
	if idx > 0 {
		ctx.Prev = keys[idx-1]
	}
	if idx < len(keys)-1 {
		ctx.Next = keys[idx+1]
	}
	return ctx
}

// NextUnresolved finds the first image after current (wrapping past the
// end of canonical order) that is unresolved and not live-claimed by
// another reviewer. current itself and every key in exclude are skipped.
// Returns "" when nothing qualifies.
func (e *Engine) NextUnresolved(user, current string, exclude map[string]bool) string {
	keys := e.SortedKeys()

	start := 0
	if current != "" {
		for i, k := range keys {
			if k == current {
				start = i + 1
				break
			}
		}
	}

	search := append(append([]string(nil), keys[start:]...), keys[:start]...)

	resolved := make(map[string]bool, len(search))
	e.store.View(func(s *store.Snapshot) {
		for _, k := range search {
			if img, ok := s.Images[k]; ok {
				resolved[k] = img.Resolved()
			}
		}
	})

	for _, k := range search {
		if k == current || exclude[k] {
			continue
		}
		if resolved[k] {
			continue
		}
		if e.claims.HeldByOther(k, user) {
			continue
		}
		return k
	}
	return ""
}

// NextUnresolvedViaHistory walks user's view history from current toward
// the most recent entry and returns the first unresolved image, or "".
func (e *Engine) NextUnresolvedViaHistory(user, current string) string {
	entries := e.history.Get(user)

	idx := -1
	for i, k := range entries {
		if k == current {
			idx = i
			break
		}
	}
	if idx <= 0 {
		return ""
	}

	var found string
	e.store.View(func(s *store.Snapshot) {
		for i := idx - 1; i >= 0; i-- {
			img, ok := s.Images[entries[i]]
			if ok && !img.Resolved() {
				found = entries[i]
				return
			}
		}
	})
	return found
}

// NextForUser applies the combined policy: resume the reviewer's own
// trail when it still holds unresolved work, otherwise fall back to
// canonical priority order.
func (e *Engine) NextForUser(user, current string) (string, Mode) {
	if next := e.NextUnresolvedViaHistory(user, current); next != "" {
		return next, ModeHistory
	}
	return e.NextUnresolved(user, current, nil), ModePriority
}
