// Package claims implements advisory soft locks over review images.
//
// A claim marks an image as being worked on by one reviewer. Claims are
// process-local and deliberately not persisted: they protect against
// concurrent edits, not against restarts. Stale claims age out via the
// heartbeat timeout, and a claim older than the override window may be
// taken over without the holder's cooperation.
package claims

import (
	"sync"
	"time"
)

// Claim records who holds an image and since when.
type Claim struct {
	User      string    `json:"user"`
	ClaimedAt time.Time `json:"claimed_at"`
	Heartbeat time.Time `json:"heartbeat"`
}

// Denied identifies an image that could not be claimed and its holder.
type Denied struct {
	Key    string `json:"filename"`
	Holder string `json:"claimed_by"`
}

// Result reports the outcome of an Acquire call.
type Result struct {
	// Granted is true when the caller now holds the claim.
	Granted bool
	// Refreshed is true when the caller already held the claim and only
	// the heartbeat moved.
	Refreshed bool
	// Holder is the current holder after the call: the caller on success,
	// the blocking reviewer on denial.
	Holder string
	// Displaced names the reviewer whose claim was taken over, if any.
	Displaced string
}

// Manager is the process-wide claim table. All methods are safe for
// concurrent use.
type Manager struct {
	mu       sync.Mutex
	claims   map[string]*Claim
	timeout  time.Duration
	override time.Duration
	now      func() time.Time
}

// NewManager creates a claim table. timeout is how long a claim survives
// without a heartbeat; override is how old a claim must be before another
// reviewer may take it over without force.
func NewManager(timeout, override time.Duration) *Manager {
	return &Manager{
		claims:   make(map[string]*Claim),
		timeout:  timeout,
		override: override,
		now:      time.Now,
	}
}

// Acquire tries to claim key for user. A claim already held by user is
// refreshed. A claim held by someone else is taken over only when force
// is set or the claim is older than the override window; otherwise the
// call is denied and Result.Holder names the blocker.
func (m *Manager) Acquire(key, user string, force bool) Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.purgeExpired(now)

	existing := m.claims[key]
	if existing != nil {
		if existing.User == user {
			existing.Heartbeat = now
			return Result{Granted: true, Refreshed: true, Holder: user}
		}
		if !force && now.Sub(existing.ClaimedAt) <= m.override {
			return Result{Holder: existing.User}
		}
		displaced := existing.User
		m.claims[key] = &Claim{User: user, ClaimedAt: now, Heartbeat: now}
		return Result{Granted: true, Holder: user, Displaced: displaced}
	}

	m.claims[key] = &Claim{User: user, ClaimedAt: now, Heartbeat: now}
	return Result{Granted: true, Holder: user}
}

// AcquireMany claims every key for user, or none of them. All keys are
// checked before anything is written, so a denial leaves the table
// exactly as it was. Keys already held by user are refreshed.
func (m *Manager) AcquireMany(keys []string, user string) []Denied {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.purgeExpired(now)

	var denied []Denied
	for _, key := range keys {
		existing := m.claims[key]
		if existing != nil && existing.User != user && now.Sub(existing.ClaimedAt) <= m.override {
			denied = append(denied, Denied{Key: key, Holder: existing.User})
		}
	}
	if len(denied) > 0 {
		return denied
	}

	for _, key := range keys {
		if existing := m.claims[key]; existing != nil && existing.User == user {
			existing.Heartbeat = now
			continue
		}
		m.claims[key] = &Claim{User: user, ClaimedAt: now, Heartbeat: now}
	}
	return nil
}

// Release drops the claim on key if user holds it. Returns false when the
// claim is absent or held by someone else.
func (m *Manager) Release(key, user string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.claims[key]
	if existing == nil || existing.User != user {
		return false
	}
	delete(m.claims, key)
	return true
}

// Peek returns the live claim on key without touching it.
func (m *Manager) Peek(key string) (Claim, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.purgeExpired(m.now())

	existing := m.claims[key]
	if existing == nil {
		return Claim{}, false
	}
	return *existing, true
}

// Holder returns the user holding key, or "" when unclaimed.
func (m *Manager) Holder(key string) string {
	c, ok := m.Peek(key)
	if !ok {
		return ""
	}
	return c.User
}

// HeldByOther reports whether key is live-claimed by someone other than
// user.
func (m *Manager) HeldByOther(key, user string) bool {
	c, ok := m.Peek(key)
	return ok && c.User != user
}

// purgeExpired drops claims whose heartbeat is older than the timeout.
// Callers must hold m.mu.
func (m *Manager) purgeExpired(now time.Time) {
	for key, c := range m.claims {
		if now.Sub(c.Heartbeat) > m.timeout {
			delete(m.claims, key)
		}
	}
}
