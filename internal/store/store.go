// Package store owns the authoritative review state and its snapshot
// persistence.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/nemf/photo-review/internal/logger"
	"github.com/nemf/photo-review/internal/models"
)

// Metadata describes the snapshot provenance.
type Metadata struct {
	Created        string         `json:"created"`
	Source         string         `json:"source,omitempty"`
	TotalImages    int            `json:"total_images"`
	ImagesDir      string         `json:"images_dir,omitempty"`
	PriorityCounts map[string]int `json:"priority_counts,omitempty"`
	DBLookups      bool           `json:"db_lookups,omitempty"`
}

// Candidate is a lookup candidate kept in the snapshot reference block.
type Candidate struct {
	ID       int64  `json:"id"`
	Name     string `json:"name,omitempty"`
	TextName string `json:"text_name,omitempty"`
	Author   string `json:"author,omitempty"`
}

// LookupEntry is a pre-resolved location or name lookup result.
type LookupEntry struct {
	ID         *int64      `json:"id"`
	Name       string      `json:"name,omitempty"`
	TextName   string      `json:"text_name,omitempty"`
	Author     string      `json:"author,omitempty"`
	Match      string      `json:"match"`
	Candidates []Candidate `json:"candidates,omitempty"`
}

// Reference holds the static lookup tables bundled into the snapshot at
// ingestion time.
type Reference struct {
	EventDates         []string               `json:"nemf_dates,omitempty"`
	LocationLookup     map[string]LookupEntry `json:"location_lookup,omitempty"`
	NameLookup         map[string]LookupEntry `json:"name_lookup,omitempty"`
	LocationPriorities map[string]int         `json:"location_priorities,omitempty"`
}

// Summary is the status breakdown recomputed from the image map on every
// save. It is never trusted incrementally.
type Summary struct {
	Total       int `json:"total"`
	Reviewed    int `json:"reviewed"`
	Approved    int `json:"approved"`
	Corrected   int `json:"corrected"`
	Excluded    int `json:"excluded"`
	AlreadyOnMO int `json:"already_on_mo"`
}

// Snapshot is the full persisted review state.
type Snapshot struct {
	Metadata  Metadata                `json:"metadata"`
	Reference Reference               `json:"reference"`
	Images    map[string]*models.Item `json:"images"`
	Summary   Summary                 `json:"review_summary"`
}

// RecomputeSummary rebuilds the status counts from the image map.
func (s *Snapshot) RecomputeSummary() {
	sum := Summary{Total: len(s.Images)}
	for _, img := range s.Images {
		switch img.Review.Status {
		case models.StatusApproved:
			sum.Approved++
		case models.StatusCorrected:
			sum.Corrected++
		case models.StatusExcluded:
			sum.Excluded++
		case models.StatusAlreadyOnMO:
			sum.AlreadyOnMO++
		case models.StatusUnset:
			continue
		}
		sum.Reviewed++
	}
	s.Summary = sum
}

// AllResolved reports whether every image is resolved.
func (s *Snapshot) AllResolved() bool {
	for _, img := range s.Images {
		if !img.Resolved() {
			return false
		}
	}
	return true
}

// Store serializes all mutations of the review state and rewrites the
// snapshot file after each one. Concurrent finalize/link calls funnel
// through its single lock so no writer's update can be lost to an
// interleaved save.
type Store struct {
	mu   sync.Mutex
	path string
	snap *Snapshot
	log  logger.Logger
}

// Load reads the snapshot at path.
func Load(path string, log logger.Logger) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read review data %s: %w", path, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse review data %s: %w", path, err)
	}
	if snap.Images == nil {
		snap.Images = make(map[string]*models.Item)
	}

	log.Info("Review data loaded",
		logger.String("path", path),
		logger.Int("images", len(snap.Images)),
	)

	return &Store{path: path, snap: &snap, log: log}, nil
}

// New wraps an in-memory snapshot. An empty path disables persistence;
// tests use this.
func New(snap *Snapshot, path string, log logger.Logger) *Store {
	if snap.Images == nil {
		snap.Images = make(map[string]*models.Item)
	}
	return &Store{path: path, snap: snap, log: log}
}

// View runs fn with read access to the snapshot. fn must not retain or
// mutate anything it is given.
func (s *Store) View(fn func(*Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.snap)
}

// Mutate runs fn inside the store's critical section, then recomputes the
// summary and rewrites the snapshot file. If fn returns an error nothing
// is persisted.
func (s *Store) Mutate(fn func(*Snapshot) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := fn(s.snap); err != nil {
		return err
	}

	s.snap.RecomputeSummary()
	if err := s.persistLocked(); err != nil {
		return fmt.Errorf("persist snapshot: %w", err)
	}
	return nil
}

// Get returns a copy of the item for display. The copy shares slice and
// map backing with the stored item and must be treated as read-only.
func (s *Store) Get(key string) (models.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	img, ok := s.snap.Images[key]
	if !ok {
		return models.Item{}, false
	}
	return *img, true
}

// Has reports whether key exists.
func (s *Store) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.snap.Images[key]
	return ok
}

// Summary returns the current status breakdown.
func (s *Store) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.RecomputeSummary()
	return s.snap.Summary
}

// Len returns the number of images.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snap.Images)
}

func (s *Store) persistLocked() error {
	if s.path == "" {
		return nil
	}

	data, err := json.MarshalIndent(s.snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	// Write-then-rename so a crash mid-write cannot truncate the only copy.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename %s: %w", filepath.Base(tmp), err)
	}
	return nil
}
