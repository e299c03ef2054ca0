// Package testhelpers provides shared fixtures for package tests.
package testhelpers

import (
	"github.com/nemf/photo-review/internal/logger"
	"github.com/nemf/photo-review/internal/models"
	"github.com/nemf/photo-review/internal/store"
)

// NewTestLogger returns a logger that discards everything.
func NewTestLogger() logger.Logger {
	return logger.NewNop()
}

// NewStore builds an in-memory store (no persistence) over the given
// items.
func NewStore(items map[string]*models.Item) *store.Store {
	snap := &store.Snapshot{Images: items}
	snap.RecomputeSummary()
	return store.New(snap, "", NewTestLogger())
}

// Item builds a minimal unreviewed item with the given priority tuple.
func Item(filename string, class, tier int, clean bool) *models.Item {
	return &models.Item{
		Source: models.SourceRecord{Filename: filename},
		Priority: models.Priority{
			Class: class,
			Tier:  tier,
			Clean: clean,
		},
	}
}

// ReviewedItem builds an item already carrying a terminal status.
func ReviewedItem(filename string, class, tier int, clean bool, status models.ReviewStatus) *models.Item {
	item := Item(filename, class, tier, clean)
	item.Review.Status = status
	return item
}
