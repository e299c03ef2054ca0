// Package lookup serves location and taxon name autocomplete, from JSON
// tables exported next to the review data and optionally from a MySQL
// mirror of the Mushroom Observer database.
package lookup

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/nemf/photo-review/internal/models"
)

// Table file names expected under the lookup directory.
const (
	LocationsFile  = "locations.json"
	NamesFile      = "names.json"
	ForayDatesFile = "foray_dates.csv"
)

// Tables holds the in-memory autocomplete tables. Reload swaps them
// atomically, so readers never see a half-loaded state.
type Tables struct {
	mu         sync.RWMutex
	dir        string
	locations  []models.LocationRef
	names      []models.NameRef
	forayDates map[string]string
}

// LoadTables reads the JSON tables and foray date CSV under dir. Missing
// files leave their table empty; the service can run on DB lookups alone.
func LoadTables(dir string) (*Tables, error) {
	t := &Tables{dir: dir}
	if dir == "" {
		return t, nil
	}
	if err := t.Reload(); err != nil {
		return nil, err
	}
	return t, nil
}

// Reload re-reads all table files from disk.
func (t *Tables) Reload() error {
	locations, err := loadJSON[models.LocationRef](filepath.Join(t.dir, LocationsFile))
	if err != nil {
		return err
	}
	names, err := loadJSON[models.NameRef](filepath.Join(t.dir, NamesFile))
	if err != nil {
		return err
	}
	dates, err := loadForayDates(filepath.Join(t.dir, ForayDatesFile))
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.locations = locations
	t.names = names
	t.forayDates = dates
	t.mu.Unlock()
	return nil
}

// SearchLocations returns locations whose name contains q, case folded,
// up to limit.
func (t *Tables) SearchLocations(q string, limit int) []models.LocationRef {
	t.mu.RLock()
	defer t.mu.RUnlock()

	q = strings.ToLower(q)
	var out []models.LocationRef
	for _, loc := range t.locations {
		if strings.Contains(strings.ToLower(loc.Name), q) {
			out = append(out, loc)
			if len(out) == limit {
				break
			}
		}
	}
	return out
}

// SearchNames returns taxon names whose text name contains q, case
// folded, up to limit.
func (t *Tables) SearchNames(q string, limit int) []models.NameRef {
	t.mu.RLock()
	defer t.mu.RUnlock()

	q = strings.ToLower(q)
	var out []models.NameRef
	for _, n := range t.names {
		if strings.Contains(strings.ToLower(n.TextName), q) {
			out = append(out, n)
			if len(out) == limit {
				break
			}
		}
	}
	return out
}

// ForayDate returns the event date for a foray location, trying an exact
// match before a case-insensitive one.
func (t *Tables) ForayDate(location string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if date, ok := t.forayDates[location]; ok {
		return date, true
	}
	for loc, date := range t.forayDates {
		if strings.EqualFold(loc, location) {
			return date, true
		}
	}
	return "", false
}

func loadJSON[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read lookup table %s: %w", path, err)
	}

	var entries []T
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse lookup table %s: %w", path, err)
	}
	return entries, nil
}

// loadForayDates reads a two-column location,date CSV. A header row is
// skipped.
func loadForayDates(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read foray dates %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = 2
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse foray dates %s: %w", path, err)
	}

	dates := make(map[string]string, len(rows))
	for _, row := range rows {
		if row[0] == "" || strings.EqualFold(row[0], "location") {
			continue
		}
		dates[row[0]] = row[1]
	}
	return dates, nil
}
