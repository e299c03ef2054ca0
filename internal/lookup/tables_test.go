package lookup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTables(t *testing.T, locations, names, forayDates string) string {
	t.Helper()
	dir := t.TempDir()
	if locations != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, LocationsFile), []byte(locations), 0o644))
	}
	if names != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, NamesFile), []byte(names), 0o644))
	}
	if forayDates != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, ForayDatesFile), []byte(forayDates), 0o644))
	}
	return dir
}

const (
	testLocations = `[
		{"id": 1, "name": "Stratton Brook State Park, Simsbury, Connecticut, USA"},
		{"id": 2, "name": "Talcott Mountain State Park, Connecticut, USA"}
	]`
	testNames = `[
		{"id": 10, "text_name": "Amanita muscaria", "author": "(L.) Lam."},
		{"id": 11, "text_name": "Boletus edulis"}
	]`
	testForayDates = "location,date\nStratton Brook,2026-09-12\nTalcott Mountain,2026-09-13\n"
)

func TestLoadTables(t *testing.T) {
	dir := writeTables(t, testLocations, testNames, testForayDates)

	tables, err := LoadTables(dir)
	require.NoError(t, err)
	assert.Len(t, tables.locations, 2)
	assert.Len(t, tables.names, 2)
	assert.Len(t, tables.forayDates, 2)
}

func TestLoadTables_EmptyDir(t *testing.T) {
	tables, err := LoadTables("")
	require.NoError(t, err)
	assert.Empty(t, tables.SearchLocations("any", 10))
}

func TestLoadTables_MissingFilesTolerated(t *testing.T) {
	tables, err := LoadTables(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, tables.SearchNames("amanita", 10))
}

func TestLoadTables_BadJSON(t *testing.T) {
	dir := writeTables(t, "{not an array", "", "")
	_, err := LoadTables(dir)
	assert.Error(t, err)
}

func TestSearchLocations(t *testing.T) {
	dir := writeTables(t, testLocations, "", "")
	tables, err := LoadTables(dir)
	require.NoError(t, err)

	got := tables.SearchLocations("stratton", 10)
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].ID)

	// Case folded substring match.
	assert.Len(t, tables.SearchLocations("STATE PARK", 10), 2)
	assert.Len(t, tables.SearchLocations("state park", 1), 1, "limit honored")
	assert.Empty(t, tables.SearchLocations("vermont", 10))
}

func TestSearchNames(t *testing.T) {
	dir := writeTables(t, "", testNames, "")
	tables, err := LoadTables(dir)
	require.NoError(t, err)

	got := tables.SearchNames("AMANITA", 10)
	require.Len(t, got, 1)
	assert.Equal(t, "Amanita muscaria", got[0].TextName)
	assert.Equal(t, "(L.) Lam.", got[0].Author)
}

func TestForayDate(t *testing.T) {
	dir := writeTables(t, "", "", testForayDates)
	tables, err := LoadTables(dir)
	require.NoError(t, err)

	date, ok := tables.ForayDate("Stratton Brook")
	require.True(t, ok)
	assert.Equal(t, "2026-09-12", date)

	// Case-insensitive fallback.
	date, ok = tables.ForayDate("talcott mountain")
	require.True(t, ok)
	assert.Equal(t, "2026-09-13", date)

	_, ok = tables.ForayDate("Mount Greylock")
	assert.False(t, ok)
}

func TestReload_SwapsTables(t *testing.T) {
	dir := writeTables(t, testLocations, "", "")
	tables, err := LoadTables(dir)
	require.NoError(t, err)
	require.Len(t, tables.SearchLocations("state park", 10), 2)

	updated := `[{"id": 3, "name": "Mount Greylock, Massachusetts, USA"}]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, LocationsFile), []byte(updated), 0o644))

	require.NoError(t, tables.Reload())
	assert.Empty(t, tables.SearchLocations("state park", 10))
	assert.Len(t, tables.SearchLocations("greylock", 10), 1)
}

func TestReload_FailureKeepsOldTables(t *testing.T) {
	dir := writeTables(t, testLocations, "", "")
	tables, err := LoadTables(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, LocationsFile), []byte("{broken"), 0o644))

	assert.Error(t, tables.Reload())
	assert.Len(t, tables.SearchLocations("state park", 10), 2, "old data survives a bad reload")
}
