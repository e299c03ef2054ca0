package lookup

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nemf/photo-review/internal/logger"
)

func newTestService(t *testing.T, withRepo bool) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	dir := writeTables(t, testLocations, testNames, testForayDates)
	tables, err := LoadTables(dir)
	require.NoError(t, err)

	var repo *Repository
	var mock sqlmock.Sqlmock
	if withRepo {
		db, m, err := sqlmock.New()
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		repo = NewRepository(db)
		mock = m
	}
	return NewService(tables, repo, logger.NewNop()), mock
}

func TestService_Locations_TablesFirst(t *testing.T) {
	svc, mock := newTestService(t, true)

	got, err := svc.Locations(context.Background(), "stratton", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)

	// A table hit never touches the database.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_Locations_DBFallback(t *testing.T) {
	svc, mock := newTestService(t, true)

	rows := sqlmock.NewRows([]string{"id", "name"}).
		AddRow(99, "Mount Greylock, Massachusetts, USA")
	mock.ExpectQuery("SELECT id, name").
		WithArgs("%greylock%", 10).
		WillReturnRows(rows)

	got, err := svc.Locations(context.Background(), "greylock", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(99), got[0].ID)
}

func TestService_Locations_DBErrorSwallowed(t *testing.T) {
	svc, mock := newTestService(t, true)

	mock.ExpectQuery("SELECT id, name").
		WillReturnError(errors.New("connection lost"))

	got, err := svc.Locations(context.Background(), "greylock", 10)
	require.NoError(t, err, "a dead mirror degrades to table-only results")
	assert.Empty(t, got)
}

func TestService_Locations_NoRepo(t *testing.T) {
	svc, _ := newTestService(t, false)

	got, err := svc.Locations(context.Background(), "greylock", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestService_Names_DefaultLimit(t *testing.T) {
	svc, _ := newTestService(t, false)

	got, err := svc.Names(context.Background(), "amanita", 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestService_ForayDate(t *testing.T) {
	svc, _ := newTestService(t, false)

	date, ok := svc.ForayDate("Stratton Brook")
	require.True(t, ok)
	assert.Equal(t, "2026-09-12", date)
}

func TestService_FieldSlipCache(t *testing.T) {
	svc, _ := newTestService(t, false)

	_, ok := svc.CachedFieldSlip("NEMF-001")
	assert.False(t, ok)

	svc.StoreFieldSlip("NEMF-001", int64(42))
	v, ok := svc.CachedFieldSlip("NEMF-001")
	require.True(t, ok)
	assert.Equal(t, int64(42), v)

	// A cached nil records a confirmed miss.
	svc.StoreFieldSlip("NEMF-002", nil)
	v, ok = svc.CachedFieldSlip("NEMF-002")
	require.True(t, ok)
	assert.Nil(t, v)

	svc.InvalidateFieldSlip("NEMF-001")
	_, ok = svc.CachedFieldSlip("NEMF-001")
	assert.False(t, ok)
}
