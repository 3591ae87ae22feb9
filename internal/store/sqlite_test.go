package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/marketmap/internal/config"
	"github.com/sells-group/marketmap/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func sampleRows() []model.Demographics {
	return []model.Demographics{
		{
			ZipCode: "10001", City: "New York", State: "New York",
			Latitude: 40.7506, Longitude: -73.9972, HasLocation: true,
			Population: 21102, MedianAge: 36.4, MedianIncome: 96787,
			Shares: map[string]float64{"race_white": 55.2, "age_20s": 21.5},
		},
		{
			ZipCode: "00501", State: "New York", Population: 120,
		},
	}
}

func TestSQLite_ReplaceAndLoad(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	n, err := st.ReplaceDemographics(ctx, Meta{Source: "acs.xlsx", Columns: []string{"zcta", "population"}, Dropped: 3}, sampleRows())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	rows, err := st.LoadDemographics(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "00501", rows[0].ZipCode, "ordered by zip")
	assert.False(t, rows[0].HasLocation)
	assert.Empty(t, rows[0].Shares)

	ny := rows[1]
	assert.True(t, ny.HasLocation)
	assert.InDelta(t, -73.9972, ny.Longitude, 1e-9)
	assert.Equal(t, int64(21102), ny.Population)
	assert.InDelta(t, 55.2, ny.Share("race_white"), 1e-9)
}

func TestSQLite_ReplaceDropsPreviousRows(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.ReplaceDemographics(ctx, Meta{Source: "first"}, sampleRows())
	require.NoError(t, err)

	n, err := st.ReplaceDemographics(ctx, Meta{Source: "second"}, []model.Demographics{{ZipCode: "60601", Population: 5}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rows, err := st.LoadDemographics(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "60601", rows[0].ZipCode)

	meta, err := st.Status(ctx)
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, "second", meta.Source)
	assert.Equal(t, int64(1), meta.Rows)
}

func TestSQLite_GetDemographics(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.ReplaceDemographics(ctx, Meta{Source: "acs"}, sampleRows())
	require.NoError(t, err)

	d, err := st.GetDemographics(ctx, "10001")
	require.NoError(t, err)
	assert.Equal(t, "New York", d.City)
	assert.InDelta(t, 36.4, d.MedianAge, 1e-9)

	_, err = st.GetDemographics(ctx, "99999")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_Status(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	meta, err := st.Status(ctx)
	require.NoError(t, err)
	assert.Nil(t, meta, "nothing imported yet")

	loaded := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	_, err = st.ReplaceDemographics(ctx, Meta{ID: "import-1", Source: "acs.csv", Columns: []string{"zcta"}, Dropped: 2, LoadedAt: loaded}, sampleRows())
	require.NoError(t, err)

	meta, err = st.Status(ctx)
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, "import-1", meta.ID)
	assert.Equal(t, []string{"zcta"}, meta.Columns)
	assert.Equal(t, int64(2), meta.Rows)
	assert.Equal(t, 2, meta.Dropped)
	assert.True(t, loaded.Equal(meta.LoadedAt))
}

func TestSQLite_StatusGeneratesID(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.ReplaceDemographics(ctx, Meta{Source: "acs"}, nil)
	require.NoError(t, err)

	meta, err := st.Status(ctx)
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Len(t, meta.ID, 36)
	assert.False(t, meta.LoadedAt.IsZero())
	assert.Empty(t, meta.Columns)
}

func TestSQLite_CancelledContext(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := st.ReplaceDemographics(ctx, Meta{Source: "acs"}, sampleRows())
	require.Error(t, err)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	st, err := Open(ctx, config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "open.db")})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck

	meta, err := st.Status(ctx)
	require.NoError(t, err)
	assert.Nil(t, meta)

	_, err = Open(ctx, config.StoreConfig{Driver: "mysql", DatabaseURL: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}
