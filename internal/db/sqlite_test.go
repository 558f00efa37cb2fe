package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mauv0809/energy-feeds/internal/models"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, Migrate(context.Background(), s.DB(), StoreSQLite, nil))
	return s
}

func balanceRecords() []models.Record {
	base := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	return []models.Record{
		{Region: models.RegionNorth, Timestamp: base, Values: []float64{1, 2, 3, 4, 5, 6}},
		{Region: models.RegionNorth, Timestamp: base.Add(time.Hour), Values: []float64{1, 2, 3, 4, 5, 6}},
		{Region: models.RegionSouth, Timestamp: base, Values: []float64{7, 8, 9, 10, 11, -12}},
	}
}

func TestSQLiteWriteIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	n, err := s.Write(ctx, models.GenerationBalance, balanceRecords())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = s.Write(ctx, models.GenerationBalance, balanceRecords())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	for _, st := range stats {
		if st.Kind == models.GenerationBalance {
			assert.Equal(t, int64(3), st.Rows)
			assert.Equal(t, "2023-06-01T01:00:00Z", st.Latest)
		} else {
			assert.Zero(t, st.Rows)
		}
	}
}

func TestSQLiteWriteFirstWins(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ts := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	_, err := s.Write(ctx, models.SpotPrice, []models.Record{{Region: models.RegionNortheast, Timestamp: ts, Values: []float64{61.07}}})
	require.NoError(t, err)
	n, err := s.Write(ctx, models.SpotPrice, []models.Record{
		{Region: models.RegionNortheast, Timestamp: ts, Values: []float64{999}},
		{Region: models.RegionSoutheast, Timestamp: ts, Values: []float64{70}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var pld float64
	require.NoError(t, s.DB().QueryRow(`SELECT pld FROM pld_submarket WHERE region_code = 'NE'`).Scan(&pld))
	assert.Equal(t, 61.07, pld)
}

func TestSQLiteWriteEmptyBatch(t *testing.T) {
	s := openTestStore(t)

	n, err := s.Write(context.Background(), models.StoredEnergy, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLiteWriteRejectsWrongShape(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Write(context.Background(), models.StoredEnergy, []models.Record{
		{Region: models.RegionSouth, Timestamp: time.Now(), Values: []float64{1, 2}},
	})
	assert.Error(t, err)
}

func TestMigrateIsRepeatable(t *testing.T) {
	s := openTestStore(t)
	assert.NoError(t, Migrate(context.Background(), s.DB(), StoreSQLite, nil))
	assert.Error(t, Migrate(context.Background(), s.DB(), "oracle", nil))
}

func TestInsertStatement(t *testing.T) {
	dest, _ := models.DestinationFor(models.GenerationBalance)

	got := insertStatement(dest, postgresPlaceholder)
	assert.Equal(t,
		`INSERT INTO "energy_balance" ("region_code", "region_name", "ts", "hydro", "thermal", "wind", "solar", "load", "exchange") `+
			`VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) ON CONFLICT (region_code, ts) DO NOTHING`,
		got)

	dest, _ = models.DestinationFor(models.MarginalCost)
	assert.Equal(t,
		`INSERT INTO "cmo_submarket" ("region_code", "region_name", "ts", "cmo") VALUES (?, ?, ?, ?) ON CONFLICT (region_code, ts) DO NOTHING`,
		insertStatement(dest, sqlitePlaceholder))
}
