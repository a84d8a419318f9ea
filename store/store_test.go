package store

import (
	"context"
	"testing"

	"github.com/cnosuke/report-scraper/report"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v int64) *int64 { return &v }

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open("mysql", "x")
	assert.True(t, errors.Is(err, ErrUnknownDriver))
}

func TestSQLStore_InsertAndExists(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	exists, err := s.Exists(ctx, "2024-01-06")
	require.NoError(t, err)
	assert.False(t, exists)

	r := report.Report{
		Freehold: &report.FreeholdSales{ActiveListings: ptr(1234), MedianSoldPrice: ptr(720000)},
		Condos:   &report.CondoSales{SoldPrice: ptr(385500)},
		CondoRentals: &report.Rentals{
			RentedProperties: ptr(240),
			MedianDOM:        ptr(14),
		},
	}
	require.NoError(t, s.Insert(ctx, "2024-01-06", r))

	exists, err = s.Exists(ctx, "2024-01-06")
	require.NoError(t, err)
	assert.True(t, exists)

	var active, sold int64
	var conditional *int64
	err = s.DB().QueryRowContext(ctx,
		"SELECT active_listings, median_sold_price, conditional_sales FROM freehold_sales WHERE date = ?", "2024-01-06").
		Scan(&active, &sold, &conditional)
	require.NoError(t, err)
	assert.Equal(t, int64(1234), active)
	assert.Equal(t, int64(720000), sold)
	assert.Nil(t, conditional)

	count := func(table string) int {
		var n int
		require.NoError(t, s.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n))
		return n
	}
	assert.Equal(t, 1, count("condo_sales"))
	assert.Equal(t, 0, count("freehold_rentals"))
	assert.Equal(t, 1, count("condo_rentals"))
}

func TestSQLStore_ExistsWithoutFreehold(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, "2024-02-03", report.Report{
		Condos: &report.CondoSales{ActiveListings: ptr(876)},
	}))

	exists, err := s.Exists(ctx, "2024-02-03")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, s.Insert(ctx, "2024-02-10", report.Report{
		FreeholdRentals: &report.Rentals{MedianDOM: ptr(9)},
	}))
	exists, err = s.Exists(ctx, "2024-02-10")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = s.Exists(ctx, "2024-02-17")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSQLStore_InsertDuplicateRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, "2024-01-13", report.Report{Condos: &report.CondoSales{SoldPrice: ptr(1)}}))

	// The freehold row is new, the condo row collides; neither may persist.
	err := s.Insert(ctx, "2024-01-13", report.Report{
		Freehold: &report.FreeholdSales{ActiveListings: ptr(5)},
		Condos:   &report.CondoSales{SoldPrice: ptr(2)},
	})
	require.Error(t, err)

	exists, err := s.Exists(ctx, "2024-01-13")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSQLStore_InsertEmptyReport(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Insert(context.Background(), "2024-01-20", report.Report{}))

	exists, err := s.Exists(context.Background(), "2024-01-20")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSQLStore_MigrateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Migrate(context.Background()))
}

func TestRebind(t *testing.T) {
	pg := &SQLStore{postgres: true}
	assert.Equal(t, "INSERT INTO t (a, b) VALUES ($1, $2)", pg.rebind("INSERT INTO t (a, b) VALUES (?, ?)"))

	lite := &SQLStore{}
	assert.Equal(t, "SELECT ? FROM t", lite.rebind("SELECT ? FROM t"))
}

func TestIsBusy(t *testing.T) {
	assert.True(t, isBusy(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.False(t, isBusy(errors.New("UNIQUE constraint failed: condo_sales.date")))
}
