// Package store persists parsed weekly reports.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cnosuke/report-scraper/report"
	"github.com/cockroachdb/errors"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// ErrUnknownDriver is returned by Open for an unsupported driver name.
var ErrUnknownDriver = errors.New("unknown database driver")

// Sink receives parsed reports keyed by their post date.
type Sink interface {
	// Exists reports whether the date was already stored.
	Exists(ctx context.Context, date string) (bool, error)
	// Insert stores every present section of r in one transaction.
	Insert(ctx context.Context, date string, r report.Report) error
}

// SQLStore - Sink backed by SQLite or PostgreSQL
type SQLStore struct {
	db       *sql.DB
	postgres bool

	// newBackOff bounds the retries of a busy database.
	newBackOff func() backoff.BackOff
}

var _ Sink = (*SQLStore)(nil)

// Open connects to the database. driver is "sqlite" or "postgres".
func Open(driver, dsn string) (*SQLStore, error) {
	var name string
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		name = "sqlite"
	case "postgres", "postgresql", "pgx":
		name = "pgx"
	default:
		return nil, errors.Wrapf(ErrUnknownDriver, "%q", driver)
	}

	zap.S().Infow("opening database", "driver", name)
	db, err := sql.Open(name, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	if name == "sqlite" {
		// One connection keeps in-memory databases shared and serialises writers.
		db.SetMaxOpenConns(1)
	}

	return &SQLStore{
		db:       db,
		postgres: name == "pgx",
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 100 * time.Millisecond
			b.MaxElapsedTime = 10 * time.Second
			return b
		},
	}, nil
}

// DB exposes the underlying handle.
func (s *SQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *SQLStore) Close() error { return s.db.Close() }

var tables = []struct {
	name    string
	columns []string
}{
	{"freehold_sales", []string{"active_listings", "conditional_sales", "sold_properties", "median_list_price", "median_sold_price", "median_dom"}},
	{"condo_sales", []string{"active_listings", "conditional_sales", "sold_properties", "median_list_price", "sold_price", "median_dom"}},
	{"freehold_rentals", []string{"active_listings", "rented_properties", "median_list_price", "median_rented_price", "median_dom"}},
	{"condo_rentals", []string{"active_listings", "rented_properties", "median_list_price", "median_rented_price", "median_dom"}},
}

// Migrate creates the report tables when missing.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, t := range tables {
		cols := make([]string, 0, len(t.columns)+2)
		cols = append(cols, "date TEXT PRIMARY KEY")
		for _, c := range t.columns {
			cols = append(cols, c+" BIGINT")
		}
		cols = append(cols, "created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP")

		stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", t.name, strings.Join(cols, ", "))
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "failed to create table %s", t.name)
		}
	}
	zap.S().Debugw("database schema ready", "tables", len(tables))
	return nil
}

// Exists reports whether any section table holds a row for date.
func (s *SQLStore) Exists(ctx context.Context, date string) (bool, error) {
	counts := make([]string, len(tables))
	args := make([]any, len(tables))
	for i, t := range tables {
		counts[i] = fmt.Sprintf("(SELECT COUNT(*) FROM %s WHERE date = ?)", t.name)
		args[i] = date
	}
	query := "SELECT " + strings.Join(counts, " + ")

	var n int
	err := s.db.QueryRowContext(ctx, s.rebind(query), args...).Scan(&n)
	if err != nil {
		return false, errors.Wrapf(err, "failed to look up report %s", date)
	}
	return n > 0, nil
}

func (s *SQLStore) Insert(ctx context.Context, date string, r report.Report) error {
	rows := sectionRows(r)
	if len(rows) == 0 {
		return nil
	}

	op := func() error {
		err := s.insertTx(ctx, date, rows)
		if err != nil && !isBusy(err) {
			return backoff.Permanent(err)
		}
		if err != nil {
			zap.S().Warnw("database busy, retrying insert", "date", date, "error", err)
		}
		return err
	}
	if err := backoff.Retry(op, backoff.WithContext(s.newBackOff(), ctx)); err != nil {
		return errors.Wrapf(err, "failed to insert report %s", date)
	}

	zap.S().Infow("inserted report", "date", date, "sections", len(rows))
	return nil
}

type row struct {
	table  string
	values []any
}

func (s *SQLStore) insertTx(ctx context.Context, date string, rows []row) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	for _, r := range rows {
		cols := columnsOf(r.table)
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)+1), ", ")
		stmt := fmt.Sprintf("INSERT INTO %s (date, %s) VALUES (%s)", r.table, strings.Join(cols, ", "), placeholders)
		args := append([]any{date}, r.values...)
		if _, err := tx.ExecContext(ctx, s.rebind(stmt), args...); err != nil {
			return errors.Wrapf(err, "failed to insert into %s", r.table)
		}
	}
	return errors.Wrap(tx.Commit(), "failed to commit")
}

func sectionRows(r report.Report) []row {
	var rows []row
	if f := r.Freehold; f != nil {
		rows = append(rows, row{"freehold_sales", values(f.ActiveListings, f.ConditionalSales, f.SoldProperties, f.MedianListPrice, f.MedianSoldPrice, f.MedianDOM)})
	}
	if c := r.Condos; c != nil {
		rows = append(rows, row{"condo_sales", values(c.ActiveListings, c.ConditionalSales, c.SoldProperties, c.MedianListPrice, c.SoldPrice, c.MedianDOM)})
	}
	if fr := r.FreeholdRentals; fr != nil {
		rows = append(rows, row{"freehold_rentals", values(fr.ActiveListings, fr.RentedProperties, fr.MedianListPrice, fr.MedianRentedPrice, fr.MedianDOM)})
	}
	if cr := r.CondoRentals; cr != nil {
		rows = append(rows, row{"condo_rentals", values(cr.ActiveListings, cr.RentedProperties, cr.MedianListPrice, cr.MedianRentedPrice, cr.MedianDOM)})
	}
	return rows
}

func values(ps ...*int64) []any {
	out := make([]any, len(ps))
	for i, p := range ps {
		if p != nil {
			out[i] = *p
		}
	}
	return out
}

func columnsOf(table string) []string {
	for _, t := range tables {
		if t.name == table {
			return t.columns
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $N for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
