package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mauv0809/energy-feeds/internal/models"
)

// sqliteTimeLayout is how timestamps are stored; it sorts lexically.
const sqliteTimeLayout = "2006-01-02 15:04:05"

// SQLiteStore is the embedded destination, used locally and in tests.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens path (":memory:" allowed) on a single connection.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// DB exposes the handle for migrations.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

// Close releases the database.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks the connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Write has the same contract as Repository.Write.
func (s *SQLiteStore) Write(ctx context.Context, kind models.Kind, records []models.Record) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	dest, err := destinationFor(kind, records)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertStatement(dest, sqlitePlaceholder))
	if err != nil {
		return 0, fmt.Errorf("preparing %s insert: %w", dest.Table, err)
	}
	defer stmt.Close()

	var inserted int64
	for _, rec := range records {
		args := recordArgs(rec)
		args[2] = rec.Timestamp.UTC().Format(sqliteTimeLayout)
		res, err := stmt.ExecContext(ctx, args...)
		if err != nil {
			return 0, fmt.Errorf("writing %s: %w", dest.Table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing %s: %w", dest.Table, err)
	}
	return inserted, nil
}

// Stats returns the row count and latest timestamp of every relation.
func (s *SQLiteStore) Stats(ctx context.Context) ([]TableStats, error) {
	out := make([]TableStats, 0, len(models.Kinds))
	for _, k := range models.Kinds {
		dest, _ := models.DestinationFor(k)
		var (
			count  int64
			latest sql.NullString
		)
		q := fmt.Sprintf("SELECT COUNT(*), MAX(ts) FROM %s", quoteIdent(dest.Table))
		if err := s.db.QueryRowContext(ctx, q).Scan(&count, &latest); err != nil {
			return nil, fmt.Errorf("querying %s stats: %w", dest.Table, err)
		}
		st := TableStats{Kind: k, Table: dest.Table, Rows: count}
		if latest.Valid {
			if t, err := time.Parse(sqliteTimeLayout, latest.String); err == nil {
				st.Latest = t.Format(time.RFC3339)
			}
		}
		out = append(out, st)
	}
	return out, nil
}
