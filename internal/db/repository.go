package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mauv0809/energy-feeds/internal/models"
)

// Connect opens a pgx pool and verifies it with a ping. maxConns bounds the
// pool so each concurrent writer holds its own connection; 0 keeps the default.
func Connect(ctx context.Context, databaseURL string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// Repository writes normalized records into Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Write inserts records into the kind's relation inside one transaction.
// Rows whose (region_code, ts) already exist are skipped. Returns the number
// of rows actually inserted. Any failure rolls back the whole call.
func (r *Repository) Write(ctx context.Context, kind models.Kind, records []models.Record) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	dest, err := destinationFor(kind, records)
	if err != nil {
		return 0, err
	}
	query := insertStatement(dest, postgresPlaceholder)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var inserted int64
	for start := 0; start < len(records); start += writeBatchSize {
		end := min(start+writeBatchSize, len(records))

		batch := &pgx.Batch{}
		for _, rec := range records[start:end] {
			batch.Queue(query, recordArgs(rec)...)
		}
		n, err := sendBatch(ctx, tx, batch)
		if err != nil {
			return 0, fmt.Errorf("writing %s: %w", dest.Table, err)
		}
		inserted += n
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing %s: %w", dest.Table, err)
	}
	return inserted, nil
}

func sendBatch(ctx context.Context, tx pgx.Tx, batch *pgx.Batch) (int64, error) {
	br := tx.SendBatch(ctx, batch)
	defer br.Close()

	var n int64
	for i := 0; i < batch.Len(); i++ {
		tag, err := br.Exec()
		if err != nil {
			return n, err
		}
		n += tag.RowsAffected()
	}
	return n, nil
}

func recordArgs(rec models.Record) []any {
	args := make([]any, 0, 3+len(rec.Values))
	args = append(args, rec.Region.Code, rec.Region.Name, rec.Timestamp.UTC())
	for _, v := range rec.Values {
		args = append(args, v)
	}
	return args
}

// Stats returns the row count and latest timestamp of every relation.
func (r *Repository) Stats(ctx context.Context) ([]TableStats, error) {
	out := make([]TableStats, 0, len(models.Kinds))
	for _, k := range models.Kinds {
		dest, _ := models.DestinationFor(k)
		var (
			count  int64
			latest *time.Time
		)
		q := fmt.Sprintf("SELECT COUNT(*), MAX(ts) FROM %s", quoteIdent(dest.Table))
		if err := r.pool.QueryRow(ctx, q).Scan(&count, &latest); err != nil {
			return nil, fmt.Errorf("querying %s stats: %w", dest.Table, err)
		}
		s := TableStats{Kind: k, Table: dest.Table, Rows: count}
		if latest != nil {
			s.Latest = latest.UTC().Format(time.RFC3339)
		}
		out = append(out, s)
	}
	return out, nil
}

// Ping checks the pool.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
