package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"nftcred/internal/observability"
)

// Pool wraps pgxpool.Pool for dependency injection.
type Pool struct {
	*pgxpool.Pool
}

// NewPool creates a new Postgres connection pool.
func NewPool(ctx context.Context, dsn string) (*Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() {
	p.Pool.Close()
}

// Exec runs a statement and records its duration and outcome.
func (p *Pool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	start := time.Now()
	tag, err := p.Pool.Exec(ctx, sql, args...)
	observability.RecordDBQuery("postgres", queryOp(sql), time.Since(start).Seconds(), err)
	return tag, err
}

// Query runs a query and records its duration and outcome.
func (p *Pool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	start := time.Now()
	rows, err := p.Pool.Query(ctx, sql, args...)
	observability.RecordDBQuery("postgres", queryOp(sql), time.Since(start).Seconds(), err)
	return rows, err
}

// QueryRow runs a single-row query. The duration is recorded when the
// caller scans the row, since pgx defers execution until then. A miss
// (pgx.ErrNoRows) counts as a lookup, not a query error.
func (p *Pool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return &timedRow{
		row:   p.Pool.QueryRow(ctx, sql, args...),
		op:    queryOp(sql),
		start: time.Now(),
	}
}

type timedRow struct {
	row   pgx.Row
	op    string
	start time.Time
}

func (r *timedRow) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	recorded := err
	if errors.Is(err, pgx.ErrNoRows) {
		recorded = nil
	}
	observability.RecordDBQuery("postgres", r.op, time.Since(r.start).Seconds(), recorded)
	return err
}

// queryOp extracts the leading SQL keyword for metric labels.
func queryOp(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "unknown"
	}
	return strings.ToLower(fields[0])
}

// PostgreSQL error codes.
const (
	pgErrUniqueViolation = "23505" // unique_violation
)

// isDuplicateKeyError checks if error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgErrUniqueViolation
	}

	return false
}

// isNotFoundError checks if error indicates no rows found.
func isNotFoundError(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
