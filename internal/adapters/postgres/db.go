package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	// Viewport queries are short and bursty; idle connections are cheap to drop.
	maxConnIdleTime   = 5 * time.Minute
	healthCheckPeriod = 30 * time.Second
	slowQuery         = 500 * time.Millisecond
)

// DB wraps the shared pgx pool.
type DB struct {
	Pool *pgxpool.Pool
}

// New opens and pings a pool. maxConns <= 0 keeps the pgx default.
// appName shows up in pg_stat_activity.
func New(ctx context.Context, dsn string, maxConns int32, appName string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.MaxConnIdleTime = maxConnIdleTime
	cfg.HealthCheckPeriod = healthCheckPeriod
	if appName != "" {
		cfg.ConnConfig.RuntimeParams["application_name"] = appName
	}
	cfg.ConnConfig.Tracer = slowQueryTracer{threshold: slowQuery}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &DB{Pool: pool}, nil
}

// Ping checks connectivity for readiness probes.
func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

func (db *DB) Close() {
	db.Pool.Close()
}

type queryStartKey struct{}

type queryStart struct {
	at  time.Time
	sql string
}

// slowQueryTracer logs queries slower than threshold. Canceled queries are
// expected (a newer viewport superseded them) and are not logged.
type slowQueryTracer struct {
	threshold time.Duration
}

func (t slowQueryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryStartKey{}, queryStart{at: time.Now(), sql: data.SQL})
}

func (t slowQueryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	start, ok := ctx.Value(queryStartKey{}).(queryStart)
	if !ok || ctx.Err() != nil {
		return
	}
	if elapsed := time.Since(start.at); elapsed >= t.threshold {
		slog.WarnContext(ctx, "slow query", "duration", elapsed, "sql", start.sql, "error", data.Err)
	}
}
