// Package warehouse owns the DuckDB analytical store: connection lifecycle, the staged MERGE
// upsert used by sync runs, the metrics schema and the queries behind metric computations.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/SomaOhm/Goal-Tracking-App/internal/config"
	"github.com/SomaOhm/Goal-Tracking-App/internal/metrics"
)

// ErrUnavailable is returned while the session circuit breaker is open.
var ErrUnavailable = errors.New("warehouse unavailable")

const breakerName = "warehouse"

// DB is a handle on the warehouse database.
type DB struct {
	db      *sql.DB
	breaker *gobreaker.CircuitBreaker[*sql.Conn]
	logger  zerolog.Logger
}

// Open opens the DuckDB database at cfg.Path, or an in-memory database when the path is empty.
func Open(ctx context.Context, cfg config.WarehouseConfig, logger zerolog.Logger) (*DB, error) {
	db, err := sql.Open("duckdb", dsn(cfg))
	if err != nil {
		return nil, errors.Wrap(err, "open warehouse")
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ping warehouse")
	}
	return newDB(db, logger), nil
}

func newDB(db *sql.DB, logger zerolog.Logger) *DB {
	logger = logger.With().Str("component", "warehouse").Logger()
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	breaker := gobreaker.NewCircuitBreaker[*sql.Conn](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})
	return &DB{db: db, breaker: breaker, logger: logger}
}

func dsn(cfg config.WarehouseConfig) string {
	params := url.Values{}
	if cfg.Threads > 0 {
		params.Set("threads", fmt.Sprint(cfg.Threads))
	}
	if cfg.MaxMemory != "" {
		params.Set("max_memory", cfg.MaxMemory)
	}
	if len(params) == 0 {
		return cfg.Path
	}
	return cfg.Path + "?" + params.Encode()
}

// SQL exposes the underlying pool for read paths that do not need a pinned session.
func (w *DB) SQL() *sql.DB {
	return w.db
}

func (w *DB) Ping(ctx context.Context) error {
	return w.db.PingContext(ctx)
}

func (w *DB) Close() error {
	return w.db.Close()
}

// Session pins one connection for the caller. Staging tables are connection scoped, so a sync
// run keeps one session for all of its tables and must Close it when done.
func (w *DB) Session(ctx context.Context) (*Session, error) {
	conn, err := w.breaker.Execute(func() (*sql.Conn, error) {
		conn, err := w.db.Conn(ctx)
		if err != nil {
			return nil, err
		}
		if err := conn.PingContext(ctx); err != nil {
			_ = conn.Close()
			return nil, err
		}
		return conn, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, errors.Wrap(ErrUnavailable, err.Error())
		}
		return nil, errors.Wrap(err, "acquire warehouse session")
	}
	return &Session{conn: conn, logger: w.logger}, nil
}

// Session is a pinned warehouse connection.
type Session struct {
	conn   *sql.Conn
	logger zerolog.Logger
}

func (s *Session) Close() error {
	return s.conn.Close()
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
