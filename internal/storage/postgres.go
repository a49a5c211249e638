package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

// PostgresWriter writes command events to the command_events table through
// the pgx database/sql driver. Write() is non-blocking.
type PostgresWriter struct {
	*batchWriter
}

// OpenPostgres opens and pings a pooled connection.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS command_events (
	request_id  UUID PRIMARY KEY,
	timestamp   TIMESTAMPTZ NOT NULL,
	command     TEXT NOT NULL,
	collection  TEXT NOT NULL DEFAULT '',
	record_id   TEXT NOT NULL DEFAULT '',
	outcome     TEXT NOT NULL,
	message     TEXT NOT NULL DEFAULT '',
	latency_ms  REAL NOT NULL,
	source      TEXT NOT NULL
)`

// EnsurePostgresSchema creates the command_events table if it is missing.
func EnsurePostgresSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("create command_events: %w", err)
	}
	return nil
}

// NewPostgresWriter starts the flush loop over db. Close() does not close db;
// the owner does.
func NewPostgresWriter(db *sql.DB, logger *zap.Logger) *PostgresWriter {
	return &PostgresWriter{
		batchWriter: newBatchWriter("postgres", &postgresSink{db: db, logger: logger}, flushInterval, logger),
	}
}

type postgresSink struct {
	db     *sql.DB
	logger *zap.Logger
}

func (s *postgresSink) insert(ctx context.Context, events []*CommandEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO command_events (
			request_id, timestamp, command, collection, record_id,
			outcome, message, latency_ms, source
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.ExecContext(ctx,
			e.RequestID,
			e.Timestamp,
			e.Command,
			e.Collection,
			e.RecordID,
			e.Outcome,
			e.Message,
			e.LatencyMs,
			e.Source,
		); err != nil {
			s.logger.Error("postgres insert event failed",
				zap.String("request_id", e.RequestID),
				zap.Error(err),
			)
			return fmt.Errorf("insert: %w", err)
		}
	}

	return tx.Commit()
}

func (s *postgresSink) close() error { return nil }
