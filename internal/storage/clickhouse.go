package storage

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

// ClickHouseWriter writes command events to the command_events table.
// Write() is non-blocking; events are batch-inserted in a background goroutine.
type ClickHouseWriter struct {
	*batchWriter
}

// NewClickHouseWriter connects to ClickHouse and starts the flush loop.
// DSNs using the secure native port get TLS.
func NewClickHouseWriter(dsn string, logger *zap.Logger) (*ClickHouseWriter, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}

	if opts.TLS == nil && usesSecurePort(opts.Addr) {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &ClickHouseWriter{
		batchWriter: newBatchWriter("clickhouse", &clickhouseSink{conn: conn, logger: logger}, flushInterval, logger),
	}, nil
}

func usesSecurePort(addrs []string) bool {
	for _, a := range addrs {
		if strings.HasSuffix(a, ":9440") {
			return true
		}
	}
	return false
}

type clickhouseSink struct {
	conn   driver.Conn
	logger *zap.Logger
}

func (s *clickhouseSink) insert(ctx context.Context, events []*CommandEvent) error {
	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO command_events (
			request_id, timestamp, command, collection, record_id,
			outcome, message, latency_ms, source
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range events {
		if err := batch.Append(
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
			s.logger.Error("clickhouse append event failed",
				zap.String("request_id", e.RequestID),
				zap.Error(err),
			)
		}
	}

	return batch.Send()
}

func (s *clickhouseSink) close() error {
	return s.conn.Close()
}
