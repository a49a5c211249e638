package storage

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	bufferSize    = 10_000
	flushInterval = 100 * time.Millisecond
	flushBatch    = 1000
	drainTimeout  = 2 * time.Second
	insertTimeout = 5 * time.Second
)

// inserter persists one batch. Implementations log their own per-row failures.
type inserter interface {
	insert(ctx context.Context, events []*CommandEvent) error
	close() error
}

// batchWriter buffers events and hands them to an inserter from a single
// background goroutine. Write() is non-blocking and drops the event when the
// buffer is full.
type batchWriter struct {
	name      string
	sink      inserter
	buffer    chan *CommandEvent
	done      chan struct{}
	flushed   chan struct{}
	closeOnce sync.Once
	interval  time.Duration
	logger    *zap.Logger
}

func newBatchWriter(name string, sink inserter, interval time.Duration, logger *zap.Logger) *batchWriter {
	w := &batchWriter{
		name:     name,
		sink:     sink,
		buffer:   make(chan *CommandEvent, bufferSize),
		done:     make(chan struct{}),
		flushed:  make(chan struct{}),
		interval: interval,
		logger:   logger,
	}
	go w.flushLoop()
	return w
}

// Write queues an event for async insertion.
func (w *batchWriter) Write(event *CommandEvent) {
	select {
	case w.buffer <- event:
	default:
		w.logger.Warn(w.name+" buffer full, dropping event",
			zap.String("request_id", event.RequestID),
		)
	}
}

// Close drains buffered events, then releases the sink. Safe to call twice.
func (w *batchWriter) Close() {
	w.closeOnce.Do(func() {
		close(w.done)
		<-w.flushed
		if err := w.sink.close(); err != nil {
			w.logger.Warn(w.name+" close failed", zap.Error(err))
		}
	})
}

func (w *batchWriter) flushLoop() {
	defer close(w.flushed)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	batch := make([]*CommandEvent, 0, flushBatch)

	for {
		select {
		case event := <-w.buffer:
			batch = append(batch, event)
			if len(batch) >= flushBatch {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-w.done:
			drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
		drainLoop:
			for {
				select {
				case event := <-w.buffer:
					batch = append(batch, event)
				case <-drainCtx.Done():
					break drainLoop
				default:
					break drainLoop
				}
			}
			if len(batch) > 0 {
				w.flush(batch)
			}
			return
		}
	}
}

func (w *batchWriter) flush(events []*CommandEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
	defer cancel()

	if err := w.sink.insert(ctx, events); err != nil {
		w.logger.Error(w.name+" batch insert failed",
			zap.Int("batch_size", len(events)),
			zap.Error(err),
		)
	}
}
