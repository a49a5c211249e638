package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeSink struct {
	mu      sync.Mutex
	batches [][]*CommandEvent
	err     error
	closed  int
	block   chan struct{}
}

func (s *fakeSink) insert(_ context.Context, events []*CommandEvent) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]*CommandEvent, len(events))
	copy(cp, events)
	s.batches = append(s.batches, cp)
	return s.err
}

func (s *fakeSink) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func event(id string) *CommandEvent {
	return &CommandEvent{RequestID: id, Timestamp: time.Now(), Command: "get_record", Outcome: OutcomeOK, Source: "stdio"}
}

func TestBatchWriter_FlushesOnTicker(t *testing.T) {
	sink := &fakeSink{}
	w := newBatchWriter("test", sink, 10*time.Millisecond, zap.NewNop())
	defer w.Close()

	w.Write(event("a"))
	w.Write(event("b"))

	require.Eventually(t, func() bool { return sink.count() == 2 }, time.Second, 5*time.Millisecond)
}

func TestBatchWriter_CloseDrainsAndIsIdempotent(t *testing.T) {
	sink := &fakeSink{}
	w := newBatchWriter("test", sink, time.Hour, zap.NewNop())

	for i := 0; i < 5; i++ {
		w.Write(event("e"))
	}
	w.Close()
	w.Close()

	assert.Equal(t, 5, sink.count())
	assert.Equal(t, 1, sink.closed)
}

func TestBatchWriter_InsertErrorIsLogged(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	sink := &fakeSink{err: errors.New("boom")}
	w := newBatchWriter("test", sink, time.Hour, zap.New(core))

	w.Write(event("a"))
	w.Close()

	require.Equal(t, 1, logs.FilterMessage("test batch insert failed").Len())
}

func TestBatchWriter_WriteNeverBlocks(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	sink := &fakeSink{block: make(chan struct{})}
	w := newBatchWriter("test", sink, time.Millisecond, zap.New(core))

	// The first flush blocks the loop; the buffer then fills and overflows.
	w.Write(event("first"))
	require.Eventually(t, func() bool { return len(w.buffer) == 0 }, time.Second, time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		for i := 0; i < bufferSize+flushBatch+10; i++ {
			w.Write(event("x"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Write blocked on a full buffer")
	}
	assert.Positive(t, logs.FilterMessage("test buffer full, dropping event").Len())

	close(sink.block)
	w.Close()
}

func TestLogWriter(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	w := NewLogWriter(zap.New(core))

	w.Write(&CommandEvent{RequestID: "r1", Command: "delete_record", Collection: "TICKETS", RecordID: "recA", Outcome: "not_found", Source: "http"})
	w.Close()

	entries := logs.FilterMessage("command_event").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "r1", fields["request_id"])
	assert.Equal(t, "not_found", fields["outcome"])
	assert.Equal(t, "recA", fields["record_id"])
}

func TestUsesSecurePort(t *testing.T) {
	assert.True(t, usesSecurePort([]string{"abc.clickhouse.cloud:9440"}))
	assert.False(t, usesSecurePort([]string{"localhost:9000"}))
}
