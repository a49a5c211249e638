package storage

import "go.uber.org/zap"

// LogWriter is a fallback EventWriter for local development.
type LogWriter struct {
	logger *zap.Logger
}

// NewLogWriter creates a LogWriter that outputs events to the given logger.
func NewLogWriter(logger *zap.Logger) *LogWriter {
	return &LogWriter{logger: logger}
}

func (w *LogWriter) Write(event *CommandEvent) {
	w.logger.Info("command_event",
		zap.String("request_id", event.RequestID),
		zap.String("command", event.Command),
		zap.String("collection", event.Collection),
		zap.String("record_id", event.RecordID),
		zap.String("outcome", event.Outcome),
		zap.String("message", event.Message),
		zap.Float32("latency_ms", event.LatencyMs),
		zap.String("source", event.Source),
	)
}

func (w *LogWriter) Close() {}
