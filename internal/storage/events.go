package storage

import "time"

// EventWriter records dispatched commands.
// Write() must NEVER block the caller.
type EventWriter interface {
	Write(event *CommandEvent)
	Close()
}

// CommandEvent is the audit record of one dispatch. It carries metadata only,
// never record field values.
type CommandEvent struct {
	RequestID  string
	Timestamp  time.Time
	Command    string
	Collection string
	RecordID   string
	Outcome    string // "ok" or the error kind
	Message    string // failure message, empty on success
	LatencyMs  float32
	Source     string // "stdio", "http", "cli"
}

// OutcomeOK marks a successful dispatch.
const OutcomeOK = "ok"
