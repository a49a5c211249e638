// Package dispatch runs a named command end to end: validate, resolve the
// collection, call the remote gateway, and render text for the host.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/triage-ai/palisade/services/record_gateway/internal/command"
	apperrors "github.com/triage-ai/palisade/services/record_gateway/internal/errors"
	"github.com/triage-ai/palisade/services/record_gateway/internal/registry"
	"github.com/triage-ai/palisade/services/record_gateway/internal/remote"
	"github.com/triage-ai/palisade/services/record_gateway/internal/storage"
	"go.uber.org/zap"
)

// Gateway is the remote record API. *remote.Gateway satisfies it.
type Gateway interface {
	List(ctx context.Context, collectionID, view string, maxRecords int) ([]remote.Record, error)
	Search(ctx context.Context, collectionID, filter string, maxRecords int) ([]remote.Record, error)
	Get(ctx context.Context, collectionID, recordID string) (*remote.Record, error)
	Create(ctx context.Context, collectionID string, fields map[string]any) (*remote.Record, error)
	Update(ctx context.Context, collectionID, recordID string, fields map[string]any) (*remote.Record, error)
	Remove(ctx context.Context, collectionID, recordID string) (*remote.Deleted, error)
}

// Validator turns raw arguments into a command. *command.Validator satisfies it.
type Validator interface {
	Validate(name string, args map[string]any) (command.Command, error)
}

// Observer is told about every dispatch. *metrics.Metrics satisfies it.
type Observer interface {
	ObserveCommand(command, outcome string, d time.Duration)
}

// Config wires a Dispatcher. Writer, Observer and Logger are optional.
type Config struct {
	Validator   Validator
	Collections *registry.Collections
	Gateway     Gateway
	Writer      storage.EventWriter
	Observer    Observer
	Logger      *zap.Logger
}

// Result is what the host sees. Kind is empty on success.
type Result struct {
	Text   string
	Failed bool
	Kind   apperrors.Kind
}

// Dispatcher is the single point where every failure is caught and turned
// into text. It is safe for concurrent use.
type Dispatcher struct {
	validator   Validator
	collections *registry.Collections
	gateway     Gateway
	writer      storage.EventWriter
	observer    Observer
	logger      *zap.Logger
}

// New validates cfg and builds a Dispatcher.
func New(cfg Config) (*Dispatcher, error) {
	if cfg.Validator == nil {
		return nil, errors.New("dispatcher requires a validator")
	}
	if cfg.Gateway == nil {
		return nil, errors.New("dispatcher requires a gateway")
	}
	collections := cfg.Collections
	if collections == nil {
		collections = registry.DefaultCollections()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		validator:   cfg.Validator,
		collections: collections,
		gateway:     cfg.Gateway,
		writer:      cfg.Writer,
		observer:    cfg.Observer,
		logger:      logger,
	}, nil
}

// Dispatch runs the named command. It never panics and never returns an
// error; failures are reported through Result.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args map[string]any) (res Result) {
	start := time.Now()
	requestID := uuid.NewString()
	var cmd command.Command

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("dispatch panic",
				zap.String("request_id", requestID),
				zap.String("command", name),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			res = failure(apperrors.New(apperrors.KindInternal, "internal error"))
		}
		d.safeRecord(ctx, requestID, name, cmd, res, time.Since(start))
	}()

	var err error
	cmd, err = d.validator.Validate(name, args)
	if err != nil {
		return failure(err)
	}

	text, err := d.execute(ctx, cmd)
	if err != nil {
		return failure(err)
	}
	return Result{Text: text}
}

func (d *Dispatcher) execute(ctx context.Context, cmd command.Command) (string, error) {
	collectionID, ok := d.collections.Resolve(cmd.Collection())
	if !ok {
		return "", apperrors.Validation("unknown table %q", cmd.Collection())
	}

	switch c := cmd.(type) {
	case command.ListCommand:
		records, err := d.gateway.List(ctx, collectionID, c.View, c.MaxRecords)
		if err != nil {
			return "", err
		}
		return formatRecords(records), nil

	case command.GetCommand:
		record, err := d.gateway.Get(ctx, collectionID, c.RecordID)
		if err != nil {
			return "", err
		}
		return formatRecord(record), nil

	case command.SearchCommand:
		records, err := d.gateway.Search(ctx, collectionID, c.FilterFormula, c.MaxRecords)
		if err != nil {
			return "", err
		}
		return formatRecords(records), nil

	case command.CreateCommand:
		record, err := d.gateway.Create(ctx, collectionID, c.Fields)
		if err != nil {
			return "", err
		}
		return formatCreated(record), nil

	case command.UpdateCommand:
		record, err := d.gateway.Update(ctx, collectionID, c.RecordID, c.Fields)
		if err != nil {
			return "", err
		}
		return formatUpdated(record), nil

	case command.RemoveCommand:
		deleted, err := d.gateway.Remove(ctx, collectionID, c.RecordID)
		if err != nil {
			return "", err
		}
		return formatDeleted(deleted), nil
	}
	return "", apperrors.New(apperrors.KindInternal, fmt.Sprintf("unhandled command %T", cmd))
}

func failure(err error) Result {
	kind := apperrors.KindOf(err)
	message := err.Error()
	// Transport failures keep their cause; other kinds have a complete message.
	var e *apperrors.Error
	if errors.As(err, &e) && e.Message != "" && kind != apperrors.KindTransport {
		message = e.Message
	}
	return Result{Text: formatFailure(kind, message), Failed: true, Kind: kind}
}

// safeRecord reports the dispatch; a panicking observer or writer is logged
// and never reaches the caller.
func (d *Dispatcher) safeRecord(ctx context.Context, requestID, name string, cmd command.Command, res Result, elapsed time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("recording dispatch panicked",
				zap.String("request_id", requestID),
				zap.String("command", name),
				zap.Any("panic", r),
			)
		}
	}()
	d.record(ctx, requestID, name, cmd, res, elapsed)
}

func (d *Dispatcher) record(ctx context.Context, requestID, name string, cmd command.Command, res Result, elapsed time.Duration) {
	outcome := storage.OutcomeOK
	if res.Failed {
		outcome = string(res.Kind)
	}

	var collection, recordID string
	if cmd != nil {
		collection = cmd.Collection()
		recordID = command.RecordID(cmd)
	}

	fields := []zap.Field{
		zap.String("request_id", requestID),
		zap.String("command", name),
		zap.String("collection", collection),
		zap.String("outcome", outcome),
		zap.Duration("latency", elapsed),
		zap.String("source", SourceFromContext(ctx)),
	}
	if res.Failed {
		d.logger.Warn("command failed", append(fields, zap.String("detail", res.Text))...)
	} else {
		d.logger.Info("command completed", fields...)
	}

	if d.observer != nil {
		d.observer.ObserveCommand(name, outcome, elapsed)
	}

	if d.writer != nil {
		event := &storage.CommandEvent{
			RequestID:  requestID,
			Timestamp:  time.Now().UTC(),
			Command:    name,
			Collection: collection,
			RecordID:   recordID,
			Outcome:    outcome,
			LatencyMs:  float32(elapsed.Microseconds()) / 1000,
			Source:     SourceFromContext(ctx),
		}
		if res.Failed {
			event.Message = res.Text
		}
		d.writer.Write(event)
	}
}
