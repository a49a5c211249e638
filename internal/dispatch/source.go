package dispatch

import "context"

type contextKey string

const sourceKey contextKey = "source"

// Sources of a dispatch, recorded in audit events.
const (
	SourceStdio = "stdio"
	SourceHTTP  = "http"
	SourceCLI   = "cli"

	// SourceUnknown is reported when no source was set.
	SourceUnknown = "unknown"
)

// WithSource tags ctx with the transport a command arrived on.
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey, source)
}

// SourceFromContext returns the tag set by WithSource, or SourceUnknown.
func SourceFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(sourceKey).(string); ok && s != "" {
		return s
	}
	return SourceUnknown
}
