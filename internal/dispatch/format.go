package dispatch

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	apperrors "github.com/triage-ai/palisade/services/record_gateway/internal/errors"
	"github.com/triage-ai/palisade/services/record_gateway/internal/remote"
)

const (
	failureMarker = "❌"
	successMarker = "✅"
)

var failureLabels = map[apperrors.Kind]string{
	apperrors.KindValidation:     "Validation error:",
	apperrors.KindTimeout:        "Timeout:",
	apperrors.KindRateLimited:    "Rate limited:",
	apperrors.KindUnauthorized:   "Unauthorized:",
	apperrors.KindNotFound:       "Not found:",
	apperrors.KindRemoteService:  "Remote service error:",
	apperrors.KindTransport:      "Transport error:",
	apperrors.KindUnknownCommand: "Unknown command:",
	apperrors.KindInternal:       "Internal error:",
}

func formatFailure(kind apperrors.Kind, message string) string {
	label, ok := failureLabels[kind]
	if !ok {
		label = failureLabels[apperrors.KindInternal]
	}
	return failureMarker + " " + label + " " + message
}

func formatRecord(r *remote.Record) string {
	id := r.ID
	if id == "" {
		id = "N/A"
	}
	created := r.CreatedTime
	if created == "" {
		created = "N/A"
	}

	lines := []string{
		"Record ID: " + id,
		"Created: " + created,
		"Fields:",
	}

	keys := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("  • %s: %s", k, formatValue(r.Fields[k])))
	}
	return strings.Join(lines, "\n")
}

func formatRecords(records []remote.Record) string {
	if len(records) == 0 {
		return "No records found."
	}

	lines := []string{fmt.Sprintf("Found %d record(s):\n", len(records))}
	for i := range records {
		lines = append(lines,
			fmt.Sprintf("--- Record %d ---", i+1),
			formatRecord(&records[i]),
			"",
		)
	}
	return strings.Join(lines, "\n")
}

func formatCreated(r *remote.Record) string {
	return successMarker + " Record created successfully!\n\n" + formatRecord(r)
}

func formatUpdated(r *remote.Record) string {
	return successMarker + " Record updated successfully!\n\n" + formatRecord(r)
}

func formatDeleted(d *remote.Deleted) string {
	id := d.ID
	if id == "" {
		id = "Unknown"
	}
	return successMarker + " Record deleted successfully!\nDeleted ID: " + id
}

// formatValue prints strings as-is and everything else as compact JSON.
func formatValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
