package dispatch

import (
	"testing"

	apperrors "github.com/triage-ai/palisade/services/record_gateway/internal/errors"
	"github.com/triage-ai/palisade/services/record_gateway/internal/remote"
	"github.com/stretchr/testify/assert"
)

func TestFormatRecord_SortsFieldsAndRendersNestedAsJSON(t *testing.T) {
	r := &remote.Record{
		ID:          "recA",
		CreatedTime: "2026-03-01T10:00:00.000Z",
		Fields: map[string]any{
			"status":  "open",
			"amount":  float64(42),
			"tags":    []any{"urgent", "plumbing"},
			"address": map[string]any{"city": "Lyon"},
			"paid":    false,
		},
	}

	want := "Record ID: recA\n" +
		"Created: 2026-03-01T10:00:00.000Z\n" +
		"Fields:\n" +
		"  • address: {\"city\":\"Lyon\"}\n" +
		"  • amount: 42\n" +
		"  • paid: false\n" +
		"  • status: open\n" +
		"  • tags: [\"urgent\",\"plumbing\"]"
	assert.Equal(t, want, formatRecord(r))
}

func TestFormatRecord_MissingMetadata(t *testing.T) {
	assert.Equal(t, "Record ID: N/A\nCreated: N/A\nFields:", formatRecord(&remote.Record{}))
}

func TestFormatRecords(t *testing.T) {
	assert.Equal(t, "No records found.", formatRecords(nil))

	got := formatRecords([]remote.Record{
		{ID: "rec1", CreatedTime: "t1", Fields: map[string]any{"n": "a"}},
		{ID: "rec2", CreatedTime: "t2"},
	})
	want := "Found 2 record(s):\n\n" +
		"--- Record 1 ---\nRecord ID: rec1\nCreated: t1\nFields:\n  • n: a\n\n" +
		"--- Record 2 ---\nRecord ID: rec2\nCreated: t2\nFields:\n"
	assert.Equal(t, want, got)
}

func TestFormatWrites(t *testing.T) {
	r := &remote.Record{ID: "recN", CreatedTime: "t"}
	assert.Equal(t, "✅ Record created successfully!\n\nRecord ID: recN\nCreated: t\nFields:", formatCreated(r))
	assert.Equal(t, "✅ Record updated successfully!\n\nRecord ID: recN\nCreated: t\nFields:", formatUpdated(r))
	assert.Equal(t, "✅ Record deleted successfully!\nDeleted ID: recN", formatDeleted(&remote.Deleted{ID: "recN", Deleted: true}))
	assert.Equal(t, "✅ Record deleted successfully!\nDeleted ID: Unknown", formatDeleted(&remote.Deleted{}))
}

func TestFormatFailure_EveryKindHasALabel(t *testing.T) {
	for _, k := range apperrors.Kinds {
		_, ok := failureLabels[k]
		assert.True(t, ok, "missing label for %s", k)
	}
	assert.Equal(t, "❌ Internal error: x", formatFailure("bogus", "x"))
}
