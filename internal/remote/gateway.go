package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	apperrors "github.com/triage-ai/palisade/services/record_gateway/internal/errors"
)

const (
	MaxPageSize     = 100
	DefaultPageSize = 100
)

// Record is one row as returned by the remote service.
type Record struct {
	ID          string         `json:"id"`
	CreatedTime string         `json:"createdTime"`
	Fields      map[string]any `json:"fields"`
}

// Deleted is the remote acknowledgement of a delete.
type Deleted struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

type recordList struct {
	Records []Record `json:"records"`
	Offset  string   `json:"offset,omitempty"`
}

type fieldsEnvelope struct {
	Fields map[string]any `json:"fields"`
}

// Sender is the transport the gateway drives. *Client satisfies it.
type Sender interface {
	Send(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error)
}

// Gateway exposes record operations on a resolved collection id. Inputs are
// assumed validated; errors from the Sender are returned unchanged.
type Gateway struct {
	sender Sender
}

// NewGateway creates a Gateway over sender.
func NewGateway(sender Sender) *Gateway {
	return &Gateway{sender: sender}
}

// List reads a single page of up to maxRecords records, optionally through a view.
func (g *Gateway) List(ctx context.Context, collectionID, view string, maxRecords int) ([]Record, error) {
	q := url.Values{}
	q.Set("maxRecords", strconv.Itoa(pageSize(maxRecords)))
	if view != "" {
		q.Set("view", view)
	}
	return g.records(ctx, collectionID, q)
}

// Search reads a single page of records matching filter. The filter is
// handed to the remote service untouched.
func (g *Gateway) Search(ctx context.Context, collectionID, filter string, maxRecords int) ([]Record, error) {
	q := url.Values{}
	q.Set("filterByFormula", filter)
	q.Set("maxRecords", strconv.Itoa(pageSize(maxRecords)))
	return g.records(ctx, collectionID, q)
}

// Get fetches one record.
func (g *Gateway) Get(ctx context.Context, collectionID, recordID string) (*Record, error) {
	return g.record(ctx, http.MethodGet, recordPath(collectionID, recordID), nil)
}

// Create inserts a record with the given fields.
func (g *Gateway) Create(ctx context.Context, collectionID string, fields map[string]any) (*Record, error) {
	return g.record(ctx, http.MethodPost, url.PathEscape(collectionID), fieldsEnvelope{Fields: fields})
}

// Update patches only the supplied fields of a record.
func (g *Gateway) Update(ctx context.Context, collectionID, recordID string, fields map[string]any) (*Record, error) {
	return g.record(ctx, http.MethodPatch, recordPath(collectionID, recordID), fieldsEnvelope{Fields: fields})
}

// Remove deletes a record. Deleting the same id twice yields NotFound.
func (g *Gateway) Remove(ctx context.Context, collectionID, recordID string) (*Deleted, error) {
	raw, err := g.sender.Send(ctx, http.MethodDelete, recordPath(collectionID, recordID), nil, nil)
	if err != nil {
		return nil, err
	}
	var out Deleted
	if err := decode(raw, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		out.ID = recordID
	}
	return &out, nil
}

func (g *Gateway) records(ctx context.Context, collectionID string, q url.Values) ([]Record, error) {
	raw, err := g.sender.Send(ctx, http.MethodGet, url.PathEscape(collectionID), q, nil)
	if err != nil {
		return nil, err
	}
	var out recordList
	if err := decode(raw, &out); err != nil {
		return nil, err
	}
	return out.Records, nil
}

func (g *Gateway) record(ctx context.Context, method, path string, body any) (*Record, error) {
	raw, err := g.sender.Send(ctx, method, path, nil, body)
	if err != nil {
		return nil, err
	}
	var out Record
	if err := decode(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func decode(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return apperrors.Wrap(apperrors.KindTransport, "malformed response", err)
	}
	return nil
}

func recordPath(collectionID, recordID string) string {
	return url.PathEscape(collectionID) + "/" + url.PathEscape(recordID)
}

func pageSize(n int) int {
	if n <= 0 || n > MaxPageSize {
		return DefaultPageSize
	}
	return n
}
