// Package command turns raw tool arguments into typed, validated commands.
package command

import "github.com/triage-ai/palisade/services/record_gateway/internal/registry"

// Command is one validated request. The concrete type is one of the six
// variants below.
type Command interface {
	// Kind is the command name, e.g. "list_records".
	Kind() string
	// Collection is the collection name the command targets.
	Collection() string
}

type ListCommand struct {
	Table      string
	View       string
	MaxRecords int
}

type GetCommand struct {
	Table    string
	RecordID string
}

type SearchCommand struct {
	Table         string
	FilterFormula string
	MaxRecords    int
}

type CreateCommand struct {
	Table  string
	Fields map[string]any
}

// UpdateCommand changes only the supplied fields.
type UpdateCommand struct {
	Table    string
	RecordID string
	Fields   map[string]any
}

type RemoveCommand struct {
	Table    string
	RecordID string
}

func (ListCommand) Kind() string   { return registry.ListRecords }
func (GetCommand) Kind() string    { return registry.GetRecord }
func (SearchCommand) Kind() string { return registry.SearchRecords }
func (CreateCommand) Kind() string { return registry.CreateRecord }
func (UpdateCommand) Kind() string { return registry.UpdateRecord }
func (RemoveCommand) Kind() string { return registry.DeleteRecord }

func (c ListCommand) Collection() string   { return c.Table }
func (c GetCommand) Collection() string    { return c.Table }
func (c SearchCommand) Collection() string { return c.Table }
func (c CreateCommand) Collection() string { return c.Table }
func (c UpdateCommand) Collection() string { return c.Table }
func (c RemoveCommand) Collection() string { return c.Table }

// RecordID returns the record a command addresses, or "" for commands that
// address a whole collection.
func RecordID(c Command) string {
	switch c := c.(type) {
	case GetCommand:
		return c.RecordID
	case UpdateCommand:
		return c.RecordID
	case RemoveCommand:
		return c.RecordID
	default:
		return ""
	}
}
