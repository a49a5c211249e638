package registry

import (
	"fmt"
	"strings"
)

// Collection names accepted in the table argument.
const (
	Tenants       = "TENANTS"
	Tickets       = "TICKETS"
	Residences    = "RESIDENCES"
	Messages      = "MESSAGES"
	Professionals = "PROFESSIONALS"
)

// CollectionNames lists the known collections in display order.
var CollectionNames = []string{Tenants, Tickets, Residences, Messages, Professionals}

// DefaultTableIDs maps each collection to its remote table id.
var DefaultTableIDs = map[string]string{
	Tenants:       "tbl18r4MzBthXlnth",
	Tickets:       "tbl2qQrpJc4PC9yfk",
	Residences:    "tblx32X9SAlBpeB3C",
	Messages:      "tblvQrZVzdAaxb7Kr",
	Professionals: "tblIcANCLun1lb2Ap",
}

// Collections resolves collection names to remote table ids. It is
// immutable once built.
type Collections struct {
	ids map[string]string
}

// NewCollections starts from DefaultTableIDs and applies overrides. An
// override for an unknown collection or an empty id is an error.
func NewCollections(overrides map[string]string) (*Collections, error) {
	ids := make(map[string]string, len(DefaultTableIDs))
	for name, id := range DefaultTableIDs {
		ids[name] = id
	}
	for name, id := range overrides {
		if _, ok := ids[name]; !ok {
			return nil, fmt.Errorf("unknown collection %q (must be one of: %s)", name, strings.Join(CollectionNames, ", "))
		}
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, fmt.Errorf("empty table id for collection %s", name)
		}
		ids[name] = id
	}
	return &Collections{ids: ids}, nil
}

// DefaultCollections returns the collection table without overrides.
func DefaultCollections() *Collections {
	c, _ := NewCollections(nil)
	return c
}

// Resolve returns the table id for name. Names are case-sensitive.
func (c *Collections) Resolve(name string) (string, bool) {
	id, ok := c.ids[name]
	return id, ok
}

// Names returns the known collection names in display order.
func (c *Collections) Names() []string {
	out := make([]string, len(CollectionNames))
	copy(out, CollectionNames)
	return out
}
