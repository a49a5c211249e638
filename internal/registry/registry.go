// Package registry holds the static command definitions and the collection
// table the gateway serves.
package registry

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Commands returns the definitions of every command, in a fixed order.
// Each call builds fresh schema maps, so callers may keep or modify them.
func Commands() []CommandDefinition {
	return []CommandDefinition{
		{
			Name:        ListRecords,
			Description: "List records from a table with optional view and limit",
			RiskTier:    TierRead,
			ArgumentSchema: object(
				map[string]any{
					ArgTable:      tableProperty("Table name (" + joinNames() + ")"),
					ArgView:       stringProperty("Optional view name", 0),
					ArgMaxRecords: maxRecordsProperty("Maximum number of records (1-100)"),
				},
				ArgTable,
			),
		},
		{
			Name:        GetRecord,
			Description: "Get a specific record by ID from a table",
			RiskTier:    TierRead,
			ArgumentSchema: object(
				map[string]any{
					ArgTable:    tableProperty("Table name"),
					ArgRecordID: stringProperty("Record ID (starts with 'rec')", 1),
				},
				ArgTable, ArgRecordID,
			),
		},
		{
			Name:        SearchRecords,
			Description: "Search records using a filter formula (e.g., \"{email}='test@example.com'\")",
			RiskTier:    TierRead,
			ArgumentSchema: object(
				map[string]any{
					ArgTable:         tableProperty("Table name"),
					ArgFilterFormula: stringProperty("Filter formula (use field names in curly braces)", 1),
					ArgMaxRecords:    maxRecordsProperty("Maximum records to return"),
				},
				ArgTable, ArgFilterFormula,
			),
		},
		{
			Name:        CreateRecord,
			Description: "Create a new record in a table",
			RiskTier:    TierWrite,
			ArgumentSchema: object(
				map[string]any{
					ArgTable:  tableProperty("Table name"),
					ArgFields: objectProperty("Record fields as key-value pairs"),
				},
				ArgTable, ArgFields,
			),
		},
		{
			Name:        UpdateRecord,
			Description: "Update an existing record in a table. Only the supplied fields change.",
			RiskTier:    TierWrite,
			ArgumentSchema: object(
				map[string]any{
					ArgTable:    tableProperty("Table name"),
					ArgRecordID: stringProperty("Record ID to update", 1),
					ArgFields:   objectProperty("Fields to update"),
				},
				ArgTable, ArgRecordID, ArgFields,
			),
		},
		{
			Name:        DeleteRecord,
			Description: "Delete a record from a table",
			RiskTier:    TierDestructive,
			ArgumentSchema: object(
				map[string]any{
					ArgTable:    tableProperty("Table name"),
					ArgRecordID: stringProperty("Record ID to delete", 1),
				},
				ArgTable, ArgRecordID,
			),
		},
	}
}

// Lookup returns the definition for name.
func Lookup(name string) (CommandDefinition, bool) {
	for _, def := range Commands() {
		if def.Name == name {
			return def, true
		}
	}
	return CommandDefinition{}, false
}

// SchemaJSON encodes the argument schema of def.
func SchemaJSON(def CommandDefinition) (json.RawMessage, error) {
	b, err := json.Marshal(def.ArgumentSchema)
	if err != nil {
		return nil, fmt.Errorf("encode schema for %s: %w", def.Name, err)
	}
	return b, nil
}

func object(props map[string]any, required ...string) map[string]any {
	req := make([]any, len(required))
	for i, r := range required {
		req[i] = r
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   req,
	}
}

func tableProperty(description string) map[string]any {
	enum := make([]any, len(CollectionNames))
	for i, n := range CollectionNames {
		enum[i] = n
	}
	return map[string]any{
		"type":        "string",
		"description": description,
		"enum":        enum,
	}
}

func stringProperty(description string, minLength int) map[string]any {
	p := map[string]any{
		"type":        "string",
		"description": description,
	}
	if minLength > 0 {
		p["minLength"] = minLength
	}
	return p
}

func maxRecordsProperty(description string) map[string]any {
	return map[string]any{
		"type":        "integer",
		"description": description,
		"default":     DefaultMaxRecords,
		"minimum":     MinMaxRecords,
		"maximum":     MaxMaxRecords,
	}
}

func objectProperty(description string) map[string]any {
	return map[string]any{
		"type":        "object",
		"description": description,
	}
}

func joinNames() string {
	return strings.Join(CollectionNames, ", ")
}
