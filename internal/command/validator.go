package command

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	apperrors "github.com/triage-ai/palisade/services/record_gateway/internal/errors"
	"github.com/triage-ai/palisade/services/record_gateway/internal/registry"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Validator checks raw arguments in two stages: the command's JSON Schema
// (the same one advertised to the host), then typed semantic rules. It never
// touches the network and is safe for concurrent use.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

// NewValidator compiles the schema of every registered command.
func NewValidator() (*Validator, error) {
	c := jsonschema.NewCompiler()
	schemas := make(map[string]*jsonschema.Schema)
	for _, def := range registry.Commands() {
		raw, err := registry.SchemaJSON(def)
		if err != nil {
			return nil, err
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("schema unmarshal error for %s: %w", def.Name, err)
		}
		url := def.Name + ".json"
		if err := c.AddResource(url, doc); err != nil {
			return nil, fmt.Errorf("schema compile error for %s: %w", def.Name, err)
		}
		sch, err := c.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("schema compile error for %s: %w", def.Name, err)
		}
		schemas[def.Name] = sch
	}
	return &Validator{schemas: schemas}, nil
}

// Validate returns the typed command for name, or an UnknownCommand or
// Validation error.
func (v *Validator) Validate(name string, args map[string]any) (Command, error) {
	sch, ok := v.schemas[name]
	if !ok {
		return nil, apperrors.Newf(apperrors.KindUnknownCommand, "unknown command %q", name)
	}

	normalized := normalize(args)
	raw, err := json.Marshal(normalized)
	if err != nil {
		return nil, apperrors.Validation("arguments are not valid JSON: %v", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, apperrors.Validation("arguments are not valid JSON: %v", err)
	}
	if err := sch.Validate(doc); err != nil {
		return nil, apperrors.Validation("%s", schemaMessage(err))
	}

	var in arguments
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&in); err != nil {
		return nil, apperrors.Validation("arguments do not match %s: %v", name, err)
	}
	return in.command(name)
}

// arguments is the union of every command's fields after alias folding.
type arguments struct {
	Table         string         `json:"table"`
	RecordID      string         `json:"record_id"`
	FilterFormula string         `json:"filter_formula"`
	MaxRecords    *json.Number   `json:"max_records"`
	View          string         `json:"view"`
	Fields        map[string]any `json:"fields"`
}

func (a arguments) command(name string) (Command, error) {
	switch name {
	case registry.ListRecords:
		n, err := a.maxRecords()
		if err != nil {
			return nil, err
		}
		return ListCommand{Table: a.Table, View: a.View, MaxRecords: n}, nil

	case registry.GetRecord:
		if err := checkRecordID(a.RecordID); err != nil {
			return nil, err
		}
		return GetCommand{Table: a.Table, RecordID: a.RecordID}, nil

	case registry.SearchRecords:
		if strings.TrimSpace(a.FilterFormula) == "" {
			return nil, apperrors.Validation("%s must not be blank", registry.ArgFilterFormula)
		}
		n, err := a.maxRecords()
		if err != nil {
			return nil, err
		}
		return SearchCommand{Table: a.Table, FilterFormula: a.FilterFormula, MaxRecords: n}, nil

	case registry.CreateRecord:
		if a.Fields == nil {
			return nil, apperrors.Validation("%s must be an object", registry.ArgFields)
		}
		return CreateCommand{Table: a.Table, Fields: a.Fields}, nil

	case registry.UpdateRecord:
		if err := checkRecordID(a.RecordID); err != nil {
			return nil, err
		}
		if a.Fields == nil {
			return nil, apperrors.Validation("%s must be an object", registry.ArgFields)
		}
		return UpdateCommand{Table: a.Table, RecordID: a.RecordID, Fields: a.Fields}, nil

	case registry.DeleteRecord:
		if err := checkRecordID(a.RecordID); err != nil {
			return nil, err
		}
		return RemoveCommand{Table: a.Table, RecordID: a.RecordID}, nil
	}
	return nil, apperrors.Newf(apperrors.KindUnknownCommand, "unknown command %q", name)
}

// maxRecords reads the limit as a number so that 5.0 is accepted like 5.
func (a arguments) maxRecords() (int, error) {
	if a.MaxRecords == nil {
		return registry.DefaultMaxRecords, nil
	}
	f, err := a.MaxRecords.Float64()
	if err != nil || f != float64(int(f)) {
		return 0, apperrors.Validation("%s must be an integer", registry.ArgMaxRecords)
	}
	n := int(f)
	if n < registry.MinMaxRecords || n > registry.MaxMaxRecords {
		return 0, apperrors.Validation("%s must be between %d and %d", registry.ArgMaxRecords, registry.MinMaxRecords, registry.MaxMaxRecords)
	}
	return n, nil
}

func checkRecordID(id string) error {
	if !strings.HasPrefix(id, registry.RecordIDPrefix) {
		return apperrors.Validation("%s must start with '%s'", registry.ArgRecordID, registry.RecordIDPrefix)
	}
	return nil
}

// normalize folds alias names onto canonical ones in registry.Aliases order
// and drops explicit nulls for optional arguments.
func normalize(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		if !isAlias(k) {
			out[k] = v
		}
	}
	for _, a := range registry.Aliases {
		v, ok := args[a.Name]
		if !ok {
			continue
		}
		if _, taken := out[a.Canonical]; taken {
			continue
		}
		out[a.Canonical] = v
	}
	for _, optional := range []string{registry.ArgView, registry.ArgMaxRecords} {
		if v, ok := out[optional]; ok && v == nil {
			delete(out, optional)
		}
	}
	return out
}

func isAlias(name string) bool {
	for _, a := range registry.Aliases {
		if a.Name == name {
			return true
		}
	}
	return false
}

// schemaMessage flattens a schema error to its "at '<path>': reason" lines.
func schemaMessage(err error) string {
	var parts []string
	for _, line := range strings.Split(err.Error(), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "- ") {
			parts = append(parts, strings.TrimPrefix(line, "- "))
		}
	}
	if len(parts) == 0 {
		return err.Error()
	}
	return strings.Join(parts, "; ")
}
