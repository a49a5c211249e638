package registry

// RiskTier classifies what a command does to remote data.
type RiskTier string

const (
	TierRead        RiskTier = "read"
	TierWrite       RiskTier = "write"
	TierDestructive RiskTier = "destructive"
)

// CommandDefinition describes one command exposed to the host.
type CommandDefinition struct {
	Name           string
	Description    string
	RiskTier       RiskTier
	ArgumentSchema map[string]any // JSON Schema for the raw arguments
}

// ReadOnly reports whether the command never modifies remote data.
func (d CommandDefinition) ReadOnly() bool {
	return d.RiskTier == TierRead
}

// Destructive reports whether the command removes data.
func (d CommandDefinition) Destructive() bool {
	return d.RiskTier == TierDestructive
}

// Command names.
const (
	ListRecords   = "list_records"
	GetRecord     = "get_record"
	SearchRecords = "search_records"
	CreateRecord  = "create_record"
	UpdateRecord  = "update_record"
	DeleteRecord  = "delete_record"
)

// Argument names. Aliases maps alternate spellings onto them.
const (
	ArgTable         = "table"
	ArgRecordID      = "record_id"
	ArgFilterFormula = "filter_formula"
	ArgMaxRecords    = "max_records"
	ArgView          = "view"
	ArgFields        = "fields"
)

// Alias is an accepted alternate spelling of a canonical argument name.
type Alias struct {
	Name      string
	Canonical string
}

// Aliases lists accepted alternate argument names. When several aliases of
// the same argument are given, the one listed first wins; the canonical name
// always beats any alias.
var Aliases = []Alias{
	{Name: "collection", Canonical: ArgTable},
	{Name: "recordId", Canonical: ArgRecordID},
	{Name: "filterFormula", Canonical: ArgFilterFormula},
	{Name: "filterExpression", Canonical: ArgFilterFormula},
	{Name: "maxRecords", Canonical: ArgMaxRecords},
}

const (
	MinMaxRecords     = 1
	MaxMaxRecords     = 100
	DefaultMaxRecords = 100
	RecordIDPrefix    = "rec"
)
