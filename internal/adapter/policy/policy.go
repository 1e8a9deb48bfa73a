package policy

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Policy holds the operator-controlled allow-list loaded from a YAML file.
//
//	tables:
//	  Match:
//	    description: "One row per fixture"
//	    columns:
//	      match_api_id: "Match identifier"
//	      date: ""
//	  Team:
//	    columns: [team_api_id, team_long_name]
//	columns: [total]
//	max_rows: 500
//	statement_timeout_seconds: 10
type Policy struct {
	Tables                  map[string]TableSpec `yaml:"tables"`
	Columns                 []string             `yaml:"columns"`
	MaxRows                 int                  `yaml:"max_rows"`
	StatementTimeoutSeconds int                  `yaml:"statement_timeout_seconds"`
	SchemaHint              string               `yaml:"schema_hint"`
}

// TableSpec describes one allowed table and the columns it exposes.
type TableSpec struct {
	Description string    `yaml:"description"`
	Columns     ColumnSet `yaml:"columns"`
}

// ColumnSet maps column name to an optional description.
type ColumnSet map[string]string

// UnmarshalYAML accepts either a plain list of names or a name → description map.
//
//	columns: [team_api_id, team_long_name]
//	columns:
//	  team_api_id: "Team identifier"
func (cs *ColumnSet) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var names []string
		if err := value.Decode(&names); err != nil {
			return fmt.Errorf("decoding column list: %w", err)
		}
		set := make(ColumnSet, len(names))
		for _, n := range names {
			set[n] = ""
		}
		*cs = set
		return nil
	case yaml.MappingNode:
		var m map[string]string
		if err := value.Decode(&m); err != nil {
			return fmt.Errorf("decoding column map: %w", err)
		}
		*cs = ColumnSet(m)
		return nil
	default:
		return fmt.Errorf("line %d: columns must be a list or a map", value.Line)
	}
}
