package policy

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFromFile reads a YAML policy file and returns a validated Policy.
func LoadFromFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy file: %w", err)
	}

	var pol Policy
	if err := yaml.Unmarshal(data, &pol); err != nil {
		return nil, fmt.Errorf("parsing policy YAML: %w", err)
	}

	if err := validate(&pol); err != nil {
		return nil, fmt.Errorf("validating policy: %w", err)
	}

	return &pol, nil
}

func validate(pol *Policy) error {
	for name, spec := range pol.Tables {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("tables contains an empty key")
		}
		for col := range spec.Columns {
			if strings.TrimSpace(col) == "" {
				return fmt.Errorf("tables[%q].columns contains an empty key", name)
			}
		}
	}
	for i, col := range pol.Columns {
		if strings.TrimSpace(col) == "" {
			return fmt.Errorf("columns[%d] is empty", i)
		}
	}
	if pol.MaxRows < 0 {
		return fmt.Errorf("max_rows must be non-negative, got %d", pol.MaxRows)
	}
	if pol.StatementTimeoutSeconds < 0 {
		return fmt.Errorf("statement_timeout_seconds must be non-negative, got %d", pol.StatementTimeoutSeconds)
	}
	return nil
}
