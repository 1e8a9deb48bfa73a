package policy

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const soccerPolicy = `
tables:
  Match:
    description: "One row per fixture"
    columns:
      match_api_id: "Match identifier"
      date: ""
      home_team_goal: "Goals scored by the home side"
  Team:
    columns: [team_api_id, team_long_name, team_short_name]
columns: [total]
max_rows: 500
statement_timeout_seconds: 10
`

// --- LoadFromFile tests ---

func TestLoadFromFile(t *testing.T) {
	path := writeTempFile(t, soccerPolicy)

	pol, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Len(t, pol.Tables, 2)

	match := pol.Tables["Match"]
	assert.Equal(t, "One row per fixture", match.Description)
	assert.Equal(t, "Match identifier", match.Columns["match_api_id"])
	assert.Contains(t, match.Columns, "date")

	team := pol.Tables["Team"]
	assert.Len(t, team.Columns, 3)
	assert.Contains(t, team.Columns, "team_long_name")

	assert.Equal(t, []string{"total"}, pol.Columns)
	assert.Equal(t, 500, pol.MaxRows)
	assert.Equal(t, 10, pol.StatementTimeoutSeconds)
}

func TestLoadFromFile_TableWithoutColumns(t *testing.T) {
	path := writeTempFile(t, "tables:\n  Player:\n")

	pol, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Player"}, pol.TableNames())
	assert.Empty(t, pol.ColumnNames())
}

func TestLoadFromFile_FileNotFound(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/policy.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading policy file")
}

func TestLoadFromFile_InvalidYAML(t *testing.T) {
	path := writeTempFile(t, "tables: [[[")

	_, err := LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing policy YAML")
}

func TestLoadFromFile_ScalarColumns(t *testing.T) {
	path := writeTempFile(t, "tables:\n  Team:\n    columns: team_api_id\n")

	_, err := LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "columns must be a list or a map")
}

func TestLoadFromFile_Validation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "empty table key",
			yaml:    "tables:\n  \"\":\n    columns: [id]\n",
			wantErr: "tables contains an empty key",
		},
		{
			name:    "empty column key",
			yaml:    "tables:\n  Team:\n    columns:\n      \"\": \"x\"\n",
			wantErr: `tables["Team"].columns contains an empty key`,
		},
		{
			name:    "empty top-level column",
			yaml:    "columns: [\"\"]\n",
			wantErr: "columns[0] is empty",
		},
		{
			name:    "negative max rows",
			yaml:    "max_rows: -1\n",
			wantErr: "max_rows must be non-negative",
		},
		{
			name:    "negative timeout",
			yaml:    "statement_timeout_seconds: -5\n",
			wantErr: "statement_timeout_seconds must be non-negative",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTempFile(t, tt.yaml)
			_, err := LoadFromFile(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// --- allow-list tests ---

func TestPolicy_Names(t *testing.T) {
	pol, err := LoadFromFile(writeTempFile(t, soccerPolicy))
	require.NoError(t, err)

	assert.Equal(t, []string{"Match", "Team"}, pol.TableNames())
	assert.Equal(t, []string{
		"date", "home_team_goal", "match_api_id",
		"team_api_id", "team_long_name", "team_short_name", "total",
	}, pol.ColumnNames())
}

func TestPolicy_Merge(t *testing.T) {
	var pol Policy
	pol.Merge([]string{"Player", "Player_Attributes"}, []string{"player_name", "player_name"})

	assert.Equal(t, []string{"Player", "Player_Attributes"}, pol.TableNames())
	assert.Equal(t, []string{"player_name"}, pol.ColumnNames())

	pol.Merge([]string{"Player"}, nil)
	assert.Len(t, pol.Tables, 2)
}

func TestPolicy_AllowList(t *testing.T) {
	t.Run("file limits win", func(t *testing.T) {
		pol, err := LoadFromFile(writeTempFile(t, soccerPolicy))
		require.NoError(t, err)

		allow := pol.AllowList(1000, 15*time.Second)
		assert.Equal(t, 500, allow.MaxRows())
		assert.Equal(t, 10*time.Second, allow.StatementTimeout())
		assert.True(t, allow.IsTable("match"))
		assert.True(t, allow.IsColumn("TEAM_LONG_NAME"))
		assert.False(t, allow.IsTable("player"))
	})

	t.Run("defaults when unset", func(t *testing.T) {
		var pol Policy
		pol.Merge([]string{"Team"}, nil)

		allow := pol.AllowList(250, 3*time.Second)
		assert.Equal(t, 250, allow.MaxRows())
		assert.Equal(t, 3*time.Second, allow.StatementTimeout())
	})
}

func TestPolicy_PromptSchema(t *testing.T) {
	t.Run("rendered from tables", func(t *testing.T) {
		pol, err := LoadFromFile(writeTempFile(t, soccerPolicy))
		require.NoError(t, err)

		want := "Match(date, home_team_goal, match_api_id) -- One row per fixture\n" +
			"  Match.home_team_goal: Goals scored by the home side\n" +
			"  Match.match_api_id: Match identifier\n" +
			"Team(team_api_id, team_long_name, team_short_name)\n" +
			"Other columns: total"
		assert.Equal(t, want, pol.PromptSchema())
	})

	t.Run("explicit hint wins", func(t *testing.T) {
		pol := Policy{SchemaHint: "  Team(team_api_id)\n", Tables: map[string]TableSpec{"Match": {}}}
		assert.Equal(t, "Team(team_api_id)", pol.PromptSchema())
	})

	t.Run("empty policy", func(t *testing.T) {
		var pol Policy
		assert.Empty(t, pol.PromptSchema())
	})
}

// --- helpers ---

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	return path
}
