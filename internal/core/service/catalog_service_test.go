package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubInspector struct {
	tables map[string][]string
	err    error
}

func (s stubInspector) Columns(context.Context) (map[string][]string, error) {
	return s.tables, s.err
}

func TestCatalogService_Describe(t *testing.T) {
	svc := NewCatalogService(testGate().Policy(), "Match(match_api_id)")

	cat := svc.Describe()
	assert.Equal(t, []string{"match", "team"}, cat.Tables)
	assert.Contains(t, cat.Columns, "team_long_name")
	assert.Equal(t, 1000, cat.MaxRows)
	assert.Equal(t, 15.0, cat.StatementTimeoutSeconds)
	assert.Equal(t, "Match(match_api_id)", cat.Schema)
}

func TestCatalogService_Verify(t *testing.T) {
	svc := NewCatalogService(testGate().Policy(), "")

	t.Run("no drift", func(t *testing.T) {
		drift, err := svc.Verify(context.Background(), stubInspector{tables: map[string][]string{
			"match": {"match_api_id", "home_team_goal", "away_team_goal"},
			"team":  {"team_api_id", "team_long_name"},
		}})
		require.NoError(t, err)
		assert.True(t, drift.Empty())
	})

	t.Run("missing table and column", func(t *testing.T) {
		drift, err := svc.Verify(context.Background(), stubInspector{tables: map[string][]string{
			"match": {"match_api_id", "home_team_goal", "away_team_goal", "team_api_id"},
		}})
		require.NoError(t, err)
		assert.False(t, drift.Empty())
		assert.Equal(t, []string{"team"}, drift.MissingTables)
		assert.Equal(t, []string{"team_long_name"}, drift.MissingColumns)
	})

	t.Run("inspector error", func(t *testing.T) {
		_, err := svc.Verify(context.Background(), stubInspector{err: errors.New("connection refused")})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "inspecting schema")
	})
}
