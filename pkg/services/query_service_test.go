package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-semantic/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-semantic/pkg/models"
)

type recordingOrchestrator struct {
	question      string
	schemaContext string
	calls         int
}

func (r *recordingOrchestrator) Execute(ctx context.Context, query *models.Query, question, schemaContext string) *models.ExecutionOutcome {
	r.calls++
	r.question = question
	r.schemaContext = schemaContext
	return &models.ExecutionOutcome{Success: true, Query: query}
}

type staticSchema struct {
	context string
	err     error
	calls   int
}

func (s *staticSchema) SchemaContext(ctx context.Context) (string, error) {
	s.calls++
	return s.context, s.err
}

func TestQueryService_Prepare(t *testing.T) {
	svc := NewQueryService(&recordingOrchestrator{}, nil, nil, zap.NewNop())

	tests := []struct {
		name        string
		input       string
		wantErr     bool
		wantRemoved []string
	}{
		{
			name:  "valid",
			input: `{"measures": ["Film.count"], "dimensions": ["Film.rating"]}`,
		},
		{
			name:        "joins removed",
			input:       `{"measures": ["Film.count"], "joins": [{"from": "Film"}]}`,
			wantRemoved: []string{"joins"},
		},
		{
			name:    "not an object",
			input:   `["Film.count"]`,
			wantErr: true,
		},
		{
			name:    "no members",
			input:   `{"limit": 10}`,
			wantErr: true,
		},
		{
			name:    "injection in filter",
			input:   `{"measures": ["Film.count"], "filters": [{"member": "Film.title", "operator": "equals", "values": ["'; DROP TABLE film--"]}]}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prepared, err := svc.Prepare([]byte(tt.input))
			if tt.wantErr {
				assert.ErrorIs(t, err, apperrors.ErrInvalidQuery)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []string{"Film.count"}, prepared.Query.Measures)
			assert.Equal(t, tt.wantRemoved, prepared.RemovedKeys)
		})
	}
}

func TestQueryService_Execute(t *testing.T) {
	query := &models.Query{Measures: []string{"Film.count"}}

	t.Run("question loads schema context", func(t *testing.T) {
		orch := &recordingOrchestrator{}
		schema := &staticSchema{context: "Cube: Film"}
		svc := NewQueryService(orch, nil, schema, zap.NewNop())

		outcome := svc.Execute(context.Background(), query, "how many films?")

		assert.True(t, outcome.Success)
		assert.Equal(t, "how many films?", orch.question)
		assert.Equal(t, "Cube: Film", orch.schemaContext)
		assert.Equal(t, 1, schema.calls)
	})

	t.Run("no question skips schema context", func(t *testing.T) {
		orch := &recordingOrchestrator{}
		schema := &staticSchema{context: "Cube: Film"}
		svc := NewQueryService(orch, nil, schema, zap.NewNop())

		svc.Execute(context.Background(), query, "")

		assert.Empty(t, orch.schemaContext)
		assert.Zero(t, schema.calls)
	})

	t.Run("schema failure still executes", func(t *testing.T) {
		orch := &recordingOrchestrator{}
		svc := NewQueryService(orch, nil, &staticSchema{err: errors.New("meta unavailable")}, zap.NewNop())

		svc.Execute(context.Background(), query, "how many films?")

		assert.Equal(t, 1, orch.calls)
		assert.Empty(t, orch.schemaContext)
	})
}

func TestQueryService_CheckJoins(t *testing.T) {
	graph := NewRelationshipGraph(
		[]models.Entity{{Name: "Film"}, {Name: "Address"}, {Name: "Inventory"}},
		[]models.Relationship{{FromEntity: "Inventory", FromColumn: "film_id", ToEntity: "Film", ToColumn: "film_id",
			Kind: models.KindBelongsTo, Confidence: 1, Source: models.SourceForeignKey}},
	)
	validator := NewJoinPathValidator(NewGraphHolder(graph), zap.NewNop())
	svc := NewQueryService(&recordingOrchestrator{}, validator, nil, zap.NewNop())

	result := svc.CheckJoins(&models.Query{Measures: []string{"Film.count"}, Dimensions: []string{"Address.city"}})

	assert.False(t, result.Valid)
	assert.Equal(t, "No join path exists between Film and Address", result.Message)
}
