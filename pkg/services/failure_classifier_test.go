package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-semantic/pkg/models"
)

func TestFailureClassifier_Classify(t *testing.T) {
	c := NewFailureClassifier()

	tests := []struct {
		name    string
		message string
		want    models.FailureClassification
	}{
		{
			name:    "missing aggregate",
			message: "'count' not found for path 'Film.count'",
			want: models.FailureClassification{
				Kind:   models.FailureMissingAggregate,
				Entity: "Film",
				Field:  "count",
			},
		},
		{
			name:    "missing aggregate inside longer message",
			message: "Error: 'totalAmount' not found for path 'Payment.totalAmount' at query compile",
			want: models.FailureClassification{
				Kind:   models.FailureMissingAggregate,
				Entity: "Payment",
				Field:  "totalAmount",
			},
		},
		{
			name:    "missing join path",
			message: "Can't find join path to join 'Actor', 'Address'",
			want: models.FailureClassification{
				Kind:       models.FailureMissingJoinPath,
				FromEntity: "Actor",
				ToEntity:   "Address",
			},
		},
		{
			name:    "unclassified",
			message: "Cube.js API error: Internal Server Error",
			want:    models.FailureClassification{Kind: models.FailureUnclassified},
		},
		{
			name:    "empty",
			message: "",
			want:    models.FailureClassification{Kind: models.FailureUnclassified},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.message)
			require.NotNil(t, got)

			tt.want.RawMessage = tt.message
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestFailureClassifier_ParsersAreIndependent(t *testing.T) {
	c := NewFailureClassifier()

	_, ok := c.ParseMissingJoinPath("'count' not found for path 'Film.count'")
	assert.False(t, ok)

	_, ok = c.ParseMissingAggregate("Can't find join path to join 'Actor', 'Address'")
	assert.False(t, ok)

	fc, ok := c.ParseMissingAggregate("'count' not found for path 'Film.count'")
	require.True(t, ok)
	assert.Equal(t, "Film", fc.Entity)
}

func TestFailureSuggestion(t *testing.T) {
	assert.Equal(t,
		"Missing measure: 'count' doesn't exist in the Film cube. Regenerate the semantic layer after updating the catalog schema.",
		FailureSuggestion(&models.FailureClassification{Kind: models.FailureMissingAggregate, Entity: "Film", Field: "count"}))

	assert.Equal(t,
		"Missing join: No relationship exists between Actor and Address. Try querying them separately, or add the relationship in the catalog.",
		FailureSuggestion(&models.FailureClassification{Kind: models.FailureMissingJoinPath, FromEntity: "Actor", ToEntity: "Address"}))

	assert.Empty(t, FailureSuggestion(&models.FailureClassification{Kind: models.FailureUnclassified}))
	assert.Empty(t, FailureSuggestion(nil))
}
