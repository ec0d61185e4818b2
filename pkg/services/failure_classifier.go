package services

import (
	"fmt"
	"regexp"

	"github.com/ekaya-inc/ekaya-semantic/pkg/models"
)

var (
	// 'count' not found for path 'Film.count'
	missingAggregatePattern = regexp.MustCompile(`'([^']+)' not found for path '([^.']+)\.([^']+)'`)
	// Can't find join path to join 'Actor', 'Address'
	missingJoinPathPattern = regexp.MustCompile(`Can't find join path to join '([^']+)', '([^']+)'`)
)

// FailureClassifier reads a semantic-layer error message into a structured failure.
// The reading is advisory: an unmatched message is Unclassified, never an error.
type FailureClassifier interface {
	Classify(message string) *models.FailureClassification
	ParseMissingAggregate(message string) (*models.FailureClassification, bool)
	ParseMissingJoinPath(message string) (*models.FailureClassification, bool)
}

type patternFailureClassifier struct{}

// NewFailureClassifier returns the classifier for the semantic layer's error prose.
func NewFailureClassifier() FailureClassifier {
	return &patternFailureClassifier{}
}

var _ FailureClassifier = (*patternFailureClassifier)(nil)

// Classify tries the missing-aggregate reading first, then the missing-join reading.
func (c *patternFailureClassifier) Classify(message string) *models.FailureClassification {
	if fc, ok := c.ParseMissingAggregate(message); ok {
		return fc
	}
	if fc, ok := c.ParseMissingJoinPath(message); ok {
		return fc
	}
	return &models.FailureClassification{
		Kind:       models.FailureUnclassified,
		RawMessage: message,
	}
}

func (c *patternFailureClassifier) ParseMissingAggregate(message string) (*models.FailureClassification, bool) {
	m := missingAggregatePattern.FindStringSubmatch(message)
	if m == nil {
		return nil, false
	}
	return &models.FailureClassification{
		Kind:       models.FailureMissingAggregate,
		Field:      m[1],
		Entity:     m[2],
		RawMessage: message,
	}, true
}

func (c *patternFailureClassifier) ParseMissingJoinPath(message string) (*models.FailureClassification, bool) {
	m := missingJoinPathPattern.FindStringSubmatch(message)
	if m == nil {
		return nil, false
	}
	return &models.FailureClassification{
		Kind:       models.FailureMissingJoinPath,
		FromEntity: m[1],
		ToEntity:   m[2],
		RawMessage: message,
	}, true
}

// FailureSuggestion renders the user hint for a classified failure.
// Unclassified failures have no hint.
func FailureSuggestion(fc *models.FailureClassification) string {
	if fc == nil {
		return ""
	}
	switch fc.Kind {
	case models.FailureMissingAggregate:
		return fmt.Sprintf("Missing measure: '%s' doesn't exist in the %s cube. "+
			"Regenerate the semantic layer after updating the catalog schema.", fc.Field, fc.Entity)
	case models.FailureMissingJoinPath:
		return fmt.Sprintf("Missing join: No relationship exists between %s and %s. "+
			"Try querying them separately, or add the relationship in the catalog.", fc.FromEntity, fc.ToEntity)
	default:
		return ""
	}
}
