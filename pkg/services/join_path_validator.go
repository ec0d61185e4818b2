package services

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-semantic/pkg/models"
)

// MaxJoinPathHops is the longest join path (in edges) accepted without a warning.
const MaxJoinPathHops = 3

// Join suggestion types.
const (
	SuggestionSeparateQueries = "separate_queries"
	SuggestionRelatedEntities = "related_entities"
)

const (
	maxRelatedSuggestions   = 3 // neighbours named by a related_entities suggestion
	maxFormattedSuggestions = 3
)

// JoinSuggestion is a user-facing alternative for a rejected query.
type JoinSuggestion struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Example     string `json:"example,omitempty"`
}

// JoinValidation is the outcome of checking a query's entities against the graph.
type JoinValidation struct {
	Valid       bool             `json:"valid"`
	Warning     bool             `json:"warning,omitempty"`
	Message     string           `json:"message,omitempty"`
	Path        []string         `json:"path,omitempty"`
	FromEntity  string           `json:"from_entity,omitempty"`
	ToEntity    string           `json:"to_entity,omitempty"`
	Suggestions []JoinSuggestion `json:"suggestions,omitempty"`
}

// GraphSource supplies the current relationship graph. A nil graph means none was built.
type GraphSource interface {
	Graph() *RelationshipGraph
}

// JoinPathValidator checks that every pair of entities in a query can be joined.
type JoinPathValidator interface {
	Validate(entities []string) *JoinValidation
	ValidateQuery(q *models.Query) *JoinValidation
}

type joinPathValidator struct {
	graphs GraphSource
	logger *zap.Logger
}

// NewJoinPathValidator creates a validator reading from graphs on every call.
func NewJoinPathValidator(graphs GraphSource, logger *zap.Logger) JoinPathValidator {
	return &joinPathValidator{
		graphs: graphs,
		logger: logger.Named("join-validator"),
	}
}

var _ JoinPathValidator = (*joinPathValidator)(nil)

// ValidateQuery validates the entities the query references.
func (v *joinPathValidator) ValidateQuery(q *models.Query) *JoinValidation {
	return v.Validate(q.EntitySet())
}

// Validate checks every unordered pair in the given order. The first unreachable pair
// rejects the set; otherwise the longest path over MaxJoinPathHops is reported as a warning.
func (v *joinPathValidator) Validate(entities []string) *JoinValidation {
	if len(entities) <= 1 {
		return &JoinValidation{Valid: true}
	}

	graph := v.graphs.Graph()
	if graph == nil || !graph.HasEdges() {
		v.logger.Debug("Skipping join validation: relationship graph has no edges",
			zap.Strings("entities", entities))
		return &JoinValidation{Valid: true}
	}

	var longest []string
	var longFrom, longTo string

	for i := 0; i < len(entities); i++ {
		for j := i + 1; j < len(entities); j++ {
			a, b := entities[i], entities[j]

			path := graph.ShortestPath(a, b)
			if path == nil {
				v.logger.Info("No join path between entities",
					zap.String("from", a),
					zap.String("to", b))
				return &JoinValidation{
					Valid:       false,
					Message:     fmt.Sprintf("No join path exists between %s and %s", a, b),
					FromEntity:  a,
					ToEntity:    b,
					Suggestions: v.suggestAlternatives(graph, a, b),
				}
			}

			if len(path) > len(longest) {
				longest, longFrom, longTo = path, a, b
			}
		}
	}

	result := &JoinValidation{Valid: true, Path: longest}
	if hops := len(longest) - 1; hops > MaxJoinPathHops {
		result.Warning = true
		result.FromEntity = longFrom
		result.ToEntity = longTo
		result.Message = fmt.Sprintf("Join path between %s and %s is very long (%d hops). Results may be unexpected.",
			longFrom, longTo, hops)
	}
	return result
}

func (v *joinPathValidator) suggestAlternatives(graph *RelationshipGraph, from, to string) []JoinSuggestion {
	suggestions := []JoinSuggestion{{
		Type:        SuggestionSeparateQueries,
		Description: fmt.Sprintf("Query %s and %s separately", from, to),
		Example:     fmt.Sprintf("Try 'How many %ss are there?' and 'How many %ss are there?' separately", from, to),
	}}

	related := graph.Neighbors(from)
	if len(related) > 0 {
		if len(related) > maxRelatedSuggestions {
			related = related[:maxRelatedSuggestions]
		}
		suggestions = append(suggestions, JoinSuggestion{
			Type:        SuggestionRelatedEntities,
			Description: fmt.Sprintf("%s is directly related to: %s", from, strings.Join(related, ", ")),
			Example:     fmt.Sprintf("Try querying %s with one of these instead", from),
		})
	}

	return suggestions
}

// FormatValidationError renders a rejection and its suggestions as user text.
// Valid results render as the empty string.
func FormatValidationError(result *JoinValidation) string {
	if result == nil || result.Valid {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Cannot auto-fix: %s.", result.Message))

	if len(result.Suggestions) > 0 {
		sb.WriteString("\n\nSuggestions:")
		for i, s := range result.Suggestions {
			if i == maxFormattedSuggestions {
				break
			}
			sb.WriteString(fmt.Sprintf("\n%d. %s", i+1, s.Description))
		}
	}

	return sb.String()
}
