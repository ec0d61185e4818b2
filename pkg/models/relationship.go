package models

import "fmt"

// RelationshipKind describes the cardinality of a relationship from the From side.
type RelationshipKind string

const (
	KindBelongsTo RelationshipKind = "belongsTo" // many-to-one
	KindHasMany   RelationshipKind = "hasMany"   // one-to-many
	KindHasOne    RelationshipKind = "hasOne"    // one-to-one
)

// IsValid reports whether k is one of the three supported kinds.
func (k RelationshipKind) IsValid() bool {
	switch k {
	case KindBelongsTo, KindHasMany, KindHasOne:
		return true
	default:
		return false
	}
}

// RelationshipSource records which evidence produced a relationship.
type RelationshipSource string

const (
	SourceForeignKey    RelationshipSource = "foreign_key"    // explicit FK constraint
	SourceNamingPattern RelationshipSource = "naming_pattern" // <entity>_id column naming
	SourceLLMInference  RelationshipSource = "llm_inference"  // suggested by the language model
)

// Confidence levels per evidence source.
const (
	ConfidenceForeignKey    = 1.0
	ConfidenceNamingPattern = 0.8
	// MinLLMConfidence is the admission threshold for LLM-suggested relationships.
	MinLLMConfidence = 0.7
)

// Relationship is one piece of join evidence between two entities.
// Relationships from different sources are kept side by side for the same pair.
type Relationship struct {
	FromEntity string             `json:"from_entity" yaml:"from_entity"`
	FromColumn string             `json:"from_column" yaml:"from_column"`
	ToEntity   string             `json:"to_entity" yaml:"to_entity"`
	ToColumn   string             `json:"to_column" yaml:"to_column"`
	Kind       RelationshipKind   `json:"kind" yaml:"kind"`
	Confidence float64            `json:"confidence" yaml:"confidence"`
	Source     RelationshipSource `json:"source" yaml:"source"`
}

// String renders the relationship the way it appears in prompts and logs.
func (r Relationship) String() string {
	return fmt.Sprintf("%s.%s -> %s.%s [%s, %s, confidence=%.2f]",
		r.FromEntity, r.FromColumn, r.ToEntity, r.ToColumn, r.Kind, r.Source, r.Confidence)
}

// RelationshipSuggestion is an unvalidated relationship proposed by the language model.
// Pointer fields distinguish "missing" from zero values during admission.
type RelationshipSuggestion struct {
	FromEntity *string  `json:"from_table"`
	FromColumn *string  `json:"from_column"`
	ToEntity   *string  `json:"to_table"`
	ToColumn   *string  `json:"to_column"`
	Kind       *string  `json:"relationship_type"`
	Confidence *float64 `json:"confidence"`
	Reasoning  string   `json:"reasoning,omitempty"`
}
