package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Filter operators accepted by the semantic layer.
const (
	OperatorEquals    = "equals"
	OperatorNotEquals = "notEquals"
	OperatorContains  = "contains"
	OperatorGTE       = "gte"
	OperatorLTE       = "lte"
	OperatorGT        = "gt"
	OperatorLT        = "lt"
)

// Order directions.
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

var validOperators = map[string]bool{
	OperatorEquals:    true,
	OperatorNotEquals: true,
	OperatorContains:  true,
	OperatorGTE:       true,
	OperatorLTE:       true,
	OperatorGT:        true,
	OperatorLT:        true,
}

// Operators returns the supported filter operators.
func Operators() []string {
	return []string{OperatorEquals, OperatorNotEquals, OperatorContains, OperatorGTE, OperatorLTE, OperatorGT, OperatorLT}
}

// allowedQueryKeys are the only top-level keys forwarded to the semantic layer.
// Joins are resolved by the engine from its own schema, so "joins" is never allowed.
var allowedQueryKeys = map[string]bool{
	"dimensions":     true,
	"measures":       true,
	"filters":        true,
	"order":          true,
	"limit":          true,
	"offset":         true,
	"timeDimensions": true,
}

// Query is a structured analytical request against the semantic layer.
type Query struct {
	Dimensions     []string          `json:"dimensions,omitempty"`
	Measures       []string          `json:"measures,omitempty"`
	Filters        []Filter          `json:"filters,omitempty"`
	Order          map[string]string `json:"order,omitempty"`
	Limit          int               `json:"limit,omitempty"`
	Offset         int               `json:"offset,omitempty"`
	TimeDimensions []TimeDimension   `json:"timeDimensions,omitempty"`
}

// Filter is a predicate over a single member.
type Filter struct {
	Member   string `json:"member"`
	Operator string `json:"operator"`
	Values   []any  `json:"values,omitempty"`
}

// TimeDimension is the semantic layer's time bucketing extension.
type TimeDimension struct {
	Dimension   string `json:"dimension"`
	Granularity string `json:"granularity,omitempty"`
	DateRange   any    `json:"dateRange,omitempty"`
}

// ParseQuery decodes a query object, dropping any keys the semantic layer does not accept.
// The removed keys are returned sorted so callers can report them.
func ParseQuery(data []byte) (*Query, []string, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("decode query object: %w", err)
	}

	var removed []string
	for key := range raw {
		if !allowedQueryKeys[key] {
			removed = append(removed, key)
			delete(raw, key)
		}
	}
	sort.Strings(removed)

	cleaned, err := json.Marshal(raw)
	if err != nil {
		return nil, removed, fmt.Errorf("re-encode query object: %w", err)
	}

	var q Query
	if err := json.Unmarshal(cleaned, &q); err != nil {
		return nil, removed, fmt.Errorf("decode query fields: %w", err)
	}
	return &q, removed, nil
}

// Validate checks the query's structure without consulting any schema.
func (q *Query) Validate() error {
	if len(q.Dimensions) == 0 && len(q.Measures) == 0 {
		return fmt.Errorf("query must have at least one dimension or measure")
	}

	for _, member := range q.Dimensions {
		if err := validateMember(member); err != nil {
			return fmt.Errorf("dimension: %w", err)
		}
	}
	for _, member := range q.Measures {
		if err := validateMember(member); err != nil {
			return fmt.Errorf("measure: %w", err)
		}
	}
	for _, td := range q.TimeDimensions {
		if err := validateMember(td.Dimension); err != nil {
			return fmt.Errorf("time dimension: %w", err)
		}
	}
	for _, f := range q.Filters {
		if err := validateMember(f.Member); err != nil {
			return fmt.Errorf("filter: %w", err)
		}
		if !validOperators[f.Operator] {
			return fmt.Errorf("filter on %s: unsupported operator %q", f.Member, f.Operator)
		}
	}
	for member, dir := range q.Order {
		if err := validateMember(member); err != nil {
			return fmt.Errorf("order: %w", err)
		}
		if dir != OrderAsc && dir != OrderDesc {
			return fmt.Errorf("order on %s: direction must be asc or desc, got %q", member, dir)
		}
	}
	if q.Limit < 0 {
		return fmt.Errorf("limit must not be negative")
	}
	if q.Offset < 0 {
		return fmt.Errorf("offset must not be negative")
	}
	return nil
}

// validateMember requires the Entity.field form with both parts present.
func validateMember(member string) error {
	entity, field, ok := strings.Cut(member, ".")
	if !ok || entity == "" || field == "" {
		return fmt.Errorf("member %q must have the form Entity.field", member)
	}
	return nil
}

// EntitySet returns the distinct entity names referenced by the query, in order of first
// appearance across measures, dimensions, time dimensions and filters.
func (q *Query) EntitySet() []string {
	seen := make(map[string]bool)
	var entities []string

	add := func(member string) {
		entity, _, ok := strings.Cut(member, ".")
		if !ok || entity == "" || seen[entity] {
			return
		}
		seen[entity] = true
		entities = append(entities, entity)
	}

	for _, m := range q.Measures {
		add(m)
	}
	for _, d := range q.Dimensions {
		add(d)
	}
	for _, td := range q.TimeDimensions {
		add(td.Dimension)
	}
	for _, f := range q.Filters {
		add(f.Member)
	}
	return entities
}

// Clone returns a deep copy so a repaired query never aliases the original.
func (q *Query) Clone() *Query {
	if q == nil {
		return nil
	}
	c := &Query{
		Dimensions: append([]string(nil), q.Dimensions...),
		Measures:   append([]string(nil), q.Measures...),
		Limit:      q.Limit,
		Offset:     q.Offset,
	}
	for _, f := range q.Filters {
		c.Filters = append(c.Filters, Filter{
			Member:   f.Member,
			Operator: f.Operator,
			Values:   append([]any(nil), f.Values...),
		})
	}
	if q.Order != nil {
		c.Order = make(map[string]string, len(q.Order))
		for k, v := range q.Order {
			c.Order[k] = v
		}
	}
	c.TimeDimensions = append([]TimeDimension(nil), q.TimeDimensions...)
	return c
}

// JSON renders the query with indentation for prompts.
func (q *Query) JSON() string {
	data, err := json.MarshalIndent(q, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}
