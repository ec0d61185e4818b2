package models

import (
	"strings"
)

// SemanticRole classifies what an entity represents in the analytical model.
type SemanticRole string

const (
	RoleFact        SemanticRole = "FACT"
	RoleDimension   SemanticRole = "DIMENSION"
	RoleTransaction SemanticRole = "TRANSACTION"
	RoleMaster      SemanticRole = "MASTER"
	RoleLookup      SemanticRole = "LOOKUP"
	RoleUnknown     SemanticRole = "UNKNOWN"
)

// Constraint types reported by the metadata catalog.
const (
	ConstraintForeignKey = "FOREIGN_KEY"
	ConstraintPrimaryKey = "PRIMARY_KEY"
	ConstraintUnique     = "UNIQUE"
)

// Table types reported by the metadata catalog.
const (
	TableTypeRegular = "Regular"
	TableTypeView    = "View"
)

// descriptionRoleHints are checked in order against the upper-cased description.
var descriptionRoleHints = []SemanticRole{RoleFact, RoleDimension, RoleTransaction, RoleMaster, RoleLookup}

// tagRoleHints are the tag fragments that mark a semantic role.
var tagRoleHints = []string{"FACT", "DIMENSION", "TRANSACTION"}

// Entity is a queryable table (a cube in the semantic layer).
// Entities are built once per analysis run and never mutated afterwards.
type Entity struct {
	Name        string       `json:"name"`
	FQN         string       `json:"fqn"`
	TableType   string       `json:"table_type"`
	Description string       `json:"description,omitempty"`
	Role        SemanticRole `json:"role"`
	RowCount    int64        `json:"row_count"`
	Columns     []Column     `json:"columns,omitempty"`
	Constraints []Constraint `json:"constraints,omitempty"`
}

// Column is a single column of an entity.
type Column struct {
	Name        string `json:"name"`
	DataType    string `json:"data_type,omitempty"`
	Constraint  string `json:"constraint,omitempty"` // PRIMARY_KEY, UNIQUE, NOT_NULL, ...
	Description string `json:"description,omitempty"`
}

// ReferredColumn identifies the target side of a foreign key.
// FQN has the form service.database.schema.table.column.
type ReferredColumn struct {
	Name string `json:"name,omitempty"`
	FQN  string `json:"fqn,omitempty"`
}

// Constraint is a table-level constraint.
type Constraint struct {
	Type            string           `json:"type"`
	Columns         []string         `json:"columns,omitempty"`
	ReferredColumns []ReferredColumn `json:"referred_columns,omitempty"`
}

// Tag is a classification label attached to an entity.
type Tag struct {
	FQN string `json:"tag_fqn"`
}

// InferSemanticRole derives the role from description keywords first, then tags.
func InferSemanticRole(description string, tags []Tag) SemanticRole {
	upper := strings.ToUpper(description)
	for _, hint := range descriptionRoleHints {
		if strings.Contains(upper, string(hint)) {
			return hint
		}
	}

	for _, tag := range tags {
		tagFQN := strings.ToUpper(tag.FQN)
		for _, hint := range tagRoleHints {
			if strings.Contains(tagFQN, hint) {
				parts := strings.Split(tagFQN, ".")
				return SemanticRole(parts[len(parts)-1])
			}
		}
	}

	return RoleUnknown
}

// IsFactLike reports whether the entity records events or transactions.
func (e *Entity) IsFactLike() bool {
	role := strings.ToUpper(string(e.Role))
	return strings.Contains(role, string(RoleFact)) || strings.Contains(role, string(RoleTransaction))
}

// IsDimensionLike reports whether the entity describes reference data.
func (e *Entity) IsDimensionLike() bool {
	role := strings.ToUpper(string(e.Role))
	return strings.Contains(role, string(RoleDimension)) ||
		strings.Contains(role, string(RoleMaster)) ||
		strings.Contains(role, string(RoleLookup))
}

// IsView reports whether the entity is backed by a database view.
func (e *Entity) IsView() bool {
	return e.TableType == TableTypeView
}

// KeyColumn infers the column other entities join to.
// Order: declared primary key, then "id" or "<entity>_id", then the first column.
func (e *Entity) KeyColumn() string {
	for _, col := range e.Columns {
		if col.Constraint == ConstraintPrimaryKey {
			return col.Name
		}
	}

	ownID := strings.ToLower(e.Name) + "_id"
	for _, col := range e.Columns {
		name := strings.ToLower(col.Name)
		if name == "id" || name == ownID {
			return col.Name
		}
	}

	if len(e.Columns) > 0 && e.Columns[0].Name != "" {
		return e.Columns[0].Name
	}
	return "id"
}

// ForeignKeys returns the entity's FOREIGN_KEY constraints.
func (e *Entity) ForeignKeys() []Constraint {
	var fks []Constraint
	for _, c := range e.Constraints {
		if c.Type == ConstraintForeignKey {
			fks = append(fks, c)
		}
	}
	return fks
}
