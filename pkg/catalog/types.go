package catalog

import (
	"encoding/json"
	"strings"

	"github.com/ekaya-inc/ekaya-semantic/pkg/models"
)

// Table is a table entity as returned by the catalog's /v1/tables endpoints.
// Only the fields this service reads are decoded.
type Table struct {
	ID                 string            `json:"id"`
	Name               string            `json:"name"`
	FullyQualifiedName string            `json:"fullyQualifiedName,omitempty"`
	TableType          string            `json:"tableType,omitempty"`
	Description        string            `json:"description,omitempty"`
	Columns            []Column          `json:"columns,omitempty"`
	TableConstraints   []TableConstraint `json:"tableConstraints,omitempty"`
	Tags               []TagLabel        `json:"tags,omitempty"`
	Profile            *TableProfile     `json:"profile,omitempty"`
	SampleData         *SampleData       `json:"sampleData,omitempty"`
}

// Column is a table column with optional profiler statistics.
type Column struct {
	Name            string         `json:"name"`
	DataType        string         `json:"dataType,omitempty"`
	DataTypeDisplay string         `json:"dataTypeDisplay,omitempty"`
	Constraint      string         `json:"constraint,omitempty"`
	Description     string         `json:"description,omitempty"`
	Tags            []TagLabel     `json:"tags,omitempty"`
	Profile         *ColumnProfile `json:"profile,omitempty"`
}

// TableConstraint is a PRIMARY_KEY, UNIQUE or FOREIGN_KEY constraint.
type TableConstraint struct {
	ConstraintType  string           `json:"constraintType"`
	Columns         []string         `json:"columns,omitempty"`
	ReferredColumns []ReferredColumn `json:"referredColumns,omitempty"`
}

// ReferredColumn is the target of a foreign key.
// The catalog sends either an object or, in older versions, a bare FQN string.
type ReferredColumn struct {
	Name               string `json:"name,omitempty"`
	FullyQualifiedName string `json:"fullyQualifiedName,omitempty"`
}

// UnmarshalJSON accepts both the object and the legacy string form. Any other shape
// decodes to an empty column, which relationship discovery skips.
func (r *ReferredColumn) UnmarshalJSON(data []byte) error {
	var fqn string
	if err := json.Unmarshal(data, &fqn); err == nil {
		r.FullyQualifiedName = fqn
		r.Name = fqn
		if idx := strings.LastIndex(fqn, "."); idx >= 0 {
			r.Name = fqn[idx+1:]
		}
		return nil
	}

	type plain ReferredColumn
	var obj plain
	if err := json.Unmarshal(data, &obj); err != nil {
		*r = ReferredColumn{}
		return nil
	}
	*r = ReferredColumn(obj)
	return nil
}

// TagLabel is a classification tag attached to a table or column.
type TagLabel struct {
	TagFQN string `json:"tagFQN"`
	Source string `json:"source,omitempty"`
}

// TableProfile holds table-level profiler output.
type TableProfile struct {
	RowCount    *float64 `json:"rowCount,omitempty"`
	ColumnCount *float64 `json:"columnCount,omitempty"`
}

// ColumnProfile holds column-level profiler output.
// Min and Max keep whatever JSON type the profiler produced.
type ColumnProfile struct {
	DistinctCount  *float64   `json:"distinctCount,omitempty"`
	NullCount      *float64   `json:"nullCount,omitempty"`
	NullProportion *float64   `json:"nullProportion,omitempty"`
	Min            any        `json:"min,omitempty"`
	Max            any        `json:"max,omitempty"`
	Mean           *float64   `json:"mean,omitempty"`
	Histogram      *Histogram `json:"histogram,omitempty"`
}

// Histogram is the value distribution of a column.
type Histogram struct {
	Boundaries  []any `json:"boundaries,omitempty"`
	Frequencies []any `json:"frequencies,omitempty"`
}

// SampleData is a small set of example rows.
type SampleData struct {
	Columns []string `json:"columns,omitempty"`
	Rows    [][]any  `json:"rows,omitempty"`
}

// tableListResponse is one page of /v1/tables.
type tableListResponse struct {
	Data   []Table `json:"data"`
	Paging struct {
		After string `json:"after,omitempty"`
		Total int    `json:"total,omitempty"`
	} `json:"paging"`
}

// PatchOperation is a single RFC 6902 JSON Patch operation.
type PatchOperation struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
}

// FQN returns the fully qualified name, falling back to the bare name.
func (t *Table) FQN() string {
	if t.FullyQualifiedName != "" {
		return t.FullyQualifiedName
	}
	return t.Name
}

// RowCount returns the profiled row count, or 0 when the table was never profiled.
func (t *Table) RowCount() int64 {
	if t.Profile == nil || t.Profile.RowCount == nil {
		return 0
	}
	return int64(*t.Profile.RowCount)
}

// ToEntity converts the catalog table into the immutable entity used for graph building.
func (t *Table) ToEntity() models.Entity {
	tableType := t.TableType
	if tableType == "" {
		tableType = models.TableTypeRegular
	}

	tags := make([]models.Tag, 0, len(t.Tags))
	for _, tag := range t.Tags {
		tags = append(tags, models.Tag{FQN: tag.TagFQN})
	}

	entity := models.Entity{
		Name:        t.Name,
		FQN:         t.FQN(),
		TableType:   tableType,
		Description: t.Description,
		Role:        models.InferSemanticRole(t.Description, tags),
		RowCount:    t.RowCount(),
	}

	for _, col := range t.Columns {
		entity.Columns = append(entity.Columns, models.Column{
			Name:        col.Name,
			DataType:    col.DataType,
			Constraint:  col.Constraint,
			Description: col.Description,
		})
	}

	for _, tc := range t.TableConstraints {
		c := models.Constraint{
			Type:    tc.ConstraintType,
			Columns: append([]string(nil), tc.Columns...),
		}
		for _, rc := range tc.ReferredColumns {
			c.ReferredColumns = append(c.ReferredColumns, models.ReferredColumn{
				Name: rc.Name,
				FQN:  rc.FullyQualifiedName,
			})
		}
		entity.Constraints = append(entity.Constraints, c)
	}

	return entity
}
