package prompts

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-semantic/pkg/catalog"
)

const (
	maxSampleRows       = 5
	maxHistogramBuckets = 5
)

// BuildEnrichmentSystemMessage returns the system message for table metadata enrichment,
// including the JSON schema the reply must follow.
func BuildEnrichmentSystemMessage() string {
	return `You are a data catalog analyst generating metadata for a business data dictionary.

For each table provided, generate:
1. A business-friendly table description (2-3 sentences: what it stores, who uses it, why it matters)
2. A description for each column (1 sentence: business meaning, not just restating the type)
3. PII classification per column (EMAIL, PHONE, NAME, ADDRESS, SSN, CREDIT_CARD, IP_ADDRESS, or NONE)
4. A semantic type per column (ID, NAME, AMOUNT, QUANTITY, DATE, FLAG, CATEGORY, REFERENCE, METRIC, TEXT, OTHER)
5. Table classification (DIMENSION, FACT, TRANSACTION, MASTER, LOOKUP, STAGING, or UNKNOWN)

Use the profiler statistics, sample data, column names, types, constraints and foreign keys.
Low cardinality columns with distributions tell you the actual domain values.
PII assessment should be based on column names, data types AND sample values.

Respond ONLY with valid JSON matching this schema:
{
  "table_description": "2-3 sentence business description",
  "table_type": "DIMENSION|FACT|TRANSACTION|MASTER|LOOKUP|STAGING|UNKNOWN",
  "pii_risk": "HIGH|MEDIUM|LOW|NONE",
  "columns": {
    "column_name": {
      "description": "1 sentence business description",
      "semantic_type": "ID|NAME|AMOUNT|QUANTITY|DATE|FLAG|CATEGORY|REFERENCE|METRIC|TEXT|OTHER",
      "pii_type": "EMAIL|PHONE|NAME|ADDRESS|SSN|CREDIT_CARD|IP_ADDRESS|NONE",
      "confidence": 0.9
    }
  }
}`
}

// BuildTableContext renders a catalog table, its profile and up to five sample rows
// as the user message for enrichment.
func BuildTableContext(table *catalog.Table) string {
	var sb strings.Builder

	tableType := table.TableType
	if tableType == "" {
		tableType = "Regular"
	}

	sb.WriteString(fmt.Sprintf("Table: %s\n", table.FQN()))
	sb.WriteString(fmt.Sprintf("Table Type: %s\n", tableType))
	if table.Profile != nil && table.Profile.RowCount != nil {
		sb.WriteString(fmt.Sprintf("Row Count: %d\n", table.RowCount()))
	} else {
		sb.WriteString("Row Count: unknown\n")
	}
	columnCount := len(table.Columns)
	if table.Profile != nil && table.Profile.ColumnCount != nil {
		columnCount = int(*table.Profile.ColumnCount)
	}
	sb.WriteString(fmt.Sprintf("Column Count: %d\n", columnCount))
	if table.Description != "" {
		sb.WriteString(fmt.Sprintf("Existing Description: %s\n", table.Description))
	}

	if len(table.TableConstraints) > 0 {
		sb.WriteString("\nTable Constraints:\n")
		for _, c := range table.TableConstraints {
			cols := "[" + strings.Join(c.Columns, ", ") + "]"
			if len(c.ReferredColumns) == 0 {
				sb.WriteString(fmt.Sprintf("  %s: %s\n", c.ConstraintType, cols))
				continue
			}
			refs := make([]string, 0, len(c.ReferredColumns))
			for _, r := range c.ReferredColumns {
				refs = append(refs, r.FullyQualifiedName)
			}
			sb.WriteString(fmt.Sprintf("  %s: %s -> [%s]\n", c.ConstraintType, cols, strings.Join(refs, ", ")))
		}
	}

	sb.WriteString("\nColumns:\n")
	for _, col := range table.Columns {
		sb.WriteString("  - ")
		sb.WriteString(formatColumn(col))
		sb.WriteString("\n")
	}

	if sample := table.SampleData; sample != nil && len(sample.Rows) > 0 {
		rows := sample.Rows
		if len(rows) > maxSampleRows {
			rows = rows[:maxSampleRows]
		}
		sb.WriteString(fmt.Sprintf("\nSample Data (%d rows):\n", len(rows)))
		for _, row := range rows {
			record := make(map[string]any, len(sample.Columns))
			for i, name := range sample.Columns {
				if i < len(row) {
					record[name] = row[i]
				}
			}
			encoded, err := json.Marshal(record)
			if err != nil {
				continue
			}
			sb.WriteString("  ")
			sb.Write(encoded)
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

// formatColumn renders "name type [CONSTRAINT] (stats)".
func formatColumn(col catalog.Column) string {
	dataType := col.DataTypeDisplay
	if dataType == "" {
		dataType = col.DataType
	}

	result := col.Name + " " + dataType
	if col.Constraint != "" {
		result += " [" + col.Constraint + "]"
	}

	p := col.Profile
	if p == nil {
		return result
	}

	var stats []string
	if p.DistinctCount != nil {
		stats = append(stats, fmt.Sprintf("distinct=%g", *p.DistinctCount))
	}
	if p.NullCount != nil {
		stats = append(stats, fmt.Sprintf("nulls=%g", *p.NullCount))
	}
	if p.NullProportion != nil {
		stats = append(stats, fmt.Sprintf("null%%=%.1f%%", *p.NullProportion*100))
	}
	if p.Min != nil {
		stats = append(stats, fmt.Sprintf("min=%v", p.Min))
	}
	if p.Max != nil {
		stats = append(stats, fmt.Sprintf("max=%v", p.Max))
	}
	if p.Mean != nil {
		stats = append(stats, fmt.Sprintf("mean=%.2f", *p.Mean))
	}
	if h := p.Histogram; h != nil && len(h.Boundaries) > 0 && len(h.Frequencies) > 0 {
		n := min(len(h.Boundaries), len(h.Frequencies), maxHistogramBuckets)
		values := make([]string, 0, n)
		for i := 0; i < n; i++ {
			values = append(values, fmt.Sprintf("%v: %v", h.Boundaries[i], h.Frequencies[i]))
		}
		stats = append(stats, "values=["+strings.Join(values, ", ")+"]")
	}

	if len(stats) > 0 {
		result += " (" + strings.Join(stats, ", ") + ")"
	}
	return result
}
