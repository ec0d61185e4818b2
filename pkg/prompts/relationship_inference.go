package prompts

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ekaya-inc/ekaya-semantic/pkg/models"
)

// BuildRelationshipInferencePrompt describes the schema and the relationships already
// found from foreign keys and naming patterns. Fact-like tables are listed first.
func BuildRelationshipInferencePrompt(entities []models.Entity, known []models.Relationship) string {
	var prompt strings.Builder

	facts, dimensions := 0, 0
	for i := range entities {
		if entities[i].IsFactLike() {
			facts++
		}
		if entities[i].IsDimensionLike() {
			dimensions++
		}
	}

	prompt.WriteString("# Database Schema Analysis\n\n")
	prompt.WriteString(fmt.Sprintf("Total Tables: %d\n", len(entities)))
	prompt.WriteString(fmt.Sprintf("Fact Tables: %d\n", facts))
	prompt.WriteString(fmt.Sprintf("Dimension Tables: %d\n", dimensions))
	prompt.WriteString(fmt.Sprintf("Known Relationships: %d\n\n", len(known)))

	ordered := make([]models.Entity, len(entities))
	copy(ordered, entities)
	sort.SliceStable(ordered, func(i, j int) bool {
		fi, fj := ordered[i].IsFactLike(), ordered[j].IsFactLike()
		if fi != fj {
			return fi
		}
		return ordered[i].Name < ordered[j].Name
	})

	prompt.WriteString("## Tables\n\n")
	for _, e := range ordered {
		prompt.WriteString(fmt.Sprintf("### %s (%s)\n", e.Name, e.Role))
		prompt.WriteString(fmt.Sprintf("Rows: %d\n", e.RowCount))
		description := e.Description
		if description == "" {
			description = "N/A"
		}
		prompt.WriteString(fmt.Sprintf("Description: %s\n", description))
		prompt.WriteString("Columns:\n")
		for _, col := range e.Columns {
			line := fmt.Sprintf("  - %s (%s) %s", col.Name, col.DataType, col.Constraint)
			prompt.WriteString(strings.TrimRight(line, " ") + "\n")
		}
		prompt.WriteString("\n")
	}

	if len(known) > 0 {
		prompt.WriteString("## Known Relationships\n\n")
		for _, rel := range known {
			prompt.WriteString(fmt.Sprintf("- %s\n", rel.String()))
		}
		prompt.WriteString("\n")
	}

	return prompt.String()
}

// BuildRelationshipInferenceSystemMessage returns the system message, which carries the
// response schema.
func BuildRelationshipInferenceSystemMessage() string {
	return `You are a database architect analyzing a schema to identify table relationships.

Given the schema information, identify:
1. Missing relationships not captured by foreign keys
2. The nature of each relationship (belongsTo, hasMany, hasOne)
3. Join paths for common business queries

Focus on the semantic meaning of tables (facts vs dimensions), column name patterns and types,
and business logic relationships.

Respond ONLY with valid JSON matching this schema:
{
  "additional_relationships": [
    {
      "from_table": "table_name",
      "from_column": "column_name",
      "to_table": "referenced_table",
      "to_column": "referenced_column",
      "relationship_type": "belongsTo|hasMany|hasOne",
      "confidence": 0.9,
      "reasoning": "Brief explanation of why this relationship exists"
    }
  ],
  "common_join_paths": [
    {
      "name": "Customer Rentals",
      "description": "Join path for analyzing customer rental patterns",
      "tables": ["customer", "rental", "inventory", "film"]
    }
  ],
  "suggested_metrics": [
    {
      "name": "total_revenue",
      "description": "Sum of all payment amounts",
      "table": "payment",
      "aggregation": "sum",
      "column": "amount"
    }
  ]
}

IMPORTANT:
- Only suggest relationships with high confidence (>0.7)
- belongsTo is many-to-one, hasMany is one-to-many, hasOne is one-to-one
- Do not repeat known relationships
- Use table names exactly as listed`
}
