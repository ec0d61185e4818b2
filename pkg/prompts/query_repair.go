package prompts

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-semantic/pkg/models"
)

// Response markers the repair reply is parsed by.
const (
	MarkerFixed       = "FIXED:"
	MarkerQuery       = "QUERY:"
	MarkerExplanation = "EXPLANATION:"
)

// BuildQueryRepairPrompt asks the model to either correct a failing query or explain
// why it cannot be corrected, answering in the FIXED/QUERY/EXPLANATION protocol.
func BuildQueryRepairPrompt(question string, failingQuery *models.Query, errorMessage, schemaContext string) string {
	var prompt strings.Builder

	prompt.WriteString("A semantic layer query failed. Either fix it or explain why it can't be fixed.\n\n")

	prompt.WriteString("USER QUESTION:\n")
	prompt.WriteString(question)
	prompt.WriteString("\n\n")

	prompt.WriteString("FAILED QUERY:\n```json\n")
	prompt.WriteString(failingQuery.JSON())
	prompt.WriteString("\n```\n\n")

	prompt.WriteString("ERROR MESSAGE:\n")
	prompt.WriteString(errorMessage)
	prompt.WriteString("\n\n")

	prompt.WriteString("AVAILABLE SCHEMA:\n")
	prompt.WriteString(schemaContext)
	prompt.WriteString("\n\n")

	prompt.WriteString("INSTRUCTIONS:\n")
	prompt.WriteString("Common fixable issues:\n")
	prompt.WriteString("1. Wrong cube chosen: if no join path exists between two cubes, check whether one cube already has the needed dimensions\n")
	prompt.WriteString("2. Invalid join: if the query joins unrelated cubes, query the single cube that holds the data\n")
	prompt.WriteString("3. Missing measure: if a measure is not found, use a measure that exists in the schema\n")
	prompt.WriteString("4. Wrong approach: filter on an existing dimension instead of joining\n\n")
	prompt.WriteString("Never add a \"joins\" key; joins are resolved by the semantic layer.\n")
	prompt.WriteString(fmt.Sprintf("Allowed filter operators: %s.\n\n", strings.Join(models.Operators(), ", ")))

	prompt.WriteString("If you CAN fix it, respond with:\n")
	prompt.WriteString(MarkerFixed + " true\n")
	prompt.WriteString(MarkerQuery + " <corrected JSON query>\n")
	prompt.WriteString(MarkerExplanation + " <brief explanation of what you fixed>\n\n")

	prompt.WriteString("If you CANNOT fix it, respond with:\n")
	prompt.WriteString(MarkerFixed + " false\n")
	prompt.WriteString(MarkerExplanation + " <why the query can't work and what the user should do instead>\n\n")

	prompt.WriteString("Respond now:")

	return prompt.String()
}

// BuildQueryRepairSystemMessage returns the system message for query repair.
func BuildQueryRepairSystemMessage() string {
	return `You are a semantic layer query expert. You correct failing analytical queries using only the cubes, dimensions and measures in the provided schema.`
}
