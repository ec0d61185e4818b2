package semantic

import (
	"fmt"
	"strings"
)

const (
	maxDimensionsInContext = 10
	maxJoinsInContext      = 5
	maxMemberDescription   = 100
)

// FormatMetaForLLM renders cube metadata as a compact markdown schema description.
// Only the first 10 dimensions and 5 related cubes of each cube are listed; measures are complete.
func FormatMetaForLLM(meta *Meta) string {
	var sb strings.Builder

	sb.WriteString("# Database Schema\n\n")
	if meta == nil {
		sb.WriteString("Available cubes (tables): 0\n")
		return sb.String()
	}
	fmt.Fprintf(&sb, "Available cubes (tables): %d\n\n", len(meta.Cubes))

	for _, cube := range meta.Cubes {
		fmt.Fprintf(&sb, "## %s\n", cube.Name)
		if cube.Title != "" && cube.Title != cube.Name {
			fmt.Fprintf(&sb, "**Title:** %s\n", cube.Title)
		}
		if cube.Description != "" {
			fmt.Fprintf(&sb, "**Description:** %s\n", cube.Description)
		}

		if len(cube.Dimensions) > 0 {
			fmt.Fprintf(&sb, "\n**Dimensions (%d):**\n", len(cube.Dimensions))
			for i, dim := range cube.Dimensions {
				if i == maxDimensionsInContext {
					fmt.Fprintf(&sb, "  ... and %d more\n", len(cube.Dimensions)-maxDimensionsInContext)
					break
				}
				writeMember(&sb, dim)
			}
		}

		if len(cube.Measures) > 0 {
			fmt.Fprintf(&sb, "\n**Measures (%d):**\n", len(cube.Measures))
			for _, measure := range cube.Measures {
				writeMember(&sb, measure)
			}
		}

		if len(cube.Joins) > 0 {
			names := make([]string, 0, maxJoinsInContext)
			for i, j := range cube.Joins {
				if i == maxJoinsInContext {
					break
				}
				names = append(names, j.Name)
			}
			sb.WriteString("\n**Related Cubes:** ")
			sb.WriteString(strings.Join(names, ", "))
			if len(cube.Joins) > maxJoinsInContext {
				fmt.Fprintf(&sb, " ... and %d more", len(cube.Joins)-maxJoinsInContext)
			}
			sb.WriteString("\n")
		}

		sb.WriteString("\n---\n\n")
	}

	return sb.String()
}

func writeMember(sb *strings.Builder, m Member) {
	fmt.Fprintf(sb, "- `%s` (%s)", m.Name, m.Type)
	if m.Description != "" {
		sb.WriteString(": ")
		sb.WriteString(truncate(m.Description, maxMemberDescription))
	}
	sb.WriteString("\n")
}
