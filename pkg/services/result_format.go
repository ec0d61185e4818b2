package services

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ekaya-inc/ekaya-semantic/pkg/models"
)

// ResultColumns orders result columns: the query's dimensions, time dimensions and measures
// as they appear in the rows, then any remaining keys of the first row sorted by name.
// A nil query gives the sorted keys of the first row.
func ResultColumns(query *models.Query, rows []map[string]any) []string {
	if len(rows) == 0 {
		return nil
	}
	first := rows[0]
	seen := make(map[string]bool, len(first))
	var columns []string

	add := func(name string) {
		if _, ok := first[name]; ok && !seen[name] {
			seen[name] = true
			columns = append(columns, name)
		}
	}

	if query != nil {
		for _, d := range query.Dimensions {
			add(d)
		}
		for _, td := range query.TimeDimensions {
			add(td.Dimension)
			if td.Granularity != "" {
				add(td.Dimension + "." + td.Granularity)
			}
		}
		for _, m := range query.Measures {
			add(m)
		}
	}

	var rest []string
	for key := range first {
		if !seen[key] {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	return append(columns, rest...)
}

// FormatResultsAsTable renders rows as a padded plain-text table.
func FormatResultsAsTable(rows []map[string]any, columns []string) string {
	if len(rows) == 0 {
		return "No results"
	}
	if len(columns) == 0 {
		columns = ResultColumns(nil, rows)
	}

	widths := make([]int, len(columns))
	for i, col := range columns {
		widths[i] = utf8.RuneCountInString(col)
		for _, row := range rows {
			if w := utf8.RuneCountInString(cellText(row, col)); w > widths[i] {
				widths[i] = w
			}
		}
	}

	var sb strings.Builder
	header := make([]string, len(columns))
	separator := make([]string, len(columns))
	for i, col := range columns {
		header[i] = pad(col, widths[i])
		separator[i] = strings.Repeat("-", widths[i])
	}
	sb.WriteString(strings.Join(header, " | "))
	sb.WriteString("\n")
	sb.WriteString(strings.Join(separator, "-+-"))

	cells := make([]string, len(columns))
	for _, row := range rows {
		for i, col := range columns {
			cells[i] = pad(cellText(row, col), widths[i])
		}
		sb.WriteString("\n")
		sb.WriteString(strings.Join(cells, " | "))
	}
	return sb.String()
}

// FormatResultsAsMarkdown renders rows as a markdown table.
func FormatResultsAsMarkdown(rows []map[string]any, columns []string) string {
	if len(rows) == 0 {
		return "_No results_"
	}
	if len(columns) == 0 {
		columns = ResultColumns(nil, rows)
	}

	var sb strings.Builder
	sb.WriteString("| " + strings.Join(columns, " | ") + " |\n")

	dashes := make([]string, len(columns))
	for i := range dashes {
		dashes[i] = "---"
	}
	sb.WriteString("| " + strings.Join(dashes, " | ") + " |")

	cells := make([]string, len(columns))
	for _, row := range rows {
		for i, col := range columns {
			cells[i] = cellText(row, col)
		}
		sb.WriteString("\n| " + strings.Join(cells, " | ") + " |")
	}
	return sb.String()
}

// cellText renders a missing or null value as an empty cell.
func cellText(row map[string]any, column string) string {
	v, ok := row[column]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func pad(s string, width int) string {
	if n := utf8.RuneCountInString(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}
