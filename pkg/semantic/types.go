package semantic

import (
	"github.com/ekaya-inc/ekaya-semantic/pkg/models"
)

// Meta is the semantic layer's /meta response.
type Meta struct {
	Cubes []Cube `json:"cubes"`
}

// Cube is one queryable entity with its members.
type Cube struct {
	Name        string   `json:"name"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Dimensions  []Member `json:"dimensions,omitempty"`
	Measures    []Member `json:"measures,omitempty"`
	Joins       []Join   `json:"joins,omitempty"`
}

// Member is a dimension or measure.
type Member struct {
	Name        string `json:"name"`
	Title       string `json:"title,omitempty"`
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
}

// Join is a declared join from the owning cube to another cube.
type Join struct {
	Name         string `json:"name"`
	Relationship string `json:"relationship,omitempty"`
}

// CubeSummary is the compact schema view returned by get_schema.
type CubeSummary struct {
	Name        string   `json:"name"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Dimensions  []string `json:"dimensions"`
	Measures    []string `json:"measures"`
	Joins       []string `json:"joins"`
}

// loadRequest is the body of POST /load.
type loadRequest struct {
	Query *models.Query `json:"query"`
}

// LoadResponse is the body of a /load response. Error is set instead of Data
// when the engine rejected the query.
type LoadResponse struct {
	Data  []map[string]any `json:"data"`
	Query struct {
		SQL string `json:"sql,omitempty"`
	} `json:"query"`
	Error string `json:"error,omitempty"`
}

// CubeNames returns the names of all cubes in declaration order.
func (m *Meta) CubeNames() []string {
	names := make([]string, 0, len(m.Cubes))
	for _, c := range m.Cubes {
		names = append(names, c.Name)
	}
	return names
}

// Summaries returns the compact view of every cube.
func (m *Meta) Summaries() []CubeSummary {
	summaries := make([]CubeSummary, 0, len(m.Cubes))
	for _, c := range m.Cubes {
		s := CubeSummary{
			Name:        c.Name,
			Title:       c.Title,
			Description: truncate(c.Description, 200),
			Dimensions:  make([]string, 0, len(c.Dimensions)),
			Measures:    make([]string, 0, len(c.Measures)),
			Joins:       make([]string, 0, len(c.Joins)),
		}
		for _, d := range c.Dimensions {
			s.Dimensions = append(s.Dimensions, d.Name)
		}
		for _, ms := range c.Measures {
			s.Measures = append(s.Measures, ms.Name)
		}
		for _, j := range c.Joins {
			s.Joins = append(s.Joins, j.Name)
		}
		summaries = append(summaries, s)
	}
	return summaries
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
