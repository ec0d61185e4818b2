package services

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// NormalizeEntityName folds catalog table names and cube names onto one key:
// "film_actor", "FilmActor" and "FILM_ACTOR" all become "filmactor".
func NormalizeEntityName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "")
}

// EntityGraph is an undirected graph of entities connected by relationships.
// Nodes are keyed by NormalizeEntityName; the first spelling seen is kept for display.
type EntityGraph struct {
	// Adjacency set: entity -> entities it's connected to
	edges map[string]map[string]bool
	// Display name per normalized key
	names map[string]string
}

// NewEntityGraph creates a new empty entity graph.
func NewEntityGraph() *EntityGraph {
	return &EntityGraph{
		edges: make(map[string]map[string]bool),
		names: make(map[string]string),
	}
}

// AddEntity adds an entity to the graph without any edges.
// Used to track entities that have no relationships.
func (g *EntityGraph) AddEntity(name string) string {
	key := NormalizeEntityName(name)
	if key == "" {
		return ""
	}
	if _, ok := g.names[key]; !ok {
		g.names[key] = name
	}
	return key
}

// AddEdge adds an undirected edge. Self-loops are recorded as nodes only.
func (g *EntityGraph) AddEdge(from, to string) {
	a := g.AddEntity(from)
	b := g.AddEntity(to)
	if a == "" || b == "" || a == b {
		return
	}

	if g.edges[a] == nil {
		g.edges[a] = make(map[string]bool)
	}
	if g.edges[b] == nil {
		g.edges[b] = make(map[string]bool)
	}
	g.edges[a][b] = true
	g.edges[b][a] = true
}

// HasEntity reports whether name (in any spelling) is a node of the graph.
func (g *EntityGraph) HasEntity(name string) bool {
	_, ok := g.names[NormalizeEntityName(name)]
	return ok
}

// EdgeCount returns the number of undirected edges.
func (g *EntityGraph) EdgeCount() int {
	total := 0
	for _, adj := range g.edges {
		total += len(adj)
	}
	return total / 2
}

// EntityCount returns the number of nodes.
func (g *EntityGraph) EntityCount() int {
	return len(g.names)
}

// Neighbors returns the display names of the entity's direct neighbours, sorted.
func (g *EntityGraph) Neighbors(name string) []string {
	keys := g.sortedNeighbors(NormalizeEntityName(name))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, g.names[k])
	}
	sort.Strings(out)
	return out
}

func (g *EntityGraph) sortedNeighbors(key string) []string {
	adj := g.edges[key]
	keys := make([]string, 0, len(adj))
	for k := range adj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ShortestPath returns the entities on a shortest path from one entity to another,
// endpoints included, or nil when no path exists. Neighbours are expanded in sorted
// order so equal-length paths resolve the same way every time.
func (g *EntityGraph) ShortestPath(from, to string) []string {
	start := NormalizeEntityName(from)
	goal := NormalizeEntityName(to)
	if _, ok := g.names[start]; !ok {
		return nil
	}
	if _, ok := g.names[goal]; !ok {
		return nil
	}
	if start == goal {
		return []string{g.names[start]}
	}

	parent := map[string]string{start: ""}
	queue := []string{start}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, next := range g.sortedNeighbors(current) {
			if _, seen := parent[next]; seen {
				continue
			}
			parent[next] = current
			if next == goal {
				return g.walkBack(parent, goal)
			}
			queue = append(queue, next)
		}
	}

	return nil
}

func (g *EntityGraph) walkBack(parent map[string]string, goal string) []string {
	var reversed []string
	for node := goal; node != ""; node = parent[node] {
		reversed = append(reversed, g.names[node])
	}
	path := make([]string, len(reversed))
	for i, name := range reversed {
		path[len(reversed)-1-i] = name
	}
	return path
}

// ConnectedComponent represents a group of entities connected by relationships.
type ConnectedComponent struct {
	Entities []string `json:"entities" yaml:"entities"`
	Size     int      `json:"size" yaml:"size"`
}

// FindConnectedComponents identifies all connected components in the graph using DFS.
// Returns components sorted by size (largest first, then by first entity) and the
// sorted list of island entities.
func (g *EntityGraph) FindConnectedComponents() ([]ConnectedComponent, []string) {
	keys := make([]string, 0, len(g.names))
	for k := range g.names {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	visited := make(map[string]bool)
	var components []ConnectedComponent

	for _, key := range keys {
		if !visited[key] {
			component := g.dfs(key, visited)
			components = append(components, ConnectedComponent{
				Entities: component,
				Size:     len(component),
			})
		}
	}

	// Separate out island entities (components with size 1)
	var nonIslands []ConnectedComponent
	var islands []string

	for _, comp := range components {
		if comp.Size == 1 {
			islands = append(islands, comp.Entities[0])
		} else {
			nonIslands = append(nonIslands, comp)
		}
	}

	sort.SliceStable(nonIslands, func(i, j int) bool {
		if nonIslands[i].Size != nonIslands[j].Size {
			return nonIslands[i].Size > nonIslands[j].Size
		}
		return nonIslands[i].Entities[0] < nonIslands[j].Entities[0]
	})
	sort.Strings(islands)

	return nonIslands, islands
}

// dfs performs depth-first search starting from an entity.
// Returns the sorted display names of all entities in the connected component.
func (g *EntityGraph) dfs(start string, visited map[string]bool) []string {
	var component []string
	stack := []string{start}

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if visited[current] {
			continue
		}

		visited[current] = true
		component = append(component, g.names[current])

		for neighbor := range g.edges[current] {
			if !visited[neighbor] {
				stack = append(stack, neighbor)
			}
		}
	}

	sort.Strings(component)
	return component
}

// LogConnectivity logs the connectivity analysis results in a human-readable format.
func LogConnectivity(
	relationshipCount int,
	components []ConnectedComponent,
	islands []string,
	logger *zap.Logger,
) {
	logger.Info("Graph connectivity analysis:")
	logger.Info(fmt.Sprintf("  Relationships: %d", relationshipCount))

	if len(components) > 0 {
		for i, comp := range components {
			preview, suffix := previewList(comp.Entities, 5)
			logger.Info(fmt.Sprintf("  Component %d (%d entities): %v%s",
				i+1, comp.Size, preview, suffix))
		}
	}

	if len(islands) > 0 {
		preview, suffix := previewList(islands, 5)
		logger.Info(fmt.Sprintf("  Island entities (%d): %v%s", len(islands), preview, suffix))
	}

	logger.Info(fmt.Sprintf("Summary: %d connected components, %d island entities need bridging",
		len(components), len(islands)))
}

// previewList shows the first n items, then "(k more)".
func previewList(items []string, n int) ([]string, string) {
	if len(items) <= n {
		return items, ""
	}
	return items[:n], fmt.Sprintf(", ... (%d more)", len(items)-n)
}
