package services

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-semantic/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-semantic/pkg/models"
)

// RelationshipGraph is the immutable result of one analysis run: the entities, every
// admitted relationship from every source, and the undirected join graph over them.
type RelationshipGraph struct {
	entities      []models.Entity
	byName        map[string]int
	relationships []models.Relationship
	graph         *EntityGraph
	builtAt       time.Time
}

// NewRelationshipGraph builds the graph view over already admitted relationships.
// Relationships whose endpoints are not among the entities are ignored.
func NewRelationshipGraph(entities []models.Entity, relationships []models.Relationship) *RelationshipGraph {
	g := &RelationshipGraph{
		entities: append([]models.Entity(nil), entities...),
		byName:   make(map[string]int, len(entities)),
		graph:    NewEntityGraph(),
		builtAt:  time.Now(),
	}

	for i, e := range g.entities {
		g.byName[NormalizeEntityName(e.Name)] = i
		g.graph.AddEntity(e.Name)
	}

	for _, rel := range relationships {
		if !g.HasEntity(rel.FromEntity) || !g.HasEntity(rel.ToEntity) {
			continue
		}
		g.relationships = append(g.relationships, rel)
		g.graph.AddEdge(rel.FromEntity, rel.ToEntity)
	}

	return g
}

// Entities returns the entities in catalog order.
func (g *RelationshipGraph) Entities() []models.Entity {
	return append([]models.Entity(nil), g.entities...)
}

// Entity looks an entity up by name in any spelling.
func (g *RelationshipGraph) Entity(name string) (models.Entity, bool) {
	i, ok := g.byName[NormalizeEntityName(name)]
	if !ok {
		return models.Entity{}, false
	}
	return g.entities[i], true
}

// HasEntity reports whether name (in any spelling) is a known entity.
func (g *RelationshipGraph) HasEntity(name string) bool {
	_, ok := g.byName[NormalizeEntityName(name)]
	return ok
}

// RequireEntity returns an error wrapping apperrors.ErrEntityNotFound when name is unknown.
func (g *RelationshipGraph) RequireEntity(name string) error {
	if !g.HasEntity(name) {
		return fmt.Errorf("%w: no entity named %q", apperrors.ErrEntityNotFound, name)
	}
	return nil
}

// Relationships returns all admitted relationships in admission order.
func (g *RelationshipGraph) Relationships() []models.Relationship {
	return append([]models.Relationship(nil), g.relationships...)
}

// RelationshipsFor returns the relationships touching an entity on either side.
func (g *RelationshipGraph) RelationshipsFor(name string) []models.Relationship {
	key := NormalizeEntityName(name)
	var out []models.Relationship
	for _, rel := range g.relationships {
		if NormalizeEntityName(rel.FromEntity) == key || NormalizeEntityName(rel.ToEntity) == key {
			out = append(out, rel)
		}
	}
	return out
}

// CountBySource tallies relationships per evidence source.
func (g *RelationshipGraph) CountBySource() map[models.RelationshipSource]int {
	counts := make(map[models.RelationshipSource]int)
	for _, rel := range g.relationships {
		counts[rel.Source]++
	}
	return counts
}

// HasEdges reports whether any two distinct entities are connected.
func (g *RelationshipGraph) HasEdges() bool {
	return g.graph.EdgeCount() > 0
}

// ShortestPath returns a shortest entity path between two entities, or nil.
func (g *RelationshipGraph) ShortestPath(from, to string) []string {
	return g.graph.ShortestPath(from, to)
}

// Neighbors returns the sorted direct neighbours of an entity.
func (g *RelationshipGraph) Neighbors(name string) []string {
	return g.graph.Neighbors(name)
}

// Components returns the connected components and island entities.
func (g *RelationshipGraph) Components() ([]ConnectedComponent, []string) {
	return g.graph.FindConnectedComponents()
}

// BuiltAt is when the graph was assembled.
func (g *RelationshipGraph) BuiltAt() time.Time {
	return g.builtAt
}

// RelationshipGraphBuilder accumulates relationship evidence for one analysis run.
// Sources are applied in order: foreign keys, naming patterns, then model suggestions.
type RelationshipGraphBuilder struct {
	entities      []models.Entity
	byName        map[string]*models.Entity
	relationships []models.Relationship
	logger        *zap.Logger
}

// NewRelationshipGraphBuilder starts a builder over a fixed entity set.
func NewRelationshipGraphBuilder(entities []models.Entity, logger *zap.Logger) *RelationshipGraphBuilder {
	b := &RelationshipGraphBuilder{
		entities: append([]models.Entity(nil), entities...),
		byName:   make(map[string]*models.Entity, len(entities)),
		logger:   logger.Named("relationship-graph"),
	}
	for i := range b.entities {
		b.byName[NormalizeEntityName(b.entities[i].Name)] = &b.entities[i]
	}
	return b
}

// Relationships returns a snapshot of what has been admitted so far.
func (b *RelationshipGraphBuilder) Relationships() []models.Relationship {
	return append([]models.Relationship(nil), b.relationships...)
}

// Entities returns the builder's entity set.
func (b *RelationshipGraphBuilder) Entities() []models.Entity {
	return append([]models.Entity(nil), b.entities...)
}

// lookup resolves an entity name in any spelling.
func (b *RelationshipGraphBuilder) lookup(name string) *models.Entity {
	return b.byName[NormalizeEntityName(name)]
}

// AddForeignKeys adds one relationship per (column, referred column) pair of every
// FOREIGN_KEY constraint. Returns how many were added.
func (b *RelationshipGraphBuilder) AddForeignKeys() int {
	added := 0
	for i := range b.entities {
		from := &b.entities[i]
		for _, fk := range from.ForeignKeys() {
			added += b.addForeignKey(from, fk)
		}
	}
	b.logger.Debug("Foreign key relationships added", zap.Int("count", added))
	return added
}

func (b *RelationshipGraphBuilder) addForeignKey(from *models.Entity, fk models.Constraint) int {
	if len(fk.Columns) == 0 || len(fk.ReferredColumns) == 0 {
		b.logger.Warn("Skipping foreign key without referred columns",
			zap.String("entity", from.Name),
			zap.Strings("columns", fk.Columns))
		return 0
	}

	added := 0
	for i, col := range fk.Columns {
		if i >= len(fk.ReferredColumns) {
			break
		}
		ref := fk.ReferredColumns[i]

		refTable, refColumn := parseReferredColumn(ref)
		if refTable == "" {
			b.logger.Warn("Skipping foreign key with unparseable referred column",
				zap.String("entity", from.Name),
				zap.String("column", col),
				zap.String("referred_fqn", ref.FQN))
			continue
		}

		to := b.lookup(refTable)
		if to == nil {
			b.logger.Debug("Skipping foreign key to entity outside the analysed set",
				zap.String("entity", from.Name),
				zap.String("column", col),
				zap.String("referenced", refTable))
			continue
		}

		b.relationships = append(b.relationships, models.Relationship{
			FromEntity: from.Name,
			FromColumn: col,
			ToEntity:   to.Name,
			ToColumn:   refColumn,
			Kind:       inferRelationshipKind(from, to),
			Confidence: models.ConfidenceForeignKey,
			Source:     models.SourceForeignKey,
		})
		added++
	}
	return added
}

// parseReferredColumn returns the referenced table (second-to-last FQN segment) and
// column. An FQN with fewer than two segments has no table.
func parseReferredColumn(ref models.ReferredColumn) (table, column string) {
	parts := strings.Split(ref.FQN, ".")
	if len(parts) >= 2 {
		table = parts[len(parts)-2]
	}
	column = ref.Name
	if column == "" && ref.FQN != "" {
		column = parts[len(parts)-1]
	}
	return table, column
}

// inferRelationshipKind: fact to dimension is belongsTo, dimension to fact is hasMany,
// anything else defaults to belongsTo.
func inferRelationshipKind(from, to *models.Entity) models.RelationshipKind {
	if to == nil {
		return models.KindBelongsTo
	}
	if from.IsDimensionLike() && to.IsFactLike() {
		return models.KindHasMany
	}
	return models.KindBelongsTo
}

// AddNamingPatterns infers relationships from "<entity>_id" columns. Returns how many
// were added.
func (b *RelationshipGraphBuilder) AddNamingPatterns() int {
	names := make([]string, 0, len(b.entities))
	for _, e := range b.entities {
		names = append(names, e.Name)
	}
	sort.Strings(names)

	added := 0
	for i := range b.entities {
		from := &b.entities[i]
		for _, col := range from.Columns {
			lower := strings.ToLower(col.Name)
			if !strings.HasSuffix(lower, "_id") {
				continue
			}
			stem := strings.TrimSuffix(lower, "_id")
			if stem == "" {
				continue
			}

			to := b.matchNamingPattern(stem, names)
			if to == nil || NormalizeEntityName(to.Name) == NormalizeEntityName(from.Name) {
				continue
			}
			if b.exists(from.Name, col.Name, to.Name) {
				continue
			}

			b.relationships = append(b.relationships, models.Relationship{
				FromEntity: from.Name,
				FromColumn: col.Name,
				ToEntity:   to.Name,
				ToColumn:   to.KeyColumn(),
				Kind:       inferRelationshipKind(from, to),
				Confidence: models.ConfidenceNamingPattern,
				Source:     models.SourceNamingPattern,
			})
			added++
		}
	}
	b.logger.Debug("Naming pattern relationships added", zap.Int("count", added))
	return added
}

// matchNamingPattern prefers an entity named exactly like the stem or its plural, then
// the first entity (by name) whose name starts with the stem.
func (b *RelationshipGraphBuilder) matchNamingPattern(stem string, sortedNames []string) *models.Entity {
	plural := inflection.Plural(stem)
	for _, name := range sortedNames {
		lower := strings.ToLower(name)
		if lower == stem || lower == plural {
			return b.lookup(name)
		}
	}
	for _, name := range sortedNames {
		if strings.HasPrefix(strings.ToLower(name), stem) {
			return b.lookup(name)
		}
	}
	return nil
}

func (b *RelationshipGraphBuilder) exists(from, column, to string) bool {
	for _, rel := range b.relationships {
		if rel.FromEntity == from && rel.FromColumn == column && rel.ToEntity == to {
			return true
		}
	}
	return false
}

// AdmitSuggestions admits model-suggested relationships that name both entities, carry
// every field, use a valid kind and meet the confidence threshold. Everything else is
// logged and dropped. Returns how many were admitted.
func (b *RelationshipGraphBuilder) AdmitSuggestions(suggestions []models.RelationshipSuggestion) int {
	admitted := 0
	for _, s := range suggestions {
		rel, reason := b.admit(s)
		if reason != "" {
			b.logger.Warn("Rejected suggested relationship",
				zap.String("reason", reason),
				zap.String("from", deref(s.FromEntity)),
				zap.String("to", deref(s.ToEntity)))
			continue
		}
		b.relationships = append(b.relationships, rel)
		admitted++
	}
	b.logger.Debug("Suggested relationships admitted",
		zap.Int("admitted", admitted),
		zap.Int("suggested", len(suggestions)))
	return admitted
}

func (b *RelationshipGraphBuilder) admit(s models.RelationshipSuggestion) (models.Relationship, string) {
	if s.FromEntity == nil || s.FromColumn == nil || s.ToEntity == nil || s.ToColumn == nil || s.Kind == nil {
		return models.Relationship{}, "incomplete"
	}

	from := b.lookup(*s.FromEntity)
	if from == nil {
		return models.Relationship{}, "unknown entity " + *s.FromEntity
	}
	to := b.lookup(*s.ToEntity)
	if to == nil {
		return models.Relationship{}, "unknown entity " + *s.ToEntity
	}

	kind := models.RelationshipKind(*s.Kind)
	if !kind.IsValid() {
		return models.Relationship{}, "invalid kind " + *s.Kind
	}

	confidence := 0.0
	if s.Confidence != nil {
		confidence = *s.Confidence
	}
	if confidence < models.MinLLMConfidence {
		return models.Relationship{}, "low confidence"
	}

	return models.Relationship{
		FromEntity: from.Name,
		FromColumn: *s.FromColumn,
		ToEntity:   to.Name,
		ToColumn:   *s.ToColumn,
		Kind:       kind,
		Confidence: confidence,
		Source:     models.SourceLLMInference,
	}, ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Build freezes the accumulated evidence into a RelationshipGraph.
func (b *RelationshipGraphBuilder) Build() *RelationshipGraph {
	return NewRelationshipGraph(b.entities, b.relationships)
}
