package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-semantic/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-semantic/pkg/catalog"
	"github.com/ekaya-inc/ekaya-semantic/pkg/models"
)

// EntityLister reads the tables of a catalog database service.
type EntityLister interface {
	ListEntities(ctx context.Context, service string) ([]catalog.Table, error)
}

// SemanticAnalysisConfig selects what an analysis run reads and which evidence it uses.
type SemanticAnalysisConfig struct {
	ServiceName  string
	ExcludeViews bool
}

// AnalysisSummary is the report of one analysis run.
type AnalysisSummary struct {
	RunID            string                            `json:"run_id" yaml:"run_id"`
	Service          string                            `json:"service" yaml:"service"`
	StartedAt        time.Time                         `json:"started_at" yaml:"started_at"`
	DurationMs       int64                             `json:"duration_ms" yaml:"duration_ms"`
	TotalTables      int                               `json:"total_tables" yaml:"total_tables"`
	ExcludedViews    int                               `json:"excluded_views,omitempty" yaml:"excluded_views,omitempty"`
	FactTables       []string                          `json:"fact_tables" yaml:"fact_tables"`
	DimensionTables  []string                          `json:"dimension_tables" yaml:"dimension_tables"`
	RelationshipsBy  map[models.RelationshipSource]int `json:"relationships_by_source" yaml:"relationships_by_source"`
	Relationships    []models.Relationship             `json:"relationships" yaml:"relationships"`
	Components       []ConnectedComponent              `json:"components,omitempty" yaml:"components,omitempty"`
	Islands          []string                          `json:"islands,omitempty" yaml:"islands,omitempty"`
	CommonJoinPaths  []JoinPathHint                    `json:"common_join_paths,omitempty" yaml:"common_join_paths,omitempty"`
	SuggestedMetrics []MetricHint                      `json:"suggested_metrics,omitempty" yaml:"suggested_metrics,omitempty"`
	LLMTokens        int                               `json:"llm_tokens,omitempty" yaml:"llm_tokens,omitempty"`
}

// SemanticAnalysisService builds the relationship graph from the catalog and publishes it.
type SemanticAnalysisService interface {
	Run(ctx context.Context) (*AnalysisSummary, error)
}

type semanticAnalysisService struct {
	catalog   EntityLister
	inference RelationshipInferenceService
	graphs    *GraphHolder
	cfg       SemanticAnalysisConfig
	logger    *zap.Logger
}

// NewSemanticAnalysisService creates the analysis service. inference may be nil, in which
// case only foreign keys and naming patterns are used.
func NewSemanticAnalysisService(
	lister EntityLister,
	inference RelationshipInferenceService,
	graphs *GraphHolder,
	cfg SemanticAnalysisConfig,
	logger *zap.Logger,
) SemanticAnalysisService {
	return &semanticAnalysisService{
		catalog:   lister,
		inference: inference,
		graphs:    graphs,
		cfg:       cfg,
		logger:    logger.Named("semantic-analysis"),
	}
}

var _ SemanticAnalysisService = (*semanticAnalysisService)(nil)

// Run fetches entities, gathers relationship evidence in order (foreign keys, naming
// patterns, model suggestions), then swaps the finished graph into the holder.
func (s *semanticAnalysisService) Run(ctx context.Context) (*AnalysisSummary, error) {
	started := time.Now()
	summary := &AnalysisSummary{
		RunID:     uuid.New().String(),
		Service:   s.cfg.ServiceName,
		StartedAt: started.UTC(),
	}
	logger := s.logger.With(zap.String("run_id", summary.RunID))

	tables, err := s.catalog.ListEntities(ctx, s.cfg.ServiceName)
	if err != nil {
		return nil, fmt.Errorf("list catalog entities: %w", err)
	}

	entities := make([]models.Entity, 0, len(tables))
	for i := range tables {
		entity := tables[i].ToEntity()
		if s.cfg.ExcludeViews && entity.IsView() {
			summary.ExcludedViews++
			continue
		}
		entities = append(entities, entity)
	}
	if len(entities) == 0 {
		return nil, fmt.Errorf("service %q: %w", s.cfg.ServiceName, apperrors.ErrNoEntities)
	}
	summary.TotalTables = len(entities)

	for _, e := range entities {
		if e.IsFactLike() {
			summary.FactTables = append(summary.FactTables, e.Name)
		}
		if e.IsDimensionLike() {
			summary.DimensionTables = append(summary.DimensionTables, e.Name)
		}
	}
	sort.Strings(summary.FactTables)
	sort.Strings(summary.DimensionTables)

	logger.Info("Loaded catalog entities",
		zap.Int("tables", len(entities)),
		zap.Int("excluded_views", summary.ExcludedViews),
		zap.Int("fact_tables", len(summary.FactTables)),
		zap.Int("dimension_tables", len(summary.DimensionTables)))

	builder := NewRelationshipGraphBuilder(entities, s.logger)
	fkCount := builder.AddForeignKeys()
	namingCount := builder.AddNamingPatterns()
	logger.Info("Relationships from schema evidence",
		zap.Int("foreign_keys", fkCount),
		zap.Int("naming_patterns", namingCount))

	if s.inference != nil {
		inferred := s.inference.Infer(ctx, builder.Entities(), builder.Relationships())
		admitted := builder.AdmitSuggestions(inferred.Suggestions)
		summary.CommonJoinPaths = inferred.CommonJoinPaths
		summary.SuggestedMetrics = inferred.SuggestedMetrics
		summary.LLMTokens = inferred.TotalTokens
		logger.Info("Relationships from model inference",
			zap.Int("suggested", len(inferred.Suggestions)),
			zap.Int("admitted", admitted))
	}

	graph := builder.Build()
	s.graphs.Set(graph)

	summary.Relationships = graph.Relationships()
	summary.RelationshipsBy = graph.CountBySource()
	summary.Components, summary.Islands = graph.Components()
	LogConnectivity(len(summary.Relationships), summary.Components, summary.Islands, logger)

	summary.DurationMs = time.Since(started).Milliseconds()
	logger.Info("Analysis complete",
		zap.Int("relationships", len(summary.Relationships)),
		zap.Duration("duration", time.Since(started)))
	return summary, nil
}
