package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-semantic/pkg/catalog"
	"github.com/ekaya-inc/ekaya-semantic/pkg/jsonutil"
	"github.com/ekaya-inc/ekaya-semantic/pkg/llm"
	"github.com/ekaya-inc/ekaya-semantic/pkg/logging"
	"github.com/ekaya-inc/ekaya-semantic/pkg/prompts"
)

// Enrichment phases recorded on per-table failures.
const (
	EnrichmentPhaseFetch   = "fetch"
	EnrichmentPhaseLLMCall = "llm_call"
	EnrichmentPhaseProcess = "process"
)

// Enrichment result statuses.
const (
	EnrichmentStatusSuccess = "success"
	EnrichmentStatusDryRun  = "dry_run"
)

// Replies that mean "no PII" for a column.
var noPIIValues = map[string]bool{"": true, "NONE": true, "FALSE": true, "N/A": true}

// EnrichmentCatalog is the catalog surface enrichment reads from and writes back to.
type EnrichmentCatalog interface {
	ListEntities(ctx context.Context, service string) ([]catalog.Table, error)
	GetEntityDetail(ctx context.Context, fqn string) (*catalog.Table, error)
	UpdateEntityDescription(ctx context.Context, tableID, description string) error
	UpdateColumnDescription(ctx context.Context, tableID string, colIndex int, description string) error
	AddColumnTag(ctx context.Context, tableID string, colIndex int, tagFQN string) error
}

// MetadataEnrichmentConfig controls an enrichment run. Tables whose name contains any
// SkipTables entry are left alone; Timeout bounds each model call.
type MetadataEnrichmentConfig struct {
	ServiceName string
	SkipTables  []string
	DryRun      bool
	Temperature float64
	Timeout     time.Duration
}

// EnrichmentTableResult records one processed table.
type EnrichmentTableResult struct {
	Table          string `json:"table"`
	Status         string `json:"status"`
	TableType      string `json:"table_type,omitempty"`
	PIIRisk        string `json:"pii_risk,omitempty"`
	ColumnsUpdated int    `json:"columns_updated"`
	ColumnsTagged  int    `json:"columns_tagged"`
}

// EnrichmentError records a table that could not be enriched.
type EnrichmentError struct {
	Table string `json:"table"`
	Error string `json:"error"`
	Phase string `json:"phase"`
}

// EnrichmentSummary is the report of an enrichment run.
type EnrichmentSummary struct {
	Service          string                  `json:"service"`
	Model            string                  `json:"model"`
	DryRun           bool                    `json:"dry_run"`
	TotalTables      int                     `json:"total_tables"`
	Skipped          int                     `json:"skipped"`
	Successful       int                     `json:"successful"`
	ErrorCount       int                     `json:"error_count"`
	PromptTokens     int64                   `json:"input_tokens"`
	CompletionTokens int64                   `json:"output_tokens"`
	DurationMs       int64                   `json:"duration_ms"`
	Results          []EnrichmentTableResult `json:"results"`
	Errors           []EnrichmentError       `json:"errors"`
}

// tableEnrichment is the model's reply for one table.
type tableEnrichment struct {
	TableDescription string                      `json:"table_description"`
	TableType        string                      `json:"table_type"`
	PIIRisk          string                      `json:"pii_risk"`
	Columns          map[string]columnEnrichment `json:"columns"`
}

// PIIType stays raw: models answer with a string, false or null.
type columnEnrichment struct {
	Description  string          `json:"description"`
	SemanticType string          `json:"semantic_type"`
	PIIType      json.RawMessage `json:"pii_type"`
}

// phaseError tags a table failure with the step that failed.
type phaseError struct {
	phase string
	err   error
}

func (e *phaseError) Error() string { return e.err.Error() }
func (e *phaseError) Unwrap() error { return e.err }

// MetadataEnrichmentService generates table and column documentation with the language
// model and writes it back to the catalog.
type MetadataEnrichmentService interface {
	Run(ctx context.Context) (*EnrichmentSummary, error)
}

type metadataEnrichmentService struct {
	catalog    EnrichmentCatalog
	llmClient  llm.LLMClient
	workerPool *llm.WorkerPool
	cfg        MetadataEnrichmentConfig
	logger     *zap.Logger

	promptTokens     atomic.Int64
	completionTokens atomic.Int64
}

// NewMetadataEnrichmentService creates the enrichment service.
func NewMetadataEnrichmentService(
	catalogClient EnrichmentCatalog,
	llmClient llm.LLMClient,
	workerPool *llm.WorkerPool,
	cfg MetadataEnrichmentConfig,
	logger *zap.Logger,
) MetadataEnrichmentService {
	return &metadataEnrichmentService{
		catalog:    catalogClient,
		llmClient:  llmClient,
		workerPool: workerPool,
		cfg:        cfg,
		logger:     logger.Named("metadata-enrichment"),
	}
}

var _ MetadataEnrichmentService = (*metadataEnrichmentService)(nil)

// Run enriches every table of the configured service. Only listing the tables can fail
// the run; per-table failures are collected in the summary.
func (s *metadataEnrichmentService) Run(ctx context.Context) (*EnrichmentSummary, error) {
	startTime := time.Now()
	s.promptTokens.Store(0)
	s.completionTokens.Store(0)
	summary := &EnrichmentSummary{
		Service: s.cfg.ServiceName,
		Model:   s.llmClient.GetModel(),
		DryRun:  s.cfg.DryRun,
		Results: []EnrichmentTableResult{},
		Errors:  []EnrichmentError{},
	}

	s.logger.Info("Starting metadata enrichment",
		zap.String("service", s.cfg.ServiceName),
		zap.String("model", summary.Model),
		zap.String("endpoint", logging.SanitizeURL(s.llmClient.GetEndpoint())),
		zap.Bool("dry_run", s.cfg.DryRun))

	tables, err := s.catalog.ListEntities(ctx, s.cfg.ServiceName)
	if err != nil {
		return nil, fmt.Errorf("list catalog entities: %w", err)
	}

	kept := FilterSkippedTables(tables, s.cfg.SkipTables)
	summary.Skipped = len(tables) - len(kept)
	summary.TotalTables = len(kept)
	s.logger.Info("Tables selected for enrichment",
		zap.Int("found", len(tables)),
		zap.Int("processing", len(kept)))

	jobs := make([]llm.Job[*EnrichmentTableResult], 0, len(kept))
	for _, table := range kept {
		jobs = append(jobs, llm.Job[*EnrichmentTableResult]{
			Key: table.FQN(),
			Run: func(ctx context.Context) (*EnrichmentTableResult, error) {
				return s.enrichTable(ctx, table)
			},
		})
	}

	results := llm.RunJobs(ctx, s.workerPool, jobs, func(done, total int) {
		s.logger.Debug("Enrichment progress", zap.Int("done", done), zap.Int("total", total))
	})

	for _, r := range results {
		if r.Err != nil {
			phase := EnrichmentPhaseProcess
			var pe *phaseError
			if errors.As(r.Err, &pe) {
				phase = pe.phase
			}
			summary.Errors = append(summary.Errors, EnrichmentError{Table: r.Key, Error: r.Err.Error(), Phase: phase})
			continue
		}
		summary.Results = append(summary.Results, *r.Value)
		if r.Value.Status == EnrichmentStatusSuccess {
			summary.Successful++
		}
	}

	summary.ErrorCount = len(summary.Errors)
	summary.PromptTokens = s.promptTokens.Load()
	summary.CompletionTokens = s.completionTokens.Load()
	summary.DurationMs = time.Since(startTime).Milliseconds()

	for _, e := range summary.Errors {
		s.logger.Warn("Table enrichment failed",
			zap.String("table", e.Table),
			zap.String("phase", e.Phase),
			zap.String("error", logging.TruncateString(e.Error, 100)))
	}
	s.logger.Info("Metadata enrichment complete",
		zap.Int("tables", summary.TotalTables),
		zap.Int("successful", summary.Successful),
		zap.Int("errors", summary.ErrorCount),
		zap.Int64("input_tokens", summary.PromptTokens),
		zap.Int64("output_tokens", summary.CompletionTokens),
		zap.Int64("duration_ms", summary.DurationMs))
	return summary, nil
}

// FilterSkippedTables drops tables whose name contains any skip pattern.
func FilterSkippedTables(tables []catalog.Table, skip []string) []catalog.Table {
	kept := make([]catalog.Table, 0, len(tables))
	for _, t := range tables {
		skipped := false
		for _, pattern := range skip {
			if pattern != "" && strings.Contains(t.Name, pattern) {
				skipped = true
				break
			}
		}
		if !skipped {
			kept = append(kept, t)
		}
	}
	return kept
}

func (s *metadataEnrichmentService) enrichTable(ctx context.Context, table catalog.Table) (*EnrichmentTableResult, error) {
	fqn := table.FQN()

	detail, err := s.catalog.GetEntityDetail(ctx, fqn)
	if err != nil {
		return nil, &phaseError{phase: EnrichmentPhaseFetch, err: err}
	}

	tableContext := prompts.BuildTableContext(detail)
	s.logger.Debug("Built table context",
		zap.String("table", fqn),
		zap.Int("chars", len(tableContext)),
		zap.Int("columns", len(detail.Columns)))

	if s.cfg.DryRun {
		s.logger.Info("Dry run, skipping model call",
			zap.String("table", fqn),
			zap.String("context", logging.TruncateString(tableContext, 200)))
		return &EnrichmentTableResult{Table: fqn, Status: EnrichmentStatusDryRun}, nil
	}

	inference, err := s.generate(ctx, fqn, tableContext)
	if err != nil {
		return nil, &phaseError{phase: EnrichmentPhaseLLMCall, err: err}
	}

	tableID := table.ID
	if tableID == "" {
		tableID = detail.ID
	}
	return s.writeBack(ctx, fqn, tableID, detail, inference), nil
}

func (s *metadataEnrichmentService) generate(ctx context.Context, fqn, tableContext string) (*tableEnrichment, error) {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	ctx = llm.WithContext(ctx, map[string]any{"operation": "metadata_enrichment", "table": fqn})

	reply, err := s.llmClient.GenerateResponse(ctx, tableContext, prompts.BuildEnrichmentSystemMessage(), s.cfg.Temperature, false)
	if err != nil {
		return nil, err
	}
	s.promptTokens.Add(int64(reply.PromptTokens))
	s.completionTokens.Add(int64(reply.CompletionTokens))

	inference, err := llm.ParseJSONResponse[tableEnrichment](reply.Content)
	if err != nil {
		return nil, fmt.Errorf("parse enrichment reply: %w", err)
	}

	s.logger.Info("Model enrichment received",
		zap.String("table", fqn),
		zap.String("table_type", inference.TableType),
		zap.String("pii_risk", inference.PIIRisk),
		zap.Int("columns", len(inference.Columns)))
	return &inference, nil
}

// writeBack pushes descriptions and PII tags. Write failures are logged and skipped.
func (s *metadataEnrichmentService) writeBack(ctx context.Context, fqn, tableID string, detail *catalog.Table, inference *tableEnrichment) *EnrichmentTableResult {
	result := &EnrichmentTableResult{
		Table:     fqn,
		Status:    EnrichmentStatusSuccess,
		TableType: inference.TableType,
		PIIRisk:   inference.PIIRisk,
	}

	if inference.TableDescription != "" {
		if err := s.catalog.UpdateEntityDescription(ctx, tableID, inference.TableDescription); err != nil {
			s.logger.Warn("Failed to update table description", zap.String("table", fqn), zap.Error(err))
		}
	}

	for i, col := range detail.Columns {
		colInference, ok := inference.Columns[col.Name]
		if !ok {
			continue
		}

		if colInference.Description != "" {
			if err := s.catalog.UpdateColumnDescription(ctx, tableID, i, colInference.Description); err != nil {
				s.logger.Warn("Failed to update column description",
					zap.String("table", fqn), zap.String("column", col.Name), zap.Error(err))
			} else {
				result.ColumnsUpdated++
			}
		}

		piiType := strings.ToUpper(strings.TrimSpace(jsonutil.FlexibleStringValue(colInference.PIIType)))
		if noPIIValues[piiType] {
			continue
		}
		tag := "PII." + piiType
		if err := s.catalog.AddColumnTag(ctx, tableID, i, tag); err != nil {
			// The classification may not exist in the catalog yet.
			s.logger.Warn("Failed to tag column",
				zap.String("table", fqn), zap.String("column", col.Name), zap.String("tag", tag), zap.Error(err))
			continue
		}
		result.ColumnsTagged++
	}

	s.logger.Info("Updated column descriptions",
		zap.String("table", fqn),
		zap.Int("updated", result.ColumnsUpdated),
		zap.Int("columns", len(detail.Columns)))
	return result
}
