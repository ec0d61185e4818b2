package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-semantic/pkg/logging"
	"github.com/ekaya-inc/ekaya-semantic/pkg/models"
	"github.com/ekaya-inc/ekaya-semantic/pkg/semantic"
)

// QueryLoader is the semantic layer's load endpoint.
type QueryLoader interface {
	Load(ctx context.Context, query *models.Query) (*semantic.LoadResponse, error)
}

// QueryExecutor runs one query against the semantic layer and normalizes the outcome.
// It never retries; every failure is returned as an unsuccessful result.
type QueryExecutor interface {
	Execute(ctx context.Context, query *models.Query) *models.ExecutionResult
}

type queryExecutor struct {
	loader  QueryLoader
	timeout time.Duration
	logger  *zap.Logger
}

// NewQueryExecutor creates an executor. A positive timeout bounds each call.
func NewQueryExecutor(loader QueryLoader, timeout time.Duration, logger *zap.Logger) QueryExecutor {
	return &queryExecutor{
		loader:  loader,
		timeout: timeout,
		logger:  logger.Named("query-executor"),
	}
}

var _ QueryExecutor = (*queryExecutor)(nil)

func (e *queryExecutor) Execute(ctx context.Context, query *models.Query) *models.ExecutionResult {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := e.loader.Load(ctx, query)
	if err != nil {
		var message string
		if apiErr, ok := semantic.IsAPIError(err); ok {
			message = "Cube.js API error: " + apiErr.Detail
		} else {
			message = "Execution error: " + err.Error()
		}
		e.logger.Warn("Query execution failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.String("error", logging.SanitizeMessage(message)))
		return &models.ExecutionResult{ErrorMessage: message}
	}

	if resp.Error != "" {
		e.logger.Info("Semantic layer rejected query",
			zap.Duration("elapsed", time.Since(start)),
			zap.String("error", logging.SanitizeMessage(resp.Error)))
		return &models.ExecutionResult{ErrorMessage: resp.Error}
	}

	rows := resp.Data
	if rows == nil {
		rows = []map[string]any{}
	}

	e.logger.Debug("Query executed",
		zap.Int("rows", len(rows)),
		zap.Duration("elapsed", time.Since(start)))

	return &models.ExecutionResult{
		Success:      true,
		Rows:         rows,
		RowCount:     len(rows),
		GeneratedSQL: resp.Query.SQL,
	}
}
