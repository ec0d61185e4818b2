package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-semantic/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-semantic/pkg/models"
	"github.com/ekaya-inc/ekaya-semantic/pkg/sql"
)

// SchemaContextSource renders the semantic layer schema for repair prompts.
// Implemented by *semantic.MetaCache.
type SchemaContextSource interface {
	SchemaContext(ctx context.Context) (string, error)
}

// PreparedQuery is a caller query that passed structural and value checks.
type PreparedQuery struct {
	Query       *models.Query `json:"query"`
	RemovedKeys []string      `json:"removed_keys,omitempty"`
}

// QueryService is the entry point shared by the MCP tools and the HTTP API.
type QueryService interface {
	// Prepare decodes a raw query object. Errors wrap apperrors.ErrInvalidQuery.
	Prepare(data []byte) (*PreparedQuery, error)
	// CheckJoins reports whether the query's entities can be joined.
	CheckJoins(query *models.Query) *JoinValidation
	// Execute runs the query. A non-empty question enables repair using the current schema context.
	Execute(ctx context.Context, query *models.Query, question string) *models.ExecutionOutcome
}

type queryService struct {
	orchestrator ExecutionOrchestrator
	validator    JoinPathValidator
	schema       SchemaContextSource
	logger       *zap.Logger
}

// NewQueryService creates a QueryService. schema may be nil, which disables repair.
func NewQueryService(
	orchestrator ExecutionOrchestrator,
	validator JoinPathValidator,
	schema SchemaContextSource,
	logger *zap.Logger,
) QueryService {
	return &queryService{
		orchestrator: orchestrator,
		validator:    validator,
		schema:       schema,
		logger:       logger.Named("query"),
	}
}

var _ QueryService = (*queryService)(nil)

func (s *queryService) Prepare(data []byte) (*PreparedQuery, error) {
	query, removed, err := models.ParseQuery(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrInvalidQuery, err.Error())
	}
	if len(removed) > 0 {
		s.logger.Debug("Removed unsupported query keys", zap.Strings("keys", removed))
	}
	if err := query.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrInvalidQuery, err.Error())
	}
	if err := sql.ValidateQueryValues(query); err != nil {
		s.logger.Warn("Rejected query with suspicious filter value", zap.Error(err))
		return nil, err
	}
	return &PreparedQuery{Query: query, RemovedKeys: removed}, nil
}

func (s *queryService) CheckJoins(query *models.Query) *JoinValidation {
	return s.validator.ValidateQuery(query)
}

func (s *queryService) Execute(ctx context.Context, query *models.Query, question string) *models.ExecutionOutcome {
	var schemaContext string
	if question != "" && s.schema != nil {
		var err error
		schemaContext, err = s.schema.SchemaContext(ctx)
		if err != nil {
			// Execution still proceeds; the outcome reports repair as unavailable.
			s.logger.Warn("Failed to load schema context for repair", zap.Error(err))
		}
	}
	return s.orchestrator.Execute(ctx, query, question, schemaContext)
}
