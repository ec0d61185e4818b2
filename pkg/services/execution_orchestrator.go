package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-semantic/pkg/logging"
	"github.com/ekaya-inc/ekaya-semantic/pkg/models"
)

const triedToFixPrefix = "Tried to fix but corrected query also failed: "

// ExecutionOrchestrator runs one query through pre-validation, execution and at most one
// repair. Every failure is folded into the returned outcome.
type ExecutionOrchestrator interface {
	Execute(ctx context.Context, query *models.Query, question, schemaContext string) *models.ExecutionOutcome
}

type executionOrchestrator struct {
	validator  JoinPathValidator
	executor   QueryExecutor
	classifier FailureClassifier
	repair     QueryRepairEngine
	logger     *zap.Logger
}

// NewExecutionOrchestrator wires the request pipeline. repair may be nil when no language
// model is configured; failures are then reported without a repair attempt.
func NewExecutionOrchestrator(
	validator JoinPathValidator,
	executor QueryExecutor,
	classifier FailureClassifier,
	repair QueryRepairEngine,
	logger *zap.Logger,
) ExecutionOrchestrator {
	return &executionOrchestrator{
		validator:  validator,
		executor:   executor,
		classifier: classifier,
		repair:     repair,
		logger:     logger.Named("orchestrator"),
	}
}

var _ ExecutionOrchestrator = (*executionOrchestrator)(nil)

// orchestration carries one Execute call through the state machine.
type orchestration struct {
	ctx           context.Context
	query         *models.Query
	question      string
	schemaContext string
	outcome       *models.ExecutionOutcome
}

func (r *orchestration) enter(state models.ExecutionState) {
	r.outcome.States = append(r.outcome.States, state)
}

func (o *executionOrchestrator) canRepair(r *orchestration) bool {
	return o.repair != nil && r.question != "" && r.schemaContext != ""
}

func (o *executionOrchestrator) Execute(ctx context.Context, query *models.Query, question, schemaContext string) *models.ExecutionOutcome {
	r := &orchestration{
		ctx:           ctx,
		query:         query,
		question:      question,
		schemaContext: schemaContext,
		outcome: &models.ExecutionOutcome{
			Query:    query,
			Recovery: models.RecoveryNone,
			States:   []models.ExecutionState{models.StateStart},
		},
	}

	if len(query.EntitySet()) > 1 {
		r.enter(models.StatePreValidate)
		validation := o.validator.ValidateQuery(query)
		r.outcome.JoinPath = validation.Path
		if validation.Warning {
			r.outcome.Warning = validation.Message
		}

		if !validation.Valid {
			r.enter(models.StateRejected)
			o.logger.Info("Query rejected by relationship graph",
				zap.String("from", validation.FromEntity),
				zap.String("to", validation.ToEntity))

			if !o.canRepair(r) {
				return o.fail(r, validation.Message, models.FailureRejectedByGraph, models.RecoveryUnavailable,
					FormatValidationError(validation))
			}
			return o.repairAndRetry(r, validation.Message, models.FailureRejectedByGraph, FormatValidationError(validation))
		}
	}

	r.enter(models.StateExecute)
	result := o.executor.Execute(ctx, query)
	if result.Success {
		return o.succeed(r, query, result)
	}

	r.enter(models.StateExecuteFailed)
	classification := o.classifier.Classify(result.ErrorMessage)
	r.outcome.Classification = classification
	o.logger.Info("Query execution failed",
		zap.String("classification", string(classification.Kind)),
		zap.String("error", logging.TruncateString(logging.SanitizeMessage(result.ErrorMessage), 200)))

	if !o.canRepair(r) {
		return o.fail(r, result.ErrorMessage, models.FailureRepairUnavailable, models.RecoveryUnavailable,
			FailureSuggestion(classification))
	}
	return o.repairAndRetry(r, result.ErrorMessage, models.FailureEngineExecution, FailureSuggestion(classification))
}

// repairAndRetry makes the single repair call and, if it yields a query, the single
// re-execution. unfixedKind and suggestion describe the failure when nothing is fixed.
func (o *executionOrchestrator) repairAndRetry(r *orchestration, errorMessage string, unfixedKind models.FailureKind, suggestion string) *models.ExecutionOutcome {
	attempt := o.repair.AttemptFix(r.ctx, r.question, r.query, errorMessage, r.schemaContext)
	r.enter(models.StateRepairAttempted)
	r.outcome.Repair = attempt
	r.outcome.FixAttempted = true
	r.outcome.FixExplanation = attempt.Explanation

	if !attempt.Fixed || attempt.ProposedQuery == nil {
		kind := unfixedKind
		switch {
		case attempt.Malformed:
			kind = models.FailureRepairMalformed
		case attempt.CallFailed:
			kind = models.FailureRepairFailed
		}
		return o.fail(r, errorMessage, kind, models.RecoveryAttempted, suggestion)
	}

	o.logger.Info("Re-executing repaired query", zap.String("query", attempt.ProposedQuery.JSON()))
	result := o.executor.Execute(r.ctx, attempt.ProposedQuery)
	if result.Success {
		r.outcome.AutoFixed = true
		r.outcome.OriginalQuery = r.query.Clone()
		r.outcome.Recovery = models.RecoveryAutoFixed
		return o.succeed(r, attempt.ProposedQuery, result)
	}

	r.outcome.Classification = o.classifier.Classify(result.ErrorMessage)
	r.outcome.FixExplanation = triedToFixPrefix + attempt.Explanation
	return o.fail(r, result.ErrorMessage, models.FailureRepairFailed, models.RecoveryAttempted,
		FailureSuggestion(r.outcome.Classification))
}

func (o *executionOrchestrator) succeed(r *orchestration, executed *models.Query, result *models.ExecutionResult) *models.ExecutionOutcome {
	out := r.outcome
	out.Success = true
	out.Query = executed
	out.Rows = result.Rows
	out.RowCount = result.RowCount
	out.GeneratedSQL = result.GeneratedSQL
	r.enter(models.StateDoneSuccess)

	o.logger.Info("Query succeeded",
		zap.Int("rows", out.RowCount),
		zap.Bool("auto_fixed", out.AutoFixed))
	return out
}

func (o *executionOrchestrator) fail(r *orchestration, errorMessage string, kind models.FailureKind, recovery models.RecoveryPath, suggestion string) *models.ExecutionOutcome {
	out := r.outcome
	out.Success = false
	out.Error = errorMessage
	out.FailureKind = kind
	out.Recovery = recovery
	out.Suggestion = suggestion
	r.enter(models.StateDoneFailed)

	o.logger.Info("Query failed",
		zap.String("error_type", string(kind)),
		zap.String("recovery", string(recovery)))
	return out
}
