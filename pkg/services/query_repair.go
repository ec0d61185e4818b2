package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-semantic/pkg/llm"
	"github.com/ekaya-inc/ekaya-semantic/pkg/logging"
	"github.com/ekaya-inc/ekaya-semantic/pkg/models"
	"github.com/ekaya-inc/ekaya-semantic/pkg/prompts"
	"github.com/ekaya-inc/ekaya-semantic/pkg/sql"
)

// QueryRepairEngine asks the language model, once, to correct a failing query.
type QueryRepairEngine interface {
	AttemptFix(ctx context.Context, question string, failingQuery *models.Query, errorMessage, schemaContext string) *models.RepairAttempt
}

type queryRepairEngine struct {
	llmClient   llm.LLMClient
	temperature float64
	timeout     time.Duration
	logger      *zap.Logger
}

// NewQueryRepairEngine creates a repair engine. A positive timeout bounds the model call.
func NewQueryRepairEngine(llmClient llm.LLMClient, temperature float64, timeout time.Duration, logger *zap.Logger) QueryRepairEngine {
	return &queryRepairEngine{
		llmClient:   llmClient,
		temperature: temperature,
		timeout:     timeout,
		logger:      logger.Named("query-repair"),
	}
}

var _ QueryRepairEngine = (*queryRepairEngine)(nil)

// AttemptFix makes exactly one model call. A claimed fix whose query cannot be used is
// downgraded to an unfixed, malformed attempt.
func (e *queryRepairEngine) AttemptFix(
	ctx context.Context,
	question string,
	failingQuery *models.Query,
	errorMessage string,
	schemaContext string,
) *models.RepairAttempt {
	attempt := &models.RepairAttempt{
		Question:     question,
		FailingQuery: failingQuery,
		ErrorMessage: errorMessage,
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	e.logger.Info("Attempting to fix query error",
		zap.String("error", logging.TruncateString(logging.SanitizeMessage(errorMessage), 100)))

	prompt := prompts.BuildQueryRepairPrompt(question, failingQuery, errorMessage, schemaContext)
	result, err := e.llmClient.GenerateResponse(ctx, prompt, prompts.BuildQueryRepairSystemMessage(), e.temperature, false)
	if err != nil {
		e.logger.Error("Query repair call failed", zap.String("error", logging.SanitizeError(err)))
		attempt.CallFailed = true
		attempt.Explanation = "Could not analyze error: " + err.Error()
		return attempt
	}

	reply := parseRepairReply(result.Content)
	attempt.Explanation = reply.explanation

	if !reply.fixed {
		e.logger.Info("Model could not fix query")
		return attempt
	}

	proposed, removed, err := decodeProposedQuery(reply)
	if err != nil {
		e.logger.Warn("Model proposed an unusable query", zap.Error(err))
		attempt.Malformed = true
		attempt.Explanation = malformedExplanation(err, reply.explanation)
		return attempt
	}

	if len(removed) > 0 {
		e.logger.Info("Removed unsupported keys from proposed query", zap.Strings("keys", removed))
	}

	attempt.Fixed = true
	attempt.ProposedQuery = proposed
	attempt.RemovedKeys = removed
	return attempt
}

// repairReply is the FIXED/QUERY/EXPLANATION protocol read out of a model reply.
type repairReply struct {
	fixed       bool
	hasQuery    bool
	query       string
	explanation string
	raw         string
}

// parseRepairReply reads the marker protocol. Each section runs until the next marker
// line; FIXED is true when its line mentions "true".
func parseRepairReply(content string) repairReply {
	reply := repairReply{raw: content}

	var section string
	var queryLines, explanationLines []string
	fixedSeen := false

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, prompts.MarkerFixed):
			if !fixedSeen {
				reply.fixed = strings.Contains(strings.ToLower(trimmed), "true")
				fixedSeen = true
			}
			section = ""
		case strings.HasPrefix(trimmed, prompts.MarkerQuery):
			section = prompts.MarkerQuery
			reply.hasQuery = true
			queryLines = append(queryLines, strings.TrimPrefix(trimmed, prompts.MarkerQuery))
		case strings.HasPrefix(trimmed, prompts.MarkerExplanation):
			section = prompts.MarkerExplanation
			explanationLines = append(explanationLines, strings.TrimSpace(strings.TrimPrefix(trimmed, prompts.MarkerExplanation)))
		case section == prompts.MarkerQuery:
			queryLines = append(queryLines, line)
		case section == prompts.MarkerExplanation:
			explanationLines = append(explanationLines, trimmed)
		}
	}

	reply.query = strings.TrimSpace(strings.Join(queryLines, "\n"))
	reply.explanation = strings.TrimSpace(strings.Join(strings.Fields(strings.Join(explanationLines, " ")), " "))
	return reply
}

// decodeProposedQuery turns the QUERY section, or failing that the first JSON object in
// the reply, into a validated query.
func decodeProposedQuery(reply repairReply) (*models.Query, []string, error) {
	candidate := ""
	if reply.hasQuery {
		candidate = llm.StripCodeFences(reply.query)
		if !json.Valid([]byte(candidate)) {
			extracted, err := llm.ExtractJSON(candidate)
			if err != nil {
				return nil, nil, &invalidJSONError{err}
			}
			candidate = extracted
		}
	} else {
		extracted, err := llm.ExtractJSON(reply.raw)
		if err != nil {
			return nil, nil, &invalidJSONError{err}
		}
		candidate = extracted
	}

	query, removed, err := models.ParseQuery([]byte(candidate))
	if err != nil {
		return nil, removed, &invalidJSONError{err}
	}
	if err := query.Validate(); err != nil {
		return nil, removed, err
	}
	if err := sql.ValidateQueryValues(query); err != nil {
		return nil, removed, err
	}
	return query, removed, nil
}

// invalidJSONError marks a proposed query that could not be decoded at all.
type invalidJSONError struct{ err error }

func (e *invalidJSONError) Error() string { return e.err.Error() }
func (e *invalidJSONError) Unwrap() error { return e.err }

func malformedExplanation(err error, explanation string) string {
	var jsonErr *invalidJSONError
	if errors.As(err, &jsonErr) {
		return "LLM suggested a fix but generated invalid JSON: " + explanation
	}
	return fmt.Sprintf("LLM suggested a fix but the corrected query is invalid (%s): %s", err.Error(), explanation)
}
