package services

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-semantic/pkg/jsonutil"
	"github.com/ekaya-inc/ekaya-semantic/pkg/llm"
	"github.com/ekaya-inc/ekaya-semantic/pkg/logging"
	"github.com/ekaya-inc/ekaya-semantic/pkg/models"
	"github.com/ekaya-inc/ekaya-semantic/pkg/prompts"
)

// RelationshipInferenceService asks the language model for relationships that foreign
// keys and naming patterns did not reveal.
type RelationshipInferenceService interface {
	// Infer never fails: an unreachable model or unreadable reply yields an empty result.
	Infer(ctx context.Context, entities []models.Entity, known []models.Relationship) *RelationshipInferenceResult
}

// JoinPathHint is a model-suggested join path for a common business question.
type JoinPathHint struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Tables      []string `json:"tables" yaml:"tables"`
}

// MetricHint is a model-suggested measure.
type MetricHint struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Table       string `json:"table" yaml:"table"`
	Aggregation string `json:"aggregation" yaml:"aggregation"`
	Column      string `json:"column,omitempty" yaml:"column,omitempty"`
}

// RelationshipInferenceResult holds what the model proposed. Suggestions are unvalidated.
type RelationshipInferenceResult struct {
	Suggestions      []models.RelationshipSuggestion
	CommonJoinPaths  []JoinPathHint
	SuggestedMetrics []MetricHint
	TotalTokens      int
}

// relationshipInferenceResponse mirrors the reply; confidence arrives as a number or a string.
type relationshipInferenceResponse struct {
	AdditionalRelationships []struct {
		FromTable        *string         `json:"from_table"`
		FromColumn       *string         `json:"from_column"`
		ToTable          *string         `json:"to_table"`
		ToColumn         *string         `json:"to_column"`
		RelationshipType *string         `json:"relationship_type"`
		Confidence       json.RawMessage `json:"confidence"`
		Reasoning        string          `json:"reasoning"`
	} `json:"additional_relationships"`
	CommonJoinPaths  []JoinPathHint `json:"common_join_paths"`
	SuggestedMetrics []MetricHint   `json:"suggested_metrics"`
}

type relationshipInferenceService struct {
	llmClient   llm.LLMClient
	temperature float64
	timeout     time.Duration
	logger      *zap.Logger
}

// NewRelationshipInferenceService creates the inference service.
func NewRelationshipInferenceService(llmClient llm.LLMClient, temperature float64, timeout time.Duration, logger *zap.Logger) RelationshipInferenceService {
	return &relationshipInferenceService{
		llmClient:   llmClient,
		temperature: temperature,
		timeout:     timeout,
		logger:      logger.Named("relationship-inference"),
	}
}

var _ RelationshipInferenceService = (*relationshipInferenceService)(nil)

func (s *relationshipInferenceService) Infer(ctx context.Context, entities []models.Entity, known []models.Relationship) *RelationshipInferenceResult {
	result := &RelationshipInferenceResult{}
	if len(entities) == 0 {
		return result
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	ctx = llm.WithContext(ctx, map[string]any{"operation": "relationship_inference"})

	prompt := prompts.BuildRelationshipInferencePrompt(entities, known)
	s.logger.Info("Requesting relationship inference",
		zap.Int("entities", len(entities)),
		zap.Int("known_relationships", len(known)))

	reply, err := s.llmClient.GenerateResponse(ctx, prompt, prompts.BuildRelationshipInferenceSystemMessage(), s.temperature, false)
	if err != nil {
		s.logger.Warn("Relationship inference failed, continuing without it",
			zap.String("error", logging.SanitizeError(err)))
		return result
	}
	result.TotalTokens = reply.TotalTokens

	response, err := llm.ParseJSONResponse[relationshipInferenceResponse](reply.Content)
	if err != nil {
		s.logger.Warn("Could not parse relationship inference reply",
			zap.Error(err),
			zap.String("reply", logging.TruncateString(reply.Content, 200)))
		return result
	}

	for _, r := range response.AdditionalRelationships {
		suggestion := models.RelationshipSuggestion{
			FromEntity: r.FromTable,
			FromColumn: r.FromColumn,
			ToEntity:   r.ToTable,
			ToColumn:   r.ToColumn,
			Kind:       r.RelationshipType,
			Reasoning:  r.Reasoning,
		}
		if confidence, ok := jsonutil.FlexibleFloatValue(r.Confidence); ok {
			suggestion.Confidence = &confidence
		}
		result.Suggestions = append(result.Suggestions, suggestion)
	}
	result.CommonJoinPaths = response.CommonJoinPaths
	result.SuggestedMetrics = response.SuggestedMetrics

	s.logger.Info("Relationship inference complete",
		zap.Int("suggestions", len(result.Suggestions)),
		zap.Int("join_paths", len(result.CommonJoinPaths)),
		zap.Int("metrics", len(result.SuggestedMetrics)))
	return result
}
