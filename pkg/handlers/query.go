package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-semantic/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-semantic/pkg/models"
	"github.com/ekaya-inc/ekaya-semantic/pkg/semantic"
	"github.com/ekaya-inc/ekaya-semantic/pkg/services"
)

const maxQueryBodyBytes = 1 << 20

// MetaSource serves cached semantic layer metadata. Implemented by *semantic.MetaCache.
type MetaSource interface {
	Get(ctx context.Context) (*semantic.Meta, error)
}

// QueryRequest is the body of POST /api/query.
type QueryRequest struct {
	Query    json.RawMessage `json:"query"`
	Question string          `json:"question,omitempty"`
}

// QueryResponse is the outcome of a query plus any keys removed before execution.
type QueryResponse struct {
	*models.ExecutionOutcome
	RemovedKeys []string `json:"removed_keys,omitempty"`
}

// SchemaResponse is the body of GET /api/schema.
type SchemaResponse struct {
	Success bool                   `json:"success"`
	Cubes   []semantic.CubeSummary `json:"cubes"`
	Count   int                    `json:"count"`
}

// QueryHandler exposes query execution and schema discovery over HTTP.
type QueryHandler struct {
	queries services.QueryService
	meta    MetaSource
	logger  *zap.Logger
}

// NewQueryHandler creates a new QueryHandler.
func NewQueryHandler(queries services.QueryService, meta MetaSource, logger *zap.Logger) *QueryHandler {
	return &QueryHandler{
		queries: queries,
		meta:    meta,
		logger:  logger.Named("query-handler"),
	}
}

// RegisterRoutes registers the query handler's routes on the given mux.
func (h *QueryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/query", h.Query)
	mux.HandleFunc("GET /api/schema", h.Schema)
}

// Query handles POST /api/query.
// Failed outcomes are returned with 400 and the full outcome body.
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	body := http.MaxBytesReader(w, r.Body, maxQueryBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			_ = ErrorResponse(w, http.StatusBadRequest, "bad_request", "request body is required")
			return
		}
		_ = ErrorResponse(w, http.StatusBadRequest, "bad_request", "invalid JSON body: "+err.Error())
		return
	}
	if len(req.Query) == 0 || string(req.Query) == "null" {
		_ = ErrorResponse(w, http.StatusBadRequest, "bad_request", "missing 'query' parameter")
		return
	}

	prepared, err := h.queries.Prepare(req.Query)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidQuery) {
			_ = ErrorResponse(w, http.StatusBadRequest, "invalid_query", err.Error())
			return
		}
		h.logger.Error("Failed to prepare query", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "failed to prepare query")
		return
	}

	outcome := h.queries.Execute(r.Context(), prepared.Query, strings.TrimSpace(req.Question))

	status := http.StatusOK
	if !outcome.Success {
		status = http.StatusBadRequest
	}
	if err := WriteJSON(w, status, QueryResponse{ExecutionOutcome: outcome, RemovedKeys: prepared.RemovedKeys}); err != nil {
		h.logger.Error("Failed to encode query response", zap.Error(err))
	}
}

// Schema handles GET /api/schema.
func (h *QueryHandler) Schema(w http.ResponseWriter, r *http.Request) {
	meta, err := h.meta.Get(r.Context())
	if err != nil {
		h.logger.Error("Failed to fetch schema", zap.Error(err))
		_ = ErrorResponse(w, http.StatusBadGateway, "schema_unavailable", "failed to fetch schema from the semantic layer")
		return
	}

	summaries := meta.Summaries()
	if err := WriteJSON(w, http.StatusOK, SchemaResponse{Success: true, Cubes: summaries, Count: len(summaries)}); err != nil {
		h.logger.Error("Failed to encode schema response", zap.Error(err))
	}
}
