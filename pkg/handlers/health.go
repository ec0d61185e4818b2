package handlers

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-semantic/pkg/config"
	"github.com/ekaya-inc/ekaya-semantic/pkg/llm"
	"github.com/ekaya-inc/ekaya-semantic/pkg/services"
)

// PingResponse contains service status, version and relationship graph information.
type PingResponse struct {
	Status        string     `json:"status"`
	Version       string     `json:"version"`
	Service       string     `json:"service"`
	GoVersion     string     `json:"go_version"`
	Hostname      string     `json:"hostname"`
	Environment   string     `json:"environment"`
	GraphBuilt    bool       `json:"graph_built"`
	Entities      int        `json:"entities"`
	Relationships int        `json:"relationships"`
	GraphBuiltAt  *time.Time `json:"graph_built_at,omitempty"`
	LLM           *LLMStatus `json:"llm,omitempty"`
}

// LLMStatus reports the configured model and its circuit breaker.
type LLMStatus struct {
	Model   string            `json:"model"`
	Circuit llm.CircuitStatus `json:"circuit"`
}

// CircuitReporter is implemented by llm.GuardedClient.
type CircuitReporter interface {
	GetModel() string
	CircuitStatus() llm.CircuitStatus
}

// HealthHandler handles health check and ping endpoints.
type HealthHandler struct {
	cfg    *config.Config
	graphs services.GraphSource
	llm    CircuitReporter
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler with the given configuration.
func NewHealthHandler(cfg *config.Config, graphs services.GraphSource, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, graphs: graphs, logger: logger}
}

// WithLLM adds the model's circuit state to /ping.
func (h *HealthHandler) WithLLM(reporter CircuitReporter) *HealthHandler {
	h.llm = reporter
	return h
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ping", h.Ping)
}

// Health handles GET /health requests.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ping handles GET /ping requests.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		http.Error(w, "failed to get hostname", http.StatusInternalServerError)
		return
	}

	response := PingResponse{
		Status:      "ok",
		Version:     h.cfg.Version,
		Service:     "ekaya-semantic",
		GoVersion:   runtime.Version(),
		Hostname:    hostname,
		Environment: h.cfg.Env,
	}
	if graph := h.graphs.Graph(); graph != nil {
		builtAt := graph.BuiltAt()
		response.GraphBuilt = true
		response.Entities = len(graph.Entities())
		response.Relationships = len(graph.Relationships())
		response.GraphBuiltAt = &builtAt
	}
	if h.llm != nil {
		response.LLM = &LLMStatus{Model: h.llm.GetModel(), Circuit: h.llm.CircuitStatus()}
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}
