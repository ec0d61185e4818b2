package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultTemperature is the LLM sampling temperature when none is configured.
const DefaultTemperature = 0.2

// Supported LLM providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config holds all configuration for ekaya-semantic.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (tokens, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3443"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Metadata catalog (OpenMetadata)
	Catalog CatalogConfig `yaml:"catalog"`

	// Semantic layer (Cube.js REST API)
	SemanticLayer SemanticLayerConfig `yaml:"semantic_layer"`

	// Language model used for relationship inference and query repair
	LLM LLMConfig `yaml:"llm"`

	Timeouts TimeoutsConfig `yaml:"timeouts"`

	Analysis AnalysisConfig `yaml:"analysis"`

	Enrichment EnrichmentConfig `yaml:"enrichment"`
}

// CatalogConfig holds metadata catalog connection settings.
type CatalogConfig struct {
	URL         string `yaml:"url" env:"OM_URL" env-default:"http://localhost:8585/api"`
	Token       string `yaml:"-" env:"OM_TOKEN"` // Secret - not in YAML
	ServiceName string `yaml:"service_name" env:"CATALOG_SERVICE_NAME" env-default:"pagila"`
	// ExcludeViews drops database views from relationship analysis.
	ExcludeViews bool `yaml:"exclude_views" env:"CATALOG_EXCLUDE_VIEWS" env-default:"false"`
	PageSize     int  `yaml:"page_size" env:"CATALOG_PAGE_SIZE" env-default:"100"`
}

// SemanticLayerConfig holds semantic layer API settings.
type SemanticLayerConfig struct {
	APIURL string `yaml:"api_url" env:"CUBE_API_URL" env-default:"http://localhost:4000/cubejs-api/v1"`
	Token  string `yaml:"-" env:"CUBE_API_TOKEN"` // Secret - not in YAML
	// MetaCacheTTL is how long /meta schema context is reused before refetching.
	MetaCacheTTL time.Duration `yaml:"meta_cache_ttl" env:"CUBE_META_CACHE_TTL" env-default:"5m"`
}

// LLMConfig holds language model settings.
type LLMConfig struct {
	Provider    string  `yaml:"provider" env:"LLM_PROVIDER" env-default:"anthropic"`
	Endpoint    string  `yaml:"endpoint" env:"LLM_ENDPOINT" env-default:""` // Derived from Provider if empty
	Model       string  `yaml:"model" env:"LLM_MODEL" env-default:"claude-sonnet-4-5-20250929"`
	APIKey      string  `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML
	Temperature float64 `yaml:"temperature" env:"LLM_TEMPERATURE"`
	MaxTokens   int     `yaml:"max_tokens" env:"LLM_MAX_TOKENS" env-default:"4096"`
	Thinking    bool    `yaml:"thinking" env:"LLM_THINKING" env-default:"false"`
}

// IsAvailable returns true if an LLM is configured.
func (c *LLMConfig) IsAvailable() bool {
	return c.Model != "" && c.APIKey != ""
}

// TimeoutsConfig bounds each outbound network call.
type TimeoutsConfig struct {
	Metadata time.Duration `yaml:"metadata" env:"TIMEOUT_METADATA" env-default:"30s"`
	Query    time.Duration `yaml:"query" env:"TIMEOUT_QUERY" env-default:"60s"`
	LLM      time.Duration `yaml:"llm" env:"TIMEOUT_LLM" env-default:"120s"`
}

// AnalysisConfig holds relationship analysis options.
type AnalysisConfig struct {
	// SkipLLMInference limits analysis to foreign keys and naming patterns.
	SkipLLMInference bool `yaml:"skip_llm_inference" env:"ANALYSIS_SKIP_LLM_INFERENCE" env-default:"false"`
	// OnStartup builds the relationship graph before the server accepts queries.
	OnStartup bool `yaml:"on_startup" env:"ANALYSIS_ON_STARTUP"`
}

// EnrichmentConfig holds catalog metadata enrichment options.
type EnrichmentConfig struct {
	// SkipTables lists substrings; any table whose name contains one is not enriched.
	SkipTables    []string `yaml:"skip_tables" env:"ENRICHMENT_SKIP_TABLES" env-separator:"," env-default:"pg_stat_statements"`
	MaxConcurrent int      `yaml:"max_concurrent" env:"ENRICHMENT_MAX_CONCURRENT" env-default:"4"`
	DryRun        bool     `yaml:"dry_run" env:"ENRICHMENT_DRY_RUN" env-default:"false"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	return LoadFile("config.yaml", version)
}

// LoadFile reads configuration from the given YAML file with environment variable overrides.
// Secrets (OM_TOKEN, CUBE_API_TOKEN, LLM_API_KEY) must come from environment variables.
func LoadFile(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
		// Fields whose zero value is a valid setting carry no env-default; cleanenv would
		// overwrite an explicit zero from YAML with it.
		LLM:      LLMConfig{Temperature: DefaultTemperature},
		Analysis: AnalysisConfig{OnStartup: true},
	}

	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// finalize derives defaults and validates the loaded values.
func (c *Config) finalize() error {
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	if c.LLM.Endpoint == "" {
		c.LLM.Endpoint = DefaultEndpoint(c.LLM.Provider)
	}

	if err := c.validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	c.Catalog.URL = ResolveURLForDocker(strings.TrimRight(c.Catalog.URL, "/"))
	c.SemanticLayer.APIURL = ResolveURLForDocker(strings.TrimRight(c.SemanticLayer.APIURL, "/"))
	return nil
}

func (c *Config) validate() error {
	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("llm.provider must be %q or %q, got %q", ProviderOpenAI, ProviderAnthropic, c.LLM.Provider)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be between 0 and 2, got %v", c.LLM.Temperature)
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("llm.max_tokens must be positive, got %d", c.LLM.MaxTokens)
	}

	if err := validateHTTPURL("catalog.url", c.Catalog.URL); err != nil {
		return err
	}
	if err := validateHTTPURL("semantic_layer.api_url", c.SemanticLayer.APIURL); err != nil {
		return err
	}
	if err := validateHTTPURL("llm.endpoint", c.LLM.Endpoint); err != nil {
		return err
	}

	if c.Catalog.PageSize <= 0 {
		return fmt.Errorf("catalog.page_size must be positive, got %d", c.Catalog.PageSize)
	}
	if c.Timeouts.Metadata <= 0 || c.Timeouts.Query <= 0 || c.Timeouts.LLM <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if c.Enrichment.MaxConcurrent <= 0 {
		return fmt.Errorf("enrichment.max_concurrent must be positive, got %d", c.Enrichment.MaxConcurrent)
	}
	return nil
}

func validateHTTPURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", field, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL, got %q", field, raw)
	}
	return nil
}

// DefaultEndpoint returns the public API base URL for a provider.
func DefaultEndpoint(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return "https://api.openai.com/v1"
	case ProviderAnthropic:
		return "https://api.anthropic.com"
	default:
		return ""
	}
}
