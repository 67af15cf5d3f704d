// manifold/config.go

package config

import (
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"gopkg.in/yaml.v2"

	"vantage/internal/logging"
)

type ServiceConfig struct {
	Name      string   `yaml:"name"`
	Host      string   `yaml:"host"`
	Port      int      `yaml:"port"`
	Command   string   `yaml:"command"`
	GPULayers string   `yaml:"gpu_layers,omitempty"`
	Args      []string `yaml:"args,omitempty"`
	Model     string   `yaml:"model,omitempty"`
}

type ToolConfig struct {
	Name       string                 `yaml:"name"`
	Parameters map[string]interface{} `yaml:"parameters"`
}

type DatabaseConfig struct {
	ConnectionString string `yaml:"connection_string"`
}

type ReactAgentConfig struct {
	MaxSteps int  `yaml:"max_steps"`
	Memory   bool `yaml:"memory"`
	NumTools int  `yaml:"num_tools"`
}

type FleetWorker struct {
	Name         string  `json:"name"`
	Model        string  `json:"model,omitempty"`
	Role         string  `json:"role"`
	Endpoint     string  `json:"endpoint"`
	CtxSize      int     `json:"ctx_size"`
	Temperature  float64 `json:"temperature"`
	ApiKey       string  `json:"api_key,omitempty"`
	Instructions string  `json:"instructions"`
	MaxSteps     int     `json:"max_steps"`
	Memory       bool    `json:"memory"`
}

type AgentFleet struct {
	Workers []FleetWorker `json:"workers"`
}

type AgenticMemoryConfig struct {
	Enabled bool `yaml:"enabled"`
}

// A2AConfig defines settings for the Agent2Agent protocol.
type A2AConfig struct {
	// Role specifies the node's role in the cluster ("master" or "worker").
	Role string `yaml:"role"`
	// Token is the shared secret used for authenticating A2A requests.
	Token string `yaml:"token"`
	// Nodes lists the URLs of remote nodes participating in the cluster.
	Nodes []string `yaml:"nodes"`
}

type CompletionsConfig struct {
	DefaultHost      string           `yaml:"default_host"`
	SummaryHost      string           `yaml:"summary_host,omitempty"`
	KeywordsHost     string           `yaml:"keywords_host,omitempty"`
	Backend          string           `yaml:"backend"` // e.g., "openai", "llamacpp", "mlx"
	CompletionsModel string           `yaml:"completions_model"`
	Temperature      float64          `yaml:"temperature"`
	CtxSize          int              `yaml:"ctx_size"`
	APIKey           string           `yaml:"api_key"`
	ReactAgentConfig ReactAgentConfig `yaml:"agent"`
}

type EmbeddingsConfig struct {
	Host         string `yaml:"host"`
	APIKey       string `yaml:"api_key"`
	Dimensions   int    `yaml:"dimensions"`
	EmbedPrefix  string `yaml:"embed_prefix"`
	SearchPrefix string `yaml:"search_prefix"`
}

type RerankerConfig struct {
	Host string `yaml:"host"`
}

type AuthConfig struct {
	SecretKey   string `yaml:"secret_key"`
	TokenExpiry int    `yaml:"token_expiry"` // Token expiry in hours
}

type WebSearchToolConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Backend    string `yaml:"backend"`            // e.g., "serpapi", "bing"
	Endpoint   string `yaml:"endpoint,omniempty"` // API endpoint for the search service
	ResultSize int    `yaml:"result_size"`        // Number of results to fetch
}

type IngestionConfig struct {
	MaxWorkers  int  `yaml:"max_workers"`
	UseAdvanced bool `yaml:"use_advanced_splitting"`
}

type ToolsConfig struct {
	Search WebSearchToolConfig
}

// TelemetryConfig controls OpenTelemetry settings.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

// SpecialistConfig optionally pins a named specialist agent (clarifier,
// analyst, critic, summarizer, explainer) to its own model/provider/base
// URL, overriding the orchestrator-wide LLMClient default for that agent.
type SpecialistConfig struct {
	Name     string `yaml:"name"`
	Model    string `yaml:"model,omitempty"`
	BaseURL  string `yaml:"baseURL,omitempty"`
	Provider string `yaml:"provider,omitempty"`
}

// DBConfig selects and addresses the backing stores behind
// internal/persistence/databases.Manager. NewManager builds full-text
// search, vector similarity and the knowledge graph from Search, Vector and
// Graph; it does not read Chat. Each backend string is one of "" or
// "memory", "auto", "postgres"/"pg" (Vector also accepts "pgvector"), or
// "none"/"disabled"; any other name, "qdrant" included, is rejected.
type DBConfig struct {
	DefaultDSN string       `yaml:"default_dsn"`
	Search     SearchConfig `yaml:"search"`
	Vector     VectorConfig `yaml:"vector"`
	Graph      GraphConfig  `yaml:"graph"`
	Chat       ChatConfig   `yaml:"chat"`
}

type VectorConfig struct {
	Backend    string `yaml:"backend"`
	DSN        string `yaml:"dsn"`
	Index      string `yaml:"index"`
	Dimensions int    `yaml:"dimensions"`
	Metric     string `yaml:"metric"`
}

type GraphConfig struct {
	Backend string `yaml:"backend"`
	DSN     string `yaml:"dsn"`
}

type ChatConfig struct {
	Backend string `yaml:"backend"`
	DSN     string `yaml:"dsn"`
}

// LLMClientConfig selects which provider backs internal/llm/providers and
// carries that provider's own credentials.
type LLMClientConfig struct {
	Provider  string           `yaml:"provider"`
	OpenAI    OpenAIConfig     `yaml:"openai"`
	Anthropic AnthropicConfig  `yaml:"anthropic"`
	Google    GoogleConfig     `yaml:"google"`
}

type OpenAIConfig struct {
	APIKey         string            `yaml:"api_key"`
	BaseURL        string            `yaml:"base_url"`
	Model          string            `yaml:"model"`
	API            string            `yaml:"api"` // "completions" or "responses"
	SummaryBaseURL string            `yaml:"summary_base_url,omitempty"`
	SummaryModel   string            `yaml:"summary_model,omitempty"`
	ExtraParams    map[string]any    `yaml:"extra_params,omitempty"`
	ExtraHeaders   map[string]string `yaml:"extra_headers,omitempty"`
	LogPayloads    bool              `yaml:"log_payloads,omitempty"`
}

type AnthropicConfig struct {
	APIKey      string                     `yaml:"api_key"`
	Model       string                     `yaml:"model"`
	BaseURL     string                     `yaml:"base_url"`
	PromptCache AnthropicPromptCacheConfig `yaml:"prompt_cache"`
}

type AnthropicPromptCacheConfig struct {
	Enabled       bool `yaml:"enabled"`
	CacheSystem   bool `yaml:"cache_system"`
	CacheTools    bool `yaml:"cache_tools"`
	CacheMessages bool `yaml:"cache_messages"`
}

type GoogleConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
	Timeout int    `yaml:"timeout_seconds"`
}

// ObsConfig controls the optional OpenTelemetry export
// (internal/observability.InitOTel). The ClickHouse block is loaded and
// defaulted by the config loader; InitOTel does not read it.
type ObsConfig struct {
	ServiceName    string           `yaml:"service_name"`
	ServiceVersion string           `yaml:"service_version"`
	Environment    string           `yaml:"environment"`
	OTLP           string           `yaml:"otlp_endpoint"`
	ClickHouse     ClickHouseConfig `yaml:"clickhouse"`
}

type ClickHouseConfig struct {
	DSN                  string `yaml:"dsn"`
	Database             string `yaml:"database"`
	MetricsTable         string `yaml:"metrics_table"`
	TracesTable          string `yaml:"traces_table"`
	LogsTable            string `yaml:"logs_table"`
	TimestampColumn      string `yaml:"timestamp_column"`
	ValueColumn          string `yaml:"value_column"`
	ModelAttributeKey    string `yaml:"model_attribute_key"`
	PromptMetricName     string `yaml:"prompt_metric_name"`
	CompletionMetricName string `yaml:"completion_metric_name"`
	LookbackHours        int    `yaml:"lookback_hours"`
	TimeoutSeconds       int    `yaml:"timeout_seconds"`
}

type Config struct {
	Host                      string              `yaml:"host"`
	Port                      int                 `yaml:"port"`
	DataPath                  string              `yaml:"data_path"`
	SingleNodeInstance        bool                `yaml:"single_node_instance,omitempty"`
	GitHubPersonalAccessToken string              `yaml:"github_personal_access_token"`
	AnthropicKey              string              `yaml:"anthropic_key,omitempty"`
	OpenAIAPIKey              string              `yaml:"openai_api_key,omitempty"`
	GoogleGeminiKey           string              `yaml:"google_gemini_key,omitempty"`
	HuggingFaceToken          string              `yaml:"hf_token,omitempty"`
	Database                  DatabaseConfig      `yaml:"database"`
	DBPool                    *pgxpool.Pool       `yaml:"-"` // PgxPool is not serialized, used for database connections
	Completions               CompletionsConfig   `yaml:"completions"`
	Embeddings                EmbeddingsConfig    `yaml:"embeddings"`
	Reranker                  RerankerConfig      `yaml:"reranker"`
	Auth                      AuthConfig          `yaml:"auth"`
	AgentFleet                AgentFleet          `yaml:"agent_fleet,omitempty"`
	AgenticMemory             AgenticMemoryConfig `yaml:"agentic_memory"`
	A2A                       A2AConfig           `yaml:"a2a,omitempty"`
	Tools                     ToolsConfig         `yaml:"tools,omitempty"`
	OTel                      TelemetryConfig     `yaml:"otel"`
	Ingestion                 IngestionConfig     `yaml:"ingestion"`
	Vantage                   VantageConfig       `yaml:"vantage"`

	Databases   DBConfig           `yaml:"databases"`
	Embedding   EmbeddingConfig    `yaml:"embedding"`
	LLMClient   LLMClientConfig    `yaml:"llm_client"`
	OpenAI      OpenAIConfig       `yaml:"openai"`
	Obs         ObsConfig          `yaml:"obs"`
	Specialists []SpecialistConfig `yaml:"specialists,omitempty"`
}

// LoadConfig reads the configuration from a YAML file, unmarshals it into a Config struct,
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		logging.Log.WithError(err).Error("config: reading config file failed")
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		logging.Log.WithError(err).Error("config: unmarshaling config failed")
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Set default values for Auth if not provided
	if config.Auth.SecretKey == "" {
		config.Auth.SecretKey = "your-secret-key" // Default fallback (should be changed in production)
		logging.Log.Warn("config: no JWT secret key provided, using default (insecure)")
	}

	if config.Auth.TokenExpiry <= 0 {
		config.Auth.TokenExpiry = 72 // Default to 72 hours
		logging.Log.Info("config: no token expiry specified, using default (72 hours)")
	}

	// Set default values for Ingestion if not provided
	if config.Ingestion.MaxWorkers <= 0 {
		config.Ingestion.MaxWorkers = 4 // Default to 4 workers
		logging.Log.Info("config: no max_workers specified for ingestion, using default (4)")
	}

	// Default to using advanced splitting for better code structure awareness
	if !config.Ingestion.UseAdvanced {
		config.Ingestion.UseAdvanced = true
		logging.Log.Info("config: advanced splitting enabled by default")
	}

	if config.OTel.ServiceName == "" {
		config.OTel.ServiceName = "manifold"
	}

	config.applyVantageDefaults()

	logging.Log.Info("config: configuration loaded successfully")
	return &config, nil
}
