package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v3"
)

// SpecialistRoute maps a query pattern to the specialist that should
// handle it; reserved for future routing logic, populated from YAML only.
type SpecialistRoute struct {
	Pattern    string `yaml:"pattern"`
	Specialist string `yaml:"specialist"`
}

// Load reads configuration from environment variables (optionally .env),
// then fills fields the environment left unset from an optional
// config.yaml/config.yml (or the file named by SPECIALISTS_CONFIG), then
// applies defaults.
func Load() (Config, error) {
	// Use Overload so .env values override existing OS environment variables.
	_ = godotenv.Overload()

	cfg := Config{}

	cfg.LLMClient.Provider = strings.TrimSpace(os.Getenv("LLM_PROVIDER"))
	if v := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); v != "" {
		cfg.OpenAI.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("OPENAI_MODEL")); v != "" {
		cfg.OpenAI.Model = v
	}
	if v := firstNonEmpty(strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")), strings.TrimSpace(os.Getenv("OPENAI_API_BASE_URL"))); v != "" {
		cfg.OpenAI.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("OPENAI_SUMMARY_URL")); v != "" {
		cfg.OpenAI.SummaryBaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("OPENAI_SUMMARY_MODEL")); v != "" {
		cfg.OpenAI.SummaryModel = v
	}
	if v := strings.TrimSpace(os.Getenv("OPENAI_API")); v != "" {
		cfg.OpenAI.API = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_PAYLOADS")); v != "" {
		cfg.OpenAI.LogPayloads = strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
	}
	if v := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")); v != "" {
		cfg.LLMClient.Anthropic.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("ANTHROPIC_MODEL")); v != "" {
		cfg.LLMClient.Anthropic.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("ANTHROPIC_BASE_URL")); v != "" {
		cfg.LLMClient.Anthropic.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("GOOGLE_LLM_API_KEY")); v != "" {
		cfg.LLMClient.Google.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("GOOGLE_LLM_MODEL")); v != "" {
		cfg.LLMClient.Google.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("GOOGLE_LLM_BASE_URL")); v != "" {
		cfg.LLMClient.Google.BaseURL = v
	}

	cfg.Obs.ServiceName = strings.TrimSpace(os.Getenv("OTEL_SERVICE_NAME"))
	cfg.Obs.ServiceVersion = strings.TrimSpace(os.Getenv("SERVICE_VERSION"))
	cfg.Obs.Environment = strings.TrimSpace(os.Getenv("ENVIRONMENT"))
	cfg.Obs.OTLP = strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	cfg.Obs.ClickHouse.DSN = strings.TrimSpace(os.Getenv("CLICKHOUSE_DSN"))
	cfg.Obs.ClickHouse.Database = strings.TrimSpace(os.Getenv("CLICKHOUSE_DATABASE"))
	cfg.Obs.ClickHouse.MetricsTable = strings.TrimSpace(os.Getenv("CLICKHOUSE_METRICS_TABLE"))
	cfg.Obs.ClickHouse.TracesTable = strings.TrimSpace(os.Getenv("CLICKHOUSE_TRACES_TABLE"))
	cfg.Obs.ClickHouse.LogsTable = strings.TrimSpace(os.Getenv("CLICKHOUSE_LOGS_TABLE"))
	cfg.Obs.ClickHouse.TimestampColumn = strings.TrimSpace(os.Getenv("CLICKHOUSE_TIMESTAMP_COLUMN"))
	cfg.Obs.ClickHouse.ValueColumn = strings.TrimSpace(os.Getenv("CLICKHOUSE_VALUE_COLUMN"))
	cfg.Obs.ClickHouse.ModelAttributeKey = strings.TrimSpace(os.Getenv("CLICKHOUSE_MODEL_ATTRIBUTE_KEY"))
	cfg.Obs.ClickHouse.PromptMetricName = strings.TrimSpace(os.Getenv("CLICKHOUSE_PROMPT_METRIC_NAME"))
	cfg.Obs.ClickHouse.CompletionMetricName = strings.TrimSpace(os.Getenv("CLICKHOUSE_COMPLETION_METRIC_NAME"))
	if v := strings.TrimSpace(os.Getenv("CLICKHOUSE_LOOKBACK_HOURS")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Obs.ClickHouse.LookbackHours = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("CLICKHOUSE_TIMEOUT_SECONDS")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Obs.ClickHouse.TimeoutSeconds = n
		}
	}

	// Database backends via environment variables
	cfg.Databases.DefaultDSN = firstNonEmpty(strings.TrimSpace(os.Getenv("DATABASE_URL")), strings.TrimSpace(os.Getenv("DB_URL")), strings.TrimSpace(os.Getenv("POSTGRES_DSN")))
	cfg.Databases.Search.Backend = strings.TrimSpace(os.Getenv("SEARCH_BACKEND"))
	cfg.Databases.Search.DSN = strings.TrimSpace(os.Getenv("SEARCH_DSN"))
	cfg.Databases.Search.Index = strings.TrimSpace(os.Getenv("SEARCH_INDEX"))
	cfg.Databases.Vector.Backend = strings.TrimSpace(os.Getenv("VECTOR_BACKEND"))
	cfg.Databases.Vector.DSN = strings.TrimSpace(os.Getenv("VECTOR_DSN"))
	cfg.Databases.Vector.Index = strings.TrimSpace(os.Getenv("VECTOR_INDEX"))
	if v := strings.TrimSpace(os.Getenv("VECTOR_DIMENSIONS")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Databases.Vector.Dimensions = n
		}
	}
	cfg.Databases.Vector.Metric = strings.TrimSpace(os.Getenv("VECTOR_METRIC"))
	cfg.Databases.Graph.Backend = strings.TrimSpace(os.Getenv("GRAPH_BACKEND"))
	cfg.Databases.Graph.DSN = strings.TrimSpace(os.Getenv("GRAPH_DSN"))
	cfg.Databases.Chat.Backend = strings.TrimSpace(os.Getenv("CHAT_BACKEND"))
	cfg.Databases.Chat.DSN = strings.TrimSpace(os.Getenv("CHAT_DSN"))

	// Embedding service configuration via environment variables
	cfg.Embedding.BaseURL = strings.TrimSpace(os.Getenv("EMBED_BASE_URL"))
	cfg.Embedding.Model = strings.TrimSpace(os.Getenv("EMBED_MODEL"))
	cfg.Embedding.APIKey = strings.TrimSpace(os.Getenv("EMBED_API_KEY"))
	cfg.Embedding.APIHeader = strings.TrimSpace(os.Getenv("EMBED_API_HEADER"))
	// Optional: set EMBED_API_HEADERS as JSON string or comma-separated key:value pairs
	if v := strings.TrimSpace(os.Getenv("EMBED_API_HEADERS")); v != "" {
		var m map[string]string
		if err := json.Unmarshal([]byte(v), &m); err == nil {
			cfg.Embedding.Headers = m
		} else {
			m = make(map[string]string)
			for _, p := range strings.Split(v, ",") {
				p = strings.TrimSpace(p)
				if p == "" {
					continue
				}
				if strings.Contains(p, ":") {
					kv := strings.SplitN(p, ":", 2)
					m[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
				} else if strings.Contains(p, "=") {
					kv := strings.SplitN(p, "=", 2)
					m[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
				}
			}
			cfg.Embedding.Headers = m
		}
	}
	cfg.Embedding.Path = strings.TrimSpace(os.Getenv("EMBED_PATH"))
	if v := strings.TrimSpace(os.Getenv("EMBED_TIMEOUT")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Embedding.Timeout = n
		}
	}

	// Optionally layer in specialist agents and the above blocks from a YAML file.
	if err := loadSpecialists(&cfg); err != nil {
		return Config{}, err
	}

	// Apply defaults after the YAML merge so YAML/env values win.
	if cfg.OpenAI.Model == "" {
		cfg.OpenAI.Model = "gpt-4o-mini"
	}
	if cfg.OpenAI.SummaryModel == "" {
		cfg.OpenAI.SummaryModel = cfg.OpenAI.Model
	}
	if cfg.OpenAI.SummaryBaseURL == "" {
		cfg.OpenAI.SummaryBaseURL = cfg.OpenAI.BaseURL
	}
	if cfg.OpenAI.API == "" {
		cfg.OpenAI.API = "completions"
	}
	provider := strings.ToLower(strings.TrimSpace(cfg.LLMClient.Provider))
	if provider == "" {
		provider = "openai"
	}
	switch provider {
	case "openai", "anthropic", "google", "local":
		cfg.LLMClient.Provider = provider
	default:
		return Config{}, fmt.Errorf("llm provider must be one of openai, anthropic, google, or local (got %q)", provider)
	}
	if cfg.LLMClient.Provider == "local" {
		cfg.OpenAI.API = "completions"
	}
	if cfg.Obs.ServiceName == "" {
		cfg.Obs.ServiceName = "vantage"
	}
	if cfg.Obs.Environment == "" {
		cfg.Obs.Environment = "dev"
	}
	if cfg.Obs.ClickHouse.MetricsTable == "" {
		cfg.Obs.ClickHouse.MetricsTable = "metrics"
	}
	if cfg.Obs.ClickHouse.TracesTable == "" {
		cfg.Obs.ClickHouse.TracesTable = "traces"
	}
	if cfg.Obs.ClickHouse.LogsTable == "" {
		cfg.Obs.ClickHouse.LogsTable = "logs"
	}
	if cfg.Obs.ClickHouse.TimestampColumn == "" {
		cfg.Obs.ClickHouse.TimestampColumn = "TimeUnix"
	}
	if cfg.Obs.ClickHouse.ValueColumn == "" {
		cfg.Obs.ClickHouse.ValueColumn = "Value"
	}
	if cfg.Obs.ClickHouse.ModelAttributeKey == "" {
		cfg.Obs.ClickHouse.ModelAttributeKey = "llm.model"
	}
	if cfg.Obs.ClickHouse.PromptMetricName == "" {
		cfg.Obs.ClickHouse.PromptMetricName = "llm.prompt_tokens"
	}
	if cfg.Obs.ClickHouse.CompletionMetricName == "" {
		cfg.Obs.ClickHouse.CompletionMetricName = "llm.completion_tokens"
	}
	if cfg.Obs.ClickHouse.LookbackHours <= 0 {
		cfg.Obs.ClickHouse.LookbackHours = 24
	}
	if cfg.Obs.ClickHouse.TimeoutSeconds <= 0 {
		cfg.Obs.ClickHouse.TimeoutSeconds = 5
	}

	// Apply embedding defaults
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = "https://api.openai.com"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.APIHeader == "" {
		cfg.Embedding.APIHeader = "Authorization"
	}
	if cfg.Embedding.Path == "" {
		cfg.Embedding.Path = "/v1/embeddings"
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 30
	}

	// Apply database defaults. If a DefaultDSN is provided and the backend is
	// unspecified, prefer "auto" so the factory can attempt Postgres.
	if cfg.Databases.Search.Backend == "" {
		if cfg.Databases.DefaultDSN != "" {
			cfg.Databases.Search.Backend = "auto"
		} else {
			cfg.Databases.Search.Backend = "memory"
		}
	}
	if cfg.Databases.Vector.Backend == "" {
		if cfg.Databases.DefaultDSN != "" {
			cfg.Databases.Vector.Backend = "auto"
		} else {
			cfg.Databases.Vector.Backend = "memory"
		}
	}
	if cfg.Databases.Graph.Backend == "" {
		if cfg.Databases.DefaultDSN != "" {
			cfg.Databases.Graph.Backend = "auto"
		} else {
			cfg.Databases.Graph.Backend = "memory"
		}
	}
	if cfg.Databases.Chat.Backend == "" {
		if cfg.Databases.DefaultDSN != "" {
			cfg.Databases.Chat.Backend = "auto"
		} else {
			cfg.Databases.Chat.Backend = "memory"
		}
	}

	if cfg.OpenAI.APIKey == "" {
		return Config{}, errors.New("OPENAI_API_KEY is required for llm_client.openai (set in .env or environment)")
	}
	for i := range cfg.Specialists {
		if strings.TrimSpace(cfg.Specialists[i].Provider) == "" {
			cfg.Specialists[i].Provider = cfg.LLMClient.Provider
		}
	}

	// Keep LLMClient.OpenAI in sync with the effective OpenAI config.
	cfg.LLMClient.OpenAI = cfg.OpenAI

	cfg.applyVantageDefaults()

	return cfg, nil
}

// loadSpecialists populates cfg.Specialists, the vantage block, and the
// Databases/Embedding/LLMClient/Obs blocks set above, from an optional YAML
// file. The file path
// can be given with SPECIALISTS_CONFIG; otherwise config.yaml/config.yml in
// the working directory is used if present. Values already set from the
// environment take precedence over the YAML file's.
func loadSpecialists(cfg *Config) error {
	if strings.EqualFold(strings.TrimSpace(os.Getenv("SPECIALISTS_DISABLED")), "true") {
		return nil
	}

	var paths []string
	if p := strings.TrimSpace(os.Getenv("SPECIALISTS_CONFIG")); p != "" {
		paths = append(paths, p)
	}
	paths = append(paths, "config.yaml", "config.yml")
	var data []byte
	var chosen string
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err == nil {
			data = b
			chosen = p
			break
		}
		if os.IsNotExist(err) {
			continue
		}
		return fmt.Errorf("read %s: %w", p, err)
	}
	if len(data) == 0 {
		return nil // optional
	}

	type openAIYAML struct {
		APIKey         string            `yaml:"apiKey"`
		Model          string            `yaml:"model"`
		BaseURL        string            `yaml:"baseURL"`
		SummaryModel   string            `yaml:"summaryModel"`
		SummaryBaseURL string            `yaml:"summaryBaseURL"`
		API            string            `yaml:"api"`
		ExtraHeaders   map[string]string `yaml:"extraHeaders"`
		ExtraParams    map[string]any    `yaml:"extraParams"`
		LogPayloads    bool              `yaml:"logPayloads"`
	}
	type wrap struct {
		Specialists []SpecialistConfig `yaml:"specialists"`
		Routes      []SpecialistRoute  `yaml:"routes"`
		LLMClient   LLMClientConfig    `yaml:"llm_client"`
		OpenAI      openAIYAML        `yaml:"openai"`
		Obs         ObsConfig          `yaml:"obs"`
		Databases   DBConfig           `yaml:"databases"`
		Embedding   EmbeddingConfig    `yaml:"embedding"`
		Vantage     VantageConfig      `yaml:"vantage"`
	}

	// Two accepted shapes: {specialists: [...], ...} or a bare list [...].
	data = []byte(os.ExpandEnv(string(data)))
	var w wrap
	if err := yaml.Unmarshal(data, &w); err != nil {
		var list []SpecialistConfig
		if err2 := yaml.Unmarshal(data, &list); err2 == nil {
			cfg.Specialists = list
			return nil
		}
		return fmt.Errorf("%s: could not parse configuration: %w", chosen, err)
	}

	if len(w.Specialists) > 0 {
		cfg.Specialists = w.Specialists
	}
	cfg.Vantage = w.Vantage

	mergeString(&cfg.LLMClient.Provider, w.LLMClient.Provider)
	mergeString(&cfg.LLMClient.Anthropic.APIKey, w.LLMClient.Anthropic.APIKey)
	mergeString(&cfg.LLMClient.Anthropic.Model, w.LLMClient.Anthropic.Model)
	mergeString(&cfg.LLMClient.Anthropic.BaseURL, w.LLMClient.Anthropic.BaseURL)
	if w.LLMClient.Anthropic.PromptCache.Enabled {
		cfg.LLMClient.Anthropic.PromptCache = w.LLMClient.Anthropic.PromptCache
	}
	mergeString(&cfg.LLMClient.Google.APIKey, w.LLMClient.Google.APIKey)
	mergeString(&cfg.LLMClient.Google.Model, w.LLMClient.Google.Model)
	mergeString(&cfg.LLMClient.Google.BaseURL, w.LLMClient.Google.BaseURL)
	if cfg.LLMClient.Google.Timeout == 0 {
		cfg.LLMClient.Google.Timeout = w.LLMClient.Google.Timeout
	}

	mergeString(&cfg.OpenAI.APIKey, w.OpenAI.APIKey)
	mergeString(&cfg.OpenAI.Model, w.OpenAI.Model)
	mergeString(&cfg.OpenAI.BaseURL, w.OpenAI.BaseURL)
	mergeString(&cfg.OpenAI.SummaryModel, w.OpenAI.SummaryModel)
	mergeString(&cfg.OpenAI.SummaryBaseURL, w.OpenAI.SummaryBaseURL)
	mergeString(&cfg.OpenAI.API, w.OpenAI.API)
	if len(cfg.OpenAI.ExtraHeaders) == 0 {
		cfg.OpenAI.ExtraHeaders = w.OpenAI.ExtraHeaders
	}
	if len(cfg.OpenAI.ExtraParams) == 0 {
		cfg.OpenAI.ExtraParams = w.OpenAI.ExtraParams
	}
	if !cfg.OpenAI.LogPayloads {
		cfg.OpenAI.LogPayloads = w.OpenAI.LogPayloads
	}

	mergeString(&cfg.Obs.ServiceName, w.Obs.ServiceName)
	mergeString(&cfg.Obs.ServiceVersion, w.Obs.ServiceVersion)
	mergeString(&cfg.Obs.Environment, w.Obs.Environment)
	mergeString(&cfg.Obs.OTLP, w.Obs.OTLP)
	mergeString(&cfg.Obs.ClickHouse.DSN, w.Obs.ClickHouse.DSN)
	mergeString(&cfg.Obs.ClickHouse.Database, w.Obs.ClickHouse.Database)
	mergeString(&cfg.Obs.ClickHouse.MetricsTable, w.Obs.ClickHouse.MetricsTable)
	mergeString(&cfg.Obs.ClickHouse.TracesTable, w.Obs.ClickHouse.TracesTable)
	mergeString(&cfg.Obs.ClickHouse.LogsTable, w.Obs.ClickHouse.LogsTable)
	mergeString(&cfg.Obs.ClickHouse.TimestampColumn, w.Obs.ClickHouse.TimestampColumn)
	mergeString(&cfg.Obs.ClickHouse.ValueColumn, w.Obs.ClickHouse.ValueColumn)
	mergeString(&cfg.Obs.ClickHouse.ModelAttributeKey, w.Obs.ClickHouse.ModelAttributeKey)
	mergeString(&cfg.Obs.ClickHouse.PromptMetricName, w.Obs.ClickHouse.PromptMetricName)
	mergeString(&cfg.Obs.ClickHouse.CompletionMetricName, w.Obs.ClickHouse.CompletionMetricName)
	if cfg.Obs.ClickHouse.LookbackHours == 0 {
		cfg.Obs.ClickHouse.LookbackHours = w.Obs.ClickHouse.LookbackHours
	}
	if cfg.Obs.ClickHouse.TimeoutSeconds == 0 {
		cfg.Obs.ClickHouse.TimeoutSeconds = w.Obs.ClickHouse.TimeoutSeconds
	}

	mergeString(&cfg.Databases.DefaultDSN, w.Databases.DefaultDSN)
	mergeString(&cfg.Databases.Search.Backend, w.Databases.Search.Backend)
	mergeString(&cfg.Databases.Search.DSN, w.Databases.Search.DSN)
	mergeString(&cfg.Databases.Search.Index, w.Databases.Search.Index)
	mergeString(&cfg.Databases.Vector.Backend, w.Databases.Vector.Backend)
	mergeString(&cfg.Databases.Vector.DSN, w.Databases.Vector.DSN)
	mergeString(&cfg.Databases.Vector.Index, w.Databases.Vector.Index)
	if cfg.Databases.Vector.Dimensions == 0 {
		cfg.Databases.Vector.Dimensions = w.Databases.Vector.Dimensions
	}
	mergeString(&cfg.Databases.Vector.Metric, w.Databases.Vector.Metric)
	mergeString(&cfg.Databases.Graph.Backend, w.Databases.Graph.Backend)
	mergeString(&cfg.Databases.Graph.DSN, w.Databases.Graph.DSN)
	mergeString(&cfg.Databases.Chat.Backend, w.Databases.Chat.Backend)
	mergeString(&cfg.Databases.Chat.DSN, w.Databases.Chat.DSN)

	mergeString(&cfg.Embedding.BaseURL, w.Embedding.BaseURL)
	mergeString(&cfg.Embedding.Model, w.Embedding.Model)
	mergeString(&cfg.Embedding.APIKey, w.Embedding.APIKey)
	mergeString(&cfg.Embedding.APIHeader, w.Embedding.APIHeader)
	mergeString(&cfg.Embedding.Path, w.Embedding.Path)
	if len(cfg.Embedding.Headers) == 0 {
		cfg.Embedding.Headers = w.Embedding.Headers
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = w.Embedding.Timeout
	}

	return nil
}

func mergeString(dst *string, src string) {
	if *dst == "" && strings.TrimSpace(src) != "" {
		*dst = strings.TrimSpace(src)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func parseInt(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}

func intFromEnv(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := parseInt(v); err == nil {
			return n
		}
	}
	return def
}
