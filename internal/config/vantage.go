package config

// VantageConfig groups the search-and-answer control plane's own
// configuration surface (spec §6 "Configuration (enumerated)"), layered
// on top of the teacher's service-level Config. Field names follow the
// spec's dotted paths, reorganized into Go structs per SPEC_FULL.md §1.1.
type VantageConfig struct {
	Ollama         ModelRuntimeConfig   `yaml:"ollama"`
	Models         ModelsConfig         `yaml:"models"`
	Search         SearchConfig         `yaml:"search"`
	Opensearch     OpensearchConfig     `yaml:"opensearch"`
	Postgres       PostgresConfig       `yaml:"postgres"`
	IngestionTuning IngestionTuningConfig `yaml:"ingestion"`
	Watcher        WatcherConfig        `yaml:"watcher"`
	Memory         MemoryConfig         `yaml:"memory"`
	ModelManagement ModelManagementConfig `yaml:"model_management"`
	Kafka          KafkaConfig          `yaml:"kafka"`
	Redis          RedisConfig          `yaml:"redis"`
}

// ModelRuntimeConfig fixes spec §9 Open Question #2 (text_model vs
// unified_model): exactly one name per role.
type ModelRuntimeConfig struct {
	BaseURL      string `yaml:"base_url"`
	TextModel    string `yaml:"text_model"`
	VisionModel  string `yaml:"vision_model"`
	UnifiedModel string `yaml:"unified_model"`
	TimeoutSeconds int  `yaml:"timeout"`
}

// ModelsConfig carries embedding dimension and cross-encoder settings.
type ModelsConfig struct {
	EmbeddingDimension int    `yaml:"embedding_dimension"`
	CrossEncoderName   string `yaml:"cross_encoder_name"`
	CrossEncoderMaxLen int    `yaml:"cross_encoder_max_length"`
	CrossEncoderBaseURL string `yaml:"cross_encoder_base_url"`
	CrossEncoderPath    string `yaml:"cross_encoder_path"`
}

// SearchConfig carries the hybrid retrieval weights and pipeline tuning
// knobs (spec §4.4, §4.5), plus the full-text backend selection consumed
// by internal/persistence/databases.NewManager.
type SearchConfig struct {
	HybridEnabled        bool    `yaml:"hybrid_enabled"`
	VectorWeight         float64 `yaml:"vector_weight"`
	BM25Weight           float64 `yaml:"bm25_weight"`
	RRFK                 int     `yaml:"rrf_k"`
	RecallTopK           int     `yaml:"recall_top_k"`
	RerankTopK           int     `yaml:"rerank_top_k"`
	QueryExpansionEnabled bool   `yaml:"query_expansion_enabled"`

	Backend string `yaml:"backend"`
	DSN     string `yaml:"dsn"`
	Index   string `yaml:"index"`
}

// OpensearchConfig describes the full-text+vector engine collaborator
// (spec §6 external collaborators).
type OpensearchConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	IndexName string `yaml:"index_name"`
	Auth      string `yaml:"auth"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// PostgresConfig is the DSN for the feedback/conversation/graph stores.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// IngestionTuningConfig carries the summary-length knobs spec §6 names
// under ingestion.summary.*; distinct from the teacher's IngestionConfig
// (worker count / splitting), which remains unchanged.
type IngestionTuningConfig struct {
	SummaryMaxLength     int `yaml:"summary_max_length"`
	SummaryMaxContentLen int `yaml:"summary_max_content_length"`
	MaxPDFPages          int `yaml:"max_pdf_pages"`
	MaxSpreadsheetRows   int `yaml:"max_spreadsheet_rows"`
	ImageMaxDimension    int `yaml:"image_max_dimension"`
}

// WatcherConfig configures the filesystem-watcher collaborator.
type WatcherConfig struct {
	SupportedExtensions []string `yaml:"supported_extensions"`
	BatchSize           int      `yaml:"batch_size"`
	DebounceSeconds     int      `yaml:"debounce_seconds"`
}

// MemoryConfig configures the session-context TTL'd window (spec §3
// "Session context").
type MemoryConfig struct {
	SessionTTLSeconds  int `yaml:"session_ttl_seconds"`
	MaxRecentTurns     int `yaml:"max_recent_turns"`
	ConversationHistoryTurns int `yaml:"conversation_history_turns"`
}

// ModelManagementConfig configures the Model Manager (spec §4.3).
type ModelManagementConfig struct {
	AutoUnload        bool `yaml:"auto_unload"`
	KeepBothLoaded    bool `yaml:"keep_both_loaded"`
	UnloadAfterSeconds int `yaml:"unload_after_seconds"`
}

// KafkaConfig configures the Step Bus's optional durable mirror.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// RedisConfig configures the session-context cache.
type RedisConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	DB      int    `yaml:"db"`
}

// EmbeddingConfig describes the sentence-embedding collaborator's HTTP
// endpoint, used by internal/embedding.EmbedText.
type EmbeddingConfig struct {
	BaseURL   string            `yaml:"base_url"`
	Path      string            `yaml:"path"`
	Model     string            `yaml:"model"`
	APIKey    string            `yaml:"api_key"`
	APIHeader string            `yaml:"api_header"`
	Headers   map[string]string `yaml:"headers,omitempty"`
	Timeout   int               `yaml:"timeout_seconds"`
}

// applyVantageDefaults fills in the defaults spec §4.4/§4.9/§4.13/§5 call
// out by name, mirroring LoadConfig's existing default-filling idiom.
func (c *Config) applyVantageDefaults() {
	v := &c.Vantage
	if v.Search.RRFK <= 0 {
		v.Search.RRFK = 60
	}
	if v.Search.VectorWeight == 0 && v.Search.BM25Weight == 0 {
		v.Search.VectorWeight = 0.7
		v.Search.BM25Weight = 0.3
	}
	if v.Search.RecallTopK <= 0 {
		v.Search.RecallTopK = 50
	}
	if v.Search.RerankTopK <= 0 {
		v.Search.RerankTopK = 10
	}
	if v.ModelManagement.UnloadAfterSeconds <= 0 {
		v.ModelManagement.UnloadAfterSeconds = 600
	}
	if v.Memory.MaxRecentTurns <= 0 {
		v.Memory.MaxRecentTurns = 10
	}
	if v.Memory.ConversationHistoryTurns <= 0 {
		v.Memory.ConversationHistoryTurns = 6
	}
	if v.Ollama.TimeoutSeconds <= 0 {
		v.Ollama.TimeoutSeconds = 120
	}
	if v.IngestionTuning.MaxPDFPages <= 0 {
		v.IngestionTuning.MaxPDFPages = 100
	}
	if v.IngestionTuning.MaxSpreadsheetRows <= 0 {
		v.IngestionTuning.MaxSpreadsheetRows = 20
	}
	if v.IngestionTuning.ImageMaxDimension <= 0 {
		v.IngestionTuning.ImageMaxDimension = 1024
	}
	if v.Models.EmbeddingDimension <= 0 {
		v.Models.EmbeddingDimension = 768
	}
	if v.Models.CrossEncoderMaxLen <= 0 {
		v.Models.CrossEncoderMaxLen = 512
	}
	if v.Models.CrossEncoderPath == "" {
		v.Models.CrossEncoderPath = "/predict"
	}
}
