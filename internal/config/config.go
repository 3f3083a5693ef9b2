package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port        int              `json:"port"`
	CORSOrigins []string         `json:"cors_origins"`
	LogConfig   logger.LogConfig `json:"log_config"`
	Database    DatabaseConfig   `json:"database"`
	FileStore   FileStoreConfig  `json:"file_store"`
	AI          AIConfig         `json:"ai"`
	VectorIndex IndexConfig      `json:"vector_index"`
	Pipeline    PipelineConfig   `json:"pipeline"`
	Jobs        JobsConfig       `json:"jobs"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	SSLMode  string `json:"ssl_mode"`
}

type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type AIConfig struct {
	Embedding  ModelConfig    `json:"embedding"`
	Generation ModelConfig    `json:"generation"`
	Decoding   DecodingConfig `json:"decoding"`
	// TimeoutSeconds are per-call budgets; generation runs orders of
	// magnitude longer than embedding, so they are independent.
	EmbedTimeoutSeconds    int `json:"embed_timeout_seconds"`
	GenerateTimeoutSeconds int `json:"generate_timeout_seconds"`
}

type ModelConfig struct {
	Provider  string      `json:"provider"`
	Model     string      `json:"model"`
	Dimension int         `json:"dimension"`
	Data      interface{} `json:"data"`
	// Fallbacks are tried in order when the primary fails at call time.
	// A fallback embedding model must produce the primary's dimension.
	Fallbacks []FallbackConfig `json:"fallbacks"`
}

type FallbackConfig struct {
	Provider string      `json:"provider"`
	Model    string      `json:"model"`
	Data     interface{} `json:"data"`
}

type DecodingConfig struct {
	Temperature   float32 `json:"temperature"`
	TopP          float32 `json:"top_p"`
	RepeatPenalty float32 `json:"repeat_penalty"`
	MaxNewTokens  int     `json:"max_new_tokens"`
}

type IndexConfig struct {
	Backend              string      `json:"backend"`
	Collection           string      `json:"collection"`
	SearchTimeoutSeconds int         `json:"search_timeout_seconds"`
	Data                 interface{} `json:"data"`
}

type PipelineConfig struct {
	ChunkSize           int      `json:"chunk_size"`
	ChunkOverlap        int      `json:"chunk_overlap"`
	MaxFileMB           int64    `json:"max_file_mb"`
	AllowedExtensions   []string `json:"allowed_extensions"`
	MinCharsPerPage     int      `json:"min_chars_per_page"`
	TopK                int      `json:"top_k"`
	ContextBudgetChars  int      `json:"context_budget_chars"`
	MaxGenerationSlots  int      `json:"max_generation_slots"`
	GenerationQueueSize int      `json:"generation_queue_size"`
	QueueWaitSeconds    int      `json:"queue_wait_seconds"`
	EmbedCacheSize      int      `json:"embed_cache_size"`
	EmbedCacheTTLHours  int      `json:"embed_cache_ttl_hours"`
	// RateLimitSeconds throttles upload and query per client; zero disables.
	RateLimitSeconds int `json:"rate_limit_seconds"`
}

type JobsConfig struct {
	EventFlushSpec      string `json:"event_flush_spec"`
	CacheCleanupSpec    string `json:"cache_cleanup_spec"`
	CacheKeepDays       int    `json:"cache_keep_days"`
	StuckDocSpec        string `json:"stuck_doc_spec"`
	StuckDocDeadlineMin int    `json:"stuck_doc_deadline_min"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Port == 0 {
		return nil, fmt.Errorf("port is required")
	}
	if cfg.Database.DSN == "" && cfg.Database.Host == "" {
		return nil, fmt.Errorf("database.dsn or database.host is required")
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.FileStore.Type == "" {
		cfg.FileStore.Type = "local"
	}
	if cfg.AI.Embedding.Provider == "" {
		return nil, fmt.Errorf("ai.embedding.provider is required")
	}
	if cfg.AI.Embedding.Model == "" {
		return nil, fmt.Errorf("ai.embedding.model is required")
	}
	if cfg.AI.Embedding.Dimension <= 0 {
		return nil, fmt.Errorf("ai.embedding.dimension is required")
	}
	if cfg.AI.Generation.Provider == "" {
		return nil, fmt.Errorf("ai.generation.provider is required")
	}
	if cfg.AI.Generation.Model == "" {
		return nil, fmt.Errorf("ai.generation.model is required")
	}
	for i, fb := range cfg.AI.Embedding.Fallbacks {
		if fb.Provider == "" || fb.Model == "" {
			return nil, fmt.Errorf("ai.embedding.fallbacks[%d]: provider and model are required", i)
		}
	}
	for i, fb := range cfg.AI.Generation.Fallbacks {
		if fb.Provider == "" || fb.Model == "" {
			return nil, fmt.Errorf("ai.generation.fallbacks[%d]: provider and model are required", i)
		}
	}
	if cfg.AI.EmbedTimeoutSeconds == 0 {
		cfg.AI.EmbedTimeoutSeconds = 30
	}
	if cfg.AI.GenerateTimeoutSeconds == 0 {
		cfg.AI.GenerateTimeoutSeconds = 300
	}
	if cfg.AI.Decoding.Temperature == 0 {
		cfg.AI.Decoding.Temperature = 0.3
	}
	if cfg.AI.Decoding.TopP == 0 {
		cfg.AI.Decoding.TopP = 0.9
	}
	if cfg.AI.Decoding.RepeatPenalty == 0 {
		cfg.AI.Decoding.RepeatPenalty = 1.1
	}
	if cfg.AI.Decoding.MaxNewTokens == 0 {
		cfg.AI.Decoding.MaxNewTokens = 512
	}
	if cfg.VectorIndex.Backend == "" {
		return nil, fmt.Errorf("vector_index.backend is required")
	}
	if cfg.VectorIndex.Collection == "" {
		return nil, fmt.Errorf("vector_index.collection is required")
	}
	if cfg.VectorIndex.SearchTimeoutSeconds == 0 {
		cfg.VectorIndex.SearchTimeoutSeconds = 10
	}
	applyPipelineDefaults(&cfg.Pipeline)
	applyJobDefaults(&cfg.Jobs)
	return &cfg, nil
}

func applyPipelineDefaults(p *PipelineConfig) {
	if p.ChunkSize <= 0 {
		p.ChunkSize = 800
	}
	if p.ChunkOverlap < 0 || p.ChunkOverlap >= p.ChunkSize {
		p.ChunkOverlap = p.ChunkSize / 5
	}
	if p.MaxFileMB <= 0 {
		p.MaxFileMB = 50
	}
	if len(p.AllowedExtensions) == 0 {
		p.AllowedExtensions = []string{".txt", ".md", ".pdf"}
	}
	if p.MinCharsPerPage <= 0 {
		p.MinCharsPerPage = 50
	}
	if p.TopK <= 0 {
		p.TopK = 5
	}
	if p.ContextBudgetChars <= 0 {
		p.ContextBudgetChars = 6000
	}
	if p.MaxGenerationSlots <= 0 {
		p.MaxGenerationSlots = 2
	}
	if p.GenerationQueueSize <= 0 {
		p.GenerationQueueSize = 16
	}
	if p.QueueWaitSeconds <= 0 {
		p.QueueWaitSeconds = 30
	}
	if p.EmbedCacheSize <= 0 {
		p.EmbedCacheSize = 10000
	}
	if p.EmbedCacheTTLHours <= 0 {
		p.EmbedCacheTTLHours = 2
	}
}

func applyJobDefaults(j *JobsConfig) {
	if j.EventFlushSpec == "" {
		j.EventFlushSpec = "* * * * *"
	}
	if j.CacheCleanupSpec == "" {
		j.CacheCleanupSpec = "0 4 * * *"
	}
	if j.CacheKeepDays <= 0 {
		j.CacheKeepDays = 30
	}
	if j.StuckDocSpec == "" {
		j.StuckDocSpec = "*/10 * * * *"
	}
	if j.StuckDocDeadlineMin <= 0 {
		j.StuckDocDeadlineMin = 30
	}
}
