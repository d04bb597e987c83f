package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"nutrition-rag/internal/apperr"
)

// Vector store backends.
const (
	VectorStoreChromem = "chromem"
	VectorStoreQdrant  = "qdrant"
)

// Config holds all configuration for the application. Values come from
// defaults, then the optional CONFIG_FILE, then environment variables.
type Config struct {
	LogLevelName string     `toml:"log_level" yaml:"log_level"`
	LogLevel     slog.Level `toml:"-" yaml:"-"`
	LogFormat    string     `toml:"log_format" yaml:"log_format"`
	APIPort      string     `toml:"api_port" yaml:"api_port"`
	// RequestTimeout bounds a single API request.
	RequestTimeout time.Duration `toml:"request_timeout" yaml:"request_timeout"`

	SourceURL  string `toml:"source_url" yaml:"source_url"`
	SourcePath string `toml:"source_path" yaml:"source_path"`
	DBPath     string `toml:"db_path" yaml:"db_path"`
	MatrixPath string `toml:"matrix_path" yaml:"matrix_path"`

	ChunkSize      int     `toml:"chunk_size" yaml:"chunk_size"`
	MinTokenLength float64 `toml:"min_token_length" yaml:"min_token_length"`

	EmbeddingBaseURL    string        `toml:"embedding_base_url" yaml:"embedding_base_url"`
	EmbeddingAPIKey     string        `toml:"embedding_api_key" yaml:"embedding_api_key"`
	EmbeddingModel      string        `toml:"embedding_model" yaml:"embedding_model"`
	EmbeddingDimension  int           `toml:"embedding_dimension" yaml:"embedding_dimension"`
	EmbeddingBatchSize  int           `toml:"embedding_batch_size" yaml:"embedding_batch_size"`
	EmbeddingBatchDelay time.Duration `toml:"embedding_batch_delay" yaml:"embedding_batch_delay"`
	EmbeddingInputType  bool          `toml:"embedding_input_type" yaml:"embedding_input_type"`

	LLMBaseURL  string `toml:"llm_base_url" yaml:"llm_base_url"`
	LLMAPIKey   string `toml:"llm_api_key" yaml:"llm_api_key"`
	LLMModel    string `toml:"llm_model" yaml:"llm_model"`
	LLMAttempts int    `toml:"llm_attempts" yaml:"llm_attempts"`

	VectorStore     string `toml:"vector_store" yaml:"vector_store"`
	IndexName       string `toml:"index_name" yaml:"index_name"`
	ChromemPath     string `toml:"chromem_path" yaml:"chromem_path"`
	QdrantURL       string `toml:"qdrant_url" yaml:"qdrant_url"`
	QdrantAPIKey    string `toml:"qdrant_api_key" yaml:"qdrant_api_key"`
	UpsertBatchSize int    `toml:"upsert_batch_size" yaml:"upsert_batch_size"`

	// RedisURL enables the query embedding cache when set.
	RedisURL string        `toml:"redis_url" yaml:"redis_url"`
	CacheTTL time.Duration `toml:"cache_ttl" yaml:"cache_ttl"`
}

func defaultConfig() *Config {
	return &Config{
		LogLevelName:       "info",
		LogFormat:          "text",
		APIPort:            "9000",
		RequestTimeout:     2 * time.Minute,
		SourcePath:         "./data/human-nutrition-text.pdf",
		DBPath:             "./data/chunks.db",
		MatrixPath:         "./data/embeddings.npy",
		ChunkSize:          10,
		MinTokenLength:     30,
		EmbeddingBaseURL:   "https://api.voyageai.com",
		EmbeddingModel:     "voyage-3",
		EmbeddingBatchSize: 32,
		EmbeddingInputType: true,
		LLMBaseURL:         "https://openrouter.ai/api",
		LLMModel:           "nex-agi/deepseek-v3.1-nex-n1:free",
		LLMAttempts:        1,
		VectorStore:        VectorStoreChromem,
		IndexName:          "nutrition-rag",
		ChromemPath:        "./data/chromem",
		UpsertBatchSize:    100,
		CacheTTL:           24 * time.Hour,
	}
}

// Load reads configuration and validates everything except API keys; call
// RequireEmbedding and RequireLLM for commands that talk to those services.
// A .env file in the current directory or a parent is loaded first;
// variables already set take precedence over it.
func Load() (*Config, error) {
	loadDotEnv()

	cfg := defaultConfig()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, apperr.New(apperr.KindConfiguration, "config", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, apperr.New(apperr.KindConfiguration, "config", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, apperr.New(apperr.KindConfiguration, "config", err)
	}

	for _, p := range []string{cfg.DBPath, cfg.MatrixPath, cfg.SourcePath} {
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	return cfg, nil
}

// loadDotEnv loads the nearest .env walking up from the working directory.
func loadDotEnv() {
	wd, err := os.Getwd()
	if err != nil {
		return
	}
	dir := wd
	for i := 0; i < 5; i++ { // Limit search depth
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

// decodeFile overlays a TOML or YAML file onto cfg, chosen by extension.
func decodeFile(path string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return fmt.Errorf("failed to decode config file %s: %w", path, err)
		}
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to decode config file %s: %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported config file extension %q (want .toml, .yaml or .yml)", filepath.Ext(path))
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.LogLevelName, "LOG_LEVEL")
	setString(&c.LogFormat, "LOG_FORMAT")
	setString(&c.APIPort, "API_PORT")
	setString(&c.SourceURL, "SOURCE_URL")
	setString(&c.SourcePath, "SOURCE_PATH")
	setString(&c.DBPath, "DB_PATH")
	setString(&c.MatrixPath, "MATRIX_PATH")
	setString(&c.EmbeddingBaseURL, "EMBEDDING_BASE_URL")
	setString(&c.EmbeddingAPIKey, "VOYAGE_API_KEY", "EMBEDDING_API_KEY")
	setString(&c.EmbeddingModel, "VOYAGE_MODEL", "EMBEDDING_MODEL")
	setString(&c.LLMBaseURL, "LLM_BASE_URL")
	setString(&c.LLMAPIKey, "OPENROUTER_API_KEY", "LLM_API_KEY")
	setString(&c.LLMModel, "OPENROUTER_MODEL", "LLM_MODEL")
	setString(&c.VectorStore, "VECTOR_STORE")
	setString(&c.IndexName, "PINECONE_INDEX", "INDEX_NAME")
	setString(&c.ChromemPath, "CHROMEM_PATH")
	setString(&c.QdrantURL, "QDRANT_URL")
	setString(&c.QdrantAPIKey, "QDRANT_API_KEY")
	setString(&c.RedisURL, "REDIS_URL")

	ints := []struct {
		dst *int
		key string
	}{
		{&c.ChunkSize, "CHUNK_SIZE"},
		{&c.EmbeddingDimension, "EMBEDDING_DIMENSION"},
		{&c.EmbeddingBatchSize, "EMBEDDING_BATCH_SIZE"},
		{&c.LLMAttempts, "LLM_ATTEMPTS"},
		{&c.UpsertBatchSize, "UPSERT_BATCH_SIZE"},
	}
	for _, v := range ints {
		if err := setInt(v.dst, v.key); err != nil {
			return err
		}
	}

	durations := []struct {
		dst *time.Duration
		key string
	}{
		{&c.RequestTimeout, "REQUEST_TIMEOUT"},
		{&c.EmbeddingBatchDelay, "EMBEDDING_BATCH_DELAY"},
		{&c.CacheTTL, "CACHE_TTL"},
	}
	for _, v := range durations {
		if err := setDuration(v.dst, v.key); err != nil {
			return err
		}
	}

	if s := os.Getenv("MIN_TOKEN_LENGTH"); s != "" {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("MIN_TOKEN_LENGTH must be a number: %w", err)
		}
		c.MinTokenLength = f
	}
	if s := os.Getenv("EMBEDDING_INPUT_TYPE"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return fmt.Errorf("EMBEDDING_INPUT_TYPE must be a boolean: %w", err)
		}
		c.EmbeddingInputType = b
	}
	return nil
}

func (c *Config) validate() error {
	level, err := parseLogLevel(c.LogLevelName)
	if err != nil {
		return err
	}
	c.LogLevel = level

	c.LogFormat = strings.ToLower(c.LogFormat)
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}

	c.VectorStore = strings.ToLower(c.VectorStore)
	switch c.VectorStore {
	case VectorStoreChromem:
	case VectorStoreQdrant:
		if c.QdrantURL == "" {
			return fmt.Errorf("QDRANT_URL is required when VECTOR_STORE=qdrant")
		}
	default:
		return fmt.Errorf("VECTOR_STORE must be %s or %s, got %q", VectorStoreChromem, VectorStoreQdrant, c.VectorStore)
	}

	if c.IndexName == "" {
		return fmt.Errorf("INDEX_NAME must not be empty")
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be greater than 0")
	}
	if c.MinTokenLength < 0 {
		return fmt.Errorf("MIN_TOKEN_LENGTH must not be negative")
	}
	if c.EmbeddingDimension < 0 {
		return fmt.Errorf("EMBEDDING_DIMENSION must not be negative")
	}
	if c.EmbeddingBatchSize <= 0 {
		return fmt.Errorf("EMBEDDING_BATCH_SIZE must be greater than 0")
	}
	if c.UpsertBatchSize <= 0 {
		return fmt.Errorf("UPSERT_BATCH_SIZE must be greater than 0")
	}
	if c.LLMAttempts <= 0 {
		return fmt.Errorf("LLM_ATTEMPTS must be greater than 0")
	}
	return nil
}

// RequireEmbedding reports a configuration error when the embedding service
// cannot be called.
func (c *Config) RequireEmbedding() error {
	if c.EmbeddingAPIKey == "" {
		return apperr.Errorf(apperr.KindConfiguration, "config", "EMBEDDING_API_KEY is required")
	}
	return nil
}

// RequireLLM reports a configuration error when the generation service
// cannot be called.
func (c *Config) RequireLLM() error {
	if c.LLMAPIKey == "" {
		return apperr.Errorf(apperr.KindConfiguration, "config", "LLM_API_KEY is required")
	}
	return nil
}

func parseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL must be debug, info, warn or error, got %q", s)
	}
	return level, nil
}

// setString assigns each set variable in turn, so later keys override earlier ones.
func setString(dst *string, keys ...string) {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
}

func setInt(dst *int, key string) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	*dst = v
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("%s must be a duration such as 30s: %w", key, err)
	}
	*dst = v
	return nil
}
