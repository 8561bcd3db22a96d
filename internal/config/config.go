package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the crossret pipeline configuration.
type Config struct {
	Dataset       DatasetConfig       `yaml:"dataset"`
	Cache         CacheConfig         `yaml:"cache"`
	Collection    CollectionConfig    `yaml:"collection"`
	Embedding     EmbeddingConfig     `yaml:"embedding"`
	Database      DatabaseConfig      `yaml:"database"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
	Index         IndexConfig         `yaml:"index"`
	Search        SearchConfig        `yaml:"search"`
	Storage       StorageConfig       `yaml:"storage"`
	Artifacts     ArtifactsConfig     `yaml:"artifacts"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// DatasetConfig names the HuggingFace releases and where their parquet exports live.
type DatasetConfig struct {
	HubURL    string `yaml:"hub_url"`
	Token     string `yaml:"token"`
	DataDir   string `yaml:"data_dir"`
	OutputDir string `yaml:"output_dir"`
	Images    string `yaml:"images"`
	Texts     string `yaml:"texts"`
	Qrels     string `yaml:"qrels"`
	Inputs    string `yaml:"inputs"` // encode source, Texts-v0.2.1 by default
}

// CacheConfig holds the id-index cache location.
type CacheConfig struct {
	Dir string `yaml:"dir"` // falls back to $ATOMIC_CACHE, then ~/.cache/atomic
}

// CollectionConfig controls document flattening and JSONL layout.
type CollectionConfig struct {
	Language     string `yaml:"language"`
	MaxTokens    int    `yaml:"max_tokens"`
	LinesPerPart int    `yaml:"lines_per_part"`
}

// EmbeddingConfig holds encoder settings.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	BatchSize  int    `yaml:"batch_size"`
	Workers    int    `yaml:"workers"`
	DType      string `yaml:"dtype"` // fp32, fp16, bf16
	Prompt     string `yaml:"prompt"`
	Cache      bool   `yaml:"cache"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // redis (default: redis)
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// ElasticsearchConfig holds the lexical backend settings for Elasticsearch.
type ElasticsearchConfig struct {
	Addresses []string `yaml:"addresses"`
	Username  string   `yaml:"username"`
	Password  string   `yaml:"password"`
	K1        float64  `yaml:"k1"`
	B         float64  `yaml:"b"`
	Analyzer  string   `yaml:"analyzer"`
	Workers   int      `yaml:"workers"`
}

// IndexConfig holds index build settings.
type IndexConfig struct {
	LexicalBackend  string `yaml:"lexical_backend"` // redis, elasticsearch
	VectorType      string `yaml:"vector_type"`     // flat, hnsw
	HNSWM           int    `yaml:"hnsw_m"`
	HNSWEFConstruct int    `yaml:"hnsw_ef_construction"`
	BatchSize       int    `yaml:"batch_size"`
}

// SearchConfig holds search defaults.
type SearchConfig struct {
	LexicalHits int    `yaml:"lexical_hits"`
	DenseHits   int    `yaml:"dense_hits"`
	BatchSize   int    `yaml:"batch_size"`
	Threads     int    `yaml:"threads"`
	Tag         string `yaml:"tag"`
	MaxTerms    int    `yaml:"max_terms"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
}

// ArtifactsConfig holds S3-compatible object storage settings for publishing.
type ArtifactsConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	Port int `yaml:"port"` // 0 disables the endpoint
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit YAML path.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Default returns a configuration with only defaults applied (no file).
func Default() Config {
	var cfg Config
	cfg.ApplyDefaults()
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.Dataset.HubURL == "" {
		c.Dataset.HubURL = "https://huggingface.co"
	}
	if c.Dataset.Token == "" {
		c.Dataset.Token = os.Getenv("HF_TOKEN")
	}
	if c.Dataset.DataDir == "" {
		c.Dataset.DataDir = "data"
	}
	if c.Dataset.OutputDir == "" {
		c.Dataset.OutputDir = "."
	}
	if c.Dataset.Images == "" {
		c.Dataset.Images = "TREC-AToMiC/AToMiC-Images-v0.2"
	}
	if c.Dataset.Texts == "" {
		c.Dataset.Texts = "TREC-AToMiC/AToMiC-Texts-v0.2"
	}
	if c.Dataset.Qrels == "" {
		c.Dataset.Qrels = "TREC-AToMiC/AToMiC-Qrels-v0.2"
	}
	if c.Dataset.Inputs == "" {
		c.Dataset.Inputs = "TREC-AToMiC/AToMiC-Texts-v0.2.1"
	}
	if c.Cache.Dir == "" {
		c.Cache.Dir = defaultCacheDir()
	}
	if c.Collection.Language == "" {
		c.Collection.Language = "en"
	}
	if c.Collection.MaxTokens <= 0 {
		c.Collection.MaxTokens = 1024
	}
	if c.Collection.LinesPerPart <= 0 {
		c.Collection.LinesPerPart = 1_000_000
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "openai/clip-vit-base-patch32"
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = 64
	}
	if c.Embedding.Workers <= 0 {
		c.Embedding.Workers = 1
	}
	if c.Embedding.DType == "" {
		c.Embedding.DType = "fp32"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "redis"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Elasticsearch.K1 <= 0 {
		c.Elasticsearch.K1 = 0.9
	}
	if c.Elasticsearch.B <= 0 {
		c.Elasticsearch.B = 0.4
	}
	if c.Elasticsearch.Analyzer == "" {
		c.Elasticsearch.Analyzer = "english"
	}
	if c.Elasticsearch.Workers <= 0 {
		c.Elasticsearch.Workers = 4
	}
	if c.Index.LexicalBackend == "" {
		c.Index.LexicalBackend = "redis"
	}
	if c.Index.VectorType == "" {
		c.Index.VectorType = "flat"
	}
	if c.Index.HNSWM <= 0 {
		c.Index.HNSWM = 32
	}
	if c.Index.HNSWEFConstruct <= 0 {
		c.Index.HNSWEFConstruct = 400
	}
	if c.Index.BatchSize <= 0 {
		c.Index.BatchSize = 500
	}
	if c.Search.LexicalHits <= 0 {
		c.Search.LexicalHits = 1000
	}
	if c.Search.DenseHits <= 0 {
		c.Search.DenseHits = 100
	}
	if c.Search.BatchSize <= 0 {
		c.Search.BatchSize = 64
	}
	if c.Search.Threads <= 0 {
		c.Search.Threads = 8
	}
	if c.Search.Tag == "" {
		c.Search.Tag = "crossret"
	}
	if c.Search.MaxTerms <= 0 {
		c.Search.MaxTerms = 256
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "crossret:"
	}
	if c.Artifacts.Bucket == "" {
		c.Artifacts.Bucket = "crossret"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.Database.Driver != "redis" {
		return fmt.Errorf("database.driver must be \"redis\", got %q", c.Database.Driver)
	}
	switch c.Embedding.DType {
	case "fp32", "fp16", "bf16":
	default:
		return fmt.Errorf("embedding.dtype must be fp32, fp16 or bf16, got %q", c.Embedding.DType)
	}
	switch c.Index.LexicalBackend {
	case "redis":
	case "elasticsearch":
		if len(c.Elasticsearch.Addresses) == 0 {
			return fmt.Errorf("elasticsearch.addresses is required for lexical_backend elasticsearch")
		}
	default:
		return fmt.Errorf(
			"index.lexical_backend must be \"redis\" or \"elasticsearch\", got %q",
			c.Index.LexicalBackend,
		)
	}
	switch c.Index.VectorType {
	case "flat", "hnsw":
	default:
		return fmt.Errorf("index.vector_type must be \"flat\" or \"hnsw\", got %q", c.Index.VectorType)
	}
	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 0 and 65535, got %d", c.Metrics.Port)
	}
	return nil
}

func defaultCacheDir() string {
	if dir := os.Getenv("ATOMIC_CACHE"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".cache", "atomic")
	}
	return filepath.Join(home, ".cache", "atomic")
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
