package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xxxsen/common/logger"
	"gopkg.in/yaml.v3"
)

type Config struct {
	LogConfig  logger.LogConfig `json:"log_config"`
	Database   DatabaseConfig   `json:"database"`
	Index      IndexConfig      `json:"index"`
	Embedding  EmbeddingConfig  `json:"embedding"`
	Generation GenerationConfig `json:"generation"`
	Retrieval  RetrievalConfig  `json:"retrieval"`
	Server     ServerConfig     `json:"server"`
	FileStore  FileStoreConfig  `json:"file_store"`
	Schedule   ScheduleConfig   `json:"schedule"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

type IndexConfig struct {
	Type       string `json:"type"`
	Collection string `json:"collection"`
	Metric     string `json:"metric"`
	Path       string `json:"path"`
}

type EmbeddingConfig struct {
	Provider   string               `json:"provider"`
	Model      string               `json:"model"`
	Timeout    int                  `json:"timeout"`
	RetryCount int                  `json:"retry_count"`
	Cache      EmbeddingCacheConfig `json:"cache"`
	Data       interface{}          `json:"data"`
}

type EmbeddingCacheConfig struct {
	Size       int  `json:"size"`
	TTL        int  `json:"ttl"`
	Persistent bool `json:"persistent"`
}

type GenerationConfig struct {
	Timeout      int               `json:"timeout"`
	RetryCount   int               `json:"retry_count"`
	SystemPrompt string            `json:"system_prompt"`
	Temperature  *float64          `json:"temperature"`
	TopP         *float64          `json:"top_p"`
	MaxTokens    int               `json:"max_tokens"`
	Providers    []GeneratorConfig `json:"providers"`
}

type GeneratorConfig struct {
	Name     string      `json:"name"`
	Provider string      `json:"provider"`
	Model    string      `json:"model"`
	Data     interface{} `json:"data"`
}

type RetrievalConfig struct {
	ChunkSize       int `json:"chunk_size"`
	ChunkOverlap    int `json:"chunk_overlap"`
	TopK            int `json:"top_k"`
	MaxContextChars int `json:"max_context_chars"`
	BatchSize       int `json:"batch_size"`
	Concurrency     int `json:"concurrency"`
}

type ServerConfig struct {
	Port           int      `json:"port"`
	JWTSecret      string   `json:"jwt_secret"`
	JWTTTLHours    int      `json:"jwt_ttl_hours"`
	RateLimitMs    int      `json:"rate_limit_ms"`
	UploadMaxBytes int64    `json:"upload_max_bytes"`
	CORSOrigins    []string `json:"cors_origins"`
}

type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type ScheduleConfig struct {
	CacheCleanup CacheCleanupConfig `json:"cache_cleanup"`
	Sync         SyncConfig         `json:"sync"`
}

type CacheCleanupConfig struct {
	Spec       string `json:"spec"`
	MaxAgeDays int    `json:"max_age_days"`
}

type SyncConfig struct {
	Spec string   `json:"spec"`
	Dirs []string `json:"dirs"`
}

const (
	DefaultSystemPrompt = "You are a helpful assistant named DocumentFinder"
	defaultTemperature  = 0.1
	defaultTopP         = 0.95
)

// Load reads a json or yaml config file. ${VAR} references are expanded from the environment.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	format := "json"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = "yaml"
	}
	return Parse(raw, format)
}

func Parse(raw []byte, format string) (*Config, error) {
	data := []byte(os.ExpandEnv(string(raw)))
	if format == "yaml" {
		var tree interface{}
		if err := yaml.Unmarshal(data, &tree); err != nil {
			return nil, fmt.Errorf("decode yaml config: %w", err)
		}
		converted, err := json.Marshal(tree)
		if err != nil {
			return nil, fmt.Errorf("convert yaml config: %w", err)
		}
		data = converted
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a config that runs fully offline: sqlite index, hash embedder, local ollama.
func Default() *Config {
	cfg := &Config{}
	_ = cfg.normalize()
	return cfg
}

func (c *Config) normalize() error {
	if c.LogConfig.Level == "" {
		c.LogConfig.Level = "info"
	}
	if err := c.normalizeIndex(); err != nil {
		return err
	}
	if err := c.normalizeEmbedding(); err != nil {
		return err
	}
	if err := c.normalizeGeneration(); err != nil {
		return err
	}
	if err := c.normalizeRetrieval(); err != nil {
		return err
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.JWTTTLHours == 0 {
		c.Server.JWTTTLHours = 72
	}
	if c.Server.UploadMaxBytes <= 0 {
		c.Server.UploadMaxBytes = 10 << 20
	}
	if c.Schedule.CacheCleanup.MaxAgeDays <= 0 {
		c.Schedule.CacheCleanup.MaxAgeDays = 30
	}
	if c.Schedule.Sync.Spec != "" && len(c.Schedule.Sync.Dirs) == 0 {
		return fmt.Errorf("schedule.sync.dirs is required when schedule.sync.spec is set")
	}
	return nil
}

func (c *Config) normalizeIndex() error {
	c.Index.Type = strings.ToLower(strings.TrimSpace(c.Index.Type))
	if c.Index.Type == "" {
		c.Index.Type = "sqlite"
	}
	if c.Index.Collection == "" {
		c.Index.Collection = "documents"
	}
	c.Index.Metric = strings.ToLower(strings.TrimSpace(c.Index.Metric))
	if c.Index.Metric == "" {
		c.Index.Metric = "cosine"
	}
	switch c.Index.Metric {
	case "cosine", "dot", "euclidean":
	default:
		return fmt.Errorf("index.metric must be cosine, dot or euclidean")
	}
	switch c.Index.Type {
	case "memory":
	case "sqlite":
		if c.Index.Path == "" {
			c.Index.Path = "docfinder.db"
		}
	case "postgres":
		if c.Database.DSN == "" && c.Database.Host == "" {
			return fmt.Errorf("database.dsn or database.host is required for postgres index")
		}
		if c.Database.Port == 0 {
			c.Database.Port = 5432
		}
	default:
		return fmt.Errorf("index.type must be memory, sqlite or postgres")
	}
	return nil
}

func (c *Config) normalizeEmbedding() error {
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "hash"
	}
	if c.Embedding.Model == "" {
		if c.Embedding.Provider != "hash" {
			return fmt.Errorf("embedding.model is required for provider %s", c.Embedding.Provider)
		}
		c.Embedding.Model = "hash-512"
	}
	if c.Embedding.Timeout <= 0 {
		c.Embedding.Timeout = 30
	}
	if c.Embedding.RetryCount <= 0 {
		c.Embedding.RetryCount = 3
	}
	if c.Embedding.Cache.Size <= 0 {
		c.Embedding.Cache.Size = 4096
	}
	if c.Embedding.Cache.TTL <= 0 {
		c.Embedding.Cache.TTL = 3600
	}
	if c.Embedding.Cache.Persistent && c.Index.Type == "memory" {
		return fmt.Errorf("embedding.cache.persistent requires a sqlite or postgres index")
	}
	return nil
}

func (c *Config) normalizeGeneration() error {
	g := &c.Generation
	if g.Timeout <= 0 {
		g.Timeout = 120
	}
	if g.RetryCount <= 0 {
		g.RetryCount = 2
	}
	if g.SystemPrompt == "" {
		g.SystemPrompt = DefaultSystemPrompt
	}
	if g.Temperature == nil {
		v := defaultTemperature
		g.Temperature = &v
	}
	if g.TopP == nil {
		v := defaultTopP
		g.TopP = &v
	}
	if g.MaxTokens <= 0 {
		g.MaxTokens = 3000
	}
	if len(g.Providers) == 0 {
		g.Providers = []GeneratorConfig{{
			Name:     "ollama",
			Provider: "ollama",
			Model:    "llama3.2",
			Data:     map[string]interface{}{"base_url": "http://localhost:11434"},
		}}
	}
	for i := range g.Providers {
		p := &g.Providers[i]
		if p.Provider == "" {
			return fmt.Errorf("generation.providers[%d].provider is required", i)
		}
		if p.Model == "" {
			return fmt.Errorf("generation.providers[%d].model is required", i)
		}
		if p.Name == "" {
			p.Name = p.Provider
		}
	}
	return nil
}

func (c *Config) normalizeRetrieval() error {
	r := &c.Retrieval
	if r.ChunkSize == 0 {
		r.ChunkSize = 200
		if r.ChunkOverlap == 0 {
			r.ChunkOverlap = 40
		}
	}
	if r.ChunkSize < 0 || r.ChunkOverlap < 0 || r.ChunkOverlap >= r.ChunkSize {
		return fmt.Errorf("retrieval.chunk_overlap must be >= 0 and smaller than retrieval.chunk_size")
	}
	if r.TopK <= 0 {
		r.TopK = 3
	}
	if r.MaxContextChars < 0 {
		return fmt.Errorf("retrieval.max_context_chars must be >= 0")
	}
	if r.BatchSize <= 0 {
		r.BatchSize = 16
	}
	if r.Concurrency <= 0 {
		r.Concurrency = 4
	}
	return nil
}
