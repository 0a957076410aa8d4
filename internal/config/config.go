package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

const (
	VectorStoreAtlas  = "atlas"
	VectorStoreQdrant = "qdrant"
	VectorStoreMemory = "memory"
)

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// ReadBlock bounds a single blocking read on a message stream.
	ReadBlock time.Duration `yaml:"read_block"`
}

func (c RedisConfig) Options() *redis.Options {
	return &redis.Options{
		Addr:     c.Addr,
		Username: c.Username,
		Password: c.Password,
		DB:       c.DB,
	}
}

type ServerConfig struct {
	ListenHost string `yaml:"listen_host"`
	ListenPort int    `yaml:"listen_port"`
	// RequestTimeout bounds how long an event stream stays open.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type WorkerConfig struct {
	Concurrency int `yaml:"concurrency"`
}

type SessionConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

type QdrantConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type VectorStoreConfig struct {
	Type   string       `yaml:"type"`
	Qdrant QdrantConfig `yaml:"qdrant"`

	// MaxOpen bounds the idle connections a worker keeps, one per
	// connection string and database.
	MaxOpen int `yaml:"max_open"`
}

type LoaderConfig struct {
	Recursive    bool     `yaml:"recursive"`
	MaxFileBytes int64    `yaml:"max_file_bytes"`
	Exclude      []string `yaml:"exclude"`
	Concurrency  int      `yaml:"concurrency"`
}

// RAGConfig holds the constants passed into the indexing and chat calls.
type RAGConfig struct {
	IndexName string `yaml:"index_name"`

	// EmbeddingProvider embeds chunks and queries. The index dimensions
	// follow the provider's embedder.
	EmbeddingProvider string `yaml:"embedding_provider"`
	EmbeddingModel    string `yaml:"embedding_model"`
	Dimensions        int    `yaml:"dimensions"`
	Similarity        string `yaml:"similarity"`
	ChunkSize         int    `yaml:"chunk_size"`
	ChunkOverlap      int    `yaml:"chunk_overlap"`
	TopK              int    `yaml:"top_k"`

	LLMProvider string `yaml:"llm_provider"`
	LLMModel    string `yaml:"llm_model"`

	Condense        bool    `yaml:"condense"`
	Rerank          bool    `yaml:"rerank"`
	RerankThreshold float64 `yaml:"rerank_threshold"`

	// EmbedRequestsPerSecond throttles embedding batches, 0 disables it.
	EmbedRequestsPerSecond float64 `yaml:"embed_requests_per_second"`
}

// Keys for optional providers, usually read from the environment.
type ProviderKeys struct {
	Cohere string `yaml:"cohere"`
	Gemini string `yaml:"gemini"`

	OllamaEndpoint string `yaml:"ollama_endpoint"`
}

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Worker  WorkerConfig  `yaml:"worker"`
	Session SessionConfig `yaml:"session"`

	Transport   RedisConfig       `yaml:"transport"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Loader      LoaderConfig      `yaml:"loader"`
	RAG         RAGConfig         `yaml:"rag"`
	Keys        ProviderKeys      `yaml:"keys"`

	// Defaults pre-fills form fields; values are overridden per session.
	Defaults Settings `yaml:"defaults"`
}

// DefaultExclude lists binary file types that are never read as text.
var DefaultExclude = []string{
	".png", ".jpg", ".jpeg", ".gif", ".webp", ".ico", ".svgz",
	".zip", ".gz", ".tgz", ".tar", ".7z", ".rar",
	".mp3", ".mp4", ".mov", ".wav",
	".exe", ".dll", ".so", ".bin", ".woff", ".woff2",
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenPort:     8501,
			RequestTimeout: 5 * time.Minute,
		},
		Worker:  WorkerConfig{Concurrency: 10},
		Session: SessionConfig{TTL: 24 * time.Hour},
		Transport: RedisConfig{
			Addr:      "localhost:6379",
			ReadBlock: 5 * time.Second,
		},
		VectorStore: VectorStoreConfig{
			Type: VectorStoreAtlas,
			Qdrant: QdrantConfig{
				Host: "localhost",
				Port: 6334,
			},
			MaxOpen: 8,
		},
		Loader: LoaderConfig{
			MaxFileBytes: 20 << 20,
			Exclude:      append([]string(nil), DefaultExclude...),
			Concurrency:  8,
		},
		RAG: RAGConfig{
			IndexName:         DefaultIndexName,
			EmbeddingProvider: "openai",
			EmbeddingModel:    DefaultEmbeddingModel,
			Dimensions:        1536,
			Similarity:        "cosine",
			ChunkSize:         100,
			ChunkOverlap:      10,
			TopK:              2,
			LLMProvider:       "openai",
			Condense:          true,
			RerankThreshold:   0.5,
		},
		Defaults: DefaultSettings(),
	}
}

// ReadConfig reads a yaml file on top of the defaults. A missing
// file is not an error.
func ReadConfig(path string) (*Config, error) {
	conf := Default()
	if path == "" {
		return conf, nil
	}

	file, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return conf, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config '%s': %w", path, err)
	}

	if err := yaml.Unmarshal(file, conf); err != nil {
		return nil, fmt.Errorf("failed to parse config '%s': %w", path, err)
	}

	if err := conf.check(); err != nil {
		return nil, err
	}
	return conf, nil
}

func (c *Config) check() error {
	if c.RAG.ChunkSize <= 0 {
		return fmt.Errorf("rag.chunk_size must be positive, got %d", c.RAG.ChunkSize)
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("rag.chunk_overlap must be in [0, %d), got %d", c.RAG.ChunkSize, c.RAG.ChunkOverlap)
	}
	if c.RAG.TopK <= 0 {
		return fmt.Errorf("rag.top_k must be positive, got %d", c.RAG.TopK)
	}
	if c.RAG.EmbeddingProvider == "" {
		c.RAG.EmbeddingProvider = "openai"
	}
	// the openai model name means nothing to other providers
	if c.RAG.EmbeddingProvider != "openai" && c.RAG.EmbeddingModel == DefaultEmbeddingModel {
		c.RAG.EmbeddingModel = ""
	}
	switch c.VectorStore.Type {
	case VectorStoreAtlas, VectorStoreQdrant, VectorStoreMemory:
	default:
		return fmt.Errorf("unknown vector_store.type '%s'", c.VectorStore.Type)
	}
	return nil
}

// LoadEnv loads a dotenv file into the process environment. Variables
// already set are kept. A missing file is ignored.
func LoadEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	err := godotenv.Load(path)
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// ApplyEnv overlays environment variables on the config.
func (c *Config) ApplyEnv() {
	c.Defaults = Settings{
		APIKey:      os.Getenv("OPENAI_API_KEY"),
		ConnString:  os.Getenv("MONGODB_URI"),
		ProjectID:   os.Getenv("GCP_PROJECT_ID"),
		Bucket:      os.Getenv("GCS_BUCKET"),
		AccessToken: os.Getenv("GCS_ACCESS_TOKEN"),
		Database:    os.Getenv("MONGODB_DATABASE"),
		Collection:  os.Getenv("MONGODB_COLLECTION"),
	}.Merge(c.Defaults)

	if v := os.Getenv("COHERE_API_KEY"); v != "" {
		c.Keys.Cohere = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.Keys.Gemini = v
	}
	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		c.Keys.OllamaEndpoint = v
	}
	if v := os.Getenv("DOCCHAT_REDIS_ADDR"); v != "" {
		c.Transport.Addr = v
	}
	if v := os.Getenv("DOCCHAT_LISTEN_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.ListenPort = port
		}
	}
}
