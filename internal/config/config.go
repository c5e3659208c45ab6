package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type DatabaseConfig struct {
	DSN      string `yaml:"dsn"`
	Password string `yaml:"password"`
	Debug    bool   `yaml:"debug"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Enabled  bool   `yaml:"enabled"`
}

// LLMConfig points at an Ollama- or OpenAI-compatible endpoint.
type LLMConfig struct {
	BaseURL string `yaml:"base_url"`
	Key     string `yaml:"key"`
	Model   string `yaml:"model"`
}

type QAConfig struct {
	BaseURL     string `yaml:"base_url"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

type MLConfig struct {
	EmbeddingDimension  int     `yaml:"embedding_dimension"`
	MaxChunkSize        int     `yaml:"max_chunk_size"`
	ChunkOverlap        int     `yaml:"chunk_overlap"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	TopKResults         int     `yaml:"top_k_results"`
}

type ProcessingConfig struct {
	DocumentDir   string `yaml:"document_dir"`
	MaxWorkers    int    `yaml:"max_workers"`
	BatchSize     int    `yaml:"batch_size"`
	MaxFileSizeMB int    `yaml:"max_file_size_mb"`
}

// VectorStoreConfig selects the similarity index backend.
type VectorStoreConfig struct {
	Type       string `yaml:"type"` // pgvector or chromem
	Path       string `yaml:"path"`
	Collection string `yaml:"collection"`
	InMemory   bool   `yaml:"in_memory"`
}

type Config struct {
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	EmbedLLM    LLMConfig         `yaml:"embed_llm"`
	QA          QAConfig          `yaml:"qa"`
	ML          MLConfig          `yaml:"ml"`
	Processing  ProcessingConfig  `yaml:"processing"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills zero values with the defaults the pipeline was tuned
// against.
func (c *Config) ApplyDefaults() {
	if c.EmbedLLM.BaseURL == "" {
		c.EmbedLLM.BaseURL = "http://localhost:11434"
	}
	if c.EmbedLLM.Model == "" {
		c.EmbedLLM.Model = "nomic-embed-text"
	}
	if c.QA.TimeoutSecs <= 0 {
		c.QA.TimeoutSecs = 60
	}
	if c.ML.EmbeddingDimension <= 0 {
		c.ML.EmbeddingDimension = 384
	}
	if c.ML.MaxChunkSize <= 0 {
		c.ML.MaxChunkSize = 512
	}
	// zero means unset; a negative value is the explicit way to ask for
	// no overlap at all
	if c.ML.ChunkOverlap < 0 {
		c.ML.ChunkOverlap = 0
	} else if c.ML.ChunkOverlap == 0 {
		c.ML.ChunkOverlap = 50
	}
	if c.ML.SimilarityThreshold <= 0 {
		c.ML.SimilarityThreshold = 0.7
	}
	if c.ML.TopKResults <= 0 {
		c.ML.TopKResults = 5
	}
	if c.Processing.DocumentDir == "" {
		c.Processing.DocumentDir = "data/pdfs"
	}
	if c.Processing.MaxWorkers <= 0 {
		c.Processing.MaxWorkers = 4
	}
	if c.Processing.BatchSize <= 0 {
		c.Processing.BatchSize = 32
	}
	if c.Processing.MaxFileSizeMB <= 0 {
		c.Processing.MaxFileSizeMB = 100
	}
	if c.VectorStore.Type == "" {
		c.VectorStore.Type = "pgvector"
	}
	if c.VectorStore.Path == "" {
		c.VectorStore.Path = "./chromemdb"
	}
	if c.VectorStore.Collection == "" {
		c.VectorStore.Collection = "document_chunks"
	}
}
