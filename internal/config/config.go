// Package config provides configuration loading and structs for the kizuna server.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/hyperjump/kizuna/internal/ranking"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool                  `yaml:"debug"`
	Server    ServerConfig          `yaml:"server"`
	Storage   StorageConfig         `yaml:"storage"`
	Embedding EmbeddingConfig       `yaml:"embedding"`
	Index     IndexConfig           `yaml:"index"`
	Scoring   ranking.RankingConfig `yaml:"scoring"`
	Import    ImportConfig          `yaml:"import"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Snapshot backends.
const (
	BackendFile   = "file"
	BackendBadger = "badger"
	BackendS3     = "s3"
)

// StorageConfig holds paths for the profile database and index snapshots.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	SnapshotDir  string `yaml:"snapshot_dir"`
	// SnapshotBackend is "file" (one pair of files per class), "badger" or "s3".
	SnapshotBackend string        `yaml:"snapshot_backend"`
	S3              ObjectStorage `yaml:"s3"`
}

// ObjectStorage locates snapshots in an S3-compatible bucket. Empty keys
// fall back to AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY.
type ObjectStorage struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string        `yaml:"provider"` // gemini, openai or mock
	Model      string        `yaml:"model"`
	APIKey     string        `yaml:"api_key"`
	BaseURL    string        `yaml:"base_url"`
	Dimensions int           `yaml:"dimensions"`
	Timeout    time.Duration `yaml:"timeout"`
	CacheSize  int           `yaml:"cache_size"`
	RateLimit  float64       `yaml:"rate_limit"` // requests per second; 0 disables
	RateBurst  int           `yaml:"rate_burst"`
	// Concurrency bounds parallel embedding calls in batch and populate.
	Concurrency       int  `yaml:"concurrency"`
	AllowMockFallback bool `yaml:"allow_mock_fallback"`
}

// IndexConfig holds per-class index settings.
type IndexConfig struct {
	Classes   []string `yaml:"classes"`
	StoreType string   `yaml:"store_type"` // flat or faiss
	// SnapshotEvery saves a class after this many writes; negative disables.
	SnapshotEvery int `yaml:"snapshot_every"`
	// SnapshotInterval saves dirty classes at least this often; negative disables.
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
}

// ImportConfig holds résumé import directory settings.
type ImportConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Class       string   `yaml:"class"`
}

// Load reads and parses the config file at path, expands paths, applies
// defaults and fills API keys from the environment.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Config{Scoring: ranking.RankingConfig{ExplanationsEnabled: true}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.SnapshotDir = expandPath(cfg.Storage.SnapshotDir, configDir)
	for i := range cfg.Import.Directories {
		cfg.Import.Directories[i] = expandPath(cfg.Import.Directories[i], configDir)
	}

	LoadDotEnv(configDir)
	ApplyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// LoadDotEnv loads .env from the working directory and from dirs. Missing
// files are ignored and variables already set are kept.
func LoadDotEnv(dirs ...string) {
	paths := []string{".env"}
	for _, d := range dirs {
		paths = append(paths, filepath.Join(d, ".env"))
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
		}
	}
}

// ApplyEnv fills an empty embedding API key from GEMINI_API_KEY or
// OPENAI_API_KEY, depending on the provider.
func ApplyEnv(cfg *Config) {
	if cfg.Embedding.APIKey != "" {
		return
	}
	switch cfg.Embedding.Provider {
	case "openai":
		cfg.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
	case "gemini", "":
		cfg.Embedding.APIKey = os.Getenv("GEMINI_API_KEY")
	}
}

// Validate checks settings that have no usable default.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.Storage.SnapshotBackend {
	case BackendFile, BackendBadger:
	case BackendS3:
		if c.Storage.S3.Endpoint == "" || c.Storage.S3.Bucket == "" {
			errs = append(errs, errors.New("storage.s3.endpoint and storage.s3.bucket are required for the s3 backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.snapshot_backend %q must be %q, %q or %q",
			c.Storage.SnapshotBackend, BackendFile, BackendBadger, BackendS3))
	}
	if c.Embedding.Dimensions <= 0 {
		errs = append(errs, fmt.Errorf("embedding.dimensions must be positive"))
	}
	seen := make(map[string]bool, len(c.Index.Classes))
	for _, class := range c.Index.Classes {
		if class == "" || strings.ContainsAny(class, `/\ `) {
			errs = append(errs, fmt.Errorf("index.classes: invalid class name %q", class))
		}
		if seen[class] {
			errs = append(errs, fmt.Errorf("index.classes: duplicate class %q", class))
		}
		seen[class] = true
	}
	if len(c.Import.Directories) > 0 && !seen[c.Import.Class] {
		errs = append(errs, fmt.Errorf("import.class %q is not listed in index.classes", c.Import.Class))
	}
	return errors.Join(errs...)
}

// Addr returns the host:port the server listens on.
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
