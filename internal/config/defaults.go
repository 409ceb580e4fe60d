package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/kizuna/data/db/profiles.db"
	}
	if cfg.Storage.SnapshotDir == "" {
		cfg.Storage.SnapshotDir = "/usr/local/var/kizuna/data/indices"
	}
	if cfg.Storage.SnapshotBackend == "" {
		cfg.Storage.SnapshotBackend = BackendFile
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "gemini"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 768
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 30 * time.Second
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 1000
	}
	if cfg.Embedding.Concurrency == 0 {
		cfg.Embedding.Concurrency = 4
	}
	if len(cfg.Index.Classes) == 0 {
		cfg.Index.Classes = []string{"user", "network", "resume"}
	}
	if cfg.Index.StoreType == "" {
		cfg.Index.StoreType = "flat"
	}
	if cfg.Index.SnapshotEvery == 0 {
		cfg.Index.SnapshotEvery = 50
	}
	if cfg.Index.SnapshotInterval == 0 {
		cfg.Index.SnapshotInterval = time.Minute
	}
	cfg.Scoring.ApplyDefaults()
	if cfg.Import.Extensions == nil {
		cfg.Import.Extensions = []string{".pdf", ".docx", ".txt", ".md"}
	}
	if cfg.Import.Class == "" {
		cfg.Import.Class = "resume"
	}
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.Scoring.ExplanationsEnabled = true
	ApplyDefaults(cfg)
	return cfg
}
