// Package config provides configuration loading and structs for the sokuin server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug   bool          `yaml:"debug" env:"SOKUIN_DEBUG"`
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Engine  EngineConfig  `yaml:"engine"`
	Search  SearchConfig  `yaml:"search"`
	Watch   WatchConfig   `yaml:"watch"`
}

// WatchConfig holds directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host" env:"SOKUIN_HOST"`
	Port int    `yaml:"port" env:"SOKUIN_PORT"`
}

// StorageConfig selects the local record store.
// Driver is "gorm" (ORM over pure-Go SQLite) or "sql" (database/sql over mattn/go-sqlite3).
type StorageConfig struct {
	Driver       string `yaml:"driver" env:"SOKUIN_STORAGE_DRIVER"`
	DatabasePath string `yaml:"database_path" env:"SOKUIN_DATABASE_PATH"`
}

// EngineConfig selects the search engine driver and the index records are synced to.
type EngineConfig struct {
	Driver    string      `yaml:"driver" env:"SOKUIN_ENGINE"`
	Index     string      `yaml:"index" env:"SOKUIN_INDEX"`
	BlevePath string      `yaml:"bleve_path" env:"SOKUIN_BLEVE_PATH"`
	Fuzzy     bool        `yaml:"fuzzy" env:"SOKUIN_FUZZY"`
	Redis     RedisConfig `yaml:"redis"`
}

// RedisConfig holds connection settings for the RediSearch driver.
type RedisConfig struct {
	Addrs    []string `yaml:"addrs" env:"SOKUIN_REDIS_ADDRS" env-separator:","`
	Username string   `yaml:"username" env:"SOKUIN_REDIS_USERNAME"`
	Password string   `yaml:"password" env:"SOKUIN_REDIS_PASSWORD"`
	DB       int      `yaml:"db" env:"SOKUIN_REDIS_DB"`
	Prefix   string   `yaml:"prefix" env:"SOKUIN_REDIS_PREFIX"`
}

// SearchConfig holds pagination and import settings.
type SearchConfig struct {
	PerPage         int `yaml:"per_page" env:"SOKUIN_PER_PAGE"`
	MaxPerPage      int `yaml:"max_per_page"`
	ImportChunkSize int `yaml:"import_chunk_size" env:"SOKUIN_IMPORT_CHUNK_SIZE"`
}

// Load reads and parses the config file at path, applies SOKUIN_* environment
// overrides, applies defaults, and expands paths relative to the config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Engine.BlevePath = expandPath(cfg.Engine.BlevePath, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// FromEnv builds a config from defaults and SOKUIN_* environment variables only.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	ApplyDefaults(&cfg)
	return &cfg, nil
}

// Save writes the config to path. Used for persisting watch directory add/remove.
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

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. SQLite pseudo paths such as
// ":memory:" are returned unchanged.
func expandPath(path string, configDir string) string {
	if path == "" || strings.HasPrefix(path, ":") || filepath.IsAbs(path) {
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
