package config

// Storage and engine driver names understood by the default wiring.
const (
	StorageDriverGorm = "gorm"
	StorageDriverSQL  = "sql"

	DefaultEngineDriver = "bleve"
	DefaultIndex        = "records"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = StorageDriverGorm
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/sokuin/data/db/records.db"
	}
	if cfg.Engine.Driver == "" {
		cfg.Engine.Driver = DefaultEngineDriver
	}
	if cfg.Engine.Index == "" {
		cfg.Engine.Index = DefaultIndex
	}
	if cfg.Engine.BlevePath == "" {
		cfg.Engine.BlevePath = "/usr/local/var/sokuin/data/indices"
	}
	if len(cfg.Engine.Redis.Addrs) == 0 {
		cfg.Engine.Redis.Addrs = []string{"localhost:6379"}
	}
	if cfg.Engine.Redis.Prefix == "" {
		cfg.Engine.Redis.Prefix = "sokuin"
	}
	if cfg.Search.PerPage <= 0 {
		cfg.Search.PerPage = 15
	}
	if cfg.Search.MaxPerPage <= 0 {
		cfg.Search.MaxPerPage = 100
	}
	if cfg.Search.PerPage > cfg.Search.MaxPerPage {
		cfg.Search.PerPage = cfg.Search.MaxPerPage
	}
	if cfg.Search.ImportChunkSize <= 0 {
		cfg.Search.ImportChunkSize = 500
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".json", ".jsonl", ".yaml", ".yml", ".xlsx", ".pdf", ".docx", ".odt", ".rtf", ".txt", ".md", ".rst"}
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
