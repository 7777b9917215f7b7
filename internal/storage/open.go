package storage

import (
	"fmt"

	"github.com/hyperjump/sokuin/internal/config"
)

// Open returns the store selected by cfg.Driver.
func Open(cfg config.StorageConfig, debug bool) (Store, error) {
	switch cfg.Driver {
	case config.StorageDriverGorm, "":
		return NewGormStore(cfg.DatabasePath, debug)
	case config.StorageDriverSQL:
		return NewSQLiteStore(cfg.DatabasePath)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
