package storage

import (
	"fmt"

	"github.com/zulandar/voicedesk/internal/config"
	"github.com/zulandar/voicedesk/internal/db"
)

// Open builds the backend named by cfg.Driver. Relational backends are
// migrated before they are returned.
func Open(cfg config.StorageConfig) (Storage, error) {
	switch cfg.Driver {
	case config.DriverMemory, "":
		return NewMemory(), nil
	case config.DriverSQLite, config.DriverMySQL:
		gdb, err := db.Connect(cfg)
		if err != nil {
			return nil, err
		}
		if err := db.AutoMigrate(gdb); err != nil {
			db.Close(gdb)
			return nil, err
		}
		return NewGorm(gdb, cfg.Driver)
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", cfg.Driver)
	}
}
