package storage

import (
	"fmt"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MemoryDSN is a shared-cache in-memory SQLite database.
const MemoryDSN = "file::memory:?cache=shared"

// IsMemoryDSN reports whether dsn names an in-memory SQLite database. An
// empty dsn counts, since Open falls back to MemoryDSN.
func IsMemoryDSN(dsn string) bool {
	return dsn == "" || strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

// Open connects to the archive database. Only the sqlite driver is
// supported; an empty dsn opens MemoryDSN.
func Open(driver, dsn string) (*gorm.DB, error) {
	if dsn == "" {
		dsn = MemoryDSN
	}

	var dialector gorm.Dialector
	switch driver {
	case "", "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("jobs: unsupported archive driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("jobs: open archive: %w", err)
	}
	return db, nil
}
