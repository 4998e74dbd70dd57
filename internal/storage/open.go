package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"chatrelay/backend/internal/config"
)

// Open returns the MessageStore for driver. location is the PostgreSQL DSN,
// the SQLite file or the badger directory. Parent directories of local
// stores are created as needed.
func Open(driver, location string) (MessageStore, error) {
	switch driver {
	case config.DriverPostgres:
		return OpenPostgres(location)

	case config.DriverSQLite:
		if location != "" && !strings.HasPrefix(location, "file:") && location != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(location), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
			}
		}
		return OpenSQLite(location)

	case config.DriverBadger:
		if location != "" {
			if err := os.MkdirAll(location, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create badger directory: %w", err)
			}
		}
		return NewBadgerStore(location)

	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
