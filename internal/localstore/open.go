package localstore

import (
	"fmt"
	"log/slog"
)

// Open builds the Store selected by driver ("sqlite", "file" or "memory").
func Open(driver, path string, log *slog.Logger) (Store, error) {
	switch driver {
	case "sqlite":
		return NewSQLiteStore(path, log)
	case "file":
		return NewFileStore(path)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown local store driver %q", driver)
	}
}
