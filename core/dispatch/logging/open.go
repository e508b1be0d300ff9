package logging

import "fmt"

// Options selects and configures a LogStore backend.
type Options struct {
	// Backend is one of "jsonl", "sqlite" or "mysql".
	Backend string
	// Path is the JSONL file or SQLite database location.
	Path string
	// DSN is the MySQL connection string.
	DSN string
	// Rotation applies to the jsonl backend when MaxSizeMB is positive.
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Open creates the configured LogStore.
func Open(o Options) (LogStore, error) {
	switch o.Backend {
	case "", "jsonl":
		if o.MaxSizeMB > 0 {
			return NewRotatingJSONLStore(o.Path, o.MaxSizeMB, o.MaxBackups, o.MaxAgeDays)
		}
		return NewJSONLStore(o.Path)
	case "sqlite":
		return OpenSQLite(o.Path)
	case "mysql":
		return OpenMySQL(o.DSN)
	default:
		return nil, fmt.Errorf("logging: unknown backend %s", o.Backend)
	}
}
