package database

import (
	"fmt"
	"strings"
)

// Driver names a supported database backend.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverSQLite   Driver = "sqlite"

	// DriverAuto picks the backend from the connection URL.
	DriverAuto Driver = "auto"
)

func (d Driver) String() string {
	return string(d)
}

// ParseDriver validates a configured driver name. Empty means auto.
func ParseDriver(name string) (Driver, error) {
	switch d := Driver(strings.ToLower(strings.TrimSpace(name))); d {
	case "", DriverAuto:
		return DriverAuto, nil
	case DriverPostgres, DriverSQLite:
		return d, nil
	case "postgresql":
		return DriverPostgres, nil
	default:
		return "", fmt.Errorf("unknown database driver %q", name)
	}
}

// DetectDriver picks a backend from a connection URL. An empty URL selects
// SQLite so the service runs with zero configuration.
func DetectDriver(url string) Driver {
	switch {
	case url == "":
		return DriverSQLite
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return DriverPostgres
	case strings.HasPrefix(url, "sqlite://"), strings.HasPrefix(url, "file:"):
		return DriverSQLite
	}
	for _, ext := range []string{".db", ".sqlite", ".sqlite3"} {
		if strings.HasSuffix(url, ext) {
			return DriverSQLite
		}
	}
	// Bare key=value DSNs are PostgreSQL.
	return DriverPostgres
}
