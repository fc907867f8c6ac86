package db

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Dialect selects placeholder style and pool settings.
type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

func (d Dialect) String() string {
	if d == SQLite {
		return "sqlite"
	}
	return "postgres"
}

var ErrUnsupportedDSN = errors.New("unsupported database DSN")

// ParseDSN picks the database/sql driver for dsn. postgres:// and postgresql:// URLs
// and keyword/value strings go to pgx; sqlite:<path> and file: URIs go to the
// pure Go SQLite driver.
func ParseDSN(dsn string) (driver, source string, d Dialect, err error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return "", "", 0, fmt.Errorf("empty DSN: %w", ErrUnsupportedDSN)
	}
	switch {
	case strings.HasPrefix(dsn, "sqlite:"):
		path := strings.TrimPrefix(strings.TrimPrefix(dsn, "sqlite:"), "//")
		if path == "" {
			return "", "", 0, fmt.Errorf("sqlite DSN without path: %w", ErrUnsupportedDSN)
		}
		return "sqlite", path, SQLite, nil
	case strings.HasPrefix(dsn, "file:"):
		return "sqlite", dsn, SQLite, nil
	}
	if !strings.Contains(dsn, "://") {
		if strings.Contains(dsn, "=") {
			return "pgx", dsn, Postgres, nil
		}
		return "", "", 0, fmt.Errorf("%q: %w", dsn, ErrUnsupportedDSN)
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", "", 0, err
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return "", "", 0, fmt.Errorf("scheme %q: %w", u.Scheme, ErrUnsupportedDSN)
	}
	return "pgx", dsn, Postgres, nil
}

// Redact hides the password of a URL DSN for logging.
func Redact(dsn string) string {
	if !strings.Contains(dsn, "://") {
		return dsn
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "<invalid dsn>"
	}
	return u.Redacted()
}
