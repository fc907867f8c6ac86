package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Network sources.
const (
	SourceFile = "file"
	SourceDB   = "db"
)

type Config struct {
	ScenarioFile  string
	Seed          *int64
	Patience      *int64
	NetworkSource string

	// DatabaseURL is empty when no database sink is configured.
	DatabaseURL string
	// NATSURL is empty when run logs are not published.
	NATSURL           string
	NATSSubjectPrefix string
	LogNATSSubjects   bool
	LogEvents         bool

	// MetricsAddr serves /metrics and the run report. Empty disables the server.
	MetricsAddr string
	RunTimeout  time.Duration
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}
	cfg.ScenarioFile = getenvDefault("SCENARIO_FILE", "configs/scenario.yaml")

	if v := os.Getenv("SEED"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid SEED: %q", v)
		}
		cfg.Seed = &n
	}
	if v := os.Getenv("PATIENCE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid PATIENCE: %q", v)
		}
		cfg.Patience = &n
	}

	cfg.NetworkSource = strings.ToLower(getenvDefault("NETWORK_SOURCE", SourceFile))
	switch cfg.NetworkSource {
	case SourceFile, SourceDB:
	default:
		return nil, fmt.Errorf("invalid NETWORK_SOURCE: %q", cfg.NetworkSource)
	}

	// Database: prefer DATABASE_URL / PG_DSN, else build from PG* vars when PGDATABASE is set
	cfg.DatabaseURL = firstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("PG_DSN"))
	if cfg.DatabaseURL == "" {
		if name := os.Getenv("PGDATABASE"); name != "" {
			host := getenvDefault("PGHOST", "127.0.0.1")
			port := getenvDefault("PGPORT", "5432")
			user := getenvDefault("PGUSER", "postgres")
			pass := os.Getenv("PGPASSWORD")
			sslmode := getenvDefault("PGSSLMODE", "disable")
			if pass != "" {
				cfg.DatabaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, name, sslmode)
			} else {
				cfg.DatabaseURL = fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, name, sslmode)
			}
		}
	}
	if cfg.NetworkSource == SourceDB && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("NETWORK_SOURCE=db needs DATABASE_URL or PGDATABASE")
	}

	cfg.NATSURL = os.Getenv("NATS_URL")
	cfg.NATSSubjectPrefix = strings.Trim(getenvDefault("NATS_SUBJECT_PREFIX", "busmodel.runs"), ".")
	if cfg.NATSSubjectPrefix == "" {
		return nil, fmt.Errorf("invalid NATS_SUBJECT_PREFIX")
	}

	cfg.LogNATSSubjects = getenvBool("LOG_NATS_SUBJECTS")
	cfg.LogEvents = getenvBool("LOG_EVENTS")

	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	if v := os.Getenv("RUN_TIMEOUT_SEC"); v != "" {
		sec, err := strconv.Atoi(v)
		if err != nil || sec <= 0 {
			return nil, fmt.Errorf("invalid RUN_TIMEOUT_SEC: %q", v)
		}
		cfg.RunTimeout = time.Duration(sec) * time.Second
	} else {
		cfg.RunTimeout = 5 * time.Minute
	}

	return cfg, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvBool(k string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(k))) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
