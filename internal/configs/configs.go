/*
Package configs is responsible for loading and parsing the application's configuration settings.

Configuration is assembled from environment variables (providing defaults) layered under
CLI flags, which take precedence when set.
*/
package configs

import (
	"flag"
	"fmt"
	"os"
	"strconv"
)

// AppConfig contains all configuration parameters required for the application to run.
type AppConfig struct {
	// Environment gates log format: "development" (console, colored) or "production" (JSON).
	Environment string

	// Host is the TCP listen address for the chat protocol listener.
	Host string

	// Port is the TCP port the chat protocol listener binds to.
	Port int

	// DBPath is the path to the sqlite database file.
	DBPath string

	// HistoryLimit is the number of most recent messages returned on room join.
	HistoryLimit int

	// OpsAddr is the listen address for the secondary health/stats HTTP surface.
	OpsAddr string
}

// envOrDefault returns the named environment variable, or def if unset.
func envOrDefault(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

// LoadConfig parses CLI flags (run_server --host H --port P ...), falling back to environment
// variables and then to hardcoded defaults for anything the caller didn't set. It returns a
// pointer to the AppConfig struct and any error encountered during validation.
func LoadConfig(args []string) (*AppConfig, error) {
	fs := flag.NewFlagSet("run_server", flag.ContinueOnError)

	defaultPort, err := strconv.Atoi(envOrDefault("PORT", "5001"))
	if err != nil {
		return nil, fmt.Errorf("invalid PORT environment variable: %w", err)
	}
	defaultHistoryLimit, err := strconv.Atoi(envOrDefault("HISTORY_LIMIT", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid HISTORY_LIMIT environment variable: %w", err)
	}

	host := fs.String("host", envOrDefault("HOST", "127.0.0.1"), "chat protocol listen address")
	port := fs.Int("port", defaultPort, "chat protocol listen port")
	dbPath := fs.String("db", envOrDefault("DB_PATH", "conchat.db"), "path to the sqlite database file")
	historyLimit := fs.Int("history-limit", defaultHistoryLimit, "number of recent messages returned on room join")
	env := fs.String("env", envOrDefault("ENVIRONMENT", "development"), "development or production")
	opsAddr := fs.String("ops-addr", envOrDefault("OPS_ADDR", "127.0.0.1:5002"), "health/stats HTTP listen address")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := &AppConfig{
		Environment:  *env,
		Host:         *host,
		Port:         *port,
		DBPath:       *dbPath,
		HistoryLimit: *historyLimit,
		OpsAddr:      *opsAddr,
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("port number %d is outside the valid range (1-65535)", cfg.Port)
	}

	if cfg.HistoryLimit < 0 {
		return nil, fmt.Errorf("history limit %d must not be negative", cfg.HistoryLimit)
	}

	return cfg, nil
}
