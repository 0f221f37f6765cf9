package config

import (
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	BackendFile  = "file"
	BackendTable = "table"
)

// Config holds the service settings read from the environment.
type Config struct {
	Debug      bool
	ListenAddr string

	Backend          string
	TasksFile        string
	ConnectionString string
	TasksTable       string
	TasksPartition   string

	// RedisConnectionString enables Idempotency-Key handling when set.
	RedisConnectionString string
	DeduperTTL            time.Duration
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:            getEnvString("LISTEN_ADDR", ":8080"),
		Backend:               strings.ToLower(strings.TrimSpace(getEnvString("STORAGE_BACKEND", BackendFile))),
		TasksFile:             getEnvString("TASKS_FILE", "tasks.json"),
		ConnectionString:      os.Getenv("STORAGE_CONNECTION_STRING"),
		TasksTable:            os.Getenv("TASKS_TABLE"),
		TasksPartition:        getEnvString("TASKS_PARTITION", "default"),
		RedisConnectionString: os.Getenv("REDIS_CONNECTION_STRING"),
		DeduperTTL:            24 * time.Hour,
	}

	if v := os.Getenv("DEBUG"); v != "" {
		dbg, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid DEBUG: %w", err)
		}
		cfg.Debug = dbg
	}
	if v := os.Getenv("DEDUPER_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid DEDUPER_TTL: %w", err)
		}
		cfg.DeduperTTL = d
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return fmt.Errorf("invalid LISTEN_ADDR: must not be empty")
	}
	switch c.Backend {
	case BackendFile:
		if strings.TrimSpace(c.TasksFile) == "" {
			return fmt.Errorf("invalid TASKS_FILE: must not be empty")
		}
	case BackendTable:
		if c.ConnectionString == "" || c.TasksTable == "" {
			return fmt.Errorf("missing storage config: STORAGE_CONNECTION_STRING and TASKS_TABLE are required for the table backend")
		}
	default:
		return fmt.Errorf("invalid STORAGE_BACKEND %q: must be %q or %q", c.Backend, BackendFile, BackendTable)
	}
	if c.DeduperTTL <= 0 {
		return fmt.Errorf("invalid DEDUPER_TTL %v: must be greater than zero", c.DeduperTTL)
	}
	if c.RedisConnectionString != "" {
		if _, err := RedisOptions(c.RedisConnectionString); err != nil {
			return err
		}
	}
	return nil
}

// RedisOptions parses either a redis:// URL or the
// "host:port,password=...,ssl=true" form used by Azure Cache for Redis.
func RedisOptions(conn string) (*redis.Options, error) {
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts, nil
	}
	parts := strings.Split(conn, ",")
	addr := strings.TrimSpace(parts[0])
	if addr == "" || strings.Contains(addr, "://") {
		return nil, fmt.Errorf("invalid REDIS_CONNECTION_STRING")
	}
	opts := &redis.Options{Addr: addr}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(strings.TrimSpace(kv[1]), "true") {
				opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			}
		}
	}
	return opts, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
