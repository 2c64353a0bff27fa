package cfg

import (
	"errors"
	"flag"
	"fmt"
	"strings"
)

// Config adds server-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	APIKey                string
	DatabaseURL           string
	DatabaseMaxConns      int
	SlowQueryMillis       int
	RedisURL              string
	CacheTTLSeconds       int
	SlackWebhookURL       string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.APIKey, "api-key", "", "shared key clients send in X-API-Key")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = in-memory store)")
	fs.IntVar(&c.DatabaseMaxConns, "database-max-conns", 10, "PostgreSQL pool size (1..100)")
	fs.IntVar(&c.SlowQueryMillis, "slow-query-ms", 200, "queries slower than this are logged at info level (0 = never)")
	fs.StringVar(&c.RedisURL, "redis-url", "", "Redis URL for the incident detail cache (empty = no cache)")
	fs.IntVar(&c.CacheTTLSeconds, "cache-ttl-seconds", 300, "incident detail cache TTL (1..86400)")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for new incident notifications")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	if c.APIKey == "" {
		errs = append(errs, errors.New("API_KEY is required"))
	}

	if c.DatabaseURL != "" && !hasScheme(c.DatabaseURL, "postgres://", "postgresql://") {
		errs = append(errs, errors.New("DATABASE_URL must start with postgres:// or postgresql://"))
	}
	if c.DatabaseMaxConns <= 0 || c.DatabaseMaxConns > 100 {
		errs = append(errs, fmt.Errorf("invalid DATABASE_MAX_CONNS %d (must be 1..100)", c.DatabaseMaxConns))
	}
	if c.SlowQueryMillis < 0 {
		errs = append(errs, fmt.Errorf("invalid SLOW_QUERY_MS %d (must be >=0)", c.SlowQueryMillis))
	}

	if c.RedisURL != "" && !hasScheme(c.RedisURL, "redis://", "rediss://") {
		errs = append(errs, errors.New("REDIS_URL must start with redis:// or rediss://"))
	}
	if c.CacheTTLSeconds <= 0 || c.CacheTTLSeconds > 86400 {
		errs = append(errs, fmt.Errorf("invalid CACHE_TTL_SECONDS %d (must be 1..86400)", c.CacheTTLSeconds))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func hasScheme(u string, schemes ...string) bool {
	for _, s := range schemes {
		if strings.HasPrefix(u, s) {
			return true
		}
	}
	return false
}
