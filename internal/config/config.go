// config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreMongo  = "mongo"
	StoreMemory = "memory"

	FlagAutoConfirmed = "isAutoConfirmed"
	FlagAutoCompleted = "isAutoCompleted"
)

var ErrInvalidSettings = errors.New("invalid lifecycle settings")

// Lifecycle is the per-run value object handed to the reconciler. A copy can
// be overridden for a single run without touching the process defaults.
type Lifecycle struct {
	TargetStatus   string
	TerminalStatus string
	CompletionFlag string
	Dwell          time.Duration
	Collections    []string
}

type Config struct {
	Port string

	StoreDriver      string
	StoreSeedFile    string
	MongoURI         string
	MongoDBName      string
	StoreRoot        string
	IssuesCollection string

	RabbitURL         string
	ReconcileQueue    string
	ReconcileExchange string
	StatusExchange    string

	DatabaseURL string

	AuthURL       string
	OperatorToken string

	AllowedOrigins []string
	PollInterval   time.Duration
	InitialDelay   time.Duration
	LogLevel       string

	Lifecycle Lifecycle
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", "3000"),
		StoreDriver:       strings.ToLower(getEnv("STORE_DRIVER", StoreMongo)),
		StoreSeedFile:     getEnv("STORE_SEED_FILE", ""),
		MongoURI:          getEnv("MONGO_URI", "mongodb://host.docker.internal:27017"),
		MongoDBName:       getEnv("MONGO_DB_NAME", "order_lifecycle_db"),
		StoreRoot:         strings.Trim(getEnv("STORE_ROOT", "smartfit_AR_Database"), "/"),
		IssuesCollection:  getEnv("ISSUES_COLLECTION", "issueReports"),
		RabbitURL:         getEnv("RABBIT_URL", ""),
		ReconcileQueue:    getEnv("RECONCILE_QUEUE", "order_lifecycle_reconcile"),
		ReconcileExchange: getEnv("RECONCILE_EXCHANGE", "order_reconcile_requested"),
		StatusExchange:    getEnv("STATUS_EXCHANGE", "order_status_changed"),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		AuthURL:           getEnv("AUTH_URL", ""),
		OperatorToken:     getEnv("OPERATOR_TOKEN", ""),
		AllowedOrigins:    splitList(getEnv("CORS_ALLOWED_ORIGINS", "https://smart-fit-ar.vercel.app,http://localhost:3000,http://localhost:5500")),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		Lifecycle: Lifecycle{
			TargetStatus:   getEnv("SOURCE_STATUS", "delivered"),
			TerminalStatus: getEnv("TERMINAL_STATUS", "completed"),
			CompletionFlag: getEnv("COMPLETION_FLAG", FlagAutoConfirmed),
			Collections:    splitList(getEnv("ORDER_COLLECTIONS", "transactions")),
		},
	}

	var err error
	if cfg.Lifecycle.Dwell, err = ParseDuration(getEnv("DWELL_THRESHOLD", "14d")); err != nil {
		return nil, fmt.Errorf("DWELL_THRESHOLD: %w", err)
	}
	if cfg.PollInterval, err = ParseDuration(getEnv("POLL_INTERVAL", "6h")); err != nil {
		return nil, fmt.Errorf("POLL_INTERVAL: %w", err)
	}
	if cfg.InitialDelay, err = ParseDuration(getEnv("INITIAL_RUN_DELAY", "5s")); err != nil {
		return nil, fmt.Errorf("INITIAL_RUN_DELAY: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreMongo, StoreMemory:
	default:
		return fmt.Errorf("STORE_DRIVER: unsupported driver %q", c.StoreDriver)
	}
	if c.StoreRoot == "" {
		return errors.New("STORE_ROOT is required")
	}
	if c.IssuesCollection == "" {
		return errors.New("ISSUES_COLLECTION is required")
	}
	if c.PollInterval <= 0 {
		return errors.New("POLL_INTERVAL must be positive")
	}
	if c.InitialDelay < 0 {
		return errors.New("INITIAL_RUN_DELAY must not be negative")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("PORT: %w", err)
	}
	return c.Lifecycle.Validate()
}

func (l Lifecycle) Validate() error {
	if strings.TrimSpace(l.TargetStatus) == "" {
		return fmt.Errorf("%w: source status is empty", ErrInvalidSettings)
	}
	if strings.TrimSpace(l.TerminalStatus) == "" {
		return fmt.Errorf("%w: terminal status is empty", ErrInvalidSettings)
	}
	if strings.EqualFold(l.TargetStatus, l.TerminalStatus) {
		return fmt.Errorf("%w: source and terminal status are both %q", ErrInvalidSettings, l.TargetStatus)
	}
	if l.Dwell <= 0 {
		return fmt.Errorf("%w: dwell threshold must be positive", ErrInvalidSettings)
	}
	if len(l.Collections) == 0 {
		return fmt.Errorf("%w: no order collections configured", ErrInvalidSettings)
	}
	switch l.CompletionFlag {
	case FlagAutoConfirmed, FlagAutoCompleted:
	default:
		return fmt.Errorf("%w: unknown completion flag %q", ErrInvalidSettings, l.CompletionFlag)
	}
	return nil
}

// WithOverrides returns a copy with the non-zero overrides applied. Repeated
// collection names are collapsed to their first occurrence.
func (l Lifecycle) WithOverrides(dwell time.Duration, collections []string) Lifecycle {
	out := l
	out.Collections = unique(l.Collections)
	if dwell > 0 {
		out.Dwell = dwell
	}
	if len(collections) > 0 {
		out.Collections = unique(collections)
	}
	return out
}

// ParseDuration accepts Go durations plus a whole-day suffix ("14d").
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid day count %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return unique(out)
}

// unique returns a fresh slice keeping the first occurrence of each name.
// Names are compared case-sensitively.
func unique(names []string) []string {
	if names == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
