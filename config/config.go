// Package config loads the service configuration from defaults, an optional
// YAML file, an optional .env file and the process environment, in that
// order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/GoCodeAlone/todos/api"
	"github.com/GoCodeAlone/todos/keygen"
	"github.com/GoCodeAlone/todos/observability/tracing"
	"github.com/GoCodeAlone/todos/store"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultNamespace is the collection served when none is configured.
const DefaultNamespace = "todos"

var namespacePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// reservedNamespaces are paths the router serves itself.
var reservedNamespaces = []string{"healthz", "metrics"}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// GoRuntime adds the Go runtime and process collectors.
	GoRuntime bool `yaml:"go_runtime" json:"go_runtime"`
}

// Config is the complete service configuration.
type Config struct {
	Addr      string `yaml:"addr" json:"addr"`
	Namespace string `yaml:"namespace" json:"namespace"`
	KeyFormat string `yaml:"key_format" json:"key_format"`
	// StoreTimeout bounds each store call. Zero means no timeout.
	StoreTimeout time.Duration `yaml:"store_timeout" json:"store_timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" json:"max_body_bytes"`
	// RateLimit is the per-client request allowance per minute. Zero disables it.
	RateLimit   int      `yaml:"rate_limit" json:"rate_limit"`
	CORSOrigins []string `yaml:"cors_origins" json:"cors_origins"`

	Log     LogConfig      `yaml:"log" json:"log"`
	Store   store.Options  `yaml:"store" json:"store"`
	Tracing tracing.Config `yaml:"tracing" json:"tracing"`
	Metrics MetricsConfig  `yaml:"metrics" json:"metrics"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Addr:         ":8080",
		Namespace:    DefaultNamespace,
		KeyFormat:    keygen.FormatPush,
		MaxBodyBytes: api.DefaultMaxBodyBytes,
		CORSOrigins:  []string{"*"},
		Log:          LogConfig{Level: "info", Format: "text"},
		Store:        store.Options{Backend: store.BackendMemory},
		Tracing:      tracing.DefaultConfig(),
	}
}

// LoadFromFile overlays the YAML file at path onto cfg.
func LoadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// Load builds the configuration. path may be empty. Variables from envFiles
// (".env" when none are given) are added to the environment without
// replacing variables that are already set; a missing file is ignored.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := LoadFromFile(cfg, path); err != nil {
			return nil, err
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", f, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables, looked up with
// lookup so tests can supply their own environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(name string, set func(int64)) {
		v, ok := lookup(name)
		if !ok || v == "" {
			return
		}
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			return
		}
		set(n)
	}

	if v, ok := lookup("PORT"); ok && v != "" {
		c.Addr = ":" + v
	}
	str("TODOS_NAMESPACE", &c.Namespace)
	str("TODOS_BACKEND", &c.Store.Backend)
	str("TODOS_KEY_FORMAT", &c.KeyFormat)
	if v, ok := lookup("TODOS_STORE_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("TODOS_STORE_TIMEOUT: %w", err))
		} else {
			c.StoreTimeout = d
		}
	}
	num("TODOS_MAX_BODY_BYTES", func(n int64) { c.MaxBodyBytes = n })
	num("TODOS_RATE_LIMIT", func(n int64) { c.RateLimit = int(n) })
	if v, ok := lookup("TODOS_CORS_ORIGINS"); ok && v != "" {
		c.CORSOrigins = splitList(v)
	}
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	str("REDIS_ADDR", &c.Store.Redis.Address)
	str("REDIS_PASSWORD", &c.Store.Redis.Password)
	num("REDIS_DB", func(n int64) { c.Store.Redis.DB = int(n) })
	str("NATS_URL", &c.Store.NATS.URL)
	str("SQLITE_PATH", &c.Store.SQLite.Path)
	str("DATABASE_URL", &c.Store.Postgres.URL)
	str("DYNAMODB_TABLE", &c.Store.DynamoDB.Table)
	str("DYNAMODB_ENDPOINT", &c.Store.DynamoDB.Endpoint)
	str("AWS_REGION", &c.Store.DynamoDB.Region)
	str("FIREBASE_DATABASE_URL", &c.Store.Firebase.DatabaseURL)
	str("FIREBASE_CREDENTIALS_FILE", &c.Store.Firebase.CredentialsFile)

	str("OTEL_EXPORTER_OTLP_ENDPOINT", &c.Tracing.Endpoint)
	str("OTEL_SERVICE_NAME", &c.Tracing.ServiceName)
	if v, ok := lookup("METRICS_ENABLED"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("METRICS_ENABLED: %w", err))
		} else {
			c.Metrics.Enabled = b
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %w", errors.Join(errs...))
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate reports the first setting the service cannot start with.
func (c *Config) Validate() error {
	if !namespacePattern.MatchString(c.Namespace) {
		return fmt.Errorf("invalid namespace %q: use letters, digits, '-' or '_'", c.Namespace)
	}
	if slices.Contains(reservedNamespaces, c.Namespace) {
		return fmt.Errorf("invalid namespace %q: reserved for the /%s endpoint", c.Namespace, c.Namespace)
	}
	if c.Store.Backend != "" && !slices.Contains(store.Backends, c.Store.Backend) {
		return fmt.Errorf("unknown store backend %q (expected one of %s)", c.Store.Backend, strings.Join(store.Backends, ", "))
	}
	if _, err := keygen.New(c.KeyFormat); err != nil {
		return err
	}
	if c.StoreTimeout < 0 {
		return fmt.Errorf("store_timeout must not be negative, got %s", c.StoreTimeout)
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("max_body_bytes must be positive, got %d", c.MaxBodyBytes)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative, got %d", c.RateLimit)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q (expected text or json)", c.Log.Format)
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing sample_rate must be between 0 and 1, got %g", c.Tracing.SampleRate)
	}
	return nil
}

// SlogLevel parses Level. An empty level is info.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if l.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", l.Level, err)
	}
	return level, nil
}
