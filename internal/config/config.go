// Package config handles loading and validating toolguard configuration.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/jkaninda/toolguard/internal/sandbox"
	"github.com/jkaninda/toolguard/internal/security"
)

func init() {
	// Load .env file if it exists
	_ = godotenv.Load()
}

// Audit drivers.
const (
	AuditDriverFile     = "file"
	AuditDriverSQLite   = "sqlite"
	AuditDriverPostgres = "postgres"
)

// DefaultPruneSchedule runs retention daily at 03:00.
const DefaultPruneSchedule = "0 3 * * *"

// Config is the root configuration for toolguard.
type Config struct {
	Workspace     WorkspaceConfig       `json:"workspace" yaml:"workspace" toml:"workspace"`
	Policy        security.PolicyConfig `json:"policy" yaml:"policy" toml:"policy"`
	Log           LogConfig             `json:"log" yaml:"log" toml:"log"`
	Audit         AuditConfig           `json:"audit" yaml:"audit" toml:"audit"`
	Observability ObservabilityConfig   `json:"observability" yaml:"observability" toml:"observability"`
	Server        ServerConfig          `json:"server" yaml:"server" toml:"server"`
}

// WorkspaceConfig selects the directory tools are confined to.
type WorkspaceConfig struct {
	Root       string `json:"root" yaml:"root" toml:"root"`                      // Default: "." Override: TOOLGUARD_WORKSPACE.
	WriteScope string `json:"write_scope" yaml:"write_scope" toml:"write_scope"` // read-only (default), workspace-write, unrestricted.
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level string `json:"level" yaml:"level" toml:"level"` // debug, info (default), warn, error.
}

// AuditConfig configures the audit sink.
type AuditConfig struct {
	Enabled       bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
	Driver        string `json:"driver" yaml:"driver" toml:"driver"`                         // file (default), sqlite, postgres.
	Path          string `json:"path,omitempty" yaml:"path,omitempty" toml:"path,omitempty"` // JSONL file or SQLite database. Default: under the state dir.
	DSN           string `json:"dsn,omitempty" yaml:"dsn,omitempty" toml:"dsn,omitempty"`    // PostgreSQL only. Override: TOOLGUARD_AUDIT_DSN.
	RetentionDays int    `json:"retention_days" yaml:"retention_days" toml:"retention_days"` // 0 = keep forever.
	PruneSchedule string `json:"prune_schedule" yaml:"prune_schedule" toml:"prune_schedule"` // Five-field cron. Default: 0 3 * * *
}

// ObservabilityConfig configures metrics and tracing. Both are off by default.
type ObservabilityConfig struct {
	Metrics MetricsConfig `json:"metrics" yaml:"metrics" toml:"metrics"`
	Tracing TracingConfig `json:"tracing" yaml:"tracing" toml:"tracing"`
	Anomaly AnomalyConfig `json:"anomaly" yaml:"anomaly" toml:"anomaly"`
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled" toml:"enabled"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled" toml:"enabled"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint" toml:"endpoint"`             // OTLP endpoint, e.g. "localhost:4317"
	Protocol    string  `json:"protocol" yaml:"protocol" toml:"protocol"`             // "grpc" or "http". Default: "grpc"
	ServiceName string  `json:"service_name" yaml:"service_name" toml:"service_name"` // Default: "toolguard"
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate" toml:"sample_rate"`    // 0.0–1.0. Default: 1.0
	Insecure    bool    `json:"insecure" yaml:"insecure" toml:"insecure"`             // Skip TLS for dev
}

// AnomalyConfig configures the tool error-rate detector.
type AnomalyConfig struct {
	Enabled            bool    `json:"enabled" yaml:"enabled" toml:"enabled"`
	WindowSeconds      int     `json:"window_seconds" yaml:"window_seconds" toml:"window_seconds"`                      // Default: 300
	ErrorRateThreshold float64 `json:"error_rate_threshold" yaml:"error_rate_threshold" toml:"error_rate_threshold"` // 0.0–1.0. 0 disables warnings.
}

// ServerConfig configures the ops HTTP server.
type ServerConfig struct {
	ListenAddr string `json:"listen_addr" yaml:"listen_addr" toml:"listen_addr"` // Default: ":9090"
}

// Default returns a configuration usable without a file: the current
// directory as a read-only workspace, every tool denied, audit and
// observability off.
func Default() *Config {
	return &Config{
		Workspace: WorkspaceConfig{Root: ".", WriteScope: string(sandbox.AccessReadOnly)},
		Policy:    security.DefaultPolicy(),
		Log:       LogConfig{Level: "info"},
		Audit: AuditConfig{
			Driver:        AuditDriverFile,
			PruneSchedule: DefaultPruneSchedule,
		},
		Observability: ObservabilityConfig{
			Tracing: TracingConfig{
				Protocol:    "grpc",
				ServiceName: "toolguard",
				SampleRate:  1.0,
			},
			Anomaly: AnomalyConfig{WindowSeconds: 300, ErrorRateThreshold: 0.5},
		},
		Server: ServerConfig{ListenAddr: ":9090"},
	}
}

// Load reads a YAML, TOML or JSON config file over Default and returns a
// validated Config. The format is detected by extension: .yml/.yaml for
// YAML, .toml for TOML, everything else for JSON. An empty path skips the
// file. Environment variables take precedence over file values.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		resolved, err := resolvePath(path)
		if err != nil {
			return nil, fmt.Errorf("resolving config path %s: %w", path, err)
		}
		data, err := os.ReadFile(resolved)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", resolved, err)
		}
		if err := decode(resolved, data, cfg); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv(os.Getenv)
	if cfg.Policy.Tools == nil {
		cfg.Policy.Tools = map[string]security.AccessLevel{}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parsing YAML config %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parsing TOML config %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parsing JSON config %s: %w", path, err)
		}
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("TOOLGUARD_WORKSPACE"); v != "" {
		c.Workspace.Root = v
	}
	if v := getenv("TOOLGUARD_WRITE_SCOPE"); v != "" {
		c.Workspace.WriteScope = v
	}
	if v := getenv("TOOLGUARD_DEFAULT_POLICY"); v != "" {
		c.Policy.Default = security.AccessLevel(v)
	}
	if v := getenv("TOOLGUARD_AUDIT_DSN"); v != "" {
		c.Audit.DSN = v
	}
	if v := getenv("TOOLGUARD_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate checks enumerations, ranges and the prune schedule.
func (c *Config) Validate() error {
	if _, err := sandbox.ParseAccessMode(c.Workspace.WriteScope); err != nil {
		return fmt.Errorf("workspace.write_scope: %w", err)
	}
	if err := c.Policy.Validate(); err != nil {
		return err
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}

	switch c.Audit.Driver {
	case AuditDriverFile, AuditDriverSQLite:
	case AuditDriverPostgres:
		if c.Audit.Enabled && c.Audit.DSN == "" {
			return fmt.Errorf("audit.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("audit.driver %q is not supported (use file, sqlite or postgres)", c.Audit.Driver)
	}
	if c.Audit.RetentionDays < 0 {
		return fmt.Errorf("audit.retention_days must not be negative")
	}
	if c.Audit.PruneSchedule != "" {
		if _, err := cron.ParseStandard(c.Audit.PruneSchedule); err != nil {
			return fmt.Errorf("audit.prune_schedule %q: %w", c.Audit.PruneSchedule, err)
		}
	}

	tr := c.Observability.Tracing
	if tr.SampleRate < 0 || tr.SampleRate > 1 {
		return fmt.Errorf("observability.tracing.sample_rate must be between 0 and 1")
	}
	switch tr.Protocol {
	case "", "grpc", "http":
	default:
		return fmt.Errorf("observability.tracing.protocol must be grpc or http")
	}
	if tr.Enabled && tr.Endpoint == "" {
		return fmt.Errorf("observability.tracing.endpoint is required when tracing is enabled")
	}
	if a := c.Observability.Anomaly; a.ErrorRateThreshold < 0 || a.ErrorRateThreshold > 1 {
		return fmt.Errorf("observability.anomaly.error_rate_threshold must be between 0 and 1")
	}
	return nil
}

// WriteScope returns the parsed write scope. Call after Validate.
func (c *Config) WriteScope() sandbox.AccessMode {
	return sandbox.AccessMode(c.Workspace.WriteScope)
}

// SlogLevel returns the configured log level, info when unset or invalid.
func (c *Config) SlogLevel() slog.Level {
	level, err := ParseLevel(c.Log.Level)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

// RetentionWindow returns the audit retention as a duration, 0 when
// retention is disabled.
func (c *Config) RetentionWindow() time.Duration {
	return time.Duration(c.Audit.RetentionDays) * 24 * time.Hour
}

// PruneSchedule returns the configured cron schedule or the default.
func (c *Config) PruneSchedule() string {
	if c.Audit.PruneSchedule == "" {
		return DefaultPruneSchedule
	}
	return c.Audit.PruneSchedule
}

// ParseLevel converts debug|info|warn|error to a slog level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// resolvePath expands ~ to the user home directory and returns an absolute path.
func resolvePath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}
	return filepath.Abs(path)
}
