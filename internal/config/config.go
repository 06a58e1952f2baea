// Package config provides configuration types and defaults for depotgate.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/zjrosen/depotgate/internal/log"
)

// Config holds all configuration options for depotgate.
type Config struct {
	// TenantID namespaces every artifact, deliverable, and receipt this
	// instance manages.
	TenantID string `mapstructure:"tenant_id"`

	Server   ServerConfig    `mapstructure:"server"`
	Storage  StorageConfig   `mapstructure:"storage"`
	Sinks    SinkConfig      `mapstructure:"sinks"`
	Database DatabaseConfig  `mapstructure:"database"`
	Tracing  TracingConfig   `mapstructure:"tracing"`
	Flags    map[string]bool `mapstructure:"flags"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	// APIKey protects every route except /health. Clients send it as
	// Authorization: Bearer <key> or the X-API-Key header. With no key
	// configured authentication fails closed.
	APIKey string `mapstructure:"api_key"`

	// AllowInsecureDev disables authentication entirely. Dev only.
	AllowInsecureDev bool `mapstructure:"allow_insecure_dev"`
}

// StorageConfig holds artifact payload storage settings.
type StorageConfig struct {
	// BasePath is the root directory for staged artifact bytes.
	// Default: ~/.depotgate/artifacts
	BasePath string `mapstructure:"base_path"`

	// MaxArtifactBytes caps a single deposit. Streams exceeding the cap
	// are discarded mid-write.
	MaxArtifactBytes int64 `mapstructure:"max_artifact_bytes"`
}

// SinkConfig holds outbound shipping settings.
type SinkConfig struct {
	// FilesystemBase is the root directory filesystem destinations
	// resolve under. Default: ~/.depotgate/outbox
	FilesystemBase string `mapstructure:"filesystem_base"`

	// HTTPTimeoutSeconds bounds one HTTP shipment end to end.
	HTTPTimeoutSeconds int `mapstructure:"http_timeout_seconds"`

	// Enabled lists the destination schemes this instance ships to.
	// Supported: "fs", "http", "https"
	Enabled []string `mapstructure:"enabled"`
}

// DatabaseConfig holds the two database file locations. Metadata is
// mutable state; receipts are the append-only log.
type DatabaseConfig struct {
	MetadataPath string `mapstructure:"metadata_path"`
	ReceiptsPath string `mapstructure:"receipts_path"`
}

// TracingConfig holds distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether distributed tracing is active.
	// Default: false
	Enabled bool `mapstructure:"enabled"`

	// Exporter selects the trace export backend.
	// Options: "none", "file", "stdout", "otlp"
	// Default: "file"
	Exporter string `mapstructure:"exporter"`

	// FilePath is the output file for "file" exporter.
	// Default: ~/.depotgate/traces/traces.jsonl
	FilePath string `mapstructure:"file_path"`

	// OTLPEndpoint is the collector endpoint for "otlp" exporter.
	// Default: "localhost:4317"
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`

	// SampleRate controls trace sampling (0.0 to 1.0).
	// Default: 1.0
	SampleRate float64 `mapstructure:"sample_rate"`
}

// DefaultDataDir returns the root data directory, ~/.depotgate, or an
// empty string if the home directory is unavailable.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".depotgate")
}

// DefaultTracesFilePath returns the default path for trace file export.
func DefaultTracesFilePath() string {
	dir := DefaultDataDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "traces", "traces.jsonl")
}

// Validate checks the full configuration for errors. Empty values that
// have defaults are valid.
func Validate(cfg Config) error {
	if cfg.TenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535, got %d", cfg.Server.Port)
	}
	if cfg.Storage.MaxArtifactBytes < 0 {
		return fmt.Errorf("storage.max_artifact_bytes must not be negative, got %d", cfg.Storage.MaxArtifactBytes)
	}
	if err := ValidateSinks(cfg.Sinks); err != nil {
		return err
	}
	return ValidateTracing(cfg.Tracing)
}

// ValidateSinks checks sink configuration for errors.
func ValidateSinks(sinks SinkConfig) error {
	for _, scheme := range sinks.Enabled {
		switch scheme {
		case "fs", "http", "https":
			// Valid
		default:
			return fmt.Errorf("sinks.enabled contains unsupported scheme %q (must be \"fs\", \"http\", or \"https\")", scheme)
		}
	}
	if sinks.HTTPTimeoutSeconds < 0 {
		return fmt.Errorf("sinks.http_timeout_seconds must not be negative, got %d", sinks.HTTPTimeoutSeconds)
	}
	return nil
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(tracing TracingConfig) error {
	if tracing.SampleRate < 0.0 || tracing.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tracing.SampleRate)
	}

	if tracing.Exporter != "" {
		switch tracing.Exporter {
		case "none", "file", "stdout", "otlp":
			// Valid
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", tracing.Exporter)
		}
	}

	// Only validate path requirements when tracing is enabled
	if tracing.Enabled {
		if tracing.Exporter == "file" && tracing.FilePath == "" {
			return fmt.Errorf("tracing.file_path is required when exporter is \"file\"")
		}
		if tracing.Exporter == "otlp" && tracing.OTLPEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
		}
	}

	return nil
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	dataDir := DefaultDataDir()
	return Config{
		TenantID: "default",
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 7420,
		},
		Storage: StorageConfig{
			BasePath:         filepath.Join(dataDir, "artifacts"),
			MaxArtifactBytes: 256 << 20, // 256 MiB
		},
		Sinks: SinkConfig{
			FilesystemBase:     filepath.Join(dataDir, "outbox"),
			HTTPTimeoutSeconds: 60,
			Enabled:            []string{"fs", "http", "https"},
		},
		Database: DatabaseConfig{
			MetadataPath: filepath.Join(dataDir, "metadata.db"),
			ReceiptsPath: filepath.Join(dataDir, "receipts.db"),
		},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "file",
			FilePath:     "", // Derived from data dir at runtime
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
		},
	}
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# DepotGate Configuration

# Tenant namespace for everything this instance manages
tenant_id: default

# HTTP API listener
server:
  host: 127.0.0.1
  port: 7420

  # API key clients present as "Authorization: Bearer <key>" or X-API-Key.
  # Generate one with "depotgate keygen". With no key configured every
  # authenticated request is rejected.
  # api_key: dp_...

  # Disable authentication entirely. Dev only.
  # allow_insecure_dev: false

# Artifact payload storage
storage:
  # Root directory for staged artifact bytes (default: ~/.depotgate/artifacts)
  # base_path: /var/lib/depotgate/artifacts

  # Maximum size of a single artifact in bytes (default: 268435456 = 256 MiB)
  max_artifact_bytes: 268435456

# Outbound shipping
sinks:
  # Root directory filesystem destinations resolve under
  # (default: ~/.depotgate/outbox)
  # filesystem_base: /var/lib/depotgate/outbox

  # End-to-end timeout for one HTTP shipment
  http_timeout_seconds: 60

  # Destination schemes this instance ships to
  enabled:
    - fs
    - http
    - https

# Database file locations
# Metadata holds mutable state; receipts are the append-only log.
# database:
#   metadata_path: /var/lib/depotgate/metadata.db
#   receipts_path: /var/lib/depotgate/receipts.db

# Distributed tracing
# tracing:
#   enabled: false                 # Enable/disable tracing (default: false)
#   exporter: file                 # Export backend: none, file, stdout, otlp (default: file)
#   file_path: ~/.depotgate/traces/traces.jsonl  # Output file for file exporter
#   otlp_endpoint: localhost:4317  # OTLP collector endpoint (for otlp exporter)
#   sample_rate: 1.0               # Trace sampling rate 0.0-1.0 (default: 1.0)

# Feature flags (all default to off)
# flags:
#   metadata-watcher: false        # Flush the pointer cache on external metadata writes
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
