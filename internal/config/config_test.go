package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	require.Equal(t, "default", cfg.TenantID)
	require.Equal(t, "127.0.0.1", cfg.Server.Host)
	require.Equal(t, 7420, cfg.Server.Port)
	require.Equal(t, int64(256<<20), cfg.Storage.MaxArtifactBytes)
	require.Equal(t, []string{"fs", "http", "https"}, cfg.Sinks.Enabled)
	require.Equal(t, 60, cfg.Sinks.HTTPTimeoutSeconds)
	require.False(t, cfg.Tracing.Enabled)
	require.Equal(t, "file", cfg.Tracing.Exporter)
	require.Equal(t, 1.0, cfg.Tracing.SampleRate)

	require.NoError(t, Validate(cfg), "defaults must validate")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid defaults",
			mutate:  func(c *Config) {},
			wantErr: "",
		},
		{
			name:    "missing tenant id",
			mutate:  func(c *Config) { c.TenantID = "" },
			wantErr: "tenant_id is required",
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "server.port",
		},
		{
			name:    "negative artifact limit",
			mutate:  func(c *Config) { c.Storage.MaxArtifactBytes = -1 },
			wantErr: "storage.max_artifact_bytes",
		},
		{
			name:    "unsupported sink scheme",
			mutate:  func(c *Config) { c.Sinks.Enabled = []string{"fs", "ftp"} },
			wantErr: "unsupported scheme",
		},
		{
			name:    "negative http timeout",
			mutate:  func(c *Config) { c.Sinks.HTTPTimeoutSeconds = -5 },
			wantErr: "http_timeout_seconds",
		},
		{
			name:    "sample rate out of range",
			mutate:  func(c *Config) { c.Tracing.SampleRate = 1.5 },
			wantErr: "sample_rate",
		},
		{
			name:    "unknown exporter",
			mutate:  func(c *Config) { c.Tracing.Exporter = "kafka" },
			wantErr: "tracing.exporter",
		},
		{
			name: "file exporter without path when enabled",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.Exporter = "file"
				c.Tracing.FilePath = ""
			},
			wantErr: "tracing.file_path",
		},
		{
			name: "otlp exporter without endpoint when enabled",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.Exporter = "otlp"
				c.Tracing.OTLPEndpoint = ""
			},
			wantErr: "tracing.otlp_endpoint",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDefaultConfigTemplate_IsValidYAML(t *testing.T) {
	var parsed map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(DefaultConfigTemplate()), &parsed))
	require.Equal(t, "default", parsed["tenant_id"])
	require.Contains(t, parsed, "server")
	require.Contains(t, parsed, "storage")
	require.Contains(t, parsed, "sinks")
}

func TestWriteDefaultConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nested", "config.yaml")

	require.NoError(t, WriteDefaultConfig(configPath))

	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(data), "# DepotGate Configuration"))

	info, err := os.Stat(configPath)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
