// Package cmd wires the depotgate commands: the root command loads
// configuration, serve runs the depot daemon, and sinks manages the
// enabled destination schemes.
package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/depotgate/internal/config"
)

var (
	version   = "dev"
	cfgFile   string
	debugFlag bool
	cfg       config.Config
)

var rootCmd = &cobra.Command{
	Use:     "depotgate",
	Short:   "Artifact staging and outbound logistics depot",
	Long:    `DepotGate stages artifact payloads under (tenant, task), declares deliverable contracts with closure requirements, and ships verified artifact sets to filesystem or HTTP destinations with durable receipts.`,
	Version: version,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: .depotgate/config.yaml, then ~/.config/depotgate/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false,
		"enable debug logging")
	rootCmd.PersistentFlags().String("tenant", "",
		"tenant ID this instance serves (overrides config)")

	// Bind flags to viper
	_ = viper.BindPFlag("tenant_id", rootCmd.PersistentFlags().Lookup("tenant"))
}

func initConfig() {
	defaults := config.Defaults()
	viper.SetDefault("tenant_id", defaults.TenantID)
	viper.SetDefault("server.host", defaults.Server.Host)
	viper.SetDefault("server.port", defaults.Server.Port)
	viper.SetDefault("server.api_key", "")
	viper.SetDefault("server.allow_insecure_dev", false)
	viper.SetDefault("storage.base_path", defaults.Storage.BasePath)
	viper.SetDefault("storage.max_artifact_bytes", defaults.Storage.MaxArtifactBytes)
	viper.SetDefault("sinks.filesystem_base", defaults.Sinks.FilesystemBase)
	viper.SetDefault("sinks.http_timeout_seconds", defaults.Sinks.HTTPTimeoutSeconds)
	viper.SetDefault("sinks.enabled", defaults.Sinks.Enabled)
	viper.SetDefault("database.metadata_path", defaults.Database.MetadataPath)
	viper.SetDefault("database.receipts_path", defaults.Database.ReceiptsPath)
	viper.SetDefault("tracing.enabled", defaults.Tracing.Enabled)
	viper.SetDefault("tracing.exporter", defaults.Tracing.Exporter)
	viper.SetDefault("tracing.otlp_endpoint", defaults.Tracing.OTLPEndpoint)
	viper.SetDefault("tracing.sample_rate", defaults.Tracing.SampleRate)

	// Credentials come from the environment so keys stay out of config
	// files checked into dotfile repos.
	_ = viper.BindEnv("server.api_key", "DEPOTGATE_API_KEY")
	_ = viper.BindEnv("server.allow_insecure_dev", "DEPOTGATE_ALLOW_INSECURE_DEV")

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .depotgate/config.yaml (current directory)
		// 2. ~/.config/depotgate/config.yaml (user config)
		if _, err := os.Stat(".depotgate/config.yaml"); err == nil {
			viper.SetConfigFile(".depotgate/config.yaml")
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".config", "depotgate"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		// No config file found anywhere - create default at .depotgate/config.yaml
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			defaultPath := ".depotgate/config.yaml"
			if writeErr := config.WriteDefaultConfig(defaultPath); writeErr == nil {
				viper.SetConfigFile(defaultPath)
				_ = viper.ReadInConfig()
			}
			// If write fails, just continue with defaults (no config file)
		}
	}

	_ = viper.Unmarshal(&cfg)
}

// configFilePath returns the config file viper loaded, or the default
// location when running on pure defaults.
func configFilePath() string {
	if path := viper.ConfigFileUsed(); path != "" {
		return path
	}
	return ".depotgate/config.yaml"
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
