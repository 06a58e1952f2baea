package cmd

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zjrosen/depotgate/internal/config"
)

var sinksCmd = &cobra.Command{
	Use:   "sinks",
	Short: "Manage enabled destination schemes",
	Long: `List, enable, or disable the destination schemes this instance
ships to. Deliverables declared against a disabled scheme are rejected
at declaration time.`,
	RunE: runSinksList,
}

var sinksEnableCmd = &cobra.Command{
	Use:   "enable <scheme>",
	Short: "Enable a destination scheme",
	Args:  cobra.ExactArgs(1),
	RunE:  runSinksEnable,
}

var sinksDisableCmd = &cobra.Command{
	Use:   "disable <scheme>",
	Short: "Disable a destination scheme",
	Args:  cobra.ExactArgs(1),
	RunE:  runSinksDisable,
}

func init() {
	rootCmd.AddCommand(sinksCmd)
	sinksCmd.AddCommand(sinksEnableCmd)
	sinksCmd.AddCommand(sinksDisableCmd)
}

func runSinksList(_ *cobra.Command, _ []string) error {
	enabled := cfg.Sinks.Enabled
	if len(enabled) == 0 {
		fmt.Println("No sinks enabled")
		return nil
	}
	fmt.Printf("Enabled sinks: %s\n", strings.Join(enabled, ", "))
	return nil
}

func runSinksEnable(_ *cobra.Command, args []string) error {
	scheme := args[0]
	if err := config.ValidateSinks(config.SinkConfig{Enabled: []string{scheme}}); err != nil {
		return err
	}

	if slices.Contains(cfg.Sinks.Enabled, scheme) {
		fmt.Printf("Sink %q already enabled\n", scheme)
		return nil
	}

	enabled := append(slices.Clone(cfg.Sinks.Enabled), scheme)
	if err := config.SaveEnabledSinks(configFilePath(), enabled); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("Enabled sink %q\n", scheme)
	return nil
}

func runSinksDisable(_ *cobra.Command, args []string) error {
	scheme := args[0]

	if !slices.Contains(cfg.Sinks.Enabled, scheme) {
		fmt.Printf("Sink %q is not enabled\n", scheme)
		return nil
	}

	enabled := slices.DeleteFunc(slices.Clone(cfg.Sinks.Enabled), func(s string) bool {
		return s == scheme
	})
	if err := config.SaveEnabledSinks(configFilePath(), enabled); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("Disabled sink %q\n", scheme)
	return nil
}
