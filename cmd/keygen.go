package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/depotgate/internal/api"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a new API key",
	Long: `Generate a random API key for the HTTP API. Store it in
DEPOTGATE_API_KEY (or server.api_key) on the server and present it as
"Authorization: Bearer <key>" or the X-API-Key header from clients.`,
	RunE: runKeygen,
}

func init() {
	rootCmd.AddCommand(keygenCmd)
}

func runKeygen(cmd *cobra.Command, args []string) error {
	key, err := api.GenerateAPIKey()
	if err != nil {
		return err
	}
	fmt.Println(key)
	return nil
}
