// Package cli implements the lumetric command line tool.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.2.0"

	// Global flags
	apiKey string
	host   string
)

var rootCmd = &cobra.Command{
	Use:   "lumetric",
	Short: "Lumetric CLI - LLM observability from the command line",
	Long: `Lumetric CLI manages local SDK configuration and checks backend health.

Commands:
  configure   - Write the lumetric.yaml configuration file
  healthcheck - Verify the backend is reachable with the current credentials

Example:
  lumetric configure --api-key sk-... --project my-project
  lumetric healthcheck`,
	Version: Version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "Lumetric API key (or set LUMETRIC_API_KEY)")
	rootCmd.PersistentFlags().StringVar(&host, "host", "", "Lumetric API host (or set LUMETRIC_HOST)")

	rootCmd.AddCommand(configureCmd)
	rootCmd.AddCommand(healthcheckCmd)
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// getAPIKey returns the API key from flag or environment.
func getAPIKey() string {
	if apiKey != "" {
		return apiKey
	}
	return os.Getenv("LUMETRIC_API_KEY")
}

// getHost returns the host from flag or environment, empty when unset.
func getHost() string {
	if host != "" {
		return host
	}
	return os.Getenv("LUMETRIC_HOST")
}
