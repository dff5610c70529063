package cli

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	lumetric "github.com/lumetric/lumetric-go"
)

const healthPath = "/api/public/health"

var healthcheckTimeout time.Duration

var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Verify the backend is reachable with the current credentials",
	RunE:  runHealthcheck,
}

func init() {
	healthcheckCmd.Flags().DurationVar(&healthcheckTimeout, "timeout", 10*time.Second, "request timeout")
}

func runHealthcheck(cmd *cobra.Command, args []string) error {
	h := getHost()
	if h == "" {
		cfg, err := lumetric.ConfigFromEnv()
		if err != nil {
			return err
		}
		h = cfg.Host
	}

	req, err := http.NewRequest(http.MethodGet, h+healthPath, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if key := getAPIKey(); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	client := &http.Client{Timeout: healthcheckTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("backend unreachable at %s: %w", h, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("backend at %s returned status %d", h, resp.StatusCode)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Backend at %s is healthy\n", h)
	return nil
}
