package cli

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	lumetric "github.com/lumetric/lumetric-go"
)

var (
	configureProject   string
	configureWorkspace string
)

// fileConfig is the subset of settings persisted to lumetric.yaml.
type fileConfig struct {
	APIKey      string `yaml:"api_key"`
	Host        string `yaml:"host"`
	ProjectName string `yaml:"project_name,omitempty"`
	Workspace   string `yaml:"workspace,omitempty"`
}

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Write the lumetric.yaml configuration file",
	Long: `Configure writes API credentials and defaults to
$HOME/.lumetric/lumetric.yaml, where the SDK picks them up.

Values come from flags when given; the API key is prompted for otherwise.`,
	RunE: runConfigure,
}

func init() {
	configureCmd.Flags().StringVar(&configureProject, "project", "", "default project name")
	configureCmd.Flags().StringVar(&configureWorkspace, "workspace", "", "workspace name")
}

func runConfigure(cmd *cobra.Command, args []string) error {
	key := getAPIKey()
	if key == "" {
		fmt.Fprint(cmd.OutOrStdout(), "API key: ")
		reader := bufio.NewReader(cmd.InOrStdin())
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read API key: %w", err)
		}
		key = strings.TrimSpace(line)
	}
	if key == "" {
		return fmt.Errorf("an API key is required")
	}

	h := getHost()
	if h == "" {
		h = lumetric.DefaultHost
	}

	cfg := fileConfig{
		APIKey:      key,
		Host:        h,
		ProjectName: configureProject,
		Workspace:   configureWorkspace,
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to render config: %w", err)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to locate home directory: %w", err)
	}

	dir := filepath.Join(home, ".lumetric")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	path := filepath.Join(dir, lumetric.ConfigFile)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
	return nil
}
