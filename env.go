package lumetric

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ConfigFile is the name of the optional YAML configuration file, looked
// up in the working directory and in $HOME/.lumetric/.
const ConfigFile = "lumetric.yaml"

// ConfigFromEnv builds a Config from LUMETRIC_* environment variables and,
// when present, a lumetric.yaml config file. Environment variables win over
// the file, the file over built-in defaults.
func ConfigFromEnv() (*Config, error) {
	v := viper.New()

	v.SetDefault("host", DefaultHost)
	v.SetDefault("project_name", "")
	v.SetDefault("workspace", "")
	v.SetDefault("enabled", true)
	v.SetDefault("flush_at", 20)
	v.SetDefault("flush_interval", "5s")
	v.SetDefault("max_retries", 3)
	v.SetDefault("timeout", "10s")
	v.SetDefault("max_queue_size", DefaultMaxQueueSize)
	v.SetDefault("rate_limit", 50)
	v.SetDefault("rate_burst", 100)

	v.SetEnvPrefix("lumetric")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName(strings.TrimSuffix(ConfigFile, filepath.Ext(ConfigFile)))
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".lumetric"))
	}

	// A missing config file is not an error; env vars alone are enough.
	_ = v.ReadInConfig()

	flushInterval, err := time.ParseDuration(v.GetString("flush_interval"))
	if err != nil {
		flushInterval = 5 * time.Second
	}
	timeout, err := time.ParseDuration(v.GetString("timeout"))
	if err != nil {
		timeout = 10 * time.Second
	}

	enabled := v.GetBool("enabled")

	cfg := &Config{
		APIKey:        v.GetString("api_key"),
		Host:          v.GetString("host"),
		ProjectName:   v.GetString("project_name"),
		Workspace:     v.GetString("workspace"),
		Enabled:       &enabled,
		FlushAt:       v.GetInt("flush_at"),
		FlushInterval: flushInterval,
		MaxRetries:    v.GetInt("max_retries"),
		Timeout:       timeout,
		MaxQueueSize:  v.GetInt("max_queue_size"),
		RateLimit:     v.GetFloat64("rate_limit"),
		RateBurst:     v.GetInt("rate_burst"),
	}

	return cfg, nil
}

// NewFromEnv creates a client configured from the environment. See
// ConfigFromEnv for the lookup order.
func NewFromEnv() (*Client, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return New(*cfg), nil
}
