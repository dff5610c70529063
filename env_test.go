package lumetric

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfigFromEnv(t *testing.T) {
	t.Run("reads environment variables", func(t *testing.T) {
		t.Setenv("LUMETRIC_API_KEY", "env-key")
		t.Setenv("LUMETRIC_HOST", "https://env.example.com")
		t.Setenv("LUMETRIC_PROJECT_NAME", "env-project")
		t.Setenv("LUMETRIC_WORKSPACE", "team-a")
		t.Setenv("LUMETRIC_FLUSH_AT", "7")
		t.Setenv("LUMETRIC_FLUSH_INTERVAL", "2s")

		cfg, err := ConfigFromEnv()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.APIKey != "env-key" {
			t.Errorf("expected API key from env, got '%s'", cfg.APIKey)
		}
		if cfg.Host != "https://env.example.com" {
			t.Errorf("expected host from env, got '%s'", cfg.Host)
		}
		if cfg.ProjectName != "env-project" {
			t.Errorf("expected project from env, got '%s'", cfg.ProjectName)
		}
		if cfg.Workspace != "team-a" {
			t.Errorf("expected workspace from env, got '%s'", cfg.Workspace)
		}
		if cfg.FlushAt != 7 {
			t.Errorf("expected FlushAt 7, got %d", cfg.FlushAt)
		}
		if cfg.FlushInterval != 2*time.Second {
			t.Errorf("expected FlushInterval 2s, got %v", cfg.FlushInterval)
		}
	})

	t.Run("applies defaults when nothing is set", func(t *testing.T) {
		t.Setenv("LUMETRIC_API_KEY", "")
		t.Chdir(t.TempDir())

		cfg, err := ConfigFromEnv()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.Host != DefaultHost {
			t.Errorf("expected default host, got '%s'", cfg.Host)
		}
		if cfg.FlushAt != 20 {
			t.Errorf("expected default FlushAt, got %d", cfg.FlushAt)
		}
		if cfg.Enabled == nil || !*cfg.Enabled {
			t.Error("expected tracing enabled by default")
		}
		if cfg.MaxQueueSize != DefaultMaxQueueSize {
			t.Errorf("expected default queue size, got %d", cfg.MaxQueueSize)
		}
	})

	t.Run("reads the config file with env taking precedence", func(t *testing.T) {
		dir := t.TempDir()
		content := []byte("api_key: file-key\nhost: https://file.example.com\nproject_name: file-project\n")
		if err := os.WriteFile(filepath.Join(dir, ConfigFile), content, 0o600); err != nil {
			t.Fatalf("failed to write config file: %v", err)
		}
		t.Chdir(dir)

		t.Setenv("LUMETRIC_HOST", "https://env-wins.example.com")

		cfg, err := ConfigFromEnv()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.APIKey != "file-key" {
			t.Errorf("expected API key from file, got '%s'", cfg.APIKey)
		}
		if cfg.ProjectName != "file-project" {
			t.Errorf("expected project from file, got '%s'", cfg.ProjectName)
		}
		if cfg.Host != "https://env-wins.example.com" {
			t.Errorf("expected env to win over file, got '%s'", cfg.Host)
		}
	})

	t.Run("invalid durations fall back to defaults", func(t *testing.T) {
		t.Setenv("LUMETRIC_FLUSH_INTERVAL", "not-a-duration")
		t.Setenv("LUMETRIC_TIMEOUT", "also-bad")

		cfg, err := ConfigFromEnv()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.FlushInterval != 5*time.Second {
			t.Errorf("expected fallback FlushInterval, got %v", cfg.FlushInterval)
		}
		if cfg.Timeout != 10*time.Second {
			t.Errorf("expected fallback Timeout, got %v", cfg.Timeout)
		}
	})
}
