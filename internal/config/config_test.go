package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/joshbrooks/viewedmodels/internal/runner"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "viewedmodels.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvDatabaseURL, EnvDefinitions, EnvSchema, EnvPolicy, EnvLogLevel, EnvTimeout} {
		t.Setenv(key, "")
	}
	// keep LoadConfig away from a stray ./viewedmodels.yaml or ./.env
	t.Chdir(t.TempDir())
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig(CLIFlags{})
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if !cfg.Transactional || cfg.Parallel != 1 || cfg.Policy != string(runner.FailFast) {
		t.Errorf("Unexpected defaults: %+v", cfg)
	}
	if cfg.Definitions != "views.yaml" || cfg.LogLevel != "warn" {
		t.Errorf("Unexpected defaults: %+v", cfg)
	}
}

func TestLoadConfig_Priority(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
database_url: postgres://file/db
schema: file_schema
policy: best-effort
transactional: false
parallel: 4
timeout: 30s
`)
	t.Setenv(EnvSchema, "env_schema")
	t.Setenv(EnvTimeout, "90")

	cfg, err := LoadConfig(CLIFlags{
		ConfigFile:    path,
		ConfigFileSet: true,
		Parallel:      2,
		ParallelSet:   true,
	})
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"database_url from file", cfg.DatabaseURL, "postgres://file/db"},
		{"schema from env", cfg.Schema, "env_schema"},
		{"timeout from env", cfg.Timeout, 90 * time.Second},
		{"parallel from flag", cfg.Parallel, 2},
		{"transactional from file", cfg.Transactional, false},
		{"definitions default", cfg.Definitions, "views.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}

	opts := cfg.Options()
	if opts.Policy != runner.BestEffort || opts.Parallel != 2 || opts.Transactional {
		t.Errorf("Unexpected options: %+v", opts)
	}
}

func TestLoadConfig_EnvFile(t *testing.T) {
	clearEnv(t)
	// godotenv does not override variables that are already set
	os.Unsetenv(EnvDatabaseURL)
	t.Cleanup(func() { os.Unsetenv(EnvDatabaseURL) })

	envPath := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(envPath, []byte(EnvDatabaseURL+"=sqlite://from-env-file.db\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(CLIFlags{EnvFile: envPath})
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.DatabaseURL != "sqlite://from-env-file.db" {
		t.Errorf("Expected database URL from env file, got %q", cfg.DatabaseURL)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		flags   CLIFlags
		wantErr string
	}{
		{name: "bad policy", content: "policy: sometimes\n", wantErr: "unknown policy"},
		{name: "bad parallel", content: "parallel: 0\n", wantErr: "parallel"},
		{name: "bad log level", content: "log_level: loud\n", wantErr: "log level"},
		{name: "bad yaml", content: "parallel: [\n", wantErr: "failed to parse YAML"},
		{name: "missing explicit file", flags: CLIFlags{ConfigFile: "/nonexistent/viewedmodels.yaml", ConfigFileSet: true}, wantErr: "failed to load config file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			flags := tt.flags
			if tt.content != "" {
				flags.ConfigFile = writeConfig(t, tt.content)
				flags.ConfigFileSet = true
			}

			_, err := LoadConfig(flags)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
