package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/joshbrooks/viewedmodels/internal/logging"
	"github.com/joshbrooks/viewedmodels/internal/runner"
)

// Environment variables read by LoadConfig
const (
	EnvDatabaseURL = "VIEWEDMODELS_DATABASE_URL"
	EnvDefinitions = "VIEWEDMODELS_DEFINITIONS"
	EnvSchema      = "VIEWEDMODELS_SCHEMA"
	EnvPolicy      = "VIEWEDMODELS_POLICY"
	EnvLogLevel    = logging.EnvLogLevel
	EnvTimeout     = "VIEWEDMODELS_TIMEOUT"
)

// DefaultConfigFile is looked up when no --config flag is given
const DefaultConfigFile = "viewedmodels.yaml"

// Config holds the settings shared by every command
type Config struct {
	DatabaseURL   string        `yaml:"database_url"`
	Definitions   string        `yaml:"definitions"`
	Schema        string        `yaml:"schema"`
	Policy        string        `yaml:"policy"`
	Transactional bool          `yaml:"transactional"`
	Cascade       bool          `yaml:"cascade"`
	Parallel      int           `yaml:"parallel"`
	Timeout       time.Duration `yaml:"timeout"`
	CheckTables   bool          `yaml:"check_tables"`
	LogLevel      string        `yaml:"log_level"`
}

// CLIFlags represents command line flag values and whether they were explicitly set
type CLIFlags struct {
	ConfigFileSet bool
	ConfigFile    string
	EnvFile       string

	DatabaseURL      string
	DatabaseURLSet   bool
	Definitions      string
	DefinitionsSet   bool
	Schema           string
	SchemaSet        bool
	Policy           string
	PolicySet        bool
	Transactional    bool
	TransactionalSet bool
	Cascade          bool
	CascadeSet       bool
	Parallel         int
	ParallelSet      bool
	Timeout          time.Duration
	TimeoutSet       bool
	CheckTables      bool
	CheckTablesSet   bool
	LogLevel         string
	LogLevelSet      bool
}

// LoadConfig loads configuration with proper priority:
// 1. Command line flags (highest priority)
// 2. Environment variables, including those from a .env file
// 3. Configuration file
// 4. Hard-coded defaults (lowest priority)
func LoadConfig(flags CLIFlags) (*Config, error) {
	if err := loadEnvFile(flags.EnvFile); err != nil {
		return nil, err
	}

	cfg := defaultConfig()

	configPath := flags.ConfigFile
	if configPath == "" {
		configPath = DefaultConfigFile
	}
	if err := loadConfigFile(configPath, cfg); err != nil {
		// If file was explicitly specified, error out
		if flags.ConfigFileSet || !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := applyEnvironmentVariables(cfg); err != nil {
		return nil, err
	}
	applyCLIFlags(cfg, flags)

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Options converts the configuration into runner options
func (c *Config) Options() runner.Options {
	policy, _ := runner.ParsePolicy(c.Policy)
	return runner.Options{
		Policy:        policy,
		Transactional: c.Transactional,
		Cascade:       c.Cascade,
		Parallel:      c.Parallel,
		Timeout:       c.Timeout,
		CheckTables:   c.CheckTables,
	}
}

func defaultConfig() *Config {
	return &Config{
		Definitions:   "views.yaml",
		Policy:        string(runner.FailFast),
		Transactional: true,
		Parallel:      1,
		LogLevel:      "warn",
	}
}

// loadEnvFile loads a .env file. A missing default .env is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		_ = godotenv.Load()
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// loadConfigFile decodes a YAML file over cfg; keys absent from the file
// keep their current values
func loadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

func applyEnvironmentVariables(cfg *Config) error {
	if v := os.Getenv(EnvDatabaseURL); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv(EnvDefinitions); v != "" {
		cfg.Definitions = v
	}
	if v := os.Getenv(EnvSchema); v != "" {
		cfg.Schema = v
	}
	if v := os.Getenv(EnvPolicy); v != "" {
		cfg.Policy = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(EnvTimeout); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvTimeout, err)
		}
		cfg.Timeout = d
	}
	return nil
}

// parseDuration accepts Go durations ("90s") or a plain number of seconds
func parseDuration(s string) (time.Duration, error) {
	if secs, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(s)
}

func applyCLIFlags(cfg *Config, flags CLIFlags) {
	if flags.DatabaseURLSet {
		cfg.DatabaseURL = flags.DatabaseURL
	}
	if flags.DefinitionsSet {
		cfg.Definitions = flags.Definitions
	}
	if flags.SchemaSet {
		cfg.Schema = flags.Schema
	}
	if flags.PolicySet {
		cfg.Policy = flags.Policy
	}
	if flags.TransactionalSet {
		cfg.Transactional = flags.Transactional
	}
	if flags.CascadeSet {
		cfg.Cascade = flags.Cascade
	}
	if flags.ParallelSet {
		cfg.Parallel = flags.Parallel
	}
	if flags.TimeoutSet {
		cfg.Timeout = flags.Timeout
	}
	if flags.CheckTablesSet {
		cfg.CheckTables = flags.CheckTables
	}
	if flags.LogLevelSet {
		cfg.LogLevel = flags.LogLevel
	}
}

func validateConfig(cfg *Config) error {
	if _, err := runner.ParsePolicy(cfg.Policy); err != nil {
		return err
	}
	if _, err := logging.ParseLevel(cfg.LogLevel); err != nil {
		return err
	}
	if cfg.Parallel < 1 {
		return fmt.Errorf("parallel must be at least 1, got %d", cfg.Parallel)
	}
	if cfg.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	return nil
}
