package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/joshbrooks/viewedmodels"
	"github.com/joshbrooks/viewedmodels/internal/config"
	"github.com/joshbrooks/viewedmodels/internal/logging"
	"github.com/joshbrooks/viewedmodels/internal/runner"
)

var (
	dbURL         string
	mysqlURL      string
	sqlitePath    string
	configFile    string
	envFile       string
	definitions   string
	schemaName    string
	apps          string
	logLevel      string
	policy        string
	transactional bool
	cascade       bool
	parallel      int
	timeout       time.Duration
	checkTables   bool
	dryRun        bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "viewedmodels",
	Short: "Recreate database views in dependency order",
	Long: `viewedmodels keeps SQL views and materialized views declared in a YAML file
and (re)creates, refreshes and maintains them in dependency order on PostgreSQL,
MySQL or SQLite. Run "viewedmodels recreate" after your migrations.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&dbURL, "db-url", "", "PostgreSQL connection string")
	flags.StringVar(&mysqlURL, "mysql-url", "", "MySQL connection string")
	flags.StringVar(&sqlitePath, "sqlite", "", "SQLite database file path")
	flags.StringVar(&configFile, "config", "", "Config file (default: ./"+config.DefaultConfigFile+" if present)")
	flags.StringVar(&envFile, "env-file", "", "Env file to load (default: ./.env if present)")
	flags.StringVarP(&definitions, "definitions", "f", "views.yaml", "View definitions file")
	flags.StringVarP(&schemaName, "schema", "s", "", "Database schema name (default: public for PostgreSQL)")
	flags.StringVarP(&apps, "apps", "a", "", "Only handle views of these apps (comma-separated, optional)")
	flags.StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn or error")
	flags.StringVar(&policy, "policy", "fail-fast", "On failure: fail-fast or best-effort")
	flags.BoolVar(&transactional, "transactional", true, "Run recreate inside one transaction")
	flags.BoolVar(&cascade, "cascade", false, "Append CASCADE to DROP statements")
	flags.IntVarP(&parallel, "parallel", "p", 1, "Views handled concurrently per level (requires --transactional=false)")
	flags.DurationVar(&timeout, "timeout", 0, "Abort after this long (0: no timeout)")
	flags.BoolVar(&checkTables, "check-tables", false, "Verify external tables exist before running")
	flags.BoolVarP(&dryRun, "dry-run", "n", false, "Print statements instead of executing them")
}

// loadConfig merges flags, environment and config file into cfg
func loadConfig(cmd *cobra.Command, args []string) error {
	url, err := databaseURLFromFlags(dbURL, mysqlURL, sqlitePath)
	if err != nil {
		return err
	}

	changed := cmd.Flags().Changed
	cfg, err = config.LoadConfig(config.CLIFlags{
		ConfigFile:       configFile,
		ConfigFileSet:    changed("config"),
		EnvFile:          envFile,
		DatabaseURL:      url,
		DatabaseURLSet:   url != "",
		Definitions:      definitions,
		DefinitionsSet:   changed("definitions"),
		Schema:           schemaName,
		SchemaSet:        changed("schema"),
		Policy:           policy,
		PolicySet:        changed("policy"),
		Transactional:    transactional,
		TransactionalSet: changed("transactional"),
		Cascade:          cascade,
		CascadeSet:       changed("cascade"),
		Parallel:         parallel,
		ParallelSet:      changed("parallel"),
		Timeout:          timeout,
		TimeoutSet:       changed("timeout"),
		CheckTables:      checkTables,
		CheckTablesSet:   changed("check-tables"),
		LogLevel:         logLevel,
		LogLevelSet:      changed("log-level"),
	})
	if err != nil {
		return err
	}

	if err := logging.SetLevel(cfg.LogLevel); err != nil {
		return err
	}
	if cfg.Parallel > 1 && cfg.Transactional {
		fmt.Fprintf(os.Stderr, "warning: --parallel is ignored inside a transaction, use --transactional=false\n")
	}
	return nil
}

// databaseURLFromFlags turns the database flags into one URL
func databaseURLFromFlags(pgURL, myURL, sqlite string) (string, error) {
	dbCount := 0
	for _, v := range []string{pgURL, myURL, sqlite} {
		if v != "" {
			dbCount++
		}
	}
	if dbCount > 1 {
		return "", fmt.Errorf("only one of --db-url, --mysql-url, or --sqlite can be specified")
	}

	switch {
	case pgURL != "":
		return pgURL, nil
	case myURL != "":
		if !strings.HasPrefix(myURL, "mysql://") {
			myURL = "mysql://" + myURL
		}
		return myURL, nil
	case sqlite != "":
		return "sqlite://" + sqlite, nil
	}
	return "", nil
}

// parseList splits a comma-separated flag value, dropping empty items
func parseList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// runnerOptions combines the loaded configuration with per-run flags
func runnerOptions() runner.Options {
	opts := cfg.Options()
	opts.Apps = parseList(apps)
	opts.DryRun = dryRun
	return opts
}

// openSession loads the definitions and connects to the configured database
func openSession(ctx context.Context) (*viewedmodels.Loaded, viewedmodels.Database, error) {
	loaded, err := viewedmodels.LoadDefinitions(cfg.Definitions)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load definitions: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return nil, nil, fmt.Errorf("one of --db-url, --mysql-url, or --sqlite must be specified (or set %s)", config.EnvDatabaseURL)
	}

	schema := cfg.Schema
	if schema == "" {
		schema = loaded.Schema
	}
	database, err := viewedmodels.Open(ctx, cfg.DatabaseURL, schema)
	if err != nil {
		return nil, nil, err
	}
	return loaded, database, nil
}

func closeDatabase(database viewedmodels.Database) {
	if err := database.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to close database connection: %v\n", err)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
