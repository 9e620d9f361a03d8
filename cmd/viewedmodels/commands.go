package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/joshbrooks/viewedmodels"
	"github.com/joshbrooks/viewedmodels/internal/formatter"
	"github.com/joshbrooks/viewedmodels/internal/logging"
	"github.com/joshbrooks/viewedmodels/internal/runner"
	"github.com/joshbrooks/viewedmodels/internal/views"
	"github.com/joshbrooks/viewedmodels/internal/watch"
)

var (
	outputFile   string
	outputDir    string
	outputFormat string
	dialectName  string
	minAge       time.Duration
	statsTarget  int
)

var recreateCmd = &cobra.Command{
	Use:   "recreate",
	Short: "Drop and recreate every view in dependency order",
	Args:  cobra.NoArgs,
	RunE:  runRecreate,
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the statements recreate would run, without a database",
	Args:  cobra.NoArgs,
	RunE:  runPlan,
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh materialized views in dependency order",
	Args:  cobra.NoArgs,
	RunE:  runRefresh,
}

var vacuumCmd = &cobra.Command{
	Use:   "vacuum",
	Short: "VACUUM ANALYZE materialized views",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMaintenance(cmd, func(ctx context.Context, r *runner.Runner) (*runner.Result, error) {
			return r.Vacuum(ctx)
		})
	},
}

var setStatisticsCmd = &cobra.Command{
	Use:   "set-statistics",
	Short: "Set the planner statistics target on materialized view fields",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMaintenance(cmd, func(ctx context.Context, r *runner.Runner) (*runner.Result, error) {
			return r.SetStatistics(ctx, statsTarget)
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Compare definitions with the views in the database",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Recreate views whenever the definitions change",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

func init() {
	planCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	planCmd.Flags().StringVarP(&outputDir, "output-dir", "d", "", "Output directory for one file per view")
	planCmd.Flags().StringVar(&outputFormat, "format", "sql", "Output format: sql or markdown")
	planCmd.Flags().StringVar(&dialectName, "dialect", "", "postgres, mysql or sqlite (default: from the database URL, else postgres)")

	refreshCmd.Flags().DurationVar(&minAge, "min-age", 0, "Skip views refreshed more recently than this")
	setStatisticsCmd.Flags().IntVar(&statsTarget, "target", runner.DefaultStatisticsTarget, "Statistics target")

	rootCmd.AddCommand(recreateCmd, planCmd, refreshCmd, vacuumCmd, setStatisticsCmd, statusCmd, watchCmd)
}

func runRecreate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	loaded, database, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer closeDatabase(database)

	return recreate(ctx, cmd.OutOrStdout(), loaded.Registry, database)
}

func recreate(ctx context.Context, w io.Writer, reg *views.Registry, database viewedmodels.Database) error {
	result, err := runner.New(database, reg, runnerOptions()).Recreate(ctx)
	if result != nil && result.DryRun {
		f := formatter.NewTextFormatter(w)
		f.Transaction = cfg.Transactional
		return f.FormatPlan(result.Plan)
	}
	if result != nil {
		printResult(w, "recreated", result)
	}
	return err
}

func runPlan(cmd *cobra.Command, args []string) error {
	loaded, err := viewedmodels.LoadDefinitions(cfg.Definitions)
	if err != nil {
		return fmt.Errorf("failed to load definitions: %w", err)
	}

	d, err := resolveDialect(dialectName, cfg.DatabaseURL)
	if err != nil {
		return err
	}

	plan, err := runner.BuildPlan(loaded.Registry, d, runnerOptions())
	if err != nil {
		return err
	}

	if outputDir != "" && outputFile != "" {
		return fmt.Errorf("cannot use both --output-dir and --output flags")
	}

	// Multi-file output
	if outputDir != "" {
		if err := formatter.NewMultiFileFormatter(outputDir, outputFormat).Format(plan); err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}
		return nil
	}

	writer := cmd.OutOrStdout()
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer func() {
			if err := f.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to close output file: %v\n", err)
			}
		}()
		writer = f
	}

	switch outputFormat {
	case "sql":
		f := formatter.NewTextFormatter(writer)
		f.Transaction = cfg.Transactional
		err = f.FormatPlan(plan)
	case "markdown":
		defs := make([]views.Definition, len(plan.Views))
		for i, v := range plan.Views {
			defs[i] = v.Definition
		}
		err = formatter.NewMarkdownFormatter(writer, d).Format(defs)
	default:
		return fmt.Errorf("invalid format: %s (must be 'sql' or 'markdown')", outputFormat)
	}
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	return nil
}

func runRefresh(cmd *cobra.Command, args []string) error {
	return runMaintenance(cmd, func(ctx context.Context, r *runner.Runner) (*runner.Result, error) {
		return r.Refresh(ctx, minAge)
	})
}

func runMaintenance(cmd *cobra.Command, op func(context.Context, *runner.Runner) (*runner.Result, error)) error {
	ctx := cmd.Context()
	loaded, database, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer closeDatabase(database)

	result, err := op(ctx, runner.New(database, loaded.Registry, runnerOptions()))
	if result != nil && result.DryRun {
		if ferr := formatter.NewTextFormatter(cmd.OutOrStdout()).Format(result.Steps); ferr != nil {
			return ferr
		}
	} else if result != nil {
		printResult(cmd.OutOrStdout(), string(result.Op), result)
	}
	return err
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	loaded, database, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer closeDatabase(database)

	statuses, err := runner.New(database, loaded.Registry, runnerOptions()).Status(ctx)
	if err != nil {
		return err
	}

	now, err := database.Now(ctx)
	if err != nil {
		now = time.Now()
	}
	return formatter.NewStatusFormatter(cmd.OutOrStdout(), now).Format(statuses)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reload := func() error {
		loaded, database, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer closeDatabase(database)
		return recreate(ctx, cmd.OutOrStdout(), loaded.Registry, database)
	}

	if err := reload(); err != nil {
		logging.Error("initial recreate failed", "error", err.Error())
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	fw, err := watch.NewFileWatcher(cfg.Definitions, reload)
	if err != nil {
		return err
	}
	fw.Start()
	defer fw.Stop()

	fmt.Fprintf(cmd.OutOrStdout(), "watching %s (Ctrl+C to stop)\n", cfg.Definitions)
	<-ctx.Done()
	return nil
}

// resolveDialect picks the SQL dialect for offline planning
func resolveDialect(name, databaseURL string) (views.Dialect, error) {
	if name == "" {
		switch {
		case strings.HasPrefix(databaseURL, "mysql://"):
			return views.MySQL, nil
		case strings.HasPrefix(databaseURL, "sqlite://"):
			return views.SQLite, nil
		default:
			return views.Postgres, nil
		}
	}

	switch d := views.Dialect(strings.ToLower(name)); d {
	case views.Postgres, views.MySQL, views.SQLite:
		return d, nil
	default:
		return "", fmt.Errorf("invalid dialect: %s (must be postgres, mysql or sqlite)", name)
	}
}

func printResult(w io.Writer, verb string, result *runner.Result) {
	_, _ = fmt.Fprintf(w, "%s %d view(s) in %s\n", verb, len(result.Done), result.Elapsed.Round(time.Millisecond))
	if len(result.Skipped) > 0 {
		_, _ = fmt.Fprintf(w, "skipped: %s\n", strings.Join(result.Skipped, ", "))
	}
	for _, f := range result.Failures {
		_, _ = fmt.Fprintf(w, "failed: %s (%s): %v\n", f.View, f.Op, f.Err)
	}
}
