// Command marketdoctor is the CLI entrypoint for the market diagnostics
// engine: a one-shot analytical pass (run), the cron-driven daemon
// (schedule), the outcome evaluator and calibration analyzer run
// on-demand (evaluate, calibrate), and weight-configuration management
// (weights).
//
// Grounded on the teacher's cmd/cryptorun/main.go command-tree construction
// (a cobra root command with subcommands wired to RunE functions, console
// zerolog output installed at startup).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/marketdoctor/internal/application/calibration"
	"github.com/sawpanic/marketdoctor/internal/application/outcome"
	"github.com/sawpanic/marketdoctor/internal/application/pipeline"
	"github.com/sawpanic/marketdoctor/internal/application/scheduler"
	"github.com/sawpanic/marketdoctor/internal/cache"
	applog "github.com/sawpanic/marketdoctor/internal/log"
	"github.com/sawpanic/marketdoctor/internal/config"
	"github.com/sawpanic/marketdoctor/internal/domain/report"
	"github.com/sawpanic/marketdoctor/internal/persistence"
	"github.com/sawpanic/marketdoctor/internal/persistence/postgres"
	"github.com/sawpanic/marketdoctor/internal/telemetry"

	"github.com/prometheus/client_golang/prometheus"
)

const appName = "marketdoctor"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   appName,
		Short: "Market diagnostics engine",
		Long:  "marketdoctor computes phase/trend/structure/derivatives diagnostics for crypto symbols and tracks how they played out.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			applog.Init(cfg.Log.Format)
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (defaults to the built-in configuration)")

	runCmd := &cobra.Command{
		Use:   "run SYMBOL TARGET_TF",
		Short: "Run a single analytical pass for one symbol and target timeframe",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), configPath, args[0], args[1])
		},
	}

	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the cron-driven daemon (analytical passes, outcome evaluation, calibration)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchedule(configPath)
		},
	}

	evaluateCmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run the outcome evaluator (C11) once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluate(cmd.Context(), configPath)
		},
	}

	calibrateCmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Run the calibration analyzer (C12) once and persist its recommendation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCalibrate(cmd.Context(), configPath)
		},
	}

	weightsCmd := &cobra.Command{
		Use:   "weights",
		Short: "Inspect and manage persisted weight configurations",
	}
	weightsListCmd := &cobra.Command{
		Use:   "list",
		Short: "List every persisted weight configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWeightsList(cmd.Context(), configPath)
		},
	}
	weightsActivateCmd := &cobra.Command{
		Use:   "activate NAME",
		Short: "Activate a named weight configuration, invalidating the score cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWeightsActivate(cmd.Context(), configPath, args[0])
		},
	}
	weightsCmd.AddCommand(weightsListCmd, weightsActivateCmd)

	rootCmd.AddCommand(runCmd, scheduleCmd, evaluateCmd, calibrateCmd, weightsCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.LoadDefault(), nil
	}
	return config.Load(path)
}

// deps bundles every collaborator the application-layer packages need,
// built once per CLI invocation.
type deps struct {
	cfg     *config.Config
	repo    persistence.Repository
	db      *sqlx.DB
	metrics *telemetry.Metrics
}

func buildDeps(cfg *config.Config) (*deps, error) {
	queryTimeout := time.Duration(cfg.Database.QueryTimeoutSeconds) * time.Second
	db, err := postgres.Connect(cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns,
		time.Duration(cfg.Database.ConnMaxLifetimeMinutes)*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("marketdoctor: failed to connect to database: %w", err)
	}

	repo := persistence.Repository{
		Bars:        postgres.NewBarsRepo(db, queryTimeout),
		Diagnostics: postgres.NewDiagnosticsRepo(db, queryTimeout),
		Weights:     postgres.NewWeightsRepo(db, queryTimeout),
	}

	return &deps{
		cfg:     cfg,
		repo:    repo,
		db:      db,
		metrics: telemetry.NewMetrics(prometheus.DefaultRegisterer),
	}, nil
}

func runOnce(ctx context.Context, configPath, symbol, targetTF string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	d, err := buildDeps(cfg)
	if err != nil {
		return err
	}
	defer d.db.Close()

	scoreCache := cache.NewScoreCache(cfg.Cache.MaxEntries, time.Duration(cfg.Cache.TTLSeconds)*time.Second)
	pl, err := pipeline.New(ctx, cfg, d.repo, nil, nil, scoreCache, d.metrics, log.Logger)
	if err != nil {
		return err
	}

	result, err := pl.Run(ctx, symbol, targetTF)
	if err != nil {
		return fmt.Errorf("marketdoctor: pass failed: %w", err)
	}

	fmt.Println(report.Render(result.Report))
	if len(result.Alerts) > 0 {
		fmt.Println("alerts:")
		for _, a := range result.Alerts {
			fmt.Printf("  [%s/%s] %s\n", a.Type, a.Severity, a.Message)
		}
	}
	if len(result.Skipped) > 0 {
		fmt.Printf("skipped timeframes (no bars): %v\n", result.Skipped)
	}
	return nil
}

func runSchedule(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	d, err := buildDeps(cfg)
	if err != nil {
		return err
	}
	defer d.db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scoreCache := cache.NewScoreCache(cfg.Cache.MaxEntries, time.Duration(cfg.Cache.TTLSeconds)*time.Second)
	pl, err := pipeline.New(ctx, cfg, d.repo, nil, nil, scoreCache, d.metrics, log.Logger)
	if err != nil {
		return err
	}
	oe := outcome.NewEvaluator(d.repo.Bars, d.repo.Diagnostics, cfg, nil)
	ca := calibration.NewAnalyzer(d.repo.Diagnostics, cfg)

	sched := scheduler.New(cfg, pl, oe, ca, d.repo.Weights, d.metrics, log.Logger, nil)

	return sched.Start(ctx)
}

func runEvaluate(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	d, err := buildDeps(cfg)
	if err != nil {
		return err
	}
	defer d.db.Close()

	oe := outcome.NewEvaluator(d.repo.Bars, d.repo.Diagnostics, cfg, nil)
	result, err := oe.Run(ctx)
	if err != nil {
		return fmt.Errorf("marketdoctor: evaluate failed: %w", err)
	}
	fmt.Printf("evaluated=%d skipped=%d errored=%d\n", result.Evaluated, result.Skipped, result.Errored)
	return nil
}

func runCalibrate(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	d, err := buildDeps(cfg)
	if err != nil {
		return err
	}
	defer d.db.Close()

	ca := calibration.NewAnalyzer(d.repo.Diagnostics, cfg)
	report, err := ca.Analyze(ctx, persistence.SnapshotFilter{})
	if err != nil {
		return fmt.Errorf("marketdoctor: calibrate failed: %w", err)
	}

	nowMS := time.Now().UnixMilli()
	name := fmt.Sprintf("auto-calibrated-%d", nowMS)
	if err := calibration.PersistRecommendation(ctx, d.repo.Weights, report, cfg, name,
		"generated by `marketdoctor calibrate`", nowMS); err != nil {
		return fmt.Errorf("marketdoctor: failed to persist recommendation: %w", err)
	}

	fmt.Printf("saved configuration %q (inactive) — buckets=%d correlations=%d thresholds=%d\n",
		name, len(report.Buckets), len(report.Correlations), len(report.Thresholds))
	fmt.Println("activate it with: marketdoctor weights activate " + name)
	return nil
}

func runWeightsList(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	d, err := buildDeps(cfg)
	if err != nil {
		return err
	}
	defer d.db.Close()

	configs, err := d.repo.Weights.ListConfigurations(ctx)
	if err != nil {
		return fmt.Errorf("marketdoctor: failed to list weight configurations: %w", err)
	}

	fmt.Printf("%-28s %-8s %-s\n", "NAME", "ACTIVE", "DESCRIPTION")
	for _, c := range configs {
		active := ""
		if c.IsActive {
			active = "yes"
		}
		fmt.Printf("%-28s %-8s %-s\n", c.Name, active, c.Description)
	}
	return nil
}

func runWeightsActivate(ctx context.Context, configPath, name string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	d, err := buildDeps(cfg)
	if err != nil {
		return err
	}
	defer d.db.Close()

	found, err := d.repo.Weights.SetActive(ctx, name)
	if err != nil {
		return fmt.Errorf("marketdoctor: failed to activate %q: %w", name, err)
	}
	if !found {
		return fmt.Errorf("marketdoctor: no weight configuration named %q", name)
	}

	// Build a fresh scoring engine and drive it through the same reload path
	// the scheduler uses, proving the new active configuration actually
	// loads (spec §4.6/§4.10/§4.12) rather than just flipping a DB row.
	scoreCache := cache.NewScoreCache(cfg.Cache.MaxEntries, time.Duration(cfg.Cache.TTLSeconds)*time.Second)
	pl, err := pipeline.New(ctx, cfg, d.repo, nil, nil, scoreCache, d.metrics, log.Logger)
	if err != nil {
		return fmt.Errorf("marketdoctor: failed to rebuild scoring engine after activation: %w", err)
	}
	if _, err := pl.ReloadWeights(ctx); err != nil {
		return fmt.Errorf("marketdoctor: activated %q but failed to reload it into the scoring engine: %w", name, err)
	}

	fmt.Printf("activated %q — any running `marketdoctor schedule` daemon picks this up automatically at the start of its next pass round, invalidating its score cache then\n", name)
	return nil
}
