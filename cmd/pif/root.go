package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pifworks/pif-pipeline/config"
	"github.com/pifworks/pif-pipeline/pipeline"
	"github.com/pifworks/pif-pipeline/store/sqlite"
	"github.com/pifworks/pif-pipeline/validation"
)

// app holds state shared by every subcommand, filled in by
// PersistentPreRunE.
type app struct {
	configPath string
	dbPath     string
	logLevel   string

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "pif",
		Short:         "Project Information Form pipeline",
		Long:          "Validates PIF submissions and moves them through staging, inflight and approved.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "pif.yaml", "config file (optional)")
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "SQLite database path (overrides config)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (overrides config)")

	root.AddCommand(
		newServeCmd(a),
		newValidateCmd(a),
		newSubmitCmd(a),
		newPromoteCmd(a),
		newReportCmd(a),
		newPeriodCmd(a),
		newMigrateCmd(a),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.dbPath != "" {
		cfg.Database.Path = a.dbPath
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

// openStore opens the configured database, running migrations.
func (a *app) openStore() (*sqlite.Store, error) {
	store, err := sqlite.New(a.cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", a.cfg.Database.Path, err)
	}
	return store, nil
}

// openService opens the store and wires a pipeline service on top of it.
// The caller must close the returned store.
func (a *app) openService() (*pipeline.Service, *sqlite.Store, error) {
	engine, err := validation.New(a.cfg.ValidationOptions())
	if err != nil {
		return nil, nil, err
	}
	store, err := a.openStore()
	if err != nil {
		return nil, nil, err
	}
	return pipeline.NewService(store, engine, a.cfg.PeriodProvider(), a.logger), store, nil
}
