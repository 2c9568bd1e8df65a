package cli

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/me/cwl2nf/internal/config"
	"github.com/me/cwl2nf/internal/logging"
)

var (
	flagConfig    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string
	flagDB        string

	cfg    config.Config
	logger *slog.Logger
)

// NewRootCmd creates the root cobra command for the cwl2nf CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cwl2nf",
		Short: "cwl2nf converts CWL workflows to Nextflow pipelines",
		Long: "cwl2nf converts CWL workflows into Nextflow DSL2 pipelines and configs,\n" +
			"optionally augmented for AWS HealthOmics, and scores the result.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(flagConfig)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				loaded.Log.Level = flagLogLevel
			}
			if cmd.Flags().Changed("log-format") {
				loaded.Log.Format = flagLogFormat
			}
			if flagDB != "" {
				loaded.Store.Path = flagDB
			}
			cfg = loaded
			logger = logging.NewWithWriter(logging.Options{
				Level:  cfg.Log.Level,
				Format: cfg.Log.Format,
				Debug:  flagDebug,
			}, cmd.ErrOrStderr())
			logger.Debug("config loaded", "path", flagConfig, "store", cfg.Store.Path)
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (YAML, JSON or TOML); CWL2NF_* env vars override it")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")
	root.PersistentFlags().StringVar(&flagDB, "db", "", "SQLite conversion history path (default: store.path from config, disabled when empty)")

	root.AddCommand(
		newConvertCmd(),
		newBatchCmd(),
		newValidateCmd(),
		newTiersCmd(),
		newServeCmd(),
		newHistoryCmd(),
	)

	return root
}

// errFailed is returned after a command has already reported its failure.
var errFailed = errors.New("command failed")
