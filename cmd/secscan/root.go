package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/Amicidal/sigmachad-sub001/internal/config"
	"github.com/Amicidal/sigmachad-sub001/internal/domain/interfaces"
	"github.com/Amicidal/sigmachad-sub001/internal/external-adapters/logging"
)

// errBlocked is returned when a scan fails or violates a blocking policy.
// The result has already been printed.
var errBlocked = errors.New("scan blocked")

type rootOptions struct {
	cfgFile  string
	debug    bool
	logLevel string
	jsonLogs bool
	// projectDir roots suppress commands that take no path argument
	projectDir string

	cfg    *config.Configuration
	logger *logging.ZapLogger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "secscan",
		Short: "Incremental static analysis and dependency vulnerability scanner",
		Long: `secscan scans source trees for insecure code patterns, leaked secrets
and vulnerable dependencies, applies security policies and suppressions, and
remembers file checksums so later scans only re-analyze what changed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.init(cmd)
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.cfgFile, "config", "", "config file (default is ./secscan.yaml or $XDG_CONFIG_HOME/secscan/secscan.yaml)")
	flags.BoolVar(&opts.debug, "debug", false, "enable development logging")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.BoolVar(&opts.jsonLogs, "log-json", false, "emit logs as JSON")

	rootCmd.AddCommand(
		newScanCmd(opts),
		newWatchCmd(opts),
		newRulesCmd(opts),
		newSuppressCmd(opts),
		newHistoryCmd(opts),
		newSBOMCmd(opts),
	)
	return rootCmd
}

func (o *rootOptions) init(cmd *cobra.Command) error {
	cfg, used, err := config.Load(o.cfgFile)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("debug") {
		cfg.Logging.Debug = o.debug
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = o.logLevel
	}
	if flags.Changed("log-json") {
		cfg.Logging.JSON = o.jsonLogs
	}

	logger, err := logging.New(logging.Config{
		Debug: cfg.Logging.Debug,
		Level: cfg.Logging.Level,
		JSON:  cfg.Logging.JSON,
	})
	if err != nil {
		return err
	}

	if used != "" {
		logger.Debug("using config file", interfaces.F("path", used))
	}
	o.cfg = cfg
	o.logger = logger
	return nil
}
