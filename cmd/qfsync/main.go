package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethpandaops/qfsync/pkg/config"
	"github.com/ethpandaops/qfsync/pkg/mapping"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// Version information set at build time.
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	cfgFiles []string
	logLevel string
	log      *logrus.Logger
)

func main() {
	log = logrus.New()
	log.SetOutput(os.Stdout)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	if err := rootCmd.Execute(); err != nil {
		if config.IsConfigurationError(err) {
			log.Fatalf("Invalid configuration: %v", err)
		}

		log.WithError(err).Fatal("Failed to execute command")
	}
}

var rootCmd = &cobra.Command{
	Use:   "qfsync <junit-path>",
	Short: "Sync JUnit test results into a QualityForward test cycle",
	Long: `qfsync reads a JUnit XML report, creates a test cycle in QualityForward
and posts one test result per test case that has a case number mapping.

` + syncLong,
	Args:          cobra.ExactArgs(1),
	RunE:          runSync,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", logLevel, err)
		}

		log.SetLevel(level)

		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "qfsync %s\n", version)
		fmt.Fprintf(cmd.OutOrStdout(), "  commit: %s\n", commit)
		fmt.Fprintf(cmd.OutOrStdout(), "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&cfgFiles, "config", nil,
		"config file path (can be repeated; later files override earlier ones)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", config.DefaultLogLevel,
		"log level ("+strings.Join(logLevels(), ", ")+")")

	rootCmd.AddCommand(versionCmd)
}

func logLevels() []string {
	levels := make([]string, 0, len(logrus.AllLevels))
	for _, level := range logrus.AllLevels {
		levels = append(levels, level.String())
	}

	return levels
}

// loadConfig resolves configuration for cmd and applies the configured
// log level when --log-level was not given explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.Flags(), cfgFiles...)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	level, err := logrus.ParseLevel(cfg.Global.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Global.LogLevel, err)
	}

	log.SetLevel(level)

	return cfg, nil
}

// loadMapping reads the configured mapping file, falling back to the
// built-in sample table.
func loadMapping(cfg *config.Config) (*mapping.Mapper, error) {
	if cfg.MappingFile == "" {
		log.Warn("No mapping file configured, using the built-in sample mapping")

		return mapping.New(mapping.DefaultTable()), nil
	}

	table, err := mapping.LoadFile(cfg.MappingFile)
	if err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"file":    cfg.MappingFile,
		"entries": len(table),
	}).Info("Loaded case mapping")

	return mapping.New(table), nil
}
