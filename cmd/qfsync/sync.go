package main

import (
	"fmt"

	"github.com/ethpandaops/qfsync/pkg/config"
	"github.com/ethpandaops/qfsync/pkg/junit"
	"github.com/ethpandaops/qfsync/pkg/storage"
	"github.com/ethpandaops/qfsync/pkg/syncer"
	"github.com/ethpandaops/qfsync/pkg/tracker"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const syncLong = `Create a new test cycle, then submit one result per test case in the
JUnit report that has a case number mapping. Test cases without a mapping
are skipped. The report may be a local path or an s3://bucket/key location
when report.s3 is enabled.

Every tracker setting can come from a flag, an environment variable
(QF_API_KEY, QF_TEST_PHASE_ID, QF_TEST_SUITE_ASSIGNMENT_ID, QF_USER_ID,
QF_TARGET_PRIORITIES, or QFSYNC_<SECTION>_<KEY>) or a config file.`

// syncCmd is the explicit form of running qfsync with a report path.
var syncCmd = &cobra.Command{
	Use:   "sync <junit-path>",
	Short: "Create a test cycle and submit the report's results",
	Long:  syncLong,
	Args:  cobra.ExactArgs(1),
	RunE:  runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)

	addSyncFlags(rootCmd.Flags())
	addSyncFlags(syncCmd.Flags())
}

// addSyncFlags registers the tracker flags bound through config.FlagBindings.
func addSyncFlags(flags *pflag.FlagSet) {
	flags.StringP("api-key", "a", "", "QualityForward API key (or env QF_API_KEY)")
	flags.String("test-phase-id", "", "Test phase ID (or env QF_TEST_PHASE_ID)")
	flags.String("test-suite-assignment-id", "", "Test suite assignment ID (or env QF_TEST_SUITE_ASSIGNMENT_ID)")
	flags.String("user-id", "", "QualityForward user_id (or env QF_USER_ID)")
	flags.String("target-priorities", config.DefaultTargetPriorities,
		"Comma-separated target priorities (or env QF_TARGET_PRIORITIES)")
	flags.String("base-url", config.DefaultBaseURL, "Tracker API base URL")
	flags.String("cycle-name-prefix", config.DefaultCycleNamePrefix, "Prefix of the created cycle's name")
	flags.Duration("submit-interval", config.DefaultSubmitInterval, "Pause between result submissions")
	flags.Duration("timeout", 0, "Per-request timeout (0 waits for the HTTP client default)")
	flags.String("mapping-file", "", "YAML file mapping test identifiers to case numbers")
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	mapper, err := loadMapping(cfg)
	if err != nil {
		return fmt.Errorf("loading mapping: %w", err)
	}

	client, err := tracker.NewClient(log, tracker.Options{
		BaseURL: cfg.Tracker.BaseURL,
		APIKey:  cfg.Tracker.APIKey,
		Timeout: cfg.Tracker.Timeout,
		Limiter: tracker.NewIntervalLimiter(cfg.Tracker.SubmitInterval),
	})
	if err != nil {
		return fmt.Errorf("creating tracker client: %w", err)
	}

	opts := syncer.Options{
		ReportPath:            args[0],
		TestPhaseID:           cfg.Tracker.TestPhaseID,
		TestSuiteAssignmentID: cfg.Tracker.TestSuiteAssignmentID,
		UserID:                cfg.Tracker.UserID,
		TargetPriorities:      tracker.ParsePriorities(cfg.Tracker.TargetPriorities),
		CycleNamePrefix:       cfg.Tracker.CycleNamePrefix,
	}

	if cfg.Report.S3.Enabled {
		opts.ReportStore = storage.NewS3Store(log, &cfg.Report.S3)
	}

	if cfg.Archive.S3.Enabled {
		opts.Archiver = storage.NewArchiver(log, &cfg.Archive.S3, storage.NewS3Store(log, &cfg.Archive.S3))
	}

	summary, err := syncer.New(log, client, mapper, opts).Run(cmd.Context())
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"cycle_id": summary.CycleID,
		"pass":     summary.ByStatus[junit.StatusPass],
		"fail":     summary.ByStatus[junit.StatusFail],
		"error":    summary.ByStatus[junit.StatusError],
		"skip":     summary.ByStatus[junit.StatusSkip],
	}).Info("Sync completed")

	return nil
}
