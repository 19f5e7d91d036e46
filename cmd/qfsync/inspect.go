package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/ethpandaops/qfsync/pkg/junit"
	"github.com/ethpandaops/qfsync/pkg/storage"
	"github.com/ethpandaops/qfsync/pkg/tracker"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <junit-path>",
	Short: "Show how a report's test cases map to tracker case numbers",
	Long: `Parse a JUnit report and print every test case with its status, execution
time and mapped case number ("-" when unmapped). Nothing is sent to the
tracker, so no API credentials are needed.`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().String("mapping-file", "", "YAML file mapping test identifiers to case numbers")
}

func runInspect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	mapper, err := loadMapping(cfg)
	if err != nil {
		return fmt.Errorf("loading mapping: %w", err)
	}

	var store junit.ObjectGetter
	if cfg.Report.S3.Enabled {
		store = storage.NewS3Store(log, &cfg.Report.S3)
	}

	records, err := junit.Open(cmd.Context(), args[0], store)
	if err != nil {
		return fmt.Errorf("parsing report: %w", err)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CASE_NO\tSTATUS\tTIME\tSUITE\tIDENTIFIER")

	var mapped int

	for _, r := range records {
		caseNo := "-"
		if no, ok := mapper.Lookup(r.Identifier); ok {
			caseNo = strconv.Itoa(no)
			mapped++
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			caseNo, r.Status, tracker.FormatSeconds(r.ExecutionTime), r.Suite, r.Identifier)
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\n%d test cases, %d mapped, %d would be skipped\n",
		len(records), mapped, len(records)-mapped)

	return nil
}
