// Package syncer runs one synchronization of a JUnit report into a new
// tracker test cycle.
package syncer

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/docker/go-units"
	"github.com/ethpandaops/qfsync/pkg/junit"
	"github.com/ethpandaops/qfsync/pkg/mapping"
	"github.com/ethpandaops/qfsync/pkg/tracker"
	"github.com/sirupsen/logrus"
)

// Tracker is the subset of the tracker client a sync run needs.
type Tracker interface {
	CreateCycle(ctx context.Context, req tracker.CycleRequest) (int64, error)
	SubmitResult(ctx context.Context, req tracker.ResultRequest) error
}

// Archiver stores the synced report once every result is submitted.
type Archiver interface {
	Archive(ctx context.Context, cycleID int64, localPath string) (string, error)
}

// Options describes one sync run.
type Options struct {
	ReportPath            string
	TestPhaseID           string
	TestSuiteAssignmentID string
	UserID                string
	TargetPriorities      []string
	CycleNamePrefix       string

	// ReportStore resolves s3:// report locations. Optional.
	ReportStore junit.ObjectGetter

	// Archiver, when set, receives local reports after a successful run.
	Archiver Archiver
}

// Summary describes a finished run.
type Summary struct {
	CycleID   int64
	Total     int
	Submitted int
	Skipped   int
	ByStatus  map[junit.Status]int
	Archive   string
}

// Syncer sequences cycle creation, report parsing and result submission.
type Syncer struct {
	log     logrus.FieldLogger
	tracker Tracker
	mapper  *mapping.Mapper
	opts    Options
}

// New creates a Syncer.
func New(log logrus.FieldLogger, t Tracker, mapper *mapping.Mapper, opts Options) *Syncer {
	return &Syncer{
		log:     log.WithField("component", "syncer"),
		tracker: t,
		mapper:  mapper,
		opts:    opts,
	}
}

// Run executes the sync. The first failing submission aborts the run; the
// cycle keeps whatever was submitted before it.
func (s *Syncer) Run(ctx context.Context) (*Summary, error) {
	s.log.Info("Creating test cycle")

	cycleID, err := s.tracker.CreateCycle(ctx, tracker.CycleRequest{
		TestPhaseID:           s.opts.TestPhaseID,
		TestSuiteAssignmentID: s.opts.TestSuiteAssignmentID,
		TargetPriorities:      s.opts.TargetPriorities,
		NamePrefix:            s.opts.CycleNamePrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("creating test cycle: %w", err)
	}

	log := s.log.WithField("cycle_id", cycleID)
	log.Info("Created test cycle")

	summary := &Summary{
		CycleID:  cycleID,
		ByStatus: make(map[junit.Status]int, 4),
	}

	s.logReportSize()

	records, err := junit.Open(ctx, s.opts.ReportPath, s.opts.ReportStore)
	if err != nil {
		return summary, fmt.Errorf("parsing report: %w", err)
	}

	summary.Total = len(records)

	log.WithField("count", len(records)).Info("Sending test results")

	for _, record := range records {
		caseNo, ok := s.mapper.Lookup(record.Identifier)
		if !ok {
			log.WithField("identifier", record.Identifier).Info("Skipping test without case mapping")

			summary.Skipped++

			continue
		}

		rlog := log.WithFields(logrus.Fields{
			"case_no":    caseNo,
			"identifier": record.Identifier,
			"status":     record.Status,
		})

		err := s.tracker.SubmitResult(ctx, tracker.ResultRequest{
			TestPhaseID:           s.opts.TestPhaseID,
			TestSuiteAssignmentID: s.opts.TestSuiteAssignmentID,
			CycleID:               cycleID,
			UserID:                s.opts.UserID,
			CaseNo:                caseNo,
			Record:                record,
		})
		if err != nil {
			return summary, fmt.Errorf("submitting result for %q (case %d): %w", record.Identifier, caseNo, err)
		}

		summary.Submitted++
		summary.ByStatus[record.Status]++

		rlog.Info("Submitted test result")
	}

	s.archive(ctx, summary)

	log.WithFields(logrus.Fields{
		"total":     summary.Total,
		"submitted": summary.Submitted,
		"skipped":   summary.Skipped,
	}).Info("Done")

	return summary, nil
}

// archive is best effort; the tracker already holds every result.
func (s *Syncer) archive(ctx context.Context, summary *Summary) {
	if s.opts.Archiver == nil {
		return
	}

	if strings.HasPrefix(s.opts.ReportPath, junit.S3Scheme) {
		s.log.Debug("Report already lives in S3, not archiving")

		return
	}

	location, err := s.opts.Archiver.Archive(ctx, summary.CycleID, s.opts.ReportPath)
	if err != nil {
		s.log.WithError(err).Warn("Failed to archive report")

		return
	}

	summary.Archive = location
}

func (s *Syncer) logReportSize() {
	if strings.HasPrefix(s.opts.ReportPath, junit.S3Scheme) {
		s.log.WithField("report", s.opts.ReportPath).Info("Parsing JUnit results")

		return
	}

	fields := logrus.Fields{"report": s.opts.ReportPath}
	if info, err := os.Stat(s.opts.ReportPath); err == nil {
		fields["size"] = units.HumanSize(float64(info.Size()))
	}

	s.log.WithFields(fields).Info("Parsing JUnit results")
}
