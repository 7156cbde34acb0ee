/*
Package pipeline orchestrates the PIF lifecycle on top of the stores.

PURPOSE:
  The single entry point used by the HTTP API and the CLI:

    Validate  - check a batch, touch nothing
    Submit    - validate, replace the site's staging rows, merge into
                inflight and record an audit entry, all in one transaction
    Promote   - re-validate the site's promotion candidates, then archive
                them into approved
    WideView  - pivoted costs of inflight or approved

GATES:
  A submission with any blocking failure never reaches staging. Inflight
  rows may be edited in place between submissions, so Promote re-validates
  the candidates before ArchiveApproved runs.

SEE ALSO:
  - store/sqlite/promotion.go: The promotion transaction
  - validation/engine.go: The rule set
  - reporting/view.go: Wide views
*/
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pifworks/pif-pipeline/pif"
	"github.com/pifworks/pif-pipeline/reporting"
	"github.com/pifworks/pif-pipeline/validation"
)

// Service runs pipeline operations against a store.
type Service struct {
	store     pif.Store
	validator *validation.Engine
	period    reporting.PeriodProvider
	views     *reporting.Builder
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
}

// NewService wires a service. A nil period provider reads the period from
// the store.
func NewService(store pif.Store, validator *validation.Engine, period reporting.PeriodProvider, logger *zap.Logger) *Service {
	if period == nil {
		period = reporting.StorePeriod{Store: store}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     store,
		validator: validator,
		period:    period,
		views:     reporting.NewBuilder(store, period),
		logger:    logger.Named("pipeline"),
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// WithClock sets the time source used for submission and approval
// timestamps.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithIDGenerator sets how submission IDs are generated.
func (s *Service) WithIDGenerator(newID func() string) *Service {
	s.newID = newID
	return s
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks rows for site without touching any store.
func (s *Service) Validate(rows []pif.SubmissionRow, site string) (*validation.Report, error) {
	site = strings.TrimSpace(site)
	if site == "" {
		return nil, pif.ErrSiteRequired
	}
	return s.validator.Validate(rows, site), nil
}

// =============================================================================
// SUBMISSION
// =============================================================================

// SubmitResult describes an accepted or rejected submission.
type SubmitResult struct {
	SubmissionID   string
	Report         *validation.Report
	ProjectsStaged int
	CostsStaged    int
	ProjectsMerged int
	CostsMerged    int
}

// Submit validates a batch and, when nothing blocks, lands it in staging and
// merges it into inflight. A blocked batch is still recorded in the audit
// log and returns a *validation.BlockedError together with the report.
func (s *Service) Submit(ctx context.Context, batch pif.Batch) (*SubmitResult, error) {
	site := strings.TrimSpace(batch.Site)
	if site == "" {
		return nil, pif.ErrSiteRequired
	}

	report := s.validator.Validate(batch.Rows, site)
	result := &SubmitResult{SubmissionID: s.newID(), Report: report}
	sub := pif.Submission{
		ID:           result.SubmissionID,
		Site:         site,
		SubmittedBy:  batch.SubmittedBy,
		RowCount:     len(batch.Rows),
		FailureCount: len(report.Blocking()),
		SubmittedAt:  s.now().UTC(),
	}

	if blocked := report.Err(); blocked != nil {
		sub.Status = pif.SubmissionRejected
		if err := s.store.AppendSubmission(ctx, sub); err != nil {
			s.logger.Error("Failed to record rejected submission",
				zap.String("site", site),
				zap.String("submission_id", sub.ID),
				zap.Error(err))
			return result, errors.Join(blocked, err)
		}
		s.logger.Info("Submission rejected",
			zap.String("site", site),
			zap.String("submission_id", sub.ID),
			zap.Int("rows", sub.RowCount),
			zap.Int("blocking_failures", sub.FailureCount))
		return result, blocked
	}

	sub.Status = pif.SubmissionAccepted
	err := s.store.WithTx(ctx, func(tx pif.TxStore) error {
		var err error
		result.ProjectsStaged, result.CostsStaged, err = tx.ReplaceStaging(ctx, site, report.Projects, report.Costs)
		if err != nil {
			return fmt.Errorf("stage batch: %w", err)
		}
		result.ProjectsMerged, result.CostsMerged, err = tx.MergeStagingToInflight(ctx, site)
		if err != nil {
			return fmt.Errorf("merge into inflight: %w", err)
		}
		return tx.AppendSubmission(ctx, sub)
	})
	if err != nil {
		s.logger.Error("Submission failed",
			zap.String("site", site),
			zap.String("submission_id", sub.ID),
			zap.Error(err))
		return result, err
	}

	s.logger.Info("Submission accepted",
		zap.String("site", site),
		zap.String("submission_id", sub.ID),
		zap.Int("projects", result.ProjectsMerged),
		zap.Int("costs", result.CostsMerged),
		zap.Int("warnings", len(report.Warnings())))
	return result, nil
}

// Submissions lists audit entries, newest first.
func (s *Service) Submissions(ctx context.Context, site string, limit int) ([]pif.Submission, error) {
	return s.store.ListSubmissions(ctx, strings.TrimSpace(site), limit)
}

// =============================================================================
// PROMOTION
// =============================================================================

// Promote archives the site's flagged inflight records into approved.
// Candidates are re-validated first; any blocking failure refuses the whole
// promotion with a *validation.BlockedError and no store changes.
func (s *Service) Promote(ctx context.Context, site string) (pif.PromotionResult, error) {
	site = strings.TrimSpace(site)
	if site == "" {
		return pif.PromotionResult{}, pif.ErrSiteRequired
	}
	start := time.Now()

	projects, costs, err := s.store.PromotionCandidates(ctx, site)
	if err != nil {
		return pif.PromotionResult{Site: site}, fmt.Errorf("load promotion candidates: %w", err)
	}
	rows := validation.RowsFromRecords(projects, costs, s.validator.DateLayout())
	if blocked := s.validator.Validate(rows, site).Err(); blocked != nil {
		s.logger.Warn("Promotion refused by validation",
			zap.String("site", site),
			zap.Int("candidates", len(projects)),
			zap.Error(blocked))
		return pif.PromotionResult{Site: site}, blocked
	}

	result, err := s.store.ArchiveApproved(ctx, site, s.now().UTC())
	if err != nil {
		s.logger.Error("Promotion failed",
			zap.String("site", site),
			zap.Error(err))
		return result, err
	}

	s.logger.Info("Promotion completed",
		zap.String("site", site),
		zap.Int("projects_affected", result.ProjectsAffected),
		zap.Int("costs_affected", result.CostsAffected),
		zap.Duration("duration", time.Since(start)))
	return result, nil
}

// =============================================================================
// READS AND REPORTING
// =============================================================================

// Records returns the projects and costs of one store.
func (s *Service) Records(ctx context.Context, kind pif.StoreKind, site string) ([]pif.ProjectRecord, []pif.CostFact, error) {
	return s.store.ListRecords(ctx, kind, strings.TrimSpace(site))
}

// WideView pivots the costs of the inflight or approved store.
func (s *Service) WideView(ctx context.Context, kind pif.StoreKind, site string) (*reporting.View, error) {
	return s.views.WideView(ctx, kind, strings.TrimSpace(site))
}

// ReportingPeriod returns the period views are currently built against.
func (s *Service) ReportingPeriod(ctx context.Context) (pif.ReportingPeriod, error) {
	return s.period.ReportingPeriod(ctx)
}

// SetReportingPeriod persists a new reporting period. It has no effect on
// views while a fixed period is configured.
func (s *Service) SetReportingPeriod(ctx context.Context, p pif.ReportingPeriod) error {
	if err := s.store.SetReportingPeriod(ctx, p); err != nil {
		return err
	}
	if _, fixed := s.period.(reporting.FixedPeriod); fixed {
		s.logger.Warn("Reporting period saved but a fixed period is configured",
			zap.Stringer("period", p))
		return nil
	}
	s.logger.Info("Reporting period updated", zap.Stringer("period", p))
	return nil
}
