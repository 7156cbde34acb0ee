/*
store.go - Persistence interfaces for the record stores

PURPOSE:
  Defines the interface between the pipeline and the database.
  The stores own six logical tables (project + cost for staging, inflight
  and approved) plus the submission audit log and the reporting period.

KEY INTERFACES:
  ProjectReader:  Read access to any store
  Promoter:       The inflight -> approved promotion
  SubmissionLog:  Append-only audit of submission batches
  PeriodStore:    The persisted reporting period
  TxStore:        Writes that must commit together during a submission

ATOMICITY:
  ArchiveApproved() and every WithTx() callback are all-or-nothing.
  A failure leaves the stores exactly as they were before the call.

IMPLEMENTATIONS:
  - store/sqlite: SQLite-backed implementation

SEE ALSO:
  - store/sqlite/promotion.go: The set-based promotion statements
*/
package pif

import (
	"context"
	"time"
)

// ProjectReader reads records from any of the three stores.
// An empty site means every site.
type ProjectReader interface {
	ListProjects(ctx context.Context, kind StoreKind, site string) ([]ProjectRecord, error)
	ListCosts(ctx context.Context, kind StoreKind, site string) ([]CostFact, error)

	// ListRecords returns the projects and costs of a store read from one
	// snapshot, so every cost has its parent project in the result.
	ListRecords(ctx context.Context, kind StoreKind, site string) ([]ProjectRecord, []CostFact, error)

	// PromotionCandidates returns the inflight records (and their costs)
	// that ArchiveApproved would promote for site.
	PromotionCandidates(ctx context.Context, site string) ([]ProjectRecord, []CostFact, error)
}

// Promoter moves flagged inflight records into the approved store.
type Promoter interface {
	// ArchiveApproved promotes every inflight record of site with both
	// archive and include flags set. Approved rows are upserted by natural
	// key with approval date at, their costs are replaced wholesale, and the
	// promoted rows are removed from inflight. All in one transaction.
	ArchiveApproved(ctx context.Context, site string, at time.Time) (PromotionResult, error)
}

// SubmissionLog stores audit entries. Append-only.
type SubmissionLog interface {
	AppendSubmission(ctx context.Context, sub Submission) error
	ListSubmissions(ctx context.Context, site string, limit int) ([]Submission, error)
}

// PeriodStore persists the reporting period.
type PeriodStore interface {
	// GetReportingPeriod returns ErrReportingPeriodUnavailable when no
	// period has been set.
	GetReportingPeriod(ctx context.Context) (ReportingPeriod, error)
	SetReportingPeriod(ctx context.Context, p ReportingPeriod) error
}

// TxStore is the write surface available inside a submission transaction.
type TxStore interface {
	// ReplaceStaging truncates the site's staging rows and bulk inserts
	// the given records. Returns the number of projects and costs staged.
	ReplaceStaging(ctx context.Context, site string, projects []ProjectRecord, costs []CostFact) (int, int, error)

	// MergeStagingToInflight upserts the site's staging projects into
	// inflight by natural key, replaces the inflight cost sets of the
	// merged keys and empties the site's staging rows. A staged key that
	// inflight or approved holds under another site fails with a
	// *SiteConflictError.
	MergeStagingToInflight(ctx context.Context, site string) (int, int, error)

	AppendSubmission(ctx context.Context, sub Submission) error
}

// Store is everything the pipeline needs from persistence.
type Store interface {
	ProjectReader
	Promoter
	SubmissionLog
	PeriodStore

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	WithTx(ctx context.Context, fn func(TxStore) error) error
}
