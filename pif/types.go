/*
Package pif provides the domain model of the Project Information Form pipeline.

PURPOSE:
  A PIF is the logical unit of a proposed or approved capital project change.
  Business users submit PIF rows with their cost projections; the rows move
  through three stores:

    staging  ->  inflight  ->  approved

  Staging is a transient landing area replaced per submission batch.
  Inflight is the mutable working set between submissions.
  Approved is the durable record of finalized PIFs, one row per natural key.

KEY CONCEPTS IN THIS FILE (types.go):
  - ProjectRecord: a PIF project row keyed by (pif_id, project_id)
  - CostFact: one cost projection per (pif_id, project_id, scenario, year)
  - SubmissionRow: a raw, not-yet-converted row as delivered by the front end
  - ReportingPeriod: the floating year/month reference used for pivoting

DESIGN PRINCIPLES:
  1. Natural keys: nothing in the pipeline invents surrogate identity
  2. Precision: money amounts use decimal.Decimal
  3. Ownership: a CostFact belongs to exactly one store, through its parent

SEE ALSO:
  - store.go: Persistence interfaces
  - errors.go: Error taxonomy
  - validation/: Conversion of SubmissionRow into ProjectRecord/CostFact
*/
package pif

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STORES
// =============================================================================

// StoreKind names one of the three record stores.
type StoreKind string

const (
	StoreStaging  StoreKind = "staging"
	StoreInflight StoreKind = "inflight"
	StoreApproved StoreKind = "approved"
)

// ParseStoreKind maps a store name onto a StoreKind.
func ParseStoreKind(s string) (StoreKind, error) {
	switch k := StoreKind(strings.ToLower(strings.TrimSpace(s))); k {
	case StoreStaging, StoreInflight, StoreApproved:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStore, s)
}

// =============================================================================
// SCENARIOS
// =============================================================================

// Scenario is a cost-projection variant.
type Scenario string

const (
	ScenarioTarget   Scenario = "Target"
	ScenarioClosings Scenario = "Closings"
)

// Scenarios lists every scenario in wide-view column order.
var Scenarios = []Scenario{ScenarioTarget, ScenarioClosings}

// ParseScenario accepts a scenario name case-insensitively.
func ParseScenario(s string) (Scenario, bool) {
	for _, sc := range Scenarios {
		if strings.EqualFold(strings.TrimSpace(s), string(sc)) {
			return sc, true
		}
	}
	return "", false
}

// =============================================================================
// RECORDS
// =============================================================================

// Key is the natural key of a project record.
type Key struct {
	PIFID     string
	ProjectID string
}

func (k Key) String() string {
	return k.PIFID + "/" + k.ProjectID
}

// ProjectRecord is a PIF project row. The same shape is used by all three
// stores; ApprovalDate is only ever set in the approved store.
type ProjectRecord struct {
	PIFID     string
	ProjectID string
	LineItem  int
	Site      string

	// ArchiveFlag marks the record ready to promote; IncludeFlag marks it
	// eligible this cycle. Both must be set for promotion.
	ArchiveFlag bool
	IncludeFlag bool

	ChangeType          string
	Category            string
	AccountingTreatment string
	StrategicRank       string
	Status              string
	Justification       string
	LCMIssue            string
	Seg                 *int
	PriorYearSpend      decimal.NullDecimal

	OriginalFPISD  *time.Time
	RevisedFPISD   *time.Time
	MovingISDYear  string
	SubmissionDate *time.Time
	ApprovalDate   *time.Time
}

// Key returns the natural key of the record.
func (p ProjectRecord) Key() Key {
	return Key{PIFID: p.PIFID, ProjectID: p.ProjectID}
}

// Promotable reports whether the record is flagged for promotion.
func (p ProjectRecord) Promotable() bool {
	return p.ArchiveFlag && p.IncludeFlag
}

// CostFact is a single cost projection for a project, scenario and year.
type CostFact struct {
	PIFID          string
	ProjectID      string
	Scenario       Scenario
	Year           int
	RequestedValue decimal.Decimal
	CurrentValue   decimal.Decimal
	VarianceValue  decimal.Decimal
}

// Key returns the natural key of the parent project.
func (c CostFact) Key() Key {
	return Key{PIFID: c.PIFID, ProjectID: c.ProjectID}
}

// =============================================================================
// SUBMISSIONS
// =============================================================================

// SubmissionRow is a row as delivered by the front end. Typed fields are kept
// as text so that the validation engine can tell an explicitly empty value
// from a malformed one.
type SubmissionRow struct {
	// Row identifies the row in the submitting sheet. Zero means "use the
	// 1-based position in the batch".
	Row int `json:"row,omitempty" yaml:"row,omitempty"`

	PIFID     string `json:"pif_id" yaml:"pif_id"`
	ProjectID string `json:"project_id" yaml:"project_id"`
	LineItem  string `json:"line_item,omitempty" yaml:"line_item,omitempty"`
	Site      string `json:"site" yaml:"site"`

	ArchiveFlag bool `json:"archive_flag" yaml:"archive_flag"`
	IncludeFlag bool `json:"include_flag" yaml:"include_flag"`

	ChangeType          string `json:"change_type,omitempty" yaml:"change_type,omitempty"`
	Category            string `json:"category,omitempty" yaml:"category,omitempty"`
	AccountingTreatment string `json:"accounting_treatment,omitempty" yaml:"accounting_treatment,omitempty"`
	StrategicRank       string `json:"strategic_rank,omitempty" yaml:"strategic_rank,omitempty"`
	Status              string `json:"status,omitempty" yaml:"status,omitempty"`
	Justification       string `json:"justification,omitempty" yaml:"justification,omitempty"`
	LCMIssue            string `json:"lcm_issue,omitempty" yaml:"lcm_issue,omitempty"`
	Seg                 string `json:"seg,omitempty" yaml:"seg,omitempty"`
	PriorYearSpend      string `json:"prior_year_spend,omitempty" yaml:"prior_year_spend,omitempty"`

	OriginalFPISD  string `json:"original_fp_isd,omitempty" yaml:"original_fp_isd,omitempty"`
	RevisedFPISD   string `json:"revised_fp_isd,omitempty" yaml:"revised_fp_isd,omitempty"`
	MovingISDYear  string `json:"moving_isd_year,omitempty" yaml:"moving_isd_year,omitempty"`
	SubmissionDate string `json:"submission_date,omitempty" yaml:"submission_date,omitempty"`

	Costs []SubmissionCost `json:"costs,omitempty" yaml:"costs,omitempty"`
}

// SubmissionCost is an unpivoted cost entry attached to a SubmissionRow.
type SubmissionCost struct {
	Scenario       string `json:"scenario" yaml:"scenario"`
	Year           string `json:"year" yaml:"year"`
	RequestedValue string `json:"requested_value" yaml:"requested_value"`
	CurrentValue   string `json:"current_value" yaml:"current_value"`
	VarianceValue  string `json:"variance_value" yaml:"variance_value"`
}

// Batch is a submission from one site.
type Batch struct {
	Site        string          `json:"site" yaml:"site"`
	SubmittedBy string          `json:"submitted_by" yaml:"submitted_by"`
	Rows        []SubmissionRow `json:"rows" yaml:"rows"`
}

// SubmissionStatus records the outcome of a submission in the audit log.
type SubmissionStatus string

const (
	SubmissionAccepted SubmissionStatus = "accepted"
	SubmissionRejected SubmissionStatus = "rejected"
)

// Submission is an audit log entry: who submitted what batch when.
type Submission struct {
	ID           string
	Site         string
	SubmittedBy  string
	Status       SubmissionStatus
	RowCount     int
	FailureCount int
	SubmittedAt  time.Time
}

// =============================================================================
// PROMOTION
// =============================================================================

// PromotionResult reports what a promotion run changed.
type PromotionResult struct {
	Site             string
	ProjectsAffected int
	CostsAffected    int
	PromotedAt       time.Time
}

// =============================================================================
// REPORTING PERIOD
// =============================================================================

// ReportingPeriod is the floating year/month reference for cost pivots.
// It follows data loads, not the calendar.
type ReportingPeriod struct {
	Year  int
	Month int
}

// Validate checks that the period is usable.
func (p ReportingPeriod) Validate() error {
	if p.Year < 1900 || p.Year > 9999 {
		return fmt.Errorf("%w: year %d out of range", ErrInvalidReportingPeriod, p.Year)
	}
	if p.Month < 1 || p.Month > 12 {
		return fmt.Errorf("%w: month %d out of range", ErrInvalidReportingPeriod, p.Month)
	}
	return nil
}

func (p ReportingPeriod) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}
