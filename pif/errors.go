/*
errors.go - Centralized error types for the PIF pipeline

PURPOSE:
  All error types in one place for consistency and discoverability.
  Packages wrap these with context; callers match with errors.Is/As.

ERROR CATEGORIES:
  1. Validation - a named field on a named row fails a named rule
     (returned as data in a report, see validation/)
  2. Transaction - any failure inside the promotion sequence; everything
     is rolled back and the underlying error is surfaced
  3. Configuration - a required lookup (reporting period) is unavailable
  4. Input - unknown store names, missing site context
  5. Ownership - a natural key already held by another site

SEE ALSO:
  - validation/report.go: BlockedError wraps ErrValidationFailed
  - store/sqlite/promotion.go: Produces TransactionError
*/
package pif

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidationFailed is returned when a batch or promotion candidate set
	// has at least one blocking validation failure.
	ErrValidationFailed = errors.New("validation failed")

	// ErrDuplicateKey is returned when a write would create a second record
	// for the same natural key outside the sanctioned upsert path.
	ErrDuplicateKey = errors.New("duplicate natural key")

	// ErrTransactionFailed is returned when an atomic store operation is
	// rolled back.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrReportingPeriodUnavailable is returned when no reporting period has
	// been configured or loaded.
	ErrReportingPeriodUnavailable = errors.New("reporting period unavailable")

	// ErrInvalidReportingPeriod is returned for an out-of-range year or month.
	ErrInvalidReportingPeriod = errors.New("invalid reporting period")

	// ErrUnknownStore is returned for a store name other than
	// staging, inflight or approved.
	ErrUnknownStore = errors.New("unknown store")

	// ErrSiteRequired is returned when an operation is invoked without a site.
	ErrSiteRequired = errors.New("site is required")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// TransactionError names the step of an atomic operation that failed.
type TransactionError struct {
	Op   string // e.g. "archive_approved", "submit"
	Step string // e.g. "upsert_projects", "replace_costs"
	Site string
	Err  error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("%s(%s): %s: %v", e.Op, e.Site, e.Step, e.Err)
}

// Unwrap exposes both the sentinel and the underlying driver error.
func (e *TransactionError) Unwrap() []error {
	return []error{ErrTransactionFailed, e.Err}
}

// DuplicateCellError reports two cost facts competing for one wide-view cell.
type DuplicateCellError struct {
	Key      Key
	Scenario Scenario
	Year     int
}

func (e *DuplicateCellError) Error() string {
	return fmt.Sprintf("duplicate cost fact for %s %s %d", e.Key, e.Scenario, e.Year)
}

func (e *DuplicateCellError) Unwrap() error {
	return ErrDuplicateKey
}

// SiteConflictError reports a natural key that a store already holds under
// another site. Natural keys are global, so one site may never take over
// another site's record.
type SiteConflictError struct {
	Store StoreKind
	Key   Key
	Site  string // site attempting the write
	Owner string // site holding the record
}

func (e *SiteConflictError) Error() string {
	return fmt.Sprintf("%s: %s is held by site %s in %s, not %s",
		ErrDuplicateKey, e.Key, e.Owner, e.Store, e.Site)
}

func (e *SiteConflictError) Unwrap() error {
	return ErrDuplicateKey
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidationFailed) ||
		errors.Is(err, ErrSiteRequired) ||
		errors.Is(err, ErrInvalidReportingPeriod)
}

// IsConfigurationError returns true if a required lookup is missing.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrReportingPeriodUnavailable)
}
