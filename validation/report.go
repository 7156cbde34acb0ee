package validation

import (
	"fmt"

	"github.com/pifworks/pif-pipeline/pif"
)

// Result is the outcome of one rule on one field of one row.
type Result struct {
	Row      int      `json:"row"`
	Field    string   `json:"field"`
	Rule     Rule     `json:"rule"`
	Passed   bool     `json:"passed"`
	Severity Severity `json:"severity,omitempty"`
	Message  string   `json:"message,omitempty"`
}

// Blocking reports whether the result must stop submission and promotion.
func (r Result) Blocking() bool {
	return !r.Passed && r.Severity == SeverityError
}

func (r Result) String() string {
	return fmt.Sprintf("row %d %s (%s): %s", r.Row, r.Field, r.Rule, r.Message)
}

// Report collects every result of a validation pass together with the
// converted records of rows whose values all parsed.
type Report struct {
	Site     string
	Results  []Result
	Projects []pif.ProjectRecord
	Costs    []pif.CostFact
}

// Failures returns every failed result, blocking or not.
func (r *Report) Failures() []Result {
	var out []Result
	for _, res := range r.Results {
		if !res.Passed {
			out = append(out, res)
		}
	}
	return out
}

// Blocking returns the failed results with SeverityError.
func (r *Report) Blocking() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Blocking() {
			out = append(out, res)
		}
	}
	return out
}

// Warnings returns failed results that do not block.
func (r *Report) Warnings() []Result {
	var out []Result
	for _, res := range r.Results {
		if !res.Passed && res.Severity == SeverityWarning {
			out = append(out, res)
		}
	}
	return out
}

// HasBlocking reports whether any failure blocks.
func (r *Report) HasBlocking() bool {
	for _, res := range r.Results {
		if res.Blocking() {
			return true
		}
	}
	return false
}

// Err returns a *BlockedError when the report has blocking failures.
func (r *Report) Err() error {
	blocking := r.Blocking()
	if len(blocking) == 0 {
		return nil
	}
	return &BlockedError{Site: r.Site, Failures: blocking}
}

// BlockedError is returned when a batch cannot proceed.
type BlockedError struct {
	Site     string
	Failures []Result
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("validation failed for site %q: %d blocking failure(s), first: %s",
		e.Site, len(e.Failures), e.Failures[0])
}

func (e *BlockedError) Unwrap() error {
	return pif.ErrValidationFailed
}
