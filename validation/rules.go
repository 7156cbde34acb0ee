/*
Package validation checks submitted PIF rows before they may enter inflight
or be promoted.

PURPOSE:
  Given a batch of SubmissionRows and the site of the submitting session,
  produce one Result per (row, field, rule) with pass/fail and a message.
  Validation never mutates any store. Callers decide what to block on;
  the pipeline blocks on every failure with SeverityError.

RULES:
  Always blocking:
    pif_id_required, project_id_required  - the natural key must be present
    duplicate_key                          - two rows share (pif_id, project_id)
    site_match                             - row site equals the session site
    cost_value_required                    - every cost amount is given
    date_format, integer_format,
    decimal_format, code_format, scenario  - typed values must parse
  Conditional (may be configured as warnings):
    revised_isd_required   - when change_type equals the configured trigger
    lcm_issue_required     - when category equals the configured trigger
    justification_required - when archive_flag is set
  Auto-correction:
    line_item_default      - a missing line_item becomes 1

SEE ALSO:
  - engine.go: Rule evaluation and conversion
  - report.go: Result aggregation and BlockedError
*/
package validation

import "fmt"

// Rule names a validation rule.
type Rule string

const (
	RulePIFIDRequired         Rule = "pif_id_required"
	RuleProjectIDRequired     Rule = "project_id_required"
	RuleDuplicateKey          Rule = "duplicate_key"
	RuleSiteMatch             Rule = "site_match"
	RuleRevisedISDRequired    Rule = "revised_isd_required"
	RuleLCMIssueRequired      Rule = "lcm_issue_required"
	RuleJustificationRequired Rule = "justification_required"
	RuleDateFormat            Rule = "date_format"
	RuleIntegerFormat         Rule = "integer_format"
	RuleDecimalFormat         Rule = "decimal_format"
	RuleCostValueRequired     Rule = "cost_value_required"
	RuleCodeFormat            Rule = "code_format"
	RuleScenario              Rule = "scenario"
	RuleLineItemDefault       Rule = "line_item_default"
)

// downgradable lists the rules that may be configured as warnings.
var downgradable = map[Rule]bool{
	RuleRevisedISDRequired:    true,
	RuleLCMIssueRequired:      true,
	RuleJustificationRequired: true,
}

// Severity classifies a result.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// DefaultDateLayout is the textual date format accepted by default.
const DefaultDateLayout = "2006-01-02"

// Options configures the conditional rules.
type Options struct {
	// DateLayout is the Go time layout every date field must match.
	DateLayout string

	// RevisedISDTrigger is the change_type that makes revised_fp_isd
	// required. Empty disables the rule.
	RevisedISDTrigger string

	// LCMIssueTrigger is the category that makes lcm_issue required.
	// Empty disables the rule.
	LCMIssueTrigger string

	// WarningRules are reported with SeverityWarning instead of SeverityError.
	WarningRules []Rule
}

// DefaultOptions returns the rule configuration used by the PIF workbook.
func DefaultOptions() Options {
	return Options{
		DateLayout:        DefaultDateLayout,
		RevisedISDTrigger: "Funding/Scope/Schedule Change",
		LCMIssueTrigger:   "Compliance",
	}
}

func (o Options) validate() error {
	for _, r := range o.WarningRules {
		if !downgradable[r] {
			return fmt.Errorf("validation: rule %q cannot be downgraded to a warning", r)
		}
	}
	return nil
}
