package validation

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pifworks/pif-pipeline/pif"
)

// Engine evaluates the rule set. It is immutable and safe for concurrent use.
type Engine struct {
	opts     Options
	warnings map[Rule]bool
}

// New creates an engine. Only the conditional rules may be downgraded.
func New(opts Options) (*Engine, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.DateLayout == "" {
		opts.DateLayout = DefaultDateLayout
	}
	warnings := make(map[Rule]bool, len(opts.WarningRules))
	for _, r := range opts.WarningRules {
		warnings[r] = true
	}
	return &Engine{opts: opts, warnings: warnings}, nil
}

// DateLayout returns the layout date fields are parsed with.
func (e *Engine) DateLayout() string {
	return e.opts.DateLayout
}

// Validate checks rows against the rule set for the session site.
// Rows whose typed values all parse are converted into the report's
// Projects and Costs, even when other rules fail.
func (e *Engine) Validate(rows []pif.SubmissionRow, site string) *Report {
	site = strings.TrimSpace(site)
	report := &Report{Site: site}
	seen := make(map[pif.Key][]int)
	var order []pif.Key

	for i, row := range rows {
		id := row.Row
		if id == 0 {
			id = i + 1
		}
		c := &rowCheck{engine: e, report: report, row: id}
		rec, costs := e.checkRow(c, row, site)
		if !c.malformed {
			report.Projects = append(report.Projects, rec)
			report.Costs = append(report.Costs, costs...)
		}
		if rec.PIFID == "" || rec.ProjectID == "" {
			continue
		}
		k := rec.Key()
		if _, ok := seen[k]; !ok {
			order = append(order, k)
		}
		seen[k] = append(seen[k], id)
	}

	for _, k := range order {
		ids := seen[k]
		for _, id := range ids {
			c := &rowCheck{engine: e, report: report, row: id}
			if len(ids) > 1 {
				c.fail("pif_id,project_id", RuleDuplicateKey,
					fmt.Sprintf("key %s appears on rows %s", k, joinInts(ids)))
				continue
			}
			c.pass("pif_id,project_id", RuleDuplicateKey)
		}
	}

	sort.SliceStable(report.Results, func(i, j int) bool {
		return report.Results[i].Row < report.Results[j].Row
	})
	return report
}

func (e *Engine) checkRow(c *rowCheck, row pif.SubmissionRow, site string) (pif.ProjectRecord, []pif.CostFact) {
	rec := pif.ProjectRecord{
		PIFID:               strings.TrimSpace(row.PIFID),
		ProjectID:           strings.TrimSpace(row.ProjectID),
		Site:                strings.TrimSpace(row.Site),
		ArchiveFlag:         row.ArchiveFlag,
		IncludeFlag:         row.IncludeFlag,
		ChangeType:          strings.TrimSpace(row.ChangeType),
		Category:            strings.TrimSpace(row.Category),
		AccountingTreatment: strings.TrimSpace(row.AccountingTreatment),
		StrategicRank:       strings.TrimSpace(row.StrategicRank),
		Status:              strings.TrimSpace(row.Status),
		Justification:       strings.TrimSpace(row.Justification),
		LCMIssue:            strings.TrimSpace(row.LCMIssue),
	}

	c.required("pif_id", RulePIFIDRequired, rec.PIFID)
	c.required("project_id", RuleProjectIDRequired, rec.ProjectID)

	if rec.Site != site {
		c.fail("site", RuleSiteMatch, fmt.Sprintf("row site %q does not match session site %q", rec.Site, site))
	} else {
		c.pass("site", RuleSiteMatch)
	}

	rec.LineItem = c.lineItem(row.LineItem)
	rec.OriginalFPISD = c.date("original_fp_isd", row.OriginalFPISD)
	rec.RevisedFPISD = c.date("revised_fp_isd", row.RevisedFPISD)
	rec.SubmissionDate = c.date("submission_date", row.SubmissionDate)
	rec.Seg = c.integer("seg", row.Seg)
	rec.PriorYearSpend = c.decimal("prior_year_spend", row.PriorYearSpend)
	rec.MovingISDYear = c.code("moving_isd_year", row.MovingISDYear)

	c.requiredWhen("revised_fp_isd", RuleRevisedISDRequired, row.RevisedFPISD,
		matches(rec.ChangeType, e.opts.RevisedISDTrigger),
		fmt.Sprintf("required when change_type is %q", e.opts.RevisedISDTrigger))
	c.requiredWhen("lcm_issue", RuleLCMIssueRequired, rec.LCMIssue,
		matches(rec.Category, e.opts.LCMIssueTrigger),
		fmt.Sprintf("required when category is %q", e.opts.LCMIssueTrigger))
	c.requiredWhen("justification", RuleJustificationRequired, rec.Justification,
		rec.ArchiveFlag, "required when the PIF is flagged for archive")

	var costs []pif.CostFact
	cells := make(map[string]int)
	for j, sc := range row.Costs {
		field := fmt.Sprintf("costs[%d]", j)
		cost, ok := c.cost(field, sc)
		if !ok {
			continue
		}
		cost.PIFID, cost.ProjectID = rec.PIFID, rec.ProjectID
		cell := fmt.Sprintf("%s/%d", cost.Scenario, cost.Year)
		if prev, dup := cells[cell]; dup {
			c.fail(field, RuleDuplicateKey,
				fmt.Sprintf("%s %d already given in costs[%d]", cost.Scenario, cost.Year, prev))
			continue
		}
		cells[cell] = j
		costs = append(costs, cost)
	}
	return rec, costs
}

// =============================================================================
// ROW CHECKS
// =============================================================================

type rowCheck struct {
	engine *Engine
	report *Report
	row    int

	// malformed is set when any typed value failed to parse.
	malformed bool
}

func (c *rowCheck) pass(field string, rule Rule) {
	c.report.Results = append(c.report.Results, Result{Row: c.row, Field: field, Rule: rule, Passed: true})
}

func (c *rowCheck) fail(field string, rule Rule, msg string) {
	sev := SeverityError
	if c.engine.warnings[rule] {
		sev = SeverityWarning
	}
	c.report.Results = append(c.report.Results, Result{
		Row: c.row, Field: field, Rule: rule, Severity: sev, Message: msg,
	})
}

func (c *rowCheck) malformedValue(field string, rule Rule, msg string) {
	c.malformed = true
	c.fail(field, rule, msg)
}

func (c *rowCheck) required(field string, rule Rule, v string) {
	if v == "" {
		c.fail(field, rule, "required")
		return
	}
	c.pass(field, rule)
}

func (c *rowCheck) requiredWhen(field string, rule Rule, v string, cond bool, msg string) {
	if cond && strings.TrimSpace(v) == "" {
		c.fail(field, rule, msg)
		return
	}
	c.pass(field, rule)
}

func (c *rowCheck) lineItem(v string) int {
	v = strings.TrimSpace(v)
	if v == "" {
		c.report.Results = append(c.report.Results, Result{
			Row: c.row, Field: "line_item", Rule: RuleLineItemDefault, Passed: true,
			Severity: SeverityInfo, Message: "missing, defaulted to 1",
		})
		return 1
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		c.malformedValue("line_item", RuleIntegerFormat, fmt.Sprintf("%q is not a positive integer", v))
		return 0
	}
	c.pass("line_item", RuleIntegerFormat)
	return n
}

func (c *rowCheck) date(field, v string) *time.Time {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	t, err := time.Parse(c.engine.opts.DateLayout, v)
	if err != nil {
		c.malformedValue(field, RuleDateFormat,
			fmt.Sprintf("%q is not a date in format %s", v, c.engine.opts.DateLayout))
		return nil
	}
	c.pass(field, RuleDateFormat)
	return &t
}

func (c *rowCheck) integer(field, v string) *int {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		c.malformedValue(field, RuleIntegerFormat, fmt.Sprintf("%q is not an integer", v))
		return nil
	}
	c.pass(field, RuleIntegerFormat)
	return &n
}

func (c *rowCheck) decimal(field, v string) decimal.NullDecimal {
	v = strings.TrimSpace(v)
	if v == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		c.malformedValue(field, RuleDecimalFormat, fmt.Sprintf("%q is not a decimal amount", v))
		return decimal.NullDecimal{}
	}
	c.pass(field, RuleDecimalFormat)
	return decimal.NewNullDecimal(d)
}

func (c *rowCheck) code(field, v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if len([]rune(v)) != 1 {
		c.malformedValue(field, RuleCodeFormat, fmt.Sprintf("%q must be a single character", v))
		return ""
	}
	c.pass(field, RuleCodeFormat)
	return v
}

func (c *rowCheck) cost(field string, sc pif.SubmissionCost) (pif.CostFact, bool) {
	var cost pif.CostFact
	ok := true

	scenario, valid := pif.ParseScenario(sc.Scenario)
	if !valid {
		c.malformedValue(field+".scenario", RuleScenario,
			fmt.Sprintf("%q is not one of Target, Closings", sc.Scenario))
		ok = false
	}
	cost.Scenario = scenario

	year, err := strconv.Atoi(strings.TrimSpace(sc.Year))
	if err != nil || year < 1000 || year > 9999 {
		c.malformedValue(field+".year", RuleIntegerFormat, fmt.Sprintf("%q is not a calendar year", sc.Year))
		ok = false
	}
	cost.Year = year

	for _, v := range []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"requested_value", sc.RequestedValue, &cost.RequestedValue},
		{"current_value", sc.CurrentValue, &cost.CurrentValue},
		{"variance_value", sc.VarianceValue, &cost.VarianceValue},
	} {
		raw := strings.TrimSpace(v.raw)
		if raw == "" {
			c.malformedValue(field+"."+v.name, RuleCostValueRequired, "required")
			ok = false
			continue
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			c.malformedValue(field+"."+v.name, RuleDecimalFormat, fmt.Sprintf("%q is not a decimal amount", v.raw))
			ok = false
			continue
		}
		*v.dst = d
	}
	return cost, ok
}

func matches(v, trigger string) bool {
	return trigger != "" && strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(trigger))
}

func joinInts(ns []int) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ", ")
}
