/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the domain model (pif/, validation/, reporting/) from the external API
  contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Validation:  ValidateRequest, ValidationReportDTO
  Submission:  SubmitResponse, SubmissionDTO (pif.Batch is the request)
  Promotion:   PromotionDTO
  Records:     ProjectDTO, CostDTO
  Reporting:   WideViewDTO, WideRowDTO, ReportingPeriodDTO

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/pifworks/pif-pipeline/pif"
	"github.com/pifworks/pif-pipeline/reporting"
	"github.com/pifworks/pif-pipeline/validation"
)

// =============================================================================
// VALIDATION
// =============================================================================

// ValidateRequest is a dry-run validation of rows for a site.
type ValidateRequest struct {
	Site string              `json:"site"`
	Rows []pif.SubmissionRow `json:"rows"`
}

// ValidationReportDTO summarizes a validation pass.
type ValidationReportDTO struct {
	Site     string              `json:"site"`
	Valid    bool                `json:"valid"`
	Failures []validation.Result `json:"failures"`
	Warnings []validation.Result `json:"warnings"`
	Results  []validation.Result `json:"results,omitempty"`
}

func toReportDTO(r *validation.Report, verbose bool) ValidationReportDTO {
	dto := ValidationReportDTO{
		Site:     r.Site,
		Valid:    !r.HasBlocking(),
		Failures: r.Blocking(),
		Warnings: r.Warnings(),
	}
	if dto.Failures == nil {
		dto.Failures = []validation.Result{}
	}
	if dto.Warnings == nil {
		dto.Warnings = []validation.Result{}
	}
	if verbose {
		dto.Results = r.Results
	}
	return dto
}

// =============================================================================
// SUBMISSION
// =============================================================================

// SubmitResponse is returned for both accepted and rejected submissions.
type SubmitResponse struct {
	SubmissionID   string               `json:"submission_id"`
	Status         pif.SubmissionStatus `json:"status"`
	Report         ValidationReportDTO  `json:"report"`
	ProjectsStaged int                  `json:"projects_staged"`
	CostsStaged    int                  `json:"costs_staged"`
	ProjectsMerged int                  `json:"projects_merged"`
	CostsMerged    int                  `json:"costs_merged"`
}

// SubmissionDTO is an audit log entry.
type SubmissionDTO struct {
	ID           string               `json:"id"`
	Site         string               `json:"site"`
	SubmittedBy  string               `json:"submitted_by"`
	Status       pif.SubmissionStatus `json:"status"`
	RowCount     int                  `json:"row_count"`
	FailureCount int                  `json:"failure_count"`
	SubmittedAt  time.Time            `json:"submitted_at"`
}

func toSubmissionDTO(s pif.Submission) SubmissionDTO {
	return SubmissionDTO{
		ID:           s.ID,
		Site:         s.Site,
		SubmittedBy:  s.SubmittedBy,
		Status:       s.Status,
		RowCount:     s.RowCount,
		FailureCount: s.FailureCount,
		SubmittedAt:  s.SubmittedAt,
	}
}

// =============================================================================
// PROMOTION
// =============================================================================

// PromotionDTO is the outcome of a promotion run.
type PromotionDTO struct {
	Status           string              `json:"status"` // success or error
	Site             string              `json:"site"`
	ProjectsAffected int                 `json:"projects_affected"`
	CostsAffected    int                 `json:"costs_affected"`
	PromotedAt       *time.Time          `json:"promoted_at,omitempty"`
	ErrorMessage     string              `json:"error_message,omitempty"`
	Step             string              `json:"step,omitempty"`
	Failures         []validation.Result `json:"failures,omitempty"`
}

// =============================================================================
// RECORDS
// =============================================================================

// CostDTO is one cost fact.
type CostDTO struct {
	Scenario       pif.Scenario    `json:"scenario"`
	Year           int             `json:"year"`
	RequestedValue decimal.Decimal `json:"requested_value"`
	CurrentValue   decimal.Decimal `json:"current_value"`
	VarianceValue  decimal.Decimal `json:"variance_value"`
}

// ProjectDTO is a project record with its costs.
type ProjectDTO struct {
	PIFID               string              `json:"pif_id"`
	ProjectID           string              `json:"project_id"`
	LineItem            int                 `json:"line_item"`
	Site                string              `json:"site"`
	ArchiveFlag         bool                `json:"archive_flag"`
	IncludeFlag         bool                `json:"include_flag"`
	ChangeType          string              `json:"change_type,omitempty"`
	Category            string              `json:"category,omitempty"`
	AccountingTreatment string              `json:"accounting_treatment,omitempty"`
	StrategicRank       string              `json:"strategic_rank,omitempty"`
	Status              string              `json:"status,omitempty"`
	Justification       string              `json:"justification,omitempty"`
	LCMIssue            string              `json:"lcm_issue,omitempty"`
	Seg                 *int                `json:"seg,omitempty"`
	PriorYearSpend      decimal.NullDecimal `json:"prior_year_spend"`
	OriginalFPISD       *time.Time          `json:"original_fp_isd,omitempty"`
	RevisedFPISD        *time.Time          `json:"revised_fp_isd,omitempty"`
	MovingISDYear       string              `json:"moving_isd_year,omitempty"`
	SubmissionDate      *time.Time          `json:"submission_date,omitempty"`
	ApprovalDate        *time.Time          `json:"approval_date,omitempty"`
	Costs               []CostDTO           `json:"costs"`
}

func toProjectDTOs(projects []pif.ProjectRecord, costs []pif.CostFact) []ProjectDTO {
	byKey := make(map[pif.Key][]CostDTO)
	for _, c := range costs {
		byKey[c.Key()] = append(byKey[c.Key()], CostDTO{
			Scenario:       c.Scenario,
			Year:           c.Year,
			RequestedValue: c.RequestedValue,
			CurrentValue:   c.CurrentValue,
			VarianceValue:  c.VarianceValue,
		})
	}

	dtos := make([]ProjectDTO, len(projects))
	for i, p := range projects {
		pc := byKey[p.Key()]
		if pc == nil {
			pc = []CostDTO{}
		}
		dtos[i] = ProjectDTO{
			PIFID:               p.PIFID,
			ProjectID:           p.ProjectID,
			LineItem:            p.LineItem,
			Site:                p.Site,
			ArchiveFlag:         p.ArchiveFlag,
			IncludeFlag:         p.IncludeFlag,
			ChangeType:          p.ChangeType,
			Category:            p.Category,
			AccountingTreatment: p.AccountingTreatment,
			StrategicRank:       p.StrategicRank,
			Status:              p.Status,
			Justification:       p.Justification,
			LCMIssue:            p.LCMIssue,
			Seg:                 p.Seg,
			PriorYearSpend:      p.PriorYearSpend,
			OriginalFPISD:       p.OriginalFPISD,
			RevisedFPISD:        p.RevisedFPISD,
			MovingISDYear:       p.MovingISDYear,
			SubmissionDate:      p.SubmissionDate,
			ApprovalDate:        p.ApprovalDate,
			Costs:               pc,
		}
	}
	return dtos
}

// =============================================================================
// REPORTING
// =============================================================================

// ReportingPeriodDTO is the reporting year and month.
type ReportingPeriodDTO struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// WideRowDTO is one pivoted project. Cells holds every column; absent
// values are null.
type WideRowDTO struct {
	PIFID        string                      `json:"pif_id"`
	ProjectID    string                      `json:"project_id"`
	LineItem     int                         `json:"line_item"`
	Site         string                      `json:"site"`
	Status       string                      `json:"status,omitempty"`
	ApprovalDate *time.Time                  `json:"approval_date,omitempty"`
	Cells        map[string]*decimal.Decimal `json:"cells"`
}

// WideViewDTO is a pivoted store.
type WideViewDTO struct {
	Store   pif.StoreKind      `json:"store"`
	Site    string             `json:"site,omitempty"`
	Period  ReportingPeriodDTO `json:"period"`
	Columns []string           `json:"columns"`
	Rows    []WideRowDTO       `json:"rows"`
}

func toWideViewDTO(v *reporting.View) WideViewDTO {
	names := make([]string, len(v.Columns))
	for i, c := range v.Columns {
		names[i] = c.Name()
	}

	rows := make([]WideRowDTO, len(v.Rows))
	for i, r := range v.Rows {
		cells := make(map[string]*decimal.Decimal, len(v.Columns))
		for j, c := range v.Columns {
			cells[names[j]] = r.Value(c)
		}
		rows[i] = WideRowDTO{
			PIFID:        r.Project.PIFID,
			ProjectID:    r.Project.ProjectID,
			LineItem:     r.Project.LineItem,
			Site:         r.Project.Site,
			Status:       r.Project.Status,
			ApprovalDate: r.Project.ApprovalDate,
			Cells:        cells,
		}
	}

	return WideViewDTO{
		Store:   v.Store,
		Site:    v.Site,
		Period:  ReportingPeriodDTO{Year: v.Period.Year, Month: v.Period.Month},
		Columns: names,
		Rows:    rows,
	}
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error    string              `json:"error"`
	Code     string              `json:"code,omitempty"`
	Details  any                 `json:"details,omitempty"`
	Failures []validation.Result `json:"failures,omitempty"`
}
