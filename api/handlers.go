/*
handlers.go - HTTP API handlers for the PIF pipeline

PURPOSE:
  Exposes the pipeline service via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to pipeline.Service.

ENDPOINTS:
  Validation:
    POST   /api/validate                    Dry-run validation of rows

  Submissions:
    POST   /api/submissions                 Validate, stage and merge a batch
    GET    /api/submissions?site=&limit=    Audit log, newest first

  Promotion:
    POST   /api/sites/{site}/promote        archive_approved(site)

  Records:
    GET    /api/projects/{store}?site=      Projects with their costs
    GET    /api/views/{store}?site=         Wide cost view (inflight, approved)

  Reporting period:
    GET    /api/reporting-period
    PUT    /api/reporting-period

ERROR HANDLING:
  Errors are returned as JSON with an HTTP status derived from the error
  taxonomy in pif/errors.go:
  - 400: Missing site, invalid input, invalid reporting period
  - 404: Unknown store
  - 409: Duplicate natural key
  - 422: Blocking validation failures (body carries the failures)
  - 503: Reporting period unavailable
  - 500: Transaction failures and everything else

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pifworks/pif-pipeline/pif"
	"github.com/pifworks/pif-pipeline/pipeline"
	"github.com/pifworks/pif-pipeline/validation"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *pipeline.Service
	logger  *zap.Logger
}

// NewHandler creates a new handler around the pipeline service.
func NewHandler(svc *pipeline.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Service: svc, logger: logger.Named("api")}
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate runs the rule set without touching any store.
// POST /api/validate?verbose=true
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	report, err := h.Service.Validate(req.Rows, req.Site)
	if err != nil {
		h.fail(w, "Validation requires a site", err)
		return
	}
	writeJSON(w, http.StatusOK, toReportDTO(report, r.URL.Query().Get("verbose") == "true"))
}

// =============================================================================
// SUBMISSIONS
// =============================================================================

// Submit validates a batch and lands it in staging and inflight.
// POST /api/submissions
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var batch pif.Batch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	res, err := h.Service.Submit(r.Context(), batch)
	if res == nil {
		h.fail(w, "Submission failed", err)
		return
	}

	resp := SubmitResponse{
		SubmissionID:   res.SubmissionID,
		Status:         pif.SubmissionAccepted,
		Report:         toReportDTO(res.Report, false),
		ProjectsStaged: res.ProjectsStaged,
		CostsStaged:    res.CostsStaged,
		ProjectsMerged: res.ProjectsMerged,
		CostsMerged:    res.CostsMerged,
	}
	if err != nil {
		if !errors.Is(err, pif.ErrValidationFailed) {
			h.fail(w, "Submission failed", err)
			return
		}
		resp.Status = pif.SubmissionRejected
		writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// ListSubmissions returns the audit log.
// GET /api/submissions?site=ANO&limit=50
func (h *Handler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	subs, err := h.Service.Submissions(r.Context(), r.URL.Query().Get("site"), limit)
	if err != nil {
		h.fail(w, "Failed to list submissions", err)
		return
	}

	dtos := make([]SubmissionDTO, len(subs))
	for i, s := range subs {
		dtos[i] = toSubmissionDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// PROMOTION
// =============================================================================

// Promote runs archive_approved for one site.
// POST /api/sites/{site}/promote
func (h *Handler) Promote(w http.ResponseWriter, r *http.Request) {
	site := chi.URLParam(r, "site")

	result, err := h.Service.Promote(r.Context(), site)
	if err != nil {
		resp := PromotionDTO{
			Status:       "error",
			Site:         site,
			ErrorMessage: err.Error(),
		}
		var blocked *validation.BlockedError
		if errors.As(err, &blocked) {
			resp.Failures = blocked.Failures
		}
		var txErr *pif.TransactionError
		if errors.As(err, &txErr) {
			resp.Step = txErr.Step
		}
		writeJSON(w, statusFor(err), resp)
		return
	}

	promotedAt := result.PromotedAt
	writeJSON(w, http.StatusOK, PromotionDTO{
		Status:           "success",
		Site:             result.Site,
		ProjectsAffected: result.ProjectsAffected,
		CostsAffected:    result.CostsAffected,
		PromotedAt:       &promotedAt,
	})
}

// =============================================================================
// RECORDS AND VIEWS
// =============================================================================

// ListProjects returns the projects of one store with their costs.
// GET /api/projects/{store}?site=ANO
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	kind, err := pif.ParseStoreKind(chi.URLParam(r, "store"))
	if err != nil {
		h.fail(w, "Unknown store", err)
		return
	}

	projects, costs, err := h.Service.Records(r.Context(), kind, r.URL.Query().Get("site"))
	if err != nil {
		h.fail(w, "Failed to list projects", err)
		return
	}
	writeJSON(w, http.StatusOK, toProjectDTOs(projects, costs))
}

// WideView returns the pivoted costs of inflight or approved.
// GET /api/views/{store}?site=ANO
func (h *Handler) WideView(w http.ResponseWriter, r *http.Request) {
	kind, err := pif.ParseStoreKind(chi.URLParam(r, "store"))
	if err != nil {
		h.fail(w, "Unknown store", err)
		return
	}

	view, err := h.Service.WideView(r.Context(), kind, r.URL.Query().Get("site"))
	if err != nil {
		h.fail(w, "Failed to build view", err)
		return
	}
	writeJSON(w, http.StatusOK, toWideViewDTO(view))
}

// =============================================================================
// REPORTING PERIOD
// =============================================================================

// GetReportingPeriod returns the period views are built against.
// GET /api/reporting-period
func (h *Handler) GetReportingPeriod(w http.ResponseWriter, r *http.Request) {
	p, err := h.Service.ReportingPeriod(r.Context())
	if err != nil {
		h.fail(w, "Reporting period unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, ReportingPeriodDTO{Year: p.Year, Month: p.Month})
}

// SetReportingPeriod persists a new period.
// PUT /api/reporting-period
func (h *Handler) SetReportingPeriod(w http.ResponseWriter, r *http.Request) {
	var req ReportingPeriodDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	p := pif.ReportingPeriod{Year: req.Year, Month: req.Month}
	if err := h.Service.SetReportingPeriod(r.Context(), p); err != nil {
		h.fail(w, "Failed to set reporting period", err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// =============================================================================
// HELPERS
// =============================================================================

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, pif.ErrValidationFailed):
		return http.StatusUnprocessableEntity
	case pif.IsClientError(err):
		return http.StatusBadRequest
	case errors.Is(err, pif.ErrUnknownStore):
		return http.StatusNotFound
	case errors.Is(err, pif.ErrDuplicateKey):
		return http.StatusConflict
	case pif.IsConfigurationError(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(message, zap.Error(err))
	}

	resp := ErrorResponse{Error: message, Details: err.Error()}
	var blocked *validation.BlockedError
	if errors.As(err, &blocked) {
		resp.Code = "validation_failed"
		resp.Failures = blocked.Failures
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
