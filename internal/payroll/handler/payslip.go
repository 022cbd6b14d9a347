package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/medflow/payroll-backend/internal/payroll/domain"
	"github.com/medflow/payroll-backend/internal/payroll/service"
	"github.com/medflow/payroll-backend/pkg/httputil"
	"github.com/medflow/payroll-backend/pkg/logger"
)

// PayslipHandler handles payslip endpoints
type PayslipHandler struct {
	service PayslipService
	logger  *logger.Logger
}

// NewPayslipHandler creates a new payslip handler
func NewPayslipHandler(svc PayslipService, log *logger.Logger) *PayslipHandler {
	return &PayslipHandler{
		service: svc,
		logger:  log,
	}
}

// GeneratePayslipRequest is the body of POST /payslips/generate
type GeneratePayslipRequest struct {
	EmployeeID string  `json:"employee_id" validate:"required"`
	Month      int     `json:"month" validate:"required,min=1,max=12"`
	Year       int     `json:"year" validate:"required,min=2020"`
	Notes      *string `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

// UpdatePayslipRequest is the body of PUT /payslips/{id}
type UpdatePayslipRequest struct {
	Notes *string `json:"notes" validate:"omitempty,max=2000"`
}

// Generate generates the DRAFT payslip of an employee for a period
func (h *PayslipHandler) Generate(w http.ResponseWriter, r *http.Request) {
	userID, err := actorID(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var req GeneratePayslipRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	p, err := h.service.Generate(r.Context(), service.GenerateInput{
		GeneratedBy: userID,
		EmployeeID:  req.EmployeeID,
		Month:       req.Month,
		Year:        req.Year,
		Notes:       req.Notes,
	})
	if err != nil {
		h.logger.Warn().
			Err(err).
			Str("employee_id", req.EmployeeID).
			Int("month", req.Month).
			Int("year", req.Year).
			Msg("payslip generation failed")
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, p)
}

// List lists payslips
func (h *PayslipHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := httputil.Pagination(r)
	filter := domain.PayslipFilter{
		EmployeeID: r.URL.Query().Get("employee_id"),
		Month:      httputil.QueryInt(r, "month", 0),
		Year:       httputil.QueryInt(r, "year", 0),
		Status:     domain.PayslipStatus(r.URL.Query().Get("status")),
		Page:       page,
		PerPage:    perPage,
	}

	payslips, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, payslips, httputil.NewMeta(page, perPage, total))
}

// ListOwn lists the caller's published payslips
func (h *PayslipHandler) ListOwn(w http.ResponseWriter, r *http.Request) {
	userID, err := actorID(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	payslips, err := h.service.ListOwn(r.Context(), userID, httputil.QueryInt(r, "year", 0))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, payslips)
}

// Get gets a payslip by id
func (h *PayslipHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, p)
}

// UpdateNotes replaces the notes of a DRAFT payslip
func (h *PayslipHandler) UpdateNotes(w http.ResponseWriter, r *http.Request) {
	var req UpdatePayslipRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	p, err := h.service.UpdateNotes(r.Context(), chi.URLParam(r, "id"), req.Notes)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, p)
}

// Delete removes a DRAFT payslip
func (h *PayslipHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}

// Publish publishes a DRAFT payslip to its employee
func (h *PayslipHandler) Publish(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Publish(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, p)
}
