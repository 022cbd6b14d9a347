package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/medflow/payroll-backend/internal/payroll/domain"
	"github.com/medflow/payroll-backend/internal/payroll/service"
	"github.com/medflow/payroll-backend/pkg/httputil"
	"github.com/medflow/payroll-backend/pkg/logger"
	"github.com/shopspring/decimal"
)

// AdvanceHandler handles salary advance endpoints
type AdvanceHandler struct {
	service AdvanceService
	ledger  RepaymentLedger
	logger  *logger.Logger
}

// NewAdvanceHandler creates a new advance handler
func NewAdvanceHandler(svc AdvanceService, ledger RepaymentLedger, log *logger.Logger) *AdvanceHandler {
	return &AdvanceHandler{
		service: svc,
		ledger:  ledger,
		logger:  log,
	}
}

// CreateAdvanceRequest is the body of POST /advances
type CreateAdvanceRequest struct {
	Amount          decimal.Decimal `json:"amount" validate:"gt=0,max=9999999999.99"`
	Reason          string          `json:"reason" validate:"required,max=1000"`
	NeededByDate    *string         `json:"needed_by_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	RepaymentMonths *int            `json:"repayment_months,omitempty" validate:"omitempty,min=1,max=12"`
}

// UpdateAdvanceRequest is the body of PUT /advances/{id}; omitted fields are
// unchanged and the clear_* flags remove an optional field
type UpdateAdvanceRequest struct {
	Amount               *decimal.Decimal `json:"amount,omitempty" validate:"omitempty,gt=0,max=9999999999.99"`
	Reason               *string          `json:"reason,omitempty" validate:"omitempty,min=1,max=1000"`
	NeededByDate         *string          `json:"needed_by_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	RepaymentMonths      *int             `json:"repayment_months,omitempty" validate:"omitempty,min=1,max=12"`
	ClearNeededByDate    bool             `json:"clear_needed_by_date,omitempty"`
	ClearRepaymentMonths bool             `json:"clear_repayment_months,omitempty"`
}

// ReviewAdvanceRequest is the body of POST /advances/{id}/review
type ReviewAdvanceRequest struct {
	Decision string `json:"decision" validate:"required,oneof=APPROVED REJECTED"`
	Comment  string `json:"comment,omitempty" validate:"max=2000"`
}

// ProcessRepaymentRequest is the body of POST /advances/{id}/repayments
type ProcessRepaymentRequest struct {
	Month int `json:"month" validate:"required,min=1,max=12"`
	Year  int `json:"year" validate:"required,min=2020"`
}

// List lists advances
func (h *AdvanceHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := httputil.Pagination(r)
	filter := domain.AdvanceFilter{
		EmployeeID: r.URL.Query().Get("employee_id"),
		Status:     domain.AdvanceStatus(r.URL.Query().Get("status")),
		Page:       page,
		PerPage:    perPage,
	}

	advances, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, advances, httputil.NewMeta(page, perPage, total))
}

// Create creates a DRAFT advance for the caller
func (h *AdvanceHandler) Create(w http.ResponseWriter, r *http.Request) {
	employeeID, err := actorID(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var req CreateAdvanceRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	neededBy, err := parseDate("needed_by_date", req.NeededByDate)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	adv, err := h.service.Create(r.Context(), employeeID, service.CreateAdvanceInput{
		Amount:          req.Amount,
		Reason:          req.Reason,
		NeededByDate:    neededBy,
		RepaymentMonths: req.RepaymentMonths,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, adv)
}

// Get gets an advance by id
func (h *AdvanceHandler) Get(w http.ResponseWriter, r *http.Request) {
	adv, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, adv)
}

// Update edits a DRAFT advance
func (h *AdvanceHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, err := actorID(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var req UpdateAdvanceRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	neededBy, err := parseDate("needed_by_date", req.NeededByDate)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	adv, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), userID, service.AdvancePatch{
		Amount:               req.Amount,
		Reason:               req.Reason,
		NeededByDate:         neededBy,
		RepaymentMonths:      req.RepaymentMonths,
		ClearNeededByDate:    req.ClearNeededByDate,
		ClearRepaymentMonths: req.ClearRepaymentMonths,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, adv)
}

// Submit sends a DRAFT advance for review
func (h *AdvanceHandler) Submit(w http.ResponseWriter, r *http.Request) {
	userID, err := actorID(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	adv, err := h.service.Submit(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, adv)
}

// Review approves or rejects a PENDING advance
func (h *AdvanceHandler) Review(w http.ResponseWriter, r *http.Request) {
	reviewerID, err := actorID(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var req ReviewAdvanceRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	adv, err := h.service.Review(r.Context(), chi.URLParam(r, "id"), reviewerID, domain.ReviewDecision(req.Decision), req.Comment)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, adv)
}

// Cancel withdraws a DRAFT or PENDING advance
func (h *AdvanceHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, err := actorID(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	adv, err := h.service.Cancel(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, adv)
}

// Delete removes a DRAFT or CANCELLED advance
func (h *AdvanceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, err := actorID(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id"), userID); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}

// ListRepayments lists the installments charged against an advance
func (h *AdvanceHandler) ListRepayments(w http.ResponseWriter, r *http.Request) {
	repayments, err := h.service.ListRepayments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, repayments)
}

// ProcessRepayment charges the advance's installment for a period outside a payroll run
func (h *AdvanceHandler) ProcessRepayment(w http.ResponseWriter, r *http.Request) {
	var req ProcessRepaymentRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	id := chi.URLParam(r, "id")
	rep, err := h.ledger.ProcessRepayment(r.Context(), id, domain.Period{Month: req.Month, Year: req.Year})
	if err != nil {
		h.logger.Error().Err(err).Str("advance_id", id).Msg("failed to process repayment")
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, rep)
}
