package handler_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/medflow/payroll-backend/internal/payroll/domain"
	"github.com/medflow/payroll-backend/internal/payroll/handler"
	"github.com/medflow/payroll-backend/internal/payroll/service"
	"github.com/medflow/payroll-backend/pkg/errors"
	"github.com/medflow/payroll-backend/pkg/httputil"
	"github.com/medflow/payroll-backend/pkg/logger"
	"github.com/medflow/payroll-backend/pkg/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const employee = "7"

type stubAdvances struct {
	handler.AdvanceService

	created  service.CreateAdvanceInput
	patch    service.AdvancePatch
	owner    string
	reviewer string
	decision domain.ReviewDecision
	filter   domain.AdvanceFilter
	err      error
}

func (s *stubAdvances) Create(_ context.Context, employeeID string, in service.CreateAdvanceInput) (*domain.SalaryAdvance, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.owner, s.created = employeeID, in
	return &domain.SalaryAdvance{ID: "adv-1", EmployeeID: employeeID, Amount: in.Amount, Status: domain.AdvanceDraft}, nil
}

func (s *stubAdvances) Update(_ context.Context, id, _ string, patch service.AdvancePatch) (*domain.SalaryAdvance, error) {
	s.patch = patch
	return &domain.SalaryAdvance{ID: id, Status: domain.AdvanceDraft}, nil
}

func (s *stubAdvances) List(_ context.Context, f domain.AdvanceFilter) ([]*domain.SalaryAdvance, int64, error) {
	s.filter = f
	return []*domain.SalaryAdvance{{ID: "adv-1"}}, 41, nil
}

func (s *stubAdvances) Review(_ context.Context, id, reviewerID string, d domain.ReviewDecision, _ string) (*domain.SalaryAdvance, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.reviewer, s.decision = reviewerID, d
	return &domain.SalaryAdvance{ID: id, Status: domain.AdvanceApproved}, nil
}

func (s *stubAdvances) Delete(_ context.Context, _, _ string) error {
	return s.err
}

type stubLedger struct {
	period domain.Period
	err    error
}

func (s *stubLedger) ProcessRepayment(_ context.Context, advanceID string, p domain.Period) (*domain.AdvanceRepayment, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.period = p
	return &domain.AdvanceRepayment{AdvanceID: advanceID, PayslipMonth: p.Month, PayslipYear: p.Year, Amount: decimal.NewFromInt(300)}, nil
}

type stubPayslips struct {
	handler.PayslipService

	generated service.GenerateInput
	ownYear   int
	ownFor    string
	err       error
}

func (s *stubPayslips) Generate(_ context.Context, in service.GenerateInput) (*domain.Payslip, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.generated = in
	return &domain.Payslip{ID: "ps-1", EmployeeID: in.EmployeeID, Month: in.Month, Year: in.Year, Status: domain.PayslipDraft}, nil
}

func (s *stubPayslips) ListOwn(_ context.Context, employeeID string, year int) ([]*domain.Payslip, error) {
	s.ownFor, s.ownYear = employeeID, year
	return []*domain.Payslip{}, nil
}

func (s *stubPayslips) Publish(_ context.Context, id string) (*domain.Payslip, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Payslip{ID: id, Status: domain.PayslipPublished}, nil
}

func newRouter(adv *stubAdvances, led *stubLedger, ps *stubPayslips) http.Handler {
	log := logger.Nop()
	r := chi.NewRouter()
	r.Use(httputil.Authenticate(nil, true))
	handler.Routes(r, handler.NewAdvanceHandler(adv, led, log), handler.NewPayslipHandler(ps, log))
	return r
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httputil.Response {
	t.Helper()
	req := testutil.WithUserHeaders(testutil.NewHTTPRequest(method, path, body), employee, "employee")
	rr := testutil.ExecuteRequest(h, req)
	var resp httputil.Response
	if rr.Body.Len() > 0 {
		testutil.ParseJSONBody(t, rr, &resp)
	}
	if rr.Code >= 400 {
		require.NotNil(t, resp.Error, "status %d", rr.Code)
	}
	return &resp
}

func TestCreateAdvance(t *testing.T) {
	adv := &stubAdvances{}
	h := newRouter(adv, &stubLedger{}, &stubPayslips{})

	req := testutil.WithUserHeaders(testutil.NewHTTPRequest(http.MethodPost, "/advances", map[string]interface{}{
		"amount":           "1200.00",
		"reason":           "rent deposit",
		"needed_by_date":   "2025-02-01",
		"repayment_months": 4,
	}), employee, "employee")
	rr := testutil.ExecuteRequest(h, req)

	testutil.AssertStatus(t, rr, http.StatusCreated)
	assert.Equal(t, employee, adv.owner)
	assert.True(t, adv.created.Amount.Equal(decimal.NewFromInt(1200)))
	require.NotNil(t, adv.created.NeededByDate)
	assert.Equal(t, "2025-02-01", adv.created.NeededByDate.Format("2006-01-02"))
	require.NotNil(t, adv.created.RepaymentMonths)
	assert.Equal(t, 4, *adv.created.RepaymentMonths)
}

func TestCreateAdvance_Validation(t *testing.T) {
	h := newRouter(&stubAdvances{}, &stubLedger{}, &stubPayslips{})

	tests := []struct {
		name string
		body map[string]interface{}
		code string
	}{
		{"zero amount", map[string]interface{}{"amount": "0", "reason": "rent"}, "VALIDATION_ERROR"},
		{"missing reason", map[string]interface{}{"amount": "100"}, "VALIDATION_ERROR"},
		{"too many months", map[string]interface{}{"amount": "100", "reason": "rent", "repayment_months": 13}, "VALIDATION_ERROR"},
		{"amount above column range", map[string]interface{}{"amount": "1e20", "reason": "rent"}, "VALIDATION_ERROR"},
		{"bad date", map[string]interface{}{"amount": "100", "reason": "rent", "needed_by_date": "01/02/2025"}, "VALIDATION_ERROR"},
		{"unknown field", map[string]interface{}{"amount": "100", "reason": "rent", "status": "APPROVED"}, "BAD_REQUEST"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testutil.WithUserHeaders(testutil.NewHTTPRequest(http.MethodPost, "/advances", tt.body), employee, "")
			rr := testutil.ExecuteRequest(h, req)
			testutil.AssertStatus(t, rr, http.StatusBadRequest)
			testutil.AssertErrorCode(t, rr, tt.code)
		})
	}
}

func TestUpdateAdvance_ClearsOptionalFields(t *testing.T) {
	adv := &stubAdvances{}
	h := newRouter(adv, &stubLedger{}, &stubPayslips{})

	resp := do(t, h, http.MethodPut, "/advances/adv-1", map[string]interface{}{
		"clear_needed_by_date":   true,
		"clear_repayment_months": true,
	})

	assert.True(t, resp.Success)
	assert.True(t, adv.patch.ClearNeededByDate)
	assert.True(t, adv.patch.ClearRepaymentMonths)
	assert.Nil(t, adv.patch.RepaymentMonths)
}

func TestCreateAdvance_ServiceErrors(t *testing.T) {
	adv := &stubAdvances{err: errors.AmountExceedsLimit("1500.00")}
	h := newRouter(adv, &stubLedger{}, &stubPayslips{})

	req := testutil.WithUserHeaders(testutil.NewHTTPRequest(http.MethodPost, "/advances", map[string]interface{}{
		"amount": "2000", "reason": "car repair",
	}), employee, "")
	rr := testutil.ExecuteRequest(h, req)

	testutil.AssertStatus(t, rr, http.StatusBadRequest)
	testutil.AssertErrorCode(t, rr, "AMOUNT_EXCEEDS_LIMIT")
}

func TestRequiresIdentity(t *testing.T) {
	h := newRouter(&stubAdvances{}, &stubLedger{}, &stubPayslips{})

	rr := testutil.ExecuteRequest(h, testutil.NewHTTPRequest(http.MethodGet, "/advances", nil))
	testutil.AssertStatus(t, rr, http.StatusUnauthorized)
	testutil.AssertErrorCode(t, rr, "UNAUTHORIZED")
}

func TestListAdvances(t *testing.T) {
	adv := &stubAdvances{}
	h := newRouter(adv, &stubLedger{}, &stubPayslips{})

	req := testutil.WithUserHeaders(testutil.NewHTTPRequest(http.MethodGet, "/advances?employee_id=7&status=PENDING&page=2&per_page=20", nil), employee, "")
	rr := testutil.ExecuteRequest(h, req)
	testutil.AssertStatus(t, rr, http.StatusOK)

	var resp httputil.Response
	testutil.ParseJSONBody(t, rr, &resp)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, int64(41), resp.Meta.Total)
	assert.Equal(t, 3, resp.Meta.TotalPages)

	assert.Equal(t, domain.AdvanceFilter{EmployeeID: "7", Status: domain.AdvancePending, Page: 2, PerPage: 20}, adv.filter)
}

func TestReviewAdvance(t *testing.T) {
	t.Run("approves as the caller", func(t *testing.T) {
		adv := &stubAdvances{}
		h := newRouter(adv, &stubLedger{}, &stubPayslips{})

		req := testutil.WithUserHeaders(testutil.NewHTTPRequest(http.MethodPost, "/advances/adv-1/review", map[string]string{
			"decision": "APPROVED",
		}), "hr-manager", "hr")
		rr := testutil.ExecuteRequest(h, req)

		testutil.AssertStatus(t, rr, http.StatusOK)
		assert.Equal(t, "hr-manager", adv.reviewer)
		assert.Equal(t, domain.DecisionApprove, adv.decision)
	})

	t.Run("rejects unknown decision", func(t *testing.T) {
		h := newRouter(&stubAdvances{}, &stubLedger{}, &stubPayslips{})
		resp := do(t, h, http.MethodPost, "/advances/adv-1/review", map[string]string{"decision": "MAYBE"})
		assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	})

	t.Run("maps state errors to conflict", func(t *testing.T) {
		adv := &stubAdvances{err: errors.InvalidState("only pending advances can be reviewed")}
		h := newRouter(adv, &stubLedger{}, &stubPayslips{})

		req := testutil.WithUserHeaders(testutil.NewHTTPRequest(http.MethodPost, "/advances/adv-1/review", map[string]string{
			"decision": "REJECTED",
		}), "hr-manager", "")
		rr := testutil.ExecuteRequest(h, req)

		testutil.AssertStatus(t, rr, http.StatusConflict)
		testutil.AssertErrorCode(t, rr, "INVALID_STATE")
	})
}

func TestDeleteAdvance(t *testing.T) {
	h := newRouter(&stubAdvances{}, &stubLedger{}, &stubPayslips{})
	rr := testutil.ExecuteRequest(h, testutil.WithUserHeaders(testutil.NewHTTPRequest(http.MethodDelete, "/advances/adv-1", nil), employee, ""))
	testutil.AssertStatus(t, rr, http.StatusNoContent)

	h = newRouter(&stubAdvances{err: errors.Forbidden("you do not own this advance")}, &stubLedger{}, &stubPayslips{})
	rr = testutil.ExecuteRequest(h, testutil.WithUserHeaders(testutil.NewHTTPRequest(http.MethodDelete, "/advances/adv-1", nil), "8", ""))
	testutil.AssertStatus(t, rr, http.StatusForbidden)
}

func TestProcessRepayment(t *testing.T) {
	led := &stubLedger{}
	h := newRouter(&stubAdvances{}, led, &stubPayslips{})

	resp := do(t, h, http.MethodPost, "/advances/adv-1/repayments", map[string]int{"month": 2, "year": 2025})
	assert.True(t, resp.Success)
	assert.Equal(t, domain.Period{Month: 2, Year: 2025}, led.period)

	led.err = errors.NoRepaymentPlan("adv-1")
	resp = do(t, h, http.MethodPost, "/advances/adv-1/repayments", map[string]int{"month": 3, "year": 2025})
	assert.Equal(t, "NO_REPAYMENT_PLAN", resp.Error.Code)

	resp = do(t, h, http.MethodPost, "/advances/adv-1/repayments", map[string]int{"month": 13, "year": 2025})
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
}

func TestGeneratePayslip(t *testing.T) {
	ps := &stubPayslips{}
	h := newRouter(&stubAdvances{}, &stubLedger{}, ps)

	req := testutil.WithUserHeaders(testutil.NewHTTPRequest(http.MethodPost, "/payslips/generate", map[string]interface{}{
		"employee_id": "12", "month": 1, "year": 2025, "notes": "January run",
	}), "hr-manager", "hr")
	rr := testutil.ExecuteRequest(h, req)

	testutil.AssertStatus(t, rr, http.StatusCreated)
	assert.Equal(t, "hr-manager", ps.generated.GeneratedBy)
	assert.Equal(t, "12", ps.generated.EmployeeID)
	assert.Equal(t, 1, ps.generated.Month)
	require.NotNil(t, ps.generated.Notes)
	assert.Equal(t, "January run", *ps.generated.Notes)
}

func TestGeneratePayslip_Errors(t *testing.T) {
	t.Run("missing employee", func(t *testing.T) {
		h := newRouter(&stubAdvances{}, &stubLedger{}, &stubPayslips{})
		resp := do(t, h, http.MethodPost, "/payslips/generate", map[string]int{"month": 1, "year": 2025})
		assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	})

	t.Run("duplicate period", func(t *testing.T) {
		ps := &stubPayslips{err: errors.DuplicatePeriod("12", 1, 2025)}
		h := newRouter(&stubAdvances{}, &stubLedger{}, ps)

		req := testutil.WithUserHeaders(testutil.NewHTTPRequest(http.MethodPost, "/payslips/generate", map[string]interface{}{
			"employee_id": "12", "month": 1, "year": 2025,
		}), "hr-manager", "")
		rr := testutil.ExecuteRequest(h, req)

		testutil.AssertStatus(t, rr, http.StatusConflict)
		testutil.AssertErrorCode(t, rr, "DUPLICATE_PERIOD")
	})

	t.Run("no financial info", func(t *testing.T) {
		ps := &stubPayslips{err: errors.NoFinancialInfo("12")}
		h := newRouter(&stubAdvances{}, &stubLedger{}, ps)

		req := testutil.WithUserHeaders(testutil.NewHTTPRequest(http.MethodPost, "/payslips/generate", map[string]interface{}{
			"employee_id": "12", "month": 1, "year": 2025,
		}), "hr-manager", "")
		rr := testutil.ExecuteRequest(h, req)

		testutil.AssertStatus(t, rr, http.StatusUnprocessableEntity)
		testutil.AssertErrorCode(t, rr, "NO_FINANCIAL_INFO")
	})
}

func TestListOwnPayslips(t *testing.T) {
	ps := &stubPayslips{}
	h := newRouter(&stubAdvances{}, &stubLedger{}, ps)

	rr := testutil.ExecuteRequest(h, testutil.WithUserHeaders(testutil.NewHTTPRequest(http.MethodGet, "/payslips/me?year=2025", nil), employee, ""))

	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.Equal(t, employee, ps.ownFor)
	assert.Equal(t, 2025, ps.ownYear)
}

func TestPublishPayslip(t *testing.T) {
	h := newRouter(&stubAdvances{}, &stubLedger{}, &stubPayslips{})
	rr := testutil.ExecuteRequest(h, testutil.WithUserHeaders(testutil.NewHTTPRequest(http.MethodPost, "/payslips/ps-1/publish", nil), "hr-manager", ""))
	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.Contains(t, rr.Body.String(), `"status":"PUBLISHED"`)

	h = newRouter(&stubAdvances{}, &stubLedger{}, &stubPayslips{err: errors.InvalidState("only draft payslips can be published")})
	rr = testutil.ExecuteRequest(h, testutil.WithUserHeaders(testutil.NewHTTPRequest(http.MethodPost, "/payslips/ps-1/publish", nil), "hr-manager", ""))
	testutil.AssertStatus(t, rr, http.StatusConflict)
}
