// Package handler exposes the payroll services over HTTP.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/medflow/payroll-backend/internal/payroll/domain"
	"github.com/medflow/payroll-backend/internal/payroll/service"
	"github.com/medflow/payroll-backend/pkg/actor"
	"github.com/medflow/payroll-backend/pkg/errors"
)

// AdvanceService is the advance lifecycle as used by the handlers
type AdvanceService interface {
	Create(ctx context.Context, employeeID string, in service.CreateAdvanceInput) (*domain.SalaryAdvance, error)
	Get(ctx context.Context, id string) (*domain.SalaryAdvance, error)
	List(ctx context.Context, filter domain.AdvanceFilter) ([]*domain.SalaryAdvance, int64, error)
	ListRepayments(ctx context.Context, id string) ([]*domain.AdvanceRepayment, error)
	Update(ctx context.Context, id, actorID string, patch service.AdvancePatch) (*domain.SalaryAdvance, error)
	Submit(ctx context.Context, id, actorID string) (*domain.SalaryAdvance, error)
	Review(ctx context.Context, id, reviewerID string, decision domain.ReviewDecision, comment string) (*domain.SalaryAdvance, error)
	Cancel(ctx context.Context, id, actorID string) (*domain.SalaryAdvance, error)
	Delete(ctx context.Context, id, actorID string) error
}

// RepaymentLedger charges advance installments
type RepaymentLedger interface {
	ProcessRepayment(ctx context.Context, advanceID string, period domain.Period) (*domain.AdvanceRepayment, error)
}

// PayslipService is payslip generation and publication as used by the handlers
type PayslipService interface {
	Generate(ctx context.Context, in service.GenerateInput) (*domain.Payslip, error)
	Get(ctx context.Context, id string) (*domain.Payslip, error)
	List(ctx context.Context, filter domain.PayslipFilter) ([]*domain.Payslip, int64, error)
	ListOwn(ctx context.Context, employeeID string, year int) ([]*domain.Payslip, error)
	UpdateNotes(ctx context.Context, id string, notes *string) (*domain.Payslip, error)
	Delete(ctx context.Context, id string) error
	Publish(ctx context.Context, id string) (*domain.Payslip, error)
}

// Routes mounts the payroll endpoints on r
func Routes(r chi.Router, advances *AdvanceHandler, payslips *PayslipHandler) {
	r.Route("/advances", func(r chi.Router) {
		r.Get("/", advances.List)
		r.Post("/", advances.Create)
		r.Get("/{id}", advances.Get)
		r.Put("/{id}", advances.Update)
		r.Delete("/{id}", advances.Delete)
		r.Post("/{id}/submit", advances.Submit)
		r.Post("/{id}/review", advances.Review)
		r.Post("/{id}/cancel", advances.Cancel)
		r.Get("/{id}/repayments", advances.ListRepayments)
		r.Post("/{id}/repayments", advances.ProcessRepayment)
	})

	r.Route("/payslips", func(r chi.Router) {
		r.Get("/", payslips.List)
		r.Post("/generate", payslips.Generate)
		r.Get("/me", payslips.ListOwn)
		r.Get("/{id}", payslips.Get)
		r.Put("/{id}", payslips.UpdateNotes)
		r.Delete("/{id}", payslips.Delete)
		r.Post("/{id}/publish", payslips.Publish)
	})
}

// actorID returns the authenticated caller's id
func actorID(r *http.Request) (string, error) {
	a := actor.FromContext(r.Context())
	if a == nil || a.ID == "" {
		return "", errors.Unauthorized("authentication required")
	}
	return a.ID, nil
}

func parseDate(field string, raw *string) (*time.Time, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", *raw)
	if err != nil {
		return nil, errors.Validation(map[string]string{field: "must be a date formatted as 2006-01-02"})
	}
	return &t, nil
}
