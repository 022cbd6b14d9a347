// Package service implements the payroll business rules: the salary advance
// lifecycle, the repayment ledger, payslip computation and generation.
package service

import (
	"context"
	"time"

	"github.com/medflow/payroll-backend/internal/payroll/domain"
)

// TxRunner runs fn in a transaction carried by the context it passes on.
// Nested calls join the outer transaction.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
	// RetryTx additionally re-runs fn after serialization failures and deadlocks.
	RetryTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// AdvanceStore persists salary advances
type AdvanceStore interface {
	Create(ctx context.Context, a *domain.SalaryAdvance) error
	GetByID(ctx context.Context, id string) (*domain.SalaryAdvance, error)
	GetForUpdate(ctx context.Context, id string) (*domain.SalaryAdvance, error)
	Update(ctx context.Context, a *domain.SalaryAdvance) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, f domain.AdvanceFilter) ([]*domain.SalaryAdvance, int64, error)
	ListChargeable(ctx context.Context, employeeID string, period domain.Period) ([]*domain.SalaryAdvance, error)
}

// RepaymentStore persists the repayment ledger
type RepaymentStore interface {
	Insert(ctx context.Context, rep *domain.AdvanceRepayment) (bool, error)
	FindForPeriod(ctx context.Context, advanceID string, period domain.Period) (*domain.AdvanceRepayment, error)
	ListByAdvance(ctx context.Context, advanceID string) ([]*domain.AdvanceRepayment, error)
}

// PayslipStore persists payslips
type PayslipStore interface {
	Exists(ctx context.Context, employeeID string, period domain.Period) (bool, error)
	Create(ctx context.Context, p *domain.Payslip) error
	GetByID(ctx context.Context, id string) (*domain.Payslip, error)
	GetForUpdate(ctx context.Context, id string) (*domain.Payslip, error)
	UpdateNotes(ctx context.Context, p *domain.Payslip) error
	MarkPublished(ctx context.Context, p *domain.Payslip, at time.Time) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, f domain.PayslipFilter) ([]*domain.Payslip, int64, error)
	ListPublishedByEmployee(ctx context.Context, employeeID string, year int) ([]*domain.Payslip, error)
}

// BonusStore claims and releases bonuses
type BonusStore interface {
	ListEligibleForUpdate(ctx context.Context, employeeID string) ([]*domain.Bonus, error)
	MarkPaid(ctx context.Context, ids []string, period domain.Period, paidAt time.Time) error
	Release(ctx context.Context, ids []string, period domain.Period) error
}

// FinancialSnapshotProvider supplies an employee's pay configuration.
// It returns nil, nil when the employee has none on file.
type FinancialSnapshotProvider interface {
	GetFinancialSnapshot(ctx context.Context, employeeID string) (*domain.FinancialSnapshot, error)
}

// EventPublisher announces state changes. Publishing is fire-and-forget:
// implementations log failures and never report them to the caller.
type EventPublisher interface {
	PublishAdvanceSubmitted(ctx context.Context, a *domain.SalaryAdvance)
	PublishAdvanceReviewed(ctx context.Context, a *domain.SalaryAdvance)
	PublishAdvanceCancelled(ctx context.Context, a *domain.SalaryAdvance)
	PublishAdvanceCompleted(ctx context.Context, a *domain.SalaryAdvance)
	PublishPayslipGenerated(ctx context.Context, p *domain.Payslip)
	PublishPayslipPublished(ctx context.Context, p *domain.Payslip)
}
