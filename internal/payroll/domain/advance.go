package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AdvanceStatus is the lifecycle state of a salary advance
type AdvanceStatus string

const (
	AdvanceDraft     AdvanceStatus = "DRAFT"
	AdvancePending   AdvanceStatus = "PENDING"
	AdvanceApproved  AdvanceStatus = "APPROVED"
	AdvanceRejected  AdvanceStatus = "REJECTED"
	AdvanceCancelled AdvanceStatus = "CANCELLED"
	AdvanceRepaying  AdvanceStatus = "REPAYING"
	AdvanceCompleted AdvanceStatus = "COMPLETED"
)

// Valid reports whether s is a known status
func (s AdvanceStatus) Valid() bool {
	switch s {
	case AdvanceDraft, AdvancePending, AdvanceApproved, AdvanceRejected,
		AdvanceCancelled, AdvanceRepaying, AdvanceCompleted:
		return true
	}
	return false
}

// ReviewDecision is the outcome a reviewer picks for a pending advance
type ReviewDecision string

const (
	DecisionApprove ReviewDecision = "APPROVED"
	DecisionReject  ReviewDecision = "REJECTED"
)

// Status maps the decision to the advance status it produces
func (d ReviewDecision) Status() (AdvanceStatus, bool) {
	switch d {
	case DecisionApprove:
		return AdvanceApproved, true
	case DecisionReject:
		return AdvanceRejected, true
	}
	return "", false
}

// Repayment months bounds
const (
	MinRepaymentMonths = 1
	MaxRepaymentMonths = 12
)

// MaxAmount is the largest amount a NUMERIC(12,2) column holds
var MaxAmount = decimal.RequireFromString("9999999999.99")

// IsCents reports whether d carries no more than two decimal places.
func IsCents(d decimal.Decimal) bool {
	return d.Equal(d.Round(2))
}

// SalaryAdvance is an employer-funded advance repaid through payroll deductions
type SalaryAdvance struct {
	ID               string           `db:"id" json:"id"`
	EmployeeID       string           `db:"employee_id" json:"employee_id"`
	Amount           decimal.Decimal  `db:"amount" json:"amount"`
	Reason           string           `db:"reason" json:"reason"`
	NeededByDate     *time.Time       `db:"needed_by_date" json:"needed_by_date,omitempty"`
	RepaymentMonths  *int             `db:"repayment_months" json:"repayment_months,omitempty"`
	MonthlyDeduction *decimal.Decimal `db:"monthly_deduction" json:"monthly_deduction,omitempty"`
	Status           AdvanceStatus    `db:"status" json:"status"`
	SubmittedAt      *time.Time       `db:"submitted_at" json:"submitted_at,omitempty"`
	ReviewedBy       *string          `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt       *time.Time       `db:"reviewed_at" json:"reviewed_at,omitempty"`
	ReviewerComment  *string          `db:"reviewer_comment" json:"reviewer_comment,omitempty"`
	RepaymentStart   *time.Time       `db:"repayment_start" json:"repayment_start,omitempty"`
	TotalRepaid      decimal.Decimal  `db:"total_repaid" json:"total_repaid"`
	FullyRepaidAt    *time.Time       `db:"fully_repaid_at" json:"fully_repaid_at,omitempty"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updated_at"`
}

// CanEdit reports whether the owner may still change or submit the advance.
func (a *SalaryAdvance) CanEdit() bool {
	return a.Status == AdvanceDraft
}

// CanReview reports whether the advance is awaiting a decision.
func (a *SalaryAdvance) CanReview() bool {
	return a.Status == AdvancePending
}

// CanCancel reports whether the owner may withdraw the advance.
func (a *SalaryAdvance) CanCancel() bool {
	return a.Status == AdvanceDraft || a.Status == AdvancePending
}

// CanDelete reports whether the advance may be removed.
func (a *SalaryAdvance) CanDelete() bool {
	return a.Status == AdvanceDraft || a.Status == AdvanceCancelled
}

// IsChargeable reports whether repayments may be charged against the advance.
func (a *SalaryAdvance) IsChargeable() bool {
	return a.Status == AdvanceApproved || a.Status == AdvanceRepaying
}

// IsSettled reports whether the principal has been repaid in full.
func (a *SalaryAdvance) IsSettled() bool {
	return a.TotalRepaid.GreaterThanOrEqual(a.Amount)
}

// Remaining is the principal still owed.
func (a *SalaryAdvance) Remaining() decimal.Decimal {
	r := a.Amount.Sub(a.TotalRepaid)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

// NextCharge is the installment to charge next: the monthly deduction,
// clipped to the remaining balance. ok is false without a repayment plan.
func (a *SalaryAdvance) NextCharge() (charge decimal.Decimal, ok bool) {
	if a.MonthlyDeduction == nil {
		return decimal.Zero, false
	}
	return decimal.Min(*a.MonthlyDeduction, a.Remaining()), true
}

// ApplySchedule recomputes monthly_deduction from amount and repayment months.
func (a *SalaryAdvance) ApplySchedule() {
	if a.RepaymentMonths == nil {
		a.MonthlyDeduction = nil
		return
	}
	d := MonthlyDeduction(a.Amount, *a.RepaymentMonths)
	a.MonthlyDeduction = &d
}

// MonthlyDeduction amortizes amount over months at cent precision.
// The last installment is clipped by the ledger and absorbs the remainder.
func MonthlyDeduction(amount decimal.Decimal, months int) decimal.Decimal {
	return amount.DivRound(decimal.NewFromInt(int64(months)), 2)
}

// AdvanceRepayment is one installment charged against an advance for a payroll period
type AdvanceRepayment struct {
	ID           string          `db:"id" json:"id"`
	AdvanceID    string          `db:"advance_id" json:"advance_id"`
	PayslipMonth int             `db:"payslip_month" json:"payslip_month"`
	PayslipYear  int             `db:"payslip_year" json:"payslip_year"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	DeductedAt   time.Time       `db:"deducted_at" json:"deducted_at"`
}

// AdvanceFilter narrows advance listings
type AdvanceFilter struct {
	EmployeeID string
	Status     AdvanceStatus
	Page       int
	PerPage    int
}
