package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BonusStatus is the state of a bonus as mirrored from staff-service
type BonusStatus string

const (
	BonusApproved  BonusStatus = "APPROVED"
	BonusPaid      BonusStatus = "PAID"
	BonusCancelled BonusStatus = "CANCELLED"
)

// Bonus is a one-off payment awarded to an employee. Generation claims
// eligible bonuses by stamping their period and marking them PAID.
type Bonus struct {
	ID           string          `db:"id" json:"id"`
	EmployeeID   string          `db:"employee_id" json:"employee_id"`
	Title        string          `db:"title" json:"title"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	Status       BonusStatus     `db:"status" json:"status"`
	PayslipMonth *int            `db:"payslip_month" json:"payslip_month,omitempty"`
	PayslipYear  *int            `db:"payslip_year" json:"payslip_year,omitempty"`
	PaidAt       *time.Time      `db:"paid_at" json:"paid_at,omitempty"`
	ApprovedAt   *time.Time      `db:"approved_at" json:"approved_at,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// IsEligible reports whether the bonus is approved and not yet linked to a period.
func (b *Bonus) IsEligible() bool {
	return b.Status == BonusApproved && b.PayslipMonth == nil && b.PayslipYear == nil
}
