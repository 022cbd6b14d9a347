package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PayslipStatus is the publication state of a payslip
type PayslipStatus string

const (
	PayslipDraft     PayslipStatus = "DRAFT"
	PayslipPublished PayslipStatus = "PUBLISHED"
)

// Valid reports whether s is a known payslip status
func (s PayslipStatus) Valid() bool {
	return s == PayslipDraft || s == PayslipPublished
}

// Allowance line codes, in breakdown order
const (
	LineHousing = "housing"
	LineMedical = "medical"
	LineSpecial = "special"
	LineFuel    = "fuel"
	LinePhone   = "phone"
	LineOther   = "other"
)

// Deduction line codes, in breakdown order
const (
	LineProvidentFund    = "provident_fund"
	LineTax              = "tax"
	LineOtherDeduction   = "other"
	LineAdvanceRepayment = "advance_repayment"
)

// LineItem is one named amount in an allowance or deduction breakdown
type LineItem struct {
	Code   string          `json:"code"`
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

// LineItems is an ordered breakdown stored as a JSONB array
type LineItems []LineItem

// Value implements driver.Valuer
func (l LineItems) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner
func (l *LineItems) Scan(src interface{}) error {
	return scanJSON(src, l)
}

// Total sums the line amounts
func (l LineItems) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range l {
		total = total.Add(item.Amount)
	}
	return total
}

// BonusLine is one consumed bonus in a payslip's bonus breakdown
type BonusLine struct {
	BonusID string          `json:"bonus_id"`
	Name    string          `json:"name"`
	Amount  decimal.Decimal `json:"amount"`
}

// BonusLines is the bonus breakdown stored as a JSONB array
type BonusLines []BonusLine

// Value implements driver.Valuer
func (b BonusLines) Value() (driver.Value, error) {
	if b == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(b)
}

// Scan implements sql.Scanner
func (b *BonusLines) Scan(src interface{}) error {
	return scanJSON(src, b)
}

// IDs returns the consumed bonus ids in breakdown order
func (b BonusLines) IDs() []string {
	ids := make([]string, len(b))
	for i, line := range b {
		ids[i] = line.BonusID
	}
	return ids
}

func scanJSON(src interface{}, dst interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("cannot scan %T into breakdown", src)
	}
}

// Payslip is the immutable statement of an employee's pay for one period
type Payslip struct {
	ID                  string          `db:"id" json:"id"`
	EmployeeID          string          `db:"employee_id" json:"employee_id"`
	Month               int             `db:"month" json:"month"`
	Year                int             `db:"year" json:"year"`
	SalaryBasic         decimal.Decimal `db:"salary_basic" json:"salary_basic"`
	SalaryGross         decimal.Decimal `db:"salary_gross" json:"salary_gross"`
	AllowancesTotal     decimal.Decimal `db:"allowances_total" json:"allowances_total"`
	AllowancesBreakdown LineItems       `db:"allowances_breakdown" json:"allowances_breakdown"`
	DeductionsTotal     decimal.Decimal `db:"deductions_total" json:"deductions_total"`
	DeductionsBreakdown LineItems       `db:"deductions_breakdown" json:"deductions_breakdown"`
	BonusesTotal        decimal.Decimal `db:"bonuses_total" json:"bonuses_total"`
	BonusesBreakdown    BonusLines      `db:"bonuses_breakdown" json:"bonuses_breakdown"`
	AdvancesDeducted    decimal.Decimal `db:"advances_deducted" json:"advances_deducted"`
	SalaryNet           decimal.Decimal `db:"salary_net" json:"salary_net"`
	Status              PayslipStatus   `db:"status" json:"status"`
	GeneratedBy         string          `db:"generated_by" json:"generated_by"`
	PublishedAt         *time.Time      `db:"published_at" json:"published_at,omitempty"`
	Notes               *string         `db:"notes" json:"notes,omitempty"`
	CreatedAt           time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time       `db:"updated_at" json:"updated_at"`
}

// Period returns the payroll period the payslip covers
func (p *Payslip) Period() Period {
	return Period{Month: p.Month, Year: p.Year}
}

// IsDraft reports whether the payslip can still be edited, deleted or published.
func (p *Payslip) IsDraft() bool {
	return p.Status == PayslipDraft
}

// PayslipFilter narrows payslip listings
type PayslipFilter struct {
	EmployeeID string
	Month      int
	Year       int
	Status     PayslipStatus
	Page       int
	PerPage    int
}
