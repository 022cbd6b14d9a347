package service

import (
	"github.com/medflow/payroll-backend/internal/payroll/domain"
	"github.com/shopspring/decimal"
)

const advanceRepaymentLabel = "Salary Advance Repayment"

// Computation holds the figures of one payslip
type Computation struct {
	SalaryBasic         decimal.Decimal
	AllowancesTotal     decimal.Decimal
	AllowancesBreakdown domain.LineItems
	SalaryGross         decimal.Decimal
	DeductionsTotal     decimal.Decimal
	DeductionsBreakdown domain.LineItems
	BonusesTotal        decimal.Decimal
	BonusesBreakdown    domain.BonusLines
	AdvancesDeducted    decimal.Decimal
	SalaryNet           decimal.Decimal
}

// Compute derives a payslip's figures from the employee's pay configuration,
// the bonuses being consumed and the advance repayments charged for the period.
//
// Breakdowns list only non-zero lines. The advance repayment, when any, is the
// last deduction line and is part of deductions_total.
func Compute(snapshot *domain.FinancialSnapshot, bonuses []*domain.Bonus, advanceRepayment decimal.Decimal) Computation {
	c := Computation{
		SalaryBasic:         snapshot.BasicSalary,
		AllowancesBreakdown: nonZero(snapshot.Allowances()),
		DeductionsBreakdown: nonZero(snapshot.Deductions()),
		BonusesBreakdown:    domain.BonusLines{},
		AdvancesDeducted:    advanceRepayment,
	}

	if !advanceRepayment.IsZero() {
		c.DeductionsBreakdown = append(c.DeductionsBreakdown, domain.LineItem{
			Code:   domain.LineAdvanceRepayment,
			Name:   advanceRepaymentLabel,
			Amount: advanceRepayment,
		})
	}

	c.BonusesTotal = decimal.Zero
	for _, b := range bonuses {
		c.BonusesBreakdown = append(c.BonusesBreakdown, domain.BonusLine{
			BonusID: b.ID,
			Name:    b.Title,
			Amount:  b.Amount,
		})
		c.BonusesTotal = c.BonusesTotal.Add(b.Amount)
	}

	c.AllowancesTotal = snapshot.Allowances().Total()
	c.SalaryGross = c.SalaryBasic.Add(c.AllowancesTotal)
	c.DeductionsTotal = snapshot.Deductions().Total().Add(advanceRepayment)
	c.SalaryNet = c.SalaryGross.Add(c.BonusesTotal).Sub(c.DeductionsTotal)

	return c
}

// Apply copies the figures onto p
func (c Computation) Apply(p *domain.Payslip) {
	p.SalaryBasic = c.SalaryBasic
	p.AllowancesTotal = c.AllowancesTotal
	p.AllowancesBreakdown = c.AllowancesBreakdown
	p.SalaryGross = c.SalaryGross
	p.DeductionsTotal = c.DeductionsTotal
	p.DeductionsBreakdown = c.DeductionsBreakdown
	p.BonusesTotal = c.BonusesTotal
	p.BonusesBreakdown = c.BonusesBreakdown
	p.AdvancesDeducted = c.AdvancesDeducted
	p.SalaryNet = c.SalaryNet
}

func nonZero(lines domain.LineItems) domain.LineItems {
	out := domain.LineItems{}
	for _, l := range lines {
		if !l.Amount.IsZero() {
			out = append(out, l)
		}
	}
	return out
}
