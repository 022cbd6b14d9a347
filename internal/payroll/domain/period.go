package domain

import (
	"fmt"
	"time"

	"github.com/medflow/payroll-backend/pkg/errors"
)

// MinPayrollYear is the first year payslips can be generated for
const MinPayrollYear = 2020

// Period is a payroll calendar month
type Period struct {
	Month int `json:"month"`
	Year  int `json:"year"`
}

// NewPeriod validates and returns a period
func NewPeriod(month, year int) (Period, error) {
	p := Period{Month: month, Year: year}
	return p, p.Validate()
}

// Validate checks month is 1-12 and year is not before MinPayrollYear.
func (p Period) Validate() error {
	details := map[string]string{}
	if p.Month < 1 || p.Month > 12 {
		details["month"] = "must be between 1 and 12"
	}
	if p.Year < MinPayrollYear {
		details["year"] = fmt.Sprintf("must be %d or later", MinPayrollYear)
	}
	if len(details) > 0 {
		return errors.Validation(details)
	}
	return nil
}

// FirstDay returns midnight UTC on the first day of the period.
func (p Period) FirstDay() time.Time {
	return time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, time.UTC)
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}
