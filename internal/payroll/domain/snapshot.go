package domain

import "github.com/shopspring/decimal"

// FinancialSnapshot is an employee's current pay configuration as reported by
// staff-service. Absent fields decode as zero.
type FinancialSnapshot struct {
	EmployeeID  string          `json:"employee_id"`
	BasicSalary decimal.Decimal `json:"basic_salary"`

	HousingAllowance decimal.Decimal `json:"housing_allowance"`
	MedicalAllowance decimal.Decimal `json:"medical_allowance"`
	SpecialAllowance decimal.Decimal `json:"special_allowance"`
	FuelAllowance    decimal.Decimal `json:"fuel_allowance"`
	PhoneAllowance   decimal.Decimal `json:"phone_allowance"`
	OtherAllowance   decimal.Decimal `json:"other_allowance"`

	ProvidentFund  decimal.Decimal `json:"provident_fund"`
	TaxDeduction   decimal.Decimal `json:"tax_deduction"`
	OtherDeduction decimal.Decimal `json:"other_deduction"`

	// NetSalary drives the advance cap; nil when staff-service has none on file
	NetSalary *decimal.Decimal `json:"net_salary,omitempty"`
}

// Allowances returns the allowance lines in breakdown order, zeros included.
func (s *FinancialSnapshot) Allowances() LineItems {
	return LineItems{
		{Code: LineHousing, Name: "Housing Allowance", Amount: s.HousingAllowance},
		{Code: LineMedical, Name: "Medical Allowance", Amount: s.MedicalAllowance},
		{Code: LineSpecial, Name: "Special Allowance", Amount: s.SpecialAllowance},
		{Code: LineFuel, Name: "Fuel Allowance", Amount: s.FuelAllowance},
		{Code: LinePhone, Name: "Phone Allowance", Amount: s.PhoneAllowance},
		{Code: LineOther, Name: "Other Allowance", Amount: s.OtherAllowance},
	}
}

// Deductions returns the plain deduction lines in breakdown order, zeros included.
func (s *FinancialSnapshot) Deductions() LineItems {
	return LineItems{
		{Code: LineProvidentFund, Name: "Provident Fund", Amount: s.ProvidentFund},
		{Code: LineTax, Name: "Tax", Amount: s.TaxDeduction},
		{Code: LineOtherDeduction, Name: "Other Deduction", Amount: s.OtherDeduction},
	}
}
