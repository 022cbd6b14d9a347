package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types
const (
	// Advance events
	EventAdvanceSubmitted = "payroll.advance.submitted"
	EventAdvanceReviewed  = "payroll.advance.reviewed"
	EventAdvanceCancelled = "payroll.advance.cancelled"
	EventAdvanceCompleted = "payroll.advance.completed"

	// Payslip events
	EventPayslipGenerated = "payroll.payslip.generated"
	EventPayslipPublished = "payroll.payslip.published"

	// Bonus events, published by staff-service
	EventBonusApproved  = "staff.bonus.approved"
	EventBonusCancelled = "staff.bonus.cancelled"
)

// Exchange names
const (
	ExchangePayrollEvents = "payroll.events"
	ExchangeStaffEvents   = "staff.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Advance Events

// AdvanceSubmittedEvent is published when an employee submits an advance for review
type AdvanceSubmittedEvent struct {
	AdvanceID       string          `json:"advance_id"`
	EmployeeID      string          `json:"employee_id"`
	Amount          decimal.Decimal `json:"amount"`
	RepaymentMonths *int            `json:"repayment_months,omitempty"`
	SubmittedAt     time.Time       `json:"submitted_at"`
}

// AdvanceReviewedEvent is published when a reviewer approves or rejects an advance
type AdvanceReviewedEvent struct {
	AdvanceID      string     `json:"advance_id"`
	EmployeeID     string     `json:"employee_id"`
	Status         string     `json:"status"`
	ReviewerID     string     `json:"reviewer_id"`
	Comment        string     `json:"comment,omitempty"`
	RepaymentStart *time.Time `json:"repayment_start,omitempty"`
}

// AdvanceCancelledEvent is published when an owner cancels an advance
type AdvanceCancelledEvent struct {
	AdvanceID  string `json:"advance_id"`
	EmployeeID string `json:"employee_id"`
}

// AdvanceCompletedEvent is published when the final installment settles an advance
type AdvanceCompletedEvent struct {
	AdvanceID     string          `json:"advance_id"`
	EmployeeID    string          `json:"employee_id"`
	TotalRepaid   decimal.Decimal `json:"total_repaid"`
	FullyRepaidAt time.Time       `json:"fully_repaid_at"`
}

// Payslip Events

// PayslipGeneratedEvent is published after a payslip has been committed
type PayslipGeneratedEvent struct {
	PayslipID        string          `json:"payslip_id"`
	EmployeeID       string          `json:"employee_id"`
	Month            int             `json:"month"`
	Year             int             `json:"year"`
	SalaryNet        decimal.Decimal `json:"salary_net"`
	AdvancesDeducted decimal.Decimal `json:"advances_deducted"`
	BonusIDs         []string        `json:"bonus_ids,omitempty"`
	GeneratedBy      string          `json:"generated_by"`
}

// PayslipPublishedEvent is published when a payslip becomes visible to its employee
type PayslipPublishedEvent struct {
	PayslipID   string    `json:"payslip_id"`
	EmployeeID  string    `json:"employee_id"`
	Month       int       `json:"month"`
	Year        int       `json:"year"`
	PublishedAt time.Time `json:"published_at"`
}

// Bonus Events

// BonusApprovedEvent is consumed to mirror approved bonuses into the payroll store
type BonusApprovedEvent struct {
	BonusID    string          `json:"bonus_id"`
	EmployeeID string          `json:"employee_id"`
	Title      string          `json:"title"`
	Amount     decimal.Decimal `json:"amount"`
	ApprovedAt time.Time       `json:"approved_at"`
}

// BonusCancelledEvent is consumed to withdraw a bonus that has not been paid yet
type BonusCancelledEvent struct {
	BonusID    string `json:"bonus_id"`
	EmployeeID string `json:"employee_id"`
}
