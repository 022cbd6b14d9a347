package events

import (
	"context"

	"github.com/medflow/payroll-backend/internal/payroll/domain"
	"github.com/medflow/payroll-backend/pkg/logger"
	"github.com/medflow/payroll-backend/pkg/messaging"
)

// Publisher sends an event payload under a routing key
type Publisher interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
}

// PayrollEventPublisher publishes payroll events. Failures are logged and
// never returned: a lost notification must not undo a committed change.
// A nil *PayrollEventPublisher publishes nothing.
type PayrollEventPublisher struct {
	publisher Publisher
	logger    *logger.Logger
}

// NewPayrollEventPublisher creates a publisher on the payroll exchange
func NewPayrollEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*PayrollEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangePayrollEvents, "payroll-service", log)
	if err != nil {
		return nil, err
	}

	return NewPayrollEventPublisherWith(publisher, log), nil
}

// NewPayrollEventPublisherWith wraps an existing publisher
func NewPayrollEventPublisherWith(publisher Publisher, log *logger.Logger) *PayrollEventPublisher {
	return &PayrollEventPublisher{
		publisher: publisher,
		logger:    log,
	}
}

// PublishAdvanceSubmitted publishes an advance submitted event
func (p *PayrollEventPublisher) PublishAdvanceSubmitted(ctx context.Context, a *domain.SalaryAdvance) {
	if p == nil {
		return
	}

	data := messaging.AdvanceSubmittedEvent{
		AdvanceID:       a.ID,
		EmployeeID:      a.EmployeeID,
		Amount:          a.Amount,
		RepaymentMonths: a.RepaymentMonths,
	}
	if a.SubmittedAt != nil {
		data.SubmittedAt = *a.SubmittedAt
	}

	p.publish(ctx, messaging.EventAdvanceSubmitted, data, "advance_id", a.ID)
}

// PublishAdvanceReviewed publishes an advance reviewed event
func (p *PayrollEventPublisher) PublishAdvanceReviewed(ctx context.Context, a *domain.SalaryAdvance) {
	if p == nil {
		return
	}

	data := messaging.AdvanceReviewedEvent{
		AdvanceID:      a.ID,
		EmployeeID:     a.EmployeeID,
		Status:         string(a.Status),
		RepaymentStart: a.RepaymentStart,
	}
	if a.ReviewedBy != nil {
		data.ReviewerID = *a.ReviewedBy
	}
	if a.ReviewerComment != nil {
		data.Comment = *a.ReviewerComment
	}

	p.publish(ctx, messaging.EventAdvanceReviewed, data, "advance_id", a.ID)
}

// PublishAdvanceCancelled publishes an advance cancelled event
func (p *PayrollEventPublisher) PublishAdvanceCancelled(ctx context.Context, a *domain.SalaryAdvance) {
	if p == nil {
		return
	}

	data := messaging.AdvanceCancelledEvent{
		AdvanceID:  a.ID,
		EmployeeID: a.EmployeeID,
	}

	p.publish(ctx, messaging.EventAdvanceCancelled, data, "advance_id", a.ID)
}

// PublishAdvanceCompleted publishes an advance completed event
func (p *PayrollEventPublisher) PublishAdvanceCompleted(ctx context.Context, a *domain.SalaryAdvance) {
	if p == nil {
		return
	}

	data := messaging.AdvanceCompletedEvent{
		AdvanceID:   a.ID,
		EmployeeID:  a.EmployeeID,
		TotalRepaid: a.TotalRepaid,
	}
	if a.FullyRepaidAt != nil {
		data.FullyRepaidAt = *a.FullyRepaidAt
	}

	p.publish(ctx, messaging.EventAdvanceCompleted, data, "advance_id", a.ID)
}

// PublishPayslipGenerated publishes a payslip generated event
func (p *PayrollEventPublisher) PublishPayslipGenerated(ctx context.Context, ps *domain.Payslip) {
	if p == nil {
		return
	}

	data := messaging.PayslipGeneratedEvent{
		PayslipID:        ps.ID,
		EmployeeID:       ps.EmployeeID,
		Month:            ps.Month,
		Year:             ps.Year,
		SalaryNet:        ps.SalaryNet,
		AdvancesDeducted: ps.AdvancesDeducted,
		BonusIDs:         ps.BonusesBreakdown.IDs(),
		GeneratedBy:      ps.GeneratedBy,
	}

	p.publish(ctx, messaging.EventPayslipGenerated, data, "payslip_id", ps.ID)
}

// PublishPayslipPublished publishes a payslip published event
func (p *PayrollEventPublisher) PublishPayslipPublished(ctx context.Context, ps *domain.Payslip) {
	if p == nil {
		return
	}

	data := messaging.PayslipPublishedEvent{
		PayslipID:  ps.ID,
		EmployeeID: ps.EmployeeID,
		Month:      ps.Month,
		Year:       ps.Year,
	}
	if ps.PublishedAt != nil {
		data.PublishedAt = *ps.PublishedAt
	}

	p.publish(ctx, messaging.EventPayslipPublished, data, "payslip_id", ps.ID)
}

func (p *PayrollEventPublisher) publish(ctx context.Context, eventType string, data interface{}, idField, id string) {
	if err := p.publisher.Publish(ctx, eventType, data); err != nil {
		p.logger.Error().Err(err).Str(idField, id).Str("event_type", eventType).Msg("failed to publish payroll event")
	}
}
