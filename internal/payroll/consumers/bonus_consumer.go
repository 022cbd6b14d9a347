// Package consumers keeps payroll's copy of bonuses in sync with staff-service.
package consumers

import (
	"context"
	"fmt"

	"github.com/medflow/payroll-backend/internal/payroll/domain"
	"github.com/medflow/payroll-backend/pkg/logger"
	"github.com/medflow/payroll-backend/pkg/messaging"
)

// BonusQueue is the queue staff bonus events are delivered to
const BonusQueue = "payroll-service.bonus-events"

// BonusStore is the part of the bonus repository the mirror writes to
type BonusStore interface {
	Upsert(ctx context.Context, b *domain.Bonus) error
	Cancel(ctx context.Context, id string) (bool, error)
}

// BonusEventHandler applies bonus events to the local store (testable without RabbitMQ)
type BonusEventHandler struct {
	bonuses BonusStore
	logger  *logger.Logger
}

// NewBonusEventHandler creates a new bonus event handler
func NewBonusEventHandler(bonuses BonusStore, log *logger.Logger) *BonusEventHandler {
	return &BonusEventHandler{
		bonuses: bonuses,
		logger:  log,
	}
}

// HandleEvent dispatches a bonus event by type
func (h *BonusEventHandler) HandleEvent(ctx context.Context, event *messaging.Event) error {
	switch event.Type {
	case messaging.EventBonusApproved:
		return h.handleBonusApproved(ctx, event)
	case messaging.EventBonusCancelled:
		return h.handleBonusCancelled(ctx, event)
	default:
		h.logger.Warn().Str("event_type", event.Type).Msg("unknown event type received")
		return nil
	}
}

// handlerRegistry is where a consumer looks up the handler of an event type
type handlerRegistry interface {
	RegisterHandler(eventType string, handler messaging.MessageHandler)
}

// Register routes every bonus event type to HandleEvent
func (h *BonusEventHandler) Register(r handlerRegistry) {
	r.RegisterHandler(messaging.EventBonusApproved, h.HandleEvent)
	r.RegisterHandler(messaging.EventBonusCancelled, h.HandleEvent)
}

// BonusEventConsumer consumes staff bonus events
type BonusEventConsumer struct {
	consumer *messaging.Consumer
	logger   *logger.Logger
}

// NewBonusEventConsumer creates a consumer bound to the staff exchange
func NewBonusEventConsumer(rmq *messaging.RabbitMQ, bonuses BonusStore, log *logger.Logger) (*BonusEventConsumer, error) {
	consumer, err := messaging.NewConsumer(rmq, BonusQueue, log)
	if err != nil {
		return nil, err
	}

	if err := consumer.Subscribe(messaging.ExchangeStaffEvents, "staff.bonus.*"); err != nil {
		return nil, err
	}

	NewBonusEventHandler(bonuses, log).Register(consumer)

	return &BonusEventConsumer{
		consumer: consumer,
		logger:   log,
	}, nil
}

// Start starts consuming messages
func (c *BonusEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

// handleBonusApproved records an approved bonus as eligible for the next payslip
func (h *BonusEventHandler) handleBonusApproved(ctx context.Context, event *messaging.Event) error {
	var data messaging.BonusApprovedEvent
	if err := event.UnmarshalData(&data); err != nil {
		h.logger.Error().Err(err).Msg("failed to unmarshal BonusApprovedEvent")
		return err
	}

	if data.BonusID == "" || data.EmployeeID == "" {
		return fmt.Errorf("bonus approved event missing bonus or employee id")
	}
	if !data.Amount.IsPositive() {
		h.logger.Warn().
			Str("bonus_id", data.BonusID).
			Str("amount", data.Amount.String()).
			Msg("ignoring bonus with non-positive amount")
		return nil
	}

	b := &domain.Bonus{
		ID:         data.BonusID,
		EmployeeID: data.EmployeeID,
		Title:      data.Title,
		Amount:     data.Amount,
		Status:     domain.BonusApproved,
	}
	if !data.ApprovedAt.IsZero() {
		approvedAt := data.ApprovedAt
		b.ApprovedAt = &approvedAt
	}

	if err := h.bonuses.Upsert(ctx, b); err != nil {
		h.logger.Error().Err(err).Str("bonus_id", data.BonusID).Msg("failed to upsert bonus")
		return err
	}

	h.logger.Info().
		Str("bonus_id", data.BonusID).
		Str("employee_id", data.EmployeeID).
		Str("amount", data.Amount.StringFixed(2)).
		Msg("bonus mirrored")

	return nil
}

// handleBonusCancelled withdraws a bonus unless a payslip already paid it
func (h *BonusEventHandler) handleBonusCancelled(ctx context.Context, event *messaging.Event) error {
	var data messaging.BonusCancelledEvent
	if err := event.UnmarshalData(&data); err != nil {
		h.logger.Error().Err(err).Msg("failed to unmarshal BonusCancelledEvent")
		return err
	}

	cancelled, err := h.bonuses.Cancel(ctx, data.BonusID)
	if err != nil {
		h.logger.Error().Err(err).Str("bonus_id", data.BonusID).Msg("failed to cancel bonus")
		return err
	}

	if !cancelled {
		h.logger.Warn().
			Str("bonus_id", data.BonusID).
			Msg("bonus already paid or unknown, cancellation ignored")
		return nil
	}

	h.logger.Info().Str("bonus_id", data.BonusID).Msg("bonus cancelled")
	return nil
}
