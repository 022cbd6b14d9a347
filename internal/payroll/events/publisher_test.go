package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/medflow/payroll-backend/internal/payroll/domain"
	"github.com/medflow/payroll-backend/pkg/logger"
	"github.com/medflow/payroll-backend/pkg/messaging"
	"github.com/medflow/payroll-backend/pkg/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayrollEventPublisher(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, time.March, 31, 12, 0, 0, 0, time.UTC)
	reviewer := "hr-1"
	start := time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)

	adv := &domain.SalaryAdvance{
		ID:             "adv-1",
		EmployeeID:     "emp-1",
		Amount:         decimal.NewFromInt(1200),
		Status:         domain.AdvanceApproved,
		SubmittedAt:    &now,
		ReviewedBy:     &reviewer,
		RepaymentStart: &start,
		TotalRepaid:    decimal.NewFromInt(1200),
		FullyRepaidAt:  &now,
	}

	t.Run("advance events", func(t *testing.T) {
		mock := testutil.NewMockPublisher()
		p := NewPayrollEventPublisherWith(mock, logger.Nop())

		p.PublishAdvanceSubmitted(ctx, adv)
		p.PublishAdvanceReviewed(ctx, adv)
		p.PublishAdvanceCancelled(ctx, adv)
		p.PublishAdvanceCompleted(ctx, adv)

		mock.AssertEventPublished(t, messaging.EventAdvanceSubmitted)
		mock.AssertEventPublished(t, messaging.EventAdvanceCancelled)

		reviewed := mock.Events(messaging.EventAdvanceReviewed)
		require.Len(t, reviewed, 1)
		payload := reviewed[0].Payload.(messaging.AdvanceReviewedEvent)
		assert.Equal(t, "APPROVED", payload.Status)
		assert.Equal(t, "hr-1", payload.ReviewerID)
		assert.Equal(t, &start, payload.RepaymentStart)

		completed := mock.Events(messaging.EventAdvanceCompleted)
		require.Len(t, completed, 1)
		done := completed[0].Payload.(messaging.AdvanceCompletedEvent)
		assert.True(t, done.TotalRepaid.Equal(decimal.NewFromInt(1200)))
		assert.Equal(t, now, done.FullyRepaidAt)
	})

	t.Run("payslip events", func(t *testing.T) {
		mock := testutil.NewMockPublisher()
		p := NewPayrollEventPublisherWith(mock, logger.Nop())

		ps := &domain.Payslip{
			ID:               "ps-1",
			EmployeeID:       "emp-1",
			Month:            3,
			Year:             2025,
			SalaryNet:        decimal.NewFromInt(4000),
			AdvancesDeducted: decimal.NewFromInt(200),
			BonusesBreakdown: domain.BonusLines{{BonusID: "b1"}, {BonusID: "b2"}},
			PublishedAt:      &now,
		}
		p.PublishPayslipGenerated(ctx, ps)
		p.PublishPayslipPublished(ctx, ps)

		generated := mock.Events(messaging.EventPayslipGenerated)
		require.Len(t, generated, 1)
		assert.Equal(t, []string{"b1", "b2"}, generated[0].Payload.(messaging.PayslipGeneratedEvent).BonusIDs)

		published := mock.Events(messaging.EventPayslipPublished)
		require.Len(t, published, 1)
		assert.Equal(t, now, published[0].Payload.(messaging.PayslipPublishedEvent).PublishedAt)
	})

	t.Run("publish failures are swallowed", func(t *testing.T) {
		mock := testutil.NewMockPublisher()
		mock.Err = errors.New("channel closed")
		p := NewPayrollEventPublisherWith(mock, logger.Nop())

		assert.NotPanics(t, func() { p.PublishAdvanceCancelled(ctx, adv) })
		mock.AssertNoEventsPublished(t)
	})

	t.Run("nil publisher is a no-op", func(t *testing.T) {
		var p *PayrollEventPublisher
		assert.NotPanics(t, func() {
			p.PublishAdvanceSubmitted(ctx, adv)
			p.PublishPayslipGenerated(ctx, &domain.Payslip{})
		})
	})
}
