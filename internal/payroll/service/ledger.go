package service

import (
	"context"

	"github.com/medflow/payroll-backend/internal/payroll/domain"
	"github.com/medflow/payroll-backend/pkg/clock"
	"github.com/medflow/payroll-backend/pkg/errors"
	"github.com/medflow/payroll-backend/pkg/logger"
)

// Ledger charges advance installments against payroll periods.
// At most one repayment exists per advance and period.
type Ledger struct {
	tx         TxRunner
	advances   AdvanceStore
	repayments RepaymentStore
	publisher  EventPublisher
	clock      clock.Clock
	logger     *logger.Logger
}

// NewLedger creates a new repayment ledger
func NewLedger(
	tx TxRunner,
	advances AdvanceStore,
	repayments RepaymentStore,
	publisher EventPublisher,
	clk clock.Clock,
	log *logger.Logger,
) *Ledger {
	return &Ledger{
		tx:         tx,
		advances:   advances,
		repayments: repayments,
		publisher:  publisher,
		clock:      clk,
		logger:     log,
	}
}

// charge is the outcome of one ledger step
type charge struct {
	// repayment is the row for the period, new or pre-existing; nil when
	// the advance was already settled
	repayment *domain.AdvanceRepayment
	// completed is set when this step paid off the advance
	completed *domain.SalaryAdvance
}

// ProcessRepayment charges the next installment of an advance for period and
// returns the repayment recorded for it. A repayment already on file for the
// period is returned unchanged, and a fully repaid advance yields nil.
func (l *Ledger) ProcessRepayment(ctx context.Context, advanceID string, period domain.Period) (*domain.AdvanceRepayment, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}

	var res *charge
	err := l.tx.RetryTx(ctx, func(ctx context.Context) error {
		var err error
		res, err = l.charge(ctx, advanceID, period)
		return err
	})
	if err != nil {
		return nil, err
	}

	if res.completed != nil {
		l.publisher.PublishAdvanceCompleted(ctx, res.completed)
	}
	return res.repayment, nil
}

// charge runs one ledger step. It must be called inside a transaction; the
// advance row stays locked until that transaction ends.
func (l *Ledger) charge(ctx context.Context, advanceID string, period domain.Period) (*charge, error) {
	adv, err := l.advances.GetForUpdate(ctx, advanceID)
	if err != nil {
		return nil, err
	}
	if adv.MonthlyDeduction == nil {
		return nil, errors.NoRepaymentPlan(advanceID)
	}

	existing, err := l.repayments.FindForPeriod(ctx, advanceID, period)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &charge{repayment: existing}, nil
	}

	if adv.IsSettled() {
		return &charge{}, nil
	}
	if !adv.IsChargeable() {
		return nil, errors.InvalidState("advance " + advanceID + " is " + string(adv.Status) + " and cannot be charged")
	}

	amount, _ := adv.NextCharge()
	now := l.clock.Now()
	rep := &domain.AdvanceRepayment{
		AdvanceID:    advanceID,
		PayslipMonth: period.Month,
		PayslipYear:  period.Year,
		Amount:       amount,
		DeductedAt:   now,
	}

	inserted, err := l.repayments.Insert(ctx, rep)
	if err != nil {
		return nil, err
	}
	if !inserted {
		existing, err := l.repayments.FindForPeriod(ctx, advanceID, period)
		if err != nil {
			return nil, err
		}
		return &charge{repayment: existing}, nil
	}

	adv.TotalRepaid = adv.TotalRepaid.Add(amount)
	res := &charge{repayment: rep}
	if adv.IsSettled() {
		adv.Status = domain.AdvanceCompleted
		adv.FullyRepaidAt = &now
		res.completed = adv
	} else {
		adv.Status = domain.AdvanceRepaying
	}

	if err := l.advances.Update(ctx, adv); err != nil {
		return nil, err
	}

	l.logger.Info().
		Str("advance_id", advanceID).
		Str("period", period.String()).
		Str("amount", amount.StringFixed(2)).
		Str("total_repaid", adv.TotalRepaid.StringFixed(2)).
		Str("status", string(adv.Status)).
		Msg("advance repayment recorded")

	return res, nil
}
