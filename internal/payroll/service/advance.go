package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/medflow/payroll-backend/internal/payroll/domain"
	"github.com/medflow/payroll-backend/pkg/clock"
	"github.com/medflow/payroll-backend/pkg/errors"
	"github.com/medflow/payroll-backend/pkg/logger"
	"github.com/shopspring/decimal"
)

// AdvancePolicy bounds what an employee may request
type AdvancePolicy struct {
	// CapRatio is the share of net salary one advance may not exceed
	CapRatio decimal.Decimal
	// MaxRepaymentMonths caps the repayment schedule, never above 12
	MaxRepaymentMonths int
}

// DefaultAdvancePolicy is half the net salary over at most twelve months
func DefaultAdvancePolicy() AdvancePolicy {
	return AdvancePolicy{
		CapRatio:           decimal.NewFromFloat(0.5),
		MaxRepaymentMonths: domain.MaxRepaymentMonths,
	}
}

// CreateAdvanceInput is a new advance request
type CreateAdvanceInput struct {
	Amount          decimal.Decimal
	Reason          string
	NeededByDate    *time.Time
	RepaymentMonths *int
}

// AdvancePatch holds the fields an owner may change on a DRAFT advance.
// Nil fields are left unchanged; the Clear flags remove an optional field.
type AdvancePatch struct {
	Amount               *decimal.Decimal
	Reason               *string
	NeededByDate         *time.Time
	RepaymentMonths      *int
	ClearNeededByDate    bool
	ClearRepaymentMonths bool
}

// AdvanceService handles the salary advance lifecycle
type AdvanceService struct {
	tx         TxRunner
	advances   AdvanceStore
	repayments RepaymentStore
	snapshots  FinancialSnapshotProvider
	publisher  EventPublisher
	clock      clock.Clock
	policy     AdvancePolicy
	logger     *logger.Logger
}

// NewAdvanceService creates a new advance service
func NewAdvanceService(
	tx TxRunner,
	advances AdvanceStore,
	repayments RepaymentStore,
	snapshots FinancialSnapshotProvider,
	publisher EventPublisher,
	clk clock.Clock,
	policy AdvancePolicy,
	log *logger.Logger,
) *AdvanceService {
	if policy.MaxRepaymentMonths < domain.MinRepaymentMonths || policy.MaxRepaymentMonths > domain.MaxRepaymentMonths {
		policy.MaxRepaymentMonths = domain.MaxRepaymentMonths
	}
	return &AdvanceService{
		tx:         tx,
		advances:   advances,
		repayments: repayments,
		snapshots:  snapshots,
		publisher:  publisher,
		clock:      clk,
		policy:     policy,
		logger:     log,
	}
}

// Create records a new DRAFT advance for the employee
func (s *AdvanceService) Create(ctx context.Context, employeeID string, in CreateAdvanceInput) (*domain.SalaryAdvance, error) {
	adv := &domain.SalaryAdvance{
		EmployeeID:      employeeID,
		Amount:          in.Amount,
		Reason:          strings.TrimSpace(in.Reason),
		NeededByDate:    in.NeededByDate,
		RepaymentMonths: in.RepaymentMonths,
		Status:          domain.AdvanceDraft,
		TotalRepaid:     decimal.Zero,
	}

	if err := s.validate(adv); err != nil {
		return nil, err
	}
	if err := s.checkCap(ctx, employeeID, adv.Amount); err != nil {
		return nil, err
	}
	adv.ApplySchedule()

	if err := s.advances.Create(ctx, adv); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("advance_id", adv.ID).
		Str("employee_id", adv.EmployeeID).
		Str("amount", adv.Amount.StringFixed(2)).
		Msg("salary advance created")

	return adv, nil
}

// Get returns an advance by id
func (s *AdvanceService) Get(ctx context.Context, id string) (*domain.SalaryAdvance, error) {
	return s.advances.GetByID(ctx, id)
}

// List lists advances with filters
func (s *AdvanceService) List(ctx context.Context, filter domain.AdvanceFilter) ([]*domain.SalaryAdvance, int64, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, errors.Validation(map[string]string{"status": "unknown advance status"})
	}
	return s.advances.List(ctx, filter)
}

// ListRepayments returns the repayment history of an advance, oldest first
func (s *AdvanceService) ListRepayments(ctx context.Context, id string) ([]*domain.AdvanceRepayment, error) {
	if _, err := s.advances.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.repayments.ListByAdvance(ctx, id)
}

// Update applies patch to a DRAFT advance owned by actorID
func (s *AdvanceService) Update(ctx context.Context, id, actorID string, patch AdvancePatch) (*domain.SalaryAdvance, error) {
	var adv *domain.SalaryAdvance
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		adv, err = s.loadOwned(ctx, id, actorID)
		if err != nil {
			return err
		}
		if !adv.CanEdit() {
			return errors.InvalidState("only draft advances can be edited")
		}

		if patch.ClearNeededByDate && patch.NeededByDate != nil {
			return errors.Validation(map[string]string{"needed_by_date": "cannot be set and cleared at once"})
		}
		if patch.ClearRepaymentMonths && patch.RepaymentMonths != nil {
			return errors.Validation(map[string]string{"repayment_months": "cannot be set and cleared at once"})
		}

		amountChanged := false
		if patch.Amount != nil {
			amountChanged = !patch.Amount.Equal(adv.Amount)
			adv.Amount = *patch.Amount
		}
		if patch.Reason != nil {
			adv.Reason = strings.TrimSpace(*patch.Reason)
		}
		if patch.NeededByDate != nil {
			adv.NeededByDate = patch.NeededByDate
		}
		if patch.RepaymentMonths != nil {
			adv.RepaymentMonths = patch.RepaymentMonths
		}
		if patch.ClearNeededByDate {
			adv.NeededByDate = nil
		}
		if patch.ClearRepaymentMonths {
			adv.RepaymentMonths = nil
		}

		if err := s.validate(adv); err != nil {
			return err
		}
		if amountChanged {
			if err := s.checkCap(ctx, adv.EmployeeID, adv.Amount); err != nil {
				return err
			}
		}
		adv.ApplySchedule()

		return s.advances.Update(ctx, adv)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("advance_id", adv.ID).
		Str("employee_id", adv.EmployeeID).
		Msg("salary advance updated")

	return adv, nil
}

// Submit sends a DRAFT advance for review
func (s *AdvanceService) Submit(ctx context.Context, id, actorID string) (*domain.SalaryAdvance, error) {
	var adv *domain.SalaryAdvance
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		adv, err = s.loadOwned(ctx, id, actorID)
		if err != nil {
			return err
		}
		if !adv.CanEdit() {
			return errors.InvalidState("only draft advances can be submitted")
		}

		now := s.clock.Now()
		adv.Status = domain.AdvancePending
		adv.SubmittedAt = &now
		return s.advances.Update(ctx, adv)
	})
	if err != nil {
		return nil, err
	}

	s.publisher.PublishAdvanceSubmitted(ctx, adv)

	s.logger.Info().
		Str("advance_id", adv.ID).
		Str("employee_id", adv.EmployeeID).
		Msg("salary advance submitted")

	return adv, nil
}

// Review approves or rejects a PENDING advance. Approving an advance with a
// repayment schedule starts repayment on the first day of the next month.
func (s *AdvanceService) Review(ctx context.Context, id, reviewerID string, decision domain.ReviewDecision, comment string) (*domain.SalaryAdvance, error) {
	status, ok := decision.Status()
	if !ok {
		return nil, errors.Validation(map[string]string{"decision": "must be APPROVED or REJECTED"})
	}

	var adv *domain.SalaryAdvance
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		adv, err = s.advances.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if adv.EmployeeID == reviewerID {
			return errors.Forbidden("you cannot review your own advance")
		}
		if !adv.CanReview() {
			return errors.InvalidState("only pending advances can be reviewed")
		}

		now := s.clock.Now()
		adv.Status = status
		adv.ReviewedBy = &reviewerID
		adv.ReviewedAt = &now
		adv.ReviewerComment = nil
		if c := strings.TrimSpace(comment); c != "" {
			adv.ReviewerComment = &c
		}
		if status == domain.AdvanceApproved && adv.MonthlyDeduction != nil {
			start := clock.FirstOfNextMonth(now)
			adv.RepaymentStart = &start
		}
		return s.advances.Update(ctx, adv)
	})
	if err != nil {
		return nil, err
	}

	s.publisher.PublishAdvanceReviewed(ctx, adv)

	s.logger.Info().
		Str("advance_id", adv.ID).
		Str("employee_id", adv.EmployeeID).
		Str("reviewer_id", reviewerID).
		Str("status", string(adv.Status)).
		Msg("salary advance reviewed")

	return adv, nil
}

// Cancel withdraws a DRAFT or PENDING advance
func (s *AdvanceService) Cancel(ctx context.Context, id, actorID string) (*domain.SalaryAdvance, error) {
	var adv *domain.SalaryAdvance
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		adv, err = s.loadOwned(ctx, id, actorID)
		if err != nil {
			return err
		}
		if !adv.CanCancel() {
			return errors.InvalidState("only draft or pending advances can be cancelled")
		}

		adv.Status = domain.AdvanceCancelled
		return s.advances.Update(ctx, adv)
	})
	if err != nil {
		return nil, err
	}

	s.publisher.PublishAdvanceCancelled(ctx, adv)

	s.logger.Info().
		Str("advance_id", adv.ID).
		Str("employee_id", adv.EmployeeID).
		Msg("salary advance cancelled")

	return adv, nil
}

// Delete removes a DRAFT or CANCELLED advance
func (s *AdvanceService) Delete(ctx context.Context, id, actorID string) error {
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		adv, err := s.loadOwned(ctx, id, actorID)
		if err != nil {
			return err
		}
		if !adv.CanDelete() {
			return errors.InvalidState("only draft or cancelled advances can be deleted")
		}
		return s.advances.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	s.logger.Info().
		Str("advance_id", id).
		Msg("salary advance deleted")

	return nil
}

// loadOwned locks the advance and checks actorID owns it
func (s *AdvanceService) loadOwned(ctx context.Context, id, actorID string) (*domain.SalaryAdvance, error) {
	adv, err := s.advances.GetForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if adv.EmployeeID != actorID {
		return nil, errors.Forbidden("you do not own this advance")
	}
	return adv, nil
}

func (s *AdvanceService) validate(adv *domain.SalaryAdvance) error {
	details := map[string]string{}
	switch {
	case !adv.Amount.IsPositive():
		details["amount"] = "must be greater than zero"
	case !domain.IsCents(adv.Amount):
		details["amount"] = "must have at most 2 decimal places"
	case adv.Amount.GreaterThan(domain.MaxAmount):
		details["amount"] = "must be at most " + domain.MaxAmount.StringFixed(2)
	}
	if adv.Reason == "" {
		details["reason"] = "is required"
	}
	if m := adv.RepaymentMonths; m != nil {
		if *m < domain.MinRepaymentMonths || *m > s.policy.MaxRepaymentMonths {
			details["repayment_months"] = fmt.Sprintf("must be between %d and %d", domain.MinRepaymentMonths, s.policy.MaxRepaymentMonths)
		} else if _, bad := details["amount"]; !bad && !domain.MonthlyDeduction(adv.Amount, *m).IsPositive() {
			details["repayment_months"] = "monthly installment would round to zero"
		}
	}
	if len(details) > 0 {
		return errors.Validation(details)
	}
	return nil
}

// checkCap rejects amounts above the cap ratio of the employee's net salary.
// Employees without a net salary on file are not capped.
func (s *AdvanceService) checkCap(ctx context.Context, employeeID string, amount decimal.Decimal) error {
	snapshot, err := s.snapshots.GetFinancialSnapshot(ctx, employeeID)
	if err != nil {
		return err
	}
	if snapshot == nil || snapshot.NetSalary == nil {
		return nil
	}

	limit := snapshot.NetSalary.Mul(s.policy.CapRatio)
	if amount.GreaterThan(limit) {
		return errors.AmountExceedsLimit(limit.StringFixed(2))
	}
	return nil
}
