package service

import (
	"context"
	"strings"

	"github.com/medflow/payroll-backend/internal/payroll/domain"
	"github.com/medflow/payroll-backend/pkg/clock"
	"github.com/medflow/payroll-backend/pkg/errors"
	"github.com/medflow/payroll-backend/pkg/logger"
	"github.com/shopspring/decimal"
)

// GenerateInput identifies the payslip to generate
type GenerateInput struct {
	GeneratedBy string
	EmployeeID  string
	Month       int
	Year        int
	Notes       *string
}

// PayslipService generates payslips and manages their DRAFT to PUBLISHED lifecycle
type PayslipService struct {
	tx        TxRunner
	payslips  PayslipStore
	bonuses   BonusStore
	advances  AdvanceStore
	ledger    *Ledger
	snapshots FinancialSnapshotProvider
	publisher EventPublisher
	clock     clock.Clock
	logger    *logger.Logger
}

// NewPayslipService creates a new payslip service
func NewPayslipService(
	tx TxRunner,
	payslips PayslipStore,
	bonuses BonusStore,
	advances AdvanceStore,
	ledger *Ledger,
	snapshots FinancialSnapshotProvider,
	publisher EventPublisher,
	clk clock.Clock,
	log *logger.Logger,
) *PayslipService {
	return &PayslipService{
		tx:        tx,
		payslips:  payslips,
		bonuses:   bonuses,
		advances:  advances,
		ledger:    ledger,
		snapshots: snapshots,
		publisher: publisher,
		clock:     clk,
		logger:    log,
	}
}

// Generate composes and stores the DRAFT payslip of an employee for a period.
//
// Advance installments are charged, the payslip is stored and eligible bonuses
// are claimed in one transaction. The advance deduction is the sum of the
// repayments the ledger actually recorded for the period.
func (s *PayslipService) Generate(ctx context.Context, in GenerateInput) (*domain.Payslip, error) {
	period, err := domain.NewPeriod(in.Month, in.Year)
	if err != nil {
		return nil, err
	}
	if in.EmployeeID == "" {
		return nil, errors.Validation(map[string]string{"employee_id": "is required"})
	}

	exists, err := s.payslips.Exists(ctx, in.EmployeeID, period)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, errors.DuplicatePeriod(in.EmployeeID, period.Month, period.Year)
	}

	snapshot, err := s.snapshots.GetFinancialSnapshot(ctx, in.EmployeeID)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return nil, errors.NoFinancialInfo(in.EmployeeID)
	}

	var (
		payslip   *domain.Payslip
		completed []*domain.SalaryAdvance
	)
	err = s.tx.RetryTx(ctx, func(ctx context.Context) error {
		completed = nil

		// The pre-check above is advisory; the unique index decides.
		exists, err := s.payslips.Exists(ctx, in.EmployeeID, period)
		if err != nil {
			return err
		}
		if exists {
			return errors.DuplicatePeriod(in.EmployeeID, period.Month, period.Year)
		}

		bonuses, err := s.bonuses.ListEligibleForUpdate(ctx, in.EmployeeID)
		if err != nil {
			return err
		}

		advances, err := s.advances.ListChargeable(ctx, in.EmployeeID, period)
		if err != nil {
			return err
		}

		deducted := decimal.Zero
		for _, adv := range advances {
			res, err := s.ledger.charge(ctx, adv.ID, period)
			if err != nil {
				return err
			}
			if res.repayment != nil {
				deducted = deducted.Add(res.repayment.Amount)
			}
			if res.completed != nil {
				completed = append(completed, res.completed)
			}
		}

		p := &domain.Payslip{
			EmployeeID:  in.EmployeeID,
			Month:       period.Month,
			Year:        period.Year,
			Status:      domain.PayslipDraft,
			GeneratedBy: in.GeneratedBy,
			Notes:       normalizeNotes(in.Notes),
		}
		Compute(snapshot, bonuses, deducted).Apply(p)

		if err := s.payslips.Create(ctx, p); err != nil {
			return err
		}

		if err := s.bonuses.MarkPaid(ctx, p.BonusesBreakdown.IDs(), period, s.clock.Now()); err != nil {
			return err
		}

		payslip = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, adv := range completed {
		s.publisher.PublishAdvanceCompleted(ctx, adv)
	}
	s.publisher.PublishPayslipGenerated(ctx, payslip)

	s.logger.Info().
		Str("payslip_id", payslip.ID).
		Str("employee_id", payslip.EmployeeID).
		Str("period", period.String()).
		Str("salary_net", payslip.SalaryNet.StringFixed(2)).
		Str("advances_deducted", payslip.AdvancesDeducted.StringFixed(2)).
		Int("bonuses", len(payslip.BonusesBreakdown)).
		Msg("payslip generated")

	return payslip, nil
}

// Get returns a payslip by id
func (s *PayslipService) Get(ctx context.Context, id string) (*domain.Payslip, error) {
	return s.payslips.GetByID(ctx, id)
}

// List lists payslips with filters
func (s *PayslipService) List(ctx context.Context, filter domain.PayslipFilter) ([]*domain.Payslip, int64, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, errors.Validation(map[string]string{"status": "unknown payslip status"})
	}
	if filter.Month != 0 && (filter.Month < 1 || filter.Month > 12) {
		return nil, 0, errors.Validation(map[string]string{"month": "must be between 1 and 12"})
	}
	return s.payslips.List(ctx, filter)
}

// ListOwn returns the employee's PUBLISHED payslips, optionally for one year
// (0 means every year).
func (s *PayslipService) ListOwn(ctx context.Context, employeeID string, year int) ([]*domain.Payslip, error) {
	if year != 0 && year < domain.MinPayrollYear {
		return nil, errors.Validation(map[string]string{"year": "is before the first payroll year"})
	}
	return s.payslips.ListPublishedByEmployee(ctx, employeeID, year)
}

// UpdateNotes replaces the notes of a DRAFT payslip
func (s *PayslipService) UpdateNotes(ctx context.Context, id string, notes *string) (*domain.Payslip, error) {
	var p *domain.Payslip
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		p, err = s.loadDraft(ctx, id, "edited")
		if err != nil {
			return err
		}
		p.Notes = normalizeNotes(notes)
		return s.payslips.UpdateNotes(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("payslip_id", p.ID).
		Msg("payslip notes updated")

	return p, nil
}

// Delete removes a DRAFT payslip and returns its bonuses to the eligible pool.
// Recorded repayments stay in the ledger; regenerating the period picks them up again.
func (s *PayslipService) Delete(ctx context.Context, id string) error {
	var p *domain.Payslip
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		p, err = s.loadDraft(ctx, id, "deleted")
		if err != nil {
			return err
		}
		if err := s.bonuses.Release(ctx, p.BonusesBreakdown.IDs(), p.Period()); err != nil {
			return err
		}
		return s.payslips.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	s.logger.Info().
		Str("payslip_id", id).
		Str("employee_id", p.EmployeeID).
		Str("period", p.Period().String()).
		Msg("payslip deleted")

	return nil
}

// Publish moves a DRAFT payslip to PUBLISHED, making it visible to the employee
func (s *PayslipService) Publish(ctx context.Context, id string) (*domain.Payslip, error) {
	var p *domain.Payslip
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		p, err = s.loadDraft(ctx, id, "published")
		if err != nil {
			return err
		}
		return s.payslips.MarkPublished(ctx, p, s.clock.Now())
	})
	if err != nil {
		return nil, err
	}

	s.publisher.PublishPayslipPublished(ctx, p)

	s.logger.Info().
		Str("payslip_id", p.ID).
		Str("employee_id", p.EmployeeID).
		Msg("payslip published")

	return p, nil
}

func (s *PayslipService) loadDraft(ctx context.Context, id, action string) (*domain.Payslip, error) {
	p, err := s.payslips.GetForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.IsDraft() {
		return nil, errors.InvalidState("only draft payslips can be " + action)
	}
	return p, nil
}

func normalizeNotes(notes *string) *string {
	if notes == nil {
		return nil
	}
	n := strings.TrimSpace(*notes)
	if n == "" {
		return nil
	}
	return &n
}
