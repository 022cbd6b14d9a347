package repository

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/google/uuid"
	"github.com/medflow/payroll-backend/internal/payroll/domain"
	"github.com/medflow/payroll-backend/pkg/database"
)

const repaymentColumns = `id, advance_id, payslip_month, payslip_year, amount, deducted_at`

// RepaymentRepository handles the append-only repayment ledger
type RepaymentRepository struct {
	db *database.DB
}

// NewRepaymentRepository creates a new repayment repository
func NewRepaymentRepository(db *database.DB) *RepaymentRepository {
	return &RepaymentRepository{db: db}
}

// Insert records a repayment. It returns false without error when a repayment
// for the same advance and period already exists.
func (r *RepaymentRepository) Insert(ctx context.Context, rep *domain.AdvanceRepayment) (bool, error) {
	if rep.ID == "" {
		rep.ID = uuid.New().String()
	}

	query := `
		INSERT INTO advance_repayments (id, advance_id, payslip_month, payslip_year, amount, deducted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT ON CONSTRAINT uq_advance_repayments_advance_period DO NOTHING
		RETURNING deducted_at
	`

	err := r.db.Conn(ctx).QueryRowxContext(ctx, query,
		rep.ID, rep.AdvanceID, rep.PayslipMonth, rep.PayslipYear, rep.Amount, rep.DeductedAt,
	).Scan(&rep.DeductedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return false, appErr
		}
		return false, err
	}
	return true, nil
}

// FindForPeriod returns the repayment charged against the advance for the period, or nil.
func (r *RepaymentRepository) FindForPeriod(ctx context.Context, advanceID string, period domain.Period) (*domain.AdvanceRepayment, error) {
	query := `SELECT ` + repaymentColumns + ` FROM advance_repayments
		WHERE advance_id = $1 AND payslip_month = $2 AND payslip_year = $3`

	var rep domain.AdvanceRepayment
	err := r.db.Conn(ctx).GetContext(ctx, &rep, query, advanceID, period.Month, period.Year)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rep, nil
}

// ListByAdvance returns the advance's repayments in period order
func (r *RepaymentRepository) ListByAdvance(ctx context.Context, advanceID string) ([]*domain.AdvanceRepayment, error) {
	query := `SELECT ` + repaymentColumns + ` FROM advance_repayments
		WHERE advance_id = $1 ORDER BY payslip_year, payslip_month`

	repayments := []*domain.AdvanceRepayment{}
	if err := r.db.Conn(ctx).SelectContext(ctx, &repayments, query, advanceID); err != nil {
		return nil, err
	}
	return repayments, nil
}
