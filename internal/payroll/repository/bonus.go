package repository

import (
	"context"
	"time"

	"github.com/lib/pq"
	"github.com/medflow/payroll-backend/internal/payroll/domain"
	"github.com/medflow/payroll-backend/pkg/database"
	"github.com/medflow/payroll-backend/pkg/errors"
)

const bonusColumns = `id, employee_id, title, amount, status, payslip_month, payslip_year,
	paid_at, approved_at, created_at, updated_at`

// BonusRepository reads and settles the bonuses mirrored from staff-service
type BonusRepository struct {
	db *database.DB
}

// NewBonusRepository creates a new bonus repository
func NewBonusRepository(db *database.DB) *BonusRepository {
	return &BonusRepository{db: db}
}

// ListEligibleForUpdate returns the employee's approved bonuses not yet linked
// to any period, locking them for the surrounding transaction.
func (r *BonusRepository) ListEligibleForUpdate(ctx context.Context, employeeID string) ([]*domain.Bonus, error) {
	query := `SELECT ` + bonusColumns + ` FROM bonuses
		WHERE employee_id = $1 AND status = $2 AND payslip_month IS NULL AND payslip_year IS NULL
		ORDER BY created_at, id
		FOR UPDATE`

	bonuses := []*domain.Bonus{}
	if err := r.db.Conn(ctx).SelectContext(ctx, &bonuses, query, employeeID, domain.BonusApproved); err != nil {
		return nil, err
	}
	return bonuses, nil
}

// MarkPaid stamps the period on the given eligible bonuses and marks them PAID.
// It fails with Conflict unless every id was still eligible.
func (r *BonusRepository) MarkPaid(ctx context.Context, ids []string, period domain.Period, paidAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	result, err := r.db.Conn(ctx).ExecContext(ctx, `
		UPDATE bonuses
		SET status = $2, payslip_month = $3, payslip_year = $4, paid_at = $5, updated_at = NOW()
		WHERE id = ANY($1) AND status = $6 AND payslip_month IS NULL AND payslip_year IS NULL`,
		pq.Array(ids), domain.BonusPaid, period.Month, period.Year, paidAt, domain.BonusApproved,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows != int64(len(ids)) {
		return errors.Conflict("a bonus was claimed by another payslip")
	}
	return nil
}

// Release returns bonuses paid in the period to APPROVED and clears their period
func (r *BonusRepository) Release(ctx context.Context, ids []string, period domain.Period) error {
	if len(ids) == 0 {
		return nil
	}

	_, err := r.db.Conn(ctx).ExecContext(ctx, `
		UPDATE bonuses
		SET status = $2, payslip_month = NULL, payslip_year = NULL, paid_at = NULL, updated_at = NOW()
		WHERE id = ANY($1) AND status = $3 AND payslip_month = $4 AND payslip_year = $5`,
		pq.Array(ids), domain.BonusApproved, domain.BonusPaid, period.Month, period.Year,
	)
	return err
}

// Upsert mirrors an approved bonus. Bonuses already claimed by a payslip are left untouched.
func (r *BonusRepository) Upsert(ctx context.Context, b *domain.Bonus) error {
	_, err := r.db.Conn(ctx).ExecContext(ctx, `
		INSERT INTO bonuses (id, employee_id, title, amount, status, approved_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			employee_id = EXCLUDED.employee_id,
			title = EXCLUDED.title,
			amount = EXCLUDED.amount,
			status = EXCLUDED.status,
			approved_at = EXCLUDED.approved_at,
			updated_at = NOW()
		WHERE bonuses.status <> 'PAID'`,
		b.ID, b.EmployeeID, b.Title, b.Amount, domain.BonusApproved, b.ApprovedAt,
	)
	if appErr := database.MapPQError(err); appErr != nil {
		return appErr
	}
	return err
}

// Cancel withdraws a bonus that has not been paid. It reports whether a row changed.
func (r *BonusRepository) Cancel(ctx context.Context, id string) (bool, error) {
	result, err := r.db.Conn(ctx).ExecContext(ctx, `
		UPDATE bonuses SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3 AND payslip_month IS NULL`,
		id, domain.BonusCancelled, domain.BonusApproved,
	)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}
