package repository

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/google/uuid"
	"github.com/medflow/payroll-backend/internal/payroll/domain"
	"github.com/medflow/payroll-backend/pkg/database"
	"github.com/medflow/payroll-backend/pkg/errors"
)

const advanceColumns = `id, employee_id, amount, reason, needed_by_date, repayment_months,
	monthly_deduction, status, submitted_at, reviewed_by, reviewed_at, reviewer_comment,
	repayment_start, total_repaid, fully_repaid_at, created_at, updated_at`

// AdvanceRepository handles salary advance persistence
type AdvanceRepository struct {
	db *database.DB
}

// NewAdvanceRepository creates a new advance repository
func NewAdvanceRepository(db *database.DB) *AdvanceRepository {
	return &AdvanceRepository{db: db}
}

// Create inserts a new advance and assigns its id and timestamps
func (r *AdvanceRepository) Create(ctx context.Context, a *domain.SalaryAdvance) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}

	query := `
		INSERT INTO salary_advances (
			id, employee_id, amount, reason, needed_by_date, repayment_months,
			monthly_deduction, status, total_repaid
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`

	err := r.db.Conn(ctx).QueryRowxContext(ctx, query,
		a.ID, a.EmployeeID, a.Amount, a.Reason, a.NeededByDate, a.RepaymentMonths,
		a.MonthlyDeduction, a.Status, a.TotalRepaid,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if appErr := database.MapPQError(err); appErr != nil {
		return appErr
	}
	return err
}

// GetByID gets an advance by id
func (r *AdvanceRepository) GetByID(ctx context.Context, id string) (*domain.SalaryAdvance, error) {
	return r.get(ctx, `SELECT `+advanceColumns+` FROM salary_advances WHERE id = $1`, id)
}

// GetForUpdate gets an advance and locks its row until the surrounding transaction ends
func (r *AdvanceRepository) GetForUpdate(ctx context.Context, id string) (*domain.SalaryAdvance, error) {
	return r.get(ctx, `SELECT `+advanceColumns+` FROM salary_advances WHERE id = $1 FOR UPDATE`, id)
}

func (r *AdvanceRepository) get(ctx context.Context, query, id string) (*domain.SalaryAdvance, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errors.NotFound("salary advance")
	}

	var a domain.SalaryAdvance
	err := r.db.Conn(ctx).GetContext(ctx, &a, query, id)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("salary advance")
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Update writes every mutable column of the advance
func (r *AdvanceRepository) Update(ctx context.Context, a *domain.SalaryAdvance) error {
	query := `
		UPDATE salary_advances SET
			amount = $2, reason = $3, needed_by_date = $4, repayment_months = $5,
			monthly_deduction = $6, status = $7, submitted_at = $8, reviewed_by = $9,
			reviewed_at = $10, reviewer_comment = $11, repayment_start = $12,
			total_repaid = $13, fully_repaid_at = $14, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.Conn(ctx).QueryRowxContext(ctx, query,
		a.ID, a.Amount, a.Reason, a.NeededByDate, a.RepaymentMonths,
		a.MonthlyDeduction, a.Status, a.SubmittedAt, a.ReviewedBy,
		a.ReviewedAt, a.ReviewerComment, a.RepaymentStart,
		a.TotalRepaid, a.FullyRepaidAt,
	).Scan(&a.UpdatedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		return errors.NotFound("salary advance")
	}
	if appErr := database.MapPQError(err); appErr != nil {
		return appErr
	}
	return err
}

// Delete removes an advance; its repayments cascade
func (r *AdvanceRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.Conn(ctx).ExecContext(ctx, `DELETE FROM salary_advances WHERE id = $1`, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errors.NotFound("salary advance")
	}
	return nil
}

// List returns a page of advances matching the filter, newest first
func (r *AdvanceRepository) List(ctx context.Context, f domain.AdvanceFilter) ([]*domain.SalaryAdvance, int64, error) {
	var w where
	if f.EmployeeID != "" {
		w.add("employee_id = $%d", f.EmployeeID)
	}
	if f.Status != "" {
		w.add("status = $%d", f.Status)
	}

	var total int64
	if err := r.db.Conn(ctx).GetContext(ctx, &total, `SELECT COUNT(*) FROM salary_advances`+w.String(), w.args...); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + advanceColumns + ` FROM salary_advances` + w.String() +
		` ORDER BY created_at DESC, id`
	query += w.page(f.Page, f.PerPage)

	advances := []*domain.SalaryAdvance{}
	if err := r.db.Conn(ctx).SelectContext(ctx, &advances, query, w.args...); err != nil {
		return nil, 0, err
	}
	return advances, total, nil
}

// ListChargeable returns the employee's advances whose repayment has started by
// the period and that are either still being repaid or already charged for it.
// The second group lets a regenerated payslip pick up an existing charge.
func (r *AdvanceRepository) ListChargeable(ctx context.Context, employeeID string, period domain.Period) ([]*domain.SalaryAdvance, error) {
	query := `
		SELECT ` + advanceColumns + `
		FROM salary_advances a
		WHERE a.employee_id = $1
		  AND a.repayment_start IS NOT NULL
		  AND a.repayment_start <= $2
		  AND (
			a.status IN ('APPROVED', 'REPAYING')
			OR EXISTS (
				SELECT 1 FROM advance_repayments ar
				WHERE ar.advance_id = a.id AND ar.payslip_month = $3 AND ar.payslip_year = $4
			)
		  )
		ORDER BY a.repayment_start, a.created_at, a.id
	`

	advances := []*domain.SalaryAdvance{}
	err := r.db.Conn(ctx).SelectContext(ctx, &advances, query, employeeID, period.FirstDay(), period.Month, period.Year)
	if err != nil {
		return nil, err
	}
	return advances, nil
}
