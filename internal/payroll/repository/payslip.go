package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"github.com/medflow/payroll-backend/internal/payroll/domain"
	"github.com/medflow/payroll-backend/pkg/database"
	"github.com/medflow/payroll-backend/pkg/errors"
)

const payslipColumns = `id, employee_id, month, year, salary_basic, salary_gross,
	allowances_total, allowances_breakdown, deductions_total, deductions_breakdown,
	bonuses_total, bonuses_breakdown, advances_deducted, salary_net, status,
	generated_by, published_at, notes, created_at, updated_at`

// PayslipPeriodConstraint is the unique index on (employee_id, month, year)
const PayslipPeriodConstraint = "uq_payslips_employee_period"

// PayslipRepository handles payslip persistence
type PayslipRepository struct {
	db *database.DB
}

// NewPayslipRepository creates a new payslip repository
func NewPayslipRepository(db *database.DB) *PayslipRepository {
	return &PayslipRepository{db: db}
}

// Exists reports whether the employee already has a payslip for the period
func (r *PayslipRepository) Exists(ctx context.Context, employeeID string, period domain.Period) (bool, error) {
	var exists bool
	err := r.db.Conn(ctx).GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM payslips WHERE employee_id = $1 AND month = $2 AND year = $3)`,
		employeeID, period.Month, period.Year)
	return exists, err
}

// Create inserts a payslip. A second payslip for the same employee and period
// fails with DuplicatePeriod.
func (r *PayslipRepository) Create(ctx context.Context, p *domain.Payslip) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}

	query := `
		INSERT INTO payslips (
			id, employee_id, month, year, salary_basic, salary_gross,
			allowances_total, allowances_breakdown, deductions_total, deductions_breakdown,
			bonuses_total, bonuses_breakdown, advances_deducted, salary_net, status,
			generated_by, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING created_at, updated_at
	`

	err := r.db.Conn(ctx).QueryRowxContext(ctx, query,
		p.ID, p.EmployeeID, p.Month, p.Year, p.SalaryBasic, p.SalaryGross,
		p.AllowancesTotal, p.AllowancesBreakdown, p.DeductionsTotal, p.DeductionsBreakdown,
		p.BonusesTotal, p.BonusesBreakdown, p.AdvancesDeducted, p.SalaryNet, p.Status,
		p.GeneratedBy, p.Notes,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if database.IsUniqueViolation(err, PayslipPeriodConstraint) {
		return errors.DuplicatePeriod(p.EmployeeID, p.Month, p.Year)
	}
	if appErr := database.MapPQError(err); appErr != nil {
		return appErr
	}
	return err
}

// GetByID gets a payslip by id
func (r *PayslipRepository) GetByID(ctx context.Context, id string) (*domain.Payslip, error) {
	return r.get(ctx, `SELECT `+payslipColumns+` FROM payslips WHERE id = $1`, id)
}

// GetForUpdate gets a payslip and locks its row until the surrounding transaction ends
func (r *PayslipRepository) GetForUpdate(ctx context.Context, id string) (*domain.Payslip, error) {
	return r.get(ctx, `SELECT `+payslipColumns+` FROM payslips WHERE id = $1 FOR UPDATE`, id)
}

func (r *PayslipRepository) get(ctx context.Context, query, id string) (*domain.Payslip, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errors.NotFound("payslip")
	}

	var p domain.Payslip
	err := r.db.Conn(ctx).GetContext(ctx, &p, query, id)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("payslip")
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateNotes replaces the notes of a payslip
func (r *PayslipRepository) UpdateNotes(ctx context.Context, p *domain.Payslip) error {
	err := r.db.Conn(ctx).QueryRowxContext(ctx,
		`UPDATE payslips SET notes = $2, updated_at = NOW() WHERE id = $1 RETURNING updated_at`,
		p.ID, p.Notes,
	).Scan(&p.UpdatedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		return errors.NotFound("payslip")
	}
	return err
}

// MarkPublished moves a DRAFT payslip to PUBLISHED
func (r *PayslipRepository) MarkPublished(ctx context.Context, p *domain.Payslip, at time.Time) error {
	err := r.db.Conn(ctx).QueryRowxContext(ctx, `
		UPDATE payslips SET status = $2, published_at = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4
		RETURNING status, published_at, updated_at`,
		p.ID, domain.PayslipPublished, at, domain.PayslipDraft,
	).Scan(&p.Status, &p.PublishedAt, &p.UpdatedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		return errors.InvalidState("only draft payslips can be published")
	}
	return err
}

// Delete removes a payslip
func (r *PayslipRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.Conn(ctx).ExecContext(ctx, `DELETE FROM payslips WHERE id = $1`, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errors.NotFound("payslip")
	}
	return nil
}

// List returns a page of payslips matching the filter, latest period first
func (r *PayslipRepository) List(ctx context.Context, f domain.PayslipFilter) ([]*domain.Payslip, int64, error) {
	var w where
	if f.EmployeeID != "" {
		w.add("employee_id = $%d", f.EmployeeID)
	}
	if f.Month != 0 {
		w.add("month = $%d", f.Month)
	}
	if f.Year != 0 {
		w.add("year = $%d", f.Year)
	}
	if f.Status != "" {
		w.add("status = $%d", f.Status)
	}

	var total int64
	if err := r.db.Conn(ctx).GetContext(ctx, &total, `SELECT COUNT(*) FROM payslips`+w.String(), w.args...); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + payslipColumns + ` FROM payslips` + w.String() +
		` ORDER BY year DESC, month DESC, employee_id`
	query += w.page(f.Page, f.PerPage)

	payslips := []*domain.Payslip{}
	if err := r.db.Conn(ctx).SelectContext(ctx, &payslips, query, w.args...); err != nil {
		return nil, 0, err
	}
	return payslips, total, nil
}

// ListPublishedByEmployee returns the employee's published payslips, optionally for one year
func (r *PayslipRepository) ListPublishedByEmployee(ctx context.Context, employeeID string, year int) ([]*domain.Payslip, error) {
	var w where
	w.add("employee_id = $%d", employeeID)
	w.add("status = $%d", domain.PayslipPublished)
	if year != 0 {
		w.add("year = $%d", year)
	}

	query := `SELECT ` + payslipColumns + ` FROM payslips` + w.String() + ` ORDER BY year DESC, month DESC`

	payslips := []*domain.Payslip{}
	if err := r.db.Conn(ctx).SelectContext(ctx, &payslips, query, w.args...); err != nil {
		return nil, err
	}
	return payslips, nil
}
