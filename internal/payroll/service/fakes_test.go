package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/medflow/payroll-backend/internal/payroll/domain"
	"github.com/medflow/payroll-backend/pkg/clock"
	"github.com/medflow/payroll-backend/pkg/errors"
	"github.com/medflow/payroll-backend/pkg/logger"
	"github.com/shopspring/decimal"
)

// memDB is an in-memory stand-in for the payroll tables. Rows are stored by
// value so callers never alias stored state.
type memDB struct {
	mu         sync.Mutex
	advances   map[string]domain.SalaryAdvance
	repayments []domain.AdvanceRepayment
	payslips   map[string]domain.Payslip
	bonuses    map[string]domain.Bonus
	// fail makes the named operation return the error
	fail map[string]error
}

func newMemDB() *memDB {
	return &memDB{
		advances: map[string]domain.SalaryAdvance{},
		payslips: map[string]domain.Payslip{},
		bonuses:  map[string]domain.Bonus{},
		fail:     map[string]error{},
	}
}

func (db *memDB) clone() *memDB {
	db.mu.Lock()
	defer db.mu.Unlock()

	c := newMemDB()
	for k, v := range db.advances {
		c.advances[k] = v
	}
	c.repayments = append(c.repayments, db.repayments...)
	for k, v := range db.payslips {
		c.payslips[k] = v
	}
	for k, v := range db.bonuses {
		c.bonuses[k] = v
	}
	return c
}

func (db *memDB) restore(c *memDB) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.advances = c.advances
	db.repayments = c.repayments
	db.payslips = c.payslips
	db.bonuses = c.bonuses
}

func (db *memDB) failure(op string) error {
	return db.fail[op]
}

type txMarker struct{}

// memTx rolls memDB back when fn fails
type memTx struct {
	db *memDB
}

func (t *memTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txMarker{}) != nil {
		return fn(ctx)
	}
	snap := t.db.clone()
	if err := fn(context.WithValue(ctx, txMarker{}, true)); err != nil {
		t.db.restore(snap)
		return err
	}
	return nil
}

func (t *memTx) RetryTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return t.InTx(ctx, fn)
}

type memAdvances struct{ db *memDB }

func (r *memAdvances) Create(ctx context.Context, a *domain.SalaryAdvance) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.failure("advances.Create"); err != nil {
		return err
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	r.db.advances[a.ID] = *a
	return nil
}

func (r *memAdvances) GetByID(ctx context.Context, id string) (*domain.SalaryAdvance, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	a, ok := r.db.advances[id]
	if !ok {
		return nil, errors.NotFound("salary advance")
	}
	return &a, nil
}

func (r *memAdvances) GetForUpdate(ctx context.Context, id string) (*domain.SalaryAdvance, error) {
	return r.GetByID(ctx, id)
}

func (r *memAdvances) Update(ctx context.Context, a *domain.SalaryAdvance) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.failure("advances.Update"); err != nil {
		return err
	}
	if _, ok := r.db.advances[a.ID]; !ok {
		return errors.NotFound("salary advance")
	}
	a.UpdatedAt = time.Now()
	r.db.advances[a.ID] = *a
	return nil
}

func (r *memAdvances) Delete(ctx context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.advances[id]; !ok {
		return errors.NotFound("salary advance")
	}
	delete(r.db.advances, id)
	return nil
}

func (r *memAdvances) List(ctx context.Context, f domain.AdvanceFilter) ([]*domain.SalaryAdvance, int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := []*domain.SalaryAdvance{}
	for _, a := range r.db.advances {
		if f.EmployeeID != "" && a.EmployeeID != f.EmployeeID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		a := a
		out = append(out, &a)
	}
	return out, int64(len(out)), nil
}

func (r *memAdvances) ListChargeable(ctx context.Context, employeeID string, period domain.Period) ([]*domain.SalaryAdvance, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := []*domain.SalaryAdvance{}
	for _, a := range r.db.advances {
		if a.EmployeeID != employeeID || a.RepaymentStart == nil || a.RepaymentStart.After(period.FirstDay()) {
			continue
		}
		if !a.IsChargeable() && !r.chargedIn(a.ID, period) {
			continue
		}
		a := a
		out = append(out, &a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RepaymentStart.Equal(*out[j].RepaymentStart) {
			return out[i].RepaymentStart.Before(*out[j].RepaymentStart)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *memAdvances) chargedIn(advanceID string, period domain.Period) bool {
	for _, rep := range r.db.repayments {
		if rep.AdvanceID == advanceID && rep.PayslipMonth == period.Month && rep.PayslipYear == period.Year {
			return true
		}
	}
	return false
}

type memRepayments struct{ db *memDB }

func (r *memRepayments) Insert(ctx context.Context, rep *domain.AdvanceRepayment) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.failure("repayments.Insert"); err != nil {
		return false, err
	}
	for _, existing := range r.db.repayments {
		if existing.AdvanceID == rep.AdvanceID && existing.PayslipMonth == rep.PayslipMonth && existing.PayslipYear == rep.PayslipYear {
			return false, nil
		}
	}
	if rep.ID == "" {
		rep.ID = uuid.New().String()
	}
	r.db.repayments = append(r.db.repayments, *rep)
	return true, nil
}

func (r *memRepayments) FindForPeriod(ctx context.Context, advanceID string, period domain.Period) (*domain.AdvanceRepayment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, rep := range r.db.repayments {
		if rep.AdvanceID == advanceID && rep.PayslipMonth == period.Month && rep.PayslipYear == period.Year {
			rep := rep
			return &rep, nil
		}
	}
	return nil, nil
}

func (r *memRepayments) ListByAdvance(ctx context.Context, advanceID string) ([]*domain.AdvanceRepayment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := []*domain.AdvanceRepayment{}
	for _, rep := range r.db.repayments {
		if rep.AdvanceID == advanceID {
			rep := rep
			out = append(out, &rep)
		}
	}
	return out, nil
}

type memPayslips struct{ db *memDB }

func (r *memPayslips) Exists(ctx context.Context, employeeID string, period domain.Period) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, p := range r.db.payslips {
		if p.EmployeeID == employeeID && p.Month == period.Month && p.Year == period.Year {
			return true, nil
		}
	}
	return false, nil
}

func (r *memPayslips) Create(ctx context.Context, p *domain.Payslip) error {
	exists, _ := r.Exists(ctx, p.EmployeeID, p.Period())

	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.failure("payslips.Create"); err != nil {
		return err
	}
	if exists {
		return errors.DuplicatePeriod(p.EmployeeID, p.Month, p.Year)
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	r.db.payslips[p.ID] = *p
	return nil
}

func (r *memPayslips) GetByID(ctx context.Context, id string) (*domain.Payslip, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p, ok := r.db.payslips[id]
	if !ok {
		return nil, errors.NotFound("payslip")
	}
	return &p, nil
}

func (r *memPayslips) GetForUpdate(ctx context.Context, id string) (*domain.Payslip, error) {
	return r.GetByID(ctx, id)
}

func (r *memPayslips) UpdateNotes(ctx context.Context, p *domain.Payslip) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	stored, ok := r.db.payslips[p.ID]
	if !ok {
		return errors.NotFound("payslip")
	}
	stored.Notes = p.Notes
	r.db.payslips[p.ID] = stored
	return nil
}

func (r *memPayslips) MarkPublished(ctx context.Context, p *domain.Payslip, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	stored, ok := r.db.payslips[p.ID]
	if !ok || stored.Status != domain.PayslipDraft {
		return errors.InvalidState("only draft payslips can be published")
	}
	stored.Status = domain.PayslipPublished
	stored.PublishedAt = &at
	r.db.payslips[p.ID] = stored
	p.Status = stored.Status
	p.PublishedAt = stored.PublishedAt
	return nil
}

func (r *memPayslips) Delete(ctx context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.payslips[id]; !ok {
		return errors.NotFound("payslip")
	}
	delete(r.db.payslips, id)
	return nil
}

func (r *memPayslips) List(ctx context.Context, f domain.PayslipFilter) ([]*domain.Payslip, int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := []*domain.Payslip{}
	for _, p := range r.db.payslips {
		if f.EmployeeID != "" && p.EmployeeID != f.EmployeeID {
			continue
		}
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		p := p
		out = append(out, &p)
	}
	return out, int64(len(out)), nil
}

func (r *memPayslips) ListPublishedByEmployee(ctx context.Context, employeeID string, year int) ([]*domain.Payslip, error) {
	all, _, err := r.List(ctx, domain.PayslipFilter{EmployeeID: employeeID, Status: domain.PayslipPublished})
	if err != nil {
		return nil, err
	}
	out := []*domain.Payslip{}
	for _, p := range all {
		if year == 0 || p.Year == year {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memPayslips) count() int {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return len(r.db.payslips)
}

type memBonuses struct{ db *memDB }

func (r *memBonuses) add(employeeID, title, amount string) string {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	id := uuid.New().String()
	r.db.bonuses[id] = domain.Bonus{
		ID:         id,
		EmployeeID: employeeID,
		Title:      title,
		Amount:     decimal.RequireFromString(amount),
		Status:     domain.BonusApproved,
	}
	return id
}

func (r *memBonuses) get(id string) domain.Bonus {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.db.bonuses[id]
}

func (r *memBonuses) ListEligibleForUpdate(ctx context.Context, employeeID string) ([]*domain.Bonus, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := []*domain.Bonus{}
	for _, b := range r.db.bonuses {
		if b.EmployeeID == employeeID && b.IsEligible() {
			b := b
			out = append(out, &b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memBonuses) MarkPaid(ctx context.Context, ids []string, period domain.Period, paidAt time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.failure("bonuses.MarkPaid"); err != nil {
		return err
	}
	for _, id := range ids {
		b, ok := r.db.bonuses[id]
		if !ok || !b.IsEligible() {
			return errors.Conflict("a bonus was claimed by another payslip")
		}
		month, year := period.Month, period.Year
		b.Status = domain.BonusPaid
		b.PayslipMonth = &month
		b.PayslipYear = &year
		b.PaidAt = &paidAt
		r.db.bonuses[id] = b
	}
	return nil
}

func (r *memBonuses) Release(ctx context.Context, ids []string, period domain.Period) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, id := range ids {
		b, ok := r.db.bonuses[id]
		if !ok || b.Status != domain.BonusPaid {
			continue
		}
		b.Status = domain.BonusApproved
		b.PayslipMonth = nil
		b.PayslipYear = nil
		b.PaidAt = nil
		r.db.bonuses[id] = b
	}
	return nil
}

type memSnapshots struct {
	snapshots map[string]*domain.FinancialSnapshot
	err       error
}

func (p *memSnapshots) GetFinancialSnapshot(ctx context.Context, employeeID string) (*domain.FinancialSnapshot, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.snapshots[employeeID], nil
}

// recordingPublisher keeps the names of published events in order
type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) record(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, name)
}

func (p *recordingPublisher) Events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

func (p *recordingPublisher) PublishAdvanceSubmitted(ctx context.Context, a *domain.SalaryAdvance) {
	p.record("advance.submitted")
}

func (p *recordingPublisher) PublishAdvanceReviewed(ctx context.Context, a *domain.SalaryAdvance) {
	p.record("advance.reviewed")
}

func (p *recordingPublisher) PublishAdvanceCancelled(ctx context.Context, a *domain.SalaryAdvance) {
	p.record("advance.cancelled")
}

func (p *recordingPublisher) PublishAdvanceCompleted(ctx context.Context, a *domain.SalaryAdvance) {
	p.record("advance.completed")
}

func (p *recordingPublisher) PublishPayslipGenerated(ctx context.Context, ps *domain.Payslip) {
	p.record("payslip.generated")
}

func (p *recordingPublisher) PublishPayslipPublished(ctx context.Context, ps *domain.Payslip) {
	p.record("payslip.published")
}

const (
	testEmployee = "7"
	testReviewer = "hr-manager"
)

// harness wires the payroll services over memDB with a clock pinned to
// 15 January 2025, so approvals start repayment on 1 February 2025.
type harness struct {
	db         *memDB
	clock      *clock.Fixed
	advances   *memAdvances
	repayments *memRepayments
	payslips   *memPayslips
	bonuses    *memBonuses
	snapshots  *memSnapshots
	publisher  *recordingPublisher

	advanceSvc *AdvanceService
	ledger     *Ledger
	payslipSvc *PayslipService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db := newMemDB()
	h := &harness{
		db:         db,
		clock:      clock.NewFixed(time.Date(2025, time.January, 15, 10, 30, 0, 0, time.UTC)),
		advances:   &memAdvances{db: db},
		repayments: &memRepayments{db: db},
		payslips:   &memPayslips{db: db},
		bonuses:    &memBonuses{db: db},
		snapshots:  &memSnapshots{snapshots: map[string]*domain.FinancialSnapshot{}},
		publisher:  &recordingPublisher{},
	}
	tx := &memTx{db: db}
	log := logger.Nop()

	h.advanceSvc = NewAdvanceService(tx, h.advances, h.repayments, h.snapshots, h.publisher, h.clock, DefaultAdvancePolicy(), log)
	h.ledger = NewLedger(tx, h.advances, h.repayments, h.publisher, h.clock, log)
	h.payslipSvc = NewPayslipService(tx, h.payslips, h.bonuses, h.advances, h.ledger, h.snapshots, h.publisher, h.clock, log)
	return h
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func months(n int) *int {
	return &n
}

// approvedAdvance takes an advance through create, submit and approval
func (h *harness) approvedAdvance(t *testing.T, amount string, repaymentMonths int) *domain.SalaryAdvance {
	t.Helper()
	ctx := context.Background()

	adv, err := h.advanceSvc.Create(ctx, testEmployee, CreateAdvanceInput{
		Amount:          dec(amount),
		Reason:          "car repair",
		RepaymentMonths: months(repaymentMonths),
	})
	if err != nil {
		t.Fatalf("create advance: %v", err)
	}
	if _, err := h.advanceSvc.Submit(ctx, adv.ID, testEmployee); err != nil {
		t.Fatalf("submit advance: %v", err)
	}
	adv, err = h.advanceSvc.Review(ctx, adv.ID, testReviewer, domain.DecisionApprove, "ok")
	if err != nil {
		t.Fatalf("approve advance: %v", err)
	}
	return adv
}

func (h *harness) advance(t *testing.T, id string) *domain.SalaryAdvance {
	t.Helper()
	adv, err := h.advances.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("load advance: %v", err)
	}
	return adv
}

// repaidSum sums the ledger rows of an advance
func (h *harness) repaidSum(t *testing.T, id string) decimal.Decimal {
	t.Helper()
	reps, err := h.repayments.ListByAdvance(context.Background(), id)
	if err != nil {
		t.Fatalf("list repayments: %v", err)
	}
	sum := decimal.Zero
	for _, r := range reps {
		sum = sum.Add(r.Amount)
	}
	return sum
}
