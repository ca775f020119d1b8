package sqlite

import (
	"context"

	"github.com/hylla/labbook/internal/domain"
)

// CreateBudgetLine inserts a budget line.
func (r *Repository) CreateBudgetLine(ctx context.Context, l domain.BudgetLine) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO budget_lines(id, project_id, category, allocated_cents, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, l.ID, l.ProjectID, l.Category, l.AllocatedCents, ts(l.CreatedAt), ts(l.UpdatedAt))
	return translateWriteErr(err)
}

// UpdateBudgetLine replaces a budget line's category and allocation.
func (r *Repository) UpdateBudgetLine(ctx context.Context, l domain.BudgetLine) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE budget_lines SET category = ?, allocated_cents = ?, updated_at = ? WHERE id = ?
	`, l.Category, l.AllocatedCents, ts(l.UpdatedAt), l.ID)
	if err != nil {
		return translateWriteErr(err)
	}
	return translateNoRows(res)
}

// GetBudgetLine returns a budget line by id.
func (r *Repository) GetBudgetLine(ctx context.Context, id string) (domain.BudgetLine, error) {
	return scanBudgetLine(r.db.QueryRowContext(ctx, `
		SELECT id, project_id, category, allocated_cents, created_at, updated_at FROM budget_lines WHERE id = ?
	`, id))
}

// ListBudgetLines lists the budget lines of a project by category.
func (r *Repository) ListBudgetLines(ctx context.Context, projectID string) ([]domain.BudgetLine, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, project_id, category, allocated_cents, created_at, updated_at
		FROM budget_lines
		WHERE project_id = ?
		ORDER BY category ASC, id ASC
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.BudgetLine, 0)
	for rows.Next() {
		l, err := scanBudgetLine(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// CreateExpense inserts an expense.
func (r *Repository) CreateExpense(ctx context.Context, e domain.Expense) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO expenses(id, budget_line_id, amount_cents, description, spent_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ID, e.BudgetLineID, e.AmountCents, e.Description, ts(e.SpentAt), ts(e.CreatedAt))
	return translateWriteErr(err)
}

// GetExpense returns an expense by id.
func (r *Repository) GetExpense(ctx context.Context, id string) (domain.Expense, error) {
	return scanExpense(r.db.QueryRowContext(ctx, `
		SELECT id, budget_line_id, amount_cents, description, spent_at, created_at FROM expenses WHERE id = ?
	`, id))
}

// ListExpenses lists the expenses of a budget line, oldest first.
func (r *Repository) ListExpenses(ctx context.Context, lineID string) ([]domain.Expense, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, budget_line_id, amount_cents, description, spent_at, created_at
		FROM expenses
		WHERE budget_line_id = ?
		ORDER BY spent_at ASC, id ASC
	`, lineID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Expense, 0)
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteExpense deletes an expense.
func (r *Repository) DeleteExpense(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// scanBudgetLine decodes a budget line row.
func scanBudgetLine(s scanner) (domain.BudgetLine, error) {
	var (
		l          domain.BudgetLine
		createdRaw string
		updatedRaw string
	)
	if err := s.Scan(&l.ID, &l.ProjectID, &l.Category, &l.AllocatedCents, &createdRaw, &updatedRaw); err != nil {
		return domain.BudgetLine{}, translateScanErr(err)
	}
	l.CreatedAt = parseTS(createdRaw)
	l.UpdatedAt = parseTS(updatedRaw)
	return l, nil
}

// scanExpense decodes an expense row.
func scanExpense(s scanner) (domain.Expense, error) {
	var (
		e          domain.Expense
		spentRaw   string
		createdRaw string
	)
	if err := s.Scan(&e.ID, &e.BudgetLineID, &e.AmountCents, &e.Description, &spentRaw, &createdRaw); err != nil {
		return domain.Expense{}, translateScanErr(err)
	}
	e.SpentAt = parseTS(spentRaw)
	e.CreatedAt = parseTS(createdRaw)
	return e, nil
}
