package app

import (
	"context"
	"strings"
	"time"

	"github.com/hylla/labbook/internal/domain"
)

// CreateBudgetLineInput holds input values for budget line creation.
type CreateBudgetLineInput struct {
	ProjectID      string
	Category       string
	AllocatedCents int64
}

// CreateBudgetLine creates a budget line for a project.
func (s *Service) CreateBudgetLine(ctx context.Context, in CreateBudgetLineInput) (domain.BudgetLine, error) {
	line, err := domain.NewBudgetLine(domain.BudgetLineInput{
		ID:             s.idGen(),
		ProjectID:      in.ProjectID,
		Category:       in.Category,
		AllocatedCents: in.AllocatedCents,
	}, s.clock())
	if err != nil {
		return domain.BudgetLine{}, err
	}
	if _, err := s.repo.GetProject(ctx, line.ProjectID); err != nil {
		return domain.BudgetLine{}, err
	}
	if err := s.repo.CreateBudgetLine(ctx, line); err != nil {
		return domain.BudgetLine{}, err
	}
	if err := s.recordChange(ctx, domain.TableBudgetLines, line.ID, line.ProjectID, domain.ChangeOperationInsert, nil); err != nil {
		return domain.BudgetLine{}, err
	}
	return line, nil
}

// RecordExpenseInput holds input values for expense recording.
type RecordExpenseInput struct {
	BudgetLineID string
	AmountCents  int64
	Description  string
	SpentAt      time.Time
}

// RecordExpense records money spent against a budget line.
func (s *Service) RecordExpense(ctx context.Context, in RecordExpenseInput) (domain.Expense, error) {
	expense, err := domain.NewExpense(domain.ExpenseInput{
		ID:           s.idGen(),
		BudgetLineID: in.BudgetLineID,
		AmountCents:  in.AmountCents,
		Description:  in.Description,
		SpentAt:      in.SpentAt,
	}, s.clock())
	if err != nil {
		return domain.Expense{}, err
	}
	line, err := s.repo.GetBudgetLine(ctx, expense.BudgetLineID)
	if err != nil {
		return domain.Expense{}, err
	}
	if err := s.repo.CreateExpense(ctx, expense); err != nil {
		return domain.Expense{}, err
	}
	if err := s.recordChange(ctx, domain.TableExpenses, expense.ID, line.ProjectID, domain.ChangeOperationInsert, nil); err != nil {
		return domain.Expense{}, err
	}
	return expense, nil
}

// DeleteExpense removes an expense.
func (s *Service) DeleteExpense(ctx context.Context, expenseID string) error {
	expense, err := s.repo.GetExpense(ctx, strings.TrimSpace(expenseID))
	if err != nil {
		return err
	}
	line, err := s.repo.GetBudgetLine(ctx, expense.BudgetLineID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteExpense(ctx, expense.ID); err != nil {
		return err
	}
	return s.recordChange(ctx, domain.TableExpenses, expense.ID, line.ProjectID, domain.ChangeOperationDelete, nil)
}

// BudgetLineSummary pairs a budget line with its spending.
type BudgetLineSummary struct {
	Line           domain.BudgetLine   `json:"line"`
	SpentCents     int64               `json:"spent_cents"`
	RemainingCents int64               `json:"remaining_cents"`
	Status         domain.BudgetStatus `json:"status"`
	Expenses       []domain.Expense    `json:"expenses"`
}

// BudgetSummary totals a project's budget lines.
type BudgetSummary struct {
	ProjectID      string              `json:"project_id"`
	Lines          []BudgetLineSummary `json:"lines"`
	AllocatedCents int64               `json:"allocated_cents"`
	SpentCents     int64               `json:"spent_cents"`
	Status         domain.BudgetStatus `json:"status"`
}

// BudgetSummary classifies each budget line of a project and the project total.
func (s *Service) BudgetSummary(ctx context.Context, projectID string) (BudgetSummary, error) {
	project, err := s.repo.GetProject(ctx, strings.TrimSpace(projectID))
	if err != nil {
		return BudgetSummary{}, err
	}
	lines, err := s.repo.ListBudgetLines(ctx, project.ID)
	if err != nil {
		return BudgetSummary{}, err
	}
	out := BudgetSummary{ProjectID: project.ID, Lines: make([]BudgetLineSummary, 0, len(lines))}
	for _, line := range lines {
		expenses, err := s.repo.ListExpenses(ctx, line.ID)
		if err != nil {
			return BudgetSummary{}, err
		}
		var spent int64
		for _, e := range expenses {
			spent += e.AmountCents
		}
		out.Lines = append(out.Lines, BudgetLineSummary{
			Line:           line,
			SpentCents:     spent,
			RemainingCents: line.AllocatedCents - spent,
			Status:         domain.ClassifyBudget(spent, line.AllocatedCents, s.thresholds.BudgetWarn),
			Expenses:       expenses,
		})
		out.AllocatedCents += line.AllocatedCents
		out.SpentCents += spent
	}
	out.Status = domain.ClassifyBudget(out.SpentCents, out.AllocatedCents, s.thresholds.BudgetWarn)
	return out, nil
}
