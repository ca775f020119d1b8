package domain

import (
	"strings"
	"time"
)

// BudgetLine is an allocation for one spending category of a project.
type BudgetLine struct {
	ID             string    `json:"id"`
	ProjectID      string    `json:"project_id"`
	Category       string    `json:"category"`
	AllocatedCents int64     `json:"allocated_cents"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// BudgetLineInput holds values used to create a budget line.
type BudgetLineInput struct {
	ID             string
	ProjectID      string
	Category       string
	AllocatedCents int64
}

// NewBudgetLine constructs a budget line.
func NewBudgetLine(in BudgetLineInput, now time.Time) (BudgetLine, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.ProjectID = strings.TrimSpace(in.ProjectID)
	if in.ID == "" || in.ProjectID == "" {
		return BudgetLine{}, ErrInvalidID
	}
	category := strings.TrimSpace(in.Category)
	if category == "" {
		return BudgetLine{}, ErrInvalidName
	}
	if in.AllocatedCents < 0 {
		return BudgetLine{}, ErrInvalidAmount
	}
	ts := now.UTC()
	return BudgetLine{
		ID:             in.ID,
		ProjectID:      in.ProjectID,
		Category:       category,
		AllocatedCents: in.AllocatedCents,
		CreatedAt:      ts,
		UpdatedAt:      ts,
	}, nil
}

// Expense is money spent against a budget line.
type Expense struct {
	ID           string    `json:"id"`
	BudgetLineID string    `json:"budget_line_id"`
	AmountCents  int64     `json:"amount_cents"`
	Description  string    `json:"description"`
	SpentAt      time.Time `json:"spent_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// ExpenseInput holds values used to record an expense.
type ExpenseInput struct {
	ID           string
	BudgetLineID string
	AmountCents  int64
	Description  string
	SpentAt      time.Time
}

// NewExpense constructs an expense. A zero SpentAt defaults to now.
func NewExpense(in ExpenseInput, now time.Time) (Expense, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.BudgetLineID = strings.TrimSpace(in.BudgetLineID)
	if in.ID == "" || in.BudgetLineID == "" {
		return Expense{}, ErrInvalidID
	}
	if in.AmountCents <= 0 {
		return Expense{}, ErrInvalidAmount
	}
	spentAt := in.SpentAt
	if spentAt.IsZero() {
		spentAt = now
	}
	return Expense{
		ID:           in.ID,
		BudgetLineID: in.BudgetLineID,
		AmountCents:  in.AmountCents,
		Description:  strings.TrimSpace(in.Description),
		SpentAt:      spentAt.UTC().Truncate(time.Second),
		CreatedAt:    now.UTC(),
	}, nil
}
