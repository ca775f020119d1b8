package app

import (
	"context"

	"github.com/hylla/labbook/internal/domain"
)

// ProjectStore persists projects.
type ProjectStore interface {
	CreateProject(context.Context, domain.Project) error
	UpdateProject(context.Context, domain.Project) error
	GetProject(context.Context, string) (domain.Project, error)
	ListProjects(context.Context, bool) ([]domain.Project, error)
	DeleteProject(context.Context, string) error
}

// PlanStore persists milestones, activities and tasks.
// GetMilestone and ListMilestones return milestones with activities and tasks attached.
type PlanStore interface {
	CreateMilestone(context.Context, domain.Milestone) error
	UpdateMilestone(context.Context, domain.Milestone) error
	GetMilestone(context.Context, string) (domain.Milestone, error)
	ListMilestones(context.Context, string) ([]domain.Milestone, error)
	DeleteMilestone(context.Context, string) error

	CreateActivity(context.Context, domain.Activity) error
	UpdateActivity(context.Context, domain.Activity) error
	GetActivity(context.Context, string) (domain.Activity, error)
	DeleteActivity(context.Context, string) error

	CreateTask(context.Context, domain.Task) error
	UpdateTask(context.Context, domain.Task) error
	GetTask(context.Context, string) (domain.Task, error)
	DeleteTask(context.Context, string) error

	// SaveRollups writes the cached status and progress of a milestone and its activities.
	SaveRollups(context.Context, domain.Milestone) error
}

// SampleFilter narrows sample listings. Empty fields match everything.
type SampleFilter struct {
	ProjectID   string
	PatientID   string
	PlaquetteID string
	Status      domain.SampleStatus
}

// InventoryStore persists patients, samples and plaquettes.
type InventoryStore interface {
	CreatePatient(context.Context, domain.Patient) error
	UpdatePatient(context.Context, domain.Patient) error
	GetPatient(context.Context, string) (domain.Patient, error)
	ListPatients(context.Context, string) ([]domain.Patient, error)

	CreateSample(context.Context, domain.Sample) error
	UpdateSample(context.Context, domain.Sample) error
	GetSample(context.Context, string) (domain.Sample, error)
	ListSamples(context.Context, SampleFilter) ([]domain.Sample, error)

	CreatePlaquette(context.Context, domain.Plaquette) error
	UpdatePlaquette(context.Context, domain.Plaquette) error
	GetPlaquette(context.Context, string) (domain.Plaquette, error)
	ListPlaquettes(context.Context) ([]domain.Plaquette, error)
	CountPlacedSamples(context.Context) (map[string]int, error)
}

// TeamStore persists team members and attendance.
type TeamStore interface {
	CreateTeamMember(context.Context, domain.TeamMember) error
	UpdateTeamMember(context.Context, domain.TeamMember) error
	GetTeamMember(context.Context, string) (domain.TeamMember, error)
	ListTeamMembers(context.Context, bool) ([]domain.TeamMember, error)
	// UpsertAttendance keeps one record per member and day and returns the stored row.
	UpsertAttendance(context.Context, domain.AttendanceRecord) (domain.AttendanceRecord, error)
	ListAttendance(context.Context, string, string) ([]domain.AttendanceRecord, error)
}

// FinanceStore persists budget lines and expenses.
type FinanceStore interface {
	CreateBudgetLine(context.Context, domain.BudgetLine) error
	UpdateBudgetLine(context.Context, domain.BudgetLine) error
	GetBudgetLine(context.Context, string) (domain.BudgetLine, error)
	ListBudgetLines(context.Context, string) ([]domain.BudgetLine, error)

	CreateExpense(context.Context, domain.Expense) error
	GetExpense(context.Context, string) (domain.Expense, error)
	ListExpenses(context.Context, string) ([]domain.Expense, error)
	DeleteExpense(context.Context, string) error
}

// ChangeLog persists change events. An empty or "*" table lists every table.
type ChangeLog interface {
	AppendChangeEvent(context.Context, domain.ChangeEvent) (domain.ChangeEvent, error)
	ListChangeEvents(context.Context, domain.Table, int) ([]domain.ChangeEvent, error)
}

// Repository represents repository data used by this package.
type Repository interface {
	ProjectStore
	PlanStore
	InventoryStore
	TeamStore
	FinanceStore
	ChangeLog
}
