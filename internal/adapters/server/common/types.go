// Package common provides transport-agnostic server contracts used by HTTP and MCP adapters.
package common

import (
	"context"
	"errors"
	"time"

	"github.com/hylla/labbook/internal/app"
	"github.com/hylla/labbook/internal/domain"
)

// ErrInvalidRequest reports malformed or invalid transport input.
var ErrInvalidRequest = errors.New("invalid request")

// ErrNotFound reports missing transport-visible resources.
var ErrNotFound = errors.New("not found")

// ErrConflict reports uniqueness or state conflicts such as an occupied well.
var ErrConflict = errors.New("conflict")

// ErrBusy reports a mutation rejected because another one on the same record is outstanding.
var ErrBusy = errors.New("operation in flight")

// ErrUnavailable reports a store commit that did not finish in time.
var ErrUnavailable = errors.New("unavailable")

// CreateProjectRequest captures input for a new project.
type CreateProjectRequest struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Lead        string     `json:"lead,omitempty"`
	StartAt     *time.Time `json:"start_at,omitempty"`
	EndAt       *time.Time `json:"end_at,omitempty"`
}

// CreateMilestoneRequest captures input for a new milestone.
type CreateMilestoneRequest struct {
	ProjectID   string     `json:"project_id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Priority    string     `json:"priority,omitempty"`
	DueAt       *time.Time `json:"due_at,omitempty"`
}

// CreateActivityRequest captures input for a new activity.
type CreateActivityRequest struct {
	MilestoneID string `json:"milestone_id"`
	Name        string `json:"name"`
}

// CreateTaskRequest captures input for a new task.
type CreateTaskRequest struct {
	ActivityID string     `json:"activity_id"`
	Text       string     `json:"text"`
	DeadlineAt *time.Time `json:"deadline_at,omitempty"`
}

// TaskMutation reports the outcome of an optimistic task mutation.
type TaskMutation struct {
	Intent app.Intent   `json:"intent"`
	Task   *domain.Task `json:"task,omitempty"`
}

// RegisterPatientRequest captures input for a new patient.
type RegisterPatientRequest struct {
	ProjectID string `json:"project_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Age       *int   `json:"age,omitempty"`
	Gender    string `json:"gender,omitempty"`
	Ethnicity string `json:"ethnicity,omitempty"`
	Site      string `json:"site,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

// ListSamplesRequest captures sample list filters.
type ListSamplesRequest struct {
	ProjectID   string
	PatientID   string
	PlaquetteID string
	Status      string
}

// RegisterSampleRequest captures input for a new sample.
type RegisterSampleRequest struct {
	ProjectID   string     `json:"project_id"`
	PatientID   string     `json:"patient_id,omitempty"`
	Type        string     `json:"type"`
	CollectedAt *time.Time `json:"collected_at,omitempty"`
	Notes       string     `json:"notes,omitempty"`
}

// SampleStatusRequest captures a sample status change and optional placement.
type SampleStatusRequest struct {
	SampleID    string `json:"-"`
	Status      string `json:"status,omitempty"`
	PlaquetteID string `json:"plaquette_id,omitempty"`
	Well        string `json:"well,omitempty"`
}

// CreatePlaquetteRequest captures input for a new plaquette.
type CreatePlaquetteRequest struct {
	Name      string `json:"name,omitempty"`
	PlateType string `json:"plate_type,omitempty"`
	Rows      int    `json:"rows,omitempty"`
	Columns   int    `json:"columns,omitempty"`
	Location  string `json:"location,omitempty"`
}

// AddTeamMemberRequest captures input for a new team member.
type AddTeamMemberRequest struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// RecordAttendanceRequest captures one attendance mark.
type RecordAttendanceRequest struct {
	MemberID string `json:"member_id"`
	Day      string `json:"day"`
	Status   string `json:"status,omitempty"`
	Note     string `json:"note,omitempty"`
}

// CreateBudgetLineRequest captures input for a new budget line.
type CreateBudgetLineRequest struct {
	ProjectID      string `json:"-"`
	Category       string `json:"category"`
	AllocatedCents int64  `json:"allocated_cents"`
}

// RecordExpenseRequest captures input for a new expense.
type RecordExpenseRequest struct {
	BudgetLineID string     `json:"-"`
	AmountCents  int64      `json:"amount_cents"`
	Description  string     `json:"description,omitempty"`
	SpentAt      *time.Time `json:"spent_at,omitempty"`
}

// ProjectService captures project reads and writes.
type ProjectService interface {
	ListProjects(context.Context, bool) ([]domain.Project, error)
	CreateProject(context.Context, CreateProjectRequest) (domain.Project, error)
	GetProject(context.Context, string) (domain.Project, error)
	ProjectProgress(context.Context, string) (app.ProjectProgress, error)
}

// PlanService captures milestone, activity and task operations.
type PlanService interface {
	ListMilestones(context.Context, string) ([]domain.Milestone, error)
	CreateMilestone(context.Context, CreateMilestoneRequest) (domain.Milestone, error)
	CreateActivity(context.Context, CreateActivityRequest) (domain.Activity, error)
	CreateTask(context.Context, CreateTaskRequest) (domain.Task, error)
	ToggleTask(context.Context, string) (TaskMutation, error)
	DeleteTask(context.Context, string) (TaskMutation, error)
}

// InventoryService captures patient, sample and plaquette operations.
type InventoryService interface {
	ListPatients(context.Context, string) ([]domain.Patient, error)
	RegisterPatient(context.Context, RegisterPatientRequest) (domain.Patient, error)
	PreviewPatientCode(context.Context, RegisterPatientRequest) (string, error)
	ListSamples(context.Context, ListSamplesRequest) ([]domain.Sample, error)
	RegisterSample(context.Context, RegisterSampleRequest) (domain.Sample, error)
	UpdateSampleStatus(context.Context, SampleStatusRequest) (domain.Sample, error)
	PreviewSampleCode(context.Context, string, *time.Time) (string, error)
	ListPlaquettes(context.Context) ([]app.PlaquetteUsage, error)
	CreatePlaquette(context.Context, CreatePlaquetteRequest) (domain.Plaquette, error)
}

// TeamService captures team and attendance operations.
type TeamService interface {
	ListTeamMembers(context.Context, bool) ([]domain.TeamMember, error)
	AddTeamMember(context.Context, AddTeamMemberRequest) (domain.TeamMember, error)
	RecordAttendance(context.Context, RecordAttendanceRequest) (domain.AttendanceRecord, error)
	AttendanceSummary(context.Context, string, string) ([]app.MemberAttendance, error)
}

// FinanceService captures budget operations.
type FinanceService interface {
	BudgetSummary(context.Context, string) (app.BudgetSummary, error)
	CreateBudgetLine(context.Context, CreateBudgetLineRequest) (domain.BudgetLine, error)
	RecordExpense(context.Context, RecordExpenseRequest) (domain.Expense, error)
}

// OverviewService captures lab-wide reads.
type OverviewService interface {
	Dashboard(context.Context) (app.Dashboard, error)
	ListChangeEvents(context.Context, string, int) ([]domain.ChangeEvent, error)
}

// LabService is the full surface served by the transports.
type LabService interface {
	ProjectService
	PlanService
	InventoryService
	TeamService
	FinanceService
	OverviewService
}

// NotificationReader exposes recent user-facing notifications, newest first.
type NotificationReader interface {
	Recent(limit int) []app.Notification
}
