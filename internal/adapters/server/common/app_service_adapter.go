package common

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hylla/labbook/internal/app"
	"github.com/hylla/labbook/internal/domain"
)

// AppServiceAdapter maps transport contracts onto app.Service and the live tracker.
type AppServiceAdapter struct {
	service *app.Service
	tracker *app.Tracker
}

// NewAppServiceAdapter builds one common adapter. A nil tracker sends task mutations straight to the service.
func NewAppServiceAdapter(service *app.Service, tracker *app.Tracker) *AppServiceAdapter {
	return &AppServiceAdapter{service: service, tracker: tracker}
}

// ListProjects lists projects.
func (a *AppServiceAdapter) ListProjects(ctx context.Context, includeArchived bool) ([]domain.Project, error) {
	projects, err := a.service.ListProjects(ctx, includeArchived)
	return projects, mapAppError("list projects", err)
}

// CreateProject creates one project.
func (a *AppServiceAdapter) CreateProject(ctx context.Context, in CreateProjectRequest) (domain.Project, error) {
	project, err := a.service.CreateProject(ctx, app.CreateProjectInput{
		Name:        in.Name,
		Description: in.Description,
		Lead:        in.Lead,
		StartAt:     in.StartAt,
		EndAt:       in.EndAt,
	})
	return project, mapAppError("create project", err)
}

// GetProject returns one project.
func (a *AppServiceAdapter) GetProject(ctx context.Context, projectID string) (domain.Project, error) {
	project, err := a.service.GetProject(ctx, projectID)
	return project, mapAppError("get project", err)
}

// ProjectProgress returns the project with its recomputed milestone tree and rollup.
// When a tracker is configured the tree comes from its live view.
func (a *AppServiceAdapter) ProjectProgress(ctx context.Context, projectID string) (app.ProjectProgress, error) {
	if a.tracker == nil {
		progress, err := a.service.ProjectProgress(ctx, projectID)
		return progress, mapAppError("project progress", err)
	}
	project, err := a.service.GetProject(ctx, projectID)
	if err != nil {
		return app.ProjectProgress{}, mapAppError("project progress", err)
	}
	milestones, err := a.tracker.Milestones(ctx, project.ID)
	if err != nil {
		return app.ProjectProgress{}, mapAppError("project progress", err)
	}
	rollup, err := a.tracker.Progress(ctx, project.ID)
	if err != nil {
		return app.ProjectProgress{}, mapAppError("project progress", err)
	}
	return app.ProjectProgress{Project: project, Rollup: rollup, Milestones: milestones}, nil
}

// ListMilestones lists a project's milestones with recomputed rollups.
func (a *AppServiceAdapter) ListMilestones(ctx context.Context, projectID string) ([]domain.Milestone, error) {
	if a.tracker != nil {
		milestones, err := a.tracker.Milestones(ctx, projectID)
		return milestones, mapAppError("list milestones", err)
	}
	milestones, err := a.service.ListMilestones(ctx, projectID)
	return milestones, mapAppError("list milestones", err)
}

// CreateMilestone creates one milestone.
func (a *AppServiceAdapter) CreateMilestone(ctx context.Context, in CreateMilestoneRequest) (domain.Milestone, error) {
	milestone, err := a.service.CreateMilestone(ctx, app.CreateMilestoneInput{
		ProjectID:   in.ProjectID,
		Name:        in.Name,
		Description: in.Description,
		Priority:    domain.Priority(in.Priority),
		DueAt:       in.DueAt,
	})
	return milestone, mapAppError("create milestone", err)
}

// CreateActivity creates one activity.
func (a *AppServiceAdapter) CreateActivity(ctx context.Context, in CreateActivityRequest) (domain.Activity, error) {
	activity, err := a.service.CreateActivity(ctx, app.CreateActivityInput{MilestoneID: in.MilestoneID, Name: in.Name})
	return activity, mapAppError("create activity", err)
}

// CreateTask creates one task.
func (a *AppServiceAdapter) CreateTask(ctx context.Context, in CreateTaskRequest) (domain.Task, error) {
	task, err := a.service.CreateTask(ctx, app.CreateTaskInput{ActivityID: in.ActivityID, Text: in.Text, DeadlineAt: in.DeadlineAt})
	return task, mapAppError("create task", err)
}

// ToggleTask flips a task's completion through the tracker's optimistic path.
func (a *AppServiceAdapter) ToggleTask(ctx context.Context, taskID string) (TaskMutation, error) {
	if a.tracker == nil {
		task, err := a.service.ToggleTask(ctx, taskID)
		if err != nil {
			return TaskMutation{}, mapAppError("toggle task", err)
		}
		return TaskMutation{Intent: app.Intent{Key: "task:" + task.ID, State: app.IntentCommitted}, Task: &task}, nil
	}
	intent, err := a.tracker.ToggleTask(ctx, taskID)
	if err != nil {
		return TaskMutation{Intent: intent}, mapAppError("toggle task", err)
	}
	task, err := a.service.GetTask(ctx, taskID)
	if err != nil {
		return TaskMutation{Intent: intent}, mapAppError("toggle task", err)
	}
	return TaskMutation{Intent: intent, Task: &task}, nil
}

// DeleteTask removes a task through the tracker's optimistic path.
func (a *AppServiceAdapter) DeleteTask(ctx context.Context, taskID string) (TaskMutation, error) {
	if a.tracker == nil {
		if err := a.service.DeleteTask(ctx, taskID); err != nil {
			return TaskMutation{}, mapAppError("delete task", err)
		}
		return TaskMutation{Intent: app.Intent{Key: "task:" + strings.TrimSpace(taskID), State: app.IntentCommitted}}, nil
	}
	intent, err := a.tracker.DeleteTask(ctx, taskID)
	return TaskMutation{Intent: intent}, mapAppError("delete task", err)
}

// ListPatients lists patients, optionally for one project.
func (a *AppServiceAdapter) ListPatients(ctx context.Context, projectID string) ([]domain.Patient, error) {
	patients, err := a.service.ListPatients(ctx, projectID)
	return patients, mapAppError("list patients", err)
}

// RegisterPatient registers one patient with a generated code.
func (a *AppServiceAdapter) RegisterPatient(ctx context.Context, in RegisterPatientRequest) (domain.Patient, error) {
	patient, err := a.service.RegisterPatient(ctx, app.RegisterPatientInput{
		ProjectID: in.ProjectID,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Age:       patientAge(in.Age),
		Gender:    domain.Gender(in.Gender),
		Ethnicity: in.Ethnicity,
		Site:      in.Site,
		Notes:     in.Notes,
	})
	return patient, mapAppError("register patient", err)
}

// PreviewPatientCode formats a candidate patient code.
func (a *AppServiceAdapter) PreviewPatientCode(_ context.Context, in RegisterPatientRequest) (string, error) {
	gender, err := domain.ParseGender(in.Gender)
	if err != nil {
		return "", mapAppError("preview patient code", err)
	}
	return a.service.PreviewPatientCode(domain.PatientCodeInput{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Age:       patientAge(in.Age),
		Gender:    gender,
		Ethnicity: in.Ethnicity,
		Site:      in.Site,
	}), nil
}

// ListSamples lists samples matching the filters.
func (a *AppServiceAdapter) ListSamples(ctx context.Context, in ListSamplesRequest) ([]domain.Sample, error) {
	samples, err := a.service.ListSamples(ctx, app.SampleFilter{
		ProjectID:   in.ProjectID,
		PatientID:   in.PatientID,
		PlaquetteID: in.PlaquetteID,
		Status:      domain.SampleStatus(in.Status),
	})
	return samples, mapAppError("list samples", err)
}

// RegisterSample registers one sample with a generated code. A missing collection time means now.
func (a *AppServiceAdapter) RegisterSample(ctx context.Context, in RegisterSampleRequest) (domain.Sample, error) {
	var collectedAt time.Time
	if in.CollectedAt != nil {
		collectedAt = *in.CollectedAt
	}
	sample, err := a.service.RegisterSample(ctx, app.RegisterSampleInput{
		ProjectID:   in.ProjectID,
		PatientID:   in.PatientID,
		Type:        in.Type,
		CollectedAt: collectedAt,
		Notes:       in.Notes,
	})
	return sample, mapAppError("register sample", err)
}

// UpdateSampleStatus changes a sample's status and, when a plaquette is named, its placement.
func (a *AppServiceAdapter) UpdateSampleStatus(ctx context.Context, in SampleStatusRequest) (domain.Sample, error) {
	if strings.TrimSpace(in.Status) == "" && strings.TrimSpace(in.PlaquetteID) == "" {
		return domain.Sample{}, fmt.Errorf("update sample: status or plaquette_id is required: %w", ErrInvalidRequest)
	}
	var (
		sample domain.Sample
		err    error
	)
	if strings.TrimSpace(in.Status) != "" {
		status, parseErr := domain.ParseSampleStatus(in.Status)
		if parseErr != nil {
			return domain.Sample{}, mapAppError("update sample", parseErr)
		}
		if sample, err = a.service.SetSampleStatus(ctx, in.SampleID, status); err != nil {
			return domain.Sample{}, mapAppError("update sample", err)
		}
	}
	if strings.TrimSpace(in.PlaquetteID) != "" {
		if sample, err = a.service.PlaceSample(ctx, in.SampleID, in.PlaquetteID, in.Well); err != nil {
			return domain.Sample{}, mapAppError("place sample", err)
		}
	}
	return sample, nil
}

// PreviewSampleCode formats a candidate sample code.
func (a *AppServiceAdapter) PreviewSampleCode(_ context.Context, sampleType string, collectedAt *time.Time) (string, error) {
	if strings.TrimSpace(sampleType) == "" {
		return "", fmt.Errorf("preview sample code: type is required: %w", ErrInvalidRequest)
	}
	var at time.Time
	if collectedAt != nil {
		at = *collectedAt
	}
	return a.service.PreviewSampleCode(sampleType, at), nil
}

// ListPlaquettes lists plaquettes with occupancy.
func (a *AppServiceAdapter) ListPlaquettes(ctx context.Context) ([]app.PlaquetteUsage, error) {
	plates, err := a.service.ListPlaquettes(ctx)
	return plates, mapAppError("list plaquettes", err)
}

// CreatePlaquette creates one plaquette with a generated code.
func (a *AppServiceAdapter) CreatePlaquette(ctx context.Context, in CreatePlaquetteRequest) (domain.Plaquette, error) {
	plate, err := a.service.CreatePlaquette(ctx, app.CreatePlaquetteInput{
		Name:      in.Name,
		PlateType: in.PlateType,
		Rows:      in.Rows,
		Columns:   in.Columns,
		Location:  in.Location,
	})
	return plate, mapAppError("create plaquette", err)
}

// ListTeamMembers lists team members.
func (a *AppServiceAdapter) ListTeamMembers(ctx context.Context, includeInactive bool) ([]domain.TeamMember, error) {
	members, err := a.service.ListTeamMembers(ctx, includeInactive)
	return members, mapAppError("list team members", err)
}

// AddTeamMember adds one team member.
func (a *AppServiceAdapter) AddTeamMember(ctx context.Context, in AddTeamMemberRequest) (domain.TeamMember, error) {
	member, err := a.service.AddTeamMember(ctx, app.AddTeamMemberInput{Name: in.Name, Email: in.Email, Role: in.Role})
	return member, mapAppError("add team member", err)
}

// RecordAttendance stores one attendance mark.
func (a *AppServiceAdapter) RecordAttendance(ctx context.Context, in RecordAttendanceRequest) (domain.AttendanceRecord, error) {
	record, err := a.service.RecordAttendance(ctx, app.RecordAttendanceInput{
		MemberID: in.MemberID,
		Day:      in.Day,
		Status:   domain.AttendanceStatus(in.Status),
		Note:     in.Note,
	})
	return record, mapAppError("record attendance", err)
}

// AttendanceSummary summarizes attendance between two inclusive days.
func (a *AppServiceAdapter) AttendanceSummary(ctx context.Context, from, to string) ([]app.MemberAttendance, error) {
	summary, err := a.service.AttendanceSummary(ctx, from, to)
	return summary, mapAppError("attendance summary", err)
}

// BudgetSummary summarizes a project's budget.
func (a *AppServiceAdapter) BudgetSummary(ctx context.Context, projectID string) (app.BudgetSummary, error) {
	summary, err := a.service.BudgetSummary(ctx, projectID)
	return summary, mapAppError("budget summary", err)
}

// CreateBudgetLine creates one budget line.
func (a *AppServiceAdapter) CreateBudgetLine(ctx context.Context, in CreateBudgetLineRequest) (domain.BudgetLine, error) {
	line, err := a.service.CreateBudgetLine(ctx, app.CreateBudgetLineInput{
		ProjectID:      in.ProjectID,
		Category:       in.Category,
		AllocatedCents: in.AllocatedCents,
	})
	return line, mapAppError("create budget line", err)
}

// RecordExpense records one expense.
func (a *AppServiceAdapter) RecordExpense(ctx context.Context, in RecordExpenseRequest) (domain.Expense, error) {
	var spentAt time.Time
	if in.SpentAt != nil {
		spentAt = *in.SpentAt
	}
	expense, err := a.service.RecordExpense(ctx, app.RecordExpenseInput{
		BudgetLineID: in.BudgetLineID,
		AmountCents:  in.AmountCents,
		Description:  in.Description,
		SpentAt:      spentAt,
	})
	return expense, mapAppError("record expense", err)
}

// Dashboard returns the lab-wide dashboard.
func (a *AppServiceAdapter) Dashboard(ctx context.Context) (app.Dashboard, error) {
	dashboard, err := a.service.Dashboard(ctx)
	return dashboard, mapAppError("dashboard", err)
}

// ListChangeEvents lists recent change events, optionally for one table.
func (a *AppServiceAdapter) ListChangeEvents(ctx context.Context, table string, limit int) ([]domain.ChangeEvent, error) {
	events, err := a.service.ListChangeEvents(ctx, table, limit)
	return events, mapAppError("list change events", err)
}

// patientAge maps an omitted age to the unknown marker.
func patientAge(age *int) int {
	if age == nil {
		return -1
	}
	return *age
}

// mapAppError maps app and domain errors onto transport sentinels.
func mapAppError(operation string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, app.ErrNotFound):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrNotFound, err))
	case errors.Is(err, app.ErrConflict), errors.Is(err, app.ErrCodeExhausted):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrConflict, err))
	case errors.Is(err, app.ErrOperationInFlight):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrBusy, err))
	case errors.Is(err, app.ErrCommitTimeout):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrUnavailable, err))
	case isValidationError(err):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrInvalidRequest, err))
	default:
		return fmt.Errorf("%s: %w", operation, err)
	}
}

// validationErrors lists the errors that describe bad caller input.
var validationErrors = []error{
	domain.ErrInvalidID,
	domain.ErrInvalidName,
	domain.ErrInvalidText,
	domain.ErrInvalidCode,
	domain.ErrInvalidPriority,
	domain.ErrInvalidStatus,
	domain.ErrInvalidPosition,
	domain.ErrInvalidDateRange,
	domain.ErrInvalidAge,
	domain.ErrInvalidGender,
	domain.ErrInvalidSampleType,
	domain.ErrInvalidCollection,
	domain.ErrInvalidGeometry,
	domain.ErrInvalidWell,
	domain.ErrInvalidEmail,
	domain.ErrInvalidDay,
	domain.ErrInvalidAmount,
	domain.ErrInvalidTable,
	app.ErrInvalidDeleteMode,
	app.ErrInvalidSnapshot,
}

// isValidationError reports whether err wraps any validation sentinel.
func isValidationError(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
