package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hylla/labbook/internal/domain"
)

// ProjectProgress pairs a project with its recomputed milestone rollup.
type ProjectProgress struct {
	Project    domain.Project       `json:"project"`
	Rollup     domain.ProjectRollup `json:"rollup"`
	Milestones []domain.Milestone   `json:"milestones"`
}

// CreateMilestoneInput holds input values for create milestone operations.
type CreateMilestoneInput struct {
	ProjectID   string
	Name        string
	Description string
	Priority    domain.Priority
	DueAt       *time.Time
}

// CreateMilestone creates milestone at the end of the project's milestone list.
func (s *Service) CreateMilestone(ctx context.Context, in CreateMilestoneInput) (domain.Milestone, error) {
	projectID := strings.TrimSpace(in.ProjectID)
	if _, err := s.repo.GetProject(ctx, projectID); err != nil {
		return domain.Milestone{}, err
	}
	existing, err := s.repo.ListMilestones(ctx, projectID)
	if err != nil {
		return domain.Milestone{}, err
	}
	position := 0
	for _, m := range existing {
		if m.Position >= position {
			position = m.Position + 1
		}
	}
	milestone, err := domain.NewMilestone(domain.MilestoneInput{
		ID:          s.idGen(),
		ProjectID:   projectID,
		Name:        in.Name,
		Description: in.Description,
		Priority:    in.Priority,
		DueAt:       in.DueAt,
		Position:    position,
	}, s.clock())
	if err != nil {
		return domain.Milestone{}, err
	}
	if err := s.repo.CreateMilestone(ctx, milestone); err != nil {
		return domain.Milestone{}, err
	}
	if err := s.recordChange(ctx, domain.TableMilestones, milestone.ID, projectID, domain.ChangeOperationInsert, nil); err != nil {
		return domain.Milestone{}, err
	}
	return milestone, nil
}

// UpdateMilestoneInput holds input values for update milestone operations.
type UpdateMilestoneInput struct {
	MilestoneID string
	Name        string
	Description string
	Priority    domain.Priority
	DueAt       *time.Time
}

// UpdateMilestone updates the editable milestone fields and returns the recomputed milestone.
func (s *Service) UpdateMilestone(ctx context.Context, in UpdateMilestoneInput) (domain.Milestone, error) {
	milestone, err := s.repo.GetMilestone(ctx, in.MilestoneID)
	if err != nil {
		return domain.Milestone{}, err
	}
	if err := milestone.UpdateDetails(in.Name, in.Description, in.Priority, in.DueAt, s.clock()); err != nil {
		return domain.Milestone{}, err
	}
	if err := s.repo.UpdateMilestone(ctx, milestone); err != nil {
		return domain.Milestone{}, err
	}
	if err := s.recordChange(ctx, domain.TableMilestones, milestone.ID, milestone.ProjectID, domain.ChangeOperationUpdate, nil); err != nil {
		return domain.Milestone{}, err
	}
	return s.refreshMilestone(ctx, milestone.ID)
}

// DeleteMilestone deletes a milestone with its activities and tasks.
func (s *Service) DeleteMilestone(ctx context.Context, milestoneID string) error {
	milestone, err := s.repo.GetMilestone(ctx, milestoneID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteMilestone(ctx, milestone.ID); err != nil {
		return err
	}
	return s.recordChange(ctx, domain.TableMilestones, milestone.ID, milestone.ProjectID, domain.ChangeOperationDelete, nil)
}

// GetMilestone returns a milestone recomputed from its current children.
func (s *Service) GetMilestone(ctx context.Context, milestoneID string) (domain.Milestone, error) {
	milestone, err := s.repo.GetMilestone(ctx, milestoneID)
	if err != nil {
		return domain.Milestone{}, err
	}
	milestone.Recompute(s.clock())
	return milestone, nil
}

// ListMilestones lists a project's milestones recomputed from their current children.
func (s *Service) ListMilestones(ctx context.Context, projectID string) ([]domain.Milestone, error) {
	milestones, err := s.repo.ListMilestones(ctx, strings.TrimSpace(projectID))
	if err != nil {
		return nil, err
	}
	now := s.clock()
	for i := range milestones {
		milestones[i].Recompute(now)
	}
	return milestones, nil
}

// ProjectProgress returns the project rollup across all milestones.
func (s *Service) ProjectProgress(ctx context.Context, projectID string) (ProjectProgress, error) {
	project, err := s.repo.GetProject(ctx, strings.TrimSpace(projectID))
	if err != nil {
		return ProjectProgress{}, err
	}
	milestones, err := s.ListMilestones(ctx, project.ID)
	if err != nil {
		return ProjectProgress{}, err
	}
	return ProjectProgress{
		Project:    project,
		Rollup:     domain.DeriveProject(milestones, s.clock()),
		Milestones: milestones,
	}, nil
}

// CreateActivityInput holds input values for create activity operations.
type CreateActivityInput struct {
	MilestoneID string
	Name        string
}

// CreateActivity appends an activity to a milestone.
func (s *Service) CreateActivity(ctx context.Context, in CreateActivityInput) (domain.Activity, error) {
	milestone, err := s.repo.GetMilestone(ctx, strings.TrimSpace(in.MilestoneID))
	if err != nil {
		return domain.Activity{}, err
	}
	position := 0
	for _, a := range milestone.Activities {
		if a.Position >= position {
			position = a.Position + 1
		}
	}
	activity, err := domain.NewActivity(domain.ActivityInput{
		ID:          s.idGen(),
		MilestoneID: milestone.ID,
		Name:        in.Name,
		Position:    position,
	}, s.clock())
	if err != nil {
		return domain.Activity{}, err
	}
	if err := s.repo.CreateActivity(ctx, activity); err != nil {
		return domain.Activity{}, err
	}
	if err := s.recordChange(ctx, domain.TableActivities, activity.ID, milestone.ProjectID, domain.ChangeOperationInsert, nil); err != nil {
		return domain.Activity{}, err
	}
	if _, err := s.refreshMilestone(ctx, milestone.ID); err != nil {
		return domain.Activity{}, err
	}
	return activity, nil
}

// RenameActivity renames an activity.
func (s *Service) RenameActivity(ctx context.Context, activityID, name string) (domain.Activity, error) {
	activity, err := s.repo.GetActivity(ctx, activityID)
	if err != nil {
		return domain.Activity{}, err
	}
	if err := activity.Rename(name, s.clock()); err != nil {
		return domain.Activity{}, err
	}
	if err := s.repo.UpdateActivity(ctx, activity); err != nil {
		return domain.Activity{}, err
	}
	milestone, err := s.repo.GetMilestone(ctx, activity.MilestoneID)
	if err != nil {
		return domain.Activity{}, err
	}
	if err := s.recordChange(ctx, domain.TableActivities, activity.ID, milestone.ProjectID, domain.ChangeOperationUpdate, nil); err != nil {
		return domain.Activity{}, err
	}
	activity.Recompute(s.clock())
	return activity, nil
}

// DeleteActivity deletes an activity with its tasks and refreshes the milestone.
func (s *Service) DeleteActivity(ctx context.Context, activityID string) error {
	activity, err := s.repo.GetActivity(ctx, activityID)
	if err != nil {
		return err
	}
	milestone, err := s.repo.GetMilestone(ctx, activity.MilestoneID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteActivity(ctx, activity.ID); err != nil {
		return err
	}
	if err := s.recordChange(ctx, domain.TableActivities, activity.ID, milestone.ProjectID, domain.ChangeOperationDelete, nil); err != nil {
		return err
	}
	_, err = s.refreshMilestone(ctx, milestone.ID)
	return err
}

// CreateTaskInput holds input values for create task operations.
type CreateTaskInput struct {
	ActivityID string
	Text       string
	DeadlineAt *time.Time
}

// CreateTask adds an incomplete task to an activity.
func (s *Service) CreateTask(ctx context.Context, in CreateTaskInput) (domain.Task, error) {
	task, err := domain.NewTask(domain.TaskInput{
		ID:         s.idGen(),
		ActivityID: in.ActivityID,
		Text:       in.Text,
		DeadlineAt: in.DeadlineAt,
	}, s.clock())
	if err != nil {
		return domain.Task{}, err
	}
	activity, err := s.repo.GetActivity(ctx, task.ActivityID)
	if err != nil {
		return domain.Task{}, err
	}
	if err := s.repo.CreateTask(ctx, task); err != nil {
		return domain.Task{}, err
	}
	if err := s.afterTaskChange(ctx, activity.MilestoneID, task.ID, domain.ChangeOperationInsert, nil); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

// UpdateTaskInput holds input values for update task operations.
type UpdateTaskInput struct {
	TaskID     string
	Text       string
	DeadlineAt *time.Time
}

// UpdateTask replaces a task's text and deadline.
func (s *Service) UpdateTask(ctx context.Context, in UpdateTaskInput) (domain.Task, error) {
	task, err := s.repo.GetTask(ctx, in.TaskID)
	if err != nil {
		return domain.Task{}, err
	}
	if err := task.UpdateDetails(in.Text, in.DeadlineAt, s.clock()); err != nil {
		return domain.Task{}, err
	}
	return s.saveTask(ctx, task, nil)
}

// SetTaskCompleted marks a task done or not done.
func (s *Service) SetTaskCompleted(ctx context.Context, taskID string, done bool) (domain.Task, error) {
	task, err := s.repo.GetTask(ctx, strings.TrimSpace(taskID))
	if err != nil {
		return domain.Task{}, err
	}
	task.SetCompleted(done, s.clock())
	return s.saveTask(ctx, task, map[string]string{"completed": fmt.Sprint(done)})
}

// GetTask returns a task by id.
func (s *Service) GetTask(ctx context.Context, taskID string) (domain.Task, error) {
	return s.repo.GetTask(ctx, strings.TrimSpace(taskID))
}

// ToggleTask flips a task's completed flag.
func (s *Service) ToggleTask(ctx context.Context, taskID string) (domain.Task, error) {
	task, err := s.repo.GetTask(ctx, strings.TrimSpace(taskID))
	if err != nil {
		return domain.Task{}, err
	}
	return s.SetTaskCompleted(ctx, task.ID, !task.Completed)
}

// DeleteTask hard-deletes a task.
func (s *Service) DeleteTask(ctx context.Context, taskID string) error {
	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	activity, err := s.repo.GetActivity(ctx, task.ActivityID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteTask(ctx, task.ID); err != nil {
		return err
	}
	return s.afterTaskChange(ctx, activity.MilestoneID, task.ID, domain.ChangeOperationDelete, nil)
}

// saveTask persists a mutated task and refreshes its milestone.
func (s *Service) saveTask(ctx context.Context, task domain.Task, metadata map[string]string) (domain.Task, error) {
	activity, err := s.repo.GetActivity(ctx, task.ActivityID)
	if err != nil {
		return domain.Task{}, err
	}
	if err := s.repo.UpdateTask(ctx, task); err != nil {
		return domain.Task{}, err
	}
	if err := s.afterTaskChange(ctx, activity.MilestoneID, task.ID, domain.ChangeOperationUpdate, metadata); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

// afterTaskChange refreshes the owning milestone and records the task change.
func (s *Service) afterTaskChange(ctx context.Context, milestoneID, taskID string, op domain.ChangeOperation, metadata map[string]string) error {
	milestone, err := s.refreshMilestone(ctx, milestoneID)
	if err != nil {
		return err
	}
	return s.recordChange(ctx, domain.TableTasks, taskID, milestone.ProjectID, op, metadata)
}

// refreshMilestone recomputes a milestone and writes back any cached rollup that drifted.
func (s *Service) refreshMilestone(ctx context.Context, milestoneID string) (domain.Milestone, error) {
	milestone, err := s.repo.GetMilestone(ctx, milestoneID)
	if err != nil {
		return domain.Milestone{}, err
	}
	before := milestone.Clone()
	milestone.Recompute(s.clock())
	if !rollupsChanged(before, milestone) {
		return milestone, nil
	}
	if err := s.repo.SaveRollups(ctx, milestone); err != nil {
		return domain.Milestone{}, fmt.Errorf("save rollups for milestone %s: %w", milestone.ID, err)
	}
	metadata := map[string]string{
		"status":   string(milestone.Status),
		"progress": fmt.Sprint(milestone.Progress),
	}
	if err := s.recordChange(ctx, domain.TableMilestones, milestone.ID, milestone.ProjectID, domain.ChangeOperationUpdate, metadata); err != nil {
		return domain.Milestone{}, err
	}
	return milestone, nil
}

// rollupsChanged reports whether any cached status or progress differs.
func rollupsChanged(before, after domain.Milestone) bool {
	if before.Status != after.Status || before.Progress != after.Progress {
		return true
	}
	if len(before.Activities) != len(after.Activities) {
		return true
	}
	for i := range before.Activities {
		if before.Activities[i].Status != after.Activities[i].Status || before.Activities[i].Progress != after.Activities[i].Progress {
			return true
		}
	}
	return false
}

// TaskProjectID resolves the project owning a task.
func (s *Service) TaskProjectID(ctx context.Context, taskID string) (string, error) {
	task, err := s.repo.GetTask(ctx, strings.TrimSpace(taskID))
	if err != nil {
		return "", err
	}
	activity, err := s.repo.GetActivity(ctx, task.ActivityID)
	if err != nil {
		return "", err
	}
	milestone, err := s.repo.GetMilestone(ctx, activity.MilestoneID)
	if err != nil {
		return "", err
	}
	return milestone.ProjectID, nil
}
