package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"

	"github.com/hylla/labbook/internal/app"
	"github.com/hylla/labbook/internal/domain"
)

const milestoneColumns = `id, project_id, name, description, priority, due_at, position, status, progress, created_at, updated_at`

const activityColumns = `a.id, a.milestone_id, a.name, a.position, a.status, a.progress, a.created_at, a.updated_at`

const taskColumns = `t.id, t.activity_id, t.text, t.completed, t.deadline_at, t.completed_at, t.created_at, t.updated_at`

// CreateMilestone inserts a milestone row. Attached activities are ignored.
func (r *Repository) CreateMilestone(ctx context.Context, m domain.Milestone) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO milestones(id, project_id, name, description, priority, due_at, position, status, progress, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.ProjectID, m.Name, m.Description, string(m.Priority), nullableTS(m.DueAt), m.Position, string(m.Status), m.Progress, ts(m.CreatedAt), ts(m.UpdatedAt))
	return translateWriteErr(err)
}

// UpdateMilestone updates milestone details. Cached rollups are written only by SaveRollups.
func (r *Repository) UpdateMilestone(ctx context.Context, m domain.Milestone) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE milestones
		SET name = ?, description = ?, priority = ?, due_at = ?, position = ?, updated_at = ?
		WHERE id = ?
	`, m.Name, m.Description, string(m.Priority), nullableTS(m.DueAt), m.Position, ts(m.UpdatedAt), m.ID)
	if err != nil {
		return translateWriteErr(err)
	}
	return translateNoRows(res)
}

// GetMilestone returns a milestone with its activities and tasks attached.
func (r *Repository) GetMilestone(ctx context.Context, id string) (domain.Milestone, error) {
	m, err := scanMilestone(r.db.QueryRowContext(ctx, `SELECT `+milestoneColumns+` FROM milestones WHERE id = ?`, id))
	if err != nil {
		return domain.Milestone{}, err
	}
	activities, err := r.queryActivities(ctx, `
		SELECT `+activityColumns+` FROM activities a
		WHERE a.milestone_id = ?
		ORDER BY a.position ASC, a.id ASC
	`, id)
	if err != nil {
		return domain.Milestone{}, err
	}
	tasks, err := r.queryTasks(ctx, `
		SELECT `+taskColumns+` FROM tasks t
		JOIN activities a ON a.id = t.activity_id
		WHERE a.milestone_id = ?
	`, id)
	if err != nil {
		return domain.Milestone{}, err
	}
	out := assembleMilestones([]domain.Milestone{m}, activities, tasks)
	return out[0], nil
}

// ListMilestones returns the milestones of a project in position order, each with its tree attached.
func (r *Repository) ListMilestones(ctx context.Context, projectID string) ([]domain.Milestone, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+milestoneColumns+` FROM milestones
		WHERE project_id = ?
		ORDER BY position ASC, id ASC
	`, projectID)
	if err != nil {
		return nil, err
	}
	milestones := make([]domain.Milestone, 0)
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		milestones = append(milestones, m)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()
	if len(milestones) == 0 {
		return milestones, nil
	}

	activities, err := r.queryActivities(ctx, `
		SELECT `+activityColumns+` FROM activities a
		JOIN milestones m ON m.id = a.milestone_id
		WHERE m.project_id = ?
		ORDER BY a.position ASC, a.id ASC
	`, projectID)
	if err != nil {
		return nil, err
	}
	tasks, err := r.queryTasks(ctx, `
		SELECT `+taskColumns+` FROM tasks t
		JOIN activities a ON a.id = t.activity_id
		JOIN milestones m ON m.id = a.milestone_id
		WHERE m.project_id = ?
	`, projectID)
	if err != nil {
		return nil, err
	}
	return assembleMilestones(milestones, activities, tasks), nil
}

// DeleteMilestone deletes a milestone; activities and tasks cascade.
func (r *Repository) DeleteMilestone(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM milestones WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// CreateActivity inserts an activity row. Attached tasks are ignored.
func (r *Repository) CreateActivity(ctx context.Context, a domain.Activity) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO activities(id, milestone_id, name, position, status, progress, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.MilestoneID, a.Name, a.Position, string(a.Status), a.Progress, ts(a.CreatedAt), ts(a.UpdatedAt))
	return translateWriteErr(err)
}

// UpdateActivity updates activity details. Cached rollups are written only by SaveRollups.
func (r *Repository) UpdateActivity(ctx context.Context, a domain.Activity) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE activities SET name = ?, position = ?, updated_at = ? WHERE id = ?
	`, a.Name, a.Position, ts(a.UpdatedAt), a.ID)
	if err != nil {
		return translateWriteErr(err)
	}
	return translateNoRows(res)
}

// GetActivity returns an activity with its tasks attached.
func (r *Repository) GetActivity(ctx context.Context, id string) (domain.Activity, error) {
	activities, err := r.queryActivities(ctx, `SELECT `+activityColumns+` FROM activities a WHERE a.id = ?`, id)
	if err != nil {
		return domain.Activity{}, err
	}
	if len(activities) == 0 {
		return domain.Activity{}, app.ErrNotFound
	}
	tasks, err := r.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks t WHERE t.activity_id = ?`, id)
	if err != nil {
		return domain.Activity{}, err
	}
	activity := activities[0]
	activity.Tasks = tasks
	sortTasks(activity.Tasks)
	return activity, nil
}

// DeleteActivity deletes an activity; tasks cascade.
func (r *Repository) DeleteActivity(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM activities WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// CreateTask inserts a task.
func (r *Repository) CreateTask(ctx context.Context, t domain.Task) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tasks(id, activity_id, text, completed, deadline_at, completed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.ActivityID, t.Text, boolInt(t.Completed), nullableTS(t.DeadlineAt), nullableTS(t.CompletedAt), ts(t.CreatedAt), ts(t.UpdatedAt))
	return translateWriteErr(err)
}

// UpdateTask replaces a task row.
func (r *Repository) UpdateTask(ctx context.Context, t domain.Task) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tasks
		SET text = ?, completed = ?, deadline_at = ?, completed_at = ?, updated_at = ?
		WHERE id = ?
	`, t.Text, boolInt(t.Completed), nullableTS(t.DeadlineAt), nullableTS(t.CompletedAt), ts(t.UpdatedAt), t.ID)
	if err != nil {
		return translateWriteErr(err)
	}
	return translateNoRows(res)
}

// GetTask returns a task by id.
func (r *Repository) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return scanTask(r.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks t WHERE t.id = ?`, id))
}

// DeleteTask deletes a task.
func (r *Repository) DeleteTask(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// SaveRollups writes the cached status and progress of a milestone and its activities in one transaction.
func (r *Repository) SaveRollups(ctx context.Context, m domain.Milestone) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
		UPDATE milestones SET status = ?, progress = ?, updated_at = ? WHERE id = ?
	`, string(m.Status), m.Progress, ts(m.UpdatedAt), m.ID)
	if err != nil {
		return err
	}
	if err = translateNoRows(res); err != nil {
		return err
	}
	for _, a := range m.Activities {
		if _, err = tx.ExecContext(ctx, `
			UPDATE activities SET status = ?, progress = ? WHERE id = ? AND milestone_id = ?
		`, string(a.Status), a.Progress, a.ID, m.ID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// queryActivities runs an activity query and drains it before returning.
func (r *Repository) queryActivities(ctx context.Context, query string, args ...any) ([]domain.Activity, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Activity, 0)
	for rows.Next() {
		var (
			a          domain.Activity
			statusRaw  string
			createdRaw string
			updatedRaw string
		)
		if err := rows.Scan(&a.ID, &a.MilestoneID, &a.Name, &a.Position, &statusRaw, &a.Progress, &createdRaw, &updatedRaw); err != nil {
			return nil, err
		}
		a.Status = domain.Status(statusRaw)
		a.CreatedAt = parseTS(createdRaw)
		a.UpdatedAt = parseTS(updatedRaw)
		a.Tasks = []domain.Task{}
		out = append(out, a)
	}
	return out, rows.Err()
}

// queryTasks runs a task query and drains it before returning.
func (r *Repository) queryTasks(ctx context.Context, query string, args ...any) ([]domain.Task, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// assembleMilestones attaches tasks to activities and activities to milestones.
// Input order of milestones and activities is preserved; tasks are sorted by creation.
func assembleMilestones(milestones []domain.Milestone, activities []domain.Activity, tasks []domain.Task) []domain.Milestone {
	tasksByActivity := make(map[string][]domain.Task, len(activities))
	for _, t := range tasks {
		tasksByActivity[t.ActivityID] = append(tasksByActivity[t.ActivityID], t)
	}
	activitiesByMilestone := make(map[string][]domain.Activity, len(milestones))
	for _, a := range activities {
		if attached, ok := tasksByActivity[a.ID]; ok {
			a.Tasks = attached
			sortTasks(a.Tasks)
		}
		activitiesByMilestone[a.MilestoneID] = append(activitiesByMilestone[a.MilestoneID], a)
	}
	for i := range milestones {
		milestones[i].Activities = activitiesByMilestone[milestones[i].ID]
		if milestones[i].Activities == nil {
			milestones[i].Activities = []domain.Activity{}
		}
	}
	return milestones
}

// sortTasks orders tasks by creation time then id. Stored timestamps do not sort lexically.
func sortTasks(tasks []domain.Task) {
	slices.SortFunc(tasks, func(a, b domain.Task) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

// scanMilestone decodes a milestone row without its tree.
func scanMilestone(s scanner) (domain.Milestone, error) {
	var (
		m           domain.Milestone
		priorityRaw string
		statusRaw   string
		dueAt       sql.NullString
		createdRaw  string
		updatedRaw  string
	)
	if err := s.Scan(&m.ID, &m.ProjectID, &m.Name, &m.Description, &priorityRaw, &dueAt, &m.Position, &statusRaw, &m.Progress, &createdRaw, &updatedRaw); err != nil {
		return domain.Milestone{}, translateScanErr(err)
	}
	m.Priority = domain.Priority(priorityRaw)
	m.Status = domain.Status(statusRaw)
	m.DueAt = parseNullTS(dueAt)
	m.CreatedAt = parseTS(createdRaw)
	m.UpdatedAt = parseTS(updatedRaw)
	return m, nil
}

// scanTask decodes a task row.
func scanTask(s scanner) (domain.Task, error) {
	var (
		t           domain.Task
		completed   int
		deadlineAt  sql.NullString
		completedAt sql.NullString
		createdRaw  string
		updatedRaw  string
	)
	if err := s.Scan(&t.ID, &t.ActivityID, &t.Text, &completed, &deadlineAt, &completedAt, &createdRaw, &updatedRaw); err != nil {
		return domain.Task{}, fmt.Errorf("scan task: %w", translateScanErr(err))
	}
	t.Completed = completed != 0
	t.DeadlineAt = parseNullTS(deadlineAt)
	t.CompletedAt = parseNullTS(completedAt)
	t.CreatedAt = parseTS(createdRaw)
	t.UpdatedAt = parseTS(updatedRaw)
	return t, nil
}
