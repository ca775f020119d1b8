package domain

import (
	"strings"
	"time"
)

// Activity groups tasks under a milestone. Status and Progress are derived from Tasks.
type Activity struct {
	ID          string    `json:"id"`
	MilestoneID string    `json:"milestone_id"`
	Name        string    `json:"name"`
	Position    int       `json:"position"`
	Status      Status    `json:"status"`
	Progress    int       `json:"progress"`
	Tasks       []Task    `json:"tasks"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ActivityInput holds constructor values for an activity.
type ActivityInput struct {
	ID          string
	MilestoneID string
	Name        string
	Position    int
}

// NewActivity validates input and builds an empty pending activity.
func NewActivity(in ActivityInput, now time.Time) (Activity, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.MilestoneID = strings.TrimSpace(in.MilestoneID)
	in.Name = strings.TrimSpace(in.Name)
	if in.ID == "" || in.MilestoneID == "" {
		return Activity{}, ErrInvalidID
	}
	if in.Name == "" {
		return Activity{}, ErrInvalidName
	}
	if in.Position < 0 {
		return Activity{}, ErrInvalidPosition
	}
	return Activity{
		ID:          in.ID,
		MilestoneID: in.MilestoneID,
		Name:        in.Name,
		Position:    in.Position,
		Status:      StatusPending,
		Tasks:       []Task{},
		CreatedAt:   now.UTC(),
		UpdatedAt:   now.UTC(),
	}, nil
}

// Rename renames the activity.
func (a *Activity) Rename(name string, now time.Time) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidName
	}
	a.Name = name
	a.UpdatedAt = now.UTC()
	return nil
}

// Recompute refreshes the cached status and progress from the tasks.
func (a *Activity) Recompute(now time.Time) Rollup {
	r := DeriveActivity(*a, now)
	a.Status = r.Status
	a.Progress = r.Progress
	return r
}

// TaskIndex returns the slice index of a task or -1.
func (a Activity) TaskIndex(taskID string) int {
	for i := range a.Tasks {
		if a.Tasks[i].ID == taskID {
			return i
		}
	}
	return -1
}
