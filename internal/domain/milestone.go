package domain

import (
	"slices"
	"strings"
	"time"
)

// Priority orders milestones within a project.
type Priority string

// Priority values.
const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

var validPriorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh}

// Milestone is a project checkpoint. Status and Progress are derived from Activities.
type Milestone struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"project_id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Priority    Priority   `json:"priority"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	Position    int        `json:"position"`
	Status      Status     `json:"status"`
	Progress    int        `json:"progress"`
	Activities  []Activity `json:"activities"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// MilestoneInput holds constructor values for a milestone.
type MilestoneInput struct {
	ID          string
	ProjectID   string
	Name        string
	Description string
	Priority    Priority
	DueAt       *time.Time
	Position    int
}

// NewMilestone validates input and builds an empty pending milestone.
func NewMilestone(in MilestoneInput, now time.Time) (Milestone, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.ProjectID = strings.TrimSpace(in.ProjectID)
	in.Name = strings.TrimSpace(in.Name)
	if in.ID == "" || in.ProjectID == "" {
		return Milestone{}, ErrInvalidID
	}
	if in.Name == "" {
		return Milestone{}, ErrInvalidName
	}
	if in.Position < 0 {
		return Milestone{}, ErrInvalidPosition
	}
	priority, err := normalizePriority(in.Priority)
	if err != nil {
		return Milestone{}, err
	}
	return Milestone{
		ID:          in.ID,
		ProjectID:   in.ProjectID,
		Name:        in.Name,
		Description: strings.TrimSpace(in.Description),
		Priority:    priority,
		DueAt:       normalizeTimestamp(in.DueAt),
		Position:    in.Position,
		Status:      StatusPending,
		Activities:  []Activity{},
		CreatedAt:   now.UTC(),
		UpdatedAt:   now.UTC(),
	}, nil
}

// UpdateDetails replaces the editable milestone fields.
func (m *Milestone) UpdateDetails(name, description string, priority Priority, dueAt *time.Time, now time.Time) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidName
	}
	priority, err := normalizePriority(priority)
	if err != nil {
		return err
	}
	m.Name = name
	m.Description = strings.TrimSpace(description)
	m.Priority = priority
	m.DueAt = normalizeTimestamp(dueAt)
	m.UpdatedAt = now.UTC()
	return nil
}

// Recompute re-derives every activity and then the milestone itself.
func (m *Milestone) Recompute(now time.Time) Rollup {
	for i := range m.Activities {
		m.Activities[i].Recompute(now)
	}
	r := DeriveMilestone(*m, now)
	m.Status = r.Status
	m.Progress = r.Progress
	return r
}

// ActivityIndex returns the slice index of an activity or -1.
func (m Milestone) ActivityIndex(activityID string) int {
	for i := range m.Activities {
		if m.Activities[i].ID == activityID {
			return i
		}
	}
	return -1
}

// Clone deep-copies the activity and task slices.
func (m Milestone) Clone() Milestone {
	out := m
	out.Activities = make([]Activity, len(m.Activities))
	for i, a := range m.Activities {
		a.Tasks = append([]Task(nil), a.Tasks...)
		out.Activities[i] = a
	}
	return out
}

func normalizePriority(priority Priority) (Priority, error) {
	priority = Priority(strings.TrimSpace(strings.ToLower(string(priority))))
	if priority == "" {
		return PriorityMedium, nil
	}
	if !slices.Contains(validPriorities, priority) {
		return "", ErrInvalidPriority
	}
	return priority, nil
}
