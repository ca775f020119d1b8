package domain

import (
	"strings"
	"time"
)

// Task is the smallest unit of trackable work inside an activity.
type Task struct {
	ID          string     `json:"id"`
	ActivityID  string     `json:"activity_id"`
	Text        string     `json:"text"`
	Completed   bool       `json:"completed"`
	DeadlineAt  *time.Time `json:"deadline_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TaskInput holds constructor values for a task.
type TaskInput struct {
	ID         string
	ActivityID string
	Text       string
	DeadlineAt *time.Time
}

// NewTask validates input and builds an incomplete task.
func NewTask(in TaskInput, now time.Time) (Task, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.ActivityID = strings.TrimSpace(in.ActivityID)
	in.Text = strings.TrimSpace(in.Text)
	if in.ID == "" || in.ActivityID == "" {
		return Task{}, ErrInvalidID
	}
	if in.Text == "" {
		return Task{}, ErrInvalidText
	}
	return Task{
		ID:         in.ID,
		ActivityID: in.ActivityID,
		Text:       in.Text,
		DeadlineAt: normalizeTimestamp(in.DeadlineAt),
		CreatedAt:  now.UTC(),
		UpdatedAt:  now.UTC(),
	}, nil
}

// SetCompleted marks the task done or not done.
func (t *Task) SetCompleted(done bool, now time.Time) {
	ts := now.UTC()
	t.Completed = done
	if done {
		t.CompletedAt = &ts
	} else {
		t.CompletedAt = nil
	}
	t.UpdatedAt = ts
}

// Toggle flips the completed flag.
func (t *Task) Toggle(now time.Time) {
	t.SetCompleted(!t.Completed, now)
}

// UpdateDetails replaces text and deadline.
func (t *Task) UpdateDetails(text string, deadlineAt *time.Time, now time.Time) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrInvalidText
	}
	t.Text = text
	t.DeadlineAt = normalizeTimestamp(deadlineAt)
	t.UpdatedAt = now.UTC()
	return nil
}

// IsOverdue reports whether an incomplete task has a deadline strictly before now.
func (t Task) IsOverdue(now time.Time) bool {
	if t.Completed || t.DeadlineAt == nil {
		return false
	}
	return t.DeadlineAt.Before(now)
}

func normalizeTimestamp(ts *time.Time) *time.Time {
	if ts == nil || ts.IsZero() {
		return nil
	}
	out := ts.UTC().Truncate(time.Second)
	return &out
}
