package domain

import (
	"slices"
	"strings"
)

// Status is the derived state shared by activities and milestones.
type Status string

// Status values.
const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusDelayed    Status = "delayed"
)

var validStatuses = []Status{StatusPending, StatusInProgress, StatusCompleted, StatusDelayed}

// ParseStatus canonicalizes status aliases and rejects unknown values.
func ParseStatus(raw string) (Status, error) {
	status := normalizeStatus(Status(raw))
	if !slices.Contains(validStatuses, status) {
		return "", ErrInvalidStatus
	}
	return status, nil
}

// normalizeStatus maps loose spellings onto canonical status values.
func normalizeStatus(status Status) Status {
	switch strings.TrimSpace(strings.ToLower(string(status))) {
	case "", "pending", "todo", "to-do":
		return StatusPending
	case "in_progress", "in-progress", "progress", "doing":
		return StatusInProgress
	case "completed", "complete", "done":
		return StatusCompleted
	case "delayed", "late", "overdue":
		return StatusDelayed
	default:
		return Status(strings.TrimSpace(strings.ToLower(string(status))))
	}
}

// ClassifyProgress maps a 0-100 percentage onto pending, in_progress or completed.
func ClassifyProgress(progress int) Status {
	switch {
	case progress >= 100:
		return StatusCompleted
	case progress > 0:
		return StatusInProgress
	default:
		return StatusPending
	}
}

// classifyCounts classifies from raw completion counts.
// It agrees with ClassifyProgress except where rounding would hide an
// unfinished task (199/200) or a finished one (1/201).
func classifyCounts(completed, total int) Status {
	switch {
	case total <= 0 || completed <= 0:
		return StatusPending
	case completed >= total:
		return StatusCompleted
	default:
		return StatusInProgress
	}
}
