package domain

import "time"

// Rollup is the derived status and progress of an activity, milestone or project.
type Rollup struct {
	Status         Status `json:"status"`
	Progress       int    `json:"progress"`
	TotalTasks     int    `json:"total_tasks"`
	CompletedTasks int    `json:"completed_tasks"`
}

// DeriveActivity computes an activity's status and progress from its tasks.
// An incomplete task past its deadline marks the activity delayed unless every task is done.
func DeriveActivity(a Activity, now time.Time) Rollup {
	total := len(a.Tasks)
	if total == 0 {
		return Rollup{Status: StatusPending}
	}
	completed := 0
	overdue := false
	for _, task := range a.Tasks {
		if task.Completed {
			completed++
			continue
		}
		if task.IsOverdue(now) {
			overdue = true
		}
	}
	out := Rollup{
		Status:         classifyCounts(completed, total),
		Progress:       percent(completed, total),
		TotalTasks:     total,
		CompletedTasks: completed,
	}
	if overdue && out.Status != StatusCompleted {
		out.Status = StatusDelayed
	}
	return out
}

// DeriveMilestone computes a milestone's status and progress from its activities.
// Progress is weighted per task across the whole milestone, not averaged per activity.
// Only when no activity carries tasks does it fall back to the activities' own progress.
func DeriveMilestone(m Milestone, now time.Time) Rollup {
	if len(m.Activities) == 0 {
		return Rollup{Status: StatusPending}
	}
	var (
		total, completed        int
		taskless, tasklessTotal int
		delayed                 bool
	)
	for _, activity := range m.Activities {
		r := DeriveActivity(activity, now)
		if r.Status == StatusDelayed {
			delayed = true
		}
		if r.TotalTasks == 0 {
			taskless++
			tasklessTotal += r.Progress
			continue
		}
		total += r.TotalTasks
		completed += r.CompletedTasks
	}

	var out Rollup
	if total > 0 {
		out = Rollup{
			Status:         classifyCounts(completed, total),
			Progress:       percent(completed, total),
			TotalTasks:     total,
			CompletedTasks: completed,
		}
	} else {
		progress := roundDiv(tasklessTotal, taskless)
		out = Rollup{Status: ClassifyProgress(progress), Progress: progress}
	}
	if delayed && out.Status != StatusCompleted {
		out.Status = StatusDelayed
	}
	return out
}

// ProjectRollup summarizes milestone rollups for one project.
type ProjectRollup struct {
	Rollup
	Milestones int            `json:"milestones"`
	ByStatus   map[Status]int `json:"by_status"`
}

// DeriveProject rolls milestones up with the same task weighting used for milestones.
func DeriveProject(milestones []Milestone, now time.Time) ProjectRollup {
	out := ProjectRollup{
		Rollup:     Rollup{Status: StatusPending},
		Milestones: len(milestones),
		ByStatus:   map[Status]int{},
	}
	if len(milestones) == 0 {
		return out
	}
	var (
		progressTotal int
		delayed       bool
	)
	for _, m := range milestones {
		r := DeriveMilestone(m, now)
		out.ByStatus[r.Status]++
		out.TotalTasks += r.TotalTasks
		out.CompletedTasks += r.CompletedTasks
		progressTotal += r.Progress
		if r.Status == StatusDelayed {
			delayed = true
		}
	}
	if out.TotalTasks > 0 {
		out.Progress = percent(out.CompletedTasks, out.TotalTasks)
		out.Status = classifyCounts(out.CompletedTasks, out.TotalTasks)
	} else {
		out.Progress = roundDiv(progressTotal, len(milestones))
		out.Status = ClassifyProgress(out.Progress)
	}
	if delayed && out.Status != StatusCompleted {
		out.Status = StatusDelayed
	}
	return out
}

// percent returns round(100*part/whole) with halves rounded up.
func percent(part, whole int) int {
	return roundDiv(100*part, whole)
}

// roundDiv divides non-negative integers rounding halves up.
func roundDiv(num, den int) int {
	if den <= 0 {
		return 0
	}
	return (2*num + den) / (2 * den)
}
