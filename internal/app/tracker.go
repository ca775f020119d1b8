package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/hylla/labbook/internal/domain"
)

// projectView is the tracker's cached milestone tree for one project.
type projectView struct {
	milestones []domain.Milestone
	stale      bool
}

// Tracker keeps a live, optimistically updated view of project plans.
// Views load lazily and are marked stale by planning change events; the next read re-fetches.
type Tracker struct {
	svc      *Service
	intents  *Intents
	notifier Notifier

	mu    sync.Mutex
	views map[string]*projectView

	unsubscribe func()
}

// NewTracker constructs a tracker subscribed to the service's change feed.
func NewTracker(svc *Service, intents *Intents, notifier Notifier) *Tracker {
	if intents == nil {
		intents = NewIntents(DefaultCommitTimeout, svc.clock)
	}
	if notifier == nil {
		notifier = discardNotifier{}
	}
	t := &Tracker{
		svc:      svc,
		intents:  intents,
		notifier: notifier,
		views:    map[string]*projectView{},
	}
	t.unsubscribe = svc.Feed().Subscribe(domain.TableAll, t.onChange)
	return t
}

// Close detaches the tracker from the change feed.
func (t *Tracker) Close() {
	if t.unsubscribe != nil {
		t.unsubscribe()
	}
}

func (t *Tracker) onChange(event domain.ChangeEvent) {
	switch {
	case event.Table.IsPlanning():
		t.Invalidate(event.ProjectID)
	case event.Table == domain.TableProjects && event.Operation == domain.ChangeOperationDelete:
		t.mu.Lock()
		delete(t.views, event.ProjectID)
		t.mu.Unlock()
	}
}

// Invalidate marks a project's view stale. An empty id marks every view stale.
func (t *Tracker) Invalidate(projectID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		for _, view := range t.views {
			view.stale = true
		}
		return
	}
	if view, ok := t.views[projectID]; ok {
		view.stale = true
	}
}

// Milestones returns the project's milestones, recomputed, from the live view.
func (t *Tracker) Milestones(ctx context.Context, projectID string) ([]domain.Milestone, error) {
	projectID = strings.TrimSpace(projectID)
	if err := t.ensureLoaded(ctx, projectID); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked(projectID), nil
}

// Progress returns the project rollup computed from the live view.
func (t *Tracker) Progress(ctx context.Context, projectID string) (domain.ProjectRollup, error) {
	milestones, err := t.Milestones(ctx, projectID)
	if err != nil {
		return domain.ProjectRollup{}, err
	}
	return domain.DeriveProject(milestones, t.svc.clock()), nil
}

// ToggleTask optimistically flips a task in the view and commits it to the store.
// The view reverts and a destructive notification is sent when the commit fails.
func (t *Tracker) ToggleTask(ctx context.Context, taskID string) (Intent, error) {
	loc, ok := t.find(ctx, taskID)
	if !ok {
		t.notifier.Notify(Notification{Title: "Task not found", Description: taskID, Variant: VariantDestructive, At: t.svc.clock()})
		return Intent{Key: taskID}, fmt.Errorf("task %q: %w", taskID, ErrNotFound)
	}
	var (
		previous domain.Task
		applied  bool
		done     bool
	)
	intent, err := t.intents.Run(ctx, "task:"+loc.taskID,
		func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			m := t.milestoneLocked(loc)
			if m == nil {
				return
			}
			task := &m.Activities[loc.activity].Tasks[loc.task]
			previous = *task
			task.Toggle(t.svc.clock())
			done = task.Completed
			applied = true
			m.Recompute(t.svc.clock())
		},
		t.commitFunc(loc, func(ctx context.Context) error {
			if !applied {
				_, err := t.svc.ToggleTask(ctx, loc.taskID)
				return err
			}
			_, err := t.svc.SetTaskCompleted(ctx, loc.taskID, done)
			return err
		}),
		func() { t.restore(loc, previous) },
	)
	t.settle(loc, err)
	t.report(intent, err, "Task updated", "Could not update task")
	return intent, err
}

// DeleteTask optimistically removes a task from the view and deletes it from the store.
func (t *Tracker) DeleteTask(ctx context.Context, taskID string) (Intent, error) {
	loc, ok := t.find(ctx, taskID)
	if !ok {
		t.notifier.Notify(Notification{Title: "Task not found", Description: taskID, Variant: VariantDestructive, At: t.svc.clock()})
		return Intent{Key: taskID}, fmt.Errorf("task %q: %w", taskID, ErrNotFound)
	}
	var previous domain.Task
	intent, err := t.intents.Run(ctx, "task:"+loc.taskID,
		func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			m := t.milestoneLocked(loc)
			if m == nil {
				return
			}
			activity := &m.Activities[loc.activity]
			previous = activity.Tasks[loc.task]
			activity.Tasks = append(activity.Tasks[:loc.task:loc.task], activity.Tasks[loc.task+1:]...)
			m.Recompute(t.svc.clock())
		},
		t.commitFunc(loc, func(ctx context.Context) error {
			return t.svc.DeleteTask(ctx, loc.taskID)
		}),
		func() { t.restore(loc, previous) },
	)
	t.settle(loc, err)
	t.report(intent, err, "Task deleted", "Could not delete task")
	return intent, err
}

// taskLocation addresses one task inside a loaded view.
type taskLocation struct {
	projectID   string
	milestoneID string
	activityID  string
	taskID      string
	milestone   int
	activity    int
	task        int
}

// find locates a task in the fresh views, loading its project's view on a miss or when stale.
func (t *Tracker) find(ctx context.Context, taskID string) (taskLocation, bool) {
	if loc, ok := t.locate(taskID); ok {
		return loc, true
	}
	projectID, err := t.svc.TaskProjectID(ctx, taskID)
	if err != nil {
		return taskLocation{}, false
	}
	if err := t.ensureLoaded(ctx, projectID); err != nil {
		return taskLocation{}, false
	}
	return t.locate(taskID)
}

func (t *Tracker) locate(taskID string) (taskLocation, bool) {
	taskID = strings.TrimSpace(taskID)
	t.mu.Lock()
	defer t.mu.Unlock()
	for projectID, view := range t.views {
		if view.stale {
			continue
		}
		for mi, m := range view.milestones {
			for ai, a := range m.Activities {
				if ti := a.TaskIndex(taskID); ti >= 0 {
					return taskLocation{
						projectID:   projectID,
						milestoneID: m.ID,
						activityID:  a.ID,
						taskID:      taskID,
						milestone:   mi,
						activity:    ai,
						task:        ti,
					}, true
				}
			}
		}
	}
	return taskLocation{}, false
}

// milestoneLocked resolves a location, returning nil when the view moved underneath it.
func (t *Tracker) milestoneLocked(loc taskLocation) *domain.Milestone {
	view, ok := t.views[loc.projectID]
	if !ok || loc.milestone >= len(view.milestones) {
		return nil
	}
	m := &view.milestones[loc.milestone]
	if m.ID != loc.milestoneID || loc.activity >= len(m.Activities) {
		return nil
	}
	if m.Activities[loc.activity].TaskIndex(loc.taskID) != loc.task {
		return nil
	}
	return m
}

// restore puts one task back as it was before apply, leaving other tentative edits in place.
func (t *Tracker) restore(loc taskLocation, previous domain.Task) {
	if previous.ID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	view, ok := t.views[loc.projectID]
	if !ok {
		return
	}
	mi := slices.IndexFunc(view.milestones, func(m domain.Milestone) bool { return m.ID == loc.milestoneID })
	if mi < 0 {
		return
	}
	m := &view.milestones[mi]
	ai := m.ActivityIndex(loc.activityID)
	if ai < 0 {
		return
	}
	activity := &m.Activities[ai]
	if ti := activity.TaskIndex(previous.ID); ti >= 0 {
		activity.Tasks[ti] = previous
	} else {
		at := min(loc.task, len(activity.Tasks))
		activity.Tasks = slices.Insert(activity.Tasks, at, previous)
	}
	m.Recompute(t.svc.clock())
}

// commitFunc wraps a store write so a write that outlives its deadline still invalidates the view.
// The change event may never be recorded in that case, so the feed cannot be relied on.
func (t *Tracker) commitFunc(loc taskLocation, write func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		err := write(ctx)
		if ctx.Err() != nil {
			t.Invalidate(loc.projectID)
		}
		return err
	}
}

// settle marks the view stale when the store outcome is unknown.
func (t *Tracker) settle(loc taskLocation, err error) {
	if errors.Is(err, ErrCommitTimeout) || errors.Is(err, context.Canceled) {
		t.Invalidate(loc.projectID)
	}
}

func (t *Tracker) report(intent Intent, err error, okTitle, failTitle string) {
	switch {
	case err == nil:
		t.notifier.Notify(Notification{Title: okTitle, Variant: VariantSuccess, At: intent.FinishedAt})
	case errors.Is(err, ErrOperationInFlight):
		// Duplicate trigger; the outstanding intent reports its own outcome.
	default:
		t.notifier.Notify(Notification{Title: failTitle, Description: err.Error(), Variant: VariantDestructive, At: intent.FinishedAt})
	}
}

func (t *Tracker) ensureLoaded(ctx context.Context, projectID string) error {
	t.mu.Lock()
	view, ok := t.views[projectID]
	fresh := ok && !view.stale
	t.mu.Unlock()
	if fresh {
		return nil
	}
	milestones, err := t.svc.ListMilestones(ctx, projectID)
	if err != nil {
		return err
	}
	if len(milestones) == 0 {
		if _, err := t.svc.GetProject(ctx, projectID); err != nil {
			return err
		}
	}
	t.mu.Lock()
	t.views[projectID] = &projectView{milestones: milestones}
	t.mu.Unlock()
	return nil
}

func (t *Tracker) snapshotLocked(projectID string) []domain.Milestone {
	view, ok := t.views[projectID]
	if !ok {
		return nil
	}
	now := t.svc.clock()
	out := make([]domain.Milestone, 0, len(view.milestones))
	for _, m := range view.milestones {
		clone := m.Clone()
		clone.Recompute(now)
		out = append(out, clone)
	}
	return out
}
