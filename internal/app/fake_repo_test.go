package app

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/hylla/labbook/internal/domain"
)

type fakeRepo struct {
	mu sync.Mutex

	projects   map[string]domain.Project
	milestones map[string]domain.Milestone
	activities map[string]domain.Activity
	tasks      map[string]domain.Task
	patients   map[string]domain.Patient
	samples    map[string]domain.Sample
	plates     map[string]domain.Plaquette
	members    map[string]domain.TeamMember
	attendance map[string]domain.AttendanceRecord
	lines      map[string]domain.BudgetLine
	expenses   map[string]domain.Expense
	events     []domain.ChangeEvent

	// takenCodes makes Create* fail with ErrConflict for listed codes.
	takenCodes map[string]bool
	// failTaskUpdate makes UpdateTask fail with this error.
	failTaskUpdate error
	// failTaskIDs makes UpdateTask fail for listed tasks before any gate wait.
	failTaskIDs map[string]error
	// taskUpdateGate blocks UpdateTask until it is closed.
	taskUpdateGate chan struct{}
	// failChangeEvent makes AppendChangeEvent fail with this error.
	failChangeEvent error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		projects:   map[string]domain.Project{},
		milestones: map[string]domain.Milestone{},
		activities: map[string]domain.Activity{},
		tasks:      map[string]domain.Task{},
		patients:   map[string]domain.Patient{},
		samples:    map[string]domain.Sample{},
		plates:     map[string]domain.Plaquette{},
		members:    map[string]domain.TeamMember{},
		attendance: map[string]domain.AttendanceRecord{},
		lines:      map[string]domain.BudgetLine{},
		expenses:   map[string]domain.Expense{},
		takenCodes:  map[string]bool{},
		failTaskIDs: map[string]error{},
	}
}

func (f *fakeRepo) CreateProject(_ context.Context, p domain.Project) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.projects[p.ID] = p
	return nil
}

func (f *fakeRepo) UpdateProject(_ context.Context, p domain.Project) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.projects[p.ID]; !ok {
		return ErrNotFound
	}
	f.projects[p.ID] = p
	return nil
}

func (f *fakeRepo) GetProject(_ context.Context, id string) (domain.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[id]
	if !ok {
		return domain.Project{}, ErrNotFound
	}
	return p, nil
}

func (f *fakeRepo) ListProjects(_ context.Context, includeArchived bool) ([]domain.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Project, 0, len(f.projects))
	for _, p := range f.projects {
		if !includeArchived && p.ArchivedAt != nil {
			continue
		}
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b domain.Project) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (f *fakeRepo) DeleteProject(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.projects[id]; !ok {
		return ErrNotFound
	}
	delete(f.projects, id)
	return nil
}

func (f *fakeRepo) CreateMilestone(_ context.Context, m domain.Milestone) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m.Activities = nil
	f.milestones[m.ID] = m
	return nil
}

func (f *fakeRepo) UpdateMilestone(_ context.Context, m domain.Milestone) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.milestones[m.ID]
	if !ok {
		return ErrNotFound
	}
	m.Activities = nil
	m.Status, m.Progress = stored.Status, stored.Progress
	f.milestones[m.ID] = m
	return nil
}

func (f *fakeRepo) assembleLocked(m domain.Milestone) domain.Milestone {
	m.Activities = []domain.Activity{}
	for _, a := range f.activities {
		if a.MilestoneID == m.ID {
			m.Activities = append(m.Activities, f.activityLocked(a))
		}
	}
	slices.SortFunc(m.Activities, func(a, b domain.Activity) int { return a.Position - b.Position })
	return m
}

func (f *fakeRepo) activityLocked(a domain.Activity) domain.Activity {
	a.Tasks = []domain.Task{}
	for _, t := range f.tasks {
		if t.ActivityID == a.ID {
			a.Tasks = append(a.Tasks, t)
		}
	}
	slices.SortFunc(a.Tasks, func(x, y domain.Task) int {
		if c := x.CreatedAt.Compare(y.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(x.ID, y.ID)
	})
	return a
}

func (f *fakeRepo) GetMilestone(_ context.Context, id string) (domain.Milestone, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.milestones[id]
	if !ok {
		return domain.Milestone{}, ErrNotFound
	}
	return f.assembleLocked(m), nil
}

func (f *fakeRepo) ListMilestones(_ context.Context, projectID string) ([]domain.Milestone, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.Milestone{}
	for _, m := range f.milestones {
		if m.ProjectID == projectID {
			out = append(out, f.assembleLocked(m))
		}
	}
	slices.SortFunc(out, func(a, b domain.Milestone) int { return a.Position - b.Position })
	return out, nil
}

func (f *fakeRepo) DeleteMilestone(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.milestones[id]; !ok {
		return ErrNotFound
	}
	delete(f.milestones, id)
	for aid, a := range f.activities {
		if a.MilestoneID == id {
			f.deleteActivityLocked(aid)
		}
	}
	return nil
}

func (f *fakeRepo) CreateActivity(_ context.Context, a domain.Activity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a.Tasks = nil
	f.activities[a.ID] = a
	return nil
}

func (f *fakeRepo) UpdateActivity(_ context.Context, a domain.Activity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.activities[a.ID]
	if !ok {
		return ErrNotFound
	}
	a.Tasks = nil
	a.Status, a.Progress = stored.Status, stored.Progress
	f.activities[a.ID] = a
	return nil
}

func (f *fakeRepo) GetActivity(_ context.Context, id string) (domain.Activity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.activities[id]
	if !ok {
		return domain.Activity{}, ErrNotFound
	}
	return f.activityLocked(a), nil
}

func (f *fakeRepo) DeleteActivity(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.activities[id]; !ok {
		return ErrNotFound
	}
	f.deleteActivityLocked(id)
	return nil
}

func (f *fakeRepo) deleteActivityLocked(id string) {
	delete(f.activities, id)
	for tid, t := range f.tasks {
		if t.ActivityID == id {
			delete(f.tasks, tid)
		}
	}
}

func (f *fakeRepo) CreateTask(_ context.Context, t domain.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[t.ID] = t
	return nil
}

func (f *fakeRepo) UpdateTask(_ context.Context, t domain.Task) error {
	f.mu.Lock()
	failed := f.failTaskIDs[t.ID]
	gate := f.taskUpdateGate
	f.mu.Unlock()
	if failed != nil {
		return failed
	}
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTaskUpdate != nil {
		return f.failTaskUpdate
	}
	if _, ok := f.tasks[t.ID]; !ok {
		return ErrNotFound
	}
	f.tasks[t.ID] = t
	return nil
}

func (f *fakeRepo) GetTask(_ context.Context, id string) (domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return domain.Task{}, ErrNotFound
	}
	return t, nil
}

func (f *fakeRepo) DeleteTask(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tasks[id]; !ok {
		return ErrNotFound
	}
	delete(f.tasks, id)
	return nil
}

func (f *fakeRepo) SaveRollups(_ context.Context, m domain.Milestone) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.milestones[m.ID]
	if !ok {
		return ErrNotFound
	}
	stored.Status, stored.Progress = m.Status, m.Progress
	f.milestones[m.ID] = stored
	for _, a := range m.Activities {
		if sa, ok := f.activities[a.ID]; ok {
			sa.Status, sa.Progress = a.Status, a.Progress
			f.activities[a.ID] = sa
		}
	}
	return nil
}

func (f *fakeRepo) CreatePatient(_ context.Context, p domain.Patient) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.takenCodes[p.Code] {
		return ErrConflict
	}
	f.takenCodes[p.Code] = true
	f.patients[p.ID] = p
	return nil
}

func (f *fakeRepo) UpdatePatient(_ context.Context, p domain.Patient) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.patients[p.ID]; !ok {
		return ErrNotFound
	}
	f.patients[p.ID] = p
	return nil
}

func (f *fakeRepo) GetPatient(_ context.Context, id string) (domain.Patient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.patients[id]
	if !ok {
		return domain.Patient{}, ErrNotFound
	}
	return p, nil
}

func (f *fakeRepo) ListPatients(_ context.Context, projectID string) ([]domain.Patient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.Patient{}
	for _, p := range f.patients {
		if projectID == "" || p.ProjectID == projectID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeRepo) CreateSample(_ context.Context, s domain.Sample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.takenCodes[s.Code] {
		return ErrConflict
	}
	f.takenCodes[s.Code] = true
	f.samples[s.ID] = s
	return nil
}

func (f *fakeRepo) UpdateSample(_ context.Context, s domain.Sample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.samples[s.ID]; !ok {
		return ErrNotFound
	}
	if s.PlaquetteID != "" {
		for id, other := range f.samples {
			if id != s.ID && other.PlaquetteID == s.PlaquetteID && other.Well == s.Well {
				return ErrConflict
			}
		}
	}
	f.samples[s.ID] = s
	return nil
}

func (f *fakeRepo) GetSample(_ context.Context, id string) (domain.Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.samples[id]
	if !ok {
		return domain.Sample{}, ErrNotFound
	}
	return s, nil
}

func (f *fakeRepo) ListSamples(_ context.Context, filter SampleFilter) ([]domain.Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.Sample{}
	for _, s := range f.samples {
		if filter.ProjectID != "" && s.ProjectID != filter.ProjectID {
			continue
		}
		if filter.PatientID != "" && s.PatientID != filter.PatientID {
			continue
		}
		if filter.PlaquetteID != "" && s.PlaquetteID != filter.PlaquetteID {
			continue
		}
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeRepo) CreatePlaquette(_ context.Context, p domain.Plaquette) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.takenCodes[p.Code] {
		return ErrConflict
	}
	f.takenCodes[p.Code] = true
	f.plates[p.ID] = p
	return nil
}

func (f *fakeRepo) UpdatePlaquette(_ context.Context, p domain.Plaquette) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plates[p.ID] = p
	return nil
}

func (f *fakeRepo) GetPlaquette(_ context.Context, id string) (domain.Plaquette, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.plates[id]
	if !ok {
		return domain.Plaquette{}, ErrNotFound
	}
	return p, nil
}

func (f *fakeRepo) ListPlaquettes(context.Context) ([]domain.Plaquette, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.Plaquette{}
	for _, p := range f.plates {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeRepo) CountPlacedSamples(context.Context) (map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]int{}
	for _, s := range f.samples {
		if s.PlaquetteID != "" {
			out[s.PlaquetteID]++
		}
	}
	return out, nil
}

func (f *fakeRepo) CreateTeamMember(_ context.Context, m domain.TeamMember) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[m.ID] = m
	return nil
}

func (f *fakeRepo) UpdateTeamMember(_ context.Context, m domain.TeamMember) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.members[m.ID]; !ok {
		return ErrNotFound
	}
	f.members[m.ID] = m
	return nil
}

func (f *fakeRepo) GetTeamMember(_ context.Context, id string) (domain.TeamMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[id]
	if !ok {
		return domain.TeamMember{}, ErrNotFound
	}
	return m, nil
}

func (f *fakeRepo) ListTeamMembers(_ context.Context, includeInactive bool) ([]domain.TeamMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.TeamMember{}
	for _, m := range f.members {
		if includeInactive || m.Active {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeRepo) UpsertAttendance(_ context.Context, r domain.AttendanceRecord) (domain.AttendanceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := r.MemberID + "|" + r.Day
	if existing, ok := f.attendance[key]; ok {
		r.ID = existing.ID
	}
	f.attendance[key] = r
	return r, nil
}

func (f *fakeRepo) ListAttendance(_ context.Context, from, to string) ([]domain.AttendanceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.AttendanceRecord{}
	for _, r := range f.attendance {
		if from != "" && r.Day < from {
			continue
		}
		if to != "" && r.Day > to {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeRepo) CreateBudgetLine(_ context.Context, l domain.BudgetLine) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines[l.ID] = l
	return nil
}

func (f *fakeRepo) UpdateBudgetLine(_ context.Context, l domain.BudgetLine) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines[l.ID] = l
	return nil
}

func (f *fakeRepo) GetBudgetLine(_ context.Context, id string) (domain.BudgetLine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.lines[id]
	if !ok {
		return domain.BudgetLine{}, ErrNotFound
	}
	return l, nil
}

func (f *fakeRepo) ListBudgetLines(_ context.Context, projectID string) ([]domain.BudgetLine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.BudgetLine{}
	for _, l := range f.lines {
		if l.ProjectID == projectID {
			out = append(out, l)
		}
	}
	slices.SortFunc(out, func(a, b domain.BudgetLine) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (f *fakeRepo) CreateExpense(_ context.Context, e domain.Expense) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expenses[e.ID] = e
	return nil
}

func (f *fakeRepo) GetExpense(_ context.Context, id string) (domain.Expense, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.expenses[id]
	if !ok {
		return domain.Expense{}, ErrNotFound
	}
	return e, nil
}

func (f *fakeRepo) ListExpenses(_ context.Context, lineID string) ([]domain.Expense, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.Expense{}
	for _, e := range f.expenses {
		if e.BudgetLineID == lineID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeRepo) DeleteExpense(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.expenses[id]; !ok {
		return ErrNotFound
	}
	delete(f.expenses, id)
	return nil
}

func (f *fakeRepo) AppendChangeEvent(_ context.Context, e domain.ChangeEvent) (domain.ChangeEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failChangeEvent != nil {
		return domain.ChangeEvent{}, f.failChangeEvent
	}
	e.ID = int64(len(f.events) + 1)
	f.events = append(f.events, e)
	return e, nil
}

func (f *fakeRepo) ListChangeEvents(_ context.Context, table domain.Table, limit int) ([]domain.ChangeEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.ChangeEvent{}
	for i := len(f.events) - 1; i >= 0 && len(out) < limit; i-- {
		if table == domain.TableAll || f.events[i].Table == table {
			out = append(out, f.events[i])
		}
	}
	return out, nil
}
