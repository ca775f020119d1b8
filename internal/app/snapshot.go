package app

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/hylla/labbook/internal/domain"
)

// SnapshotVersion defines a package constant value.
const SnapshotVersion = "labbook.snapshot.v1"

// Snapshot is a portable JSON export of every table except the change ledger.
type Snapshot struct {
	Version     string                    `json:"version"`
	ExportedAt  time.Time                 `json:"exported_at"`
	Projects    []domain.Project          `json:"projects"`
	Milestones  []SnapshotMilestone       `json:"milestones"`
	Activities  []SnapshotActivity        `json:"activities"`
	Tasks       []domain.Task             `json:"tasks"`
	Patients    []domain.Patient          `json:"patients"`
	Samples     []domain.Sample           `json:"samples"`
	Plaquettes  []domain.Plaquette        `json:"plaquettes"`
	TeamMembers []domain.TeamMember       `json:"team_members"`
	Attendance  []domain.AttendanceRecord `json:"attendance"`
	BudgetLines []domain.BudgetLine       `json:"budget_lines"`
	Expenses    []domain.Expense          `json:"expenses"`
}

// SnapshotMilestone is a milestone row without its children.
type SnapshotMilestone struct {
	ID          string          `json:"id"`
	ProjectID   string          `json:"project_id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Priority    domain.Priority `json:"priority"`
	DueAt       *time.Time      `json:"due_at,omitempty"`
	Position    int             `json:"position"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// SnapshotActivity is an activity row without its tasks.
type SnapshotActivity struct {
	ID          string    `json:"id"`
	MilestoneID string    `json:"milestone_id"`
	Name        string    `json:"name"`
	Position    int       `json:"position"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ExportSnapshot exports every table. Derived status and progress are not exported.
func (s *Service) ExportSnapshot(ctx context.Context) (Snapshot, error) {
	projects, err := s.repo.ListProjects(ctx, true)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{
		Version:    SnapshotVersion,
		ExportedAt: s.clock().UTC(),
		Projects:   projects,
	}
	for _, project := range projects {
		milestones, err := s.repo.ListMilestones(ctx, project.ID)
		if err != nil {
			return Snapshot{}, err
		}
		for _, m := range milestones {
			snap.Milestones = append(snap.Milestones, snapshotMilestoneFromDomain(m))
			for _, a := range m.Activities {
				snap.Activities = append(snap.Activities, snapshotActivityFromDomain(a))
				snap.Tasks = append(snap.Tasks, a.Tasks...)
			}
		}
		lines, err := s.repo.ListBudgetLines(ctx, project.ID)
		if err != nil {
			return Snapshot{}, err
		}
		snap.BudgetLines = append(snap.BudgetLines, lines...)
		for _, line := range lines {
			expenses, err := s.repo.ListExpenses(ctx, line.ID)
			if err != nil {
				return Snapshot{}, err
			}
			snap.Expenses = append(snap.Expenses, expenses...)
		}
	}
	if snap.Patients, err = s.repo.ListPatients(ctx, ""); err != nil {
		return Snapshot{}, err
	}
	if snap.Samples, err = s.repo.ListSamples(ctx, SampleFilter{}); err != nil {
		return Snapshot{}, err
	}
	if snap.Plaquettes, err = s.repo.ListPlaquettes(ctx); err != nil {
		return Snapshot{}, err
	}
	if snap.TeamMembers, err = s.repo.ListTeamMembers(ctx, true); err != nil {
		return Snapshot{}, err
	}
	if snap.Attendance, err = s.repo.ListAttendance(ctx, "", ""); err != nil {
		return Snapshot{}, err
	}
	snap.sort()
	return snap, nil
}

// ImportSnapshot upserts every row of a snapshot and recomputes imported milestones.
// Existing expenses are left untouched.
func (s *Service) ImportSnapshot(ctx context.Context, snap Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	snap.sort()

	for _, p := range snap.Projects {
		if err := upsert(ctx, s.repo.GetProject, s.repo.CreateProject, s.repo.UpdateProject, p.ID, p); err != nil {
			return fmt.Errorf("import project %s: %w", p.ID, err)
		}
	}
	for _, p := range snap.Plaquettes {
		if err := upsert(ctx, s.repo.GetPlaquette, s.repo.CreatePlaquette, s.repo.UpdatePlaquette, p.ID, p); err != nil {
			return fmt.Errorf("import plaquette %s: %w", p.ID, err)
		}
	}
	for _, m := range snap.TeamMembers {
		if err := upsert(ctx, s.repo.GetTeamMember, s.repo.CreateTeamMember, s.repo.UpdateTeamMember, m.ID, m); err != nil {
			return fmt.Errorf("import team member %s: %w", m.ID, err)
		}
	}
	for _, m := range snap.Milestones {
		dm := m.toDomain()
		if err := upsert(ctx, s.repo.GetMilestone, s.repo.CreateMilestone, s.repo.UpdateMilestone, dm.ID, dm); err != nil {
			return fmt.Errorf("import milestone %s: %w", dm.ID, err)
		}
	}
	for _, a := range snap.Activities {
		da := a.toDomain()
		if err := upsert(ctx, s.repo.GetActivity, s.repo.CreateActivity, s.repo.UpdateActivity, da.ID, da); err != nil {
			return fmt.Errorf("import activity %s: %w", da.ID, err)
		}
	}
	for _, t := range snap.Tasks {
		if err := upsert(ctx, s.repo.GetTask, s.repo.CreateTask, s.repo.UpdateTask, t.ID, t); err != nil {
			return fmt.Errorf("import task %s: %w", t.ID, err)
		}
	}
	for _, p := range snap.Patients {
		if err := upsert(ctx, s.repo.GetPatient, s.repo.CreatePatient, s.repo.UpdatePatient, p.ID, p); err != nil {
			return fmt.Errorf("import patient %s: %w", p.ID, err)
		}
	}
	for _, smp := range snap.Samples {
		if err := upsert(ctx, s.repo.GetSample, s.repo.CreateSample, s.repo.UpdateSample, smp.ID, smp); err != nil {
			return fmt.Errorf("import sample %s: %w", smp.ID, err)
		}
	}
	for _, line := range snap.BudgetLines {
		if err := upsert(ctx, s.repo.GetBudgetLine, s.repo.CreateBudgetLine, s.repo.UpdateBudgetLine, line.ID, line); err != nil {
			return fmt.Errorf("import budget line %s: %w", line.ID, err)
		}
	}
	for _, e := range snap.Expenses {
		if err := upsert(ctx, s.repo.GetExpense, s.repo.CreateExpense, nil, e.ID, e); err != nil {
			return fmt.Errorf("import expense %s: %w", e.ID, err)
		}
	}
	for _, r := range snap.Attendance {
		if _, err := s.repo.UpsertAttendance(ctx, r); err != nil {
			return fmt.Errorf("import attendance %s: %w", r.ID, err)
		}
	}

	for _, m := range snap.Milestones {
		if _, err := s.refreshMilestone(ctx, m.ID); err != nil {
			return err
		}
	}
	return s.recordChange(ctx, domain.TableMilestones, "snapshot", "", domain.ChangeOperationUpdate, map[string]string{
		"source":     "snapshot",
		"milestones": fmt.Sprint(len(snap.Milestones)),
		"tasks":      fmt.Sprint(len(snap.Tasks)),
	})
}

// upsert updates a row that exists and creates one that does not. A nil update skips existing rows.
func upsert[T any](ctx context.Context, get func(context.Context, string) (T, error), create, update func(context.Context, T) error, id string, v T) error {
	if _, err := get(ctx, id); err == nil {
		if update == nil {
			return nil
		}
		return update(ctx, v)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	return create(ctx, v)
}

// Validate checks required fields and references between snapshot rows.
func (s *Snapshot) Validate() error {
	if s.Version != "" && s.Version != SnapshotVersion {
		return fmt.Errorf("%w: unsupported version %q", ErrInvalidSnapshot, s.Version)
	}

	projectIDs, err := collectIDs("projects", s.Projects, func(p domain.Project) string { return p.ID })
	if err != nil {
		return err
	}
	milestoneIDs, err := collectIDs("milestones", s.Milestones, func(m SnapshotMilestone) string { return m.ID })
	if err != nil {
		return err
	}
	activityIDs, err := collectIDs("activities", s.Activities, func(a SnapshotActivity) string { return a.ID })
	if err != nil {
		return err
	}
	if _, err := collectIDs("tasks", s.Tasks, func(t domain.Task) string { return t.ID }); err != nil {
		return err
	}
	patientIDs, err := collectIDs("patients", s.Patients, func(p domain.Patient) string { return p.ID })
	if err != nil {
		return err
	}
	plaquetteIDs, err := collectIDs("plaquettes", s.Plaquettes, func(p domain.Plaquette) string { return p.ID })
	if err != nil {
		return err
	}
	memberIDs, err := collectIDs("team_members", s.TeamMembers, func(m domain.TeamMember) string { return m.ID })
	if err != nil {
		return err
	}
	lineIDs, err := collectIDs("budget_lines", s.BudgetLines, func(l domain.BudgetLine) string { return l.ID })
	if err != nil {
		return err
	}

	for i, p := range s.Projects {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("%w: projects[%d].name is required", ErrInvalidSnapshot, i)
		}
	}
	for i, m := range s.Milestones {
		if err := requireRef("milestones", i, "project_id", m.ProjectID, projectIDs); err != nil {
			return err
		}
	}
	for i, a := range s.Activities {
		if err := requireRef("activities", i, "milestone_id", a.MilestoneID, milestoneIDs); err != nil {
			return err
		}
	}
	for i, t := range s.Tasks {
		if err := requireRef("tasks", i, "activity_id", t.ActivityID, activityIDs); err != nil {
			return err
		}
	}
	for i, p := range s.Patients {
		if err := requireRef("patients", i, "project_id", p.ProjectID, projectIDs); err != nil {
			return err
		}
		if strings.TrimSpace(p.Code) == "" {
			return fmt.Errorf("%w: patients[%d].code is required", ErrInvalidSnapshot, i)
		}
	}
	for i, smp := range s.Samples {
		if err := requireRef("samples", i, "project_id", smp.ProjectID, projectIDs); err != nil {
			return err
		}
		if smp.PatientID != "" {
			if err := requireRef("samples", i, "patient_id", smp.PatientID, patientIDs); err != nil {
				return err
			}
		}
		if smp.PlaquetteID != "" {
			if err := requireRef("samples", i, "plaquette_id", smp.PlaquetteID, plaquetteIDs); err != nil {
				return err
			}
		}
	}
	for i, r := range s.Attendance {
		if err := requireRef("attendance", i, "member_id", r.MemberID, memberIDs); err != nil {
			return err
		}
		if _, err := domain.ParseDay(r.Day); err != nil {
			return fmt.Errorf("%w: attendance[%d].day %q", ErrInvalidSnapshot, i, r.Day)
		}
	}
	for i, l := range s.BudgetLines {
		if err := requireRef("budget_lines", i, "project_id", l.ProjectID, projectIDs); err != nil {
			return err
		}
	}
	for i, e := range s.Expenses {
		if err := requireRef("expenses", i, "budget_line_id", e.BudgetLineID, lineIDs); err != nil {
			return err
		}
	}
	return nil
}

func collectIDs[T any](section string, rows []T, id func(T) string) (map[string]struct{}, error) {
	out := make(map[string]struct{}, len(rows))
	for i, row := range rows {
		v := strings.TrimSpace(id(row))
		if v == "" {
			return nil, fmt.Errorf("%w: %s[%d].id is required", ErrInvalidSnapshot, section, i)
		}
		if _, exists := out[v]; exists {
			return nil, fmt.Errorf("%w: duplicate %s id %q", ErrInvalidSnapshot, section, v)
		}
		out[v] = struct{}{}
	}
	return out, nil
}

func requireRef(section string, i int, field, ref string, known map[string]struct{}) error {
	if _, ok := known[strings.TrimSpace(ref)]; !ok {
		return fmt.Errorf("%w: %s[%d] references unknown %s %q", ErrInvalidSnapshot, section, i, field, ref)
	}
	return nil
}

// sort orders rows so exports are stable and imports respect parent order.
func (s *Snapshot) sort() {
	byID := func(a, b string) int { return strings.Compare(a, b) }
	slices.SortFunc(s.Projects, func(a, b domain.Project) int { return byID(a.ID, b.ID) })
	slices.SortFunc(s.Milestones, func(a, b SnapshotMilestone) int {
		return cmp.Or(strings.Compare(a.ProjectID, b.ProjectID), cmp.Compare(a.Position, b.Position), byID(a.ID, b.ID))
	})
	slices.SortFunc(s.Activities, func(a, b SnapshotActivity) int {
		return cmp.Or(strings.Compare(a.MilestoneID, b.MilestoneID), cmp.Compare(a.Position, b.Position), byID(a.ID, b.ID))
	})
	slices.SortFunc(s.Tasks, func(a, b domain.Task) int {
		return cmp.Or(strings.Compare(a.ActivityID, b.ActivityID), a.CreatedAt.Compare(b.CreatedAt), byID(a.ID, b.ID))
	})
	slices.SortFunc(s.Patients, func(a, b domain.Patient) int { return byID(a.ID, b.ID) })
	slices.SortFunc(s.Samples, func(a, b domain.Sample) int { return byID(a.ID, b.ID) })
	slices.SortFunc(s.Plaquettes, func(a, b domain.Plaquette) int { return byID(a.ID, b.ID) })
	slices.SortFunc(s.TeamMembers, func(a, b domain.TeamMember) int { return byID(a.ID, b.ID) })
	slices.SortFunc(s.Attendance, func(a, b domain.AttendanceRecord) int {
		return cmp.Or(strings.Compare(a.Day, b.Day), byID(a.MemberID, b.MemberID))
	})
	slices.SortFunc(s.BudgetLines, func(a, b domain.BudgetLine) int { return byID(a.ID, b.ID) })
	slices.SortFunc(s.Expenses, func(a, b domain.Expense) int { return byID(a.ID, b.ID) })
}

func snapshotMilestoneFromDomain(m domain.Milestone) SnapshotMilestone {
	return SnapshotMilestone{
		ID:          m.ID,
		ProjectID:   m.ProjectID,
		Name:        m.Name,
		Description: m.Description,
		Priority:    m.Priority,
		DueAt:       copyTimePtr(m.DueAt),
		Position:    m.Position,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func snapshotActivityFromDomain(a domain.Activity) SnapshotActivity {
	return SnapshotActivity{
		ID:          a.ID,
		MilestoneID: a.MilestoneID,
		Name:        a.Name,
		Position:    a.Position,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

func (m SnapshotMilestone) toDomain() domain.Milestone {
	priority := m.Priority
	if priority == "" {
		priority = domain.PriorityMedium
	}
	return domain.Milestone{
		ID:          strings.TrimSpace(m.ID),
		ProjectID:   strings.TrimSpace(m.ProjectID),
		Name:        strings.TrimSpace(m.Name),
		Description: m.Description,
		Priority:    priority,
		DueAt:       copyTimePtr(m.DueAt),
		Position:    m.Position,
		Status:      domain.StatusPending,
		CreatedAt:   m.CreatedAt.UTC(),
		UpdatedAt:   m.UpdatedAt.UTC(),
	}
}

func (a SnapshotActivity) toDomain() domain.Activity {
	return domain.Activity{
		ID:          strings.TrimSpace(a.ID),
		MilestoneID: strings.TrimSpace(a.MilestoneID),
		Name:        strings.TrimSpace(a.Name),
		Position:    a.Position,
		Status:      domain.StatusPending,
		CreatedAt:   a.CreatedAt.UTC(),
		UpdatedAt:   a.UpdatedAt.UTC(),
	}
}

// copyTimePtr copies time ptr.
func copyTimePtr(in *time.Time) *time.Time {
	if in == nil {
		return nil
	}
	ts := in.UTC()
	return &ts
}
