package domain

import (
	"slices"
	"strings"
	"time"
)

// Table names a record family that emits change events.
type Table string

// Table values, plus TableAll which subscribes to every table.
const (
	TableAll         Table = "*"
	TableProjects    Table = "projects"
	TableMilestones  Table = "milestones"
	TableActivities  Table = "activities"
	TableTasks       Table = "tasks"
	TablePatients    Table = "patients"
	TableSamples     Table = "samples"
	TablePlaquettes  Table = "plaquettes"
	TableTeamMembers Table = "team_members"
	TableAttendance  Table = "attendance"
	TableBudgetLines Table = "budget_lines"
	TableExpenses    Table = "expenses"
)

var validTables = []Table{
	TableProjects,
	TableMilestones,
	TableActivities,
	TableTasks,
	TablePatients,
	TableSamples,
	TablePlaquettes,
	TableTeamMembers,
	TableAttendance,
	TableBudgetLines,
	TableExpenses,
}

// Tables returns every concrete table name.
func Tables() []Table {
	return slices.Clone(validTables)
}

// ParseTable validates a table name; "*" and "" map to TableAll.
func ParseTable(raw string) (Table, error) {
	table := Table(strings.TrimSpace(strings.ToLower(raw)))
	if table == "" || table == TableAll {
		return TableAll, nil
	}
	if !slices.Contains(validTables, table) {
		return "", ErrInvalidTable
	}
	return table, nil
}

// IsPlanning reports whether the table holds milestone, activity or task rows.
func (t Table) IsPlanning() bool {
	return t == TableMilestones || t == TableActivities || t == TableTasks
}

// ChangeOperation describes a persisted row operation.
type ChangeOperation string

// ChangeOperation values used by the local change ledger.
const (
	ChangeOperationInsert ChangeOperation = "insert"
	ChangeOperationUpdate ChangeOperation = "update"
	ChangeOperationDelete ChangeOperation = "delete"
)

// ChangeEvent represents a single change-ledger entry.
type ChangeEvent struct {
	ID         int64             `json:"id"`
	Table      Table             `json:"table"`
	RecordID   string            `json:"record_id"`
	ProjectID  string            `json:"project_id,omitempty"`
	Operation  ChangeOperation   `json:"operation"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}
