package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hylla/labbook/internal/app"
	"github.com/hylla/labbook/internal/domain"
	_ "modernc.org/sqlite"
)

// driverName defines a package constant value.
const driverName = "sqlite"

// dsnPragmas are applied by the driver to every new connection.
const dsnPragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

// Repository implements app.Repository on a sqlite database.
type Repository struct {
	db *sql.DB
}

// Open opens a file-backed repository, creating the parent directory and schema as needed.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	return openDSN(path + "?" + dsnPragmas)
}

// OpenInMemory opens a private in-memory repository.
func OpenInMemory() (*Repository, error) {
	return openDSN("file:labbook-" + uuid.NewString() + "?mode=memory&cache=shared&" + dsnPragmas)
}

// openDSN opens the database and runs migrations.
func openDSN(dsn string) (*Repository, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serializes writers and keeps the shared-cache memory database alive.
	db.SetMaxOpenConns(1)
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the underlying database.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Ping verifies the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// migrate creates the schema.
func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			slug TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			lead TEXT NOT NULL DEFAULT '',
			start_at TEXT,
			end_at TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			archived_at TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS milestones (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			priority TEXT NOT NULL,
			due_at TEXT,
			position INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			progress INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			FOREIGN KEY(project_id) REFERENCES projects(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS activities (
			id TEXT PRIMARY KEY,
			milestone_id TEXT NOT NULL,
			name TEXT NOT NULL,
			position INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			progress INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			FOREIGN KEY(milestone_id) REFERENCES milestones(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			activity_id TEXT NOT NULL,
			text TEXT NOT NULL,
			completed INTEGER NOT NULL DEFAULT 0,
			deadline_at TEXT,
			completed_at TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			FOREIGN KEY(activity_id) REFERENCES activities(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS patients (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			code TEXT NOT NULL UNIQUE,
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			age INTEGER NOT NULL DEFAULT -1,
			gender TEXT NOT NULL DEFAULT 'U',
			ethnicity TEXT NOT NULL DEFAULT '',
			site TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			FOREIGN KEY(project_id) REFERENCES projects(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS plaquettes (
			id TEXT PRIMARY KEY,
			code TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			plate_type TEXT NOT NULL DEFAULT '',
			plate_rows INTEGER NOT NULL,
			plate_columns INTEGER NOT NULL,
			location TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		// patient_id and plaquette_id are optional, so they are not enforced as foreign keys.
		`CREATE TABLE IF NOT EXISTS samples (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			patient_id TEXT NOT NULL DEFAULT '',
			code TEXT NOT NULL UNIQUE,
			type TEXT NOT NULL,
			collected_at TEXT NOT NULL,
			plaquette_id TEXT NOT NULL DEFAULT '',
			well TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'stored',
			notes TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			FOREIGN KEY(project_id) REFERENCES projects(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS team_members (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL DEFAULT '',
			active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS attendance (
			id TEXT PRIMARY KEY,
			member_id TEXT NOT NULL,
			day TEXT NOT NULL,
			status TEXT NOT NULL,
			note TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL,
			UNIQUE(member_id, day),
			FOREIGN KEY(member_id) REFERENCES team_members(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS budget_lines (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			category TEXT NOT NULL,
			allocated_cents INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			FOREIGN KEY(project_id) REFERENCES projects(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS expenses (
			id TEXT PRIMARY KEY,
			budget_line_id TEXT NOT NULL,
			amount_cents INTEGER NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			spent_at TEXT NOT NULL,
			created_at TEXT NOT NULL,
			FOREIGN KEY(budget_line_id) REFERENCES budget_lines(id) ON DELETE CASCADE
		);`,
		// change events outlive the rows they describe, so no foreign keys are enforced.
		`CREATE TABLE IF NOT EXISTS change_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			table_name TEXT NOT NULL,
			record_id TEXT NOT NULL,
			project_id TEXT NOT NULL DEFAULT '',
			operation TEXT NOT NULL,
			metadata_json TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_milestones_project_position ON milestones(project_id, position);`,
		`CREATE INDEX IF NOT EXISTS idx_activities_milestone_position ON activities(milestone_id, position);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_activity ON tasks(activity_id);`,
		`CREATE INDEX IF NOT EXISTS idx_patients_project ON patients(project_id);`,
		`CREATE INDEX IF NOT EXISTS idx_samples_project ON samples(project_id);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_samples_plaquette_well ON samples(plaquette_id, well) WHERE plaquette_id <> '';`,
		`CREATE INDEX IF NOT EXISTS idx_attendance_day ON attendance(day);`,
		`CREATE INDEX IF NOT EXISTS idx_budget_lines_project ON budget_lines(project_id);`,
		`CREATE INDEX IF NOT EXISTS idx_expenses_line ON expenses(budget_line_id);`,
		`CREATE INDEX IF NOT EXISTS idx_change_events_table_id ON change_events(table_name, id DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// CreateProject inserts a project.
func (r *Repository) CreateProject(ctx context.Context, p domain.Project) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO projects(id, slug, name, description, lead, start_at, end_at, created_at, updated_at, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Slug, p.Name, p.Description, p.Lead, nullableTS(p.StartAt), nullableTS(p.EndAt), ts(p.CreatedAt), ts(p.UpdatedAt), nullableTS(p.ArchivedAt))
	return translateWriteErr(err)
}

// UpdateProject replaces a project row.
func (r *Repository) UpdateProject(ctx context.Context, p domain.Project) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE projects
		SET slug = ?, name = ?, description = ?, lead = ?, start_at = ?, end_at = ?, updated_at = ?, archived_at = ?
		WHERE id = ?
	`, p.Slug, p.Name, p.Description, p.Lead, nullableTS(p.StartAt), nullableTS(p.EndAt), ts(p.UpdatedAt), nullableTS(p.ArchivedAt), p.ID)
	if err != nil {
		return translateWriteErr(err)
	}
	return translateNoRows(res)
}

// GetProject returns a project by id.
func (r *Repository) GetProject(ctx context.Context, id string) (domain.Project, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, slug, name, description, lead, start_at, end_at, created_at, updated_at, archived_at
		FROM projects
		WHERE id = ?
	`, id)
	return scanProject(row)
}

// ListProjects lists projects ordered by creation.
func (r *Repository) ListProjects(ctx context.Context, includeArchived bool) ([]domain.Project, error) {
	query := `
		SELECT id, slug, name, description, lead, start_at, end_at, created_at, updated_at, archived_at
		FROM projects
	`
	if !includeArchived {
		query += ` WHERE archived_at IS NULL`
	}
	query += ` ORDER BY created_at ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Project, 0)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeleteProject deletes a project; dependent rows cascade.
func (r *Repository) DeleteProject(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// AppendChangeEvent stores an event and returns it with its assigned id.
func (r *Repository) AppendChangeEvent(ctx context.Context, event domain.ChangeEvent) (domain.ChangeEvent, error) {
	metadata := event.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return domain.ChangeEvent{}, fmt.Errorf("encode change event metadata: %w", err)
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO change_events(table_name, record_id, project_id, operation, metadata_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, string(event.Table), event.RecordID, event.ProjectID, string(event.Operation), string(metadataJSON), ts(event.OccurredAt))
	if err != nil {
		return domain.ChangeEvent{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.ChangeEvent{}, err
	}
	event.ID = id
	event.OccurredAt = event.OccurredAt.UTC()
	return event, nil
}

// ListChangeEvents lists events newest first, optionally narrowed to one table.
func (r *Repository) ListChangeEvents(ctx context.Context, table domain.Table, limit int) ([]domain.ChangeEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, table_name, record_id, project_id, operation, metadata_json, created_at
		FROM change_events
	`
	args := make([]any, 0, 2)
	if table != "" && table != domain.TableAll {
		query += ` WHERE table_name = ?`
		args = append(args, string(table))
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.ChangeEvent, 0)
	for rows.Next() {
		var (
			event       domain.ChangeEvent
			tableRaw    string
			opRaw       string
			metadataRaw string
			createdRaw  string
		)
		if err := rows.Scan(&event.ID, &tableRaw, &event.RecordID, &event.ProjectID, &opRaw, &metadataRaw, &createdRaw); err != nil {
			return nil, err
		}
		event.Table = domain.Table(tableRaw)
		event.Operation = domain.ChangeOperation(opRaw)
		if strings.TrimSpace(metadataRaw) != "" && metadataRaw != "{}" {
			if err := json.Unmarshal([]byte(metadataRaw), &event.Metadata); err != nil {
				return nil, fmt.Errorf("decode change event metadata_json: %w", err)
			}
		}
		event.OccurredAt = parseTS(createdRaw)
		out = append(out, event)
	}
	return out, rows.Err()
}

// scanner represents the row contract shared by sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanProject decodes a project row.
func scanProject(s scanner) (domain.Project, error) {
	var (
		p          domain.Project
		startAt    sql.NullString
		endAt      sql.NullString
		createdRaw string
		updatedRaw string
		archived   sql.NullString
	)
	if err := s.Scan(&p.ID, &p.Slug, &p.Name, &p.Description, &p.Lead, &startAt, &endAt, &createdRaw, &updatedRaw, &archived); err != nil {
		return domain.Project{}, translateScanErr(err)
	}
	p.StartAt = parseNullTS(startAt)
	p.EndAt = parseNullTS(endAt)
	p.CreatedAt = parseTS(createdRaw)
	p.UpdatedAt = parseTS(updatedRaw)
	p.ArchivedAt = parseNullTS(archived)
	return p, nil
}

// translateNoRows maps an update or delete that touched nothing to app.ErrNotFound.
func translateNoRows(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return app.ErrNotFound
	}
	return nil
}

// translateScanErr maps sql.ErrNoRows to app.ErrNotFound.
func translateScanErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return app.ErrNotFound
	}
	return err
}

// translateWriteErr maps constraint failures to app errors.
func translateWriteErr(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"), strings.Contains(msg, "PRIMARY KEY constraint failed"):
		return fmt.Errorf("%w: %v", app.ErrConflict, err)
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return fmt.Errorf("%w: %v", app.ErrNotFound, err)
	default:
		return err
	}
}

// ts formats a timestamp for storage.
func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// nullableTS formats an optional timestamp for storage.
func nullableTS(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTS parses a stored timestamp.
func parseTS(v string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}

// parseNullTS parses an optional stored timestamp.
func parseNullTS(v sql.NullString) *time.Time {
	if !v.Valid || strings.TrimSpace(v.String) == "" {
		return nil
	}
	ts := parseTS(v.String)
	return &ts
}

// boolInt stores a bool as an integer flag.
func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
