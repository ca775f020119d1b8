package sqlite

import (
	"context"
	"strings"

	"github.com/hylla/labbook/internal/domain"
)

const memberColumns = `id, name, email, role, active, created_at, updated_at`

// CreateTeamMember inserts a team member.
func (r *Repository) CreateTeamMember(ctx context.Context, m domain.TeamMember) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO team_members(`+memberColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.Name, m.Email, m.Role, boolInt(m.Active), ts(m.CreatedAt), ts(m.UpdatedAt))
	return translateWriteErr(err)
}

// UpdateTeamMember replaces a team member row.
func (r *Repository) UpdateTeamMember(ctx context.Context, m domain.TeamMember) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE team_members SET name = ?, email = ?, role = ?, active = ?, updated_at = ? WHERE id = ?
	`, m.Name, m.Email, m.Role, boolInt(m.Active), ts(m.UpdatedAt), m.ID)
	if err != nil {
		return translateWriteErr(err)
	}
	return translateNoRows(res)
}

// GetTeamMember returns a team member by id.
func (r *Repository) GetTeamMember(ctx context.Context, id string) (domain.TeamMember, error) {
	return scanMember(r.db.QueryRowContext(ctx, `SELECT `+memberColumns+` FROM team_members WHERE id = ?`, id))
}

// ListTeamMembers lists members by name.
func (r *Repository) ListTeamMembers(ctx context.Context, includeInactive bool) ([]domain.TeamMember, error) {
	query := `SELECT ` + memberColumns + ` FROM team_members`
	if !includeInactive {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY name ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.TeamMember, 0)
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// UpsertAttendance stores one record per member and day. An existing row keeps its id.
func (r *Repository) UpsertAttendance(ctx context.Context, rec domain.AttendanceRecord) (domain.AttendanceRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance(id, member_id, day, status, note, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(member_id, day) DO UPDATE SET
			status = excluded.status,
			note = excluded.note,
			updated_at = excluded.updated_at
		RETURNING id, member_id, day, status, note, updated_at
	`, rec.ID, rec.MemberID, rec.Day, string(rec.Status), rec.Note, ts(rec.UpdatedAt))
	out, err := scanAttendance(row)
	if err != nil {
		return domain.AttendanceRecord{}, translateWriteErr(err)
	}
	return out, nil
}

// ListAttendance lists records with from <= day <= to. An empty bound is open.
func (r *Repository) ListAttendance(ctx context.Context, from, to string) ([]domain.AttendanceRecord, error) {
	clauses := make([]string, 0, 2)
	args := make([]any, 0, 2)
	if strings.TrimSpace(from) != "" {
		clauses = append(clauses, "day >= ?")
		args = append(args, from)
	}
	if strings.TrimSpace(to) != "" {
		clauses = append(clauses, "day <= ?")
		args = append(args, to)
	}
	query := `SELECT id, member_id, day, status, note, updated_at FROM attendance`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY day ASC, member_id ASC`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.AttendanceRecord, 0)
	for rows.Next() {
		rec, err := scanAttendance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// scanMember decodes a team member row.
func scanMember(s scanner) (domain.TeamMember, error) {
	var (
		m          domain.TeamMember
		active     int
		createdRaw string
		updatedRaw string
	)
	if err := s.Scan(&m.ID, &m.Name, &m.Email, &m.Role, &active, &createdRaw, &updatedRaw); err != nil {
		return domain.TeamMember{}, translateScanErr(err)
	}
	m.Active = active != 0
	m.CreatedAt = parseTS(createdRaw)
	m.UpdatedAt = parseTS(updatedRaw)
	return m, nil
}

// scanAttendance decodes an attendance row.
func scanAttendance(s scanner) (domain.AttendanceRecord, error) {
	var (
		rec        domain.AttendanceRecord
		statusRaw  string
		updatedRaw string
	)
	if err := s.Scan(&rec.ID, &rec.MemberID, &rec.Day, &statusRaw, &rec.Note, &updatedRaw); err != nil {
		return domain.AttendanceRecord{}, translateScanErr(err)
	}
	rec.Status = domain.AttendanceStatus(statusRaw)
	rec.UpdatedAt = parseTS(updatedRaw)
	return rec, nil
}
