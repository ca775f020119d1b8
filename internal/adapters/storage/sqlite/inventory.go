package sqlite

import (
	"context"
	"strings"

	"github.com/hylla/labbook/internal/app"
	"github.com/hylla/labbook/internal/domain"
)

const patientColumns = `id, project_id, code, first_name, last_name, age, gender, ethnicity, site, notes, created_at, updated_at`

const sampleColumns = `id, project_id, patient_id, code, type, collected_at, plaquette_id, well, status, notes, created_at, updated_at`

const plaquetteColumns = `id, code, name, plate_type, plate_rows, plate_columns, location, created_at, updated_at`

// CreatePatient inserts a patient. A duplicate code reports app.ErrConflict.
func (r *Repository) CreatePatient(ctx context.Context, p domain.Patient) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO patients(`+patientColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.ProjectID, p.Code, p.FirstName, p.LastName, p.Age, string(p.Gender), p.Ethnicity, p.Site, p.Notes, ts(p.CreatedAt), ts(p.UpdatedAt))
	return translateWriteErr(err)
}

// UpdatePatient replaces patient details. The code never changes.
func (r *Repository) UpdatePatient(ctx context.Context, p domain.Patient) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE patients
		SET first_name = ?, last_name = ?, age = ?, gender = ?, ethnicity = ?, site = ?, notes = ?, updated_at = ?
		WHERE id = ?
	`, p.FirstName, p.LastName, p.Age, string(p.Gender), p.Ethnicity, p.Site, p.Notes, ts(p.UpdatedAt), p.ID)
	if err != nil {
		return translateWriteErr(err)
	}
	return translateNoRows(res)
}

// GetPatient returns a patient by id.
func (r *Repository) GetPatient(ctx context.Context, id string) (domain.Patient, error) {
	return scanPatient(r.db.QueryRowContext(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = ?`, id))
}

// ListPatients lists the patients of a project, or every patient when projectID is empty.
func (r *Repository) ListPatients(ctx context.Context, projectID string) ([]domain.Patient, error) {
	query := `SELECT ` + patientColumns + ` FROM patients`
	args := []any{}
	if strings.TrimSpace(projectID) != "" {
		query += ` WHERE project_id = ?`
		args = append(args, projectID)
	}
	query += ` ORDER BY code ASC`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Patient, 0)
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CreateSample inserts a sample. A duplicate code or occupied well reports app.ErrConflict.
func (r *Repository) CreateSample(ctx context.Context, s domain.Sample) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO samples(`+sampleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.ProjectID, s.PatientID, s.Code, s.Type, ts(s.CollectedAt), s.PlaquetteID, s.Well, string(s.Status), s.Notes, ts(s.CreatedAt), ts(s.UpdatedAt))
	return translateWriteErr(err)
}

// UpdateSample replaces the mutable fields of a sample. An occupied well reports app.ErrConflict.
func (r *Repository) UpdateSample(ctx context.Context, s domain.Sample) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE samples
		SET plaquette_id = ?, well = ?, status = ?, notes = ?, updated_at = ?
		WHERE id = ?
	`, s.PlaquetteID, s.Well, string(s.Status), s.Notes, ts(s.UpdatedAt), s.ID)
	if err != nil {
		return translateWriteErr(err)
	}
	return translateNoRows(res)
}

// GetSample returns a sample by id.
func (r *Repository) GetSample(ctx context.Context, id string) (domain.Sample, error) {
	return scanSample(r.db.QueryRowContext(ctx, `SELECT `+sampleColumns+` FROM samples WHERE id = ?`, id))
}

// ListSamples lists samples matching every non-empty filter field.
func (r *Repository) ListSamples(ctx context.Context, filter app.SampleFilter) ([]domain.Sample, error) {
	clauses := make([]string, 0, 4)
	args := make([]any, 0, 4)
	add := func(column, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		clauses = append(clauses, column+" = ?")
		args = append(args, value)
	}
	add("project_id", filter.ProjectID)
	add("patient_id", filter.PatientID)
	add("plaquette_id", filter.PlaquetteID)
	add("status", string(filter.Status))

	query := `SELECT ` + sampleColumns + ` FROM samples`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY code ASC`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Sample, 0)
	for rows.Next() {
		s, err := scanSample(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CreatePlaquette inserts a plaquette. A duplicate code reports app.ErrConflict.
func (r *Repository) CreatePlaquette(ctx context.Context, p domain.Plaquette) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO plaquettes(`+plaquetteColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Code, p.Name, p.PlateType, p.Rows, p.Columns, p.Location, ts(p.CreatedAt), ts(p.UpdatedAt))
	return translateWriteErr(err)
}

// UpdatePlaquette replaces plaquette details. Code and geometry never change.
func (r *Repository) UpdatePlaquette(ctx context.Context, p domain.Plaquette) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE plaquettes SET name = ?, plate_type = ?, location = ?, updated_at = ? WHERE id = ?
	`, p.Name, p.PlateType, p.Location, ts(p.UpdatedAt), p.ID)
	if err != nil {
		return translateWriteErr(err)
	}
	return translateNoRows(res)
}

// GetPlaquette returns a plaquette by id.
func (r *Repository) GetPlaquette(ctx context.Context, id string) (domain.Plaquette, error) {
	return scanPlaquette(r.db.QueryRowContext(ctx, `SELECT `+plaquetteColumns+` FROM plaquettes WHERE id = ?`, id))
}

// ListPlaquettes lists every plaquette by code.
func (r *Repository) ListPlaquettes(ctx context.Context) ([]domain.Plaquette, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+plaquetteColumns+` FROM plaquettes ORDER BY code ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Plaquette, 0)
	for rows.Next() {
		p, err := scanPlaquette(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CountPlacedSamples returns the number of placed samples per plaquette id.
func (r *Repository) CountPlacedSamples(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT plaquette_id, COUNT(*) FROM samples WHERE plaquette_id <> '' GROUP BY plaquette_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var (
			id    string
			count int
		)
		if err := rows.Scan(&id, &count); err != nil {
			return nil, err
		}
		out[id] = count
	}
	return out, rows.Err()
}

// scanPatient decodes a patient row.
func scanPatient(s scanner) (domain.Patient, error) {
	var (
		p          domain.Patient
		genderRaw  string
		createdRaw string
		updatedRaw string
	)
	if err := s.Scan(&p.ID, &p.ProjectID, &p.Code, &p.FirstName, &p.LastName, &p.Age, &genderRaw, &p.Ethnicity, &p.Site, &p.Notes, &createdRaw, &updatedRaw); err != nil {
		return domain.Patient{}, translateScanErr(err)
	}
	p.Gender = domain.Gender(genderRaw)
	p.CreatedAt = parseTS(createdRaw)
	p.UpdatedAt = parseTS(updatedRaw)
	return p, nil
}

// scanSample decodes a sample row.
func scanSample(s scanner) (domain.Sample, error) {
	var (
		out          domain.Sample
		collectedRaw string
		statusRaw    string
		createdRaw   string
		updatedRaw   string
	)
	if err := s.Scan(&out.ID, &out.ProjectID, &out.PatientID, &out.Code, &out.Type, &collectedRaw, &out.PlaquetteID, &out.Well, &statusRaw, &out.Notes, &createdRaw, &updatedRaw); err != nil {
		return domain.Sample{}, translateScanErr(err)
	}
	out.CollectedAt = parseTS(collectedRaw)
	out.Status = domain.SampleStatus(statusRaw)
	out.CreatedAt = parseTS(createdRaw)
	out.UpdatedAt = parseTS(updatedRaw)
	return out, nil
}

// scanPlaquette decodes a plaquette row.
func scanPlaquette(s scanner) (domain.Plaquette, error) {
	var (
		p          domain.Plaquette
		createdRaw string
		updatedRaw string
	)
	if err := s.Scan(&p.ID, &p.Code, &p.Name, &p.PlateType, &p.Rows, &p.Columns, &p.Location, &createdRaw, &updatedRaw); err != nil {
		return domain.Plaquette{}, translateScanErr(err)
	}
	p.CreatedAt = parseTS(createdRaw)
	p.UpdatedAt = parseTS(updatedRaw)
	return p, nil
}
