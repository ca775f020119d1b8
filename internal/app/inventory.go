package app

import (
	"context"
	"strings"
	"time"

	"github.com/hylla/labbook/internal/domain"
)

// RegisterPatientInput holds input values for patient registration.
type RegisterPatientInput struct {
	ProjectID string
	FirstName string
	LastName  string
	Age       int
	Gender    domain.Gender
	Ethnicity string
	Site      string
	Notes     string
}

// RegisterPatient creates a patient with a generated code.
func (s *Service) RegisterPatient(ctx context.Context, in RegisterPatientInput) (domain.Patient, error) {
	projectID := strings.TrimSpace(in.ProjectID)
	if _, err := s.repo.GetProject(ctx, projectID); err != nil {
		return domain.Patient{}, err
	}
	now := s.clock()
	id := s.idGen()
	var patient domain.Patient
	codeInput := domain.PatientCodeInput{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Age:       in.Age,
		Gender:    in.Gender,
		Ethnicity: in.Ethnicity,
		Site:      in.Site,
	}
	_, err := s.withUniqueCode(
		func(suffix int) string { return domain.FormatPatientCode(codeInput, suffix) },
		func(code string) error {
			p, err := domain.NewPatient(domain.PatientInput{
				ID:        id,
				ProjectID: projectID,
				Code:      code,
				FirstName: in.FirstName,
				LastName:  in.LastName,
				Age:       in.Age,
				Gender:    in.Gender,
				Ethnicity: in.Ethnicity,
				Site:      in.Site,
				Notes:     in.Notes,
			}, now)
			if err != nil {
				return err
			}
			if err := s.repo.CreatePatient(ctx, p); err != nil {
				return err
			}
			patient = p
			return nil
		},
	)
	if err != nil {
		return domain.Patient{}, err
	}
	if err := s.recordChange(ctx, domain.TablePatients, patient.ID, projectID, domain.ChangeOperationInsert, map[string]string{"code": patient.Code}); err != nil {
		return domain.Patient{}, err
	}
	return patient, nil
}

// UpdatePatientInput holds input values for patient updates.
type UpdatePatientInput struct {
	PatientID string
	FirstName string
	LastName  string
	Age       int
	Gender    domain.Gender
	Ethnicity string
	Site      string
	Notes     string
}

// UpdatePatient updates descriptive patient fields. The code is never regenerated.
func (s *Service) UpdatePatient(ctx context.Context, in UpdatePatientInput) (domain.Patient, error) {
	patient, err := s.repo.GetPatient(ctx, in.PatientID)
	if err != nil {
		return domain.Patient{}, err
	}
	if err := patient.UpdateDetails(domain.PatientInput{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Age:       in.Age,
		Gender:    in.Gender,
		Ethnicity: in.Ethnicity,
		Site:      in.Site,
		Notes:     in.Notes,
	}, s.clock()); err != nil {
		return domain.Patient{}, err
	}
	if err := s.repo.UpdatePatient(ctx, patient); err != nil {
		return domain.Patient{}, err
	}
	if err := s.recordChange(ctx, domain.TablePatients, patient.ID, patient.ProjectID, domain.ChangeOperationUpdate, nil); err != nil {
		return domain.Patient{}, err
	}
	return patient, nil
}

// ListPatients lists patients, optionally for one project.
func (s *Service) ListPatients(ctx context.Context, projectID string) ([]domain.Patient, error) {
	return s.repo.ListPatients(ctx, strings.TrimSpace(projectID))
}

// PreviewPatientCode formats a candidate patient code without persisting anything.
func (s *Service) PreviewPatientCode(in domain.PatientCodeInput) string {
	return domain.FormatPatientCode(in, s.suffix())
}

// RegisterSampleInput holds input values for sample registration.
type RegisterSampleInput struct {
	ProjectID   string
	PatientID   string
	Type        string
	CollectedAt time.Time
	Notes       string
}

// RegisterSample creates a stored sample with a generated code.
func (s *Service) RegisterSample(ctx context.Context, in RegisterSampleInput) (domain.Sample, error) {
	projectID := strings.TrimSpace(in.ProjectID)
	if _, err := s.repo.GetProject(ctx, projectID); err != nil {
		return domain.Sample{}, err
	}
	if patientID := strings.TrimSpace(in.PatientID); patientID != "" {
		patient, err := s.repo.GetPatient(ctx, patientID)
		if err != nil {
			return domain.Sample{}, err
		}
		if patient.ProjectID != projectID {
			return domain.Sample{}, ErrNotFound
		}
	}
	now := s.clock()
	collectedAt := in.CollectedAt
	if collectedAt.IsZero() {
		collectedAt = now
	}
	id := s.idGen()
	var sample domain.Sample
	_, err := s.withUniqueCode(
		func(suffix int) string { return domain.FormatSampleCode(in.Type, collectedAt, suffix) },
		func(code string) error {
			smp, err := domain.NewSample(domain.SampleInput{
				ID:          id,
				ProjectID:   projectID,
				PatientID:   in.PatientID,
				Code:        code,
				Type:        in.Type,
				CollectedAt: collectedAt,
				Notes:       in.Notes,
			}, now)
			if err != nil {
				return err
			}
			if err := s.repo.CreateSample(ctx, smp); err != nil {
				return err
			}
			sample = smp
			return nil
		},
	)
	if err != nil {
		return domain.Sample{}, err
	}
	if err := s.recordChange(ctx, domain.TableSamples, sample.ID, projectID, domain.ChangeOperationInsert, map[string]string{"code": sample.Code}); err != nil {
		return domain.Sample{}, err
	}
	return sample, nil
}

// SetSampleStatus moves a sample through its lifecycle.
func (s *Service) SetSampleStatus(ctx context.Context, sampleID string, status domain.SampleStatus) (domain.Sample, error) {
	sample, err := s.repo.GetSample(ctx, sampleID)
	if err != nil {
		return domain.Sample{}, err
	}
	if err := sample.SetStatus(status, s.clock()); err != nil {
		return domain.Sample{}, err
	}
	if err := s.repo.UpdateSample(ctx, sample); err != nil {
		return domain.Sample{}, err
	}
	if err := s.recordChange(ctx, domain.TableSamples, sample.ID, sample.ProjectID, domain.ChangeOperationUpdate, map[string]string{"status": string(sample.Status)}); err != nil {
		return domain.Sample{}, err
	}
	return sample, nil
}

// PlaceSample puts a sample into a plaquette well. An empty plaquette id removes it from its plate.
// An occupied well surfaces as ErrConflict from the store.
func (s *Service) PlaceSample(ctx context.Context, sampleID, plaquetteID, well string) (domain.Sample, error) {
	sample, err := s.repo.GetSample(ctx, sampleID)
	if err != nil {
		return domain.Sample{}, err
	}
	now := s.clock()
	if strings.TrimSpace(plaquetteID) == "" {
		sample.Unplace(now)
	} else {
		plate, err := s.repo.GetPlaquette(ctx, strings.TrimSpace(plaquetteID))
		if err != nil {
			return domain.Sample{}, err
		}
		if err := sample.Place(plate, well, now); err != nil {
			return domain.Sample{}, err
		}
	}
	if err := s.repo.UpdateSample(ctx, sample); err != nil {
		return domain.Sample{}, err
	}
	metadata := map[string]string{"plaquette_id": sample.PlaquetteID, "well": sample.Well}
	if err := s.recordChange(ctx, domain.TableSamples, sample.ID, sample.ProjectID, domain.ChangeOperationUpdate, metadata); err != nil {
		return domain.Sample{}, err
	}
	return sample, nil
}

// ListSamples lists samples matching the filter.
func (s *Service) ListSamples(ctx context.Context, filter SampleFilter) ([]domain.Sample, error) {
	if filter.Status != "" {
		status, err := domain.ParseSampleStatus(string(filter.Status))
		if err != nil {
			return nil, err
		}
		filter.Status = status
	}
	filter.ProjectID = strings.TrimSpace(filter.ProjectID)
	filter.PatientID = strings.TrimSpace(filter.PatientID)
	filter.PlaquetteID = strings.TrimSpace(filter.PlaquetteID)
	return s.repo.ListSamples(ctx, filter)
}

// PreviewSampleCode formats a candidate sample code without persisting anything.
func (s *Service) PreviewSampleCode(sampleType string, collectedAt time.Time) string {
	if collectedAt.IsZero() {
		collectedAt = s.clock()
	}
	return domain.FormatSampleCode(sampleType, collectedAt, s.suffix())
}

// CreatePlaquetteInput holds input values for plaquette creation.
type CreatePlaquetteInput struct {
	Name      string
	PlateType string
	Rows      int
	Columns   int
	Location  string
}

// CreatePlaquette creates a plate with a generated code.
func (s *Service) CreatePlaquette(ctx context.Context, in CreatePlaquetteInput) (domain.Plaquette, error) {
	now := s.clock()
	id := s.idGen()
	rows, columns := in.Rows, in.Columns
	if rows == 0 && columns == 0 {
		rows, columns = domain.DefaultPlateRows, domain.DefaultPlateColumns
	}
	var plate domain.Plaquette
	_, err := s.withUniqueCode(
		func(suffix int) string { return domain.FormatPlaquetteCode(rows*columns, now, suffix) },
		func(code string) error {
			p, err := domain.NewPlaquette(domain.PlaquetteInput{
				ID:        id,
				Code:      code,
				Name:      in.Name,
				PlateType: in.PlateType,
				Rows:      rows,
				Columns:   columns,
				Location:  in.Location,
			}, now)
			if err != nil {
				return err
			}
			if err := s.repo.CreatePlaquette(ctx, p); err != nil {
				return err
			}
			plate = p
			return nil
		},
	)
	if err != nil {
		return domain.Plaquette{}, err
	}
	if err := s.recordChange(ctx, domain.TablePlaquettes, plate.ID, "", domain.ChangeOperationInsert, map[string]string{"code": plate.Code}); err != nil {
		return domain.Plaquette{}, err
	}
	return plate, nil
}

// PlaquetteUsage pairs a plate with its current occupancy.
type PlaquetteUsage struct {
	Plaquette domain.Plaquette `json:"plaquette"`
	Used      int              `json:"used"`
	Capacity  int              `json:"capacity"`
	Occupancy domain.Occupancy `json:"occupancy"`
}

// ListPlaquettes lists plates with their occupancy classification.
func (s *Service) ListPlaquettes(ctx context.Context) ([]PlaquetteUsage, error) {
	plates, err := s.repo.ListPlaquettes(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := s.repo.CountPlacedSamples(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]PlaquetteUsage, 0, len(plates))
	for _, plate := range plates {
		used := counts[plate.ID]
		out = append(out, PlaquetteUsage{
			Plaquette: plate,
			Used:      used,
			Capacity:  plate.Capacity(),
			Occupancy: domain.ClassifyOccupancy(used, plate.Capacity(), s.thresholds.PlaquetteNearlyFull),
		})
	}
	return out, nil
}

// PreviewPlaquetteCode formats a candidate plate code without persisting anything.
func (s *Service) PreviewPlaquetteCode(rows, columns int) string {
	if rows == 0 && columns == 0 {
		rows, columns = domain.DefaultPlateRows, domain.DefaultPlateColumns
	}
	return domain.FormatPlaquetteCode(rows*columns, s.clock(), s.suffix())
}
