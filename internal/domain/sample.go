package domain

import (
	"strings"
	"time"
)

// SampleStatus tracks a sample through its storage lifecycle.
type SampleStatus string

// SampleStatus values.
const (
	SampleStored    SampleStatus = "stored"
	SampleInUse     SampleStatus = "in_use"
	SampleConsumed  SampleStatus = "consumed"
	SampleDiscarded SampleStatus = "discarded"
)

// Sample represents a collected biological sample.
type Sample struct {
	ID          string       `json:"id"`
	ProjectID   string       `json:"project_id"`
	PatientID   string       `json:"patient_id,omitempty"`
	Code        string       `json:"code"`
	Type        string       `json:"type"`
	CollectedAt time.Time    `json:"collected_at"`
	PlaquetteID string       `json:"plaquette_id,omitempty"`
	Well        string       `json:"well,omitempty"`
	Status      SampleStatus `json:"status"`
	Notes       string       `json:"notes"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// SampleInput holds values used to register a sample.
type SampleInput struct {
	ID          string
	ProjectID   string
	PatientID   string
	Code        string
	Type        string
	CollectedAt time.Time
	Notes       string
}

// NewSample constructs a stored, unplaced sample.
func NewSample(in SampleInput, now time.Time) (Sample, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.ProjectID = strings.TrimSpace(in.ProjectID)
	if in.ID == "" || in.ProjectID == "" {
		return Sample{}, ErrInvalidID
	}
	in.Code = strings.TrimSpace(in.Code)
	if in.Code == "" {
		return Sample{}, ErrInvalidCode
	}
	in.Type = strings.TrimSpace(strings.ToLower(in.Type))
	if in.Type == "" {
		return Sample{}, ErrInvalidSampleType
	}
	if in.CollectedAt.IsZero() || in.CollectedAt.After(now) {
		return Sample{}, ErrInvalidCollection
	}
	ts := now.UTC()
	return Sample{
		ID:          in.ID,
		ProjectID:   in.ProjectID,
		PatientID:   strings.TrimSpace(in.PatientID),
		Code:        in.Code,
		Type:        in.Type,
		CollectedAt: in.CollectedAt.UTC().Truncate(time.Second),
		Status:      SampleStored,
		Notes:       strings.TrimSpace(in.Notes),
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}, nil
}

// SetStatus moves the sample to a new lifecycle state.
// Consumed and discarded samples leave their plate.
func (s *Sample) SetStatus(status SampleStatus, now time.Time) error {
	status, err := ParseSampleStatus(string(status))
	if err != nil {
		return err
	}
	s.Status = status
	if status == SampleConsumed || status == SampleDiscarded {
		s.PlaquetteID = ""
		s.Well = ""
	}
	s.UpdatedAt = now.UTC()
	return nil
}

// Place puts the sample in a plate well after checking the plate geometry.
func (s *Sample) Place(plate Plaquette, label string, now time.Time) error {
	if s.Status == SampleConsumed || s.Status == SampleDiscarded {
		return ErrInvalidStatus
	}
	well, err := plate.ValidateWell(label)
	if err != nil {
		return err
	}
	s.PlaquetteID = plate.ID
	s.Well = well.String()
	s.UpdatedAt = now.UTC()
	return nil
}

// Unplace removes the sample from its plate.
func (s *Sample) Unplace(now time.Time) {
	s.PlaquetteID = ""
	s.Well = ""
	s.UpdatedAt = now.UTC()
}

// ParseSampleStatus validates a sample status value.
func ParseSampleStatus(raw string) (SampleStatus, error) {
	status := SampleStatus(strings.TrimSpace(strings.ToLower(raw)))
	switch status {
	case SampleStored, SampleInUse, SampleConsumed, SampleDiscarded:
		return status, nil
	case "in-use":
		return SampleInUse, nil
	default:
		return "", ErrInvalidStatus
	}
}
