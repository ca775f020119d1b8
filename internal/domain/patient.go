package domain

import (
	"strings"
	"time"
)

// MaxPatientAge bounds accepted patient ages.
const MaxPatientAge = 150

// Gender is the recorded patient gender letter.
type Gender string

// Gender values.
const (
	GenderMale    Gender = "M"
	GenderFemale  Gender = "F"
	GenderOther   Gender = "O"
	GenderUnknown Gender = "U"
)

// Patient represents an enrolled study participant.
type Patient struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Code      string    `json:"code"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Age       int       `json:"age"`
	Gender    Gender    `json:"gender"`
	Ethnicity string    `json:"ethnicity"`
	Site      string    `json:"site"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PatientInput holds values used to create or update a patient.
type PatientInput struct {
	ID        string
	ProjectID string
	Code      string
	FirstName string
	LastName  string
	Age       int
	Gender    Gender
	Ethnicity string
	Site      string
	Notes     string
}

// NewPatient constructs a patient. Code is required; callers generate it with FormatPatientCode.
func NewPatient(in PatientInput, now time.Time) (Patient, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.ProjectID = strings.TrimSpace(in.ProjectID)
	if in.ID == "" || in.ProjectID == "" {
		return Patient{}, ErrInvalidID
	}
	code := strings.TrimSpace(in.Code)
	if code == "" {
		return Patient{}, ErrInvalidCode
	}
	p := Patient{
		ID:        in.ID,
		ProjectID: in.ProjectID,
		Code:      code,
		CreatedAt: now.UTC(),
	}
	if err := p.UpdateDetails(in, now); err != nil {
		return Patient{}, err
	}
	return p, nil
}

// UpdateDetails updates the descriptive patient fields. The code is kept.
func (p *Patient) UpdateDetails(in PatientInput, now time.Time) error {
	first := strings.TrimSpace(in.FirstName)
	last := strings.TrimSpace(in.LastName)
	if first == "" || last == "" {
		return ErrInvalidName
	}
	if in.Age < 0 || in.Age > MaxPatientAge {
		return ErrInvalidAge
	}
	gender, err := ParseGender(string(in.Gender))
	if err != nil {
		return err
	}
	p.FirstName = first
	p.LastName = last
	p.Age = in.Age
	p.Gender = gender
	p.Ethnicity = strings.TrimSpace(in.Ethnicity)
	p.Site = strings.TrimSpace(in.Site)
	p.Notes = strings.TrimSpace(in.Notes)
	p.UpdatedAt = now.UTC()
	return nil
}

// CodeInput returns the fields a patient code is derived from.
func (p Patient) CodeInput() PatientCodeInput {
	return PatientCodeInput{
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Age:       p.Age,
		Gender:    p.Gender,
		Ethnicity: p.Ethnicity,
		Site:      p.Site,
	}
}

// ParseGender accepts single letters or full words; empty means unknown.
func ParseGender(raw string) (Gender, error) {
	g := normalizeGender(Gender(raw))
	switch g {
	case GenderMale, GenderFemale, GenderOther, GenderUnknown:
		return g, nil
	default:
		return "", ErrInvalidGender
	}
}

func normalizeGender(g Gender) Gender {
	switch strings.TrimSpace(strings.ToLower(string(g))) {
	case "m", "male":
		return GenderMale
	case "f", "female":
		return GenderFemale
	case "o", "other":
		return GenderOther
	case "", "u", "unknown":
		return GenderUnknown
	default:
		return Gender(strings.TrimSpace(string(g)))
	}
}
