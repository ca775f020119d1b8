package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Plate geometry limits and the default 96-well layout.
const (
	DefaultPlateRows    = 8
	DefaultPlateColumns = 12
	MaxPlateRows        = 26
	MaxPlateColumns     = 48
)

// Plaquette represents a sample plate with a row/column well grid.
type Plaquette struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	PlateType string    `json:"plate_type"`
	Rows      int       `json:"rows"`
	Columns   int       `json:"columns"`
	Location  string    `json:"location"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PlaquetteInput holds values used to create a plaquette.
type PlaquetteInput struct {
	ID        string
	Code      string
	Name      string
	PlateType string
	Rows      int
	Columns   int
	Location  string
}

// NewPlaquette constructs a plaquette. Zero rows and columns select the 96-well default.
func NewPlaquette(in PlaquetteInput, now time.Time) (Plaquette, error) {
	in.ID = strings.TrimSpace(in.ID)
	if in.ID == "" {
		return Plaquette{}, ErrInvalidID
	}
	in.Code = strings.TrimSpace(in.Code)
	if in.Code == "" {
		return Plaquette{}, ErrInvalidCode
	}
	if in.Rows == 0 && in.Columns == 0 {
		in.Rows, in.Columns = DefaultPlateRows, DefaultPlateColumns
	}
	if in.Rows < 1 || in.Rows > MaxPlateRows || in.Columns < 1 || in.Columns > MaxPlateColumns {
		return Plaquette{}, ErrInvalidGeometry
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = in.Code
	}
	plateType := strings.TrimSpace(in.PlateType)
	if plateType == "" {
		plateType = strconv.Itoa(in.Rows*in.Columns) + "-well"
	}
	ts := now.UTC()
	return Plaquette{
		ID:        in.ID,
		Code:      in.Code,
		Name:      name,
		PlateType: plateType,
		Rows:      in.Rows,
		Columns:   in.Columns,
		Location:  strings.TrimSpace(in.Location),
		CreatedAt: ts,
		UpdatedAt: ts,
	}, nil
}

// Capacity returns the number of wells on the plate.
func (p Plaquette) Capacity() int {
	return p.Rows * p.Columns
}

// ValidateWell parses a well label and checks it fits this plate.
func (p Plaquette) ValidateWell(label string) (Well, error) {
	well, err := ParseWell(label)
	if err != nil {
		return Well{}, err
	}
	if well.Row >= p.Rows || well.Column > p.Columns {
		return Well{}, ErrInvalidWell
	}
	return well, nil
}

// Well addresses one position on a plate. Row is zero-based, Column one-based.
type Well struct {
	Row    int
	Column int
}

// String renders the well as "B7".
func (w Well) String() string {
	return fmt.Sprintf("%c%d", 'A'+rune(w.Row), w.Column)
}

// ParseWell parses labels like "a1" or "H12".
func ParseWell(label string) (Well, error) {
	label = strings.ToUpper(strings.TrimSpace(label))
	if len(label) < 2 {
		return Well{}, ErrInvalidWell
	}
	row := label[0]
	if row < 'A' || row > 'Z' {
		return Well{}, ErrInvalidWell
	}
	col, err := strconv.Atoi(label[1:])
	if err != nil || col < 1 || col > MaxPlateColumns {
		return Well{}, ErrInvalidWell
	}
	return Well{Row: int(row - 'A'), Column: col}, nil
}
