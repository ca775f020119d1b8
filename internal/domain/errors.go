package domain

import "errors"

var (
	ErrInvalidID         = errors.New("invalid id")
	ErrInvalidName       = errors.New("invalid name")
	ErrInvalidText       = errors.New("invalid text")
	ErrInvalidCode       = errors.New("invalid code")
	ErrInvalidPriority   = errors.New("invalid priority")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrInvalidPosition   = errors.New("invalid position")
	ErrInvalidDateRange  = errors.New("invalid date range")
	ErrInvalidAge        = errors.New("invalid age")
	ErrInvalidGender     = errors.New("invalid gender")
	ErrInvalidSampleType = errors.New("invalid sample type")
	ErrInvalidCollection = errors.New("invalid collection time")
	ErrInvalidGeometry   = errors.New("invalid plate geometry")
	ErrInvalidWell       = errors.New("invalid well")
	ErrInvalidEmail      = errors.New("invalid email")
	ErrInvalidDay        = errors.New("invalid day")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidTable      = errors.New("invalid table")
)
