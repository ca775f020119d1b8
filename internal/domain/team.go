package domain

import (
	"net/mail"
	"strings"
	"time"
)

// DayLayout is the calendar-day format used for attendance.
const DayLayout = "2006-01-02"

// TeamMember represents a lab team member.
type TeamMember struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TeamMemberInput holds values used to add a team member.
type TeamMemberInput struct {
	ID    string
	Name  string
	Email string
	Role  string
}

// NewTeamMember constructs an active team member.
func NewTeamMember(in TeamMemberInput, now time.Time) (TeamMember, error) {
	in.ID = strings.TrimSpace(in.ID)
	if in.ID == "" {
		return TeamMember{}, ErrInvalidID
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return TeamMember{}, ErrInvalidName
	}
	email := strings.TrimSpace(strings.ToLower(in.Email))
	if email != "" {
		addr, err := mail.ParseAddress(email)
		if err != nil || addr.Address != email {
			return TeamMember{}, ErrInvalidEmail
		}
	}
	ts := now.UTC()
	return TeamMember{
		ID:        in.ID,
		Name:      name,
		Email:     email,
		Role:      strings.TrimSpace(in.Role),
		Active:    true,
		CreatedAt: ts,
		UpdatedAt: ts,
	}, nil
}

// SetActive toggles whether the member counts toward attendance.
func (m *TeamMember) SetActive(active bool, now time.Time) {
	m.Active = active
	m.UpdatedAt = now.UTC()
}

// AttendanceStatus records how a member spent a day.
type AttendanceStatus string

// AttendanceStatus values.
const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceRemote  AttendanceStatus = "remote"
	AttendanceAbsent  AttendanceStatus = "absent"
	AttendanceLeave   AttendanceStatus = "leave"
)

// AttendanceRecord is one member's status for one day.
type AttendanceRecord struct {
	ID        string           `json:"id"`
	MemberID  string           `json:"member_id"`
	Day       string           `json:"day"`
	Status    AttendanceStatus `json:"status"`
	Note      string           `json:"note"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// AttendanceInput holds values used to record attendance.
type AttendanceInput struct {
	ID       string
	MemberID string
	Day      string
	Status   AttendanceStatus
	Note     string
}

// NewAttendanceRecord constructs an attendance record for a YYYY-MM-DD day.
func NewAttendanceRecord(in AttendanceInput, now time.Time) (AttendanceRecord, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.MemberID = strings.TrimSpace(in.MemberID)
	if in.ID == "" || in.MemberID == "" {
		return AttendanceRecord{}, ErrInvalidID
	}
	day, err := ParseDay(in.Day)
	if err != nil {
		return AttendanceRecord{}, err
	}
	status, err := ParseAttendanceStatus(string(in.Status))
	if err != nil {
		return AttendanceRecord{}, err
	}
	return AttendanceRecord{
		ID:        in.ID,
		MemberID:  in.MemberID,
		Day:       day.Format(DayLayout),
		Status:    status,
		Note:      strings.TrimSpace(in.Note),
		UpdatedAt: now.UTC(),
	}, nil
}

// CountsAsPresent reports whether the day counts toward attendance.
func (r AttendanceRecord) CountsAsPresent() bool {
	return r.Status == AttendancePresent || r.Status == AttendanceRemote
}

// ParseDay parses a YYYY-MM-DD calendar day in UTC.
func ParseDay(raw string) (time.Time, error) {
	day, err := time.Parse(DayLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, ErrInvalidDay
	}
	return day, nil
}

// ParseAttendanceStatus validates an attendance status.
func ParseAttendanceStatus(raw string) (AttendanceStatus, error) {
	status := AttendanceStatus(strings.TrimSpace(strings.ToLower(raw)))
	switch status {
	case AttendancePresent, AttendanceRemote, AttendanceAbsent, AttendanceLeave:
		return status, nil
	case "":
		return AttendancePresent, nil
	default:
		return "", ErrInvalidStatus
	}
}

// WorkingDays counts weekdays in the inclusive range [from, to].
func WorkingDays(from, to time.Time) int {
	if to.Before(from) {
		return 0
	}
	days := 0
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			days++
		}
	}
	return days
}
