package app

import (
	"context"
	"slices"
	"strings"

	"github.com/hylla/labbook/internal/domain"
)

// AddTeamMemberInput holds input values for adding a team member.
type AddTeamMemberInput struct {
	Name  string
	Email string
	Role  string
}

// AddTeamMember creates an active team member.
func (s *Service) AddTeamMember(ctx context.Context, in AddTeamMemberInput) (domain.TeamMember, error) {
	member, err := domain.NewTeamMember(domain.TeamMemberInput{
		ID:    s.idGen(),
		Name:  in.Name,
		Email: in.Email,
		Role:  in.Role,
	}, s.clock())
	if err != nil {
		return domain.TeamMember{}, err
	}
	if err := s.repo.CreateTeamMember(ctx, member); err != nil {
		return domain.TeamMember{}, err
	}
	if err := s.recordChange(ctx, domain.TableTeamMembers, member.ID, "", domain.ChangeOperationInsert, nil); err != nil {
		return domain.TeamMember{}, err
	}
	return member, nil
}

// SetMemberActive activates or deactivates a team member.
func (s *Service) SetMemberActive(ctx context.Context, memberID string, active bool) (domain.TeamMember, error) {
	member, err := s.repo.GetTeamMember(ctx, memberID)
	if err != nil {
		return domain.TeamMember{}, err
	}
	member.SetActive(active, s.clock())
	if err := s.repo.UpdateTeamMember(ctx, member); err != nil {
		return domain.TeamMember{}, err
	}
	if err := s.recordChange(ctx, domain.TableTeamMembers, member.ID, "", domain.ChangeOperationUpdate, nil); err != nil {
		return domain.TeamMember{}, err
	}
	return member, nil
}

// ListTeamMembers lists team members.
func (s *Service) ListTeamMembers(ctx context.Context, includeInactive bool) ([]domain.TeamMember, error) {
	return s.repo.ListTeamMembers(ctx, includeInactive)
}

// RecordAttendanceInput holds input values for attendance recording.
type RecordAttendanceInput struct {
	MemberID string
	Day      string
	Status   domain.AttendanceStatus
	Note     string
}

// RecordAttendance stores a member's status for one day, replacing any earlier record.
func (s *Service) RecordAttendance(ctx context.Context, in RecordAttendanceInput) (domain.AttendanceRecord, error) {
	record, err := domain.NewAttendanceRecord(domain.AttendanceInput{
		ID:       s.idGen(),
		MemberID: in.MemberID,
		Day:      in.Day,
		Status:   in.Status,
		Note:     in.Note,
	}, s.clock())
	if err != nil {
		return domain.AttendanceRecord{}, err
	}
	if _, err := s.repo.GetTeamMember(ctx, record.MemberID); err != nil {
		return domain.AttendanceRecord{}, err
	}
	stored, err := s.repo.UpsertAttendance(ctx, record)
	if err != nil {
		return domain.AttendanceRecord{}, err
	}
	op := domain.ChangeOperationInsert
	if stored.ID != record.ID {
		op = domain.ChangeOperationUpdate
	}
	if err := s.recordChange(ctx, domain.TableAttendance, stored.ID, "", op, map[string]string{"day": stored.Day, "status": string(stored.Status)}); err != nil {
		return domain.AttendanceRecord{}, err
	}
	return stored, nil
}

// MemberAttendance summarizes one member's attendance over a day range.
type MemberAttendance struct {
	Member   domain.TeamMember      `json:"member"`
	Present  int                    `json:"present"`
	Remote   int                    `json:"remote"`
	Absent   int                    `json:"absent"`
	Leave    int                    `json:"leave"`
	Expected int                    `json:"expected"`
	Level    domain.AttendanceLevel `json:"level"`
}

// AttendanceSummary summarizes active members' attendance between two inclusive YYYY-MM-DD days.
// Leave days are removed from the expected working days.
func (s *Service) AttendanceSummary(ctx context.Context, from, to string) ([]MemberAttendance, error) {
	fromDay, err := domain.ParseDay(from)
	if err != nil {
		return nil, err
	}
	toDay, err := domain.ParseDay(to)
	if err != nil {
		return nil, err
	}
	if toDay.Before(fromDay) {
		return nil, domain.ErrInvalidDateRange
	}
	members, err := s.repo.ListTeamMembers(ctx, false)
	if err != nil {
		return nil, err
	}
	records, err := s.repo.ListAttendance(ctx, fromDay.Format(domain.DayLayout), toDay.Format(domain.DayLayout))
	if err != nil {
		return nil, err
	}
	working := domain.WorkingDays(fromDay, toDay)
	byMember := make(map[string]*MemberAttendance, len(members))
	out := make([]MemberAttendance, len(members))
	for i, member := range members {
		out[i] = MemberAttendance{Member: member}
		byMember[member.ID] = &out[i]
	}
	for _, record := range records {
		summary, ok := byMember[record.MemberID]
		if !ok {
			continue
		}
		switch record.Status {
		case domain.AttendancePresent:
			summary.Present++
		case domain.AttendanceRemote:
			summary.Remote++
		case domain.AttendanceAbsent:
			summary.Absent++
		case domain.AttendanceLeave:
			summary.Leave++
		}
	}
	for i := range out {
		out[i].Expected = max(working-out[i].Leave, 0)
		out[i].Level = domain.ClassifyAttendance(out[i].Present+out[i].Remote, out[i].Expected, s.thresholds.AttendanceMin)
	}
	slices.SortFunc(out, func(a, b MemberAttendance) int {
		return strings.Compare(a.Member.Name, b.Member.Name)
	})
	return out, nil
}
