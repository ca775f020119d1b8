package domain

import (
	"strings"
	"time"
)

// Project represents a research project owning milestones, budget lines and samples.
type Project struct {
	ID          string     `json:"id"`
	Slug        string     `json:"slug"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Lead        string     `json:"lead"`
	StartAt     *time.Time `json:"start_at,omitempty"`
	EndAt       *time.Time `json:"end_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ArchivedAt  *time.Time `json:"archived_at,omitempty"`
}

// ProjectInput holds constructor and update values for a project.
type ProjectInput struct {
	ID          string
	Name        string
	Description string
	Lead        string
	StartAt     *time.Time
	EndAt       *time.Time
}

// NewProject constructs a new value for this package.
func NewProject(in ProjectInput, now time.Time) (Project, error) {
	in.ID = strings.TrimSpace(in.ID)
	if in.ID == "" {
		return Project{}, ErrInvalidID
	}
	p := Project{
		ID:        in.ID,
		CreatedAt: now.UTC(),
	}
	if err := p.UpdateDetails(in, now); err != nil {
		return Project{}, err
	}
	return p, nil
}

// Rename renames the project and refreshes its slug.
func (p *Project) Rename(name string, now time.Time) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidName
	}
	p.Name = name
	p.Slug = normalizeSlug(name)
	p.UpdatedAt = now.UTC()
	return nil
}

// UpdateDetails updates state for the requested operation.
func (p *Project) UpdateDetails(in ProjectInput, now time.Time) error {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return ErrInvalidName
	}
	startAt := normalizeTimestamp(in.StartAt)
	endAt := normalizeTimestamp(in.EndAt)
	if startAt != nil && endAt != nil && endAt.Before(*startAt) {
		return ErrInvalidDateRange
	}
	p.Name = name
	p.Slug = normalizeSlug(name)
	p.Description = strings.TrimSpace(in.Description)
	p.Lead = strings.TrimSpace(in.Lead)
	p.StartAt = startAt
	p.EndAt = endAt
	p.UpdatedAt = now.UTC()
	return nil
}

// Archive archives the requested operation.
func (p *Project) Archive(now time.Time) {
	ts := now.UTC()
	p.ArchivedAt = &ts
	p.UpdatedAt = ts
}

// Restore restores the requested operation.
func (p *Project) Restore(now time.Time) {
	p.ArchivedAt = nil
	p.UpdatedAt = now.UTC()
}

// normalizeSlug normalizes slug.
func normalizeSlug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}

	var b strings.Builder
	prevDash := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
			prevDash = false
		case r >= '0' && r <= '9':
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}
