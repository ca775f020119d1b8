package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/hylla/labbook/internal/domain"
)

// DeleteMode represents a selectable mode.
type DeleteMode string

// DeleteModeArchive and related constants define package defaults.
const (
	DeleteModeArchive DeleteMode = "archive"
	DeleteModeHard    DeleteMode = "hard"
)

// DefaultCodeAttempts bounds identifier-code retries when the config leaves it unset.
const DefaultCodeAttempts = 5

// Thresholds holds the ratios used by the status-from-threshold classifiers.
type Thresholds struct {
	PlaquetteNearlyFull float64
	BudgetWarn          float64
	AttendanceMin       float64
}

// DefaultThresholds returns the built-in classifier ratios.
func DefaultThresholds() Thresholds {
	return Thresholds{
		PlaquetteNearlyFull: 0.9,
		BudgetWarn:          0.8,
		AttendanceMin:       0.8,
	}
}

// ServiceConfig holds configuration for service.
type ServiceConfig struct {
	DefaultDeleteMode DeleteMode
	CodeAttempts      int
	Thresholds        Thresholds
	Feed              *ChangeFeed
	Suffix            SuffixSource
}

// IDGenerator returns unique identifiers for new entities.
type IDGenerator func() string

// Clock returns the current time.
type Clock func() time.Time

// SuffixSource returns the numeric suffix for generated codes.
type SuffixSource func() int

// Service represents service data used by this package.
type Service struct {
	repo              Repository
	idGen             IDGenerator
	clock             Clock
	suffix            SuffixSource
	feed              *ChangeFeed
	defaultDeleteMode DeleteMode
	codeAttempts      int
	thresholds        Thresholds
}

// NewService constructs a new value for this package.
func NewService(repo Repository, idGen IDGenerator, clock Clock, cfg ServiceConfig) *Service {
	if idGen == nil {
		idGen = func() string { return "" }
	}
	if clock == nil {
		clock = time.Now
	}
	if cfg.DefaultDeleteMode == "" {
		cfg.DefaultDeleteMode = DeleteModeArchive
	}
	if cfg.CodeAttempts <= 0 {
		cfg.CodeAttempts = DefaultCodeAttempts
	}
	if cfg.Thresholds == (Thresholds{}) {
		cfg.Thresholds = DefaultThresholds()
	}
	if cfg.Feed == nil {
		cfg.Feed = NewChangeFeed()
	}
	if cfg.Suffix == nil {
		cfg.Suffix = func() int { return rand.IntN(domain.CodeSuffixRange) }
	}

	return &Service{
		repo:              repo,
		idGen:             idGen,
		clock:             clock,
		suffix:            cfg.Suffix,
		feed:              cfg.Feed,
		defaultDeleteMode: cfg.DefaultDeleteMode,
		codeAttempts:      cfg.CodeAttempts,
		thresholds:        cfg.Thresholds,
	}
}

// Feed returns the change feed the service publishes to.
func (s *Service) Feed() *ChangeFeed {
	return s.feed
}

// CreateProjectInput holds input values for create project operations.
type CreateProjectInput struct {
	Name        string
	Description string
	Lead        string
	StartAt     *time.Time
	EndAt       *time.Time
}

// CreateProject creates project.
func (s *Service) CreateProject(ctx context.Context, in CreateProjectInput) (domain.Project, error) {
	project, err := domain.NewProject(domain.ProjectInput{
		ID:          s.idGen(),
		Name:        in.Name,
		Description: in.Description,
		Lead:        in.Lead,
		StartAt:     in.StartAt,
		EndAt:       in.EndAt,
	}, s.clock())
	if err != nil {
		return domain.Project{}, err
	}
	if err := s.repo.CreateProject(ctx, project); err != nil {
		return domain.Project{}, err
	}
	if err := s.recordChange(ctx, domain.TableProjects, project.ID, project.ID, domain.ChangeOperationInsert, nil); err != nil {
		return domain.Project{}, err
	}
	return project, nil
}

// UpdateProjectInput holds input values for update project operations.
type UpdateProjectInput struct {
	ProjectID   string
	Name        string
	Description string
	Lead        string
	StartAt     *time.Time
	EndAt       *time.Time
}

// UpdateProject updates state for the requested operation.
func (s *Service) UpdateProject(ctx context.Context, in UpdateProjectInput) (domain.Project, error) {
	project, err := s.repo.GetProject(ctx, in.ProjectID)
	if err != nil {
		return domain.Project{}, err
	}
	if err := project.UpdateDetails(domain.ProjectInput{
		ID:          project.ID,
		Name:        in.Name,
		Description: in.Description,
		Lead:        in.Lead,
		StartAt:     in.StartAt,
		EndAt:       in.EndAt,
	}, s.clock()); err != nil {
		return domain.Project{}, err
	}
	if err := s.repo.UpdateProject(ctx, project); err != nil {
		return domain.Project{}, err
	}
	if err := s.recordChange(ctx, domain.TableProjects, project.ID, project.ID, domain.ChangeOperationUpdate, nil); err != nil {
		return domain.Project{}, err
	}
	return project, nil
}

// ArchiveProject archives project.
func (s *Service) ArchiveProject(ctx context.Context, projectID string) (domain.Project, error) {
	project, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	project.Archive(s.clock())
	if err := s.repo.UpdateProject(ctx, project); err != nil {
		return domain.Project{}, err
	}
	if err := s.recordChange(ctx, domain.TableProjects, project.ID, project.ID, domain.ChangeOperationUpdate, map[string]string{"archived": "true"}); err != nil {
		return domain.Project{}, err
	}
	return project, nil
}

// RestoreProject restores project.
func (s *Service) RestoreProject(ctx context.Context, projectID string) (domain.Project, error) {
	project, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	project.Restore(s.clock())
	if err := s.repo.UpdateProject(ctx, project); err != nil {
		return domain.Project{}, err
	}
	if err := s.recordChange(ctx, domain.TableProjects, project.ID, project.ID, domain.ChangeOperationUpdate, map[string]string{"archived": "false"}); err != nil {
		return domain.Project{}, err
	}
	return project, nil
}

// DeleteProject deletes project.
func (s *Service) DeleteProject(ctx context.Context, projectID string, mode DeleteMode) error {
	if mode == "" {
		mode = s.defaultDeleteMode
	}
	switch mode {
	case DeleteModeArchive:
		_, err := s.ArchiveProject(ctx, projectID)
		return err
	case DeleteModeHard:
		if _, err := s.repo.GetProject(ctx, projectID); err != nil {
			return err
		}
		if err := s.repo.DeleteProject(ctx, projectID); err != nil {
			return err
		}
		return s.recordChange(ctx, domain.TableProjects, projectID, projectID, domain.ChangeOperationDelete, nil)
	default:
		return ErrInvalidDeleteMode
	}
}

// GetProject returns project.
func (s *Service) GetProject(ctx context.Context, projectID string) (domain.Project, error) {
	return s.repo.GetProject(ctx, strings.TrimSpace(projectID))
}

// ListProjects lists projects.
func (s *Service) ListProjects(ctx context.Context, includeArchived bool) ([]domain.Project, error) {
	return s.repo.ListProjects(ctx, includeArchived)
}

// ListChangeEvents lists the newest change events, optionally for one table.
func (s *Service) ListChangeEvents(ctx context.Context, table string, limit int) ([]domain.ChangeEvent, error) {
	t, err := domain.ParseTable(table)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	return s.repo.ListChangeEvents(ctx, t, limit)
}

// recordChange appends one ledger row and publishes it to feed subscribers.
func (s *Service) recordChange(ctx context.Context, table domain.Table, recordID, projectID string, op domain.ChangeOperation, metadata map[string]string) error {
	event, err := s.repo.AppendChangeEvent(ctx, domain.ChangeEvent{
		Table:      table,
		RecordID:   recordID,
		ProjectID:  projectID,
		Operation:  op,
		Metadata:   metadata,
		OccurredAt: s.clock().UTC(),
	})
	if err != nil {
		return fmt.Errorf("record %s change: %w", table, err)
	}
	s.feed.Publish(event)
	return nil
}

// withUniqueCode formats a code with a fresh suffix and retries insert on conflict.
func (s *Service) withUniqueCode(format func(suffix int) string, insert func(code string) error) (string, error) {
	for attempt := 0; attempt < s.codeAttempts; attempt++ {
		code := format(s.suffix())
		err := insert(code)
		if err == nil {
			return code, nil
		}
		if !errors.Is(err, ErrConflict) {
			return "", err
		}
	}
	return "", fmt.Errorf("%w after %d attempts", ErrCodeExhausted, s.codeAttempts)
}
