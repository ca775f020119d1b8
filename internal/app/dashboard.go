package app

import (
	"context"
	"time"

	"github.com/hylla/labbook/internal/domain"
	"golang.org/x/sync/errgroup"
)

// Dashboard aggregates lab-wide counts and rollups.
type Dashboard struct {
	GeneratedAt     string                      `json:"generated_at"`
	Projects        []ProjectProgress           `json:"projects"`
	Budgets         []BudgetSummary             `json:"budgets"`
	Patients        int                         `json:"patients"`
	SamplesByStatus map[domain.SampleStatus]int `json:"samples_by_status"`
	Plaquettes      []PlaquetteUsage            `json:"plaquettes"`
	ActiveMembers   int                         `json:"active_members"`
}

// Dashboard loads every dashboard section concurrently. The first failing section cancels the rest.
func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	projects, err := s.repo.ListProjects(ctx, false)
	if err != nil {
		return Dashboard{}, err
	}
	out := Dashboard{
		GeneratedAt:     s.clock().UTC().Format(time.RFC3339),
		Projects:        make([]ProjectProgress, len(projects)),
		Budgets:         make([]BudgetSummary, len(projects)),
		SamplesByStatus: map[domain.SampleStatus]int{},
	}

	eg, egCtx := errgroup.WithContext(ctx)
	for i, project := range projects {
		eg.Go(func() error {
			progress, err := s.ProjectProgress(egCtx, project.ID)
			if err != nil {
				return err
			}
			out.Projects[i] = progress
			return nil
		})
		eg.Go(func() error {
			budget, err := s.BudgetSummary(egCtx, project.ID)
			if err != nil {
				return err
			}
			out.Budgets[i] = budget
			return nil
		})
	}
	eg.Go(func() error {
		patients, err := s.repo.ListPatients(egCtx, "")
		if err != nil {
			return err
		}
		out.Patients = len(patients)
		return nil
	})
	eg.Go(func() error {
		samples, err := s.repo.ListSamples(egCtx, SampleFilter{})
		if err != nil {
			return err
		}
		for _, sample := range samples {
			out.SamplesByStatus[sample.Status]++
		}
		return nil
	})
	eg.Go(func() error {
		plates, err := s.ListPlaquettes(egCtx)
		if err != nil {
			return err
		}
		out.Plaquettes = plates
		return nil
	})
	eg.Go(func() error {
		members, err := s.repo.ListTeamMembers(egCtx, false)
		if err != nil {
			return err
		}
		out.ActiveMembers = len(members)
		return nil
	})
	if err := eg.Wait(); err != nil {
		return Dashboard{}, err
	}
	return out, nil
}
