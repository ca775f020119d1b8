package app

import (
	"context"
	"testing"

	"github.com/hylla/labbook/internal/domain"
)

func TestDashboardAggregatesSections(t *testing.T) {
	repo := newFakeRepo()
	n := 0
	svc := newTestService(repo, ServiceConfig{Suffix: func() int { n++; return n }})
	ctx := context.Background()
	project, _, tasks := seedPlan(t, svc)
	if _, err := svc.ToggleTask(ctx, tasks[0].ID); err != nil {
		t.Fatalf("ToggleTask() error = %v", err)
	}
	if _, err := svc.RegisterPatient(ctx, RegisterPatientInput{ProjectID: project.ID, FirstName: "A", LastName: "B", Age: 20}); err != nil {
		t.Fatalf("RegisterPatient() error = %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := svc.RegisterSample(ctx, RegisterSampleInput{ProjectID: project.ID, Type: "blood", CollectedAt: testNow}); err != nil {
			t.Fatalf("RegisterSample() error = %v", err)
		}
	}
	if _, err := svc.CreatePlaquette(ctx, CreatePlaquetteInput{}); err != nil {
		t.Fatalf("CreatePlaquette() error = %v", err)
	}
	if _, err := svc.AddTeamMember(ctx, AddTeamMemberInput{Name: "Ada"}); err != nil {
		t.Fatalf("AddTeamMember() error = %v", err)
	}
	if _, err := svc.CreateBudgetLine(ctx, CreateBudgetLineInput{ProjectID: project.ID, Category: "Kits", AllocatedCents: 100}); err != nil {
		t.Fatalf("CreateBudgetLine() error = %v", err)
	}

	dash, err := svc.Dashboard(ctx)
	if err != nil {
		t.Fatalf("Dashboard() error = %v", err)
	}
	if len(dash.Projects) != 1 || dash.Projects[0].Rollup.Progress != 25 {
		t.Fatalf("unexpected project section %+v", dash.Projects)
	}
	if len(dash.Budgets) != 1 || dash.Budgets[0].AllocatedCents != 100 {
		t.Fatalf("unexpected budget section %+v", dash.Budgets)
	}
	if dash.Patients != 1 || dash.SamplesByStatus[domain.SampleStored] != 2 || dash.ActiveMembers != 1 {
		t.Fatalf("unexpected counts %+v", dash)
	}
	if len(dash.Plaquettes) != 1 || dash.Plaquettes[0].Occupancy != domain.OccupancyEmpty {
		t.Fatalf("unexpected plaquettes %+v", dash.Plaquettes)
	}
	if dash.GeneratedAt != "2026-10-19T10:00:00Z" {
		t.Fatalf("GeneratedAt = %q", dash.GeneratedAt)
	}
}
