package mcpapi

import (
	"context"
	"fmt"
	"strings"

	"github.com/hylla/labbook/internal/adapters/server/common"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// registerProjectTools registers project listing and progress tools.
func registerProjectTools(srv *mcpserver.MCPServer, projects common.ProjectService) {
	srv.AddTool(
		mcp.NewTool(
			"labbook.list_projects",
			mcp.WithDescription("List lab projects."),
			mcp.WithBoolean("include_archived", mcp.Description("Include archived projects")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			rows, err := projects.ListProjects(ctx, req.GetBool("include_archived", false))
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{"projects": rows})
			if err != nil {
				return nil, fmt.Errorf("encode list_projects result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"labbook.project_progress",
			mcp.WithDescription("Return one project with its milestone tree and derived progress."),
			mcp.WithString("project_id", mcp.Required(), mcp.Description("Project identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			projectID, err := req.RequireString("project_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			progress, err := projects.ProjectProgress(ctx, projectID)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(progress)
			if err != nil {
				return nil, fmt.Errorf("encode project_progress result: %w", err)
			}
			return result, nil
		},
	)
}

// registerPlanTools registers task creation and toggling tools.
func registerPlanTools(srv *mcpserver.MCPServer, plan common.PlanService) {
	srv.AddTool(
		mcp.NewTool(
			"labbook.create_task",
			mcp.WithDescription("Add an incomplete task to an activity."),
			mcp.WithString("activity_id", mcp.Required(), mcp.Description("Activity identifier")),
			mcp.WithString("text", mcp.Required(), mcp.Description("Task text")),
			mcp.WithString("deadline_at", mcp.Description("Optional RFC3339 deadline")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args struct {
				ActivityID string `json:"activity_id"`
				Text       string `json:"text"`
				DeadlineAt string `json:"deadline_at"`
			}
			if err := req.BindArguments(&args); err != nil {
				return invalidRequestToolResult(err), nil
			}
			if strings.TrimSpace(args.ActivityID) == "" {
				return mcp.NewToolResultError(`invalid_request: required argument "activity_id" not found`), nil
			}
			if strings.TrimSpace(args.Text) == "" {
				return mcp.NewToolResultError(`invalid_request: required argument "text" not found`), nil
			}
			deadline, err := parseOptionalTime("deadline_at", args.DeadlineAt)
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			task, err := plan.CreateTask(ctx, common.CreateTaskRequest{
				ActivityID: args.ActivityID,
				Text:       args.Text,
				DeadlineAt: deadline,
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(task)
			if err != nil {
				return nil, fmt.Errorf("encode create_task result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"labbook.toggle_task",
			mcp.WithDescription("Flip one task between done and not done; the change rolls back if the store does not confirm it."),
			mcp.WithString("task_id", mcp.Required(), mcp.Description("Task identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			taskID, err := req.RequireString("task_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			mutation, err := plan.ToggleTask(ctx, taskID)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(mutation)
			if err != nil {
				return nil, fmt.Errorf("encode toggle_task result: %w", err)
			}
			return result, nil
		},
	)
}

// registerInventoryTools registers sample tools.
func registerInventoryTools(srv *mcpserver.MCPServer, inventory common.InventoryService) {
	srv.AddTool(
		mcp.NewTool(
			"labbook.preview_sample_code",
			mcp.WithDescription("Format a candidate sample code without registering anything."),
			mcp.WithString("type", mcp.Required(), mcp.Description("Sample type, for example blood or plasma")),
			mcp.WithString("collected_at", mcp.Description("Optional RFC3339 collection time; defaults to now")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			sampleType, err := req.RequireString("type")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			collectedAt, err := parseOptionalTime("collected_at", req.GetString("collected_at", ""))
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			code, err := inventory.PreviewSampleCode(ctx, sampleType, collectedAt)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{"code": code})
			if err != nil {
				return nil, fmt.Errorf("encode preview_sample_code result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"labbook.list_samples",
			mcp.WithDescription("List samples, optionally filtered by project, patient, plaquette or status."),
			mcp.WithString("project_id", mcp.Description("Project identifier")),
			mcp.WithString("patient_id", mcp.Description("Patient identifier")),
			mcp.WithString("plaquette_id", mcp.Description("Plaquette identifier")),
			mcp.WithString("status", mcp.Description("stored|in_use|consumed|discarded"), mcp.Enum("stored", "in_use", "consumed", "discarded")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			rows, err := inventory.ListSamples(ctx, common.ListSamplesRequest{
				ProjectID:   req.GetString("project_id", ""),
				PatientID:   req.GetString("patient_id", ""),
				PlaquetteID: req.GetString("plaquette_id", ""),
				Status:      req.GetString("status", ""),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{"samples": rows})
			if err != nil {
				return nil, fmt.Errorf("encode list_samples result: %w", err)
			}
			return result, nil
		},
	)
}

// registerOverviewTools registers lab-wide read tools.
func registerOverviewTools(srv *mcpserver.MCPServer, overview common.OverviewService) {
	srv.AddTool(
		mcp.NewTool(
			"labbook.dashboard",
			mcp.WithDescription("Return the lab-wide dashboard: project progress, budgets, samples, plaquettes and team."),
		),
		func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			dashboard, err := overview.Dashboard(ctx)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(dashboard)
			if err != nil {
				return nil, fmt.Errorf("encode dashboard result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"labbook.list_changes",
			mcp.WithDescription("List recent change events, newest first."),
			mcp.WithString("table", mcp.Description("Optional table filter, for example tasks or samples")),
			mcp.WithNumber("limit", mcp.Description("Maximum rows to return")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			rows, err := overview.ListChangeEvents(ctx, req.GetString("table", ""), req.GetInt("limit", 25))
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{"events": rows})
			if err != nil {
				return nil, fmt.Errorf("encode list_changes result: %w", err)
			}
			return result, nil
		},
	)
}
