package mcpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/hylla/labbook/internal/adapters/server/common"
	"github.com/hylla/labbook/internal/app"
	"github.com/hylla/labbook/internal/domain"
	"github.com/mark3labs/mcp-go/mcp"
)

// stubLabService provides deterministic responses for MCP tool tests.
// Operations without an override panic through the nil embedded interface.
type stubLabService struct {
	common.LabService
	projects            []domain.Project
	mutation            common.TaskMutation
	err                 error
	lastIncludeArchived bool
	lastToggle          string
	lastCreateTask      common.CreateTaskRequest
	lastSampleType      string
	lastCollectedAt     *time.Time
	lastTable           string
	lastLimit           int
}

// ListProjects returns deterministic project rows.
func (s *stubLabService) ListProjects(_ context.Context, includeArchived bool) ([]domain.Project, error) {
	s.lastIncludeArchived = includeArchived
	if s.err != nil {
		return nil, s.err
	}
	return append([]domain.Project(nil), s.projects...), nil
}

// ProjectProgress returns a fixed one-third rollup.
func (s *stubLabService) ProjectProgress(_ context.Context, projectID string) (app.ProjectProgress, error) {
	if s.err != nil {
		return app.ProjectProgress{}, s.err
	}
	return app.ProjectProgress{
		Project: domain.Project{ID: projectID, Name: "Cohort"},
		Rollup: domain.ProjectRollup{
			Rollup:     domain.Rollup{Status: domain.StatusInProgress, Progress: 33, TotalTasks: 3, CompletedTasks: 1},
			Milestones: 1,
		},
	}, nil
}

// ToggleTask records the id and returns the fixture mutation.
func (s *stubLabService) ToggleTask(_ context.Context, taskID string) (common.TaskMutation, error) {
	s.lastToggle = taskID
	return s.mutation, s.err
}

// CreateTask records the request.
func (s *stubLabService) CreateTask(_ context.Context, req common.CreateTaskRequest) (domain.Task, error) {
	s.lastCreateTask = req
	if s.err != nil {
		return domain.Task{}, s.err
	}
	return domain.Task{ID: "t1", ActivityID: req.ActivityID, Text: req.Text, DeadlineAt: req.DeadlineAt}, nil
}

// PreviewSampleCode records the arguments.
func (s *stubLabService) PreviewSampleCode(_ context.Context, sampleType string, collectedAt *time.Time) (string, error) {
	s.lastSampleType = sampleType
	s.lastCollectedAt = collectedAt
	return "BLD-20261019-042", s.err
}

// ListChangeEvents records the filter.
func (s *stubLabService) ListChangeEvents(_ context.Context, table string, limit int) ([]domain.ChangeEvent, error) {
	s.lastTable = table
	s.lastLimit = limit
	return []domain.ChangeEvent{}, s.err
}

// jsonRPCResponse models minimal JSON-RPC response fields used in MCP adapter tests.
type jsonRPCResponse struct {
	ID     float64        `json:"id"`
	Result map[string]any `json:"result"`
}

// callToolRequest constructs one deterministic tools/call JSON-RPC request payload.
func callToolRequest(id int, toolName string, arguments map[string]any) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  "tools/call",
		"params": map[string]any{
			"name":      toolName,
			"arguments": arguments,
		},
	}
}

// toolResultText decodes the first text entry from one tool-call result payload.
func toolResultText(t *testing.T, result map[string]any) string {
	t.Helper()

	contentRaw, ok := result["content"].([]any)
	if !ok || len(contentRaw) == 0 {
		t.Fatalf("content missing in tool result: %#v", result)
	}
	first, ok := contentRaw[0].(map[string]any)
	if !ok {
		t.Fatalf("first content entry has unexpected type: %#v", contentRaw[0])
	}
	text, ok := first["text"].(string)
	if !ok {
		t.Fatalf("content text missing in tool result: %#v", first)
	}
	return text
}

// toolResultStructured decodes structuredContent as one map for stable assertions.
func toolResultStructured(t *testing.T, result map[string]any) map[string]any {
	t.Helper()
	structured, ok := result["structuredContent"].(map[string]any)
	if !ok {
		t.Fatalf("structuredContent missing in tool result: %#v", result)
	}
	return structured
}

// postJSONRPC sends one JSON-RPC payload and decodes the response body.
func postJSONRPC(t *testing.T, client *http.Client, url string, payload any) (*http.Response, jsonRPCResponse) {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	var decoded jsonRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if err := resp.Body.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return resp, decoded
}

// initializeRequest builds a deterministic MCP initialize request payload.
func initializeRequest() map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "initialize",
		"params": map[string]any{
			"protocolVersion": mcp.LATEST_PROTOCOL_VERSION,
			"clientInfo": map[string]any{
				"name":    "labbook-test",
				"version": "1.0.0",
			},
		},
	}
}

// callToolResultText decodes the first textual content block from a CallToolResult.
func callToolResultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil {
		t.Fatalf("result = nil, want non-nil")
	}
	if len(result.Content) == 0 {
		t.Fatalf("result content is empty")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content[0] has unexpected type %T", result.Content[0])
	}
	return text.Text
}

// startServer serves one handler over the stub and completes the initialize handshake.
func startServer(t *testing.T, stub *stubLabService) *httptest.Server {
	t.Helper()
	handler, err := NewHandler(Config{}, stub)
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	_, _ = postJSONRPC(t, server.Client(), server.URL, initializeRequest())
	return server
}

// TestHandlerUsesStatelessTransport verifies MCP transport does not issue session ids.
func TestHandlerUsesStatelessTransport(t *testing.T) {
	handler, err := NewHandler(Config{}, &stubLabService{})
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}

	server := httptest.NewServer(handler)
	defer server.Close()

	resp, decoded := postJSONRPC(t, server.Client(), server.URL, initializeRequest())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if decoded.ID != 1 {
		t.Fatalf("id = %v, want 1", decoded.ID)
	}
	if got := resp.Header.Get("Mcp-Session-Id"); got != "" {
		t.Fatalf("Mcp-Session-Id header = %q, want empty (stateless transport)", got)
	}
}

// TestHandlerRegistersLabTools verifies MCP tool discovery lists every lab tool.
func TestHandlerRegistersLabTools(t *testing.T) {
	server := startServer(t, &stubLabService{})
	_, toolsResp := postJSONRPC(t, server.Client(), server.URL, map[string]any{
		"jsonrpc": "2.0",
		"id":      2,
		"method":  "tools/list",
	})

	toolsRaw, ok := toolsResp.Result["tools"].([]any)
	if !ok {
		t.Fatalf("tools list payload missing tools: %#v", toolsResp.Result)
	}
	toolNames := make([]string, 0, len(toolsRaw))
	for _, toolRaw := range toolsRaw {
		toolMap, ok := toolRaw.(map[string]any)
		if !ok {
			continue
		}
		name, _ := toolMap["name"].(string)
		toolNames = append(toolNames, name)
	}
	for _, want := range []string{
		"labbook.list_projects",
		"labbook.project_progress",
		"labbook.create_task",
		"labbook.toggle_task",
		"labbook.preview_sample_code",
		"labbook.list_samples",
		"labbook.dashboard",
		"labbook.list_changes",
	} {
		if !slices.Contains(toolNames, want) {
			t.Fatalf("tool list missing %s: %#v", want, toolNames)
		}
	}
}

// TestHandlerProjectToolCalls verifies project tools forward arguments and return structured data.
func TestHandlerProjectToolCalls(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	stub := &stubLabService{
		projects: []domain.Project{{ID: "p1", Name: "Cohort", CreatedAt: now, UpdatedAt: now}},
	}
	server := startServer(t, stub)

	_, listResp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(3, "labbook.list_projects", map[string]any{
		"include_archived": true,
	}))
	structured := toolResultStructured(t, listResp.Result)
	projectsRaw, ok := structured["projects"].([]any)
	if !ok || len(projectsRaw) != 1 {
		t.Fatalf("projects = %#v, want one row", structured["projects"])
	}
	if !stub.lastIncludeArchived {
		t.Fatalf("include_archived = false, want true")
	}

	_, progressResp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(4, "labbook.project_progress", map[string]any{
		"project_id": "p1",
	}))
	progress := toolResultStructured(t, progressResp.Result)
	rollup, ok := progress["rollup"].(map[string]any)
	if !ok {
		t.Fatalf("rollup missing in %#v", progress)
	}
	if got, _ := rollup["progress"].(float64); got != 33 {
		t.Fatalf("progress = %v, want 33", rollup["progress"])
	}
	if got, _ := rollup["status"].(string); got != string(domain.StatusInProgress) {
		t.Fatalf("status = %q, want in_progress", got)
	}

	_, missingResp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(5, "labbook.project_progress", map[string]any{}))
	if isError, _ := missingResp.Result["isError"].(bool); !isError {
		t.Fatalf("isError = %v, want true", missingResp.Result["isError"])
	}
	if got := toolResultText(t, missingResp.Result); !strings.Contains(got, `required argument "project_id" not found`) {
		t.Fatalf("error text = %q, want required project_id message", got)
	}
}

// TestHandlerTaskToolCalls verifies create and toggle tools including argument validation.
func TestHandlerTaskToolCalls(t *testing.T) {
	stub := &stubLabService{
		mutation: common.TaskMutation{
			Intent: app.Intent{Key: "task:t1", State: app.IntentCommitted},
			Task:   &domain.Task{ID: "t1", Completed: true},
		},
	}
	server := startServer(t, stub)

	_, createResp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(3, "labbook.create_task", map[string]any{
		"activity_id": "a1",
		"text":        "Ship plasma to core",
		"deadline_at": "2026-11-01T17:00:00Z",
	}))
	created := toolResultStructured(t, createResp.Result)
	if got, _ := created["text"].(string); got != "Ship plasma to core" {
		t.Fatalf("text = %q", got)
	}
	if stub.lastCreateTask.DeadlineAt == nil || !stub.lastCreateTask.DeadlineAt.Equal(time.Date(2026, 11, 1, 17, 0, 0, 0, time.UTC)) {
		t.Fatalf("deadline = %v, want 2026-11-01T17:00Z", stub.lastCreateTask.DeadlineAt)
	}

	_, badDeadline := postJSONRPC(t, server.Client(), server.URL, callToolRequest(4, "labbook.create_task", map[string]any{
		"activity_id": "a1",
		"text":        "x",
		"deadline_at": "next week",
	}))
	if got := toolResultText(t, badDeadline.Result); !strings.HasPrefix(got, "invalid_request:") {
		t.Fatalf("error text = %q, want prefix invalid_request:", got)
	}

	_, missingText := postJSONRPC(t, server.Client(), server.URL, callToolRequest(5, "labbook.create_task", map[string]any{
		"activity_id": "a1",
	}))
	if got := toolResultText(t, missingText.Result); !strings.Contains(got, `"text" not found`) {
		t.Fatalf("error text = %q, want missing text message", got)
	}

	_, toggleResp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(6, "labbook.toggle_task", map[string]any{
		"task_id": "t1",
	}))
	toggled := toolResultStructured(t, toggleResp.Result)
	intent, ok := toggled["intent"].(map[string]any)
	if !ok || intent["state"] != string(app.IntentCommitted) {
		t.Fatalf("intent = %#v, want committed", toggled["intent"])
	}
	if stub.lastToggle != "t1" {
		t.Fatalf("task_id = %q, want t1", stub.lastToggle)
	}

	stub.err = errors.Join(common.ErrBusy, app.ErrOperationInFlight)
	_, busyResp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(7, "labbook.toggle_task", map[string]any{
		"task_id": "t1",
	}))
	if isError, _ := busyResp.Result["isError"].(bool); !isError {
		t.Fatalf("isError = %v, want true", busyResp.Result["isError"])
	}
	if got := toolResultText(t, busyResp.Result); !strings.HasPrefix(got, "operation_in_flight:") {
		t.Fatalf("error text = %q, want prefix operation_in_flight:", got)
	}
}

// TestHandlerInventoryAndOverviewToolCalls verifies preview and change-feed tools forward arguments.
func TestHandlerInventoryAndOverviewToolCalls(t *testing.T) {
	stub := &stubLabService{}
	server := startServer(t, stub)

	_, previewResp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(3, "labbook.preview_sample_code", map[string]any{
		"type":         "blood",
		"collected_at": "2026-10-19T08:00:00Z",
	}))
	if got, _ := toolResultStructured(t, previewResp.Result)["code"].(string); got != "BLD-20261019-042" {
		t.Fatalf("code = %q", got)
	}
	if stub.lastSampleType != "blood" || stub.lastCollectedAt == nil {
		t.Fatalf("unexpected preview args %q %v", stub.lastSampleType, stub.lastCollectedAt)
	}

	_, defaultResp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(4, "labbook.preview_sample_code", map[string]any{
		"type": "urine",
	}))
	if isError, _ := defaultResp.Result["isError"].(bool); isError {
		t.Fatalf("unexpected error %q", toolResultText(t, defaultResp.Result))
	}
	if stub.lastCollectedAt != nil {
		t.Fatalf("collected_at = %v, want nil default", stub.lastCollectedAt)
	}

	_, changesResp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(5, "labbook.list_changes", map[string]any{
		"table": "samples",
		"limit": 5,
	}))
	if _, ok := toolResultStructured(t, changesResp.Result)["events"]; !ok {
		t.Fatalf("events missing in %#v", changesResp.Result)
	}
	if stub.lastTable != "samples" || stub.lastLimit != 5 {
		t.Fatalf("filter = %q/%d, want samples/5", stub.lastTable, stub.lastLimit)
	}
}

// TestNewHandlerRequiresService verifies the service dependency is enforced.
func TestNewHandlerRequiresService(t *testing.T) {
	handler, err := NewHandler(Config{}, nil)
	if err == nil {
		t.Fatalf("NewHandler() error = nil, want non-nil")
	}
	if handler != nil {
		t.Fatalf("handler = %#v, want nil", handler)
	}
}

// TestNormalizeConfig verifies deterministic config defaults and path normalization.
func TestNormalizeConfig(t *testing.T) {
	cases := []struct {
		name string
		in   Config
		want Config
	}{
		{
			name: "defaults",
			in:   Config{},
			want: Config{ServerName: "labbook", ServerVersion: "dev", EndpointPath: "/mcp"},
		},
		{
			name: "trimmed values and slash prefix",
			in:   Config{ServerName: " labbook-server ", ServerVersion: " v1.2.3 ", EndpointPath: "custom/path"},
			want: Config{ServerName: "labbook-server", ServerVersion: "v1.2.3", EndpointPath: "/custom/path"},
		},
		{
			name: "endpoint trim of repeated slashes",
			in:   Config{ServerName: "labbook", ServerVersion: "dev", EndpointPath: "///mcp///"},
			want: Config{ServerName: "labbook", ServerVersion: "dev", EndpointPath: "/mcp"},
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeConfig(tt.in); got != tt.want {
				t.Fatalf("normalizeConfig() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

// TestHandlerServeHTTPUnavailable verifies nil handler paths fail closed with 503.
func TestHandlerServeHTTPUnavailable(t *testing.T) {
	cases := []struct {
		name    string
		handler *Handler
	}{
		{name: "nil receiver", handler: nil},
		{name: "missing inner http handler", handler: &Handler{}},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewBufferString(`{}`))
			rec := httptest.NewRecorder()

			tt.handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusServiceUnavailable {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
			}
			if !strings.Contains(rec.Body.String(), "mcp handler unavailable") {
				t.Fatalf("body = %q, want mcp handler unavailable", rec.Body.String())
			}
		})
	}
}

// TestToolResultFromErrorMapping verifies deterministic error-to-tool-result mapping.
func TestToolResultFromErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantPrefix string
	}{
		{name: "nil error", err: nil, wantPrefix: "unknown error"},
		{name: "invalid", err: errors.Join(common.ErrInvalidRequest, errors.New("bad well")), wantPrefix: "invalid_request:"},
		{name: "not found", err: errors.Join(common.ErrNotFound, errors.New("missing")), wantPrefix: "not_found:"},
		{name: "busy", err: errors.Join(common.ErrBusy, errors.New("task:t1")), wantPrefix: "operation_in_flight:"},
		{name: "conflict", err: errors.Join(common.ErrConflict, errors.New("well B3 occupied")), wantPrefix: "conflict:"},
		{name: "unavailable", err: errors.Join(common.ErrUnavailable, errors.New("commit timed out")), wantPrefix: "unavailable:"},
		{name: "internal", err: errors.New("boom"), wantPrefix: "internal_error:"},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			result := toolResultFromError(tt.err)
			if !result.IsError {
				t.Fatalf("IsError = false, want true")
			}
			if got := callToolResultText(t, result); !strings.HasPrefix(got, tt.wantPrefix) {
				t.Fatalf("text = %q, want prefix %q", got, tt.wantPrefix)
			}
		})
	}
}
