package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/hylla/labbook/internal/adapters/server/common"
	"github.com/hylla/labbook/internal/adapters/storage/sqlite"
	"github.com/hylla/labbook/internal/app"
	"github.com/hylla/labbook/internal/domain"
)

var handlerNow = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

// stubLabService overrides a few operations; calling anything else panics on the nil embedded interface.
type stubLabService struct {
	common.LabService
	err          error
	mutation     common.TaskMutation
	lastProject  string
	lastSamples  common.ListSamplesRequest
	lastIncluded bool
}

// GetProject records the id and returns the configured error.
func (s *stubLabService) GetProject(_ context.Context, projectID string) (domain.Project, error) {
	s.lastProject = projectID
	if s.err != nil {
		return domain.Project{}, s.err
	}
	return domain.Project{ID: projectID, Name: "Cohort"}, nil
}

// ListProjects records the archive flag.
func (s *stubLabService) ListProjects(_ context.Context, includeArchived bool) ([]domain.Project, error) {
	s.lastIncluded = includeArchived
	return []domain.Project{}, s.err
}

// ListSamples records the filter.
func (s *stubLabService) ListSamples(_ context.Context, req common.ListSamplesRequest) ([]domain.Sample, error) {
	s.lastSamples = req
	return []domain.Sample{}, s.err
}

// ToggleTask returns the configured mutation and error.
func (s *stubLabService) ToggleTask(context.Context, string) (common.TaskMutation, error) {
	return s.mutation, s.err
}

// stubNotifications returns fixed notifications.
type stubNotifications struct {
	items     []app.Notification
	lastLimit int
}

// Recent records the limit and returns the fixture.
func (s *stubNotifications) Recent(limit int) []app.Notification {
	s.lastLimit = limit
	return s.items
}

// newLiveHandler wires the handler over a real adapter and in-memory store.
func newLiveHandler(t *testing.T) *Handler {
	t.Helper()
	repo, err := sqlite.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close()
	})
	ids, suffix := 0, 0
	svc := app.NewService(repo, func() string {
		ids++
		return fmt.Sprintf("id-%d", ids)
	}, func() time.Time { return handlerNow }, app.ServiceConfig{
		Suffix: func() int {
			suffix++
			return suffix
		},
	})
	tracker := app.NewTracker(svc, app.NewIntents(time.Second, func() time.Time { return handlerNow }), nil)
	t.Cleanup(tracker.Close)
	return NewHandler(common.NewAppServiceAdapter(svc, tracker), nil)
}

// do sends one request through the handler and returns the recorder.
func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// decodeBody decodes one JSON response body into the requested type.
func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	return out
}

// TestHandlerPlanFlow verifies the project, plan and toggle endpoints end to end.
func TestHandlerPlanFlow(t *testing.T) {
	h := newLiveHandler(t)

	rec := do(t, h, http.MethodPost, "/projects", `{"name":"Sepsis cohort","lead":"Dr. Roux"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create project status = %d, body %s", rec.Code, rec.Body.String())
	}
	project := decodeBody[domain.Project](t, rec)

	rec = do(t, h, http.MethodPost, "/projects/"+project.ID+"/milestones", `{"name":"Recruitment","priority":"high"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create milestone status = %d, body %s", rec.Code, rec.Body.String())
	}
	milestone := decodeBody[domain.Milestone](t, rec)
	if milestone.ProjectID != project.ID {
		t.Fatalf("milestone project = %q, want %q", milestone.ProjectID, project.ID)
	}

	rec = do(t, h, http.MethodPost, "/milestones/"+milestone.ID+"/activities", `{"name":"Screening"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create activity status = %d, body %s", rec.Code, rec.Body.String())
	}
	activity := decodeBody[domain.Activity](t, rec)

	var tasks []domain.Task
	for _, text := range []string{"Consent", "Bloods", "Questionnaire"} {
		rec = do(t, h, http.MethodPost, "/activities/"+activity.ID+"/tasks", fmt.Sprintf(`{"text":%q}`, text))
		if rec.Code != http.StatusCreated {
			t.Fatalf("create task status = %d, body %s", rec.Code, rec.Body.String())
		}
		tasks = append(tasks, decodeBody[domain.Task](t, rec))
	}

	rec = do(t, h, http.MethodPost, "/tasks/"+tasks[0].ID+"/toggle", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("toggle status = %d, body %s", rec.Code, rec.Body.String())
	}
	mutation := decodeBody[common.TaskMutation](t, rec)
	if mutation.Intent.State != app.IntentCommitted || mutation.Task == nil || !mutation.Task.Completed {
		t.Fatalf("unexpected toggle mutation %#v", mutation)
	}

	rec = do(t, h, http.MethodGet, "/projects/"+project.ID+"/progress", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("progress status = %d, body %s", rec.Code, rec.Body.String())
	}
	progress := decodeBody[app.ProjectProgress](t, rec)
	want := domain.Rollup{Status: domain.StatusInProgress, Progress: 33, TotalTasks: 3, CompletedTasks: 1}
	if diff := cmp.Diff(want, progress.Rollup.Rollup); diff != "" {
		t.Fatalf("rollup mismatch (-want +got):\n%s", diff)
	}

	rec = do(t, h, http.MethodDelete, "/tasks/"+tasks[1].ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d, body %s", rec.Code, rec.Body.String())
	}
	rec = do(t, h, http.MethodGet, "/projects/"+project.ID+"/milestones", "")
	milestones := decodeBody[[]domain.Milestone](t, rec)
	if len(milestones) != 1 || milestones[0].Progress != 50 {
		t.Fatalf("expected 1 of 2 tasks done after delete, got %#v", milestones)
	}

	rec = do(t, h, http.MethodGet, "/changes?table=tasks&limit=2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("changes status = %d, body %s", rec.Code, rec.Body.String())
	}
	events := decodeBody[[]domain.ChangeEvent](t, rec)
	if len(events) != 2 || events[0].Operation != domain.ChangeOperationDelete {
		t.Fatalf("expected newest task delete first, got %#v", events)
	}
}

// TestHandlerInventoryFlow verifies patient and sample registration, previews and well conflicts.
func TestHandlerInventoryFlow(t *testing.T) {
	h := newLiveHandler(t)

	project := decodeBody[domain.Project](t, do(t, h, http.MethodPost, "/projects", `{"name":"Biobank"}`))

	rec := do(t, h, http.MethodGet, "/patients/code-preview?first_name=Jane&last_name=Smith&age=31&gender=female&ethnicity=Asian&site=Lyon", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("preview status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := decodeBody[map[string]string](t, rec)["code"]; got != "JS-31-F-ASI-LYO-001" {
		t.Fatalf("preview code = %q", got)
	}

	rec = do(t, h, http.MethodPost, "/patients", fmt.Sprintf(`{"project_id":%q,"first_name":"Jane","last_name":"Smith","age":31,"gender":"F"}`, project.ID))
	if rec.Code != http.StatusCreated {
		t.Fatalf("register patient status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/samples/code-preview?type=serum&collected_at=2026-10-18", "")
	if got := decodeBody[map[string]string](t, rec)["code"]; got != "SER-20261018-003" {
		t.Fatalf("sample preview code = %q", got)
	}

	var samples []domain.Sample
	for i := 0; i < 2; i++ {
		rec = do(t, h, http.MethodPost, "/samples", fmt.Sprintf(`{"project_id":%q,"type":"blood"}`, project.ID))
		if rec.Code != http.StatusCreated {
			t.Fatalf("register sample status = %d, body %s", rec.Code, rec.Body.String())
		}
		samples = append(samples, decodeBody[domain.Sample](t, rec))
	}
	plate := decodeBody[domain.Plaquette](t, do(t, h, http.MethodPost, "/plaquettes", ""))
	if plate.Rows != domain.DefaultPlateRows || plate.Columns != domain.DefaultPlateColumns {
		t.Fatalf("expected default geometry, got %dx%d", plate.Rows, plate.Columns)
	}

	body := fmt.Sprintf(`{"plaquette_id":%q,"well":"a1"}`, plate.ID)
	rec = do(t, h, http.MethodPost, "/samples/"+samples[0].ID+"/status", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("place status = %d, body %s", rec.Code, rec.Body.String())
	}
	rec = do(t, h, http.MethodPost, "/samples/"+samples[1].ID+"/status", body)
	if rec.Code != http.StatusConflict {
		t.Fatalf("occupied well status = %d, want %d", rec.Code, http.StatusConflict)
	}
	if got := decodeBody[ErrorEnvelope](t, rec).Error.Code; got != "conflict" {
		t.Fatalf("error code = %q, want conflict", got)
	}

	rec = do(t, h, http.MethodGet, "/plaquettes", "")
	plates := decodeBody[[]app.PlaquetteUsage](t, rec)
	if len(plates) != 1 || plates[0].Used != 1 {
		t.Fatalf("expected one used well, got %#v", plates)
	}
}

// TestHandlerErrorMapping verifies structured status mapping for adapter errors.
func TestHandlerErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "not found", err: fmt.Errorf("get project: %w", common.ErrNotFound), wantStatus: http.StatusNotFound, wantCode: "not_found"},
		{name: "invalid", err: common.ErrInvalidRequest, wantStatus: http.StatusBadRequest, wantCode: "invalid_request"},
		{name: "conflict", err: common.ErrConflict, wantStatus: http.StatusConflict, wantCode: "conflict"},
		{name: "busy", err: common.ErrBusy, wantStatus: http.StatusConflict, wantCode: "operation_in_flight"},
		{name: "unavailable", err: common.ErrUnavailable, wantStatus: http.StatusServiceUnavailable, wantCode: "unavailable"},
		{name: "unknown", err: errors.New("disk on fire"), wantStatus: http.StatusInternalServerError, wantCode: "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stub := &stubLabService{err: tc.err}
			rec := do(t, NewHandler(stub, nil), http.MethodGet, "/projects/p1", "")
			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			if got := decodeBody[ErrorEnvelope](t, rec).Error.Code; got != tc.wantCode {
				t.Fatalf("code = %q, want %q", got, tc.wantCode)
			}
			if stub.lastProject != "p1" {
				t.Fatalf("project id = %q, want p1", stub.lastProject)
			}
		})
	}
}

// TestHandlerToggleFailureCarriesIntent verifies rolled-back intents surface in the error context.
func TestHandlerToggleFailureCarriesIntent(t *testing.T) {
	stub := &stubLabService{
		err:      fmt.Errorf("toggle task: %w", common.ErrUnavailable),
		mutation: common.TaskMutation{Intent: app.Intent{Key: "task:t1", State: app.IntentRolledBack}},
	}
	rec := do(t, NewHandler(stub, nil), http.MethodPost, "/tasks/t1/toggle", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	env := decodeBody[ErrorEnvelope](t, rec)
	if env.Error.Context["intent_state"] != string(app.IntentRolledBack) || env.Error.Context["intent_key"] != "task:t1" {
		t.Fatalf("unexpected error context %#v", env.Error.Context)
	}
}

// TestHandlerRequestValidation verifies bad bodies and queries fail closed.
func TestHandlerRequestValidation(t *testing.T) {
	stub := &stubLabService{}
	h := NewHandler(stub, nil)

	cases := []struct {
		name   string
		method string
		target string
		body   string
		want   int
	}{
		{name: "unknown field", method: http.MethodPost, target: "/projects", body: `{"name":"x","owner":"y"}`, want: http.StatusBadRequest},
		{name: "trailing content", method: http.MethodPost, target: "/projects", body: `{"name":"x"}{}`, want: http.StatusBadRequest},
		{name: "bad bool", method: http.MethodGet, target: "/projects?include_archived=maybe", want: http.StatusBadRequest},
		{name: "bad age", method: http.MethodGet, target: "/patients/code-preview?age=old", want: http.StatusBadRequest},
		{name: "bad limit", method: http.MethodGet, target: "/changes?limit=-1", want: http.StatusBadRequest},
		{name: "bad time", method: http.MethodGet, target: "/samples/code-preview?type=blood&collected_at=yesterday", want: http.StatusBadRequest},
		{name: "unknown route", method: http.MethodGet, target: "/reports", want: http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h, tc.method, tc.target, tc.body)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d, body %s", rec.Code, tc.want, rec.Body.String())
			}
		})
	}

	rec := do(t, h, http.MethodGet, "/projects?include_archived=true", "")
	if rec.Code != http.StatusOK || !stub.lastIncluded {
		t.Fatalf("include_archived not forwarded, status %d", rec.Code)
	}
	rec = do(t, h, http.MethodGet, "/samples?plaquette_id=%20plq-1%20&status=stored", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list samples status = %d", rec.Code)
	}
	if diff := cmp.Diff(common.ListSamplesRequest{PlaquetteID: "plq-1", Status: "stored"}, stub.lastSamples); diff != "" {
		t.Fatalf("filter mismatch (-want +got):\n%s", diff)
	}
}

// TestHandlerNotifications verifies the notification feed and its default limit.
func TestHandlerNotifications(t *testing.T) {
	rec := do(t, NewHandler(&stubLabService{}, nil), http.MethodGet, "/notifications", "")
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("status without reader = %d, want %d", rec.Code, http.StatusNotImplemented)
	}

	reader := &stubNotifications{items: []app.Notification{{Title: "Task updated", Variant: app.VariantSuccess, At: handlerNow}}}
	rec = do(t, NewHandler(&stubLabService{}, reader), http.MethodGet, "/notifications", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	got := decodeBody[[]app.Notification](t, rec)
	if diff := cmp.Diff(reader.items, got); diff != "" {
		t.Fatalf("notifications mismatch (-want +got):\n%s", diff)
	}
	if reader.lastLimit != defaultNotificationLimit {
		t.Fatalf("limit = %d, want %d", reader.lastLimit, defaultNotificationLimit)
	}
}

// TestHandlerWithoutService verifies a nil service fails closed.
func TestHandlerWithoutService(t *testing.T) {
	rec := do(t, NewHandler(nil, nil), http.MethodGet, "/projects", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}
