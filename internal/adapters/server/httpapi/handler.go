// Package httpapi provides the REST HTTP adapter for the lab service.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hylla/labbook/internal/adapters/server/common"
)

// maxRequestBodyBytes limits decoded JSON payload size for fail-closed request handling.
const maxRequestBodyBytes int64 = 1 << 20

// defaultNotificationLimit bounds GET /notifications when no limit is given.
const defaultNotificationLimit = 20

// Handler serves the versioned API subrouter mounted under `/api/v1`.
type Handler struct {
	service       common.LabService
	notifications common.NotificationReader
	mux           *http.ServeMux
}

// APIError represents one structured API failure response.
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Hint    string         `json:"hint,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// ErrorEnvelope wraps one structured API error.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// NewHandler constructs one HTTP API adapter. A nil notification reader disables GET /notifications.
func NewHandler(service common.LabService, notifications common.NotificationReader) *Handler {
	h := &Handler{
		service:       service,
		notifications: notifications,
		mux:           http.NewServeMux(),
	}
	h.routes()
	return h
}

// routes registers every API endpoint on the handler's mux.
func (h *Handler) routes() {
	h.mux.HandleFunc("GET /projects", h.handleListProjects)
	h.mux.HandleFunc("POST /projects", h.handleCreateProject)
	h.mux.HandleFunc("GET /projects/{id}", h.handleGetProject)
	h.mux.HandleFunc("GET /projects/{id}/progress", h.handleProjectProgress)
	h.mux.HandleFunc("GET /projects/{id}/milestones", h.handleListMilestones)
	h.mux.HandleFunc("POST /projects/{id}/milestones", h.handleCreateMilestone)
	h.mux.HandleFunc("GET /projects/{id}/budget", h.handleBudgetSummary)
	h.mux.HandleFunc("POST /projects/{id}/budget", h.handleCreateBudgetLine)

	h.mux.HandleFunc("POST /milestones/{id}/activities", h.handleCreateActivity)
	h.mux.HandleFunc("POST /activities/{id}/tasks", h.handleCreateTask)
	h.mux.HandleFunc("POST /tasks/{id}/toggle", h.handleToggleTask)
	h.mux.HandleFunc("DELETE /tasks/{id}", h.handleDeleteTask)

	h.mux.HandleFunc("GET /patients", h.handleListPatients)
	h.mux.HandleFunc("POST /patients", h.handleRegisterPatient)
	h.mux.HandleFunc("GET /patients/code-preview", h.handlePreviewPatientCode)
	h.mux.HandleFunc("GET /samples", h.handleListSamples)
	h.mux.HandleFunc("POST /samples", h.handleRegisterSample)
	h.mux.HandleFunc("GET /samples/code-preview", h.handlePreviewSampleCode)
	h.mux.HandleFunc("POST /samples/{id}/status", h.handleSampleStatus)
	h.mux.HandleFunc("GET /plaquettes", h.handleListPlaquettes)
	h.mux.HandleFunc("POST /plaquettes", h.handleCreatePlaquette)

	h.mux.HandleFunc("GET /team", h.handleListTeam)
	h.mux.HandleFunc("POST /team", h.handleAddTeamMember)
	h.mux.HandleFunc("POST /attendance", h.handleRecordAttendance)
	h.mux.HandleFunc("GET /attendance/summary", h.handleAttendanceSummary)

	h.mux.HandleFunc("POST /budget/{id}/expenses", h.handleRecordExpense)

	h.mux.HandleFunc("GET /dashboard", h.handleDashboard)
	h.mux.HandleFunc("GET /changes", h.handleListChanges)
	h.mux.HandleFunc("GET /notifications", h.handleNotifications)

	h.mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: "endpoint not found",
		})
	})
}

// ServeHTTP routes one versioned API request to the matching handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeJSONError(w, http.StatusServiceUnavailable, APIError{
			Code:    "service_unavailable",
			Message: "lab service is not configured",
		})
		return
	}
	h.mux.ServeHTTP(w, r)
}

// handleListProjects serves GET `/projects`.
func (h *Handler) handleListProjects(w http.ResponseWriter, r *http.Request) {
	includeArchived, err := queryBool(r, "include_archived")
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	projects, err := h.service.ListProjects(r.Context(), includeArchived)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

// handleCreateProject serves POST `/projects`.
func (h *Handler) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req common.CreateProjectRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	project, err := h.service.CreateProject(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

// handleGetProject serves GET `/projects/{id}`.
func (h *Handler) handleGetProject(w http.ResponseWriter, r *http.Request) {
	project, err := h.service.GetProject(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

// handleProjectProgress serves GET `/projects/{id}/progress`.
func (h *Handler) handleProjectProgress(w http.ResponseWriter, r *http.Request) {
	progress, err := h.service.ProjectProgress(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

// handleListMilestones serves GET `/projects/{id}/milestones`.
func (h *Handler) handleListMilestones(w http.ResponseWriter, r *http.Request) {
	milestones, err := h.service.ListMilestones(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, milestones)
}

// handleCreateMilestone serves POST `/projects/{id}/milestones`.
func (h *Handler) handleCreateMilestone(w http.ResponseWriter, r *http.Request) {
	var req common.CreateMilestoneRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.ProjectID = r.PathValue("id")
	milestone, err := h.service.CreateMilestone(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, milestone)
}

// handleCreateActivity serves POST `/milestones/{id}/activities`.
func (h *Handler) handleCreateActivity(w http.ResponseWriter, r *http.Request) {
	var req common.CreateActivityRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.MilestoneID = r.PathValue("id")
	activity, err := h.service.CreateActivity(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, activity)
}

// handleCreateTask serves POST `/activities/{id}/tasks`.
func (h *Handler) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req common.CreateTaskRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.ActivityID = r.PathValue("id")
	task, err := h.service.CreateTask(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

// handleToggleTask serves POST `/tasks/{id}/toggle`.
func (h *Handler) handleToggleTask(w http.ResponseWriter, r *http.Request) {
	mutation, err := h.service.ToggleTask(r.Context(), r.PathValue("id"))
	if err != nil {
		writeMutationError(w, mutation, err)
		return
	}
	writeJSON(w, http.StatusOK, mutation)
}

// handleDeleteTask serves DELETE `/tasks/{id}`.
func (h *Handler) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	mutation, err := h.service.DeleteTask(r.Context(), r.PathValue("id"))
	if err != nil {
		writeMutationError(w, mutation, err)
		return
	}
	writeJSON(w, http.StatusOK, mutation)
}

// handleListPatients serves GET `/patients`.
func (h *Handler) handleListPatients(w http.ResponseWriter, r *http.Request) {
	patients, err := h.service.ListPatients(r.Context(), strings.TrimSpace(r.URL.Query().Get("project_id")))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, patients)
}

// handleRegisterPatient serves POST `/patients`.
func (h *Handler) handleRegisterPatient(w http.ResponseWriter, r *http.Request) {
	var req common.RegisterPatientRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	patient, err := h.service.RegisterPatient(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, patient)
}

// handlePreviewPatientCode serves GET `/patients/code-preview`.
func (h *Handler) handlePreviewPatientCode(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	req := common.RegisterPatientRequest{
		FirstName: query.Get("first_name"),
		LastName:  query.Get("last_name"),
		Gender:    query.Get("gender"),
		Ethnicity: query.Get("ethnicity"),
		Site:      query.Get("site"),
	}
	if raw := strings.TrimSpace(query.Get("age")); raw != "" {
		age, err := strconv.Atoi(raw)
		if err != nil {
			writeErrorFrom(w, fmt.Errorf("age %q: %w", raw, common.ErrInvalidRequest))
			return
		}
		req.Age = &age
	}
	code, err := h.service.PreviewPatientCode(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"code": code})
}

// handleListSamples serves GET `/samples`.
func (h *Handler) handleListSamples(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	samples, err := h.service.ListSamples(r.Context(), common.ListSamplesRequest{
		ProjectID:   strings.TrimSpace(query.Get("project_id")),
		PatientID:   strings.TrimSpace(query.Get("patient_id")),
		PlaquetteID: strings.TrimSpace(query.Get("plaquette_id")),
		Status:      strings.TrimSpace(query.Get("status")),
	})
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, samples)
}

// handleRegisterSample serves POST `/samples`.
func (h *Handler) handleRegisterSample(w http.ResponseWriter, r *http.Request) {
	var req common.RegisterSampleRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	sample, err := h.service.RegisterSample(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sample)
}

// handlePreviewSampleCode serves GET `/samples/code-preview`.
func (h *Handler) handlePreviewSampleCode(w http.ResponseWriter, r *http.Request) {
	collectedAt, err := queryTime(r, "collected_at")
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	code, err := h.service.PreviewSampleCode(r.Context(), r.URL.Query().Get("type"), collectedAt)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"code": code})
}

// handleSampleStatus serves POST `/samples/{id}/status`.
func (h *Handler) handleSampleStatus(w http.ResponseWriter, r *http.Request) {
	var req common.SampleStatusRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.SampleID = r.PathValue("id")
	sample, err := h.service.UpdateSampleStatus(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sample)
}

// handleListPlaquettes serves GET `/plaquettes`.
func (h *Handler) handleListPlaquettes(w http.ResponseWriter, r *http.Request) {
	plates, err := h.service.ListPlaquettes(r.Context())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plates)
}

// handleCreatePlaquette serves POST `/plaquettes`.
func (h *Handler) handleCreatePlaquette(w http.ResponseWriter, r *http.Request) {
	var req common.CreatePlaquetteRequest
	if err := decodeOptionalJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	plate, err := h.service.CreatePlaquette(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, plate)
}

// handleListTeam serves GET `/team`.
func (h *Handler) handleListTeam(w http.ResponseWriter, r *http.Request) {
	includeInactive, err := queryBool(r, "include_inactive")
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	members, err := h.service.ListTeamMembers(r.Context(), includeInactive)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

// handleAddTeamMember serves POST `/team`.
func (h *Handler) handleAddTeamMember(w http.ResponseWriter, r *http.Request) {
	var req common.AddTeamMemberRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	member, err := h.service.AddTeamMember(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, member)
}

// handleRecordAttendance serves POST `/attendance`.
func (h *Handler) handleRecordAttendance(w http.ResponseWriter, r *http.Request) {
	var req common.RecordAttendanceRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	record, err := h.service.RecordAttendance(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// handleAttendanceSummary serves GET `/attendance/summary`.
func (h *Handler) handleAttendanceSummary(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	summary, err := h.service.AttendanceSummary(r.Context(), strings.TrimSpace(query.Get("from")), strings.TrimSpace(query.Get("to")))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleBudgetSummary serves GET `/projects/{id}/budget`.
func (h *Handler) handleBudgetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.BudgetSummary(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleCreateBudgetLine serves POST `/projects/{id}/budget`.
func (h *Handler) handleCreateBudgetLine(w http.ResponseWriter, r *http.Request) {
	var req common.CreateBudgetLineRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.ProjectID = r.PathValue("id")
	line, err := h.service.CreateBudgetLine(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, line)
}

// handleRecordExpense serves POST `/budget/{id}/expenses`.
func (h *Handler) handleRecordExpense(w http.ResponseWriter, r *http.Request) {
	var req common.RecordExpenseRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.BudgetLineID = r.PathValue("id")
	expense, err := h.service.RecordExpense(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, expense)
}

// handleDashboard serves GET `/dashboard`.
func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	dashboard, err := h.service.Dashboard(r.Context())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboard)
}

// handleListChanges serves GET `/changes`.
func (h *Handler) handleListChanges(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	events, err := h.service.ListChangeEvents(r.Context(), strings.TrimSpace(r.URL.Query().Get("table")), limit)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// handleNotifications serves GET `/notifications`.
func (h *Handler) handleNotifications(w http.ResponseWriter, r *http.Request) {
	if h.notifications == nil {
		writeJSONError(w, http.StatusNotImplemented, APIError{
			Code:    "not_implemented",
			Message: "notifications are not available",
		})
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	writeJSON(w, http.StatusOK, h.notifications.Recent(limit))
}

// queryBool parses one optional boolean query parameter.
func queryBool(r *http.Request, key string) (bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s %q: %w", key, raw, common.ErrInvalidRequest)
	}
	return v, nil
}

// queryInt parses one optional integer query parameter; absent means zero.
func queryInt(r *http.Request, key string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%s %q: %w", key, raw, common.ErrInvalidRequest)
	}
	return v, nil
}

// queryTime parses one optional RFC3339 timestamp or YYYY-MM-DD day.
func queryTime(r *http.Request, key string) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if v, err := time.Parse(layout, raw); err == nil {
			return &v, nil
		}
	}
	return nil, fmt.Errorf("%s %q: %w", key, raw, common.ErrInvalidRequest)
}

// writeMutationError maps a failed optimistic mutation, keeping the intent outcome in the error context.
func writeMutationError(w http.ResponseWriter, mutation common.TaskMutation, err error) {
	if mutation.Intent.State == "" {
		writeErrorFrom(w, err)
		return
	}
	statusCode, apiErr := apiErrorFrom(err)
	apiErr.Context = map[string]any{
		"intent_key":   mutation.Intent.Key,
		"intent_state": mutation.Intent.State,
	}
	writeJSONError(w, statusCode, apiErr)
}

// writeErrorFrom maps adapter errors into structured HTTP responses.
func writeErrorFrom(w http.ResponseWriter, err error) {
	statusCode, apiErr := apiErrorFrom(err)
	writeJSONError(w, statusCode, apiErr)
}

// apiErrorFrom classifies one adapter error into a status code and envelope.
func apiErrorFrom(err error) (int, APIError) {
	switch {
	case err == nil:
		return http.StatusInternalServerError, APIError{Code: "internal_error", Message: "unknown error"}
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound, APIError{Code: "not_found", Message: err.Error()}
	case errors.Is(err, common.ErrInvalidRequest):
		return http.StatusBadRequest, APIError{Code: "invalid_request", Message: err.Error()}
	case errors.Is(err, common.ErrBusy):
		return http.StatusConflict, APIError{
			Code:    "operation_in_flight",
			Message: err.Error(),
			Hint:    "Wait for the outstanding change on this record to finish, then retry.",
		}
	case errors.Is(err, common.ErrConflict):
		return http.StatusConflict, APIError{Code: "conflict", Message: err.Error()}
	case errors.Is(err, common.ErrUnavailable):
		return http.StatusServiceUnavailable, APIError{
			Code:    "unavailable",
			Message: err.Error(),
			Hint:    "The change was rolled back locally; reload to see the stored state.",
		}
	default:
		return http.StatusInternalServerError, APIError{Code: "internal_error", Message: err.Error()}
	}
}

// writeJSONError writes one structured error envelope.
func writeJSONError(w http.ResponseWriter, statusCode int, apiErr APIError) {
	writeJSON(w, statusCode, ErrorEnvelope{Error: apiErr})
}

// writeJSON writes one JSON response envelope.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":{"code":"encode_error","message":"%s"}}`, err.Error()), http.StatusInternalServerError)
	}
}

// decodeJSONBody decodes one required JSON request body with strict shape checks.
func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode request body: %w", errors.Join(common.ErrInvalidRequest, err))
	}
	// Reject trailing payloads so malformed JSON bodies fail closed.
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode request body: trailing content: %w", common.ErrInvalidRequest)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("request canceled: %w", ctx.Err())
	default:
		return nil
	}
}

// decodeOptionalJSONBody decodes one optional JSON body and ignores empty payloads.
func decodeOptionalJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	err := decoder.Decode(out)
	if err == nil {
		select {
		case <-ctx.Done():
			return fmt.Errorf("request canceled: %w", ctx.Err())
		default:
			return nil
		}
	}
	if errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("decode request body: %w", errors.Join(common.ErrInvalidRequest, err))
}
