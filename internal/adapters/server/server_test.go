package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	charmLog "github.com/charmbracelet/log"
	"github.com/hylla/labbook/internal/adapters/server/common"
	"github.com/hylla/labbook/internal/app"
	"github.com/hylla/labbook/internal/domain"
)

// stubService answers project listing; other operations are unused here.
type stubService struct {
	common.LabService
}

// ListProjects returns one fixture project.
func (stubService) ListProjects(context.Context, bool) ([]domain.Project, error) {
	return []domain.Project{{ID: "p1", Name: "Cohort"}}, nil
}

// stubNotifications returns no notifications.
type stubNotifications struct{}

// Recent returns an empty feed.
func (stubNotifications) Recent(int) []app.Notification { return []app.Notification{} }

// TestNewHandlerRoutesEndpoints verifies health, API and MCP mounts in one mux.
func TestNewHandlerRoutesEndpoints(t *testing.T) {
	var logs bytes.Buffer
	logger := charmLog.NewWithOptions(&logs, charmLog.Options{Level: charmLog.DebugLevel})
	handler, cfg, err := NewHandler(Config{}, Dependencies{
		Service:       stubService{},
		Notifications: stubNotifications{},
		Logger:        logger,
	})
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	if cfg.APIEndpoint != "/api/v1" || cfg.MCPEndpoint != "/mcp" || cfg.HTTPBind != defaultBindAddress {
		t.Fatalf("unexpected normalized config %#v", cfg)
	}

	server := httptest.NewServer(handler)
	defer server.Close()

	resp, err := server.Client().Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("Get(/healthz) error = %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	resp, err = server.Client().Get(server.URL + "/api/v1/projects")
	if err != nil {
		t.Fatalf("Get(/api/v1/projects) error = %v", err)
	}
	var projects []domain.Project
	if err := json.NewDecoder(resp.Body).Decode(&projects); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	_ = resp.Body.Close()
	if len(projects) != 1 || projects[0].ID != "p1" {
		t.Fatalf("projects = %#v, want p1", projects)
	}

	resp, err = server.Client().Post(server.URL+"/mcp", "application/json", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","clientInfo":{"name":"labbook-test","version":"1.0.0"}}}`))
	if err != nil {
		t.Fatalf("Post(/mcp) error = %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("mcp status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	if !strings.Contains(logs.String(), "/api/v1/projects") {
		t.Fatalf("request log missing api path: %q", logs.String())
	}
}

// TestReadyzReflectsProbe verifies readiness follows the configured probe.
func TestReadyzReflectsProbe(t *testing.T) {
	probeErr := errors.New("database locked")
	handler, _, err := NewHandler(Config{}, Dependencies{
		Service: stubService{},
		Ready:   func(context.Context) error { return probeErr },
	})
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	probeErr = nil
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz status = %d, want %d", rec.Code, http.StatusOK)
	}
}

// TestNewHandlerValidation verifies required dependencies and endpoint collisions.
func TestNewHandlerValidation(t *testing.T) {
	if _, _, err := NewHandler(Config{}, Dependencies{}); err == nil {
		t.Fatalf("NewHandler() without service error = nil, want non-nil")
	}
	if _, _, err := NewHandler(Config{APIEndpoint: "/x", MCPEndpoint: "x/"}, Dependencies{Service: stubService{}}); err == nil {
		t.Fatalf("NewHandler() with colliding endpoints error = nil, want non-nil")
	}
}

// TestNormalizeConfig verifies defaults and endpoint normalization.
func TestNormalizeConfig(t *testing.T) {
	got, err := normalizeConfig(Config{HTTPBind: " :9090 ", APIEndpoint: "api//", MCPEndpoint: "/", ServerName: " lab "})
	if err != nil {
		t.Fatalf("normalizeConfig() error = %v", err)
	}
	want := Config{
		HTTPBind:        ":9090",
		APIEndpoint:     "/api",
		MCPEndpoint:     "/mcp",
		ServerName:      "lab",
		ServerVersion:   "dev",
		ShutdownTimeout: defaultShutdownTimeout,
	}
	if got != want {
		t.Fatalf("normalizeConfig() = %#v, want %#v", got, want)
	}
}

// TestRunStopsOnContextCancel verifies graceful shutdown when the context ends.
func TestRunStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Config{HTTPBind: "127.0.0.1:0", ShutdownTimeout: time.Second}, Dependencies{Service: stubService{}})
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("Run() did not stop after cancel")
	}
}
