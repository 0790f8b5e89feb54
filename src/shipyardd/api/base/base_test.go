package base

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bitswalk/shipyard/src/common/version"
	"github.com/gin-gonic/gin"
)

func newRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/", h.HandleRoot)
	r.GET("/v1/health", h.HandleHealth)
	r.GET("/v1/version", h.HandleVersion)
	return r
}

func TestHandleHealth(t *testing.T) {
	tests := []struct {
		name       string
		checks     []HealthCheck
		wantStatus int
		wantBody   string
	}{
		{"no checks", nil, http.StatusOK, "healthy"},
		{"passing check", []HealthCheck{{Name: "database", Check: func() error { return nil }}}, http.StatusOK, "healthy"},
		{"failing check", []HealthCheck{{Name: "storage", Check: func() error { return fmt.Errorf("bucket missing") }}}, http.StatusServiceUnavailable, "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			newRouter(NewHandler(tt.checks...)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

			if w.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
			var resp HealthResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.Status != tt.wantBody {
				t.Fatalf("expected status %q, got %q", tt.wantBody, resp.Status)
			}
		})
	}
}

func TestHandleVersion(t *testing.T) {
	SetVersionInfo(&version.Info{Version: "v9", ReleaseName: "Dockside", ReleaseVersion: "9.0.0", GitCommit: "abc1234"})
	defer SetVersionInfo(version.New())

	w := httptest.NewRecorder()
	newRouter(NewHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/version", nil))

	var resp VersionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Version != "v9" || resp.GitCommit != "abc1234" || resp.GoVersion == "" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestHandleRoot(t *testing.T) {
	w := httptest.NewRecorder()
	newRouter(NewHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	var resp APIInfo
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Name != "shipyardd" || resp.Endpoints.Projects != "/v1/projects" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}
