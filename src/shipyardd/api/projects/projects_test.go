package projects

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bitswalk/shipyard/src/shipyardd/db"
	"github.com/gin-gonic/gin"
)

func setupRouter(t *testing.T) (*gin.Engine, *db.ProjectRepository) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	database, err := db.New(db.Config{})
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	t.Cleanup(func() { database.Shutdown() })

	repo := db.NewProjectRepository(database)
	h := NewHandler(Config{ProjectRepo: repo})

	r := gin.New()
	r.GET("/v1/projects", h.HandleList)
	r.GET("/v1/projects/:id", h.HandleGet)
	r.PUT("/v1/projects/:id", h.HandlePut)
	return r, repo
}

func do(r *gin.Engine, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandlePut_CreatesAndUpdates(t *testing.T) {
	r, repo := setupRouter(t)

	w := do(r, http.MethodPut, "/v1/projects/p-1", `{"name":"Weather Station","hackathon_id":"h1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	first, err := repo.GetByID("p-1")
	if err != nil || first == nil {
		t.Fatalf("expected project to exist, err=%v", err)
	}

	w = do(r, http.MethodPut, "/v1/projects/p-1", `{"name":"Weather Station 2","hackathon_id":"h1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	second, _ := repo.GetByID("p-1")
	if second.Name != "Weather Station 2" {
		t.Fatalf("expected renamed project, got %q", second.Name)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("created_at changed: %v -> %v", first.CreatedAt, second.CreatedAt)
	}
}

func TestHandlePut_Validation(t *testing.T) {
	r, _ := setupRouter(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing name", `{"hackathon_id":"h1"}`},
		{"blank name", `{"name":"   "}`},
		{"malformed json", `{"name":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := do(r, http.MethodPut, "/v1/projects/p-1", tt.body); w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
		})
	}
}

func TestHandleGetAndList(t *testing.T) {
	r, repo := setupRouter(t)

	if w := do(r, http.MethodGet, "/v1/projects/missing", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}

	w := do(r, http.MethodGet, "/v1/projects", "")
	var empty ProjectListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &empty); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if empty.Count != 0 || empty.Projects == nil {
		t.Fatalf("expected an empty non-null list, got %s", w.Body.String())
	}

	for _, p := range []db.Project{{ID: "b", Name: "Beta"}, {ID: "a", Name: "Alpha"}} {
		p := p
		if err := repo.Upsert(&p); err != nil {
			t.Fatalf("failed to upsert project: %v", err)
		}
	}

	w = do(r, http.MethodGet, "/v1/projects", "")
	var list ProjectListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if list.Count != 2 || list.Projects[0].Name != "Alpha" {
		t.Fatalf("unexpected list: %+v", list)
	}

	w = do(r, http.MethodGet, "/v1/projects/a", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"name":"Alpha"`) {
		t.Fatalf("unexpected get response %d: %s", w.Code, w.Body.String())
	}
}
