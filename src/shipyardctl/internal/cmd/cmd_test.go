package cmd

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bitswalk/shipyard/src/shipyardctl/internal/client"
	"github.com/bitswalk/shipyard/src/shipyardctl/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
)

// =============================================================================
// Test Helpers
// =============================================================================

// setupTestClient creates a mock HTTP server and injects a client pointing to it.
func setupTestClient(t *testing.T, mux *http.ServeMux) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(mux)
	apiClient = client.New(srv.URL)
	return srv
}

// resetGlobals resets global state between tests
func resetGlobals() {
	apiClient = nil
	outputFormat = "table"
}

// setFlag sets a flag for the duration of the test
func setFlag(t *testing.T, cmd *cobra.Command, name, value string) {
	t.Helper()
	f := cmd.Flags().Lookup(name)
	if f == nil {
		t.Fatalf("flag --%s not found on %s", name, cmd.Name())
	}
	def := f.DefValue
	if err := cmd.Flags().Set(name, value); err != nil {
		t.Fatalf("failed to set --%s: %v", name, err)
	}
	t.Cleanup(func() {
		if sv, ok := f.Value.(interface{ Replace([]string) error }); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(def)
		}
		f.Changed = false
	})
}

func useTokenDir(t *testing.T) {
	t.Helper()
	old := config.Dir
	config.Dir = t.TempDir()
	t.Cleanup(func() { config.Dir = old })
}

func writeZip(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "weather.zip")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create archive: %v", err)
	}
	zw := zip.NewWriter(f)
	w, _ := zw.Create("package.json")
	_, _ = w.Write([]byte(`{"name":"weather"}`))
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to close zip: %v", err)
	}
	f.Close()
	return path
}

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return tok
}

// =============================================================================
// Command Registration Tests
// =============================================================================

func TestRootCommand_HasSubcommands(t *testing.T) {
	expected := []string{
		"version", "health", "login", "logout", "whoami",
		"project", "submit", "versions",
	}

	commands := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		commands[cmd.Name()] = true
	}

	for _, name := range expected {
		if !commands[name] {
			t.Errorf("expected subcommand %q not found on root", name)
		}
	}
}

func TestVersionsCommand_HasSubcommands(t *testing.T) {
	expected := []string{
		"list", "get", "logs", "watch",
		"promote", "scan", "deploy", "deployments",
	}
	commands := make(map[string]bool)
	for _, cmd := range versionsCmd.Commands() {
		commands[cmd.Name()] = true
	}
	for _, name := range expected {
		if !commands[name] {
			t.Errorf("expected versions subcommand %q not found", name)
		}
	}
}

func TestCommandAliases(t *testing.T) {
	if !projectCmd.HasAlias("proj") {
		t.Error("expected 'proj' alias on project")
	}
	if !versionsCmd.HasAlias("ver") {
		t.Error("expected 'ver' alias on versions")
	}
}

// =============================================================================
// Argument Validation Tests
// =============================================================================

func TestArgs(t *testing.T) {
	tests := []struct {
		name    string
		cmd     *cobra.Command
		args    []string
		wantErr bool
	}{
		{"project get none", projectGetCmd, nil, true},
		{"project get one", projectGetCmd, []string{"p1"}, false},
		{"submit one", submitCmd, []string{"p1"}, true},
		{"submit two", submitCmd, []string{"p1", "a.zip"}, false},
		{"versions get one", versionsGetCmd, []string{"p1"}, true},
		{"versions get two", versionsGetCmd, []string{"p1", "v1"}, false},
		{"deploy three", versionsDeployCmd, []string{"p1", "v1", "x"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cmd.Args(tt.cmd, tt.args)
			if (err != nil) != tt.wantErr {
				t.Errorf("Args(%v) error = %v, wantErr %v", tt.args, err, tt.wantErr)
			}
		})
	}
}

func TestFlags(t *testing.T) {
	tests := []struct {
		cmd   *cobra.Command
		flags []string
	}{
		{submitCmd, []string{"notes", "wait", "watch", "submitted-by", "username", "email"}},
		{versionsListCmd, []string{"limit", "offset"}},
		{versionsLogsCmd, []string{"full"}},
		{versionsPromoteCmd, []string{"target"}},
		{versionsDeployCmd, []string{"target", "name", "network", "pull", "label"}},
		{projectPutCmd, []string{"name", "hackathon"}},
		{loginCmd, []string{"token"}},
	}
	for _, tt := range tests {
		for _, name := range tt.flags {
			if tt.cmd.Flags().Lookup(name) == nil {
				t.Errorf("expected flag --%s on %s", name, tt.cmd.Name())
			}
		}
	}
}

func TestRootCmd_ServerFlag(t *testing.T) {
	flag := rootCmd.PersistentFlags().Lookup("server")
	if flag == nil {
		t.Fatal("expected --server persistent flag on root")
	}
	if flag.Shorthand != "s" {
		t.Errorf("expected shorthand 's' for --server, got %q", flag.Shorthand)
	}
	out := rootCmd.PersistentFlags().Lookup("output")
	if out == nil || out.DefValue != "table" {
		t.Error("expected --output persistent flag defaulting to table")
	}
}

// =============================================================================
// Command Execution Tests (with mock server)
// =============================================================================

func TestHealthCommand_MockServer(t *testing.T) {
	defer resetGlobals()

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":    "healthy",
			"timestamp": "2026-01-15T10:30:00Z",
			"checks":    map[string]string{"database": "ok"},
		})
	})
	srv := setupTestClient(t, mux)
	defer srv.Close()

	if err := runHealth(healthCmd, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestProjectPut_MockServer(t *testing.T) {
	defer resetGlobals()

	var got map[string]string
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/projects/p1", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT, got %s", r.Method)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(map[string]string{"id": "p1", "name": got["name"]})
	})
	srv := setupTestClient(t, mux)
	defer srv.Close()

	setFlag(t, projectPutCmd, "name", "Weather")
	setFlag(t, projectPutCmd, "hackathon", "h1")

	outputFormat = "json"
	if err := runProjectPut(projectPutCmd, []string{"p1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["name"] != "Weather" || got["hackathon_id"] != "h1" {
		t.Errorf("unexpected request body %v", got)
	}
}

func TestProjectList_EmptyResult(t *testing.T) {
	defer resetGlobals()

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/projects", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"count": 0, "projects": []interface{}{}})
	})
	srv := setupTestClient(t, mux)
	defer srv.Close()

	if err := runProjectList(projectListCmd, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSubmit_MockServer(t *testing.T) {
	defer resetGlobals()

	archive := writeZip(t)

	var notes, fileName, wait string
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/projects/p1/versions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("bad multipart body: %v", err)
		}
		notes = r.FormValue("version_notes")
		wait = r.URL.Query().Get("wait")
		if _, hdr, err := r.FormFile("file"); err == nil {
			fileName = hdr.Filename
		}
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id": "v1", "project_id": "p1", "version_number": 1, "status": "pending",
		})
	})
	srv := setupTestClient(t, mux)
	defer srv.Close()

	setFlag(t, submitCmd, "notes", "first cut")

	outputFormat = "json"
	if err := runSubmit(submitCmd, []string{"p1", archive}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if notes != "first cut" {
		t.Errorf("expected notes to be sent, got %q", notes)
	}
	if fileName != "weather.zip" {
		t.Errorf("expected archive file name, got %q", fileName)
	}
	if wait != "" {
		t.Errorf("expected no wait parameter, got %q", wait)
	}
}

func TestSubmit_WaitReportsFailure(t *testing.T) {
	defer resetGlobals()

	archive := writeZip(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/projects/p1/versions", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("wait") != "true" {
			t.Errorf("expected wait=true, got %q", r.URL.RawQuery)
		}
		_ = r.ParseMultipartForm(1 << 20)
		json.NewEncoder(w).Encode(map[string]interface{}{"id": "v1", "status": "failed"})
	})
	srv := setupTestClient(t, mux)
	defer srv.Close()

	setFlag(t, submitCmd, "wait", "true")

	outputFormat = "json"
	err := runSubmit(submitCmd, []string{"p1", archive})
	if err == nil || !strings.Contains(err.Error(), "build failed") {
		t.Fatalf("expected build failed error, got %v", err)
	}
}

func TestSubmit_MissingArchive(t *testing.T) {
	defer resetGlobals()
	apiClient = client.New("http://127.0.0.1:0")

	err := runSubmit(submitCmd, []string{"p1", filepath.Join(t.TempDir(), "nope.zip")})
	if err == nil {
		t.Fatal("expected error for missing archive")
	}
}

func sseHandler(status string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: status\ndata: {\"status\":\"building\",\"stack\":\"nodejs\"}\n\n")
		fmt.Fprint(w, ": keepalive\n\n")
		fmt.Fprint(w, "event: progress\ndata: {\"kind\":\"step_started\",\"step\":1,\"total\":3,\"instruction\":\"FROM node:20\"}\n\n")
		fmt.Fprint(w, "event: progress\ndata: {\"kind\":\"step_finished\",\"step\":1,\"total\":3,\"duration\":250000000}\n\n")
		fmt.Fprintf(w, "event: done\ndata: {\"status\":%q}\n\n", status)
	}
}

func TestVersionsWatch_MockServer(t *testing.T) {
	defer resetGlobals()

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/projects/p1/versions/v1/events", sseHandler("built"))
	srv := setupTestClient(t, mux)
	defer srv.Close()

	buf := new(bytes.Buffer)
	versionsWatchCmd.SetOut(buf)
	defer versionsWatchCmd.SetOut(nil)

	if err := runVersionsWatch(versionsWatchCmd, []string{"p1", "v1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{
		"status: building  stack: nodejs",
		"[1/3] FROM node:20",
		"[1/3] done in 250ms",
		"status: built",
	}
	got := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(got) != len(want) {
		t.Fatalf("expected %d lines, got %q", len(want), buf.String())
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestVersionsWatch_Failed(t *testing.T) {
	defer resetGlobals()

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/projects/p1/versions/v1/events", sseHandler("failed"))
	srv := setupTestClient(t, mux)
	defer srv.Close()

	versionsWatchCmd.SetOut(new(bytes.Buffer))
	defer versionsWatchCmd.SetOut(nil)

	err := runVersionsWatch(versionsWatchCmd, []string{"p1", "v1"})
	if err == nil || !strings.Contains(err.Error(), "build failed") {
		t.Fatalf("expected build failed error, got %v", err)
	}
}

func TestVersionsLogs_Full(t *testing.T) {
	defer resetGlobals()

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/projects/p1/versions/v1/build_logs/full", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, "STEP 1/3: FROM node:20\nSTEP 2/3: COPY . .\n")
	})
	srv := setupTestClient(t, mux)
	defer srv.Close()

	setFlag(t, versionsLogsCmd, "full", "true")
	buf := new(bytes.Buffer)
	versionsLogsCmd.SetOut(buf)
	defer versionsLogsCmd.SetOut(nil)

	if err := runVersionsLogs(versionsLogsCmd, []string{"p1", "v1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "STEP 2/3") {
		t.Errorf("expected full log, got %q", buf.String())
	}
}

func TestVersionsDeploy_MockServer(t *testing.T) {
	defer resetGlobals()

	var got client.DeployRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/projects/p1/versions/v1/deploy", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":     "deployed",
			"deployment": map[string]interface{}{"id": "d1", "target_tag": "weather_alice_1"},
		})
	})
	srv := setupTestClient(t, mux)
	defer srv.Close()

	setFlag(t, versionsDeployCmd, "network", "hackathon")
	setFlag(t, versionsDeployCmd, "label", "traefik.enable=true")
	setFlag(t, versionsDeployCmd, "pull", "true")

	outputFormat = "json"
	if err := runVersionsDeploy(versionsDeployCmd, []string{"p1", "v1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Network != "hackathon" || !got.Pull {
		t.Errorf("unexpected request %+v", got)
	}
	if got.Labels["traefik.enable"] != "true" {
		t.Errorf("expected label to be sent, got %v", got.Labels)
	}
}

func TestVersionsPromote_Conflict(t *testing.T) {
	defer resetGlobals()

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/projects/p1/versions/v1/promote", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": "Conflict", "code": 409, "message": "version is not built",
		})
	})
	srv := setupTestClient(t, mux)
	defer srv.Close()

	setFlag(t, versionsPromoteCmd, "target", "registry.example.com/weather:latest")

	err := runVersionsPromote(versionsPromoteCmd, []string{"p1", "v1"})
	if err == nil {
		t.Fatal("expected error for conflict")
	}
	if !strings.Contains(err.Error(), "version is not built") {
		t.Errorf("expected server message in error, got %v", err)
	}
}

func TestParseLabels(t *testing.T) {
	labels, err := parseLabels([]string{"a=1", "b=x=y", "c="})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if labels["a"] != "1" || labels["b"] != "x=y" || labels["c"] != "" {
		t.Errorf("unexpected labels %v", labels)
	}

	for _, bad := range []string{"novalue", "=v"} {
		if _, err := parseLabels([]string{bad}); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}

	if labels, _ := parseLabels(nil); labels != nil {
		t.Errorf("expected nil map for no labels, got %v", labels)
	}
}

func TestRenderProgress(t *testing.T) {
	tests := []struct {
		frame client.ProgressFrame
		want  string
	}{
		{client.ProgressFrame{Kind: "step_started", Step: 2, Total: 5, Instruction: "RUN npm ci"}, "[2/5] RUN npm ci"},
		{client.ProgressFrame{Kind: "step_started", Step: 1, Service: "api", Instruction: "FROM go"}, "[1] api: FROM go"},
		{client.ProgressFrame{Kind: "step_finished", Step: 2, Total: 5, Duration: 1500 * time.Millisecond}, "[2/5] done in 1.5s"},
		{client.ProgressFrame{Kind: "cache_hit", Step: 3, Total: 5}, "[3/5] using cache"},
		{client.ProgressFrame{Kind: "build_complete", ImageID: "abc123", CacheHits: 2, CacheMisses: 3}, "image abc123 built (2 cached, 3 built)"},
		{client.ProgressFrame{Kind: "warning", Message: "large archive"}, "warning: large archive"},
		{client.ProgressFrame{Kind: "status", Message: "extracting", Percent: 40}, "extracting (40%)"},
	}
	for _, tt := range tests {
		if got := renderProgress(&tt.frame); got != tt.want {
			t.Errorf("renderProgress(%+v) = %q, want %q", tt.frame, got, tt.want)
		}
	}
}

// =============================================================================
// Auth Tests
// =============================================================================

func TestLoginAndWhoami(t *testing.T) {
	defer resetGlobals()
	useTokenDir(t)

	tok := signedToken(t, jwt.MapClaims{
		"user_id":   "u1",
		"user_name": "alice",
		"email":     "alice@example.com",
		"iss":       "hackathon",
		"exp":       time.Now().Add(time.Hour).Unix(),
	})
	setFlag(t, loginCmd, "token", tok)

	outputFormat = "json"
	if err := runLogin(loginCmd, nil); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	stored, err := config.LoadToken()
	if err != nil {
		t.Fatalf("token not stored: %v", err)
	}
	if stored.AccessToken != tok || stored.Username != "alice" {
		t.Errorf("unexpected stored token %+v", stored)
	}

	if err := runWhoami(whoamiCmd, nil); err != nil {
		t.Fatalf("whoami failed: %v", err)
	}

	if err := runLogout(logoutCmd, nil); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	if err := runWhoami(whoamiCmd, nil); err == nil {
		t.Error("expected whoami to fail after logout")
	}
}

func TestLogin_MalformedToken(t *testing.T) {
	defer resetGlobals()
	useTokenDir(t)

	setFlag(t, loginCmd, "token", "not-a-jwt")
	if err := runLogin(loginCmd, nil); err == nil {
		t.Fatal("expected error for malformed token")
	}
	if _, err := config.LoadToken(); err == nil {
		t.Error("malformed token should not be stored")
	}
}

func TestDecodeToken(t *testing.T) {
	exp := time.Date(2026, 11, 1, 12, 0, 0, 0, time.UTC)
	tok := signedToken(t, jwt.MapClaims{
		"user_id": "u1",
		"exp":     exp.Unix(),
	})

	ident, err := decodeToken(tok)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ident.UserID != "u1" || ident.UserName != "" {
		t.Errorf("unexpected identity %+v", ident)
	}
	if ident.ExpiresAt != "2026-11-01T12:00:00Z" {
		t.Errorf("unexpected expiry %q", ident.ExpiresAt)
	}
	if displayName(ident) != "u1" {
		t.Errorf("expected user ID as display name, got %q", displayName(ident))
	}
}

func TestGetClient_LoadsToken(t *testing.T) {
	defer resetGlobals()
	useTokenDir(t)

	if err := config.SaveToken(&config.TokenData{AccessToken: "stored-token"}); err != nil {
		t.Fatalf("failed to save token: %v", err)
	}

	apiClient = nil
	c := getClient()
	if c.Token != "stored-token" {
		t.Errorf("expected stored token on client, got %q", c.Token)
	}
}

func TestVersionInfo_Defaults(t *testing.T) {
	if Version != "dev" {
		t.Errorf("expected default Version 'dev', got %q", Version)
	}
	if ReleaseName != "Dockside" {
		t.Errorf("expected default ReleaseName 'Dockside', got %q", ReleaseName)
	}
}
