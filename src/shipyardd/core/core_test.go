package core

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/bitswalk/shipyard/src/common/errors"
	"github.com/bitswalk/shipyard/src/shipyardd/build"
	"github.com/bitswalk/shipyard/src/shipyardd/registry"
	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
)

func writeArchive(t *testing.T, name string, files map[string]string) string {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for n, content := range files {
		w, err := zw.Create(n)
		if err != nil {
			t.Fatalf("failed to add %s: %v", n, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("failed to write %s: %v", n, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to close zip: %v", err)
	}

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("failed to write archive: %v", err)
	}
	return path
}

func writeEngine(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake engine scripts require a POSIX shell")
	}
	script := filepath.Join(t.TempDir(), "engine")
	if err := os.WriteFile(script, []byte("#!/bin/sh\n"+body+"\n"), 0755); err != nil {
		t.Fatalf("failed to write fake engine: %v", err)
	}
	return script
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read %s: %v", dir, err)
	}
	if len(entries) != 0 {
		t.Errorf("workspace left behind: %v", entries)
	}
}

func localConfig(t *testing.T, engine string) build.Config {
	cfg := build.DefaultConfig()
	cfg.WorkspaceBase = t.TempDir()
	cfg.Engine = engine
	cfg.Timeout = 30 * time.Second
	return cfg
}

func TestRunLocalBuild_DryRun(t *testing.T) {
	archive := writeArchive(t, "weather.zip", map[string]string{
		"package.json": `{"name":"weather","scripts":{"start":"node index.js"}}`,
		"index.js":     "console.log('hi')",
	})
	cfg := localConfig(t, "podman")

	sc, err := runLocalBuild(context.Background(), localBuildOptions{
		Archive: archive,
		User:    "alice",
		Number:  3,
		DryRun:  true,
		Config:  cfg,
	}, nil)
	if err != nil {
		t.Fatalf("dry run failed: %v", err)
	}

	if sc.Stack != build.StackNodeJS {
		t.Errorf("expected nodejs stack, got %q", sc.Stack)
	}
	if sc.ImageTag != "weather_alice_3" {
		t.Errorf("expected tag weather_alice_3, got %q", sc.ImageTag)
	}
	if sc.Result == nil || len(sc.Result.Args) < 4 {
		t.Fatalf("expected engine command, got %+v", sc.Result)
	}
	if got := strings.Join(sc.Result.Args[:4], " "); got != "podman build -t weather_alice_3" {
		t.Errorf("unexpected command %q", got)
	}
	assertEmptyDir(t, cfg.WorkspaceBase)
}

func TestRunLocalBuild_RunsEngine(t *testing.T) {
	archive := writeArchive(t, "api.zip", map[string]string{
		"Dockerfile": "FROM alpine\nUSER app\n",
	})
	engine := writeEngine(t, `echo "Step 1/1 : FROM alpine"
echo "Successfully built 0123456789ab"`)
	cfg := localConfig(t, engine)

	var lines bytes.Buffer
	var events []build.Event
	sc, err := runLocalBuild(context.Background(), localBuildOptions{
		Archive: archive,
		Tag:     "custom:tag",
		Config:  cfg,
		Lines:   &lines,
	}, build.ReporterFunc(func(e build.Event) { events = append(events, e) }))
	if err != nil {
		t.Fatalf("local build failed: %v", err)
	}

	if sc.ImageTag != "custom:tag" {
		t.Errorf("explicit tag should be used verbatim, got %q", sc.ImageTag)
	}
	if !sc.Result.Succeeded() {
		t.Errorf("expected success, got exit %d", sc.Result.ExitCode)
	}
	if !strings.Contains(lines.String(), "Successfully built 0123456789ab") {
		t.Errorf("engine output not forwarded: %q", lines.String())
	}
	if len(events) == 0 {
		t.Error("expected progress events")
	}
	assertEmptyDir(t, cfg.WorkspaceBase)
}

func TestRunLocalBuild_Failures(t *testing.T) {
	failing := writeEngine(t, `echo "boom"; exit 1`)

	tests := []struct {
		name  string
		files map[string]string
		want  *errors.Error
	}{
		{
			name:  "privileged compose service",
			files: map[string]string{"docker-compose.yml": "services:\n  web:\n    image: nginx\n    privileged: true\n"},
			want:  errors.ErrSecurityViolation,
		},
		{
			name:  "unknown stack",
			files: map[string]string{"README.md": "nothing to build"},
			want:  errors.ErrStackUndetected,
		},
		{
			name:  "engine exits non-zero",
			files: map[string]string{"Dockerfile": "FROM alpine\n"},
			want:  errors.ErrBuildFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := localConfig(t, failing)
			_, err := runLocalBuild(context.Background(), localBuildOptions{
				Archive: writeArchive(t, "proj.zip", tt.files),
				User:    "bob",
				Config:  cfg,
			}, nil)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			assertEmptyDir(t, cfg.WorkspaceBase)
		})
	}
}

func TestRunLocalBuild_MissingArchive(t *testing.T) {
	_, err := runLocalBuild(context.Background(), localBuildOptions{
		Archive: filepath.Join(t.TempDir(), "missing.zip"),
		Config:  localConfig(t, "docker"),
	}, nil)
	if err == nil {
		t.Fatal("expected error for a missing archive")
	}
}

func TestConfigFromViper(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	viper.Set("build.workers", 4)
	viper.Set("build.timeout", "600")
	viper.Set("build.privileged_policy", "WARN")
	viper.Set("build.max_extract_entries", 10)
	viper.Set("registry.timeout", "45s")
	viper.Set("registry.scanner", "trivy")
	viper.Set("storage.type", "local")
	viper.Set("storage.s3.endpoint", "http://minio:9000")
	viper.Set("storage.s3.bucket", "subs")
	viper.Set("auth.enabled", true)
	viper.Set("auth.jwt_secret", "s3cret")

	bc := buildConfig()
	if bc.Workers != 4 || bc.Timeout != 10*time.Minute {
		t.Errorf("unexpected build config: %+v", bc)
	}
	if bc.PrivilegedPolicy != build.PrivilegedWarn {
		t.Errorf("expected warn policy, got %q", bc.PrivilegedPolicy)
	}
	if bc.Extract.MaxEntries != 10 {
		t.Errorf("expected extract limit 10, got %d", bc.Extract.MaxEntries)
	}

	rc := registryConfig()
	if rc.Timeout != 45*time.Second || rc.Scanner != registry.ScannerTrivy {
		t.Errorf("unexpected registry config: %+v", rc)
	}

	sc := storageConfig()
	if sc.Type != "s3" || sc.S3.Bucket != "subs" {
		t.Errorf("an S3 endpoint should select the s3 backend: %+v", sc)
	}

	ac := authConfig()
	if !ac.Enabled || ac.Secret != "s3cret" || ac.Issuer != "shipyardd" {
		t.Errorf("unexpected auth config: %+v", ac)
	}
}

func TestRateLimitConfigFromViper(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	viper.Set("ratelimit.enabled", true)
	viper.Set("ratelimit.submits_per_min", 2)
	viper.Set("ratelimit.writes_per_min", 30)

	rl := rateLimitConfig()
	if rl == nil || rl.SubmitsPerMin != 2 || rl.WritesPerMin != 30 {
		t.Fatalf("unexpected rate limit config: %+v", rl)
	}

	viper.Set("ratelimit.enabled", false)
	if rateLimitConfig() != nil {
		t.Error("expected nil config when rate limiting is disabled")
	}
}

func TestCorsMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(corsMiddleware(), ginLogger())
	router.GET("/v1/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/v1/health", nil)
	req.Header.Set("Origin", "https://hack.example.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("expected 204 for preflight, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://hack.example.com" {
		t.Errorf("unexpected allow origin %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/health?x=1", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}
