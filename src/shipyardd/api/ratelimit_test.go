package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/bitswalk/shipyard/src/shipyardd/build"
	"github.com/bitswalk/shipyard/src/shipyardd/db"
	"github.com/bitswalk/shipyard/src/shipyardd/storage"
	"github.com/gin-gonic/gin"
)

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{Enabled: true})
	defer rl.Stop()

	key := "submit:ip:127.0.0.1"
	for i := 0; i < 3; i++ {
		if !rl.Allow(key, 3) {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.Allow(key, 3) {
		t.Fatal("4th request should be denied")
	}

	// Each key has its own window
	if !rl.Allow("submit:ip:10.0.0.2", 3) {
		t.Fatal("first request for another key should be allowed")
	}
}

func TestRateLimiter_WindowExpiry(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{Enabled: true})
	defer rl.Stop()

	key := "write:user:u-1"
	if !rl.Allow(key, 1) {
		t.Fatal("first request should be allowed")
	}
	if rl.Allow(key, 1) {
		t.Fatal("second request should be denied within same window")
	}

	rl.mu.Lock()
	rl.windows[key].expiresAt = time.Now().Add(-time.Second)
	rl.mu.Unlock()

	if !rl.Allow(key, 1) {
		t.Fatal("request after window expiry should be allowed")
	}
}

func TestRateLimiter_DisabledAndZeroLimit(t *testing.T) {
	off := NewRateLimiter(RateLimitConfig{Enabled: false})
	defer off.Stop()
	on := NewRateLimiter(RateLimitConfig{Enabled: true})
	defer on.Stop()

	for i := 0; i < 50; i++ {
		if !off.Allow("k", 1) {
			t.Fatalf("request %d should pass when disabled", i+1)
		}
		if !on.Allow("k", 0) {
			t.Fatalf("request %d should pass with zero limit", i+1)
		}
	}
}

func TestRateLimiter_Sweep(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{Enabled: true})
	defer rl.Stop()

	rl.Allow("a", 5)
	rl.Allow("b", 5)

	rl.sweep(time.Now().Add(2 * time.Minute))

	rl.mu.Lock()
	remaining := len(rl.windows)
	rl.mu.Unlock()
	if remaining != 0 {
		t.Errorf("expected 0 windows after sweep, got %d", remaining)
	}

	// Stop twice must not panic
	rl.Stop()
}

func TestRoutes_RateLimited(t *testing.T) {
	gin.SetMode(gin.TestMode)

	database, err := db.New(db.Config{})
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	t.Cleanup(func() { database.Shutdown() })
	backend, err := storage.NewLocal(storage.LocalConfig{BasePath: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	manager := build.NewManager(database, backend, nil, build.Config{
		WorkspaceBase:    t.TempDir(),
		DispatchInterval: time.Minute,
	})

	a := New(Config{
		Database:     database,
		BuildManager: manager,
		Storage:      backend,
		RateLimit:    &RateLimitConfig{Enabled: true, SubmitsPerMin: 1, WritesPerMin: 2},
	})
	defer a.Stop()

	r := gin.New()
	a.RegisterRoutes(r)

	for i := 0; i < 2; i++ {
		if w := request(r, http.MethodPut, "/v1/projects/p-1", "", `{"name":"Weather"}`); w.Code != http.StatusOK {
			t.Fatalf("write %d: expected 200, got %d", i+1, w.Code)
		}
	}
	w := request(r, http.MethodPut, "/v1/projects/p-1", "", `{"name":"Weather"}`)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d: %s", w.Code, w.Body.String())
	}
	if w.Header().Get("Retry-After") != "60" {
		t.Errorf("expected Retry-After header, got %q", w.Header().Get("Retry-After"))
	}

	// Reads are never limited
	if w := request(r, http.MethodGet, "/v1/projects/p-1", "", ""); w.Code != http.StatusOK {
		t.Fatalf("expected read to pass, got %d", w.Code)
	}

	// Submissions have their own quota
	if w := request(r, http.MethodPost, "/v1/projects/p-1/versions", "", ""); w.Code == http.StatusTooManyRequests {
		t.Fatal("first submission should not be rate limited")
	}
	if w := request(r, http.MethodPost, "/v1/projects/p-1/versions", "", ""); w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second submission to be limited, got %d", w.Code)
	}
}
