package build

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bitswalk/shipyard/src/common/errors"
	"github.com/bitswalk/shipyard/src/shipyardd/db"
	"github.com/bitswalk/shipyard/src/shipyardd/storage"
)

type testEnv struct {
	manager    *Manager
	backend    storage.Backend
	workspaces string
	calls      string
}

// newTestEnv wires a manager to an in-memory database, a local artifact store and
// a fake engine running engineBody. The manager is not started.
func newTestEnv(t *testing.T, engineBody string, timeout time.Duration) *testEnv {
	t.Helper()

	database, err := db.New(db.Config{})
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}

	backend, err := storage.NewLocal(storage.LocalConfig{BasePath: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}

	script, calls := writeFakeEngine(t, engineBody)
	workspaces := t.TempDir()

	m := NewManager(database, backend, nil, Config{
		Workers:          2,
		WorkspaceBase:    workspaces,
		Engine:           script,
		Timeout:          timeout,
		DispatchInterval: 50 * time.Millisecond,
	})

	t.Cleanup(func() {
		m.Stop()
		database.Shutdown()
	})

	if err := m.ProjectRepo().Upsert(&db.Project{ID: "proj-1", Name: "Weather Station", HackathonID: "h1"}); err != nil {
		t.Fatalf("failed to create project: %v", err)
	}

	return &testEnv{manager: m, backend: backend, workspaces: workspaces, calls: calls}
}

func (e *testEnv) start(t *testing.T) {
	t.Helper()
	if err := e.manager.Start(context.Background()); err != nil {
		t.Fatalf("failed to start manager: %v", err)
	}
}

func (e *testEnv) submit(t *testing.T, filename string, archive []byte) *db.ProjectVersion {
	t.Helper()
	v, err := e.manager.Submit(context.Background(), Submission{
		ProjectID: "proj-1",
		Filename:  filename,
		Notes:     "first try",
		Submitter: Submitter{ID: "u-1", Username: "alice"},
		Archive:   bytes.NewReader(archive),
		Size:      int64(len(archive)),
	})
	if err != nil {
		t.Fatalf("failed to submit version: %v", err)
	}
	return v
}

func (e *testEnv) await(t *testing.T, id string) *db.ProjectVersion {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	v, err := e.manager.Await(ctx, id)
	if err != nil {
		t.Fatalf("failed to await version: %v", err)
	}
	return v
}

// assertWorkspacesRemoved waits briefly for cleanup, which runs after the final status write
func (e *testEnv) assertWorkspacesRemoved(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		entries, err := os.ReadDir(e.workspaces)
		if err != nil {
			t.Fatalf("failed to read workspace base: %v", err)
		}
		if len(entries) == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("workspace not removed: %s", entries[0].Name())
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// =============================================================================
// Build outcomes
// =============================================================================

func TestManager_BuildsNodeProject(t *testing.T) {
	env := newTestEnv(t, classicOutput, time.Minute)

	var mu sync.Mutex
	var seen []Event
	env.manager.SetReporter(ReporterFunc(func(e Event) {
		mu.Lock()
		seen = append(seen, e)
		mu.Unlock()
	}))
	env.start(t)

	submitted := env.submit(t, "weather.zip", makeZip(t, map[string]string{"package.json": `{"name":"x"}`}))
	if submitted.Status != db.VersionStatusPending || submitted.VersionNumber != 1 {
		t.Fatalf("unexpected submitted version %+v", submitted)
	}

	v := env.await(t, submitted.ID)
	if v.Status != db.VersionStatusBuilt {
		t.Fatalf("expected built, got %s:\n%s", v.Status, v.BuildLogs)
	}
	if v.Stack != string(StackNodeJS) {
		t.Errorf("expected nodejs stack, got %q", v.Stack)
	}
	if v.ImageTag != "weather_alice_1" {
		t.Errorf("unexpected image tag %q", v.ImageTag)
	}
	if v.ImageID != "0123456789ab" {
		t.Errorf("unexpected image id %q", v.ImageID)
	}

	for _, want := range []string{"Detected stack: nodejs", "Generated Dockerfile", "[2/2] cache hit", "build complete"} {
		if !strings.Contains(v.BuildLogs, want) {
			t.Errorf("expected %q in build logs:\n%s", want, v.BuildLogs)
		}
	}

	if v.LogPath == "" {
		t.Fatal("expected the full log to be stored")
	}
	exists, err := env.backend.Exists(context.Background(), v.LogPath)
	if err != nil || !exists {
		t.Errorf("full log missing from storage: %v", err)
	}

	calls := readCalls(t, env.calls)
	if len(calls) != 1 || !strings.HasPrefix(calls[0], "build -t weather_alice_1 ") {
		t.Errorf("unexpected engine calls %v", calls)
	}

	env.assertWorkspacesRemoved(t)

	mu.Lock()
	defer mu.Unlock()
	if len(seen) == 0 {
		t.Fatal("expected events on the manager reporter")
	}
	for _, e := range seen {
		if e.VersionID != v.ID {
			t.Fatalf("event without version id: %+v", e)
		}
	}
}

func TestManager_FailureScenarios(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		archive  func(t *testing.T) []byte
		engine   string
		timeout  time.Duration
		wantLogs []string
		// engine invocations expected
		wantCalls int
		wantCode  string
		// failure blamed on the archive itself
		rejected bool
	}{
		{
			name:      "empty archive",
			filename:  "empty.zip",
			archive:   func(t *testing.T) []byte { return makeZip(t, nil) },
			wantLogs:  []string{"could not detect stack"},
			wantCalls: 0,
			wantCode:  "build.stack_undetected",
			rejected:  true,
		},
		{
			name:      "corrupt archive",
			filename:  "broken.zip",
			archive:   func(*testing.T) []byte { return []byte("definitely not a zip") },
			wantLogs:  []string{"Upload is not a valid ZIP file."},
			wantCalls: 0,
			wantCode:  "build.corrupt_archive",
			rejected:  true,
		},
		{
			name:     "privileged compose service",
			filename: "stack.zip",
			archive: func(t *testing.T) []byte {
				return makeZip(t, map[string]string{
					"docker-compose.yml": "services:\n  web:\n    image: nginx\n    privileged: true\n",
				})
			},
			wantLogs:  []string{"SECURITY VIOLATION", "build aborted by security policy"},
			wantCalls: 0,
			wantCode:  "build.security_violation",
		},
		{
			name:      "engine exits non-zero",
			filename:  "app.zip",
			archive:   func(t *testing.T) []byte { return makeZip(t, map[string]string{"Dockerfile": "FROM alpine\nRUN false\n"}) },
			engine:    `echo "Step 1/2 : FROM alpine"; exit 1`,
			wantLogs:  []string{"Step 1/2 : FROM alpine", "build failed with exit code 1"},
			wantCalls: 1,
			wantCode:  "build.failed",
		},
		{
			name:      "engine timeout",
			filename:  "slow.zip",
			archive:   func(t *testing.T) []byte { return makeZip(t, map[string]string{"Dockerfile": "FROM alpine\nRUN sleep 120\n"}) },
			engine:    "sleep 120",
			timeout:   time.Second,
			wantLogs:  []string{"build timed out after 1s"},
			wantCalls: 1,
			wantCode:  "build.timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			timeout := tt.timeout
			if timeout == 0 {
				timeout = time.Minute
			}
			env := newTestEnv(t, tt.engine, timeout)
			env.start(t)

			start := time.Now()
			v := env.await(t, env.submit(t, tt.filename, tt.archive(t)).ID)

			if v.Status != db.VersionStatusFailed {
				t.Fatalf("expected failed, got %s:\n%s", v.Status, v.BuildLogs)
			}
			for _, want := range tt.wantLogs {
				if !strings.Contains(v.BuildLogs, want) {
					t.Errorf("expected %q in build logs:\n%s", want, v.BuildLogs)
				}
			}
			if v.FailureCode != tt.wantCode {
				t.Errorf("expected failure code %q, got %q", tt.wantCode, v.FailureCode)
			}
			if _, rejected := SubmissionFailure(v); rejected != tt.rejected {
				t.Errorf("expected rejected=%v for %s", tt.rejected, v.FailureCode)
			}
			if got := len(readCalls(t, env.calls)); got != tt.wantCalls {
				t.Errorf("expected %d engine calls, got %d", tt.wantCalls, got)
			}
			if tt.timeout > 0 && time.Since(start) > tt.timeout+5*time.Second {
				t.Errorf("timed out build took %s", time.Since(start))
			}

			env.assertWorkspacesRemoved(t)
		})
	}
}

// =============================================================================
// Submission and lifecycle
// =============================================================================

func TestManager_SubmitValidation(t *testing.T) {
	env := newTestEnv(t, "", time.Minute)

	_, err := env.manager.Submit(context.Background(), Submission{
		ProjectID: "proj-1", Filename: "project.tar", Archive: strings.NewReader("x"), Size: 1,
	})
	if !errors.Is(err, errors.ErrInvalidArchive) {
		t.Errorf("expected ErrInvalidArchive, got %v", err)
	}

	_, err = env.manager.Submit(context.Background(), Submission{
		ProjectID: "missing", Filename: "project.zip", Archive: strings.NewReader("x"), Size: 1,
	})
	if !errors.Is(err, errors.ErrProjectNotFound) {
		t.Errorf("expected ErrProjectNotFound, got %v", err)
	}
}

func TestManager_ConcurrentSubmissionsGetDistinctNumbers(t *testing.T) {
	env := newTestEnv(t, classicOutput, time.Minute)
	env.start(t)

	archive := makeZip(t, map[string]string{"requirements.txt": "flask"})

	const n = 4
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := env.manager.Submit(context.Background(), Submission{
				ProjectID: "proj-1",
				Filename:  fmt.Sprintf("api-%d.zip", i),
				Submitter: Submitter{ID: "u-1"},
				Archive:   bytes.NewReader(archive),
				Size:      int64(len(archive)),
			})
			if err != nil {
				t.Errorf("failed to submit: %v", err)
				return
			}
			ids[i] = v.ID
		}(i)
	}
	wg.Wait()

	numbers := make(map[int]bool)
	for _, id := range ids {
		if id == "" {
			t.FailNow()
		}
		v := env.await(t, id)
		if v.Status != db.VersionStatusBuilt {
			t.Fatalf("expected built, got %s:\n%s", v.Status, v.BuildLogs)
		}
		if numbers[v.VersionNumber] {
			t.Fatalf("duplicate version number %d", v.VersionNumber)
		}
		numbers[v.VersionNumber] = true

		wantTag := fmt.Sprintf("_u-1_%d", v.VersionNumber)
		if !strings.HasSuffix(v.ImageTag, wantTag) {
			t.Errorf("expected tag ending in %s, got %s", wantTag, v.ImageTag)
		}
	}
	for i := 1; i <= n; i++ {
		if !numbers[i] {
			t.Errorf("version number %d not assigned", i)
		}
	}
}

func TestManager_AwaitHonoursContext(t *testing.T) {
	env := newTestEnv(t, "", time.Minute)

	// Not started, so the version stays pending.
	v := env.submit(t, "weather.zip", makeZip(t, map[string]string{"package.json": "{}"}))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	got, err := env.manager.Await(ctx, v.ID)
	if err != context.DeadlineExceeded {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if got == nil || got.Status != db.VersionStatusPending {
		t.Fatalf("expected the pending version, got %+v", got)
	}

	if _, err := env.manager.Await(context.Background(), "no-such-version"); !errors.Is(err, errors.ErrVersionNotFound) {
		t.Errorf("expected ErrVersionNotFound, got %v", err)
	}
}

func TestManager_PendingVersionsBuildOnStart(t *testing.T) {
	env := newTestEnv(t, classicOutput, time.Minute)

	v := env.submit(t, "weather.zip", makeZip(t, map[string]string{"Dockerfile": "FROM alpine\n"}))
	env.start(t)

	if got := env.await(t, v.ID); got.Status != db.VersionStatusBuilt {
		t.Fatalf("expected built, got %s:\n%s", got.Status, got.BuildLogs)
	}
}

func TestManager_FailsInterruptedBuildsOnStart(t *testing.T) {
	env := newTestEnv(t, classicOutput, time.Minute)
	repo := env.manager.VersionRepo()

	stale := &db.ProjectVersion{ProjectID: "proj-1", FilePath: "projects/proj-1/stale.zip", SubmittedBy: "u-1"}
	if err := repo.Create(stale); err != nil {
		t.Fatalf("failed to create version: %v", err)
	}
	if err := repo.MarkBuilding(stale.ID); err != nil {
		t.Fatalf("failed to mark building: %v", err)
	}

	env.start(t)

	got, err := env.manager.GetVersion(stale.ID)
	if err != nil {
		t.Fatalf("failed to get version: %v", err)
	}
	if got.Status != db.VersionStatusFailed || !strings.Contains(got.BuildLogs, "interrupted") {
		t.Fatalf("expected interrupted failure, got %s: %q", got.Status, got.BuildLogs)
	}
}

func TestManager_StartTwice(t *testing.T) {
	env := newTestEnv(t, "", time.Minute)
	env.start(t)

	if err := env.manager.Start(context.Background()); err == nil {
		t.Fatal("expected second start to fail")
	}
	if !env.manager.IsRunning() {
		t.Fatal("manager should be running")
	}
	if err := env.manager.Stop(); err != nil {
		t.Fatalf("failed to stop: %v", err)
	}
	if env.manager.IsRunning() {
		t.Fatal("manager should be stopped")
	}
}

func TestManager_StopLeavesQueuedVersionsPending(t *testing.T) {
	env := newTestEnv(t, "sleep 30", time.Minute)
	env.manager.config.Workers = 1
	env.start(t)

	archive := makeZip(t, map[string]string{"Dockerfile": "FROM alpine\n"})
	ids := make([]string, 4)
	for i := range ids {
		ids[i] = env.submit(t, fmt.Sprintf("app-%d.zip", i), archive).ID
	}

	deadline := time.Now().Add(10 * time.Second)
	for len(readCalls(t, env.calls)) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first build never reached the engine")
		}
		time.Sleep(20 * time.Millisecond)
	}

	if err := env.manager.Stop(); err != nil {
		t.Fatalf("failed to stop: %v", err)
	}

	if calls := readCalls(t, env.calls); len(calls) != 1 {
		t.Fatalf("expected a single engine call, got %v", calls)
	}

	counts := map[db.VersionStatus]int{}
	for _, id := range ids {
		v, err := env.manager.GetVersion(id)
		if err != nil {
			t.Fatalf("failed to get version: %v", err)
		}
		counts[v.Status]++
	}
	if counts[db.VersionStatusFailed] != 1 || counts[db.VersionStatusPending] != 3 {
		t.Fatalf("only the started build may fail, got %v", counts)
	}
	env.assertWorkspacesRemoved(t)
}

func TestManager_SubmitAfterStop(t *testing.T) {
	env := newTestEnv(t, "", time.Minute)
	env.start(t)
	if err := env.manager.Stop(); err != nil {
		t.Fatalf("failed to stop: %v", err)
	}

	archive := makeZip(t, map[string]string{"Dockerfile": "FROM alpine\n"})
	_, err := env.manager.Submit(context.Background(), Submission{
		ProjectID: "proj-1", Filename: "late.zip", Archive: bytes.NewReader(archive), Size: int64(len(archive)),
	})
	if !errors.Is(err, errors.ErrManagerStopped) {
		t.Fatalf("expected ErrManagerStopped, got %v", err)
	}
	if err := env.manager.Start(context.Background()); !errors.Is(err, errors.ErrManagerStopped) {
		t.Fatalf("expected restart to be refused, got %v", err)
	}

	versions, err := env.manager.VersionRepo().ListByProject("proj-1", 0, 10)
	if err != nil {
		t.Fatalf("failed to list versions: %v", err)
	}
	if len(versions) != 0 {
		t.Fatalf("refused submission must not create a version, got %d", len(versions))
	}
}
