package db

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/bitswalk/shipyard/src/common/errors"
)

func setupTestDB(t *testing.T) *Database {
	t.Helper()

	database, err := New(Config{})
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	t.Cleanup(func() { database.Shutdown() })

	return database
}

func createTestProject(t *testing.T, database *Database, id string) *Project {
	t.Helper()

	p := &Project{ID: id, Name: "demo-" + id, HackathonID: "hack1"}
	if err := NewProjectRepository(database).Upsert(p); err != nil {
		t.Fatalf("failed to create project: %v", err)
	}
	return p
}

func createTestVersion(t *testing.T, repo *ProjectVersionRepository, projectID string) *ProjectVersion {
	t.Helper()

	v := &ProjectVersion{
		ProjectID:   projectID,
		FilePath:    "projects/" + projectID + "/" + newTestSuffix() + ".zip",
		SubmittedBy: "user-1",
	}
	if err := repo.Create(v); err != nil {
		t.Fatalf("failed to create version: %v", err)
	}
	return v
}

var (
	suffixMu sync.Mutex
	suffixN  int
)

func newTestSuffix() string {
	suffixMu.Lock()
	defer suffixMu.Unlock()
	suffixN++
	return fmt.Sprintf("version_%04d", suffixN)
}

// =============================================================================
// Version numbering
// =============================================================================

func TestCreate_AssignsSequentialNumbers(t *testing.T) {
	database := setupTestDB(t)
	createTestProject(t, database, "p1")
	createTestProject(t, database, "p2")
	repo := NewProjectVersionRepository(database)

	for want := 1; want <= 3; want++ {
		v := createTestVersion(t, repo, "p1")
		if v.VersionNumber != want {
			t.Fatalf("expected version number %d, got %d", want, v.VersionNumber)
		}
		if v.Status != VersionStatusPending {
			t.Fatalf("expected pending status, got %s", v.Status)
		}
	}

	other := createTestVersion(t, repo, "p2")
	if other.VersionNumber != 1 {
		t.Fatalf("numbering must be per project, got %d", other.VersionNumber)
	}
}

func TestCreate_ConcurrentSubmissionsGetDistinctNumbers(t *testing.T) {
	database := setupTestDB(t)
	createTestProject(t, database, "p1")
	repo := NewProjectVersionRepository(database)

	const n = 20
	var wg sync.WaitGroup
	numbers := make(chan int, n)
	errs := make(chan error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v := &ProjectVersion{ProjectID: "p1", FilePath: fmt.Sprintf("projects/p1/concurrent_%d.zip", i)}
			if err := repo.Create(v); err != nil {
				errs <- err
				return
			}
			numbers <- v.VersionNumber
		}(i)
	}
	wg.Wait()
	close(numbers)
	close(errs)

	for err := range errs {
		t.Fatalf("concurrent create failed: %v", err)
	}

	seen := make(map[int]bool)
	for num := range numbers {
		if seen[num] {
			t.Fatalf("version number %d assigned twice", num)
		}
		seen[num] = true
	}
	for i := 1; i <= n; i++ {
		if !seen[i] {
			t.Fatalf("version number %d missing", i)
		}
	}
}

func TestCreate_DuplicateFilePathRejected(t *testing.T) {
	database := setupTestDB(t)
	createTestProject(t, database, "p1")
	repo := NewProjectVersionRepository(database)

	v := createTestVersion(t, repo, "p1")
	dup := &ProjectVersion{ProjectID: "p1", FilePath: v.FilePath}
	if err := repo.Create(dup); err == nil {
		t.Fatal("expected unique file_path violation")
	}
}

// =============================================================================
// State machine
// =============================================================================

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to VersionStatus
		want     bool
	}{
		{VersionStatusPending, VersionStatusBuilding, true},
		{VersionStatusPending, VersionStatusFailed, true},
		{VersionStatusBuilding, VersionStatusBuilt, true},
		{VersionStatusBuilding, VersionStatusFailed, true},
		{VersionStatusBuilt, VersionStatusDeployed, true},
		{VersionStatusPending, VersionStatusBuilt, false},
		{VersionStatusBuilt, VersionStatusBuilding, false},
		{VersionStatusBuilt, VersionStatusPending, false},
		{VersionStatusFailed, VersionStatusBuilding, false},
		{VersionStatusFailed, VersionStatusPending, false},
		{VersionStatusDeployed, VersionStatusBuilt, false},
		{VersionStatusFailed, VersionStatusDeployed, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s_to_%s", tt.from, tt.to), func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestLifecycle_BuiltThenDeployed(t *testing.T) {
	database := setupTestDB(t)
	createTestProject(t, database, "p1")
	repo := NewProjectVersionRepository(database)
	v := createTestVersion(t, repo, "p1")

	if err := repo.MarkBuilding(v.ID); err != nil {
		t.Fatalf("failed to mark building: %v", err)
	}
	if err := repo.RecordBuildInfo(v.ID, "nodejs", "demo_alice_1"); err != nil {
		t.Fatalf("failed to record build info: %v", err)
	}
	if err := repo.MarkBuilt(v.ID, BuildOutcome{Logs: "ok", Stack: "nodejs", ImageTag: "demo_alice_1", ImageID: "abc"}); err != nil {
		t.Fatalf("failed to mark built: %v", err)
	}
	if err := repo.MarkDeployed(v.ID); err != nil {
		t.Fatalf("failed to mark deployed: %v", err)
	}

	got, err := repo.GetByID(v.ID)
	if err != nil {
		t.Fatalf("failed to get version: %v", err)
	}
	if got.Status != VersionStatusDeployed {
		t.Fatalf("expected deployed, got %s", got.Status)
	}
	if got.BuildLogs != "ok" || got.ImageID != "abc" || got.ImageTag != "demo_alice_1" {
		t.Fatalf("unexpected build outcome: %+v", got)
	}
	if got.StartedAt == nil || got.CompletedAt == nil {
		t.Fatal("expected started_at and completed_at to be set")
	}
}

func TestTerminalStatesNeverRegress(t *testing.T) {
	database := setupTestDB(t)
	createTestProject(t, database, "p1")
	repo := NewProjectVersionRepository(database)

	failed := createTestVersion(t, repo, "p1")
	if err := repo.MarkFailed(failed.ID, BuildOutcome{Logs: "boom"}); err != nil {
		t.Fatalf("failed to mark failed: %v", err)
	}

	built := createTestVersion(t, repo, "p1")
	if err := repo.MarkBuilding(built.ID); err != nil {
		t.Fatalf("failed to mark building: %v", err)
	}
	if err := repo.MarkBuilt(built.ID, BuildOutcome{Logs: "ok"}); err != nil {
		t.Fatalf("failed to mark built: %v", err)
	}

	for _, id := range []string{failed.ID, built.ID} {
		if err := repo.MarkBuilding(id); !errors.Is(err, errors.ErrInvalidTransition) {
			t.Errorf("expected invalid transition to building, got %v", err)
		}
		if err := repo.RecordBuildInfo(id, "python", "x"); !errors.Is(err, errors.ErrInvalidTransition) {
			t.Errorf("expected build info to be rejected, got %v", err)
		}
	}

	if err := repo.MarkFailed(built.ID, BuildOutcome{Logs: "late"}); !errors.Is(err, errors.ErrInvalidTransition) {
		t.Errorf("built version must not become failed, got %v", err)
	}
	if err := repo.MarkDeployed(failed.ID); !errors.Is(err, errors.ErrInvalidTransition) {
		t.Errorf("failed version must not be deployed, got %v", err)
	}

	got, _ := repo.GetByID(built.ID)
	if got.Status != VersionStatusBuilt || got.BuildLogs != "ok" {
		t.Fatalf("built version was modified: %+v", got)
	}
}

func TestTransition_UnknownVersion(t *testing.T) {
	database := setupTestDB(t)
	repo := NewProjectVersionRepository(database)

	err := repo.MarkBuilding("missing")
	if !errors.Is(err, errors.ErrVersionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMarkFailed_KeepsRecordedBuildInfo(t *testing.T) {
	database := setupTestDB(t)
	createTestProject(t, database, "p1")
	repo := NewProjectVersionRepository(database)
	v := createTestVersion(t, repo, "p1")

	if err := repo.MarkBuilding(v.ID); err != nil {
		t.Fatalf("failed to mark building: %v", err)
	}
	if err := repo.RecordBuildInfo(v.ID, "python", "demo_bob_1"); err != nil {
		t.Fatalf("failed to record build info: %v", err)
	}
	if err := repo.MarkFailed(v.ID, BuildOutcome{Logs: "exit 1", FailureCode: "build.failed"}); err != nil {
		t.Fatalf("failed to mark failed: %v", err)
	}

	got, _ := repo.GetByID(v.ID)
	if got.Stack != "python" || got.ImageTag != "demo_bob_1" {
		t.Fatalf("expected stack and tag to survive failure, got %+v", got)
	}
	if got.FailureCode != "build.failed" {
		t.Fatalf("expected failure code to be stored, got %q", got.FailureCode)
	}
}

// =============================================================================
// Queries
// =============================================================================

func TestListByProject_NewestFirstWithPaging(t *testing.T) {
	database := setupTestDB(t)
	createTestProject(t, database, "p1")
	repo := NewProjectVersionRepository(database)

	for i := 0; i < 5; i++ {
		createTestVersion(t, repo, "p1")
	}

	all, err := repo.ListByProject("p1", 0, 100)
	if err != nil {
		t.Fatalf("failed to list versions: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("expected 5 versions, got %d", len(all))
	}
	if all[0].VersionNumber != 5 || all[4].VersionNumber != 1 {
		t.Fatalf("expected newest first, got %d..%d", all[0].VersionNumber, all[4].VersionNumber)
	}

	page, err := repo.ListByProject("p1", 1, 2)
	if err != nil {
		t.Fatalf("failed to list page: %v", err)
	}
	if len(page) != 2 || page[0].VersionNumber != 4 {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestGetForProject_RejectsForeignVersion(t *testing.T) {
	database := setupTestDB(t)
	createTestProject(t, database, "p1")
	createTestProject(t, database, "p2")
	repo := NewProjectVersionRepository(database)
	v := createTestVersion(t, repo, "p1")

	got, err := repo.GetForProject("p2", v.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatal("expected nil for a version of another project")
	}
}

// =============================================================================
// Persistence
// =============================================================================

func TestPersistAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shipyardd.db")

	first, err := New(Config{PersistPath: path})
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	createTestProject(t, first, "p1")
	repo := NewProjectVersionRepository(first)
	v := createTestVersion(t, repo, "p1")
	if err := NewDeploymentRepository(first).Create(&Deployment{
		VersionID: v.ID, TargetTag: "registry/demo:1", Labels: map[string]string{"a": "b"},
	}); err != nil {
		t.Fatalf("failed to create deployment: %v", err)
	}
	if err := first.Shutdown(); err != nil {
		t.Fatalf("failed to shutdown: %v", err)
	}

	second, err := New(Config{PersistPath: path, LoadOnStart: true})
	if err != nil {
		t.Fatalf("failed to reopen database: %v", err)
	}
	defer second.Shutdown()

	got, err := NewProjectVersionRepository(second).GetByID(v.ID)
	if err != nil {
		t.Fatalf("failed to get version: %v", err)
	}
	if got == nil || got.VersionNumber != 1 {
		t.Fatalf("expected version to be restored, got %+v", got)
	}

	deps, err := NewDeploymentRepository(second).ListByVersion(v.ID)
	if err != nil {
		t.Fatalf("failed to list deployments: %v", err)
	}
	if len(deps) != 1 || deps[0].Labels["a"] != "b" {
		t.Fatalf("expected deployment to be restored, got %+v", deps)
	}

	next := createTestVersion(t, NewProjectVersionRepository(second), "p1")
	if next.VersionNumber != 2 {
		t.Fatalf("numbering must continue after reload, got %d", next.VersionNumber)
	}
}
