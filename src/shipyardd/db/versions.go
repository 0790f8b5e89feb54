package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/bitswalk/shipyard/src/common/errors"
	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

// maxNumberingAttempts bounds retries when two inserts race for the same version number
const maxNumberingAttempts = 5

// ProjectVersionRepository handles project version database operations
type ProjectVersionRepository struct {
	db *Database
}

// NewProjectVersionRepository creates a new project version repository
func NewProjectVersionRepository(db *Database) *ProjectVersionRepository {
	return &ProjectVersionRepository{db: db}
}

// Create inserts a new pending version. The version number is computed inside the
// INSERT statement itself, and UNIQUE(project_id, version_number) turns any race
// into a retry instead of a duplicate.
func (r *ProjectVersionRepository) Create(v *ProjectVersion) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	v.CreatedAt = now
	v.UpdatedAt = now
	if v.Status == "" {
		v.Status = VersionStatusPending
	}

	query := `
		INSERT INTO project_versions (id, project_id, version_number, file_path,
			version_notes, submitted_by, submitter_name, archive_name, status, created_at, updated_at)
		SELECT ?, ?, COALESCE(MAX(version_number), 0) + 1, ?, ?, ?, ?, ?, ?, ?, ?
		FROM project_versions WHERE project_id = ?
		RETURNING version_number
	`

	var lastErr error
	for attempt := 0; attempt < maxNumberingAttempts; attempt++ {
		err := r.db.DB().QueryRow(query,
			v.ID, v.ProjectID, v.FilePath,
			v.VersionNotes, v.SubmittedBy, v.SubmitterName, v.ArchiveName, v.Status, v.CreatedAt, v.UpdatedAt,
			v.ProjectID,
		).Scan(&v.VersionNumber)
		if err == nil {
			return nil
		}
		if !isVersionNumberConflict(err) {
			return fmt.Errorf("failed to create project version: %w", err)
		}
		lastErr = err
	}

	return errors.ErrVersionNumberConflict.WithCause(lastErr)
}

func isVersionNumberConflict(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique &&
		strings.Contains(sqliteErr.Error(), "version_number")
}

const selectProjectVersionsQuery = `
	SELECT id, project_id, version_number, file_path, version_notes,
		submitted_by, submitter_name, archive_name, status, build_logs, stack,
		image_tag, image_id, log_path, failure_code, created_at, updated_at,
		started_at, completed_at
	FROM project_versions
`

// GetByID retrieves a version by ID, returning nil when it does not exist
func (r *ProjectVersionRepository) GetByID(id string) (*ProjectVersion, error) {
	row := r.db.DB().QueryRow(selectProjectVersionsQuery+` WHERE id = ?`, id)
	return r.scanVersion(row)
}

// GetForProject retrieves a version only if it belongs to the given project
func (r *ProjectVersionRepository) GetForProject(projectID, id string) (*ProjectVersion, error) {
	row := r.db.DB().QueryRow(selectProjectVersionsQuery+` WHERE id = ? AND project_id = ?`, id, projectID)
	return r.scanVersion(row)
}

// ListByProject returns a page of a project's versions, newest first
func (r *ProjectVersionRepository) ListByProject(projectID string, skip, limit int) ([]ProjectVersion, error) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.DB().Query(selectProjectVersionsQuery+`
		WHERE project_id = ?
		ORDER BY created_at DESC, version_number DESC
		LIMIT ? OFFSET ?
	`, projectID, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("failed to list project versions: %w", err)
	}
	defer rows.Close()

	return r.scanVersions(rows)
}

// ListByStatus returns all versions in a status, oldest first
func (r *ProjectVersionRepository) ListByStatus(status VersionStatus) ([]ProjectVersion, error) {
	rows, err := r.db.DB().Query(selectProjectVersionsQuery+` WHERE status = ? ORDER BY created_at ASC`, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list project versions by status: %w", err)
	}
	defer rows.Close()

	return r.scanVersions(rows)
}

// ListPending returns versions waiting for a worker
func (r *ProjectVersionRepository) ListPending() ([]ProjectVersion, error) {
	return r.ListByStatus(VersionStatusPending)
}

// MarkBuilding moves a pending version to building
func (r *ProjectVersionRepository) MarkBuilding(id string) error {
	now := time.Now().UTC()
	return r.transition(id, VersionStatusBuilding, `, started_at = ?`, now)
}

// RecordBuildInfo stores the detected stack and generated tag while the build runs
func (r *ProjectVersionRepository) RecordBuildInfo(id, stack, imageTag string) error {
	result, err := r.db.DB().Exec(`
		UPDATE project_versions SET stack = ?, image_tag = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, stack, imageTag, time.Now().UTC(), id, VersionStatusBuilding)
	if err != nil {
		return fmt.Errorf("failed to record build info: %w", err)
	}
	return r.checkAffected(result, id, VersionStatusBuilding)
}

// MarkBuilt moves a building version to built and stores its logs and image
func (r *ProjectVersionRepository) MarkBuilt(id string, out BuildOutcome) error {
	now := time.Now().UTC()
	return r.transition(id, VersionStatusBuilt,
		`, build_logs = ?, log_path = ?, stack = ?, image_tag = ?, image_id = ?, completed_at = ?`,
		out.Logs, out.LogPath, out.Stack, out.ImageTag, out.ImageID, now)
}

// MarkFailed moves a pending or building version to failed and stores its logs.
// Empty stack and tag leave previously recorded values in place.
func (r *ProjectVersionRepository) MarkFailed(id string, out BuildOutcome) error {
	now := time.Now().UTC()
	return r.transition(id, VersionStatusFailed,
		`, build_logs = ?, log_path = ?, stack = COALESCE(NULLIF(?, ''), stack),
		   image_tag = COALESCE(NULLIF(?, ''), image_tag), failure_code = ?, completed_at = ?`,
		out.Logs, out.LogPath, out.Stack, out.ImageTag, out.FailureCode, now)
}

// MarkDeployed moves a built version to deployed
func (r *ProjectVersionRepository) MarkDeployed(id string) error {
	return r.transition(id, VersionStatusDeployed, "")
}

// transition performs a compare-and-swap status update. Only rows currently in a
// status allowed to reach `to` are touched, so terminal states cannot regress.
func (r *ProjectVersionRepository) transition(id string, to VersionStatus, set string, args ...interface{}) error {
	from := sourcesOf(to)
	if len(from) == 0 {
		return errors.ErrInvalidTransition.WithMessagef("no status can move to %s", to)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(from)), ", ")
	query := fmt.Sprintf(`UPDATE project_versions SET status = ?, updated_at = ?%s WHERE id = ? AND status IN (%s)`,
		set, placeholders)

	params := make([]interface{}, 0, len(args)+len(from)+3)
	params = append(params, to, time.Now().UTC())
	params = append(params, args...)
	params = append(params, id)
	for _, f := range from {
		params = append(params, f)
	}

	result, err := r.db.DB().Exec(query, params...)
	if err != nil {
		return fmt.Errorf("failed to update project version status: %w", err)
	}

	return r.checkAffected(result, id, to)
}

func (r *ProjectVersionRepository) checkAffected(result sql.Result, id string, to VersionStatus) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	current, err := r.GetByID(id)
	if err != nil {
		return err
	}
	if current == nil {
		return errors.ErrVersionNotFound.WithMessagef("project version not found: %s", id)
	}
	return errors.ErrInvalidTransition.WithMessagef("project version %s is %s, cannot move to %s", id, current.Status, to)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *ProjectVersionRepository) scanInto(s rowScanner) (*ProjectVersion, error) {
	var v ProjectVersion
	var startedAt, completedAt sql.NullTime

	if err := s.Scan(
		&v.ID, &v.ProjectID, &v.VersionNumber, &v.FilePath, &v.VersionNotes,
		&v.SubmittedBy, &v.SubmitterName, &v.ArchiveName, &v.Status, &v.BuildLogs, &v.Stack,
		&v.ImageTag, &v.ImageID, &v.LogPath, &v.FailureCode, &v.CreatedAt, &v.UpdatedAt,
		&startedAt, &completedAt,
	); err != nil {
		return nil, err
	}

	if startedAt.Valid {
		v.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		v.CompletedAt = &completedAt.Time
	}

	return &v, nil
}

func (r *ProjectVersionRepository) scanVersion(row *sql.Row) (*ProjectVersion, error) {
	v, err := r.scanInto(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan project version: %w", err)
	}
	return v, nil
}

func (r *ProjectVersionRepository) scanVersions(rows *sql.Rows) ([]ProjectVersion, error) {
	var versions []ProjectVersion
	for rows.Next() {
		v, err := r.scanInto(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project version: %w", err)
		}
		versions = append(versions, *v)
	}
	return versions, rows.Err()
}
