package migrations

import "database/sql"

// migration001InitialSchema creates the projects and project_versions tables
func migration001InitialSchema() Migration {
	return Migration{
		Version:     1,
		Description: "Initial schema with projects and project versions",
		Up:          migration001Up,
	}
}

func migration001Up(tx *sql.Tx) error {
	for _, stmt := range []string{
		projectsTableSQL,
		projectVersionsTableSQL,
		projectVersionsIndexesSQL,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

const projectsTableSQL = `
CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	hackathon_id TEXT NOT NULL DEFAULT '',
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
)`

// version_number uniqueness per project backs the atomic numbering in
// ProjectVersionRepository.Create.
const projectVersionsTableSQL = `
CREATE TABLE IF NOT EXISTS project_versions (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	version_number INTEGER NOT NULL,
	file_path TEXT NOT NULL UNIQUE,
	version_notes TEXT NOT NULL DEFAULT '',
	submitted_by TEXT NOT NULL DEFAULT '',
	submitter_name TEXT NOT NULL DEFAULT '',
	archive_name TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'pending',
	build_logs TEXT NOT NULL DEFAULT '',
	stack TEXT NOT NULL DEFAULT '',
	image_tag TEXT NOT NULL DEFAULT '',
	image_id TEXT NOT NULL DEFAULT '',
	log_path TEXT NOT NULL DEFAULT '',
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	started_at DATETIME,
	completed_at DATETIME,
	UNIQUE (project_id, version_number),
	FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
)`

const projectVersionsIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_project_versions_project ON project_versions(project_id);
CREATE INDEX IF NOT EXISTS idx_project_versions_status ON project_versions(status);
CREATE INDEX IF NOT EXISTS idx_project_versions_created ON project_versions(created_at)`
