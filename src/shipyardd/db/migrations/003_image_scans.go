package migrations

import (
	"database/sql"
	"fmt"
)

// migration003ImageScans records vulnerability scans run against built images.
// Scans live in their own table because a built version row is immutable.
func migration003ImageScans() Migration {
	return Migration{
		Version:     3,
		Description: "Add image_scans table",
		Up:          migration003Up,
	}
}

func migration003Up(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS image_scans (
			id TEXT PRIMARY KEY,
			version_id TEXT NOT NULL,
			image_tag TEXT NOT NULL,
			scanner TEXT NOT NULL,
			exit_code INTEGER NOT NULL,
			output TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (version_id) REFERENCES project_versions(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_image_scans_version ON image_scans(version_id)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create image_scans: %w", err)
		}
	}
	return nil
}
