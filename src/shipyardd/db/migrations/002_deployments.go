package migrations

import (
	"database/sql"
	"fmt"
)

// migration002Deployments adds the deployments table for container runs of built versions
func migration002Deployments() Migration {
	return Migration{
		Version:     2,
		Description: "Add deployments table",
		Up:          migration002Up,
	}
}

func migration002Up(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS deployments (
			id TEXT PRIMARY KEY,
			version_id TEXT NOT NULL,
			target_tag TEXT NOT NULL,
			container_name TEXT NOT NULL DEFAULT '',
			container_id TEXT NOT NULL DEFAULT '',
			network TEXT NOT NULL DEFAULT '',
			host TEXT NOT NULL DEFAULT '',
			labels TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (version_id) REFERENCES project_versions(id) ON DELETE CASCADE
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create deployments table: %w", err)
	}

	_, err = tx.Exec(`CREATE INDEX IF NOT EXISTS idx_deployments_version ON deployments(version_id)`)
	if err != nil {
		return fmt.Errorf("failed to create deployments index: %w", err)
	}

	return nil
}
