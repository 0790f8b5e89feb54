package migrations

import (
	"database/sql"
	"fmt"
)

// migration004FailureCode records why a build failed as a "domain.code" reason,
// so callers can tell a rejected archive from a failed build
func migration004FailureCode() Migration {
	return Migration{
		Version:     4,
		Description: "Add failure_code to project_versions",
		Up:          migration004Up,
	}
}

func migration004Up(tx *sql.Tx) error {
	if _, err := tx.Exec(`ALTER TABLE project_versions ADD COLUMN failure_code TEXT NOT NULL DEFAULT ''`); err != nil {
		return fmt.Errorf("failed to add failure_code: %w", err)
	}
	return nil
}
