package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ProjectRepository handles project database operations
type ProjectRepository struct {
	db *Database
}

// NewProjectRepository creates a new project repository
func NewProjectRepository(db *Database) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// Upsert registers a project or refreshes its name and hackathon
func (r *ProjectRepository) Upsert(p *Project) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	_, err := r.db.DB().Exec(`
		INSERT INTO projects (id, name, hackathon_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			hackathon_id = excluded.hackathon_id,
			updated_at = excluded.updated_at
	`, p.ID, p.Name, p.HackathonID, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert project: %w", err)
	}

	return nil
}

// GetByID retrieves a project by ID, returning nil when it does not exist
func (r *ProjectRepository) GetByID(id string) (*Project, error) {
	var p Project
	err := r.db.DB().QueryRow(`
		SELECT id, name, hackathon_id, created_at, updated_at
		FROM projects WHERE id = ?
	`, id).Scan(&p.ID, &p.Name, &p.HackathonID, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &p, nil
}

// List retrieves all projects ordered by name
func (r *ProjectRepository) List() ([]Project, error) {
	rows, err := r.db.DB().Query(`
		SELECT id, name, hackathon_id, created_at, updated_at
		FROM projects ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name, &p.HackathonID, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}

	return projects, rows.Err()
}
