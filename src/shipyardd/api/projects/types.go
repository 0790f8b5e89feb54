package projects

import "github.com/bitswalk/shipyard/src/shipyardd/db"

// Handler handles project registration requests
type Handler struct {
	projectRepo *db.ProjectRepository
}

// Config contains configuration options for the Handler
type Config struct {
	ProjectRepo *db.ProjectRepository
}

// PutProjectRequest registers or renames a project
type PutProjectRequest struct {
	Name        string `json:"name" binding:"required" example:"Weather Station"`
	HackathonID string `json:"hackathon_id" example:"spring-2026"`
}

// ProjectListResponse represents a list of projects
type ProjectListResponse struct {
	Count    int          `json:"count"`
	Projects []db.Project `json:"projects"`
}
