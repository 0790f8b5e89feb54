package base

// Handler handles base HTTP requests (root, health, version)
type Handler struct {
	checks []HealthCheck
}

// HealthCheck reports whether one dependency is usable
type HealthCheck struct {
	Name  string
	Check func() error
}

// APIInfo represents the root API discovery response
type APIInfo struct {
	Name        string           `json:"name" example:"shipyardd"`
	Description string           `json:"description" example:"Hackathon project build and deploy server"`
	Version     string           `json:"version" example:"1.0.0"`
	APIVersions []string         `json:"api_versions" example:"v1"`
	Endpoints   APIInfoEndpoints `json:"endpoints"`
}

// APIInfoEndpoints contains the available API endpoints
type APIInfoEndpoints struct {
	Health   string `json:"health" example:"/v1/health"`
	Version  string `json:"version" example:"/v1/version"`
	APIv1    string `json:"api_v1" example:"/v1/"`
	Projects string `json:"projects" example:"/v1/projects"`
	Swagger  string `json:"swagger" example:"/swagger/index.html"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status" example:"healthy"`
	Timestamp string            `json:"timestamp" example:"2026-01-15T10:30:00Z"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// VersionResponse represents the version information response
type VersionResponse struct {
	Version        string `json:"version" example:"Dockside (2026.10) - v0.4.0-a1c2e3f"`
	ReleaseName    string `json:"release_name" example:"Dockside"`
	ReleaseVersion string `json:"release_version" example:"0.4.0"`
	BuildDate      string `json:"build_date" example:"2026-01-15T10:30:00Z"`
	GitCommit      string `json:"git_commit" example:"a1c2e3f"`
	GoVersion      string `json:"go_version" example:"go1.24"`
}
