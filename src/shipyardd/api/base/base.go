// Package base serves the discovery, health and version endpoints.
package base

import (
	"net/http"
	"time"

	"github.com/bitswalk/shipyard/src/common/version"
	"github.com/gin-gonic/gin"
)

var VersionInfo = version.New()

// SetVersionInfo sets the version info for the base package
func SetVersionInfo(v *version.Info) {
	if v != nil {
		VersionInfo = v
	}
}

// NewHandler creates a new base handler running checks on every health probe
func NewHandler(checks ...HealthCheck) *Handler {
	return &Handler{checks: checks}
}

// HandleRoot returns API discovery information
// @Summary      API discovery
// @Description  Returns the server name, version and entry points
// @Tags         System
// @Produce      json
// @Success      200  {object}  APIInfo
// @Router       / [get]
func (h *Handler) HandleRoot(c *gin.Context) {
	info := APIInfo{
		Name:        "shipyardd",
		Description: "Hackathon project build and deploy server",
		Version:     VersionInfo.Version,
		APIVersions: []string{"v1"},
		Endpoints: APIInfoEndpoints{
			Health:   "/v1/health",
			Version:  "/v1/version",
			APIv1:    "/v1/",
			Projects: "/v1/projects",
			Swagger:  "/swagger/index.html",
		},
	}

	c.JSON(http.StatusOK, info)
}

// HandleHealth returns the current health status of the server
// @Summary      Health check
// @Description  Reports healthy, or degraded with 503 when a dependency check fails
// @Tags         System
// @Produce      json
// @Success      200  {object}  HealthResponse
// @Failure      503  {object}  HealthResponse
// @Router       /v1/health [get]
func (h *Handler) HandleHealth(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK

	if len(h.checks) > 0 {
		response.Checks = make(map[string]string, len(h.checks))
		for _, check := range h.checks {
			if err := check.Check(); err != nil {
				response.Checks[check.Name] = err.Error()
				response.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			response.Checks[check.Name] = "ok"
		}
	}

	c.JSON(status, response)
}

// HandleVersion returns version and build information for the server
// @Summary      Server version
// @Tags         System
// @Produce      json
// @Success      200  {object}  VersionResponse
// @Router       /v1/version [get]
func (h *Handler) HandleVersion(c *gin.Context) {
	response := VersionResponse{
		Version:        VersionInfo.Version,
		ReleaseName:    VersionInfo.ReleaseName,
		ReleaseVersion: VersionInfo.ReleaseVersion,
		BuildDate:      VersionInfo.BuildDate,
		GitCommit:      VersionInfo.GitCommit,
		GoVersion:      version.GoVersion(),
	}

	c.JSON(http.StatusOK, response)
}
