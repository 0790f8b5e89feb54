// Package projects registers the caller-owned projects that versions belong to.
package projects

import (
	"net/http"
	"strings"

	"github.com/bitswalk/shipyard/src/shipyardd/api/common"
	"github.com/bitswalk/shipyard/src/shipyardd/db"
	"github.com/gin-gonic/gin"
)

// NewHandler creates a new projects handler
func NewHandler(cfg Config) *Handler {
	return &Handler{projectRepo: cfg.ProjectRepo}
}

// HandlePut registers a project under the caller's id or refreshes it
// @Summary      Register a project
// @Description  Creates or updates the projection of a caller-owned project
// @Tags         Projects
// @Accept       json
// @Produce      json
// @Param        id    path      string             true  "Project ID"
// @Param        body  body      PutProjectRequest  true  "Project data"
// @Success      200   {object}  db.Project
// @Failure      400   {object}  common.ErrorResponse
// @Failure      401   {object}  common.ErrorResponse
// @Failure      500   {object}  common.ErrorResponse
// @Security     BearerAuth
// @Router       /v1/projects/{id} [put]
func (h *Handler) HandlePut(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		common.BadRequest(c, "Project ID required")
		return
	}

	var req PutProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.BadRequest(c, err.Error())
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		common.BadRequest(c, "Project name required")
		return
	}

	existing, err := h.projectRepo.GetByID(id)
	if err != nil {
		common.InternalError(c, err.Error())
		return
	}

	project := &db.Project{
		ID:          id,
		Name:        strings.TrimSpace(req.Name),
		HackathonID: strings.TrimSpace(req.HackathonID),
	}
	if existing != nil {
		project.CreatedAt = existing.CreatedAt
	}

	if err := h.projectRepo.Upsert(project); err != nil {
		common.InternalError(c, err.Error())
		return
	}

	c.JSON(http.StatusOK, project)
}

// HandleGet returns a single project by ID
// @Summary      Get a project
// @Tags         Projects
// @Produce      json
// @Param        id   path      string  true  "Project ID"
// @Success      200  {object}  db.Project
// @Failure      404  {object}  common.ErrorResponse
// @Failure      500  {object}  common.ErrorResponse
// @Router       /v1/projects/{id} [get]
func (h *Handler) HandleGet(c *gin.Context) {
	project, err := h.projectRepo.GetByID(c.Param("id"))
	if err != nil {
		common.InternalError(c, err.Error())
		return
	}
	if project == nil {
		common.NotFound(c, "Project not found")
		return
	}

	c.JSON(http.StatusOK, project)
}

// HandleList returns all registered projects
// @Summary      List projects
// @Tags         Projects
// @Produce      json
// @Success      200  {object}  ProjectListResponse
// @Failure      500  {object}  common.ErrorResponse
// @Router       /v1/projects [get]
func (h *Handler) HandleList(c *gin.Context) {
	projects, err := h.projectRepo.List()
	if err != nil {
		common.InternalError(c, err.Error())
		return
	}
	if projects == nil {
		projects = []db.Project{}
	}

	c.JSON(http.StatusOK, ProjectListResponse{
		Count:    len(projects),
		Projects: projects,
	})
}
