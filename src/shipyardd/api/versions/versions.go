// Package versions serves submission, build log and deployment endpoints for
// project versions.
package versions

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/bitswalk/shipyard/src/common/errors"
	"github.com/bitswalk/shipyard/src/common/logs"
	"github.com/bitswalk/shipyard/src/shipyardd/api/common"
	"github.com/bitswalk/shipyard/src/shipyardd/build"
	"github.com/bitswalk/shipyard/src/shipyardd/db"
	"github.com/bitswalk/shipyard/src/shipyardd/registry"
	"github.com/gin-gonic/gin"
	"github.com/ulikunitz/xz"
)

var log = logs.NewDefault()

// SetLogger sets the logger for the versions package
func SetLogger(l *logs.Logger) {
	if l != nil {
		log = l
	}
}

// NewHandler creates a new versions handler
func NewHandler(cfg Config) *Handler {
	h := &Handler{
		manager:        cfg.BuildManager,
		versionRepo:    cfg.BuildManager.VersionRepo(),
		projectRepo:    cfg.BuildManager.ProjectRepo(),
		deployRepo:     cfg.DeployRepo,
		storage:        cfg.Storage,
		registry:       cfg.Registry,
		events:         cfg.Events,
		deploy:         cfg.Deploy,
		maxUploadBytes: cfg.MaxUploadBytes,
		awaitTimeout:   cfg.AwaitTimeout,
		streamPoll:     cfg.StreamPoll,
	}
	if h.registry != nil {
		h.deployer = registry.NewDeployer(h.registry)
	}
	if h.maxUploadBytes <= 0 {
		h.maxUploadBytes = DefaultMaxUploadBytes
	}
	if h.awaitTimeout <= 0 {
		h.awaitTimeout = DefaultAwaitTimeout
	}
	if h.streamPoll <= 0 {
		h.streamPoll = DefaultStreamPoll
	}
	return h
}

// loadProject resolves the :id parameter, answering 404 when it is unknown
func (h *Handler) loadProject(c *gin.Context) (*db.Project, bool) {
	project, err := h.projectRepo.GetByID(c.Param("id"))
	if err != nil {
		common.InternalError(c, err.Error())
		return nil, false
	}
	if project == nil {
		common.RespondError(c, errors.ErrProjectNotFound)
		return nil, false
	}
	return project, true
}

// loadVersion resolves :id and :vid, answering 404 unless the version belongs
// to the project
func (h *Handler) loadVersion(c *gin.Context) (*db.Project, *db.ProjectVersion, bool) {
	project, ok := h.loadProject(c)
	if !ok {
		return nil, nil, false
	}

	version, err := h.versionRepo.GetForProject(project.ID, c.Param("vid"))
	if err != nil {
		common.InternalError(c, err.Error())
		return nil, nil, false
	}
	if version == nil {
		common.RespondError(c, errors.ErrVersionNotFound)
		return nil, nil, false
	}
	return project, version, true
}

// submitter identifies the caller from the token, or from the form when
// authentication is off
func submitter(c *gin.Context) build.Submitter {
	if claims := common.GetClaimsFromContext(c); claims != nil {
		return build.Submitter{ID: claims.UserID, Username: claims.UserName, Email: claims.Email}
	}
	return build.Submitter{
		ID:       strings.TrimSpace(c.PostForm("submitted_by")),
		Username: strings.TrimSpace(c.PostForm("username")),
		Email:    strings.TrimSpace(c.PostForm("email")),
	}
}

// HandleSubmit stores an uploaded archive as a new version and queues its build
// @Summary      Submit a project version
// @Description  Uploads a zip archive as the next version of a project. The build runs in the background; pass wait=true to block until it finishes. A waited submission whose archive is corrupt or matches no stack answers 422 with the failed version.
// @Tags         Versions
// @Accept       multipart/form-data
// @Produce      json
// @Param        id             path      string  true   "Project ID"
// @Param        file           formData  file    true   "Project archive (.zip)"
// @Param        version_notes  formData  string  false  "Free-form notes"
// @Param        submitted_by   formData  string  false  "Submitter ID when authentication is disabled"
// @Param        username       formData  string  false  "Submitter username when authentication is disabled"
// @Param        email          formData  string  false  "Submitter email when authentication is disabled"
// @Param        wait           query     bool    false  "Block until the build finishes"
// @Success      200            {object}  db.ProjectVersion
// @Success      202            {object}  db.ProjectVersion
// @Failure      400            {object}  common.ErrorResponse
// @Failure      401            {object}  common.ErrorResponse
// @Failure      404            {object}  common.ErrorResponse
// @Failure      413            {object}  common.ErrorResponse
// @Failure      422            {object}  RejectedSubmissionResponse
// @Failure      503            {object}  common.ErrorResponse
// @Security     BearerAuth
// @Router       /v1/projects/{id}/versions [post]
func (h *Handler) HandleSubmit(c *gin.Context) {
	project, ok := h.loadProject(c)
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, common.ErrorResponse{
				Error:   "Request entity too large",
				Code:    http.StatusRequestEntityTooLarge,
				Message: "Archive exceeds the upload limit of " + strconv.FormatInt(h.maxUploadBytes, 10) + " bytes",
			})
			return
		}
		common.BadRequest(c, "Archive file required in form field 'file'")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		common.InternalError(c, "Failed to read uploaded archive")
		return
	}
	defer file.Close()

	sub := submitter(c)
	version, err := h.manager.Submit(c.Request.Context(), build.Submission{
		ProjectID: project.ID,
		Filename:  fileHeader.Filename,
		Notes:     c.PostForm("version_notes"),
		Submitter: sub,
		Archive:   file,
		Size:      fileHeader.Size,
	})

	common.AuditLog(c, common.AuditEvent{
		Action:   "version.submit",
		UserID:   sub.ID,
		UserName: sub.DisplayName(),
		Resource: "project:" + project.ID,
		Detail:   fileHeader.Filename,
		Success:  err == nil,
	})

	if err != nil {
		common.RespondError(c, err)
		return
	}

	if wait, _ := strconv.ParseBool(c.Query("wait")); !wait {
		c.JSON(http.StatusAccepted, version)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.awaitTimeout)
	defer cancel()

	finished, err := h.manager.Await(ctx, version.ID)
	if err != nil {
		// The build carries on; report where it stands
		log.Debug("Stopped waiting for build", "version_id", version.ID, "error", err)
		if finished == nil {
			finished = version
		}
		c.JSON(http.StatusAccepted, finished)
		return
	}

	// An archive that could not be read or classified is the caller's error
	if cause, rejected := build.SubmissionFailure(finished); rejected {
		c.JSON(cause.HTTPStatus, RejectedSubmissionResponse{
			ErrorResponse: common.ErrorResponse{
				Error:   http.StatusText(cause.HTTPStatus),
				Code:    cause.HTTPStatus,
				Message: cause.Message,
				Reason:  cause.Reason(),
			},
			Version: finished,
		})
		return
	}

	c.JSON(http.StatusOK, finished)
}

// HandleList returns a page of a project's versions, newest first
// @Summary      List project versions
// @Tags         Versions
// @Produce      json
// @Param        id      path      string  true   "Project ID"
// @Param        limit   query     int     false  "Page size (default 50, max 500)"
// @Param        offset  query     int     false  "Number of versions to skip"
// @Success      200     {object}  VersionListResponse
// @Failure      404     {object}  common.ErrorResponse
// @Failure      500     {object}  common.ErrorResponse
// @Router       /v1/projects/{id}/versions [get]
func (h *Handler) HandleList(c *gin.Context) {
	project, ok := h.loadProject(c)
	if !ok {
		return
	}

	limit, offset := common.GetPaginationParams(c, common.MaxPaginationLimit)
	versions, err := h.versionRepo.ListByProject(project.ID, offset, limit)
	if err != nil {
		common.InternalError(c, err.Error())
		return
	}
	if versions == nil {
		versions = []db.ProjectVersion{}
	}

	c.JSON(http.StatusOK, VersionListResponse{
		Count:    len(versions),
		Offset:   offset,
		Limit:    limit,
		Versions: versions,
	})
}

// HandleGet returns a single version
// @Summary      Get a project version
// @Tags         Versions
// @Produce      json
// @Param        id   path      string  true  "Project ID"
// @Param        vid  path      string  true  "Version ID"
// @Success      200  {object}  db.ProjectVersion
// @Failure      404  {object}  common.ErrorResponse
// @Router       /v1/projects/{id}/versions/{vid} [get]
func (h *Handler) HandleGet(c *gin.Context) {
	_, version, ok := h.loadVersion(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, version)
}

// HandleBuildLogs returns the bounded build transcript of a version
// @Summary      Get build logs
// @Description  Returns the persisted transcript: the last raw engine lines plus every progress line
// @Tags         Versions
// @Produce      json
// @Param        id   path      string  true  "Project ID"
// @Param        vid  path      string  true  "Version ID"
// @Success      200  {object}  BuildLogsResponse
// @Failure      404  {object}  common.ErrorResponse
// @Router       /v1/projects/{id}/versions/{vid}/build_logs [get]
func (h *Handler) HandleBuildLogs(c *gin.Context) {
	_, version, ok := h.loadVersion(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, BuildLogsResponse{
		VersionID:        version.ID,
		Status:           version.Status,
		BuildLogs:        version.BuildLogs,
		FullLogAvailable: version.LogPath != "",
	})
}

// HandleFullBuildLog streams the untruncated build log as plain text
// @Summary      Get the full build log
// @Description  Decompresses the complete engine output kept in artifact storage
// @Tags         Versions
// @Produce      plain
// @Param        id   path      string  true  "Project ID"
// @Param        vid  path      string  true  "Version ID"
// @Success      200  {string}  string
// @Failure      404  {object}  common.ErrorResponse
// @Failure      503  {object}  common.ErrorResponse
// @Router       /v1/projects/{id}/versions/{vid}/build_logs/full [get]
func (h *Handler) HandleFullBuildLog(c *gin.Context) {
	_, version, ok := h.loadVersion(c)
	if !ok {
		return
	}
	if version.LogPath == "" {
		common.RespondError(c, errors.ErrArtifactNotFound.WithMessage("No full build log recorded for this version"))
		return
	}
	if h.storage == nil {
		common.RespondError(c, errors.ErrStorageUnavailable)
		return
	}

	reader, _, err := h.storage.Download(c.Request.Context(), version.LogPath)
	if err != nil {
		common.RespondError(c, errors.ErrArtifactNotFound.WithCause(err))
		return
	}
	defer reader.Close()

	xzr, err := xz.NewReader(reader)
	if err != nil {
		common.InternalError(c, "Stored build log is not readable")
		return
	}

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, xzr); err != nil {
		log.Warn("Failed to stream full build log", "version_id", version.ID, "error", err)
	}
}
