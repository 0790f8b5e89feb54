package versions

import (
	"net/http"
	"strings"

	"github.com/bitswalk/shipyard/src/common/errors"
	"github.com/bitswalk/shipyard/src/shipyardd/api/common"
	"github.com/bitswalk/shipyard/src/shipyardd/build"
	"github.com/bitswalk/shipyard/src/shipyardd/db"
	"github.com/bitswalk/shipyard/src/shipyardd/registry"
	"github.com/gin-gonic/gin"
)

// outputTail is how much command output goes into error messages
const outputTail = 512

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > outputTail {
		return "..." + s[len(s)-outputTail:]
	}
	return s
}

// requireImage answers 409 unless the version has a built image and 503 when no
// registry client is configured
func (h *Handler) requireImage(c *gin.Context, v *db.ProjectVersion) bool {
	if h.registry == nil {
		common.ServiceUnavailable(c, "Registry operations are not enabled")
		return false
	}
	if v.Status != db.VersionStatusBuilt && v.Status != db.VersionStatusDeployed {
		common.RespondError(c, errors.ErrVersionNotBuilt.WithMessagef("Version is %s, not built", v.Status))
		return false
	}
	if v.ImageTag == "" {
		common.RespondError(c, errors.ErrVersionNotBuilt.WithMessage("Version has no image tag"))
		return false
	}
	return true
}

func auditUser(c *gin.Context) (string, string) {
	if claims := common.GetClaimsFromContext(c); claims != nil {
		return claims.UserID, claims.UserName
	}
	return "", ""
}

// HandlePromote tags the built image under a registry name and pushes it
// @Summary      Promote a built image
// @Description  Runs tag then push. A failure leaves the version status untouched.
// @Tags         Versions
// @Accept       json
// @Produce      json
// @Param        id    path      string          true  "Project ID"
// @Param        vid   path      string          true  "Version ID"
// @Param        body  body      PromoteRequest  true  "Target tag"
// @Success      200   {object}  OperationResponse
// @Failure      400   {object}  common.ErrorResponse
// @Failure      404   {object}  common.ErrorResponse
// @Failure      409   {object}  common.ErrorResponse
// @Failure      502   {object}  common.ErrorResponse
// @Security     BearerAuth
// @Router       /v1/projects/{id}/versions/{vid}/promote [post]
func (h *Handler) HandlePromote(c *gin.Context) {
	_, version, ok := h.loadVersion(c)
	if !ok {
		return
	}

	var req PromoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.BadRequest(c, err.Error())
		return
	}
	if !h.requireImage(c, version) {
		return
	}

	res := h.registry.Promote(c.Request.Context(), version.ImageTag, req.TargetTag)

	userID, userName := auditUser(c)
	common.AuditLog(c, common.AuditEvent{
		Action:   "version.promote",
		UserID:   userID,
		UserName: userName,
		Resource: "version:" + version.ID,
		Detail:   req.TargetTag,
		Success:  res.OK(),
	})

	if !res.OK() {
		common.RespondError(c, errors.ErrRegistryOperationFailed.WithMessagef(
			"%s exited with code %d: %s", res.Command, res.ExitCode, tail(res.Output)))
		return
	}

	c.JSON(http.StatusOK, OperationResponse{VersionID: version.ID, Result: res})
}

// HandleScan scans the built image for known vulnerabilities and records the report
// @Summary      Scan a built image
// @Description  Uses trivy when available, otherwise the engine's scan command
// @Tags         Versions
// @Produce      json
// @Param        id   path      string  true  "Project ID"
// @Param        vid  path      string  true  "Version ID"
// @Success      200  {object}  db.ImageScan
// @Failure      404  {object}  common.ErrorResponse
// @Failure      409  {object}  common.ErrorResponse
// @Failure      502  {object}  common.ErrorResponse
// @Security     BearerAuth
// @Router       /v1/projects/{id}/versions/{vid}/scan [post]
func (h *Handler) HandleScan(c *gin.Context) {
	_, version, ok := h.loadVersion(c)
	if !ok {
		return
	}
	if !h.requireImage(c, version) {
		return
	}

	scanner := h.registry.ScannerName()
	res := h.registry.Scan(c.Request.Context(), version.ImageTag)

	scan := &db.ImageScan{
		VersionID: version.ID,
		ImageTag:  version.ImageTag,
		Scanner:   scanner,
		ExitCode:  res.ExitCode,
		Output:    res.Output,
	}
	if h.deployRepo != nil {
		if err := h.deployRepo.CreateScan(scan); err != nil {
			log.Warn("Failed to record image scan", "version_id", version.ID, "error", err)
		}
	}

	if !res.OK() {
		common.RespondError(c, errors.ErrScanFailed.WithMessagef(
			"%s exited with code %d: %s", res.Command, res.ExitCode, tail(res.Output)))
		return
	}

	c.JSON(http.StatusOK, scan)
}

// HandleDeploy starts a detached container from the built image
// @Summary      Deploy a built version
// @Description  Optionally promotes and pulls the image, then runs it with restart=unless-stopped and reverse-proxy labels. A built version moves to deployed.
// @Tags         Versions
// @Accept       json
// @Produce      json
// @Param        id    path      string         true   "Project ID"
// @Param        vid   path      string         true   "Version ID"
// @Param        body  body      DeployRequest  false  "Deployment options"
// @Success      201   {object}  DeployResponse
// @Failure      400   {object}  common.ErrorResponse
// @Failure      404   {object}  common.ErrorResponse
// @Failure      409   {object}  common.ErrorResponse
// @Failure      502   {object}  common.ErrorResponse
// @Security     BearerAuth
// @Router       /v1/projects/{id}/versions/{vid}/deploy [post]
func (h *Handler) HandleDeploy(c *gin.Context) {
	project, version, ok := h.loadVersion(c)
	if !ok {
		return
	}

	var req DeployRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			common.BadRequest(c, err.Error())
			return
		}
	}
	if !h.requireImage(c, version) {
		return
	}

	target := strings.TrimSpace(req.TargetTag)
	if target == "" {
		target = version.ImageTag
	}
	name := strings.TrimSpace(req.ContainerName)
	if name == "" {
		name = build.SanitizeTagPart(version.ImageTag)
	}
	network := req.Network
	if network == "" {
		network = h.deploy.Network
	}

	result, err := h.deployer.Run(c.Request.Context(), registry.DeployRequest{
		SourceTag:     version.ImageTag,
		TargetTag:     target,
		ContainerName: name,
		Network:       network,
		Labels:        req.Labels,
		Pull:          req.Pull,
		Domain:        h.deploy.Domain,
		HackathonID:   project.HackathonID,
		Username:      build.SanitizeTagPart(version.SubmitterName),
	})

	userID, userName := auditUser(c)
	common.AuditLog(c, common.AuditEvent{
		Action:   "version.deploy",
		UserID:   userID,
		UserName: userName,
		Resource: "version:" + version.ID,
		Detail:   target,
		Success:  err == nil,
	})

	if err != nil {
		msg := err.Error()
		if result != nil && result.Output != "" {
			msg += ": " + tail(result.Output)
		}
		common.RespondError(c, errors.ErrDeployFailed.WithMessage(msg))
		return
	}

	deployment := db.Deployment{
		VersionID:     version.ID,
		TargetTag:     target,
		ContainerName: name,
		ContainerID:   result.ContainerID,
		Network:       network,
		Host:          result.Host,
		Labels:        result.Labels,
	}
	if h.deployRepo != nil {
		if err := h.deployRepo.Create(&deployment); err != nil {
			log.Error("Failed to record deployment", "version_id", version.ID, "error", err)
		}
	}

	status := version.Status
	if status == db.VersionStatusBuilt {
		if err := h.versionRepo.MarkDeployed(version.ID); err != nil {
			common.RespondError(c, err)
			return
		}
		status = db.VersionStatusDeployed
	}

	c.JSON(http.StatusCreated, DeployResponse{Deployment: deployment, Status: status})
}

// HandleListDeployments returns the deployments of a version, newest first
// @Summary      List deployments of a version
// @Tags         Versions
// @Produce      json
// @Param        id   path      string  true  "Project ID"
// @Param        vid  path      string  true  "Version ID"
// @Success      200  {object}  DeploymentListResponse
// @Failure      404  {object}  common.ErrorResponse
// @Failure      500  {object}  common.ErrorResponse
// @Router       /v1/projects/{id}/versions/{vid}/deployments [get]
func (h *Handler) HandleListDeployments(c *gin.Context) {
	_, version, ok := h.loadVersion(c)
	if !ok {
		return
	}

	var deployments []db.Deployment
	if h.deployRepo != nil {
		var err error
		deployments, err = h.deployRepo.ListByVersion(version.ID)
		if err != nil {
			common.InternalError(c, err.Error())
			return
		}
	}
	if deployments == nil {
		deployments = []db.Deployment{}
	}

	c.JSON(http.StatusOK, DeploymentListResponse{
		Count:       len(deployments),
		Deployments: deployments,
	})
}
