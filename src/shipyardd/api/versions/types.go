package versions

import (
	"time"

	"github.com/bitswalk/shipyard/src/shipyardd/api/common"
	"github.com/bitswalk/shipyard/src/shipyardd/build"
	"github.com/bitswalk/shipyard/src/shipyardd/db"
	"github.com/bitswalk/shipyard/src/shipyardd/registry"
	"github.com/bitswalk/shipyard/src/shipyardd/storage"
)

const (
	DefaultMaxUploadBytes = 200 << 20
	DefaultAwaitTimeout   = 30 * time.Minute
	DefaultStreamPoll     = 2 * time.Second
)

// Subscriber hands out live progress streams
type Subscriber interface {
	Subscribe(topic string) (<-chan []byte, func())
}

// DeployDefaults are applied to deploy requests that leave them unset
type DeployDefaults struct {
	Network string
	Domain  string
}

// Handler handles project version requests
type Handler struct {
	manager     *build.Manager
	versionRepo *db.ProjectVersionRepository
	projectRepo *db.ProjectRepository
	deployRepo  *db.DeploymentRepository
	storage     storage.Backend
	registry    *registry.Client
	deployer    *registry.Deployer
	events      Subscriber
	deploy      DeployDefaults

	maxUploadBytes int64
	awaitTimeout   time.Duration
	streamPoll     time.Duration
}

// Config contains configuration options for the Handler
type Config struct {
	BuildManager   *build.Manager
	DeployRepo     *db.DeploymentRepository
	Storage        storage.Backend
	Registry       *registry.Client
	Events         Subscriber
	Deploy         DeployDefaults
	MaxUploadBytes int64
	AwaitTimeout   time.Duration
	StreamPoll     time.Duration
}

// RejectedSubmissionResponse is returned by a waited submission whose archive
// failed before any build could start
type RejectedSubmissionResponse struct {
	common.ErrorResponse
	Version *db.ProjectVersion `json:"version"`
}

// VersionListResponse represents a page of project versions
type VersionListResponse struct {
	Count    int                 `json:"count"`
	Offset   int                 `json:"offset"`
	Limit    int                 `json:"limit"`
	Versions []db.ProjectVersion `json:"versions"`
}

// BuildLogsResponse carries the persisted build transcript
type BuildLogsResponse struct {
	VersionID string           `json:"version_id" example:"0b7c4d3e-6a0f-4b8e-9a53-1f2d3c4b5a69"`
	Status    db.VersionStatus `json:"status" example:"failed"`
	BuildLogs string           `json:"build_logs"`
	// FullLogAvailable is true when the untruncated log can be fetched
	FullLogAvailable bool `json:"full_log_available"`
}

// PromoteRequest tags the built image under a registry name and pushes it
type PromoteRequest struct {
	TargetTag string `json:"target_tag" binding:"required" example:"registry.example.com/hack/weather:1"`
}

// DeployRequest starts a container from a built version
type DeployRequest struct {
	// TargetTag defaults to the version's image tag
	TargetTag     string            `json:"target_tag" example:"registry.example.com/hack/weather:1"`
	ContainerName string            `json:"container_name" example:"weather_alice_1"`
	Network       string            `json:"network" example:"web"`
	Pull          bool              `json:"pull"`
	Labels        map[string]string `json:"labels"`
}

// OperationResponse is the outcome of a registry command
type OperationResponse struct {
	VersionID string `json:"version_id"`
	registry.Result
}

// DeployResponse is the record of a started container
type DeployResponse struct {
	Deployment db.Deployment    `json:"deployment"`
	Status     db.VersionStatus `json:"status" example:"deployed"`
}

// DeploymentListResponse represents the deployments of a version
type DeploymentListResponse struct {
	Count       int             `json:"count"`
	Deployments []db.Deployment `json:"deployments"`
}
