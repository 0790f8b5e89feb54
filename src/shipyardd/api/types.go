package api

import (
	"github.com/bitswalk/shipyard/src/shipyardd/api/base"
	"github.com/bitswalk/shipyard/src/shipyardd/api/common"
	"github.com/bitswalk/shipyard/src/shipyardd/api/projects"
	"github.com/bitswalk/shipyard/src/shipyardd/api/versions"
	"github.com/bitswalk/shipyard/src/shipyardd/auth"
	"github.com/bitswalk/shipyard/src/shipyardd/build"
	"github.com/bitswalk/shipyard/src/shipyardd/db"
	"github.com/bitswalk/shipyard/src/shipyardd/registry"
	"github.com/bitswalk/shipyard/src/shipyardd/storage"
)

// ErrorResponse is an alias to common.ErrorResponse
type ErrorResponse = common.ErrorResponse

// API holds all handler instances and dependencies
type API struct {
	Base     *base.Handler
	Projects *projects.Handler
	Versions *versions.Handler

	// Nil when authentication is disabled
	jwtService *auth.JWTService
	// Nil when rate limiting is disabled
	rateLimiter *RateLimiter
}

// Config contains API configuration options
type Config struct {
	Database     *db.Database
	BuildManager *build.Manager
	Storage      storage.Backend
	Registry     *registry.Client
	Events       versions.Subscriber
	Deploy       versions.DeployDefaults
	JWTService   *auth.JWTService
	// RateLimit is optional; nil disables rate limiting
	RateLimit *RateLimitConfig

	MaxUploadBytes int64
}
