// Package api wires the shipyardd HTTP handlers and their routes.
package api

import (
	"context"
	"time"

	"github.com/bitswalk/shipyard/src/common/logs"
	"github.com/bitswalk/shipyard/src/common/version"
	"github.com/bitswalk/shipyard/src/shipyardd/api/base"
	"github.com/bitswalk/shipyard/src/shipyardd/api/common"
	"github.com/bitswalk/shipyard/src/shipyardd/api/projects"
	"github.com/bitswalk/shipyard/src/shipyardd/api/versions"
	"github.com/bitswalk/shipyard/src/shipyardd/db"
)

// SetLogger sets the logger for the api package and subpackages
func SetLogger(l *logs.Logger) {
	versions.SetLogger(l)
	common.SetAuditLogger(l)
}

// SetVersionInfo sets the version info for the api package and subpackages
func SetVersionInfo(v *version.Info) {
	base.SetVersionInfo(v)
}

// New creates a new API instance with all subpackage handlers
func New(cfg Config) *API {
	var checks []base.HealthCheck
	if cfg.Database != nil {
		checks = append(checks, base.HealthCheck{Name: "database", Check: func() error {
			return cfg.Database.DB().Ping()
		}})
	}
	if cfg.Storage != nil {
		checks = append(checks, base.HealthCheck{Name: "storage", Check: func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return cfg.Storage.Ping(ctx)
		}})
	}

	var limiter *RateLimiter
	if cfg.RateLimit != nil && cfg.RateLimit.Enabled {
		limiter = NewRateLimiter(*cfg.RateLimit)
	}

	return &API{
		Base: base.NewHandler(checks...),

		Projects: projects.NewHandler(projects.Config{
			ProjectRepo: cfg.BuildManager.ProjectRepo(),
		}),

		Versions: versions.NewHandler(versions.Config{
			BuildManager:   cfg.BuildManager,
			DeployRepo:     db.NewDeploymentRepository(cfg.Database),
			Storage:        cfg.Storage,
			Registry:       cfg.Registry,
			Events:         cfg.Events,
			Deploy:         cfg.Deploy,
			MaxUploadBytes: cfg.MaxUploadBytes,
		}),

		jwtService:  cfg.JWTService,
		rateLimiter: limiter,
	}
}

// Stop releases background resources held by the API
func (a *API) Stop() {
	if a.rateLimiter != nil {
		a.rateLimiter.Stop()
	}
}

// AuthEnabled reports whether write endpoints require a token
func (a *API) AuthEnabled() bool {
	return a.jwtService != nil
}
