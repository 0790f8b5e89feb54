package api

import "github.com/gin-gonic/gin"

// RegisterRoutes configures all API routes on the given router
func (a *API) RegisterRoutes(router *gin.Engine) {
	// Root endpoint - API discovery
	router.GET("/", a.Base.HandleRoot)

	v1 := router.Group("/v1")
	{
		v1.GET("/health", a.Base.HandleHealth)
		v1.GET("/version", a.Base.HandleVersion)

		// Project and version reads (public)
		projects := v1.Group("/projects")
		{
			projects.GET("", a.Projects.HandleList)
			projects.GET("/:id", a.Projects.HandleGet)
			projects.GET("/:id/versions", a.Versions.HandleList)
			projects.GET("/:id/versions/:vid", a.Versions.HandleGet)
			projects.GET("/:id/versions/:vid/build_logs", a.Versions.HandleBuildLogs)
			projects.GET("/:id/versions/:vid/build_logs/full", a.Versions.HandleFullBuildLog)
			projects.GET("/:id/versions/:vid/events", a.Versions.HandleEvents)
			projects.GET("/:id/versions/:vid/deployments", a.Versions.HandleListDeployments)
		}

		// Submissions and registry operations (token required when auth is enabled)
		projectsWrite := v1.Group("/projects")
		projectsWrite.Use(a.authRequired())
		{
			projectsWrite.POST("/:id/versions", a.rateLimit("submit", submitLimit), a.Versions.HandleSubmit)

			writes := projectsWrite.Group("")
			writes.Use(a.rateLimit("write", writeLimit))
			writes.PUT("/:id", a.Projects.HandlePut)
			writes.POST("/:id/versions/:vid/promote", a.Versions.HandlePromote)
			writes.POST("/:id/versions/:vid/scan", a.Versions.HandleScan)
			writes.POST("/:id/versions/:vid/deploy", a.Versions.HandleDeploy)
		}
	}
}
