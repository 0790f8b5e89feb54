package core

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bitswalk/shipyard/src/shipyardd/api"
	"github.com/bitswalk/shipyard/src/shipyardd/auth"
	"github.com/bitswalk/shipyard/src/shipyardd/build"
	"github.com/bitswalk/shipyard/src/shipyardd/db"
	_ "github.com/bitswalk/shipyard/src/shipyardd/docs"
	"github.com/bitswalk/shipyard/src/shipyardd/events"
	"github.com/bitswalk/shipyard/src/shipyardd/registry"
	"github.com/bitswalk/shipyard/src/shipyardd/storage"
	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Server holds the HTTP server instance and configuration
type Server struct {
	router       *gin.Engine
	httpServer   *http.Server
	database     *db.Database
	storage      storage.Backend
	buildManager *build.Manager
	redisBus     *events.RedisBus
	api          *api.API

	// cancel stops the build manager and the event forwarder
	cancel context.CancelFunc
}

// NewServer creates a new Server instance
func NewServer(database *db.Database, storageBackend storage.Backend) (*Server, error) {
	// Set Gin mode based on log level
	if viper.GetString("log.level") == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Add recovery middleware
	router.Use(gin.Recovery())

	// Add CORS middleware
	router.Use(corsMiddleware())

	// Add logging middleware
	router.Use(ginLogger())

	ctx, cancel := context.WithCancel(context.Background())

	// Progress events always reach local subscribers through the hub. With
	// Redis configured, builds publish to the shared channel and every
	// instance forwards it into its own hub.
	events.SetLogger(log)
	hub := events.NewHub()
	var bus events.Publisher = hub
	var redisBus *events.RedisBus
	if addr := viper.GetString("events.redis.addr"); addr != "" {
		rb, err := events.NewRedisBus(ctx, redisConfig())
		if err != nil {
			log.Warn("Redis event bus unavailable, using in-process events only", "addr", addr, "error", err)
		} else if err := rb.Forward(ctx, hub); err != nil {
			log.Warn("Failed to subscribe to Redis event bus", "addr", addr, "error", err)
			_ = rb.Close()
		} else {
			log.Info("Redis event bus connected", "addr", addr)
			bus = rb
			redisBus = rb
		}
	}

	// Initialize build manager
	build.SetLogger(log)
	buildManager := build.NewManager(database, storageBackend, bus, buildConfig())

	// Initialize registry operations
	registry.SetLogger(log)
	registryClient := registry.New(registryConfig())

	// Initialize auth components
	var jwtService *auth.JWTService
	authCfg := authConfig()
	if authCfg.Enabled {
		svc, err := auth.NewJWTService(authCfg)
		if err != nil {
			cancel()
			if redisBus != nil {
				_ = redisBus.Close()
			}
			return nil, fmt.Errorf("failed to initialize authentication: %w", err)
		}
		jwtService = svc
	} else {
		log.Warn("Authentication disabled - write endpoints are open")
	}

	// Create API instance with all dependencies
	api.SetLogger(log)
	api.SetVersionInfo(VersionInfo)
	apiInstance := api.New(api.Config{
		Database:       database,
		BuildManager:   buildManager,
		Storage:        storageBackend,
		Registry:       registryClient,
		Events:         hub,
		Deploy:         deployDefaults(),
		JWTService:     jwtService,
		RateLimit:      rateLimitConfig(),
		MaxUploadBytes: viper.GetInt64("server.max_upload_bytes"),
	})

	// Register all routes
	apiInstance.RegisterRoutes(router)

	// Swagger UI
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	s := &Server{
		router:       router,
		database:     database,
		storage:      storageBackend,
		buildManager: buildManager,
		redisBus:     redisBus,
		api:          apiInstance,
		cancel:       cancel,
	}

	// Start build manager
	go func() {
		if err := buildManager.Start(ctx); err != nil {
			log.Error("Failed to start build manager", "error", err)
		}
	}()

	return s, nil
}

// Run starts the HTTP server
func (s *Server) Run() error {
	bind := viper.GetString("server.bind")
	port := viper.GetInt("server.port")
	addr := fmt.Sprintf("%s:%d", bind, port)

	// Uploads and the event stream outlive the usual write deadline
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	// Channel to listen for errors coming from the listener
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		log.Info("Starting shipyardd server", "address", addr)

		if s.storage != nil {
			log.Info("Storage enabled", "type", s.storage.Type(), "location", s.storage.Location())
		} else {
			log.Warn("Storage not configured - submissions disabled")
		}
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	// Wait for interrupt signal or error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		s.stopBackground()
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		log.Info("Received signal, shutting down", "signal", sig)
	}

	return s.Shutdown()
}

// stopBackground stops the build manager and the event forwarder
func (s *Server) stopBackground() {
	if s.buildManager != nil {
		log.Info("Stopping build manager")
		if err := s.buildManager.Stop(); err != nil {
			log.Error("Build manager shutdown error", "error", err)
		}
	}

	if s.cancel != nil {
		s.cancel()
	}

	if s.api != nil {
		s.api.Stop()
	}

	if s.redisBus != nil {
		if err := s.redisBus.Close(); err != nil {
			log.Warn("Redis event bus close error", "error", err)
		}
	}
}

// Shutdown gracefully stops the HTTP server and background workers. The
// database is persisted by the caller.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop accepting requests first so no new versions are queued
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			log.Error("HTTP server shutdown error", "error", err)
		}
	}

	s.stopBackground()

	log.Info("Server stopped gracefully")
	return nil
}

// corsMiddleware returns a gin middleware for handling CORS
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		if origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Subject-Token")
			c.Header("Access-Control-Expose-Headers", "X-Subject-Token")
		}

		// Handle preflight requests
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// ginLogger returns a gin middleware for logging requests
func ginLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		// Process request
		c.Next()

		// Log request details
		latency := time.Since(start)
		status := c.Writer.Status()
		method := c.Request.Method

		if query != "" {
			path = path + "?" + query
		}

		log.Debug("HTTP request",
			"status", status,
			"method", method,
			"path", path,
			"latency", latency,
			"client_ip", c.ClientIP(),
		)
	}
}

// openStorage creates the configured storage backend, verifying the bucket
// for S3
func openStorage() (storage.Backend, error) {
	cfg := storageConfig()
	log.Info("Initializing storage", "type", cfg.Type)

	backend, err := storage.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// For S3 backend, ensure bucket exists
	if s3Backend, ok := backend.(*storage.S3Backend); ok {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s3Backend.EnsureBucket(ctx); err != nil {
			log.Warn("S3 bucket not accessible - submissions may fail", "location", s3Backend.Location(), "error", err)
		} else {
			log.Debug("S3 bucket verified", "location", s3Backend.Location())
		}
	}

	return backend, nil
}

// runServer is called by the root command to start the server
func runServer() error {
	log.Info("shipyardd starting",
		"version", VersionInfo.Version,
		"build_date", VersionInfo.BuildDate,
		"log_output", log.Output(),
	)

	// Initialize database
	dbCfg := databaseConfig()
	log.Info("Initializing database", "persist_path", dbCfg.PersistPath)

	// Set logger for the database and its migrations before initializing
	db.SetLogger(log)

	database, err := db.New(dbCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	storageBackend, err := openStorage()
	if err != nil {
		_ = database.Shutdown()
		return err
	}

	server, err := NewServer(database, storageBackend)
	if err != nil {
		_ = database.Shutdown()
		return err
	}

	// Run server (blocks until shutdown signal)
	err = server.Run()

	// Ensure database is persisted on shutdown
	log.Info("Persisting database to disk")
	if dbErr := database.Shutdown(); dbErr != nil {
		log.Error("Failed to persist database", "error", dbErr)
		if err == nil {
			err = dbErr
		}
	} else {
		log.Info("Database persisted successfully")
	}

	return err
}
