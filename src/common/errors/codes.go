package errors

import "net/http"

// Common error codes used across domains
const (
	CodeNotFound       Code = "not_found"
	CodeAlreadyExists  Code = "already_exists"
	CodeInvalidRequest Code = "invalid_request"
	CodeUnauthorized   Code = "unauthorized"
	CodeConflict       Code = "conflict"
	CodeInternal       Code = "internal_error"
	CodeUnavailable    Code = "unavailable"
	CodeTimeout        Code = "timeout"
)

// ============================================================================
// Authentication Errors
// ============================================================================

var (
	// ErrNoToken is returned when no caller token is provided
	ErrNoToken = New(DomainAuth, "no_token", http.StatusUnauthorized,
		"No authentication token provided")

	// ErrTokenInvalid is returned when a caller token is malformed or has a bad signature
	ErrTokenInvalid = New(DomainAuth, "token_invalid", http.StatusUnauthorized,
		"Invalid token")

	// ErrTokenExpired is returned when a caller token has expired
	ErrTokenExpired = New(DomainAuth, "token_expired", http.StatusUnauthorized,
		"Token has expired")
)

// ============================================================================
// Project Errors
// ============================================================================

var (
	// ErrProjectNotFound is returned for an unknown project id
	ErrProjectNotFound = New(DomainProject, CodeNotFound, http.StatusNotFound,
		"Project not found")

	// ErrInvalidProjectData is returned when a project registration fails validation
	ErrInvalidProjectData = New(DomainProject, CodeInvalidRequest, http.StatusBadRequest,
		"Invalid project data")
)

// ============================================================================
// Version Errors
// ============================================================================

var (
	// ErrVersionNotFound is returned when a project version cannot be found
	ErrVersionNotFound = New(DomainVersion, CodeNotFound, http.StatusNotFound,
		"Project version not found")

	// ErrInvalidTransition is returned when a status change would move a version backwards
	ErrInvalidTransition = New(DomainVersion, "invalid_transition", http.StatusConflict,
		"Invalid version status transition")

	// ErrVersionNotBuilt is returned when promotion or deployment targets a version without an image
	ErrVersionNotBuilt = New(DomainVersion, "not_built", http.StatusConflict,
		"Project version has no built image")

	// ErrVersionNumberConflict is returned when two submissions race for the same number
	ErrVersionNumberConflict = New(DomainVersion, CodeConflict, http.StatusConflict,
		"Version number already assigned")
)

// ============================================================================
// Build Errors
// ============================================================================

var (
	// ErrInvalidArchive is returned when the upload is not a .zip file
	ErrInvalidArchive = New(DomainBuild, "invalid_archive", http.StatusBadRequest,
		"Only ZIP files are allowed")

	// ErrCorruptArchive is returned when the upload cannot be read as a zip archive
	ErrCorruptArchive = New(DomainBuild, "corrupt_archive", http.StatusUnprocessableEntity,
		"Upload is not a valid ZIP file.")

	// ErrStackUndetected is returned when no build stack matches the workspace
	ErrStackUndetected = New(DomainBuild, "stack_undetected", http.StatusUnprocessableEntity,
		"could not detect stack (Node.js, Python, React Native, Dockerfile, Compose)")

	// ErrSecurityViolation is returned when a blocking policy finding aborts the build
	ErrSecurityViolation = New(DomainBuild, "security_violation", http.StatusUnprocessableEntity,
		"Build aborted by security policy")

	// ErrInvalidTag is returned when no image tag can be generated
	ErrInvalidTag = New(DomainBuild, "invalid_tag", http.StatusUnprocessableEntity,
		"Image tag requires a project name or a user name")

	// ErrBuildFailed is returned when the container engine exits non-zero
	ErrBuildFailed = New(DomainBuild, "failed", http.StatusUnprocessableEntity,
		"Build failed")

	// ErrBuildTimeout is returned when the container engine exceeds the build timeout
	ErrBuildTimeout = New(DomainBuild, CodeTimeout, http.StatusUnprocessableEntity,
		"Build timed out")

	// ErrEngineUnavailable is returned when the container engine binary cannot be started
	ErrEngineUnavailable = New(DomainBuild, CodeUnavailable, http.StatusServiceUnavailable,
		"Container engine unavailable")

	// ErrManagerStopped is returned when a submission arrives after shutdown began
	ErrManagerStopped = New(DomainBuild, "stopped", http.StatusServiceUnavailable,
		"Build manager is not running")
)

// ============================================================================
// Registry Errors
// ============================================================================

var (
	// ErrRegistryOperationFailed is returned when tag, push or pull exits non-zero
	ErrRegistryOperationFailed = New(DomainRegistry, "operation_failed", http.StatusBadGateway,
		"Registry operation failed")

	// ErrScanFailed is returned when the vulnerability scan exits non-zero
	ErrScanFailed = New(DomainRegistry, "scan_failed", http.StatusBadGateway,
		"Image scan failed")

	// ErrDeployFailed is returned when the container could not be started
	ErrDeployFailed = New(DomainRegistry, "deploy_failed", http.StatusBadGateway,
		"Deployment failed")
)

// ============================================================================
// Storage Errors
// ============================================================================

var (
	// ErrStorageUnavailable is returned when the storage backend is not configured
	ErrStorageUnavailable = New(DomainStorage, CodeUnavailable, http.StatusServiceUnavailable,
		"Storage not available")

	// ErrArtifactNotFound is returned when a stored object does not exist
	ErrArtifactNotFound = New(DomainStorage, CodeNotFound, http.StatusNotFound,
		"Artifact not found")

	// ErrStorageWrite is returned when an upload fails
	ErrStorageWrite = New(DomainStorage, "write_failed", http.StatusInternalServerError,
		"Failed to store artifact")
)

// ============================================================================
// Database and Internal Errors
// ============================================================================

var (
	// ErrDatabase is returned for unexpected database failures
	ErrDatabase = New(DomainDatabase, CodeInternal, http.StatusInternalServerError,
		"Database error")

	// ErrInvalidInput is returned when a request payload fails validation
	ErrInvalidInput = New(DomainValidation, CodeInvalidRequest, http.StatusBadRequest,
		"Invalid input")

	// ErrRateLimited is returned when a caller exceeds its request quota
	ErrRateLimited = New(DomainValidation, "rate_limited", http.StatusTooManyRequests,
		"Too many requests, try again later")

	// ErrInternal is the catch-all internal error
	ErrInternal = New(DomainInternal, CodeInternal, http.StatusInternalServerError,
		"Internal server error")
)
