package db

import "time"

// VersionStatus represents the lifecycle state of a project version
type VersionStatus string

const (
	VersionStatusPending  VersionStatus = "pending"
	VersionStatusBuilding VersionStatus = "building"
	VersionStatusBuilt    VersionStatus = "built"
	VersionStatusFailed   VersionStatus = "failed"
	VersionStatusDeployed VersionStatus = "deployed"
)

// validTransitions lists the forward moves allowed from each status.
// Statuses never move backwards; failed and deployed accept no further moves.
var validTransitions = map[VersionStatus][]VersionStatus{
	VersionStatusPending:  {VersionStatusBuilding, VersionStatusFailed},
	VersionStatusBuilding: {VersionStatusBuilt, VersionStatusFailed},
	VersionStatusBuilt:    {VersionStatusDeployed},
	VersionStatusFailed:   {},
	VersionStatusDeployed: {},
}

// CanTransition reports whether a version may move from one status to another
func CanTransition(from, to VersionStatus) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// sourcesOf returns every status that may move to the given one
func sourcesOf(to VersionStatus) []VersionStatus {
	var out []VersionStatus
	for _, from := range AllVersionStatuses() {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}

// AllVersionStatuses returns all statuses in lifecycle order
func AllVersionStatuses() []VersionStatus {
	return []VersionStatus{
		VersionStatusPending,
		VersionStatusBuilding,
		VersionStatusBuilt,
		VersionStatusFailed,
		VersionStatusDeployed,
	}
}

// IsValid reports whether s is a known status
func (s VersionStatus) IsValid() bool {
	_, ok := validTransitions[s]
	return ok
}

// IsBuildFinished reports whether the build attempt behind a version has ended
func (s VersionStatus) IsBuildFinished() bool {
	return s == VersionStatusBuilt || s == VersionStatusFailed || s == VersionStatusDeployed
}

// Project is the thin projection of a caller-owned project that versions hang off
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	HackathonID string    `json:"hackathon_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProjectVersion is one submitted archive and the outcome of building it
type ProjectVersion struct {
	ID            string        `json:"id"`
	ProjectID     string        `json:"project_id"`
	VersionNumber int           `json:"version_number"`
	FilePath      string        `json:"file_path"`
	VersionNotes  string        `json:"version_notes"`
	SubmittedBy   string        `json:"submitted_by"`
	SubmitterName string        `json:"submitter_name"`
	ArchiveName   string        `json:"archive_name,omitempty"`
	Status        VersionStatus `json:"status"`
	BuildLogs     string        `json:"-"`
	Stack         string        `json:"stack,omitempty"`
	ImageTag      string        `json:"image_tag,omitempty"`
	ImageID       string        `json:"image_id,omitempty"`
	LogPath       string        `json:"log_path,omitempty"`
	FailureCode   string        `json:"failure_code,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	StartedAt     *time.Time    `json:"started_at,omitempty"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"`
}

// BuildOutcome carries the fields written when a build attempt ends
type BuildOutcome struct {
	Logs     string
	LogPath  string
	Stack    string
	ImageTag string
	ImageID  string

	// FailureCode is the "domain.code" reason of a failed build, stored by MarkFailed
	FailureCode string
}

// Deployment records one container started from a built version
type Deployment struct {
	ID            string            `json:"id"`
	VersionID     string            `json:"version_id"`
	TargetTag     string            `json:"target_tag"`
	ContainerName string            `json:"container_name,omitempty"`
	ContainerID   string            `json:"container_id,omitempty"`
	Network       string            `json:"network,omitempty"`
	Host          string            `json:"host,omitempty"`
	Labels        map[string]string `json:"labels,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// ImageScan records one vulnerability scan of a version's image
type ImageScan struct {
	ID        string    `json:"id"`
	VersionID string    `json:"version_id"`
	ImageTag  string    `json:"image_tag"`
	Scanner   string    `json:"scanner"`
	ExitCode  int       `json:"exit_code"`
	Output    string    `json:"output"`
	CreatedAt time.Time `json:"created_at"`
}
