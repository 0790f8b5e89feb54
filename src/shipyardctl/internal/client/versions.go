package client

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
)

// Version represents a submitted project version
type Version struct {
	ID            string `json:"id"`
	ProjectID     string `json:"project_id"`
	VersionNumber int    `json:"version_number"`
	VersionNotes  string `json:"version_notes"`
	SubmittedBy   string `json:"submitted_by"`
	SubmitterName string `json:"submitter_name"`
	ArchiveName   string `json:"archive_name,omitempty"`
	Status        string `json:"status"`
	Stack         string `json:"stack,omitempty"`
	ImageTag      string `json:"image_tag,omitempty"`
	ImageID       string `json:"image_id,omitempty"`
	FailureCode   string `json:"failure_code,omitempty"`
	CreatedAt     string `json:"created_at"`
	StartedAt     string `json:"started_at,omitempty"`
	CompletedAt   string `json:"completed_at,omitempty"`
}

// VersionListResponse represents a page of versions
type VersionListResponse struct {
	Count    int       `json:"count"`
	Offset   int       `json:"offset"`
	Limit    int       `json:"limit"`
	Versions []Version `json:"versions"`
}

// BuildLogsResponse holds the bounded build transcript
type BuildLogsResponse struct {
	VersionID        string `json:"version_id"`
	Status           string `json:"status"`
	BuildLogs        string `json:"build_logs"`
	FullLogAvailable bool   `json:"full_log_available"`
}

// Result is the outcome of one engine command on the server
type Result struct {
	Command  string `json:"command"`
	ExitCode int    `json:"exit_code"`
	Output   string `json:"output"`
}

// OperationResponse is returned by promote
type OperationResponse struct {
	VersionID string `json:"version_id"`
	Result
}

// ImageScan is a recorded vulnerability scan
type ImageScan struct {
	ID        string `json:"id"`
	VersionID string `json:"version_id"`
	ImageTag  string `json:"image_tag"`
	Scanner   string `json:"scanner"`
	ExitCode  int    `json:"exit_code"`
	Output    string `json:"output"`
	CreatedAt string `json:"created_at"`
}

// Deployment is a container started from a version's image
type Deployment struct {
	ID            string            `json:"id"`
	VersionID     string            `json:"version_id"`
	TargetTag     string            `json:"target_tag"`
	ContainerName string            `json:"container_name,omitempty"`
	ContainerID   string            `json:"container_id,omitempty"`
	Network       string            `json:"network,omitempty"`
	Host          string            `json:"host,omitempty"`
	Labels        map[string]string `json:"labels,omitempty"`
	CreatedAt     string            `json:"created_at"`
}

// DeployRequest holds optional deployment overrides
type DeployRequest struct {
	TargetTag     string            `json:"target_tag,omitempty"`
	ContainerName string            `json:"container_name,omitempty"`
	Network       string            `json:"network,omitempty"`
	Pull          bool              `json:"pull,omitempty"`
	Labels        map[string]string `json:"labels,omitempty"`
}

// DeployResponse is returned by deploy
type DeployResponse struct {
	Deployment Deployment `json:"deployment"`
	Status     string     `json:"status"`
}

// DeploymentListResponse lists the deployments of a version
type DeploymentListResponse struct {
	Count       int          `json:"count"`
	Deployments []Deployment `json:"deployments"`
}

// SubmitOptions describes an archive upload
type SubmitOptions struct {
	// Archive is the local path of the zip file
	Archive string
	Notes   string
	// Wait blocks until the build finishes
	Wait bool

	// Submitter fields are ignored by servers that authenticate callers
	SubmittedBy string
	Username    string
	Email       string
}

func versionPath(projectID, versionID string) string {
	return fmt.Sprintf("%s/versions/%s", projectPath(projectID), url.PathEscape(versionID))
}

// SubmitVersion uploads an archive as a new version. The body is streamed so
// large archives are never held in memory.
func (c *Client) SubmitVersion(ctx context.Context, projectID string, opts *SubmitOptions) (*Version, error) {
	f, err := os.Open(opts.Archive)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		fields := [][2]string{
			{"version_notes", opts.Notes},
			{"submitted_by", opts.SubmittedBy},
			{"username", opts.Username},
			{"email", opts.Email},
		}
		for _, kv := range fields {
			if kv[1] == "" {
				continue
			}
			if err := mw.WriteField(kv[0], kv[1]); err != nil {
				pw.CloseWithError(err)
				return
			}
		}

		part, err := mw.CreateFormFile("file", filepath.Base(opts.Archive))
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, f); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	path := projectPath(projectID) + "/versions"
	if opts.Wait {
		path += "?wait=true"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, pr)
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	resp, err := c.StreamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var v Version
	if err := handleResponse(resp, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// ListVersions returns a page of a project's versions, newest first
func (c *Client) ListVersions(ctx context.Context, projectID string, opts *ListOptions) (*VersionListResponse, error) {
	var resp VersionListResponse
	if err := c.Get(ctx, projectPath(projectID)+"/versions"+opts.QueryString(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetVersion returns a single version
func (c *Client) GetVersion(ctx context.Context, projectID, versionID string) (*Version, error) {
	var resp Version
	if err := c.Get(ctx, versionPath(projectID, versionID), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetBuildLogs returns the bounded build transcript
func (c *Client) GetBuildLogs(ctx context.Context, projectID, versionID string) (*BuildLogsResponse, error) {
	var resp BuildLogsResponse
	if err := c.Get(ctx, versionPath(projectID, versionID)+"/build_logs", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CopyFullBuildLog writes the untruncated build log to w
func (c *Client) CopyFullBuildLog(ctx context.Context, projectID, versionID string, w io.Writer) error {
	resp, err := c.RawGet(ctx, versionPath(projectID, versionID)+"/build_logs/full", "text/plain")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("failed to read build log: %w", err)
	}
	return nil
}

// Promote tags the built image as target and pushes it
func (c *Client) Promote(ctx context.Context, projectID, versionID, target string) (*OperationResponse, error) {
	var resp OperationResponse
	body := map[string]string{"target_tag": target}
	if err := c.Post(ctx, versionPath(projectID, versionID)+"/promote", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Scan runs a vulnerability scan of the built image
func (c *Client) Scan(ctx context.Context, projectID, versionID string) (*ImageScan, error) {
	var resp ImageScan
	if err := c.Post(ctx, versionPath(projectID, versionID)+"/scan", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Deploy starts a container from the built image
func (c *Client) Deploy(ctx context.Context, projectID, versionID string, req *DeployRequest) (*DeployResponse, error) {
	var resp DeployResponse
	if err := c.Post(ctx, versionPath(projectID, versionID)+"/deploy", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListDeployments returns the deployments of a version
func (c *Client) ListDeployments(ctx context.Context, projectID, versionID string) (*DeploymentListResponse, error) {
	var resp DeploymentListResponse
	if err := c.Get(ctx, versionPath(projectID, versionID)+"/deployments", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
