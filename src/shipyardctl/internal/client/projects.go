package client

import (
	"context"
	"fmt"
	"net/url"
)

// Project represents a hackathon project
type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	HackathonID string `json:"hackathon_id"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// ProjectListResponse represents a list of projects
type ProjectListResponse struct {
	Count    int       `json:"count"`
	Projects []Project `json:"projects"`
}

// PutProjectRequest registers or renames a project
type PutProjectRequest struct {
	Name        string `json:"name"`
	HackathonID string `json:"hackathon_id,omitempty"`
}

// ListProjects returns every registered project
func (c *Client) ListProjects(ctx context.Context) (*ProjectListResponse, error) {
	var resp ProjectListResponse
	if err := c.Get(ctx, "/v1/projects", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetProject returns a single project
func (c *Client) GetProject(ctx context.Context, id string) (*Project, error) {
	var resp Project
	if err := c.Get(ctx, projectPath(id), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PutProject creates or updates a project
func (c *Client) PutProject(ctx context.Context, id string, req *PutProjectRequest) (*Project, error) {
	var resp Project
	if err := c.Put(ctx, projectPath(id), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func projectPath(id string) string {
	return fmt.Sprintf("/v1/projects/%s", url.PathEscape(id))
}
