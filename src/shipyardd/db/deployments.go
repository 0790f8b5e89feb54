package db

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DeploymentRepository handles deployment and image scan records
type DeploymentRepository struct {
	db *Database
}

// NewDeploymentRepository creates a new deployment repository
func NewDeploymentRepository(db *Database) *DeploymentRepository {
	return &DeploymentRepository{db: db}
}

// Create inserts a deployment record
func (r *DeploymentRepository) Create(d *Deployment) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	d.CreatedAt = time.Now().UTC()

	labels, err := json.Marshal(d.Labels)
	if err != nil {
		return fmt.Errorf("failed to encode deployment labels: %w", err)
	}

	_, err = r.db.DB().Exec(`
		INSERT INTO deployments (id, version_id, target_tag, container_name, container_id,
			network, host, labels, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, d.ID, d.VersionID, d.TargetTag, d.ContainerName, d.ContainerID,
		d.Network, d.Host, string(labels), d.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create deployment: %w", err)
	}

	return nil
}

// ListByVersion returns deployments of a version, newest first
func (r *DeploymentRepository) ListByVersion(versionID string) ([]Deployment, error) {
	rows, err := r.db.DB().Query(`
		SELECT id, version_id, target_tag, container_name, container_id,
			network, host, labels, created_at
		FROM deployments WHERE version_id = ?
		ORDER BY created_at DESC
	`, versionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list deployments: %w", err)
	}
	defer rows.Close()

	var deployments []Deployment
	for rows.Next() {
		var d Deployment
		var labels string
		if err := rows.Scan(&d.ID, &d.VersionID, &d.TargetTag, &d.ContainerName, &d.ContainerID,
			&d.Network, &d.Host, &labels, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan deployment: %w", err)
		}
		if labels != "" {
			if err := json.Unmarshal([]byte(labels), &d.Labels); err != nil {
				return nil, fmt.Errorf("failed to decode deployment labels: %w", err)
			}
		}
		deployments = append(deployments, d)
	}

	return deployments, rows.Err()
}

// CreateScan inserts an image scan record
func (r *DeploymentRepository) CreateScan(s *ImageScan) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	s.CreatedAt = time.Now().UTC()

	_, err := r.db.DB().Exec(`
		INSERT INTO image_scans (id, version_id, image_tag, scanner, exit_code, output, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.VersionID, s.ImageTag, s.Scanner, s.ExitCode, s.Output, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create image scan: %w", err)
	}
	return nil
}

// LatestScan returns the most recent scan of a version, or nil
func (r *DeploymentRepository) LatestScan(versionID string) (*ImageScan, error) {
	rows, err := r.db.DB().Query(`
		SELECT id, version_id, image_tag, scanner, exit_code, output, created_at
		FROM image_scans WHERE version_id = ?
		ORDER BY created_at DESC LIMIT 1
	`, versionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get image scan: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	var s ImageScan
	if err := rows.Scan(&s.ID, &s.VersionID, &s.ImageTag, &s.Scanner, &s.ExitCode, &s.Output, &s.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan image scan: %w", err)
	}
	return &s, nil
}
