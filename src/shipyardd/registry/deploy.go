package registry

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// DeployRequest describes a container to start from a built image
type DeployRequest struct {
	// SourceTag is promoted to TargetTag first when set
	SourceTag string
	TargetTag string

	ContainerName string
	Network       string
	Labels        map[string]string
	Pull          bool

	// Reverse-proxy labels are added when all three are set
	Domain      string
	HackathonID string
	Username    string
}

// DeployResult is the outcome of a deployment
type DeployResult struct {
	Result
	ContainerID string            `json:"container_id,omitempty"`
	Host        string            `json:"host,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
}

// Deployer starts containers from built images
type Deployer struct {
	client *Client
}

// NewDeployer creates a deployer on client
func NewDeployer(client *Client) *Deployer {
	return &Deployer{client: client}
}

// TraefikLabels returns the router labels and host for a hackathon submission.
// Hackathon ID and username are reduced to DNS label characters first. It
// returns nil when any of the inputs is empty after that.
func TraefikLabels(domain, hackathonID, username string) (map[string]string, string) {
	domain = strings.Trim(strings.ToLower(strings.TrimSpace(domain)), ".")
	hackathon := dnsLabel(hackathonID)
	user := dnsLabel(username)
	if domain == "" || hackathon == "" || user == "" {
		return nil, ""
	}

	host := fmt.Sprintf("%s.%s.%s", hackathon, user, domain)
	router := fmt.Sprintf("traefik.http.routers.%s_%s", hackathon, user)

	return map[string]string{
		"traefik.enable":             "true",
		router + ".rule":             fmt.Sprintf("Host(`%s`)", host),
		router + ".entrypoints":      "websecure",
		router + ".tls.certresolver": "letsencrypt",
	}, host
}

// maxDNSLabel is the longest single label a host name may carry
const maxDNSLabel = 63

// dnsLabel lower-cases s and replaces everything outside [a-z0-9-] with '-'.
// Leading and trailing dashes are dropped.
func dnsLabel(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	label := strings.Trim(b.String(), "-")
	if len(label) > maxDNSLabel {
		label = strings.TrimRight(label[:maxDNSLabel], "-")
	}
	return label
}

// RunArgs returns the engine arguments for starting the container
func RunArgs(req DeployRequest, labels map[string]string) []string {
	args := []string{"run", "-d", "--restart=unless-stopped"}
	if req.ContainerName != "" {
		args = append(args, "--name", req.ContainerName)
	}
	if req.Network != "" {
		args = append(args, "--network", req.Network)
	}
	for _, k := range slices.Sorted(maps.Keys(labels)) {
		args = append(args, "--label", k+"="+labels[k])
	}
	return append(args, req.TargetTag)
}

// Run optionally promotes and pulls the image, then starts it detached
func (d *Deployer) Run(ctx context.Context, req DeployRequest) (*DeployResult, error) {
	if req.TargetTag == "" {
		return nil, fmt.Errorf("target tag is required")
	}

	labels := make(map[string]string, len(req.Labels)+4)
	maps.Copy(labels, req.Labels)
	traefik, host := TraefikLabels(req.Domain, req.HackathonID, req.Username)
	maps.Copy(labels, traefik)

	result := &DeployResult{Host: host, Labels: labels}

	if req.SourceTag != "" && req.SourceTag != req.TargetTag {
		res := d.client.Promote(ctx, req.SourceTag, req.TargetTag)
		if !res.OK() {
			result.Result = res
			return result, fmt.Errorf("failed to promote %s to %s: exit code %d", req.SourceTag, req.TargetTag, res.ExitCode)
		}
	}

	if req.Pull {
		res := d.client.Pull(ctx, req.TargetTag)
		if !res.OK() {
			result.Result = res
			return result, fmt.Errorf("failed to pull %s: exit code %d", req.TargetTag, res.ExitCode)
		}
	}

	res := d.client.run(ctx, d.client.config.Engine, RunArgs(req, labels)...)
	result.Result = res
	if !res.OK() {
		return result, fmt.Errorf("failed to run %s: exit code %d", req.TargetTag, res.ExitCode)
	}

	result.ContainerID = lastLine(res.Output)
	log.Info("Container started", "image", req.TargetTag, "container_id", result.ContainerID, "host", host)
	return result, nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
