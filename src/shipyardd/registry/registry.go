// Package registry tags, pushes, pulls, scans and runs built images.
package registry

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/bitswalk/shipyard/src/common/logs"
	"github.com/bitswalk/shipyard/src/shipyardd/process"
)

var log = logs.NewDefault()

// SetLogger sets the logger for the registry package
func SetLogger(l *logs.Logger) {
	if l != nil {
		log = l
	}
}

const (
	DefaultEngine  = "docker"
	DefaultTimeout = 120 * time.Second

	// Exit codes for commands that never produced one
	ExitTimedOut    = 1
	ExitStartFailed = 2
)

// Scanner selects the image scanner
type Scanner string

const (
	// ScannerAuto uses trivy when it is on PATH, otherwise the engine's scan command
	ScannerAuto   Scanner = "auto"
	ScannerTrivy  Scanner = "trivy"
	ScannerEngine Scanner = "engine"
)

// Config holds the registry operation configuration
type Config struct {
	Engine  string        // Container engine binary
	Timeout time.Duration // Per-command limit
	Scanner Scanner
	Trivy   string // trivy binary name or path
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		Engine:  DefaultEngine,
		Timeout: DefaultTimeout,
		Scanner: ScannerAuto,
		Trivy:   "trivy",
	}
}

// Result is the exit code and merged output of one command
type Result struct {
	Command  string `json:"command"`
	ExitCode int    `json:"exit_code"`
	Output   string `json:"output"`
}

// OK reports whether the command exited zero
func (r Result) OK() bool {
	return r.ExitCode == 0
}

// Client runs registry operations through the engine CLI
type Client struct {
	config   Config
	lookPath func(string) (string, error)
}

// New creates a registry client
func New(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.Engine == "" {
		cfg.Engine = def.Engine
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Scanner == "" {
		cfg.Scanner = def.Scanner
	}
	if cfg.Trivy == "" {
		cfg.Trivy = def.Trivy
	}
	return &Client{config: cfg, lookPath: exec.LookPath}
}

// Tag applies target to the source image
func (c *Client) Tag(ctx context.Context, source, target string) Result {
	return c.run(ctx, c.config.Engine, "tag", source, target)
}

// Push uploads tag to its registry
func (c *Client) Push(ctx context.Context, tag string) Result {
	return c.run(ctx, c.config.Engine, "push", tag)
}

// Pull downloads tag from its registry
func (c *Client) Pull(ctx context.Context, tag string) Result {
	return c.run(ctx, c.config.Engine, "pull", tag)
}

// Promote tags source as target and pushes it. The push is skipped when tagging fails.
func (c *Client) Promote(ctx context.Context, source, target string) Result {
	res := c.Tag(ctx, source, target)
	if !res.OK() {
		return res
	}
	push := c.Push(ctx, target)
	push.Output = res.Output + push.Output
	return push
}

// ScannerName returns the scanner Scan will use
func (c *Client) ScannerName() string {
	switch c.config.Scanner {
	case ScannerTrivy:
		return "trivy"
	case ScannerEngine:
		return c.config.Engine + " scan"
	}
	if _, err := c.lookPath(c.config.Trivy); err == nil {
		return "trivy"
	}
	return c.config.Engine + " scan"
}

// Scan checks tag for known vulnerabilities
func (c *Client) Scan(ctx context.Context, tag string) Result {
	if c.ScannerName() == "trivy" {
		return c.run(ctx, c.config.Trivy, "image", "--no-progress", tag)
	}
	return c.run(ctx, c.config.Engine, "scan", tag)
}

// run executes a command with the configured timeout and merged output
func (c *Client) run(ctx context.Context, name string, args ...string) Result {
	command := strings.Join(append([]string{name}, args...), " ")

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &out
	cmd.Stderr = &out
	cmd.WaitDelay = 5 * time.Second
	process.SetGroup(cmd)

	log.Debug("Running registry command", "command", command)

	err := cmd.Run()
	switch {
	case ctx.Err() == context.DeadlineExceeded:
		// Keep whatever the command printed before it was killed
		return Result{Command: command, ExitCode: ExitTimedOut, Output: out.String() + "Command timed out: " + command}
	case err == nil:
		return Result{Command: command, Output: out.String()}
	}

	if exitErr, ok := err.(*exec.ExitError); ok {
		return Result{Command: command, ExitCode: exitErr.ExitCode(), Output: out.String()}
	}
	return Result{Command: command, ExitCode: ExitStartFailed, Output: "Command failed: " + err.Error()}
}
