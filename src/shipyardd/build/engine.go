package build

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/bitswalk/shipyard/src/common/errors"
	"github.com/bitswalk/shipyard/src/shipyardd/process"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultEngine       = "docker"
	DefaultBuildTimeout = 10 * time.Minute

	// Exit codes reported for builds that never reach the engine
	ExitComposeMissing = 2
	ExitPolicyBlocked  = 3
	ExitTimedOut       = -1
)

// BuildRequest describes one engine invocation
type BuildRequest struct {
	Stack Stack
	Dir   string
	Tag   string

	// Output receives the full, untruncated merged stream
	Output io.Writer
	// OnLine is called for every output line, in order
	OnLine func(string)
}

// BuildResult is the outcome of an engine invocation. ExitCode is the only
// success criterion.
type BuildResult struct {
	Args     []string
	ExitCode int
	TimedOut bool
	Summary  BuildSummary
}

// Succeeded reports whether the engine exited zero
func (r *BuildResult) Succeeded() bool {
	return r != nil && r.ExitCode == 0 && !r.TimedOut
}

// Engine runs image builds through a container engine CLI
type Engine struct {
	binary    string
	timeout   time.Duration
	waitDelay time.Duration
}

// NewEngine creates an engine invoking binary with a per-build timeout
func NewEngine(binary string, timeout time.Duration) *Engine {
	if binary == "" {
		binary = DefaultEngine
	}
	if timeout <= 0 {
		timeout = DefaultBuildTimeout
	}
	return &Engine{binary: binary, timeout: timeout, waitDelay: 5 * time.Second}
}

// Binary returns the engine executable
func (e *Engine) Binary() string {
	return e.binary
}

// Timeout returns the per-build time limit
func (e *Engine) Timeout() time.Duration {
	return e.timeout
}

// IsAvailable checks if the engine binary is installed and responds
func (e *Engine) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return exec.CommandContext(ctx, e.binary, "version").Run() == nil
}

// Command returns the argument list and working directory for req
func (e *Engine) Command(req BuildRequest) ([]string, string, error) {
	if req.Stack == StackCompose {
		composePath := FindComposeFile(req.Dir)
		if composePath == "" {
			return nil, "", fmt.Errorf("no docker-compose.yml or docker-compose.yaml found")
		}
		return []string{"compose", "-f", composePath, "build"}, req.Dir, nil
	}
	return []string{"build", "-t", req.Tag, req.Dir}, "", nil
}

// Build runs the build and streams its output through a parser reporting to
// reporter. Non-zero exits and timeouts are reported in the result; the error is
// only set when the engine could not be run or ctx was cancelled.
func (e *Engine) Build(ctx context.Context, req BuildRequest, reporter Reporter) (*BuildResult, error) {
	parser := NewParser(reporter)

	args, dir, err := e.Command(req)
	if err != nil {
		e.emit(req, err.Error())
		return &BuildResult{ExitCode: ExitComposeMissing, Summary: parser.Finish(false)}, nil
	}

	result := &BuildResult{Args: append([]string{e.binary}, args...)}

	buildCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(buildCtx, e.binary, args...)
	cmd.Dir = dir
	cmd.WaitDelay = e.waitDelay
	process.SetGroup(cmd)

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	log.Debug("Starting engine build", "args", strings.Join(result.Args, " "), "dir", dir)

	if err := cmd.Start(); err != nil {
		pw.Close()
		pr.Close()
		return nil, errors.ErrEngineUnavailable.WithCause(err)
	}

	var waitErr error
	g := new(errgroup.Group)

	g.Go(func() error {
		waitErr = cmd.Wait()
		return pw.Close()
	})

	g.Go(func() error {
		reader := bufio.NewReader(pr)
		for {
			line, err := reader.ReadString('\n')
			if line != "" {
				line = strings.TrimRight(line, "\n")
				e.emit(req, line)
				parser.Feed(line)
			}
			if err == io.EOF {
				return nil
			}
			if err != nil {
				// Keep draining so the engine never blocks on a full pipe.
				_, _ = io.Copy(io.Discard, pr)
				return err
			}
		}
	})

	streamErr := g.Wait()
	if streamErr != nil {
		log.Warn("Build output stream error", "error", streamErr)
	}

	switch {
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case buildCtx.Err() == context.DeadlineExceeded:
		result.TimedOut = true
		result.ExitCode = ExitTimedOut
		e.emit(req, fmt.Sprintf("build timed out after %s", e.timeout))
	case waitErr != nil:
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("failed to wait for engine: %w", waitErr)
		}
	}

	result.Summary = parser.Finish(result.Succeeded())
	return result, nil
}

func (e *Engine) emit(req BuildRequest, line string) {
	if req.Output != nil {
		_, _ = io.WriteString(req.Output, line+"\n")
	}
	if req.OnLine != nil {
		req.OnLine(line)
	}
}
