package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bitswalk/shipyard/src/common/errors"
)

// FetchStage downloads the submission archive and extracts it into the workspace
type FetchStage struct {
	intake *Intake
	limits ExtractLimits
}

// NewFetchStage creates a new fetch stage
func NewFetchStage(intake *Intake, limits ExtractLimits) *FetchStage {
	return &FetchStage{intake: intake, limits: limits}
}

// Name returns the stage name
func (s *FetchStage) Name() StageName { return StageFetch }

// Validate checks whether this stage can run
func (s *FetchStage) Validate(ctx context.Context, sc *StageContext) error {
	if sc.WorkspacePath == "" {
		return fmt.Errorf("workspace path not set")
	}
	if sc.ArchiveKey == "" && sc.ArchivePath == "" {
		return fmt.Errorf("no archive to build")
	}
	if sc.ArchiveKey != "" && s.intake == nil {
		return errors.ErrStorageUnavailable
	}
	return nil
}

// Execute fetches and extracts the archive
func (s *FetchStage) Execute(ctx context.Context, sc *StageContext, progress ProgressFunc) error {
	if err := os.MkdirAll(sc.WorkspacePath, 0755); err != nil {
		return fmt.Errorf("failed to create workspace: %w", err)
	}

	if sc.ArchiveKey != "" {
		progress(0, "Fetching submission archive")
		sc.ArchivePath = filepath.Join(sc.WorkspacePath, "archive.zip")
		if err := s.intake.Fetch(ctx, sc.ArchiveKey, sc.ArchivePath); err != nil {
			return err
		}
	}

	if sc.SourceDir == "" {
		sc.SourceDir = filepath.Join(sc.WorkspacePath, "src")
	}

	progress(50, "Extracting submission archive")
	return Extract(ctx, sc.ArchivePath, sc.SourceDir, s.limits)
}

// DetectStage classifies the extracted project
type DetectStage struct{}

// NewDetectStage creates a new detect stage
func NewDetectStage() *DetectStage { return &DetectStage{} }

// Name returns the stage name
func (s *DetectStage) Name() StageName { return StageDetect }

// Validate checks whether this stage can run
func (s *DetectStage) Validate(ctx context.Context, sc *StageContext) error {
	if sc.SourceDir == "" {
		return fmt.Errorf("source directory not set")
	}
	return nil
}

// Execute detects the stack, flattening a single nested project directory
func (s *DetectStage) Execute(ctx context.Context, sc *StageContext, progress ProgressFunc) error {
	stack, err := Detect(sc.SourceDir)
	if err != nil {
		return err
	}
	if stack == StackUnknown {
		return errors.ErrStackUndetected
	}

	sc.Stack = stack
	progress(100, fmt.Sprintf("Detected stack: %s", stack))
	return nil
}

// MaterializeStage generates a Dockerfile for stacks that lack one
type MaterializeStage struct {
	templateDir string
}

// NewMaterializeStage creates a new materialize stage
func NewMaterializeStage(templateDir string) *MaterializeStage {
	return &MaterializeStage{templateDir: templateDir}
}

// Name returns the stage name
func (s *MaterializeStage) Name() StageName { return StageMaterialize }

// Validate checks whether this stage can run
func (s *MaterializeStage) Validate(ctx context.Context, sc *StageContext) error {
	if sc.Stack == StackUnknown {
		return fmt.Errorf("stack not detected")
	}
	return nil
}

// Execute copies the stack template when no Dockerfile is present
func (s *MaterializeStage) Execute(ctx context.Context, sc *StageContext, progress ProgressFunc) error {
	written, err := Materialize(sc.SourceDir, sc.Stack, s.templateDir)
	if err != nil {
		return err
	}
	if written {
		progress(100, fmt.Sprintf("Generated Dockerfile from template %s", sc.Stack.TemplateName()))
	}
	return nil
}

// PolicyStage runs the security policy over the build descriptors
type PolicyStage struct {
	policy PrivilegedPolicy
}

// NewPolicyStage creates a new policy stage
func NewPolicyStage(policy PrivilegedPolicy) *PolicyStage {
	if policy == "" {
		policy = PrivilegedBlock
	}
	return &PolicyStage{policy: policy}
}

// Name returns the stage name
func (s *PolicyStage) Name() StageName { return StagePolicy }

// Validate checks whether this stage can run
func (s *PolicyStage) Validate(ctx context.Context, sc *StageContext) error {
	if sc.SourceDir == "" {
		return fmt.Errorf("source directory not set")
	}
	return nil
}

// Execute records every finding and fails on a blocking one
func (s *PolicyStage) Execute(ctx context.Context, sc *StageContext, progress ProgressFunc) error {
	report, err := CheckWorkspace(sc.SourceDir, s.policy)
	if err != nil {
		return err
	}
	sc.Policy = report

	for _, f := range report.Findings {
		kind := EventWarning
		if f.Blocking() {
			kind = EventStatus
		}
		sc.report(Event{Kind: kind, Message: f.String(), Service: f.Service})
	}

	if report.Blocked() {
		return errors.ErrSecurityViolation
	}
	return nil
}

// TagStage generates the image tag
type TagStage struct{}

// NewTagStage creates a new tag stage
func NewTagStage() *TagStage { return &TagStage{} }

// Name returns the stage name
func (s *TagStage) Name() StageName { return StageTag }

// Validate checks whether this stage can run
func (s *TagStage) Validate(ctx context.Context, sc *StageContext) error {
	return nil
}

// Execute derives the tag from the archive name, submitter and version number
func (s *TagStage) Execute(ctx context.Context, sc *StageContext, progress ProgressFunc) error {
	in := TagInput{
		Explicit:     sc.ExplicitTag,
		ProjectName:  archiveBaseName(sc.ArchiveName),
		UserName:     sc.SubmitterName,
		UserID:       sc.SubmitterID,
		WorkspaceDir: sc.SourceDir,
	}
	if in.ProjectName == "" {
		in.ProjectName = sc.ProjectName
	}
	if sc.VersionNumber > 0 {
		in.Version = strconv.Itoa(sc.VersionNumber)
	}

	tag, warnings, err := Tag(in)
	for _, w := range warnings {
		sc.report(Event{Kind: EventWarning, Message: w})
	}
	if err != nil {
		return err
	}

	sc.ImageTag = tag
	progress(100, fmt.Sprintf("Image tag: %s", tag))
	return nil
}

func archiveBaseName(name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	if ext := filepath.Ext(base); strings.EqualFold(ext, ".zip") {
		base = base[:len(base)-len(ext)]
	}
	return base
}

// BuildStage runs the container engine
type BuildStage struct {
	engine *Engine
}

// NewBuildStage creates a new build stage
func NewBuildStage(engine *Engine) *BuildStage {
	return &BuildStage{engine: engine}
}

// Name returns the stage name
func (s *BuildStage) Name() StageName { return StageBuild }

// Validate checks whether this stage can run
func (s *BuildStage) Validate(ctx context.Context, sc *StageContext) error {
	if s.engine == nil {
		return errors.ErrEngineUnavailable
	}
	if sc.ImageTag == "" && sc.Stack != StackCompose {
		return fmt.Errorf("image tag not set")
	}
	return nil
}

// Execute builds the image. A non-zero exit or a timeout fails the stage.
func (s *BuildStage) Execute(ctx context.Context, sc *StageContext, progress ProgressFunc) error {
	progress(0, fmt.Sprintf("Building %s image with %s", sc.Stack, s.engine.Binary()))

	result, err := s.engine.Build(ctx, BuildRequest{
		Stack:  sc.Stack,
		Dir:    sc.SourceDir,
		Tag:    sc.ImageTag,
		Output: sc.FullLog,
		OnLine: sc.OnLine,
	}, sc.Reporter)
	if err != nil {
		return err
	}
	sc.Result = result

	switch {
	case result.TimedOut:
		return errors.ErrBuildTimeout.WithMessagef("build timed out after %s", s.engine.Timeout())
	case result.ExitCode == ExitComposeMissing && sc.Stack == StackCompose && len(result.Args) == 0:
		return errors.ErrBuildFailed.WithMessage("no docker-compose.yml or docker-compose.yaml found")
	case result.ExitCode != 0:
		return errors.ErrBuildFailed.WithMessagef("build failed with exit code %d", result.ExitCode)
	}
	return nil
}
