// Package build turns submitted project archives into container images.
package build

import (
	"context"
	"fmt"
	"io"
	"time"
)

// StageName identifies a pipeline stage
type StageName string

const (
	StageFetch       StageName = "fetch"
	StageDetect      StageName = "detect"
	StageMaterialize StageName = "materialize"
	StagePolicy      StageName = "policy"
	StageTag         StageName = "tag"
	StageBuild       StageName = "build"
)

// Stage defines the interface for a single build pipeline stage
type Stage interface {
	// Name returns the stage name
	Name() StageName

	// Validate checks whether this stage can run given the current context
	Validate(ctx context.Context, sc *StageContext) error

	// Execute runs the stage, updating progress via the callback
	Execute(ctx context.Context, sc *StageContext, progress ProgressFunc) error
}

// ProgressFunc reports stage progress (0-100) with an optional message
type ProgressFunc func(percent int, message string)

// StageContext holds shared state passed through the pipeline
type StageContext struct {
	VersionID     string
	ProjectID     string
	ProjectName   string
	VersionNumber int

	// ArchiveKey is the storage key of the submission; empty when ArchivePath
	// already points at a local archive
	ArchiveKey  string
	ArchiveName string
	ArchivePath string

	WorkspacePath string // Root workspace directory for this build
	SourceDir     string // Extracted project, the build context

	SubmitterName string
	SubmitterID   string
	ExplicitTag   string

	Reporter Reporter
	// OnLine receives every raw engine output line
	OnLine func(string)
	// FullLog receives the untruncated transcript
	FullLog io.Writer

	// Populated by the stages
	Stack    Stack
	Policy   Report
	ImageTag string
	Result   *BuildResult
}

func (sc *StageContext) report(e Event) {
	if sc.Reporter != nil {
		sc.Reporter.Report(e)
	}
}

// StageError wraps the failure of a named stage
type StageError struct {
	Stage StageName
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Pipeline runs stages in order, stopping at the first failure
type Pipeline struct {
	stages []Stage
}

// NewPipeline creates a pipeline from an ordered list of stages
func NewPipeline(stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages}
}

// DefaultStages returns fetch, detect, materialize, policy, tag and build
func DefaultStages(intake *Intake, engine *Engine, cfg Config) []Stage {
	return []Stage{
		NewFetchStage(intake, cfg.Extract),
		NewDetectStage(),
		NewMaterializeStage(cfg.TemplateDir),
		NewPolicyStage(cfg.PrivilegedPolicy),
		NewTagStage(),
		NewBuildStage(engine),
	}
}

// Stages returns the stage names in execution order
func (p *Pipeline) Stages() []StageName {
	names := make([]StageName, 0, len(p.stages))
	for _, s := range p.stages {
		names = append(names, s.Name())
	}
	return names
}

// Run executes every stage against sc
func (p *Pipeline) Run(ctx context.Context, sc *StageContext) error {
	for i, stage := range p.stages {
		name := stage.Name()

		select {
		case <-ctx.Done():
			return &StageError{Stage: name, Err: ctx.Err()}
		default:
		}

		if err := stage.Validate(ctx, sc); err != nil {
			return &StageError{Stage: name, Err: err}
		}

		stageStart := time.Now()
		progress := func(percent int, message string) {
			if message == "" {
				return
			}
			overall := (i*100 + percent) / len(p.stages)
			sc.report(Event{Kind: EventStatus, Message: message, Percent: overall})
		}

		if err := stage.Execute(ctx, sc, progress); err != nil {
			return &StageError{Stage: name, Err: err}
		}

		log.Debug("Stage completed", "version_id", sc.VersionID, "stage", name,
			"duration_ms", time.Since(stageStart).Milliseconds())
	}
	return nil
}
