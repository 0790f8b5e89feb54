package build

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bitswalk/shipyard/src/common/errors"
	"github.com/bitswalk/shipyard/src/common/paths"
	"github.com/bitswalk/shipyard/src/shipyardd/db"
	"github.com/bitswalk/shipyard/src/shipyardd/storage"
	"github.com/google/uuid"
	"github.com/ulikunitz/xz"
)

// Worker processes version builds from the queue
type Worker struct {
	id      int
	manager *Manager
	jobChan <-chan *db.ProjectVersion
}

// newWorker creates a new build worker
func newWorker(id int, manager *Manager, jobChan <-chan *db.ProjectVersion) *Worker {
	return &Worker{
		id:      id,
		manager: manager,
		jobChan: jobChan,
	}
}

// Run starts the worker loop
func (w *Worker) Run(ctx context.Context) {
	log.Debug("Build worker started", "worker_id", w.id)
	defer log.Debug("Build worker stopped", "worker_id", w.id)

	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-w.jobChan:
			if !ok {
				return
			}
			w.processVersion(ctx, v)
		}
	}
}

// syncWriter serialises writes from the engine stream and the reporters
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// buildRun holds the per-version transcript state
type buildRun struct {
	version    *db.ProjectVersion
	workspace  string
	transcript *RingBuffer
	fullBuf    bytes.Buffer
	xzw        *xz.Writer
	full       *syncWriter
	reporter   Reporter
	sc         *StageContext
}

// processVersion moves one pending version through the pipeline. The workspace
// is removed and the version reaches built or failed on every path.
func (w *Worker) processVersion(ctx context.Context, v *db.ProjectVersion) {
	m := w.manager

	// Versions received after shutdown began stay pending for the next start
	if ctx.Err() != nil {
		m.release(v.ID)
		log.Debug("Shutdown in progress, leaving version pending", "version_id", v.ID)
		return
	}

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	m.registerCancel(v.ID, cancel)
	defer m.unregisterCancel(v.ID)
	defer m.notify(v.ID)

	if err := m.versionRepo.MarkBuilding(v.ID); err != nil {
		// Another worker or a previous process already moved it on.
		log.Warn("Version is no longer pending, skipping", "version_id", v.ID, "error", err)
		return
	}

	var run *buildRun
	defer func() {
		if run != nil {
			w.cleanup(run.workspace)
		}
	}()

	// Recover from panics so the worker goroutine survives and the version is
	// marked failed instead of staying in building forever.
	defer func() {
		if r := recover(); r != nil {
			log.Error("Build worker recovered from panic",
				"worker_id", w.id,
				"version_id", v.ID,
				"panic", fmt.Sprintf("%v", r),
			)
			w.fail(run, v, fmt.Sprintf("internal error (panic): %v", r), "")
		}
	}()

	run, err := w.newRun(v)
	if err != nil {
		w.fail(nil, v, fmt.Sprintf("internal error: %v", err), "")
		return
	}

	log.Info("Processing version build",
		"worker_id", w.id,
		"version_id", v.ID,
		"project_id", v.ProjectID,
		"version_number", v.VersionNumber,
	)
	run.reporter.Report(Event{Kind: EventStatus, Status: string(db.VersionStatusBuilding),
		Message: fmt.Sprintf("Building version %d", v.VersionNumber)})

	err = m.pipeline.Run(jobCtx, run.sc)

	if run.sc.Stack != StackUnknown || run.sc.ImageTag != "" {
		if recErr := m.versionRepo.RecordBuildInfo(v.ID, string(run.sc.Stack), run.sc.ImageTag); recErr != nil {
			log.Warn("Failed to record build info", "version_id", v.ID, "error", recErr)
		}
	}

	if err != nil {
		w.fail(run, v, failureReason(err), failureCode(err))
		return
	}

	w.succeed(run, v)
}

func (w *Worker) newRun(v *db.ProjectVersion) (*buildRun, error) {
	m := w.manager

	base := paths.Expand(m.config.WorkspaceBase)
	if err := os.MkdirAll(base, 0755); err != nil {
		return nil, fmt.Errorf("failed to create workspace base: %w", err)
	}
	workspace := filepath.Join(base, "build_"+uuid.New().String())

	project, err := m.projectRepo.GetByID(v.ProjectID)
	if err != nil {
		return nil, err
	}

	run := &buildRun{
		version:    v,
		workspace:  workspace,
		transcript: NewRingBuffer(m.config.LogBufferLines),
	}

	xzw, err := xz.NewWriter(&run.fullBuf)
	if err != nil {
		return nil, fmt.Errorf("failed to create log compressor: %w", err)
	}
	run.xzw = xzw
	run.full = &syncWriter{w: xzw}

	reporters := MultiReporter{
		NewTranscriptReporter(run.transcript, run.full),
		NewLogReporter(nil),
	}
	if m.bus != nil {
		reporters = append(reporters, NewBusReporter(m.bus))
	}
	if m.reporter != nil {
		reporters = append(reporters, m.reporter)
	}
	run.reporter = versionReporter{versionID: v.ID, next: reporters, now: time.Now}

	run.sc = &StageContext{
		VersionID:     v.ID,
		ProjectID:     v.ProjectID,
		VersionNumber: v.VersionNumber,
		ArchiveKey:    v.FilePath,
		ArchiveName:   v.ArchiveName,
		WorkspacePath: workspace,
		SubmitterName: v.SubmitterName,
		SubmitterID:   v.SubmittedBy,
		Reporter:      run.reporter,
		OnLine:        run.transcript.Add,
		FullLog:       run.full,
	}
	if project != nil {
		run.sc.ProjectName = project.Name
	}

	return run, nil
}

// failureReason renders the transcript line that explains a failed build
func failureReason(err error) string {
	switch {
	case errors.Is(err, errors.ErrCorruptArchive):
		return errors.ErrCorruptArchive.Message
	case errors.Is(err, errors.ErrStackUndetected):
		return errors.ErrStackUndetected.Message
	case errors.Is(err, errors.ErrSecurityViolation):
		return "build aborted by security policy"
	case errors.Is(err, context.Canceled):
		return "build interrupted by shutdown"
	}
	return errors.Message(err)
}

// submissionFailures are failures caused by the uploaded archive rather than the build
var submissionFailures = []*errors.Error{errors.ErrCorruptArchive, errors.ErrStackUndetected}

// failureCode returns the domain.code reason of a structured failure
func failureCode(err error) string {
	var e *errors.Error
	if errors.As(err, &e) {
		return e.Reason()
	}
	return ""
}

// SubmissionFailure returns the error behind a version that failed because of
// its archive. It reports false for any other version.
func SubmissionFailure(v *db.ProjectVersion) (*errors.Error, bool) {
	if v == nil || v.Status != db.VersionStatusFailed || v.FailureCode == "" {
		return nil, false
	}
	for _, e := range submissionFailures {
		if e.Reason() == v.FailureCode {
			return e, true
		}
	}
	return nil, false
}

// finish seals the transcript and uploads the full log, returning its storage key
func (w *Worker) finish(run *buildRun) (string, string) {
	if err := run.xzw.Close(); err != nil {
		log.Warn("Failed to finalize build log", "version_id", run.version.ID, "error", err)
		return run.transcript.String(), ""
	}

	key := storage.LogKey(run.version.ProjectID, run.version.ID)
	if w.manager.storage == nil {
		return run.transcript.String(), ""
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	size := int64(run.fullBuf.Len())
	if err := w.manager.storage.Upload(ctx, key, bytes.NewReader(run.fullBuf.Bytes()), size, "application/x-xz"); err != nil {
		log.Warn("Failed to upload full build log", "version_id", run.version.ID, "error", err)
		return run.transcript.String(), ""
	}

	return run.transcript.String(), key
}

func (w *Worker) succeed(run *buildRun, v *db.ProjectVersion) {
	m := w.manager

	imageID := ""
	if run.sc.Result != nil {
		imageID = run.sc.Result.Summary.ImageID
	}

	run.reporter.Report(Event{Kind: EventStatus, Status: string(db.VersionStatusBuilt),
		Message: fmt.Sprintf("Build succeeded: %s", run.sc.ImageTag)})

	logs, logPath := w.finish(run)
	out := db.BuildOutcome{
		Logs:     logs,
		LogPath:  logPath,
		Stack:    string(run.sc.Stack),
		ImageTag: run.sc.ImageTag,
		ImageID:  imageID,
	}

	if err := m.versionRepo.MarkBuilt(v.ID, out); err != nil {
		log.Error("Failed to mark version built", "version_id", v.ID, "error", err)
		return
	}

	log.Info("Version build completed",
		"worker_id", w.id,
		"version_id", v.ID,
		"image_tag", run.sc.ImageTag,
		"image_id", ShortImageID(imageID),
	)
}

// fail marks the version failed with the transcript so far plus reason. run may
// be nil when the failure happened before the transcript existed.
func (w *Worker) fail(run *buildRun, v *db.ProjectVersion, reason, code string) {
	log.Error("Version build failed",
		"worker_id", w.id,
		"version_id", v.ID,
		"error", reason,
	)

	out := db.BuildOutcome{Logs: reason + "\n", FailureCode: code}
	if run != nil {
		run.reporter.Report(Event{Kind: EventStatus, Status: string(db.VersionStatusFailed), Message: reason})
		out.Logs, out.LogPath = w.finish(run)
		out.Stack = string(run.sc.Stack)
		out.ImageTag = run.sc.ImageTag
	}

	if err := w.manager.versionRepo.MarkFailed(v.ID, out); err != nil {
		log.Error("Failed to mark version as failed", "version_id", v.ID, "error", err)
	}
}

// cleanup removes the build workspace directory
func (w *Worker) cleanup(workspacePath string) {
	if workspacePath == "" {
		return
	}
	if err := os.RemoveAll(workspacePath); err != nil {
		log.Warn("Failed to cleanup workspace", "path", workspacePath, "error", err)
	}
}
