package build

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/bitswalk/shipyard/src/common/errors"
	"github.com/bitswalk/shipyard/src/common/logs"
	"github.com/bitswalk/shipyard/src/shipyardd/db"
	"github.com/bitswalk/shipyard/src/shipyardd/events"
	"github.com/bitswalk/shipyard/src/shipyardd/storage"
)

var log = logs.NewDefault()

// SetLogger sets the logger for the build package
func SetLogger(l *logs.Logger) {
	if l != nil {
		log = l
	}
}

// Config holds configuration for the build manager
type Config struct {
	Workers          int           // Number of concurrent build workers
	QueueSize        int           // Capacity of the in-process job queue
	WorkspaceBase    string        // Base directory for build workspaces
	Engine           string        // Container engine binary: docker or podman
	Timeout          time.Duration // Per-build time limit
	TemplateDir      string        // Overrides the built-in Dockerfile templates
	PrivilegedPolicy PrivilegedPolicy
	LogBufferLines   int // Raw lines kept in build_logs
	Extract          ExtractLimits
	DispatchInterval time.Duration // How often pending versions are re-queued
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		Workers:          2,
		WorkspaceBase:    "~/.shipyardd/workspaces",
		Engine:           DefaultEngine,
		Timeout:          DefaultBuildTimeout,
		PrivilegedPolicy: PrivilegedBlock,
		LogBufferLines:   DefaultLogBufferLines,
		Extract: ExtractLimits{
			MaxBytes:   DefaultMaxExtractBytes,
			MaxEntries: DefaultMaxExtractEntries,
		},
		DispatchInterval: 10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = def.Workers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = c.Workers * 4
	}
	if c.WorkspaceBase == "" {
		c.WorkspaceBase = def.WorkspaceBase
	}
	if c.Engine == "" {
		c.Engine = def.Engine
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.PrivilegedPolicy == "" {
		c.PrivilegedPolicy = def.PrivilegedPolicy
	}
	if c.LogBufferLines <= 0 {
		c.LogBufferLines = def.LogBufferLines
	}
	if c.Extract.MaxBytes <= 0 {
		c.Extract.MaxBytes = def.Extract.MaxBytes
	}
	if c.Extract.MaxEntries <= 0 {
		c.Extract.MaxEntries = def.Extract.MaxEntries
	}
	if c.DispatchInterval <= 0 {
		c.DispatchInterval = def.DispatchInterval
	}
	return c
}

// Submitter identifies the caller uploading a version
type Submitter struct {
	ID       string
	Username string
	Email    string
}

// DisplayName returns the username, falling back to the email
func (s Submitter) DisplayName() string {
	if name := strings.TrimSpace(s.Username); name != "" {
		return name
	}
	return strings.TrimSpace(s.Email)
}

// Submission is one uploaded archive
type Submission struct {
	ProjectID string
	Filename  string
	Notes     string
	Submitter Submitter
	Archive   io.Reader
	Size      int64
}

// Manager coordinates version builds across workers
type Manager struct {
	db          *db.Database
	storage     storage.Backend
	versionRepo *db.ProjectVersionRepository
	projectRepo *db.ProjectRepository
	intake      *Intake
	engine      *Engine
	bus         events.Publisher
	reporter    Reporter
	config      Config
	pipeline    *Pipeline

	jobQueue    chan *db.ProjectVersion
	cancelFuncs map[string]context.CancelFunc
	inflight    map[string]struct{}
	waiters     map[string][]chan struct{}
	mu          sync.RWMutex
	wg          sync.WaitGroup

	running      bool
	stopped      bool
	ctx          context.Context
	cancel       context.CancelFunc
	dispatchDone chan struct{}
}

// NewManager creates a new build manager. bus may be nil.
func NewManager(database *db.Database, backend storage.Backend, bus events.Publisher, cfg Config) *Manager {
	cfg = cfg.withDefaults()

	intake := NewIntake(backend)
	engine := NewEngine(cfg.Engine, cfg.Timeout)

	return &Manager{
		db:          database,
		storage:     backend,
		versionRepo: db.NewProjectVersionRepository(database),
		projectRepo: db.NewProjectRepository(database),
		intake:      intake,
		engine:      engine,
		bus:         bus,
		config:      cfg,
		pipeline:    NewPipeline(DefaultStages(intake, engine, cfg)...),
		jobQueue:    make(chan *db.ProjectVersion, cfg.QueueSize),
		cancelFuncs: make(map[string]context.CancelFunc),
		inflight:    make(map[string]struct{}),
		waiters:     make(map[string][]chan struct{}),
	}
}

// SetReporter adds a reporter that receives every build event
func (m *Manager) SetReporter(r Reporter) {
	m.reporter = r
}

// Start recovers interrupted builds and begins processing versions
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("build manager already running")
	}
	if m.stopped {
		// The job queue is closed once stopped
		m.mu.Unlock()
		return errors.ErrManagerStopped
	}
	m.running = true
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.dispatchDone = make(chan struct{})
	m.mu.Unlock()

	m.failInterrupted()

	log.Info("Build manager starting", "workers", m.config.Workers, "engine", m.engine.Binary())

	for i := 0; i < m.config.Workers; i++ {
		worker := newWorker(i, m, m.jobQueue)
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			worker.Run(m.ctx)
		}()
	}

	go func() {
		defer close(m.dispatchDone)
		m.dispatcher()
	}()

	log.Info("Build manager started")
	return nil
}

// Stop gracefully stops the build manager
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	m.stopped = true
	m.mu.Unlock()

	log.Info("Build manager stopping")

	m.cancel()
	<-m.dispatchDone
	close(m.jobQueue)
	m.wg.Wait()

	log.Info("Build manager stopped")
	return nil
}

// failInterrupted marks versions left building by a previous process as failed
func (m *Manager) failInterrupted() {
	stale, err := m.versionRepo.ListByStatus(db.VersionStatusBuilding)
	if err != nil {
		log.Error("Failed to list interrupted builds", "error", err)
		return
	}

	for _, v := range stale {
		out := db.BuildOutcome{Logs: v.BuildLogs + "build interrupted by server restart\n"}
		if err := m.versionRepo.MarkFailed(v.ID, out); err != nil {
			log.Warn("Failed to mark interrupted build failed", "version_id", v.ID, "error", err)
			continue
		}
		log.Warn("Marked interrupted build as failed", "version_id", v.ID)
	}
}

// dispatcher polls for pending versions and dispatches them to workers
func (m *Manager) dispatcher() {
	m.dispatchPending()

	ticker := time.NewTicker(m.config.DispatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.dispatchPending()
		}
	}
}

func (m *Manager) dispatchPending() {
	versions, err := m.versionRepo.ListPending()
	if err != nil {
		log.Error("Failed to list pending versions", "error", err)
		return
	}

	for i := range versions {
		if !m.enqueue(&versions[i]) {
			return
		}
	}
}

// enqueue hands a version to the workers unless it is already queued or running.
// It reports false when the queue is full or the manager is stopped.
func (m *Manager) enqueue(v *db.ProjectVersion) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return false
	}
	if _, busy := m.inflight[v.ID]; busy {
		return true
	}

	select {
	case m.jobQueue <- v:
		m.inflight[v.ID] = struct{}{}
		log.Debug("Dispatched version build", "version_id", v.ID)
		return true
	default:
		log.Debug("Build queue full, will retry", "version_id", v.ID)
		return false
	}
}

// Submit stores the archive, creates a pending version and queues it. It returns
// as soon as the version record exists. Versions submitted before Start wait
// for it; after Stop submissions are refused with ErrManagerStopped.
func (m *Manager) Submit(ctx context.Context, sub Submission) (*db.ProjectVersion, error) {
	if err := ValidateFilename(sub.Filename); err != nil {
		return nil, err
	}

	m.mu.RLock()
	stopped := m.stopped
	m.mu.RUnlock()
	if stopped {
		return nil, errors.ErrManagerStopped
	}

	project, err := m.projectRepo.GetByID(sub.ProjectID)
	if err != nil {
		return nil, errors.ErrDatabase.WithCause(err)
	}
	if project == nil {
		return nil, errors.ErrProjectNotFound
	}

	key, err := m.intake.Store(ctx, project.ID, sub.Filename, sub.Archive, sub.Size)
	if err != nil {
		return nil, err
	}

	version := &db.ProjectVersion{
		ProjectID:     project.ID,
		FilePath:      key,
		VersionNotes:  sub.Notes,
		SubmittedBy:   sub.Submitter.ID,
		SubmitterName: sub.Submitter.DisplayName(),
		ArchiveName:   sub.Filename,
	}
	if err := m.versionRepo.Create(version); err != nil {
		if delErr := m.storage.Delete(ctx, key); delErr != nil {
			log.Warn("Failed to remove orphaned archive", "key", key, "error", delErr)
		}
		return nil, err
	}

	log.Info("Version submitted",
		"audit", true,
		"version_id", version.ID,
		"project_id", project.ID,
		"version_number", version.VersionNumber,
		"submitted_by", version.SubmittedBy,
	)

	m.publishStatus(version.ID, db.VersionStatusPending, "")
	m.enqueue(version)

	return version, nil
}

// Await blocks until the version reaches a finished build state or ctx is done
func (m *Manager) Await(ctx context.Context, versionID string) (*db.ProjectVersion, error) {
	ch := make(chan struct{})
	m.mu.Lock()
	m.waiters[versionID] = append(m.waiters[versionID], ch)
	m.mu.Unlock()
	defer func() { m.removeWaiter(versionID, ch) }()

	for {
		v, err := m.versionRepo.GetByID(versionID)
		if err != nil {
			return nil, errors.ErrDatabase.WithCause(err)
		}
		if v == nil {
			return nil, errors.ErrVersionNotFound
		}
		if v.Status.IsBuildFinished() {
			return v, nil
		}

		select {
		case <-ctx.Done():
			return v, ctx.Err()
		case <-ch:
			ch = make(chan struct{})
			m.mu.Lock()
			m.waiters[versionID] = append(m.waiters[versionID], ch)
			m.mu.Unlock()
		}
	}
}

func (m *Manager) removeWaiter(versionID string, ch chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.waiters[versionID]
	for i, c := range list {
		if c == ch {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(m.waiters, versionID)
	} else {
		m.waiters[versionID] = list
	}
}

// notify wakes everyone awaiting versionID
func (m *Manager) notify(versionID string) {
	m.mu.Lock()
	list := m.waiters[versionID]
	delete(m.waiters, versionID)
	m.mu.Unlock()

	for _, ch := range list {
		close(ch)
	}
}

func (m *Manager) publishStatus(versionID string, status db.VersionStatus, message string) {
	e := Event{Kind: EventStatus, VersionID: versionID, Time: time.Now(), Status: string(status), Message: message}
	if m.bus != nil {
		NewBusReporter(m.bus).Report(e)
	}
}

// GetVersion returns the current state of a version
func (m *Manager) GetVersion(versionID string) (*db.ProjectVersion, error) {
	return m.versionRepo.GetByID(versionID)
}

// GetConfig returns the build manager configuration
func (m *Manager) GetConfig() Config {
	return m.config
}

// Engine returns the build engine
func (m *Manager) Engine() *Engine {
	return m.engine
}

// VersionRepo returns the version repository
func (m *Manager) VersionRepo() *db.ProjectVersionRepository {
	return m.versionRepo
}

// ProjectRepo returns the project repository
func (m *Manager) ProjectRepo() *db.ProjectRepository {
	return m.projectRepo
}

// IsRunning reports whether workers are processing versions
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// registerCancel registers a cancel function for a build
func (m *Manager) registerCancel(versionID string, cancel context.CancelFunc) {
	m.mu.Lock()
	m.cancelFuncs[versionID] = cancel
	m.mu.Unlock()
}

// unregisterCancel removes a cancel function and the in-flight marker for a build
func (m *Manager) unregisterCancel(versionID string) {
	m.mu.Lock()
	delete(m.cancelFuncs, versionID)
	delete(m.inflight, versionID)
	m.mu.Unlock()
}

// release drops the in-flight marker of a version that was dequeued but never started
func (m *Manager) release(versionID string) {
	m.mu.Lock()
	delete(m.inflight, versionID)
	m.mu.Unlock()
}
