package build

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/bitswalk/shipyard/src/common/logs"
	"github.com/bitswalk/shipyard/src/shipyardd/events"
)

// EventKind identifies a build progress event
type EventKind string

const (
	EventStatus          EventKind = "status"
	EventWarning         EventKind = "warning"
	EventStepStarted     EventKind = "step_started"
	EventStepFinished    EventKind = "step_finished"
	EventCacheHit        EventKind = "cache_hit"
	EventServiceBuilding EventKind = "service_building"
	EventBuildComplete   EventKind = "build_complete"
)

// Event is one progress notification emitted while a version is processed
type Event struct {
	Kind      EventKind `json:"kind"`
	VersionID string    `json:"version_id,omitempty"`
	Time      time.Time `json:"time"`

	Step        int    `json:"step,omitempty"`
	Total       int    `json:"total,omitempty"`
	Instruction string `json:"instruction,omitempty"`
	Service     string `json:"service,omitempty"`

	// StepStart is set on step_started events
	StepStart time.Time     `json:"step_start,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
	// Elapsed is the time since the current step began, for cache hits
	Elapsed time.Duration `json:"elapsed,omitempty"`

	ImageID     string `json:"image_id,omitempty"`
	CacheHits   int    `json:"cache_hits,omitempty"`
	CacheMisses int    `json:"cache_misses,omitempty"`

	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
	Percent int    `json:"percent,omitempty"`
}

// ShortImageID truncates an image id to 12 characters, dropping any digest prefix
func ShortImageID(id string) string {
	if len(id) > 7 && id[:7] == "sha256:" {
		id = id[7:]
	}
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// FormatDuration renders sub-second durations in ms and longer ones in seconds
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func (e Event) stepPrefix() string {
	if e.Total > 0 {
		return fmt.Sprintf("[%d/%d]", e.Step, e.Total)
	}
	return fmt.Sprintf("[%d]", e.Step)
}

// String renders the event as a single transcript line
func (e Event) String() string {
	switch e.Kind {
	case EventStepStarted:
		return fmt.Sprintf("%s %s", e.stepPrefix(), e.Instruction)
	case EventStepFinished:
		return fmt.Sprintf("%s done in %s", e.stepPrefix(), FormatDuration(e.Duration))
	case EventCacheHit:
		return fmt.Sprintf("%s cache hit after %s", e.stepPrefix(), FormatDuration(e.Elapsed))
	case EventServiceBuilding:
		return fmt.Sprintf("building service %s", e.Service)
	case EventBuildComplete:
		if e.ImageID == "" {
			return fmt.Sprintf("build complete in %s (%d cache hits, %d misses)",
				FormatDuration(e.Duration), e.CacheHits, e.CacheMisses)
		}
		return fmt.Sprintf("build complete: image %s in %s (%d cache hits, %d misses)",
			ShortImageID(e.ImageID), FormatDuration(e.Duration), e.CacheHits, e.CacheMisses)
	case EventWarning:
		return "WARNING: " + e.Message
	default:
		return e.Message
	}
}

// Reporter receives progress events. Implementations must be safe for concurrent use.
type Reporter interface {
	Report(Event)
}

// ReporterFunc adapts a function to Reporter
type ReporterFunc func(Event)

func (f ReporterFunc) Report(e Event) { f(e) }

// MultiReporter fans an event out to several reporters
type MultiReporter []Reporter

func (m MultiReporter) Report(e Event) {
	for _, r := range m {
		if r != nil {
			r.Report(e)
		}
	}
}

// LogReporter writes events to an operator logger
type LogReporter struct {
	logger *logs.Logger
}

// NewLogReporter creates a reporter on logger, or on the package logger when nil
func NewLogReporter(logger *logs.Logger) *LogReporter {
	return &LogReporter{logger: logger}
}

func (r *LogReporter) Report(e Event) {
	l := r.logger
	if l == nil {
		l = log
	}

	switch e.Kind {
	case EventWarning:
		l.Warn(e.String(), "version_id", e.VersionID)
	case EventStepStarted, EventStepFinished, EventCacheHit:
		l.Debug(e.String(), "version_id", e.VersionID)
	default:
		l.Info(e.String(), "version_id", e.VersionID)
	}
}

// TranscriptReporter pins rendered events into a build transcript and, when set,
// appends them to the full log
type TranscriptReporter struct {
	buf  *RingBuffer
	full io.Writer
}

// NewTranscriptReporter creates a reporter writing to buf and full
func NewTranscriptReporter(buf *RingBuffer, full io.Writer) *TranscriptReporter {
	return &TranscriptReporter{buf: buf, full: full}
}

func (r *TranscriptReporter) Report(e Event) {
	line := e.String()
	r.buf.Pin(line)
	if r.full != nil {
		_, _ = io.WriteString(r.full, line+"\n")
	}
}

// BusReporter publishes events as JSON on the version's topic
type BusReporter struct {
	bus events.Publisher
	mu  sync.Mutex
}

// NewBusReporter creates a reporter publishing to bus
func NewBusReporter(bus events.Publisher) *BusReporter {
	return &BusReporter{bus: bus}
}

func (r *BusReporter) Report(e Event) {
	if r.bus == nil || e.VersionID == "" {
		return
	}

	data, err := json.Marshal(e)
	if err != nil {
		log.Warn("Failed to encode progress event", "version_id", e.VersionID, "error", err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.bus.Publish(ctx, events.VersionTopic(e.VersionID), data); err != nil {
		log.Debug("Failed to publish progress event", "version_id", e.VersionID, "error", err)
	}
}

// versionReporter stamps every event with a version id and time
type versionReporter struct {
	versionID string
	next      Reporter
	now       func() time.Time
}

func (r versionReporter) Report(e Event) {
	e.VersionID = r.versionID
	if e.Time.IsZero() {
		e.Time = r.now()
	}
	r.next.Report(e)
}
