// Package logs provides the shared logging facility for shipyard binaries.
// Output goes to stdout or to systemd journald depending on configuration.
package logs

import (
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/charmbracelet/log"
)

// LogOutput defines the output destination for logs
type LogOutput string

const (
	// OutputStdout sends logs to standard output
	OutputStdout LogOutput = "stdout"
	// OutputJournald sends logs to systemd journald
	OutputJournald LogOutput = "journald"
	// OutputAuto selects journald when available, otherwise stdout
	OutputAuto LogOutput = "auto"
)

// Logger wraps the charm log.Logger and remembers where it writes
type Logger struct {
	*log.Logger
	output LogOutput
}

// Config holds the configuration for the logger
type Config struct {
	// Output specifies where logs should be sent (stdout, journald, auto)
	Output LogOutput
	// Level sets the minimum log level (debug, info, warn, error)
	Level string
	// Prefix sets a prefix for all log messages
	Prefix string
	// Writer overrides Output when set. Used by tests and the local build command.
	Writer io.Writer
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		Output: OutputAuto,
		Level:  "info",
	}
}

// ParseOutput converts a user supplied string into a LogOutput, defaulting to auto
func ParseOutput(s string) LogOutput {
	switch LogOutput(strings.ToLower(strings.TrimSpace(s))) {
	case OutputStdout:
		return OutputStdout
	case OutputJournald:
		return OutputJournald
	default:
		return OutputAuto
	}
}

func journaldAvailable() bool {
	if _, err := exec.LookPath("systemd-cat"); err != nil {
		return false
	}
	if _, err := os.Stat("/run/systemd/journal/socket"); err != nil {
		return false
	}
	return true
}

func parseLevel(level string) log.Level {
	switch strings.ToLower(level) {
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// New creates a new Logger with the given configuration
func New(cfg Config) *Logger {
	writer, output := resolveWriter(cfg)

	logger := log.NewWithOptions(writer, log.Options{
		Level:           parseLevel(cfg.Level),
		Prefix:          cfg.Prefix,
		ReportTimestamp: true,
	})

	return &Logger{
		Logger: logger,
		output: output,
	}
}

func resolveWriter(cfg Config) (io.Writer, LogOutput) {
	if cfg.Writer != nil {
		return cfg.Writer, OutputStdout
	}

	switch cfg.Output {
	case OutputJournald, OutputAuto:
		if journaldAvailable() {
			identifier := cfg.Prefix
			if identifier == "" {
				identifier = "shipyard"
			}
			return &journaldWriter{identifier: identifier}, OutputJournald
		}
	}
	return os.Stdout, OutputStdout
}

// NewDefault creates a new Logger with default configuration
func NewDefault() *Logger {
	return New(DefaultConfig())
}

// Output returns the current output destination
func (l *Logger) Output() LogOutput {
	return l.output
}

// journaldWriter forwards each write to journald through systemd-cat
type journaldWriter struct {
	identifier string
}

func (w *journaldWriter) Write(p []byte) (int, error) {
	cmd := exec.Command("systemd-cat", "-t", w.identifier)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return os.Stdout.Write(p)
	}
	if err := cmd.Start(); err != nil {
		return os.Stdout.Write(p)
	}

	n, _ := stdin.Write(p)
	stdin.Close()
	// The message reached systemd-cat; a non-zero exit is not worth surfacing.
	_ = cmd.Wait()

	return n, nil
}
