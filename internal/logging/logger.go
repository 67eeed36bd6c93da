// Package logging writes structured run logs under ~/.ccr/logs, keeping the
// console free for batch progress output.
package logging

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// Option configures RunLogger creation.
type Option func(*newOptions)

type newOptions struct {
	runID   string
	verbose bool
}

// WithRunID overrides the generated run_id field used in emitted log records.
func WithRunID(runID string) Option {
	return func(opts *newOptions) {
		opts.runID = strings.TrimSpace(runID)
	}
}

// WithVerbose lowers the log level to debug.
func WithVerbose(verbose bool) Option {
	return func(opts *newOptions) {
		opts.verbose = verbose
	}
}

// RunLogger writes structured JSON logs to disk for one ccr invocation.
type RunLogger struct {
	Logger *log.Logger
	file   *os.File
	path   string
	runID  string
}

// New initializes logging under ~/.ccr/logs without writing to stdout.
func New(ctx context.Context, options ...Option) (*RunLogger, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	logDir := filepath.Join(homeDir, ".ccr", "logs")
	if err := os.MkdirAll(logDir, 0o750); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	resolved := resolveOptions(options)
	if resolved.runID == "" {
		resolved.runID = uuid.NewString()
	}

	timestamp := time.Now().UTC().Format("20060102-150405")
	filePath := filepath.Join(logDir, fmt.Sprintf("ccr-%s-%s.log", timestamp, resolved.runID))
	// #nosec G304 -- filePath is constructed from trusted local paths.
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	level := log.InfoLevel
	if resolved.verbose {
		level = log.DebugLevel
	}

	logger := log.NewWithOptions(file, log.Options{
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
	})
	logger.SetFormatter(log.JSONFormatter)

	runLogger := &RunLogger{
		Logger: logger.With("run_id", resolved.runID),
		file:   file,
		path:   filePath,
		runID:  resolved.runID,
	}
	runLogger.Logger.With("log_file", filePath).Info("logger initialized")

	_ = ctx
	return runLogger, nil
}

// Close flushes and closes the log file.
func (r *RunLogger) Close() error {
	if r == nil || r.file == nil {
		return nil
	}
	return r.file.Close()
}

// Path returns the current log file path.
func (r *RunLogger) Path() string {
	if r == nil {
		return ""
	}
	return r.path
}

// RunID returns the run identifier attached to every record.
func (r *RunLogger) RunID() string {
	if r == nil {
		return ""
	}
	return r.runID
}

func resolveOptions(options []Option) newOptions {
	resolved := newOptions{}
	for _, option := range options {
		if option == nil {
			continue
		}
		option(&resolved)
	}
	return resolved
}
