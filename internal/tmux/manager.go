// Package tmux wraps the tmux operations the session automation engine
// drives the assistant through: detached spawn, key injection, pane capture,
// and the final foreground attach that hands the session to a human.
package tmux

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
)

const defaultCaptureStartLine = "-2000"

var sessionNamePattern = regexp.MustCompile(`^ccr-[a-z0-9][a-z0-9-]*$`)

// CommandRunner executes tmux commands.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type defaultCommandRunner struct{}

func (defaultCommandRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		trimmed := strings.TrimSpace(string(out))
		if trimmed == "" {
			return nil, fmt.Errorf("run %s: %w", formatCommand(name, args), err)
		}
		return nil, fmt.Errorf("run %s: %w (%s)", formatCommand(name, args), err, trimmed)
	}
	return out, nil
}

// Options configures a tmux manager.
type Options struct {
	Runner CommandRunner
	Attach func(ctx context.Context, name string) error
}

// Manager executes tmux session lifecycle operations.
type Manager struct {
	runner CommandRunner
	attach func(ctx context.Context, name string) error
}

// New creates a tmux manager with default dependencies where omitted.
func New(opts Options) *Manager {
	runner := opts.Runner
	if runner == nil {
		runner = defaultCommandRunner{}
	}
	attach := opts.Attach
	if attach == nil {
		attach = foregroundAttach
	}
	return &Manager{runner: runner, attach: attach}
}

// CreateSession creates a detached named tmux session running cmd in workdir.
func (m *Manager) CreateSession(ctx context.Context, name string, cmd string, workdir string) error {
	if m == nil {
		return errors.New("tmux manager is nil")
	}
	if err := validateSessionName(name); err != nil {
		return err
	}

	cmd = strings.TrimSpace(cmd)
	if cmd == "" {
		return errors.New("command is required")
	}

	workdir = strings.TrimSpace(workdir)
	if workdir == "" {
		return errors.New("workdir is required")
	}

	if _, err := m.runner.Run(ctx, "tmux", "new-session", "-d", "-s", name, "-c", workdir, cmd); err != nil {
		return fmt.Errorf("create tmux session %s: %w", name, err)
	}
	return nil
}

// SendKeys sends keys followed by Enter to the target tmux session.
func (m *Manager) SendKeys(ctx context.Context, name string, keys string) error {
	if m == nil {
		return errors.New("tmux manager is nil")
	}
	if err := validateSessionName(name); err != nil {
		return err
	}
	if strings.TrimSpace(keys) == "" {
		return errors.New("keys are required")
	}

	if _, err := m.runner.Run(ctx, "tmux", "send-keys", "-t", name, keys, "Enter"); err != nil {
		return fmt.Errorf("send keys to tmux session %s: %w", name, err)
	}
	return nil
}

// SendEnter sends a bare Enter, used to confirm the assistant's
// most-recent-session selector without typing anything.
func (m *Manager) SendEnter(ctx context.Context, name string) error {
	if m == nil {
		return errors.New("tmux manager is nil")
	}
	if err := validateSessionName(name); err != nil {
		return err
	}

	if _, err := m.runner.Run(ctx, "tmux", "send-keys", "-t", name, "", "Enter"); err != nil {
		return fmt.Errorf("send enter to tmux session %s: %w", name, err)
	}
	return nil
}

// CapturePane captures the latest pane output for the target tmux session.
func (m *Manager) CapturePane(ctx context.Context, name string) (string, error) {
	if m == nil {
		return "", errors.New("tmux manager is nil")
	}
	if err := validateSessionName(name); err != nil {
		return "", err
	}

	out, err := m.runner.Run(ctx, "tmux", "capture-pane", "-pt", name, "-S", defaultCaptureStartLine)
	if err != nil {
		return "", fmt.Errorf("capture tmux pane for %s: %w", name, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// HasSession reports whether the named session is still alive.
func (m *Manager) HasSession(ctx context.Context, name string) bool {
	if m == nil {
		return false
	}
	if err := validateSessionName(name); err != nil {
		return false
	}

	_, err := m.runner.Run(ctx, "tmux", "has-session", "-t", name)
	return err == nil
}

// KillSession kills a tmux session and ignores already-missing session errors.
func (m *Manager) KillSession(ctx context.Context, name string) error {
	if m == nil {
		return errors.New("tmux manager is nil")
	}
	if err := validateSessionName(name); err != nil {
		return err
	}

	if _, err := m.runner.Run(ctx, "tmux", "kill-session", "-t", name); err != nil {
		if isMissingSessionError(err) || isNoTmuxServerError(err) {
			return nil
		}
		return fmt.Errorf("kill tmux session %s: %w", name, err)
	}
	return nil
}

// Attach replaces the calling terminal's foreground with the named session,
// blocking until the human detaches or the session ends.
func (m *Manager) Attach(ctx context.Context, name string) error {
	if m == nil {
		return errors.New("tmux manager is nil")
	}
	if err := validateSessionName(name); err != nil {
		return err
	}
	return m.attach(ctx, name)
}

func foregroundAttach(ctx context.Context, name string) error {
	cmd := exec.CommandContext(ctx, "tmux", "attach-session", "-t", name)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("attach to tmux session %s: %w", name, err)
	}
	return nil
}

func validateSessionName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("session name is required")
	}
	if !sessionNamePattern.MatchString(name) {
		return fmt.Errorf("session name %q must match ccr-<slug>", name)
	}
	return nil
}

func isNoTmuxServerError(err error) bool {
	if err == nil {
		return false
	}
	text := strings.ToLower(err.Error())
	return strings.Contains(text, "no server running") || strings.Contains(text, "failed to connect to server")
}

func isMissingSessionError(err error) bool {
	if err == nil {
		return false
	}
	text := strings.ToLower(err.Error())
	return strings.Contains(text, "can't find session") || strings.Contains(text, "no such session")
}

func formatCommand(name string, args []string) string {
	parts := append([]string{strings.TrimSpace(name)}, args...)
	sanitized := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		sanitized = append(sanitized, part)
	}
	return strings.Join(sanitized, " ")
}

var _ CommandRunner = defaultCommandRunner{}
