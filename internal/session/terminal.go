package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/coderunner/ccr/internal/tmux"
	"github.com/google/uuid"
)

const resumeArgs = "--resume --dangerously-skip-permissions"

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// TmuxTerminal drives the assistant inside a detached tmux session and hands
// it off with a foreground attach.
type TmuxTerminal struct {
	manager      *tmux.Manager
	assistantBin string
	workdir      string
	name         string
}

// NewTmuxTerminal builds the production Terminal for one working directory.
func NewTmuxTerminal(manager *tmux.Manager, assistantBin string, workdir string) (*TmuxTerminal, error) {
	if manager == nil {
		return nil, errors.New("tmux manager is required")
	}
	assistantBin = strings.TrimSpace(assistantBin)
	if assistantBin == "" {
		return nil, errors.New("assistant binary is required")
	}
	workdir = strings.TrimSpace(workdir)
	if workdir == "" {
		return nil, errors.New("workdir is required")
	}

	return &TmuxTerminal{
		manager:      manager,
		assistantBin: assistantBin,
		workdir:      workdir,
		name:         sessionName(workdir),
	}, nil
}

// SessionName returns the tmux session name this terminal drives.
func (t *TmuxTerminal) SessionName() string {
	if t == nil {
		return ""
	}
	return t.name
}

// Spawn starts the assistant in a detached tmux session.
func (t *TmuxTerminal) Spawn(ctx context.Context, mode Mode) error {
	if t == nil {
		return errors.New("terminal is nil")
	}

	command := t.assistantBin + " --dangerously-skip-permissions"
	if mode == ModeResume {
		command = t.assistantBin + " " + resumeArgs
	}
	return t.manager.CreateSession(ctx, t.name, command, t.workdir)
}

// SendLine injects text followed by Enter.
func (t *TmuxTerminal) SendLine(ctx context.Context, text string) error {
	if t == nil {
		return errors.New("terminal is nil")
	}
	if strings.TrimSpace(text) == "" {
		return t.manager.SendEnter(ctx, t.name)
	}
	return t.manager.SendKeys(ctx, t.name, text)
}

// SendEnter injects a bare Enter keypress.
func (t *TmuxTerminal) SendEnter(ctx context.Context) error {
	if t == nil {
		return errors.New("terminal is nil")
	}
	return t.manager.SendEnter(ctx, t.name)
}

// Snapshot captures current pane output and reports session liveness.
func (t *TmuxTerminal) Snapshot(ctx context.Context) (string, bool, error) {
	if t == nil {
		return "", false, errors.New("terminal is nil")
	}

	if !t.manager.HasSession(ctx, t.name) {
		return "", false, nil
	}
	out, err := t.manager.CapturePane(ctx, t.name)
	if err != nil {
		// The session can die between the liveness check and the capture;
		// treat that as end-of-stream, not failure.
		if !t.manager.HasSession(ctx, t.name) {
			return "", false, nil
		}
		return "", true, err
	}
	return out, true, nil
}

// Kill terminates the tmux session.
func (t *TmuxTerminal) Kill(ctx context.Context) error {
	if t == nil {
		return errors.New("terminal is nil")
	}
	return t.manager.KillSession(ctx, t.name)
}

// Attach replaces the foreground with the session until the human detaches.
func (t *TmuxTerminal) Attach(ctx context.Context) error {
	if t == nil {
		return errors.New("terminal is nil")
	}
	return t.manager.Attach(ctx, t.name)
}

func sessionName(workdir string) string {
	slug := nonSlugChars.ReplaceAllString(strings.ToLower(filepath.Base(workdir)), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "session"
	}
	return fmt.Sprintf("ccr-%s-%s", slug, uuid.NewString()[:8])
}

var _ Terminal = (*TmuxTerminal)(nil)
