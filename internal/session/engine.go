// Package session drives one externally spawned interactive assistant
// through a probe / resume-or-init / deliver / interactive-handoff state
// machine built on bounded output-pattern waits.
package session

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const (
	// DefaultProbeTimeout bounds the wait for the resume probe's first output.
	DefaultProbeTimeout = 5 * time.Second
	// DefaultReadyTimeout bounds waits for the assistant's ready prompt.
	DefaultReadyTimeout = 10 * time.Second
	// DefaultDeliverTimeout bounds the tolerant waits around content delivery.
	DefaultDeliverTimeout = 10 * time.Second
	// DefaultPollInterval is the snapshot polling cadence inside a wait.
	DefaultPollInterval = 250 * time.Millisecond

	// initCommand bootstraps a fresh assistant session before init content.
	initCommand = "/init"

	// promptTailLines is how many trailing snapshot lines a ready-prompt
	// match inspects, so stale prompt text higher in the scrollback does
	// not satisfy a wait prematurely.
	promptTailLines = 5
)

var (
	selectorPattern   = regexp.MustCompile(`Select a session`)
	noSessionsPattern = regexp.MustCompile(`No sessions found`)
	readyPattern      = regexp.MustCompile(`(?m)[>$]\s*$`)
)

// Mode selects how the assistant process is spawned.
type Mode string

const (
	// ModeResume spawns the assistant with its resume flag.
	ModeResume Mode = "resume"
	// ModeDefault spawns a fresh assistant session.
	ModeDefault Mode = "default"
)

// Terminal abstracts the interactive session the engine drives. The tmux
// manager backs it in production; tests inject scripted fakes.
type Terminal interface {
	Spawn(ctx context.Context, mode Mode) error
	SendLine(ctx context.Context, text string) error
	SendEnter(ctx context.Context) error
	// Snapshot returns the current output and whether the session is alive.
	Snapshot(ctx context.Context) (string, bool, error)
	Kill(ctx context.Context) error
	Attach(ctx context.Context) error
}

// ExpectRule is one bounded pattern wait: the first matching candidate
// pattern wins and drives the resulting transition.
type ExpectRule struct {
	Patterns []*regexp.Regexp
	Timeout  time.Duration
	// Tail restricts matching to the trailing lines of the snapshot.
	Tail int
}

// waitOutcome is what a pattern wait resolved to.
type waitOutcome int

const (
	outcomeTimeout waitOutcome = iota - 1
	outcomeMatch               // index of matched pattern is carried separately
	outcomeEndOfStream
)

// Timeouts bounds every pattern wait in the state machine.
type Timeouts struct {
	Probe   time.Duration
	Ready   time.Duration
	Deliver time.Duration
	Poll    time.Duration
}

func (t Timeouts) withDefaults() Timeouts {
	if t.Probe <= 0 {
		t.Probe = DefaultProbeTimeout
	}
	if t.Ready <= 0 {
		t.Ready = DefaultReadyTimeout
	}
	if t.Deliver <= 0 {
		t.Deliver = DefaultDeliverTimeout
	}
	if t.Poll <= 0 {
		t.Poll = DefaultPollInterval
	}
	return t
}

// Engine runs the resume-or-bootstrap state machine for one directory.
//
// Run reports only local failure to its caller; whether the session was
// resumed or freshly initialized is visible to the human in the terminal
// but deliberately not propagated upward.
type Engine struct {
	term            Terminal
	initContent     string
	continueContent string
	timeouts        Timeouts
	logger          *log.Logger
	state           State
}

// Option configures Engine construction.
type Option func(*Engine)

// WithTimeouts overrides the default wait bounds.
func WithTimeouts(timeouts Timeouts) Option {
	return func(engine *Engine) {
		engine.timeouts = timeouts.withDefaults()
	}
}

// WithLogger attaches a structured logger for state-transition records.
func WithLogger(logger *log.Logger) Option {
	return func(engine *Engine) {
		if logger != nil {
			engine.logger = logger
		}
	}
}

// New builds an engine for one directory's init/continue content.
func New(term Terminal, initContent string, continueContent string, options ...Option) (*Engine, error) {
	if term == nil {
		return nil, errors.New("terminal is required")
	}

	engine := &Engine{
		term:            term,
		initContent:     initContent,
		continueContent: continueContent,
		timeouts:        Timeouts{}.withDefaults(),
		logger:          log.Default(),
		state:           StateProbing,
	}
	for _, option := range options {
		if option == nil {
			continue
		}
		option(engine)
	}
	return engine, nil
}

// State returns the engine's current lifecycle state.
func (e *Engine) State() State {
	if e == nil {
		return StateFailed
	}
	return e.state
}

// Run executes the state machine and hands the session to the human.
func (e *Engine) Run(ctx context.Context) error {
	if e == nil {
		return errors.New("engine is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	resumable, err := e.probe(ctx)
	if err != nil {
		return e.fail(err)
	}

	if resumable {
		if err := e.resume(ctx); err != nil {
			return e.fail(err)
		}
	} else {
		if err := e.initialize(ctx); err != nil {
			return e.fail(err)
		}
	}

	if err := e.handoff(ctx); err != nil {
		return e.fail(err)
	}
	return nil
}

// probe spawns the resume-mode assistant and classifies its first output.
// A timeout fails open to the bootstrap branch rather than blocking.
func (e *Engine) probe(ctx context.Context) (bool, error) {
	e.logger.With("state", e.state).Debug("probing for resumable session")

	if err := e.term.Spawn(ctx, ModeResume); err != nil {
		return false, fmt.Errorf("spawn resume probe: %w", err)
	}

	rule := ExpectRule{
		Patterns: []*regexp.Regexp{selectorPattern, noSessionsPattern},
		Timeout:  e.timeouts.Probe,
	}
	outcome, matched, err := e.waitFor(ctx, rule)
	if err != nil {
		return false, err
	}

	switch {
	case outcome == outcomeMatch && matched == 0:
		e.logger.Info("session selector detected, resuming most recent session")
		return true, e.transition(StateResuming)
	case outcome == outcomeMatch && matched == 1:
		e.logger.Info("no prior sessions, bootstrapping")
	case outcome == outcomeEndOfStream:
		e.logger.Info("resume probe exited, bootstrapping")
	default:
		e.logger.Warn("resume probe timed out, assuming no sessions", "timeout", e.timeouts.Probe)
	}
	return false, e.transition(StateInitializing)
}

// resume confirms the most recent session and delivers continue content.
func (e *Engine) resume(ctx context.Context) error {
	if err := e.term.SendEnter(ctx); err != nil {
		return fmt.Errorf("select most recent session: %w", err)
	}

	if err := e.requireReady(ctx, "resumed session prompt"); err != nil {
		return err
	}
	if err := e.transition(StateDelivering); err != nil {
		return err
	}

	content := e.continueContent
	if strings.TrimSpace(content) == "" {
		content = e.initContent
	}
	if err := e.term.SendLine(ctx, content); err != nil {
		return fmt.Errorf("deliver instructions to resumed session: %w", err)
	}
	return nil
}

// initialize terminates the probe, bootstraps a fresh session, and delivers
// init content (plus distinct continue content when present).
func (e *Engine) initialize(ctx context.Context) error {
	if err := e.term.Kill(ctx); err != nil {
		return fmt.Errorf("terminate resume probe: %w", err)
	}
	if err := e.term.Spawn(ctx, ModeDefault); err != nil {
		return fmt.Errorf("spawn fresh session: %w", err)
	}

	if err := e.requireReady(ctx, "fresh session prompt"); err != nil {
		return err
	}
	if err := e.term.SendLine(ctx, initCommand); err != nil {
		return fmt.Errorf("send init command: %w", err)
	}
	if err := e.requireReady(ctx, "post-init prompt"); err != nil {
		return err
	}

	if err := e.transition(StateDelivering); err != nil {
		return err
	}
	if err := e.term.SendLine(ctx, e.initContent); err != nil {
		return fmt.Errorf("deliver init instructions: %w", err)
	}

	// The generated script's heredoc always leaves a trailing newline in the
	// continue file, so emptiness and the duplicate guard compare trimmed text.
	followUp := strings.TrimSpace(e.continueContent)
	if followUp != "" && followUp != strings.TrimSpace(e.initContent) {
		e.tolerantReadyWait(ctx, "pre-continue prompt")
		if err := e.term.SendLine(ctx, e.continueContent); err != nil {
			return fmt.Errorf("deliver continue instructions: %w", err)
		}
	}
	return nil
}

// handoff waits (tolerantly) for the assistant to settle, then attaches the
// human to the session.
func (e *Engine) handoff(ctx context.Context) error {
	e.tolerantReadyWait(ctx, "handoff prompt")

	if err := e.transition(StateInteractive); err != nil {
		return err
	}
	e.logger.Info("instructions delivered, handing session to operator")

	if err := e.term.Attach(ctx); err != nil {
		return fmt.Errorf("attach interactive session: %w", err)
	}
	return nil
}

// requireReady is a non-tolerant ready-prompt wait: expiry is a local failure.
func (e *Engine) requireReady(ctx context.Context, what string) error {
	rule := ExpectRule{
		Patterns: []*regexp.Regexp{readyPattern},
		Timeout:  e.timeouts.Ready,
		Tail:     promptTailLines,
	}
	outcome, _, err := e.waitFor(ctx, rule)
	if err != nil {
		return err
	}
	switch outcome {
	case outcomeMatch:
		return nil
	case outcomeEndOfStream:
		return fmt.Errorf("session ended while waiting for %s", what)
	default:
		return fmt.Errorf("timed out after %s waiting for %s", e.timeouts.Ready, what)
	}
}

// tolerantReadyWait logs but never fails on expiry; delivery-phase waits must
// not block the handoff.
func (e *Engine) tolerantReadyWait(ctx context.Context, what string) {
	rule := ExpectRule{
		Patterns: []*regexp.Regexp{readyPattern},
		Timeout:  e.timeouts.Deliver,
		Tail:     promptTailLines,
	}
	outcome, _, err := e.waitFor(ctx, rule)
	if err != nil || outcome != outcomeMatch {
		e.logger.Warn("proceeding without prompt confirmation", "wait", what, "timeout", e.timeouts.Deliver)
	}
}

// waitFor polls the terminal snapshot until a candidate pattern matches, the
// stream ends, or the rule's timeout expires. First match wins.
func (e *Engine) waitFor(ctx context.Context, rule ExpectRule) (waitOutcome, int, error) {
	deadline := time.Now().Add(rule.Timeout)
	for {
		if err := ctx.Err(); err != nil {
			return outcomeTimeout, -1, err
		}

		snapshot, alive, err := e.term.Snapshot(ctx)
		if err != nil {
			return outcomeTimeout, -1, fmt.Errorf("capture session output: %w", err)
		}

		haystack := snapshot
		if rule.Tail > 0 {
			haystack = tailLines(snapshot, rule.Tail)
		}
		for i, pattern := range rule.Patterns {
			if pattern.MatchString(haystack) {
				return outcomeMatch, i, nil
			}
		}
		if !alive {
			return outcomeEndOfStream, -1, nil
		}
		if !time.Now().Before(deadline) {
			return outcomeTimeout, -1, nil
		}

		select {
		case <-ctx.Done():
			return outcomeTimeout, -1, ctx.Err()
		case <-time.After(e.timeouts.Poll):
		}
	}
}

func (e *Engine) transition(to State) error {
	if !canTransition(e.state, to) {
		return fmt.Errorf("illegal session transition from %q to %q", e.state, to)
	}
	e.logger.Debug("session state transition", "from", e.state, "to", to)
	e.state = to
	return nil
}

func (e *Engine) fail(err error) error {
	if canTransition(e.state, StateFailed) {
		e.state = StateFailed
	}
	e.logger.Error("session automation failed", "err", err)
	return err
}

func tailLines(text string, n int) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	kept := make([]string, 0, n)
	for i := len(lines) - 1; i >= 0 && len(kept) < n; i-- {
		if strings.TrimSpace(lines[i]) == "" {
			continue
		}
		kept = append([]string{lines[i]}, kept...)
	}
	return strings.Join(kept, "\n")
}
