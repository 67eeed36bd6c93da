// Package runner orchestrates a batch of project directories: discovery,
// script materialization, and terminal launches, sequentially or through a
// bounded worker pool.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/coderunner/ccr/internal/events"
	"github.com/coderunner/ccr/internal/instructions"
	"github.com/coderunner/ccr/internal/launcher"
	"github.com/coderunner/ccr/internal/script"
)

// ErrInterrupted reports that the batch stopped early on context
// cancellation. Terminals launched before the interrupt are not retracted.
var ErrInterrupted = errors.New("batch interrupted")

// DiscoveryError reports an unreadable scan root. It is fatal: no items are
// processed.
type DiscoveryError struct {
	Root string
	Err  error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discover %s: %v", e.Root, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// WorkItem is one directory to process with its resolved instruction
// content. Items are immutable after discovery and consumed at most once.
type WorkItem struct {
	Dir     string
	Content instructions.Content
}

// Summary is a point-in-time copy of batch counters.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
}

// Done reports whether every item has been accounted for.
func (s Summary) Done() bool { return s.Succeeded+s.Failed == s.Total }

// SuccessRate returns the percentage of succeeded items, 0 for an empty batch.
func (s Summary) SuccessRate() int {
	if s.Total == 0 {
		return 0
	}
	return s.Succeeded * 100 / s.Total
}

// BatchResult accumulates per-item outcomes. Safe for concurrent use; it is
// the only state shared between workers.
type BatchResult struct {
	mu        sync.Mutex
	total     int
	succeeded int
	failed    int
}

func newBatchResult(total int) *BatchResult {
	return &BatchResult{total: total}
}

func (r *BatchResult) record(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.failed++
		return
	}
	r.succeeded++
}

// Snapshot returns a consistent copy of the counters.
func (r *BatchResult) Snapshot() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Summary{Total: r.total, Succeeded: r.succeeded, Failed: r.failed}
}

// PlanEntry describes what processing one item would do, without doing it.
type PlanEntry struct {
	Dir          string
	ScriptPath   string
	InitPath     string
	ContinuePath string
	Placeholder  bool
}

// Option customizes orchestrator construction.
type Option func(*Orchestrator)

// WithLogger sets the structured logger.
func WithLogger(logger *log.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithBus sets the progress event bus.
func WithBus(bus events.Bus) Option {
	return func(o *Orchestrator) {
		if bus != nil {
			o.bus = bus
		}
	}
}

// WithSleep overrides the pacing sleep. Tests inject a recording stub.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) {
		if sleep != nil {
			o.sleep = sleep
		}
	}
}

// WithMaterialize overrides script materialization. Tests inject a stub.
func WithMaterialize(materialize func(dir, ccrBin, initContent, continueContent string) (string, error)) Option {
	return func(o *Orchestrator) {
		if materialize != nil {
			o.materialize = materialize
		}
	}
}

// Orchestrator runs discovery and per-item launches for one batch.
type Orchestrator struct {
	resolver    *instructions.Resolver
	launcher    launcher.Launcher
	ccrBin      string
	logger      *log.Logger
	bus         events.Bus
	sleep       func(ctx context.Context, d time.Duration) error
	materialize func(dir, ccrBin, initContent, continueContent string) (string, error)
}

// New builds an orchestrator. ccrBin is the binary path embedded into
// generated scripts so the launched terminal can call back into the engine.
func New(resolver *instructions.Resolver, terminalLauncher launcher.Launcher, ccrBin string, options ...Option) (*Orchestrator, error) {
	if resolver == nil {
		return nil, errors.New("instruction resolver is required")
	}
	if terminalLauncher == nil {
		return nil, errors.New("terminal launcher is required")
	}
	if strings.TrimSpace(ccrBin) == "" {
		return nil, errors.New("ccr binary path is required")
	}

	orchestrator := &Orchestrator{
		resolver:    resolver,
		launcher:    terminalLauncher,
		ccrBin:      ccrBin,
		logger:      log.New(io.Discard),
		bus:         events.New(),
		sleep:       sleepWithContext,
		materialize: script.Materialize,
	}
	for _, option := range options {
		option(orchestrator)
	}
	return orchestrator, nil
}

// Discover lists the subdirectories of root in lexicographic order,
// resolving instruction content for each. Dot-prefixed names and names in
// exclude are skipped; .git is always skipped. An unreadable root is fatal.
func (o *Orchestrator) Discover(root string, exclude map[string]struct{}) ([]WorkItem, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, &DiscoveryError{Root: root, Err: err}
	}

	items := make([]WorkItem, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") || name == ".git" {
			continue
		}
		if _, skip := exclude[name]; skip {
			o.logger.Debug("excluding directory", "dir", name)
			continue
		}
		dir := filepath.Join(root, name)
		items = append(items, WorkItem{Dir: dir, Content: o.resolver.Resolve(dir)})
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Dir < items[j].Dir })
	o.logger.Info("discovered work items", "root", root, "count", len(items))
	return items, nil
}

// DryRun reports what processing would do for each item. It writes no
// scripts and spawns no processes.
func (o *Orchestrator) DryRun(items []WorkItem) []PlanEntry {
	plan := make([]PlanEntry, 0, len(items))
	for _, item := range items {
		plan = append(plan, PlanEntry{
			Dir:          item.Dir,
			ScriptPath:   script.Path(item.Dir),
			InitPath:     item.Content.InitPath,
			ContinuePath: item.Content.ContinuePath,
			Placeholder:  !item.Content.Found(),
		})
	}
	return plan
}

// RunSequential processes items in discovery order with a global pacing
// delay after every non-final item. A per-item failure is counted and the
// batch continues; context cancellation stops the run promptly.
func (o *Orchestrator) RunSequential(ctx context.Context, items []WorkItem, delay time.Duration) (Summary, error) {
	result := newBatchResult(len(items))

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return o.finish(result, ErrInterrupted)
		}

		result.record(o.processItem(ctx, item))

		if i < len(items)-1 {
			if err := o.sleep(ctx, delay); err != nil {
				return o.finish(result, ErrInterrupted)
			}
		}
	}
	return o.finish(result, nil)
}

// RunParallel processes items through a fixed pool of maxWorkers workers
// pulling from a shared FIFO queue. Each worker pauses for delay after the
// item it just finished, so pacing applies per worker, not globally.
func (o *Orchestrator) RunParallel(ctx context.Context, items []WorkItem, delay time.Duration, maxWorkers int) (Summary, error) {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if maxWorkers > len(items) {
		maxWorkers = len(items)
	}
	result := newBatchResult(len(items))

	queue := make(chan WorkItem, len(items))
	for _, item := range items {
		queue <- item
	}
	close(queue)

	var wg sync.WaitGroup
	for w := 0; w < maxWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range queue {
				if ctx.Err() != nil {
					return
				}
				result.record(o.processItem(ctx, item))
				if err := o.sleep(ctx, delay); err != nil {
					return
				}
			}
		}()
	}
	wg.Wait()

	if ctx.Err() != nil {
		return o.finish(result, ErrInterrupted)
	}
	return o.finish(result, nil)
}

// processItem materializes the automation script for one directory and
// launches a terminal running it. Only launch success is observable here;
// what happens inside the terminal is out of reach.
func (o *Orchestrator) processItem(ctx context.Context, item WorkItem) error {
	o.bus.Publish(events.Event{
		Type:     events.EventTypeLaunchStarted,
		Dir:      item.Dir,
		Severity: events.SeverityInfo,
	})
	o.logger.Info("processing directory", "dir", item.Dir, "launcher", o.launcher.Name())

	scriptPath, err := o.materialize(item.Dir, o.ccrBin, item.Content.Init, item.Content.Continue)
	if err != nil {
		err = fmt.Errorf("write automation script for %s: %w", item.Dir, err)
		o.publishResult(item.Dir, err)
		return err
	}

	if err := o.launcher.Launch(ctx, item.Dir, scriptPath); err != nil {
		err = fmt.Errorf("launch terminal for %s: %w", item.Dir, err)
		o.publishResult(item.Dir, err)
		return err
	}

	o.publishResult(item.Dir, nil)
	return nil
}

func (o *Orchestrator) publishResult(dir string, err error) {
	event := events.Event{
		Type:     events.EventTypeLaunchResult,
		Dir:      dir,
		Severity: events.SeverityInfo,
	}
	if err != nil {
		event.Severity = events.SeverityError
		event.Payload = err.Error()
		o.logger.Error("item failed", "dir", dir, "error", err)
	} else {
		o.logger.Info("item launched", "dir", dir)
	}
	o.bus.Publish(event)
}

func (o *Orchestrator) finish(result *BatchResult, err error) (Summary, error) {
	summary := result.Snapshot()
	o.bus.Publish(events.Event{
		Type:     events.EventTypeBatchSummary,
		Payload:  summary,
		Severity: events.SeverityInfo,
	})
	o.logger.Info("batch finished",
		"total", summary.Total,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
	)
	return summary, err
}

// sleepWithContext pauses for d or until the context is canceled, whichever
// comes first.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
