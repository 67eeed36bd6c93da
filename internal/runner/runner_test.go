package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coderunner/ccr/internal/instructions"
)

type fakeLauncher struct {
	mu       sync.Mutex
	launched []string
	failDirs map[string]bool
	inFlight int
	maxSeen  int
	hold     time.Duration
}

func (f *fakeLauncher) Name() string { return "fake" }

func (f *fakeLauncher) Launch(_ context.Context, dir string, _ string) error {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxSeen {
		f.maxSeen = f.inFlight
	}
	f.launched = append(f.launched, filepath.Base(dir))
	fail := f.failDirs[filepath.Base(dir)]
	f.mu.Unlock()

	if f.hold > 0 {
		time.Sleep(f.hold)
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if fail {
		return errors.New("terminal refused to open")
	}
	return nil
}

func stubMaterialize(dir, _, _, _ string) (string, error) {
	return filepath.Join(dir, "claude_auto_"+filepath.Base(dir)+".sh"), nil
}

func newTestOrchestrator(t *testing.T, l *fakeLauncher, options ...Option) *Orchestrator {
	t.Helper()
	options = append([]Option{WithMaterialize(stubMaterialize)}, options...)
	orchestrator, err := New(instructions.NewResolver(t.TempDir(), ""), l, "/usr/local/bin/ccr", options...)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	return orchestrator
}

func makeItems(names ...string) []WorkItem {
	items := make([]WorkItem, 0, len(names))
	for _, name := range names {
		items = append(items, WorkItem{Dir: filepath.Join("/work", name)})
	}
	return items
}

func TestDiscoverFiltersAndSorts(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	for _, name := range []string{"B", "A", ".git", ".cache", "C"} {
		if err := os.Mkdir(filepath.Join(root, name), 0o750); err != nil {
			t.Fatalf("mkdir %s: %v", name, err)
		}
	}
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	orchestrator := newTestOrchestrator(t, &fakeLauncher{})
	items, err := orchestrator.Discover(root, map[string]struct{}{"C": {}})
	if err != nil {
		t.Fatalf("discover: %v", err)
	}

	var names []string
	for _, item := range items {
		names = append(names, filepath.Base(item.Dir))
	}
	if got := strings.Join(names, ","); got != "A,B" {
		t.Fatalf("items = %s, want A,B", got)
	}
}

func TestDiscoverUnreadableRootIsFatal(t *testing.T) {
	t.Parallel()

	orchestrator := newTestOrchestrator(t, &fakeLauncher{})
	_, err := orchestrator.Discover(filepath.Join(t.TempDir(), "missing"), nil)
	if err == nil {
		t.Fatal("expected discovery error")
	}
	var discoveryErr *DiscoveryError
	if !errors.As(err, &discoveryErr) {
		t.Fatalf("error = %T, want *DiscoveryError", err)
	}
}

func TestRunSequentialPreservesOrderAndCounts(t *testing.T) {
	t.Parallel()

	terminalLauncher := &fakeLauncher{failDirs: map[string]bool{"B": true}}
	orchestrator := newTestOrchestrator(t, terminalLauncher,
		WithSleep(func(context.Context, time.Duration) error { return nil }))

	summary, err := orchestrator.RunSequential(context.Background(), makeItems("A", "B", "C"), time.Second)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := strings.Join(terminalLauncher.launched, ","); got != "A,B,C" {
		t.Fatalf("launch order = %s, want A,B,C", got)
	}
	if summary.Succeeded != 2 || summary.Failed != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if !summary.Done() {
		t.Fatalf("succeeded+failed = %d, want total %d", summary.Succeeded+summary.Failed, summary.Total)
	}
}

func TestRunSequentialDelaysBetweenItemsOnly(t *testing.T) {
	t.Parallel()

	var sleeps []time.Duration
	orchestrator := newTestOrchestrator(t, &fakeLauncher{},
		WithSleep(func(_ context.Context, d time.Duration) error {
			sleeps = append(sleeps, d)
			return nil
		}))

	if _, err := orchestrator.RunSequential(context.Background(), makeItems("A", "B", "C"), 2*time.Second); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(sleeps) != 2 {
		t.Fatalf("sleeps = %d, want 2 (no delay after the final item)", len(sleeps))
	}
	for _, d := range sleeps {
		if d != 2*time.Second {
			t.Fatalf("sleep = %v, want 2s", d)
		}
	}
}

func TestRunSequentialStopsOnInterrupt(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	terminalLauncher := &fakeLauncher{}
	orchestrator := newTestOrchestrator(t, terminalLauncher,
		WithSleep(func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		}))

	summary, err := orchestrator.RunSequential(ctx, makeItems("A", "B", "C"), time.Second)
	if !errors.Is(err, ErrInterrupted) {
		t.Fatalf("err = %v, want ErrInterrupted", err)
	}
	if len(terminalLauncher.launched) != 1 {
		t.Fatalf("launched = %v, want only the first item", terminalLauncher.launched)
	}
	if summary.Succeeded != 1 {
		t.Fatalf("summary = %+v", summary)
	}
}

func TestRunParallelBoundsConcurrency(t *testing.T) {
	t.Parallel()

	terminalLauncher := &fakeLauncher{hold: 20 * time.Millisecond}
	orchestrator := newTestOrchestrator(t, terminalLauncher,
		WithSleep(func(context.Context, time.Duration) error { return nil }))

	items := makeItems("A", "B", "C", "D", "E", "F", "G", "H")
	summary, err := orchestrator.RunParallel(context.Background(), items, 0, 3)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Succeeded != len(items) {
		t.Fatalf("summary = %+v", summary)
	}
	if terminalLauncher.maxSeen > 3 {
		t.Fatalf("observed %d concurrent launches, bound is 3", terminalLauncher.maxSeen)
	}
	if terminalLauncher.maxSeen < 2 {
		t.Fatalf("observed %d concurrent launches, pool never overlapped", terminalLauncher.maxSeen)
	}
}

func TestRunParallelIsolatesItemFailures(t *testing.T) {
	t.Parallel()

	terminalLauncher := &fakeLauncher{failDirs: map[string]bool{"B": true, "D": true}}
	orchestrator := newTestOrchestrator(t, terminalLauncher,
		WithSleep(func(context.Context, time.Duration) error { return nil }))

	summary, err := orchestrator.RunParallel(context.Background(), makeItems("A", "B", "C", "D"), 0, 2)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Succeeded != 2 || summary.Failed != 2 || !summary.Done() {
		t.Fatalf("summary = %+v", summary)
	}
}

func TestRunParallelStopsOnInterrupt(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	terminalLauncher := &fakeLauncher{}
	orchestrator := newTestOrchestrator(t, terminalLauncher,
		WithSleep(func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		}))

	summary, err := orchestrator.RunParallel(ctx, makeItems("A", "B", "C", "D", "E", "F"), time.Second, 1)
	if !errors.Is(err, ErrInterrupted) {
		t.Fatalf("err = %v, want ErrInterrupted", err)
	}
	if summary.Succeeded+summary.Failed >= summary.Total {
		t.Fatalf("summary = %+v, want unfinished batch", summary)
	}
}

func TestDryRunWritesNothing(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dir := filepath.Join(root, "projx")
	if err := os.Mkdir(dir, 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	resolver := instructions.NewResolver(root, "")
	orchestrator, err := New(resolver, &fakeLauncher{}, "ccr")
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}

	items, err := orchestrator.Discover(root, nil)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	plan := orchestrator.DryRun(items)
	if len(plan) != 1 {
		t.Fatalf("plan = %d entries, want 1", len(plan))
	}
	entry := plan[0]
	if entry.ScriptPath != filepath.Join(dir, "claude_auto_projx.sh") {
		t.Fatalf("script path = %q", entry.ScriptPath)
	}
	if !entry.Placeholder {
		t.Fatal("expected placeholder plan for directory without instructions")
	}
	if _, err := os.Stat(entry.ScriptPath); !os.IsNotExist(err) {
		t.Fatalf("dry run must not write the script, stat err = %v", err)
	}
}

func TestSuccessRate(t *testing.T) {
	t.Parallel()

	if rate := (Summary{Total: 5, Succeeded: 4, Failed: 1}).SuccessRate(); rate != 80 {
		t.Fatalf("rate = %d, want 80", rate)
	}
	if rate := (Summary{}).SuccessRate(); rate != 0 {
		t.Fatalf("rate = %d, want 0 for empty batch", rate)
	}
}
