package main

import (
	"context"
	"fmt"
	"testing"

	"github.com/coderunner/ccr/internal/runner"
)

func TestExitCodeMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, exitOK},
		{"interrupt sentinel", runner.ErrInterrupted, exitInterrupt},
		{"wrapped interrupt", fmt.Errorf("batch: %w", runner.ErrInterrupted), exitInterrupt},
		{"canceled context", context.Canceled, exitInterrupt},
		{"plain failure", fmt.Errorf("no terminal"), exitError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := exitCode(tc.err); got != tc.want {
				t.Fatalf("exitCode(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}

func TestExcludeSetMergesConfigAndFlag(t *testing.T) {
	set := excludeSet([]string{"vendor", " node_modules "}, "dist, ,build")

	for _, name := range []string{"vendor", "node_modules", "dist", "build"} {
		if _, ok := set[name]; !ok {
			t.Fatalf("missing %q in %v", name, set)
		}
	}
	if len(set) != 4 {
		t.Fatalf("set = %v, want exactly 4 entries", set)
	}
}

func TestRootCommandRequiresRootArgument(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetArgs([]string{})
	if err := cmd.ExecuteContext(context.Background()); err == nil {
		t.Fatal("expected root-directory-required error")
	}
}

func TestRootCommandRejectsExtraArguments(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetArgs([]string{"a", "b"})
	if err := cmd.ExecuteContext(context.Background()); err == nil {
		t.Fatal("expected too-many-arguments error")
	}
}
