package ui

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/coderunner/ccr/internal/instructions"
	"github.com/coderunner/ccr/internal/runner"
)

func TestSummaryColorsBySuccessRate(t *testing.T) {
	cases := []struct {
		name    string
		summary runner.Summary
		style   string
	}{
		{"high rate is green", runner.Summary{Total: 5, Succeeded: 4, Failed: 1}, SuccessStyle.Render("success:   80%")},
		{"mid rate is amber", runner.Summary{Total: 4, Succeeded: 2, Failed: 2}, WarningStyle.Render("success:   50%")},
		{"low rate is red", runner.Summary{Total: 5, Succeeded: 2, Failed: 3}, ErrorStyle.Render("success:   40%")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf strings.Builder
			console := NewConsoleWriter(&buf, true)
			console.Summary(tc.summary)
			assert.Contains(t, buf.String(), tc.style)
		})
	}
}

func TestSummaryWithoutColorIsPlainText(t *testing.T) {
	var buf strings.Builder
	console := NewConsoleWriter(&buf, false)
	console.Summary(runner.Summary{Total: 2, Succeeded: 2})

	out := buf.String()
	assert.Contains(t, out, "success:   100%")
	assert.NotContains(t, out, "\x1b[", "uncolored output must carry no escape sequences")
}

func TestPlanReportMarksPlaceholders(t *testing.T) {
	var buf strings.Builder
	console := NewConsoleWriter(&buf, false)
	console.PlanReport([]runner.PlanEntry{
		{Dir: "/work/a", ScriptPath: "/work/a/claude_auto_a.sh", InitPath: "/work/coderun_init.md"},
		{Dir: "/work/b", ScriptPath: "/work/b/claude_auto_b.sh", Placeholder: true},
	})

	out := buf.String()
	assert.Contains(t, out, "init:     /work/coderun_init.md")
	assert.Contains(t, out, "placeholder (no instruction files found)")
	assert.Contains(t, out, "2 directories would be processed")
}

func TestStageCatalogListsEveryStage(t *testing.T) {
	var buf strings.Builder
	console := NewConsoleWriter(&buf, false)
	console.StageCatalog(instructions.Stages())

	out := buf.String()
	for _, stage := range instructions.Stages() {
		assert.Contains(t, out, stage.Name)
		assert.Contains(t, out, stage.Description)
	}
	assert.Contains(t, out, "(optional)")
}
