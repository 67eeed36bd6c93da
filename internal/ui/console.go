package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/coderunner/ccr/internal/events"
	"github.com/coderunner/ccr/internal/instructions"
	"github.com/coderunner/ccr/internal/runner"
)

// Console writes human-facing batch progress. Styling is dropped when the
// destination is not a terminal. Safe for concurrent use: event handlers
// write from bus goroutines.
type Console struct {
	mu    sync.Mutex
	out   io.Writer
	color bool
}

// NewConsole returns a console bound to stdout, with color when stdout is a
// terminal.
func NewConsole() *Console {
	return &Console{
		out:   os.Stdout,
		color: isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()),
	}
}

// NewConsoleWriter returns a console bound to an arbitrary writer.
func NewConsoleWriter(out io.Writer, color bool) *Console {
	return &Console{out: out, color: color}
}

// AttachTo subscribes the console's progress handlers to the bus.
func (c *Console) AttachTo(bus events.Bus) {
	bus.Subscribe(events.EventTypeLaunchStarted, func(event events.Event) {
		c.printf("%s %s\n", c.render(DimStyle, "→"), event.Dir)
	})
	bus.Subscribe(events.EventTypeLaunchResult, func(event events.Event) {
		if event.Severity == events.SeverityError {
			detail, _ := event.Payload.(string)
			c.printf("%s %s %s\n", c.render(ErrorStyle, "✗"), event.Dir, c.render(DimStyle, detail))
			return
		}
		c.printf("%s %s\n", c.render(SuccessStyle, "✓"), event.Dir)
	})
}

// Banner prints the run header.
func (c *Console) Banner(root string, mode string, count int) {
	c.printf("%s\n", c.render(TitleStyle, "ccr — Claude Code Runner"))
	c.printf("%s %s\n", c.render(DimStyle, "root:"), root)
	c.printf("%s %s, %d directories\n\n", c.render(DimStyle, "mode:"), mode, count)
}

// PlanReport prints the dry-run plan: what would be written and launched.
func (c *Console) PlanReport(plan []runner.PlanEntry) {
	c.printf("%s\n\n", c.render(TitleStyle, "Dry run — no scripts written, no terminals launched"))
	for _, entry := range plan {
		c.printf("%s\n", entry.Dir)
		c.printf("  script:   %s\n", c.render(DimStyle, entry.ScriptPath))
		switch {
		case entry.Placeholder:
			c.printf("  content:  %s\n", c.render(WarningStyle, "placeholder (no instruction files found)"))
		default:
			if entry.InitPath != "" {
				c.printf("  init:     %s\n", c.render(DimStyle, entry.InitPath))
			}
			if entry.ContinuePath != "" {
				c.printf("  continue: %s\n", c.render(DimStyle, entry.ContinuePath))
			}
		}
	}
	c.printf("\n%d directories would be processed\n", len(plan))
}

// StageCatalog prints the known workflow stages.
func (c *Console) StageCatalog(stages []instructions.Stage) {
	c.printf("%s\n\n", c.render(TitleStyle, "Available stages"))
	width := 0
	for _, stage := range stages {
		if len(stage.Name) > width {
			width = len(stage.Name)
		}
	}
	for _, stage := range stages {
		name := fmt.Sprintf("%-*s", width, stage.Name)
		if stage.Optional {
			c.printf("  %s  %s %s\n", name, stage.Description, c.render(DimStyle, "(optional)"))
			continue
		}
		c.printf("  %s  %s\n", name, stage.Description)
	}
}

// Summary prints the final batch counters, colored by success rate.
func (c *Console) Summary(summary runner.Summary) {
	rate := summary.SuccessRate()
	style := ErrorStyle
	switch {
	case rate >= 80:
		style = SuccessStyle
	case rate >= 50:
		style = WarningStyle
	}

	lines := []string{
		fmt.Sprintf("total:     %d", summary.Total),
		fmt.Sprintf("launched:  %d", summary.Succeeded),
		fmt.Sprintf("failed:    %d", summary.Failed),
		c.render(style, fmt.Sprintf("success:   %d%%", rate)),
	}
	body := strings.Join(lines, "\n")
	if c.color {
		body = BoxStyle.Render(body)
	}
	c.printf("\n%s\n", body)
}

func (c *Console) render(style lipgloss.Style, text string) string {
	if !c.color {
		return text
	}
	return style.Render(text)
}

func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}
