// Package launcher opens a visible terminal running an automation script.
// It reports only whether the terminal launch succeeded; the scripted
// conversation inside the terminal is invisible to it.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/coderunner/ccr/internal/platform"
)

// Launcher starts a visible terminal executing script in dir.
type Launcher interface {
	Name() string
	Launch(ctx context.Context, dir string, script string) error
}

// CommandRunner executes short-lived helper commands (wslpath, osascript
// queries) and waits for their output.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ProcessStarter starts a terminal process without waiting for it to exit;
// launched terminals outlive the orchestrator.
type ProcessStarter interface {
	Start(name string, args ...string) error
}

type defaultCommandRunner struct{}

func (defaultCommandRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		trimmed := strings.TrimSpace(string(out))
		if trimmed == "" {
			return nil, fmt.Errorf("run %s: %w", name, err)
		}
		return nil, fmt.Errorf("run %s: %w (%s)", name, err, trimmed)
	}
	return out, nil
}

type defaultProcessStarter struct{}

func (defaultProcessStarter) Start(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", name, err)
	}
	if cmd.Process != nil {
		return cmd.Process.Release()
	}
	return nil
}

// Deps carries the injectable process seams shared by all launcher variants.
type Deps struct {
	Runner   CommandRunner
	Starter  ProcessStarter
	LookPath func(file string) (string, error)
}

func (d Deps) withDefaults() Deps {
	if d.Runner == nil {
		d.Runner = defaultCommandRunner{}
	}
	if d.Starter == nil {
		d.Starter = defaultProcessStarter{}
	}
	if d.LookPath == nil {
		d.LookPath = exec.LookPath
	}
	return d
}

// x11Terminals is the fixed probe priority on Linux: richer terminals first.
var x11Terminals = []string{"gnome-terminal", "konsole", "terminator", "xterm"}

// Detect resolves the launcher variant for the detected platform. preferred
// optionally pins one Linux terminal emulator by name. No available
// candidate is a fatal configuration error: the batch cannot proceed.
func Detect(p platform.Platform, preferred string, deps Deps) (Launcher, error) {
	deps = deps.withDefaults()
	preferred = strings.ToLower(strings.TrimSpace(preferred))

	switch p {
	case platform.WSL:
		if _, err := deps.LookPath("wt.exe"); err == nil {
			return &consoleBridge{deps: deps, useWindowsTerminal: true}, nil
		}
		if _, err := deps.LookPath("cmd.exe"); err == nil {
			return &consoleBridge{deps: deps}, nil
		}
		return nil, errors.New("no Windows console host (wt.exe or cmd.exe) found on PATH")
	case platform.MacOS:
		if _, err := deps.LookPath("osascript"); err != nil {
			return nil, errors.New("osascript not found on PATH")
		}
		return &appleScript{deps: deps}, nil
	case platform.Linux:
		candidates := x11Terminals
		if preferred != "" && contains(x11Terminals, preferred) {
			candidates = append([]string{preferred}, x11Terminals...)
		}
		for _, term := range candidates {
			if _, err := deps.LookPath(term); err == nil {
				return &x11Terminal{deps: deps, emulator: term}, nil
			}
		}
		return nil, fmt.Errorf("no supported terminal emulator found on PATH (tried %s)", strings.Join(candidates, ", "))
	default:
		return nil, fmt.Errorf("unsupported platform %q", p)
	}
}

// consoleBridge launches through the Windows console host from inside WSL.
type consoleBridge struct {
	deps               Deps
	useWindowsTerminal bool
}

func (c *consoleBridge) Name() string {
	if c.useWindowsTerminal {
		return "windows-terminal"
	}
	return "cmd"
}

func (c *consoleBridge) Launch(ctx context.Context, dir string, script string) error {
	winPath, err := c.deps.Runner.Run(ctx, "wslpath", "-w", dir)
	if err != nil {
		return fmt.Errorf("convert %q to windows path: %w", dir, err)
	}

	if c.useWindowsTerminal {
		return c.deps.Starter.Start(
			"wt.exe", "-d", strings.TrimSpace(string(winPath)),
			"wsl", "--cd", dir, "--", "bash", script,
		)
	}
	return c.deps.Starter.Start(
		"cmd.exe", "/c", "start", "cmd.exe", "/k",
		"wsl", "--cd", dir, "--", "bash", script,
	)
}

// appleScript launches through osascript, preferring iTerm when it is
// already running, otherwise Terminal.
type appleScript struct {
	deps Deps
}

func (a *appleScript) Name() string { return "osascript" }

func (a *appleScript) Launch(ctx context.Context, dir string, script string) error {
	body := terminalAppScript(dir, script)
	if a.iTermRunning(ctx) {
		body = iTermScript(dir, script)
	}

	if _, err := a.deps.Runner.Run(ctx, "osascript", "-e", body); err != nil {
		return fmt.Errorf("launch macOS terminal: %w", err)
	}
	return nil
}

func (a *appleScript) iTermRunning(ctx context.Context) bool {
	out, err := a.deps.Runner.Run(ctx, "osascript", "-e",
		`tell application "System Events" to get name of every process`)
	return err == nil && strings.Contains(string(out), "iTerm")
}

func terminalAppScript(dir string, script string) string {
	return fmt.Sprintf(`tell application "Terminal"
	do script "cd %s && bash %s"
	activate
end tell`, appleQuote(dir), appleQuote(script))
}

func iTermScript(dir string, script string) string {
	return fmt.Sprintf(`tell application "iTerm"
	create window with default profile
	tell current session of current window
		write text "cd %s && bash %s"
	end tell
end tell`, appleQuote(dir), appleQuote(script))
}

// appleQuote shell-quotes a path for the command string embedded in an
// AppleScript double-quoted literal.
func appleQuote(value string) string {
	return "'" + strings.ReplaceAll(value, `'`, `'\\''`) + "'"
}

// x11Terminal launches one of the probed Linux terminal emulators.
type x11Terminal struct {
	deps     Deps
	emulator string
}

func (x *x11Terminal) Name() string { return x.emulator }

func (x *x11Terminal) Launch(_ context.Context, dir string, script string) error {
	var args []string
	switch x.emulator {
	case "gnome-terminal":
		args = []string{"--working-directory=" + dir, "--", "bash", script}
	case "konsole":
		args = []string{"--workdir", dir, "-e", "bash", script}
	case "terminator":
		args = []string{"--working-directory=" + dir, "-e", "bash " + shellQuote(script)}
	case "xterm":
		args = []string{"-e", fmt.Sprintf("cd %s && bash %s", shellQuote(dir), shellQuote(script))}
	default:
		return fmt.Errorf("unsupported terminal emulator %q", x.emulator)
	}
	return x.deps.Starter.Start(x.emulator, args...)
}

func contains(values []string, want string) bool {
	for _, value := range values {
		if value == want {
			return true
		}
	}
	return false
}

func shellQuote(value string) string {
	if strings.TrimSpace(value) == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(value, "'", "'\"'\"'") + "'"
}
