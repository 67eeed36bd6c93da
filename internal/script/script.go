// Package script materializes the per-directory automation script that a
// launched terminal executes. The script embeds the resolved instruction
// text verbatim and then runs `ccr drive` to perform the session state
// machine.
package script

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	baseTerminator = "CCR_INSTRUCTIONS_EOF"
	scriptMode     = 0o755
)

// Path returns where the automation script for dir is written.
func Path(dir string) string {
	return filepath.Join(dir, fmt.Sprintf("claude_auto_%s.sh", filepath.Base(dir)))
}

// Materialize writes an executable automation script for dir embedding
// initContent and continueContent. ccrBin is the binary the script invokes
// for the drive phase.
func Materialize(dir string, ccrBin string, initContent string, continueContent string) (string, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return "", errors.New("directory is required")
	}
	ccrBin = strings.TrimSpace(ccrBin)
	if ccrBin == "" {
		return "", errors.New("ccr binary path is required")
	}

	body := render(dir, ccrBin, initContent, continueContent)
	path := Path(dir)
	if err := os.WriteFile(path, []byte(body), scriptMode); err != nil {
		return "", fmt.Errorf("write automation script %q: %w", path, err)
	}
	// WriteFile honors umask; scripts must stay executable for the launcher.
	if err := os.Chmod(path, scriptMode); err != nil {
		return "", fmt.Errorf("chmod automation script %q: %w", path, err)
	}
	return path, nil
}

func render(dir string, ccrBin string, initContent string, continueContent string) string {
	terminator := safeTerminator(initContent, continueContent)

	var b strings.Builder
	b.WriteString("#!/bin/bash\n")
	b.WriteString(fmt.Sprintf("# Session automation for %s\n", filepath.Base(dir)))
	b.WriteString("set -e\n")
	b.WriteString(fmt.Sprintf("cd %s\n", shellQuote(dir)))
	b.WriteString("echo \"Working in: $(pwd)\"\n\n")

	b.WriteString("INIT_FILE=$(mktemp)\n")
	b.WriteString("CONTINUE_FILE=$(mktemp)\n")
	b.WriteString("cleanup() {\n    rm -f \"$INIT_FILE\" \"$CONTINUE_FILE\"\n}\n")
	b.WriteString("trap cleanup EXIT\n\n")

	writeHeredoc(&b, "$INIT_FILE", terminator, initContent)
	writeHeredoc(&b, "$CONTINUE_FILE", terminator, continueContent)

	b.WriteString(fmt.Sprintf(
		"%s drive --workdir %s --init-file \"$INIT_FILE\" --continue-file \"$CONTINUE_FILE\"\n",
		shellQuote(ccrBin),
		shellQuote(dir),
	))
	return b.String()
}

// writeHeredoc embeds content through a quoted heredoc so the shell performs
// no expansion on it; the assistant receives the literal text.
func writeHeredoc(b *strings.Builder, target string, terminator string, content string) {
	b.WriteString(fmt.Sprintf("cat > \"%s\" << '%s'\n", target, terminator))
	b.WriteString(content)
	if !strings.HasSuffix(content, "\n") {
		b.WriteString("\n")
	}
	b.WriteString(terminator + "\n\n")
}

// safeTerminator extends the heredoc terminator until no line of either
// content block collides with it.
func safeTerminator(contents ...string) string {
	terminator := baseTerminator
	for hasLine(terminator, contents) {
		terminator += "_X"
	}
	return terminator
}

func hasLine(line string, contents []string) bool {
	for _, content := range contents {
		for _, candidate := range strings.Split(content, "\n") {
			if candidate == line {
				return true
			}
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
