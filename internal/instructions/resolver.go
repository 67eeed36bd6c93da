// Package instructions resolves init/continue instruction content for a
// project directory, with optional stage-specific file selection.
package instructions

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Generic instruction filenames tried when no stage-specific file matches.
var genericNames = []string{"coderun_init.md", "coderun.md"}

// Content is the resolved instruction text for one directory. Content is
// immutable once resolved and consumed at most once per run.
type Content struct {
	InitPath     string
	ContinuePath string
	Init         string
	Continue     string
}

// Found reports whether any instruction file was located.
func (c Content) Found() bool {
	return c.InitPath != "" || c.ContinuePath != ""
}

// Primary returns the content delivered first: init when present, otherwise
// continue.
func (c Content) Primary() string {
	if c.Init != "" {
		return c.Init
	}
	return c.Continue
}

// Resolver locates and reads instruction files for directories under BaseDir.
type Resolver struct {
	baseDir string
	stage   string
	workDir string
}

// NewResolver builds a resolver rooted at baseDir. A non-empty stage selects
// stage-specific filenames; stage may contain shell-glob wildcards.
func NewResolver(baseDir string, stage string) *Resolver {
	workDir, err := os.Getwd()
	if err != nil {
		workDir = ""
	}
	return &Resolver{
		baseDir: strings.TrimSpace(baseDir),
		stage:   strings.TrimSpace(stage),
		workDir: workDir,
	}
}

// Resolve finds instruction files for dir and reads their content.
// Resolution is best-effort: a directory without instruction files yields
// placeholder content, and an unreadable file yields an error note, so one
// bad item never blocks the batch.
func (r *Resolver) Resolve(dir string) Content {
	content := Content{}
	if r == nil {
		return content
	}

	if r.stage != "" {
		content.InitPath, content.ContinuePath = r.findStageFiles(dir)
	}
	if content.InitPath == "" && content.ContinuePath == "" {
		content.InitPath = r.findGenericFile(dir)
	}

	if content.InitPath != "" {
		content.Init = readInstructionFile(content.InitPath)
	}
	if content.ContinuePath != "" {
		content.Continue = readInstructionFile(content.ContinuePath)
	}
	if !content.Found() {
		content.Init = Placeholder(dir)
	}
	return content
}

// Placeholder is the marker content used when no instruction file exists.
func Placeholder(dir string) string {
	return fmt.Sprintf("# No instructions found for %s\nReview this project and continue where it left off.\n", filepath.Base(dir))
}

// stage files are searched nearest-first: the directory itself wins over the
// scan root, which wins over the invocation directory.
func (r *Resolver) stageSearchPaths(dir string) []string {
	candidates := []string{
		dir,
		filepath.Dir(dir),
		r.baseDir,
		filepath.Dir(r.baseDir),
		r.workDir,
	}
	return dedupeExisting(candidates)
}

func (r *Resolver) genericSearchPaths(dir string) []string {
	candidates := []string{
		dir,
		filepath.Dir(dir),
		r.baseDir,
		r.workDir,
	}
	return dedupeExisting(candidates)
}

func (r *Resolver) findStageFiles(dir string) (string, string) {
	initName := fmt.Sprintf("coderun_init_%s.md", r.stage)
	continueName := fmt.Sprintf("coderun_continue_%s.md", r.stage)

	var initPath, continuePath string
	for _, searchPath := range r.stageSearchPaths(dir) {
		if initPath == "" {
			initPath = findByName(searchPath, initName)
		}
		if continuePath == "" {
			continuePath = findByName(searchPath, continueName)
		}
		if initPath != "" || continuePath != "" {
			break
		}
	}
	return initPath, continuePath
}

func (r *Resolver) findGenericFile(dir string) string {
	for _, name := range genericNames {
		for _, searchPath := range r.genericSearchPaths(dir) {
			candidate := filepath.Join(searchPath, name)
			if fileExists(candidate) {
				return candidate
			}
		}
	}
	return ""
}

// findByName checks for an exact filename first, then treats the name as a
// glob pattern so wildcard stage selectors like "planning*" match.
func findByName(searchPath string, name string) string {
	candidate := filepath.Join(searchPath, name)
	if fileExists(candidate) {
		return candidate
	}

	matches, err := filepath.Glob(filepath.Join(searchPath, name))
	if err != nil || len(matches) == 0 {
		return ""
	}
	sort.Strings(matches)
	for _, match := range matches {
		if fileExists(match) {
			return match
		}
	}
	return ""
}

func readInstructionFile(path string) string {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from local instruction discovery.
	if err != nil {
		return fmt.Sprintf("# Error reading %s\n%v", path, err)
	}
	return string(data)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dedupeExisting(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		if _, ok := seen[path]; ok {
			continue
		}
		seen[path] = struct{}{}
		info, err := os.Stat(path)
		if err != nil || !info.IsDir() {
			continue
		}
		out = append(out, path)
	}
	return out
}
