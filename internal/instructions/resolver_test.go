package instructions

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveStageFilePrefersDirectoryLocalMatch(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	project := filepath.Join(base, "projA")
	require.NoError(t, os.MkdirAll(project, 0o750))

	// Generic fallback exists at the root, stage file only in the directory.
	writeFile(t, base, "coderun_init.md", "generic root instructions")
	writeFile(t, project, "coderun_init_mvp.md", "mvp instructions")

	resolver := newTestResolver(base, "mvp")
	content := resolver.Resolve(project)

	require.True(t, content.Found())
	assert.Equal(t, filepath.Join(project, "coderun_init_mvp.md"), content.InitPath)
	assert.Equal(t, "mvp instructions", content.Init)
	assert.Empty(t, content.ContinuePath)
}

func TestResolveStageWildcardPattern(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	project := filepath.Join(base, "projB")
	require.NoError(t, os.MkdirAll(project, 0o750))
	writeFile(t, project, "coderun_init_planning_design_gitsetup.md", "planning instructions")

	resolver := newTestResolver(base, "planning*")
	content := resolver.Resolve(project)

	require.True(t, content.Found())
	assert.Equal(t, "planning instructions", content.Init)
}

func TestResolveStagePicksContinueFileToo(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	project := filepath.Join(base, "projC")
	require.NoError(t, os.MkdirAll(project, 0o750))
	writeFile(t, project, "coderun_init_upgrade.md", "upgrade init")
	writeFile(t, project, "coderun_continue_upgrade.md", "upgrade continue")

	resolver := newTestResolver(base, "upgrade")
	content := resolver.Resolve(project)

	assert.Equal(t, "upgrade init", content.Init)
	assert.Equal(t, "upgrade continue", content.Continue)
	assert.Equal(t, "upgrade init", content.Primary())
}

func TestResolveGenericFallbackSearchOrder(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	project := filepath.Join(base, "projD")
	require.NoError(t, os.MkdirAll(project, 0o750))
	writeFile(t, base, "coderun.md", "base level")
	writeFile(t, project, "coderun_init.md", "directory level")

	resolver := newTestResolver(base, "")
	content := resolver.Resolve(project)

	// coderun_init.md outranks coderun.md regardless of location.
	assert.Equal(t, "directory level", content.Init)
}

func TestResolveStageFallsBackToGenericWhenUnmatched(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	project := filepath.Join(base, "projE")
	require.NoError(t, os.MkdirAll(project, 0o750))
	writeFile(t, base, "coderun_init.md", "generic instructions")

	resolver := newTestResolver(base, "nonexistent_stage")
	content := resolver.Resolve(project)

	require.True(t, content.Found())
	assert.Equal(t, "generic instructions", content.Init)
}

func TestResolveMissingContentDegradesToPlaceholder(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	project := filepath.Join(base, "projF")
	require.NoError(t, os.MkdirAll(project, 0o750))

	resolver := newTestResolver(base, "")
	content := resolver.Resolve(project)

	assert.False(t, content.Found())
	assert.True(t, strings.Contains(content.Init, "projF"), "placeholder should name the directory")
	assert.NotEmpty(t, content.Primary())
}

func TestStagesCatalogIsStable(t *testing.T) {
	t.Parallel()

	stages := Stages()
	require.Len(t, stages, 14)
	assert.Equal(t, "planning_design_gitsetup", stages[0].Name)
	assert.False(t, stages[0].Optional)

	optional := 0
	for _, stage := range stages {
		if stage.Optional {
			optional++
		}
	}
	assert.Equal(t, 6, optional)
}

// newTestResolver pins workDir to an empty temp dir so files in the test
// runner's working directory never leak into search paths.
func newTestResolver(base string, stage string) *Resolver {
	resolver := NewResolver(base, stage)
	resolver.workDir = ""
	return resolver
}

func writeFile(t *testing.T, dir string, name string, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
}
