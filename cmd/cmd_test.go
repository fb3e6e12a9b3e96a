package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/burrow/internal/build"
	"github.com/conneroisu/burrow/internal/compiler"
	"github.com/conneroisu/burrow/internal/errors"
)

func newTestCommand(stdin string) (*cobra.Command, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	return cmd, &out
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func resetFlags(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		compileScope = scopeFlag{}
		compileFormat = "json"
		compileNoFrontmatter = false
		renderScope = scopeFlag{}
		renderPage = false
		hydrateScope = scopeFlag{}
		hydrateLazy = false
		versionFormat = "text"
		versionShort = false
		buildOutput = ""
		buildWorkers = 0
		buildClean = false
		buildLazy = false
		buildScope = scopeFlag{}
		buildFormat = "text"
	})
}

func TestCompileCommand(t *testing.T) {
	resetFlags(t)
	path := writeFile(t, "post.mdx", "---\ntitle: Post\n---\n# Hello {user}")
	require.NoError(t, compileScope.Set(`{"user":"Ada"}`))

	cmd, out := newTestCommand("")
	require.NoError(t, runCompile(cmd, []string{path}))

	var result compiler.Result
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.NotEmpty(t, result.CompiledCode)
	assert.Equal(t, "Post", result.Frontmatter["title"])
	assert.Equal(t, "Ada", result.Scope["user"])
}

func TestCompileCommandYAMLFromStdin(t *testing.T) {
	resetFlags(t)
	compileFormat = "yaml"
	compileNoFrontmatter = true

	cmd, out := newTestCommand("---\ntitle: Post\n---\n# Hello")
	require.NoError(t, runCompile(cmd, []string{"-"}))

	var result map[string]any
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &result))
	assert.NotEmpty(t, result["compiledCode"])
	assert.NotContains(t, result, "frontmatter")
}

func TestCompileCommandErrors(t *testing.T) {
	resetFlags(t)

	cmd, _ := newTestCommand("")
	err := runCompile(cmd, []string{writeFile(t, "broken.mdx", "Hello {name")})
	require.Error(t, err)
	assert.True(t, errors.IsCompilation(err))

	err = runCompile(cmd, []string{filepath.Join(t.TempDir(), "missing.mdx")})
	assert.Error(t, err)

	compileFormat = "toml"
	err = runCompile(cmd, []string{"-"})
	assert.ErrorContains(t, err, "unsupported format")
}

func TestRenderCommand(t *testing.T) {
	resetFlags(t)
	path := writeFile(t, "post.mdx", "# Hello {user}")
	require.NoError(t, renderScope.Set(`{"user":"Ada"}`))

	cmd, out := newTestCommand("")
	require.NoError(t, runRender(cmd, []string{path}))
	assert.Equal(t, "<h1 id=\"hello\">Hello Ada</h1>\n", out.String())
}

func TestRenderCommandPage(t *testing.T) {
	resetFlags(t)
	renderPage = true
	path := writeFile(t, "notes.mdx", "# Notes")

	cmd, out := newTestCommand("")
	require.NoError(t, runRender(cmd, []string{path}))
	assert.Contains(t, out.String(), "<!DOCTYPE html>")
	assert.Contains(t, out.String(), "<title>notes</title>")
	assert.Contains(t, out.String(), `<h1 id="notes">Notes</h1>`)
	assert.NotContains(t, out.String(), "WebSocket")
}

func TestHydrateCommand(t *testing.T) {
	resetFlags(t)

	compileCmd, compiled := newTestCommand("# Hi {user}")
	require.NoError(t, runCompile(compileCmd, []string{"-"}))

	require.NoError(t, hydrateScope.Set(`{"user":"Grace"}`))
	cmd, out := newTestCommand(compiled.String())
	require.NoError(t, runHydrate(cmd, []string{"-"}))
	assert.Equal(t, "<h1 id=\"hi\">Hi Grace</h1>\n", out.String())
}

func TestHydrateCommandFallback(t *testing.T) {
	resetFlags(t)
	hydrateLazy = true

	cmd, out := newTestCommand(`{"compiledCode":"garbage"}`)
	require.NoError(t, runHydrate(cmd, []string{"-"}))
	assert.Contains(t, out.String(), `data-burrow-boundary="lazy"`)
	assert.Contains(t, out.String(), "burrow-error")

	cmd, _ = newTestCommand("not json")
	assert.Error(t, runHydrate(cmd, []string{"-"}))
}

func newBuildCommand(t *testing.T, out string) (*cobra.Command, *bytes.Buffer) {
	t.Helper()
	cmd, stdout := newTestCommand("")
	cmd.Flags().StringVarP(&buildOutput, "output", "o", "", "")
	require.NoError(t, cmd.Flags().Set("output", out))
	return cmd, stdout
}

func TestBuildCommand(t *testing.T) {
	resetFlags(t)
	content := t.TempDir()
	out := filepath.Join(t.TempDir(), "site")
	require.NoError(t, os.WriteFile(filepath.Join(content, "hello.mdx"), []byte("---\ntitle: Hi\n---\n# Hello {user}"), 0o600))
	require.NoError(t, buildScope.Set(`{"user":"Ada"}`))

	cmd, stdout := newBuildCommand(t, out)
	require.NoError(t, runBuild(cmd, []string{content}))
	assert.Contains(t, stdout.String(), "ok   hello")
	assert.Contains(t, stdout.String(), "Built 1/1 pages")

	page, err := os.ReadFile(filepath.Join(out, "hello.html"))
	require.NoError(t, err)
	assert.Contains(t, string(page), "<title>Hi</title>")
	assert.Contains(t, string(page), `<h1 id="hello">Hello Ada</h1>`)
	assert.FileExists(t, filepath.Join(out, build.IndexFile))
	assert.FileExists(t, filepath.Join(out, build.ManifestFile))
}

func TestBuildCommandFailuresAndJSON(t *testing.T) {
	resetFlags(t)
	content := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(content, "ok.md"), []byte("fine"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(content, "broken.mdx"), []byte("Hello {name"), 0o600))
	buildFormat = "json"

	cmd, stdout := newBuildCommand(t, t.TempDir())
	err := runBuild(cmd, []string{content})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 pages failed")

	var report struct {
		Pages []struct {
			Name  string `json:"name"`
			Error string `json:"error"`
		} `json:"pages"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &report))
	require.Len(t, report.Pages, 2)
	assert.Equal(t, "broken", report.Pages[0].Name)
	assert.NotEmpty(t, report.Pages[0].Error)
	assert.Empty(t, report.Pages[1].Error)

	buildFormat = "xml"
	assert.Error(t, runBuild(cmd, []string{content}))
}

func TestScopeFlag(t *testing.T) {
	var f scopeFlag
	require.NoError(t, f.Set(`{"a":1}`))
	assert.Equal(t, map[string]any{"a": float64(1)}, f.scope)
	assert.Equal(t, `{"a":1}`, f.String())
	assert.Equal(t, "json", f.Type())

	path := writeFile(t, "scope.json", `{"user":{"name":"Ada"}}`)
	require.NoError(t, f.Set("@"+path))
	assert.Equal(t, map[string]any{"user": map[string]any{"name": "Ada"}}, f.scope)

	assert.Error(t, f.Set("[1,2]"))
	assert.Error(t, f.Set("@"+filepath.Join(t.TempDir(), "missing.json")))
}

func TestVersionCommand(t *testing.T) {
	resetFlags(t)

	cmd, out := newTestCommand("")
	versionFormat = "json"
	require.NoError(t, runVersionCommand(cmd, nil))
	var info map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &info))
	assert.NotEmpty(t, info["version"])
	assert.NotEmpty(t, info["go_version"])

	cmd, out = newTestCommand("")
	versionFormat = "text"
	versionShort = true
	require.NoError(t, runVersionCommand(cmd, nil))
	assert.NotEmpty(t, strings.TrimSpace(out.String()))

	versionFormat = "xml"
	assert.Error(t, runVersionCommand(cmd, nil))
}

func TestCommandsRegistered(t *testing.T) {
	names := make([]string, 0)
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"build", "compile", "render", "hydrate", "serve", "version"} {
		assert.Contains(t, names, want)
	}
}
