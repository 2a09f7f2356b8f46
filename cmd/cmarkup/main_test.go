package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) string { return "" }

// runCLI runs the command line with captured streams.
func runCLI(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, strings.NewReader(stdin), &stdout, &stderr, noEnv)
	return stdout.String(), stderr.String(), err
}

// writeConfig writes a config file whose catalog is seeded from the test
// dataset, unless catalog overrides it.
func writeConfig(t *testing.T, catalog string) string {
	t.Helper()
	dir := t.TempDir()
	dataset, err := filepath.Abs("../../pkg/catalog/testdata/catalog.json")
	require.NoError(t, err)
	if catalog == "" {
		catalog = "catalog:\n  driver: sqlite\n  dsn: \":memory:\"\n  dataset: " + dataset + "\n"
	}
	cfg := catalog + `
logging:
  level: error
content:
  dir: ` + dir + `
`
	path := filepath.Join(dir, "cmarkup.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestRunVersion(t *testing.T) {
	out, _, err := runCLI(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "cmarkup version dev")
	assert.Contains(t, out, "commit: unknown")
}

func TestRunHelp(t *testing.T) {
	out, _, err := runCLI(t, "", "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "cmarkup renders rich text")
	assert.Contains(t, out, "--config")
	assert.Contains(t, out, "serve")
}

func TestRunUnknownCommand(t *testing.T) {
	_, _, err := runCLI(t, "", "bogus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown command "bogus"`)
}

func TestRunMissingConfig(t *testing.T) {
	_, _, err := runCLI(t, "", "--config", filepath.Join(t.TempDir(), "nope.yaml"), "config")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestTags(t *testing.T) {
	out, _, err := runCLI(t, "", "tags")
	require.NoError(t, err)
	assert.Contains(t, out, "video-preview")
	assert.Contains(t, out, "call-to-action-button")

	out, _, err = runCLI(t, "", "tags", "--json", "video-preview")
	require.NoError(t, err)
	assert.Contains(t, out, `"kind": "tag"`)
	assert.Contains(t, out, `"name": "video-preview"`)

	_, _, err = runCLI(t, "", "tags", "video-previews")
	require.Error(t, err)
}

func TestTagsHTML(t *testing.T) {
	out, _, err := runCLI(t, "", "tags", "--html")
	require.NoError(t, err)
	assert.Contains(t, out, `id="tag-video-preview"`)
}

func TestRender(t *testing.T) {
	cfg := writeConfig(t, "")
	doc := writeFile(t, "doc.html", `<p>Hi</p><video-preview id="11"></video-preview>`)

	out, stderr, err := runCLI(t, "", "--config", cfg, "render", doc)
	require.NoError(t, err)
	assert.Contains(t, out, `<p>Hi</p>`)
	assert.Contains(t, out, `data-markup-tag="video-preview"`)
	assert.Contains(t, out, "Sprite Fright")
	assert.NotContains(t, stderr, "fallback")
}

func TestRenderStdinReportsFallbacks(t *testing.T) {
	cfg := writeConfig(t, "")

	out, stderr, err := runCLI(t, `<video-preview></video-preview>`, "--config", cfg, "render", "--format", "html", "-")
	require.NoError(t, err)
	assert.Contains(t, out, `data-markup-reason="missing:id"`)
	assert.Contains(t, stderr, "fallback: <video-preview>")

	_, _, err = runCLI(t, `<video-preview></video-preview>`, "--config", cfg, "render", "--format", "html", "--strict", "-")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 tag(s) rendered as fallbacks")
}

func TestRenderJSON(t *testing.T) {
	cfg := writeConfig(t, "")
	doc := writeFile(t, "doc.html", `<video-preview id="11"></video-preview><video-preview id="999"></video-preview>`)

	out, _, err := runCLI(t, "", "--config", cfg, "render", "--json", doc)
	require.NoError(t, err)

	var got renderJSON
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got.Instances, 1)
	assert.Equal(t, "video-preview", got.Instances[0].Tag)
	require.Len(t, got.FetchFailures, 1)
	assert.Contains(t, got.FetchFailures[0], "video-preview")
	assert.Empty(t, got.Warnings)
}

func TestRenderTree(t *testing.T) {
	cfg := writeConfig(t, "")
	doc := writeFile(t, "doc.html", `<p>x</p><video-preview id="11"></video-preview>`)

	out, _, err := runCLI(t, "", "--config", cfg, "render", "--tree", doc)
	require.NoError(t, err)
	assert.Contains(t, out, `literal "<p>x</p>"`)
	assert.Contains(t, out, "anchor <video-preview>")
}

func TestRenderBadFormat(t *testing.T) {
	cfg := writeConfig(t, "")
	_, _, err := runCLI(t, "x", "--config", cfg, "render", "--format", "rst", "-")
	require.Error(t, err)
}

func TestScan(t *testing.T) {
	doc := writeFile(t, "doc.html", "<video-preview id=\"11\"></video-preview>\n<video-preview></video-preview>\n<mystery-box></mystery-box>")

	out, _, err := runCLI(t, "", "scan", doc)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "<video-preview>\tok")
	assert.True(t, strings.HasPrefix(lines[1], "2:1\t"), lines[1])
	assert.Contains(t, lines[1], "fallback missing:id")
	assert.Equal(t, "2 tag(s)", lines[2])

	out, _, err = runCLI(t, "", "scan", "--all", doc)
	require.NoError(t, err)
	assert.Contains(t, out, "<mystery-box>\tfallback unknown-tag:mystery-box")
	assert.Contains(t, out, "3 tag(s)")
}

func TestScanJSON(t *testing.T) {
	doc := writeFile(t, "doc.html", `<video-preview id="11"></video-preview>`)

	out, _, err := runCLI(t, "", "scan", "--json", doc)
	require.NoError(t, err)

	var entries []scanEntry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "video-preview", entries[0].Tag)
	assert.Equal(t, 1, entries[0].Line)
	assert.True(t, entries[0].Closed)
	assert.Equal(t, "11", entries[0].Attrs["id"])
	assert.Empty(t, entries[0].Reason)
}

func TestConfigRedactsSecrets(t *testing.T) {
	cfg := writeConfig(t, "catalog:\n  driver: postgres\n  dsn: !secret \"host=db password=hunter2\"\n")

	out, _, err := runCLI(t, "", "--config", cfg, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "# "+cfg)
	assert.Contains(t, out, "[hidden]")
	assert.NotContains(t, out, "hunter2")
}

func TestImportThenRender(t *testing.T) {
	db := filepath.Join(t.TempDir(), "catalog.db")
	cfg := writeConfig(t, "catalog:\n  driver: sqlite\n  dsn: "+db+"\n")
	dataset, err := filepath.Abs("../../pkg/catalog/testdata/catalog.json")
	require.NoError(t, err)

	out, _, err := runCLI(t, "", "--config", cfg, "import", dataset)
	require.NoError(t, err)
	assert.Contains(t, out, "imported")

	doc := writeFile(t, "doc.html", `<video-preview id="11"></video-preview>`)
	out, _, err = runCLI(t, "", "--config", cfg, "render", doc)
	require.NoError(t, err)
	assert.Contains(t, out, "Sprite Fright")
}

func TestImportRejectsMemoryCatalog(t *testing.T) {
	cfg := writeConfig(t, "catalog:\n  driver: sqlite\n  dsn: \":memory:\"\n")
	_, _, err := runCLI(t, "", "--config", cfg, "import", "whatever.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "in-memory")
}
