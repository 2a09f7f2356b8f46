package content

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sambeau/cmarkup/pkg/markup/tags"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
		ok   bool
	}{
		{"", HTML, true},
		{"html", HTML, true},
		{"Markdown", Markdown, true},
		{" md ", Markdown, true},
		{"rst", "", false},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if !tt.ok {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestPrepare_MarkdownKeepsCustomTags(t *testing.T) {
	c := NewConverter(tags.Default())
	out, err := c.Prepare("# Welcome\n\nWatch <video-preview id=\"42\"></video-preview> now.\n", Markdown)
	require.NoError(t, err)
	assert.Contains(t, out, `<h1 id="welcome">Welcome</h1>`)
	assert.Contains(t, out, `<video-preview id="42"></video-preview>`)
}

func TestPrepare_StripsUnsafeMarkup(t *testing.T) {
	c := NewConverter(tags.Default())
	out, err := c.Prepare(`<p onclick="x()">hi</p><script>alert(1)</script><video-preview id="1" onload="x()" bogus="y"></video-preview>`, HTML)
	require.NoError(t, err)
	assert.NotContains(t, out, "script")
	assert.NotContains(t, out, "onclick")
	assert.NotContains(t, out, "onload")
	assert.NotContains(t, out, "bogus")
	assert.Contains(t, out, `<video-preview id="1"></video-preview>`)
}

func TestPrepare_KeepsDeclaredAttributesOnly(t *testing.T) {
	c := NewConverter(tags.Default())
	out, err := c.Prepare(`<instance-avatar size="64" href="/nope"></instance-avatar>`, HTML)
	require.NoError(t, err)
	assert.Equal(t, `<instance-avatar size="64"></instance-avatar>`, out)
}

func TestPrepare_UnknownFormat(t *testing.T) {
	_, err := NewConverter(tags.Default()).Prepare("x", Format("rst"))
	assert.Error(t, err)
}

func writePage(t *testing.T, dir, file, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(body), 0o644))
}

func TestDir_Load(t *testing.T) {
	root := t.TempDir()
	writePage(t, root, "home.md", "# Home")
	writePage(t, root, "home.html", "<h1>Home</h1>")
	writePage(t, root, "about.htm", "<p>About</p>")

	doc, err := NewDir(root, Markdown).Load("home")
	require.NoError(t, err)
	assert.Equal(t, Markdown, doc.Format)
	assert.Equal(t, "# Home", doc.Source)
	assert.Equal(t, filepath.Join(root, "home.md"), doc.Path)

	doc, err = NewDir(root, HTML).Load("home")
	require.NoError(t, err)
	assert.Equal(t, HTML, doc.Format)

	doc, err = NewDir(root, Markdown).Load("about")
	require.NoError(t, err)
	assert.Equal(t, "<p>About</p>", doc.Source)

	_, err = NewDir(root, Markdown).Load("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	for _, bad := range []string{"../etc/passwd", "", ".hidden", "a/b"} {
		_, err = NewDir(root, Markdown).Load(bad)
		assert.ErrorIs(t, err, ErrInvalidName, bad)
	}
}

func TestDir_List(t *testing.T) {
	root := t.TempDir()
	writePage(t, root, "home.md", "")
	writePage(t, root, "home.html", "")
	writePage(t, root, "zeta.markdown", "")
	writePage(t, root, "notes.txt", "")
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub.md"), 0o755))

	names, err := NewDir(root, "").List()
	require.NoError(t, err)
	assert.Equal(t, []string{"home", "zeta"}, names)

	_, err = NewDir(filepath.Join(root, "nope"), "").List()
	assert.Error(t, err)
}

func TestDir_NameFor(t *testing.T) {
	d := NewDir("/pages", Markdown)
	name, ok := d.NameFor("/pages/home.md")
	assert.True(t, ok)
	assert.Equal(t, "home", name)

	_, ok = d.NameFor("/pages/home.md.swp")
	assert.False(t, ok)
	_, ok = d.NameFor(strings.Repeat("/x", 2) + "/.home.md")
	assert.False(t, ok)
}

func TestPrepare_KeepsTagsWithoutAttributes(t *testing.T) {
	c := NewConverter(tags.Default())
	out, err := c.Prepare(`<instance-banner></instance-banner><call-to-action-button><b>x</b></call-to-action-button>`, HTML)
	require.NoError(t, err)
	assert.Equal(t, `<instance-banner></instance-banner><call-to-action-button><b>x</b></call-to-action-button>`, out)
}
