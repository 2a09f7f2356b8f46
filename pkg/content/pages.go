package content

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

var (
	ErrNotFound    = errors.New("page not found")
	ErrInvalidName = errors.New("invalid page name")
)

var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

var extensions = map[Format][]string{
	Markdown: {".md", ".markdown"},
	HTML:     {".html", ".htm"},
}

// FormatForPath returns the format implied by a file extension.
func FormatForPath(path string) (Format, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	for f, exts := range extensions {
		for _, e := range exts {
			if e == ext {
				return f, true
			}
		}
	}
	return "", false
}

// Document is one page read from a content directory.
type Document struct {
	Name    string
	Path    string
	Format  Format
	Source  string
	ModTime time.Time
}

// Dir reads page documents from a flat directory. A page named "home" is
// stored as home.md, home.markdown, home.html or home.htm.
type Dir struct {
	root      string
	preferred Format
}

// NewDir returns a page directory. When a page exists in both formats the
// preferred one wins.
func NewDir(root string, preferred Format) *Dir {
	if preferred == "" {
		preferred = Markdown
	}
	return &Dir{root: root, preferred: preferred}
}

// Root returns the directory path.
func (d *Dir) Root() string { return d.root }

func (d *Dir) candidates(name string) []string {
	order := []Format{d.preferred, Markdown, HTML}
	seen := make(map[Format]bool)
	var out []string
	for _, f := range order {
		if seen[f] {
			continue
		}
		seen[f] = true
		for _, ext := range extensions[f] {
			out = append(out, filepath.Join(d.root, name+ext))
		}
	}
	return out
}

// Load reads the page called name.
func (d *Dir) Load(name string) (*Document, error) {
	if !validName.MatchString(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	for _, path := range d.candidates(name) {
		info, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading page %s: %w", name, err)
		}
		if info.IsDir() {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading page %s: %w", name, err)
		}
		format, _ := FormatForPath(path)
		return &Document{
			Name:    name,
			Path:    path,
			Format:  format,
			Source:  string(data),
			ModTime: info.ModTime(),
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// List returns the names of all pages, sorted.
func (d *Dir) List() ([]string, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, fmt.Errorf("listing pages: %w", err)
	}
	seen := make(map[string]bool)
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name, ok := d.NameFor(e.Name())
		if ok && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// NameFor returns the page name a file path belongs to.
func (d *Dir) NameFor(path string) (string, bool) {
	if _, ok := FormatForPath(path); !ok {
		return "", false
	}
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if !validName.MatchString(name) {
		return "", false
	}
	return name, true
}
