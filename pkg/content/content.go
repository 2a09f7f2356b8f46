// Package content turns page documents into the HTML a render pass scans.
// Markdown is converted with goldmark; the result is sanitized with a
// bluemonday policy that keeps the registry's custom tags and attributes.
package content

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/sambeau/cmarkup/pkg/markup/tags"
)

// Format is the source format of a document.
type Format string

const (
	Markdown Format = "markdown"
	HTML     Format = "html"
)

// ParseFormat maps a config or request value to a Format. Empty means HTML.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "html", "htm":
		return HTML, nil
	case "markdown", "md":
		return Markdown, nil
	}
	return "", fmt.Errorf("unknown content format %q (want markdown or html)", s)
}

// Converter prepares documents for rendering. It is safe for concurrent use.
type Converter struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

// NewConverter builds a converter whose sanitizer admits the tags in reg.
func NewConverter(reg *tags.Registry) *Converter {
	return &Converter{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
			// Custom tags arrive as raw HTML; the policy below removes
			// everything else that is unsafe.
			goldmark.WithRendererOptions(html.WithUnsafe()),
		),
		policy: NewPolicy(reg),
	}
}

// NewPolicy returns the UGC policy extended with every registered tag and
// its declared attributes.
func NewPolicy(reg *tags.Registry) *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").Globally()
	for _, d := range reg.Descriptors() {
		p.AllowElements(d.Name)
		p.AllowNoAttrs().OnElements(d.Name)
		keys := make([]string, 0, len(d.Required)+len(d.Optional))
		for _, a := range d.Required {
			keys = append(keys, a.Key)
		}
		for _, a := range d.Optional {
			keys = append(keys, a.Key)
		}
		if len(keys) > 0 {
			p.AllowAttrs(keys...).OnElements(d.Name)
		}
	}
	return p
}

// Prepare converts source to sanitized HTML.
func (c *Converter) Prepare(source string, format Format) (string, error) {
	switch format {
	case Markdown:
		var buf bytes.Buffer
		if err := c.md.Convert([]byte(source), &buf); err != nil {
			return "", fmt.Errorf("converting markdown: %w", err)
		}
		return c.policy.Sanitize(buf.String()), nil
	case HTML, "":
		return c.policy.Sanitize(source), nil
	}
	return "", fmt.Errorf("unknown content format %q", format)
}

// Sanitize applies the policy to already rendered HTML.
func (c *Converter) Sanitize(s string) string {
	return c.policy.Sanitize(s)
}
