// Package scanner splits sanitized markup into literal spans and recognized
// custom tag occurrences.
//
// The scanner uses the golang.org/x/net/html tokenizer for token boundaries
// only. Tag names and attribute keys are read from the token's source bytes so
// that matching stays case-sensitive; the tokenizer would lowercase them.
// Concatenating every Literal with each occurrence's Raw, children and EndRaw
// reproduces the input exactly.
package scanner

import (
	"iter"
	"strings"

	"golang.org/x/net/html"
)

// Lookup decides which element names are recognized tags.
type Lookup interface {
	Known(name string) bool
}

// LookupFunc adapts a function to Lookup.
type LookupFunc func(name string) bool

func (f LookupFunc) Known(name string) bool { return f(name) }

// Scan returns the top-level segments of text. The sequence is lazy and can
// be ranged over any number of times; each range scans from scratch.
func Scan(text string, lookup Lookup) iter.Seq[Segment] {
	return func(yield func(Segment) bool) {
		s := newScan(text, lookup, yield)
		s.run()
	}
}

// ScanAll collects Scan into a slice.
func ScanAll(text string, lookup Lookup) []Segment {
	var out []Segment
	for seg := range Scan(text, lookup) {
		out = append(out, seg)
	}
	return out
}

// frame is an open recognized tag collecting its children.
type frame struct {
	occ     *TagOccurrence
	literal strings.Builder
	hasLit  bool
}

type scan struct {
	text   string
	lookup Lookup
	yield  func(Segment) bool

	offset int
	line   int
	col    int

	// top-level pending literal and sibling counter
	literal strings.Builder
	hasLit  bool
	index   int

	stack   []*frame
	stopped bool
}

func newScan(text string, lookup Lookup, yield func(Segment) bool) *scan {
	return &scan{text: text, lookup: lookup, yield: yield, line: 1, col: 1}
}

func (s *scan) run() {
	z := html.NewTokenizer(strings.NewReader(s.text))
	for !s.stopped {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		raw := string(z.Raw())
		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			name := rawTagName(raw, 1)
			if s.lookup.Known(name) {
				s.openTag(name, raw, tt == html.SelfClosingTagToken)
			} else {
				s.appendLiteral(raw)
			}
		case html.EndTagToken:
			name := rawTagName(raw, 2)
			if !s.closeTag(name, raw) {
				s.appendLiteral(raw)
			}
		default:
			s.appendLiteral(raw)
		}
		s.advance(raw)
	}
	if s.stopped {
		return
	}
	// Input cut off inside a tag or comment is kept as text.
	if s.offset < len(s.text) {
		s.appendLiteral(s.text[s.offset:])
	}
	// Unclosed tags end with the input.
	for len(s.stack) > 0 {
		s.popFrame()
	}
	s.flushTopLiteral()
}

func (s *scan) advance(raw string) {
	s.offset += len(raw)
	if nl := strings.LastIndexByte(raw, '\n'); nl >= 0 {
		s.line += strings.Count(raw, "\n")
		s.col = len(raw) - nl
	} else {
		s.col += len(raw)
	}
}

func (s *scan) appendLiteral(raw string) {
	if n := len(s.stack); n > 0 {
		f := s.stack[n-1]
		f.literal.WriteString(raw)
		f.hasLit = true
		return
	}
	s.literal.WriteString(raw)
	s.hasLit = true
}

// nextPath returns the path of the next segment at the current depth.
func (s *scan) nextPath() []int {
	if n := len(s.stack); n > 0 {
		parent := s.stack[n-1].occ
		path := make([]int, len(parent.Position.Path)+1)
		copy(path, parent.Position.Path)
		path[len(path)-1] = len(parent.Children)
		return path
	}
	return []int{s.index}
}

func (s *scan) openTag(name, raw string, selfClosing bool) {
	s.flushCurrentLiteral()
	occ := &TagOccurrence{
		Name:        name,
		Attrs:       parseAttrs(raw, len(name)+1),
		Raw:         raw,
		SelfClosing: selfClosing,
		Closed:      selfClosing,
		Position: Position{
			Offset: s.offset,
			Line:   s.line,
			Column: s.col,
			Path:   s.nextPath(),
		},
	}
	if selfClosing {
		s.emit(occ)
		return
	}
	s.stack = append(s.stack, &frame{occ: occ})
}

// closeTag closes the innermost open frame named name, implicitly closing any
// frames opened after it. It reports false when no such frame is open.
func (s *scan) closeTag(name, raw string) bool {
	at := -1
	for i := len(s.stack) - 1; i >= 0; i-- {
		if s.stack[i].occ.Name == name {
			at = i
			break
		}
	}
	if at < 0 {
		return false
	}
	for len(s.stack)-1 > at {
		s.popFrame()
	}
	s.stack[at].occ.Closed = true
	s.stack[at].occ.EndRaw = raw
	s.popFrame()
	return true
}

func (s *scan) popFrame() {
	n := len(s.stack)
	f := s.stack[n-1]
	if f.hasLit {
		f.occ.Children = append(f.occ.Children, &Literal{Raw: f.literal.String()})
	}
	s.stack = s.stack[:n-1]
	s.emit(f.occ)
}

// emit appends a finished occurrence to its parent, or yields it when it is
// top-level.
func (s *scan) emit(occ *TagOccurrence) {
	if n := len(s.stack); n > 0 {
		parent := s.stack[n-1].occ
		parent.Children = append(parent.Children, occ)
		return
	}
	s.yieldTop(occ)
}

func (s *scan) flushCurrentLiteral() {
	if n := len(s.stack); n > 0 {
		f := s.stack[n-1]
		if f.hasLit {
			f.occ.Children = append(f.occ.Children, &Literal{Raw: f.literal.String()})
			f.literal.Reset()
			f.hasLit = false
		}
		return
	}
	s.flushTopLiteral()
}

func (s *scan) flushTopLiteral() {
	if !s.hasLit {
		return
	}
	lit := &Literal{Raw: s.literal.String()}
	s.literal.Reset()
	s.hasLit = false
	s.yieldTop(lit)
}

func (s *scan) yieldTop(seg Segment) {
	if s.stopped {
		return
	}
	s.index++
	if !s.yield(seg) {
		s.stopped = true
	}
}
