package scanner

import (
	"fmt"
	"strings"
)

// Segment is either a *Literal or a *TagOccurrence.
type Segment interface {
	segment()
}

// Literal is markup passed through verbatim.
type Literal struct {
	Raw string
}

func (*Literal) segment() {}

// Attr is one raw attribute of a tag occurrence.
type Attr struct {
	Key string
	Val string
}

// Attrs keeps attributes in document order. Keys are unique: a repeated key
// keeps its first position and takes the last value.
type Attrs []Attr

// Get returns the raw value for key.
func (a Attrs) Get(key string) (string, bool) {
	for _, attr := range a {
		if attr.Key == key {
			return attr.Val, true
		}
	}
	return "", false
}

// Keys returns attribute keys in document order.
func (a Attrs) Keys() []string {
	keys := make([]string, len(a))
	for i, attr := range a {
		keys[i] = attr.Key
	}
	return keys
}

func (a Attrs) set(key, val string) Attrs {
	for i := range a {
		if a[i].Key == key {
			a[i].Val = val
			return a
		}
	}
	return append(a, Attr{Key: key, Val: val})
}

// Position locates an occurrence in the scanned input.
type Position struct {
	Offset int   // byte offset of '<'
	Line   int   // 1-based
	Column int   // 1-based, in bytes
	Path   []int // sibling index at each nesting level
}

// Depth is the nesting level; top-level occurrences have depth 0.
func (p Position) Depth() int {
	return len(p.Path) - 1
}

// ID renders the path as a stable identifier such as "2.0.1".
func (p Position) ID() string {
	parts := make([]string, len(p.Path))
	for i, n := range p.Path {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, ".")
}

// TagOccurrence is one recognized custom element.
type TagOccurrence struct {
	Name        string
	Attrs       Attrs
	Position    Position
	Raw         string // source text of the start tag
	EndRaw      string // source text of the end tag, if any
	SelfClosing bool
	Closed      bool // an explicit end tag was found
	Children    []Segment
}

func (*TagOccurrence) segment() {}

// Walk calls fn for every segment depth-first, parents before children.
// Returning false from fn skips the segment's children.
func Walk(segs []Segment, fn func(Segment) bool) {
	for _, s := range segs {
		if !fn(s) {
			continue
		}
		if occ, ok := s.(*TagOccurrence); ok {
			Walk(occ.Children, fn)
		}
	}
}
