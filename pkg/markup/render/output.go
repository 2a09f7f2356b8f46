package render

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"

	"github.com/sambeau/cmarkup/pkg/markup/dynamic"
)

// NodeKind tells how a node renders.
type NodeKind int

const (
	NodeLiteral  NodeKind = iota // source markup passed through
	NodeAnchor                   // mounted unit
	NodeFallback                 // occurrence that could not be mounted
)

func (k NodeKind) String() string {
	switch k {
	case NodeAnchor:
		return "anchor"
	case NodeFallback:
		return "fallback"
	default:
		return "literal"
	}
}

// Node is one element of a render pass's output, in document order.
type Node struct {
	Kind     NodeKind
	Raw      string             // NodeLiteral
	Tag      string             // NodeAnchor, NodeFallback
	Anchor   string             // occurrence path, e.g. "1.0"
	Instance dynamic.InstanceID // NodeAnchor
	Reason   string             // NodeFallback
	Children []Node
}

// Output is the assembled result of a pass.
type Output []Node

// UnitRenderer writes the HTML of a mounted unit.
type UnitRenderer interface {
	Render(id dynamic.InstanceID, w io.Writer, children string) error
}

// Fallback reasons set by the orchestrator in addition to decode rejections.
const (
	ReasonFetchFailed = "fetch-failed"
	ReasonMountFailed = "mount-failed"
)

// WriteHTML writes the output. Anchors delegate to units for their content.
func (o Output) WriteHTML(w io.Writer, units UnitRenderer) error {
	for i := range o {
		if err := o[i].writeHTML(w, units); err != nil {
			return err
		}
	}
	return nil
}

// HTML renders the output to a string.
func (o Output) HTML(units UnitRenderer) (string, error) {
	var sb strings.Builder
	if err := o.WriteHTML(&sb, units); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (n *Node) writeHTML(w io.Writer, units UnitRenderer) error {
	switch n.Kind {
	case NodeLiteral:
		_, err := io.WriteString(w, n.Raw)
		return err

	case NodeAnchor:
		children, err := Output(n.Children).HTML(units)
		if err != nil {
			return err
		}
		if _, err := io.WriteString(w, `<div class="custom-markup-anchor" data-markup-tag="`+html.EscapeString(n.Tag)+
			`" data-markup-anchor="`+html.EscapeString(n.Anchor)+`">`); err != nil {
			return err
		}
		if err := units.Render(n.Instance, w, children); err != nil {
			return err
		}
		_, err = io.WriteString(w, `</div>`)
		return err

	default:
		if _, err := io.WriteString(w, `<span class="custom-markup-fallback" data-markup-tag="`+html.EscapeString(n.Tag)+
			`" data-markup-reason="`+html.EscapeString(n.Reason)+`"></span>`); err != nil {
			return err
		}
		return Output(n.Children).WriteHTML(w, units)
	}
}

// Walk calls fn for every node depth-first, parents before children.
func (o Output) Walk(fn func(*Node)) {
	for i := range o {
		fn(&o[i])
		Output(o[i].Children).Walk(fn)
	}
}

// Count returns how many nodes have the given kind.
func (o Output) Count(kind NodeKind) int {
	n := 0
	o.Walk(func(node *Node) {
		if node.Kind == kind {
			n++
		}
	})
	return n
}

// WriteTree writes one line per node, children indented under their parent:
// literals with their text, anchors with their unit and fallbacks with
// their reason.
func (o Output) WriteTree(w io.Writer) error {
	return o.writeTree(w, 0)
}

func (o Output) writeTree(w io.Writer, depth int) error {
	indent := strings.Repeat("  ", depth)
	for _, n := range o {
		var err error
		switch n.Kind {
		case NodeLiteral:
			_, err = fmt.Fprintf(w, "%sliteral %q\n", indent, n.Raw)
		case NodeAnchor:
			_, err = fmt.Fprintf(w, "%sanchor <%s> %s unit=%d\n", indent, n.Tag, n.Anchor, n.Instance)
		default:
			_, err = fmt.Fprintf(w, "%sfallback <%s> %s reason=%s\n", indent, n.Tag, n.Anchor, n.Reason)
		}
		if err != nil {
			return err
		}
		if err := Output(n.Children).writeTree(w, depth+1); err != nil {
			return err
		}
	}
	return nil
}
