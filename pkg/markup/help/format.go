package help

import (
	"fmt"
	"html/template"
	"io"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FormatText formats a topic for terminal output with the given width.
func FormatText(t *Topic, width int) string {
	if width <= 0 {
		width = 80
	}

	var sb strings.Builder
	switch t.Kind {
	case "tag":
		formatTagText(&sb, t, width)
	case "tag-list":
		formatListText(&sb, t, width)
	default:
		fmt.Fprintf(&sb, "Unknown topic kind: %s\n", t.Kind)
	}
	return sb.String()
}

// FormatJSON formats a topic as JSON.
func FormatJSON(t *Topic) ([]byte, error) {
	return json.MarshalIndent(t, "", "  ")
}

func formatTagText(sb *strings.Builder, t *Topic, width int) {
	fmt.Fprintf(sb, "<%s>\n", t.Name)
	if t.Summary != "" {
		fmt.Fprintf(sb, "\n%s\n", wrap(t.Summary, width, ""))
	}

	if len(t.Attributes) == 0 {
		sb.WriteString("\n(no attributes)\n")
	} else {
		sb.WriteString("\nAttributes:\n")
		maxLen := 0
		for _, a := range t.Attributes {
			if n := len(attrDisplay(a)); n > maxLen {
				maxLen = n
			}
		}
		for _, a := range t.Attributes {
			display := attrDisplay(a)
			padding := strings.Repeat(" ", maxLen-len(display)+2)
			desc := a.Description
			if len(a.OneOf) > 0 {
				desc += " (one of: " + strings.Join(a.OneOf, ", ") + ")"
			}
			indent := strings.Repeat(" ", maxLen+4)
			fmt.Fprintf(sb, "  %s%s%s\n", display, padding, strings.TrimPrefix(wrap(desc, width, indent), indent))
		}
	}

	if t.Example != "" {
		fmt.Fprintf(sb, "\nExample:\n  %s\n", t.Example)
	}
}

func attrDisplay(a AttributeEntry) string {
	marker := "?"
	if a.Required {
		marker = ""
	}
	return fmt.Sprintf("%s%s: %s", a.Name, marker, a.Type)
}

func formatListText(sb *strings.Builder, t *Topic, width int) {
	sb.WriteString("Custom Markup Tags\n")
	sb.WriteString("==================\n\n")

	maxLen := 0
	for _, e := range t.Tags {
		if len(e.Name) > maxLen {
			maxLen = len(e.Name)
		}
	}
	indent := strings.Repeat(" ", maxLen+4)
	for _, e := range t.Tags {
		padding := strings.Repeat(" ", maxLen-len(e.Name)+2)
		fmt.Fprintf(sb, "  %s%s%s\n", e.Name, padding, strings.TrimPrefix(wrap(e.Summary, width, indent), indent))
	}
	sb.WriteString("\nUse 'help <tag>' for the attributes of a tag.\n")
}

// wrap breaks s into lines no longer than width, prefixing each with indent.
func wrap(s string, width int, indent string) string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return ""
	}
	var sb strings.Builder
	line := indent
	for _, w := range words {
		if line != indent && len(line)+1+len(w) > width {
			sb.WriteString(line)
			sb.WriteByte('\n')
			line = indent
		}
		if line != indent {
			line += " "
		}
		line += w
	}
	sb.WriteString(line)
	return sb.String()
}

var htmlTemplate = template.Must(template.New("help").Parse(`<section class="custom-markup-help">
{{- range .}}
<article class="custom-markup-help-tag" id="tag-{{.Name}}">
<h3><code>&lt;{{.Name}}&gt;</code></h3>
{{- if .Summary}}
<p>{{.Summary}}</p>
{{- end}}
{{- if .Attributes}}
<table>
<thead><tr><th>Attribute</th><th>Type</th><th>Required</th><th>Description</th></tr></thead>
<tbody>
{{- range .Attributes}}
<tr><td><code>{{.Name}}</code></td><td>{{.Type}}</td><td>{{if .Required}}yes{{else}}no{{end}}</td><td>{{.Description}}{{if .OneOf}} (one of: {{range $i, $v := .OneOf}}{{if $i}}, {{end}}<code>{{$v}}</code>{{end}}){{end}}</td></tr>
{{- end}}
</tbody>
</table>
{{- end}}
{{- if .Example}}
<pre><code>{{.Example}}</code></pre>
{{- end}}
</article>
{{- end}}
</section>
`))

// WriteHTML writes documentation for the given tag topics as an HTML fragment.
func WriteHTML(w io.Writer, topics []*Topic) error {
	return htmlTemplate.Execute(w, topics)
}
