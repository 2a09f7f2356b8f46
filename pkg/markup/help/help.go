// Package help documents the custom markup tags of a registry. It backs
// `cmarkup tags` on the command line, `:help` in the REPL and the
// /api/v1/markup/help endpoint.
package help

import (
	"fmt"
	"strings"

	"github.com/sambeau/cmarkup/pkg/markup/tags"
)

// Topic is the help output for one tag or for the tag list.
type Topic struct {
	Kind       string           `json:"kind"` // "tag" or "tag-list"
	Name       string           `json:"name"`
	Summary    string           `json:"summary,omitempty"`
	NeedsFetch bool             `json:"needs_fetch,omitempty"`
	Attributes []AttributeEntry `json:"attributes,omitempty"`
	Example    string           `json:"example,omitempty"`
	Tags       []TagEntry       `json:"tags,omitempty"`
}

// AttributeEntry documents one attribute.
type AttributeEntry struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Required    bool     `json:"required"`
	OneOf       []string `json:"one_of,omitempty"`
	Description string   `json:"description,omitempty"`
}

// TagEntry is one row of the tag list.
type TagEntry struct {
	Name    string `json:"name"`
	Summary string `json:"summary"`
}

// Describe returns help for topic. An empty topic or "tags" lists every
// registered tag; anything else is looked up as a tag name. Surrounding
// angle brackets are ignored so "<video-preview>" works too.
func Describe(reg *tags.Registry, topic string) (*Topic, error) {
	topic = strings.TrimSpace(topic)
	topic = strings.TrimSuffix(strings.TrimPrefix(topic, "<"), ">")

	if topic == "" || topic == "tags" {
		return describeList(reg), nil
	}
	if d, ok := reg.Resolve(topic); ok {
		return describeTag(d), nil
	}
	return nil, unknownTopicError(reg, topic)
}

// All returns help for every registered tag, ordered by name.
func All(reg *tags.Registry) []*Topic {
	descs := reg.Descriptors()
	out := make([]*Topic, 0, len(descs))
	for _, d := range descs {
		out = append(out, describeTag(d))
	}
	return out
}

func describeList(reg *tags.Registry) *Topic {
	result := &Topic{Kind: "tag-list", Name: "tags"}
	for _, d := range reg.Descriptors() {
		result.Tags = append(result.Tags, TagEntry{Name: d.Name, Summary: d.Summary})
	}
	return result
}

func describeTag(d tags.Descriptor) *Topic {
	result := &Topic{
		Kind:       "tag",
		Name:       d.Name,
		Summary:    d.Summary,
		NeedsFetch: d.NeedsFetch,
		Example:    Example(d),
	}
	for _, a := range d.Required {
		result.Attributes = append(result.Attributes, attributeEntry(a, true))
	}
	for _, a := range d.Optional {
		result.Attributes = append(result.Attributes, attributeEntry(a, false))
	}
	return result
}

func attributeEntry(a tags.AttrSpec, required bool) AttributeEntry {
	return AttributeEntry{
		Name:        a.Key,
		Type:        a.Type.String(),
		Required:    required,
		OneOf:       a.OneOf,
		Description: a.Doc,
	}
}

// Example builds a minimal usage of the tag with placeholder values for its
// required attributes.
func Example(d tags.Descriptor) string {
	var sb strings.Builder
	sb.WriteString("<" + d.Name)
	for _, a := range d.Required {
		fmt.Fprintf(&sb, " %s=%q", a.Key, placeholder(a))
	}
	sb.WriteString("></" + d.Name + ">")
	return sb.String()
}

func placeholder(a tags.AttrSpec) string {
	if len(a.OneOf) > 0 {
		return a.OneOf[0]
	}
	switch a.Type {
	case tags.Number:
		return "1"
	case tags.Boolean:
		return "true"
	case tags.IdentifierList:
		return "a,b"
	}
	return a.Key
}

func unknownTopicError(reg *tags.Registry, topic string) error {
	suggestions := findSuggestions(reg, topic)
	if len(suggestions) > 0 {
		return fmt.Errorf("unknown tag: %s\nDid you mean: %s?", topic, strings.Join(suggestions, ", "))
	}
	return fmt.Errorf("unknown tag: %s\nTry: tags", topic)
}

func findSuggestions(reg *tags.Registry, topic string) []string {
	topic = strings.ToLower(topic)
	names := reg.Names()
	seen := make(map[string]bool)
	var suggestions []string
	// Closer matches first: same name ignoring case, substring, shared word.
	for _, match := range []func(string) bool{
		func(n string) bool { return n == topic },
		func(n string) bool { return strings.Contains(n, topic) || strings.Contains(topic, n) },
		func(n string) bool { return sharesWord(n, topic) },
	} {
		for _, name := range names {
			if !seen[name] && match(strings.ToLower(name)) {
				seen[name] = true
				suggestions = append(suggestions, name)
			}
		}
	}
	if len(suggestions) > 3 {
		suggestions = suggestions[:3]
	}
	return suggestions
}

// sharesWord reports whether a and b have a dash-separated word of at least
// four letters in common, so "video" finds "video-preview".
func sharesWord(a, b string) bool {
	for _, wa := range strings.Split(a, "-") {
		if len(wa) < 4 {
			continue
		}
		for _, wb := range strings.Split(b, "-") {
			if wa == wb {
				return true
			}
		}
	}
	return false
}
