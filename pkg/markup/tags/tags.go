// Package tags defines the closed vocabulary of custom markup tags.
//
// Each variant is identified by a Kind and described by a Descriptor that
// lists its attribute schema in declaration order and whether mounting it
// requires a data fetch. The Registry is immutable once built.
package tags

import "sort"

// Kind enumerates the renderable variants.
type Kind int

const (
	KindInvalid Kind = iota
	KindVideoPreview
	KindPlaylistPreview
	KindChannelPreview
	KindEmbeddedPlayer
	KindCallToActionButton
	KindCuratedVideoList
	KindInstanceBanner
	KindInstanceAvatar
)

var kindNames = map[Kind]string{
	KindVideoPreview:       "video-preview",
	KindPlaylistPreview:    "playlist-preview",
	KindChannelPreview:     "channel-preview",
	KindEmbeddedPlayer:     "embedded-player",
	KindCallToActionButton: "call-to-action-button",
	KindCuratedVideoList:   "curated-video-list",
	KindInstanceBanner:     "instance-banner",
	KindInstanceAvatar:     "instance-avatar",
}

// String returns the tag name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "invalid"
}

// AttrType is the declared type of an attribute value.
type AttrType int

const (
	String AttrType = iota
	Number
	Boolean
	Identifier
	IdentifierList
)

func (t AttrType) String() string {
	switch t {
	case Number:
		return "number"
	case Boolean:
		return "boolean"
	case Identifier:
		return "identifier"
	case IdentifierList:
		return "identifier-list"
	default:
		return "string"
	}
}

// AttrSpec declares one attribute of a tag.
type AttrSpec struct {
	Key   string
	Type  AttrType
	OneOf []string // allowed values for String attributes; empty means any
	Doc   string
}

// Descriptor describes one variant. Required and Optional keep declaration
// order, which decides the reported key when several are missing.
type Descriptor struct {
	Name       string
	Kind       Kind
	Required   []AttrSpec
	Optional   []AttrSpec
	NeedsFetch bool
	Summary    string
}

// Attr returns the spec for key and whether it is required.
func (d Descriptor) Attr(key string) (AttrSpec, bool, bool) {
	for _, a := range d.Required {
		if a.Key == key {
			return a, true, true
		}
	}
	for _, a := range d.Optional {
		if a.Key == key {
			return a, false, true
		}
	}
	return AttrSpec{}, false, false
}

// Registry maps tag names to descriptors. Lookups are case-sensitive.
type Registry struct {
	byName map[string]Descriptor
	byKind map[Kind]Descriptor
}

// NewRegistry builds a registry from descriptors. A later descriptor with the
// same name replaces an earlier one.
func NewRegistry(descs ...Descriptor) *Registry {
	r := &Registry{
		byName: make(map[string]Descriptor, len(descs)),
		byKind: make(map[Kind]Descriptor, len(descs)),
	}
	for _, d := range descs {
		r.byName[d.Name] = d
		r.byKind[d.Kind] = d
	}
	return r
}

// Resolve returns the descriptor registered under name.
func (r *Registry) Resolve(name string) (Descriptor, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// Known reports whether name is a registered tag.
func (r *Registry) Known(name string) bool {
	_, ok := r.byName[name]
	return ok
}

// ByKind returns the descriptor for a variant kind.
func (r *Registry) ByKind(k Kind) (Descriptor, bool) {
	d, ok := r.byKind[k]
	return d, ok
}

// Names returns the registered tag names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Descriptors returns every descriptor ordered by tag name.
func (r *Registry) Descriptors() []Descriptor {
	names := r.Names()
	out := make([]Descriptor, 0, len(names))
	for _, name := range names {
		out = append(out, r.byName[name])
	}
	return out
}
