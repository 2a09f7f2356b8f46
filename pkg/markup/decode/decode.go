// Package decode validates tag occurrences against their descriptors and
// coerces raw attribute strings into typed values.
package decode

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"

	merrors "github.com/sambeau/cmarkup/pkg/markup/errors"
	"github.com/sambeau/cmarkup/pkg/markup/scanner"
	"github.com/sambeau/cmarkup/pkg/markup/tags"
)

// Attributes holds typed attribute values. Values are string, float64, bool
// or []string depending on the declared AttrType.
type Attributes map[string]any

// String returns a string attribute or "".
func (a Attributes) String(key string) string {
	s, _ := a[key].(string)
	return s
}

// Number returns a number attribute or def when absent.
func (a Attributes) Number(key string, def float64) float64 {
	if n, ok := a[key].(float64); ok {
		return n
	}
	return def
}

// Int returns a number attribute truncated to int, or def when absent.
func (a Attributes) Int(key string, def int) int {
	if n, ok := a[key].(float64); ok {
		return int(n)
	}
	return def
}

// Bool returns a boolean attribute or false when absent.
func (a Attributes) Bool(key string) bool {
	b, _ := a[key].(bool)
	return b
}

// List returns an identifier-list attribute or nil.
func (a Attributes) List(key string) []string {
	l, _ := a[key].([]string)
	return l
}

// Has reports whether key was present in the source tag.
func (a Attributes) Has(key string) bool {
	_, ok := a[key]
	return ok
}

// Rejection explains why an occurrence will render as a fallback marker.
type Rejection struct {
	Reason string // "missing:<key>", "bad-type:<key>" or "unknown-tag:<name>"
	Err    *merrors.MarkupError
}

// Occurrence is a tag occurrence after decoding. Exactly one of Attrs and
// Rejected is meaningful.
type Occurrence struct {
	Tag        *scanner.TagOccurrence
	Descriptor tags.Descriptor
	Attrs      Attributes
	Rejected   *Rejection
}

// OK reports whether the occurrence decoded successfully.
func (o Occurrence) OK() bool {
	return o.Rejected == nil
}

// ID is the occurrence's stable position identifier.
func (o Occurrence) ID() string {
	return o.Tag.Position.ID()
}

// Unknown builds the rejection for a tag name the registry does not know.
func Unknown(occ *scanner.TagOccurrence) Occurrence {
	err := merrors.UnknownTag(occ.Name).WithPosition(occ.Position.Line, occ.Position.Column)
	return Occurrence{
		Tag:      occ,
		Rejected: &Rejection{Reason: "unknown-tag:" + occ.Name, Err: err},
	}
}

// Decode validates occ against desc. It never panics and never returns an
// error: failures are reported through Occurrence.Rejected.
func Decode(occ *scanner.TagOccurrence, desc tags.Descriptor) Occurrence {
	out := Occurrence{Tag: occ, Descriptor: desc}
	attrs := make(Attributes, len(desc.Required)+len(desc.Optional))

	for _, spec := range desc.Required {
		if _, ok := occ.Attrs.Get(spec.Key); !ok {
			return reject(out, "missing:"+spec.Key, merrors.MissingAttribute(occ.Name, spec.Key))
		}
	}
	for _, group := range [][]tags.AttrSpec{desc.Required, desc.Optional} {
		for _, spec := range group {
			raw, ok := occ.Attrs.Get(spec.Key)
			if !ok {
				continue
			}
			v, err := coerce(spec, raw)
			if err != nil {
				return reject(out, "bad-type:"+spec.Key, merrors.BadAttributeType(occ.Name, spec.Key, spec.Type.String(), err))
			}
			attrs[spec.Key] = v
		}
	}

	out.Attrs = attrs
	return out
}

func reject(out Occurrence, reason string, err *merrors.MarkupError) Occurrence {
	pos := out.Tag.Position
	out.Rejected = &Rejection{Reason: reason, Err: err.WithPosition(pos.Line, pos.Column)}
	return out
}

var identifierRe = regexp.MustCompile(`^[A-Za-z0-9_.:@-]+$`)

func coerce(spec tags.AttrSpec, raw string) (any, error) {
	switch spec.Type {
	case tags.Number:
		return parseNumber(raw)
	case tags.Boolean:
		return parseBool(spec.Key, raw)
	case tags.Identifier:
		return parseIdentifier(raw)
	case tags.IdentifierList:
		return parseIdentifierList(raw)
	default:
		if len(spec.OneOf) > 0 && !slices.Contains(spec.OneOf, raw) {
			return nil, fmt.Errorf("%q is not one of %s", raw, strings.Join(spec.OneOf, ", "))
		}
		return raw, nil
	}
}

func parseNumber(raw string) (float64, error) {
	n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, fmt.Errorf("%q is not a finite number", raw)
	}
	return n, nil
}

// parseBool accepts HTML boolean attribute forms: present with no value or
// with its own name means true.
func parseBool(key, raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "true", "1", key:
		return true, nil
	case "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("%q is not a boolean", raw)
}

func parseIdentifier(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if !identifierRe.MatchString(id) {
		return "", fmt.Errorf("%q is not an identifier", raw)
	}
	return id, nil
}

func parseIdentifierList(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return []string{}, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		id, err := parseIdentifier(p)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}
