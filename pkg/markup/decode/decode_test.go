package decode

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	merrors "github.com/sambeau/cmarkup/pkg/markup/errors"
	"github.com/sambeau/cmarkup/pkg/markup/scanner"
	"github.com/sambeau/cmarkup/pkg/markup/tags"
)

var registry = tags.Default()

// decodeOne scans input, expects one top-level occurrence, and decodes it.
func decodeOne(t *testing.T, input string) Occurrence {
	t.Helper()
	segs := scanner.ScanAll(input, registry)
	require.Len(t, segs, 1)
	occ, ok := segs[0].(*scanner.TagOccurrence)
	require.True(t, ok)
	desc, ok := registry.Resolve(occ.Name)
	require.True(t, ok)
	return Decode(occ, desc)
}

func TestDecode_ValidInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
		check func(t *testing.T, a Attributes)
	}{
		{
			name:  "identifier",
			input: `<video-preview id="42"/>`,
			check: func(t *testing.T, a Attributes) {
				assert.Equal(t, "42", a.String("id"))
				assert.False(t, a.Has("only-display-title"))
			},
		},
		{
			name:  "valueless boolean",
			input: `<video-preview id="x" only-display-title/>`,
			check: func(t *testing.T, a Attributes) {
				assert.True(t, a.Bool("only-display-title"))
			},
		},
		{
			name:  "boolean named after itself",
			input: `<embedded-player id="x" autoplay="autoplay" playlist="false" start="12.5"/>`,
			check: func(t *testing.T, a Attributes) {
				assert.True(t, a.Bool("autoplay"))
				assert.False(t, a.Bool("playlist"))
				assert.True(t, a.Has("playlist"))
				assert.InDelta(t, 12.5, a.Number("start", 0), 0.0001)
			},
		},
		{
			name:  "identifier list",
			input: `<curated-video-list category-one-of="1, 2,15" language-one-of="" count="4"/>`,
			check: func(t *testing.T, a Attributes) {
				assert.Equal(t, []string{"1", "2", "15"}, a.List("category-one-of"))
				assert.Equal(t, []string{}, a.List("language-one-of"))
				assert.Equal(t, 4, a.Int("count", 10))
				assert.Equal(t, 3, a.Int("max-rows", 3))
			},
		},
		{
			name:  "one-of string",
			input: `<call-to-action-button label="Go" href="/x" theme="grey"></call-to-action-button>`,
			check: func(t *testing.T, a Attributes) {
				assert.Equal(t, "grey", a.String("theme"))
				assert.Equal(t, "Go", a.String("label"))
			},
		},
		{
			name:  "channel handle",
			input: `<channel-preview name="my_channel@video.example.com"/>`,
			check: func(t *testing.T, a Attributes) {
				assert.Equal(t, "my_channel@video.example.com", a.String("name"))
			},
		},
		{
			name:  "no attributes",
			input: `<instance-avatar/>`,
			check: func(t *testing.T, a Attributes) {
				assert.Empty(t, a)
				assert.Equal(t, 120, a.Int("size", 120))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decodeOne(t, tt.input)
			require.True(t, got.OK(), "unexpected rejection: %+v", got.Rejected)
			tt.check(t, got.Attrs)
		})
	}
}

func TestDecode_UnknownAttributesIgnored(t *testing.T) {
	got := decodeOne(t, `<video-preview id="1" class="big" data-x="y"/>`)
	require.True(t, got.OK())
	assert.False(t, got.Attrs.Has("class"))
	assert.False(t, got.Attrs.Has("data-x"))
}

func TestDecode_MissingRequired(t *testing.T) {
	got := decodeOne(t, `<video-preview/>`)
	require.False(t, got.OK())
	assert.Equal(t, "missing:id", got.Rejected.Reason)
	assert.True(t, errors.Is(got.Rejected.Err, merrors.ErrAttribute))
	assert.Equal(t, "ATTR-0001", got.Rejected.Err.Code)
	assert.Equal(t, 1, got.Rejected.Err.Line)
}

func TestDecode_FirstMissingInDeclarationOrder(t *testing.T) {
	got := decodeOne(t, `<call-to-action-button theme="orange"></call-to-action-button>`)
	require.False(t, got.OK())
	assert.Equal(t, "missing:label", got.Rejected.Reason)

	got = decodeOne(t, `<call-to-action-button label="Hi"></call-to-action-button>`)
	require.False(t, got.OK())
	assert.Equal(t, "missing:href", got.Rejected.Reason)
}

func TestDecode_BadType(t *testing.T) {
	tests := []struct {
		input  string
		reason string
	}{
		{`<embedded-player id="x" start="soon"/>`, "bad-type:start"},
		{`<embedded-player id="x" start="NaN"/>`, "bad-type:start"},
		{`<embedded-player id="x" autoplay="maybe"/>`, "bad-type:autoplay"},
		{`<video-preview id="has space"/>`, "bad-type:id"},
		{`<video-preview id=""/>`, "bad-type:id"},
		{`<curated-video-list category-one-of="1,,2"/>`, "bad-type:category-one-of"},
		{`<curated-video-list sort="random"/>`, "bad-type:sort"},
		{`<call-to-action-button label="a" href="b" theme="pink"/>`, "bad-type:theme"},
	}
	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			got := decodeOne(t, tt.input)
			require.False(t, got.OK())
			assert.Equal(t, tt.reason, got.Rejected.Reason)
			assert.Equal(t, merrors.ClassAttribute, got.Rejected.Err.Class)
			assert.Equal(t, "ATTR-0002", got.Rejected.Err.Code)
		})
	}
}

func TestUnknown(t *testing.T) {
	occ := &scanner.TagOccurrence{
		Name:     "mystery-widget",
		Position: scanner.Position{Line: 3, Column: 7, Path: []int{2}},
	}
	got := Unknown(occ)
	require.False(t, got.OK())
	assert.Equal(t, "unknown-tag:mystery-widget", got.Rejected.Reason)
	assert.True(t, errors.Is(got.Rejected.Err, merrors.ErrUnknownTag))
	assert.Equal(t, 3, got.Rejected.Err.Line)
	assert.Equal(t, "2", got.ID())
}

func TestDecode_DoesNotMutateOccurrence(t *testing.T) {
	segs := scanner.ScanAll(`<embedded-player id="x" start="3"/>`, registry)
	occ := segs[0].(*scanner.TagOccurrence)
	before := append(scanner.Attrs(nil), occ.Attrs...)
	desc, _ := registry.Resolve(occ.Name)

	first := Decode(occ, desc)
	second := Decode(occ, desc)
	assert.Equal(t, first.Attrs, second.Attrs)
	assert.Equal(t, before, occ.Attrs)
}
