package tags

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_ResolvesEveryVariant(t *testing.T) {
	reg := Default()

	for k := KindVideoPreview; k <= KindInstanceAvatar; k++ {
		d, ok := reg.Resolve(k.String())
		require.True(t, ok, "variant %s not registered", k)
		assert.Equal(t, k, d.Kind)

		byKind, ok := reg.ByKind(k)
		require.True(t, ok)
		assert.Equal(t, d.Name, byKind.Name)
	}
	assert.Len(t, reg.Names(), 8)
}

func TestResolve_IsCaseSensitive(t *testing.T) {
	reg := Default()

	_, ok := reg.Resolve("Video-Preview")
	assert.False(t, ok)
	assert.False(t, reg.Known("VIDEO-PREVIEW"))
	assert.True(t, reg.Known("video-preview"))
}

func TestResolve_NotFound(t *testing.T) {
	_, ok := Default().Resolve("peertube-container")
	assert.False(t, ok)
}

func TestDescriptor_Attr(t *testing.T) {
	d, _ := Default().Resolve("embedded-player")

	spec, required, ok := d.Attr("id")
	require.True(t, ok)
	assert.True(t, required)
	assert.Equal(t, Identifier, spec.Type)

	spec, required, ok = d.Attr("start")
	require.True(t, ok)
	assert.False(t, required)
	assert.Equal(t, Number, spec.Type)

	_, _, ok = d.Attr("nope")
	assert.False(t, ok)
}

func TestNeedsFetch(t *testing.T) {
	reg := Default()
	button, _ := reg.Resolve("call-to-action-button")
	assert.False(t, button.NeedsFetch)

	video, _ := reg.Resolve("video-preview")
	assert.True(t, video.NeedsFetch)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "curated-video-list", KindCuratedVideoList.String())
	assert.Equal(t, "invalid", KindInvalid.String())
	assert.Equal(t, "identifier-list", IdentifierList.String())
}
