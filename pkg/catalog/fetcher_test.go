package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sambeau/cmarkup/pkg/markup/decode"
	"github.com/sambeau/cmarkup/pkg/markup/tags"
)

func TestFetcher_Dispatch(t *testing.T) {
	f := NewFetcher(seededStore(t), Instance{Name: "fallback"})
	ctx := context.Background()

	data, err := f.Fetch(ctx, tags.KindVideoPreview, decode.Attributes{"id": "11"})
	require.NoError(t, err)
	assert.Equal(t, "Sprite Fright", data.(*Video).Name)

	data, err = f.Fetch(ctx, tags.KindEmbeddedPlayer, decode.Attributes{"id": "21", "playlist": true})
	require.NoError(t, err)
	assert.Equal(t, "Open Movies", data.(*Playlist).DisplayName)

	data, err = f.Fetch(ctx, tags.KindPlaylistPreview, decode.Attributes{"id": "21"})
	require.NoError(t, err)
	assert.IsType(t, &Playlist{}, data)

	data, err = f.Fetch(ctx, tags.KindCuratedVideoList, decode.Attributes{"count": float64(2), "sort": "-views"})
	require.NoError(t, err)
	assert.Len(t, data.([]Video), 2)

	data, err = f.Fetch(ctx, tags.KindInstanceAvatar, decode.Attributes{})
	require.NoError(t, err)
	assert.Equal(t, "Framatube", data.(*Instance).Name)

	data, err = f.Fetch(ctx, tags.KindCallToActionButton, decode.Attributes{"label": "x", "href": "/"})
	require.NoError(t, err)
	assert.Nil(t, data)

	_, err = f.Fetch(ctx, tags.KindInvalid, nil)
	assert.Error(t, err)
}

func TestFetcher_ChannelPreview(t *testing.T) {
	f := NewFetcher(seededStore(t), Instance{})
	ctx := context.Background()

	data, err := f.Fetch(ctx, tags.KindChannelPreview, decode.Attributes{"name": "blender"})
	require.NoError(t, err)
	preview := data.(*ChannelPreview)
	assert.Equal(t, "Blender Studio", preview.Channel.DisplayName)
	assert.Nil(t, preview.Latest)

	data, err = f.Fetch(ctx, tags.KindChannelPreview, decode.Attributes{"name": "blender", "display-latest-video": true})
	require.NoError(t, err)
	require.NotNil(t, data.(*ChannelPreview).Latest)
	assert.Equal(t, "Live modelling session", data.(*ChannelPreview).Latest.Name)

	data, err = f.Fetch(ctx, tags.KindChannelPreview, decode.Attributes{"name": "quiet", "display-latest-video": true})
	require.NoError(t, err)
	assert.Nil(t, data.(*ChannelPreview).Latest)

	_, err = f.Fetch(ctx, tags.KindChannelPreview, decode.Attributes{"name": "nobody"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFetcher_InstanceFallback(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, "sqlite", ":memory:")
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Migrate(ctx))

	f := NewFetcher(s, Instance{Name: "Configured", AvatarPath: "/a.png"})
	data, err := f.Fetch(ctx, tags.KindInstanceBanner, decode.Attributes{})
	require.NoError(t, err)
	assert.Equal(t, "Configured", data.(*Instance).Name)
}
