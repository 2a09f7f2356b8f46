package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/sambeau/cmarkup/pkg/markup/decode"
	"github.com/sambeau/cmarkup/pkg/markup/tags"
)

// Fetcher resolves the data a tag variant needs from a Source.
type Fetcher struct {
	source   Source
	fallback Instance
}

// NewFetcher returns a Fetcher reading from src. fallback describes the
// instance when the source has none stored.
func NewFetcher(src Source, fallback Instance) *Fetcher {
	return &Fetcher{source: src, fallback: fallback}
}

// Fetch returns the data for one tag occurrence. The concrete type depends
// on kind: *Video, *Playlist, *ChannelPreview, []Video or *Instance.
func (f *Fetcher) Fetch(ctx context.Context, kind tags.Kind, attrs decode.Attributes) (any, error) {
	switch kind {
	case tags.KindVideoPreview:
		return f.source.Video(ctx, attrs.String("id"))

	case tags.KindPlaylistPreview:
		return f.source.Playlist(ctx, attrs.String("id"))

	case tags.KindEmbeddedPlayer:
		if attrs.Bool("playlist") {
			return f.source.Playlist(ctx, attrs.String("id"))
		}
		return f.source.Video(ctx, attrs.String("id"))

	case tags.KindChannelPreview:
		return f.channelPreview(ctx, attrs)

	case tags.KindCuratedVideoList:
		return f.source.Videos(ctx, VideoQuery{
			Sort:          attrs.String("sort"),
			Count:         attrs.Int("count", DefaultCount),
			CategoryOneOf: attrs.List("category-one-of"),
			LanguageOneOf: attrs.List("language-one-of"),
			Channel:       attrs.String("channel"),
			Account:       attrs.String("account"),
			IsLive:        attrs.Bool("is-live"),
			IsLocal:       attrs.Bool("is-local"),
		})

	case tags.KindInstanceBanner, tags.KindInstanceAvatar:
		return f.instance(ctx)

	case tags.KindCallToActionButton:
		return nil, nil
	}
	return nil, fmt.Errorf("no data source for %s", kind)
}

func (f *Fetcher) channelPreview(ctx context.Context, attrs decode.Attributes) (*ChannelPreview, error) {
	handle := attrs.String("name")
	c, err := f.source.Channel(ctx, handle)
	if err != nil {
		return nil, err
	}
	preview := &ChannelPreview{Channel: *c}
	if !attrs.Bool("display-latest-video") {
		return preview, nil
	}
	latest, err := f.source.LatestVideo(ctx, handle)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return nil, err
	default:
		preview.Latest = latest
	}
	return preview, nil
}

func (f *Fetcher) instance(ctx context.Context) (*Instance, error) {
	inst, err := f.source.Instance(ctx)
	if errors.Is(err, ErrNotFound) {
		fallback := f.fallback
		return &fallback, nil
	}
	return inst, err
}
