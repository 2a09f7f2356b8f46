// Package units provides the renderable unit for every tag variant and the
// factory table the dynamic element service dispatches on.
package units

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/sambeau/cmarkup/pkg/catalog"
	"github.com/sambeau/cmarkup/pkg/markup/decode"
	"github.com/sambeau/cmarkup/pkg/markup/dynamic"
	"github.com/sambeau/cmarkup/pkg/markup/tags"
)

// ErrClosed is returned when rendering a unit after Close.
var ErrClosed = errors.New("unit is closed")

// Options configures how units render.
type Options struct {
	// BaseURL prefixes relative paths, e.g. thumbnails served by a remote
	// instance. Empty keeps paths relative.
	BaseURL string
	// Now is the clock used for relative dates. Defaults to time.Now.
	Now func() time.Time
}

func (o *Options) absolute(path string) string {
	if path == "" || o.BaseURL == "" || strings.Contains(path, "://") {
		return path
	}
	return strings.TrimSuffix(o.BaseURL, "/") + "/" + strings.TrimPrefix(path, "/")
}

func (o *Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// Factories returns the factory for every built-in variant.
func Factories(opts Options) map[tags.Kind]dynamic.Factory {
	o := &opts
	return map[tags.Kind]dynamic.Factory{
		tags.KindVideoPreview:       o.videoPreview,
		tags.KindPlaylistPreview:    o.playlistPreview,
		tags.KindChannelPreview:     o.channelPreview,
		tags.KindEmbeddedPlayer:     o.embeddedPlayer,
		tags.KindCallToActionButton: o.callToActionButton,
		tags.KindCuratedVideoList:   o.curatedVideoList,
		tags.KindInstanceBanner:     o.instanceBanner,
		tags.KindInstanceAvatar:     o.instanceAvatar,
	}
}

// unit renders one named template with a fixed view model.
type unit struct {
	name   string
	view   any
	closed atomic.Bool
}

func newUnit(name string, view any) *unit {
	return &unit{name: name, view: view}
}

func (u *unit) Render(w io.Writer, children string) error {
	if u.closed.Load() {
		return ErrClosed
	}
	if err := templates.ExecuteTemplate(w, u.name, u.view); err != nil {
		return fmt.Errorf("rendering %s: %w", u.name, err)
	}
	_, err := io.WriteString(w, children)
	return err
}

func (u *unit) Close() error {
	if !u.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	return nil
}

func dataAs[T any](kind tags.Kind, data any) (T, error) {
	v, ok := data.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s: unexpected data %T", kind, data)
	}
	return v, nil
}

type videoView struct {
	Opts         *Options
	Video        *catalog.Video
	OnlyTitle    bool
	Duration     string
	Views        string
	Published    string
	PublishedISO string
}

func (o *Options) newVideoView(v *catalog.Video, onlyTitle bool) *videoView {
	view := &videoView{
		Opts:      o,
		Video:     v,
		OnlyTitle: onlyTitle,
		Duration:  formatDuration(v.Duration, v.IsLive),
		Views:     formatViews(v.Views),
	}
	if !v.PublishedAt.IsZero() {
		view.Published = humanize.RelTime(v.PublishedAt, o.now(), "ago", "from now")
		view.PublishedISO = v.PublishedAt.Format(time.RFC3339)
	}
	return view
}

func (o *Options) videoPreview(ctx context.Context, occ decode.Occurrence, data any) (dynamic.Unit, error) {
	v, err := dataAs[*catalog.Video](tags.KindVideoPreview, data)
	if err != nil {
		return nil, err
	}
	return newUnit("video-preview", o.newVideoView(v, occ.Attrs.Bool("only-display-title"))), nil
}

type playlistView struct {
	Opts     *Options
	Playlist *catalog.Playlist
	Length   string
}

func (o *Options) playlistPreview(ctx context.Context, occ decode.Occurrence, data any) (dynamic.Unit, error) {
	p, err := dataAs[*catalog.Playlist](tags.KindPlaylistPreview, data)
	if err != nil {
		return nil, err
	}
	return newUnit("playlist-preview", &playlistView{
		Opts:     o,
		Playlist: p,
		Length:   plural(int64(p.VideosLength), "video", "videos"),
	}), nil
}

type channelView struct {
	Opts            *Options
	Channel         catalog.Channel
	Path            string
	Followers       string
	ShowDescription bool
	Latest          *videoView
}

func (o *Options) channelPreview(ctx context.Context, occ decode.Occurrence, data any) (dynamic.Unit, error) {
	preview, err := dataAs[*catalog.ChannelPreview](tags.KindChannelPreview, data)
	if err != nil {
		return nil, err
	}
	view := &channelView{
		Opts:            o,
		Channel:         preview.Channel,
		Path:            "/c/" + preview.Channel.Handle,
		Followers:       plural(preview.Channel.Followers, "subscriber", "subscribers"),
		ShowDescription: occ.Attrs.Bool("display-description"),
	}
	if occ.Attrs.Bool("display-latest-video") && preview.Latest != nil {
		view.Latest = o.newVideoView(preview.Latest, false)
	}
	return newUnit("channel-preview", view), nil
}

type playerView struct {
	Title string
	Src   string
}

func (o *Options) embeddedPlayer(ctx context.Context, occ decode.Occurrence, data any) (dynamic.Unit, error) {
	var (
		path  string
		title string
	)
	switch d := data.(type) {
	case *catalog.Video:
		path, title = "/videos/embed/"+d.UUID, d.Name
	case *catalog.Playlist:
		path, title = "/video-playlists/embed/"+d.UUID, d.DisplayName
	default:
		return nil, fmt.Errorf("%s: unexpected data %T", tags.KindEmbeddedPlayer, data)
	}
	if t := occ.Attrs.String("title"); t != "" {
		title = t
	}

	q := url.Values{}
	if occ.Attrs.Bool("autoplay") {
		q.Set("autoplay", "1")
	}
	if start := occ.Attrs.Int("start", 0); start > 0 {
		q.Set("start", strconv.Itoa(start)+"s")
	}
	src := o.absolute(path)
	if len(q) > 0 {
		src += "?" + q.Encode()
	}
	return newUnit("embedded-player", &playerView{Title: title, Src: src}), nil
}

type buttonView struct {
	Classes  string
	Href     string
	Label    string
	Icon     string
	Blank    bool
	Disabled bool
}

// buttonClasses lists CSS classes in a fixed order.
func buttonClasses(label, href, theme, icon string, disabled, responsive bool) string {
	if theme == "" {
		theme = "grey"
	}
	var classes []string
	if href == "" {
		classes = append(classes, "peertube-button")
	} else {
		classes = append(classes, "peertube-button-link")
	}
	classes = append(classes, theme+"-button")
	if disabled {
		classes = append(classes, "disabled")
	}
	if label == "" {
		classes = append(classes, "icon-only")
	}
	if icon != "" {
		classes = append(classes, "has-icon")
	}
	if responsive {
		classes = append(classes, "responsive-label")
	}
	return strings.Join(classes, " ")
}

func (o *Options) callToActionButton(ctx context.Context, occ decode.Occurrence, data any) (dynamic.Unit, error) {
	a := occ.Attrs
	return newUnit("call-to-action-button", &buttonView{
		Classes:  buttonClasses(a.String("label"), a.String("href"), a.String("theme"), a.String("icon"), a.Bool("disabled"), a.Bool("responsive-label")),
		Href:     a.String("href"),
		Label:    a.String("label"),
		Icon:     a.String("icon"),
		Blank:    a.Bool("blank-target"),
		Disabled: a.Bool("disabled"),
	}), nil
}

type listView struct {
	Title       string
	Description string
	MaxRows     int
	Videos      []*videoView
}

func (o *Options) curatedVideoList(ctx context.Context, occ decode.Occurrence, data any) (dynamic.Unit, error) {
	videos, err := dataAs[[]catalog.Video](tags.KindCuratedVideoList, data)
	if err != nil {
		return nil, err
	}
	view := &listView{
		Title:       occ.Attrs.String("title"),
		Description: occ.Attrs.String("description"),
		MaxRows:     occ.Attrs.Int("max-rows", 0),
	}
	onlyTitle := occ.Attrs.Bool("only-display-title")
	for i := range videos {
		view.Videos = append(view.Videos, o.newVideoView(&videos[i], onlyTitle))
	}
	return newUnit("curated-video-list", view), nil
}

type instanceView struct {
	Name          string
	Src           string
	Size          int
	RevertPadding bool
}

func (o *Options) instanceBanner(ctx context.Context, occ decode.Occurrence, data any) (dynamic.Unit, error) {
	inst, err := dataAs[*catalog.Instance](tags.KindInstanceBanner, data)
	if err != nil {
		return nil, err
	}
	return newUnit("instance-banner", &instanceView{
		Name:          inst.Name,
		Src:           o.absolute(inst.BannerPath),
		RevertPadding: occ.Attrs.Bool("revert-home-padding-top"),
	}), nil
}

func (o *Options) instanceAvatar(ctx context.Context, occ decode.Occurrence, data any) (dynamic.Unit, error) {
	inst, err := dataAs[*catalog.Instance](tags.KindInstanceAvatar, data)
	if err != nil {
		return nil, err
	}
	size := occ.Attrs.Int("size", 120)
	if size <= 0 {
		return nil, fmt.Errorf("%s: size must be positive, got %d", tags.KindInstanceAvatar, size)
	}
	return newUnit("instance-avatar", &instanceView{
		Name: inst.Name,
		Src:  o.absolute(inst.AvatarPath),
		Size: size,
	}), nil
}

func formatDuration(seconds int, live bool) string {
	if live {
		return "LIVE"
	}
	h, m, s := seconds/3600, (seconds/60)%60, seconds%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func formatViews(n int64) string {
	return plural(n, "view", "views")
}

func plural(n int64, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return humanize.Comma(n) + " " + many
}
