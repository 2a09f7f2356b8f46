package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Remote reads catalog entities from a PeerTube-compatible REST API.
type Remote struct {
	base   *url.URL
	client *http.Client
}

// NewRemote creates a client for the instance at baseURL.
func NewRemote(baseURL string, timeout time.Duration) (*Remote, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing remote url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("remote url %q must be http or https", baseURL)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Remote{base: u, client: &http.Client{Timeout: timeout}}, nil
}

type apiImage struct {
	Path  string `json:"path"`
	Width int    `json:"width"`
}

type apiLabel struct {
	ID    any    `json:"id"`
	Label string `json:"label"`
}

func (l *apiLabel) id() string {
	if l == nil || l.ID == nil {
		return ""
	}
	return fmt.Sprint(l.ID)
}

type apiActor struct {
	ID             int64      `json:"id"`
	Name           string     `json:"name"`
	Host           string     `json:"host"`
	DisplayName    string     `json:"displayName"`
	Description    string     `json:"description"`
	Avatars        []apiImage `json:"avatars"`
	Banners        []apiImage `json:"banners"`
	FollowersCount int64      `json:"followersCount"`
	OwnerAccount   *apiActor  `json:"ownerAccount"`
}

type apiVideo struct {
	ID            int64     `json:"id"`
	UUID          string    `json:"uuid"`
	ShortUUID     string    `json:"shortUUID"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Duration      int       `json:"duration"`
	Views         int64     `json:"views"`
	Likes         int64     `json:"likes"`
	PublishedAt   string    `json:"publishedAt"`
	ThumbnailPath string    `json:"thumbnailPath"`
	IsLive        bool      `json:"isLive"`
	IsLocal       bool      `json:"isLocal"`
	Category      *apiLabel `json:"category"`
	Language      *apiLabel `json:"language"`
	Channel       apiActor  `json:"channel"`
}

type apiPlaylist struct {
	ID            int64    `json:"id"`
	UUID          string   `json:"uuid"`
	ShortUUID     string   `json:"shortUUID"`
	DisplayName   string   `json:"displayName"`
	Description   string   `json:"description"`
	ThumbnailPath string   `json:"thumbnailPath"`
	VideosLength  int      `json:"videosLength"`
	VideoChannel  apiActor `json:"videoChannel"`
}

type apiVideoList struct {
	Total int        `json:"total"`
	Data  []apiVideo `json:"data"`
}

type apiAbout struct {
	Instance struct {
		Name             string     `json:"name"`
		ShortDescription string     `json:"shortDescription"`
		Banners          []apiImage `json:"banners"`
		Avatars          []apiImage `json:"avatars"`
	} `json:"instance"`
}

// largest returns the path of the widest image.
func largest(imgs []apiImage) string {
	best := -1
	path := ""
	for _, img := range imgs {
		if img.Width > best {
			best = img.Width
			path = img.Path
		}
	}
	return path
}

func (r *Remote) handle(a apiActor) string {
	if a.Host == "" || a.Host == r.base.Host {
		return a.Name
	}
	return a.Name + "@" + a.Host
}

func (r *Remote) channelRef(a apiActor) ChannelRef {
	return ChannelRef{Handle: r.handle(a), DisplayName: a.DisplayName, AvatarPath: largest(a.Avatars)}
}

func (r *Remote) video(v apiVideo) (Video, error) {
	out := Video{
		ID:            v.ID,
		UUID:          v.UUID,
		ShortUUID:     v.ShortUUID,
		Name:          v.Name,
		Description:   v.Description,
		Duration:      v.Duration,
		Views:         v.Views,
		Likes:         v.Likes,
		ThumbnailPath: v.ThumbnailPath,
		IsLive:        v.IsLive,
		IsLocal:       v.IsLocal,
		Category:      v.Category.id(),
		Language:      v.Language.id(),
		Channel:       r.channelRef(v.Channel),
	}
	if v.PublishedAt != "" {
		t, err := dateparse.ParseAny(v.PublishedAt)
		if err != nil {
			return Video{}, fmt.Errorf("video %s: bad publishedAt %q: %w", v.UUID, v.PublishedAt, err)
		}
		out.PublishedAt = t.UTC()
	}
	return out, nil
}

func (r *Remote) videos(list apiVideoList) ([]Video, error) {
	out := make([]Video, 0, len(list.Data))
	for _, v := range list.Data {
		vid, err := r.video(v)
		if err != nil {
			return nil, err
		}
		out = append(out, vid)
	}
	return out, nil
}

// get fetches path relative to the API root and decodes the JSON body.
func (r *Remote) get(ctx context.Context, path string, query url.Values, dst any) error {
	u := *r.base
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("GET %s: %w", path, ErrNotFound)
	case resp.StatusCode >= 400:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("GET %s: %s: %s", path, resp.Status, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("GET %s: decoding response: %w", path, err)
	}
	return nil
}

// Video fetches a video by id, uuid or short uuid.
func (r *Remote) Video(ctx context.Context, id string) (*Video, error) {
	var v apiVideo
	if err := r.get(ctx, "/api/v1/videos/"+url.PathEscape(id), nil, &v); err != nil {
		return nil, err
	}
	out, err := r.video(v)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Playlist fetches a playlist by id, uuid or short uuid.
func (r *Remote) Playlist(ctx context.Context, id string) (*Playlist, error) {
	var p apiPlaylist
	if err := r.get(ctx, "/api/v1/video-playlists/"+url.PathEscape(id), nil, &p); err != nil {
		return nil, err
	}
	return &Playlist{
		ID:            p.ID,
		UUID:          p.UUID,
		ShortUUID:     p.ShortUUID,
		DisplayName:   p.DisplayName,
		Description:   p.Description,
		ThumbnailPath: p.ThumbnailPath,
		VideosLength:  p.VideosLength,
		Channel:       r.channelRef(p.VideoChannel),
	}, nil
}

// Channel fetches a channel by handle.
func (r *Remote) Channel(ctx context.Context, handle string) (*Channel, error) {
	var a apiActor
	if err := r.get(ctx, "/api/v1/video-channels/"+url.PathEscape(handle), nil, &a); err != nil {
		return nil, err
	}
	c := &Channel{
		ID:          a.ID,
		Handle:      r.handle(a),
		DisplayName: a.DisplayName,
		Description: a.Description,
		AvatarPath:  largest(a.Avatars),
		Followers:   a.FollowersCount,
	}
	if a.OwnerAccount != nil {
		c.Account = r.handle(*a.OwnerAccount)
	}
	return c, nil
}

// LatestVideo fetches the most recent video of a channel.
func (r *Remote) LatestVideo(ctx context.Context, channelHandle string) (*Video, error) {
	videos, err := r.Videos(ctx, VideoQuery{Channel: channelHandle, Count: 1, Sort: "-publishedAt"})
	if err != nil {
		return nil, err
	}
	if len(videos) == 0 {
		return nil, fmt.Errorf("latest video of %q: %w", channelHandle, ErrNotFound)
	}
	return &videos[0], nil
}

// Videos lists videos. A channel or account filter selects the scoped
// listing endpoint.
func (r *Remote) Videos(ctx context.Context, q VideoQuery) ([]Video, error) {
	q = q.normalized()
	query := url.Values{}
	query.Set("sort", q.Sort)
	query.Set("count", strconv.Itoa(q.Count))
	for _, c := range q.CategoryOneOf {
		query.Add("categoryOneOf", c)
	}
	for _, l := range q.LanguageOneOf {
		query.Add("languageOneOf", l)
	}
	if q.IsLive {
		query.Set("isLive", "true")
	}
	if q.IsLocal {
		query.Set("isLocal", "true")
	}

	path := "/api/v1/videos"
	switch {
	case q.Channel != "":
		path = "/api/v1/video-channels/" + url.PathEscape(q.Channel) + "/videos"
	case q.Account != "":
		path = "/api/v1/accounts/" + url.PathEscape(q.Account) + "/videos"
	}

	var list apiVideoList
	if err := r.get(ctx, path, query, &list); err != nil {
		return nil, err
	}
	return r.videos(list)
}

// Instance fetches the instance description.
func (r *Remote) Instance(ctx context.Context) (*Instance, error) {
	var about apiAbout
	if err := r.get(ctx, "/api/v1/config/about", nil, &about); err != nil {
		return nil, err
	}
	return &Instance{
		Name:             about.Instance.Name,
		ShortDescription: about.Instance.ShortDescription,
		BannerPath:       largest(about.Instance.Banners),
		AvatarPath:       largest(about.Instance.Avatars),
	}, nil
}
