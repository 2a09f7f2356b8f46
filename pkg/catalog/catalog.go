// Package catalog supplies the data behind custom tags: videos, playlists,
// channels and the instance itself. Data comes from a SQL store or from a
// remote instance's HTTP API.
package catalog

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ChannelRef is the channel summary embedded in videos and playlists.
type ChannelRef struct {
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName"`
	AvatarPath  string `json:"avatarPath,omitempty"`
}

// Video is a single video.
type Video struct {
	ID            int64      `json:"id"`
	UUID          string     `json:"uuid"`
	ShortUUID     string     `json:"shortUUID"`
	Name          string     `json:"name"`
	Description   string     `json:"description,omitempty"`
	Duration      int        `json:"duration"`
	Views         int64      `json:"views"`
	Likes         int64      `json:"likes"`
	PublishedAt   time.Time  `json:"publishedAt"`
	ThumbnailPath string     `json:"thumbnailPath,omitempty"`
	IsLive        bool       `json:"isLive"`
	IsLocal       bool       `json:"isLocal"`
	Category      string     `json:"category,omitempty"`
	Language      string     `json:"language,omitempty"`
	Channel       ChannelRef `json:"channel"`
}

// WatchPath is the relative URL of the video's watch page.
func (v Video) WatchPath() string {
	return "/w/" + v.ShortUUID
}

// Playlist is a video playlist.
type Playlist struct {
	ID            int64      `json:"id"`
	UUID          string     `json:"uuid"`
	ShortUUID     string     `json:"shortUUID"`
	DisplayName   string     `json:"displayName"`
	Description   string     `json:"description,omitempty"`
	ThumbnailPath string     `json:"thumbnailPath,omitempty"`
	VideosLength  int        `json:"videosLength"`
	Channel       ChannelRef `json:"channel"`
}

// WatchPath is the relative URL of the playlist's watch page.
func (p Playlist) WatchPath() string {
	return "/w/p/" + p.ShortUUID
}

// Channel is a video channel.
type Channel struct {
	ID          int64  `json:"id"`
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName"`
	Description string `json:"description,omitempty"`
	AvatarPath  string `json:"avatarPath,omitempty"`
	Followers   int64  `json:"followersCount"`
	Account     string `json:"account,omitempty"`
}

// ChannelPreview is the data for a channel card.
type ChannelPreview struct {
	Channel Channel
	Latest  *Video
}

// Instance describes the serving instance.
type Instance struct {
	Name             string `json:"name"`
	ShortDescription string `json:"shortDescription"`
	BannerPath       string `json:"bannerPath,omitempty"`
	AvatarPath       string `json:"avatarPath,omitempty"`
}

// VideoQuery filters a video listing.
type VideoQuery struct {
	Sort          string
	Count         int
	CategoryOneOf []string
	LanguageOneOf []string
	Channel       string
	Account       string
	IsLive        bool
	IsLocal       bool
}

// Defaults for list queries.
const (
	DefaultCount = 10
	MaxCount     = 100
	DefaultSort  = "-publishedAt"
)

func (q VideoQuery) normalized() VideoQuery {
	if q.Count <= 0 {
		q.Count = DefaultCount
	}
	if q.Count > MaxCount {
		q.Count = MaxCount
	}
	if q.Sort == "" {
		q.Sort = DefaultSort
	}
	return q
}

// Source is a read-only provider of catalog entities.
type Source interface {
	Video(ctx context.Context, id string) (*Video, error)
	Playlist(ctx context.Context, id string) (*Playlist, error)
	Channel(ctx context.Context, handle string) (*Channel, error)
	LatestVideo(ctx context.Context, channelHandle string) (*Video, error)
	Videos(ctx context.Context, q VideoQuery) ([]Video, error)
	Instance(ctx context.Context) (*Instance, error)
}
