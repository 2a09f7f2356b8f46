package units

import "html/template"

var templates = template.Must(template.New("units").Funcs(template.FuncMap{
	"abs": func(o *Options, path string) string { return o.absolute(path) },
}).Parse(`
{{define "video-preview"}}<div class="video-miniature{{if .OnlyTitle}} title-only{{end}}">
{{- if not .OnlyTitle}}<a class="video-thumbnail" href="{{abs .Opts .Video.WatchPath}}"><img src="{{abs .Opts .Video.ThumbnailPath}}" alt=""><span class="video-duration">{{.Duration}}</span></a>{{end -}}
<a class="video-name" href="{{abs .Opts .Video.WatchPath}}">{{.Video.Name}}</a>
{{- if not .OnlyTitle}}<div class="video-info"><span class="video-channel">{{.Video.Channel.DisplayName}}</span> <span class="video-views">{{.Views}}</span>{{if .Published}} <time datetime="{{.PublishedISO}}">{{.Published}}</time>{{end}}</div>{{end -}}
</div>{{end}}

{{define "playlist-preview"}}<div class="playlist-miniature"><a class="playlist-thumbnail" href="{{abs .Opts .Playlist.WatchPath}}"><img src="{{abs .Opts .Playlist.ThumbnailPath}}" alt=""><span class="playlist-length">{{.Length}}</span></a><a class="playlist-name" href="{{abs .Opts .Playlist.WatchPath}}">{{.Playlist.DisplayName}}</a><div class="playlist-channel">{{.Playlist.Channel.DisplayName}}</div></div>{{end}}

{{define "channel-preview"}}<div class="channel-miniature"><a class="channel-avatar" href="{{abs .Opts .Path}}"><img src="{{abs .Opts .Channel.AvatarPath}}" alt=""></a><div class="channel-info"><a class="channel-name" href="{{abs .Opts .Path}}">{{.Channel.DisplayName}}</a> <span class="channel-followers">{{.Followers}}</span>
{{- if .ShowDescription}}<p class="channel-description">{{.Channel.Description}}</p>{{end -}}
</div>
{{- with .Latest}}<div class="channel-latest">{{template "video-preview" .}}</div>{{end -}}
</div>{{end}}

{{define "embedded-player"}}<div class="embed-responsive"><iframe title="{{.Title}}" src="{{.Src}}" allowfullscreen sandbox="allow-same-origin allow-scripts allow-popups" frameborder="0"></iframe></div>{{end}}

{{define "call-to-action-button"}}<a class="{{.Classes}}" href="{{.Href}}"{{if .Blank}} target="_blank" rel="noopener noreferrer"{{end}}{{if .Disabled}} aria-disabled="true" tabindex="-1"{{end}}>
{{- if .Icon}}<span class="button-icon icon-{{.Icon}}" aria-hidden="true"></span>{{end -}}
{{- if .Label}}<span class="button-label">{{.Label}}</span>{{end -}}
</a>{{end}}

{{define "curated-video-list"}}<div class="video-list">
{{- if .Title}}<h4 class="video-list-title">{{.Title}}</h4>{{end -}}
{{- if .Description}}<div class="video-list-description">{{.Description}}</div>{{end -}}
<div class="videos"{{if .MaxRows}} data-max-rows="{{.MaxRows}}"{{end}}>{{range .Videos}}{{template "video-preview" .}}{{else}}<p class="empty">No videos found.</p>{{end}}</div></div>{{end}}

{{define "instance-banner"}}<div class="instance-banner{{if .RevertPadding}} revert-home-padding-top{{end}}">{{if .Src}}<img src="{{.Src}}" alt="{{.Name}}">{{end}}</div>{{end}}

{{define "instance-avatar"}}<img class="instance-avatar" src="{{.Src}}" alt="{{.Name}}" width="{{.Size}}" height="{{.Size}}">{{end}}
`))
