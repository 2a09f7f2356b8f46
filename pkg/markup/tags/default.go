package tags

// Default returns the registry of built-in variants.
func Default() *Registry {
	return NewRegistry(
		Descriptor{
			Name:       KindVideoPreview.String(),
			Kind:       KindVideoPreview,
			Summary:    "Video miniature with thumbnail, title and channel.",
			NeedsFetch: true,
			Required: []AttrSpec{
				{Key: "id", Type: Identifier, Doc: "Video id, short uuid or uuid"},
			},
			Optional: []AttrSpec{
				{Key: "only-display-title", Type: Boolean, Doc: "Hide thumbnail and metadata"},
			},
		},
		Descriptor{
			Name:       KindPlaylistPreview.String(),
			Kind:       KindPlaylistPreview,
			Summary:    "Playlist miniature with thumbnail and video count.",
			NeedsFetch: true,
			Required: []AttrSpec{
				{Key: "id", Type: Identifier, Doc: "Playlist id, short uuid or uuid"},
			},
		},
		Descriptor{
			Name:       KindChannelPreview.String(),
			Kind:       KindChannelPreview,
			Summary:    "Channel card with avatar, followers and optionally its latest video.",
			NeedsFetch: true,
			Required: []AttrSpec{
				{Key: "name", Type: Identifier, Doc: "Channel handle, e.g. my_channel or my_channel@example.com"},
			},
			Optional: []AttrSpec{
				{Key: "display-latest-video", Type: Boolean, Doc: "Show the channel's most recent video"},
				{Key: "display-description", Type: Boolean, Doc: "Show the channel description"},
			},
		},
		Descriptor{
			Name:       KindEmbeddedPlayer.String(),
			Kind:       KindEmbeddedPlayer,
			Summary:    "Embedded video or playlist player.",
			NeedsFetch: true,
			Required: []AttrSpec{
				{Key: "id", Type: Identifier, Doc: "Video or playlist id"},
			},
			Optional: []AttrSpec{
				{Key: "playlist", Type: Boolean, Doc: "Treat id as a playlist"},
				{Key: "autoplay", Type: Boolean, Doc: "Start playback automatically"},
				{Key: "start", Type: Number, Doc: "Start position in seconds"},
				{Key: "title", Type: String, Doc: "Accessible title of the player frame"},
			},
		},
		Descriptor{
			Name:    KindCallToActionButton.String(),
			Kind:    KindCallToActionButton,
			Summary: "Styled link button.",
			Required: []AttrSpec{
				{Key: "label", Type: String, Doc: "Button label"},
				{Key: "href", Type: String, Doc: "Link target"},
			},
			Optional: []AttrSpec{
				{Key: "theme", Type: String, OneOf: []string{"orange", "grey"}, Doc: "Color theme"},
				{Key: "blank-target", Type: Boolean, Doc: "Open the link in a new tab"},
				{Key: "icon", Type: String, Doc: "Icon name shown before the label"},
				{Key: "responsive-label", Type: Boolean, Doc: "Hide the label on small screens"},
				{Key: "disabled", Type: Boolean, Doc: "Render the button disabled"},
			},
		},
		Descriptor{
			Name:       KindCuratedVideoList.String(),
			Kind:       KindCuratedVideoList,
			Summary:    "List of videos matching a query.",
			NeedsFetch: true,
			Optional: []AttrSpec{
				{Key: "title", Type: String, Doc: "Heading above the list"},
				{Key: "description", Type: String, Doc: "Text below the heading"},
				{Key: "sort", Type: String, OneOf: []string{"-publishedAt", "publishedAt", "-views", "-likes", "-trending", "name"}, Doc: "Sort order"},
				{Key: "count", Type: Number, Doc: "Number of videos (default 10)"},
				{Key: "category-one-of", Type: IdentifierList, Doc: "Comma separated category ids"},
				{Key: "language-one-of", Type: IdentifierList, Doc: "Comma separated language codes"},
				{Key: "channel", Type: Identifier, Doc: "Only videos of this channel handle"},
				{Key: "account", Type: Identifier, Doc: "Only videos of this account handle"},
				{Key: "only-display-title", Type: Boolean, Doc: "Hide thumbnails and metadata"},
				{Key: "is-live", Type: Boolean, Doc: "Only live videos"},
				{Key: "is-local", Type: Boolean, Doc: "Only videos of this instance"},
				{Key: "max-rows", Type: Number, Doc: "Maximum rows to display"},
			},
		},
		Descriptor{
			Name:       KindInstanceBanner.String(),
			Kind:       KindInstanceBanner,
			Summary:    "Instance banner image.",
			NeedsFetch: true,
			Optional: []AttrSpec{
				{Key: "revert-home-padding-top", Type: Boolean, Doc: "Remove the page's top padding above the banner"},
			},
		},
		Descriptor{
			Name:       KindInstanceAvatar.String(),
			Kind:       KindInstanceAvatar,
			Summary:    "Instance avatar image.",
			NeedsFetch: true,
			Optional: []AttrSpec{
				{Key: "size", Type: Number, Doc: "Size in pixels (default 120)"},
			},
		},
	)
}
