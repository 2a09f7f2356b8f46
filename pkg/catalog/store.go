package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Store reads catalog entities from a SQL database. The same queries run on
// SQLite, PostgreSQL and MySQL.
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to the database and verifies the connection.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	name, ok := driverName(driver)
	if !ok {
		return nil, fmt.Errorf("unsupported catalog driver %q", driver)
	}
	if dsn == "" {
		return nil, fmt.Errorf("catalog dsn is empty")
	}
	db, err := sql.Open(name, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s catalog: %w", name, err)
	}
	if name == "sqlite" && strings.Contains(dsn, ":memory:") {
		// Each connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to %s catalog: %w", name, err)
	}
	return NewStore(db, name), nil
}

// NewStore wraps an open database. driver is the database/sql driver name.
func NewStore(db *sql.DB, driver string) *Store {
	return &Store{db: db, driver: driver}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS instance (
		id BIGINT PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		short_description TEXT,
		banner_path VARCHAR(512),
		avatar_path VARCHAR(512)
	)`,
	`CREATE TABLE IF NOT EXISTS channels (
		id BIGINT PRIMARY KEY,
		handle VARCHAR(255) NOT NULL UNIQUE,
		display_name VARCHAR(255) NOT NULL,
		description TEXT,
		avatar_path VARCHAR(512),
		followers BIGINT NOT NULL DEFAULT 0,
		account VARCHAR(255)
	)`,
	`CREATE TABLE IF NOT EXISTS videos (
		id BIGINT PRIMARY KEY,
		uuid VARCHAR(64) NOT NULL UNIQUE,
		short_uuid VARCHAR(32) NOT NULL UNIQUE,
		name VARCHAR(255) NOT NULL,
		description TEXT,
		duration INTEGER NOT NULL DEFAULT 0,
		views BIGINT NOT NULL DEFAULT 0,
		likes BIGINT NOT NULL DEFAULT 0,
		published_at VARCHAR(64),
		thumbnail_path VARCHAR(512),
		is_live BOOLEAN NOT NULL DEFAULT FALSE,
		is_local BOOLEAN NOT NULL DEFAULT TRUE,
		category VARCHAR(32),
		language VARCHAR(16),
		channel_id BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS playlists (
		id BIGINT PRIMARY KEY,
		uuid VARCHAR(64) NOT NULL UNIQUE,
		short_uuid VARCHAR(32) NOT NULL UNIQUE,
		display_name VARCHAR(255) NOT NULL,
		description TEXT,
		thumbnail_path VARCHAR(512),
		videos_length INTEGER NOT NULL DEFAULT 0,
		channel_id BIGINT NOT NULL
	)`,
}

// Migrate creates the catalog tables when they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrating catalog: %w", err)
		}
	}
	return nil
}

// rebind rewrites '?' placeholders to the driver's syntax.
func (s *Store) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var sb strings.Builder
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteByte(query[i])
	}
	return sb.String()
}

const videoColumns = `v.id, v.uuid, v.short_uuid, v.name, v.description, v.duration, v.views, v.likes,
	v.published_at, v.thumbnail_path, v.is_live, v.is_local, v.category, v.language,
	c.handle, c.display_name, c.avatar_path`

const videoFrom = ` FROM videos v JOIN channels c ON c.id = v.channel_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVideo(row rowScanner) (*Video, error) {
	var (
		v                                 Video
		desc, published, thumb, cat, lang sql.NullString
		channelAvatar                     sql.NullString
	)
	err := row.Scan(&v.ID, &v.UUID, &v.ShortUUID, &v.Name, &desc, &v.Duration, &v.Views, &v.Likes,
		&published, &thumb, &v.IsLive, &v.IsLocal, &cat, &lang,
		&v.Channel.Handle, &v.Channel.DisplayName, &channelAvatar)
	if err != nil {
		return nil, err
	}
	v.Description = desc.String
	v.ThumbnailPath = thumb.String
	v.Category = cat.String
	v.Language = lang.String
	v.Channel.AvatarPath = channelAvatar.String
	if published.Valid && published.String != "" {
		t, err := dateparse.ParseAny(published.String)
		if err != nil {
			return nil, fmt.Errorf("video %d: bad published_at %q: %w", v.ID, published.String, err)
		}
		v.PublishedAt = t.UTC()
	}
	return &v, nil
}

// idClause matches a numeric id, uuid or short uuid.
func idClause(alias, id string) (string, []any) {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return alias + ".id = ?", []any{n}
	}
	return "(" + alias + ".uuid = ? OR " + alias + ".short_uuid = ?)", []any{id, id}
}

// Video returns a video by numeric id, uuid or short uuid.
func (s *Store) Video(ctx context.Context, id string) (*Video, error) {
	where, args := idClause("v", id)
	q := s.rebind("SELECT " + videoColumns + videoFrom + " WHERE " + where)
	v, err := scanVideo(s.db.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("video %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading video %q: %w", id, err)
	}
	return v, nil
}

// Playlist returns a playlist by numeric id, uuid or short uuid.
func (s *Store) Playlist(ctx context.Context, id string) (*Playlist, error) {
	where, args := idClause("p", id)
	q := s.rebind(`SELECT p.id, p.uuid, p.short_uuid, p.display_name, p.description, p.thumbnail_path,
		p.videos_length, c.handle, c.display_name, c.avatar_path
		FROM playlists p JOIN channels c ON c.id = p.channel_id WHERE ` + where)

	var (
		p                          Playlist
		desc, thumb, channelAvatar sql.NullString
	)
	err := s.db.QueryRowContext(ctx, q, args...).Scan(&p.ID, &p.UUID, &p.ShortUUID, &p.DisplayName,
		&desc, &thumb, &p.VideosLength, &p.Channel.Handle, &p.Channel.DisplayName, &channelAvatar)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("playlist %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading playlist %q: %w", id, err)
	}
	p.Description = desc.String
	p.ThumbnailPath = thumb.String
	p.Channel.AvatarPath = channelAvatar.String
	return &p, nil
}

// Channel returns a channel by handle.
func (s *Store) Channel(ctx context.Context, handle string) (*Channel, error) {
	q := s.rebind(`SELECT id, handle, display_name, description, avatar_path, followers, account
		FROM channels WHERE handle = ?`)
	var (
		c                     Channel
		desc, avatar, account sql.NullString
	)
	err := s.db.QueryRowContext(ctx, q, handle).Scan(&c.ID, &c.Handle, &c.DisplayName, &desc, &avatar, &c.Followers, &account)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("channel %q: %w", handle, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading channel %q: %w", handle, err)
	}
	c.Description = desc.String
	c.AvatarPath = avatar.String
	c.Account = account.String
	return &c, nil
}

// LatestVideo returns the most recently published video of a channel, or
// ErrNotFound when the channel has none.
func (s *Store) LatestVideo(ctx context.Context, channelHandle string) (*Video, error) {
	videos, err := s.Videos(ctx, VideoQuery{Channel: channelHandle, Count: 1, Sort: "-publishedAt"})
	if err != nil {
		return nil, err
	}
	if len(videos) == 0 {
		return nil, fmt.Errorf("latest video of %q: %w", channelHandle, ErrNotFound)
	}
	return &videos[0], nil
}

var sortColumns = map[string]string{
	"-publishedAt": "v.published_at DESC",
	"publishedAt":  "v.published_at ASC",
	"-views":       "v.views DESC",
	"-likes":       "v.likes DESC",
	"-trending":    "v.views DESC, v.likes DESC",
	"name":         "v.name ASC",
}

// Videos lists videos matching q.
func (s *Store) Videos(ctx context.Context, q VideoQuery) ([]Video, error) {
	q = q.normalized()
	order, ok := sortColumns[q.Sort]
	if !ok {
		return nil, fmt.Errorf("unsupported sort %q", q.Sort)
	}

	var (
		where []string
		args  []any
	)
	if len(q.CategoryOneOf) > 0 {
		where = append(where, "v.category IN ("+placeholders(len(q.CategoryOneOf))+")")
		args = appendStrings(args, q.CategoryOneOf)
	}
	if len(q.LanguageOneOf) > 0 {
		where = append(where, "v.language IN ("+placeholders(len(q.LanguageOneOf))+")")
		args = appendStrings(args, q.LanguageOneOf)
	}
	if q.Channel != "" {
		where = append(where, "c.handle = ?")
		args = append(args, q.Channel)
	}
	if q.Account != "" {
		where = append(where, "c.account = ?")
		args = append(args, q.Account)
	}
	if q.IsLive {
		where = append(where, "v.is_live = ?")
		args = append(args, true)
	}
	if q.IsLocal {
		where = append(where, "v.is_local = ?")
		args = append(args, true)
	}

	query := "SELECT " + videoColumns + videoFrom
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY " + order + ", v.id ASC LIMIT " + strconv.Itoa(q.Count)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("listing videos: %w", err)
	}
	defer rows.Close()

	var out []Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("listing videos: %w", err)
		}
		out = append(out, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing videos: %w", err)
	}
	return out, nil
}

// Instance returns the instance row, or ErrNotFound when none was stored.
func (s *Store) Instance(ctx context.Context) (*Instance, error) {
	var (
		inst                 Instance
		desc, banner, avatar sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `SELECT name, short_description, banner_path, avatar_path FROM instance ORDER BY id LIMIT 1`).
		Scan(&inst.Name, &desc, &banner, &avatar)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("instance: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading instance: %w", err)
	}
	inst.ShortDescription = desc.String
	inst.BannerPath = banner.String
	inst.AvatarPath = avatar.String
	return &inst, nil
}

// PutInstance replaces the instance row.
func (s *Store) PutInstance(ctx context.Context, inst Instance) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM instance`); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO instance (id, name, short_description, banner_path, avatar_path) VALUES (1, ?, ?, ?, ?)`),
			inst.Name, inst.ShortDescription, inst.BannerPath, inst.AvatarPath)
		return err
	})
}

// PutChannel inserts a channel.
func (s *Store) PutChannel(ctx context.Context, c Channel) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO channels (id, handle, display_name, description, avatar_path, followers, account)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		c.ID, c.Handle, c.DisplayName, c.Description, c.AvatarPath, c.Followers, c.Account)
	if err != nil {
		return fmt.Errorf("inserting channel %q: %w", c.Handle, err)
	}
	return nil
}

// PutVideo inserts a video. v.Channel.Handle must name a stored channel.
func (s *Store) PutVideo(ctx context.Context, v Video) error {
	channelID, err := s.channelID(ctx, v.Channel.Handle)
	if err != nil {
		return err
	}
	var published any
	if !v.PublishedAt.IsZero() {
		published = v.PublishedAt.UTC().Format(time.RFC3339)
	}
	_, err = s.db.ExecContext(ctx, s.rebind(`INSERT INTO videos (id, uuid, short_uuid, name, description, duration, views, likes,
		published_at, thumbnail_path, is_live, is_local, category, language, channel_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		v.ID, v.UUID, v.ShortUUID, v.Name, v.Description, v.Duration, v.Views, v.Likes,
		published, v.ThumbnailPath, v.IsLive, v.IsLocal, v.Category, v.Language, channelID)
	if err != nil {
		return fmt.Errorf("inserting video %q: %w", v.UUID, err)
	}
	return nil
}

// PutPlaylist inserts a playlist. p.Channel.Handle must name a stored channel.
func (s *Store) PutPlaylist(ctx context.Context, p Playlist) error {
	channelID, err := s.channelID(ctx, p.Channel.Handle)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.rebind(`INSERT INTO playlists (id, uuid, short_uuid, display_name, description, thumbnail_path, videos_length, channel_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		p.ID, p.UUID, p.ShortUUID, p.DisplayName, p.Description, p.ThumbnailPath, p.VideosLength, channelID)
	if err != nil {
		return fmt.Errorf("inserting playlist %q: %w", p.UUID, err)
	}
	return nil
}

func (s *Store) channelID(ctx context.Context, handle string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT id FROM channels WHERE handle = ?`), handle).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("channel %q: %w", handle, ErrNotFound)
	}
	return id, err
}

func (s *Store) tx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func appendStrings(args []any, vals []string) []any {
	for _, v := range vals {
		args = append(args, v)
	}
	return args
}
