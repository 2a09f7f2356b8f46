package catalog

import (
	"context"
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Dataset is the import format for seeding a store.
type Dataset struct {
	Instance  *Instance  `json:"instance,omitempty"`
	Channels  []Channel  `json:"channels"`
	Videos    []Video    `json:"videos"`
	Playlists []Playlist `json:"playlists"`
}

// ReadDataset decodes a JSON dataset.
func ReadDataset(r io.Reader) (*Dataset, error) {
	var ds Dataset
	if err := json.NewDecoder(r).Decode(&ds); err != nil {
		return nil, fmt.Errorf("decoding dataset: %w", err)
	}
	return &ds, nil
}

// Import migrates the store and inserts every entity of ds. Channels are
// inserted first so videos and playlists can reference them.
func (s *Store) Import(ctx context.Context, ds *Dataset) error {
	if err := s.Migrate(ctx); err != nil {
		return err
	}
	if ds.Instance != nil {
		if err := s.PutInstance(ctx, *ds.Instance); err != nil {
			return fmt.Errorf("importing instance: %w", err)
		}
	}
	for _, c := range ds.Channels {
		if err := s.PutChannel(ctx, c); err != nil {
			return err
		}
	}
	for _, v := range ds.Videos {
		if err := s.PutVideo(ctx, v); err != nil {
			return err
		}
	}
	for _, p := range ds.Playlists {
		if err := s.PutPlaylist(ctx, p); err != nil {
			return err
		}
	}
	return nil
}
