package server

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/sambeau/cmarkup/pkg/catalog"
	"github.com/sambeau/cmarkup/pkg/content"
	"github.com/sambeau/cmarkup/pkg/logging"
	"github.com/sambeau/cmarkup/pkg/markup/dynamic"
	"github.com/sambeau/cmarkup/pkg/markup/render"
	"github.com/sambeau/cmarkup/pkg/markup/tags"
	"github.com/sambeau/cmarkup/pkg/markup/units"
	"github.com/sambeau/cmarkup/server/config"
)

// Engine bundles everything a render pass needs: the tag registry, the
// catalog the fetcher reads, the dynamic element service and the
// orchestrator. The server and the one-shot CLI commands share it.
type Engine struct {
	Registry     *tags.Registry
	Orchestrator *render.Orchestrator
	Converter    *content.Converter
	Fetcher      *catalog.Fetcher

	store *catalog.Store // nil when tag data comes from the remote API
	log   zerolog.Logger
}

// NewEngine builds an Engine from configuration. With remote.base_url set,
// tag data comes from the HTTP API; otherwise the SQL catalog is opened,
// migrated and seeded from catalog.dataset when one is configured.
func NewEngine(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Engine, error) {
	e := &Engine{
		Registry: tags.Default(),
		log:      logging.Component(log, "engine"),
	}

	var src catalog.Source
	baseURL := cfg.Server.BaseURL
	if cfg.UsesRemote() {
		remote, err := catalog.NewRemote(cfg.Remote.BaseURL, cfg.Remote.Timeout)
		if err != nil {
			return nil, err
		}
		src = remote
		// Thumbnails and avatars are paths on the remote instance.
		baseURL = cfg.Remote.BaseURL
		e.log.Info().Str("base_url", cfg.Remote.BaseURL).Msg("using remote catalog")
	} else {
		store, err := openStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		e.store = store
		src = store
	}

	e.Fetcher = catalog.NewFetcher(src, catalog.Instance{
		Name:             cfg.Instance.Name,
		ShortDescription: cfg.Instance.ShortDescription,
		BannerPath:       cfg.Instance.BannerURL,
		AvatarPath:       cfg.Instance.AvatarURL,
	})

	svc := dynamic.NewService(units.Factories(units.Options{BaseURL: baseURL}), logging.Component(log, "units"))
	orch, err := render.New(render.Options{
		Registry:     e.Registry,
		Service:      svc,
		Fetcher:      e.Fetcher,
		Concurrency:  cfg.Render.FetchConcurrency,
		FetchTimeout: cfg.Render.FetchTimeout,
		Logger:       logging.Component(log, "render"),
	})
	if err != nil {
		e.Close()
		return nil, err
	}
	e.Orchestrator = orch
	e.Converter = content.NewConverter(e.Registry)
	return e, nil
}

func openStore(ctx context.Context, cfg *config.Config) (*catalog.Store, error) {
	store, err := catalog.Open(ctx, cfg.Catalog.Driver, cfg.Catalog.DSN.Value())
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	if cfg.Catalog.Dataset != "" {
		if err := ImportDataset(ctx, store, cfg.Catalog.Dataset); err != nil {
			store.Close()
			return nil, err
		}
	}
	return store, nil
}

// ImportDataset loads a JSON dataset file into store.
func ImportDataset(ctx context.Context, store *catalog.Store, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening dataset: %w", err)
	}
	defer f.Close()

	ds, err := catalog.ReadDataset(f)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := store.Import(ctx, ds); err != nil {
		return fmt.Errorf("importing %s: %w", path, err)
	}
	return nil
}

// Render runs a pass over source in the given format and returns its result.
// The pass stays installed on hostID until it is replaced or released.
func (e *Engine) Render(ctx context.Context, hostID, source string, format content.Format) (*render.Result, error) {
	prepared, err := e.Converter.Prepare(source, format)
	if err != nil {
		return nil, err
	}
	return e.Orchestrator.Render(ctx, prepared, render.Host{ID: hostID})
}

// Close releases every host and closes the catalog.
func (e *Engine) Close() error {
	var errs []error
	if e.Orchestrator != nil {
		for _, id := range e.Orchestrator.HostIDs() {
			td := e.Orchestrator.Release(id)
			errs = append(errs, td.Failures...)
		}
	}
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
