// Package dynamic creates and destroys the live units mounted for custom
// tags. The Service is the only component that constructs or tears down
// units; callers hold InstanceIDs.
package dynamic

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/sambeau/cmarkup/pkg/markup/decode"
	merrors "github.com/sambeau/cmarkup/pkg/markup/errors"
	"github.com/sambeau/cmarkup/pkg/markup/tags"
)

// ErrNotLive is returned when rendering a unit that was never mounted or has
// been destroyed.
var ErrNotLive = errors.New("instance is not live")

// InstanceID identifies a mounted unit. IDs are never reused by a Service.
type InstanceID uint64

// Unit is a mounted, renderable element.
type Unit interface {
	// Render writes the unit's HTML. children is the already rendered
	// content that appeared between the tag's start and end tags.
	Render(w io.Writer, children string) error
	// Close releases the unit. It is called exactly once.
	Close() error
}

// Factory builds a unit from decoded attributes and fetched data. data is
// nil for variants that need no fetch.
type Factory func(ctx context.Context, occ decode.Occurrence, data any) (Unit, error)

// Instance is the handle returned by Mount.
type Instance struct {
	ID           InstanceID
	OccurrenceID string
	Kind         tags.Kind
	Anchor       string
}

type entry struct {
	inst Instance
	unit Unit
}

// Teardown reports the outcome of DestroyAll.
type Teardown struct {
	Destroyed int
	Failures  []error
}

// Stats holds lifetime counters.
type Stats struct {
	Live      int
	Mounted   int64
	Destroyed int64
	Failed    int64
}

// Service owns every live unit. It is safe for concurrent use.
type Service struct {
	factories map[tags.Kind]Factory
	log       zerolog.Logger

	mu   sync.Mutex
	live map[InstanceID]*entry

	next      atomic.Uint64
	mounted   atomic.Int64
	destroyed atomic.Int64
	failed    atomic.Int64
}

// NewService creates a Service dispatching on the given factories.
func NewService(factories map[tags.Kind]Factory, log zerolog.Logger) *Service {
	f := make(map[tags.Kind]Factory, len(factories))
	for k, v := range factories {
		f[k] = v
	}
	return &Service{
		factories: f,
		log:       log,
		live:      make(map[InstanceID]*entry),
	}
}

// Mount builds exactly one unit for occ and records it at anchor. On error
// nothing is recorded.
func (s *Service) Mount(ctx context.Context, occ decode.Occurrence, data any, anchor string) (inst Instance, err error) {
	kind := occ.Descriptor.Kind
	name := kind.String()
	if !occ.OK() {
		return Instance{}, merrors.Mount(name, fmt.Errorf("occurrence was rejected: %s", occ.Rejected.Reason))
	}
	factory, ok := s.factories[kind]
	if !ok {
		return Instance{}, merrors.Mount(name, fmt.Errorf("no factory registered for %s", name))
	}
	if err := ctx.Err(); err != nil {
		return Instance{}, merrors.Mount(name, err)
	}

	unit, err := build(ctx, factory, occ, data)
	if err != nil {
		s.failed.Add(1)
		pos := occ.Tag.Position
		return Instance{}, merrors.Mount(name, err).WithPosition(pos.Line, pos.Column)
	}
	if unit == nil {
		s.failed.Add(1)
		return Instance{}, merrors.Mount(name, fmt.Errorf("factory returned no unit"))
	}

	inst = Instance{
		ID:           InstanceID(s.next.Add(1)),
		OccurrenceID: occ.ID(),
		Kind:         kind,
		Anchor:       anchor,
	}
	s.mu.Lock()
	s.live[inst.ID] = &entry{inst: inst, unit: unit}
	s.mu.Unlock()
	s.mounted.Add(1)

	s.log.Debug().
		Uint64("instance", uint64(inst.ID)).
		Str("tag", name).
		Str("anchor", anchor).
		Msg("mounted")
	return inst, nil
}

func build(ctx context.Context, factory Factory, occ decode.Occurrence, data any) (unit Unit, err error) {
	defer func() {
		if r := recover(); r != nil {
			unit, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	return factory(ctx, occ, data)
}

// Destroy detaches and closes the unit. Unknown or already destroyed ids are
// a no-op.
func (s *Service) Destroy(id InstanceID) error {
	e := s.detach(id)
	if e == nil {
		return nil
	}
	return s.close(e)
}

// DestroyAll destroys every member of ids that is still live. Failures are
// collected and never stop the loop, so a second call for the same ids
// reports nothing.
func (s *Service) DestroyAll(ids []InstanceID) Teardown {
	var td Teardown
	for _, id := range ids {
		e := s.detach(id)
		if e == nil {
			continue
		}
		td.Destroyed++
		if err := s.close(e); err != nil {
			td.Failures = append(td.Failures, err)
		}
	}
	return td
}

func (s *Service) detach(id InstanceID) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live[id]
	if !ok {
		return nil
	}
	delete(s.live, id)
	return e
}

func (s *Service) close(e *entry) (err error) {
	s.destroyed.Add(1)
	name := e.inst.Kind.String()
	defer func() {
		if r := recover(); r != nil {
			err = merrors.Teardown(name, fmt.Errorf("panic: %v", r))
		}
		if err != nil {
			s.log.Warn().Err(err).Uint64("instance", uint64(e.inst.ID)).Msg("teardown failed")
		}
	}()
	if cerr := e.unit.Close(); cerr != nil {
		return merrors.Teardown(name, cerr)
	}
	return nil
}

// Render writes the HTML of a live unit.
func (s *Service) Render(id InstanceID, w io.Writer, children string) error {
	s.mu.Lock()
	e, ok := s.live[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("instance %d: %w", id, ErrNotLive)
	}
	return e.unit.Render(w, children)
}

// Lookup returns the handle of a live unit.
func (s *Service) Lookup(id InstanceID) (Instance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live[id]
	if !ok {
		return Instance{}, false
	}
	return e.inst, true
}

// Live returns the number of live units.
func (s *Service) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// Stats returns lifetime counters.
func (s *Service) Stats() Stats {
	return Stats{
		Live:      s.Live(),
		Mounted:   s.mounted.Load(),
		Destroyed: s.destroyed.Load(),
		Failed:    s.failed.Load(),
	}
}
