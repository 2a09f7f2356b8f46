// Package render runs custom markup render passes: it scans the input,
// decodes every tag occurrence, fetches data concurrently, mounts units
// through the dynamic element service and assembles the output in document
// order.
//
// Each Host has at most one live pass. Starting a pass for a host cancels
// the host's in-flight pass and releases its current Result before anything
// new is mounted.
package render

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sambeau/cmarkup/pkg/markup/decode"
	"github.com/sambeau/cmarkup/pkg/markup/dynamic"
	merrors "github.com/sambeau/cmarkup/pkg/markup/errors"
	"github.com/sambeau/cmarkup/pkg/markup/scanner"
	"github.com/sambeau/cmarkup/pkg/markup/tags"
)

// ErrSuperseded is returned by Render when a newer pass for the same host
// started before this one finished.
var ErrSuperseded = errors.New("render pass superseded")

// DefaultConcurrency bounds in-flight fetches when Options.Concurrency is 0.
const DefaultConcurrency = 8

// Fetcher resolves the data a tag occurrence needs.
type Fetcher interface {
	Fetch(ctx context.Context, kind tags.Kind, attrs decode.Attributes) (any, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, kind tags.Kind, attrs decode.Attributes) (any, error)

func (f FetcherFunc) Fetch(ctx context.Context, kind tags.Kind, attrs decode.Attributes) (any, error) {
	return f(ctx, kind, attrs)
}

// Host is the mount point a pass renders into.
type Host struct {
	ID string
}

// Options configures an Orchestrator.
type Options struct {
	Registry *tags.Registry
	Service  *dynamic.Service
	Fetcher  Fetcher
	// Lookup decides which element names are treated as custom tags.
	// Defaults to Registry. Names it accepts that the registry does not
	// know render as unknown-tag fallbacks.
	Lookup       scanner.Lookup
	Concurrency  int
	FetchTimeout time.Duration
	Logger       zerolog.Logger
}

// Result is the outcome of one pass.
type Result struct {
	Host          Host
	Output        Output
	Group         []dynamic.InstanceID
	Warnings      []error
	FetchFailures []error
	Memo          MemoStats
	Duration      time.Duration

	svc  *dynamic.Service
	once sync.Once
}

// Release destroys every unit of the pass. Only the first call does any
// work; later calls return an empty Teardown.
func (r *Result) Release() dynamic.Teardown {
	var td dynamic.Teardown
	r.once.Do(func() {
		td = r.svc.DestroyAll(r.Group)
	})
	return td
}

// HTML renders the pass's output. A Result released before or while it is
// written out reports ErrSuperseded.
func (r *Result) HTML() (string, error) {
	out, err := r.Output.HTML(r.svc)
	if errors.Is(err, dynamic.ErrNotLive) {
		return "", fmt.Errorf("%w: %w", ErrSuperseded, err)
	}
	return out, err
}

type hostState struct {
	gen     uint64
	cancel  context.CancelFunc
	current *Result
}

// Orchestrator runs render passes. It is safe for concurrent use.
type Orchestrator struct {
	registry    *tags.Registry
	svc         *dynamic.Service
	fetcher     Fetcher
	lookup      scanner.Lookup
	concurrency int
	timeout     time.Duration
	log         zerolog.Logger

	mu    sync.Mutex
	hosts map[string]*hostState
	seq   uint64 // last generation handed out, across all hosts

	passes     atomic.Int64
	superseded atomic.Int64
}

// New creates an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("render: registry is required")
	}
	if opts.Service == nil {
		return nil, fmt.Errorf("render: dynamic element service is required")
	}
	if opts.Fetcher == nil {
		opts.Fetcher = FetcherFunc(func(ctx context.Context, kind tags.Kind, _ decode.Attributes) (any, error) {
			return nil, fmt.Errorf("no fetcher configured for %s", kind)
		})
	}
	if opts.Lookup == nil {
		opts.Lookup = opts.Registry
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	return &Orchestrator{
		registry:    opts.Registry,
		svc:         opts.Service,
		fetcher:     opts.Fetcher,
		lookup:      opts.Lookup,
		concurrency: opts.Concurrency,
		timeout:     opts.FetchTimeout,
		log:         opts.Logger,
		hosts:       make(map[string]*hostState),
	}, nil
}

// job is one decoded occurrence waiting to be mounted.
type job struct {
	occ  decode.Occurrence
	node *Node
}

// pass is the mutable state of one in-flight render.
type pass struct {
	host   Host
	gen    uint64
	cancel context.CancelFunc

	mu            sync.Mutex
	group         []dynamic.InstanceID
	warnings      []error
	fetchFailures []error
}

// Render runs a pass for host over text.
func (o *Orchestrator) Render(ctx context.Context, text string, host Host) (*Result, error) {
	start := time.Now()
	ctx, p := o.begin(ctx, host)
	defer p.cancel()

	output, jobs := o.plan(text)
	memo := newPassMemo(o.fetcher)

	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for _, j := range jobs {
		g.Go(func() error {
			o.runJob(ctx, p, memo, j)
			return nil
		})
	}
	g.Wait()

	if o.isSuperseded(p) || ctx.Err() != nil {
		td := o.svc.DestroyAll(p.group)
		o.logTeardown(host, td)
		if err := ctx.Err(); err != nil && !o.isSuperseded(p) {
			return nil, err
		}
		o.superseded.Add(1)
		o.log.Debug().Str("host", host.ID).Uint64("generation", p.gen).Msg("pass superseded")
		return nil, ErrSuperseded
	}
	o.passes.Add(1)

	res := &Result{
		Host:          host,
		Output:        output,
		Group:         p.group,
		Warnings:      p.warnings,
		FetchFailures: p.fetchFailures,
		Memo:          memo.Stats(),
		Duration:      time.Since(start),
		svc:           o.svc,
	}
	if !o.install(p, res) {
		// A newer pass started after the join.
		o.logTeardown(host, res.Release())
		o.superseded.Add(1)
		return nil, ErrSuperseded
	}

	o.log.Info().
		Str("host", host.ID).
		Int("instances", len(res.Group)).
		Int("warnings", len(res.Warnings)).
		Int("fetch_failures", len(res.FetchFailures)).
		Dur("duration", res.Duration).
		Msg("render pass complete")
	return res, nil
}

// begin starts a new generation for host, cancelling and releasing whatever
// the host had before.
func (o *Orchestrator) begin(parent context.Context, host Host) (context.Context, *pass) {
	ctx, cancel := context.WithCancel(parent)

	o.mu.Lock()
	st, ok := o.hosts[host.ID]
	if !ok {
		st = &hostState{}
		o.hosts[host.ID] = st
	}
	o.seq++
	st.gen = o.seq
	if st.cancel != nil {
		st.cancel()
	}
	st.cancel = cancel
	prev := st.current
	st.current = nil
	gen := st.gen
	o.mu.Unlock()

	if prev != nil {
		o.logTeardown(host, prev.Release())
	}
	return ctx, &pass{host: host, gen: gen, cancel: cancel}
}

func (o *Orchestrator) isSuperseded(p *pass) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.hosts[p.host.ID]
	return !ok || st.gen != p.gen
}

func (o *Orchestrator) install(p *pass, res *Result) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.hosts[p.host.ID]
	if !ok || st.gen != p.gen {
		return false
	}
	st.cancel = nil
	st.current = res
	return true
}

// plan scans text and builds the output tree. Every decoded occurrence gets
// an anchor node and a job; rejected ones become fallback nodes.
func (o *Orchestrator) plan(text string) (Output, []job) {
	var jobs []job
	out := o.planNodes(scanner.ScanAll(text, o.lookup), &jobs)
	return out, jobs
}

func (o *Orchestrator) planNodes(segs []scanner.Segment, jobs *[]job) Output {
	out := make(Output, len(segs))
	for i, seg := range segs {
		switch s := seg.(type) {
		case *scanner.Literal:
			out[i] = Node{Kind: NodeLiteral, Raw: s.Raw}
		case *scanner.TagOccurrence:
			var occ decode.Occurrence
			if desc, ok := o.registry.Resolve(s.Name); ok {
				occ = decode.Decode(s, desc)
			} else {
				occ = decode.Unknown(s)
			}
			node := &out[i]
			node.Tag = s.Name
			node.Anchor = s.Position.ID()
			node.Children = o.planNodes(s.Children, jobs)
			if !occ.OK() {
				node.Kind = NodeFallback
				node.Reason = occ.Rejected.Reason
				o.log.Debug().Err(occ.Rejected.Err).Str("anchor", node.Anchor).Msg("tag rejected")
				continue
			}
			node.Kind = NodeAnchor
			*jobs = append(*jobs, job{occ: occ, node: node})
		}
	}
	return out
}

// runJob fetches data for one occurrence and mounts it. Failures degrade the
// node to a fallback; they never fail the pass.
func (o *Orchestrator) runJob(ctx context.Context, p *pass, memo *passMemo, j job) {
	kind := j.occ.Descriptor.Kind
	var data any
	if j.occ.Descriptor.NeedsFetch {
		fctx := ctx
		if o.timeout > 0 {
			var cancel context.CancelFunc
			fctx, cancel = context.WithTimeout(ctx, o.timeout)
			defer cancel()
		}
		var err error
		data, err = memo.Fetch(fctx, kind, j.occ.Attrs)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			ferr := merrors.Fetch(kind.String(), err)
			pos := j.occ.Tag.Position
			ferr = ferr.WithPosition(pos.Line, pos.Column)
			j.node.Kind = NodeFallback
			j.node.Reason = ReasonFetchFailed
			p.mu.Lock()
			p.fetchFailures = append(p.fetchFailures, ferr)
			p.mu.Unlock()
			o.log.Warn().Err(err).Str("host", p.host.ID).Str("tag", kind.String()).Str("anchor", j.node.Anchor).Msg("fetch failed")
			return
		}
	}

	if ctx.Err() != nil || o.isSuperseded(p) {
		return
	}
	inst, err := o.svc.Mount(ctx, j.occ, data, j.node.Anchor)
	if err != nil {
		j.node.Kind = NodeFallback
		j.node.Reason = ReasonMountFailed
		p.mu.Lock()
		p.warnings = append(p.warnings, err)
		p.mu.Unlock()
		o.log.Warn().Err(err).Str("host", p.host.ID).Str("anchor", j.node.Anchor).Msg("mount failed")
		return
	}
	j.node.Instance = inst.ID
	p.mu.Lock()
	p.group = append(p.group, inst.ID)
	p.mu.Unlock()
}

func (o *Orchestrator) logTeardown(host Host, td dynamic.Teardown) {
	if td.Destroyed == 0 && len(td.Failures) == 0 {
		return
	}
	ev := o.log.Debug()
	if len(td.Failures) > 0 {
		ev = o.log.Warn().Errs("failures", td.Failures)
	}
	ev.Str("host", host.ID).Int("destroyed", td.Destroyed).Msg("released pass")
}

// Release tears down host entirely: its in-flight pass is cancelled and its
// current Result released.
func (o *Orchestrator) Release(hostID string) dynamic.Teardown {
	o.mu.Lock()
	st, ok := o.hosts[hostID]
	if ok {
		delete(o.hosts, hostID)
		if st.cancel != nil {
			st.cancel()
		}
	}
	o.mu.Unlock()
	if !ok || st.current == nil {
		return dynamic.Teardown{}
	}
	td := st.current.Release()
	o.logTeardown(Host{ID: hostID}, td)
	return td
}

// Current returns the host's installed Result, if any.
func (o *Orchestrator) Current(hostID string) (*Result, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.hosts[hostID]
	if !ok || st.current == nil {
		return nil, false
	}
	return st.current, true
}

// Hosts returns the number of hosts with a live or in-flight pass.
func (o *Orchestrator) Hosts() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.hosts)
}

// HostIDs returns the hosts with a live or in-flight pass, sorted.
func (o *Orchestrator) HostIDs() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Sorted(maps.Keys(o.hosts))
}

// Stats holds orchestrator counters.
type Stats struct {
	Hosts      int
	Passes     int64
	Superseded int64
	Units      dynamic.Stats
}

// Stats returns orchestrator counters.
func (o *Orchestrator) Stats() Stats {
	return Stats{
		Hosts:      o.Hosts(),
		Passes:     o.passes.Load(),
		Superseded: o.superseded.Load(),
		Units:      o.svc.Stats(),
	}
}
