package render

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/sambeau/cmarkup/pkg/markup/decode"
	"github.com/sambeau/cmarkup/pkg/markup/tags"
)

// passMemo stores fetch results for the duration of one render pass.
// Concurrent identical requests share one call; later identical requests
// reuse the stored result. It is discarded with the pass.
type passMemo struct {
	fetcher Fetcher

	mu      sync.RWMutex
	entries map[string]*memoEntry
	group   singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
}

type memoEntry struct {
	data any
	err  error
}

func newPassMemo(f Fetcher) *passMemo {
	return &passMemo{
		fetcher: f,
		entries: make(map[string]*memoEntry),
	}
}

// Fetch returns the data for kind and attrs, calling the fetcher at most once
// per distinct request.
func (m *passMemo) Fetch(ctx context.Context, kind tags.Kind, attrs decode.Attributes) (any, error) {
	key := requestKey(kind, attrs)

	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if ok {
		m.hits.Add(1)
		return entry.data, entry.err
	}

	fetched := false
	v, _, _ := m.group.Do(key, func() (any, error) {
		// An identical call may have finished since the read above.
		m.mu.RLock()
		e, ok := m.entries[key]
		m.mu.RUnlock()
		if ok {
			return e, nil
		}
		fetched = true
		data, err := m.fetcher.Fetch(ctx, kind, attrs)
		e = &memoEntry{data: data, err: err}
		// Context errors belong to the caller, not the request.
		if ctx.Err() == nil {
			m.mu.Lock()
			m.entries[key] = e
			m.mu.Unlock()
		}
		return e, nil
	})
	if fetched {
		m.misses.Add(1)
	} else {
		m.hits.Add(1)
	}
	e := v.(*memoEntry)
	return e.data, e.err
}

// Stats returns memo statistics.
func (m *passMemo) Stats() MemoStats {
	m.mu.RLock()
	n := len(m.entries)
	m.mu.RUnlock()
	return MemoStats{
		Entries: n,
		Hits:    m.hits.Load(),
		Misses:  m.misses.Load(),
	}
}

// MemoStats reports how many fetches a pass shared.
type MemoStats struct {
	Entries int
	Hits    int64
	Misses  int64
}

// HitRate returns the share of fetches served from the memo as a percentage (0-100).
func (s MemoStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// requestKey identifies a fetch by variant and attributes, independent of
// attribute order.
func requestKey(kind tags.Kind, attrs decode.Attributes) string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(kind.String())
	for i, k := range keys {
		if i == 0 {
			sb.WriteByte('?')
		} else {
			sb.WriteByte('&')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		switch v := attrs[k].(type) {
		case []string:
			sb.WriteString(strings.Join(v, ","))
		default:
			fmt.Fprint(&sb, v)
		}
	}
	return sb.String()
}
