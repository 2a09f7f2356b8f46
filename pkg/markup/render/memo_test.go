package render

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sambeau/cmarkup/pkg/markup/decode"
	"github.com/sambeau/cmarkup/pkg/markup/tags"
)

func TestRequestKey_IgnoresAttributeOrder(t *testing.T) {
	a := decode.Attributes{"sort": "-views", "count": float64(3), "category-one-of": []string{"1", "2"}}
	b := decode.Attributes{"category-one-of": []string{"1", "2"}, "count": float64(3), "sort": "-views"}
	assert.Equal(t, requestKey(tags.KindCuratedVideoList, a), requestKey(tags.KindCuratedVideoList, b))
	assert.Equal(t, "curated-video-list?category-one-of=1,2&count=3&sort=-views", requestKey(tags.KindCuratedVideoList, a))
	assert.Equal(t, "instance-avatar", requestKey(tags.KindInstanceAvatar, nil))
	assert.NotEqual(t, requestKey(tags.KindVideoPreview, decode.Attributes{"id": "1"}),
		requestKey(tags.KindEmbeddedPlayer, decode.Attributes{"id": "1"}))
}

func TestPassMemo_SharesConcurrentCalls(t *testing.T) {
	var calls atomic.Int64
	gate := make(chan struct{})
	memo := newPassMemo(FetcherFunc(func(ctx context.Context, kind tags.Kind, attrs decode.Attributes) (any, error) {
		calls.Add(1)
		<-gate
		return "video", nil
	}))

	var wg sync.WaitGroup
	results := make([]any, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := memo.Fetch(context.Background(), tags.KindVideoPreview, decode.Attributes{"id": "1"})
			if err == nil {
				results[i] = v
			}
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, int64(1), calls.Load())
	for _, r := range results {
		assert.Equal(t, "video", r)
	}
	stats := memo.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(9), stats.Hits)
	assert.InDelta(t, 90.0, stats.HitRate(), 0.001)
}

func TestPassMemo_RemembersErrors(t *testing.T) {
	var calls atomic.Int64
	memo := newPassMemo(FetcherFunc(func(ctx context.Context, kind tags.Kind, attrs decode.Attributes) (any, error) {
		calls.Add(1)
		return nil, fmt.Errorf("gone")
	}))
	for i := 0; i < 3; i++ {
		_, err := memo.Fetch(context.Background(), tags.KindPlaylistPreview, decode.Attributes{"id": "x"})
		require.Error(t, err)
	}
	assert.Equal(t, int64(1), calls.Load())
}

func TestPassMemo_DoesNotStoreCancelledCalls(t *testing.T) {
	var calls atomic.Int64
	memo := newPassMemo(FetcherFunc(func(ctx context.Context, kind tags.Kind, attrs decode.Attributes) (any, error) {
		calls.Add(1)
		return nil, ctx.Err()
	}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := memo.Fetch(ctx, tags.KindInstanceBanner, nil)
	assert.ErrorIs(t, err, context.Canceled)

	v, err := memo.Fetch(context.Background(), tags.KindInstanceBanner, nil)
	assert.NoError(t, err)
	assert.Nil(t, v)
	assert.Equal(t, int64(2), calls.Load())
}

func TestMemoStats_HitRateEmpty(t *testing.T) {
	assert.Zero(t, MemoStats{}.HitRate())
}
