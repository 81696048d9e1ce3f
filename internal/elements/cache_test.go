package elements

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mapdna/internal/events"
	"mapdna/internal/geo"
	"mapdna/platform/logger"
)

type countingSource struct {
	*MemorySource
	calls int
}

func (c *countingSource) GetElement(ctx context.Context, id int64) (*Element, error) {
	c.calls++
	return c.MemorySource.GetElement(ctx, id)
}

func (c *countingSource) GetElements(ctx context.Context, ids []int64) ([]*Element, error) {
	c.calls++
	return c.MemorySource.GetElements(ctx, ids)
}

func newCache(t *testing.T, items ...*Element) (*CachedSource, *countingSource, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	src := &countingSource{MemorySource: NewMemorySource(items...)}
	return NewCachedSource(src, rdb, time.Minute, logger.Discard()), src, mr
}

func store(id int64) *Element {
	lng, lat := -64.78, 32.29
	return &Element{
		ID:   id,
		Kind: "entry",
		Fields: []Field{{
			ID: 7, Handle: "location", Type: FieldTypeAddress,
			Address: &geo.Address{
				Location: geo.Location{Lng: &lng, Lat: &lat},
				OwnerID:  id, FieldID: 7, City: "Hamilton",
			},
		}},
	}
}

func TestCachedSourceGetElementReadsThrough(t *testing.T) {
	cache, src, mr := newCache(t, store(42))
	ctx := context.Background()

	first, err := cache.GetElement(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)
	assert.True(t, mr.Exists("mapdna:element:42"))

	second, err := cache.GetElement(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls, "second read should be served from redis")
	assert.Equal(t, "Hamilton", second.Address("location").City)
	assert.Equal(t, first.ID, second.ID)

	ttl := mr.TTL("mapdna:element:42")
	assert.Equal(t, time.Minute, ttl)
}

func TestCachedSourceGetElementsMixesHitsAndMisses(t *testing.T) {
	cache, src, _ := newCache(t, store(1), store(2), store(3))
	ctx := context.Background()

	_, err := cache.GetElement(ctx, 2)
	require.NoError(t, err)
	src.calls = 0

	got, err := cache.GetElements(ctx, []int64{3, 2, 99, 1})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []int64{3, 2, 1}, []int64{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, 1, src.calls)
}

func TestCachedSourceSurvivesCorruptEntry(t *testing.T) {
	cache, src, mr := newCache(t, store(5))
	require.NoError(t, mr.Set("mapdna:element:5", "{not json"))

	e, err := cache.GetElement(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), e.ID)
	assert.Equal(t, 1, src.calls)
}

func TestCachedSourceInvalidate(t *testing.T) {
	cache, _, mr := newCache(t, store(8))
	ctx := context.Background()

	_, err := cache.GetElement(ctx, 8)
	require.NoError(t, err)
	require.NoError(t, cache.Invalidate(ctx, 8))
	assert.False(t, mr.Exists("mapdna:element:8"))
}

func TestCachedSourceHandleElementsChanged(t *testing.T) {
	cache, src, mr := newCache(t, store(8), store(9))
	ctx := context.Background()

	_, err := cache.GetElements(ctx, []int64{8, 9})
	require.NoError(t, err)
	require.True(t, mr.Exists("mapdna:element:8"))

	bus := events.NewInMemoryBus(logger.Discard())
	bus.Subscribe(events.ElementsChanged{}.EventName(), events.HandlerFunc(cache.HandleElementsChanged))
	require.NoError(t, bus.PublishSync(ctx, events.ElementsChanged{
		BaseEvent: events.NewBaseEvent(),
		IDs:       []int64{8, 9},
		Change:    events.ElementSaved,
	}))
	assert.False(t, mr.Exists("mapdna:element:8"))
	assert.False(t, mr.Exists("mapdna:element:9"))

	calls := src.calls
	_, err = cache.GetElement(ctx, 8)
	require.NoError(t, err)
	assert.Equal(t, calls+1, src.calls)
}

func TestCachedSourceNotFoundIsNotCached(t *testing.T) {
	cache, _, mr := newCache(t)
	_, err := cache.GetElement(context.Background(), 404)
	require.Error(t, err)
	assert.False(t, mr.Exists("mapdna:element:404"))
}
