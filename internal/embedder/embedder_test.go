package embedder

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache(t *testing.T) {
	t.Run("get returns a copy", func(t *testing.T) {
		cache := NewCache(10)
		cache.Add(KindRule, "m", "refund window", []float32{1, 2, 3})

		got, ok := cache.Get(KindRule, "m", "refund window")
		require.True(t, ok)
		got[0] = 99

		again, ok := cache.Get(KindRule, "m", "refund window")
		require.True(t, ok)
		assert.Equal(t, float32(1), again[0])
	})

	t.Run("keyed by kind and model", func(t *testing.T) {
		cache := NewCache(10)
		cache.Add(KindRule, "m", "refund window", []float32{1})

		_, ok := cache.Get(KindQuery, "m", "refund window")
		assert.False(t, ok)
		_, ok = cache.Get(KindRule, "other", "refund window")
		assert.False(t, ok)
	})

	t.Run("evicts least recently used", func(t *testing.T) {
		cache := NewCache(2)
		cache.Add(KindRule, "m", "a", nil)
		cache.Add(KindRule, "m", "b", nil)
		_, _ = cache.Get(KindRule, "m", "a")
		cache.Add(KindRule, "m", "c", nil)

		_, okA := cache.Get(KindRule, "m", "a")
		_, okB := cache.Get(KindRule, "m", "b")
		assert.True(t, okA)
		assert.False(t, okB)
		assert.Equal(t, 2, cache.Size())
	})

	t.Run("clear", func(t *testing.T) {
		cache := NewCache(0)
		cache.Add(KindSummary, "m", "a", nil)
		cache.Clear()
		assert.Zero(t, cache.Size())
	})
}

func TestEmbedAll(t *testing.T) {
	ctx := context.Background()

	t.Run("fetches misses in batches and keeps order", func(t *testing.T) {
		texts := make([]string, MaxBatchSize+5)
		for i := range texts {
			texts[i] = fmt.Sprintf("rule %d", i)
		}
		cache := NewCache(1000)
		cache.Add(KindRule, "m", texts[3], []float32{-1})

		var batches []int
		vecs, err := embedAll(ctx, cache, KindRule, "m", texts, func(_ context.Context, batch []string) ([][]float32, error) {
			batches = append(batches, len(batch))
			out := make([][]float32, len(batch))
			for i, text := range batch {
				var n int
				_, _ = fmt.Sscanf(text, "rule %d", &n)
				out[i] = []float32{float32(n)}
			}
			return out, nil
		})
		require.NoError(t, err)

		assert.Equal(t, []int{MaxBatchSize, 4}, batches)
		require.Len(t, vecs, len(texts))
		assert.Equal(t, []float32{-1}, vecs[3])
		assert.Equal(t, []float32{float32(MaxBatchSize + 4)}, vecs[MaxBatchSize+4])
		assert.Equal(t, len(texts), cache.Size())
	})

	t.Run("empty text", func(t *testing.T) {
		_, err := embedAll(ctx, nil, KindRule, "m", []string{"a", "  "}, nil)
		assert.ErrorIs(t, err, ErrEmptyText)
	})

	t.Run("short response", func(t *testing.T) {
		_, err := embedAll(ctx, nil, KindRule, "m", []string{"a", "b"}, func(context.Context, []string) ([][]float32, error) {
			return [][]float32{{1}}, nil
		})
		assert.ErrorIs(t, err, ErrProviderFailed)
	})

	t.Run("no texts", func(t *testing.T) {
		vecs, err := embedAll(ctx, nil, KindRule, "m", nil, nil)
		require.NoError(t, err)
		assert.Empty(t, vecs)
	})
}

func TestRuleText(t *testing.T) {
	assert.Equal(t, "Credit limit\nOrders above 1000 are rejected", RuleText("Credit limit", "Orders above 1000 are rejected"))
	assert.Equal(t, "Credit limit", RuleText("Credit limit", ""))
}

func TestNormalizeVector(t *testing.T) {
	v := NormalizeVector([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := []float32{0, 0}
	assert.Equal(t, zero, NormalizeVector(zero))
}

func TestLocalProvider(t *testing.T) {
	ctx := context.Background()
	p := NewLocalProvider(NewCache(10))

	vecs, err := p.Embed(ctx, KindRule, "orders over 100 ship free", "returns within 30 days")
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Len(t, vecs[0], LocalDimension)
	assert.NotEqual(t, vecs[0], vecs[1])

	query, err := p.Embed(ctx, KindQuery, "orders over 100 ship free")
	require.NoError(t, err)
	assert.Equal(t, vecs[0], query[0])

	_, err = p.Embed(ctx, KindRule, "")
	assert.ErrorIs(t, err, ErrEmptyText)
}
