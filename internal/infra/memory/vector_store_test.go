package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/earnings-rag/internal/core/chunking"
	"github.com/jinford/earnings-rag/internal/core/indexing"
	"github.com/jinford/earnings-rag/internal/core/retrieval"
	"github.com/jinford/earnings-rag/internal/shared/apperr"
)

func record(id string, vector []float32, quarter, speaker string) indexing.Record {
	return indexing.Record{
		ID:     id,
		Vector: vector,
		Metadata: map[string]string{
			indexing.MetaSource:  id[:len(id)-9],
			indexing.MetaSnippet: "snippet " + id,
			indexing.MetaQuarter: quarter,
			indexing.MetaSpeaker: speaker,
		},
	}
}

func seed(t *testing.T, s *VectorStore) {
	t.Helper()
	ctx := context.Background()
	for _, r := range []indexing.Record{
		record("q1-ceo_chunk000", []float32{1, 0}, "Q1-2024", "CEO"),
		record("q1-cfo_chunk000", []float32{0.9, 0.1}, "Q1-2024", "CFO"),
		record("q2-ceo_chunk000", []float32{0.7, 0.7}, "Q2-2024", "CEO"),
		record("q3-ceo_chunk000", []float32{0, 1}, "Q3-2024", "CEO"),
	} {
		require.NoError(t, s.Upsert(ctx, r))
	}
}

func TestVectorStore_QueryOrdersByCosine(t *testing.T) {
	s := NewVectorStore(2)
	seed(t, s)

	matches, err := s.Query(context.Background(), []float32{1, 0}, 3, nil)

	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, "q1-ceo_chunk000", matches[0].ChunkID)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-9)
	assert.Equal(t, "q1-cfo_chunk000", matches[1].ChunkID)
	assert.Equal(t, "q2-ceo_chunk000", matches[2].ChunkID)
	assert.Equal(t, "snippet q1-ceo_chunk000", matches[0].Snippet)
	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].Score, matches[i].Score)
	}
}

func TestVectorStore_QueryAppliesFilter(t *testing.T) {
	s := NewVectorStore(2)
	seed(t, s)

	filter := retrieval.Filter{
		indexing.MetaQuarter: {"Q1-2024", "Q2-2024"},
		indexing.MetaSpeaker: {"CEO"},
	}
	matches, err := s.Query(context.Background(), []float32{1, 0}, 10, filter)

	require.NoError(t, err)
	require.Len(t, matches, 2)
	for _, m := range matches {
		assert.True(t, filter.Matches(m.Metadata))
	}
}

func TestVectorStore_TiesKeepInsertionOrder(t *testing.T) {
	s := NewVectorStore(2)
	ctx := context.Background()
	for _, id := range []string{"c_chunk000", "a_chunk000", "b_chunk000"} {
		require.NoError(t, s.Upsert(ctx, record(id, []float32{1, 1}, "Q1-2024", "CEO")))
	}

	matches, err := s.Query(ctx, []float32{1, 1}, 3, nil)

	require.NoError(t, err)
	assert.Equal(t, "c_chunk000", matches[0].ChunkID)
	assert.Equal(t, "a_chunk000", matches[1].ChunkID)
	assert.Equal(t, "b_chunk000", matches[2].ChunkID)
}

func TestVectorStore_UpsertOverwrites(t *testing.T) {
	s := NewVectorStore(2)
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, record("x_chunk000", []float32{1, 0}, "Q1-2024", "CEO")))
	require.NoError(t, s.Upsert(ctx, record("x_chunk000", []float32{0, 1}, "Q2-2024", "CFO")))

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	matches, err := s.Query(ctx, []float32{0, 1}, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, "Q2-2024", matches[0].Metadata[indexing.MetaQuarter])
	assert.InDelta(t, 1.0, matches[0].Score, 1e-9)
}

func TestVectorStore_DeleteBySource(t *testing.T) {
	s := NewVectorStore(2)
	seed(t, s)
	ctx := context.Background()

	deleted, err := s.DeleteBySource(ctx, "q1-ceo")
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	require.NoError(t, s.Upsert(ctx, record("q1-ceo_chunk000", []float32{1, 0}, "Q1-2024", "CEO")))
	count, err = s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestVectorStore_EmptyStoreReturnsEmpty(t *testing.T) {
	s := NewVectorStore(2)

	matches, err := s.Query(context.Background(), []float32{1, 0}, 5, nil)

	require.NoError(t, err)
	assert.NotNil(t, matches)
	assert.Empty(t, matches)
}

func TestVectorStore_DimensionMismatch(t *testing.T) {
	s := NewVectorStore(3)

	err := s.Upsert(context.Background(), record("x_chunk000", []float32{1, 0}, "Q1-2024", "CEO"))
	assert.True(t, apperr.IsConfiguration(err))

	_, err = s.Query(context.Background(), []float32{1}, 1, nil)
	assert.True(t, apperr.IsConfiguration(err))
}

func TestVectorStore_ConcurrentUpserts(t *testing.T) {
	s := NewVectorStore(2)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := chunking.ChunkID(fmt.Sprintf("doc%02d", i), 0)
			assert.NoError(t, s.Upsert(ctx, record(id, []float32{1, float32(i)}, "Q1-2024", "CEO")))
		}()
	}
	wg.Wait()

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 50, count)
}
