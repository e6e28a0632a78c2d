package memory

import (
	"context"
	"math"
	"slices"
	"sort"
	"sync"

	"github.com/jinford/earnings-rag/internal/core/indexing"
	"github.com/jinford/earnings-rag/internal/core/retrieval"
	"github.com/jinford/earnings-rag/internal/shared/apperr"
)

type entry struct {
	id       string
	vector   []float32
	norm     float64
	metadata map[string]string
}

// VectorStore はコサイン類似度の総当たりで検索するプロセス内ベクトルストア
// 同点のスコアは登録順を保つ
type VectorStore struct {
	mu        sync.RWMutex
	dimension int
	entries   []*entry
	byID      map[string]*entry
}

// NewVectorStore は新しいVectorStoreを作成する（dimension が0なら次元を検査しない）
func NewVectorStore(dimension int) *VectorStore {
	return &VectorStore{
		dimension: dimension,
		byID:      make(map[string]*entry),
	}
}

// Upsert はIDをキーにエントリを登録する。既存IDは登録順を保ったまま上書きする
func (s *VectorStore) Upsert(ctx context.Context, record indexing.Record) error {
	if err := s.checkDimension(record.Vector); err != nil {
		return err
	}

	e := &entry{
		id:       record.ID,
		vector:   slices.Clone(record.Vector),
		norm:     norm(record.Vector),
		metadata: cloneMetadata(record.Metadata),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byID[record.ID]; ok {
		*existing = *e
		return nil
	}
	s.entries = append(s.entries, e)
	s.byID[record.ID] = e
	return nil
}

// DeleteBySource は source メタデータが一致するエントリを削除する
func (s *VectorStore) DeleteBySource(ctx context.Context, source string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.entries)
	s.entries = slices.DeleteFunc(s.entries, func(e *entry) bool {
		if e.metadata[indexing.MetaSource] != source {
			return false
		}
		delete(s.byID, e.id)
		return true
	})
	return before - len(s.entries), nil
}

// Query はフィルタを満たすエントリをコサイン類似度の降順で最大 topK 件返す
func (s *VectorStore) Query(ctx context.Context, vector []float32, topK int, filter retrieval.Filter) ([]retrieval.Match, error) {
	if err := s.checkDimension(vector); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []retrieval.Match{}, nil
	}

	queryNorm := norm(vector)

	s.mu.RLock()
	matches := make([]retrieval.Match, 0, len(s.entries))
	for _, e := range s.entries {
		if !filter.Matches(e.metadata) {
			continue
		}
		matches = append(matches, retrieval.Match{
			ChunkID:  e.id,
			Score:    cosine(vector, queryNorm, e.vector, e.norm),
			Snippet:  e.metadata[indexing.MetaSnippet],
			Metadata: cloneMetadata(e.metadata),
		})
	}
	s.mu.RUnlock()

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Count は登録済みエントリ数を返す
func (s *VectorStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

func (s *VectorStore) checkDimension(vector []float32) error {
	if s.dimension > 0 && len(vector) != s.dimension {
		return apperr.NewConfigError("OPENAI_EMBEDDING_DIMENSION",
			"vector dimension mismatch: store expects %d, got %d", s.dimension, len(vector))
	}
	return nil
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosine(a []float32, aNorm float64, b []float32, bNorm float64) float64 {
	if aNorm == 0 || bNorm == 0 {
		return 0
	}
	n := min(len(a), len(b))
	var dot float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (aNorm * bNorm)
}

func cloneMetadata(meta map[string]string) map[string]string {
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}

// インターフェース実装の確認
var (
	_ indexing.VectorWriter    = (*VectorStore)(nil)
	_ retrieval.VectorSearcher = (*VectorStore)(nil)
)
