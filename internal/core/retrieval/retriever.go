package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jinford/earnings-rag/internal/shared/apperr"
)

// DefaultTopK は top_k 未指定時の既定件数
const DefaultTopK = 8

// Embedder はテキストのEmbedding生成インターフェース
// インデックス時と同じモデルを使うこと
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorSearcher はベクトルストアへの類似検索インターフェース
// 結果はスコアの降順で返すこと。同点の順序はストア依存で不定
type VectorSearcher interface {
	Query(ctx context.Context, vector []float32, topK int, filter Filter) ([]Match, error)
}

// Retriever はクエリをEmbeddingしてフィルタ付き類似検索を行う
type Retriever struct {
	embedder  Embedder
	searcher  VectorSearcher
	topK      int
	dimension int
	logger    *slog.Logger
}

// RetrieverOption は Retriever のオプション設定
type RetrieverOption func(*Retriever)

// WithRetrieverLogger は Retriever にロガーを設定する
func WithRetrieverLogger(logger *slog.Logger) RetrieverOption {
	return func(r *Retriever) {
		r.logger = logger
	}
}

// WithDefaultTopK は top_k 未指定時の件数を設定する
func WithDefaultTopK(topK int) RetrieverOption {
	return func(r *Retriever) {
		if topK > 0 {
			r.topK = topK
		}
	}
}

// WithDimension は期待するクエリベクトルの次元を設定する（0は検査しない）
func WithDimension(dimension int) RetrieverOption {
	return func(r *Retriever) {
		r.dimension = dimension
	}
}

// NewRetriever は新しいRetrieverを作成する
func NewRetriever(embedder Embedder, searcher VectorSearcher, opts ...RetrieverOption) *Retriever {
	r := &Retriever{
		embedder: embedder,
		searcher: searcher,
		topK:     DefaultTopK,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// DefaultTopK は設定済みの既定件数を返す
func (r *Retriever) DefaultTopK() int {
	return r.topK
}

// Retrieve はクエリに類似するチャンクを最大 topK 件返す
// 空のストアに対しては空スライスを返し、エラーにはしない
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int, filter Filter) ([]Match, error) {
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if topK <= 0 {
		topK = r.topK
	}

	if filter.AdmitsNothing() {
		r.logger.Debug("filter admits nothing, skipping search", "filter", filter)
		return []Match{}, nil
	}

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, apperr.NewServiceError("embedding", "embed query", err)
	}
	if r.dimension > 0 && len(vector) != r.dimension {
		return nil, apperr.NewConfigError("OPENAI_EMBEDDING_DIMENSION",
			"query embedding dimension mismatch: expected %d, got %d", r.dimension, len(vector))
	}

	matches, err := r.searcher.Query(ctx, vector, topK, filter)
	if err != nil {
		return nil, apperr.NewServiceError("vector-store", "query", err)
	}
	if len(matches) > topK {
		matches = matches[:topK]
	}
	if matches == nil {
		matches = []Match{}
	}

	r.logger.Info("retrieval completed",
		"topK", topK,
		"filterFields", filter.Fields(),
		"matches", len(matches),
	)
	return matches, nil
}
