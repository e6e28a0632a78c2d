package indexing

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/jinford/earnings-rag/internal/core/chunking"
	"github.com/jinford/earnings-rag/internal/shared/apperr"
)

// DefaultWorkers はチャンク処理の既定並列数
const DefaultWorkers = 8

// Embedder はテキストのEmbedding生成インターフェース
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Record はベクトルストアへ書き込む1エントリ
type Record struct {
	ID       string
	Vector   []float32
	Metadata map[string]string
}

// VectorWriter はベクトルストアへの書き込みインターフェース
// Upsert はID単位で冪等であること
type VectorWriter interface {
	Upsert(ctx context.Context, record Record) error
	DeleteBySource(ctx context.Context, source string) (int, error)
}

// Failure は1チャンク分の失敗
type Failure struct {
	ChunkID string
	Err     error
}

// Result はバッチ処理の結果
type Result struct {
	Documents int
	Chunks    int
	Upserted  int
	Failed    int
	Failures  []Failure
}

// Indexer はチャンクをEmbeddingしてベクトルストアに登録する
type Indexer struct {
	chunker   *chunking.Chunker
	embedder  Embedder
	store     VectorWriter
	workers   int
	limiter   *rate.Limiter
	dimension int
	logger    *slog.Logger
}

// IndexerOption は Indexer のオプション設定
type IndexerOption func(*Indexer)

// WithIndexerLogger は Indexer にロガーを設定する
func WithIndexerLogger(logger *slog.Logger) IndexerOption {
	return func(ix *Indexer) {
		ix.logger = logger
	}
}

// WithWorkers は並列ワーカー数を設定する
func WithWorkers(n int) IndexerOption {
	return func(ix *Indexer) {
		if n > 0 {
			ix.workers = n
		}
	}
}

// WithRateLimit は Embedding 呼び出しの毎秒上限を設定する
func WithRateLimit(perSecond float64, burst int) IndexerOption {
	return func(ix *Indexer) {
		if perSecond > 0 {
			ix.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
		}
	}
}

// WithIndexDimension は期待するベクトル次元を設定する（0は検査しない）
func WithIndexDimension(dimension int) IndexerOption {
	return func(ix *Indexer) {
		ix.dimension = dimension
	}
}

// NewIndexer は新しいIndexerを作成する
func NewIndexer(chunker *chunking.Chunker, embedder Embedder, store VectorWriter, opts ...IndexerOption) *Indexer {
	ix := &Indexer{
		chunker:  chunker,
		embedder: embedder,
		store:    store,
		workers:  DefaultWorkers,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(ix)
	}
	if ix.logger == nil {
		ix.logger = slog.Default()
	}
	return ix
}

// IndexDocuments はドキュメントを分割してまとめて登録する
func (ix *Indexer) IndexDocuments(ctx context.Context, docs []chunking.Document) (*Result, error) {
	var chunks []chunking.Chunk
	for _, doc := range docs {
		docChunks := ix.chunker.ChunkDocument(doc)
		ix.logger.Debug("document chunked", "source", doc.Source, "pages", len(doc.Pages), "chunks", len(docChunks))
		chunks = append(chunks, docChunks...)
	}

	result, err := ix.Index(ctx, chunks)
	if result != nil {
		result.Documents = len(docs)
	}
	return result, err
}

// Reindex はドキュメント単位で既存エントリを削除してから登録し直す
func (ix *Indexer) Reindex(ctx context.Context, docs []chunking.Document) (*Result, error) {
	for _, doc := range docs {
		deleted, err := ix.store.DeleteBySource(ctx, doc.Source)
		if err != nil {
			return nil, apperr.NewServiceError("vector-store", "delete source "+doc.Source, err)
		}
		ix.logger.Info("removed previous entries", "source", doc.Source, "deleted", deleted)
	}
	return ix.IndexDocuments(ctx, docs)
}

// Index はチャンクを並列にEmbeddingして登録する
// 個々のチャンクの失敗はスキップして集計し、設定エラーのみバッチを中断する
func (ix *Indexer) Index(ctx context.Context, chunks []chunking.Chunk) (*Result, error) {
	result := &Result{Chunks: len(chunks)}
	if len(chunks) == 0 {
		return result, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.workers)

	var mu sync.Mutex
	for _, chunk := range chunks {
		g.Go(func() error {
			err := ix.indexChunk(gctx, chunk)

			mu.Lock()
			defer mu.Unlock()

			if err == nil {
				result.Upserted++
				return nil
			}

			result.Failed++
			result.Failures = append(result.Failures, Failure{ChunkID: chunk.ID, Err: err})
			if apperr.IsConfiguration(err) {
				return err
			}
			ix.logger.Warn("chunk indexing failed, skipping", "chunkID", chunk.ID, "error", err)
			return nil
		})
	}

	waitErr := g.Wait()
	sort.Slice(result.Failures, func(i, j int) bool {
		return result.Failures[i].ChunkID < result.Failures[j].ChunkID
	})

	if waitErr != nil {
		return result, fmt.Errorf("indexing aborted: %w", waitErr)
	}
	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("indexing canceled: %w", err)
	}

	ix.logger.Info("indexing completed",
		"chunks", result.Chunks,
		"upserted", result.Upserted,
		"failed", result.Failed,
	)
	return result, nil
}

func (ix *Indexer) indexChunk(ctx context.Context, chunk chunking.Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if ix.limiter != nil {
		if err := ix.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter wait failed: %w", err)
		}
	}

	vector, err := ix.embedder.Embed(ctx, chunk.Text)
	if err != nil {
		return apperr.NewServiceError("embedding", "embed chunk", err)
	}
	if ix.dimension > 0 && len(vector) != ix.dimension {
		return apperr.NewConfigError("OPENAI_EMBEDDING_DIMENSION",
			"embedding dimension mismatch: expected %d, got %d", ix.dimension, len(vector))
	}

	record := Record{
		ID:       chunk.ID,
		Vector:   vector,
		Metadata: BuildMetadata(chunk),
	}
	if err := ix.store.Upsert(ctx, record); err != nil {
		return apperr.NewServiceError("vector-store", "upsert", err)
	}
	return nil
}
