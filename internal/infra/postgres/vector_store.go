package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/jinford/earnings-rag/internal/core/indexing"
	"github.com/jinford/earnings-rag/internal/core/retrieval"
	"github.com/jinford/earnings-rag/internal/shared/apperr"
)

// VectorStore は pgvector を使ったベクトルストア
// 同スコアの順序は pgvector の走査順に依存し、決定的ではない
type VectorStore struct {
	pool      *pgxpool.Pool
	table     string
	dimension int
	logger    *slog.Logger
}

// VectorStoreOption は VectorStore のオプション設定
type VectorStoreOption func(*VectorStore)

// WithVectorStoreLogger は VectorStore にロガーを設定する
func WithVectorStoreLogger(logger *slog.Logger) VectorStoreOption {
	return func(s *VectorStore) {
		s.logger = logger
	}
}

// NewVectorStore は新しいVectorStoreを作成する
func NewVectorStore(pool *pgxpool.Pool, table string, dimension int, opts ...VectorStoreOption) (*VectorStore, error) {
	if !validIdentifier(table) {
		return nil, apperr.NewConfigError("VECTOR_INDEX", "invalid table name %q", table)
	}
	if dimension <= 0 {
		return nil, apperr.NewConfigError("OPENAI_EMBEDDING_DIMENSION", "must be positive (got %d)", dimension)
	}

	s := &VectorStore{
		pool:      pool,
		table:     table,
		dimension: dimension,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

// EnsureSchema はテーブルとインデックスを作成し、既存テーブルの次元を検証する
func (s *VectorStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements(s.table, s.dimension) {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to prepare vector table: %w", err)
		}
	}

	var typmod int32
	if err := s.pool.QueryRow(ctx, dimensionQuery(), s.table).Scan(&typmod); err != nil {
		return fmt.Errorf("failed to read vector dimension: %w", err)
	}
	if int(typmod) != s.dimension {
		return apperr.NewConfigError("OPENAI_EMBEDDING_DIMENSION",
			"table %s stores %d-dimensional vectors, configured %d", s.table, typmod, s.dimension)
	}

	s.logger.Debug("vector schema ready", "table", s.table, "dimension", s.dimension)
	return nil
}

// Upsert はIDをキーにエントリを登録または上書きする
func (s *VectorStore) Upsert(ctx context.Context, record indexing.Record) error {
	if err := s.checkDimension(record.Vector); err != nil {
		return err
	}

	metadata, err := json.Marshal(record.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	_, err = s.pool.Exec(ctx, upsertQuery(s.table),
		record.ID,
		record.Metadata[indexing.MetaSource],
		pgvector.NewVector(record.Vector),
		string(metadata),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert %s: %w", record.ID, err)
	}
	return nil
}

// DeleteBySource は source が一致するエントリを削除する
func (s *VectorStore) DeleteBySource(ctx context.Context, source string) (int, error) {
	tag, err := s.pool.Exec(ctx, deleteBySourceQuery(s.table), source)
	if err != nil {
		return 0, fmt.Errorf("failed to delete source %s: %w", source, err)
	}
	return int(tag.RowsAffected()), nil
}

// Query はコサイン類似度の降順で最大 topK 件を返す
// score は 1 - コサイン距離
func (s *VectorStore) Query(ctx context.Context, vector []float32, topK int, filter retrieval.Filter) ([]retrieval.Match, error) {
	if err := s.checkDimension(vector); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []retrieval.Match{}, nil
	}

	query, filterArgs := buildSearchQuery(s.table, filter)
	args := append([]any{pgvector.NewVector(vector), topK}, filterArgs...)

	if len(filter) == 0 {
		return s.queryMatches(ctx, s.pool, query, args, topK)
	}

	// HNSW はフィルタを走査後に適用するため、ef_search 件の候補で打ち切ると件数が不足する
	// フィルタ付き検索はトランザクション内で反復走査を有効にする
	var matches []retrieval.Match
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, stmt := range filteredScanSettings(topK) {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("failed to configure filtered scan: %w", err)
			}
		}
		var err error
		matches, err = s.queryMatches(ctx, tx, query, args, topK)
		return err
	})
	if err != nil {
		return nil, err
	}
	return matches, nil
}

// querier は *pgxpool.Pool と pgx.Tx の共通部分
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (s *VectorStore) queryMatches(ctx context.Context, q querier, query string, args []any, topK int) ([]retrieval.Match, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query vectors: %w", err)
	}
	defer rows.Close()

	matches := make([]retrieval.Match, 0, topK)
	for rows.Next() {
		var (
			m        retrieval.Match
			metadata []byte
		)
		if err := rows.Scan(&m.ChunkID, &m.Score, &metadata); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		if err := json.Unmarshal(metadata, &m.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata of %s: %w", m.ChunkID, err)
		}
		m.Snippet = m.Metadata[indexing.MetaSnippet]
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate matches: %w", err)
	}
	return matches, nil
}

// Count は登録済みエントリ数を返す
func (s *VectorStore) Count(ctx context.Context) (int, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, countQuery(s.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count vectors: %w", err)
	}
	return int(n), nil
}

func (s *VectorStore) checkDimension(vector []float32) error {
	if len(vector) != s.dimension {
		return apperr.NewConfigError("OPENAI_EMBEDDING_DIMENSION",
			"vector dimension mismatch: table %s expects %d, got %d", s.table, s.dimension, len(vector))
	}
	return nil
}

// インターフェース実装の確認
var (
	_ indexing.VectorWriter    = (*VectorStore)(nil)
	_ retrieval.VectorSearcher = (*VectorStore)(nil)
)
