package postgres

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jinford/earnings-rag/internal/core/retrieval"
)

var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// validIdentifier はテーブル名として埋め込んでよい識別子かを返す
func validIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

func schemaStatements(table string, dimension int) []string {
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id         TEXT PRIMARY KEY,
	source     TEXT NOT NULL,
	embedding  vector(%d) NOT NULL,
	metadata   JSONB NOT NULL DEFAULT '{}'::jsonb,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, table, dimension),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_source_idx ON %s (source)`, table, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw (embedding vector_cosine_ops)`, table, table),
	}
}

func dimensionQuery() string {
	return `SELECT atttypmod FROM pg_attribute WHERE attrelid = to_regclass($1) AND attname = 'embedding'`
}

func upsertQuery(table string) string {
	return fmt.Sprintf(`INSERT INTO %s (id, source, embedding, metadata, updated_at)
VALUES ($1, $2, $3, $4::jsonb, now())
ON CONFLICT (id) DO UPDATE SET
	source = EXCLUDED.source,
	embedding = EXCLUDED.embedding,
	metadata = EXCLUDED.metadata,
	updated_at = now()`, table)
}

func deleteBySourceQuery(table string) string {
	return fmt.Sprintf(`DELETE FROM %s WHERE source = $1`, table)
}

func countQuery(table string) string {
	return fmt.Sprintf(`SELECT count(*) FROM %s`, table)
}

// hnsw.ef_search の上限は pgvector の制約で1000
const (
	minFilteredEfSearch = 100
	maxFilteredEfSearch = 1000
)

// filteredScanSettings はフィルタ付き検索の前にトランザクション内で実行する設定
// 反復走査（pgvector 0.8 以降）でフィルタ後の件数が topK に達するまで索引を辿る
func filteredScanSettings(topK int) []string {
	ef := min(max(topK*10, minFilteredEfSearch), maxFilteredEfSearch)
	return []string{
		`SET LOCAL hnsw.iterative_scan = strict_order`,
		fmt.Sprintf(`SET LOCAL hnsw.ef_search = %d`, ef),
	}
}

// buildSearchQuery は類似検索のSQLを組み立てる
// $1 はクエリベクトル、$2 は件数。フィルタはフィールド名の辞書順に $3 以降へ割り当てる
func buildSearchQuery(table string, filter retrieval.Filter) (string, []any) {
	var (
		conditions []string
		args       []any
	)
	for _, field := range filter.Fields() {
		keyPos := len(args) + 3
		conditions = append(conditions, fmt.Sprintf("metadata->>$%d::text = ANY($%d::text[])", keyPos, keyPos+1))
		args = append(args, field, filter[field])
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT id, 1 - (embedding <=> $1) AS score, metadata FROM %s", table)
	if len(conditions) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conditions, " AND "))
	}
	sb.WriteString(" ORDER BY embedding <=> $1 LIMIT $2")

	return sb.String(), args
}
