package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/jinford/earnings-rag/internal/shared/apperr"
)

// ベクトルストアのバックエンド
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

var indexNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// Config はアプリケーション全体の設定を保持します
// 起動時に一度だけ読み込み、以降は変更しません
type Config struct {
	Database    DatabaseConfig
	OpenAI      OpenAIConfig
	VectorStore VectorStoreConfig
	Redis       RedisConfig
	Retrieval   RetrievalConfig
	Chunking    ChunkingConfig
	Indexing    IndexingConfig
	Log         LogConfig

	// CorpusDir は earnings call ドキュメントの置き場所
	CorpusDir string
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// OpenAIConfig はOpenAI API設定（Embeddings + 回答生成）
type OpenAIConfig struct {
	APIKey             string
	EmbeddingModel     string
	EmbeddingDimension int
	CompletionModel    string
	Temperature        float64
	Timeout            time.Duration
}

// VectorStoreConfig はベクトルストア設定
// memory はプロセス内のみで保持されるため、テストや単一プロセスでの組み込み用途に限る
type VectorStoreConfig struct {
	Backend string // "postgres" or "memory"
	Index   string // テーブル名
}

// RedisConfig はチャット履歴用Redis設定
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	HistoryTTL time.Duration
}

// RetrievalConfig は検索設定
type RetrievalConfig struct {
	TopK         int
	RewriteTurns int // 追加質問の書き換えに使う直近ターン数（0で書き換えない）
}

// ChunkingConfig はチャンク分割設定（語数単位）
type ChunkingConfig struct {
	MaxSize int
	Overlap int
}

// IndexingConfig はインデックス処理の並列度とレート制限
type IndexingConfig struct {
	Workers   int
	RateLimit float64 // Embedding 呼び出しの毎秒上限（0で無制限）
	Burst     int
}

// LogConfig はログ出力設定
type LogConfig struct {
	Level  string
	Format string
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "earnings"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "earnings"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		OpenAI: OpenAIConfig{
			APIKey:             getEnv("OPENAI_API_KEY", ""),
			EmbeddingModel:     getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingDimension: getEnvAsInt("OPENAI_EMBEDDING_DIMENSION", 1536),
			CompletionModel:    getEnv("OPENAI_COMPLETION_MODEL", "gpt-4o-mini"),
			Temperature:        getEnvAsFloat("OPENAI_TEMPERATURE", 0.1),
			Timeout:            getEnvAsDuration("OPENAI_TIMEOUT", 60*time.Second),
		},
		VectorStore: VectorStoreConfig{
			Backend: getEnv("VECTOR_STORE", BackendPostgres),
			Index:   getEnv("VECTOR_INDEX", "earnings_chunks"),
		},
		Redis: RedisConfig{
			Addr:       getEnv("REDIS_ADDR", "localhost:6379"),
			Password:   getEnv("REDIS_PASSWORD", ""),
			DB:         getEnvAsInt("REDIS_DB", 0),
			HistoryTTL: getEnvAsDuration("HISTORY_TTL", 24*time.Hour),
		},
		Retrieval: RetrievalConfig{
			TopK:         getEnvAsInt("RETRIEVAL_TOP_K", 8),
			RewriteTurns: getEnvAsInt("REWRITE_HISTORY_TURNS", 4),
		},
		Chunking: ChunkingConfig{
			MaxSize: getEnvAsInt("CHUNK_MAX_SIZE", 1000),
			Overlap: getEnvAsInt("CHUNK_OVERLAP", 200),
		},
		Indexing: IndexingConfig{
			Workers:   getEnvAsInt("INDEX_WORKERS", 8),
			RateLimit: getEnvAsFloat("EMBED_RATE_LIMIT", 20),
			Burst:     getEnvAsInt("EMBED_BURST", 5),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		CorpusDir: getEnv("CORPUS_DIR", "data/raw"),
	}

	return cfg, nil
}

// RequirePersistentStore はコマンド間でインデックスを共有できるバックエンドかを検証します
// CLI の各コマンドは別プロセスで動くため、memory では index した内容を search/ask から参照できません
func (c *Config) RequirePersistentStore() error {
	if c.VectorStore.Backend == BackendMemory {
		return apperr.NewConfigError("VECTOR_STORE",
			"backend %q does not persist between commands; use %s (memory is for tests and embedded use only)",
			BackendMemory, BackendPostgres)
	}
	return nil
}

// Validate は設定値を検証し、不備をまとめて返します
// 返るエラーは apperr.IsConfiguration を満たします
func (c *Config) Validate() error {
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, apperr.NewConfigError(field, format, args...))
	}

	if c.OpenAI.APIKey == "" {
		add("OPENAI_API_KEY", "is required")
	}
	if c.OpenAI.EmbeddingDimension <= 0 {
		add("OPENAI_EMBEDDING_DIMENSION", "must be positive (got %d)", c.OpenAI.EmbeddingDimension)
	}
	if c.OpenAI.Temperature < 0 || c.OpenAI.Temperature > 2 {
		add("OPENAI_TEMPERATURE", "must be between 0 and 2 (got %g)", c.OpenAI.Temperature)
	}
	if c.OpenAI.Timeout <= 0 {
		add("OPENAI_TIMEOUT", "must be positive (got %s)", c.OpenAI.Timeout)
	}

	switch c.VectorStore.Backend {
	case BackendPostgres:
		if c.Database.Host == "" {
			add("DB_HOST", "is required for the postgres backend")
		}
	case BackendMemory:
	default:
		add("VECTOR_STORE", "unknown backend %q (want %s or %s)", c.VectorStore.Backend, BackendPostgres, BackendMemory)
	}
	if !indexNamePattern.MatchString(c.VectorStore.Index) {
		add("VECTOR_INDEX", "invalid index name %q", c.VectorStore.Index)
	}

	if c.Retrieval.TopK <= 0 {
		add("RETRIEVAL_TOP_K", "must be positive (got %d)", c.Retrieval.TopK)
	}
	if c.Retrieval.RewriteTurns < 0 {
		add("REWRITE_HISTORY_TURNS", "must not be negative (got %d)", c.Retrieval.RewriteTurns)
	}
	if c.Chunking.MaxSize <= 0 {
		add("CHUNK_MAX_SIZE", "must be positive (got %d)", c.Chunking.MaxSize)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.MaxSize {
		add("CHUNK_OVERLAP", "must be in [0, CHUNK_MAX_SIZE) (got %d)", c.Chunking.Overlap)
	}
	if c.Indexing.Workers <= 0 {
		add("INDEX_WORKERS", "must be positive (got %d)", c.Indexing.Workers)
	}
	if c.Indexing.RateLimit < 0 {
		add("EMBED_RATE_LIMIT", "must not be negative (got %g)", c.Indexing.RateLimit)
	}

	return errors.Join(errs...)
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat は環境変数を浮動小数点数として取得します
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration は環境変数を time.Duration として取得します（例: 30s, 24h）
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
