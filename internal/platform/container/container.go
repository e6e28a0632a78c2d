package container

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	"github.com/jinford/earnings-rag/internal/core/answer"
	"github.com/jinford/earnings-rag/internal/core/chunking"
	"github.com/jinford/earnings-rag/internal/core/conversation"
	"github.com/jinford/earnings-rag/internal/core/indexing"
	"github.com/jinford/earnings-rag/internal/core/retrieval"
	"github.com/jinford/earnings-rag/internal/infra/corpus"
	"github.com/jinford/earnings-rag/internal/infra/memory"
	"github.com/jinford/earnings-rag/internal/infra/openai"
	"github.com/jinford/earnings-rag/internal/infra/postgres"
	"github.com/jinford/earnings-rag/internal/infra/redis"
	"github.com/jinford/earnings-rag/internal/platform/config"
	"github.com/jinford/earnings-rag/internal/platform/database"
)

// Embedder はインデックス処理と検索で共有する Embedding 生成器
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorStore はコンテナが扱うベクトルストア（postgres / memory）
type VectorStore interface {
	indexing.VectorWriter
	retrieval.VectorSearcher
	Count(ctx context.Context) (int, error)
}

// IndexLocker はインデックス処理の排他制御
type IndexLocker interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// Container はアプリケーションの依存関係を保持する
type Container struct {
	Config       *config.Config
	Loader       *corpus.Loader
	Inventory    *corpus.Inventory
	Indexer      *indexing.Indexer
	Retriever    *retrieval.Retriever
	Composer     *answer.Composer
	Orchestrator *conversation.Orchestrator
	History      *redis.HistoryStore
	Store        VectorStore
	Lock         IndexLocker

	logger      *slog.Logger
	database    *database.Database
	redisClient *goredis.Client
}

type containerOptions struct {
	logger      *slog.Logger
	embedder    Embedder
	llmClient   answer.LLMClient
	counter     answer.TokenCounter
	store       VectorStore
	redisClient *goredis.Client
}

// ContainerOption は Container 構築時のオプション
type ContainerOption func(*containerOptions)

// WithContainerLogger はロガーを差し替える
func WithContainerLogger(logger *slog.Logger) ContainerOption {
	return func(opts *containerOptions) {
		opts.logger = logger
	}
}

// WithContainerEmbedder はカスタム Embedder を注入する
func WithContainerEmbedder(embedder Embedder) ContainerOption {
	return func(opts *containerOptions) {
		opts.embedder = embedder
	}
}

// WithContainerLLMClient は LLM クライアントを差し替える
func WithContainerLLMClient(client answer.LLMClient) ContainerOption {
	return func(opts *containerOptions) {
		opts.llmClient = client
	}
}

// WithContainerTokenCounter は TokenCounter を差し替える
func WithContainerTokenCounter(counter answer.TokenCounter) ContainerOption {
	return func(opts *containerOptions) {
		opts.counter = counter
	}
}

// WithContainerVectorStore はベクトルストアを差し替える（VECTOR_STORE の設定より優先）
func WithContainerVectorStore(store VectorStore) ContainerOption {
	return func(opts *containerOptions) {
		opts.store = store
	}
}

// WithContainerRedisClient は履歴保存用の Redis クライアントを差し替える
func WithContainerRedisClient(client *goredis.Client) ContainerOption {
	return func(opts *containerOptions) {
		opts.redisClient = client
	}
}

// NewContainer は設定からコンテナを生成する。
// VECTOR_STORE=postgres の場合はデータベースに接続し、スキーマを用意する。
func NewContainer(ctx context.Context, cfg *config.Config, opts ...ContainerOption) (*Container, error) {
	options := containerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	if options.store != nil || cfg.VectorStore.Backend == config.BackendMemory {
		store := options.store
		if store == nil {
			store = memory.NewVectorStore(cfg.OpenAI.EmbeddingDimension)
		}
		return newContainer(cfg, nil, store, &localLock{}, options)
	}

	db, err := database.New(ctx, database.ConnectionParams{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		return nil, fmt.Errorf("データベース初期化に失敗しました: %w", err)
	}

	cont, err := NewContainerWithDB(ctx, cfg, db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return cont, nil
}

// NewContainerWithDB は既存の Database を受け取り pgvector バックエンドのコンテナを生成する。
func NewContainerWithDB(ctx context.Context, cfg *config.Config, db *database.Database, opts ...ContainerOption) (*Container, error) {
	options := containerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	store, err := postgres.NewVectorStore(
		db.Pool,
		cfg.VectorStore.Index,
		cfg.OpenAI.EmbeddingDimension,
		postgres.WithVectorStoreLogger(options.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("ベクトルストア初期化に失敗しました: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ベクトルストアのスキーマ作成に失敗しました: %w", err)
	}

	lock := postgres.NewIndexLock(db.Pool, cfg.VectorStore.Index)
	return newContainer(cfg, db, store, lock, options)
}

func newContainer(cfg *config.Config, db *database.Database, store VectorStore, lock IndexLocker, options containerOptions) (*Container, error) {
	logger := options.logger

	// Embedder (OpenAI)
	embedder := options.embedder
	if embedder == nil {
		openaiEmbedder, err := openai.NewEmbedder(
			cfg.OpenAI.APIKey,
			openai.WithEmbeddingModel(cfg.OpenAI.EmbeddingModel),
			openai.WithEmbeddingDimension(cfg.OpenAI.EmbeddingDimension),
			openai.WithEmbeddingTimeout(cfg.OpenAI.Timeout),
		)
		if err != nil {
			return nil, fmt.Errorf("Embedder 初期化に失敗しました: %w", err)
		}
		embedder = openaiEmbedder
	}

	// LLMClient (OpenAI)
	llmClient := options.llmClient
	if llmClient == nil {
		client, err := openai.NewClient(
			cfg.OpenAI.APIKey,
			openai.WithModel(cfg.OpenAI.CompletionModel),
			openai.WithTemperature(cfg.OpenAI.Temperature),
			openai.WithTimeout(cfg.OpenAI.Timeout),
		)
		if err != nil {
			return nil, fmt.Errorf("OpenAI LLMクライアント初期化に失敗しました: %w", err)
		}
		llmClient = client
	}

	// Chunker
	chunker, err := chunking.New(cfg.Chunking.MaxSize, cfg.Chunking.Overlap)
	if err != nil {
		return nil, fmt.Errorf("Chunker 初期化に失敗しました: %w", err)
	}

	// Indexer
	indexer := indexing.NewIndexer(
		chunker,
		embedder,
		store,
		indexing.WithIndexerLogger(logger),
		indexing.WithWorkers(cfg.Indexing.Workers),
		indexing.WithRateLimit(cfg.Indexing.RateLimit, cfg.Indexing.Burst),
		indexing.WithIndexDimension(cfg.OpenAI.EmbeddingDimension),
	)

	// Retriever
	retriever := retrieval.NewRetriever(
		embedder,
		store,
		retrieval.WithRetrieverLogger(logger),
		retrieval.WithDefaultTopK(cfg.Retrieval.TopK),
		retrieval.WithDimension(cfg.OpenAI.EmbeddingDimension),
	)

	// Composer（トークン数の記録は任意）
	composerOpts := []answer.ComposerOption{answer.WithComposerLogger(logger)}
	if options.counter != nil {
		composerOpts = append(composerOpts, answer.WithTokenCounter(options.counter))
	} else if counter, err := openai.NewTokenCounter(); err != nil {
		logger.Warn("token counter unavailable, prompt sizes will not be logged", "error", err)
	} else {
		composerOpts = append(composerOpts, answer.WithTokenCounter(counter))
	}
	composer := answer.NewComposer(llmClient, composerOpts...)

	// Corpus
	loader := corpus.NewLoader(cfg.CorpusDir, corpus.WithLoaderLogger(logger))
	inventory := corpus.NewInventory(loader)

	// Orchestrator
	orchestratorOpts := []conversation.OrchestratorOption{
		conversation.WithOrchestratorLogger(logger),
		conversation.WithMetaRules(conversation.DefaultMetaRules(inventory)),
	}
	if cfg.Retrieval.RewriteTurns > 0 {
		rewriter := conversation.NewQuestionRewriter(
			llmClient,
			conversation.WithRewriterLogger(logger),
			conversation.WithRewriteTurns(cfg.Retrieval.RewriteTurns),
		)
		orchestratorOpts = append(orchestratorOpts, conversation.WithQuestionRewriter(rewriter))
	}
	orchestrator := conversation.NewOrchestrator(retriever, composer, orchestratorOpts...)

	// History (Redis)。接続は最初のコマンド実行時まで遅延される
	redisClient := options.redisClient
	if redisClient == nil {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	history := redis.NewHistoryStore(redisClient, cfg.Redis.HistoryTTL)

	return &Container{
		Config:       cfg,
		Loader:       loader,
		Inventory:    inventory,
		Indexer:      indexer,
		Retriever:    retriever,
		Composer:     composer,
		Orchestrator: orchestrator,
		History:      history,
		Store:        store,
		Lock:         lock,
		logger:       logger,
		database:     db,
		redisClient:  redisClient,
	}, nil
}

// Close は内部リソースを解放する。
func (c *Container) Close() {
	if c == nil {
		return
	}
	if c.redisClient != nil {
		if err := c.redisClient.Close(); err != nil {
			c.Logger().Warn("failed to close redis client", "error", err)
		}
	}
	if c.database != nil {
		c.database.Close()
	}
}

// Logger はロガーを返す。
func (c *Container) Logger() *slog.Logger {
	if c == nil || c.logger == nil {
		return slog.Default()
	}
	return c.logger
}

// Database はデータベースを返す（memory バックエンドでは nil）。
func (c *Container) Database() *database.Database {
	if c == nil {
		return nil
	}
	return c.database
}

// localLock はプロセス内だけで有効なロック（memory バックエンド用）
type localLock struct {
	mu sync.Mutex
}

func (l *localLock) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if !l.mu.TryLock() {
		return postgres.ErrLockHeld
	}
	defer l.mu.Unlock()
	return fn(ctx)
}
