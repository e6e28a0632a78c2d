package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/jinford/earnings-rag/internal/core/answer"
	"github.com/jinford/earnings-rag/internal/core/retrieval"
)

// Retriever は類似チャンク検索インターフェース
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int, filter retrieval.Filter) ([]retrieval.Match, error)
}

// Composer は検索結果からの回答生成インターフェース
type Composer interface {
	Compose(ctx context.Context, question string, matches []retrieval.Match) (*answer.Result, error)
}

// Rewriter は会話履歴を踏まえて質問を単独の質問に書き換えるインターフェース
type Rewriter interface {
	Rewrite(ctx context.Context, history []Turn, question string) (string, error)
}

// Orchestrator は質問を分類し、挨拶・メタ質問・RAG回答のいずれか1つに振り分ける
type Orchestrator struct {
	retriever Retriever
	composer  Composer
	rewriter  Rewriter
	metaRules []MetaRule
	logger    *slog.Logger
}

// OrchestratorOption は Orchestrator のオプション設定
type OrchestratorOption func(*Orchestrator)

// WithOrchestratorLogger は Orchestrator にロガーを設定する
func WithOrchestratorLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithMetaRules はメタ質問ルールを設定する（先頭から順に評価）
func WithMetaRules(rules []MetaRule) OrchestratorOption {
	return func(o *Orchestrator) {
		o.metaRules = rules
	}
}

// WithQuestionRewriter は履歴がある場合に検索前の質問書き換えを行う Rewriter を設定する
func WithQuestionRewriter(rewriter Rewriter) OrchestratorOption {
	return func(o *Orchestrator) {
		o.rewriter = rewriter
	}
}

// NewOrchestrator は新しいOrchestratorを作成する
func NewOrchestrator(retriever Retriever, composer Composer, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		retriever: retriever,
		composer:  composer,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// Respond は質問に回答し、履歴に1ターン追加した新しいスライスを返す
// エラー時は履歴を追加しない
func (o *Orchestrator) Respond(ctx context.Context, req Request) (*Reply, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, fmt.Errorf("question is required")
	}

	reply, err := o.route(ctx, question, req)
	if err != nil {
		return nil, err
	}

	reply.History = append(slices.Clone(req.History), Turn{
		Question: req.Question,
		Answer:   reply.Answer,
	})
	if reply.Citations == nil {
		reply.Citations = []answer.Citation{}
	}

	o.logger.Info("question answered",
		"route", reply.Route,
		"citations", len(reply.Citations),
		"historyTurns", len(reply.History),
	)
	return reply, nil
}

func (o *Orchestrator) route(ctx context.Context, question string, req Request) (*Reply, error) {
	if IsCasual(question) {
		return &Reply{Answer: CasualReply, Route: RouteCasual}, nil
	}

	if rule, ok := matchMeta(o.metaRules, question); ok {
		text, err := rule.Handle(ctx, question)
		if err != nil {
			return nil, fmt.Errorf("meta query %s failed: %w", rule.Name, err)
		}
		o.logger.Debug("meta rule matched", "rule", rule.Name)
		return &Reply{Answer: text, Route: RouteMeta}, nil
	}

	query := question
	if o.rewriter != nil && len(req.History) > 0 {
		rewritten, err := o.rewriter.Rewrite(ctx, req.History, question)
		if err != nil {
			return nil, fmt.Errorf("question rewrite failed: %w", err)
		}
		query = rewritten
	}

	matches, err := o.retriever.Retrieve(ctx, query, req.TopK, req.Filter)
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}

	result, err := o.composer.Compose(ctx, query, matches)
	if err != nil {
		return nil, fmt.Errorf("answer composition failed: %w", err)
	}

	return &Reply{
		Answer:             result.Answer,
		Citations:          result.Citations,
		Sources:            matches,
		StandaloneQuestion: query,
		Route:              RouteRAG,
	}, nil
}
