package answer

import (
	"context"
	"log/slog"

	"github.com/jinford/earnings-rag/internal/core/retrieval"
	"github.com/jinford/earnings-rag/internal/shared/apperr"
)

// NoMatchesAnswer は検索結果が空だった場合の固定回答
const NoMatchesAnswer = "I couldn't find anything in the indexed earnings calls that answers that."

// LLMClient は補完サービスとの通信インターフェース
type LLMClient interface {
	GenerateCompletion(ctx context.Context, req CompletionRequest) (string, error)
}

// TokenCounter はプロンプトのトークン数を数える
type TokenCounter interface {
	CountTokens(text string) int
}

// Composer は検索結果を根拠に回答を生成し、引用を元チャンクへ対応付ける
type Composer struct {
	llm     LLMClient
	counter TokenCounter
	logger  *slog.Logger
}

// ComposerOption は Composer のオプション設定
type ComposerOption func(*Composer)

// WithComposerLogger は Composer にロガーを設定する
func WithComposerLogger(logger *slog.Logger) ComposerOption {
	return func(c *Composer) {
		c.logger = logger
	}
}

// WithTokenCounter はトークン数の記録に使うカウンタを設定する
func WithTokenCounter(counter TokenCounter) ComposerOption {
	return func(c *Composer) {
		c.counter = counter
	}
}

// NewComposer は新しいComposerを作成する
func NewComposer(llm LLMClient, opts ...ComposerOption) *Composer {
	c := &Composer{
		llm:    llm,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Compose は質問と検索結果から回答と引用一覧を生成する
func (c *Composer) Compose(ctx context.Context, question string, matches []retrieval.Match) (*Result, error) {
	if len(matches) == 0 {
		c.logger.Info("no matches to ground the answer, skipping completion")
		return &Result{Answer: NoMatchesAnswer, Citations: []Citation{}}, nil
	}

	req := BuildPrompt(question, matches)
	if c.counter != nil {
		c.logger.Debug("prompt built",
			"matches", len(matches),
			"promptTokens", c.counter.CountTokens(req.System)+c.counter.CountTokens(req.Prompt),
		)
	}

	text, err := c.llm.GenerateCompletion(ctx, req)
	if err != nil {
		return nil, apperr.NewServiceError("completion", "generate answer", err)
	}

	indices := ExtractCitationIndices(text, len(matches))
	citations := MapCitations(indices, matches)

	attrs := []any{"matches", len(matches), "citations", len(citations), "answerLength", len(text)}
	if c.counter != nil {
		attrs = append(attrs, "answerTokens", c.counter.CountTokens(text))
	}
	c.logger.Info("answer composed", attrs...)

	return &Result{
		Answer:    text,
		Citations: citations,
	}, nil
}
