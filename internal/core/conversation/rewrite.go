package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jinford/earnings-rag/internal/core/answer"
)

// DefaultRewriteTurns は質問の書き換えに使う直近ターン数の既定値
const DefaultRewriteTurns = 4

const rewriteSystemPrompt = `Given a conversation about company earnings calls and a follow-up question, rephrase the follow-up question as a single standalone question that can be understood without the conversation.
Resolve pronouns and relative references (e.g. "that quarter", "the following quarter", "they") using the conversation.
If the follow-up is already standalone, return it unchanged.
Return only the question, with no preamble or quotes.`

// QuestionRewriter は会話履歴を踏まえて追加質問を単独で意味の通る質問に書き換える
type QuestionRewriter struct {
	llm      answer.LLMClient
	maxTurns int
	logger   *slog.Logger
}

// RewriterOption は QuestionRewriter のオプション設定
type RewriterOption func(*QuestionRewriter)

// WithRewriterLogger は QuestionRewriter にロガーを設定する
func WithRewriterLogger(logger *slog.Logger) RewriterOption {
	return func(r *QuestionRewriter) {
		r.logger = logger
	}
}

// WithRewriteTurns はプロンプトに含める直近ターン数を設定する
func WithRewriteTurns(n int) RewriterOption {
	return func(r *QuestionRewriter) {
		if n > 0 {
			r.maxTurns = n
		}
	}
}

// NewQuestionRewriter は新しいQuestionRewriterを作成する
func NewQuestionRewriter(llm answer.LLMClient, opts ...RewriterOption) *QuestionRewriter {
	r := &QuestionRewriter{
		llm:      llm,
		maxTurns: DefaultRewriteTurns,
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

// Rewrite は履歴を踏まえた単独の質問を返す
// 履歴が空なら補完サービスを呼ばずにそのまま返す
func (r *QuestionRewriter) Rewrite(ctx context.Context, history []Turn, question string) (string, error) {
	if len(history) == 0 {
		return question, nil
	}

	text, err := r.llm.GenerateCompletion(ctx, BuildRewritePrompt(history, question, r.maxTurns))
	if err != nil {
		return "", err
	}

	rewritten := strings.Trim(strings.TrimSpace(text), `"`)
	if rewritten == "" {
		r.logger.Warn("empty rewrite, using original question")
		return question, nil
	}

	r.logger.Debug("question rewritten", "original", question, "rewritten", rewritten)
	return rewritten, nil
}

// BuildRewritePrompt は直近 maxTurns ターンの履歴と追加質問から書き換え用のプロンプトを組み立てる
func BuildRewritePrompt(history []Turn, question string, maxTurns int) answer.CompletionRequest {
	if maxTurns > 0 && len(history) > maxTurns {
		history = history[len(history)-maxTurns:]
	}

	var sb strings.Builder
	sb.WriteString("Conversation:\n")
	for _, turn := range history {
		fmt.Fprintf(&sb, "User: %s\nAssistant: %s\n", turn.Question, turn.Answer)
	}
	fmt.Fprintf(&sb, "\nFollow-up question: %s\n\nStandalone question:", question)

	return answer.CompletionRequest{
		System: rewriteSystemPrompt,
		Prompt: sb.String(),
	}
}
