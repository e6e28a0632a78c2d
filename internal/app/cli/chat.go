package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/manifoldco/promptui"
	"github.com/urfave/cli/v3"

	"github.com/jinford/earnings-rag/internal/core/conversation"
)

// チャット中に使える操作
const (
	chatExitCommand  = "/exit"
	chatResetCommand = "/reset"
)

// responder は質問に回答する（conversation.Orchestrator）
type responder interface {
	Respond(ctx context.Context, req conversation.Request) (*conversation.Reply, error)
}

// historyStore はセッション履歴の保存先（redis.HistoryStore）
type historyStore interface {
	Load(ctx context.Context, sessionID string) ([]conversation.Turn, error)
	Save(ctx context.Context, sessionID string, turns []conversation.Turn) error
	Clear(ctx context.Context, sessionID string) error
}

// ChatAction は対話形式の質問応答コマンドのアクション
func ChatAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	sessionID := cmd.String("session")
	showSources := cmd.Bool("show-sources")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	session := &chatSession{
		id:          sessionID,
		responder:   appCtx.Container.Orchestrator,
		history:     appCtx.Container.History,
		readLine:    promptLine,
		out:         output(cmd),
		showSources: showSources,
		logger:      appCtx.Logger(),
	}
	return session.run(ctx)
}

// promptLine は promptui で1行入力を受け付ける
func promptLine() (string, error) {
	prompt := promptui.Prompt{
		Label: "質問",
	}
	return prompt.Run()
}

// chatSession は1セッション分の対話ループ
type chatSession struct {
	id          string
	responder   responder
	history     historyStore
	readLine    func() (string, error)
	out         io.Writer
	showSources bool
	logger      *slog.Logger
}

func (s *chatSession) run(ctx context.Context) error {
	turns, err := s.history.Load(ctx, s.id)
	if err != nil {
		return fmt.Errorf("履歴の読み込みに失敗: %w", err)
	}

	fmt.Fprintf(s.out, "セッション: %s（履歴 %d件、%s で終了、%s で履歴を消去）\n",
		s.id, len(turns), chatExitCommand, chatResetCommand)

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		line, err := s.readLine()
		if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) || errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("入力の読み取りに失敗: %w", err)
		}

		question := strings.TrimSpace(line)
		switch question {
		case "":
			continue
		case chatExitCommand:
			return nil
		case chatResetCommand:
			if err := s.history.Clear(ctx, s.id); err != nil {
				return fmt.Errorf("履歴の消去に失敗: %w", err)
			}
			turns = nil
			fmt.Fprintln(s.out, "履歴を消去しました")
			continue
		}

		reply, err := s.responder.Respond(ctx, conversation.Request{
			Question: question,
			History:  turns,
		})
		if err != nil {
			// 失敗したターンは履歴に残さず、対話は続ける
			s.logger.Error("質問応答に失敗しました", "session", s.id, "error", err)
			fmt.Fprintf(s.out, "エラー: %v\n", err)
			continue
		}

		printReply(s.out, reply, s.showSources)
		turns = reply.History

		if err := s.history.Save(ctx, s.id, turns); err != nil {
			s.logger.Warn("履歴の保存に失敗しました", "session", s.id, "error", err)
		}
	}
}
