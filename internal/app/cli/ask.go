package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/jinford/earnings-rag/internal/core/conversation"
	"github.com/jinford/earnings-rag/internal/core/indexing"
)

// AskAction は質問応答コマンドのアクション
func AskAction(ctx context.Context, cmd *cli.Command) error {
	// フラグの取得
	showSources := cmd.Bool("show-sources")
	envFile := cmd.String("env")
	topK := int(cmd.Int("top-k"))

	// 質問文の取得
	question, err := queryFromArgs(cmd)
	if err != nil {
		return err
	}
	filter, err := filterFromFlags(cmd)
	if err != nil {
		return err
	}

	slog.Info("質問応答を開始",
		"question", question,
		"topK", topK,
		"showSources", showSources,
	)

	// 共通コンテキストの初期化
	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	reply, err := appCtx.Container.Orchestrator.Respond(ctx, conversation.Request{
		Question: question,
		TopK:     topK,
		Filter:   filter,
	})
	if err != nil {
		slog.Error("質問応答に失敗しました", "error", err)
		return err
	}

	printReply(output(cmd), reply, showSources)

	slog.Info("質問応答が完了しました", "route", reply.Route)
	return nil
}

// printReply は回答と、必要に応じて引用元・参照ソースを出力する
func printReply(w io.Writer, reply *conversation.Reply, showSources bool) {
	fmt.Fprintln(w, reply.Answer)

	if len(reply.Citations) > 0 {
		fmt.Fprintln(w, "\n--- 引用 ---")
		for _, c := range reply.Citations {
			fmt.Fprintf(w, "[%d] %s\n", c.Index, c.ChunkID)
		}
	}

	// --show-sourcesフラグが指定されている場合、参照ソースも出力
	if showSources && len(reply.Sources) > 0 {
		fmt.Fprintln(w, "\n--- 参照ソース ---")
		for i, source := range reply.Sources {
			fmt.Fprintf(w, "[%d] %s (%s, %s) スコア: %.4f\n",
				i,
				source.ChunkID,
				source.Metadata[indexing.MetaQuarter],
				source.Metadata[indexing.MetaSpeaker],
				source.Score,
			)
		}
	}
}
