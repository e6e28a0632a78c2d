package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	"github.com/jinford/earnings-rag/internal/core/indexing"
	"github.com/jinford/earnings-rag/internal/core/retrieval"
)

// SearchAction はベクトル検索の結果をそのまま表示するコマンドのアクション
func SearchAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	topK := int(cmd.Int("top-k"))

	query, err := queryFromArgs(cmd)
	if err != nil {
		return err
	}
	filter, err := filterFromFlags(cmd)
	if err != nil {
		return err
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	slog.Info("検索を開始", "query", query, "topK", topK, "filterFields", filter.Fields())

	matches, err := appCtx.Container.Retriever.Retrieve(ctx, query, topK, filter)
	if err != nil {
		return fmt.Errorf("検索に失敗: %w", err)
	}

	w := output(cmd)
	if len(matches) == 0 {
		fmt.Fprintln(w, "該当するチャンクはありません")
		return nil
	}
	renderMatches(w, matches)
	return nil
}

// renderMatches は検索結果をテーブル形式で表示する
func renderMatches(w io.Writer, matches []retrieval.Match) {
	table := tablewriter.NewWriter(w)
	table.Header("#", "Chunk ID", "Score", "Quarter", "Speaker", "Page", "Snippet")

	for i, m := range matches {
		page := m.Metadata[indexing.MetaPage]
		if page == "" {
			page = "-"
		}
		table.Append(
			strconv.Itoa(i),
			m.ChunkID,
			fmt.Sprintf("%.4f", m.Score),
			m.Metadata[indexing.MetaQuarter],
			m.Metadata[indexing.MetaSpeaker],
			page,
			truncateString(m.Snippet, 60),
		)
	}

	table.Render()
}
