package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	"github.com/jinford/earnings-rag/internal/infra/corpus"
)

// CorpusStatsAction はコーパスのドキュメント数とページ数を表示するコマンドのアクション
// ベクトルストアや OpenAI には接続しない
func CorpusStatsAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	cfg, appLogger, err := loadConfig(envFile)
	if err != nil {
		return err
	}

	dir := cmd.String("dir")
	if dir == "" {
		dir = cfg.CorpusDir
	}

	loader := corpus.NewLoader(dir, corpus.WithLoaderLogger(appLogger))
	stats, err := collectCorpusStats(ctx, corpus.NewInventory(loader), loader)
	if err != nil {
		return err
	}

	renderCorpusStats(output(cmd), stats)
	return nil
}

// corpusStats はコーパスの集計結果
type corpusStats struct {
	Dir       string
	Documents int
	Latest    string
	Files     []corpusFileStats
}

type corpusFileStats struct {
	Stem  string
	Ext   string
	Pages int
}

func collectCorpusStats(ctx context.Context, inv *corpus.Inventory, loader *corpus.Loader) (*corpusStats, error) {
	files, err := loader.Files(ctx)
	if err != nil {
		return nil, fmt.Errorf("コーパスの走査に失敗: %w", err)
	}

	stats := &corpusStats{Dir: loader.Dir(), Documents: len(files)}

	latest, ok, err := inv.Latest(ctx)
	if err != nil {
		return nil, fmt.Errorf("最新ドキュメントの特定に失敗: %w", err)
	}
	if ok {
		stats.Latest = latest.RelPath
	}

	for _, f := range files {
		pages, err := inv.PageCount(f)
		if err != nil {
			// ページ数が取れないファイルは -1 として表示する
			pages = -1
		}
		stats.Files = append(stats.Files, corpusFileStats{Stem: f.Stem, Ext: f.Ext, Pages: pages})
	}
	return stats, nil
}

// renderCorpusStats はコーパスの集計をテーブル形式で表示する
func renderCorpusStats(w io.Writer, stats *corpusStats) {
	summary := tablewriter.NewWriter(w)
	summary.Header("メトリクス", "値")
	summary.Append("ディレクトリ", stats.Dir)
	summary.Append("ドキュメント数", strconv.Itoa(stats.Documents))
	latest := stats.Latest
	if latest == "" {
		latest = "-"
	}
	summary.Append("最新ドキュメント", latest)
	summary.Render()

	if len(stats.Files) == 0 {
		return
	}

	files := tablewriter.NewWriter(w)
	files.Header("Document", "Format", "Pages")
	for _, f := range stats.Files {
		pages := "?"
		if f.Pages >= 0 {
			pages = strconv.Itoa(f.Pages)
		}
		files.Append(f.Stem, f.Ext, pages)
	}
	files.Render()
}
