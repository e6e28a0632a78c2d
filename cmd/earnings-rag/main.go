package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	appcli "github.com/jinford/earnings-rag/internal/app/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := newApp()
	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func envFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "env",
		Usage: "環境変数ファイルパス（VECTOR_STORE=memory はコマンド間で保持されないため CLI では使用不可）",
		Value: ".env",
	}
}

func retrievalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:  "top-k",
			Usage: "取得するチャンク数（0 で RETRIEVAL_TOP_K を使用）",
		},
		&cli.StringSliceFlag{
			Name:  "filter",
			Usage: "メタデータフィルタ（例: quarter=Q1-2024,Q2-2024）。複数指定はAND",
		},
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "earnings-rag",
		Usage: "決算説明会（earnings call）ドキュメント向け RAG 質問応答システム",
		Commands: []*cli.Command{
			{
				Name:  "index",
				Usage: "インデックス管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "run",
						Usage: "コーパスを読み込んでインデックス化",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:  "dir",
								Usage: "コーパスディレクトリ（省略時は CORPUS_DIR）",
							},
							&cli.BoolFlag{
								Name:  "replace",
								Usage: "ドキュメント単位で既存エントリを削除してから登録",
							},
						},
						Action: appcli.IndexRunAction,
					},
					{
						Name:  "watch",
						Usage: "cron スケジュールで定期的に再インデックス",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:  "dir",
								Usage: "コーパスディレクトリ（省略時は CORPUS_DIR）",
							},
							&cli.StringFlag{
								Name:  "schedule",
								Usage: "Cron形式のスケジュール（例: \"0 6 * * *\" = 毎日6:00）",
								Value: "@hourly",
							},
							&cli.BoolFlag{
								Name:  "now",
								Usage: "起動直後に1回実行",
							},
						},
						Action: appcli.IndexWatchAction,
					},
				},
			},
			{
				Name:      "search",
				Usage:     "ベクトル検索の結果を表示",
				ArgsUsage: "<query>",
				Flags:     append([]cli.Flag{envFlag()}, retrievalFlags()...),
				Action:    appcli.SearchAction,
			},
			{
				Name:      "ask",
				Usage:     "質問に回答（引用付き）",
				ArgsUsage: "<question>",
				Flags: append(append([]cli.Flag{envFlag()}, retrievalFlags()...),
					&cli.BoolFlag{
						Name:  "show-sources",
						Usage: "参照ソースも表示",
					},
				),
				Action: appcli.AskAction,
			},
			{
				Name:  "chat",
				Usage: "対話形式で質問応答（履歴はセッション単位で Redis に保存）",
				Flags: []cli.Flag{
					envFlag(),
					&cli.StringFlag{
						Name:  "session",
						Usage: "セッションID（省略時は新規作成）",
					},
					&cli.BoolFlag{
						Name:  "show-sources",
						Usage: "参照ソースも表示",
					},
				},
				Action: appcli.ChatAction,
			},
			{
				Name:  "corpus",
				Usage: "コーパス管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "stats",
						Usage: "ドキュメント数とページ数を表示",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:  "dir",
								Usage: "コーパスディレクトリ（省略時は CORPUS_DIR）",
							},
						},
						Action: appcli.CorpusStatsAction,
					},
				},
			},
		},
	}
}
