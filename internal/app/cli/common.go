package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/urfave/cli/v3"

	"github.com/jinford/earnings-rag/internal/core/retrieval"
	"github.com/jinford/earnings-rag/internal/platform/config"
	"github.com/jinford/earnings-rag/internal/platform/container"
	"github.com/jinford/earnings-rag/internal/platform/logger"
)

// AppContext はコマンド実行に必要な共通コンテキストを保持する
type AppContext struct {
	Config    *config.Config
	Container *container.Container
}

// loadConfig は設定を読み込み、ロガーを初期化する
func loadConfig(envFile string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, nil, fmt.Errorf("設定の読み込みに失敗: %w", err)
	}
	appLogger := logger.New(logger.FromStrings(cfg.Log.Level, cfg.Log.Format))
	return cfg, appLogger, nil
}

// NewAppContext は設定ファイルを読み込み、依存関係を構築して AppContext を作成する
func NewAppContext(ctx context.Context, envFile string) (*AppContext, error) {
	cfg, appLogger, err := loadConfig(envFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定が不正です: %w", err)
	}
	if err := cfg.RequirePersistentStore(); err != nil {
		return nil, fmt.Errorf("設定が不正です: %w", err)
	}

	cont, err := container.NewContainer(ctx, cfg, container.WithContainerLogger(appLogger))
	if err != nil {
		return nil, fmt.Errorf("コンテナの初期化に失敗: %w", err)
	}

	return &AppContext{
		Config:    cfg,
		Container: cont,
	}, nil
}

// Close はAppContextが保持するリソースをクリーンアップする
func (ac *AppContext) Close() {
	if ac.Container != nil {
		ac.Container.Close()
	}
}

// Logger はAppContextのロガーを返す
func (ac *AppContext) Logger() *slog.Logger {
	if ac.Container != nil {
		return ac.Container.Logger()
	}
	return slog.Default()
}

// output はコマンド結果の出力先を返す
func output(cmd *cli.Command) io.Writer {
	if cmd != nil {
		if root := cmd.Root(); root != nil && root.Writer != nil {
			return root.Writer
		}
	}
	return os.Stdout
}

// queryFromArgs は位置引数を空白で連結して質問文にする
func queryFromArgs(cmd *cli.Command) (string, error) {
	query := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if query == "" {
		return "", errors.New("質問文を指定してください")
	}
	return query, nil
}

// filterFromFlags は --filter フラグを検索フィルタに変換する
func filterFromFlags(cmd *cli.Command) (retrieval.Filter, error) {
	filter, err := retrieval.ParseFilter(cmd.StringSlice("filter"))
	if err != nil {
		return nil, fmt.Errorf("フィルタの指定が不正です: %w", err)
	}
	return filter, nil
}

// truncateString は文字列を rune 単位で切り詰める
func truncateString(s string, maxLen int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen-3]) + "..."
}
