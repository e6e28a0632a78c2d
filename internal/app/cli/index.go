package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	"github.com/jinford/earnings-rag/internal/app/scheduler"
	"github.com/jinford/earnings-rag/internal/core/indexing"
	"github.com/jinford/earnings-rag/internal/infra/corpus"
	"github.com/jinford/earnings-rag/internal/infra/postgres"
	"github.com/jinford/earnings-rag/internal/platform/container"
)

// ErrIndexIncomplete は一部のチャンクを登録できなかったことを表す
var ErrIndexIncomplete = errors.New("indexing finished with failed chunks")

// indexRun は1回分のインデックス処理の結果
type indexRun struct {
	Result  *indexing.Result
	Skipped []corpus.Skipped
}

// IndexRunAction はコーパスを読み込んでインデックスを作成するコマンドのアクション
func IndexRunAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	dir := cmd.String("dir")
	replace := cmd.Bool("replace")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	run, err := runIndex(ctx, appCtx.Container, dir, replace)
	if err != nil {
		return err
	}

	renderIndexRun(output(cmd), run)

	if run.Result.Failed > 0 {
		return fmt.Errorf("%d件のチャンクを登録できませんでした: %w", run.Result.Failed, ErrIndexIncomplete)
	}
	return nil
}

// IndexWatchAction は cron スケジュールで再インデックスを繰り返すコマンドのアクション
func IndexWatchAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	dir := cmd.String("dir")
	schedule := cmd.String("schedule")
	runNow := cmd.Bool("now")

	if err := scheduler.ValidateSchedule(schedule); err != nil {
		return err
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	log := appCtx.Logger()
	job := scheduler.NewReindexJob(schedule, func(ctx context.Context) error {
		run, err := runIndex(ctx, appCtx.Container, dir, true)
		if err != nil {
			return err
		}
		log.Info("再インデックス結果",
			"documents", run.Result.Documents,
			"upserted", run.Result.Upserted,
			"failed", run.Result.Failed,
			"skipped", len(run.Skipped),
		)
		return nil
	}, log)

	if runNow {
		if err := job.Run(ctx); err != nil {
			log.Error("初回の再インデックスに失敗しました", "error", err)
		}
	}

	if err := job.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	job.Stop()

	return nil
}

// runIndex はロックを取得してコーパスを読み込み、インデックスに登録する
// replace の場合はドキュメント単位で既存エントリを削除してから登録する
func runIndex(ctx context.Context, c *container.Container, dir string, replace bool) (*indexRun, error) {
	loader := c.Loader
	if dir != "" {
		loader = corpus.NewLoader(dir, corpus.WithLoaderLogger(c.Logger()))
	}

	var run *indexRun
	err := c.Lock.Do(ctx, func(ctx context.Context) error {
		loaded, err := loader.Load(ctx)
		if err != nil {
			return fmt.Errorf("コーパスの読み込みに失敗: %w", err)
		}

		var result *indexing.Result
		if replace {
			result, err = c.Indexer.Reindex(ctx, loaded.Documents)
		} else {
			result, err = c.Indexer.IndexDocuments(ctx, loaded.Documents)
		}
		if err != nil {
			return fmt.Errorf("インデックス処理に失敗: %w", err)
		}

		run = &indexRun{Result: result, Skipped: loaded.Skipped}
		return nil
	})
	if errors.Is(err, postgres.ErrLockHeld) {
		return nil, fmt.Errorf("別のインデックス処理が実行中です: %w", err)
	}
	if err != nil {
		return nil, err
	}

	c.Logger().Info("インデックス処理が完了しました",
		slog.Int("documents", run.Result.Documents),
		slog.Int("upserted", run.Result.Upserted),
		slog.Int("failed", run.Result.Failed),
	)
	return run, nil
}

// renderIndexRun はインデックス結果をテーブル形式で表示する
func renderIndexRun(w io.Writer, run *indexRun) {
	table := tablewriter.NewWriter(w)
	table.Header("Documents", "Chunks", "Upserted", "Failed", "Skipped Files")
	table.Append(
		strconv.Itoa(run.Result.Documents),
		strconv.Itoa(run.Result.Chunks),
		strconv.Itoa(run.Result.Upserted),
		strconv.Itoa(run.Result.Failed),
		strconv.Itoa(len(run.Skipped)),
	)
	table.Render()

	if len(run.Result.Failures) > 0 {
		failures := tablewriter.NewWriter(w)
		failures.Header("Chunk ID", "Error")
		for _, f := range run.Result.Failures {
			failures.Append(f.ChunkID, truncateString(f.Err.Error(), 80))
		}
		failures.Render()
	}

	if len(run.Skipped) > 0 {
		skipped := tablewriter.NewWriter(w)
		skipped.Header("Skipped File", "Reason")
		for _, s := range run.Skipped {
			skipped.Append(s.Path, truncateString(s.Reason.Error(), 80))
		}
		skipped.Render()
	}
}
