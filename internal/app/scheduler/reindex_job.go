package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// ReindexJob はコーパスの再インデックスを定期実行するジョブです
type ReindexJob struct {
	schedule string
	run      func(ctx context.Context) error
	cron     *cron.Cron
	logger   *slog.Logger

	mu   sync.Mutex
	runs int
}

// NewReindexJob は新しいReindexJobを作成します
// schedule は標準の5フィールド形式または "@every 1h" などの記述子
func NewReindexJob(schedule string, run func(ctx context.Context) error, logger *slog.Logger) *ReindexJob {
	if logger == nil {
		logger = slog.Default()
	}

	return &ReindexJob{
		schedule: schedule,
		run:      run,
		// 前回の実行が終わっていなければ今回はスキップする
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger: logger,
	}
}

// Start はスケジューラーを起動します
// 各実行には ctx が渡され、ctx の終了で実行中の処理も中断されます
func (j *ReindexJob) Start(ctx context.Context) error {
	_, err := j.cron.AddFunc(j.schedule, func() {
		if err := j.Run(ctx); err != nil {
			j.logger.Error("再インデックスジョブの実行に失敗しました", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("cron ジョブの登録に失敗: %w", err)
	}

	j.cron.Start()
	j.logger.Info("再インデックスジョブを開始しました", "schedule", j.schedule)

	return nil
}

// Stop はスケジューラーを停止し、実行中のジョブの終了を待ちます
func (j *ReindexJob) Stop() {
	<-j.cron.Stop().Done()
	j.logger.Info("再インデックスジョブを停止しました", "runs", j.Runs())
}

// Run は再インデックスを1回実行します（手動実行可能）
func (j *ReindexJob) Run(ctx context.Context) error {
	j.mu.Lock()
	j.runs++
	run := j.runs
	j.mu.Unlock()

	j.logger.Info("再インデックスを開始します", "run", run)
	if err := j.run(ctx); err != nil {
		return fmt.Errorf("再インデックスに失敗: %w", err)
	}
	j.logger.Info("再インデックスが完了しました", "run", run)
	return nil
}

// Runs はこれまでの実行回数を返します
func (j *ReindexJob) Runs() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.runs
}

// ValidateSchedule は cron 式を検証します
func ValidateSchedule(schedule string) error {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("不正なスケジュール %q: %w", schedule, err)
	}
	return nil
}
