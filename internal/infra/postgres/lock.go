package postgres

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrLockHeld は別プロセスがインデックス処理中であることを表す
var ErrLockHeld = errors.New("index lock is held by another process")

// GenerateLockID は文字列からアドバイザリロックIDを生成する
func GenerateLockID(parts ...string) int64 {
	h := sha256.New()
	for _, part := range parts {
		h.Write([]byte(part))
	}
	hash := h.Sum(nil)

	var id int64
	for i := range 8 {
		id = (id << 8) | int64(hash[i])
	}
	return id
}

// IndexLock はインデックス単位のセッションアドバイザリロック
// 同じインデックスへの並行した再インデックスを防ぐ
type IndexLock struct {
	pool   *pgxpool.Pool
	lockID int64
}

// NewIndexLock は新しいIndexLockを作成する
func NewIndexLock(pool *pgxpool.Pool, index string) *IndexLock {
	return &IndexLock{
		pool:   pool,
		lockID: GenerateLockID("earnings-rag", "index", index),
	}
}

// Do はロックを取得できた場合のみ fn を実行する
// 取得できなければ ErrLockHeld を返す
func (l *IndexLock) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	var locked bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&locked); err != nil {
		return fmt.Errorf("failed to acquire advisory lock: %w", err)
	}
	if !locked {
		return ErrLockHeld
	}
	defer func() {
		// 呼び出し元のコンテキストが終了していても解放する
		_, _ = conn.Exec(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock($1)", l.lockID)
	}()

	return fn(ctx)
}
