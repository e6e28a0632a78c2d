package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jinford/earnings-rag/internal/core/conversation"
)

const (
	historyPrefix = "earnings-rag:history:"
	sessionsKey   = "earnings-rag:sessions"

	// DefaultHistoryTTL はセッション履歴の既定の保持期間
	DefaultHistoryTTL = 24 * time.Hour
)

// ErrEmptySessionID はセッションIDが空の場合のエラー
var ErrEmptySessionID = errors.New("session id is required")

// HistoryStore はセッションごとの会話履歴を Redis に保存する
// 履歴はセッション単位で独立し、TTL で自動的に失効する
type HistoryStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewHistoryStore は新しいHistoryStoreを作成する
func NewHistoryStore(client *redis.Client, ttl time.Duration) *HistoryStore {
	if ttl <= 0 {
		ttl = DefaultHistoryTTL
	}
	return &HistoryStore{client: client, ttl: ttl}
}

// Load はセッションの履歴を返す。未保存・失効済みなら空スライス
func (s *HistoryStore) Load(ctx context.Context, sessionID string) ([]conversation.Turn, error) {
	if sessionID == "" {
		return nil, ErrEmptySessionID
	}

	data, err := s.client.Get(ctx, historyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return []conversation.Turn{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	var turns []conversation.Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		return nil, fmt.Errorf("failed to unmarshal history: %w", err)
	}
	return turns, nil
}

// Save はセッションの履歴全体を保存し、TTL を延長する
func (s *HistoryStore) Save(ctx context.Context, sessionID string, turns []conversation.Turn) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}

	data, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, historyPrefix+sessionID, data, s.ttl)
	pipe.SAdd(ctx, sessionsKey, sessionID)
	pipe.Expire(ctx, sessionsKey, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save history: %w", err)
	}
	return nil
}

// Clear はセッションの履歴を削除する
func (s *HistoryStore) Clear(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, historyPrefix+sessionID)
	pipe.SRem(ctx, sessionsKey, sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

// Sessions は履歴が残っているセッションIDを辞書順で返す
// 失効済みのIDは集合から取り除く
func (s *HistoryStore) Sessions(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, sessionsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	active := make([]string, 0, len(ids))
	var expired []any
	for _, id := range ids {
		n, err := s.client.Exists(ctx, historyPrefix+id).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to check session %s: %w", id, err)
		}
		if n == 0 {
			expired = append(expired, id)
			continue
		}
		active = append(active, id)
	}
	if len(expired) > 0 {
		s.client.SRem(ctx, sessionsKey, expired...)
	}

	slices.Sort(active)
	return active, nil
}
