package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrInvalidState 表示读取或写入的状态缺少当前步骤所需的字段
var ErrInvalidState = errors.New("会话状态无效")

// StateStore 保存每个聊天用户的流程进度。Load 在用户没有进行中的流程时返回 nil, nil
type StateStore interface {
	Load(ctx context.Context, actorID string) (*State, error)
	Save(ctx context.Context, actorID string, state *State) error
	Clear(ctx context.Context, actorID string) error
}

type RedisStore struct {
	rdb     *redis.Client
	timeout time.Duration
}

func NewRedisStore(rdb *redis.Client, timeout time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, timeout: timeout}
}

func stateKey(actorID string) string {
	return fmt.Sprintf("conversation_state_%s", actorID)
}

func (s *RedisStore) Load(ctx context.Context, actorID string) (*State, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.rdb.Get(ctx, stateKey(actorID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if err := state.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	return &state, nil
}

// Save 不设置过期时间，状态一直保留到被覆盖或清除
func (s *RedisStore) Save(ctx context.Context, actorID string, state *State) error {
	if err := state.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.rdb.Set(ctx, stateKey(actorID), raw, 0).Err()
}

func (s *RedisStore) Clear(ctx context.Context, actorID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.rdb.Del(ctx, stateKey(actorID)).Err()
}
