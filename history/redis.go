package history

import (
	"context"
	"encoding/json"
	"path"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/redis/go-redis/v9"
)

// The redis store keeps the conversation in Redis so several agent
// processes can share one conversation. The keys namespace is organized
// as follows:
// - `/<prefix>/history/<conversationID>/turns` for the turn list
// - `/<prefix>/history/<conversationID>/ordinal` for the ordinal counter
// The counter survives Reset, so ordinals keep increasing for the
// lifetime of the conversation ID.

type redisStore struct {
	client         *redis.Client
	prefix         string
	conversationID string
	maxHistory     int64
}

// NewRedisStore returns a Store backed by Redis. maxHistory <= 0 means
// unbounded.
func NewRedisStore(client *redis.Client, prefix, conversationID string, maxHistory int) Store {
	return &redisStore{
		client:         client,
		prefix:         prefix,
		conversationID: conversationID,
		maxHistory:     int64(maxHistory),
	}
}

func (m *redisStore) turnsKey() string {
	return path.Join(m.prefix, "history", m.conversationID, "turns")
}

func (m *redisStore) ordinalKey() string {
	return path.Join(m.prefix, "history", m.conversationID, "ordinal")
}

func (m *redisStore) Append(ctx context.Context, role Role, text string) (uint64, error) {
	ord, err := m.client.Incr(ctx, m.ordinalKey()).Result()
	if err != nil {
		return 0, errors.Wrap(err, "failed to allocate ordinal")
	}

	data, err := json.Marshal(Turn{Role: role, Text: text, Ordinal: uint64(ord)})
	if err != nil {
		return 0, errors.Wrap(err, "failed to marshal turn")
	}

	pipe := m.client.Pipeline()
	pipe.RPush(ctx, m.turnsKey(), data)
	if m.maxHistory > 0 {
		pipe.LTrim(ctx, m.turnsKey(), -m.maxHistory, -1)
	}
	if _, err = pipe.Exec(ctx); err != nil {
		return 0, errors.Wrap(err, "failed to store turn in Redis")
	}
	return uint64(ord), nil
}

func (m *redisStore) Recent(ctx context.Context, limit int) ([]Turn, error) {
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}
	data, err := m.client.LRange(ctx, m.turnsKey(), start, -1).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read turns from Redis")
	}

	var turns []Turn
	for _, item := range data {
		var t Turn
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			logger.ContextKV(ctx, xlog.ERROR, "reason", "unmarshal turn", "err", err.Error())
			continue
		}
		turns = append(turns, t)
	}
	return turns, nil
}

func (m *redisStore) Len(ctx context.Context) (int, error) {
	n, err := m.client.LLen(ctx, m.turnsKey()).Result()
	if err != nil {
		return 0, errors.Wrap(err, "failed to read turn count from Redis")
	}
	return int(n), nil
}

func (m *redisStore) Reset(ctx context.Context) error {
	if err := m.client.Del(ctx, m.turnsKey()).Err(); err != nil {
		return errors.Wrap(err, "failed to reset history in Redis")
	}
	return nil
}
