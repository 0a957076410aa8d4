package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alan-mat/docchat/internal/api"
	"github.com/alan-mat/docchat/internal/config"
)

const keyPrefix = "docchat:session:"

// RedisStore keeps the session as a JSON value and the transcript as a
// list next to it. Every write refreshes the TTL of both keys.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func sessionKey(id string) string  { return keyPrefix + id }
func messagesKey(id string) string { return keyPrefix + id + ":messages" }

func (s *RedisStore) Create(ctx context.Context, sess *Session) error {
	b, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, sessionKey(sess.ID), b, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	b, err := s.rdb.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: '%s'", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	var sess Session
	if err := json.Unmarshal(b, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session '%s': %w", id, err)
	}
	return &sess, nil
}

// update applies fn to the stored session inside an optimistic transaction.
func (s *RedisStore) update(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	key := sessionKey(id)
	var out *Session

	txf := func(tx *redis.Tx) error {
		b, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: '%s'", ErrNotFound, id)
		}
		if err != nil {
			return err
		}

		var sess Session
		if err := json.Unmarshal(b, &sess); err != nil {
			return err
		}
		if err := fn(&sess); err != nil {
			return err
		}

		nb, err := json.Marshal(&sess)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, nb, s.ttl)
			pipe.Expire(ctx, messagesKey(id), s.ttl)
			return nil
		})
		out = &sess
		return err
	}

	for range 3 {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return out, err
	}
	return nil, fmt.Errorf("failed to update session '%s': too much contention", id)
}

func (s *RedisStore) SaveSettings(ctx context.Context, id string, settings config.Settings) (*Session, error) {
	return s.update(ctx, id, func(sess *Session) error {
		applySettings(sess, settings)
		return nil
	})
}

func (s *RedisStore) MarkInitialized(ctx context.Context, id string, traceID string, indexed config.Settings) error {
	_, err := s.update(ctx, id, func(sess *Session) error {
		return markInitialized(sess, traceID, indexed)
	})
	return err
}

func (s *RedisStore) SetLastTrace(ctx context.Context, id string, traceID string) error {
	_, err := s.update(ctx, id, func(sess *Session) error {
		sess.LastTraceID = traceID
		return nil
	})
	return err
}

func (s *RedisStore) AppendMessage(ctx context.Context, id string, msg *api.ChatMessage) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	exists, err := s.rdb.Exists(ctx, sessionKey(id)).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return fmt.Errorf("%w: '%s'", ErrNotFound, id)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, messagesKey(id), b)
		pipe.Expire(ctx, messagesKey(id), s.ttl)
		pipe.Expire(ctx, sessionKey(id), s.ttl)
		return nil
	})
	return err
}

func (s *RedisStore) PopMessage(ctx context.Context, id string) error {
	err := s.rdb.RPop(ctx, messagesKey(id)).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

func (s *RedisStore) Messages(ctx context.Context, id string) ([]*api.ChatMessage, error) {
	raw, err := s.rdb.LRange(ctx, messagesKey(id), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	msgs := make([]*api.ChatMessage, 0, len(raw))
	for _, r := range raw {
		var m api.ChatMessage
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			return nil, fmt.Errorf("failed to decode message of session '%s': %w", id, err)
		}
		msgs = append(msgs, &m)
	}
	return msgs, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.rdb.Del(ctx, sessionKey(id), messagesKey(id)).Err()
}
