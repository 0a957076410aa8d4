package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const traceKeyPrefix = "docchat:trace:"

type RedisTransport struct {
	rdb *redis.Client

	// Block bounds a single XREAD call. Zero blocks until a message arrives
	// or the context is canceled.
	Block time.Duration
}

func NewRedisTransport(rdb *redis.Client) *RedisTransport {
	return &RedisTransport{
		rdb: rdb,
	}
}

func (t *RedisTransport) GetMessageStream(id string) (MessageStream, error) {
	if len(id) == 0 {
		return nil, ErrInvalidStreamID
	}
	rs := &RedisStream{
		id:          id,
		lastRedisID: "0",
		block:       t.Block,
		rdb:         t.rdb,
	}
	return rs, nil
}

func (t *RedisTransport) SetTrace(ctx context.Context, trace *RequestTrace) error {
	key := traceKeyPrefix + trace.ID

	_, err := t.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, trace)
		pipe.Expire(ctx, key, TraceExpiry)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store trace '%s': %w", trace.ID, err)
	}
	return nil
}

func (t *RedisTransport) GetTrace(ctx context.Context, traceId string) (*RequestTrace, error) {
	res := t.rdb.HGetAll(ctx, traceKeyPrefix+traceId)
	vals, err := res.Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("%w: '%s'", ErrTraceNotFound, traceId)
	}

	var trace RequestTrace
	if err := res.Scan(&trace); err != nil {
		return nil, fmt.Errorf("failed to read trace '%s': %w", traceId, err)
	}
	return &trace, nil
}

type RedisStream struct {
	id          string
	lastRedisID string
	block       time.Duration

	rdb *redis.Client
}

func (s RedisStream) Send(ctx context.Context, payload MessageStreamPayload) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	res, err := s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: s.id,
		ID:     "*",
		Values: map[string]any{
			"payload": string(payloadJSON),
		},
	}).Result()
	if err != nil {
		return err
	}

	if payload.Final() {
		s.rdb.Expire(ctx, s.id, StreamExpiry)
	}

	slog.Debug("received result from redis", "res", res)
	return nil
}

func (s *RedisStream) Recv(ctx context.Context) (*MessageStreamPayload, error) {
	for {
		rstreams, err := s.rdb.XRead(ctx, &redis.XReadArgs{
			Streams: []string{s.id, s.lastRedisID},
			Count:   1,
			Block:   s.block,
		}).Result()
		if errors.Is(err, redis.Nil) {
			// block timed out
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		if len(rstreams) == 0 || len(rstreams[0].Messages) == 0 {
			continue
		}

		msg := rstreams[0].Messages[0]
		s.lastRedisID = msg.ID
		payloadJSON, ok := msg.Values["payload"].(string)
		if !ok {
			return nil, fmt.Errorf("failed to read payload from stream message")
		}

		var payload MessageStreamPayload
		if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
			return nil, fmt.Errorf("failed to deserialize stream message payload: %w", err)
		}

		return &payload, nil
	}
}

func (s *RedisStream) Text(ctx context.Context) (string, error) {
	return readText(ctx, s)
}

func (s *RedisStream) GetID() string {
	return s.id
}
