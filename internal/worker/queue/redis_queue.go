// Package queue is the Redis list transport between pipeline stages.
//
// Each topic owns two lists: <prefix>:queue:<topic> holds pending envelopes,
// <prefix>:queue:<topic>:processing holds envelopes a worker has reserved
// but not yet acknowledged. Delivery is at least once.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	apperrors "captionflow/internal/pkg/errors"
)

// Envelope is one message on a topic.
type Envelope struct {
	ID         string          `json:"id"`
	Topic      string          `json:"topic"`
	Payload    json.RawMessage `json:"payload"`
	Attempt    int             `json:"attempt"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`

	raw string
}

// Decode unmarshals the payload into v.
func (e *Envelope) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return apperrors.WrapWithCode(err, apperrors.CodeBadRequest, "queue.decode", "malformed payload")
	}
	return nil
}

type RedisQueue struct {
	rdb    redis.Cmdable
	prefix string
}

func NewRedisQueue(rdb redis.Cmdable, prefix string) *RedisQueue {
	return &RedisQueue{rdb: rdb, prefix: prefix}
}

func (q *RedisQueue) pending(topic string) string {
	return q.prefix + ":queue:" + topic
}

func (q *RedisQueue) processing(topic string) string {
	return q.pending(topic) + ":processing"
}

func unavailable(err error, op string) error {
	return apperrors.WrapWithCode(err, apperrors.CodeUnavailable, op, "queue unavailable")
}

// Enqueue publishes payload on topic and returns the envelope id.
func (q *RedisQueue) Enqueue(ctx context.Context, topic string, payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", apperrors.Wrap(err, "queue.enqueue", "encode payload")
	}
	env := Envelope{
		ID:         uuid.NewString(),
		Topic:      topic,
		Payload:    raw,
		Attempt:    1,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := q.push(ctx, env); err != nil {
		return "", err
	}
	return env.ID, nil
}

// Retry re-publishes env with its attempt counter incremented.
func (q *RedisQueue) Retry(ctx context.Context, env *Envelope) error {
	next := *env
	next.Attempt++
	next.EnqueuedAt = time.Now().UTC()
	next.raw = ""
	return q.push(ctx, next)
}

func (q *RedisQueue) push(ctx context.Context, env Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return apperrors.Wrap(err, "queue.push", "encode envelope")
	}
	if err := q.rdb.LPush(ctx, q.pending(env.Topic), b).Err(); err != nil {
		return unavailable(err, "queue.push")
	}
	return nil
}

// Reserve blocks up to timeout for the next envelope on topic and moves it
// to the processing list. It returns (nil, nil) when the wait times out.
func (q *RedisQueue) Reserve(ctx context.Context, topic string, timeout time.Duration) (*Envelope, error) {
	raw, err := q.rdb.BRPopLPush(ctx, q.pending(topic), q.processing(topic), timeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, unavailable(err, "queue.reserve")
	}

	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		// Poison message: drop it from processing so it is not redelivered.
		_ = q.rdb.LRem(ctx, q.processing(topic), 1, raw).Err()
		return nil, apperrors.WrapWithCode(err, apperrors.CodeBadRequest, "queue.reserve", "malformed envelope")
	}
	env.raw = raw
	if env.Topic == "" {
		env.Topic = topic
	}
	return &env, nil
}

// Ack removes a reserved envelope from its processing list.
func (q *RedisQueue) Ack(ctx context.Context, env *Envelope) error {
	if env == nil || env.raw == "" {
		return nil
	}
	if err := q.rdb.LRem(ctx, q.processing(env.Topic), 1, env.raw).Err(); err != nil {
		return unavailable(err, "queue.ack")
	}
	return nil
}

// Purge drops pending and processing envelopes of every given topic.
func (q *RedisQueue) Purge(ctx context.Context, topics ...string) error {
	if len(topics) == 0 {
		return nil
	}
	keys := make([]string, 0, 2*len(topics))
	for _, t := range topics {
		keys = append(keys, q.pending(t), q.processing(t))
	}
	if err := q.rdb.Del(ctx, keys...).Err(); err != nil {
		return unavailable(err, "queue.purge")
	}
	return nil
}

// Depth reports the pending and processing lengths of a topic.
func (q *RedisQueue) Depth(ctx context.Context, topic string) (pending, processing int64, err error) {
	pending, err = q.rdb.LLen(ctx, q.pending(topic)).Result()
	if err != nil {
		return 0, 0, unavailable(err, "queue.depth")
	}
	processing, err = q.rdb.LLen(ctx, q.processing(topic)).Result()
	if err != nil {
		return 0, 0, unavailable(err, "queue.depth")
	}
	return pending, processing, nil
}
