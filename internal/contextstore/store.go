// Package contextstore keeps the per-workflow record of which artifact each
// stage produced. Later stages, publication in particular, discover earlier
// outputs through it.
package contextstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"captionflow/internal/media"
	apperrors "captionflow/internal/pkg/errors"
)

// StageKey names the slot a stage writes its output to.
type StageKey string

const (
	KeyCompress     StageKey = "compress-job"
	KeyExtractAudio StageKey = "extract-audio-job"
	KeySubtitles    StageKey = "generate-subtitles-job"
	KeyBurnIn       StageKey = "add-subtitles-job"
)

// AllKeys lists every stage key in pipeline order.
var AllKeys = []StageKey{KeyCompress, KeyExtractAudio, KeySubtitles, KeyBurnIn}

// Store is a Redis-backed workflow context.
type Store struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
}

// New returns a store writing keys under <prefix>:context:. A positive ttl
// expires abandoned workflow contexts.
func New(rdb redis.Cmdable, prefix string, ttl time.Duration) *Store {
	return &Store{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *Store) key(workflowID string, stage StageKey) string {
	return s.prefix + ":context:" + workflowID + ":" + string(stage)
}

func (s *Store) pattern() string {
	return s.prefix + ":context:*"
}

func unavailable(err error, op string) error {
	return apperrors.WrapWithCode(err, apperrors.CodeUnavailable, op, "context store unavailable")
}

// Get returns the entry a stage recorded. A missing key yields the empty
// entry, not an error.
func (s *Store) Get(ctx context.Context, workflowID string, stage StageKey) (media.Entry, error) {
	raw, err := s.rdb.Get(ctx, s.key(workflowID, stage)).Bytes()
	if errors.Is(err, redis.Nil) {
		return media.Entry{}, nil
	}
	if err != nil {
		return media.Entry{}, unavailable(err, "contextstore.get")
	}
	return decode(raw, "contextstore.get")
}

// GetMany reads several stage keys in one round trip. The result has one
// entry per requested key, in the same order.
func (s *Store) GetMany(ctx context.Context, workflowID string, stages ...StageKey) ([]media.Entry, error) {
	if len(stages) == 0 {
		return nil, nil
	}
	keys := make([]string, len(stages))
	for i, st := range stages {
		keys[i] = s.key(workflowID, st)
	}

	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, unavailable(err, "contextstore.get_many")
	}

	out := make([]media.Entry, len(stages))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		e, err := decode([]byte(str), "contextstore.get_many")
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

// Snapshot returns every recorded entry of a workflow keyed by stage.
func (s *Store) Snapshot(ctx context.Context, workflowID string) (map[StageKey]media.Entry, error) {
	entries, err := s.GetMany(ctx, workflowID, AllKeys...)
	if err != nil {
		return nil, err
	}
	out := make(map[StageKey]media.Entry, len(AllKeys))
	for i, e := range entries {
		if !e.IsEmpty() {
			out[AllKeys[i]] = e
		}
	}
	return out, nil
}

// Set records the output of a stage, replacing any previous value.
func (s *Store) Set(ctx context.Context, workflowID string, stage StageKey, entry media.Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return apperrors.Wrap(err, "contextstore.set", "encode entry")
	}
	if err := s.rdb.Set(ctx, s.key(workflowID, stage), raw, s.ttl).Err(); err != nil {
		return unavailable(err, "contextstore.set")
	}
	return nil
}

// Clear deletes every stage key of a workflow.
func (s *Store) Clear(ctx context.Context, workflowID string) error {
	keys := make([]string, len(AllKeys))
	for i, st := range AllKeys {
		keys[i] = s.key(workflowID, st)
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return unavailable(err, "contextstore.clear")
	}
	return nil
}

// Purge deletes the context of every workflow and returns how many keys
// were removed.
func (s *Store) Purge(ctx context.Context) (int, error) {
	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, s.pattern(), 200).Result()
		if err != nil {
			return removed, unavailable(err, "contextstore.purge")
		}
		if len(keys) > 0 {
			n, err := s.rdb.Del(ctx, keys...).Result()
			if err != nil {
				return removed, unavailable(err, "contextstore.purge")
			}
			removed += int(n)
		}
		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

func decode(raw []byte, op string) (media.Entry, error) {
	var e media.Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return media.Entry{}, apperrors.Wrap(err, op, "decode entry")
	}
	return e, nil
}
