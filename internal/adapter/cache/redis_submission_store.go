package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"github.com/smallbiznis/valora-filing/internal/domain/filing"
	"github.com/smallbiznis/valora-filing/internal/repository"
)

const (
	keyPrefix = "filing:submission:"
	indexKey  = "filing:submissions"

	maxSaveAttempts = 3
)

// RedisSubmissionStore implements SubmissionRepository backed by Redis. Records
// live under one key each and a sorted set indexes them by id.
type RedisSubmissionStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

var _ repository.SubmissionRepository = (*RedisSubmissionStore)(nil)

// NewRedisSubmissionStore constructs a Redis-backed store. A zero ttl keeps records forever.
func NewRedisSubmissionStore(client redis.UniversalClient, ttl time.Duration) *RedisSubmissionStore {
	return &RedisSubmissionStore{client: client, ttl: ttl}
}

func submissionKey(id int64) string {
	return keyPrefix + strconv.FormatInt(id, 10)
}

// Save stores the encoded submission with TTL and indexes it. The record key is
// watched so a concurrent writer cannot slip a backward move past the state check.
func (s *RedisSubmissionStore) Save(ctx context.Context, sub *filing.FormSubmission) error {
	payload, err := sonic.Marshal(sub)
	if err != nil {
		return fmt.Errorf("marshal submission: %w", err)
	}
	key := submissionKey(sub.ID)

	write := func(tx *redis.Tx) error {
		stored, err := decodeStored(tx.Get(ctx, key))
		if err != nil {
			return err
		}
		if err := repository.CheckOverwrite(stored, sub); err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, s.ttl)
			pipe.ZAdd(ctx, indexKey, redis.Z{Score: float64(sub.ID), Member: strconv.FormatInt(sub.ID, 10)})
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		err = s.client.Watch(ctx, write, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if errors.Is(err, filing.ErrInvalidTransition) {
		return err
	}
	if err != nil {
		return fmt.Errorf("persist submission: %w", err)
	}
	return nil
}

func decodeStored(cmd *redis.StringCmd) (*filing.FormSubmission, error) {
	raw, err := cmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load submission: %w", err)
	}
	var sub filing.FormSubmission
	if err := sonic.Unmarshal(raw, &sub); err != nil {
		return nil, fmt.Errorf("decode submission: %w", err)
	}
	return &sub, nil
}

// Get loads and decodes one submission.
func (s *RedisSubmissionStore) Get(ctx context.Context, id int64) (*filing.FormSubmission, error) {
	sub, err := decodeStored(s.client.Get(ctx, submissionKey(id)))
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, fmt.Errorf("submission %d: %w", id, filing.ErrSubmissionNotFound)
	}
	return sub, nil
}

// List walks the index newest first. Index entries whose record has expired are pruned.
func (s *RedisSubmissionStore) List(ctx context.Context, filter repository.ListFilter) ([]*filing.FormSubmission, error) {
	ids, err := s.client.ZRevRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list index: %w", err)
	}
	out := []*filing.FormSubmission{}
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = keyPrefix + id
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load submissions: %w", err)
	}

	var stale []any
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var sub filing.FormSubmission
		if err := sonic.UnmarshalString(raw, &sub); err != nil {
			return nil, fmt.Errorf("decode submission: %w", err)
		}
		if !filter.Matches(&sub) {
			continue
		}
		out = append(out, &sub)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	if len(stale) > 0 {
		if err := s.client.ZRem(ctx, indexKey, stale...).Err(); err != nil {
			return nil, fmt.Errorf("prune index: %w", err)
		}
	}
	return out, nil
}

// Delete removes the record and its index entry.
func (s *RedisSubmissionStore) Delete(ctx context.Context, id int64) error {
	var removed *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.Del(ctx, submissionKey(id))
		pipe.ZRem(ctx, indexKey, strconv.FormatInt(id, 10))
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete submission: %w", err)
	}
	if removed.Val() == 0 {
		return fmt.Errorf("submission %d: %w", id, filing.ErrSubmissionNotFound)
	}
	return nil
}
