package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"llmstxt-crawler/internal/config"
	"llmstxt-crawler/pkg/types"
)

const (
	defaultRedisPrefix = "llmstxt:jobs"
	maxUpdateAttempts  = 5
)

// RedisStore shares job records between API instances. Each job is a JSON string key and a
// sorted set scored by last-update milliseconds drives the reaper.
type RedisStore struct {
	client goredis.UniversalClient
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisStore wraps an existing client. A positive ttl is applied to every job key as a
// backstop for jobs the reaper never sees.
func NewRedisStore(client goredis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	prefix = strings.TrimRight(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl, now: time.Now}
}

// DialRedis builds a client from configuration and checks connectivity.
func DialRedis(ctx context.Context, cfg config.RedisConfig) (*goredis.Client, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("redis host is required")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.Timeout.Duration,
		ReadTimeout:  cfg.Timeout.Duration,
		WriteTimeout: cfg.Timeout.Duration,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr(), err)
	}
	return client, nil
}

func (s *RedisStore) keyJob(id string) string { return s.prefix + ":job:" + id }

func (s *RedisStore) keyIndex() string { return s.prefix + ":index" }

func (s *RedisStore) Create(ctx context.Context, job *Job) error {
	if job == nil || job.JobID == "" {
		return errors.New("create job: missing id")
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.JobID, err)
	}
	ok, err := s.client.SetNX(ctx, s.keyJob(job.JobID), payload, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("create job %s: %w", job.JobID, err)
	}
	if !ok {
		return fmt.Errorf("create job %s: %w", job.JobID, ErrExists)
	}
	return s.client.ZAdd(ctx, s.keyIndex(), goredis.Z{
		Score:  float64(job.Timestamp.UnixMilli()),
		Member: job.JobID,
	}).Err()
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Job, error) {
	data, err := s.client.Get(ctx, s.keyJob(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return decodeJob(id, data)
}

// Update applies upd under WATCH so concurrent writers on the same key cannot interleave.
func (s *RedisStore) Update(ctx context.Context, id string, upd Update) (*Job, error) {
	key := s.keyJob(id)
	var result *Job
	txn := func(tx *goredis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, goredis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		job, err := decodeJob(id, data)
		if err != nil {
			return err
		}
		if err := upd.Apply(job, s.now()); err != nil {
			return err
		}
		payload, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("encode job %s: %w", id, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, payload, s.ttl)
			pipe.ZAdd(ctx, s.keyIndex(), goredis.Z{Score: float64(job.Timestamp.UnixMilli()), Member: id})
			return nil
		})
		if err == nil {
			result = job
		}
		return err
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := s.client.Watch(ctx, txn, key)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidTransition) {
			return nil, err
		}
		return nil, fmt.Errorf("update job %s: %w", id, err)
	}
	return nil, fmt.Errorf("update job %s: %w", id, goredis.TxFailedErr)
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, s.keyJob(id))
		pipe.ZRem(ctx, s.keyIndex(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	return nil
}

func (s *RedisStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	ids, err := s.client.ZRangeByScore(ctx, s.keyIndex(), &goredis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("scan job index: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	keys := make([]string, len(ids))
	members := make([]any, len(ids))
	for i, id := range ids {
		keys[i] = s.keyJob(id)
		members[i] = id
	}
	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		pipe.ZRem(ctx, s.keyIndex(), members...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete expired jobs: %w", err)
	}
	return len(ids), nil
}

func decodeJob(id string, data []byte) (*Job, error) {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	if job.Errors == nil {
		job.Errors = []types.CrawlError{}
	}
	return &job, nil
}
