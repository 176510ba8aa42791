package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	maintnotifications "github.com/redis/go-redis/v9/maintnotifications"

	"github.com/mohammed-shakir/mfp-encoder/internal/core/observability"
)

// transitionRetries bounds optimistic retries when a watched key changes
// between the read and the write of a Transition.
const transitionRetries = 8

type Option func(*redis.Options)

func WithPoolSize(n int) Option {
	return func(o *redis.Options) { o.PoolSize = n }
}

func WithDialTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.DialTimeout = d }
}

func WithReadTimeout(d time.Duration) Option {
	return func(o *redis.Options) {
		if d > 0 {
			o.ReadTimeout = d
		}
	}
}

// RedisStore keeps records as JSON strings that expire after ttl, so every
// proxy replica sees every job.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

func NewRedis(ctx context.Context, addr, prefix string, ttl time.Duration, opts ...Option) (*RedisStore, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}
	ro := &redis.Options{
		Addr:         addr,
		PoolSize:     16,
		MinIdleConns: 2,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	}
	for _, f := range opts {
		f(ro)
	}
	s := &RedisStore{rdb: redis.NewClient(ro), prefix: prefix, ttl: ttl}
	if err := s.Ping(ctx); err != nil {
		_ = s.rdb.Close()
		return nil, err
	}
	return s, nil
}

func (s *RedisStore) Put(ctx context.Context, r Record) error {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", r.Ref, err)
	}
	start := time.Now()
	err = s.rdb.Set(ctx, Key(s.prefix, r.Ref), b, s.ttl).Err()
	observability.ObserveJobStoreOp("redis", "put", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis SET job %s: %w", r.Ref, err)
	}
	return nil
}

// Transition reads the current record under WATCH and writes r in a
// MULTI/EXEC block, retrying when another writer touched the key first.
func (s *RedisStore) Transition(ctx context.Context, r Record) (bool, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return false, fmt.Errorf("marshal job %s: %w", r.Ref, err)
	}
	key := Key(s.prefix, r.Ref)
	var stored bool
	txf := func(tx *redis.Tx) error {
		stored = false
		cur, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			var old Record
			if json.Unmarshal(cur, &old) == nil && old.Terminal() {
				return nil
			}
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, b, s.ttl)
			return nil
		})
		if err == nil {
			stored = true
		}
		return err
	}

	start := time.Now()
	for range transitionRetries {
		err = s.rdb.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	observability.ObserveJobStoreOp("redis", "transition", err, time.Since(start).Seconds())
	if err != nil {
		return false, fmt.Errorf("redis transition job %s: %w", r.Ref, err)
	}
	return stored, nil
}

func (s *RedisStore) Get(ctx context.Context, ref string) (Record, error) {
	start := time.Now()
	b, err := s.rdb.Get(ctx, Key(s.prefix, ref)).Bytes()
	if errors.Is(err, redis.Nil) {
		observability.ObserveJobStoreOp("redis", "get", nil, time.Since(start).Seconds())
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	observability.ObserveJobStoreOp("redis", "get", err, time.Since(start).Seconds())
	if err != nil {
		return Record{}, fmt.Errorf("redis GET job %s: %w", ref, err)
	}
	var r Record
	if err := json.Unmarshal(b, &r); err != nil {
		return Record{}, fmt.Errorf("decode job %s: %w", ref, err)
	}
	return r, nil
}

func (s *RedisStore) Delete(ctx context.Context, ref string) error {
	start := time.Now()
	err := s.rdb.Del(ctx, Key(s.prefix, ref)).Err()
	observability.ObserveJobStoreOp("redis", "delete", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis DEL job %s: %w", ref, err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	start := time.Now()
	err := s.rdb.Ping(ctx).Err()
	observability.ObserveJobStoreOp("redis", "ping", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	if err := s.rdb.Close(); err != nil {
		return fmt.Errorf("redis close: %w", err)
	}
	return nil
}
