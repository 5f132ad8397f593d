package genstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisGenStore shares generations between processes that share a cold tier, so a
// copy spilled by one process is rejected by another once the key moved on.
// Counters optionally expire; an expired counter reads as 0, which only rejects
// copies written under a later generation.
type RedisGenStore struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
	owns   bool
}

var _ GenStore = (*RedisGenStore)(nil)

type RedisOptions struct {
	// Prefix namespaces counters; "" => "swrgen:".
	Prefix string
	// TTL refreshes on every Bump. 0 keeps counters forever.
	TTL time.Duration
	// CloseClient closes rdb on Close. Leave false when rdb is shared.
	CloseClient bool
}

func NewRedisGenStore(rdb redis.UniversalClient, opts RedisOptions) (*RedisGenStore, error) {
	if rdb == nil {
		return nil, errors.New("genstore: nil redis client")
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "swrgen:"
	}
	return &RedisGenStore{rdb: rdb, prefix: prefix, ttl: opts.TTL, owns: opts.CloseClient}, nil
}

func (s *RedisGenStore) key(k string) string { return s.prefix + k }

func (s *RedisGenStore) Snapshot(ctx context.Context, k string) (uint64, error) {
	res, err := s.rdb.Get(ctx, s.key(k)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return parseGen(k, res)
}

// SnapshotMany reads every key with one MGET.
func (s *RedisGenStore) SnapshotMany(ctx context.Context, ks []string) (map[string]uint64, error) {
	out := make(map[string]uint64, len(ks))
	if len(ks) == 0 {
		return out, nil
	}
	full := make([]string, len(ks))
	for i, k := range ks {
		full[i] = s.key(k)
	}
	vals, err := s.rdb.MGet(ctx, full...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		if v == nil {
			out[ks[i]] = 0
			continue
		}
		g, err := parseGen(ks[i], fmt.Sprint(v))
		if err != nil {
			return nil, err
		}
		out[ks[i]] = g
	}
	return out, nil
}

// Bump is INCR, pipelined with EXPIRE when a TTL is set.
func (s *RedisGenStore) Bump(ctx context.Context, k string) (uint64, error) {
	if s.ttl <= 0 {
		v, err := s.rdb.Incr(ctx, s.key(k)).Result()
		return uint64(v), err
	}
	var incr *redis.IntCmd
	if _, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, s.key(k))
		p.Expire(ctx, s.key(k), s.ttl)
		return nil
	}); err != nil {
		return 0, err
	}
	return uint64(incr.Val()), nil
}

// Cleanup is a no-op; expiry is left to Redis.
func (s *RedisGenStore) Cleanup(time.Duration) {}

func (s *RedisGenStore) Close(context.Context) error {
	if !s.owns {
		return nil
	}
	if err := s.rdb.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}

func parseGen(key, raw string) (uint64, error) {
	g, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("genstore: generation of %q: %w", key, err)
	}
	return g, nil
}
