// Package redisstore keeps share records in Redis as JSON strings under
// share:{id}, using native key expiry for the store TTL. Because Redis drops
// a record the moment it expires, every id is also indexed by expiry in a
// sorted set so the sweeper can still reap the blob afterwards.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/TobyX424242/ZeroShare/internal/metastore"
	"github.com/TobyX424242/ZeroShare/internal/share"
)

// maxTxRetries bounds how often ConsumeView re-runs after a WATCH conflict.
const maxTxRetries = 64

// ExpiryIndexKey is the sorted set of share ids scored by expiresAt in unix
// milliseconds. It sits outside the share: prefix so List never scans it.
const ExpiryIndexKey = "zeroshare:expiry"

// Options configures the connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

var _ metastore.LapsedIndex = (*Store)(nil)

// Store implements metastore.Store on Redis. ConsumeView uses WATCH/MULTI so
// concurrent views of one share are serialized by Redis itself.
type Store struct {
	client *redis.Client
}

// New connects and pings Redis.
func New(ctx context.Context, opts Options) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redisstore: ping %s: %w", opts.Addr, err)
	}
	return &Store{client: client}, nil
}

// NewFromClient wraps an existing client.
func NewFromClient(client *redis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Get(ctx context.Context, id string) (*share.Record, error) {
	data, err := s.client.Get(ctx, share.MetadataKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, metastore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redisstore: get %s: %w", id, err)
	}
	return share.Decode(data)
}

func (s *Store) Put(ctx context.Context, rec *share.Record, ttl time.Duration) error {
	if ttl <= 0 {
		return metastore.ErrInvalidTTL
	}
	data, err := share.Encode(rec)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, share.MetadataKey(rec.ID), data, ttl)
		pipe.ZAdd(ctx, ExpiryIndexKey, redis.Z{Score: expiryScore(rec.ExpiresAt), Member: rec.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("redisstore: set %s: %w", rec.ID, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, share.MetadataKey(id))
		pipe.ZRem(ctx, ExpiryIndexKey, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redisstore: del %s: %w", id, err)
	}
	return nil
}

func (s *Store) ConsumeView(ctx context.Context, id string, now time.Time) (*share.Record, bool, error) {
	key := share.MetadataKey(id)
	var (
		rec   *share.Record
		final bool
	)
	txf := func(tx *redis.Tx) error {
		rec, final = nil, false
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return metastore.ErrNotFound
		}
		if err != nil {
			return err
		}
		rec, err = share.Decode(data)
		if err != nil {
			return err
		}
		final, err = rec.Consume(now)
		if err != nil {
			return err
		}
		updated, err := share.Encode(rec)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if final {
				pipe.Del(ctx, key)
				pipe.ZRem(ctx, ExpiryIndexKey, id)
			} else {
				pipe.Set(ctx, key, updated, rec.StoreTTL(now))
			}
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return rec, final, nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, metastore.ErrNotFound),
			errors.Is(err, share.ErrExpired),
			errors.Is(err, share.ErrViewLimitExceeded),
			errors.Is(err, share.ErrCorruptRecord):
			return rec, false, err
		default:
			return nil, false, fmt.Errorf("redisstore: consume %s: %w", id, err)
		}
	}
	return nil, false, metastore.ErrConflict
}

// List scans share:* keys. The cursor is the Redis SCAN cursor; a key may be
// returned more than once across pages.
func (s *Store) List(ctx context.Context, cursor string, limit int) (metastore.Page, error) {
	if limit <= 0 {
		limit = metastore.DefaultPageSize
	}
	var pos uint64
	if cursor != "" {
		parsed, err := strconv.ParseUint(cursor, 10, 64)
		if err != nil {
			return metastore.Page{}, fmt.Errorf("redisstore: bad cursor %q: %w", cursor, err)
		}
		pos = parsed
	}
	keys, next, err := s.client.Scan(ctx, pos, share.MetadataKeyPrefix+"*", int64(limit)).Result()
	if err != nil {
		return metastore.Page{}, fmt.Errorf("redisstore: scan: %w", err)
	}

	var page metastore.Page
	if next != 0 {
		page.Next = strconv.FormatUint(next, 10)
	}
	if len(keys) == 0 {
		return page, nil
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return metastore.Page{}, fmt.Errorf("redisstore: mget: %w", err)
	}
	for i, key := range keys {
		id := strings.TrimPrefix(key, share.MetadataKeyPrefix)
		raw, ok := values[i].(string)
		if !ok {
			// Expired or deleted between SCAN and MGET.
			continue
		}
		rec, err := share.Decode([]byte(raw))
		if err != nil {
			page.Entries = append(page.Entries, metastore.Entry{ID: id, Err: err})
			continue
		}
		page.Entries = append(page.Entries, metastore.Entry{ID: id, Record: rec})
	}
	return page, nil
}

// Lapsed returns stand-in records for ids whose expiresAt is before now and
// that were never deleted through the store, oldest first. Redis has already
// dropped the records themselves, so each stand-in carries only the id, the
// derived blob key and the expiry. Entries stay indexed until Delete.
func (s *Store) Lapsed(ctx context.Context, now time.Time, offset, limit int) ([]metastore.Entry, error) {
	if limit <= 0 {
		limit = metastore.DefaultPageSize
	}
	members, err := s.client.ZRangeByScoreWithScores(ctx, ExpiryIndexKey, &redis.ZRangeBy{
		Min:    "-inf",
		Max:    "(" + strconv.FormatInt(now.UnixMilli(), 10),
		Offset: int64(offset),
		Count:  int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: lapsed: %w", err)
	}
	entries := make([]metastore.Entry, 0, len(members))
	for _, z := range members {
		id, ok := z.Member.(string)
		if !ok {
			continue
		}
		entries = append(entries, metastore.Entry{ID: id, Record: &share.Record{
			ID:        id,
			BlobKey:   share.BlobKeyFor(id),
			ExpiresAt: time.UnixMilli(int64(z.Score)).UTC(),
		}})
	}
	return entries, nil
}

func expiryScore(t time.Time) float64 {
	return float64(t.UnixMilli())
}

func (s *Store) Close() error {
	return s.client.Close()
}
