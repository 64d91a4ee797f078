// Package boltstore keeps share records in a single-file bbolt database for
// single-node deployments. Each value is an envelope carrying the encoded
// record and its store expiry; lapsed envelopes stay visible to List so the
// sweeper can reap them.
package boltstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/TobyX424242/ZeroShare/internal/metastore"
	"github.com/TobyX424242/ZeroShare/internal/share"
)

var bucketShares = []byte("shares")

type envelope struct {
	Record         json.RawMessage `json:"record"`
	StoreExpiresAt time.Time       `json:"storeExpiresAt"`
}

// Store implements metastore.Store on bbolt. bbolt admits one writer at a
// time, so ConsumeView running inside db.Update is atomic.
type Store struct {
	db  *bbolt.DB
	now func() time.Time
}

// Open opens or creates the database at path. The parent directory is
// created if it does not exist.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("boltstore: create directory: %w", err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("boltstore: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketShares)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("boltstore: create bucket: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Get(_ context.Context, id string) (*share.Record, error) {
	var rec *share.Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		env, err := s.load(tx.Bucket(bucketShares), id)
		if err != nil {
			return err
		}
		rec, err = share.Decode(env.Record)
		return err
	})
	return rec, err
}

func (s *Store) Put(_ context.Context, rec *share.Record, ttl time.Duration) error {
	if ttl <= 0 {
		return metastore.ErrInvalidTTL
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return s.write(tx.Bucket(bucketShares), rec, ttl)
	})
}

func (s *Store) Delete(_ context.Context, id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketShares).Delete([]byte(id))
	})
}

func (s *Store) ConsumeView(_ context.Context, id string, now time.Time) (*share.Record, bool, error) {
	var (
		rec   *share.Record
		final bool
	)
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketShares)
		env, err := s.load(b, id)
		if err != nil {
			return err
		}
		rec, err = share.Decode(env.Record)
		if err != nil {
			return err
		}
		final, err = rec.Consume(now)
		if err != nil {
			return err
		}
		if final {
			return b.Delete([]byte(id))
		}
		return s.write(b, rec, rec.StoreTTL(now))
	})
	if err != nil {
		// Returning an error from Update rolls the transaction back, so the
		// record read is still the stored one.
		if errors.Is(err, share.ErrExpired) || errors.Is(err, share.ErrViewLimitExceeded) {
			return rec, false, err
		}
		return nil, false, err
	}
	return rec, final, nil
}

// List walks keys in byte order starting after cursor.
func (s *Store) List(_ context.Context, cursor string, limit int) (metastore.Page, error) {
	if limit <= 0 {
		limit = metastore.DefaultPageSize
	}
	var page metastore.Page
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketShares).Cursor()
		k, v := c.First()
		if cursor != "" {
			k, v = c.Seek([]byte(cursor))
			if k != nil && bytes.Equal(k, []byte(cursor)) {
				k, v = c.Next()
			}
		}
		for ; k != nil; k, v = c.Next() {
			if len(page.Entries) == limit {
				page.Next = page.Entries[len(page.Entries)-1].ID
				break
			}
			id := string(k)
			var env envelope
			if err := json.Unmarshal(v, &env); err != nil {
				page.Entries = append(page.Entries, metastore.Entry{ID: id, Err: fmt.Errorf("%w: %v", share.ErrCorruptRecord, err)})
				continue
			}
			rec, err := share.Decode(env.Record)
			if err != nil {
				page.Entries = append(page.Entries, metastore.Entry{ID: id, Err: err})
				continue
			}
			page.Entries = append(page.Entries, metastore.Entry{ID: id, Record: rec})
		}
		return nil
	})
	if err != nil {
		return metastore.Page{}, fmt.Errorf("boltstore: list: %w", err)
	}
	return page, nil
}

// load returns the live envelope for id.
func (s *Store) load(b *bbolt.Bucket, id string) (envelope, error) {
	var env envelope
	raw := b.Get([]byte(id))
	if raw == nil {
		return env, metastore.ErrNotFound
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, fmt.Errorf("%w: %v", share.ErrCorruptRecord, err)
	}
	if !s.now().Before(env.StoreExpiresAt) {
		return env, metastore.ErrNotFound
	}
	return env, nil
}

func (s *Store) write(b *bbolt.Bucket, rec *share.Record, ttl time.Duration) error {
	data, err := share.Encode(rec)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(envelope{Record: data, StoreExpiresAt: s.now().Add(ttl).UTC()})
	if err != nil {
		return fmt.Errorf("encode envelope %s: %w", rec.ID, err)
	}
	return b.Put([]byte(rec.ID), raw)
}

// putRaw stores an arbitrary value; tests use it to plant corrupt entries.
func (s *Store) putRaw(id string, value []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketShares).Put([]byte(id), value)
	})
}
