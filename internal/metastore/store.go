// Package metastore defines the metadata store port for share records and
// ships the in-memory implementation. Durable backends live in the
// redisstore, pgstore and boltstore subpackages.
package metastore

import (
	"context"
	"errors"
	"time"

	"github.com/TobyX424242/ZeroShare/internal/share"
)

var (
	// ErrNotFound is returned when no live record exists for an id.
	ErrNotFound = errors.New("metastore: record not found")
	// ErrInvalidTTL is returned by Put for a non-positive TTL.
	ErrInvalidTTL = errors.New("metastore: ttl must be positive")
	// ErrConflict is returned when an optimistic update kept losing races.
	ErrConflict = errors.New("metastore: too many concurrent updates")
)

// Entry is one record produced by List. Err is set, and Record nil, when the
// stored bytes could not be decoded.
type Entry struct {
	ID     string
	Record *share.Record
	Err    error
}

// Page is one batch of a List scan. An empty Next ends the scan.
type Page struct {
	Entries []Entry
	Next    string
}

// Store persists share records with a per-record TTL.
//
// ConsumeView is the only mutation of a live record. Implementations must run
// it atomically with respect to other ConsumeView calls on the same id: load
// the record, apply share.Record.Consume, then either delete the record
// (final view) or rewrite it with a TTL of StoreTTL(now).
type Store interface {
	Get(ctx context.Context, id string) (*share.Record, error)
	Put(ctx context.Context, rec *share.Record, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
	ConsumeView(ctx context.Context, id string, now time.Time) (rec *share.Record, final bool, err error)
	List(ctx context.Context, cursor string, limit int) (Page, error)
	Close() error
}

// LapsedIndex is implemented by stores whose records vanish by themselves at
// expiry, so List can no longer show them. Lapsed returns stand-ins for
// records that expired before now without a Delete, oldest first, skipping
// the first offset. A stand-in carries ID, BlobKey and ExpiresAt only.
type LapsedIndex interface {
	Lapsed(ctx context.Context, now time.Time, offset, limit int) ([]Entry, error)
}

// DefaultPageSize is used by List when limit is not positive.
const DefaultPageSize = 100
