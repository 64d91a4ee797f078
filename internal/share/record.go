// Package share holds the share record model: the access state stored for
// every uploaded blob, the rules that move it through its lifecycle, and the
// typed parsing of uploader-supplied access settings.
package share

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/TobyX424242/ZeroShare/internal/password"
)

// Unlimited is the MaxViews sentinel for shares without a view limit.
const Unlimited = -1

const (
	// MetadataKeyPrefix namespaces share records in key-value metadata stores.
	MetadataKeyPrefix = "share:"
	blobKeyPrefix     = "shares/"
	blobKeySuffix     = ".bin"
)

// State describes where a share is in its lifecycle as observed at a given
// instant. Expired and Exhausted are transient: observing them during a
// fetch finalizes the share, after which it is Gone.
type State string

const (
	StateActive    State = "active"
	StateExpired   State = "expired"
	StateExhausted State = "exhausted"
	StateGone      State = "gone"
)

// Record is the authoritative access state of one share. The blob it
// references lives in a separate store.
type Record struct {
	ID            string           `json:"shareId"`
	Password      *password.Digest `json:"passwordHash,omitempty"`
	ExpiresAt     time.Time        `json:"expiresAt"`
	BlobKey       string           `json:"blobKey"`
	MaxViews      int              `json:"maxViews"`
	CurrentViews  int              `json:"currentViews"`
	BurnAfterRead bool             `json:"burnAfterRead"`
	CreatedAt     time.Time        `json:"createdAt"`
}

// BlobKeyFor derives the blob store key for a share id.
func BlobKeyFor(id string) string {
	return blobKeyPrefix + id + blobKeySuffix
}

// MetadataKey derives the namespaced metadata key for a share id.
func MetadataKey(id string) string {
	return MetadataKeyPrefix + id
}

// PasswordRequired reports whether fetches must present a password.
func (r *Record) PasswordRequired() bool {
	return r.Password != nil
}

// Expired reports whether now is at or past the expiry instant.
func (r *Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Exhausted reports whether a finite view budget has been used up.
func (r *Record) Exhausted() bool {
	return r.MaxViews != Unlimited && r.CurrentViews >= r.MaxViews
}

// ViewsRemaining returns the number of views left, or -1 when unlimited.
func (r *Record) ViewsRemaining() int {
	if r.MaxViews == Unlimited {
		return -1
	}
	if left := r.MaxViews - r.CurrentViews; left > 0 {
		return left
	}
	return 0
}

// State classifies the record at now. Expiry wins over exhaustion.
func (r *Record) State(now time.Time) State {
	switch {
	case r.Expired(now):
		return StateExpired
	case r.Exhausted():
		return StateExhausted
	default:
		return StateActive
	}
}

// Consume records one authorized view. It reports whether that view was the
// last one the share permits; burn-after-read shares are always final.
// Stores call it inside their atomic section.
func (r *Record) Consume(now time.Time) (final bool, err error) {
	if r.Expired(now) {
		return false, ErrExpired
	}
	if r.Exhausted() {
		return false, ErrViewLimitExceeded
	}
	r.CurrentViews++
	return r.BurnAfterRead || r.Exhausted(), nil
}

// StoreTTL is the time-to-live a metadata store should attach to the record
// so it lapses together with the share.
func (r *Record) StoreTTL(now time.Time) time.Duration {
	return r.ExpiresAt.Sub(now)
}

// Validate checks the structural invariants of a stored record.
func (r *Record) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: empty share id", ErrCorruptRecord)
	}
	if r.BlobKey == "" {
		return fmt.Errorf("%w: empty blob key", ErrCorruptRecord)
	}
	if r.MaxViews != Unlimited && r.MaxViews < 1 {
		return fmt.Errorf("%w: max views %d", ErrCorruptRecord, r.MaxViews)
	}
	if r.CurrentViews < 0 {
		return fmt.Errorf("%w: current views %d", ErrCorruptRecord, r.CurrentViews)
	}
	if r.ExpiresAt.IsZero() {
		return fmt.Errorf("%w: missing expiry", ErrCorruptRecord)
	}
	return nil
}

// Encode serializes the record for storage.
func Encode(r *Record) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode share %s: %w", r.ID, err)
	}
	return data, nil
}

// Decode parses and validates a stored record.
func Decode(data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}
