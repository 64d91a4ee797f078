// Package password hashes share passwords and verifies them against stored
// digests. Two digest formats exist: the legacy bare base64 SHA-256 string
// written by early deployments, and the salted PBKDF2 record used for every
// new share.
package password

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	AlgorithmPBKDF2SHA256 = "PBKDF2-SHA256"

	DefaultIterations = 100_000
	DefaultSaltLength = 16
	DefaultHashLength = 32

	// Upper bounds applied to stored parameters before recomputing a hash.
	maxIterations = 10_000_000
	maxHashLength = 64
)

var (
	ErrMalformedDigest      = errors.New("password: malformed digest")
	ErrUnsupportedAlgorithm = errors.New("password: unsupported algorithm")
)

// PBKDF2Digest is the structured digest record. Salt and Digest are standard
// base64.
type PBKDF2Digest struct {
	Algorithm  string `json:"algorithm"`
	Digest     string `json:"digest"`
	Salt       string `json:"salt"`
	Iterations int    `json:"iterations"`
	HashLength int    `json:"hashLength"`
}

// Digest is a tagged variant: exactly one of Legacy or PBKDF2 is set.
type Digest struct {
	Legacy string
	PBKDF2 *PBKDF2Digest
}

// LegacyDigest wraps a bare legacy digest string.
func LegacyDigest(s string) *Digest {
	return &Digest{Legacy: s}
}

// IsLegacy reports whether the digest uses the unsalted legacy format.
func (d *Digest) IsLegacy() bool {
	return d != nil && d.PBKDF2 == nil && d.Legacy != ""
}

// Verify reports whether password matches the digest. Comparison of the
// derived bytes is constant time.
func (d *Digest) Verify(password string) bool {
	switch {
	case d == nil:
		return false
	case d.PBKDF2 != nil:
		return d.PBKDF2.verify(password)
	case d.Legacy != "":
		computed := legacyHash(password)
		return subtle.ConstantTimeCompare([]byte(computed), []byte(d.Legacy)) == 1
	default:
		return false
	}
}

func (p *PBKDF2Digest) verify(password string) bool {
	if p.validate() != nil {
		return false
	}
	salt, err := base64.StdEncoding.DecodeString(p.Salt)
	if err != nil {
		return false
	}
	want, err := base64.StdEncoding.DecodeString(p.Digest)
	if err != nil || len(want) != p.HashLength {
		return false
	}
	got := pbkdf2.Key([]byte(password), salt, p.Iterations, p.HashLength, sha256.New)
	return subtle.ConstantTimeCompare(got, want) == 1
}

func (p *PBKDF2Digest) validate() error {
	if p.Algorithm != AlgorithmPBKDF2SHA256 {
		return fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, p.Algorithm)
	}
	if p.Iterations <= 0 || p.Iterations > maxIterations {
		return fmt.Errorf("%w: iterations %d", ErrMalformedDigest, p.Iterations)
	}
	if p.HashLength <= 0 || p.HashLength > maxHashLength {
		return fmt.Errorf("%w: hash length %d", ErrMalformedDigest, p.HashLength)
	}
	if p.Digest == "" || p.Salt == "" {
		return fmt.Errorf("%w: empty digest or salt", ErrMalformedDigest)
	}
	return nil
}

// MarshalJSON writes a legacy digest as a bare JSON string and a PBKDF2
// digest as an object.
func (d Digest) MarshalJSON() ([]byte, error) {
	if d.PBKDF2 != nil {
		return json.Marshal(d.PBKDF2)
	}
	if d.Legacy != "" {
		return json.Marshal(d.Legacy)
	}
	return nil, ErrMalformedDigest
}

// UnmarshalJSON accepts either representation written by MarshalJSON.
func (d *Digest) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return ErrMalformedDigest
	}
	switch trimmed[0] {
	case '"':
		var legacy string
		if err := json.Unmarshal(trimmed, &legacy); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedDigest, err)
		}
		if legacy == "" {
			return ErrMalformedDigest
		}
		*d = Digest{Legacy: legacy}
		return nil
	case '{':
		var rec PBKDF2Digest
		if err := json.Unmarshal(trimmed, &rec); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedDigest, err)
		}
		if err := rec.validate(); err != nil {
			return err
		}
		*d = Digest{PBKDF2: &rec}
		return nil
	default:
		return ErrMalformedDigest
	}
}

// Hasher produces PBKDF2-SHA256 digests with a fresh random salt per call.
type Hasher struct {
	iterations int
	saltLength int
	hashLength int
	random     io.Reader
}

// NewHasher returns a Hasher. Non-positive iterations fall back to
// DefaultIterations.
func NewHasher(iterations int) *Hasher {
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	return &Hasher{
		iterations: iterations,
		saltLength: DefaultSaltLength,
		hashLength: DefaultHashLength,
		random:     rand.Reader,
	}
}

// Hash derives a salted digest for password.
func (h *Hasher) Hash(password string) (*Digest, error) {
	salt := make([]byte, h.saltLength)
	if _, err := io.ReadFull(h.random, salt); err != nil {
		return nil, fmt.Errorf("password: read salt: %w", err)
	}
	key := pbkdf2.Key([]byte(password), salt, h.iterations, h.hashLength, sha256.New)
	return &Digest{PBKDF2: &PBKDF2Digest{
		Algorithm:  AlgorithmPBKDF2SHA256,
		Digest:     base64.StdEncoding.EncodeToString(key),
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Iterations: h.iterations,
		HashLength: h.hashLength,
	}}, nil
}

func legacyHash(password string) string {
	sum := sha256.Sum256([]byte(password))
	return base64.StdEncoding.EncodeToString(sum[:])
}
