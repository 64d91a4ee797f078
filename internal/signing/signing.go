// Package signing signs short-lived admin trigger URLs with HMAC-SHA256.
// The server exposes POST /internal/sweep?expires=&signature= and the CLI
// produces matching query strings from the shared ADMIN_SECRET.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// ActionSweep names the sweep trigger in signed payloads.
const ActionSweep = "sweep"

var (
	ErrBadSignature = errors.New("signing: signature mismatch")
	ErrExpired      = errors.New("signing: link expired")
)

// Signer generates and validates HMAC based signatures.
type Signer struct {
	secret []byte
}

// NewSigner creates a Signer.
func NewSigner(secret []byte) *Signer {
	return &Signer{secret: secret}
}

// Sign returns the hex signature for an action valid until expiresUnix.
func (s *Signer) Sign(action string, expiresUnix int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s:%d", action, expiresUnix)
	return hex.EncodeToString(mac.Sum(nil))
}

// Query builds the expires/signature query parameters for action.
func (s *Signer) Query(action string, ttl time.Duration, now time.Time) url.Values {
	exp := now.Add(ttl).Unix()
	return url.Values{
		"expires":   {strconv.FormatInt(exp, 10)},
		"signature": {s.Sign(action, exp)},
	}
}

// Validate checks signature for action and rejects links past their expiry.
func (s *Signer) Validate(action, expires, signature string, now time.Time) error {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return ErrBadSignature
	}
	expected := s.Sign(action, exp)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrBadSignature
	}
	if now.Unix() > exp {
		return ErrExpired
	}
	return nil
}
