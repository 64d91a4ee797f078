package signing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSigner(t *testing.T) {
	s := NewSigner([]byte("topsecret"))
	now := time.Unix(1700000000, 0)
	q := s.Query(ActionSweep, time.Minute, now)
	require.NotEmpty(t, q.Get("signature"))
	assert.Equal(t, "1700000060", q.Get("expires"))

	assert.NoError(t, s.Validate(ActionSweep, q.Get("expires"), q.Get("signature"), now))
	assert.ErrorIs(t, s.Validate("other", q.Get("expires"), q.Get("signature"), now), ErrBadSignature)
	assert.ErrorIs(t, s.Validate(ActionSweep, "1700000061", q.Get("signature"), now), ErrBadSignature)
	assert.ErrorIs(t, s.Validate(ActionSweep, "soon", q.Get("signature"), now), ErrBadSignature)
	assert.ErrorIs(t, s.Validate(ActionSweep, q.Get("expires"), q.Get("signature"), now.Add(2*time.Minute)), ErrExpired)
}

func TestSigner_DifferentSecrets(t *testing.T) {
	a := NewSigner([]byte("a"))
	b := NewSigner([]byte("b"))
	assert.NotEqual(t, a.Sign(ActionSweep, 1), b.Sign(ActionSweep, 1))
}
