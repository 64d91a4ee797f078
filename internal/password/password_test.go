package password

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasher_HashAndVerify(t *testing.T) {
	h := NewHasher(1000)

	d, err := h.Hash("correct horse")
	require.NoError(t, err)
	require.NotNil(t, d.PBKDF2)
	assert.Equal(t, AlgorithmPBKDF2SHA256, d.PBKDF2.Algorithm)
	assert.Equal(t, 1000, d.PBKDF2.Iterations)
	assert.Equal(t, DefaultHashLength, d.PBKDF2.HashLength)
	assert.False(t, d.IsLegacy())

	assert.True(t, d.Verify("correct horse"))
	assert.False(t, d.Verify("correct horse "))
	assert.False(t, d.Verify(""))
}

func TestHasher_SaltsDiffer(t *testing.T) {
	h := NewHasher(1000)
	a, err := h.Hash("same")
	require.NoError(t, err)
	b, err := h.Hash("same")
	require.NoError(t, err)
	assert.NotEqual(t, a.PBKDF2.Salt, b.PBKDF2.Salt)
	assert.NotEqual(t, a.PBKDF2.Digest, b.PBKDF2.Digest)
}

func TestNewHasher_DefaultIterations(t *testing.T) {
	assert.Equal(t, DefaultIterations, NewHasher(0).iterations)
	assert.Equal(t, DefaultIterations, NewHasher(-5).iterations)
}

func TestLegacyDigest_Verify(t *testing.T) {
	// base64(sha256("secret"))
	d := LegacyDigest("K7gNU3sdo+OL0wNhqoVWhr3g6s1xYv72ol/pe/Unols=")
	assert.True(t, d.IsLegacy())
	assert.True(t, d.Verify("secret"))
	assert.False(t, d.Verify("Secret"))
}

func TestDigest_VerifyNilAndEmpty(t *testing.T) {
	var d *Digest
	assert.False(t, d.Verify("x"))
	assert.False(t, (&Digest{}).Verify(""))
}

func TestDigest_JSONRoundTripKeepsVariant(t *testing.T) {
	h := NewHasher(1000)
	current, err := h.Hash("pw")
	require.NoError(t, err)

	data, err := json.Marshal(current)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "{"))

	var decoded Digest
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.NotNil(t, decoded.PBKDF2)
	assert.True(t, decoded.Verify("pw"))

	legacy, err := json.Marshal(LegacyDigest("abc"))
	require.NoError(t, err)
	assert.Equal(t, `"abc"`, string(legacy))

	var decodedLegacy Digest
	require.NoError(t, json.Unmarshal(legacy, &decodedLegacy))
	assert.Equal(t, "abc", decodedLegacy.Legacy)
	assert.Nil(t, decodedLegacy.PBKDF2)
}

func TestDigest_UnmarshalRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"number":        `42`,
		"empty string":  `""`,
		"unknown algo":  `{"algorithm":"MD5","digest":"a","salt":"b","iterations":1,"hashLength":16}`,
		"no iterations": `{"algorithm":"PBKDF2-SHA256","digest":"a","salt":"b","iterations":0,"hashLength":32}`,
		"huge length":   `{"algorithm":"PBKDF2-SHA256","digest":"a","salt":"b","iterations":1,"hashLength":4096}`,
		"missing salt":  `{"algorithm":"PBKDF2-SHA256","digest":"a","iterations":1,"hashLength":32}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			var d Digest
			err := json.Unmarshal([]byte(raw), &d)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedDigest) || errors.Is(err, ErrUnsupportedAlgorithm))
		})
	}
}

func TestDigest_TamperedDigestFails(t *testing.T) {
	h := NewHasher(1000)
	d, err := h.Hash("pw")
	require.NoError(t, err)
	d.PBKDF2.Iterations++
	assert.False(t, d.Verify("pw"))
}
