package share

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// IDLength is the length of a share id in hex characters.
const IDLength = 32

var idPattern = regexp.MustCompile(`^[a-fA-F0-9]{32}$`)

// NewID returns 128 bits from crypto/rand as lowercase hex. There is no
// fallback source: a predictable id would make shares enumerable.
func NewID() (string, error) {
	buf := make([]byte, IDLength/2)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate share id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// NormalizeID validates the syntax of a caller-supplied id and returns its
// canonical lowercase form.
func NormalizeID(raw string) (string, error) {
	if !idPattern.MatchString(raw) {
		return "", ErrInvalidID
	}
	return strings.ToLower(raw), nil
}
