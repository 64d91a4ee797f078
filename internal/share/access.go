package share

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"time"
	"unicode/utf8"
)

// Defaults applied when the server configuration leaves a cap unset.
const (
	DefaultMaxRetentionHours     = 24
	DefaultDefaultRetentionHours = 24
	DefaultMaxViewsLimit         = 50
	DefaultMaxPasswordLength     = 512
	DefaultMaxMetadataLength     = 8192
	DefaultMinTTL                = 60 * time.Second
)

// AccessRequest is the uploader's requested access policy after typed
// parsing. Nil pointers mean the field was absent or null.
type AccessRequest struct {
	Password       string
	MaxViews       *int64
	BurnAfterRead  bool
	ExpiresInHours *float64
}

// ParseAccessRequest decodes the accessControl JSON object. Each field must
// carry its documented JSON type; nothing is coerced.
func ParseAccessRequest(raw []byte) (AccessRequest, error) {
	var req AccessRequest
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return req, invalid("accessControl", "Invalid access control payload")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return req, invalid("accessControl", "Invalid access control payload")
	}

	if v, ok := present(fields, "password"); ok {
		if err := json.Unmarshal(v, &req.Password); err != nil {
			return req, invalid("password", "Password must be a string")
		}
	}
	if v, ok := present(fields, "maxViews"); ok {
		n, err := parseInteger(v)
		if err != nil {
			return req, invalid("maxViews", "Max views must be a positive integer or zero for unlimited")
		}
		req.MaxViews = &n
	}
	if v, ok := present(fields, "burnAfterRead"); ok {
		if err := json.Unmarshal(v, &req.BurnAfterRead); err != nil {
			return req, invalid("burnAfterRead", "burnAfterRead must be a boolean")
		}
	}
	if v, ok := present(fields, "expiresIn"); ok {
		var hours float64
		if err := json.Unmarshal(v, &hours); err != nil {
			return req, invalid("expiresIn", "Expiration must be a number of hours")
		}
		req.ExpiresInHours = &hours
	}
	return req, nil
}

func present(fields map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	v, ok := fields[key]
	if !ok || string(bytes.TrimSpace(v)) == "null" {
		return nil, false
	}
	return v, true
}

// parseInteger accepts JSON numbers with an integral value, including
// forms like 3.0 or 1e1. Values beyond int64 saturate.
func parseInteger(v json.RawMessage) (int64, error) {
	// json.Number would otherwise accept a quoted numeric string.
	if len(v) > 0 && v[0] == '"' {
		return 0, strconv.ErrSyntax
	}
	var num json.Number
	if err := json.Unmarshal(v, &num); err != nil {
		return 0, err
	}
	if n, err := num.Int64(); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(num.String(), 64)
	if err != nil {
		return 0, err
	}
	switch {
	case f != math.Trunc(f):
		return 0, strconv.ErrSyntax
	case f >= math.MaxInt64:
		// Normalize clamps to the view cap.
		return math.MaxInt64, nil
	case f <= math.MinInt64:
		return math.MinInt64, nil
	}
	return int64(f), nil
}

// Limits are the server-side caps the upload path enforces.
type Limits struct {
	MaxRetentionHours     float64
	DefaultRetentionHours float64
	MaxViews              int
	MaxPasswordLength     int
	MaxMetadataLength     int
	MinTTL                time.Duration
}

// DefaultLimits returns the stock caps.
func DefaultLimits() Limits {
	return Limits{
		MaxRetentionHours:     DefaultMaxRetentionHours,
		DefaultRetentionHours: DefaultDefaultRetentionHours,
		MaxViews:              DefaultMaxViewsLimit,
		MaxPasswordLength:     DefaultMaxPasswordLength,
		MaxMetadataLength:     DefaultMaxMetadataLength,
		MinTTL:                DefaultMinTTL,
	}
}

// Policy is the normalized access policy persisted with a new share.
type Policy struct {
	Password      string
	MaxViews      int
	BurnAfterRead bool
	TTL           time.Duration
}

// CheckMetadata enforces the encrypted-metadata size cap.
func (l Limits) CheckMetadata(encryptedMetadata string) error {
	if len(encryptedMetadata) > l.MaxMetadataLength {
		return invalid("encryptedMetadata", "Encrypted metadata exceeds maximum size")
	}
	return nil
}

// Normalize validates req against the limits and resolves defaults. The
// order of checks is password, expiry, then view limit.
func (l Limits) Normalize(req AccessRequest) (Policy, error) {
	var p Policy

	if utf8.RuneCountInString(req.Password) > l.MaxPasswordLength {
		return p, invalid("password", "Password is too long")
	}
	p.Password = req.Password

	hours := math.Min(l.DefaultRetentionHours, l.MaxRetentionHours)
	if req.ExpiresInHours != nil {
		h := *req.ExpiresInHours
		if math.IsNaN(h) || math.IsInf(h, 0) || h <= 0 {
			return p, invalid("expiresIn", "Expiration must be greater than 0 hours")
		}
		hours = math.Min(h, l.MaxRetentionHours)
	}
	p.TTL = time.Duration(math.Floor(hours*3600)) * time.Second
	if p.TTL < l.MinTTL {
		p.TTL = l.MinTTL
	}

	p.MaxViews = Unlimited
	if req.MaxViews != nil {
		switch n := *req.MaxViews; {
		case n == 0 || n == Unlimited:
		case n > 0:
			p.MaxViews = int(min(n, int64(l.MaxViews)))
		default:
			return p, invalid("maxViews", "Max views must be a positive integer or zero for unlimited")
		}
	}
	p.BurnAfterRead = req.BurnAfterRead
	return p, nil
}
