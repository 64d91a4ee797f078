// Package blobstore defines the blob store port: opaque encrypted payloads
// keyed by shares/{id}.bin plus a small sidecar of descriptive metadata.
// S3-compatible backends live in the miniostore and s3store subpackages.
package blobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("blobstore: object not found")

// SidecarSuffix is appended to a payload key to name its metadata object.
const SidecarSuffix = ".meta"

// Meta travels with a payload. EncryptedMetadata is opaque to the server.
type Meta struct {
	ContentType       string    `json:"contentType"`
	EncryptedMetadata string    `json:"encryptedMetadata"`
	CreatedAt         time.Time `json:"createdAt"`
	ExpiresAt         time.Time `json:"expiresAt"`
}

// Object is an open payload. Callers must close Body.
type Object struct {
	Body io.ReadCloser
	Size int64
	Meta Meta
}

// Store persists payloads. Delete of an absent key is not an error.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, meta Meta) error
	Get(ctx context.Context, key string) (*Object, error)
	Delete(ctx context.Context, key string) error
}

// SidecarKey names the metadata object stored next to key.
func SidecarKey(key string) string {
	return key + SidecarSuffix
}

// EncodeMeta serializes a sidecar.
func EncodeMeta(m Meta) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode sidecar: %w", err)
	}
	return data, nil
}

// DecodeMeta parses a sidecar.
func DecodeMeta(data []byte) (Meta, error) {
	var m Meta
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("decode sidecar: %w", err)
	}
	return m, nil
}
