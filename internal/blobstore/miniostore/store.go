// Package miniostore stores share payloads in a MinIO or other S3-compatible
// bucket through minio-go. Each payload has a JSON sidecar object at
// {key}.meta holding blobstore.Meta.
package miniostore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/TobyX424242/ZeroShare/internal/blobstore"
)

// Options configures the MinIO client.
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// Store wraps MinIO interactions for share payloads.
type Store struct {
	client *minio.Client
	bucket string
	region string
}

// New creates a MinIO client from opts.
func New(opts Options) (*Store, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &Store{client: client, bucket: opts.Bucket, region: opts.Region}, nil
}

// EnsureBucket makes sure the bucket exists before use.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("make bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// Put uploads the payload, then its sidecar. If the sidecar cannot be
// written the payload is removed again.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, size int64, meta blobstore.Meta) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return fmt.Errorf("upload payload %s: %w", key, err)
	}

	sidecar, err := blobstore.EncodeMeta(meta)
	if err == nil {
		_, err = s.client.PutObject(ctx, s.bucket, blobstore.SidecarKey(key), bytes.NewReader(sidecar), int64(len(sidecar)), minio.PutObjectOptions{
			ContentType: "application/json",
		})
	}
	if err != nil {
		if rmErr := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); rmErr != nil {
			err = errors.Join(err, fmt.Errorf("remove payload: %w", rmErr))
		}
		return fmt.Errorf("upload sidecar %s: %w", key, err)
	}
	return nil
}

// Get opens the payload. The sidecar is read first; a missing sidecar or
// payload yields blobstore.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (*blobstore.Object, error) {
	sidecar, err := s.readAll(ctx, blobstore.SidecarKey(key))
	if err != nil {
		return nil, err
	}
	meta, err := blobstore.DecodeMeta(sidecar)
	if err != nil {
		return nil, err
	}

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.mapErr(key, err)
	}
	info, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, s.mapErr(key, err)
	}
	return &blobstore.Object{Body: obj, Size: info.Size, Meta: meta}, nil
}

// Delete removes payload and sidecar. S3 treats absent keys as success.
func (s *Store) Delete(ctx context.Context, key string) error {
	var errs []error
	for _, k := range []string{key, blobstore.SidecarKey(key)} {
		if err := s.client.RemoveObject(ctx, s.bucket, k, minio.RemoveObjectOptions{}); err != nil && !isNotFound(err) {
			errs = append(errs, fmt.Errorf("remove %s: %w", k, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Store) readAll(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.mapErr(key, err)
	}
	defer obj.Close()
	buf, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.mapErr(key, err)
	}
	return buf, nil
}

func (s *Store) mapErr(key string, err error) error {
	if isNotFound(err) {
		return blobstore.ErrNotFound
	}
	return fmt.Errorf("get object %s: %w", key, err)
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || (resp.StatusCode == http.StatusNotFound && resp.Code != "NoSuchBucket")
}
