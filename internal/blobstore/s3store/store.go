// Package s3store stores share payloads in Amazon S3 (or any endpoint the
// AWS SDK can talk to) using aws-sdk-go-v2. Layout matches miniostore: the
// payload at key and a JSON sidecar at {key}.meta.
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/TobyX424242/ZeroShare/internal/blobstore"
)

// Options configures the S3 client. Static keys are optional; without them
// the default AWS credential chain applies.
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
}

// API is the subset of *s3.Client the store uses.
type API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

var loadDefaultAWSConfig = config.LoadDefaultConfig

// Store implements blobstore.Store on S3.
type Store struct {
	api    API
	bucket string
}

// New builds an S3 client from opts.
func New(ctx context.Context, opts Options) (*Store, error) {
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(opts.Region)}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}
	cfg, err := loadDefaultAWSConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewWithAPI(client, opts.Bucket), nil
}

// NewWithAPI wraps an existing client.
func NewWithAPI(api API, bucket string) *Store {
	return &Store{api: api, bucket: bucket}
}

// Put uploads the payload, then its sidecar, removing the payload again if
// the sidecar upload fails.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, size int64, meta blobstore.Meta) error {
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          r,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("put payload %s: %w", key, err)
	}

	sidecar, err := blobstore.EncodeMeta(meta)
	if err == nil {
		_, err = s.api.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(blobstore.SidecarKey(key)),
			Body:          bytes.NewReader(sidecar),
			ContentLength: aws.Int64(int64(len(sidecar))),
			ContentType:   aws.String("application/json"),
		})
	}
	if err != nil {
		if rmErr := s.deleteOne(ctx, key); rmErr != nil {
			err = errors.Join(err, rmErr)
		}
		return fmt.Errorf("put sidecar %s: %w", key, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (*blobstore.Object, error) {
	side, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(blobstore.SidecarKey(key)),
	})
	if err != nil {
		return nil, mapErr(key, err)
	}
	raw, err := io.ReadAll(side.Body)
	_ = side.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read sidecar %s: %w", key, err)
	}
	meta, err := blobstore.DecodeMeta(raw)
	if err != nil {
		return nil, err
	}

	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, mapErr(key, err)
	}
	return &blobstore.Object{Body: out.Body, Size: aws.ToInt64(out.ContentLength), Meta: meta}, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return errors.Join(s.deleteOne(ctx, key), s.deleteOne(ctx, blobstore.SidecarKey(key)))
}

func (s *Store) deleteOne(ctx context.Context, key string) error {
	_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func mapErr(key string, err error) error {
	if isNotFound(err) {
		return blobstore.ErrNotFound
	}
	return fmt.Errorf("get object %s: %w", key, err)
}

func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noKey) || errors.As(err, &notFound)
}
