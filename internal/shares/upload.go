package shares

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/TobyX424242/ZeroShare/internal/blobstore"
	"github.com/TobyX424242/ZeroShare/internal/password"
	"github.com/TobyX424242/ZeroShare/internal/share"
)

// DefaultContentType is recorded when the uploader gives no hint.
const DefaultContentType = "application/octet-stream"

// UploadRequest is one inbound share. Size must be the exact length of Body.
type UploadRequest struct {
	Body              io.Reader
	Size              int64
	ContentType       string
	EncryptedMetadata string
	Access            share.AccessRequest
}

// UploadResult identifies the new share.
type UploadResult struct {
	ShareID   string
	ExpiresAt time.Time
}

// Upload validates req, stores the ciphertext and then the record.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (UploadResult, error) {
	res, err := s.upload(ctx, req)
	switch {
	case err == nil:
		s.metrics.Upload("ok", req.Size)
	case share.IsValidation(err):
		s.metrics.Upload("invalid", 0)
	default:
		s.metrics.Upload("error", 0)
	}
	return res, err
}

func (s *Service) upload(ctx context.Context, req UploadRequest) (UploadResult, error) {
	if req.Body == nil || req.Size <= 0 {
		return UploadResult{}, &share.ValidationError{Field: "encryptedData", Message: "Missing required fields"}
	}
	if err := s.limits.CheckMetadata(req.EncryptedMetadata); err != nil {
		return UploadResult{}, err
	}
	policy, err := s.limits.Normalize(req.Access)
	if err != nil {
		return UploadResult{}, err
	}

	var digest *password.Digest
	if policy.Password != "" {
		if digest, err = s.hasher.Hash(policy.Password); err != nil {
			return UploadResult{}, fmt.Errorf("hash password: %w", err)
		}
	}
	id, err := share.NewID()
	if err != nil {
		return UploadResult{}, err
	}
	contentType := req.ContentType
	if contentType == "" {
		contentType = DefaultContentType
	}

	now := s.now().UTC()
	expiresAt := now.Add(policy.TTL)
	blobKey := share.BlobKeyFor(id)
	err = s.blobs.Put(ctx, blobKey, req.Body, req.Size, blobstore.Meta{
		ContentType:       contentType,
		EncryptedMetadata: req.EncryptedMetadata,
		CreatedAt:         now,
		ExpiresAt:         expiresAt,
	})
	if err != nil {
		return UploadResult{}, fmt.Errorf("store blob: %w", err)
	}

	rec := &share.Record{
		ID:            id,
		Password:      digest,
		ExpiresAt:     expiresAt,
		BlobKey:       blobKey,
		MaxViews:      policy.MaxViews,
		BurnAfterRead: policy.BurnAfterRead,
		CreatedAt:     now,
	}
	if err := s.meta.Put(ctx, rec, policy.TTL); err != nil {
		s.reportOrphan(ctx, blobKey, "upload", err)
		return UploadResult{}, fmt.Errorf("store record: %w", err)
	}

	s.log.Infow("share created",
		"share_id", id,
		"size", req.Size,
		"expires_at", expiresAt,
		"max_views", policy.MaxViews,
		"burn_after_read", policy.BurnAfterRead,
		"password", digest != nil,
	)
	return UploadResult{ShareID: id, ExpiresAt: expiresAt}, nil
}
