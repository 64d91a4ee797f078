package shares

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/TobyX424242/ZeroShare/internal/blobstore"
	"github.com/TobyX424242/ZeroShare/internal/metastore"
	"github.com/TobyX424242/ZeroShare/internal/share"
)

// Status is the result of a check probe.
type Status struct {
	Exists           bool
	PasswordRequired bool
	ExpiresAt        time.Time
	ViewsRemaining   int
}

// Check reports whether a share can still be fetched. It never mutates
// state; expired and exhausted shares read as absent.
func (s *Service) Check(ctx context.Context, rawID string) (Status, error) {
	id, err := share.NormalizeID(rawID)
	if err != nil {
		s.metrics.Check("invalid")
		return Status{}, err
	}
	rec, err := s.meta.Get(ctx, id)
	if errors.Is(err, metastore.ErrNotFound) {
		s.metrics.Check("missing")
		return Status{}, nil
	}
	if err != nil {
		s.metrics.Check("error")
		return Status{}, fmt.Errorf("load share %s: %w", id, err)
	}
	if rec.State(s.now()) != share.StateActive {
		s.metrics.Check("missing")
		return Status{}, nil
	}
	s.metrics.Check("found")
	return Status{
		Exists:           true,
		PasswordRequired: rec.PasswordRequired(),
		ExpiresAt:        rec.ExpiresAt,
		ViewsRemaining:   rec.ViewsRemaining(),
	}, nil
}

// Fetch runs the gated download pipeline. An empty password means none was
// supplied. On success the caller must Close the Delivery; closing the final
// view deletes the blob.
func (s *Service) Fetch(ctx context.Context, rawID, pass string) (*Delivery, error) {
	d, err := s.fetch(ctx, rawID, pass)
	s.metrics.Fetch(fetchOutcome(d, err))
	return d, err
}

func (s *Service) fetch(ctx context.Context, rawID, pass string) (*Delivery, error) {
	id, err := share.NormalizeID(rawID)
	if err != nil {
		return nil, err
	}
	rec, err := s.meta.Get(ctx, id)
	if errors.Is(err, metastore.ErrNotFound) {
		return nil, share.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load share %s: %w", id, err)
	}

	now := s.now()
	if rec.Expired(now) {
		s.finalize(ctx, rec, "expired")
		return nil, share.ErrExpired
	}
	if rec.PasswordRequired() {
		if pass == "" {
			return nil, share.ErrPasswordRequired
		}
		if !rec.Password.Verify(pass) {
			return nil, share.ErrInvalidPassword
		}
	}
	if rec.Exhausted() {
		s.finalize(ctx, rec, "exhausted")
		return nil, share.ErrViewLimitExceeded
	}

	obj, err := s.blobs.Get(ctx, rec.BlobKey)
	if errors.Is(err, blobstore.ErrNotFound) {
		s.log.Warnw("record without blob, removing record", "share_id", id, "blob_key", rec.BlobKey)
		if err := s.meta.Delete(ctx, id); err != nil {
			s.log.Errorw("remove orphaned record", "share_id", id, "error", err)
		}
		return nil, share.ErrStorageInconsistency
	}
	if err != nil {
		return nil, fmt.Errorf("load blob %s: %w", rec.BlobKey, err)
	}

	consumed, final, err := s.meta.ConsumeView(ctx, id, now)
	if err != nil {
		_ = obj.Body.Close()
		return nil, s.lostRace(ctx, id, consumed, err)
	}

	s.log.Infow("share viewed",
		"share_id", id,
		"views", consumed.CurrentViews,
		"max_views", consumed.MaxViews,
		"final", final,
	)
	return &Delivery{
		ShareID:           id,
		Size:              obj.Size,
		ContentType:       obj.Meta.ContentType,
		EncryptedMetadata: obj.Meta.EncryptedMetadata,
		Final:             final,
		ViewsRemaining:    consumed.ViewsRemaining(),
		body:              obj.Body,
		blobKey:           consumed.BlobKey,
		svc:               s,
		ctx:               ctx,
	}, nil
}

// lostRace maps a ConsumeView failure. Between the read and the atomic
// consume another caller may have finalized the share or used the last view.
func (s *Service) lostRace(ctx context.Context, id string, rec *share.Record, err error) error {
	switch {
	case errors.Is(err, metastore.ErrNotFound):
		return share.ErrNotFound
	case errors.Is(err, share.ErrExpired):
		if rec != nil {
			s.finalize(ctx, rec, "expired")
		}
		return share.ErrExpired
	case errors.Is(err, share.ErrViewLimitExceeded):
		if rec != nil {
			s.finalize(ctx, rec, "exhausted")
		}
		return share.ErrViewLimitExceeded
	default:
		return fmt.Errorf("consume view %s: %w", id, err)
	}
}

// finalize deletes a terminal share's blob and record concurrently. A blob
// delete failure never stops the record delete; the blob goes to the orphan
// reporter instead.
func (s *Service) finalize(ctx context.Context, rec *share.Record, reason string) {
	ctx, cancel := detached(ctx)
	defer cancel()

	var g errgroup.Group
	g.Go(func() error {
		if err := s.blobs.Delete(ctx, rec.BlobKey); err != nil {
			s.reportOrphan(ctx, rec.BlobKey, "finalize", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := s.meta.Delete(ctx, rec.ID); err != nil {
			return fmt.Errorf("delete record: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		// The store TTL still removes the record at expiresAt.
		s.log.Errorw("finalize share", "share_id", rec.ID, "reason", reason, "error", err)
		return
	}
	s.log.Infow("share finalized", "share_id", rec.ID, "reason", reason)
}

// Delivery streams one authorized view. It is an io.ReadCloser over the
// ciphertext.
type Delivery struct {
	ShareID           string
	Size              int64
	ContentType       string
	EncryptedMetadata string
	// Final is set when this view was the last one; the record is already
	// deleted and Close deletes the blob.
	Final          bool
	ViewsRemaining int

	body      io.ReadCloser
	blobKey   string
	svc       *Service
	ctx       context.Context
	closeOnce sync.Once
	closeErr  error
}

func (d *Delivery) Read(p []byte) (int, error) {
	return d.body.Read(p)
}

// Close releases the blob stream and, for the final view, deletes the blob
// with a context detached from the request.
func (d *Delivery) Close() error {
	d.closeOnce.Do(func() {
		d.closeErr = d.body.Close()
		if !d.Final {
			return
		}
		ctx, cancel := detached(d.ctx)
		defer cancel()
		if err := d.svc.blobs.Delete(ctx, d.blobKey); err != nil {
			d.svc.reportOrphan(ctx, d.blobKey, "final_view", err)
			return
		}
		d.svc.log.Infow("share finalized", "share_id", d.ShareID, "reason", "final_view")
	})
	return d.closeErr
}

func fetchOutcome(d *Delivery, err error) string {
	switch {
	case err == nil && d.Final:
		return "ok_final"
	case err == nil:
		return "ok"
	case errors.Is(err, share.ErrInvalidID):
		return "invalid_id"
	case errors.Is(err, share.ErrNotFound):
		return "not_found"
	case errors.Is(err, share.ErrExpired):
		return "expired"
	case errors.Is(err, share.ErrPasswordRequired):
		return "password_required"
	case errors.Is(err, share.ErrInvalidPassword):
		return "invalid_password"
	case errors.Is(err, share.ErrViewLimitExceeded):
		return "view_limit_exceeded"
	case errors.Is(err, share.ErrStorageInconsistency):
		return "inconsistent"
	default:
		return "error"
	}
}
