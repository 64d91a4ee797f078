// Package sweeper reaps shares whose expiry passed without a fetch visiting
// them. It is driven by an external schedule: the asynq scheduler in
// cmd/worker, the signed HTTP trigger, or the CLI.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/TobyX424242/ZeroShare/internal/blobstore"
	"github.com/TobyX424242/ZeroShare/internal/metastore"
	"github.com/TobyX424242/ZeroShare/internal/metrics"
)

// Result summarizes one sweep.
type Result struct {
	Scanned int `json:"scanned"`
	Deleted int `json:"deleted"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Sweeper walks the metadata store page by page.
type Sweeper struct {
	meta     metastore.Store
	blobs    blobstore.Store
	pageSize int
	metrics  *metrics.Metrics
	log      *zap.SugaredLogger
	now      func() time.Time
}

// Option configures a Sweeper.
type Option func(*Sweeper)

func WithPageSize(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option { return func(s *Sweeper) { s.metrics = m } }

func WithLogger(l *zap.SugaredLogger) Option { return func(s *Sweeper) { s.log = l } }

func WithClock(now func() time.Time) Option { return func(s *Sweeper) { s.now = now } }

// New constructs a Sweeper.
func New(meta metastore.Store, blobs blobstore.Store, opts ...Option) *Sweeper {
	s := &Sweeper{
		meta:     meta,
		blobs:    blobs,
		pageSize: metastore.DefaultPageSize,
		log:      zap.NewNop().Sugar(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run scans every record once. For each expired record it deletes the blob
// and then the record. A record whose blob delete failed is kept so the next
// run retries it. Undecodable records and individual failures are logged
// and skipped. Stores that keep an expiry index are then walked for records
// that vanished at expiry but still own a blob. Only listing errors and
// cancellation abort the run.
func (s *Sweeper) Run(ctx context.Context) (Result, error) {
	var res Result
	started := s.now()
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		page, err := s.meta.List(ctx, cursor, s.pageSize)
		if err != nil {
			return res, fmt.Errorf("list shares: %w", err)
		}
		for _, e := range page.Entries {
			res.Scanned++
			s.visit(ctx, e, &res)
		}
		if page.Next == "" {
			break
		}
		cursor = page.Next
	}
	if idx, ok := s.meta.(metastore.LapsedIndex); ok {
		if err := s.reapLapsed(ctx, idx, started, &res); err != nil {
			return res, err
		}
	}
	s.log.Infow("sweep finished",
		"scanned", res.Scanned,
		"deleted", res.Deleted,
		"skipped", res.Skipped,
		"failed", res.Failed,
		"took", time.Since(started),
	)
	return res, nil
}

// reapLapsed walks the store's expiry index. Entries that were reaped leave
// the index, so only the ones kept behind count towards the next offset.
func (s *Sweeper) reapLapsed(ctx context.Context, idx metastore.LapsedIndex, now time.Time, res *Result) error {
	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		entries, err := idx.Lapsed(ctx, now, offset, s.pageSize)
		if err != nil {
			return fmt.Errorf("list lapsed shares: %w", err)
		}
		for _, e := range entries {
			res.Scanned++
			deleted := res.Deleted
			s.visit(ctx, e, res)
			if res.Deleted == deleted {
				offset++
			}
		}
		if len(entries) < s.pageSize {
			return nil
		}
	}
}

func (s *Sweeper) visit(ctx context.Context, e metastore.Entry, res *Result) {
	if e.Err != nil {
		res.Skipped++
		s.metrics.SweepRecord("corrupt")
		s.log.Warnw("skipping undecodable record", "share_id", e.ID, "error", e.Err)
		return
	}
	rec := e.Record
	if !s.now().After(rec.ExpiresAt) {
		s.metrics.SweepRecord("kept")
		return
	}
	if err := s.blobs.Delete(ctx, rec.BlobKey); err != nil {
		res.Failed++
		s.metrics.SweepRecord("failed")
		s.log.Errorw("delete expired blob", "share_id", rec.ID, "blob_key", rec.BlobKey, "error", err)
		return
	}
	if err := s.meta.Delete(ctx, rec.ID); err != nil {
		res.Failed++
		s.metrics.SweepRecord("failed")
		s.log.Errorw("delete expired record", "share_id", rec.ID, "error", err)
		return
	}
	res.Deleted++
	s.metrics.SweepRecord("deleted")
	s.log.Debugw("reaped expired share", "share_id", rec.ID)
}
