// Package shares is the share lifecycle engine. It creates blob and metadata
// pairs on upload and gates every fetch through expiry, password and view
// limit checks. It also finalizes a pair once the share reaches a terminal
// state.
//
// The metadata store and the blob store share no transaction. The engine
// always writes the blob before the record. On teardown it never leaves a
// reachable record behind a deleted blob: the view counter only advances
// through metastore.Store.ConsumeView, which is atomic per share.
package shares

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/TobyX424242/ZeroShare/internal/blobstore"
	"github.com/TobyX424242/ZeroShare/internal/metastore"
	"github.com/TobyX424242/ZeroShare/internal/metrics"
	"github.com/TobyX424242/ZeroShare/internal/password"
	"github.com/TobyX424242/ZeroShare/internal/share"
)

// teardownTimeout bounds deletes that run detached from the request context.
const teardownTimeout = 30 * time.Second

// OrphanReporter receives blob keys whose delete failed after their record
// was already gone, so a retry path can pick them up.
type OrphanReporter interface {
	ReportOrphan(ctx context.Context, blobKey string, cause error)
}

// Service runs uploads, checks and fetches.
type Service struct {
	meta    metastore.Store
	blobs   blobstore.Store
	hasher  *password.Hasher
	limits  share.Limits
	orphans OrphanReporter
	metrics *metrics.Metrics
	log     *zap.SugaredLogger
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

func WithLimits(l share.Limits) Option { return func(s *Service) { s.limits = l } }

func WithHasher(h *password.Hasher) Option { return func(s *Service) { s.hasher = h } }

func WithOrphanReporter(r OrphanReporter) Option { return func(s *Service) { s.orphans = r } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

func WithLogger(l *zap.SugaredLogger) Option { return func(s *Service) { s.log = l } }

// WithClock overrides the clock used for expiry decisions.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// New constructs a Service over the two stores.
func New(meta metastore.Store, blobs blobstore.Store, opts ...Option) *Service {
	s := &Service{
		meta:   meta,
		blobs:  blobs,
		hasher: password.NewHasher(password.DefaultIterations),
		limits: share.DefaultLimits(),
		log:    zap.NewNop().Sugar(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Limits returns the caps the service enforces.
func (s *Service) Limits() share.Limits {
	return s.limits
}

func (s *Service) reportOrphan(ctx context.Context, blobKey, source string, cause error) {
	s.metrics.Orphan(source)
	s.log.Warnw("blob orphaned", "blob_key", blobKey, "source", source, "error", cause)
	if s.orphans != nil {
		s.orphans.ReportOrphan(ctx, blobKey, cause)
	}
}

// detached returns a context that survives the caller hanging up.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
}
