package provision

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/hosting-billing/internal/cache"
	"github.com/edvin/hosting-billing/internal/model"
	"github.com/edvin/hosting-billing/internal/queue"
)

// DefaultStatusTTL is how long a status read is served from cache.
const DefaultStatusTTL = 30 * time.Second

// StatusCacheKey is the cache key under which a resource's status is stored.
func StatusCacheKey(externalID string) string {
	return "resources:" + externalID
}

// Service routes provisioning calls through the request queue and caches
// status reads.
type Service struct {
	backend   Backend
	queue     *queue.Queue
	cache     *cache.Cache
	statusTTL time.Duration
	logger    zerolog.Logger
}

func NewService(backend Backend, q *queue.Queue, c *cache.Cache, logger zerolog.Logger) *Service {
	return &Service{
		backend:   backend,
		queue:     q,
		cache:     c,
		statusTTL: DefaultStatusTTL,
		logger:    logger.With().Str("component", "provision").Logger(),
	}
}

// Suspend asks the backend to stop the resource.
func (s *Service) Suspend(ctx context.Context, externalID string) error {
	defer s.invalidate(ctx, externalID)
	return s.queue.Do(ctx, EndpointSuspend, func(ctx context.Context) error {
		return s.backend.Suspend(ctx, externalID)
	})
}

// Unsuspend asks the backend to start the resource again.
func (s *Service) Unsuspend(ctx context.Context, externalID string) error {
	defer s.invalidate(ctx, externalID)
	return s.queue.Do(ctx, EndpointUnsuspend, func(ctx context.Context) error {
		return s.backend.Unsuspend(ctx, externalID)
	})
}

// Status returns the backend's view of the resource, served from cache for
// up to DefaultStatusTTL and from a stale entry when the backend is failing.
func (s *Service) Status(ctx context.Context, externalID string) (model.ResourceStatus, error) {
	return cache.GetOrFetch(ctx, s.cache, StatusCacheKey(externalID), s.statusTTL,
		func(ctx context.Context) (model.ResourceStatus, error) {
			return queue.Execute(ctx, s.queue, EndpointStatus, func(ctx context.Context) (model.ResourceStatus, error) {
				return s.backend.Status(ctx, externalID)
			})
		})
}

func (s *Service) invalidate(ctx context.Context, externalID string) {
	if _, err := s.cache.Invalidate(ctx, StatusCacheKey(externalID)+"*"); err != nil {
		s.logger.Warn().Err(err).Str("external_id", externalID).Msg("failed to invalidate cached status")
	}
}
