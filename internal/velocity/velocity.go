// Package velocity tracks upload velocity per client for rate limiting.
package velocity

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/fraudscope/internal/cache"
	"github.com/opensource-finance/fraudscope/internal/domain"
)

// DefaultWindow is the counting window for uploads.
const DefaultWindow = time.Minute

// Service counts uploads per client within a fixed window.
type Service struct {
	cache  domain.Cache
	limit  int64
	window time.Duration
}

// NewService creates a new velocity service. A limit of zero or less
// disables limiting.
func NewService(c domain.Cache, limit int, window time.Duration) *Service {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Service{
		cache:  c,
		limit:  int64(limit),
		window: window,
	}
}

// Enabled reports whether the service enforces a limit.
func (s *Service) Enabled() bool {
	return s != nil && s.cache != nil && s.limit > 0
}

// Limit returns the configured uploads per window.
func (s *Service) Limit() int64 {
	return s.limit
}

// Window returns the counting window.
func (s *Service) Window() time.Duration {
	return s.window
}

// GetUploadCount records one upload for client and returns the count in the
// current window.
func (s *Service) GetUploadCount(ctx context.Context, client string) (int64, error) {
	if client == "" {
		return 0, fmt.Errorf("client is required")
	}
	if s.cache == nil {
		return 0, fmt.Errorf("no counter store available")
	}

	count, err := s.cache.IncrementCounter(ctx, cache.RateKey(client), s.window)
	if err != nil {
		return 0, fmt.Errorf("failed to increment upload counter: %w", err)
	}
	return count, nil
}

// Allow records one upload and reports whether it is within the limit.
// When limiting is disabled every upload is allowed.
func (s *Service) Allow(ctx context.Context, client string) (bool, int64, error) {
	if !s.Enabled() {
		return true, 0, nil
	}

	count, err := s.GetUploadCount(ctx, client)
	if err != nil {
		return false, 0, err
	}
	return count <= s.limit, count, nil
}
