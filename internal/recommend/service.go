package recommend

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/choosewine/choosewine-api/internal/domain"
	"github.com/choosewine/choosewine-api/internal/logger"
	"github.com/choosewine/choosewine-api/internal/metrics"
)

// WineFinder resolves wine IDs in one batch.
type WineFinder interface {
	FindByIDs(ctx context.Context, ids []string) ([]domain.Wine, error)
}

// Service produces ordered wine recommendations for a user.
type Service struct {
	client Client
	wines  WineFinder
	cache  Cache
	group  singleflight.Group
	logger *zap.Logger

	// gens counts invalidations per user. A fetch started under an older
	// generation must not leave its result in the cache.
	mu   sync.Mutex
	gens map[string]uint64
}

// NewService wires a recommendation service. cache may be nil, in which case
// every request goes to the recommendation service.
func NewService(client Client, wines WineFinder, cache Cache, log *zap.Logger) *Service {
	if cache == nil {
		cache = nopCache{}
	}
	return &Service{
		client: client,
		wines:  wines,
		cache:  cache,
		logger: logger.OrNop(log),
		gens:   make(map[string]uint64),
	}
}

// Recommend returns the wines ranked for userID, best first. IDs that do not
// resolve to a wine are dropped. Failures of the recommendation service
// surface as domain.ErrRecommendationUnavailable.
func (s *Service) Recommend(ctx context.Context, userID string) ([]domain.Wine, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.NewValidationError("userId", "is required")
	}

	ids, err := s.rankedIDs(ctx, userID)
	if err != nil {
		return nil, err
	}

	wines, err := Order(ctx, ids, s.wines.FindByIDs)
	if err != nil {
		return nil, err
	}
	if dropped := len(ids) - len(wines); dropped > 0 {
		metrics.RecordDroppedRecommendations(dropped)
		s.logger.Debug("recommendations dropped unresolved ids",
			zap.String("user_id", userID),
			zap.Int("dropped", dropped),
		)
	}
	return wines, nil
}

// Invalidate forgets the cached ranking of userID, typically after the user
// rated or favorited a wine. A fetch already in flight for userID is detached
// so later callers start a fresh one, and its result is not cached.
func (s *Service) Invalidate(ctx context.Context, userID string) {
	s.mu.Lock()
	s.gens[userID]++
	s.mu.Unlock()
	s.group.Forget(userID)

	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.logger.Warn("recommendation cache invalidate failed", zap.String("user_id", userID), zap.Error(err))
	}
}

// rankedIDs returns the ranked list for userID from the cache or, on a miss,
// from the recommendation service. Concurrent misses for one user share a
// single upstream call.
func (s *Service) rankedIDs(ctx context.Context, userID string) ([]string, error) {
	ids, hit, err := s.cache.Get(ctx, userID)
	if err != nil {
		s.logger.Warn("recommendation cache read failed", zap.String("user_id", userID), zap.Error(err))
	}
	if hit {
		return ids, nil
	}

	gen := s.generation(userID)
	ch := s.group.DoChan(userID, func() (interface{}, error) {
		// Shared by every waiter; only the client timeout may end it.
		callCtx := context.WithoutCancel(ctx)
		ids, err := s.client.RankedWineIDs(callCtx, userID)
		metrics.RecordRecommendationCall(err)
		if err != nil {
			return nil, err
		}
		s.storeRanking(callCtx, userID, gen, ids)
		return ids, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]string), nil
	}
}

func (s *Service) generation(userID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gens[userID]
}

// storeRanking caches ids unless userID was invalidated after the fetch began.
// The generation is checked again after the write: an Invalidate that raced
// with Set may have deleted the key before Set landed.
func (s *Service) storeRanking(ctx context.Context, userID string, gen uint64, ids []string) {
	if s.generation(userID) != gen {
		return
	}
	if err := s.cache.Set(ctx, userID, ids); err != nil {
		s.logger.Warn("recommendation cache write failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	if s.generation(userID) != gen {
		if err := s.cache.Invalidate(ctx, userID); err != nil {
			s.logger.Warn("recommendation cache invalidate failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
}
