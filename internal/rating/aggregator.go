package rating

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/choosewine/choosewine-api/internal/domain"
	"github.com/choosewine/choosewine-api/internal/logger"
	"github.com/choosewine/choosewine-api/internal/metrics"
)

// Tx is the unit of work the aggregator runs while it holds a wine's lock.
// Lookups of missing entities return an error wrapping domain.ErrNotFound.
type Tx interface {
	UserExists(ctx context.Context, userID string) (bool, error)
	InsertRating(ctx context.Context, r domain.Rating) (domain.Rating, error)
	GetRating(ctx context.Context, ratingID string) (domain.Rating, error)
	UpdateRating(ctx context.Context, ratingID string, value float64, comment *string) (domain.Rating, error)
	DeleteRating(ctx context.Context, ratingID string) (domain.Rating, error)
	FindRatingsByWine(ctx context.Context, wineID string) ([]domain.Rating, error)
	UpdateWineAggregate(ctx context.Context, wineID string, agg domain.RatingAggregate) error
}

// Store provides per-wine exclusive access. WithWineLock must run fn with
// every other WithWineLock call for the same wine excluded until fn returns,
// and must commit fn's writes atomically. A missing wine yields an error
// wrapping domain.ErrNotFound without calling fn.
type Store interface {
	WithWineLock(ctx context.Context, wineID string, fn func(Tx) error) error
	GetRating(ctx context.Context, ratingID string) (domain.Rating, error)
}

// Aggregator keeps each wine's (count, average) pair consistent with its
// ratings. Every rating mutation and the recompute that follows it happen
// under the wine's lock, so concurrent writers to one wine serialize.
type Aggregator struct {
	store  Store
	logger *zap.Logger
}

// NewAggregator constructs an Aggregator over store.
func NewAggregator(store Store, log *zap.Logger) *Aggregator {
	return &Aggregator{store: store, logger: logger.OrNop(log)}
}

// CreateParams carries a new rating submitted by UserID for WineID.
type CreateParams struct {
	UserID  string
	WineID  string
	Value   float64
	Comment *string
}

// Recompute rebuilds the aggregate of wineID from its full rating set.
func (a *Aggregator) Recompute(ctx context.Context, wineID string) (domain.RatingAggregate, error) {
	var agg domain.RatingAggregate
	err := a.store.WithWineLock(ctx, wineID, func(tx Tx) error {
		var err error
		agg, err = recompute(ctx, tx, wineID)
		return err
	})
	metrics.RecordRecompute("manual", err)
	if err != nil {
		return domain.RatingAggregate{}, err
	}
	return agg, nil
}

// OnRatingCreated validates and persists a rating, then recomputes its wine.
func (a *Aggregator) OnRatingCreated(ctx context.Context, params CreateParams) (domain.Rating, error) {
	if err := ValidateValue(params.Value); err != nil {
		return domain.Rating{}, err
	}
	if strings.TrimSpace(params.WineID) == "" {
		return domain.Rating{}, domain.NewValidationError("wineId", "is required")
	}
	if strings.TrimSpace(params.UserID) == "" {
		return domain.Rating{}, domain.NewValidationError("user", "is required")
	}

	var created domain.Rating
	err := a.store.WithWineLock(ctx, params.WineID, func(tx Tx) error {
		ok, err := tx.UserExists(ctx, params.UserID)
		if err != nil {
			return fmt.Errorf("check user: %w", err)
		}
		if !ok {
			return domain.NewNotFoundError("user", params.UserID)
		}

		created, err = tx.InsertRating(ctx, domain.Rating{
			UserID:  params.UserID,
			WineID:  params.WineID,
			Value:   params.Value,
			Comment: normalizeComment(params.Comment),
		})
		if err != nil {
			return fmt.Errorf("insert rating: %w", err)
		}
		_, err = recompute(ctx, tx, params.WineID)
		return err
	})
	metrics.RecordRecompute("created", err)
	if err != nil {
		return domain.Rating{}, a.wrapNotFound(err, "wine", params.WineID)
	}

	a.logger.Debug("rating created",
		zap.String("rating_id", created.ID),
		zap.String("wine_id", created.WineID),
		zap.Float64("value", created.Value),
	)
	return created, nil
}

// OnRatingUpdated replaces the value and comment of an existing rating, then
// recomputes its wine.
func (a *Aggregator) OnRatingUpdated(ctx context.Context, ratingID string, value float64, comment *string) (domain.Rating, error) {
	if err := ValidateValue(value); err != nil {
		return domain.Rating{}, err
	}

	existing, err := a.store.GetRating(ctx, ratingID)
	if err != nil {
		return domain.Rating{}, err
	}

	var updated domain.Rating
	err = a.store.WithWineLock(ctx, existing.WineID, func(tx Tx) error {
		var err error
		updated, err = tx.UpdateRating(ctx, ratingID, value, normalizeComment(comment))
		if err != nil {
			return err
		}
		_, err = recompute(ctx, tx, existing.WineID)
		return err
	})
	metrics.RecordRecompute("updated", err)
	if err != nil {
		return domain.Rating{}, a.wrapNotFound(err, "rating", ratingID)
	}
	return updated, nil
}

// OnRatingDeleted removes a rating and recomputes the wine it belonged to.
// The wine ID is captured before the delete.
func (a *Aggregator) OnRatingDeleted(ctx context.Context, ratingID string) (domain.Rating, error) {
	existing, err := a.store.GetRating(ctx, ratingID)
	if err != nil {
		return domain.Rating{}, err
	}
	wineID := existing.WineID

	var deleted domain.Rating
	err = a.store.WithWineLock(ctx, wineID, func(tx Tx) error {
		var err error
		deleted, err = tx.DeleteRating(ctx, ratingID)
		if err != nil {
			return err
		}
		_, err = recompute(ctx, tx, wineID)
		return err
	})
	metrics.RecordRecompute("deleted", err)
	if err != nil {
		return domain.Rating{}, a.wrapNotFound(err, "rating", ratingID)
	}
	return deleted, nil
}

func recompute(ctx context.Context, tx Tx, wineID string) (domain.RatingAggregate, error) {
	ratings, err := tx.FindRatingsByWine(ctx, wineID)
	if err != nil {
		return domain.RatingAggregate{}, fmt.Errorf("load ratings: %w", err)
	}
	agg := Aggregate(values(ratings))
	if err := tx.UpdateWineAggregate(ctx, wineID, agg); err != nil {
		return domain.RatingAggregate{}, fmt.Errorf("update wine aggregate: %w", err)
	}
	return agg, nil
}

// wrapNotFound gives bare not-found errors from the store an entity name.
func (a *Aggregator) wrapNotFound(err error, entity, id string) error {
	var nf *domain.NotFoundError
	if errors.As(err, &nf) {
		return err
	}
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NewNotFoundError(entity, id)
	}
	return err
}

func normalizeComment(comment *string) *string {
	if comment == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*comment)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
