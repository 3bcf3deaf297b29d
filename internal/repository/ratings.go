package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/choosewine/choosewine-api/internal/domain"
	"github.com/choosewine/choosewine-api/internal/rating"
	"github.com/choosewine/choosewine-api/internal/store"
)

// RatingsRepository provides helpers for wine ratings. It implements
// rating.Store: WithWineLock holds the wine's row lock (SELECT ... FOR UPDATE)
// across the rating write and the aggregate recompute, inside one transaction.
type RatingsRepository struct {
	pool *pgxpool.Pool
}

var _ rating.Store = (*RatingsRepository)(nil)

const ratingColumns = `
    id::text,
    user_id::text,
    wine_id::text,
    rating,
    comment,
    created_at,
    updated_at
`

// WithWineLock runs fn in a transaction holding an exclusive lock on the wine.
func (r *RatingsRepository) WithWineLock(ctx context.Context, wineID string, fn func(rating.Tx) error) error {
	if !validID(wineID) {
		return domain.NewNotFoundError("wine", wineID)
	}
	return store.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockWine(ctx, tx, wineID); err != nil {
			return err
		}
		return fn(&ratingTx{tx: tx})
	})
}

// GetRating retrieves a rating by id.
func (r *RatingsRepository) GetRating(ctx context.Context, ratingID string) (domain.Rating, error) {
	return getRating(ctx, r.pool, ratingID)
}

// ListByWine returns all ratings for a wine, oldest first.
func (r *RatingsRepository) ListByWine(ctx context.Context, wineID string) ([]domain.Rating, error) {
	if !validID(wineID) {
		return []domain.Rating{}, nil
	}
	return findRatingsByWine(ctx, r.pool, wineID)
}

// ListByUser returns all ratings submitted by a user, newest first.
func (r *RatingsRepository) ListByUser(ctx context.Context, userID string) ([]domain.Rating, error) {
	if !validID(userID) {
		return []domain.Rating{}, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+ratingColumns+` FROM ratings WHERE user_id = $1 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRatings(rows)
}

// ratingTx implements rating.Tx on top of an open transaction.
type ratingTx struct {
	tx pgx.Tx
}

func (t *ratingTx) UserExists(ctx context.Context, userID string) (bool, error) {
	return userExists(ctx, t.tx, userID)
}

func (t *ratingTx) InsertRating(ctx context.Context, in domain.Rating) (domain.Rating, error) {
	row := t.tx.QueryRow(ctx, `
        INSERT INTO ratings (id, user_id, wine_id, rating, comment)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING `+ratingColumns,
		uuid.NewString(), in.UserID, in.WineID, in.Value, in.Comment)
	out, err := scanRating(row)
	if err != nil {
		if isPgError(err, pgForeignKeyViolation) {
			return domain.Rating{}, domain.NewNotFoundError("user", in.UserID)
		}
		return domain.Rating{}, err
	}
	return out, nil
}

func (t *ratingTx) GetRating(ctx context.Context, ratingID string) (domain.Rating, error) {
	return getRating(ctx, t.tx, ratingID)
}

func (t *ratingTx) UpdateRating(ctx context.Context, ratingID string, value float64, comment *string) (domain.Rating, error) {
	if !validID(ratingID) {
		return domain.Rating{}, domain.NewNotFoundError("rating", ratingID)
	}
	row := t.tx.QueryRow(ctx, `
        UPDATE ratings
        SET rating = $2,
            comment = $3,
            updated_at = now()
        WHERE id = $1
        RETURNING `+ratingColumns,
		ratingID, value, comment)
	out, err := scanRating(row)
	if err != nil {
		return domain.Rating{}, notFound(err, "rating", ratingID)
	}
	return out, nil
}

func (t *ratingTx) DeleteRating(ctx context.Context, ratingID string) (domain.Rating, error) {
	if !validID(ratingID) {
		return domain.Rating{}, domain.NewNotFoundError("rating", ratingID)
	}
	row := t.tx.QueryRow(ctx, `DELETE FROM ratings WHERE id = $1 RETURNING `+ratingColumns, ratingID)
	out, err := scanRating(row)
	if err != nil {
		return domain.Rating{}, notFound(err, "rating", ratingID)
	}
	return out, nil
}

func (t *ratingTx) FindRatingsByWine(ctx context.Context, wineID string) ([]domain.Rating, error) {
	return findRatingsByWine(ctx, t.tx, wineID)
}

func (t *ratingTx) UpdateWineAggregate(ctx context.Context, wineID string, agg domain.RatingAggregate) error {
	return updateWineAggregate(ctx, t.tx, wineID, agg)
}

func getRating(ctx context.Context, db dbtx, ratingID string) (domain.Rating, error) {
	if !validID(ratingID) {
		return domain.Rating{}, domain.NewNotFoundError("rating", ratingID)
	}
	out, err := scanRating(db.QueryRow(ctx, `SELECT `+ratingColumns+` FROM ratings WHERE id = $1`, ratingID))
	if err != nil {
		return domain.Rating{}, notFound(err, "rating", ratingID)
	}
	return out, nil
}

func findRatingsByWine(ctx context.Context, db dbtx, wineID string) ([]domain.Rating, error) {
	rows, err := db.Query(ctx, `SELECT `+ratingColumns+` FROM ratings WHERE wine_id = $1 ORDER BY created_at, id`, wineID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRatings(rows)
}

func collectRatings(rows pgx.Rows) ([]domain.Rating, error) {
	results := make([]domain.Rating, 0)
	for rows.Next() {
		r, err := scanRating(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func scanRating(row pgx.Row) (domain.Rating, error) {
	var r domain.Rating
	err := row.Scan(
		&r.ID,
		&r.UserID,
		&r.WineID,
		&r.Value,
		&r.Comment,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	return r, err
}
