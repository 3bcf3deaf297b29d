package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/choosewine/choosewine-api/internal/domain"
)

// FavoritesRepository stores per-user favorite wines.
type FavoritesRepository struct {
	pool *pgxpool.Pool
}

const favoriteColumns = `id::text, user_id::text, wine_id::text, created_at`

// Create marks wineID as a favorite of userID. Favoriting the same wine twice
// yields domain.ErrConflict.
func (r *FavoritesRepository) Create(ctx context.Context, userID, wineID string) (domain.Favorite, error) {
	if !validID(wineID) {
		return domain.Favorite{}, domain.NewNotFoundError("wine", wineID)
	}
	if !validID(userID) {
		return domain.Favorite{}, domain.NewNotFoundError("user", userID)
	}
	row := r.pool.QueryRow(ctx, `
        INSERT INTO favorites (id, user_id, wine_id)
        VALUES ($1,$2,$3)
        RETURNING `+favoriteColumns,
		uuid.NewString(), userID, wineID)

	fav, err := scanFavorite(row)
	switch {
	case err == nil:
		return fav, nil
	case isPgError(err, pgUniqueViolation):
		return domain.Favorite{}, domain.ErrConflict
	case isPgError(err, pgForeignKeyViolation):
		return domain.Favorite{}, domain.NewNotFoundError("wine", wineID)
	default:
		return domain.Favorite{}, err
	}
}

// ListByUser returns the user's favorites, newest first.
func (r *FavoritesRepository) ListByUser(ctx context.Context, userID string) ([]domain.Favorite, error) {
	results := make([]domain.Favorite, 0)
	if !validID(userID) {
		return results, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+favoriteColumns+` FROM favorites WHERE user_id = $1 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		fav, err := scanFavorite(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, fav)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// Delete removes a favorite owned by userID. A favorite that belongs to
// somebody else yields domain.ErrForbidden.
func (r *FavoritesRepository) Delete(ctx context.Context, userID, favoriteID string) error {
	if !validID(favoriteID) {
		return domain.NewNotFoundError("favorite", favoriteID)
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM favorites WHERE id = $1 AND user_id::text = $2`, favoriteID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Nothing deleted: tell a missing favorite apart from a foreign one.
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM favorites WHERE id = $1)`, favoriteID).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return domain.ErrForbidden
	}
	return domain.NewNotFoundError("favorite", favoriteID)
}

func scanFavorite(row pgx.Row) (domain.Favorite, error) {
	var f domain.Favorite
	err := row.Scan(&f.ID, &f.UserID, &f.WineID, &f.CreatedAt)
	return f, err
}
