package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/choosewine/choosewine-api/internal/domain"
)

// HistoryRepository records which wines a user has opened.
type HistoryRepository struct {
	pool *pgxpool.Pool
}

// Record appends an access of wineID by userID.
func (r *HistoryRepository) Record(ctx context.Context, userID, wineID string) (domain.HistoryEntry, error) {
	if !validID(userID) {
		return domain.HistoryEntry{}, domain.NewNotFoundError("user", userID)
	}
	if !validID(wineID) {
		return domain.HistoryEntry{}, domain.NewNotFoundError("wine", wineID)
	}
	var h domain.HistoryEntry
	err := r.pool.QueryRow(ctx, `
        INSERT INTO history (id, user_id, wine_id)
        VALUES ($1,$2,$3)
        RETURNING id::text, user_id::text, wine_id::text, accessed_at
    `, uuid.NewString(), userID, wineID).Scan(&h.ID, &h.UserID, &h.WineID, &h.AccessedAt)
	if err != nil {
		if isPgError(err, pgForeignKeyViolation) {
			return domain.HistoryEntry{}, domain.NewNotFoundError("wine", wineID)
		}
		return domain.HistoryEntry{}, err
	}
	return h, nil
}

// ListByUser returns up to limit history entries, most recent first.
// A non-positive limit returns everything.
func (r *HistoryRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.HistoryEntry, error) {
	results := make([]domain.HistoryEntry, 0)
	if !validID(userID) {
		return results, nil
	}

	query := `
        SELECT id::text, user_id::text, wine_id::text, accessed_at
        FROM history
        WHERE user_id = $1
        ORDER BY accessed_at DESC, id DESC
    `
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var h domain.HistoryEntry
		if err := rows.Scan(&h.ID, &h.UserID, &h.WineID, &h.AccessedAt); err != nil {
			return nil, err
		}
		results = append(results, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
