package repository

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/choosewine/choosewine-api/internal/domain"
)

// dbtx is the query surface shared by *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// WinesRepository provides persistence helpers for wine entities.
type WinesRepository struct {
	pool *pgxpool.Pool
}

const wineColumns = `
    id::text,
    name,
    thumb,
    country,
    region,
    winery,
    wine_type,
    price,
    rating_count,
    average_rating,
    created_at,
    updated_at
`

// WineParams bundles the descriptive fields of a wine. The rating aggregate is
// deliberately absent: only the rating aggregator writes it.
type WineParams struct {
	Name    string
	Thumb   *string
	Country *string
	Region  *string
	Winery  *string
	Type    *string
	Price   float64
}

// WineListFilters encapsulates search and pagination options.
type WineListFilters struct {
	Query   *string
	Country *string
	Region  *string
	Limit   int
	Cursor  *WineCursor
}

// WineCursor allows stable pagination by created_at/id.
type WineCursor struct {
	CreatedAt time.Time `json:"createdAt"`
	ID        string    `json:"id"`
}

// WineListResult returns the paginated payload.
type WineListResult struct {
	Items      []domain.Wine
	NextCursor *string
}

// Create inserts a new wine row and returns the stored entity.
func (r *WinesRepository) Create(ctx context.Context, params WineParams) (domain.Wine, error) {
	query := fmt.Sprintf(`
        INSERT INTO wines (id, name, thumb, country, region, winery, wine_type, price)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING %s
    `, wineColumns)

	row := r.pool.QueryRow(ctx, query, uuid.NewString(), params.Name, params.Thumb, params.Country,
		params.Region, params.Winery, params.Type, params.Price)
	return scanWine(row)
}

// GetByID fetches a wine by its identifier.
func (r *WinesRepository) GetByID(ctx context.Context, id string) (domain.Wine, error) {
	if !validID(id) {
		return domain.Wine{}, domain.NewNotFoundError("wine", id)
	}
	query := fmt.Sprintf(`SELECT %s FROM wines WHERE id = $1`, wineColumns)
	wine, err := scanWine(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return domain.Wine{}, notFound(err, "wine", id)
	}
	return wine, nil
}

// Update replaces the descriptive fields of a wine.
func (r *WinesRepository) Update(ctx context.Context, id string, params WineParams) (domain.Wine, error) {
	if !validID(id) {
		return domain.Wine{}, domain.NewNotFoundError("wine", id)
	}
	query := fmt.Sprintf(`
        UPDATE wines
        SET name = $2,
            thumb = $3,
            country = $4,
            region = $5,
            winery = $6,
            wine_type = $7,
            price = $8,
            updated_at = now()
        WHERE id = $1
        RETURNING %s
    `, wineColumns)

	row := r.pool.QueryRow(ctx, query, id, params.Name, params.Thumb, params.Country,
		params.Region, params.Winery, params.Type, params.Price)
	wine, err := scanWine(row)
	if err != nil {
		return domain.Wine{}, notFound(err, "wine", id)
	}
	return wine, nil
}

// Delete removes a wine together with its ratings, favorites and history.
func (r *WinesRepository) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return domain.NewNotFoundError("wine", id)
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM wines WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("wine", id)
	}
	return nil
}

// FindByIDs returns the wines whose identifiers are in ids, in no particular
// order, using a single query. Identifiers that are malformed or unknown are
// simply absent from the result.
func (r *WinesRepository) FindByIDs(ctx context.Context, ids []string) ([]domain.Wine, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if validID(id) {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`SELECT %s FROM wines WHERE id = ANY($1::uuid[])`, wineColumns)
	rows, err := r.pool.Query(ctx, query, valid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectWines(rows)
}

// likeEscaper makes user input match literally inside an ILIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// List returns wines that match the provided filters.
func (r *WinesRepository) List(ctx context.Context, filters WineListFilters) (WineListResult, error) {
	if filters.Limit <= 0 {
		filters.Limit = 20
	} else if filters.Limit > 100 {
		filters.Limit = 100
	}

	where := make([]string, 0)
	args := make([]interface{}, 0)
	arg := func(value interface{}) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	if filters.Query != nil && strings.TrimSpace(*filters.Query) != "" {
		q := "%" + likeEscaper.Replace(strings.TrimSpace(*filters.Query)) + "%"
		p1 := arg(q)
		p2 := arg(q)
		where = append(where, fmt.Sprintf(`(name ILIKE %s ESCAPE '\' OR winery ILIKE %s ESCAPE '\')`, p1, p2))
	}
	if filters.Country != nil && strings.TrimSpace(*filters.Country) != "" {
		where = append(where, fmt.Sprintf("LOWER(country) = LOWER(%s)", arg(strings.TrimSpace(*filters.Country))))
	}
	if filters.Region != nil && strings.TrimSpace(*filters.Region) != "" {
		where = append(where, fmt.Sprintf("LOWER(region) = LOWER(%s)", arg(strings.TrimSpace(*filters.Region))))
	}
	if filters.Cursor != nil {
		cursorCreated := arg(filters.Cursor.CreatedAt)
		cursorID := arg(filters.Cursor.ID)
		where = append(where, fmt.Sprintf("(created_at, id) < (%s, %s::uuid)", cursorCreated, cursorID))
	}

	queryBuilder := strings.Builder{}
	queryBuilder.WriteString("SELECT ")
	queryBuilder.WriteString(wineColumns)
	queryBuilder.WriteString(" FROM wines")

	if len(where) > 0 {
		queryBuilder.WriteString(" WHERE ")
		queryBuilder.WriteString(strings.Join(where, " AND "))
	}

	queryBuilder.WriteString(" ORDER BY created_at DESC, id DESC")
	queryBuilder.WriteString(fmt.Sprintf(" LIMIT %d", filters.Limit))

	rows, err := r.pool.Query(ctx, queryBuilder.String(), args...)
	if err != nil {
		return WineListResult{}, err
	}
	defer rows.Close()

	items, err := collectWines(rows)
	if err != nil {
		return WineListResult{}, err
	}
	if items == nil {
		items = make([]domain.Wine, 0)
	}

	var nextCursor *string
	if len(items) == filters.Limit {
		last := items[len(items)-1]
		token, err := encodeCursor(WineCursor{CreatedAt: last.CreatedAt, ID: last.ID})
		if err != nil {
			return WineListResult{}, err
		}
		nextCursor = &token
	}

	return WineListResult{Items: items, NextCursor: nextCursor}, nil
}

// lockWine takes an exclusive row lock on the wine for the rest of tx.
func lockWine(ctx context.Context, tx dbtx, id string) error {
	var locked string
	err := tx.QueryRow(ctx, `SELECT id::text FROM wines WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	return notFound(err, "wine", id)
}

func updateWineAggregate(ctx context.Context, tx dbtx, id string, agg domain.RatingAggregate) error {
	tag, err := tx.Exec(ctx, `
        UPDATE wines
        SET rating_count = $2,
            average_rating = $3,
            updated_at = now()
        WHERE id = $1
    `, id, agg.Count, agg.Average)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("wine", id)
	}
	return nil
}

func collectWines(rows pgx.Rows) ([]domain.Wine, error) {
	var results []domain.Wine
	for rows.Next() {
		wine, err := scanWine(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, wine)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func scanWine(row pgx.Row) (domain.Wine, error) {
	var wine domain.Wine
	err := row.Scan(
		&wine.ID,
		&wine.Name,
		&wine.Thumb,
		&wine.Country,
		&wine.Region,
		&wine.Winery,
		&wine.Type,
		&wine.Price,
		&wine.RatingCount,
		&wine.AverageRating,
		&wine.CreatedAt,
		&wine.UpdatedAt,
	)
	if err != nil {
		return domain.Wine{}, err
	}
	return wine, nil
}

func encodeCursor(c WineCursor) (string, error) {
	payload, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(payload), nil
}

// DecodeCursor parses a cursor token into a WineCursor.
func DecodeCursor(token string) (*WineCursor, error) {
	if token == "" {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor: %w", err)
	}
	var cursor WineCursor
	if err := json.Unmarshal(data, &cursor); err != nil {
		return nil, fmt.Errorf("invalid cursor payload: %w", err)
	}
	if !validID(cursor.ID) {
		return nil, fmt.Errorf("invalid cursor id")
	}
	return &cursor, nil
}
