package repository

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/choosewine/choosewine-api/internal/domain"
)

// UsersRepository persists user accounts.
type UsersRepository struct {
	pool *pgxpool.Pool
}

const userColumns = `
    id::text,
    email,
    name,
    password_hash,
    provider,
    role,
    photo,
    created_at
`

// UserParams holds the fields required to register a user.
type UserParams struct {
	Email        string
	Name         string
	PasswordHash string
	Role         string
	Photo        *string
}

// Create inserts a user. Emails are stored lowercased; a duplicate email
// yields domain.ErrConflict.
func (r *UsersRepository) Create(ctx context.Context, params UserParams) (domain.User, error) {
	role := params.Role
	if role == "" {
		role = domain.RoleUser
	}
	row := r.pool.QueryRow(ctx, `
        INSERT INTO users (id, email, name, password_hash, provider, role, photo)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING `+userColumns,
		uuid.NewString(), normalizeEmail(params.Email), params.Name, params.PasswordHash,
		domain.ProviderLocal, role, params.Photo)

	user, err := scanUser(row)
	if err != nil {
		if isPgError(err, pgUniqueViolation) {
			return domain.User{}, domain.ErrConflict
		}
		return domain.User{}, err
	}
	return user, nil
}

// GetByEmail looks a user up by email, case-insensitively.
func (r *UsersRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	email = normalizeEmail(email)
	user, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err != nil {
		return domain.User{}, notFound(err, "user", email)
	}
	return user, nil
}

// GetByID fetches a user by identifier.
func (r *UsersRepository) GetByID(ctx context.Context, id string) (domain.User, error) {
	if !validID(id) {
		return domain.User{}, domain.NewNotFoundError("user", id)
	}
	user, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return domain.User{}, notFound(err, "user", id)
	}
	return user, nil
}

// UpdateName changes the display name of a user.
func (r *UsersRepository) UpdateName(ctx context.Context, id, name string) (domain.User, error) {
	if !validID(id) {
		return domain.User{}, domain.NewNotFoundError("user", id)
	}
	user, err := scanUser(r.pool.QueryRow(ctx, `
        UPDATE users SET name = $2
        WHERE id = $1
        RETURNING `+userColumns, id, name))
	if err != nil {
		return domain.User{}, notFound(err, "user", id)
	}
	return user, nil
}

// SetRole changes the role of a user.
func (r *UsersRepository) SetRole(ctx context.Context, id, role string) (domain.User, error) {
	if !validID(id) {
		return domain.User{}, domain.NewNotFoundError("user", id)
	}
	user, err := scanUser(r.pool.QueryRow(ctx, `
        UPDATE users SET role = $2
        WHERE id = $1
        RETURNING `+userColumns, id, role))
	if err != nil {
		return domain.User{}, notFound(err, "user", id)
	}
	return user, nil
}

// Exists reports whether a user with id is registered.
func (r *UsersRepository) Exists(ctx context.Context, id string) (bool, error) {
	return userExists(ctx, r.pool, id)
}

func userExists(ctx context.Context, db dbtx, id string) (bool, error) {
	if !validID(id) {
		return false, nil
	}
	var exists bool
	err := db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&u.PasswordHash,
		&u.Provider,
		&u.Role,
		&u.Photo,
		&u.CreatedAt,
	)
	return u, err
}
