package domain

import "time"

const (
	RoleUser    = "user"
	RoleAdmin   = "admin"
	RoleService = "service"

	ProviderLocal = "local"
)

// User is an account able to rate, favorite and browse wines.
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Provider     string
	Role         string
	Photo        *string
	CreatedAt    time.Time
}
