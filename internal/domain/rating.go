package domain

import "time"

// Rating bounds, inclusive.
const (
	MinRatingValue = 0.0
	MaxRatingValue = 5.0
)

// Rating represents a single user's evaluation of a wine.
type Rating struct {
	ID        string
	UserID    string
	WineID    string
	Value     float64
	Comment   *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RatingAggregate provides average and count for a wine's ratings.
type RatingAggregate struct {
	Average float64
	Count   int64
}
