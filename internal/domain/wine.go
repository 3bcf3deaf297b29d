package domain

import "time"

// Wine represents a catalog entry. RatingCount and AverageRating are derived
// from the wine's ratings and are only ever written by the rating aggregator.
type Wine struct {
	ID            string
	Name          string
	Thumb         *string
	Country       *string
	Region        *string
	Winery        *string
	Type          *string
	Price         float64
	RatingCount   int64
	AverageRating float64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
