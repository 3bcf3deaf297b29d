package domain

import "time"

// Favorite marks a wine as a user's favorite. At most one per (user, wine).
type Favorite struct {
	ID        string
	UserID    string
	WineID    string
	CreatedAt time.Time
}

// HistoryEntry records that a user opened a wine's detail page.
type HistoryEntry struct {
	ID         string
	UserID     string
	WineID     string
	AccessedAt time.Time
}
