package order

import "time"

// Placed is a completed order together with where it came from.
type Placed struct {
	Order
	ChatID    int64
	UserID    int64
	UpdateID  int
	Delivered bool
	PlacedAt  time.Time
}
