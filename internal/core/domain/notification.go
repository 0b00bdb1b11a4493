package domain

import "time"

// Notification is a low-stock alert for one bin. At most one unresolved
// notification exists per bin at any time.
type Notification struct {
	ID         string
	StationID  string
	BinID      string
	Message    string
	CreatedAt  time.Time
	Resolved   bool
	ResolvedAt *time.Time
	ResolvedBy string
}
