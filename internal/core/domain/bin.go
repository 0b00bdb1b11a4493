package domain

import "time"

// Bin holds the stock of one part type at one station. Exactly one bin
// exists per (station, part) pair; the full cross product is created at
// provisioning time. Quantity is mutated only by the inventory ledger.
type Bin struct {
	ID            string
	StationID     string
	PartID        string
	Quantity      int // never negative
	ReplenishedAt time.Time
}
