package domain

import "time"

// Station is one physical assembly station. Stations are created at
// provisioning time from the configured station count and hold one bin per
// part type.
type Station struct {
	ID        string
	Name      string
	WorkerID  string // assigned worker, may be empty
	UpdatedAt time.Time
}
