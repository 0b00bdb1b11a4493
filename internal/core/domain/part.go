package domain

// Part is immutable reference data describing one part type consumed by
// assembly. Name is unique across the cell.
type Part struct {
	ID              string
	Name            string
	DefaultCapacity int // bin top-up amount, positive
}
