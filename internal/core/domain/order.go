package domain

import "time"

type OrderStatus string

const (
	OrderStatusOpen   OrderStatus = "OPEN"
	OrderStatusClosed OrderStatus = "CLOSED"
)

// Order tracks production against a customer target. Completed and
// InProcess are mutated only by the assembly orchestrator.
type Order struct {
	ID        string
	Amount    int
	Completed int
	InProcess int
	Status    OrderStatus
	CreatedAt time.Time
}

// Fulfilled reports whether enough units are completed or underway to cover
// the target. Callers use this to stop admitting new assemblies; the
// orchestrator itself does not gate admission on it.
func (o Order) Fulfilled() bool {
	return o.Completed+o.InProcess >= o.Amount
}
