package domain

import "time"

type AssemblyStatus string

const (
	AssemblyStatusInProgress AssemblyStatus = "IN_PROGRESS"
	AssemblyStatusCompleted  AssemblyStatus = "COMPLETED"
	AssemblyStatusFailed     AssemblyStatus = "FAILED"
)

// Assembly is one unit of production. Created by StartAssembly, finalized
// by CompleteAssembly, never deleted. Defective units keep the parts they
// consumed (scrap loss).
type Assembly struct {
	ID        string
	StationID string
	WorkerID  string
	OrderID   string // may be empty
	StartedAt time.Time
	EndedAt   *time.Time
	Status    AssemblyStatus
	Defective bool
}
