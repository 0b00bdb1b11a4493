package port

import (
	"context"
	"errors"

	"github.com/tmachen/shopfloor/internal/core/domain"
)

// ErrNotFound is returned by store lookups for missing records. Services
// translate it into their own error kinds.
var ErrNotFound = errors.New("record not found")

// StoreTx is the write surface of one atomic unit. All reads see writes
// staged earlier in the same unit. Nothing becomes visible to other callers
// until the unit commits.
type StoreTx interface {
	Part(ctx context.Context, id string) (domain.Part, error)
	SavePart(ctx context.Context, part domain.Part) error

	SaveStation(ctx context.Context, station domain.Station) error
	SaveWorker(ctx context.Context, worker domain.Worker) error

	Bin(ctx context.Context, id string) (domain.Bin, error)
	SaveBin(ctx context.Context, bin domain.Bin) error

	Assembly(ctx context.Context, id string) (domain.Assembly, error)
	SaveAssembly(ctx context.Context, assembly domain.Assembly) error

	Order(ctx context.Context, id string) (domain.Order, error)
	SaveOrder(ctx context.Context, order domain.Order) error

	// OpenNotification returns the unresolved notification for a bin, if any.
	OpenNotification(ctx context.Context, binID string) (domain.Notification, bool, error)
	SaveNotification(ctx context.Context, n domain.Notification) error
}

// CellReader is the read-only surface used by status projections and by
// services outside their atomic units.
type CellReader interface {
	Part(ctx context.Context, id string) (domain.Part, error)
	Parts(ctx context.Context) ([]domain.Part, error)

	Station(ctx context.Context, id string) (domain.Station, error)
	Stations(ctx context.Context) ([]domain.Station, error)

	Worker(ctx context.Context, id string) (domain.Worker, error)
	Workers(ctx context.Context) ([]domain.Worker, error)

	Bin(ctx context.Context, id string) (domain.Bin, error)
	Bins(ctx context.Context) ([]domain.Bin, error)
	StationBins(ctx context.Context, stationID string) ([]domain.Bin, error)

	Order(ctx context.Context, id string) (domain.Order, error)

	Assembly(ctx context.Context, id string) (domain.Assembly, error)
	StationAssemblies(ctx context.Context, stationID string) ([]domain.Assembly, error)
	OrderAssemblies(ctx context.Context, orderID string) ([]domain.Assembly, error)

	// OpenNotifications returns unresolved notifications, optionally
	// filtered by bin. binID == "" means all bins.
	OpenNotifications(ctx context.Context, binID string) ([]domain.Notification, error)
}

// CellStore is the engine's storage. Execute runs fn inside one atomic
// unit: commit on nil, discard every staged write on error. Concurrency
// control between conflicting units is the caller's job (the engine
// serializes them with per-record locks).
type CellStore interface {
	CellReader
	Execute(ctx context.Context, fn func(tx StoreTx) error) error
}
