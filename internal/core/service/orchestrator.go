package service

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tmachen/shopfloor/internal/core/domain"
	"github.com/tmachen/shopfloor/internal/port"
)

// AssemblyOrchestrator owns assembly records and order counters. It
// composes the ledger for part reservation and draws defects from an
// injected source at completion time.
//
// Lock classes are acquired in a fixed order: bin locks (via the ledger),
// then assembly locks, then order locks. No operation takes a lower class
// while holding a higher one, so the orderings cannot cycle.
type AssemblyOrchestrator struct {
	store         port.CellStore
	ledger        *InventoryLedger
	settings      Settings
	defects       port.DefectSource
	assemblyLocks *lockTable
	orderLocks    *lockTable
	clock         func() time.Time
	log           *zap.Logger
}

func NewAssemblyOrchestrator(store port.CellStore, ledger *InventoryLedger, settings Settings, defects port.DefectSource, log *zap.Logger) *AssemblyOrchestrator {
	return &AssemblyOrchestrator{
		store:         store,
		ledger:        ledger,
		settings:      settings,
		defects:       defects,
		assemblyLocks: newLockTable(),
		orderLocks:    newLockTable(),
		clock:         time.Now,
		log:           log,
	}
}

// StartAssembly reserves one unit of every part in the station's bundle
// and opens an assembly record, all in one atomic unit. Either every bin
// decreases by exactly one and the record plus order counter exist, or
// nothing changed at all. Admission is not gated against the order target;
// racing starts against completions can overshoot it (see OrderProgress).
func (o *AssemblyOrchestrator) StartAssembly(ctx context.Context, stationID, workerID, orderID string) (string, error) {
	station, err := o.store.Station(ctx, stationID)
	if err != nil {
		return "", notFoundErr(err, "station", stationID)
	}
	worker, err := o.store.Worker(ctx, workerID)
	if err != nil {
		return "", notFoundErr(err, "worker", workerID)
	}
	bins, err := o.store.StationBins(ctx, stationID)
	if err != nil {
		return "", fmt.Errorf("load bins for station %s: %w", stationID, err)
	}
	if len(bins) == 0 {
		return "", fmt.Errorf("station %s has no bins: %w", stationID, ErrInvalidState)
	}

	assemblyID := uuid.NewString()
	err = o.ledger.WithBinLocks(bins, func() error {
		if orderID != "" {
			o.orderLocks.get(orderID).Lock()
			defer o.orderLocks.get(orderID).Unlock()
		}
		return o.store.Execute(ctx, func(tx port.StoreTx) error {
			if err := o.ledger.Reserve(ctx, tx, bins); err != nil {
				return err
			}

			assembly := domain.Assembly{
				ID:        assemblyID,
				StationID: station.ID,
				WorkerID:  worker.ID,
				OrderID:   orderID,
				StartedAt: o.clock(),
				Status:    domain.AssemblyStatusInProgress,
			}
			if err := tx.SaveAssembly(ctx, assembly); err != nil {
				return fmt.Errorf("save assembly: %w", err)
			}

			station.UpdatedAt = assembly.StartedAt
			if err := tx.SaveStation(ctx, station); err != nil {
				return fmt.Errorf("save station %s: %w", stationID, err)
			}

			if orderID != "" {
				order, err := tx.Order(ctx, orderID)
				if err != nil {
					return notFoundErr(err, "order", orderID)
				}
				order.InProcess++
				if err := tx.SaveOrder(ctx, order); err != nil {
					return fmt.Errorf("save order %s: %w", orderID, err)
				}
			}
			return nil
		})
	})
	if err != nil {
		return "", storeErr(err)
	}

	o.log.Info("assembly started",
		zap.String("assembly_id", assemblyID),
		zap.String("station_id", stationID),
		zap.String("worker_id", workerID))
	return assemblyID, nil
}

// CompleteAssembly finalizes an in-progress assembly. The defect draw
// happens here, at completion time, so elapsed-time variance never
// correlates with the outcome. Record finalization and order counter
// updates share one atomic unit. Parts are never returned on a defect.
func (o *AssemblyOrchestrator) CompleteAssembly(ctx context.Context, assemblyID string) (domain.Assembly, error) {
	mu := o.assemblyLocks.get(assemblyID)
	mu.Lock()
	defer mu.Unlock()

	assembly, err := o.store.Assembly(ctx, assemblyID)
	if err != nil {
		return domain.Assembly{}, notFoundErr(err, "assembly", assemblyID)
	}
	if assembly.Status != domain.AssemblyStatusInProgress {
		return domain.Assembly{}, fmt.Errorf("assembly %s already %s: %w", assemblyID, assembly.Status, ErrInvalidState)
	}

	worker, err := o.store.Worker(ctx, assembly.WorkerID)
	if err != nil {
		return domain.Assembly{}, notFoundErr(err, "worker", assembly.WorkerID)
	}
	rate := worker.Effective(o.settings.SkillDefaults).DefectRate
	defective := o.defects.Draw() < rate

	if assembly.OrderID != "" {
		o.orderLocks.get(assembly.OrderID).Lock()
		defer o.orderLocks.get(assembly.OrderID).Unlock()
	}

	var final domain.Assembly
	err = o.store.Execute(ctx, func(tx port.StoreTx) error {
		a, err := tx.Assembly(ctx, assemblyID)
		if err != nil {
			return notFoundErr(err, "assembly", assemblyID)
		}

		now := o.clock()
		a.EndedAt = &now
		a.Defective = defective
		if defective {
			a.Status = domain.AssemblyStatusFailed
		} else {
			a.Status = domain.AssemblyStatusCompleted
		}
		if err := tx.SaveAssembly(ctx, a); err != nil {
			return fmt.Errorf("save assembly %s: %w", assemblyID, err)
		}

		if a.OrderID != "" {
			order, err := tx.Order(ctx, a.OrderID)
			if err != nil {
				return notFoundErr(err, "order", a.OrderID)
			}
			if order.InProcess > 0 {
				order.InProcess--
			}
			if !defective {
				order.Completed++
			}
			if err := tx.SaveOrder(ctx, order); err != nil {
				return fmt.Errorf("save order %s: %w", a.OrderID, err)
			}
		}

		final = a
		return nil
	})
	if err != nil {
		return domain.Assembly{}, storeErr(err)
	}

	o.log.Info("assembly finished",
		zap.String("assembly_id", assemblyID),
		zap.String("status", string(final.Status)),
		zap.Bool("defective", final.Defective))
	return final, nil
}

// uniformSource draws from a private math/rand generator behind a mutex so
// concurrent completions can share it.
type uniformSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewUniformSource returns the production defect source, seeded explicitly
// so simulations are reproducible when they want to be.
func NewUniformSource(seed int64) port.DefectSource {
	return &uniformSource{rng: rand.New(rand.NewSource(seed))}
}

func (u *uniformSource) Draw() float64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.rng.Float64()
}
