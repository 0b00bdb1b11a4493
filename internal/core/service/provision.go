package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tmachen/shopfloor/internal/core/domain"
	"github.com/tmachen/shopfloor/internal/port"
)

// ProvisionCell seeds an empty store with the cell's reference data: the
// part catalog, the configured number of stations with workers assigned
// round-robin, the full bin cross product (one bin per station and part,
// filled to the part's default capacity) and one open order sized by
// OrderAmount. Everything commits as a single atomic unit.
//
// Bin uniqueness per (station, part) holds by construction: bins are
// created here and nowhere else.
func ProvisionCell(ctx context.Context, store port.CellStore, settings Settings, parts []domain.Part, workers []domain.Worker, log *zap.Logger) (domain.Order, error) {
	if len(parts) == 0 {
		return domain.Order{}, fmt.Errorf("provision: no parts configured")
	}
	seen := make(map[string]bool, len(parts))
	for _, p := range parts {
		if p.Name == "" || p.DefaultCapacity <= 0 {
			return domain.Order{}, fmt.Errorf("provision: part %q needs a name and a positive capacity", p.Name)
		}
		if seen[p.Name] {
			return domain.Order{}, fmt.Errorf("provision: duplicate part name %q", p.Name)
		}
		seen[p.Name] = true
	}

	now := time.Now()
	order := domain.Order{
		ID:        uuid.NewString(),
		Amount:    settings.OrderAmount,
		Status:    domain.OrderStatusOpen,
		CreatedAt: now,
	}

	err := store.Execute(ctx, func(tx port.StoreTx) error {
		for i := range parts {
			if parts[i].ID == "" {
				parts[i].ID = uuid.NewString()
			}
			if err := tx.SavePart(ctx, parts[i]); err != nil {
				return fmt.Errorf("save part %q: %w", parts[i].Name, err)
			}
		}
		for i := range workers {
			if workers[i].ID == "" {
				workers[i].ID = uuid.NewString()
			}
			if err := tx.SaveWorker(ctx, workers[i]); err != nil {
				return fmt.Errorf("save worker %q: %w", workers[i].Name, err)
			}
		}

		for i := 0; i < settings.AssemblyStations; i++ {
			station := domain.Station{
				ID:        uuid.NewString(),
				Name:      fmt.Sprintf("Station %d", i+1),
				UpdatedAt: now,
			}
			if len(workers) > 0 {
				station.WorkerID = workers[i%len(workers)].ID
			}
			if err := tx.SaveStation(ctx, station); err != nil {
				return fmt.Errorf("save station %q: %w", station.Name, err)
			}

			for _, p := range parts {
				bin := domain.Bin{
					ID:            uuid.NewString(),
					StationID:     station.ID,
					PartID:        p.ID,
					Quantity:      p.DefaultCapacity,
					ReplenishedAt: now,
				}
				if err := tx.SaveBin(ctx, bin); err != nil {
					return fmt.Errorf("save bin for station %q part %q: %w", station.Name, p.Name, err)
				}
			}
		}

		return tx.SaveOrder(ctx, order)
	})
	if err != nil {
		return domain.Order{}, storeErr(err)
	}

	log.Info("cell provisioned",
		zap.Int("stations", settings.AssemblyStations),
		zap.Int("parts", len(parts)),
		zap.Int("workers", len(workers)),
		zap.String("order_id", order.ID),
		zap.Int("order_amount", order.Amount))
	return order, nil
}
