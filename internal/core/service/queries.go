package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tmachen/shopfloor/internal/core/domain"
	"github.com/tmachen/shopfloor/internal/port"
)

// StatusService serves the read-only projections consumed by dashboards and
// the simulation loop. Pure aggregation over committed state, no side
// effects.
type StatusService struct {
	store    port.CellReader
	settings Settings
}

func NewStatusService(store port.CellReader, settings Settings) *StatusService {
	return &StatusService{store: store, settings: settings}
}

type BinStatus struct {
	BinID         string
	StationID     string
	PartID        string
	PartName      string
	Quantity      int
	Low           bool // quantity at or below the configured threshold
	ReplenishedAt time.Time
}

type StationStatus struct {
	StationID  string
	Name       string
	WorkerID   string
	InProgress int
	Produced   int // completed, non-defective units
	LowBins    int
}

type OrderProgress struct {
	OrderID         string
	Amount          int
	Completed       int
	InProcess       int
	Defective       int
	Status          domain.OrderStatus
	PercentComplete decimal.Decimal
	// Yield is completed/(completed+defective)×100, nil while no unit has
	// finished either way.
	Yield    *decimal.Decimal
	Complete bool
}

type WorkerParams struct {
	WorkerID     string
	Name         string
	Skill        domain.SkillLevel
	AssemblyTime time.Duration
	DefectRate   float64
	Overridden   bool // true when either parameter comes from an explicit override
}

// BinStatuses lists every bin with its low-stock flag.
func (s *StatusService) BinStatuses(ctx context.Context) ([]BinStatus, error) {
	bins, err := s.store.Bins(ctx)
	if err != nil {
		return nil, fmt.Errorf("list bins: %w", err)
	}
	parts, err := s.store.Parts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list parts: %w", err)
	}
	names := make(map[string]string, len(parts))
	for _, p := range parts {
		names[p.ID] = p.Name
	}

	out := make([]BinStatus, 0, len(bins))
	for _, b := range bins {
		out = append(out, BinStatus{
			BinID:         b.ID,
			StationID:     b.StationID,
			PartID:        b.PartID,
			PartName:      names[b.PartID],
			Quantity:      b.Quantity,
			Low:           b.Quantity <= s.settings.BinMin,
			ReplenishedAt: b.ReplenishedAt,
		})
	}
	return out, nil
}

// StationStatuses reports per-station activity: running assemblies,
// produced units and bins at or below the threshold.
func (s *StatusService) StationStatuses(ctx context.Context) ([]StationStatus, error) {
	stations, err := s.store.Stations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list stations: %w", err)
	}

	out := make([]StationStatus, 0, len(stations))
	for _, st := range stations {
		status := StationStatus{StationID: st.ID, Name: st.Name, WorkerID: st.WorkerID}

		assemblies, err := s.store.StationAssemblies(ctx, st.ID)
		if err != nil {
			return nil, fmt.Errorf("list assemblies for station %s: %w", st.ID, err)
		}
		for _, a := range assemblies {
			switch a.Status {
			case domain.AssemblyStatusInProgress:
				status.InProgress++
			case domain.AssemblyStatusCompleted:
				status.Produced++
			}
		}

		bins, err := s.store.StationBins(ctx, st.ID)
		if err != nil {
			return nil, fmt.Errorf("list bins for station %s: %w", st.ID, err)
		}
		for _, b := range bins {
			if b.Quantity <= s.settings.BinMin {
				status.LowBins++
			}
		}

		out = append(out, status)
	}
	return out, nil
}

// OrderProgress reports completion percentage and yield for one order.
func (s *StatusService) OrderProgress(ctx context.Context, orderID string) (OrderProgress, error) {
	order, err := s.store.Order(ctx, orderID)
	if err != nil {
		return OrderProgress{}, notFoundErr(err, "order", orderID)
	}

	assemblies, err := s.store.OrderAssemblies(ctx, orderID)
	if err != nil {
		return OrderProgress{}, fmt.Errorf("list assemblies for order %s: %w", orderID, err)
	}
	defective := 0
	for _, a := range assemblies {
		if a.Defective {
			defective++
		}
	}

	progress := OrderProgress{
		OrderID:   order.ID,
		Amount:    order.Amount,
		Completed: order.Completed,
		InProcess: order.InProcess,
		Defective: defective,
		Status:    order.Status,
		Complete:  order.Fulfilled(),
	}

	hundred := decimal.NewFromInt(100)
	if order.Amount > 0 {
		progress.PercentComplete = decimal.NewFromInt(int64(order.Completed)).
			Div(decimal.NewFromInt(int64(order.Amount))).
			Mul(hundred)
	}
	if finished := order.Completed + defective; finished > 0 {
		yield := decimal.NewFromInt(int64(order.Completed)).
			Div(decimal.NewFromInt(int64(finished))).
			Mul(hundred)
		progress.Yield = &yield
	}
	return progress, nil
}

// WorkerParams resolves a worker's effective assembly time and defect rate.
func (s *StatusService) WorkerParams(ctx context.Context, workerID string) (WorkerParams, error) {
	worker, err := s.store.Worker(ctx, workerID)
	if err != nil {
		return WorkerParams{}, notFoundErr(err, "worker", workerID)
	}
	p := worker.Effective(s.settings.SkillDefaults)
	return WorkerParams{
		WorkerID:     worker.ID,
		Name:         worker.Name,
		Skill:        worker.Skill,
		AssemblyTime: p.AssemblyTime,
		DefectRate:   p.DefectRate,
		Overridden:   worker.AssemblyTime != nil || worker.DefectRate != nil,
	}, nil
}
