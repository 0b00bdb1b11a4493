package service

import (
	"context"
	"testing"
	"time"

	"github.com/tmachen/shopfloor/internal/core/domain"
	"github.com/tmachen/shopfloor/internal/port"
)

func TestBinStatuses_LowFlag(t *testing.T) {
	cell := buildCell(t, 10, 5, &fixedDraws{})
	status := NewStatusService(cell.store, cell.settings)

	err := cell.store.Execute(context.Background(), func(tx port.StoreTx) error {
		bin, err := tx.Bin(context.Background(), "bin-2")
		if err != nil {
			return err
		}
		bin.Quantity = cell.settings.BinMin // at threshold counts as low
		return tx.SaveBin(context.Background(), bin)
	})
	if err != nil {
		t.Fatalf("adjust bin: %v", err)
	}

	statuses, err := status.BinStatuses(context.Background())
	if err != nil {
		t.Fatalf("bin statuses: %v", err)
	}
	if len(statuses) != 6 {
		t.Fatalf("expected 6 bins, got %d", len(statuses))
	}
	for _, s := range statuses {
		wantLow := s.BinID == "bin-2"
		if s.Low != wantLow {
			t.Errorf("bin %s: low=%v, want %v", s.BinID, s.Low, wantLow)
		}
		if s.PartName == "" {
			t.Errorf("bin %s: missing part name", s.BinID)
		}
	}
}

func TestStationStatuses_Counts(t *testing.T) {
	cell := buildCell(t, 10, 20, &fixedDraws{vals: []float64{0.9, 0.0}})
	status := NewStatusService(cell.store, cell.settings)

	first, err := cell.orchestrator.StartAssembly(context.Background(), cell.stationID, cell.workerID, cell.orderID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := cell.orchestrator.CompleteAssembly(context.Background(), first); err != nil {
		t.Fatalf("complete: %v", err)
	}
	second, err := cell.orchestrator.StartAssembly(context.Background(), cell.stationID, cell.workerID, cell.orderID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := cell.orchestrator.CompleteAssembly(context.Background(), second); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := cell.orchestrator.StartAssembly(context.Background(), cell.stationID, cell.workerID, cell.orderID); err != nil {
		t.Fatalf("start: %v", err)
	}

	statuses, err := status.StationStatuses(context.Background())
	if err != nil {
		t.Fatalf("station statuses: %v", err)
	}
	if len(statuses) != 1 {
		t.Fatalf("expected 1 station, got %d", len(statuses))
	}
	st := statuses[0]
	if st.InProgress != 1 {
		t.Errorf("expected 1 in progress, got %d", st.InProgress)
	}
	// One completed, one failed: produced counts only the good unit.
	if st.Produced != 1 {
		t.Errorf("expected 1 produced, got %d", st.Produced)
	}
	// Three starts ate 3 from each bin of 10: none low at threshold 5.
	if st.LowBins != 0 {
		t.Errorf("expected 0 low bins, got %d", st.LowBins)
	}
}

func TestOrderProgress_YieldAndPercent(t *testing.T) {
	// Three good completions, one defect.
	cell := buildCell(t, 50, 8, &fixedDraws{vals: []float64{0.9, 0.9, 0.0, 0.9}})
	status := NewStatusService(cell.store, cell.settings)

	for i := 0; i < 4; i++ {
		assemblyID, err := cell.orchestrator.StartAssembly(context.Background(), cell.stationID, cell.workerID, cell.orderID)
		if err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
		if _, err := cell.orchestrator.CompleteAssembly(context.Background(), assemblyID); err != nil {
			t.Fatalf("complete %d: %v", i, err)
		}
	}

	progress, err := status.OrderProgress(context.Background(), cell.orderID)
	if err != nil {
		t.Fatalf("order progress: %v", err)
	}
	if progress.Completed != 3 || progress.Defective != 1 {
		t.Fatalf("expected 3 completed 1 defective, got %+v", progress)
	}
	// 3 of 8 → 37.5%
	if progress.PercentComplete.StringFixed(1) != "37.5" {
		t.Errorf("expected percent 37.5, got %s", progress.PercentComplete)
	}
	// 3/(3+1)×100 = 75
	if progress.Yield == nil {
		t.Fatal("expected yield, got nil")
	}
	if progress.Yield.StringFixed(1) != "75.0" {
		t.Errorf("expected yield 75.0, got %s", progress.Yield)
	}
	if progress.Complete {
		t.Error("expected order not complete")
	}
}

func TestOrderProgress_YieldUndefined(t *testing.T) {
	cell := buildCell(t, 10, 5, &fixedDraws{})
	status := NewStatusService(cell.store, cell.settings)

	progress, err := status.OrderProgress(context.Background(), cell.orderID)
	if err != nil {
		t.Fatalf("order progress: %v", err)
	}
	if progress.Yield != nil {
		t.Errorf("expected nil yield with nothing finished, got %s", progress.Yield)
	}
	if !progress.PercentComplete.IsZero() {
		t.Errorf("expected zero percent, got %s", progress.PercentComplete)
	}
}

func TestWorkerParams_DefaultsAndOverrides(t *testing.T) {
	cell := buildCell(t, 10, 5, &fixedDraws{})
	status := NewStatusService(cell.store, cell.settings)

	params, err := status.WorkerParams(context.Background(), cell.workerID)
	if err != nil {
		t.Fatalf("worker params: %v", err)
	}
	want := cell.settings.SkillDefaults[domain.SkillRookie]
	if params.AssemblyTime != want.AssemblyTime || params.DefectRate != want.DefectRate {
		t.Errorf("expected rookie defaults %+v, got %+v", want, params)
	}
	if params.Overridden {
		t.Error("expected no override flag")
	}

	// Explicit overrides win field by field.
	overrideTime := 45 * time.Second
	overrideRate := 0.02
	err = cell.store.Execute(context.Background(), func(tx port.StoreTx) error {
		return tx.SaveWorker(context.Background(), domain.Worker{
			ID:           "worker-2",
			Name:         "Piotr Nowak",
			Skill:        domain.SkillExperienced,
			AssemblyTime: &overrideTime,
			DefectRate:   &overrideRate,
		})
	})
	if err != nil {
		t.Fatalf("save worker: %v", err)
	}

	params, err = status.WorkerParams(context.Background(), "worker-2")
	if err != nil {
		t.Fatalf("worker params: %v", err)
	}
	if params.AssemblyTime != overrideTime || params.DefectRate != overrideRate {
		t.Errorf("expected overrides, got %+v", params)
	}
	if !params.Overridden {
		t.Error("expected override flag")
	}
}
