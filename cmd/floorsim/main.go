// floorsim drives a full cell in memory: one goroutine per station starts
// and completes assemblies at its worker's pace while a replenisher tops up
// low bins, until the open order is covered.
package main

import (
	"context"
	"errors"
	"flag"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tmachen/shopfloor/internal/adapter/config"
	"github.com/tmachen/shopfloor/internal/adapter/storage"
	"github.com/tmachen/shopfloor/internal/core/domain"
	"github.com/tmachen/shopfloor/internal/core/service"
)

var simParts = []domain.Part{
	{Name: "Frame", DefaultCapacity: 55},
	{Name: "Rotor", DefaultCapacity: 40},
	{Name: "Gearbox", DefaultCapacity: 30},
	{Name: "Bearing", DefaultCapacity: 80},
	{Name: "Housing", DefaultCapacity: 45},
	{Name: "Wiring Harness", DefaultCapacity: 60},
}

var simWorkers = []domain.Worker{
	{Name: "Ana Ruiz", Skill: domain.SkillRookie},
	{Name: "Piotr Nowak", Skill: domain.SkillExperienced},
	{Name: "Mei Chen", Skill: domain.SkillSuper},
	{Name: "Dawit Bekele", Skill: domain.SkillExperienced},
}

func main() {
	stations := flag.Int("stations", 4, "number of assembly stations")
	orderAmount := flag.Int("order", 40, "order target amount")
	timeScale := flag.Float64("timescale", 200, "simulation speed multiplier")
	seed := flag.Int64("seed", time.Now().UnixNano(), "defect draw seed")
	flag.Parse()

	log, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx := context.Background()

	cfg := config.NewStaticSource(map[string]string{
		service.KeyAssemblyStations: strconv.Itoa(*stations),
		service.KeyOrderAmount:      strconv.Itoa(*orderAmount),
		service.KeyTimeScale:        strconv.FormatFloat(*timeScale, 'f', -1, 64),
	})
	settings, err := service.LoadSettings(ctx, cfg)
	if err != nil {
		log.Fatal("load settings", zap.Error(err))
	}

	store := storage.NewMemoryStore()
	notifier := service.NewStockNotifier(settings.BinMin, log)
	ledger := service.NewInventoryLedger(store, notifier, log)
	orchestrator := service.NewAssemblyOrchestrator(store, ledger, settings, service.NewUniformSource(*seed), log)
	status := service.NewStatusService(store, settings)

	order, err := service.ProvisionCell(ctx, store, settings, simParts, simWorkers, log)
	if err != nil {
		log.Fatal("provision cell", zap.Error(err))
	}

	stationList, err := store.Stations(ctx)
	if err != nil {
		log.Fatal("list stations", zap.Error(err))
	}

	done := make(chan struct{})
	var replenished atomic.Int32

	// Replenishment actor: top up any low bin, reactively resolving its
	// alert.
	go func() {
		ticker := time.NewTicker(scale(time.Second, settings.TimeScale))
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				bins, err := status.BinStatuses(ctx)
				if err != nil {
					log.Error("bin status", zap.Error(err))
					continue
				}
				for _, b := range bins {
					if !b.Low {
						continue
					}
					if _, err := ledger.Replenish(ctx, b.BinID, "replenisher"); err != nil {
						log.Error("replenish", zap.String("bin_id", b.BinID), zap.Error(err))
						continue
					}
					replenished.Add(1)
				}
			}
		}
	}()

	var wg sync.WaitGroup
	for _, st := range stationList {
		wg.Add(1)
		go func(st domain.Station) {
			defer wg.Done()
			runStation(ctx, st, order.ID, orchestrator, status, store, settings, log)
		}(st)
	}

	wg.Wait()
	close(done)

	progress, err := status.OrderProgress(ctx, order.ID)
	if err != nil {
		log.Fatal("order progress", zap.Error(err))
	}
	fields := []zap.Field{
		zap.Int("completed", progress.Completed),
		zap.Int("defective", progress.Defective),
		zap.String("percent", progress.PercentComplete.StringFixed(1)),
		zap.Int32("replenishments", replenished.Load()),
	}
	if progress.Yield != nil {
		fields = append(fields, zap.String("yield", progress.Yield.StringFixed(2)))
	}
	log.Info("simulation finished", fields...)
}

// runStation keeps one station producing until the order is covered.
// Insufficient stock means wait for the replenisher and retry; anything
// else is fatal to the attempt only.
func runStation(ctx context.Context, st domain.Station, orderID string, orchestrator *service.AssemblyOrchestrator, status *service.StatusService, store *storage.MemoryStore, settings service.Settings, log *zap.Logger) {
	params, err := status.WorkerParams(ctx, st.WorkerID)
	if err != nil {
		log.Error("worker params", zap.String("station", st.Name), zap.Error(err))
		return
	}

	for {
		order, err := store.Order(ctx, orderID)
		if err != nil {
			log.Error("load order", zap.Error(err))
			return
		}
		if order.Fulfilled() {
			return
		}

		assemblyID, err := orchestrator.StartAssembly(ctx, st.ID, st.WorkerID, orderID)
		if errors.Is(err, service.ErrInsufficientStock) {
			time.Sleep(scale(2*time.Second, settings.TimeScale))
			continue
		}
		if err != nil {
			log.Error("start assembly", zap.String("station", st.Name), zap.Error(err))
			return
		}

		time.Sleep(scale(params.AssemblyTime, settings.TimeScale))

		if _, err := orchestrator.CompleteAssembly(ctx, assemblyID); err != nil {
			log.Error("complete assembly", zap.String("assembly_id", assemblyID), zap.Error(err))
			return
		}
	}
}

func scale(d time.Duration, timeScale float64) time.Duration {
	if timeScale <= 0 {
		return d
	}
	return time.Duration(float64(d) / timeScale)
}
