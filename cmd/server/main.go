package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tmachen/shopfloor/internal/adapter/config"
	"github.com/tmachen/shopfloor/internal/adapter/handler"
	"github.com/tmachen/shopfloor/internal/adapter/storage"
	"github.com/tmachen/shopfloor/internal/core/domain"
	"github.com/tmachen/shopfloor/internal/core/service"
	"github.com/tmachen/shopfloor/internal/port"
)

const httpAddr = ":8080"

// Reference deployment: six distinct part types per assembly unit.
var referenceParts = []domain.Part{
	{Name: "Frame", DefaultCapacity: 55},
	{Name: "Rotor", DefaultCapacity: 40},
	{Name: "Gearbox", DefaultCapacity: 30},
	{Name: "Bearing", DefaultCapacity: 80},
	{Name: "Housing", DefaultCapacity: 45},
	{Name: "Wiring Harness", DefaultCapacity: 60},
}

var referenceWorkers = []domain.Worker{
	{Name: "Ana Ruiz", Skill: domain.SkillRookie},
	{Name: "Piotr Nowak", Skill: domain.SkillExperienced},
	{Name: "Mei Chen", Skill: domain.SkillSuper},
	{Name: "Dawit Bekele", Skill: domain.SkillExperienced},
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Configuration: Redis store if available, then YAML file, then
	// built-in defaults.
	var cfgSource port.ConfigSource
	switch {
	case os.Getenv("REDIS_ADDR") != "":
		rdb := redis.NewClient(&redis.Options{Addr: os.Getenv("REDIS_ADDR")})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal("failed to connect redis", zap.Error(err))
		}
		defer rdb.Close()
		cfgSource = storage.NewRedisConfigSource(rdb)
		log.Info("configuration from redis", zap.String("addr", os.Getenv("REDIS_ADDR")))
	case os.Getenv("CONFIG_FILE") != "":
		src, err := config.LoadFile(os.Getenv("CONFIG_FILE"))
		if err != nil {
			log.Fatal("failed to load config file", zap.Error(err))
		}
		cfgSource = src
		log.Info("configuration from file", zap.String("path", os.Getenv("CONFIG_FILE")))
	default:
		cfgSource = config.NewStaticSource(nil)
		log.Info("configuration from built-in defaults")
	}

	settings, err := service.LoadSettings(ctx, cfgSource)
	if err != nil {
		log.Fatal("failed to load settings", zap.Error(err))
	}

	// Storage: MySQL when a DSN is given, in-memory otherwise.
	var store port.CellStore
	if dsn := os.Getenv("MYSQL_DSN"); dsn != "" {
		db, err := sql.Open("mysql", dsn)
		if err != nil {
			log.Fatal("failed to connect mysql", zap.Error(err))
		}
		db.SetMaxOpenConns(50)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(ctx); err != nil {
			log.Fatal("failed to ping mysql", zap.Error(err))
		}
		defer db.Close()
		store = storage.NewMySQLStore(db)
		log.Info("connected to mysql")
	} else {
		store = storage.NewMemoryStore()
		log.Info("using in-memory store")
	}

	notifier := service.NewStockNotifier(settings.BinMin, log)
	ledger := service.NewInventoryLedger(store, notifier, log)
	orchestrator := service.NewAssemblyOrchestrator(store, ledger, settings,
		service.NewUniformSource(time.Now().UnixNano()), log)
	status := service.NewStatusService(store, settings)

	order, err := service.ProvisionCell(ctx, store, settings, referenceParts, referenceWorkers, log)
	if err != nil {
		log.Fatal("failed to provision cell", zap.Error(err))
	}
	log.Info("open order ready", zap.String("order_id", order.ID), zap.Int("amount", order.Amount))

	mux := http.NewServeMux()
	handler.NewHTTPHandler(orchestrator, ledger, status).Register(mux)

	httpServer := &http.Server{Addr: httpAddr, Handler: mux}
	go func() {
		log.Info("HTTP server listening", zap.String("addr", httpAddr))
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Error("HTTP server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	log.Info("HTTP server stopped")
}
