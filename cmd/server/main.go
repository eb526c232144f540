package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/cartelera/seat-reservation/internal/config"
	"github.com/cartelera/seat-reservation/internal/database"
	"github.com/cartelera/seat-reservation/internal/handler"
	"github.com/cartelera/seat-reservation/internal/logger"
	"github.com/cartelera/seat-reservation/internal/model"
	"github.com/cartelera/seat-reservation/internal/queue"
	memstore "github.com/cartelera/seat-reservation/internal/repository/memory"
	mysqlstore "github.com/cartelera/seat-reservation/internal/repository/mysql"
	redisstore "github.com/cartelera/seat-reservation/internal/repository/redis"
	"github.com/cartelera/seat-reservation/internal/reservation"
	"github.com/cartelera/seat-reservation/internal/router"
)

func main() {
	_ = godotenv.Load() // .env is optional; real deployments set the environment directly
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	defer func() { _ = log.Sync() }()

	catalog, ledger, locks := buildStores(cfg, log)

	var notifier reservation.Notifier = reservation.NopNotifier{}
	if cfg.AMQPURL != "" {
		notifier = queue.NewPublisher(cfg.AMQPURL, log)
	}

	engine := reservation.NewEngine(catalog, locks, ledger, notifier, log,
		reservation.WithTTLBounds(cfg.HoldTTLMin, cfg.HoldTTLMax),
		reservation.WithLockWaitTimeout(cfg.LockWait),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go reservation.NewSweeper(engine, cfg.SweepInterval, log).Run(ctx)
	if cfg.AMQPURL != "" {
		go queue.StartSeatEventConsumer(ctx, cfg.AMQPURL, log)
	}

	e := echo.New()
	e.HideBanner = true
	router.RegisterRoutes(e, handler.NewReservationHandler(engine, log), cfg.JWTSecret)

	go func() {
		addr := ":" + cfg.Port
		log.Info("listening", "addr", addr, "env", cfg.Env,
			"lock_store", cfg.LockStore, "data_store", cfg.DataStore)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown failed", "error", err)
	}
}

// buildStores assembles the catalog, ledger and lock store from the
// configured backends.  The memory backends serve single-instance
// deployments; mysql and redis keep state shared and durable across
// instances.
func buildStores(cfg config.Config, log logger.Logger) (reservation.ShowtimeCatalog, reservation.SeatLedger, reservation.SeatLockStore) {
	db := openDBIfNeeded(cfg, log)

	var catalog reservation.ShowtimeCatalog
	var ledger reservation.SeatLedger
	switch cfg.DataStore {
	case "mysql":
		catalog = mysqlstore.NewShowtimeCatalog(db)
		ledger = mysqlstore.NewSeatLedger(db)
	case "memory":
		catalog = memstore.NewShowtimeCatalog(loadSeatMap(cfg.SeatMapFile, log)...)
		ledger = memstore.NewSeatLedger()
	default:
		log.Fatal("unknown DATA_STORE backend", "backend", cfg.DataStore)
	}

	var locks reservation.SeatLockStore
	switch cfg.LockStore {
	case "redis":
		client := config.NewRedisClient()
		if client == nil {
			log.Fatal("LOCK_STORE=redis but redis is unreachable")
		}
		locks = redisstore.NewSeatLockStore(client)
	case "mysql":
		locks = mysqlstore.NewSeatLockStore(db)
	case "memory":
		locks = memstore.NewSeatLockStore()
	default:
		log.Fatal("unknown LOCK_STORE backend", "backend", cfg.LockStore)
	}
	return catalog, ledger, locks
}

func openDBIfNeeded(cfg config.Config, log logger.Logger) *sql.DB {
	if cfg.DataStore != "mysql" && cfg.LockStore != "mysql" {
		return nil
	}
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatal("mysql connection failed", "error", err)
	}
	return db
}

// seatMapEntry is the on-disk seed format for the memory catalog:
// a JSON array of {id, price_cents, seats:[...]}.
type seatMapEntry struct {
	ID         string   `json:"id"`
	PriceCents uint32   `json:"price_cents"`
	Seats      []string `json:"seats"`
}

func loadSeatMap(path string, log logger.Logger) []model.Showtime {
	if path == "" {
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		log.Fatal("seat map file unreadable", "path", path, "error", err)
	}
	var entries []seatMapEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		log.Fatal("seat map file invalid", "path", path, "error", err)
	}
	shows := make([]model.Showtime, 0, len(entries))
	for _, e := range entries {
		shows = append(shows, model.NewShowtime(e.ID, e.Seats, e.PriceCents))
	}
	log.Info("seat map loaded", "path", path, "showtimes", len(shows))
	return shows
}
