package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/openlot/auction-engine/internal/auction"
	"github.com/openlot/auction-engine/internal/config"
	"github.com/openlot/auction-engine/internal/metrics"
	"github.com/openlot/auction-engine/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration failed", "err", err)
		os.Exit(1)
	}

	relayCtx, relayCancel := context.WithCancel(context.Background())
	defer relayCancel()

	// --- Initialize store ---
	var st store.Store
	var rdb *redis.Client
	var cleanup []func()

	if cfg.Store.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.Store.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	if cfg.Store.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.Store.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "err", err)
			os.Exit(1)
		}
		rdb = redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		st = store.NewCachedStore(st, rdb, cfg.Store.CacheTTL)
		slog.Info("Redis cache enabled")
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Real-time event channel ---
	hub := auction.NewHub()
	go hub.Run()

	// With Redis, events route through the pub/sub relay so every instance's
	// rooms see them; without it, the engine broadcasts to the local hub.
	var broadcaster auction.Broadcaster = hub
	if rdb != nil {
		relay := auction.NewRelay(rdb, hub, cfg.Auction.RelayChannel)
		go relay.Run(relayCtx)
		broadcaster = relay
		slog.Info("Redis event relay enabled", "channel", cfg.Auction.RelayChannel)
	}

	// --- Bid acceptance engine + lifecycle scheduler ---
	engine := auction.NewEngine(st, broadcaster, cfg.Auction.LockWait)
	hub.BindEngine(engine)

	scheduler := auction.NewScheduler(engine, cfg.Auction.SweepInterval)
	go scheduler.Start()
	defer scheduler.Stop()

	svc := auction.NewService(st, engine)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"auction-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for joining auction rooms and bidding live.
		r.Get("/ws", hub.HandleWS)

		// Auction management.
		r.Get("/auctions", svc.ListAuctions)
		r.Post("/auctions", svc.CreateAuction)
		r.Get("/auctions/{auctionID}", svc.GetAuction)
		r.Post("/auctions/{auctionID}/cancel", svc.CancelAuction)

		// Bid ledger.
		r.Get("/auctions/{auctionID}/bids", svc.GetBidSnapshot)
		r.Get("/auctions/{auctionID}/bids/history", svc.GetBidHistory)
		r.Post("/auctions/{auctionID}/bids", svc.PlaceBid)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("auction-engine listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	slog.Info("shutting down auction-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("auction-engine stopped")
}
