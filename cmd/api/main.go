package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-account-shop.git/internal/auth"
	"github.com/ariefcatur/go-account-shop.git/internal/catalog"
	"github.com/ariefcatur/go-account-shop.git/internal/config"
	"github.com/ariefcatur/go-account-shop.git/internal/coupons"
	"github.com/ariefcatur/go-account-shop.git/internal/httpx"
	kafkax "github.com/ariefcatur/go-account-shop.git/internal/kafka"
	"github.com/ariefcatur/go-account-shop.git/internal/memstore"
	"github.com/ariefcatur/go-account-shop.git/internal/orders"
	"github.com/ariefcatur/go-account-shop.git/internal/postgres"
	"github.com/ariefcatur/go-account-shop.git/internal/redisx"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zlog.Logger = zlog.With().Str("service", cfg.ServiceName).Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// stores
	var (
		userStore   auth.Store
		prodStore   catalog.Store
		couponStore coupons.Store
		orderStore  orders.Store
	)
	switch cfg.StoreDriver {
	case "memory":
		m := memstore.New()
		userStore, prodStore, couponStore, orderStore = m, m, m, m
		zlog.Warn().Msg("using in-memory store; data is not durable")
	default:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN, 8)
		if err != nil {
			zlog.Fatal().Err(err).Msg("db connect")
		}
		defer db.Close()
		userStore = &auth.Repo{DB: db}
		prodStore = &catalog.Repo{DB: db}
		couponStore = &coupons.Repo{DB: db}
		orderStore = &orders.Repo{DB: db}
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024)
	prod.Start(ctx)

	// services
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)
	authSvc := &auth.Service{Store: userStore, Tokens: tokens}
	catalogSvc := &catalog.Service{Store: prodStore}
	couponSvc := &coupons.Service{Store: couponStore}
	orderSvc := &orders.Service{
		Store:       orderStore,
		Producer:    prod,
		Redis:       rdb,
		ServiceName: cfg.ServiceName,
		Hold:        cfg.PaymentHold,
	}

	router := httpx.NewRouter(auth.Middleware(tokens))
	(&httpx.AuthHandler{Service: authSvc}).Register(router)
	(&httpx.ProductsHandler{Service: catalogSvc}).Register(router)
	(&httpx.CouponsHandler{Service: couponSvc}).Register(router)
	(&httpx.OrdersHandler{Service: orderSvc}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		zlog.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	zlog.Info().Msg("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close()      // close inbox -> flush & close writer
	cancel()          // stop producer loop
	prod.WaitClosed() // drain
}
