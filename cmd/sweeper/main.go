package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-account-shop.git/internal/config"
	kafkax "github.com/ariefcatur/go-account-shop.git/internal/kafka"
	"github.com/ariefcatur/go-account-shop.git/internal/orders"
	"github.com/ariefcatur/go-account-shop.git/internal/postgres"
	"github.com/ariefcatur/go-account-shop.git/internal/redisx"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// Standalone expiry worker: cancels pending orders past their payment
// deadline on a fixed interval and returns their units to the pools.
func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zlog.Logger = zlog.With().Str("service", cfg.ServiceName+"-sweeper").Logger()

	if cfg.StoreDriver == "memory" {
		zlog.Fatal().Msg("the sweeper needs the shared postgres store; STORE_DRIVER=memory only works in-process")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN, 4)
	if err != nil {
		zlog.Fatal().Err(err).Msg("db connect")
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	prod := kafkax.NewProducer(cfg.KafkaBrokers, 256)
	prod.Start(ctx)

	svc := &orders.Service{
		Store:       &orders.Repo{DB: db},
		Producer:    prod,
		Redis:       rdb,
		ServiceName: cfg.ServiceName + "-sweeper",
		Hold:        cfg.PaymentHold,
	}
	sw := &orders.Sweeper{Service: svc, Interval: cfg.SweepInterval}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		zlog.Info().Dur("interval", cfg.SweepInterval).Msg("sweeper started")
		sw.Run(sweepCtx)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	zlog.Info().Msg("shutting down sweeper...")

	// stop the loop and wait for any in-flight sweep before the producer
	// inbox closes, so a late Publish cannot hit a closed channel
	stopSweep()
	<-done
	prod.Close()
	cancel()
	prod.WaitClosed()
}
