package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/canteenworks/canteen-orders/internal/config"
	"github.com/canteenworks/canteen-orders/internal/httpx"
	kafkax "github.com/canteenworks/canteen-orders/internal/kafka"
	"github.com/canteenworks/canteen-orders/internal/metrics"
	"github.com/canteenworks/canteen-orders/internal/midtrans"
	"github.com/canteenworks/canteen-orders/internal/orders"
	"github.com/canteenworks/canteen-orders/internal/postgres"
	"github.com/canteenworks/canteen-orders/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	cache := redisx.NewCache(rdb)

	// Kafka producer (one producer, topic per message)
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024)
	prod.Start(ctx)

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	m := metrics.New(reg)

	// Payment gateway: capability-checked, unconfigured when no key.
	var gateway orders.PaymentGateway
	snap := midtrans.NewClient(midtrans.Config{
		ServerKey: cfg.MidtransServerKey,
		APIBase:   cfg.MidtransAPIBase,
		Timeout:   cfg.MidtransTimeout,
	})
	if snap.Configured() {
		gateway = snap
	} else {
		log.Warn("midtrans not configured; orders will be created without payment links")
	}

	store := &orders.PGStore{DB: db}
	svc := &orders.Service{
		Store:   store,
		Gateway: gateway,
		Events:  prod,
		Metrics: m,
		Log:     log,
		Name:    cfg.ServiceName,
	}
	rec := &orders.Reconciler{
		Store:    store,
		Verifier: midtrans.NewWebhookVerifier(cfg.MidtransServerKey),
		Events:   prod,
		Metrics:  m,
		Log:      log,
		Name:     cfg.ServiceName,
	}

	router := httpx.NewRouter(reg)
	(&httpx.OrdersHandler{Service: svc, Cache: cache, Log: log}).Register(router)
	(&httpx.WebhookHandler{Reconciler: rec, Log: log}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close()      // stop intake, flush remaining events
	cancel()          // stop producer loop
	prod.WaitClosed() // drain
}
