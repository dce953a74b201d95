package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/canteenworks/canteen-orders/internal/config"
	kafkax "github.com/canteenworks/canteen-orders/internal/kafka"
	"github.com/canteenworks/canteen-orders/internal/orders"
	"github.com/canteenworks/canteen-orders/internal/redisx"
	"github.com/canteenworks/canteen-orders/internal/statuscache"
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

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &statuscache.Service{
		Cache:       redisx.NewCache(rdb),
		Log:         log,
		ServiceName: cfg.ServiceName + "-worker",
	}

	group := getenv("WORKER_GROUP", "statuscache-svc")
	workers := mustAtoi(os.Getenv("WORKER_COUNT"), "4")
	topics := []string{orders.TopicOrderCreated, orders.TopicOrderPayment, orders.TopicOrderProgress}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, topics, workers, log)

	go func() {
		log.Info("status cache consumer started",
			zap.String("group", group),
			zap.Strings("topics", topics),
			zap.Int("workers", workers))
		if err := cons.Start(ctx, svc.HandleEvent); err != nil {
			log.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down consumer")
	cancel()
	time.Sleep(500 * time.Millisecond)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return i
}
