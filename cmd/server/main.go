package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-backend/internal/api"
	"github.com/fathima-sithara/chat-backend/internal/auth"
	"github.com/fathima-sithara/chat-backend/internal/config"
	"github.com/fathima-sithara/chat-backend/internal/events"
	"github.com/fathima-sithara/chat-backend/internal/kafka"
	"github.com/fathima-sithara/chat-backend/internal/logger"
	"github.com/fathima-sithara/chat-backend/internal/metrics"
	"github.com/fathima-sithara/chat-backend/internal/presence"
	"github.com/fathima-sithara/chat-backend/internal/repository"
	"github.com/fathima-sithara/chat-backend/internal/service"
	"github.com/fathima-sithara/chat-backend/internal/storage"
	"github.com/fathima-sithara/chat-backend/internal/ws"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	zl, err := logger.New(cfg.App.Development())
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	metrics.Init()

	mc, err := repository.NewMongoClient(cfg)
	if err != nil {
		zl.Fatal("mongo init", zap.Error(err))
	}
	defer func() { _ = mc.Disconnect(context.Background()) }()

	db := mc.Database(cfg.Mongo.DB)
	msgRepo := repository.NewMessageRepository(db.Collection("messages"))
	groupRepo := repository.NewGroupRepository(db.Collection("groups"))
	userRepo := repository.NewUserRepository(db.Collection("users"))

	var registry presence.Registry
	if cfg.Presence.Backend == "redis" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		registry = presence.NewRedisRegistry(rdb, cfg.Redis.Prefix, cfg.Presence.TTL())
	} else {
		registry = presence.NewMemoryRegistry()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	blobs, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		zl.Fatal("storage init", zap.Error(err))
	}

	kprod := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOut)
	defer func() { _ = kprod.Close() }()
	kcons := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicIn, cfg.Kafka.GroupID, zl)
	defer func() { _ = kcons.Close() }()

	svc := service.NewMessageService(msgRepo, groupRepo, userRepo, nil, kprod, zl)
	wsrv := ws.NewServer(svc, registry, zl)
	svc.SetNotifier(wsrv)

	sub, err := events.NewSubscriber(cfg.NATS.URL, groupRepo, userRepo, zl)
	if err != nil {
		zl.Fatal("nats init", zap.Error(err))
	}
	defer sub.Close()
	if err := sub.Start("chat-backend"); err != nil {
		zl.Fatal("nats subscribe", zap.Error(err))
	}

	go kcons.Start(ctx, func(key string, value []byte) {
		wsrv.HandleEventMessage(key, value)
	})

	sweeper := service.NewSweeper(svc, cfg.Sweep.Interval(), int64(cfg.Sweep.BatchLimit), zl)
	go sweeper.Run(ctx)

	jv, err := auth.FromConfig(cfg.JWT.Alg, cfg.JWT.PublicKeyPath, cfg.JWT.HSSecret)
	if err != nil {
		zl.Fatal("jwt init", zap.Error(err))
	}

	app := api.NewServer(cfg, svc, blobs, wsrv, jv, zl)

	go func() {
		if err := app.Listen(":" + cfg.App.PortString()); err != nil {
			zl.Fatal("server listen", zap.Error(err))
		}
	}()
	zl.Info("chat-backend started", zap.String("port", cfg.App.PortString()))

	<-ctx.Done()
	stop()

	shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = app.ShutdownWithContext(shCtx)
	zl.Info("chat-backend stopped")
}
