package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gobwas/ws"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/dnckss/cryptox-sub000/cmd/simd/internal/admin"
	"github.com/dnckss/cryptox-sub000/cmd/simd/internal/audit"
	"github.com/dnckss/cryptox-sub000/cmd/simd/internal/catalog"
	"github.com/dnckss/cryptox-sub000/cmd/simd/internal/hub"
	"github.com/dnckss/cryptox-sub000/cmd/simd/internal/mirror"
	"github.com/dnckss/cryptox-sub000/cmd/simd/internal/sim"
	"github.com/dnckss/cryptox-sub000/cmd/simd/internal/stream"
	"github.com/dnckss/cryptox-sub000/pkg/config"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	if cfg.App.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	cat := catalog.Generate(cfg.Sim.Instruments)
	engine := sim.NewEngine(cat, sim.Config{
		PriceFloor:       cfg.Sim.PriceFloor,
		MinDelay:         cfg.Sim.MinDelay,
		MaxDelay:         cfg.Sim.MaxDelay,
		HistoryRetention: cfg.Sim.HistoryRetention,
		RandBucket:       cfg.Sim.RandBucket,
	}, sim.RealClock{}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	priceMirror := mirror.NewMirror(engine, rdb, cfg.Mirror.Interval, cfg.Mirror.TTL, logger)

	// Audit trail: ensure the topic exists, then write async
	dialer := &audit.RealKafkaDialer{Dialer: &kafka.Dialer{Timeout: 5 * time.Second}}
	audit.NewTopicCreator(logger, dialer).Create(cfg.Kafka.Brokers, cfg.Kafka.Topic)

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        cfg.Kafka.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
	}
	trail := audit.NewTrail(writer, logger)

	wsHub := hub.NewHub(engine, cfg.Hub.PollInterval, logger)
	handler := admin.NewHandler(engine, cat, trail, sim.RealClock{}, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			return
		}
		stream.NewViewerConn(conn, wsHub, cfg.Hub.SendBuffer, logger).Start()
	})
	mux.Handle("/", handler.InitRoutes())

	srv := &http.Server{Addr: cfg.App.Port, Handler: mux}

	go wsHub.Run(ctx)
	go priceMirror.Run(ctx)

	go func() {
		logger.Info("Server Started",
			zap.String("port", cfg.App.Port),
			zap.Int("instruments", cat.Len()))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("HTTP Error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("Shutdown signal received")
	cancel()

	srv.Shutdown(context.Background())

	// Flush the async Kafka buffer before exit
	if err := trail.Close(); err != nil {
		logger.Error("Error closing Kafka writer", zap.Error(err))
	}
	rdb.Close()

	logger.Info("Shutdown Complete")
}
