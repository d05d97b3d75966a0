package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-bookstore-orders/internal/config"
	"github.com/ariefcatur/go-bookstore-orders/internal/httpx"
	kafkax "github.com/ariefcatur/go-bookstore-orders/internal/kafka"
	"github.com/ariefcatur/go-bookstore-orders/internal/logging"
	"github.com/ariefcatur/go-bookstore-orders/internal/mail"
	"github.com/ariefcatur/go-bookstore-orders/internal/notify"
	"github.com/ariefcatur/go-bookstore-orders/internal/orders"
	"github.com/ariefcatur/go-bookstore-orders/internal/postgres"
	"github.com/ariefcatur/go-bookstore-orders/internal/pricing"
	"github.com/ariefcatur/go-bookstore-orders/internal/redisx"
	"github.com/ariefcatur/go-bookstore-orders/internal/sqlite"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logging.New(cfg.LogLevel, cfg.ServiceName)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("api stopped", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Store
	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	hub := redisx.NewHub(rdb, log.Named("realtime"))

	// Kafka producer for the mail outbox
	prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderMail, 1024, log.Named("kafka"))
	prod.Start()

	svc := orders.NewService(store,
		orders.WithRules(pricing.Rules{VolumeMinQty: cfg.VolumeMinQty, VolumePercent: cfg.VolumePercent}),
		orders.WithMilestone(orders.MilestonePolicy{
			Every:    cfg.MilestoneEvery,
			Percent:  cfg.MilestonePercent,
			Validity: time.Duration(cfg.MilestoneValidDays) * 24 * time.Hour,
		}),
		orders.WithNotifications(notify.NewFanout(hub,
			notify.RetryPolicy{Attempts: cfg.NotifyRetryAttempts, Delay: cfg.NotifyRetryDelay},
			log.Named("notify"))),
		orders.WithMailer(mail.NewOutbox(prod, cfg.ServiceName)),
		orders.WithLogger(log.Named("orders")),
	)

	router := httpx.NewRouter(log.Named("http"))
	(&httpx.OrdersHandler{Orders: svc, Cache: redisx.NewCache(rdb), Log: log.Named("http")}).Register(router)
	(&httpx.RealtimeHandler{Hub: hub, Log: log.Named("realtime")}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(sctx)
		svc.Wait()        // pending notifications and mail
		prod.Close()      // flush outbox
		prod.WaitClosed() // drain
		return err
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (orders.Store, func(), error) {
	switch cfg.StoreDriver {
	case "sqlite":
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, err
			}
		}
		st, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		log.Info("sqlite store opened", zap.String("path", cfg.SQLitePath))
		return st, func() { _ = st.Close() }, nil
	default:
		pool, err := postgres.Connect(ctx, cfg.PostgresDSN, 0)
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return &postgres.Store{DB: pool}, pool.Close, nil
	}
}
