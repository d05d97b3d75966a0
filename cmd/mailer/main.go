package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-bookstore-orders/internal/config"
	kafkax "github.com/ariefcatur/go-bookstore-orders/internal/kafka"
	"github.com/ariefcatur/go-bookstore-orders/internal/logging"
	"github.com/ariefcatur/go-bookstore-orders/internal/mail"
	"github.com/ariefcatur/go-bookstore-orders/internal/orders"
	"github.com/ariefcatur/go-bookstore-orders/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logging.New(cfg.LogLevel, cfg.ServiceName+"-mailer")
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis for dedup
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	h := mail.NewHandler(redisx.NewCache(rdb), mail.LogSender{Log: log.Named("sender")}, cfg.MailerGroup, log.Named("mail"))
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.MailerGroup, orders.TopicOrderMail, cfg.MailerWorkers, log.Named("kafka"))

	log.Info("mailer consumer started",
		zap.String("group", cfg.MailerGroup),
		zap.String("topic", orders.TopicOrderMail),
		zap.Int("workers", cfg.MailerWorkers))
	if err := cons.Start(ctx, h.Handle); err != nil {
		log.Error("consumer exit", zap.Error(err))
		return
	}
	log.Info("mailer stopped")
}
