package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/dmehra2102/storefront-checkout/internal/config"
	orderapp "github.com/dmehra2102/storefront-checkout/internal/order/application"
	orderdomain "github.com/dmehra2102/storefront-checkout/internal/order/domain"
	orderbolt "github.com/dmehra2102/storefront-checkout/internal/order/infrastructure/bolt"
	"github.com/dmehra2102/storefront-checkout/internal/order/infrastructure/fallback"
	orderkafka "github.com/dmehra2102/storefront-checkout/internal/order/infrastructure/kafka"
	orderpg "github.com/dmehra2102/storefront-checkout/internal/order/infrastructure/postgres"
	payapp "github.com/dmehra2102/storefront-checkout/internal/payment/application"
	paymentkafka "github.com/dmehra2102/storefront-checkout/internal/payment/infrastructure/kafka"
	"github.com/dmehra2102/storefront-checkout/pkg/httpclient"
	"github.com/dmehra2102/storefront-checkout/pkg/idempotency"
	"github.com/dmehra2102/storefront-checkout/pkg/logging"
	"github.com/dmehra2102/storefront-checkout/pkg/outbox"
	"github.com/dmehra2102/storefront-checkout/pkg/shutdown"
	"github.com/dmehra2102/storefront-checkout/pkg/tracing"
)

// payment-worker applies provider status webhooks to orders and relays the order
// outbox. It keeps its own reconciliation journal file.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel)

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	tp, err := tracing.Init(ctx, "payment-worker", cfg.TracingEndpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Error("pg connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	idem := idempotency.NewStore(rdb, cfg.IdempotencyTTL)

	journal, err := orderbolt.Open(cfg.JournalPath)
	if err != nil {
		log.Error("reconciliation journal open failed", "path", cfg.JournalPath, "err", err)
		os.Exit(1)
	}

	// Outbox relay
	writer := orderkafka.NewWriter(cfg.KafkaBrokers)
	dispatch := outbox.NewDispatcher(log, writer, cfg.Topics.Orders).
		Route(orderdomain.EventOrderPaymentStatusChanged, cfg.Topics.PaymentChanges)
	relay := outbox.NewRelay(log, orderpg.NewOutboxStore(log, pool), dispatch, "payment-worker-relay")
	go func() {
		if err := relay.Run(ctx); err != nil {
			log.Error("relay stopped", "err", err)
		}
	}()

	fallbackOrders := fallback.NewClient(log, httpclient.New(log, "fallback-orders", cfg.Collaborators.FallbackOrders, httpclient.Options{
		Timeout:          cfg.Breaker.Timeout,
		FailureThreshold: cfg.Breaker.FailureThreshold,
		OpenFor:          cfg.Breaker.OpenFor,
	}))
	assembler := orderapp.NewAssembler(log, orderpg.NewRepository(log, pool), fallbackOrders, journal)
	webhooks := payapp.NewWebhookService(log, assembler)

	reader := paymentkafka.NewReader(cfg.KafkaBrokers, cfg.Topics.PaymentStatus, cfg.Topics.ConsumerGroup)
	consumer := paymentkafka.NewConsumer(log, reader, webhooks, idem)
	go func() {
		if err := consumer.Run(ctx); err != nil {
			log.Error("consumer stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdown.Drain(log, cfg.ShutdownTimeout,
		shutdown.Step{Name: "kafka", Fn: func(context.Context) error { return writer.Close() }},
		shutdown.Step{Name: "journal", Fn: func(context.Context) error { return journal.Close() }},
		shutdown.Step{Name: "redis", Fn: func(context.Context) error { return rdb.Close() }},
		shutdown.Step{Name: "tracing", Fn: tp.Shutdown},
	)
	log.Info("payment-worker shutdown")
}
