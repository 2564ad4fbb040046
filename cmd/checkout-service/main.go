package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/dmehra2102/storefront-checkout/internal/checkout/application"
	checkouthttp "github.com/dmehra2102/storefront-checkout/internal/checkout/infrastructure/http"
	checkoutkafka "github.com/dmehra2102/storefront-checkout/internal/checkout/infrastructure/kafka"
	"github.com/dmehra2102/storefront-checkout/internal/checkout/infrastructure/provider"
	checkoutredis "github.com/dmehra2102/storefront-checkout/internal/checkout/infrastructure/redis"
	"github.com/dmehra2102/storefront-checkout/internal/config"
	orderapp "github.com/dmehra2102/storefront-checkout/internal/order/application"
	orderdomain "github.com/dmehra2102/storefront-checkout/internal/order/domain"
	orderbolt "github.com/dmehra2102/storefront-checkout/internal/order/infrastructure/bolt"
	"github.com/dmehra2102/storefront-checkout/internal/order/infrastructure/fallback"
	orderhttp "github.com/dmehra2102/storefront-checkout/internal/order/infrastructure/http"
	orderkafka "github.com/dmehra2102/storefront-checkout/internal/order/infrastructure/kafka"
	orderpg "github.com/dmehra2102/storefront-checkout/internal/order/infrastructure/postgres"
	payapp "github.com/dmehra2102/storefront-checkout/internal/payment/application"
	paymentpg "github.com/dmehra2102/storefront-checkout/internal/payment/infrastructure/postgres"
	payprovider "github.com/dmehra2102/storefront-checkout/internal/payment/infrastructure/provider"
	"github.com/dmehra2102/storefront-checkout/pkg/httpclient"
	"github.com/dmehra2102/storefront-checkout/pkg/idempotency"
	"github.com/dmehra2102/storefront-checkout/pkg/logging"
	"github.com/dmehra2102/storefront-checkout/pkg/outbox"
	"github.com/dmehra2102/storefront-checkout/pkg/shutdown"
	"github.com/dmehra2102/storefront-checkout/pkg/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel)

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	tp, err := tracing.Init(ctx, "checkout-service", cfg.TracingEndpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}

	tenants, err := cfg.TenantSet()
	if err != nil {
		log.Error("tenant config invalid", "err", err)
		os.Exit(1)
	}

	// Postgres Setup
	if err := orderpg.Migrate(cfg.PostgresURL); err != nil {
		log.Error("migrations failed", "err", err)
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
	redeemed := checkoutredis.NewRedeemedCoupons(rdb, cfg.RedeemedTTL)

	journal, err := orderbolt.Open(cfg.JournalPath)
	if err != nil {
		log.Error("reconciliation journal open failed", "path", cfg.JournalPath, "err", err)
		os.Exit(1)
	}

	// Kafka producer shared by the outbox relay and the checkout publisher
	writer := orderkafka.NewWriter(cfg.KafkaBrokers)

	store := orderpg.NewOutboxStore(log, pool)
	dispatch := outbox.NewDispatcher(log, writer, cfg.Topics.Orders).
		Route(orderdomain.EventOrderPaymentStatusChanged, cfg.Topics.PaymentChanges)
	relay := outbox.NewRelay(log, store, dispatch, "checkout-service-relay")

	// Collaborators
	opts := httpclient.Options{
		Timeout:          cfg.Breaker.Timeout,
		FailureThreshold: cfg.Breaker.FailureThreshold,
		OpenFor:          cfg.Breaker.OpenFor,
	}
	payments := payprovider.NewClient(log, httpclient.New(log, "payments", cfg.Collaborators.Payments, opts))
	postal := provider.NewPostalClient(log, httpclient.New(log, "postal", cfg.Collaborators.Postal, opts))
	freight := provider.NewFreightClient(log, httpclient.New(log, "freight", cfg.Collaborators.Freight, opts))
	coupons := provider.NewCouponClient(log, httpclient.New(log, "coupons", cfg.Collaborators.Coupons, opts))
	fallbackOrders := fallback.NewClient(log, httpclient.New(log, "fallback-orders", cfg.Collaborators.FallbackOrders, opts))

	attempts := paymentpg.NewAttemptRepository(log, pool)
	gateway := payapp.NewGateway(log, payments, attempts)
	assembler := orderapp.NewAssembler(log, orderpg.NewRepository(log, pool), fallbackOrders, journal)
	publisher := checkoutkafka.NewPublisher(log, writer, checkoutkafka.Topics{
		Recovery:      cfg.Topics.Recovery,
		Notifications: cfg.Topics.Notifications,
		CartCommands:  cfg.Topics.CartCommands,
	})

	watcherCfg := payapp.WatcherConfig{
		Interval:    cfg.Watcher.Interval,
		SettleDelay: cfg.Watcher.SettleDelay,
		MaxWait:     cfg.Watcher.MaxWait,
	}
	registry := application.NewRegistry(log, application.Deps{
		Gateway:  gateway,
		Orders:   assembler,
		Postal:   postal,
		Freight:  freight,
		Coupons:  coupons,
		Redeemed: redeemed,
		Recovery: publisher,
		Notify:   publisher,
		Cart:     publisher,
		Guard:    idem,
		NewWatcher: func() application.PaymentWatcher {
			return payapp.NewWatcher(log, payments, watcherCfg)
		},
	}).WithRetention(application.Retention{Settled: cfg.Sessions.Retention, MaxAge: cfg.Sessions.MaxAge})

	// HTTP server
	r := chi.NewRouter()
	r.Mount("/checkout", checkouthttp.NewHandler(log, registry, tenants, attempts, redeemed).Routes())
	r.Mount("/orders", orderhttp.NewHandler(log, assembler).Routes())
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      otelhttp.NewHandler(r, "checkout-service"),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// gRPC health
	lis, err := net.Listen("tcp", cfg.HealthAddr)
	if err != nil {
		log.Error("health listen failed", "addr", cfg.HealthAddr, "err", err)
		os.Exit(1)
	}
	gs := grpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(gs, healthServer)

	go func() {
		if err := relay.Run(ctx); err != nil {
			log.Error("relay stopped with error", "err", err)
		}
	}()
	go reconcile(ctx, log, assembler, cfg.ReconcileInterval)
	go sweep(ctx, log, registry, cfg.Sessions.SweepInterval)

	go func() {
		if err := gs.Serve(lis); err != nil {
			log.Error("health server error", "err", err)
		}
	}()
	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr, "tenants", len(tenants))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "err", err)
			cancel()
		}
	}()
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	<-ctx.Done()

	shutdown.Drain(log, cfg.ShutdownTimeout,
		shutdown.Step{Name: "health", Fn: func(context.Context) error {
			healthServer.Shutdown()
			return nil
		}},
		shutdown.Step{Name: "http", Fn: srv.Shutdown},
		shutdown.Step{Name: "sessions", Fn: func(context.Context) error {
			registry.CloseAll()
			return nil
		}},
		shutdown.Step{Name: "kafka", Fn: func(context.Context) error { return writer.Close() }},
		shutdown.Step{Name: "journal", Fn: func(context.Context) error { return journal.Close() }},
		shutdown.Step{Name: "redis", Fn: func(context.Context) error { return rdb.Close() }},
		shutdown.Step{Name: "grpc", Fn: func(context.Context) error {
			gs.GracefulStop()
			return nil
		}},
		shutdown.Step{Name: "tracing", Fn: tp.Shutdown},
	)
	log.Info("checkout-service shutdown complete")
}

// reconcile retries journaled orders until ctx is done.
func reconcile(ctx context.Context, log *slog.Logger, a *orderapp.Assembler, every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := a.Reconcile(ctx)
			if err != nil {
				log.Error("reconciliation pass failed", "err", err)
				continue
			}
			if n > 0 {
				log.Info("reconciliation pass", "resolved", n)
			}
		}
	}
}

// sweep drops settled and stale sessions until ctx is done.
func sweep(ctx context.Context, log *slog.Logger, reg *application.Registry, every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := reg.Sweep(); n > 0 {
				log.Info("checkout sessions expired", "count", n, "live", reg.Len())
			}
		}
	}
}
