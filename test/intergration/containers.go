// Package intergration starts the backing services used by the integration-tagged
// tests.
package intergration

import (
	"context"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const startupTimeout = 2 * time.Minute

type Postgres struct {
	C   *postgres.PostgresContainer
	URL string
}

func SetupPostgres(ctx context.Context) (*Postgres, error) {
	ctx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	pgC, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("checkout"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(startupTimeout)),
	)
	if err != nil {
		return nil, err
	}

	pgURL, err := pgC.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = pgC.Terminate(context.Background())
		return nil, err
	}
	return &Postgres{C: pgC, URL: pgURL}, nil
}

func (p *Postgres) Teardown(ctx context.Context) {
	_ = p.C.Terminate(ctx)
}

type Kafka struct {
	C       *kafka.KafkaContainer
	Brokers []string
}

func SetupKafka(ctx context.Context) (*Kafka, error) {
	ctx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	kafkaC, err := kafka.Run(ctx,
		"confluentinc/confluent-local:7.5.0",
		kafka.WithClusterID("checkout-test"),
	)
	if err != nil {
		return nil, err
	}

	brokers, err := kafkaC.Brokers(ctx)
	if err != nil {
		_ = kafkaC.Terminate(context.Background())
		return nil, err
	}
	return &Kafka{C: kafkaC, Brokers: brokers}, nil
}

func (k *Kafka) Teardown(ctx context.Context) {
	_ = k.C.Terminate(ctx)
}
