package postgres

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/storefront-checkout/internal/payment/domain"
)

// AttemptRepository is the payment attempt audit trail. Only masked card data is stored.
type AttemptRepository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewAttemptRepository(log *slog.Logger, pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{log: log, pool: pool}
}

func (r *AttemptRepository) Record(ctx context.Context, a domain.Attempt) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO payment_attempts
			(idempotency_key, session_id, method, amount_minor, provider_tx_id, status, masked_card, reason, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		a.IdempotencyKey, a.SessionID, string(a.Method), a.AmountMinor, a.ProviderTxID, a.Status, a.MaskedCard, a.Reason, a.CreatedAt)
	return err
}

func (r *AttemptRepository) ListBySession(ctx context.Context, sessionID string) ([]domain.Attempt, error) {
	rows, err := r.pool.Query(ctx, `SELECT idempotency_key, session_id, method, amount_minor, provider_tx_id, status, masked_card, reason, created_at
			FROM payment_attempts WHERE session_id=$1 ORDER BY created_at, id`, sessionID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Attempt, error) {
		var a domain.Attempt
		var method string
		err := row.Scan(&a.IdempotencyKey, &a.SessionID, &method, &a.AmountMinor, &a.ProviderTxID, &a.Status, &a.MaskedCard, &a.Reason, &a.CreatedAt)
		a.Method = domain.Method(method)
		return a, err
	})
}
