package postgres

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	checkout "github.com/dmehra2102/storefront-checkout/internal/checkout/domain"
	"github.com/dmehra2102/storefront-checkout/internal/order/domain"
	"github.com/dmehra2102/storefront-checkout/pkg/outbox"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) SaveWithOutbox(ctx context.Context, o domain.Order, msg outbox.Message) (string, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	coupons := o.Coupons
	if coupons == nil {
		coupons = []checkout.AppliedCoupon{}
	}

	var id string
	err = tx.QueryRow(ctx, `INSERT INTO orders (id, session_id, provider_tx_id, payment_method, payment_status, payment,
				customer, address, coupons, freight, subtotal_minor, discount_minor, shipping_minor, total_minor,
				currency, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
			ON CONFLICT (provider_tx_id) DO NOTHING
			RETURNING id`,
		o.ID, o.SessionID, o.Payment.ProviderTxID, string(o.Payment.Method), o.Payment.Status, o.Payment,
		o.Customer, o.Address, coupons, o.Freight, o.SubtotalMinor, o.DiscountMinor, o.ShippingMinor, o.TotalMinor,
		o.Currency, o.CreatedAt, o.UpdatedAt).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		// The provider transaction already has an order.
		if err := tx.QueryRow(ctx, `SELECT id FROM orders WHERE provider_tx_id=$1`, o.Payment.ProviderTxID).Scan(&id); err != nil {
			return "", err
		}
		r.log.Info("order already recorded for provider transaction", "order_id", id, "tx_id", o.Payment.ProviderTxID)
		return id, tx.Commit(ctx)
	}
	if err != nil {
		return "", err
	}

	batch := &pgx.Batch{}
	for _, l := range o.Lines {
		batch.Queue(`INSERT INTO order_items (order_id, product_id, variant, name, unit_price_minor, quantity, weight_grams)
            VALUES ($1,$2,$3,$4,$5,$6,$7)
            ON CONFLICT (order_id, product_id, variant) DO UPDATE SET quantity=order_items.quantity+$6`,
			o.ID, l.ProductID, l.Variant, l.Name, l.UnitPriceMinor, l.Quantity, l.WeightGrams)
	}
	if err = tx.SendBatch(ctx, batch).Close(); err != nil {
		return "", err
	}

	if err = insertOutbox(ctx, tx, msg); err != nil {
		return "", err
	}
	if err = tx.Commit(ctx); err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) UpdatePaymentStatus(ctx context.Context, providerTxID, status string, msg outbox.Message) (string, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var id string
	err = tx.QueryRow(ctx, `UPDATE orders
			SET payment_status=$2, payment=jsonb_set(payment, '{status}', to_jsonb($2::text)), updated_at=$3
			WHERE provider_tx_id=$1
			RETURNING id`, providerTxID, status, time.Now().UTC()).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.ErrOrderNotFound
	}
	if err != nil {
		return "", err
	}

	msg.AggregateID = id
	if err = insertOutbox(ctx, tx, msg); err != nil {
		return "", err
	}
	if err = tx.Commit(ctx); err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) GetByProviderTx(ctx context.Context, providerTxID string) (domain.Order, error) {
	var o domain.Order
	err := r.pool.QueryRow(ctx, `SELECT id, session_id, payment, customer, address, coupons, freight,
			subtotal_minor, discount_minor, shipping_minor, total_minor, currency, created_at, updated_at
			FROM orders WHERE provider_tx_id=$1`, providerTxID).
		Scan(&o.ID, &o.SessionID, &o.Payment, &o.Customer, &o.Address, &o.Coupons, &o.Freight,
			&o.SubtotalMinor, &o.DiscountMinor, &o.ShippingMinor, &o.TotalMinor, &o.Currency, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, err
	}

	rows, err := r.pool.Query(ctx, `SELECT product_id, variant, name, unit_price_minor, quantity, weight_grams
			FROM order_items WHERE order_id=$1 ORDER BY product_id, variant`, o.ID)
	if err != nil {
		return domain.Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l checkout.CartLine
		if err := rows.Scan(&l.ProductID, &l.Variant, &l.Name, &l.UnitPriceMinor, &l.Quantity, &l.WeightGrams); err != nil {
			return domain.Order{}, err
		}
		o.Lines = append(o.Lines, l)
	}
	return o, rows.Err()
}

func insertOutbox(ctx context.Context, tx pgx.Tx, msg outbox.Message) error {
	headers := msg.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	_, err := tx.Exec(ctx, `INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, headers, traceparent, status)
			VALUES ($1,$2,$3,$4,$5,$6,'pending')`,
		msg.AggregateType, msg.AggregateID, msg.Type, msg.Payload, headers, msg.Traceparent)
	return err
}
