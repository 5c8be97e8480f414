package order

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"fulfillment-be/internal/logger"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	// Save persists status, money, timestamps and (when changed) items. It
	// fails with ErrStaleVersion when another writer saved first.
	Save(ctx context.Context, o *Order) error

	FindByStatusCreatedBefore(ctx context.Context, status Status, before time.Time, limit int) ([]*Order, error)
	FindShippedBefore(ctx context.Context, before time.Time, limit int) ([]*Order, error)
	FindDeliveredBefore(ctx context.Context, before time.Time, limit int) ([]*Order, error)
	FindTrackable(ctx context.Context, statuses []Status, limit int) ([]*Order, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const orderColumns = `
	id, code, customer_id, shop_id, status, payment_status, payment_method,
	subtotal, shipping_fee, discount, final_amount, commission_rate, commission_fee, net_amount,
	from_address, to_address, tracking_code,
	created_at, estimated_delivery_at, shipped_at, actual_delivery_at, completed_at, cancelled_at,
	updated_at, updated_by, deleted_at, version`

const itemColumns = `id, order_id, product_id, variant_id, quantity, unit_price, discount, total_price`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*Order, error) {
	var (
		o        Order
		from, to []byte
	)
	err := row.Scan(
		&o.ID, &o.Code, &o.CustomerID, &o.ShopID, &o.Status, &o.PaymentStatus, &o.PaymentMethod,
		&o.Subtotal, &o.ShippingFee, &o.Discount, &o.FinalAmount, &o.CommissionRate, &o.CommissionFee, &o.NetAmount,
		&from, &to, &o.TrackingCode,
		&o.CreatedAt, &o.EstimatedDeliveryAt, &o.ShippedAt, &o.ActualDeliveryAt, &o.CompletedAt, &o.CancelledAt,
		&o.UpdatedAt, &o.UpdatedBy, &o.DeletedAt, &o.Version,
	)
	if err != nil {
		return nil, err
	}
	if err := unmarshalAddress(from, &o.FromAddress); err != nil {
		return nil, fmt.Errorf("decode from_address: %w", err)
	}
	if err := unmarshalAddress(to, &o.ToAddress); err != nil {
		return nil, fmt.Errorf("decode to_address: %w", err)
	}
	return &o, nil
}

func unmarshalAddress(raw []byte, dst *Address) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func (r *repository) Create(ctx context.Context, o *Order) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("order_id", o.ID.String()),
	)

	from, err := json.Marshal(o.FromAddress)
	if err != nil {
		return err
	}
	to, err := json.Marshal(o.ToAddress)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27)
	`,
		o.ID, o.Code, o.CustomerID, o.ShopID, o.Status, o.PaymentStatus, o.PaymentMethod,
		o.Subtotal, o.ShippingFee, o.Discount, o.FinalAmount, o.CommissionRate, o.CommissionFee, o.NetAmount,
		from, to, o.TrackingCode,
		o.CreatedAt, o.EstimatedDeliveryAt, o.ShippedAt, o.ActualDeliveryAt, o.CompletedAt, o.CancelledAt,
		o.UpdatedAt, o.UpdatedBy, o.DeletedAt, o.Version,
	)
	if err != nil {
		log.Error("failed to insert order", zap.Error(err))
		return err
	}

	if err := insertItems(ctx, tx, o.Items); err != nil {
		log.Error("failed to insert order items", zap.Error(err))
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	o.itemsDirty = false
	return nil
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 AND deleted_at IS NULL`, id)

	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM order_items WHERE order_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(
			&it.ID, &it.OrderID, &it.ProductID, &it.VariantID,
			&it.Quantity, &it.UnitPrice, &it.Discount, &it.TotalPrice,
		); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return o, nil
}

func (r *repository) Save(ctx context.Context, o *Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE orders SET
			status = $3, payment_status = $4,
			subtotal = $5, final_amount = $6, commission_fee = $7, net_amount = $8,
			tracking_code = $9, shipped_at = $10, actual_delivery_at = $11,
			completed_at = $12, cancelled_at = $13,
			updated_at = $14, updated_by = $15, deleted_at = $16,
			version = version + 1
		WHERE id = $1 AND version = $2
	`,
		o.ID, o.Version,
		o.Status, o.PaymentStatus,
		o.Subtotal, o.FinalAmount, o.CommissionFee, o.NetAmount,
		o.TrackingCode, o.ShippedAt, o.ActualDeliveryAt,
		o.CompletedAt, o.CancelledAt,
		o.UpdatedAt, o.UpdatedBy, o.DeletedAt,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s at version %d", ErrStaleVersion, o.ID, o.Version)
	}

	if o.itemsDirty {
		if _, err := tx.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = $1`, o.ID); err != nil {
			return err
		}
		if err := insertItems(ctx, tx, o.Items); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	o.Version++
	o.itemsDirty = false
	return nil
}

func insertItems(ctx context.Context, tx *sql.Tx, items []OrderItem) error {
	for i, it := range items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (`+itemColumns+`, position)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`,
			it.ID, it.OrderID, it.ProductID, it.VariantID,
			it.Quantity, it.UnitPrice, it.Discount, it.TotalPrice, i,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repository) FindByStatusCreatedBefore(ctx context.Context, status Status, before time.Time, limit int) ([]*Order, error) {
	return r.find(ctx, `status = $1 AND created_at < $2`, `created_at`, limit, status, before)
}

func (r *repository) FindShippedBefore(ctx context.Context, before time.Time, limit int) ([]*Order, error) {
	return r.find(ctx, `status = $1 AND shipped_at < $2`, `shipped_at`, limit, StatusShipped, before)
}

func (r *repository) FindDeliveredBefore(ctx context.Context, before time.Time, limit int) ([]*Order, error) {
	return r.find(ctx, `status = $1 AND actual_delivery_at < $2`, `actual_delivery_at`, limit, StatusDelivered, before)
}

func (r *repository) FindTrackable(ctx context.Context, statuses []Status, limit int) ([]*Order, error) {
	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}
	return r.find(ctx, `status = ANY($1) AND tracking_code IS NOT NULL AND tracking_code <> ''`, `updated_at`, limit, pq.Array(values))
}

// find loads order headers only; items are fetched by GetByID.
func (r *repository) find(ctx context.Context, where, orderBy string, limit int, args ...any) ([]*Order, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + orderColumns + ` FROM orders WHERE deleted_at IS NULL AND ` + where)
	sb.WriteString(` ORDER BY ` + orderBy + ` ASC`)
	args = append(args, limit)
	sb.WriteString(fmt.Sprintf(` LIMIT $%d`, len(args)))

	rows, err := r.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}
