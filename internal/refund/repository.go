package refund

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"fulfillment-be/internal/logger"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

type Repository interface {
	Create(ctx context.Context, r *RefundRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*RefundRequest, error)
	Save(ctx context.Context, r *RefundRequest) error
	FindTrackable(ctx context.Context, statuses []Status, limit int) ([]*RefundRequest, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const refundColumns = `
	id, order_id, requester_id, status,
	refund_amount, shipping_fee, total_amount,
	tracking_code, processor_id, processed_at, actual_delivery_at,
	created_at, updated_at, updated_by, version`

const detailColumns = `id, refund_id, order_item_id, reason, evidence_image, unit_price`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRefund(row rowScanner) (*RefundRequest, error) {
	var r RefundRequest
	err := row.Scan(
		&r.ID, &r.OrderID, &r.RequesterID, &r.Status,
		&r.RefundAmount, &r.ShippingFee, &r.TotalAmount,
		&r.TrackingCode, &r.ProcessorID, &r.ProcessedAt, &r.ActualDeliveryAt,
		&r.CreatedAt, &r.UpdatedAt, &r.UpdatedBy, &r.Version,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (repo *repository) Create(ctx context.Context, r *RefundRequest) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("refund_id", r.ID.String()),
	)

	tx, err := repo.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO refund_requests (`+refundColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`,
		r.ID, r.OrderID, r.RequesterID, r.Status,
		r.RefundAmount, r.ShippingFee, r.TotalAmount,
		r.TrackingCode, r.ProcessorID, r.ProcessedAt, r.ActualDeliveryAt,
		r.CreatedAt, r.UpdatedAt, r.UpdatedBy, r.Version,
	)
	if err != nil {
		log.Error("failed to insert refund", zap.Error(err))
		return err
	}

	if err := insertDetails(ctx, tx, r.Details); err != nil {
		log.Error("failed to insert refund details", zap.Error(err))
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	r.detailsDirty = false
	return nil
}

func (repo *repository) GetByID(ctx context.Context, id uuid.UUID) (*RefundRequest, error) {
	r, err := scanRefund(repo.db.QueryRowContext(ctx, `SELECT `+refundColumns+` FROM refund_requests WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRefundNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := repo.db.QueryContext(ctx, `SELECT `+detailColumns+` FROM refund_details WHERE refund_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var d RefundDetail
		if err := rows.Scan(&d.ID, &d.RefundID, &d.OrderItemID, &d.Reason, &d.EvidenceImage, &d.UnitPrice); err != nil {
			return nil, err
		}
		r.Details = append(r.Details, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return r, nil
}

func (repo *repository) Save(ctx context.Context, r *RefundRequest) error {
	tx, err := repo.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE refund_requests SET
			status = $3, refund_amount = $4, total_amount = $5,
			tracking_code = $6, processor_id = $7, processed_at = $8, actual_delivery_at = $9,
			updated_at = $10, updated_by = $11,
			version = version + 1
		WHERE id = $1 AND version = $2
	`,
		r.ID, r.Version,
		r.Status, r.RefundAmount, r.TotalAmount,
		r.TrackingCode, r.ProcessorID, r.ProcessedAt, r.ActualDeliveryAt,
		r.UpdatedAt, r.UpdatedBy,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s at version %d", ErrStaleVersion, r.ID, r.Version)
	}

	if r.detailsDirty {
		if _, err := tx.ExecContext(ctx, `DELETE FROM refund_details WHERE refund_id = $1`, r.ID); err != nil {
			return err
		}
		if err := insertDetails(ctx, tx, r.Details); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	r.Version++
	r.detailsDirty = false
	return nil
}

func insertDetails(ctx context.Context, tx *sql.Tx, details []RefundDetail) error {
	for i, d := range details {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO refund_details (`+detailColumns+`, position)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, d.ID, d.RefundID, d.OrderItemID, d.Reason, d.EvidenceImage, d.UnitPrice, i)
		if err != nil {
			return err
		}
	}
	return nil
}

// FindTrackable returns refund headers in the given statuses that carry a
// tracking code, oldest update first.
func (repo *repository) FindTrackable(ctx context.Context, statuses []Status, limit int) ([]*RefundRequest, error) {
	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}

	rows, err := repo.db.QueryContext(ctx, `
		SELECT `+refundColumns+`
		FROM refund_requests
		WHERE status = ANY($1) AND tracking_code IS NOT NULL AND tracking_code <> ''
		ORDER BY updated_at ASC
		LIMIT $2
	`, pq.Array(values), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refunds []*RefundRequest
	for rows.Next() {
		r, err := scanRefund(rows)
		if err != nil {
			return nil, err
		}
		refunds = append(refunds, r)
	}
	return refunds, rows.Err()
}
