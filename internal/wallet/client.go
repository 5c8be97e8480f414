// Package wallet sends settlement payouts to the shop wallet service.
package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"fulfillment-be/internal/httpclient"
	"fulfillment-be/internal/logger"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const serviceName = "wallet"

const (
	TypeOrderSettlement = "ORDER_SETTLEMENT"
	StatusSuccess       = "SUCCESS"
)

// PaymentRequest is one payout to a shop wallet. TransactionID is the
// wallet's idempotency key.
type PaymentRequest struct {
	Type          string
	Amount        decimal.Decimal
	ShopID        string
	Description   string
	Status        string
	TransactionID string
	CreatedBy     string
}

type paymentBody struct {
	Type          string      `json:"type"`
	Amount        json.Number `json:"amount"`
	ShopID        string      `json:"shopId"`
	Description   string      `json:"description"`
	Status        string      `json:"status"`
	TransactionID string      `json:"transactionId"`
	CreatedBy     string      `json:"createdBy"`
}

type Client struct {
	http *httpclient.Client
}

func New(baseURL string, opts ...httpclient.Option) *Client {
	return &Client{http: httpclient.New(serviceName, baseURL, opts...)}
}

// RequestPayment posts req to the wallet. Any 2xx is success.
func (c *Client) RequestPayment(ctx context.Context, req PaymentRequest) error {
	log := logger.FromCtx(ctx).With(
		zap.String("transaction_id", req.TransactionID),
		zap.String("shop_id", req.ShopID),
		zap.String("amount", req.Amount.StringFixed(2)),
	)

	body := paymentBody{
		Type:          req.Type,
		Amount:        json.Number(req.Amount.StringFixed(2)),
		ShopID:        req.ShopID,
		Description:   req.Description,
		Status:        req.Status,
		TransactionID: req.TransactionID,
		CreatedBy:     req.CreatedBy,
	}

	log.Info("sending wallet payment request")

	if err := c.http.Do(ctx, http.MethodPost, "/shop-wallet", body, nil); err != nil {
		return fmt.Errorf("wallet: payment %s: %w", req.TransactionID, err)
	}

	log.Info("wallet payment accepted")
	return nil
}
