package wallet

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"

	"fulfillment-be/internal/apperror"
	"fulfillment-be/internal/httpclient"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockRoundTripper func(req *http.Request) *http.Response

func (f MockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req), nil
}

func TestClient_RequestPayment(t *testing.T) {
	req := PaymentRequest{
		Type:          TypeOrderSettlement,
		Amount:        decimal.NewFromInt(900000),
		ShopID:        "shop-1",
		Description:   "settlement ORD-1 fee 100000.00",
		Status:        StatusSuccess,
		TransactionID: "order-1",
		CreatedBy:     "system",
	}

	t.Run("Success", func(t *testing.T) {
		calls := 0
		c := New("https://wallet.example.com", httpclient.WithTransport(MockRoundTripper(func(r *http.Request) *http.Response {
			calls++
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "https://wallet.example.com/shop-wallet", r.URL.String())

			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			assert.JSONEq(t, `{
				"type": "ORDER_SETTLEMENT",
				"amount": 900000.00,
				"shopId": "shop-1",
				"description": "settlement ORD-1 fee 100000.00",
				"status": "SUCCESS",
				"transactionId": "order-1",
				"createdBy": "system"
			}`, string(body))

			return &http.Response{StatusCode: http.StatusNoContent, Body: io.NopCloser(bytes.NewReader(nil)), Header: make(http.Header)}
		})))

		require.NoError(t, c.RequestPayment(context.Background(), req))
		assert.Equal(t, 1, calls)
	})

	t.Run("Rejected", func(t *testing.T) {
		c := New("https://wallet.example.com", httpclient.WithTransport(MockRoundTripper(func(r *http.Request) *http.Response {
			return &http.Response{
				StatusCode: http.StatusUnprocessableEntity,
				Body:       io.NopCloser(bytes.NewBufferString(`{"message":"shop wallet locked"}`)),
				Header:     make(http.Header),
			}
		})))

		err := c.RequestPayment(context.Background(), req)
		assert.ErrorIs(t, err, apperror.ErrExternalUnavailable)
		assert.Contains(t, err.Error(), "order-1")
	})
}
