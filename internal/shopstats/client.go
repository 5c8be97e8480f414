// Package shopstats adjusts per-shop fulfillment statistics.
package shopstats

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"fulfillment-be/internal/httpclient"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const serviceName = "shop-statistics"

type completionRateBody struct {
	ShopID           string      `json:"shopId"`
	RateDeltaPercent json.Number `json:"rateDeltaPercent"`
	ActorID          string      `json:"actorId"`
}

type completionRateResponse struct {
	Success bool `json:"success"`
}

type Client struct {
	http *httpclient.Client
}

func New(baseURL string, opts ...httpclient.Option) *Client {
	return &Client{http: httpclient.New(serviceName, baseURL, opts...)}
}

// AdjustCompletionRate moves the shop's completion rate by deltaPercent
// percentage points and reports whether the service accepted it.
func (c *Client) AdjustCompletionRate(ctx context.Context, shopID uuid.UUID, deltaPercent decimal.Decimal, actor string) (bool, error) {
	body := completionRateBody{
		ShopID:           shopID.String(),
		RateDeltaPercent: json.Number(deltaPercent.String()),
		ActorID:          actor,
	}

	var res completionRateResponse
	if err := c.http.Do(ctx, http.MethodPost, "/shop-statistics/completion-rate", body, &res); err != nil {
		return false, fmt.Errorf("shopstats: completion rate for %s: %w", shopID, err)
	}
	return res.Success, nil
}
