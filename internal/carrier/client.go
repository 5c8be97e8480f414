// Package carrier queries the delivery carrier's parcel tracking API.
package carrier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fulfillment-be/internal/httpclient"
	"fulfillment-be/internal/logger"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const serviceName = "carrier"

type Client struct {
	http    *httpclient.Client
	limiter *rate.Limiter
}

// New builds a carrier client that issues at most one call per interval. A
// non-positive interval disables pacing.
func New(baseURL string, interval time.Duration, opts ...httpclient.Option) *Client {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Client{
		http:    httpclient.New(serviceName, baseURL, opts...),
		limiter: rate.NewLimiter(limit, 1),
	}
}

// GetOrderLog fetches the tracking history for trackingCode. A nil log with a
// nil error means the carrier has no answer for this code yet.
func (c *Client) GetOrderLog(ctx context.Context, trackingCode string) (*OrderLog, error) {
	trackingCode = strings.TrimSpace(trackingCode)
	if trackingCode == "" {
		return nil, errors.New("carrier: tracking code is required")
	}

	log := logger.FromCtx(ctx).With(zap.String("tracking_code", trackingCode))

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var res orderLogResponse
	err := c.http.Do(ctx, http.MethodGet, "/deliveries/order-log/"+url.PathEscape(trackingCode), nil, &res)
	if err != nil {
		var se *httpclient.StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			log.Info("carrier has no log for tracking code")
			return nil, nil
		}
		return nil, fmt.Errorf("carrier: get order log %s: %w", trackingCode, err)
	}

	if !res.Success {
		log.Info("carrier responded without success")
		return nil, nil
	}

	log.Debug("carrier log fetched", zap.Int("entries", len(res.Data.Logs)))
	return &res.Data, nil
}
