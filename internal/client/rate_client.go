package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const defaultRateSourceBaseURL = "https://api.coinbase.com/v2"

// RateClient fetches reference spot prices from the Coinbase public API
type RateClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewRateClient creates a reference-rate client
func NewRateClient(baseURL string, timeout time.Duration, logger *zap.Logger) *RateClient {
	if baseURL == "" {
		baseURL = defaultRateSourceBaseURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RateClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type spotPriceResponse struct {
	Data struct {
		Amount string `json:"amount"`
	} `json:"data"`
}

// GetSpotPrice returns the reference spot rate for a currency pair,
// retrying transient failures with exponential backoff. USDT variants
// (USDTTRC20, USDTERC20, ...) are normalized to plain USDT before the
// request.
func (c *RateClient) GetSpotPrice(ctx context.Context, from, to string) (decimal.Decimal, error) {
	from = normalizeRateCode(from)
	to = normalizeRateCode(to)
	reqURL := fmt.Sprintf("%s/prices/%s-%s/spot", c.baseURL, from, to)

	var price decimal.Decimal
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			// The pair is not quoted by the source, retrying is futile
			return backoff.Permanent(fmt.Errorf("pair %s-%s is not quoted", from, to))
		}
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("rate source returned status %d: %s", resp.StatusCode, string(body))
		}

		var parsed spotPriceResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode spot price: %w", err))
		}

		price, err = decimal.NewFromString(parsed.Data.Amount)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("unparsable spot price %q: %w", parsed.Data.Amount, err))
		}
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(operation, b); err != nil {
		c.logger.Debug("Failed to fetch spot price",
			zap.String("from", from),
			zap.String("to", to),
			zap.Error(err))
		return decimal.Zero, err
	}
	return price, nil
}

// normalizeRateCode maps internal currency codes onto codes the rate
// source quotes: network-specific stablecoin variants collapse to the
// base asset, CASH-prefixed fiat codes drop the prefix.
func normalizeRateCode(code string) string {
	switch {
	case strings.HasPrefix(code, "USDT"):
		return "USDT"
	case strings.HasPrefix(code, "USDC"):
		return "USDC"
	case strings.HasPrefix(code, "CASH"):
		return strings.TrimPrefix(code, "CASH")
	}
	return code
}
