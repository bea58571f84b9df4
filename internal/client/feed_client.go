package client

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yourorg/exchange-aggregator/internal/model"
)

// maintenanceMarker is the literal root text feed hosts publish while
// their export is down for maintenance.
const maintenanceMarker = "Техническое обслуживание"

const defaultFeedTimeout = 5 * time.Second

// Fetch failure taxonomy. The sync task maps each to an exchanger
// status transition and never propagates them further.
var (
	// ErrRobotCheck means the feed host answered with a non-XML
	// content type, typically an anti-bot challenge page.
	ErrRobotCheck = errors.New("feed host is challenging the client")
	// ErrMaintenance means the feed root text is the maintenance marker
	ErrMaintenance = errors.New("feed is in a maintenance window")
	// ErrTimeout means the host did not answer within the exchanger's
	// configured timeout.
	ErrTimeout = errors.New("feed fetch timed out")
)

var xmlContentType = regexp.MustCompile(`^[a-zA-Z]+/xml`)

// HTTPDoer is the interface for performing HTTP requests
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// FeedClient downloads exchanger rate feeds
type FeedClient struct {
	httpClient     HTTPDoer
	defaultTimeout time.Duration
	logger         *zap.Logger
}

// NewFeedClient creates a feed client. A zero defaultTimeout falls back
// to 5 seconds.
func NewFeedClient(httpClient HTTPDoer, defaultTimeout time.Duration, logger *zap.Logger) *FeedClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if defaultTimeout <= 0 {
		defaultTimeout = defaultFeedTimeout
	}
	return &FeedClient{
		httpClient:     httpClient,
		defaultTimeout: defaultTimeout,
		logger:         logger,
	}
}

// Fetch retrieves the exchanger's XML feed body. Failures are one of
// ErrRobotCheck, ErrTimeout, ErrMaintenance or a generic fetch error.
func (c *FeedClient) Fetch(ctx context.Context, exchanger *model.Exchanger) (string, error) {
	timeout := c.defaultTimeout
	if exchanger.TimeoutSec > 0 {
		timeout = time.Duration(exchanger.TimeoutSec) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, exchanger.FeedURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "ExchangeAggregator/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return "", ErrTimeout
		}
		return "", fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	if !xmlContentType.MatchString(contentType) {
		c.logger.Warn("Feed answered with non-XML content type",
			zap.String("url", exchanger.FeedURL),
			zap.String("content_type", contentType))
		return "", ErrRobotCheck
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return "", ErrTimeout
		}
		return "", fmt.Errorf("failed to read feed body: %w", err)
	}

	text := string(body)
	if rootText(text) == maintenanceMarker {
		return "", ErrMaintenance
	}
	return text, nil
}

// rootText returns the character data directly under the feed's root
// element, up to the first child element.
func rootText(body string) string {
	dec := xml.NewDecoder(strings.NewReader(body))
	depth := 0
	var text strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth > 1 {
				return strings.TrimSpace(text.String())
			}
		case xml.CharData:
			if depth == 1 {
				text.Write(t)
			}
		case xml.EndElement:
			if depth == 1 {
				return strings.TrimSpace(text.String())
			}
		}
	}
	return strings.TrimSpace(text.String())
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
