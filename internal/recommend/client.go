package recommend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/choosewine/choosewine-api/internal/domain"
	"github.com/choosewine/choosewine-api/internal/logger"
)

const maxResponseBody = 1 << 20 // 1 MiB

// Client fetches a user's ranked wine IDs from the recommendation service.
type Client interface {
	RankedWineIDs(ctx context.Context, userID string) ([]string, error)
}

// HTTPClient implements Client over HTTP. It never retries: every failure is
// reported as domain.ErrRecommendationUnavailable.
type HTTPClient struct {
	baseURL *url.URL
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPClient constructs a recommendation client for baseURL.
func NewHTTPClient(baseURL string, timeout time.Duration, log *zap.Logger) (*HTTPClient, error) {
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse recommender url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("parse recommender url: %q is not absolute", baseURL)
	}
	return &HTTPClient{
		baseURL: parsed,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   timeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   timeout,
				ResponseHeaderTimeout: timeout,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
		logger: logger.OrNop(log),
	}, nil
}

// RankedWineIDs calls GET /recommend/{userID} and returns the IDs in rank
// order.
func (c *HTTPClient) RankedWineIDs(ctx context.Context, userID string) ([]string, error) {
	endpoint := c.baseURL.JoinPath("recommend", userID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, unavailable("build request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, unavailable("call recommender", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("recommender: unexpected status",
			zap.Int("status", resp.StatusCode),
			zap.String("user_id", userID),
		)
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))
		return nil, fmt.Errorf("%w: upstream returned %d", domain.ErrRecommendationUnavailable, resp.StatusCode)
	}

	ids, err := decodeIDs(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, unavailable("decode response", err)
	}
	return ids, nil
}

// decodeIDs accepts a bare JSON array of strings, which is what the
// recommendation service returns.
func decodeIDs(r io.Reader) ([]string, error) {
	var ids []string
	if err := json.NewDecoder(r).Decode(&ids); err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrRecommendationUnavailable, op, err)
}
