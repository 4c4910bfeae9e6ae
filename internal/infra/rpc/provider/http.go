package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mkral/importer/internal/core/cursor"
	"github.com/mkral/importer/internal/core/domain"
)

// BuildRequestFunc turns an engine Request into a vendor HTTP request.
// The per-vendor URL layout and auth live in the closure, outside this core.
type BuildRequestFunc func(ctx context.Context, endpoint string, req Request) (*http.Request, error)

// DecodeFunc parses a vendor response body into a normalized batch.
type DecodeFunc func(req Request, body []byte) (cursor.Batch, error)

// throttlePatterns are vendor phrasings of "slow down" that arrive with a
// 200 or generic error status instead of a proper 429.
var throttlePatterns = []string{
	"rate limit exceeded",
	"too many requests",
	"daily request count exceeded",
	"project rate limit",
	"monthly quota exceeded",
}

// HTTPProvider adapts a JSON-over-HTTP data source to the Provider
// contract. Vendor specifics are injected as build/decode closures.
type HTTPProvider struct {
	BaseProvider

	endpoint string
	client   *http.Client
	build    BuildRequestFunc
	decode   DecodeFunc
}

// NewHTTPProvider creates an HTTP-backed provider.
func NewHTTPProvider(
	name string,
	chain domain.Blockchain,
	caps Capabilities,
	rl RateLimit,
	endpoint string,
	timeout time.Duration,
	build BuildRequestFunc,
	decode DecodeFunc,
) *HTTPProvider {
	return &HTTPProvider{
		BaseProvider: NewBaseProvider(name, chain, caps, rl),
		endpoint:     endpoint,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		build:  build,
		decode: decode,
	}
}

// Execute performs one paginated fetch.
func (p *HTTPProvider) Execute(ctx context.Context, req Request) (cursor.Batch, error) {
	if !p.Capabilities().SupportsOperation(req.Kind) {
		return cursor.Batch{}, fmt.Errorf("%w: %s", ErrUnsupported, req.Kind)
	}

	httpReq, err := p.build(ctx, p.endpoint, req)
	if err != nil {
		return cursor.Batch{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return cursor.Batch{}, fmt.Errorf("http call: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return cursor.Batch{}, fmt.Errorf("rate limited (429), retry after: %s",
			resp.Header.Get("Retry-After"))
	case http.StatusForbidden:
		return cursor.Batch{}, fmt.Errorf("blocked (403)")
	case http.StatusNotFound:
		return cursor.Batch{}, ErrNoData
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return cursor.Batch{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if detectThrottle(string(body)) {
			return cursor.Batch{}, fmt.Errorf("throttle detected in response: %s", body)
		}
		return cursor.Batch{}, fmt.Errorf("http %d: %s", resp.StatusCode, body)
	}

	batch, err := p.decode(req, body)
	if err != nil {
		return cursor.Batch{}, fmt.Errorf("decode response: %w", err)
	}
	return batch, nil
}

// Close releases idle connections.
func (p *HTTPProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

func detectThrottle(message string) bool {
	lower := strings.ToLower(message)
	for _, pattern := range throttlePatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}
