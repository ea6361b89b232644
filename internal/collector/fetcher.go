package collector

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"SignalSentinel/internal/model"
)

// Fetcher retrieves OHLCV bars for [start, end) at the given interval
// ("1d", "60m", "15m", "1m"). Results may be empty or partial, and
// individual fields may be missing.
type Fetcher interface {
	FetchOHLCV(ctx context.Context, symbol string, start, end time.Time, interval string) ([]model.OHLCV, error)
	Name() string
}

// Source selects a Fetcher implementation for New.
type Source struct {
	Name     string // yahoo, rest or mock
	BaseURL  string
	APIKey   string
	ProxyURL string
}

// New returns the fetcher named by src.Name.
func New(src Source) (Fetcher, error) {
	switch src.Name {
	case "", "yahoo":
		return NewYahooFetcher(src.ProxyURL), nil
	case "rest":
		if src.BaseURL == "" {
			return nil, fmt.Errorf("rest data source requires base_url")
		}
		return NewRESTFetcher(src.BaseURL, src.APIKey, src.ProxyURL), nil
	case "mock":
		return &MockFetcher{}, nil
	default:
		return nil, fmt.Errorf("unknown data source %q", src.Name)
	}
}

func newHTTPClient(proxyURL string) *http.Client {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &http.Client{
		Timeout:   30 * time.Second,
		Transport: transport,
	}
}

// floatPtr converts a JSON number to *float64; null and non-numbers map to nil.
func floatPtr(v interface{}) *float64 {
	switch n := v.(type) {
	case float64:
		return &n
	case int:
		f := float64(n)
		return &f
	case int64:
		f := float64(n)
		return &f
	default:
		return nil
	}
}
