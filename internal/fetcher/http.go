package fetcher

import (
	"context"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/marketmap/internal/resilience"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	// RatePerSec limits request starts; 0 disables the limiter.
	RatePerSec float64
}

// HTTPFetcher implements Fetcher over net/http with retry, a breaker and
// an optional rate limit.
type HTTPFetcher struct {
	client *http.Client
	opts   HTTPOptions
	guard  *resilience.Guard
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Minute
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "marketmap/1.0"
	}
	return &HTTPFetcher{
		client: &http.Client{Timeout: opts.Timeout},
		opts:   opts,
		guard:  resilience.NewGuard("fetcher", opts.RatePerSec, opts.MaxRetries),
	}
}

// DownloadToFile fetches rawURL into dest. A failed attempt truncates
// dest before the next one.
func (f *HTTPFetcher) DownloadToFile(ctx context.Context, rawURL, dest string) (int64, error) {
	return resilience.Call(ctx, f.guard, "GET "+rawURL, func(ctx context.Context) (int64, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return 0, eris.Wrap(err, "http: build request")
		}
		req.Header.Set("User-Agent", f.opts.UserAgent)

		resp, err := f.client.Do(req)
		if err != nil {
			return 0, eris.Wrap(err, "http: get")
		}
		defer resp.Body.Close() //nolint:errcheck

		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
			return 0, &resilience.StatusError{Code: resp.StatusCode, Body: string(msg)}
		}

		out, err := os.Create(dest)
		if err != nil {
			return 0, eris.Wrap(err, "http: create file")
		}
		defer out.Close() //nolint:errcheck

		n, err := io.Copy(out, resp.Body)
		if err != nil {
			zap.L().Warn("http: partial download", zap.String("url", rawURL), zap.Int64("bytes", n), zap.Error(err))
			return n, eris.Wrap(err, "http: write file")
		}
		return n, nil
	})
}
