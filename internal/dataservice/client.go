// Package dataservice is the client for the ZIP code data service. Any
// failure degrades to a bundled sample dataset.
package dataservice

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/marketmap/internal/model"
	"github.com/sells-group/marketmap/internal/resilience"
)

// Source says where a response came from.
type Source string

// Response sources.
const (
	SourceService Source = "service"
	SourceSample  Source = "sample"
)

// Options configures a Client.
type Options struct {
	BaseURL     string
	Timeout     time.Duration
	MaxAttempts int
	RatePerSec  float64
}

// Client posts filter requests to the data service.
type Client struct {
	baseURL string
	http    *http.Client
	guard   *resilience.Guard
}

// New returns a Client for opts.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    &http.Client{Timeout: opts.Timeout},
		guard:   resilience.NewGuard("dataservice", opts.RatePerSec, opts.MaxAttempts),
	}
}

// ZipCodes returns the ranked records for f. On failure it returns the
// sample dataset; the error is non-nil only if ctx is done.
func (c *Client) ZipCodes(ctx context.Context, f model.Filters) (model.ZipCodesResponse, Source, error) {
	var resp model.ZipCodesResponse
	err := c.post(ctx, "/zip-codes", model.ZipCodesRequest{Filters: f}, &resp)
	if err == nil {
		return resp, SourceService, nil
	}
	if ctx.Err() != nil {
		return model.ZipCodesResponse{}, "", eris.Wrap(ctx.Err(), "dataservice: zip codes")
	}

	zap.L().Warn("dataservice: zip codes unavailable, using sample data", zap.Error(err))
	sample, serr := SampleZipCodes(f)
	if serr != nil {
		return model.ZipCodesResponse{}, "", serr
	}
	return sample, SourceSample, nil
}

// Table returns the table rows for f valued at perCapita, falling back to
// the sample dataset like ZipCodes.
func (c *Client) Table(ctx context.Context, f model.Filters, perCapita float64) (model.TableResponse, Source, error) {
	var resp model.TableResponse
	err := c.post(ctx, "/zip-codes-table", model.TableRequest{Filters: f, YearlyConsumption: perCapita}, &resp)
	if err == nil {
		return resp, SourceService, nil
	}
	if ctx.Err() != nil {
		return model.TableResponse{}, "", eris.Wrap(ctx.Err(), "dataservice: table")
	}

	zap.L().Warn("dataservice: table unavailable, using sample data", zap.Error(err))
	sample, serr := SampleTable(f, perCapita)
	if serr != nil {
		return model.TableResponse{}, "", serr
	}
	return sample, SourceSample, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return eris.Wrap(err, "dataservice: encode request")
	}
	url := c.baseURL + path

	_, err = resilience.Call(ctx, c.guard, "POST "+path, func(ctx context.Context) (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return struct{}{}, eris.Wrap(err, "dataservice: build request")
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return struct{}{}, eris.Wrapf(err, "dataservice: post %s", path)
		}
		defer resp.Body.Close() //nolint:errcheck

		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return struct{}{}, &resilience.StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return struct{}{}, eris.Wrapf(err, "dataservice: decode %s", path)
		}
		return struct{}{}, nil
	})
	return err
}
