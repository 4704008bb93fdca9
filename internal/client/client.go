package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	jsoniter "github.com/json-iterator/go"
	"golang.org/x/time/rate"

	"github.com/CEE-TEE/ggshield/internal/version"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// DefaultAPIURL is the public GitGuardian API.
	DefaultAPIURL = "https://api.gitguardian.com"

	multiscanPath  = "/v1/multiscan"
	defaultTimeout = 60 * time.Second
)

// Options configures a Client.
type Options struct {
	APIURL string
	APIKey string
	// HTTPClient is used for all requests. A client with a 60s timeout is
	// created when nil.
	HTTPClient *http.Client
	// RequestsPerSecond caps the request rate. Zero means unlimited.
	RequestsPerSecond float64
	// MaxRetries is the number of retries on 429 and 5xx responses.
	MaxRetries int
}

// Client is a GitGuardian API client. It is safe for concurrent use.
type Client struct {
	apiURL     string
	apiKey     string
	client     *http.Client
	limiter    *rate.Limiter
	maxRetries int

	// retryInterval is the first back-off interval; tests shrink it.
	retryInterval time.Duration
}

// New creates a Client.
func New(opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("GITGUARDIAN_API_KEY environment variable is not set")
	}
	apiURL := strings.TrimRight(opts.APIURL, "/")
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	return &Client{
		apiURL:        apiURL,
		apiKey:        opts.APIKey,
		client:        httpClient,
		limiter:       rate.NewLimiter(limit, 1),
		maxRetries:    max(opts.MaxRetries, 0),
		retryInterval: 500 * time.Millisecond,
	}, nil
}

// MultiContentScan scans documents in a single request. The returned error is
// set only when the exchange itself broke down (request could not be built,
// response could not be read or decoded); API-level failures, including an
// unreachable server, are reported as a *Failure outcome.
func (c *Client) MultiContentScan(ctx context.Context, documents []Document, headers map[string]string) (Outcome, error) {
	if len(documents) > MultiDocumentLimit {
		return nil, fmt.Errorf("too many documents in one request: %d (max %d)", len(documents), MultiDocumentLimit)
	}
	for _, d := range documents {
		if len(d.Document) > DocumentSizeThresholdBytes {
			return nil, fmt.Errorf("document %s exceeds %d bytes", d.Filename, DocumentSizeThresholdBytes)
		}
	}

	payload, err := json.Marshal(documents)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	var outcome Outcome
	attempt := 0
	operation := func() error {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		out, err := c.post(ctx, payload, headers)
		if err != nil {
			return backoff.Permanent(err)
		}
		outcome = out
		if f, ok := out.(*Failure); ok && retryable(f.StatusCode) {
			slog.Debug("retrying multiscan", "status", f.StatusCode, "attempt", attempt)
			return f
		}
		return nil
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = c.retryInterval
	expBackoff.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(expBackoff, uint64(c.maxRetries)), ctx)

	if err := backoff.Retry(operation, policy); err != nil {
		var failure *Failure
		if errors.As(err, &failure) {
			// Retries exhausted: hand the last failure to the caller.
			return outcome, nil
		}
		return nil, err
	}
	return outcome, nil
}

func (c *Client) post(ctx context.Context, payload []byte, headers map[string]string) (Outcome, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+multiscanPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Token "+c.apiKey)
	req.Header.Set("User-Agent", "ggshield/"+version.Version)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return transportFailure(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return &Failure{StatusCode: resp.StatusCode, Detail: loadDetail(body, resp.Status)}, nil
	}

	var results []ScanResult
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	for i := range results {
		if results[i].PolicyBreakCount == 0 {
			results[i].PolicyBreakCount = len(results[i].PolicyBreaks)
		}
	}
	return &Success{Results: results}, nil
}

// transportFailure classifies an error returned by http.Client.Do.
func transportFailure(ctx context.Context, err error) (Outcome, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("sending request: %w", ctxErr)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Failure{StatusCode: http.StatusGatewayTimeout, Detail: "The request timed out."}, nil
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &Failure{Detail: err.Error()}, nil
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return &Failure{Detail: err.Error()}, nil
	}
	return nil, fmt.Errorf("sending request: %w", err)
}

// loadDetail extracts the human readable detail of an error response. Per
// document errors come back as a bare JSON array and are kept verbatim.
func loadDetail(body []byte, status string) string {
	var obj struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &obj); err == nil && obj.Detail != "" {
		return obj.Detail
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	return status
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}
