// Package httpx wraps net/http for the crawl pipeline: it builds the
// standard crawler headers, exposes the HEAD probe and GET fetch the
// fetcher needs, and folds transport failures into the small error
// taxonomy the status codes are derived from.
package httpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"pagehound/internal/config"
)

// Transport failure classes. The fetcher maps each to a terminal status.
var (
	ErrRelativeURI    = errors.New("uri is not absolute")
	ErrHostUnresolved = errors.New("host could not be resolved")
)

// Connect and response timeouts so a hung server never holds a worker
// slot indefinitely.
const (
	connectTimeout        = 10 * time.Second
	responseHeaderTimeout = 25 * time.Second
	totalTimeout          = 30 * time.Second
)

// Client issues the pipeline's HEAD and GET requests.
type Client struct {
	hc     *http.Client
	params config.CrawlParams
}

// NewClient builds a Client with explicit connect and response-header
// timeouts. A nil underlying client gets the default transport.
func NewClient(hc *http.Client, params config.CrawlParams) *Client {
	if hc == nil {
		hc = &http.Client{
			Transport: &http.Transport{
				DialContext:           (&net.Dialer{Timeout: connectTimeout}).DialContext,
				ResponseHeaderTimeout: responseHeaderTimeout,
			},
			Timeout: totalTimeout,
		}
	}
	return &Client{hc: hc, params: params}
}

// Head issues the probe request with keep-alive crawler headers. It
// returns the response headers and the canonical URL for the resource:
// the Content-Location header when the server sets one, otherwise the
// final post-redirect request URL.
func (c *Client) Head(ctx context.Context, rawURL string) (http.Header, string, error) {
	resp, err := c.do(ctx, http.MethodHead, rawURL, "keep-alive")
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	canonical := resp.Header.Get("Content-Location")
	if canonical == "" {
		canonical = resp.Request.URL.String()
	}
	return resp.Header, canonical, nil
}

// Get fetches the document body with Connection: close, so the full
// transfer does not pin a pooled connection.
func (c *Client) Get(ctx context.Context, rawURL string) (http.Header, []byte, error) {
	resp, err := c.do(ctx, http.MethodGet, rawURL, "close")
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read body for %s: %w", rawURL, err)
	}
	return resp.Header, body, nil
}

func (c *Client) do(ctx context.Context, method, rawURL, connection string) (*http.Response, error) {
	if !strings.Contains(rawURL, "://") {
		return nil, fmt.Errorf("%w: %s", ErrRelativeURI, rawURL)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.params.UserAgent)
	req.Header.Set("Accept", c.params.AcceptHeader())
	req.Header.Set("Accept-Language", c.params.AcceptLanguageHeader())
	req.Header.Set("Connection", connection)

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, classify(err)
	}
	return resp, nil
}

// classify folds wrapped resolver failures into ErrHostUnresolved and
// leaves everything else as a generic transport error.
func classify(err error) error {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return fmt.Errorf("%w: %v", ErrHostUnresolved, dnsErr)
	}
	return err
}
