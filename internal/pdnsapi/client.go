// Package pdnsapi is the typed HTTP client for the PowerDNS Authoritative
// server management API. One Client wraps one Connection and is shared by
// every zone pipeline that targets that server.
package pdnsapi

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/net/http2"

	"pdns-migrate/internal/migerr"
	"pdns-migrate/internal/zonemodel"
)

var transientStatuses = map[int]bool{
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// Client is the PowerDNS API client for one server. It owns one HTTP
// connection pool, shared safely across concurrent zone pipelines, and
// must be released with Close when the process no longer needs it.
type Client struct {
	conn zonemodel.Connection
	http *retryablehttp.Client
}

// New builds a Client for the given connection descriptor. The underlying
// transport is sized for concurrency-bound reuse and, where the peer
// supports it, negotiates HTTP/2.
func New(conn zonemodel.Connection, concurrency int) (*Client, error) {
	transport := cleanhttp.DefaultPooledTransport()
	transport.TLSClientConfig = tlsConfig(conn.VerifyTLS)
	if concurrency > 0 {
		transport.MaxIdleConnsPerHost = concurrency
	}
	if err := http2.ConfigureTransport(transport); err != nil {
		// HTTP/2 is an optimization, not a requirement; a server that only
		// speaks HTTP/1.1 still works over the same transport.
		_ = err
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = &http.Client{Transport: transport, Timeout: conn.Timeout}
	rc.RetryMax = conn.Retries
	rc.Logger = nil
	rc.CheckRetry = checkRetry
	rc.Backoff = backoffFunc(conn)

	return &Client{conn: conn, http: rc}, nil
}

// Close releases the client's connection pool. Safe to call once all
// in-flight zone pipelines using this client have finished.
func (c *Client) Close() {
	c.http.HTTPClient.CloseIdleConnections()
}

// checkRetry classifies a completed attempt as retriable per the policy
// in §4.1: transport failures and {429,500,502,503,504} are retriable;
// everything else is not. Context cancellation is never retried.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return true, nil
	}
	if resp != nil && transientStatuses[resp.StatusCode] {
		return true, nil
	}
	return false, nil
}

// backoffFunc implements delay = min(max_backoff, base_backoff*2^(k-1)) +
// uniform(0, jitter), extended (never shortened) by a server-supplied
// Retry-After header in seconds when present and parseable.
func backoffFunc(conn zonemodel.Connection) retryablehttp.Backoff {
	return func(_, _ time.Duration, attemptNum int, resp *http.Response) time.Duration {
		k := attemptNum + 1
		delay := conn.RetryBackoff * time.Duration(1<<uint(k-1))
		if conn.RetryMaxWait > 0 && delay > conn.RetryMaxWait {
			delay = conn.RetryMaxWait
		}
		if conn.RetryJitter > 0 {
			delay += time.Duration(rand.Int63n(int64(conn.RetryJitter) + 1))
		}
		if resp != nil {
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if secs, err := strconv.Atoi(ra); err == nil {
					if extended := time.Duration(secs) * time.Second; extended > delay {
						delay = extended
					}
				}
			}
		}
		return delay
	}
}

func tlsConfig(verify bool) *tls.Config {
	return &tls.Config{InsecureSkipVerify: !verify}
}

// newRequest builds a JSON request against this client's server,
// attaching the standard headers required by §4.1.
func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*retryablehttp.Request, error) {
	url := c.conn.Endpoint() + path

	var req *retryablehttp.Request
	var err error
	if body != nil {
		b, merr := json.Marshal(body)
		if merr != nil {
			return nil, merr
		}
		req, err = retryablehttp.NewRequestWithContext(ctx, method, url, bytes.NewReader(b))
	} else {
		req, err = retryablehttp.NewRequestWithContext(ctx, method, url, nil)
	}
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-Key", c.conn.APIKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do executes req, decoding a JSON response body into out when non-nil.
// Non-2xx statuses are translated into the typed error taxonomy; a
// cancelled context surfaces as *migerr.CancelledError.
func (c *Client) do(ctx context.Context, req *retryablehttp.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return &migerr.CancelledError{Reason: "context cancelled during request: " + ctx.Err().Error()}
		}
		return &migerr.TransportError{
			Method:  req.Method,
			URL:     req.URL.String(),
			Cause:   err,
			Retries: c.conn.Retries,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out != nil {
			return json.NewDecoder(resp.Body).Decode(out)
		}
		return nil
	}

	body, _ := io.ReadAll(resp.Body)
	httpErr := &migerr.HttpError{
		Method: req.Method,
		URL:    req.URL.String(),
		Status: resp.StatusCode,
		Body:   string(body),
	}
	switch resp.StatusCode {
	case 404:
		return &migerr.NotFoundError{HttpError: httpErr}
	case 409, 422:
		return &migerr.ConflictError{HttpError: httpErr}
	default:
		return httpErr
	}
}

// GetZone fetches the full zone document including rrsets.
func (c *Client) GetZone(ctx context.Context, zone string) (*zonemodel.Zone, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/zones/"+pathEscapeZone(zone), nil)
	if err != nil {
		return nil, err
	}
	var z zonemodel.Zone
	if err := c.do(ctx, req, &z); err != nil {
		return nil, err
	}
	return &z, nil
}

// ZoneExists probes whether a zone exists on this server, translating a
// 404 into (false, nil) rather than surfacing a NotFoundError.
func (c *Client) ZoneExists(ctx context.Context, zone string) (bool, error) {
	_, err := c.GetZone(ctx, zone)
	if err == nil {
		return true, nil
	}
	var nf *migerr.NotFoundError
	if asNotFound(err, &nf) {
		return false, nil
	}
	return false, err
}

// CreateZone creates zone fresh on this server.
func (c *Client) CreateZone(ctx context.Context, zone zonemodel.Zone) (*zonemodel.Zone, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/zones", zone)
	if err != nil {
		return nil, err
	}
	var created zonemodel.Zone
	if err := c.do(ctx, req, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// DeleteZone removes zone from this server.
func (c *Client) DeleteZone(ctx context.Context, zone string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/zones/"+pathEscapeZone(zone), nil)
	if err != nil {
		return err
	}
	return c.do(ctx, req, nil)
}

// PatchRRSets applies an ordered set of RRSet changes to zone via a
// single PATCH, as PowerDNS's API requires.
func (c *Client) PatchRRSets(ctx context.Context, zone string, changes []zonemodel.Change) error {
	payload := map[string]any{"rrsets": changes}
	req, err := c.newRequest(ctx, http.MethodPatch, "/zones/"+pathEscapeZone(zone), payload)
	if err != nil {
		return err
	}
	return c.do(ctx, req, nil)
}

// ListZones returns the summary list of every zone on this server.
func (c *Client) ListZones(ctx context.Context) ([]zonemodel.Zone, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/zones", nil)
	if err != nil {
		return nil, err
	}
	var zones []zonemodel.Zone
	if err := c.do(ctx, req, &zones); err != nil {
		return nil, err
	}
	return zones, nil
}

func pathEscapeZone(zone string) string {
	// PowerDNS zone ids are the zone name as submitted; the API accepts
	// the trailing dot unescaped in practice, but we still guard against
	// a caller passing path-breaking characters.
	return escapeSegment(zone)
}

func escapeSegment(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '/', '?', '#':
			out = append(out, '%', hexDigit(s[i]>>4), hexDigit(s[i]&0xF))
		default:
			out = append(out, s[i])
		}
	}
	return string(out)
}

func hexDigit(b byte) byte {
	const hex = "0123456789ABCDEF"
	return hex[b]
}

func asNotFound(err error, target **migerr.NotFoundError) bool {
	if nf, ok := err.(*migerr.NotFoundError); ok {
		*target = nf
		return true
	}
	return false
}
