package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"softdex/internal/query"
)

// ErrAPIUnavailable reports that no daemon API is configured or reachable.
var ErrAPIUnavailable = errors.New("daemon API unavailable")

// Client talks to a running daemon.
type Client struct {
	base  *url.URL
	http  *http.Client
	token string
}

// NewClient builds a client for bind (host:port or URL). It returns nil when
// bind is empty.
func NewClient(bind, token string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, nil
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, err
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""

	return &Client{
		base: base,
		// Inline scans can take a while on large libraries.
		http:  &http.Client{Timeout: 10 * time.Minute},
		token: strings.TrimSpace(token),
	}, nil
}

// Status fetches the daemon status.
func (c *Client) Status(ctx context.Context) (DaemonStatus, error) {
	var payload DaemonStatus
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &payload)
	return payload, err
}

// Software lists merged installation views matching filter.
func (c *Client) Software(ctx context.Context, filter query.Filter) (SoftwareListResponse, error) {
	values := url.Values{}
	if strings.TrimSpace(filter.Category) != "" {
		values.Set("category", filter.Category)
	}
	if strings.TrimSpace(filter.Source) != "" {
		values.Set("source", filter.Source)
	}
	var payload SoftwareListResponse
	err := c.do(ctx, http.MethodGet, "/api/software", values, &payload)
	return payload, err
}

// Scan asks the daemon for a detection pass. With async set the pass is
// queued behind the daemon's debounce instead of run inline.
func (c *Client) Scan(ctx context.Context, async bool) (ScanResponse, error) {
	values := url.Values{}
	if async {
		values.Set("async", "1")
	}
	var payload ScanResponse
	err := c.do(ctx, http.MethodPost, "/api/scan", values, &payload)
	return payload, err
}

func (c *Client) do(ctx context.Context, method, path string, values url.Values, out any) error {
	if c == nil {
		return ErrAPIUnavailable
	}
	endpoint := c.base.ResolveReference(&url.URL{Path: path, RawQuery: values.Encode()})
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr ErrorResponse
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s returned status %d: %s", method, path, resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("%s %s returned status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// IsAPIUnavailable reports whether err means the daemon could not be reached.
func IsAPIUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.Is(err, ErrAPIUnavailable) || errors.As(err, &opErr)
}
