package steamstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/antonholmquist/jason"

	"softdex/internal/detect"
	"softdex/internal/logging"
	"softdex/internal/metadata"
	"softdex/internal/software"
)

// Name identifies this provider in logs and stored attributes.
const Name = "steam"

const maxBodyBytes = 4 << 20

// Client reads title details from the Steam storefront appdetails endpoint.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ metadata.Provider = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logging.NewComponentLogger(logger, "steamstore")
	}
}

// New creates a storefront client.
func New(baseURL, userAgent string, timeout time.Duration, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("steam store base url required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  strings.TrimSpace(userAgent),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Name returns the provider name.
func (c *Client) Name() string { return Name }

// Supports accepts Steam titles that carry a numeric app id.
func (c *Client) Supports(req metadata.Request) bool {
	if !strings.EqualFold(req.Source, detect.SourceSteam) {
		return false
	}
	_, err := strconv.ParseUint(req.ExternalID, 10, 32)
	return err == nil
}

// Fetch looks up the app id. Unknown or delisted apps are reported as not
// found.
func (c *Client) Fetch(ctx context.Context, req metadata.Request) (software.Attributes, bool, error) {
	if !c.Supports(req) {
		return software.Attributes{}, false, nil
	}
	endpoint, err := url.Parse(c.baseURL + "/api/appdetails")
	if err != nil {
		return software.Attributes{}, false, fmt.Errorf("parse steam store url: %w", err)
	}
	params := url.Values{}
	params.Set("appids", req.ExternalID)
	params.Set("l", "english")
	endpoint.RawQuery = params.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return software.Attributes{}, false, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}

	requestStart := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	latency := time.Since(requestStart)
	if err != nil {
		return software.Attributes{}, false, fmt.Errorf("execute request (latency=%v): %w", latency, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return software.Attributes{}, false, nil
	case resp.StatusCode != http.StatusOK:
		return software.Attributes{}, false, fmt.Errorf("steam appdetails returned %d (latency=%v)", resp.StatusCode, latency)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return software.Attributes{}, false, fmt.Errorf("read steam response: %w", err)
	}
	attrs, found, err := parseAppDetails(body, req.ExternalID)
	if err != nil {
		return software.Attributes{}, false, err
	}
	c.logger.Debug("steam appdetails",
		logging.String("app_id", req.ExternalID),
		logging.Bool("found", found),
		logging.Duration("latency", latency),
	)
	return attrs, found, nil
}

func parseAppDetails(body []byte, appID string) (software.Attributes, bool, error) {
	root, err := jason.NewObjectFromBytes(body)
	if err != nil {
		return software.Attributes{}, false, fmt.Errorf("decode steam response: %w", err)
	}
	entry, err := root.GetObject(appID)
	if err != nil {
		return software.Attributes{}, false, nil
	}
	if ok, err := entry.GetBoolean("success"); err != nil || !ok {
		return software.Attributes{}, false, nil
	}
	data, err := entry.GetObject("data")
	if err != nil {
		return software.Attributes{}, false, nil
	}

	attrs := software.Attributes{Provider: Name}
	attrs.Description, _ = data.GetString("short_description")
	attrs.CoverImageURL, _ = data.GetString("header_image")
	if publishers, err := data.GetStringArray("publishers"); err == nil {
		attrs.Publisher = firstNonEmpty(publishers)
	}
	if developers, err := data.GetStringArray("developers"); err == nil {
		attrs.Developers = compact(developers)
	}
	if genres, err := data.GetObjectArray("genres"); err == nil {
		for _, genre := range genres {
			if desc, err := genre.GetString("description"); err == nil {
				attrs.Genres = append(attrs.Genres, desc)
			}
		}
		attrs.Genres = compact(attrs.Genres)
	}
	if comingSoon, _ := data.GetBoolean("release_date", "coming_soon"); !comingSoon {
		attrs.ReleaseDate, _ = data.GetString("release_date", "date")
	}
	if appType, err := data.GetString("type"); err == nil {
		attrs.Category = categoryForType(appType)
	}
	if raw, err := data.Marshal(); err == nil {
		attrs.MetadataJSON = string(raw)
	}
	return attrs, true, nil
}

func categoryForType(appType string) software.Category {
	switch strings.ToLower(strings.TrimSpace(appType)) {
	case "game", "dlc", "demo", "mod":
		return software.CategoryGame
	case "music", "video", "series", "episode":
		return software.CategoryMedia
	case "application", "tool":
		return software.CategoryApplication
	default:
		return software.CategoryUnknown
	}
}

func firstNonEmpty(values []string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func compact(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
